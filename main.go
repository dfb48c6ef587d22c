package main

import (
	"github.com/luma/esplink/cmd"
)

func main() {
	cmd.Execute()
}
