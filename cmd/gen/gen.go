// Package gen holds the documentation generators of the esplink CLI.
package gen

import (
	"github.com/spf13/cobra"
)

var RootCmd = &cobra.Command{
	Use:   "gen",
	Short: "Generate documentation for the esplink commands",
	Long:  `Generate man pages or markdown reference docs for every esplink command`,
}

func init() {
	RootCmd.AddCommand(ManPagesCmd)
	RootCmd.AddCommand(MarkdownCmd)
}
