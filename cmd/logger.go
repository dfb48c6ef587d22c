package cmd

import (
	"go.uber.org/zap"

	"github.com/luma/esplink/internal/env"
)

func makeLogger(level string) (*zap.Logger, error) {
	if debug {
		level = "debug"
	}

	return env.MakeLogger(level)
}
