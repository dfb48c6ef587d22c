package env

import (
	zap "go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// MakeLogger builds the production JSON logger at level ("debug", "info",
// "warn", ...).
func MakeLogger(level string) (*zap.Logger, error) {
	var lvl zapcore.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		return nil, err
	}

	logConfig := zap.NewProductionConfig()
	logConfig.Level = zap.NewAtomicLevelAt(lvl)
	logConfig.Encoding = "json"

	return logConfig.Build()
}
