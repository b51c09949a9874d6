package bwapp

import (
	"github.com/advdv/bworker"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// NewLogger creates a zap logger configured from the environment. It uses JSON encoding
// suitable for CloudWatch and prints the trace level by name.
func NewLogger(env Environment) (*zap.Logger, error) {
	lvl, err := env.level()
	if err != nil {
		return nil, err
	}

	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(lvl)
	cfg.EncoderConfig.TimeKey = "timestamp"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	cfg.EncoderConfig.EncodeLevel = bworker.LevelEncoder

	return cfg.Build()
}
