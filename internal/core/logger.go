package core

import (
	"go.uber.org/zap"
)

// NewLogger rebuilds the global production logger at level. An unknown level keeps info.
func NewLogger(level string) *zap.Logger {
	config := zap.NewProductionConfig()

	atomicLevel, err := zap.ParseAtomicLevel(level)
	if err != nil {
		zap.L().Warn("Unknown log level, using info", zap.String("level", level))
		atomicLevel = zap.NewAtomicLevelAt(zap.InfoLevel)
	}
	config.Level = atomicLevel

	logger := zap.Must(config.Build())
	zap.ReplaceGlobals(logger)
	return logger
}
