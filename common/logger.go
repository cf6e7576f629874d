package common

import (
	"fmt"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// NewLogger builds the process logger.
// Development mode uses the human readable console encoder; otherwise JSON is written to stderr.
//
// Parameters:
//   - level: minimum level name ("debug", "info", "warn", "error")
//   - development: selects the development encoder and stack traces on warnings
//
// Returns:
//   - *zap.Logger: the configured logger
//   - error: error if the level is unknown or the logger cannot be built
func NewLogger(level string, development bool) (*zap.Logger, error) {
	if level == "" {
		level = "info"
	}
	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", level, err)
	}

	cfg := zap.NewProductionConfig()
	if development {
		cfg = zap.NewDevelopmentConfig()
	}
	cfg.Level = zap.NewAtomicLevelAt(lvl)

	logger, err := cfg.Build()
	if err != nil {
		return nil, fmt.Errorf("failed to build logger: %w", err)
	}
	return logger, nil
}
