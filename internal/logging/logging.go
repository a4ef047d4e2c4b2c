// Package logging builds the zap logger shared by every component.
package logging

import (
	"fmt"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Modes accepted by New.
const (
	ModeDevelopment = "development"
	ModeProduction  = "production"
)

// ParseLevel parses debug, info, warn or error.
func ParseLevel(s string) (zapcore.Level, error) {
	var lvl zapcore.Level
	if err := lvl.UnmarshalText([]byte(strings.ToLower(strings.TrimSpace(s)))); err != nil {
		return lvl, fmt.Errorf("logging: invalid level %q", s)
	}
	return lvl, nil
}

// New builds a logger writing to stderr at level. The development mode uses
// the console encoder; production writes JSON. The logger replaces zap's
// globals.
func New(level, mode string) (*zap.Logger, error) {
	lvl, err := ParseLevel(level)
	if err != nil {
		return nil, err
	}

	var cfg zap.Config
	switch mode {
	case ModeDevelopment, "":
		cfg = zap.NewDevelopmentConfig()
	case ModeProduction:
		cfg = zap.NewProductionConfig()
	default:
		return nil, fmt.Errorf("logging: invalid mode %q", mode)
	}
	cfg.Level = zap.NewAtomicLevelAt(lvl)
	cfg.OutputPaths = []string{"stderr"}
	cfg.ErrorOutputPaths = []string{"stderr"}

	logger, err := cfg.Build()
	if err != nil {
		return nil, fmt.Errorf("logging: failed to initialize logger: %w", err)
	}
	zap.ReplaceGlobals(logger)
	return logger, nil
}
