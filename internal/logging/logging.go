// Package logging builds the zap logger used across the server. The stdio
// transport owns stdout, so in that mode logs go to a file sink or nowhere.
package logging

import (
	"fmt"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Options controls logger construction.
type Options struct {
	// Level is one of debug, info, warn, error. Empty means info.
	Level string
	// File is the log file path. Required when StdioSafe is set.
	File string
	// StdioSafe forbids writing to stdout or stderr. Set for the stdio
	// transport, where stdout carries protocol frames.
	StdioSafe bool
	// Verbose forces the debug level regardless of Level.
	Verbose bool
}

// New builds a production zap logger per opts. With StdioSafe set and no
// file configured it returns a no-op logger rather than corrupt the
// protocol stream.
func New(opts Options) (*zap.Logger, error) {
	if opts.StdioSafe && opts.File == "" {
		return zap.NewNop(), nil
	}

	config := zap.NewProductionConfig()
	config.Level = zap.NewAtomicLevelAt(parseLevel(opts.Level, opts.Verbose))
	if opts.File != "" {
		config.OutputPaths = []string{opts.File}
		config.ErrorOutputPaths = []string{opts.File}
	} else {
		config.OutputPaths = []string{"stderr"}
		config.ErrorOutputPaths = []string{"stderr"}
	}

	logger, err := config.Build()
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}
	return logger, nil
}

func parseLevel(level string, verbose bool) zapcore.Level {
	if verbose {
		return zapcore.DebugLevel
	}
	switch level {
	case "debug":
		return zapcore.DebugLevel
	case "warn", "warning":
		return zapcore.WarnLevel
	case "error":
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}
