// ABOUTME: slog default logger configuration
// ABOUTME: Maps level names to slog levels and picks a text or JSON handler
package config

import (
	"errors"
	"log/slog"
	"os"
)

var ErrLogLevel = errors.New("unexpected log level")

var logLevels = map[string]slog.Level{
	"none":  slog.LevelError,
	"error": slog.LevelError,
	"warn":  slog.LevelWarn,
	"info":  slog.LevelInfo,
	"debug": slog.LevelDebug,
}

// ConfigureLogger installs the default slog logger.
//
// Valid levels are "none", "error", "warn", "info" and "debug". With an empty
// logFile the logger writes text to stdout, otherwise JSON to the file. The
// returned file, if any, should be closed on exit.
func ConfigureLogger(logLevel, logFile string, opts slog.HandlerOptions) (*os.File, error) {
	level, ok := logLevels[logLevel]
	if !ok {
		return nil, ErrLogLevel
	}
	if logLevel == "none" {
		slog.SetDefault(slog.New(slog.DiscardHandler))
		return nil, nil
	}
	opts.Level = level

	if logFile == "" {
		slog.SetDefault(slog.New(slog.NewTextHandler(os.Stdout, &opts)))
		return nil, nil
	}

	f, err := os.OpenFile(logFile, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0644)
	if err != nil {
		return nil, err
	}
	slog.SetDefault(slog.New(slog.NewJSONHandler(f, &opts)))
	return f, nil
}
