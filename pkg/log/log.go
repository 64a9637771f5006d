// Package log configures the process-wide structured logger.
package log

import (
	"log/slog"
	"os"
	"strings"
)

// Setup installs the default slog logger for a binary. Output is JSON
// so log shippers can index the fields; the service name is attached to
// every record.
func Setup(serviceName, logLevel string) {
	handler := slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level:     parseLevel(logLevel),
		AddSource: parseLevel(logLevel) == slog.LevelDebug,
	})

	slog.SetDefault(slog.New(handler).With("service", serviceName))
}

func parseLevel(logLevel string) slog.Level {
	switch strings.ToLower(logLevel) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// WithModule scopes the default logger to one module.
func WithModule(module string) *slog.Logger {
	return slog.With("module", module)
}
