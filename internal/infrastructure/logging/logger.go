package logging

import (
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/nana4rider/wisun-gateway/internal/infrastructure/config"
)

// Logger is slog with the gateway's defaults baked in: every record
// carries service and version attributes, and the level, format and
// destination come from the logging section of config.yaml.
//
// Embedding keeps the full slog API available, so components log with
// the usual Info/Warn/Error key-value calls.
type Logger struct {
	*slog.Logger
}

// New builds a Logger from config. Format "text" gives human-readable
// output for development; anything else means JSON. Output "stderr"
// redirects away from stdout; anything else means stdout.
func New(cfg config.LoggingConfig, version string) *Logger {
	var output io.Writer
	switch strings.ToLower(cfg.Output) {
	case "stderr":
		output = os.Stderr
	default:
		output = os.Stdout
	}

	opts := &slog.HandlerOptions{
		Level: parseLevel(cfg.Level),
	}

	var handler slog.Handler
	switch strings.ToLower(cfg.Format) {
	case "text":
		handler = slog.NewTextHandler(output, opts)
	default:
		handler = slog.NewJSONHandler(output, opts)
	}

	handler = handler.WithAttrs([]slog.Attr{
		slog.String("service", "wisun-gateway"),
		slog.String("version", version),
	})

	return &Logger{
		Logger: slog.New(handler),
	}
}

// Default returns a stdout/JSON/info logger for the window before the
// config file has been read. Replaced by New once config loads.
func Default() *Logger {
	return New(config.LoggingConfig{
		Level:  "info",
		Format: "json",
		Output: "stdout",
	}, "dev")
}

// With returns a child logger carrying extra default attributes:
//
//	meterLog := log.With("component", "meter")
func (l *Logger) With(args ...any) *Logger {
	return &Logger{
		Logger: l.Logger.With(args...),
	}
}

// parseLevel maps a config string to a slog.Level, defaulting to info
// for anything unrecognised.
func parseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
