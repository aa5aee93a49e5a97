package logging

import (
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/Eventect/roastsight-core/internal/infrastructure/config"
)

// Leveled is the logging surface the rest of the codebase programs
// against. The driver, history and mqtt packages each declare a local
// copy of it so they stay free of infrastructure imports; *Logger
// satisfies all of them.
type Leveled interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// Logger emits structured records through log/slog with the service
// name and build version stamped on every entry. Safe for concurrent
// use.
type Logger struct {
	*slog.Logger
}

var _ Leveled = (*Logger)(nil)

const serviceName = "roastsight"

// levels maps accepted config values onto slog levels. Unrecognised
// values fall back to info.
var levels = map[string]slog.Level{
	"debug":   slog.LevelDebug,
	"info":    slog.LevelInfo,
	"warn":    slog.LevelWarn,
	"warning": slog.LevelWarn,
	"error":   slog.LevelError,
}

// New builds a Logger from the logging section of the config file.
// Format selects between JSON and text records, output between stdout
// and stderr.
func New(cfg config.LoggingConfig, version string) *Logger {
	return &Logger{Logger: slog.New(handlerFor(cfg, version, writerFor(cfg.Output)))}
}

func writerFor(output string) io.Writer {
	if strings.EqualFold(output, "stderr") {
		return os.Stderr
	}
	return os.Stdout
}

func handlerFor(cfg config.LoggingConfig, version string, w io.Writer) slog.Handler {
	level, ok := levels[strings.ToLower(cfg.Level)]
	if !ok {
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}

	var h slog.Handler
	if strings.EqualFold(cfg.Format, "text") {
		h = slog.NewTextHandler(w, opts)
	} else {
		h = slog.NewJSONHandler(w, opts)
	}
	return h.WithAttrs([]slog.Attr{
		slog.String("service", serviceName),
		slog.String("version", version),
	})
}

// With returns a child logger carrying extra default attributes,
// typically a component name.
func (l *Logger) With(args ...any) *Logger {
	return &Logger{Logger: l.Logger.With(args...)}
}

// Default is the bootstrap logger used before the config file has been
// read: JSON to stdout at info level.
func Default() *Logger {
	return New(config.LoggingConfig{Level: "info", Format: "json", Output: "stdout"}, "dev")
}
