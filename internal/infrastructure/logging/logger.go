package logging

import (
	"io"
	"log/slog"
	"os"
	"strings"

	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/nerrad567/relaylight/internal/infrastructure/config"
)

// serviceName is attached to every record.
const serviceName = "relaylight"

// Logger is a slog.Logger that also owns its output. It is safe for
// concurrent use.
type Logger struct {
	*slog.Logger

	// closer is the rotating log file, or nil for stdout and stderr.
	closer io.Closer
}

// New builds a Logger from the logging section of config.yaml. Every
// record carries service and version attributes.
func New(cfg config.LoggingConfig, version string) *Logger {
	w, closer := destination(cfg)
	l := newWithWriter(w, cfg, version)
	l.closer = closer
	return l
}

// newWithWriter builds the handler chain on top of w.
func newWithWriter(w io.Writer, cfg config.LoggingConfig, version string) *Logger {
	opts := &slog.HandlerOptions{Level: parseLevel(cfg.Level)}

	var h slog.Handler
	if strings.EqualFold(cfg.Format, "text") {
		h = slog.NewTextHandler(w, opts)
	} else {
		h = slog.NewJSONHandler(w, opts)
	}

	return &Logger{Logger: slog.New(h.WithAttrs([]slog.Attr{
		slog.String("service", serviceName),
		slog.String("version", version),
	}))}
}

// destination picks the writer for cfg.Output. File output without a path
// falls back to stdout.
func destination(cfg config.LoggingConfig) (io.Writer, io.Closer) {
	switch strings.ToLower(cfg.Output) {
	case "stderr":
		return os.Stderr, nil
	case "file":
		if cfg.File.Path == "" {
			return os.Stdout, nil
		}
		f := &lumberjack.Logger{
			Filename:   cfg.File.Path,
			MaxSize:    cfg.File.MaxSize,
			MaxBackups: cfg.File.MaxBackups,
			MaxAge:     cfg.File.MaxAge,
			Compress:   cfg.File.Compress,
		}
		return f, f
	default:
		return os.Stdout, nil
	}
}

// parseLevel maps debug, info, warn (or warning) and error onto slog
// levels, case-insensitively. Anything else is info.
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

// With returns a child carrying extra attributes, for example
// logger.With("device_id", id). The child shares the parent's output.
func (l *Logger) With(args ...any) *Logger {
	return &Logger{Logger: l.Logger.With(args...), closer: l.closer}
}

// Close releases the log file, if any.
func (l *Logger) Close() error {
	if l.closer == nil {
		return nil
	}
	return l.closer.Close()
}

// Default is a JSON info logger on stdout for use before config is loaded.
func Default() *Logger {
	return New(config.LoggingConfig{Level: "info", Format: "json", Output: "stdout"}, "dev")
}
