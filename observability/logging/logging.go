// Package logging configures process-wide structured logging. Every service
// log line is a single JSON object with timestamp, severity, message, and the
// service identity, so collectors can ingest stdout directly.
package logging

import (
	"io"
	"log"
	"log/slog"
	"os"
	"strings"
)

// Setup builds the service's base JSON logger, installs it as the slog
// default, and redirects the standard library logger through it so
// dependencies that call log.Printf stay structured. The minimum level is
// read from RVN_LOG_LEVEL (debug, info, warn, error); unset or unrecognised
// values mean info.
func Setup(service, env string) *slog.Logger {
	return setup(os.Stdout, service, env, os.Getenv("RVN_LOG_LEVEL"))
}

func setup(w io.Writer, service, env, level string) *slog.Logger {
	handler := slog.NewJSONHandler(w, &slog.HandlerOptions{
		Level:       parseLevel(level),
		ReplaceAttr: renameStandardKeys,
	})

	attrs := []slog.Attr{slog.String("service", strings.TrimSpace(service))}
	if env = strings.TrimSpace(env); env != "" {
		attrs = append(attrs, slog.String("env", env))
	}

	args := make([]any, len(attrs))
	for i, attr := range attrs {
		args[i] = attr
	}
	base := slog.New(handler).With(args...)
	slog.SetDefault(base)

	bridge := slog.NewLogLogger(handler.WithAttrs(attrs), slog.LevelInfo)
	bridge.SetFlags(0)
	log.SetOutput(bridge.Writer())
	log.SetFlags(0)
	log.SetPrefix("")

	return base
}

func renameStandardKeys(_ []string, attr slog.Attr) slog.Attr {
	switch attr.Key {
	case slog.TimeKey:
		attr.Key = "timestamp"
	case slog.LevelKey:
		return slog.String("severity", strings.ToUpper(attr.Value.String()))
	case slog.MessageKey:
		attr.Key = "message"
	}
	return attr
}

func parseLevel(raw string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(raw)) {
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
