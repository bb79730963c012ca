// Package log builds the slog logger described by the [Logging] section of
// the configuration: a log file, optionally mirrored to standard output, and
// context-carried attributes.
package log

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"

	"github.com/slickqa/slick-reporter/internal/config"
)

// LevelCritical maps the CRITICAL level name, which slog does not have.
const LevelCritical = slog.LevelError + 4

type slogKeyT struct{}

var slogKey slogKeyT

// ContextHandler adds attributes stored in the context to every record.
type ContextHandler struct {
	slog.Handler
}

func NewContextHandler(handler slog.Handler) ContextHandler {
	return ContextHandler{
		Handler: handler,
	}
}

func (h ContextHandler) Handle(ctx context.Context, r slog.Record) error {
	if a, ok := ctx.Value(slogKey).([]slog.Attr); ok {
		r.AddAttrs(a...)
	}

	return h.Handler.Handle(ctx, r)
}

// ContextAttrs returns a context carrying attrs, which ContextHandler will
// attach to every record logged through it.
func ContextAttrs(ctx context.Context, attrs ...slog.Attr) context.Context {
	a, ok := ctx.Value(slogKey).([]slog.Attr)
	if !ok || a == nil {
		a = make([]slog.Attr, 0, len(attrs))
	}
	a = append(a, attrs...)
	return context.WithValue(ctx, slogKey, a)
}

// Level translates a configured level name to a slog.Level.
func Level(name string) slog.Level {
	switch name {
	case config.LevelDebug:
		return slog.LevelDebug
	case config.LevelWarning:
		return slog.LevelWarn
	case config.LevelError:
		return slog.LevelError
	case config.LevelCritical:
		return LevelCritical
	default:
		return slog.LevelInfo
	}
}

// tee fans a record out to several handlers.
type tee struct {
	handlers []slog.Handler
}

func (t tee) Enabled(ctx context.Context, level slog.Level) bool {
	for _, h := range t.handlers {
		if h.Enabled(ctx, level) {
			return true
		}
	}
	return false
}

func (t tee) Handle(ctx context.Context, r slog.Record) error {
	var errs []error
	for _, h := range t.handlers {
		if h.Enabled(ctx, r.Level) {
			errs = append(errs, h.Handle(ctx, r.Clone()))
		}
	}
	return errors.Join(errs...)
}

func (t tee) WithAttrs(attrs []slog.Attr) slog.Handler {
	handlers := make([]slog.Handler, len(t.handlers))
	for i, h := range t.handlers {
		handlers[i] = h.WithAttrs(attrs)
	}
	return tee{handlers: handlers}
}

func (t tee) WithGroup(name string) slog.Handler {
	handlers := make([]slog.Handler, len(t.handlers))
	for i, h := range t.handlers {
		handlers[i] = h.WithGroup(name)
	}
	return tee{handlers: handlers}
}

// New builds a logger for the given [Logging] configuration. When the log
// file cannot be opened, logging falls back to standard output alone and the
// problem is reported on the returned logger, not as an error: a broken log
// file must not stop a test run.
func New(cfg config.Logging) *slog.Logger {
	level := Level(cfg.Level)

	var handlers []slog.Handler
	var fileErr error
	if cfg.Logfile != "" {
		f, err := os.OpenFile(cfg.Logfile, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
		if err != nil {
			fileErr = err
		} else {
			handlers = append(handlers, newHandler(cfg.Format, f, level))
			if cfg.Stdout {
				handlers = append(handlers, newHandler(cfg.Format, os.Stdout, level))
			}
		}
	}
	if len(handlers) == 0 {
		// without a usable logfile, stdout logging is mandatory
		handlers = append(handlers, newHandler(cfg.Format, os.Stdout, level))
	}

	var base slog.Handler
	if len(handlers) == 1 {
		base = handlers[0]
	} else {
		base = tee{handlers: handlers}
	}
	logger := slog.New(NewContextHandler(base))
	if fileErr != nil {
		logger.Warn("unable to write to log file", "path", cfg.Logfile, "error", fileErr)
	}
	return logger
}

func newHandler(format string, w io.Writer, level slog.Level) slog.Handler {
	opts := &slog.HandlerOptions{Level: level}
	if format == "json" {
		return slog.NewJSONHandler(w, opts)
	}
	return slog.NewTextHandler(w, opts)
}
