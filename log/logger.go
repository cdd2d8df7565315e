// Package log provides the structured logger used across the node. It
// wraps golang.org/x/exp/slog with the same terminal/JSON dual-mode
// handler selection and level verbs the rest of the codebase expects.
package log

import (
	"context"
	"io"
	"os"

	"github.com/mattn/go-colorable"
	"github.com/mattn/go-isatty"
	"golang.org/x/exp/slog"
)

// Logger is a context-carrying structured logger.
type Logger interface {
	Trace(msg string, ctx ...any)
	Debug(msg string, ctx ...any)
	Info(msg string, ctx ...any)
	Warn(msg string, ctx ...any)
	Error(msg string, ctx ...any)
	With(ctx ...any) Logger
}

type logger struct {
	inner *slog.Logger
}

// levelTrace is one notch below slog's built-in Debug, mirroring the
// extra verbosity level the rest of the pack's logging packages expose.
const levelTrace = slog.Level(-8)

func (l *logger) Trace(msg string, ctx ...any) {
	l.inner.Log(context.Background(), levelTrace, msg, ctx...)
}
func (l *logger) Debug(msg string, ctx ...any) { l.inner.Debug(msg, ctx...) }
func (l *logger) Info(msg string, ctx ...any)  { l.inner.Info(msg, ctx...) }
func (l *logger) Warn(msg string, ctx ...any)  { l.inner.Warn(msg, ctx...) }
func (l *logger) Error(msg string, ctx ...any) { l.inner.Error(msg, ctx...) }

func (l *logger) With(ctx ...any) Logger {
	return &logger{inner: l.inner.With(ctx...)}
}

var root Logger = &logger{inner: slog.New(defaultHandler(os.Stderr))}

// New builds a Logger that writes through the handler of the current
// process-wide default logger (see SetDefault), optionally with static
// context key/value pairs attached.
func New(ctx ...any) Logger {
	var h slog.Handler
	if r, ok := root.(*logger); ok {
		h = r.inner.Handler()
	} else {
		h = defaultHandler(os.Stderr)
	}
	l := slog.New(h)
	if len(ctx) > 0 {
		l = l.With(ctx...)
	}
	return &logger{inner: l}
}

// NewWithWriter builds a Logger writing to w instead of stderr, used
// for the rotating file sink that cmd/bnd sets up for --log-file.
func NewWithWriter(w io.Writer) Logger {
	return &logger{inner: slog.New(defaultHandler(w))}
}

func defaultHandler(w io.Writer) slog.Handler {
	opts := &slog.HandlerOptions{Level: levelTrace}
	if f, ok := w.(*os.File); ok && isatty.IsTerminal(f.Fd()) {
		return slog.NewTextHandler(colorable.NewColorable(f), opts)
	}
	return slog.NewJSONHandler(w, opts)
}

// Root returns the process-wide default logger.
func Root() Logger { return root }

// SetDefault replaces the process-wide default logger, used once at
// startup after cmd/bnd has parsed its logging flags.
func SetDefault(l Logger) { root = l }

func Trace(msg string, ctx ...any) { root.Trace(msg, ctx...) }
func Debug(msg string, ctx ...any) { root.Debug(msg, ctx...) }
func Info(msg string, ctx ...any)  { root.Info(msg, ctx...) }
func Warn(msg string, ctx ...any)  { root.Warn(msg, ctx...) }
func Error(msg string, ctx ...any) { root.Error(msg, ctx...) }
