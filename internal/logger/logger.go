package logger

import (
	"context"
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
)

// ContextKey is the type for context keys used by the logger
type ContextKey string

const (
	// LoggerKey is the context key for the logger instance
	LoggerKey ContextKey = "logger"
)

// Options controls how a logger is built.
type Options struct {
	// Debug lowers the level to debug; otherwise info.
	Debug bool
	// JSON emits raw JSON lines instead of the console format.
	JSON bool
	// Out defaults to stderr so command output on stdout stays clean.
	Out io.Writer
	// Component is attached to every line when set.
	Component string
}

// New creates a console logger at info level writing to stderr.
func New() zerolog.Logger {
	return NewWithOptions(Options{})
}

// NewWithOptions creates a logger from the given options.
func NewWithOptions(opts Options) zerolog.Logger {
	out := opts.Out
	if out == nil {
		out = os.Stderr
	}
	if !opts.JSON {
		out = zerolog.ConsoleWriter{
			Out:        out,
			TimeFormat: time.RFC3339,
		}
	}

	level := zerolog.InfoLevel
	if opts.Debug {
		level = zerolog.DebugLevel
	}

	c := zerolog.New(out).Level(level).With().Timestamp()
	if opts.Debug {
		c = c.Caller()
	}
	if opts.Component != "" {
		c = c.Str("component", opts.Component)
	}
	return c.Logger()
}

// NewWithWriter creates a JSON logger writing to w, mostly for tests.
func NewWithWriter(w io.Writer) zerolog.Logger {
	return zerolog.New(w).With().Timestamp().Logger()
}

// WithContext adds the logger to the context
func WithContext(ctx context.Context, logger zerolog.Logger) context.Context {
	return context.WithValue(ctx, LoggerKey, logger)
}

// FromContext retrieves the logger from the context or returns a default logger
func FromContext(ctx context.Context) zerolog.Logger {
	if logger, ok := ctx.Value(LoggerKey).(zerolog.Logger); ok {
		return logger
	}
	return New()
}

// WithFields adds structured fields to a logger
func WithFields(logger zerolog.Logger, fields map[string]interface{}) zerolog.Logger {
	ctx := logger.With()
	for k, v := range fields {
		ctx = ctx.Interface(k, v)
	}
	return ctx.Logger()
}

// WithObject returns a context whose logger is scoped to one extraction object.
func WithObject(ctx context.Context, runID, object string) context.Context {
	l := FromContext(ctx).With().Str("run_id", runID).Str("object", object).Logger()
	return WithContext(ctx, l)
}
