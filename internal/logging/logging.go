// Package logging builds the process slog handler: JSON on stderr, an optional
// rotating log file, and trace correlation ids on every record.
package logging

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"

	"go.opentelemetry.io/otel/trace"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Option configures the handler
type Option func(*options)

type options struct {
	level      slog.Level
	out        io.Writer
	file       string
	maxSizeMB  int
	maxBackups int
}

// WithLevel sets the minimum level
func WithLevel(level slog.Level) Option {
	return func(o *options) {
		o.level = level
	}
}

// WithOutput replaces stderr as the primary writer
func WithOutput(w io.Writer) Option {
	return func(o *options) {
		o.out = w
	}
}

// WithFile also writes records to a size-rotated file
func WithFile(path string, maxSizeMB, maxBackups int) Option {
	return func(o *options) {
		o.file = path
		o.maxSizeMB = maxSizeMB
		o.maxBackups = maxBackups
	}
}

// NewHandler returns a JSON handler that adds trace_id and span_id when the record's context carries a span.
// The returned closer releases the log file; it is a no-op without one.
func NewHandler(opts ...Option) (slog.Handler, io.Closer) {
	o := &options{level: slog.LevelInfo, out: os.Stderr}
	for _, opt := range opts {
		opt(o)
	}

	var closer io.Closer = nopCloser{}
	out := o.out
	if o.file != "" {
		rotating := &lumberjack.Logger{
			Filename:   o.file,
			MaxSize:    o.maxSizeMB,
			MaxBackups: o.maxBackups,
		}
		out = io.MultiWriter(o.out, rotating)
		closer = rotating
	}

	base := slog.NewJSONHandler(out, &slog.HandlerOptions{Level: o.level})
	return &traceHandler{Handler: base}, closer
}

// ParseLevel maps a level name onto a slog.Level. Unknown names yield info and false.
func ParseLevel(s string) (slog.Level, bool) {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug, true
	case "info", "":
		return slog.LevelInfo, true
	case "warn", "warning":
		return slog.LevelWarn, true
	case "error":
		return slog.LevelError, true
	default:
		return slog.LevelInfo, false
	}
}

type traceHandler struct {
	slog.Handler
}

func (h *traceHandler) Handle(ctx context.Context, r slog.Record) error {
	sc := trace.SpanFromContext(ctx).SpanContext()
	if sc.IsValid() {
		r.AddAttrs(
			slog.String("trace_id", sc.TraceID().String()),
			slog.String("span_id", sc.SpanID().String()),
		)
	}
	return h.Handler.Handle(ctx, r)
}

func (h *traceHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &traceHandler{Handler: h.Handler.WithAttrs(attrs)}
}

func (h *traceHandler) WithGroup(name string) slog.Handler {
	return &traceHandler{Handler: h.Handler.WithGroup(name)}
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
