package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

func TestParseLevel(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in     string
		want   slog.Level
		wantOK bool
	}{
		{"", slog.LevelInfo, true},
		{"DEBUG", slog.LevelDebug, true},
		{"warning", slog.LevelWarn, true},
		{"error", slog.LevelError, true},
		{"chatty", slog.LevelInfo, false},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			t.Parallel()
			got, ok := ParseLevel(tt.in)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.wantOK, ok)
		})
	}
}

func TestNewHandler_JSONAndLevel(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	handler, closer := NewHandler(WithOutput(&buf), WithLevel(slog.LevelWarn))
	defer closer.Close()

	logger := slog.New(handler).With("run_id", "r1")
	logger.Info("dropped")
	logger.Warn("kept", "collection", "ddr-test-1")

	var record map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &record))
	assert.Equal(t, "kept", record["msg"])
	assert.Equal(t, "ddr-test-1", record["collection"])
	assert.Equal(t, "r1", record["run_id"])
	assert.NotContains(t, record, "trace_id")
}

func TestNewHandler_TraceCorrelation(t *testing.T) {
	t.Parallel()

	tp := sdktrace.NewTracerProvider()
	defer func() { _ = tp.Shutdown(context.Background()) }()
	ctx, span := tp.Tracer("test").Start(context.Background(), "tick")
	defer span.End()

	var buf bytes.Buffer
	handler, _ := NewHandler(WithOutput(&buf))
	slog.New(handler).InfoContext(ctx, "traced")

	var record map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &record))
	assert.Equal(t, span.SpanContext().TraceID().String(), record["trace_id"])
	assert.Equal(t, span.SpanContext().SpanID().String(), record["span_id"])
}

func TestNewHandler_File(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "gitstatus.log")
	var buf bytes.Buffer
	handler, closer := NewHandler(WithOutput(&buf), WithFile(path, 1, 1))

	slog.New(handler).Info("to both")
	require.NoError(t, closer.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "to both")
	assert.Contains(t, buf.String(), "to both")
}
