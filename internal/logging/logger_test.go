package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_JSONWithRequestID(t *testing.T) {
	var buf bytes.Buffer
	logger := New(&buf, "info", "json")
	ctx := context.WithValue(context.Background(), middleware.RequestIDKey, "req-42")

	logger.InfoContext(ctx, "Resolved layout", "source", "custom_layout")

	var rec map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &rec))
	assert.Equal(t, "Resolved layout", rec["msg"])
	assert.Equal(t, "req-42", rec["request_id"])
	assert.Equal(t, "custom_layout", rec["source"])
}

func TestNew_NoRequestID(t *testing.T) {
	var buf bytes.Buffer
	logger := New(&buf, "info", "text")

	logger.Info("hello")

	assert.Contains(t, buf.String(), "msg=hello")
	assert.NotContains(t, buf.String(), "request_id")
}

func TestNew_LevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	logger := New(&buf, "warn", "text")

	logger.Info("quiet")
	logger.Warn("loud")

	assert.NotContains(t, buf.String(), "quiet")
	assert.Contains(t, buf.String(), "loud")
}

func TestParseLevel(t *testing.T) {
	tests := map[string]slog.Level{
		"debug": slog.LevelDebug,
		"INFO":  slog.LevelInfo,
		"warn":  slog.LevelWarn,
		"error": slog.LevelError,
		"bogus": slog.LevelInfo,
		"":      slog.LevelInfo,
	}
	for in, want := range tests {
		assert.Equal(t, want, parseLevel(in), in)
	}
}

func TestRequestIDHandler_WithAttrsKeepsWrapping(t *testing.T) {
	var buf bytes.Buffer
	logger := New(&buf, "info", "json").With("component", "selector")
	ctx := context.WithValue(context.Background(), middleware.RequestIDKey, "req-7")

	logger.InfoContext(ctx, "x")

	var rec map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &rec))
	assert.Equal(t, "req-7", rec["request_id"])
	assert.Equal(t, "selector", rec["component"])
}
