package log

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	cases := map[string]slog.Level{
		"":        slog.LevelInfo,
		"debug":   slog.LevelDebug,
		" WARN ":  slog.LevelWarn,
		"warning": slog.LevelWarn,
		"error":   slog.LevelError,
		"verbose": slog.LevelInfo,
	}
	for in, want := range cases {
		assert.Equal(t, want, ParseLevel(in), "ParseLevel(%q)", in)
	}
}

func TestJSONLoggerWithComponent(t *testing.T) {
	var buf bytes.Buffer
	logger := New(Config{Level: slog.LevelDebug, JSON: true, Output: &buf}).WithComponent(ComponentAuth)

	logger.Info("Signed in", FieldAccountID, "a1")

	var rec map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &rec))
	assert.Equal(t, "Signed in", rec["msg"])
	assert.Equal(t, ComponentAuth, rec[FieldComponent])
	assert.Equal(t, "a1", rec[FieldAccountID])
	assert.Equal(t, ComponentAuth, logger.Component())
}

func TestFromContext(t *testing.T) {
	fallback := FromContext(context.Background())
	assert.Equal(t, "unknown", fallback.Component())

	logger := New(DefaultConfig())
	assert.Same(t, logger, FromContext(NewContext(context.Background(), logger)))
}

func TestComponentMiddleware(t *testing.T) {
	var seen string
	h := ComponentMiddleware(ComponentHTTP)(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
		seen = FromContext(r.Context()).Component()
	}))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, ComponentHTTP, seen)
}

func TestComponentMiddlewareReplacesComponent(t *testing.T) {
	var buf bytes.Buffer
	base := New(Config{JSON: true, Output: &buf}).WithComponent(ComponentHTTP)

	h := ComponentMiddleware(ComponentExpense)(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
		FromContext(r.Context()).Info("Listed")
	}))
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	h.ServeHTTP(httptest.NewRecorder(), req.WithContext(NewContext(req.Context(), base)))

	assert.Equal(t, 1, bytes.Count(buf.Bytes(), []byte(`"component"`)), buf.String())
	var rec map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &rec))
	assert.Equal(t, ComponentExpense, rec[FieldComponent])
}

func TestLogFields(t *testing.T) {
	f := NewFields().
		WithComponent(ComponentExpense).
		WithRequestID("").
		WithAccount("a1").
		WithExpense("e1", "3.50", "FOOD").
		WithMonth(2024, 2).
		WithError(errors.New("boom"))

	assert.Equal(t, ComponentExpense, f[FieldComponent])
	assert.NotContains(t, f, FieldRequestID)
	assert.Equal(t, "2024-03", f[FieldMonth])
	assert.Equal(t, "a1", f[FieldAccountID])
	assert.Equal(t, "boom", f[FieldError])
	assert.Len(t, f.ToSlice(), len(f)*2)
}

func TestStructuredLoggerLevels(t *testing.T) {
	var buf bytes.Buffer
	sl := NewStructuredLogger(New(Config{Level: slog.LevelDebug, JSON: true, Output: &buf}))
	r := httptest.NewRequest(http.MethodGet, "/api/expenses", nil)

	sl.LogHTTPEnd(context.Background(), r, "req_1", http.StatusInternalServerError, 12, "10.0.0.1")

	var rec map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &rec))
	assert.Equal(t, "ERROR", rec["level"])
	assert.Equal(t, false, rec[FieldSuccess])
	assert.Equal(t, "req_1", rec[FieldRequestID])
}
