package log

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestParseLevel(t *testing.T) {
	cases := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		"WARN":    slog.LevelWarn,
		"error":   slog.LevelError,
		"":        slog.LevelInfo,
		"verbose": slog.LevelInfo,
	}
	for in, want := range cases {
		if got := ParseLevel(in); got != want {
			t.Fatalf("%q: got %v want %v", in, got, want)
		}
	}
}

func TestLoggerComponent(t *testing.T) {
	var buf bytes.Buffer
	logger := New(Config{Output: &buf, Level: slog.LevelDebug, Component: ComponentProjection})
	logger.Info("hello", FieldTransactionID, 7)
	logger.WithComponent(ComponentStorage).Debug("query")

	out := buf.String()
	if !strings.Contains(out, "component=projection") || !strings.Contains(out, "transaction_id=7") {
		t.Fatalf("missing fields in %q", out)
	}
	if !strings.Contains(out, "component=storage") {
		t.Fatalf("component override missing in %q", out)
	}
}

func TestLogHTTPEndLevel(t *testing.T) {
	var buf bytes.Buffer
	sl := NewStructuredLogger(New(Config{Output: &buf, Level: slog.LevelDebug}))
	r := httptest.NewRequest("GET", "/api/board", nil)

	sl.LogHTTPEnd(context.Background(), r, 500, 3, "127.0.0.1")
	if !strings.Contains(buf.String(), "level=ERROR") {
		t.Fatalf("5xx must log at error, got %q", buf.String())
	}
	buf.Reset()
	sl.LogHTTPEnd(context.Background(), r, 422, 3, "127.0.0.1")
	if !strings.Contains(buf.String(), "level=WARN") {
		t.Fatalf("4xx must log at warn, got %q", buf.String())
	}
}

func TestLoggerFromContext(t *testing.T) {
	var buf bytes.Buffer
	logger := New(Config{Output: &buf}).With(FieldRequestID, "abc")
	ctx := NewContext(context.Background(), logger)

	FromContext(ctx).Error("failed", FieldError, errors.New("boom"))
	out := buf.String()
	if !strings.Contains(out, "request_id=abc") || !strings.Contains(out, "error=boom") {
		t.Fatalf("missing fields in %q", out)
	}
	if FromContext(context.Background()) == nil {
		t.Fatalf("expected fallback logger")
	}
}
