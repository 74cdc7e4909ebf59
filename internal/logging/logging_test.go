package logging

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"testing"
)

func TestParseLevel(t *testing.T) {
	cases := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		"INFO":    slog.LevelInfo,
		" warn ":  slog.LevelWarn,
		"error":   slog.LevelError,
		"verbose": slog.LevelInfo,
	}
	for in, want := range cases {
		if got := ParseLevel(in); got != want {
			t.Fatalf("ParseLevel(%q) = %v want %v", in, got, want)
		}
	}
}

func TestNewFiltersBelowLevel(t *testing.T) {
	var buf bytes.Buffer
	logger := New(&buf, "warn")

	logger.Info("hidden")
	logger.Warn("shown")

	out := buf.String()
	if strings.Contains(out, "hidden") || !strings.Contains(out, "shown") {
		t.Fatalf("unexpected output %q", out)
	}
}

func TestStartSpanReusesRequestID(t *testing.T) {
	var buf bytes.Buffer
	ctx := WithLogger(context.Background(), New(&buf, "debug"))
	ctx = WithRequestID(ctx, "req-123")

	ctx, span := StartSpan(ctx, "outer")
	if TraceIDFromContext(ctx) != "req-123" {
		t.Fatalf("expected request id as trace id got %q", TraceIDFromContext(ctx))
	}

	child, inner := StartSpan(ctx, "inner")
	FromContext(child).Info("inside")
	inner.End()
	span.End()

	out := buf.String()
	if !strings.Contains(out, `"parent_span_id"`) || !strings.Contains(out, `"trace_id":"req-123"`) {
		t.Fatalf("expected span metadata in %q", out)
	}
}

func TestWithAddsAttributes(t *testing.T) {
	var buf bytes.Buffer
	ctx := WithLogger(context.Background(), New(&buf, "info"))
	ctx = With(ctx, slog.String("user_id", "user-1"))

	FromContext(ctx).Info("hello")
	if !strings.Contains(buf.String(), `"user_id":"user-1"`) {
		t.Fatalf("expected user id attribute in %q", buf.String())
	}
}
