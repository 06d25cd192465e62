package observability

import (
	"context"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestNewLoggerLevels(t *testing.T) {
	t.Parallel()

	for _, tc := range []struct {
		name      string
		level     string
		wantDebug bool
	}{
		{name: "debug enables debug output", level: "debug", wantDebug: true},
		{name: "info suppresses debug output", level: "info", wantDebug: false},
		{name: "blank defaults to info", level: "", wantDebug: false},
	} {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			logger, err := NewLogger(tc.level)
			if err != nil {
				t.Fatalf("NewLogger(%q) error = %v", tc.level, err)
			}
			if got := logger.Core().Enabled(zapcore.DebugLevel); got != tc.wantDebug {
				t.Fatalf("debug enabled = %v, want %v", got, tc.wantDebug)
			}
		})
	}

	if _, err := NewLogger("shouting"); err == nil {
		t.Fatal("NewLogger should reject an unknown level name")
	}
}

func TestRequestIDRoundTrip(t *testing.T) {
	t.Parallel()

	ctx := WithRequestID(context.Background(), "req-123")
	id, ok := RequestIDFromContext(ctx)
	if !ok || id != "req-123" {
		t.Fatalf("RequestIDFromContext() = %q, %v, want %q, true", id, ok, "req-123")
	}

	if _, ok := RequestIDFromContext(context.Background()); ok {
		t.Fatal("bare context should carry no request id")
	}
}

func TestWithContextLoggerAnnotation(t *testing.T) {
	t.Parallel()

	core, recorded := observer.New(zapcore.InfoLevel)
	base := zap.New(core)

	WithContextLogger(base, WithRequestID(context.Background(), "req-789")).Info("tagged")
	WithContextLogger(base, context.Background()).Info("untagged")

	entries := recorded.All()
	if len(entries) != 2 {
		t.Fatalf("entries = %d, want 2", len(entries))
	}
	if got := entries[0].ContextMap()["requestId"]; got != "req-789" {
		t.Fatalf("requestId = %v, want %q", got, "req-789")
	}
	if _, exists := entries[1].ContextMap()["requestId"]; exists {
		t.Fatal("untagged entry should carry no requestId field")
	}
}
