package obs

import (
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestSetLoggerReplacesShared(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	prev := Logger()
	SetLogger(zap.New(core))
	t.Cleanup(func() { SetLogger(prev) })

	Logger().Info("hello", zap.String("component", "test"))
	if logs.Len() != 1 {
		t.Fatalf("expected 1 entry, got %d", logs.Len())
	}
	if got := logs.All()[0].ContextMap()["component"]; got != "test" {
		t.Fatalf("unexpected field: %v", got)
	}
}

func TestSetLoggerNilIsNop(t *testing.T) {
	prev := Logger()
	t.Cleanup(func() { SetLogger(prev) })
	SetLogger(nil)
	Logger().Info("dropped")
}

func TestNewLoggerHonoursLevelOverride(t *testing.T) {
	t.Setenv("LOG_LEVEL", "warn")
	l, err := NewLogger("production")
	if err != nil {
		t.Fatalf("NewLogger: %v", err)
	}
	if l.Core().Enabled(zap.InfoLevel) {
		t.Fatal("info should be disabled at warn level")
	}
	if !l.Core().Enabled(zap.WarnLevel) {
		t.Fatal("warn should be enabled")
	}
}
