package timeouts

import (
	"context"
	"testing"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestConfigure_KeepsZeroValues(t *testing.T) {
	t.Cleanup(func() {
		mu.Lock()
		ping, short, syncD, batch = DefaultPing, DefaultShort, DefaultSync, DefaultBatch
		mu.Unlock()
	})

	Configure(Config{Sync: 45 * time.Second})

	if Sync() != 45*time.Second {
		t.Errorf("Sync = %v, want 45s", Sync())
	}
	if Ping() != DefaultPing || Short() != DefaultShort || Batch() != DefaultBatch {
		t.Errorf("unset values changed: ping=%v short=%v batch=%v", Ping(), Short(), Batch())
	}
}

func TestWithTimeout_LogsDeadline(t *testing.T) {
	core, logs := observer.New(zap.WarnLevel)
	log := zap.New(core)

	ctx, cancel := WithTimeout(context.Background(), time.Millisecond, log, "reconcile chunk")
	<-ctx.Done()
	cancel()

	if logs.Len() != 1 {
		t.Fatalf("logged %d entries, want 1", logs.Len())
	}
	entry := logs.All()[0]
	if entry.Message != "operation timed out" || entry.ContextMap()["operation"] != "reconcile chunk" {
		t.Errorf("entry = %+v", entry)
	}
}

func TestWithTimeout_QuietOnCancel(t *testing.T) {
	core, logs := observer.New(zap.WarnLevel)

	_, cancel := WithTimeout(context.Background(), time.Minute, zap.New(core), "lookup")
	cancel()

	if logs.Len() != 0 {
		t.Errorf("logged %d entries on plain cancel", logs.Len())
	}
}
