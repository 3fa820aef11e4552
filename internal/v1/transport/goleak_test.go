package transport

import (
	"context"
	"testing"
	"time"

	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// TestHub_ShutdownStopsFlusher verifies the batch flusher goroutine exits.
// The leak assertion itself is handled by TestMain's goleak.VerifyTestMain.
func TestHub_ShutdownStopsFlusher(t *testing.T) {
	h := NewHub(&MockValidator{}, nil, Options{BatchFlushInterval: 5 * time.Millisecond})

	h.RegisterRoom("R1")
	h.Broadcast("R1", NewMessage("setlist_updated", map[string]any{"n": 1}), nil)

	if err := h.Shutdown(context.Background()); err != nil {
		t.Fatalf("Shutdown failed: %v", err)
	}

	// Second shutdown must be a no-op, not a panic on a closed channel.
	if err := h.Shutdown(context.Background()); err != nil {
		t.Fatalf("repeated Shutdown failed: %v", err)
	}
}
