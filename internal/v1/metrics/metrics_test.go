package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

// These collectors are promauto-registered against the default registry, so the
// main thing to verify is that they are initialized and usable without panics.

func TestCounters(t *testing.T) {
	t.Run("MessagesEnqueued", func(t *testing.T) {
		before := testutil.ToFloat64(MessagesEnqueued.WithLabelValues("page_updated"))
		MessagesEnqueued.WithLabelValues("page_updated").Inc()
		after := testutil.ToFloat64(MessagesEnqueued.WithLabelValues("page_updated"))
		assert.Equal(t, before+1, after)
	})

	t.Run("MessagesDropped", func(t *testing.T) {
		before := testutil.ToFloat64(MessagesDropped.WithLabelValues("oldest"))
		MessagesDropped.WithLabelValues("oldest").Inc()
		after := testutil.ToFloat64(MessagesDropped.WithLabelValues("oldest"))
		assert.Equal(t, before+1, after)
	})

	t.Run("RateLimitExceeded", func(t *testing.T) {
		before := testutil.ToFloat64(RateLimitExceeded.WithLabelValues("/v1/rooms", "ip"))
		RateLimitExceeded.WithLabelValues("/v1/rooms", "ip").Inc()
		after := testutil.ToFloat64(RateLimitExceeded.WithLabelValues("/v1/rooms", "ip"))
		assert.Equal(t, before+1, after)
	})
}

func TestGauges(t *testing.T) {
	t.Run("ConnectionHelpers", func(t *testing.T) {
		before := testutil.ToFloat64(ActiveWebSocketConnections)
		IncConnection()
		assert.Equal(t, before+1, testutil.ToFloat64(ActiveWebSocketConnections))
		DecConnection()
		assert.Equal(t, before, testutil.ToFloat64(ActiveWebSocketConnections))
	})

	t.Run("RoomMembers", func(t *testing.T) {
		RoomMembers.WithLabelValues("ROOM01").Set(3)
		assert.Equal(t, 3.0, testutil.ToFloat64(RoomMembers.WithLabelValues("ROOM01")))
		RoomMembers.DeleteLabelValues("ROOM01")
	})

	t.Run("CircuitBreakerState", func(t *testing.T) {
		CircuitBreakerState.WithLabelValues("redis").Set(1)
		assert.Equal(t, 1.0, testutil.ToFloat64(CircuitBreakerState.WithLabelValues("redis")))
		CircuitBreakerState.WithLabelValues("redis").Set(0)
	})
}

func TestHistograms(t *testing.T) {
	// Observing must not panic; value inspection for histograms is not worth the
	// ceremony here.
	BroadcastFanout.Observe(4)
	BatchSize.Observe(2)
}
