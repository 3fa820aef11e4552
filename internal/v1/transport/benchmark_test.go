package transport

import (
	"context"
	"fmt"
	"testing"
)

// drainSession consumes the outbound queue so enqueues never hit the drop
// path during throughput benchmarks.
func drainSession(s *Session) func() {
	done := make(chan struct{})
	go func() {
		defer close(done)
		for range s.send {
		}
	}()
	return func() {
		s.Disconnect()
		<-done
	}
}

func BenchmarkMessage_Encode(b *testing.B) {
	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		msg := SongUpdated(UpdateMeta{SongID: "42", Title: "Hallelujah", CurrentPage: 1, TotalPages: 5})
		if _, err := msg.Encode(); err != nil {
			b.Fatal(err)
		}
	}
}

func BenchmarkSession_Enqueue(b *testing.B) {
	h := NewHub(&MockValidator{}, nil, Options{SendQueueMax: 1024, CoalesceKinds: []string{}})
	defer func() { _ = h.Shutdown(context.Background()) }()

	s := newSession(h, newMockConnection(), "bench", "req-bench")
	stop := drainSession(s)
	defer stop()

	msg := numbered(1)
	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		s.Enqueue(msg)
	}
}

func BenchmarkHub_Broadcast(b *testing.B) {
	for _, members := range []int{2, 16, 128} {
		b.Run(fmt.Sprintf("members_%d", members), func(b *testing.B) {
			h := NewHub(&MockValidator{}, nil, Options{SendQueueMax: 1024, CoalesceKinds: []string{}})
			defer func() { _ = h.Shutdown(context.Background()) }()

			h.RegisterRoom("BENCH1")
			stops := make([]func(), 0, members)
			for i := 0; i < members; i++ {
				s := newSession(h, newMockConnection(), fmt.Sprintf("user-%d", i), "req")
				h.registerSession(s)
				h.joinRoom(s, "BENCH1")
				stops = append(stops, drainSession(s))
			}
			defer func() {
				for _, stop := range stops {
					stop()
				}
			}()

			msg := ParticipantJoined("extra")
			b.ReportAllocs()
			b.ResetTimer()
			for i := 0; i < b.N; i++ {
				h.Broadcast("BENCH1", msg, nil)
			}
		})
	}
}

func BenchmarkHub_JoinLeaveChurn(b *testing.B) {
	h := NewHub(&MockValidator{}, nil, Options{SendQueueMax: 1024})
	defer func() { _ = h.Shutdown(context.Background()) }()

	s := newSession(h, newMockConnection(), "churn", "req")
	h.registerSession(s)
	stop := drainSession(s)
	defer stop()

	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		h.joinRoom(s, "CHURN1")
		h.leaveRoom(s)
	}
}
