package transport

import (
	"context"
	"encoding/json"
	"runtime"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/scorecast/scorecast/internal/v1/logging"
	"github.com/scorecast/scorecast/internal/v1/metrics"
)

// writeWait bounds every socket write, control frames included.
const writeWait = 10 * time.Second

// wsConnection defines the interface for WebSocket connection operations.
type wsConnection interface {
	ReadMessage() (messageType int, p []byte, err error) // Read the next message from the connection
	WriteMessage(messageType int, data []byte) error     // Write a message to the connection
	WriteControl(messageType int, data []byte, deadline time.Time) error
	Close() error // Close the connection
	SetWriteDeadline(t time.Time) error
}

// Session is one authenticated WebSocket connection. It owns a bounded
// outbound queue drained by writePump and a per-kind coalescing buffer for
// high-frequency updates. Membership lives on the Hub; the session only
// mirrors its current room id.
type Session struct {
	hub  *Hub
	conn wsConnection

	userID    string
	requestID string
	ctx       context.Context // carries correlation fields for logging

	mu     sync.RWMutex // protects roomID and closed
	roomID string
	closed bool

	closeOnce sync.Once

	// sendMu serializes enqueue attempts so the drop policy's
	// receive-then-send sequence is atomic with respect to other producers.
	sendMu  sync.Mutex
	send    chan []byte
	dropped int

	coalesceMu    sync.Mutex
	coalesceBuf   map[string]*Message
	coalesceTimer *time.Timer
}

func newSession(hub *Hub, conn wsConnection, userID, requestID string) *Session {
	ctx := context.WithValue(context.Background(), logging.CorrelationIDKey, requestID)
	ctx = context.WithValue(ctx, logging.UserIDKey, userID)

	return &Session{
		hub:         hub,
		conn:        conn,
		userID:      userID,
		requestID:   requestID,
		ctx:         ctx,
		send:        make(chan []byte, hub.opts.SendQueueMax),
		coalesceBuf: make(map[string]*Message),
	}
}

// UserID returns the authenticated subject for this session.
func (s *Session) UserID() string { return s.userID }

// RequestID returns the correlation id captured during the handshake.
func (s *Session) RequestID() string { return s.requestID }

// Room returns the session's current room id, or "" when roomless.
func (s *Session) Room() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.roomID
}

func (s *Session) setRoom(roomID string) {
	s.mu.Lock()
	s.roomID = roomID
	s.mu.Unlock()
}

// Dropped returns the cumulative count of payloads discarded by the drop
// policy.
func (s *Session) Dropped() int {
	s.sendMu.Lock()
	defer s.sendMu.Unlock()
	return s.dropped
}

func (s *Session) isClosed() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.closed
}

// Enqueue routes a message to this session. Coalescable kinds are buffered
// for the coalesce window with last-write-wins semantics; everything else is
// encoded and queued immediately.
func (s *Session) Enqueue(msg *Message) {
	if !msg.Critical() && s.hub.coalesces(msg.Kind) {
		s.coalesce(msg)
		return
	}
	s.enqueueMessage(msg)
}

func (s *Session) coalesce(msg *Message) {
	s.coalesceMu.Lock()
	defer s.coalesceMu.Unlock()
	if s.isClosed() {
		return
	}
	if _, ok := s.coalesceBuf[msg.Kind]; ok {
		metrics.MessagesCoalesced.Inc()
	}
	s.coalesceBuf[msg.Kind] = msg
	if s.coalesceTimer == nil {
		s.coalesceTimer = time.AfterFunc(s.hub.opts.CoalesceWindow, s.flushCoalesced)
	}
}

func (s *Session) flushCoalesced() {
	s.coalesceMu.Lock()
	buf := s.coalesceBuf
	s.coalesceBuf = make(map[string]*Message)
	s.coalesceTimer = nil
	s.coalesceMu.Unlock()

	for _, msg := range buf {
		s.enqueueMessage(msg)
	}
}

func (s *Session) enqueueMessage(msg *Message) {
	data, err := msg.Encode()
	if err != nil {
		logging.Error(s.ctx, "failed to encode outbound message", zap.String("kind", msg.Kind), zap.Error(err))
		return
	}
	s.enqueueBytes(data, msg.Kind)
}

// enqueueBytes places an encoded payload on the outbound queue, applying the
// drop policy when the queue is at bound. It never blocks.
func (s *Session) enqueueBytes(data []byte, kind string) {
	s.sendMu.Lock()

	if s.closedLocked() {
		s.sendMu.Unlock()
		return
	}

	select {
	case s.send <- data:
		metrics.MessagesEnqueued.WithLabelValues(kind).Inc()
		s.sendMu.Unlock()
		return
	default:
	}

	// The writer may have drained the queue since the fast path failed.
	// Retry before dropping anything, and only count a drop when a payload
	// was actually discarded.
	select {
	case s.send <- data:
		metrics.MessagesEnqueued.WithLabelValues(kind).Inc()
		s.sendMu.Unlock()
		return
	default:
	}

	discarded := false
	switch s.hub.opts.DropPolicy {
	case DropNewest:
		// The incoming payload loses.
		discarded = true
	default:
		// DropOldest, and DropRandom until a real implementation lands:
		// evict the head, then queue the newcomer as the new tail.
		select {
		case <-s.send:
			discarded = true
		default:
		}
		select {
		case s.send <- data:
			metrics.MessagesEnqueued.WithLabelValues(kind).Inc()
		default:
			discarded = true
		}
	}
	if !discarded {
		s.sendMu.Unlock()
		return
	}
	s.dropped++
	dropped := s.dropped
	metrics.MessagesDropped.WithLabelValues(s.hub.opts.DropPolicy).Inc()
	s.sendMu.Unlock()

	logging.Warn(s.ctx, "send queue full, dropped payload",
		zap.String("policy", s.hub.opts.DropPolicy),
		zap.Int("dropped_count", dropped))

	if limit := s.hub.opts.SlowClientDisconnectAfterDrops; limit > 0 && dropped > limit {
		metrics.SlowClientDisconnects.Inc()
		logging.Warn(s.ctx, "disconnecting slow client", zap.Int("dropped_count", dropped))
		s.closeWithCode(CloseSlowClient, "Too many dropped messages")
	}
}

// closedLocked must be called with sendMu held; it re-checks the closed flag
// so no payload is queued between Disconnect's flag flip and channel close.
func (s *Session) closedLocked() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.closed
}

// Disconnect marks the session closed and shuts the outbound queue, which
// makes writePump send a close frame and exit. Safe to call more than once.
func (s *Session) Disconnect() {
	s.closeOnce.Do(func() {
		s.mu.Lock()
		s.closed = true
		s.mu.Unlock()

		s.coalesceMu.Lock()
		if s.coalesceTimer != nil {
			s.coalesceTimer.Stop()
			s.coalesceTimer = nil
		}
		s.coalesceBuf = make(map[string]*Message)
		s.coalesceMu.Unlock()

		// Taking sendMu here guarantees no enqueue is mid-flight when the
		// channel closes.
		s.sendMu.Lock()
		close(s.send)
		s.sendMu.Unlock()
	})
}

// closeWithCode sends a close frame with the given status code, then tears
// the session down. WriteControl is safe concurrently with writePump.
func (s *Session) closeWithCode(code int, reason string) {
	payload := websocket.FormatCloseMessage(code, reason)
	if err := s.conn.WriteControl(websocket.CloseMessage, payload, time.Now().Add(writeWait)); err != nil {
		logging.GetLogger().Debug("failed to write close frame", zap.Int("code", code), zap.Error(err))
	}
	s.Disconnect()
	_ = s.conn.Close()
}

// readPump consumes inbound frames until the connection dies. Binary frames
// are ignored. A panic while handling a message closes the session with 1011
// instead of crashing the process.
func (s *Session) readPump() {
	defer func() {
		if r := recover(); r != nil {
			logging.Error(s.ctx, "panic in session reader", zap.Any("panic", r))
			s.closeWithCode(websocket.CloseInternalServerErr, "internal error")
		}
		s.hub.handleDisconnect(s)
		s.Disconnect()
		_ = s.conn.Close()
		metrics.DecConnection()
	}()

	for {
		messageType, data, err := s.conn.ReadMessage()
		if err != nil {
			return
		}
		if messageType != websocket.TextMessage {
			continue
		}
		s.handleInbound(data)
	}
}

// handleInbound decodes and dispatches one client message. Malformed input
// and unknown types log a warning and are otherwise ignored.
func (s *Session) handleInbound(data []byte) {
	var msg inboundMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		logging.Warn(s.ctx, "discarding malformed client message", zap.Error(err))
		return
	}

	switch msg.Type {
	case kindJoinRoom:
		if msg.RoomID == "" {
			s.Enqueue(ErrorMessage("No room_id provided"))
			return
		}
		s.hub.joinRoom(s, msg.RoomID)
	case kindLeaveRoom:
		s.hub.leaveRoom(s)
	default:
		logging.Warn(s.ctx, "ignoring unknown client message type", zap.String("type", msg.Type))
	}
}

// writePump drains the outbound queue onto the socket. After writing a
// payload at or above the yield threshold it yields once to the scheduler so
// one large frame cannot monopolize the writer. Exits when the queue closes
// or a write fails.
func (s *Session) writePump() {
	var ping <-chan time.Time
	if s.hub.opts.PingInterval > 0 {
		ticker := time.NewTicker(s.hub.opts.PingInterval)
		defer ticker.Stop()
		ping = ticker.C
	}
	defer func() { _ = s.conn.Close() }()

	for {
		select {
		case data, ok := <-s.send:
			_ = s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = s.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := s.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				logging.Warn(s.ctx, "error writing message", zap.Error(err))
				s.Disconnect()
				return
			}
			if len(data) >= s.hub.opts.YieldThresholdBytes {
				runtime.Gosched()
			}
		case <-ping:
			_ = s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				s.Disconnect()
				return
			}
		}
	}
}
