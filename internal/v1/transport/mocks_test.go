package transport

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/gorilla/websocket"

	"github.com/scorecast/scorecast/internal/v1/auth"
)

// MockValidator implements types.TokenValidator. Without an override, the
// token string becomes the subject; "invalid" and "expired" fail accordingly.
type MockValidator struct {
	ValidateTokenFunc func(string) (*auth.CustomClaims, error)
}

func (m *MockValidator) ValidateToken(tokenString string) (*auth.CustomClaims, error) {
	if m.ValidateTokenFunc != nil {
		return m.ValidateTokenFunc(tokenString)
	}
	switch tokenString {
	case "invalid":
		return nil, errors.New("failed to parse token: signature mismatch")
	case "expired":
		return nil, fmt.Errorf("failed to parse token: %w", jwt.ErrTokenExpired)
	}
	claims := &auth.CustomClaims{}
	claims.Subject = tokenString
	return claims, nil
}

type readResult struct {
	messageType int
	data        []byte
}

type closeFrame struct {
	code   int
	reason string
}

// MockConnection implements wsConnection. Reads are fed through queueRead and
// unblock with an error once Close is called; written text frames and close
// frames are recorded for assertions.
type MockConnection struct {
	ReadMessageFunc func() (int, []byte, error)

	reads     chan readResult
	done      chan struct{}
	closeOnce sync.Once

	mu       sync.Mutex
	frames   [][]byte
	closes   []closeFrame
	writeErr error
}

func newMockConnection() *MockConnection {
	return &MockConnection{
		reads: make(chan readResult, 16),
		done:  make(chan struct{}),
	}
}

// queueRead hands a frame to the next ReadMessage call.
func (m *MockConnection) queueRead(messageType int, data []byte) {
	m.reads <- readResult{messageType: messageType, data: data}
}

func (m *MockConnection) ReadMessage() (int, []byte, error) {
	if m.ReadMessageFunc != nil {
		return m.ReadMessageFunc()
	}
	select {
	case r := <-m.reads:
		return r.messageType, r.data, nil
	case <-m.done:
		return 0, nil, errors.New("use of closed connection")
	}
}

func (m *MockConnection) WriteMessage(messageType int, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.writeErr != nil {
		return m.writeErr
	}
	switch messageType {
	case websocket.TextMessage:
		m.frames = append(m.frames, append([]byte(nil), data...))
	case websocket.CloseMessage:
		m.closes = append(m.closes, decodeCloseFrame(data))
	}
	return nil
}

func (m *MockConnection) WriteControl(messageType int, data []byte, _ time.Time) error {
	if messageType != websocket.CloseMessage {
		return nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closes = append(m.closes, decodeCloseFrame(data))
	return nil
}

func (m *MockConnection) Close() error {
	m.closeOnce.Do(func() { close(m.done) })
	return nil
}

func (m *MockConnection) SetWriteDeadline(_ time.Time) error { return nil }

// failWrites makes every subsequent write fail.
func (m *MockConnection) failWrites(err error) {
	m.mu.Lock()
	m.writeErr = err
	m.mu.Unlock()
}

// textFrames returns a copy of the recorded text frames.
func (m *MockConnection) textFrames() [][]byte {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([][]byte, len(m.frames))
	copy(out, m.frames)
	return out
}

// closeFrames returns a copy of the recorded close frames.
func (m *MockConnection) closeFrames() []closeFrame {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]closeFrame, len(m.closes))
	copy(out, m.closes)
	return out
}

func decodeCloseFrame(data []byte) closeFrame {
	if len(data) < 2 {
		return closeFrame{}
	}
	return closeFrame{
		code:   int(binary.BigEndian.Uint16(data[:2])),
		reason: string(data[2:]),
	}
}

// newTestHub builds a hub with a MockValidator and registers its shutdown.
func newTestHub(t *testing.T, opts Options) *Hub {
	t.Helper()
	h := NewHub(&MockValidator{}, nil, opts)
	t.Cleanup(func() { _ = h.Shutdown(context.Background()) })
	return h
}

// newTestSession builds a registered session on a mock connection. Pumps are
// not started; tests start exactly the ones they exercise.
func newTestSession(t *testing.T, h *Hub, userID string) (*Session, *MockConnection) {
	t.Helper()
	conn := newMockConnection()
	s := newSession(h, conn, userID, "req-"+userID)
	h.registerSession(s)
	t.Cleanup(func() {
		s.Disconnect()
		_ = conn.Close()
	})
	return s, conn
}
