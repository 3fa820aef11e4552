package transport

import (
	"encoding/json"
	"sync"
)

// Server message kinds.
const (
	KindConnectionSuccess = "connection_success"
	KindJoinRoomSuccess   = "join_room_success"
	KindRoomLeft          = "room_left"
	KindError             = "error"
	KindParticipantJoined = "participant_joined"
	KindParticipantLeft   = "participant_left"
	KindRoomClosed        = "room_closed"
	KindSongUpdated       = "song_updated"
	KindPageUpdated       = "page_updated"
	KindBatchedUpdate     = "batched_update"
)

// Client message kinds.
const (
	kindJoinRoom  = "join_room"
	kindLeaveRoom = "leave_room"
)

// criticalKinds bypass coalescing and batching and are enqueued directly.
var criticalKinds = map[string]struct{}{
	KindRoomClosed:        {},
	KindParticipantJoined: {},
	KindParticipantLeft:   {},
	KindConnectionSuccess: {},
	KindJoinRoomSuccess:   {},
	KindRoomLeft:          {},
	KindError:             {},
}

// Message is an outbound server message. The wire form is the payload map with
// a "type" field injected. Encoding is memoized so a broadcast to N sessions
// serializes exactly once.
type Message struct {
	Kind    string
	payload map[string]any

	once    sync.Once
	encoded []byte
	err     error
}

// NewMessage builds a message of the given kind. The payload must not be
// mutated after the first Encode.
func NewMessage(kind string, payload map[string]any) *Message {
	return &Message{Kind: kind, payload: payload}
}

// Critical reports whether the message bypasses coalescing and batching.
func (m *Message) Critical() bool {
	_, ok := criticalKinds[m.Kind]
	return ok
}

// Encode returns the wire bytes, serializing on first use.
func (m *Message) Encode() ([]byte, error) {
	m.once.Do(func() {
		frame := make(map[string]any, len(m.payload)+1)
		for k, v := range m.payload {
			frame[k] = v
		}
		frame["type"] = m.Kind
		m.encoded, m.err = json.Marshal(frame)
	})
	return m.encoded, m.err
}

// UpdateMeta carries the metadata fields of song_updated and page_updated
// frames. Image bytes are never embedded; clients fetch the page image over
// HTTP when image_etag changes.
type UpdateMeta struct {
	SongID      string `json:"song_id"`
	Title       string `json:"title"`
	Artist      string `json:"artist"`
	CurrentPage int    `json:"current_page"`
	TotalPages  int    `json:"total_pages"`
	ImageETag   string `json:"image_etag,omitempty"`
}

func ConnectionSuccess(userID string) *Message {
	return NewMessage(KindConnectionSuccess, map[string]any{"user_id": userID})
}

func JoinRoomSuccess(roomID string) *Message {
	return NewMessage(KindJoinRoomSuccess, map[string]any{"room_id": roomID})
}

func RoomLeft(roomID string) *Message {
	return NewMessage(KindRoomLeft, map[string]any{"room_id": roomID})
}

func ErrorMessage(text string) *Message {
	return NewMessage(KindError, map[string]any{"message": text})
}

func ParticipantJoined(userID string) *Message {
	return NewMessage(KindParticipantJoined, map[string]any{"user_id": userID})
}

func ParticipantLeft(userID string) *Message {
	return NewMessage(KindParticipantLeft, map[string]any{"user_id": userID})
}

func RoomClosed(roomID, reason string) *Message {
	payload := map[string]any{"room_id": roomID}
	if reason != "" {
		payload["reason"] = reason
	}
	return NewMessage(KindRoomClosed, payload)
}

func SongUpdated(meta UpdateMeta) *Message {
	return NewMessage(KindSongUpdated, map[string]any{"data": meta})
}

func PageUpdated(meta UpdateMeta) *Message {
	return NewMessage(KindPageUpdated, map[string]any{"data": meta})
}

// newBatchedUpdate wraps already-encoded messages into a single frame.
// Entries that fail to encode are skipped.
func newBatchedUpdate(msgs []*Message) *Message {
	raws := make([]json.RawMessage, 0, len(msgs))
	for _, m := range msgs {
		data, err := m.Encode()
		if err != nil {
			continue
		}
		raws = append(raws, json.RawMessage(data))
	}
	return NewMessage(KindBatchedUpdate, map[string]any{
		"data": map[string]any{"messages": raws},
	})
}

// inboundMessage is the envelope for client messages. Unknown types and
// malformed payloads are logged and ignored, never fatal.
type inboundMessage struct {
	Type   string `json:"type"`
	RoomID string `json:"room_id"`
}
