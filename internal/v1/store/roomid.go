package store

import (
	"crypto/rand"
)

// roomIDAlphabet excludes nothing: short codes are read aloud between
// musicians, and the client uppercases input, so the full A-Z0-9 set is fine.
const (
	roomIDAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	roomIDLength   = 6
)

// newRoomID returns a random 6-character room code.
func newRoomID() string {
	buf := make([]byte, roomIDLength)
	// rand.Read on crypto/rand never fails on supported platforms.
	_, _ = rand.Read(buf)
	for i, b := range buf {
		buf[i] = roomIDAlphabet[int(b)%len(roomIDAlphabet)]
	}
	return string(buf)
}
