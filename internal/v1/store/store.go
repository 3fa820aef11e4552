// Package store persists rooms, songs, users, and playlists. The Postgres
// implementation is the production store; an in-memory implementation backs
// development mode and tests.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

// Sentinel errors returned by store implementations. Handlers map these onto
// HTTP status codes.
var (
	ErrNotFound      = errors.New("record not found")
	ErrAlreadyExists = errors.New("record already exists")
	ErrNoActiveSong  = errors.New("no song is active")
)

// Room is a live collaboration room. The host drives song selection and page
// turns; participants follow.
type Room struct {
	RoomID        string        `json:"room_id"`
	HostID        string        `json:"host_id"`
	CurrentSongID string        `json:"current_song_id,omitempty"`
	CurrentPage   int           `json:"current_page"`
	CreatedAt     time.Time     `json:"created_at"`
	UpdatedAt     time.Time     `json:"updated_at"`
	Participants  []Participant `json:"participants"`
}

// Participant is a member of a room's persisted roster. Membership here is
// authoritative; WebSocket sessions only mirror it.
type Participant struct {
	UserID   string    `json:"user_id"`
	JoinedAt time.Time `json:"joined_at"`
}

// IsParticipant reports whether userID is on the room's roster.
func (r *Room) IsParticipant(userID string) bool {
	for _, p := range r.Participants {
		if p.UserID == userID {
			return true
		}
	}
	return false
}

// Song is one entry of the catalog. Filename points at the ChordPro source
// under the song data directory.
type Song struct {
	ID        string    `json:"song_id"`
	Title     string    `json:"title"`
	Artist    string    `json:"artist,omitempty"`
	Genre     string    `json:"genre,omitempty"`
	SongKey   string    `json:"song_key,omitempty"`
	Tempo     int       `json:"tempo,omitempty"`
	Language  string    `json:"language,omitempty"`
	Filename  string    `json:"filename,omitempty"`
	PageCount int       `json:"page_count"`
	DateAdded time.Time `json:"date_added"`
}

// SearchResult is one scored hit from the song search.
type SearchResult struct {
	SongID    string  `json:"song_id"`
	Title     string  `json:"title"`
	Artist    string  `json:"artist,omitempty"`
	PageCount int     `json:"page_count"`
	Score     float64 `json:"score"`
	ScoreType string  `json:"score_type"`
}

// User is an authenticated identity. Subject is the verifier's user id and is
// unique; rows are upserted on first authenticated call.
type User struct {
	ID          uuid.UUID `json:"id"`
	Subject     string    `json:"subject"`
	DisplayName string    `json:"display_name,omitempty"`
	Email       string    `json:"email,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	LastLogin   time.Time `json:"last_login"`
}

// Playlist is a user-owned ordered song collection.
type Playlist struct {
	ID        uuid.UUID `json:"id"`
	OwnerID   string    `json:"owner_id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
	Songs     []Song    `json:"songs"`
}

// RoomStore persists rooms and their rosters.
type RoomStore interface {
	// CreateRoom mints a fresh room id, retrying on collision, with the host
	// as the first participant.
	CreateRoom(ctx context.Context, hostID string) (*Room, error)
	GetRoom(ctx context.Context, roomID string) (*Room, error)
	// AddParticipant is idempotent: joining twice is not an error.
	AddParticipant(ctx context.Context, roomID, userID string) error
	RemoveParticipant(ctx context.Context, roomID, userID string) error
	// SetCurrentSong also resets the current page to 1.
	SetCurrentSong(ctx context.Context, roomID, songID string) error
	SetCurrentPage(ctx context.Context, roomID string, page int) error
	DeleteRoom(ctx context.Context, roomID string) error
}

// SongStore reads and maintains the song catalog.
type SongStore interface {
	ListSongs(ctx context.Context) ([]Song, error)
	GetSong(ctx context.Context, songID string) (*Song, error)
	// UpsertSong inserts or replaces a catalog entry; the importer calls it
	// once per ChordPro source at startup.
	UpsertSong(ctx context.Context, s *Song) error
	// SearchSongs runs a tiered substring match (exact 100, prefix 85,
	// contains 70) over title and artist, falling back to trigram similarity
	// when the substring pass finds nothing.
	SearchSongs(ctx context.Context, query string, limit int) ([]SearchResult, error)
}

// UserStore persists authenticated identities.
type UserStore interface {
	// UpsertUser records a login, creating the user on first sight.
	UpsertUser(ctx context.Context, subject, displayName, email string) (*User, error)
}

// PlaylistStore persists user-owned playlists. All mutations and reads are
// owner-scoped; a foreign playlist behaves like a missing one.
type PlaylistStore interface {
	CreatePlaylist(ctx context.Context, ownerID, name string) (*Playlist, error)
	ListPlaylists(ctx context.Context, ownerID string) ([]Playlist, error)
	GetPlaylist(ctx context.Context, ownerID string, playlistID uuid.UUID) (*Playlist, error)
	DeletePlaylist(ctx context.Context, ownerID string, playlistID uuid.UUID) error
	AddPlaylistSong(ctx context.Context, ownerID string, playlistID uuid.UUID, songID string) error
	RemovePlaylistSong(ctx context.Context, ownerID string, playlistID uuid.UUID, songID string) error
}

// Store is the full persistence surface consumed by the control plane.
type Store interface {
	RoomStore
	SongStore
	UserStore
	PlaylistStore

	// Ping verifies connectivity; readiness checks call it.
	Ping(ctx context.Context) error
	Close()
}
