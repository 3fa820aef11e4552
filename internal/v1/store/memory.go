package store

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Memory is an in-memory Store for development mode (DEV_STORE=memory) and
// tests. It mirrors the Postgres semantics, including owner-scoped playlist
// visibility and the tiered search scoring.
type Memory struct {
	mu        sync.RWMutex
	rooms     map[string]*Room
	songs     map[string]*Song
	users     map[string]*User // keyed by subject
	playlists map[uuid.UUID]*Playlist
}

var _ Store = (*Memory)(nil)

func NewMemory() *Memory {
	return &Memory{
		rooms:     make(map[string]*Room),
		songs:     make(map[string]*Song),
		users:     make(map[string]*User),
		playlists: make(map[uuid.UUID]*Playlist),
	}
}

func (m *Memory) Ping(context.Context) error { return nil }
func (m *Memory) Close()                     {}

// AddSong seeds a catalog entry.
func (m *Memory) AddSong(s Song) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s.DateAdded.IsZero() {
		s.DateAdded = time.Now()
	}
	m.songs[s.ID] = &s
}

func (m *Memory) UpsertSong(_ context.Context, s *Song) error {
	m.AddSong(*s)
	return nil
}

func (m *Memory) CreateRoom(_ context.Context, hostID string) (*Room, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	roomID := newRoomID()
	for _, taken := m.rooms[roomID]; taken; _, taken = m.rooms[roomID] {
		roomID = newRoomID()
	}

	now := time.Now()
	room := &Room{
		RoomID:       roomID,
		HostID:       hostID,
		CurrentPage:  1,
		CreatedAt:    now,
		UpdatedAt:    now,
		Participants: []Participant{{UserID: hostID, JoinedAt: now}},
	}
	m.rooms[roomID] = room
	return copyRoom(room), nil
}

func (m *Memory) GetRoom(_ context.Context, roomID string) (*Room, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	room, ok := m.rooms[roomID]
	if !ok {
		return nil, ErrNotFound
	}
	return copyRoom(room), nil
}

func (m *Memory) AddParticipant(_ context.Context, roomID, userID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	room, ok := m.rooms[roomID]
	if !ok {
		return ErrNotFound
	}
	if room.IsParticipant(userID) {
		return nil
	}
	room.Participants = append(room.Participants, Participant{UserID: userID, JoinedAt: time.Now()})
	return nil
}

func (m *Memory) RemoveParticipant(_ context.Context, roomID, userID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	room, ok := m.rooms[roomID]
	if !ok {
		return ErrNotFound
	}
	for i, p := range room.Participants {
		if p.UserID == userID {
			room.Participants = append(room.Participants[:i], room.Participants[i+1:]...)
			return nil
		}
	}
	return ErrNotFound
}

func (m *Memory) SetCurrentSong(_ context.Context, roomID, songID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	room, ok := m.rooms[roomID]
	if !ok {
		return ErrNotFound
	}
	room.CurrentSongID = songID
	room.CurrentPage = 1
	room.UpdatedAt = time.Now()
	return nil
}

func (m *Memory) SetCurrentPage(_ context.Context, roomID string, page int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	room, ok := m.rooms[roomID]
	if !ok {
		return ErrNotFound
	}
	room.CurrentPage = page
	room.UpdatedAt = time.Now()
	return nil
}

func (m *Memory) DeleteRoom(_ context.Context, roomID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.rooms[roomID]; !ok {
		return ErrNotFound
	}
	delete(m.rooms, roomID)
	return nil
}

func (m *Memory) ListSongs(context.Context) ([]Song, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	songs := make([]Song, 0, len(m.songs))
	for _, s := range m.songs {
		songs = append(songs, *s)
	}
	sort.Slice(songs, func(i, j int) bool { return songs[i].Title < songs[j].Title })
	return songs, nil
}

func (m *Memory) GetSong(_ context.Context, songID string) (*Song, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.songs[songID]
	if !ok {
		return nil, ErrNotFound
	}
	song := *s
	return &song, nil
}

func (m *Memory) SearchSongs(_ context.Context, query string, limit int) ([]SearchResult, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, nil
	}
	if limit <= 0 {
		limit = 10
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	var results []SearchResult
	for _, s := range m.songs {
		score := substringScore(s.Title, query)
		if artistScore := substringScore(s.Artist, query); artistScore > score {
			score = artistScore
		}
		if score <= 0 {
			continue
		}
		results = append(results, SearchResult{
			SongID:    s.ID,
			Title:     s.Title,
			Artist:    s.Artist,
			PageCount: s.PageCount,
			Score:     float64(score),
			ScoreType: "substring",
		})
	}
	if len(results) == 0 {
		results = m.searchTrigram(query, limit)
	}

	sortSearchResults(results)
	if len(results) > limit {
		results = results[:limit]
	}
	return results, nil
}

// searchTrigram approximates the pg_trgm fallback so fuzzy search behaves the
// same in development mode. Jaccard similarity over character trigrams,
// scaled to 0-100, with the same 0.3 floor pg_trgm uses by default.
func (m *Memory) searchTrigram(query string, limit int) []SearchResult {
	queryGrams := trigrams(query)
	var results []SearchResult
	for _, s := range m.songs {
		sim := trigramSimilarity(queryGrams, trigrams(s.Title))
		if artistSim := trigramSimilarity(queryGrams, trigrams(s.Artist)); artistSim > sim {
			sim = artistSim
		}
		if sim < 0.3 {
			continue
		}
		results = append(results, SearchResult{
			SongID:    s.ID,
			Title:     s.Title,
			Artist:    s.Artist,
			PageCount: s.PageCount,
			Score:     sim * 100,
			ScoreType: "similarity",
		})
	}
	return results
}

// trigrams mimics pg_trgm: lowercase, pad with two leading and one trailing
// space, then slide a 3-byte window.
func trigrams(s string) map[string]struct{} {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return nil
	}
	padded := "  " + s + " "
	grams := make(map[string]struct{}, len(padded))
	for i := 0; i+3 <= len(padded); i++ {
		grams[padded[i:i+3]] = struct{}{}
	}
	return grams
}

func trigramSimilarity(a, b map[string]struct{}) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	shared := 0
	for g := range a {
		if _, ok := b[g]; ok {
			shared++
		}
	}
	union := len(a) + len(b) - shared
	return float64(shared) / float64(union)
}

func (m *Memory) UpsertUser(_ context.Context, subject, displayName, email string) (*User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now()
	if u, ok := m.users[subject]; ok {
		if displayName != "" {
			u.DisplayName = displayName
		}
		if email != "" {
			u.Email = email
		}
		u.LastLogin = now
		user := *u
		return &user, nil
	}

	u := &User{
		ID:          uuid.New(),
		Subject:     subject,
		DisplayName: displayName,
		Email:       email,
		CreatedAt:   now,
		LastLogin:   now,
	}
	m.users[subject] = u
	user := *u
	return &user, nil
}

func (m *Memory) CreatePlaylist(_ context.Context, ownerID, name string) (*Playlist, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	pl := &Playlist{
		ID:        uuid.New(),
		OwnerID:   ownerID,
		Name:      name,
		CreatedAt: time.Now(),
	}
	m.playlists[pl.ID] = pl
	out := *pl
	return &out, nil
}

func (m *Memory) ListPlaylists(_ context.Context, ownerID string) ([]Playlist, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var playlists []Playlist
	for _, pl := range m.playlists {
		if pl.OwnerID == ownerID {
			playlists = append(playlists, *copyPlaylist(pl))
		}
	}
	sort.Slice(playlists, func(i, j int) bool {
		return playlists[i].CreatedAt.Before(playlists[j].CreatedAt)
	})
	return playlists, nil
}

func (m *Memory) GetPlaylist(_ context.Context, ownerID string, playlistID uuid.UUID) (*Playlist, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	pl, err := m.ownedPlaylist(ownerID, playlistID)
	if err != nil {
		return nil, err
	}
	return copyPlaylist(pl), nil
}

func (m *Memory) DeletePlaylist(_ context.Context, ownerID string, playlistID uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, err := m.ownedPlaylist(ownerID, playlistID); err != nil {
		return err
	}
	delete(m.playlists, playlistID)
	return nil
}

func (m *Memory) AddPlaylistSong(_ context.Context, ownerID string, playlistID uuid.UUID, songID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	pl, err := m.ownedPlaylist(ownerID, playlistID)
	if err != nil {
		return err
	}
	song, ok := m.songs[songID]
	if !ok {
		return ErrNotFound
	}
	for _, s := range pl.Songs {
		if s.ID == songID {
			return ErrAlreadyExists
		}
	}
	pl.Songs = append(pl.Songs, *song)
	return nil
}

func (m *Memory) RemovePlaylistSong(_ context.Context, ownerID string, playlistID uuid.UUID, songID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	pl, err := m.ownedPlaylist(ownerID, playlistID)
	if err != nil {
		return err
	}
	for i, s := range pl.Songs {
		if s.ID == songID {
			pl.Songs = append(pl.Songs[:i], pl.Songs[i+1:]...)
			return nil
		}
	}
	return ErrNotFound
}

// ownedPlaylist resolves a playlist only for its owner. A foreign playlist is
// indistinguishable from a missing one.
func (m *Memory) ownedPlaylist(ownerID string, playlistID uuid.UUID) (*Playlist, error) {
	pl, ok := m.playlists[playlistID]
	if !ok || pl.OwnerID != ownerID {
		return nil, ErrNotFound
	}
	return pl, nil
}

func copyRoom(room *Room) *Room {
	out := *room
	out.Participants = append([]Participant(nil), room.Participants...)
	return &out
}

func copyPlaylist(pl *Playlist) *Playlist {
	out := *pl
	out.Songs = append([]Song(nil), pl.Songs...)
	return &out
}
