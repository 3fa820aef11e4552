package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/scorecast/scorecast/internal/v1/store"
)

// CreatePlaylist handles POST /v1/playlists.
func (h *Handler) CreatePlaylist(c *gin.Context) {
	var body struct {
		Name string `json:"name"`
	}
	if err := c.ShouldBindJSON(&body); err != nil || body.Name == "" {
		detail(c, http.StatusBadRequest, "Missing 'name' in request body")
		return
	}

	playlist, err := h.store.CreatePlaylist(c.Request.Context(), currentUser(c), body.Name)
	if err != nil {
		detail(c, http.StatusInternalServerError, "Playlist creation failed")
		return
	}
	c.JSON(http.StatusCreated, playlist)
}

// ListPlaylists handles GET /v1/playlists, returning the caller's playlists.
func (h *Handler) ListPlaylists(c *gin.Context) {
	playlists, err := h.store.ListPlaylists(c.Request.Context(), currentUser(c))
	if err != nil {
		detail(c, http.StatusInternalServerError, "Failed to list playlists")
		return
	}
	c.JSON(http.StatusOK, gin.H{"playlists": playlists})
}

// GetPlaylist handles GET /v1/playlists/:playlistId. Foreign playlists read
// as missing.
func (h *Handler) GetPlaylist(c *gin.Context) {
	playlistID, ok := playlistParam(c)
	if !ok {
		return
	}

	playlist, err := h.store.GetPlaylist(c.Request.Context(), currentUser(c), playlistID)
	if err != nil {
		storeError(c, err, "Playlist not found")
		return
	}
	c.JSON(http.StatusOK, playlist)
}

// DeletePlaylist handles DELETE /v1/playlists/:playlistId.
func (h *Handler) DeletePlaylist(c *gin.Context) {
	playlistID, ok := playlistParam(c)
	if !ok {
		return
	}

	if err := h.store.DeletePlaylist(c.Request.Context(), currentUser(c), playlistID); err != nil {
		storeError(c, err, "Playlist not found")
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Playlist deleted."})
}

// AddPlaylistSong handles POST /v1/playlists/:playlistId/songs, appending the
// song at the end of the playlist.
func (h *Handler) AddPlaylistSong(c *gin.Context) {
	playlistID, ok := playlistParam(c)
	if !ok {
		return
	}

	var body struct {
		SongID string `json:"song_id"`
	}
	if err := c.ShouldBindJSON(&body); err != nil || body.SongID == "" {
		detail(c, http.StatusBadRequest, "Missing 'song_id' in request body")
		return
	}

	if _, err := h.store.GetSong(c.Request.Context(), body.SongID); err != nil {
		storeError(c, err, "Song not found")
		return
	}

	if err := h.store.AddPlaylistSong(c.Request.Context(), currentUser(c), playlistID, body.SongID); err != nil {
		storeError(c, err, "Playlist not found")
		return
	}

	playlist, err := h.store.GetPlaylist(c.Request.Context(), currentUser(c), playlistID)
	if err != nil {
		storeError(c, err, "Playlist not found")
		return
	}
	c.JSON(http.StatusOK, playlist)
}

// AddPlaylistSongs handles POST /v1/playlists/:playlistId/songs/bulk. Songs
// that cannot be appended are skipped with a reason rather than failing the
// whole batch.
func (h *Handler) AddPlaylistSongs(c *gin.Context) {
	playlistID, ok := playlistParam(c)
	if !ok {
		return
	}

	var body struct {
		SongIDs []string `json:"song_ids"`
	}
	if err := c.ShouldBindJSON(&body); err != nil || len(body.SongIDs) == 0 {
		detail(c, http.StatusBadRequest, "Missing 'song_ids' in request body")
		return
	}

	ctx := c.Request.Context()
	userID := currentUser(c)

	// Ownership check up front so a foreign playlist 404s instead of
	// reporting every song as skipped.
	if _, err := h.store.GetPlaylist(ctx, userID, playlistID); err != nil {
		storeError(c, err, "Playlist not found")
		return
	}

	added := make([]gin.H, 0, len(body.SongIDs))
	skipped := make([]gin.H, 0)
	for _, songID := range body.SongIDs {
		song, err := h.store.GetSong(ctx, songID)
		if err != nil {
			skipped = append(skipped, gin.H{"song_id": songID, "reason": "Song not found"})
			continue
		}
		if err := h.store.AddPlaylistSong(ctx, userID, playlistID, songID); err != nil {
			if errors.Is(err, store.ErrAlreadyExists) {
				skipped = append(skipped, gin.H{"song_id": songID, "reason": "Already in playlist"})
				continue
			}
			storeError(c, err, "Playlist not found")
			return
		}
		added = append(added, gin.H{"song_id": songID, "title": song.Title})
	}

	c.JSON(http.StatusOK, gin.H{
		"playlist_id":   playlistID,
		"added_songs":   added,
		"skipped_songs": skipped,
	})
}

// RemovePlaylistSong handles DELETE /v1/playlists/:playlistId/songs/:songId.
func (h *Handler) RemovePlaylistSong(c *gin.Context) {
	playlistID, ok := playlistParam(c)
	if !ok {
		return
	}

	err := h.store.RemovePlaylistSong(c.Request.Context(), currentUser(c), playlistID, c.Param("songId"))
	if err != nil {
		storeError(c, err, "Playlist not found")
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Song removed from playlist."})
}

func playlistParam(c *gin.Context) (uuid.UUID, bool) {
	playlistID, err := uuid.Parse(c.Param("playlistId"))
	if err != nil {
		detail(c, http.StatusBadRequest, "Invalid playlist id")
		return uuid.Nil, false
	}
	return playlistID, true
}
