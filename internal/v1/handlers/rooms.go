package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/scorecast/scorecast/internal/v1/logging"
	"github.com/scorecast/scorecast/internal/v1/store"
	"github.com/scorecast/scorecast/internal/v1/transport"
)

const hostOnlyMessage = "Only the room host can perform this action"

// CreateRoom handles POST /v1/rooms. The creator becomes host and first
// participant, and the room is registered with the hub before the id is
// revealed so a join_room racing the response cannot miss.
func (h *Handler) CreateRoom(c *gin.Context) {
	userID := currentUser(c)

	room, err := h.store.CreateRoom(c.Request.Context(), userID)
	if err != nil {
		logging.Error(c.Request.Context(), "room creation failed", zap.Error(err))
		detail(c, http.StatusInternalServerError, "Room creation failed")
		return
	}

	h.hub.RegisterRoom(room.RoomID)
	c.JSON(http.StatusCreated, room)
}

// JoinRoom handles POST /v1/rooms/:roomId/join. Joining twice is idempotent.
func (h *Handler) JoinRoom(c *gin.Context) {
	roomID := c.Param("roomId")
	userID := currentUser(c)
	ctx := c.Request.Context()

	if err := h.store.AddParticipant(ctx, roomID, userID); err != nil {
		storeError(c, err, "Room not found")
		return
	}

	room, err := h.store.GetRoom(ctx, roomID)
	if err != nil {
		storeError(c, err, "Room not found")
		return
	}

	h.cache.Invalidate(ctx, roomID)
	h.hub.BroadcastParticipantJoined(roomID, userID)
	c.JSON(http.StatusOK, room)
}

// LeaveRoom handles POST /v1/rooms/:roomId/leave. When the host leaves, or
// the roster empties, the room closes: connected sessions get room_closed and
// the record is deleted.
func (h *Handler) LeaveRoom(c *gin.Context) {
	roomID := c.Param("roomId")
	userID := currentUser(c)
	ctx := c.Request.Context()

	room, err := h.store.GetRoom(ctx, roomID)
	if err != nil {
		storeError(c, err, "Room not found")
		return
	}

	if err := h.store.RemoveParticipant(ctx, roomID, userID); err != nil && !errors.Is(err, store.ErrNotFound) {
		storeError(c, err, "Room not found")
		return
	}
	h.cache.Invalidate(ctx, roomID)

	if userID == room.HostID || len(room.Participants) <= 1 {
		h.hub.CloseRoom(roomID, "Host left or room empty")
		if err := h.store.DeleteRoom(ctx, roomID); err != nil && !errors.Is(err, store.ErrNotFound) {
			logging.Error(ctx, "failed to delete closed room", zap.String("room_id", roomID), zap.Error(err))
		}
		c.JSON(http.StatusOK, gin.H{"message": "Host left or room empty. Room closed."})
		return
	}

	h.hub.BroadcastParticipantLeft(roomID, userID)
	c.JSON(http.StatusOK, gin.H{"message": "Left room " + roomID + "."})
}

// GetRoom handles GET /v1/rooms/:roomId.
func (h *Handler) GetRoom(c *gin.Context) {
	room, err := h.store.GetRoom(c.Request.Context(), c.Param("roomId"))
	if err != nil {
		storeError(c, err, "Room not found")
		return
	}
	c.JSON(http.StatusOK, room)
}

// syncResponse is the reconnection snapshot. CurrentSong is null when the
// host has not selected one yet.
type syncResponse struct {
	RoomID       string              `json:"room_id"`
	CurrentSong  *syncSong           `json:"current_song"`
	CurrentPage  int                 `json:"current_page"`
	Participants []store.Participant `json:"participants"`
}

type syncSong struct {
	store.Song
	ImageETag string `json:"image_etag,omitempty"`
}

// Sync handles GET /v1/rooms/:roomId/sync. Participants call it after a
// reconnect to catch up on state they may have missed. Snapshots are cached
// in Redis and invalidated on every room mutation.
func (h *Handler) Sync(c *gin.Context) {
	roomID := c.Param("roomId")
	userID := currentUser(c)
	ctx := c.Request.Context()

	room, err := h.store.GetRoom(ctx, roomID)
	if err != nil {
		storeError(c, err, "Room not found")
		return
	}
	if !room.IsParticipant(userID) {
		detail(c, http.StatusForbidden, "You are not a participant in this room")
		return
	}

	if data, ok := h.cache.GetSnapshot(ctx, roomID); ok {
		c.Data(http.StatusOK, "application/json; charset=utf-8", data)
		return
	}

	resp := syncResponse{
		RoomID:       room.RoomID,
		CurrentPage:  room.CurrentPage,
		Participants: room.Participants,
	}
	if room.CurrentSongID != "" {
		song, err := h.store.GetSong(ctx, room.CurrentSongID)
		if err != nil {
			storeError(c, err, "Song not found")
			return
		}
		resp.CurrentSong = &syncSong{
			Song:      *song,
			ImageETag: h.assets.PageImageETag(song.ID, room.CurrentPage),
		}
	}

	data, err := json.Marshal(resp)
	if err != nil {
		detail(c, http.StatusInternalServerError, "Internal server error")
		return
	}
	h.cache.SetSnapshot(ctx, roomID, data)
	c.Data(http.StatusOK, "application/json; charset=utf-8", data)
}

// SetSong handles POST /v1/rooms/:roomId/song. Host only. Selecting a song
// resets the page to 1 and fans out song_updated over the hub.
func (h *Handler) SetSong(c *gin.Context) {
	roomID := c.Param("roomId")
	ctx := c.Request.Context()

	var body struct {
		SongID string `json:"song_id"`
	}
	if err := c.ShouldBindJSON(&body); err != nil || body.SongID == "" {
		detail(c, http.StatusBadRequest, "Missing 'song_id' in request body")
		return
	}

	room, ok := h.requireHost(c, roomID)
	if !ok {
		return
	}

	song, err := h.store.GetSong(ctx, body.SongID)
	if err != nil {
		storeError(c, err, "Song not found")
		return
	}

	if err := h.store.SetCurrentSong(ctx, roomID, song.ID); err != nil {
		storeError(c, err, "Room not found")
		return
	}
	h.cache.Invalidate(ctx, roomID)

	h.hub.BroadcastSongUpdated(roomID, transport.UpdateMeta{
		SongID:      song.ID,
		Title:       song.Title,
		Artist:      song.Artist,
		CurrentPage: 1,
		TotalPages:  song.PageCount,
		ImageETag:   h.assets.PageImageETag(song.ID, 1),
	})

	room.CurrentSongID = song.ID
	room.CurrentPage = 1
	c.JSON(http.StatusOK, room)
}

// SetPage handles POST /v1/rooms/:roomId/page. Host only. The page must fall
// within the active song's page count.
func (h *Handler) SetPage(c *gin.Context) {
	roomID := c.Param("roomId")
	ctx := c.Request.Context()

	var body struct {
		Page *int `json:"page"`
	}
	if err := c.ShouldBindJSON(&body); err != nil || body.Page == nil {
		detail(c, http.StatusBadRequest, "A valid 'page' number is required")
		return
	}
	page := *body.Page

	room, ok := h.requireHost(c, roomID)
	if !ok {
		return
	}
	if room.CurrentSongID == "" {
		detail(c, http.StatusBadRequest, "No song is active")
		return
	}

	song, err := h.store.GetSong(ctx, room.CurrentSongID)
	if err != nil {
		storeError(c, err, "Song not found")
		return
	}
	if page < 1 || page > song.PageCount {
		detail(c, http.StatusBadRequest, gin.H{
			"code":        "PAGE_OUT_OF_RANGE",
			"page":        page,
			"total_pages": song.PageCount,
		})
		return
	}

	if err := h.store.SetCurrentPage(ctx, roomID, page); err != nil {
		storeError(c, err, "Room not found")
		return
	}
	h.cache.Invalidate(ctx, roomID)

	h.hub.BroadcastPageUpdated(roomID, transport.UpdateMeta{
		SongID:      song.ID,
		Title:       song.Title,
		Artist:      song.Artist,
		CurrentPage: page,
		TotalPages:  song.PageCount,
		ImageETag:   h.assets.PageImageETag(song.ID, page),
	})

	c.JSON(http.StatusOK, gin.H{"message": "Page update broadcasted."})
}

// RoomPDF handles GET /v1/rooms/:roomId/pdf, serving the active song's PDF
// with conditional-GET support.
func (h *Handler) RoomPDF(c *gin.Context) {
	room, err := h.store.GetRoom(c.Request.Context(), c.Param("roomId"))
	if err != nil {
		storeError(c, err, "Room not found")
		return
	}
	if room.CurrentSongID == "" {
		detail(c, http.StatusBadRequest, "No song selected for this room")
		return
	}
	h.servePDF(c, room.CurrentSongID)
}

// RoomImage handles GET /v1/rooms/:roomId/image. It serves the current page's
// PNG; ?page= overrides for preloading neighbours.
func (h *Handler) RoomImage(c *gin.Context) {
	room, err := h.store.GetRoom(c.Request.Context(), c.Param("roomId"))
	if err != nil {
		storeError(c, err, "Room not found")
		return
	}
	if room.CurrentSongID == "" {
		detail(c, http.StatusBadRequest, "No song selected for this room")
		return
	}

	page := room.CurrentPage
	if raw := c.Query("page"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 {
			detail(c, http.StatusBadRequest, "A valid 'page' number is required")
			return
		}
		page = parsed
	}
	h.servePageImage(c, room.CurrentSongID, page)
}

// requireHost loads the room and rejects non-host callers. It writes the
// response on failure and reports whether the caller may proceed.
func (h *Handler) requireHost(c *gin.Context, roomID string) (*store.Room, bool) {
	room, err := h.store.GetRoom(c.Request.Context(), roomID)
	if err != nil {
		storeError(c, err, "Room not found")
		return nil, false
	}
	if room.HostID != currentUser(c) {
		detail(c, http.StatusForbidden, hostOnlyMessage)
		return nil, false
	}
	return room, true
}
