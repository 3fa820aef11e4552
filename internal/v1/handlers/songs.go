package handlers

import (
	"errors"
	"net/http"
	"os"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/scorecast/scorecast/internal/v1/logging"
)

const defaultSearchLimit = 20

// ListSongs handles GET /v1/songs.
func (h *Handler) ListSongs(c *gin.Context) {
	songs, err := h.store.ListSongs(c.Request.Context())
	if err != nil {
		detail(c, http.StatusInternalServerError, "Failed to list songs")
		return
	}
	c.JSON(http.StatusOK, gin.H{"songs": songs})
}

// SearchSongs handles GET /v1/songs/search?q=. Results are scored: exact
// matches first, then prefix and substring hits, then fuzzy similarity.
func (h *Handler) SearchSongs(c *gin.Context) {
	query := c.Query("q")
	if query == "" {
		detail(c, http.StatusBadRequest, "Query parameter 'q' is required")
		return
	}

	limit := defaultSearchLimit
	if raw := c.Query("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 || parsed > 100 {
			detail(c, http.StatusBadRequest, "Query parameter 'limit' must be between 1 and 100")
			return
		}
		limit = parsed
	}

	results, err := h.store.SearchSongs(c.Request.Context(), query, limit)
	if err != nil {
		logging.Error(c.Request.Context(), "song search failed", zap.String("query", query), zap.Error(err))
		detail(c, http.StatusInternalServerError, "Search failed")
		return
	}
	c.JSON(http.StatusOK, gin.H{"results": results})
}

// GetSong handles GET /v1/songs/:songId.
func (h *Handler) GetSong(c *gin.Context) {
	song, err := h.store.GetSong(c.Request.Context(), c.Param("songId"))
	if err != nil {
		storeError(c, err, "Song not found")
		return
	}
	c.JSON(http.StatusOK, song)
}

// SongPDF handles GET /v1/songs/:songId/pdf.
func (h *Handler) SongPDF(c *gin.Context) {
	songID := c.Param("songId")
	if _, err := h.store.GetSong(c.Request.Context(), songID); err != nil {
		storeError(c, err, "Song not found")
		return
	}
	h.servePDF(c, songID)
}

// SongImage handles GET /v1/songs/:songId/image?page=N.
func (h *Handler) SongImage(c *gin.Context) {
	songID := c.Param("songId")
	if _, err := h.store.GetSong(c.Request.Context(), songID); err != nil {
		storeError(c, err, "Song not found")
		return
	}

	page := 1
	if raw := c.Query("page"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 {
			detail(c, http.StatusBadRequest, "A valid 'page' number is required")
			return
		}
		page = parsed
	}
	h.servePageImage(c, songID, page)
}

func (h *Handler) servePDF(c *gin.Context, songID string) {
	err := h.assets.ServeFile(c, h.assets.PDFPath(songID), "application/pdf")
	if errors.Is(err, os.ErrNotExist) {
		detail(c, http.StatusNotFound, "PDF for song '"+songID+"' not found")
		return
	}
	if err != nil {
		logging.Error(c.Request.Context(), "failed to serve pdf",
			zap.String("song_id", songID), zap.Error(err))
		detail(c, http.StatusInternalServerError, "Failed to serve PDF")
	}
}

func (h *Handler) servePageImage(c *gin.Context, songID string, page int) {
	err := h.assets.ServeFile(c, h.assets.PageImagePath(songID, page), "image/png")
	if errors.Is(err, os.ErrNotExist) {
		detail(c, http.StatusNotFound, "Page image not found")
		return
	}
	if err != nil {
		logging.Error(c.Request.Context(), "failed to serve page image",
			zap.String("song_id", songID), zap.Int("page", page), zap.Error(err))
		detail(c, http.StatusInternalServerError, "Failed to serve page image")
	}
}
