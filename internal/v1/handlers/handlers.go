// Package handlers implements the HTTP control plane: room lifecycle, the
// song catalog, playlists, and song asset delivery. Real-time fan-out stays on
// the WebSocket transport; these endpoints persist state and trigger the
// corresponding broadcasts.
package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/scorecast/scorecast/internal/v1/assets"
	"github.com/scorecast/scorecast/internal/v1/cache"
	"github.com/scorecast/scorecast/internal/v1/store"
	"github.com/scorecast/scorecast/internal/v1/transport"
)

// Handler carries the control plane's dependencies. Cache may be nil in
// single-instance mode.
type Handler struct {
	store  store.Store
	hub    *transport.Hub
	cache  *cache.Service
	assets *assets.Resolver
}

// New builds the control plane handler.
func New(st store.Store, hub *transport.Hub, cacheService *cache.Service, resolver *assets.Resolver) *Handler {
	return &Handler{
		store:  st,
		hub:    hub,
		cache:  cacheService,
		assets: resolver,
	}
}

// detail writes an error body in the shape clients already parse,
// {"detail": ...}.
func detail(c *gin.Context, status int, msg any) {
	c.JSON(status, gin.H{"detail": msg})
}

// storeError maps store sentinel errors onto HTTP responses.
func storeError(c *gin.Context, err error, notFoundMsg string) {
	switch {
	case errors.Is(err, store.ErrNotFound):
		detail(c, http.StatusNotFound, notFoundMsg)
	case errors.Is(err, store.ErrAlreadyExists):
		detail(c, http.StatusConflict, "Already exists")
	default:
		detail(c, http.StatusInternalServerError, "Internal server error")
	}
}
