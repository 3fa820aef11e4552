package handlers

import (
	"github.com/gin-gonic/gin"

	"github.com/scorecast/scorecast/internal/v1/ratelimit"
	"github.com/scorecast/scorecast/internal/v1/types"
)

// Register mounts the control plane under /v1. Every route is authenticated;
// rate limits apply per bucket on top of the global limit.
func (h *Handler) Register(r gin.IRouter, validator types.TokenValidator, rl *ratelimit.RateLimiter) {
	v1 := r.Group("/v1")
	v1.Use(RequireAuth(validator, h.store))
	v1.Use(rl.GlobalMiddleware())

	rooms := v1.Group("/rooms", rl.MiddlewareForEndpoint(ratelimit.EndpointRooms))
	{
		rooms.POST("", h.CreateRoom)
		rooms.GET("/:roomId", h.GetRoom)
		rooms.POST("/:roomId/join", h.JoinRoom)
		rooms.POST("/:roomId/leave", h.LeaveRoom)
		rooms.GET("/:roomId/sync", h.Sync)
		rooms.POST("/:roomId/song", h.SetSong)
		rooms.POST("/:roomId/page", h.SetPage)
		rooms.GET("/:roomId/pdf", h.RoomPDF)
		rooms.GET("/:roomId/image", h.RoomImage)
	}

	songs := v1.Group("/songs", rl.MiddlewareForEndpoint(ratelimit.EndpointSongs))
	{
		songs.GET("", h.ListSongs)
		songs.GET("/search", h.SearchSongs)
		songs.GET("/:songId", h.GetSong)
		songs.GET("/:songId/pdf", h.SongPDF)
		songs.GET("/:songId/image", h.SongImage)
	}

	playlists := v1.Group("/playlists")
	{
		playlists.POST("", h.CreatePlaylist)
		playlists.GET("", h.ListPlaylists)
		playlists.GET("/:playlistId", h.GetPlaylist)
		playlists.DELETE("/:playlistId", h.DeletePlaylist)
		playlists.POST("/:playlistId/songs", h.AddPlaylistSong)
		playlists.POST("/:playlistId/songs/bulk", h.AddPlaylistSongs)
		playlists.DELETE("/:playlistId/songs/:songId", h.RemovePlaylistSong)
	}
}
