// Package health exposes the liveness and readiness probes.
package health

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/scorecast/scorecast/internal/v1/cache"
	"github.com/scorecast/scorecast/internal/v1/logging"
)

// Pinger is the connectivity check a dependency exposes. Both the store and
// the cache satisfy it.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Handler manages the health check endpoints.
type Handler struct {
	store Pinger
	cache *cache.Service
}

// NewHandler builds the handler. A nil cache means single-instance mode and
// the redis check reports healthy.
func NewHandler(store Pinger, cacheService *cache.Service) *Handler {
	return &Handler{
		store: store,
		cache: cacheService,
	}
}

// LivenessResponse is the liveness probe response body.
type LivenessResponse struct {
	Status    string `json:"status"`
	Timestamp string `json:"timestamp"`
}

// ReadinessResponse is the readiness probe response body.
type ReadinessResponse struct {
	Status    string            `json:"status"`
	Checks    map[string]string `json:"checks"`
	Timestamp string            `json:"timestamp"`
}

// Liveness handles GET /health/live. It returns 200 whenever the process is
// alive, without touching any dependency.
func (h *Handler) Liveness(c *gin.Context) {
	c.JSON(http.StatusOK, LivenessResponse{
		Status:    "alive",
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})
}

// Readiness handles GET /health/ready. It returns 200 only when every
// critical dependency answers, 503 otherwise.
func (h *Handler) Readiness(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 3*time.Second)
	defer cancel()

	checks := map[string]string{
		"postgres": h.checkStore(ctx),
		"redis":    h.checkRedis(ctx),
	}

	status := "ready"
	statusCode := http.StatusOK
	for _, result := range checks {
		if result != "healthy" {
			status = "unavailable"
			statusCode = http.StatusServiceUnavailable
		}
	}

	c.JSON(statusCode, ReadinessResponse{
		Status:    status,
		Checks:    checks,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})
}

func (h *Handler) checkStore(ctx context.Context) string {
	if h.store == nil {
		return "unhealthy"
	}
	if err := h.store.Ping(ctx); err != nil {
		logging.Error(ctx, "store health check failed", zap.Error(err))
		return "unhealthy"
	}
	return "healthy"
}

func (h *Handler) checkRedis(ctx context.Context) string {
	// Single-instance mode runs without redis.
	if h.cache == nil {
		return "healthy"
	}
	if err := h.cache.Ping(ctx); err != nil {
		logging.Error(ctx, "redis health check failed", zap.Error(err))
		return "unhealthy"
	}
	return "healthy"
}
