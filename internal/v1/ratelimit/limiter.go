// Package ratelimit enforces request and connection limits, backed by Redis
// when available and process-local memory otherwise.
package ratelimit

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/ulule/limiter/v3"
	"github.com/ulule/limiter/v3/drivers/store/memory"
	sredis "github.com/ulule/limiter/v3/drivers/store/redis"
	"go.uber.org/zap"

	"github.com/scorecast/scorecast/internal/v1/auth"
	"github.com/scorecast/scorecast/internal/v1/config"
	"github.com/scorecast/scorecast/internal/v1/logging"
	"github.com/scorecast/scorecast/internal/v1/metrics"
)

// Endpoint buckets for MiddlewareForEndpoint.
const (
	EndpointRooms = "rooms"
	EndpointSongs = "songs"
)

// RateLimiter holds one limiter per bucket. Authenticated requests are keyed
// by subject against the global rate; anonymous requests by client IP against
// the public rate. Store failures always fail open: availability over
// strictness.
type RateLimiter struct {
	apiGlobal *limiter.Limiter
	apiPublic *limiter.Limiter
	apiRooms  *limiter.Limiter
	apiSongs  *limiter.Limiter
	wsIP      *limiter.Limiter
	wsUser    *limiter.Limiter
	store     limiter.Store
}

// NewRateLimiter parses the configured rates and builds the limiters on a
// shared store. A nil redisClient selects the in-memory store.
func NewRateLimiter(cfg *config.Config, redisClient *redis.Client) (*RateLimiter, error) {
	rates := map[string]*limiter.Rate{}
	for name, formatted := range map[string]string{
		"API_GLOBAL": cfg.RateLimitApiGlobal,
		"API_PUBLIC": cfg.RateLimitApiPublic,
		"API_ROOMS":  cfg.RateLimitApiRooms,
		"API_SONGS":  cfg.RateLimitApiSongs,
		"WS_IP":      cfg.RateLimitWsIp,
		"WS_USER":    cfg.RateLimitWsUser,
	} {
		rate, err := limiter.NewRateFromFormatted(formatted)
		if err != nil {
			return nil, fmt.Errorf("invalid RATE_LIMIT_%s: %w", name, err)
		}
		rates[name] = &rate
	}

	var store limiter.Store
	if redisClient != nil {
		s, err := sredis.NewStoreWithOptions(redisClient, limiter.StoreOptions{
			Prefix: "limiter:v1:",
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create redis limiter store: %w", err)
		}
		store = s
		logging.Info(context.Background(), "rate limiter using redis store")
	} else {
		store = memory.NewStore()
		logging.Warn(context.Background(), "rate limiter using in-memory store")
	}

	return &RateLimiter{
		apiGlobal: limiter.New(store, *rates["API_GLOBAL"]),
		apiPublic: limiter.New(store, *rates["API_PUBLIC"]),
		apiRooms:  limiter.New(store, *rates["API_ROOMS"]),
		apiSongs:  limiter.New(store, *rates["API_SONGS"]),
		wsIP:      limiter.New(store, *rates["WS_IP"]),
		wsUser:    limiter.New(store, *rates["WS_USER"]),
		store:     store,
	}, nil
}

// GlobalMiddleware applies the baseline limit: per-subject for authenticated
// requests, per-IP for anonymous ones. It runs after the auth middleware so
// claims are available when present.
func (rl *RateLimiter) GlobalMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		instance, key, limitType := rl.apiPublic, c.ClientIP(), "ip"
		if claims, ok := claimsFrom(c); ok {
			instance, key, limitType = rl.apiGlobal, claims.Subject, "user"
		}

		lctx, err := instance.Get(c.Request.Context(), key)
		if err != nil {
			logging.Error(c.Request.Context(), "rate limiter store failed", zap.Error(err))
			c.Next() // fail open
			return
		}

		c.Header("X-RateLimit-Limit", strconv.FormatInt(lctx.Limit, 10))
		c.Header("X-RateLimit-Remaining", strconv.FormatInt(lctx.Remaining, 10))
		c.Header("X-RateLimit-Reset", strconv.FormatInt(lctx.Reset, 10))

		if lctx.Reached {
			metrics.RateLimitExceeded.WithLabelValues(c.FullPath(), limitType).Inc()
			c.Header("Retry-After", strconv.FormatInt(lctx.Reset-time.Now().Unix(), 10))
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error":       "Too many requests",
				"retry_after": lctx.Reset,
			})
			return
		}

		metrics.RateLimitRequests.WithLabelValues(c.FullPath()).Inc()
		c.Next()
	}
}

// MiddlewareForEndpoint applies a tighter per-bucket limit on top of the
// global one. Room mutations get a stricter budget than catalog reads.
func (rl *RateLimiter) MiddlewareForEndpoint(endpoint string) gin.HandlerFunc {
	return func(c *gin.Context) {
		var instance *limiter.Limiter
		switch endpoint {
		case EndpointRooms:
			instance = rl.apiRooms
		case EndpointSongs:
			instance = rl.apiSongs
		default:
			instance = rl.apiGlobal
		}

		key := c.ClientIP()
		if claims, ok := claimsFrom(c); ok {
			key = claims.Subject
		}

		lctx, err := instance.Get(c.Request.Context(), key)
		if err != nil {
			logging.Error(c.Request.Context(), "rate limiter store failed", zap.Error(err))
			c.Next()
			return
		}

		if lctx.Reached {
			metrics.RateLimitExceeded.WithLabelValues(c.FullPath(), endpoint).Inc()
			c.Header("Retry-After", strconv.FormatInt(lctx.Reset-time.Now().Unix(), 10))
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error":       "Too many requests",
				"retry_after": lctx.Reset,
			})
			return
		}

		metrics.RateLimitRequests.WithLabelValues(c.FullPath()).Inc()
		c.Next()
	}
}

// CheckWebSocket applies the per-IP connection limit before the upgrade. On
// rejection it writes the 429 response and returns false.
func (rl *RateLimiter) CheckWebSocket(c *gin.Context) bool {
	lctx, err := rl.wsIP.Get(c.Request.Context(), c.ClientIP())
	if err != nil {
		logging.Error(c.Request.Context(), "rate limiter store failed (ws ip)", zap.Error(err))
		return true
	}

	if lctx.Reached {
		metrics.RateLimitExceeded.WithLabelValues("websocket_connect", "ip").Inc()
		c.Header("Retry-After", strconv.FormatInt(lctx.Reset-time.Now().Unix(), 10))
		c.JSON(http.StatusTooManyRequests, gin.H{"error": "Too many connections from this IP"})
		return false
	}
	return true
}

// CheckWebSocketUser applies the per-user connection limit after the
// handshake has authenticated the subject.
func (rl *RateLimiter) CheckWebSocketUser(ctx context.Context, userID string) error {
	lctx, err := rl.wsUser.Get(ctx, userID)
	if err != nil {
		logging.Error(ctx, "rate limiter store failed (ws user)", zap.Error(err))
		return nil
	}

	if lctx.Reached {
		metrics.RateLimitExceeded.WithLabelValues("websocket_connect", "user").Inc()
		return fmt.Errorf("connection rate limit exceeded for user")
	}
	return nil
}

func claimsFrom(c *gin.Context) (*auth.CustomClaims, bool) {
	value, exists := c.Get("claims")
	if !exists {
		return nil, false
	}
	claims, ok := value.(*auth.CustomClaims)
	return claims, ok
}
