package ratelimit

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scorecast/scorecast/internal/v1/auth"
	"github.com/scorecast/scorecast/internal/v1/config"
)

func testConfig() *config.Config {
	return &config.Config{
		RateLimitApiGlobal: "10-M",
		RateLimitApiPublic: "5-M",
		RateLimitApiRooms:  "5-M",
		RateLimitApiSongs:  "5-M",
		RateLimitWsIp:      "5-M",
		RateLimitWsUser:    "5-M",
	}
}

func newTestLimiter(t *testing.T) (*RateLimiter, *miniredis.Miniredis) {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)

	rc := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	rl, err := NewRateLimiter(testConfig(), rc)
	require.NoError(t, err)

	return rl, mr
}

func TestNewRateLimiter_MemoryStore(t *testing.T) {
	rl, err := NewRateLimiter(testConfig(), nil)
	assert.NoError(t, err)
	assert.NotNil(t, rl)
}

func TestNewRateLimiter_BadRate(t *testing.T) {
	cfg := testConfig()
	cfg.RateLimitApiRooms = "lots"
	_, err := NewRateLimiter(cfg, nil)
	assert.ErrorContains(t, err, "RATE_LIMIT_API_ROOMS")
}

func TestGlobalMiddleware_Anonymous(t *testing.T) {
	rl, mr := newTestLimiter(t)
	defer mr.Close()

	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(rl.GlobalMiddleware())
	r.GET("/test", func(c *gin.Context) {
		c.Status(http.StatusOK)
	})

	// Anonymous traffic uses the public rate (5 per minute).
	for i := 0; i < 5; i++ {
		resp := httptest.NewRecorder()
		req, _ := http.NewRequest("GET", "/test", nil)
		r.ServeHTTP(resp, req)
		assert.Equal(t, http.StatusOK, resp.Code)
		assert.Equal(t, "5", resp.Header().Get("X-RateLimit-Limit"))
	}

	resp := httptest.NewRecorder()
	req, _ := http.NewRequest("GET", "/test", nil)
	r.ServeHTTP(resp, req)
	assert.Equal(t, http.StatusTooManyRequests, resp.Code)
	assert.NotEmpty(t, resp.Header().Get("Retry-After"))
}

func TestGlobalMiddleware_Authenticated(t *testing.T) {
	rl, mr := newTestLimiter(t)
	defer mr.Close()

	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(func(c *gin.Context) {
		claims := &auth.CustomClaims{}
		claims.Subject = "user-1"
		c.Set("claims", claims)
		c.Next()
	})
	r.Use(rl.GlobalMiddleware())
	r.GET("/test", func(c *gin.Context) {
		c.Status(http.StatusOK)
	})

	// Authenticated traffic uses the global rate (10 per minute).
	for i := 0; i < 10; i++ {
		resp := httptest.NewRecorder()
		req, _ := http.NewRequest("GET", "/test", nil)
		r.ServeHTTP(resp, req)
		assert.Equal(t, http.StatusOK, resp.Code)
		assert.Equal(t, "10", resp.Header().Get("X-RateLimit-Limit"))
	}

	resp := httptest.NewRecorder()
	req, _ := http.NewRequest("GET", "/test", nil)
	r.ServeHTTP(resp, req)
	assert.Equal(t, http.StatusTooManyRequests, resp.Code)
}

func TestMiddlewareForEndpoint_Rooms(t *testing.T) {
	rl, mr := newTestLimiter(t)
	defer mr.Close()

	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.POST("/rooms", rl.MiddlewareForEndpoint(EndpointRooms), func(c *gin.Context) {
		c.Status(http.StatusOK)
	})

	for i := 0; i < 5; i++ {
		resp := httptest.NewRecorder()
		req, _ := http.NewRequest("POST", "/rooms", nil)
		r.ServeHTTP(resp, req)
		assert.Equal(t, http.StatusOK, resp.Code)
	}

	resp := httptest.NewRecorder()
	req, _ := http.NewRequest("POST", "/rooms", nil)
	r.ServeHTTP(resp, req)
	assert.Equal(t, http.StatusTooManyRequests, resp.Code)
}

func TestCheckWebSocket_IPLimit(t *testing.T) {
	rl, mr := newTestLimiter(t)
	defer mr.Close()

	for i := 0; i < 5; i++ {
		c, _ := gin.CreateTestContext(httptest.NewRecorder())
		c.Request, _ = http.NewRequest("GET", "/ws", nil)
		assert.True(t, rl.CheckWebSocket(c))
	}

	rec := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(rec)
	c.Request, _ = http.NewRequest("GET", "/ws", nil)
	assert.False(t, rl.CheckWebSocket(c))
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
}

func TestCheckWebSocketUser(t *testing.T) {
	rl, mr := newTestLimiter(t)
	defer mr.Close()

	ctx := context.Background()
	for i := 0; i < 5; i++ {
		assert.NoError(t, rl.CheckWebSocketUser(ctx, "user-1"))
	}
	assert.Error(t, rl.CheckWebSocketUser(ctx, "user-1"))

	// Other users are unaffected.
	assert.NoError(t, rl.CheckWebSocketUser(ctx, "user-2"))
}

func TestRedisDown_FailsOpen(t *testing.T) {
	rl, mr := newTestLimiter(t)
	mr.Close()

	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(rl.GlobalMiddleware())
	r.GET("/test", func(c *gin.Context) {
		c.Status(http.StatusOK)
	})

	resp := httptest.NewRecorder()
	req, _ := http.NewRequest("GET", "/test", nil)
	r.ServeHTTP(resp, req)
	assert.Equal(t, http.StatusOK, resp.Code)

	assert.NoError(t, rl.CheckWebSocketUser(context.Background(), "user-1"))
}
