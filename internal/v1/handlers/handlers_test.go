package handlers_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"

	"github.com/scorecast/scorecast/internal/v1/assets"
	"github.com/scorecast/scorecast/internal/v1/auth"
	"github.com/scorecast/scorecast/internal/v1/config"
	"github.com/scorecast/scorecast/internal/v1/handlers"
	"github.com/scorecast/scorecast/internal/v1/ratelimit"
	"github.com/scorecast/scorecast/internal/v1/store"
	"github.com/scorecast/scorecast/internal/v1/transport"
)

// stubValidator treats the bearer token itself as the subject, so tests pick
// identities by header. The literal token "invalid" fails validation.
type stubValidator struct{}

func (stubValidator) ValidateToken(token string) (*auth.CustomClaims, error) {
	if token == "invalid" {
		return nil, errors.New("token validation failed")
	}
	claims := &auth.CustomClaims{}
	claims.Subject = token
	return claims, nil
}

type testEnv struct {
	router   *gin.Engine
	store    *store.Memory
	hub      *transport.Hub
	assetDir string
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)

	st := store.NewMemory()
	st.AddSong(store.Song{
		ID:        "amazing-grace",
		Title:     "Amazing Grace",
		Artist:    "John Newton",
		PageCount: 3,
	})
	st.AddSong(store.Song{
		ID:        "hallelujah",
		Title:     "Hallelujah",
		Artist:    "Leonard Cohen",
		PageCount: 5,
	})

	cfg := &config.Config{
		RateLimitApiGlobal: "1000-M",
		RateLimitApiPublic: "1000-M",
		RateLimitApiRooms:  "1000-M",
		RateLimitApiSongs:  "1000-M",
		RateLimitWsIp:      "1000-M",
		RateLimitWsUser:    "1000-M",
	}
	rl, err := ratelimit.NewRateLimiter(cfg, nil)
	require.NoError(t, err)

	hub := transport.NewHub(stubValidator{}, rl, transport.Options{})
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = hub.Shutdown(ctx)
	})

	assetDir := t.TempDir()
	resolver, err := assets.NewResolver(assetDir, 128)
	require.NoError(t, err)

	h := handlers.New(st, hub, nil, resolver)
	router := gin.New()
	h.Register(router, stubValidator{}, rl)

	return &testEnv{router: router, store: st, hub: hub, assetDir: assetDir}
}

// do issues a request as the given user. A nil body sends no payload.
func (e *testEnv) do(t *testing.T, method, path, user string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}

	req, err := http.NewRequest(method, path, &buf)
	require.NoError(t, err)
	if user != "" {
		req.Header.Set("Authorization", "Bearer "+user)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
	return out
}

// createRoom makes a room via the API and returns it.
func (e *testEnv) createRoom(t *testing.T, host string) store.Room {
	t.Helper()
	w := e.do(t, http.MethodPost, "/v1/rooms", host, nil)
	require.Equal(t, http.StatusCreated, w.Code)
	return decode[store.Room](t, w)
}

func TestAuth_MissingHeader(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(t, http.MethodGet, "/v1/songs", "", nil)
	require.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestAuth_InvalidToken(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(t, http.MethodGet, "/v1/songs", "invalid", nil)
	require.Equal(t, http.StatusUnauthorized, w.Code)
}
