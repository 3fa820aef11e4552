package handlers_test

import (
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scorecast/scorecast/internal/v1/store"
)

func TestListSongs(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(t, http.MethodGet, "/v1/songs", "user-1", nil)
	require.Equal(t, http.StatusOK, w.Code)

	resp := decode[map[string][]store.Song](t, w)
	assert.Len(t, resp["songs"], 2)
}

func TestGetSong(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(t, http.MethodGet, "/v1/songs/hallelujah", "user-1", nil)
	require.Equal(t, http.StatusOK, w.Code)

	song := decode[store.Song](t, w)
	assert.Equal(t, "Hallelujah", song.Title)
	assert.Equal(t, 5, song.PageCount)
}

func TestGetSong_NotFound(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(t, http.MethodGet, "/v1/songs/nope", "user-1", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestSearchSongs(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(t, http.MethodGet, "/v1/songs/search?q=hallelujah", "user-1", nil)
	require.Equal(t, http.StatusOK, w.Code)

	resp := decode[map[string][]store.SearchResult](t, w)
	require.NotEmpty(t, resp["results"])
	assert.Equal(t, "hallelujah", resp["results"][0].SongID)
	assert.Equal(t, float64(100), resp["results"][0].Score)
}

func TestSearchSongs_MissingQuery(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(t, http.MethodGet, "/v1/songs/search", "user-1", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "'q' is required")
}

func TestSearchSongs_BadLimit(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(t, http.MethodGet, "/v1/songs/search?q=x&limit=0", "user-1", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestSongPDF_ConditionalGet(t *testing.T) {
	env := newTestEnv(t)

	pdfDir := filepath.Join(env.assetDir, "songs_pdf")
	require.NoError(t, os.MkdirAll(pdfDir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(pdfDir, "hallelujah.pdf"), []byte("%PDF-1.4 test"), 0o644))

	w := env.do(t, http.MethodGet, "/v1/songs/hallelujah/pdf", "user-1", nil)
	require.Equal(t, http.StatusOK, w.Code)
	etag := w.Header().Get("ETag")
	require.NotEmpty(t, etag)
	assert.Equal(t, "application/pdf", w.Header().Get("Content-Type"))

	// Revalidation with a matching ETag returns 304 with no body.
	req, _ := http.NewRequest(http.MethodGet, "/v1/songs/hallelujah/pdf", nil)
	req.Header.Set("Authorization", "Bearer user-1")
	req.Header.Set("If-None-Match", etag)
	w2 := httptest.NewRecorder()
	env.router.ServeHTTP(w2, req)
	assert.Equal(t, http.StatusNotModified, w2.Code)
	assert.Empty(t, w2.Body.Bytes())
}

func TestSongPDF_MissingAsset(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(t, http.MethodGet, "/v1/songs/hallelujah/pdf", "user-1", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestSongImage(t *testing.T) {
	env := newTestEnv(t)

	imgDir := filepath.Join(env.assetDir, "songs_img", "hallelujah")
	require.NoError(t, os.MkdirAll(imgDir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(imgDir, "page_2.png"), []byte("png-bytes"), 0o644))

	w := env.do(t, http.MethodGet, "/v1/songs/hallelujah/image?page=2", "user-1", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "image/png", w.Header().Get("Content-Type"))
	assert.NotEmpty(t, w.Header().Get("ETag"))

	// Pages without a rendered image 404.
	w = env.do(t, http.MethodGet, "/v1/songs/hallelujah/image?page=3", "user-1", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}
