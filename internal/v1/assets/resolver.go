// Package assets resolves pre-rendered song artifacts on disk and serves them
// with conditional-GET semantics. Layout under the song data directory:
//
//	songs/<filename>            ChordPro sources
//	songs_pdf/<song_id>.pdf     rendered PDFs
//	songs_img/<song_id>/page_<n>.png
//
// Clients never receive image bytes over the WebSocket; broadcasts carry an
// ETag and clients revalidate over HTTP.
package assets

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// Resolver maps song ids to artifact paths and computes weak ETags. ETags are
// cached per path and modification time so repeated conditional GETs do not
// re-hash unchanged files.
type Resolver struct {
	dir      string
	etagBits int

	mu    sync.Mutex
	etags map[string]etagEntry
}

type etagEntry struct {
	modTime time.Time
	size    int64
	etag    string
}

// NewResolver creates a resolver rooted at dir. etagBits selects how much of
// the SHA-256 digest survives into the tag: 64, 128, or 256.
func NewResolver(dir string, etagBits int) (*Resolver, error) {
	switch etagBits {
	case 64, 128, 256:
	default:
		return nil, fmt.Errorf("etag bits must be 64, 128, or 256 (got %d)", etagBits)
	}
	return &Resolver{
		dir:      dir,
		etagBits: etagBits,
		etags:    make(map[string]etagEntry),
	}, nil
}

// SourcePath returns the ChordPro source path for a catalog filename.
func (r *Resolver) SourcePath(filename string) string {
	return filepath.Join(r.dir, "songs", filename)
}

// PDFPath returns the pre-rendered PDF path for a song.
func (r *Resolver) PDFPath(songID string) string {
	return filepath.Join(r.dir, "songs_pdf", songID+".pdf")
}

// PageImagePath returns the raster path for one page of a song. Pages are
// 1-based.
func (r *Resolver) PageImagePath(songID string, page int) string {
	return filepath.Join(r.dir, "songs_img", songID, fmt.Sprintf("page_%d.png", page))
}

// ETag returns the weak ETag for a file, hashing only when the file changed
// since the last call. Returns os.ErrNotExist-wrapped errors for missing
// files.
func (r *Resolver) ETag(path string) (string, error) {
	info, err := os.Stat(path)
	if err != nil {
		return "", fmt.Errorf("failed to stat asset: %w", err)
	}

	r.mu.Lock()
	entry, ok := r.etags[path]
	r.mu.Unlock()
	if ok && entry.modTime.Equal(info.ModTime()) && entry.size == info.Size() {
		return entry.etag, nil
	}

	etag, err := r.hashFile(path)
	if err != nil {
		return "", err
	}

	r.mu.Lock()
	r.etags[path] = etagEntry{modTime: info.ModTime(), size: info.Size(), etag: etag}
	r.mu.Unlock()
	return etag, nil
}

// PageImageETag is ETag for a song's page image, or "" when the image is not
// rendered yet. Broadcast helpers use this: a missing image is not an error,
// the frame simply carries no etag.
func (r *Resolver) PageImageETag(songID string, page int) string {
	etag, err := r.ETag(r.PageImagePath(songID, page))
	if err != nil {
		return ""
	}
	return etag
}

func (r *Resolver) hashFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("failed to open asset: %w", err)
	}
	defer func() { _ = f.Close() }()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", fmt.Errorf("failed to hash asset: %w", err)
	}

	digest := h.Sum(nil)[:r.etagBits/8]
	return `W/"` + hex.EncodeToString(digest) + `"`, nil
}
