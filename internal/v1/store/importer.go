package store

import (
	"context"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"github.com/scorecast/scorecast/internal/v1/chordpro"
	"github.com/scorecast/scorecast/internal/v1/logging"
)

// ImportSongs scans dataDir/songs for ChordPro sources and upserts one
// catalog row per file. The song id is the slugified filename stem; metadata
// comes from the file's directives. A missing songs directory is not an
// error, the catalog just stays empty. Returns the number of imported songs.
func ImportSongs(ctx context.Context, songs SongStore, dataDir string) (int, error) {
	srcDir := filepath.Join(dataDir, "songs")
	entries, err := os.ReadDir(srcDir)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, err
	}

	imported := 0
	for _, entry := range entries {
		if entry.IsDir() || !chordpro.IsSourceFile(entry.Name()) {
			continue
		}

		path := filepath.Join(srcDir, entry.Name())
		meta, err := chordpro.ParseFile(path)
		if err != nil {
			logging.Warn(ctx, "skipping unreadable song source",
				zap.String("file", entry.Name()), zap.Error(err))
			continue
		}

		stem := strings.TrimSuffix(entry.Name(), filepath.Ext(entry.Name()))
		title := meta.Title
		if title == "" {
			title = stem
		}

		song := &Song{
			ID:        slugify(stem),
			Title:     title,
			Artist:    meta.Artist,
			SongKey:   meta.Key,
			Tempo:     meta.Tempo,
			Language:  meta.Language,
			Filename:  entry.Name(),
			PageCount: meta.PageCount,
		}
		if err := songs.UpsertSong(ctx, song); err != nil {
			return imported, err
		}
		imported++
	}
	return imported, nil
}

// slugify lowercases and collapses non-alphanumeric runs to single hyphens.
func slugify(s string) string {
	var b strings.Builder
	lastHyphen := true
	for _, r := range strings.ToLower(s) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
			lastHyphen = false
		default:
			if !lastHyphen {
				b.WriteByte('-')
				lastHyphen = true
			}
		}
	}
	return strings.TrimSuffix(b.String(), "-")
}
