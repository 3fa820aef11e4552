package store

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeSongSource(t *testing.T, dir, name, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644))
}

func TestImportSongs(t *testing.T) {
	dataDir := t.TempDir()
	songsDir := filepath.Join(dataDir, "songs")
	require.NoError(t, os.MkdirAll(songsDir, 0o755))

	writeSongSource(t, songsDir, "Amazing Grace.pro",
		"{title: Amazing Grace}\n{artist: John Newton}\n{key: G}\n{tempo: 80}\n[G]Amazing [C]grace\n{new_page}\nsecond page\n")
	writeSongSource(t, songsDir, "untitled.cho", "[Am]just chords\n")
	writeSongSource(t, songsDir, "notes.txt", "not a song\n")

	m := NewMemory()
	count, err := ImportSongs(context.Background(), m, dataDir)
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	song, err := m.GetSong(context.Background(), "amazing-grace")
	require.NoError(t, err)
	assert.Equal(t, "Amazing Grace", song.Title)
	assert.Equal(t, "John Newton", song.Artist)
	assert.Equal(t, "G", song.SongKey)
	assert.Equal(t, 80, song.Tempo)
	assert.Equal(t, "Amazing Grace.pro", song.Filename)
	assert.Equal(t, 2, song.PageCount)

	// Files without a title directive fall back to the filename stem.
	song, err = m.GetSong(context.Background(), "untitled")
	require.NoError(t, err)
	assert.Equal(t, "untitled", song.Title)
	assert.Equal(t, 1, song.PageCount)
}

func TestImportSongs_MissingDirectory(t *testing.T) {
	m := NewMemory()
	count, err := ImportSongs(context.Background(), m, t.TempDir())
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestImportSongs_Reimport(t *testing.T) {
	dataDir := t.TempDir()
	songsDir := filepath.Join(dataDir, "songs")
	require.NoError(t, os.MkdirAll(songsDir, 0o755))
	writeSongSource(t, songsDir, "hymn.pro", "{title: Hymn}\n")

	m := NewMemory()
	_, err := ImportSongs(context.Background(), m, dataDir)
	require.NoError(t, err)

	// Updated directives win on reimport.
	writeSongSource(t, songsDir, "hymn.pro", "{title: Hymn}\n{artist: Trad.}\n")
	_, err = ImportSongs(context.Background(), m, dataDir)
	require.NoError(t, err)

	song, err := m.GetSong(context.Background(), "hymn")
	require.NoError(t, err)
	assert.Equal(t, "Trad.", song.Artist)
}

func TestSlugify(t *testing.T) {
	cases := map[string]string{
		"Amazing Grace":      "amazing-grace",
		"10,000 Reasons!":    "10-000-reasons",
		"  spaced   out  ":   "spaced-out",
		"already-slugged":    "already-slugged",
		"Ünïcode Stripped":   "n-code-stripped",
		"trailing symbols??": "trailing-symbols",
	}
	for in, want := range cases {
		assert.Equal(t, want, slugify(in), "slugify(%q)", in)
	}
}
