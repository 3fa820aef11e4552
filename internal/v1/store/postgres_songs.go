package store

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/jackc/pgx/v5"
)

const songColumns = "id, title, artist, genre, song_key, tempo, language, filename, page_count, date_added"

func scanSong(row pgx.Row) (*Song, error) {
	var s Song
	err := row.Scan(&s.ID, &s.Title, &s.Artist, &s.Genre, &s.SongKey,
		&s.Tempo, &s.Language, &s.Filename, &s.PageCount, &s.DateAdded)
	if err != nil {
		return nil, err
	}
	return &s, nil
}

func (p *Postgres) ListSongs(ctx context.Context) ([]Song, error) {
	rows, err := p.pool.Query(ctx, `SELECT `+songColumns+` FROM songs ORDER BY title`)
	if err != nil {
		return nil, fmt.Errorf("failed to list songs: %w", err)
	}
	defer rows.Close()

	var songs []Song
	for rows.Next() {
		s, err := scanSong(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan song: %w", err)
		}
		songs = append(songs, *s)
	}
	return songs, rows.Err()
}

func (p *Postgres) GetSong(ctx context.Context, songID string) (*Song, error) {
	s, err := scanSong(p.pool.QueryRow(ctx, `SELECT `+songColumns+` FROM songs WHERE id = $1`, songID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to load song: %w", err)
	}
	return s, nil
}

// UpsertSong inserts or refreshes a catalog entry. The import pipeline calls
// this; the HTTP surface is read-only.
func (p *Postgres) UpsertSong(ctx context.Context, s *Song) error {
	_, err := p.pool.Exec(ctx, `
		INSERT INTO songs (id, title, artist, genre, song_key, tempo, language, filename, page_count)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (id) DO UPDATE SET
			title = EXCLUDED.title, artist = EXCLUDED.artist, genre = EXCLUDED.genre,
			song_key = EXCLUDED.song_key, tempo = EXCLUDED.tempo, language = EXCLUDED.language,
			filename = EXCLUDED.filename, page_count = EXCLUDED.page_count
	`, s.ID, s.Title, s.Artist, s.Genre, s.SongKey, s.Tempo, s.Language, s.Filename, s.PageCount)
	if err != nil {
		return fmt.Errorf("failed to upsert song: %w", err)
	}
	return nil
}

func (p *Postgres) SearchSongs(ctx context.Context, query string, limit int) ([]SearchResult, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, nil
	}
	if limit <= 0 {
		limit = 10
	}

	results, err := p.searchSubstring(ctx, query, limit)
	if err != nil {
		return nil, err
	}
	if len(results) > 0 {
		return results, nil
	}
	return p.searchSimilarity(ctx, query, limit)
}

// searchSubstring fetches ILIKE candidates and scores them in one pass:
// exact 100, prefix 85, contains 70, the best of title vs artist.
func (p *Postgres) searchSubstring(ctx context.Context, query string, limit int) ([]SearchResult, error) {
	pattern := "%" + query + "%"
	rows, err := p.pool.Query(ctx, `
		SELECT id, title, artist, page_count
		FROM songs
		WHERE title ILIKE $1 OR artist ILIKE $1
		LIMIT $2
	`, pattern, 5*limit)
	if err != nil {
		return nil, fmt.Errorf("substring search failed: %w", err)
	}
	defer rows.Close()

	var results []SearchResult
	for rows.Next() {
		var r SearchResult
		if err := rows.Scan(&r.SongID, &r.Title, &r.Artist, &r.PageCount); err != nil {
			return nil, fmt.Errorf("failed to scan search result: %w", err)
		}
		score := substringScore(r.Title, query)
		if artistScore := substringScore(r.Artist, query); artistScore > score {
			score = artistScore
		}
		if score <= 0 {
			continue
		}
		r.Score = float64(score)
		r.ScoreType = "substring"
		results = append(results, r)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	sortSearchResults(results)
	if len(results) > limit {
		results = results[:limit]
	}
	return results, nil
}

// searchSimilarity is the pg_trgm fallback for typo-tolerant matching.
// Score is similarity * 100.
func (p *Postgres) searchSimilarity(ctx context.Context, query string, limit int) ([]SearchResult, error) {
	rows, err := p.pool.Query(ctx, `
		SELECT id, title, artist, page_count,
		       GREATEST(similarity(title, $1), similarity(artist, $1)) AS score
		FROM songs
		WHERE title % $1 OR artist % $1
		ORDER BY score DESC, title ASC
		LIMIT $2
	`, query, limit)
	if err != nil {
		return nil, fmt.Errorf("similarity search failed: %w", err)
	}
	defer rows.Close()

	var results []SearchResult
	for rows.Next() {
		var r SearchResult
		var score float64
		if err := rows.Scan(&r.SongID, &r.Title, &r.Artist, &r.PageCount, &score); err != nil {
			return nil, fmt.Errorf("failed to scan similarity result: %w", err)
		}
		r.Score = score * 100
		r.ScoreType = "similarity"
		results = append(results, r)
	}
	return results, rows.Err()
}

func substringScore(value, query string) int {
	if value == "" {
		return 0
	}
	v := strings.ToLower(value)
	q := strings.ToLower(query)
	switch {
	case v == q:
		return 100
	case strings.HasPrefix(v, q):
		return 85
	case strings.Contains(v, q):
		return 70
	}
	return 0
}

// sortSearchResults orders by score descending, then title for stability.
func sortSearchResults(results []SearchResult) {
	sort.SliceStable(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		return results[i].Title < results[j].Title
	})
}
