package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

func (p *Postgres) CreatePlaylist(ctx context.Context, ownerID, name string) (*Playlist, error) {
	var pl Playlist
	err := p.pool.QueryRow(ctx, `
		INSERT INTO playlists (id, owner_id, name)
		VALUES ($1, $2, $3)
		RETURNING id, owner_id, name, created_at
	`, uuid.New(), ownerID, name).Scan(&pl.ID, &pl.OwnerID, &pl.Name, &pl.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to create playlist: %w", err)
	}
	return &pl, nil
}

func (p *Postgres) ListPlaylists(ctx context.Context, ownerID string) ([]Playlist, error) {
	rows, err := p.pool.Query(ctx, `
		SELECT id, owner_id, name, created_at
		FROM playlists WHERE owner_id = $1
		ORDER BY created_at
	`, ownerID)
	if err != nil {
		return nil, fmt.Errorf("failed to list playlists: %w", err)
	}
	defer rows.Close()

	var playlists []Playlist
	for rows.Next() {
		var pl Playlist
		if err := rows.Scan(&pl.ID, &pl.OwnerID, &pl.Name, &pl.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan playlist: %w", err)
		}
		playlists = append(playlists, pl)
	}
	return playlists, rows.Err()
}

func (p *Postgres) GetPlaylist(ctx context.Context, ownerID string, playlistID uuid.UUID) (*Playlist, error) {
	var pl Playlist
	err := p.pool.QueryRow(ctx, `
		SELECT id, owner_id, name, created_at
		FROM playlists WHERE id = $1 AND owner_id = $2
	`, playlistID, ownerID).Scan(&pl.ID, &pl.OwnerID, &pl.Name, &pl.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to load playlist: %w", err)
	}

	rows, err := p.pool.Query(ctx, `
		SELECT `+prefixedSongColumns("s")+`
		FROM playlist_songs ps
		JOIN songs s ON s.id = ps.song_id
		WHERE ps.playlist_id = $1
		ORDER BY ps.position
	`, playlistID)
	if err != nil {
		return nil, fmt.Errorf("failed to load playlist songs: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		s, err := scanSong(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan playlist song: %w", err)
		}
		pl.Songs = append(pl.Songs, *s)
	}
	return &pl, rows.Err()
}

func (p *Postgres) DeletePlaylist(ctx context.Context, ownerID string, playlistID uuid.UUID) error {
	tag, err := p.pool.Exec(ctx, `
		DELETE FROM playlists WHERE id = $1 AND owner_id = $2
	`, playlistID, ownerID)
	if err != nil {
		return fmt.Errorf("failed to delete playlist: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (p *Postgres) AddPlaylistSong(ctx context.Context, ownerID string, playlistID uuid.UUID, songID string) error {
	if _, err := p.GetPlaylist(ctx, ownerID, playlistID); err != nil {
		return err
	}
	if _, err := p.GetSong(ctx, songID); err != nil {
		return err
	}

	// Position is append-only; gaps left by removals are harmless because
	// reads order by position, not index by it.
	tag, err := p.pool.Exec(ctx, `
		INSERT INTO playlist_songs (playlist_id, song_id, position)
		SELECT $1, $2, COALESCE(MAX(position), 0) + 1
		FROM playlist_songs WHERE playlist_id = $1
		ON CONFLICT DO NOTHING
	`, playlistID, songID)
	if err != nil {
		return fmt.Errorf("failed to add playlist song: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrAlreadyExists
	}
	return nil
}

func (p *Postgres) RemovePlaylistSong(ctx context.Context, ownerID string, playlistID uuid.UUID, songID string) error {
	if _, err := p.GetPlaylist(ctx, ownerID, playlistID); err != nil {
		return err
	}
	tag, err := p.pool.Exec(ctx, `
		DELETE FROM playlist_songs WHERE playlist_id = $1 AND song_id = $2
	`, playlistID, songID)
	if err != nil {
		return fmt.Errorf("failed to remove playlist song: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// prefixedSongColumns qualifies the song column list with a table alias for
// joined queries.
func prefixedSongColumns(alias string) string {
	return alias + ".id, " + alias + ".title, " + alias + ".artist, " + alias + ".genre, " +
		alias + ".song_key, " + alias + ".tempo, " + alias + ".language, " + alias + ".filename, " +
		alias + ".page_count, " + alias + ".date_added"
}
