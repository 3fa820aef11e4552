package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
)

// roomIDRetries bounds collision retries on room creation. With a 36^6
// keyspace, hitting this limit means something is very wrong.
const roomIDRetries = 5

func (p *Postgres) CreateRoom(ctx context.Context, hostID string) (*Room, error) {
	for attempt := 0; attempt < roomIDRetries; attempt++ {
		roomID := newRoomID()
		tag, err := p.pool.Exec(ctx, `
			INSERT INTO rooms (room_id, host_id)
			VALUES ($1, $2)
			ON CONFLICT (room_id) DO NOTHING
		`, roomID, hostID)
		if err != nil {
			return nil, fmt.Errorf("failed to create room: %w", err)
		}
		if tag.RowsAffected() == 0 {
			continue // id collision, try another
		}

		if _, err := p.pool.Exec(ctx, `
			INSERT INTO room_participants (room_id, user_id)
			VALUES ($1, $2)
			ON CONFLICT DO NOTHING
		`, roomID, hostID); err != nil {
			return nil, fmt.Errorf("failed to add host to room: %w", err)
		}

		return p.GetRoom(ctx, roomID)
	}
	return nil, fmt.Errorf("failed to generate a unique room id after %d attempts", roomIDRetries)
}

func (p *Postgres) GetRoom(ctx context.Context, roomID string) (*Room, error) {
	var room Room
	var songID sql.NullString
	err := p.pool.QueryRow(ctx, `
		SELECT room_id, host_id, current_song_id, current_page, created_at, updated_at
		FROM rooms WHERE room_id = $1
	`, roomID).Scan(&room.RoomID, &room.HostID, &songID, &room.CurrentPage, &room.CreatedAt, &room.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to load room: %w", err)
	}
	room.CurrentSongID = songID.String

	rows, err := p.pool.Query(ctx, `
		SELECT user_id, joined_at
		FROM room_participants WHERE room_id = $1
		ORDER BY joined_at
	`, roomID)
	if err != nil {
		return nil, fmt.Errorf("failed to load participants: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var part Participant
		if err := rows.Scan(&part.UserID, &part.JoinedAt); err != nil {
			return nil, fmt.Errorf("failed to scan participant: %w", err)
		}
		room.Participants = append(room.Participants, part)
	}
	return &room, rows.Err()
}

func (p *Postgres) AddParticipant(ctx context.Context, roomID, userID string) error {
	if err := p.roomExists(ctx, roomID); err != nil {
		return err
	}
	_, err := p.pool.Exec(ctx, `
		INSERT INTO room_participants (room_id, user_id)
		VALUES ($1, $2)
		ON CONFLICT DO NOTHING
	`, roomID, userID)
	if err != nil {
		return fmt.Errorf("failed to add participant: %w", err)
	}
	return nil
}

func (p *Postgres) RemoveParticipant(ctx context.Context, roomID, userID string) error {
	tag, err := p.pool.Exec(ctx, `
		DELETE FROM room_participants WHERE room_id = $1 AND user_id = $2
	`, roomID, userID)
	if err != nil {
		return fmt.Errorf("failed to remove participant: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (p *Postgres) SetCurrentSong(ctx context.Context, roomID, songID string) error {
	tag, err := p.pool.Exec(ctx, `
		UPDATE rooms
		SET current_song_id = $2, current_page = 1, updated_at = now()
		WHERE room_id = $1
	`, roomID, songID)
	if err != nil {
		return fmt.Errorf("failed to set current song: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (p *Postgres) SetCurrentPage(ctx context.Context, roomID string, page int) error {
	tag, err := p.pool.Exec(ctx, `
		UPDATE rooms
		SET current_page = $2, updated_at = now()
		WHERE room_id = $1
	`, roomID, page)
	if err != nil {
		return fmt.Errorf("failed to set current page: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (p *Postgres) DeleteRoom(ctx context.Context, roomID string) error {
	tag, err := p.pool.Exec(ctx, `DELETE FROM rooms WHERE room_id = $1`, roomID)
	if err != nil {
		return fmt.Errorf("failed to delete room: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (p *Postgres) roomExists(ctx context.Context, roomID string) error {
	var exists bool
	err := p.pool.QueryRow(ctx, `
		SELECT EXISTS (SELECT 1 FROM rooms WHERE room_id = $1)
	`, roomID).Scan(&exists)
	if err != nil {
		return fmt.Errorf("failed to check room: %w", err)
	}
	if !exists {
		return ErrNotFound
	}
	return nil
}
