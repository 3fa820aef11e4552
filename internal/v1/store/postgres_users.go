package store

import (
	"context"
	"fmt"

	"github.com/google/uuid"
)

func (p *Postgres) UpsertUser(ctx context.Context, subject, displayName, email string) (*User, error) {
	var user User
	err := p.pool.QueryRow(ctx, `
		INSERT INTO users (id, subject, display_name, email)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (subject) DO UPDATE SET
			display_name = CASE WHEN EXCLUDED.display_name <> '' THEN EXCLUDED.display_name ELSE users.display_name END,
			email        = CASE WHEN EXCLUDED.email <> '' THEN EXCLUDED.email ELSE users.email END,
			last_login   = now()
		RETURNING id, subject, display_name, email, created_at, last_login
	`, uuid.New(), subject, displayName, email).Scan(
		&user.ID, &user.Subject, &user.DisplayName, &user.Email, &user.CreatedAt, &user.LastLogin)
	if err != nil {
		return nil, fmt.Errorf("failed to upsert user: %w", err)
	}
	return &user, nil
}
