package notify

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// ErrUserNotFound is returned when a directory lookup finds no user.
var ErrUserNotFound = errors.New("user not found")

// PostgresUserDirectory resolves guardian user ids against the platform's
// users table.
type PostgresUserDirectory struct {
	db *sql.DB
}

// NewPostgresUserDirectory creates a users-table backed directory.
func NewPostgresUserDirectory(db *sql.DB) *PostgresUserDirectory {
	return &PostgresUserDirectory{db: db}
}

// Lookup fetches a user's name and channel addresses.
func (d *PostgresUserDirectory) Lookup(ctx context.Context, userID string) (*Recipient, error) {
	const query = `SELECT name, COALESCE(phone, ''), COALESCE(email, ''), COALESCE(push_token, '')
		FROM users WHERE id = $1`

	var rec Recipient
	err := d.db.QueryRowContext(ctx, query, userID).Scan(&rec.Name, &rec.Phone, &rec.Email, &rec.PushToken)
	if err == sql.ErrNoRows {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to look up user: %w", err)
	}
	return &rec, nil
}
