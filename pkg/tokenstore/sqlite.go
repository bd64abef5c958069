package tokenstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

const tokenSQLiteSchema = `
CREATE TABLE IF NOT EXISTS strava_tokens (
	id TEXT PRIMARY KEY,
	access_token TEXT NOT NULL,
	refresh_token TEXT NOT NULL,
	expires_at INTEGER NOT NULL DEFAULT 0,
	updated_at TEXT NOT NULL
);`

const defaultTokenID = "default"

// SQLite stores the token in a single-row table.
type SQLite struct {
	db  *sql.DB
	now func() time.Time
}

// NewSQLite opens (or creates) the database at dsn.
func NewSQLite(dsn string) (*SQLite, error) {
	if strings.TrimSpace(dsn) == "" {
		return nil, errors.New("token store sqlite dsn is required")
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("token sqlite store open: %w", err)
	}
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("token sqlite store set WAL mode: %w", err)
	}
	if _, err := db.Exec(tokenSQLiteSchema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("token sqlite store create schema: %w", err)
	}
	return &SQLite{db: db, now: time.Now}, nil
}

func (s *SQLite) Load(ctx context.Context) (Token, error) {
	var (
		token     Token
		expiresAt int64
	)
	err := s.db.QueryRowContext(ctx, `
SELECT access_token, refresh_token, expires_at
FROM strava_tokens
WHERE id = ?`, defaultTokenID).Scan(&token.AccessToken, &token.RefreshToken, &expiresAt)
	if errors.Is(err, sql.ErrNoRows) {
		return Token{}, ErrNotFound
	}
	if err != nil {
		return Token{}, fmt.Errorf("token sqlite store load: %w", err)
	}
	if expiresAt > 0 {
		token.ExpiresAt = time.Unix(expiresAt, 0).UTC()
	}
	return token, nil
}

func (s *SQLite) Save(ctx context.Context, token Token) error {
	var expiresAt int64
	if !token.ExpiresAt.IsZero() {
		expiresAt = token.ExpiresAt.Unix()
	}
	_, err := s.db.ExecContext(ctx, `
INSERT INTO strava_tokens (id, access_token, refresh_token, expires_at, updated_at)
VALUES (?, ?, ?, ?, ?)
ON CONFLICT(id) DO UPDATE SET
	access_token = excluded.access_token,
	refresh_token = excluded.refresh_token,
	expires_at = excluded.expires_at,
	updated_at = excluded.updated_at`,
		defaultTokenID, token.AccessToken, token.RefreshToken, expiresAt,
		s.now().UTC().Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("token sqlite store save: %w", err)
	}
	return nil
}

func (s *SQLite) Close() error {
	return s.db.Close()
}
