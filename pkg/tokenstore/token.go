// Package tokenstore persists the Strava OAuth token pair so a refreshed
// access token survives restarts.
package tokenstore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrNotFound is returned by Load when nothing has been saved yet.
var ErrNotFound = errors.New("token not found")

// Token is an OAuth access/refresh pair. A zero ExpiresAt means the expiry is
// unknown.
type Token struct {
	AccessToken  string    `yaml:"access_token" json:"access_token"`
	RefreshToken string    `yaml:"refresh_token" json:"refresh_token"`
	ExpiresAt    time.Time `yaml:"expires_at,omitempty" json:"expires_at,omitempty"`
}

func (t Token) Empty() bool {
	return t.AccessToken == "" && t.RefreshToken == ""
}

// Expired reports whether the token is past its expiry, or within skew of it.
func (t Token) Expired(now time.Time, skew time.Duration) bool {
	if t.ExpiresAt.IsZero() {
		return false
	}
	return !now.Add(skew).Before(t.ExpiresAt)
}

// Store loads and saves a single token.
type Store interface {
	Load(ctx context.Context) (Token, error)
	Save(ctx context.Context, token Token) error
	Close() error
}

// Open builds a store from a location string: "" or "memory", "file:<path>" or
// "sqlite:<path>".
func Open(location string) (Store, error) {
	location = strings.TrimSpace(location)
	if location == "" || location == "memory" {
		return NewMemory(), nil
	}
	kind, path, ok := strings.Cut(location, ":")
	if !ok || strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("invalid token store %q", location)
	}
	switch kind {
	case "file":
		return NewFile(path), nil
	case "sqlite":
		return NewSQLite(path)
	default:
		return nil, fmt.Errorf("unknown token store kind %q", kind)
	}
}

// Resolve returns the stored token, falling back to seed when the store is
// empty. A stored token always wins over the seed.
func Resolve(ctx context.Context, store Store, seed Token) (Token, error) {
	token, err := store.Load(ctx)
	if errors.Is(err, ErrNotFound) {
		return seed, nil
	}
	if err != nil {
		return Token{}, err
	}
	if token.Empty() {
		return seed, nil
	}
	return token, nil
}
