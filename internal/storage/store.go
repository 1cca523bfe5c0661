package storage

import (
	"context"
	"encoding/json"
	"errors"
)

// ErrNotFound is returned by Get when the key has never been written.
var ErrNotFound = errors.New("storage: key not found")

// Store is a keyed JSON value store. The limiter uses two instances: a
// persistent sync store for user options and an ephemeral session store for
// counters that are expected to vanish on browser/daemon restart.
type Store interface {
	Get(ctx context.Context, key string) (json.RawMessage, error)
	Set(ctx context.Context, key string, value any) error
	Delete(ctx context.Context, key string) error
	Clear(ctx context.Context) error
}

// GetInt reads an integer value, returning fallback when the key is missing
// or the stored value does not decode as a number.
func GetInt(ctx context.Context, s Store, key string, fallback int) (int, error) {
	raw, err := s.Get(ctx, key)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return fallback, nil
		}
		return fallback, err
	}
	var n int
	if err := json.Unmarshal(raw, &n); err != nil {
		return fallback, nil
	}
	return n, nil
}
