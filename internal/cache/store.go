// Package cache implements the freshness-aware external data cache shared by
// the weather and market capabilities.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/ZanzyTHEbar/errbuilder-go"
)

// ErrNotFound is matched with errors.Is on a store miss.
var ErrNotFound = errors.New("cache entry not found")

// Entry is one cached provider payload.
type Entry struct {
	Key       string          `json:"key"`
	Timestamp time.Time       `json:"timestamp"`
	Payload   json.RawMessage `json:"payload"`
}

// Age returns how old the entry is at now.
func (e Entry) Age(now time.Time) time.Duration {
	return now.Sub(e.Timestamp)
}

// Store persists entries with per-key granularity.
type Store interface {
	// Load returns the entry for key or an error matching ErrNotFound.
	Load(ctx context.Context, key string) (Entry, error)
	// Save replaces the entry for key.
	Save(ctx context.Context, entry Entry) error
	Close() error
}

func notFound(key string) error {
	return fmt.Errorf("%w: %w", ErrNotFound,
		errbuilder.NotFoundErr(errbuilder.GenericErr("no cache entry for key "+key, nil)))
}

// IsNotFound reports whether err is a store miss.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}
