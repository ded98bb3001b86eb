package cache

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/ZanzyTHEbar/errbuilder-go"
	_ "modernc.org/sqlite"
)

// SQLiteStore persists entries as one row per key in an embedded database.
type SQLiteStore struct {
	db    *sql.DB
	owned bool
}

// OpenSQLiteStore opens (or creates) a database file and ensures the schema.
func OpenSQLiteStore(path string) (*SQLiteStore, error) {
	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open cache database %s: %w", path, err)
	}
	db.SetMaxOpenConns(1)

	s, err := NewSQLiteStore(db)
	if err != nil {
		db.Close()
		return nil, err
	}
	s.owned = true
	return s, nil
}

// NewSQLiteStore wraps an existing handle and ensures the schema.
func NewSQLiteStore(db *sql.DB) (*SQLiteStore, error) {
	if db == nil {
		return nil, errors.New("db is nil")
	}
	if _, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS cache_entries (
			cache_key  TEXT PRIMARY KEY,
			created_at INTEGER NOT NULL,
			payload    BLOB NOT NULL
		)
	`); err != nil {
		return nil, fmt.Errorf("failed to ensure cache schema: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

// Load implements Store.
func (s *SQLiteStore) Load(ctx context.Context, key string) (Entry, error) {
	if err := errbuilder.WrapIfContextDone(ctx, nil); err != nil {
		return Entry{}, err
	}

	var (
		createdAt int64
		payload   []byte
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT created_at, payload FROM cache_entries WHERE cache_key = ?`, key,
	).Scan(&createdAt, &payload)
	if errors.Is(err, sql.ErrNoRows) {
		return Entry{}, notFound(key)
	}
	if err != nil {
		return Entry{}, fmt.Errorf("failed to query cache entry: %w", err)
	}

	return Entry{
		Key:       key,
		Timestamp: time.Unix(0, createdAt),
		Payload:   payload,
	}, nil
}

// Save implements Store.
func (s *SQLiteStore) Save(ctx context.Context, entry Entry) error {
	if err := errbuilder.WrapIfContextDone(ctx, nil); err != nil {
		return err
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO cache_entries (cache_key, created_at, payload) VALUES (?, ?, ?)
		ON CONFLICT(cache_key) DO UPDATE SET created_at = excluded.created_at, payload = excluded.payload
	`, entry.Key, entry.Timestamp.UnixNano(), []byte(entry.Payload))
	if err != nil {
		return fmt.Errorf("failed to upsert cache entry: %w", err)
	}
	return nil
}

// Close closes the database when the store opened it.
func (s *SQLiteStore) Close() error {
	if s.owned {
		return s.db.Close()
	}
	return nil
}
