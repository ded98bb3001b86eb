package cache

import (
	"context"
	"encoding/json"
	"path/filepath"
	"testing"
	"time"
)

func exerciseStore(t *testing.T, s Store) {
	t.Helper()
	ctx := context.Background()

	if _, err := s.Load(ctx, "missing"); !IsNotFound(err) {
		t.Fatalf("expected not found, got %v", err)
	}

	ts := time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)
	key := `[["commodity","rice"],["state","West Bengal"]]`
	if err := s.Save(ctx, Entry{Key: key, Timestamp: ts, Payload: json.RawMessage(`{"a":1}`)}); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	if err := s.Save(ctx, Entry{Key: "other", Timestamp: ts, Payload: json.RawMessage(`{"b":2}`)}); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	got, err := s.Load(ctx, key)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if !got.Timestamp.Equal(ts) {
		t.Errorf("expected timestamp %v, got %v", ts, got.Timestamp)
	}
	if string(got.Payload) != `{"a":1}` {
		t.Errorf("unexpected payload %s", got.Payload)
	}

	// Overwrite one key and check the other is untouched.
	if err := s.Save(ctx, Entry{Key: key, Timestamp: ts.Add(time.Hour), Payload: json.RawMessage(`{"a":2}`)}); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	got, _ = s.Load(ctx, key)
	if string(got.Payload) != `{"a":2}` {
		t.Errorf("expected overwritten payload, got %s", got.Payload)
	}
	other, err := s.Load(ctx, "other")
	if err != nil || string(other.Payload) != `{"b":2}` {
		t.Errorf("unrelated key changed: %s, %v", other.Payload, err)
	}
}

func TestMemoryStore(t *testing.T) {
	s := NewMemoryStore()
	defer s.Close()
	exerciseStore(t, s)
}

func TestMemoryStore_Retention(t *testing.T) {
	s := NewMemoryStore(WithRetention(40 * time.Millisecond))
	defer s.Close()

	old := Entry{Key: "old", Timestamp: time.Now().Add(-time.Hour), Payload: json.RawMessage(`1`)}
	if err := s.Save(context.Background(), old); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	time.Sleep(100 * time.Millisecond)
	if s.Len() != 0 {
		t.Errorf("expected retention to drop old entry, have %d", s.Len())
	}
}

func TestFileStore(t *testing.T) {
	s, err := NewFileStore(filepath.Join(t.TempDir(), "weather"))
	if err != nil {
		t.Fatalf("NewFileStore failed: %v", err)
	}
	exerciseStore(t, s)
}

func TestSQLiteStore(t *testing.T) {
	s, err := OpenSQLiteStore(filepath.Join(t.TempDir(), "market_cache.db"))
	if err != nil {
		t.Fatalf("OpenSQLiteStore failed: %v", err)
	}
	defer s.Close()
	exerciseStore(t, s)
}
