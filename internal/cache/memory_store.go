package cache

import (
	"context"
	"sync"
	"time"

	"github.com/ZanzyTHEbar/errbuilder-go"
)

// MemoryStore keeps entries in process memory. It is used by tests and by
// deployments that do not need the cache to survive restarts.
type MemoryStore struct {
	mutex     sync.RWMutex
	entries   map[string]Entry
	retention time.Duration
	stop      chan struct{}
	stopOnce  sync.Once
}

// MemoryOption configures a MemoryStore.
type MemoryOption func(*MemoryStore)

// WithRetention drops entries older than d in the background. Retention only
// bounds memory; freshness is still decided by the cache predicate.
func WithRetention(d time.Duration) MemoryOption {
	return func(s *MemoryStore) {
		s.retention = d
	}
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore(opts ...MemoryOption) *MemoryStore {
	s := &MemoryStore{
		entries: make(map[string]Entry),
		stop:    make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.retention > 0 {
		go s.cleanupLoop(s.retention / 4)
	}
	return s
}

// Load implements Store.
func (s *MemoryStore) Load(ctx context.Context, key string) (Entry, error) {
	if err := errbuilder.WrapIfContextDone(ctx, nil); err != nil {
		return Entry{}, err
	}

	s.mutex.RLock()
	defer s.mutex.RUnlock()

	e, ok := s.entries[key]
	if !ok {
		return Entry{}, notFound(key)
	}
	return e, nil
}

// Save implements Store.
func (s *MemoryStore) Save(ctx context.Context, entry Entry) error {
	if err := errbuilder.WrapIfContextDone(ctx, nil); err != nil {
		return err
	}

	s.mutex.Lock()
	defer s.mutex.Unlock()
	s.entries[entry.Key] = entry
	return nil
}

// Len returns the number of stored entries.
func (s *MemoryStore) Len() int {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	return len(s.entries)
}

// Close stops the cleanup loop.
func (s *MemoryStore) Close() error {
	s.stopOnce.Do(func() { close(s.stop) })
	return nil
}

func (s *MemoryStore) cleanupLoop(interval time.Duration) {
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stop:
			return
		case now := <-ticker.C:
			s.mutex.Lock()
			for key, e := range s.entries {
				if e.Age(now) > s.retention {
					delete(s.entries, key)
				}
			}
			s.mutex.Unlock()
		}
	}
}
