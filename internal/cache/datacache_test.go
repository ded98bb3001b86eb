package cache

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func countingFetch(calls *int32, payload string) FetchFunc {
	return func(ctx context.Context) (json.RawMessage, bool, error) {
		atomic.AddInt32(calls, 1)
		return json.RawMessage(payload), true, nil
	}
}

func TestDataCache_MarketWindow(t *testing.T) {
	clock := &fakeClock{now: time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)}
	c := New("market", NewMemoryStore(), MustFreshness(MarketFreshness), WithClock(clock.Now))
	ctx := context.Background()

	var calls int32
	fetch := countingFetch(&calls, `[{"commodity":"Rice"}]`)

	first, err := c.GetOrFetch(ctx, "k", fetch)
	if err != nil {
		t.Fatalf("GetOrFetch failed: %v", err)
	}
	clock.Advance(5 * time.Hour)
	second, err := c.GetOrFetch(ctx, "k", fetch)
	if err != nil {
		t.Fatalf("GetOrFetch failed: %v", err)
	}
	if calls != 1 {
		t.Fatalf("expected 1 fetch inside the window, got %d", calls)
	}
	if string(first) != string(second) {
		t.Errorf("expected identical payloads, got %s and %s", first, second)
	}

	clock.Advance(2 * time.Hour)
	if _, err := c.GetOrFetch(ctx, "k", fetch); err != nil {
		t.Fatalf("GetOrFetch failed: %v", err)
	}
	if calls != 2 {
		t.Errorf("expected refetch after 6h, got %d fetches", calls)
	}
}

func TestDataCache_HasTodayRollsOverAtMidnight(t *testing.T) {
	clock := &fakeClock{now: time.Date(2025, 3, 10, 23, 0, 0, 0, time.UTC)}
	today := func(payload json.RawMessage, now time.Time) bool {
		var dates []string
		if err := json.Unmarshal(payload, &dates); err != nil {
			return false
		}
		for _, d := range dates {
			if d == now.Format(time.DateOnly) {
				return true
			}
		}
		return false
	}
	c := New("weather", NewMemoryStore(), MustFreshness(WeatherFreshness),
		WithClock(clock.Now), WithTodayFunc(today))
	ctx := context.Background()

	if err := c.Put(ctx, "Pune", json.RawMessage(`["2025-03-10"]`)); err != nil {
		t.Fatalf("Put failed: %v", err)
	}
	if _, ok := c.Get(ctx, "Pune"); !ok {
		t.Fatal("expected fresh entry before midnight")
	}

	clock.Advance(2 * time.Hour) // 01:00 next day, age 2h
	if _, ok := c.Get(ctx, "Pune"); ok {
		t.Error("expected entry to be stale once its forecast no longer covers today")
	}
}

func TestDataCache_SerializesConcurrentFetches(t *testing.T) {
	c := New("market", NewMemoryStore(), MustFreshness(MarketFreshness))
	ctx := context.Background()

	var calls int32
	release := make(chan struct{})
	fetch := func(ctx context.Context) (json.RawMessage, bool, error) {
		atomic.AddInt32(&calls, 1)
		<-release
		return json.RawMessage(`"v"`), true, nil
	}

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := c.GetOrFetch(ctx, "same", fetch); err != nil {
				t.Errorf("GetOrFetch failed: %v", err)
			}
		}()
	}
	time.Sleep(20 * time.Millisecond)
	close(release)
	wg.Wait()

	if calls != 1 {
		t.Errorf("expected one provider call for concurrent readers, got %d", calls)
	}
}

func TestDataCache_UncacheableIsNotStored(t *testing.T) {
	store := NewMemoryStore()
	c := New("market", store, MustFreshness(MarketFreshness))

	fetch := func(ctx context.Context) (json.RawMessage, bool, error) {
		return json.RawMessage(`"No market data found for the given criteria."`), false, nil
	}
	if _, err := c.GetOrFetch(context.Background(), "k", fetch); err != nil {
		t.Fatalf("GetOrFetch failed: %v", err)
	}
	if store.Len() != 0 {
		t.Errorf("expected nothing stored, got %d entries", store.Len())
	}
}

type brokenStore struct{ saves int }

func (b *brokenStore) Load(ctx context.Context, key string) (Entry, error) {
	return Entry{}, errors.New("disk on fire")
}
func (b *brokenStore) Save(ctx context.Context, e Entry) error {
	b.saves++
	return errors.New("disk on fire")
}
func (b *brokenStore) Close() error { return nil }

func TestDataCache_StoreFaultsActAsMiss(t *testing.T) {
	store := &brokenStore{}
	c := New("weather", store, MustFreshness(WeatherFreshness))

	var calls int32
	payload, err := c.GetOrFetch(context.Background(), "Pune", countingFetch(&calls, `{"ok":true}`))
	if err != nil {
		t.Fatalf("expected store faults to be absorbed, got %v", err)
	}
	if string(payload) != `{"ok":true}` {
		t.Errorf("unexpected payload %s", payload)
	}
	if calls != 1 || store.saves != 1 {
		t.Errorf("expected one fetch and one save attempt, got %d and %d", calls, store.saves)
	}

	if err := c.Put(context.Background(), "Pune", payload); err == nil {
		t.Error("expected Put to report the cache IO error")
	}
}

func TestDataCache_FetchErrorPropagates(t *testing.T) {
	c := New("weather", NewMemoryStore(), MustFreshness(WeatherFreshness))
	boom := errors.New("provider down")
	_, err := c.GetOrFetch(context.Background(), "Pune", func(ctx context.Context) (json.RawMessage, bool, error) {
		return nil, false, boom
	})
	if !errors.Is(err, boom) {
		t.Errorf("expected wrapped provider error, got %v", err)
	}
}

func TestDataCache_CancelledCallerDoesNotFailOthers(t *testing.T) {
	c := New("weather", NewMemoryStore(), MustFreshness(WeatherFreshness))

	started := make(chan struct{})
	release := make(chan struct{})
	fetch := func(ctx context.Context) (json.RawMessage, bool, error) {
		close(started)
		select {
		case <-release:
			return json.RawMessage(`"sunny"`), true, nil
		case <-ctx.Done():
			return nil, false, ctx.Err()
		}
	}

	ctxA, cancelA := context.WithCancel(context.Background())
	errA := make(chan error, 1)
	go func() {
		_, err := c.GetOrFetch(ctxA, "Kharagpur", fetch)
		errA <- err
	}()
	<-started

	type result struct {
		payload json.RawMessage
		err     error
	}
	resB := make(chan result, 1)
	go func() {
		p, err := c.GetOrFetch(context.Background(), "Kharagpur", fetch)
		resB <- result{p, err}
	}()
	time.Sleep(20 * time.Millisecond)

	cancelA()
	if err := <-errA; !errors.Is(err, context.Canceled) {
		t.Errorf("expected the cancelled caller to see context.Canceled, got %v", err)
	}

	close(release)
	got := <-resB
	if got.err != nil {
		t.Fatalf("live caller failed after another caller cancelled: %v", got.err)
	}
	if string(got.payload) != `"sunny"` {
		t.Errorf("unexpected payload %s", got.payload)
	}
}
