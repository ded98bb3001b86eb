package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	agrisage "github.com/ZanzyTHEbar/agrisage-genkit"
	"github.com/ZanzyTHEbar/agrisage-genkit/internal/eventbus"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/singleflight"
)

// TodayFunc reports whether payload already covers the date of now. It feeds
// the has_today freshness variable.
type TodayFunc func(payload json.RawMessage, now time.Time) bool

// FetchFunc produces a fresh payload on a miss. Returning cacheable=false
// hands the payload to the caller without storing it.
type FetchFunc func(ctx context.Context) (payload json.RawMessage, cacheable bool, err error)

// DataCache layers a freshness predicate over a Store. Read, fetch and write
// for one key run inside a single flight, so concurrent callers for the same
// key share one provider call and never overwrite each other.
type DataCache struct {
	name      string
	store     Store
	freshness *Freshness
	today     TodayFunc
	now       func() time.Time
	bus       eventbus.EventBus
	group     singleflight.Group
}

// Option configures a DataCache.
type Option func(*DataCache)

// WithTodayFunc sets the has_today hook. Without it has_today is false.
func WithTodayFunc(fn TodayFunc) Option {
	return func(c *DataCache) {
		c.today = fn
	}
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(c *DataCache) {
		c.now = now
	}
}

// WithEventBus publishes hit, miss, stale and IO error events.
func WithEventBus(bus eventbus.EventBus) Option {
	return func(c *DataCache) {
		c.bus = bus
	}
}

// New creates a DataCache named name (used in logs and metrics).
func New(name string, store Store, freshness *Freshness, opts ...Option) *DataCache {
	c := &DataCache{
		name:      name,
		store:     store,
		freshness: freshness,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Name returns the cache name.
func (c *DataCache) Name() string { return c.name }

// Get returns the payload for key when a fresh entry exists. Store faults are
// logged and reported as a miss.
func (c *DataCache) Get(ctx context.Context, key string) (json.RawMessage, bool) {
	entry, err := c.store.Load(ctx, key)
	if err != nil {
		if IsNotFound(err) {
			c.emit(ctx, eventbus.EventCacheMiss, key)
			return nil, false
		}
		ioErr := agrisage.NewCacheIOError("read", key, err)
		log.Warn().Err(ioErr).Str("cache", c.name).Str("key", key).Msg("cache read failed, treating as miss")
		c.emit(ctx, eventbus.EventCacheIOError, key)
		return nil, false
	}

	now := c.now()
	vars := FreshnessVars{AgeHours: entry.Age(now).Hours()}
	if c.today != nil {
		vars.HasToday = c.today(entry.Payload, now)
	}
	fresh, err := c.freshness.Fresh(vars)
	if err != nil {
		log.Warn().Err(err).Str("cache", c.name).Msg("freshness evaluation failed, treating as stale")
		fresh = false
	}
	if !fresh {
		c.emit(ctx, eventbus.EventCacheStale, key)
		return nil, false
	}

	c.emit(ctx, eventbus.EventCacheHit, key)
	return entry.Payload, true
}

// Put stores payload under key with the current time.
func (c *DataCache) Put(ctx context.Context, key string, payload json.RawMessage) error {
	err := c.store.Save(ctx, Entry{Key: key, Timestamp: c.now(), Payload: payload})
	if err != nil {
		ioErr := agrisage.NewCacheIOError("write", key, err)
		c.emit(ctx, eventbus.EventCacheIOError, key)
		return ioErr
	}
	return nil
}

// GetOrFetch returns a fresh cached payload or calls fetch and stores its
// result. A failed write is logged; the fetched payload is still returned.
// The shared flight runs detached from any one caller's cancellation; each
// caller stops waiting when its own ctx is done.
func (c *DataCache) GetOrFetch(ctx context.Context, key string, fetch FetchFunc) (json.RawMessage, error) {
	flightCtx := context.WithoutCancel(ctx)
	ch := c.group.DoChan(key, func() (v interface{}, err error) {
		defer func() {
			if r := recover(); r != nil {
				v, err = nil, fmt.Errorf("panic: %v", r)
			}
		}()
		if payload, ok := c.Get(flightCtx, key); ok {
			return payload, nil
		}

		payload, cacheable, err := fetch(flightCtx)
		if err != nil {
			return nil, err
		}
		if cacheable {
			if err := c.Put(flightCtx, key, payload); err != nil {
				log.Warn().Err(err).Str("cache", c.name).Str("key", key).Msg("cache write failed")
			}
		}
		return payload, nil
	})

	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("%s fetch failed: %w", c.name, ctx.Err())
	case res := <-ch:
		if res.Err != nil {
			return nil, fmt.Errorf("%s fetch failed: %w", c.name, res.Err)
		}
		return res.Val.(json.RawMessage), nil
	}
}

// Close releases the underlying store.
func (c *DataCache) Close() error {
	return c.store.Close()
}

func (c *DataCache) emit(ctx context.Context, t eventbus.EventType, key string) {
	eventbus.Emit(ctx, c.bus, t, "cache."+c.name, map[string]interface{}{
		"cache": c.name,
		"key":   key,
	})
}
