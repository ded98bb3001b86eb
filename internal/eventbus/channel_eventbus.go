// Package eventbus provides the in-process event bus that carries
// orchestration, capability and cache events to observers.
package eventbus

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// ChannelEventBus is an implementation of EventBus using Go channels
type ChannelEventBus struct {
	// subscribers maps event types to subscription IDs to handlers
	subscribers map[EventType]map[string]EventHandler
	// allSubscribers receive every event regardless of type
	allSubscribers map[string]EventHandler

	eventChan chan queuedEvent
	wg        sync.WaitGroup

	// mutex protects the subscriber maps
	mutex sync.RWMutex

	// closeMu guards closed and sends on eventChan
	closeMu sync.RWMutex
	closed  bool

	bufferSize    int
	workerCount   int
	maxRetries    int
	retryInterval time.Duration
}

type queuedEvent struct {
	ctx   context.Context
	event Event
}

// ChannelEventBusOption configures the channel-based event bus
type ChannelEventBusOption func(*ChannelEventBus)

// WithBufferSize sets the event channel buffer size
func WithBufferSize(size int) ChannelEventBusOption {
	return func(eb *ChannelEventBus) {
		eb.bufferSize = size
	}
}

// WithWorkerCount sets the number of event processing workers
func WithWorkerCount(count int) ChannelEventBusOption {
	return func(eb *ChannelEventBus) {
		eb.workerCount = count
	}
}

// WithRetries configures the retry behavior for event handlers
func WithRetries(maxRetries int, retryInterval time.Duration) ChannelEventBusOption {
	return func(eb *ChannelEventBus) {
		eb.maxRetries = maxRetries
		eb.retryInterval = retryInterval
	}
}

// NewChannelEventBus creates a new channel-based event bus
func NewChannelEventBus(options ...ChannelEventBusOption) *ChannelEventBus {
	eb := &ChannelEventBus{
		subscribers:    make(map[EventType]map[string]EventHandler),
		allSubscribers: make(map[string]EventHandler),
		bufferSize:     256,
		workerCount:    2,
		maxRetries:     1,
		retryInterval:  50 * time.Millisecond,
	}

	for _, option := range options {
		option(eb)
	}
	if eb.workerCount < 1 {
		eb.workerCount = 1
	}

	eb.eventChan = make(chan queuedEvent, eb.bufferSize)
	for i := 0; i < eb.workerCount; i++ {
		eb.wg.Add(1)
		go eb.worker()
	}
	return eb
}

// worker drains the queue until it is closed
func (eb *ChannelEventBus) worker() {
	defer eb.wg.Done()
	for evt := range eb.eventChan {
		eb.dispatch(evt)
	}
}

// dispatch hands the event to every matching subscriber
func (eb *ChannelEventBus) dispatch(evt queuedEvent) {
	eb.mutex.RLock()
	// Copy so handlers may subscribe or unsubscribe without deadlocking.
	handlers := make([]EventHandler, 0, len(eb.subscribers[evt.event.Type()])+len(eb.allSubscribers))
	for _, h := range eb.subscribers[evt.event.Type()] {
		handlers = append(handlers, h)
	}
	for _, h := range eb.allSubscribers {
		handlers = append(handlers, h)
	}
	eb.mutex.RUnlock()

	for _, h := range handlers {
		eb.executeHandler(evt.ctx, evt.event, h)
	}
}

// executeHandler runs a handler with retry logic
func (eb *ChannelEventBus) executeHandler(ctx context.Context, event Event, handler EventHandler) {
	var err error
	for attempt := 0; attempt <= eb.maxRetries; attempt++ {
		if err = handler(ctx, event); err == nil {
			return
		}
		if attempt < eb.maxRetries {
			time.Sleep(eb.retryInterval)
		}
	}
	log.Warn().Err(err).
		Str("event_type", string(event.Type())).
		Int("retries", eb.maxRetries).
		Msg("event handler failed")
}

// Publish queues an event. Handlers run after the publishing request may
// have finished, so the event keeps the context values but not its
// cancellation. Publish only blocks while the buffer is full.
func (eb *ChannelEventBus) Publish(ctx context.Context, event Event) error {
	if event == nil {
		return fmt.Errorf("event cannot be nil")
	}

	eb.closeMu.RLock()
	defer eb.closeMu.RUnlock()
	if eb.closed {
		return fmt.Errorf("event bus is closed")
	}

	select {
	case <-ctx.Done():
		return ctx.Err()
	case eb.eventChan <- queuedEvent{ctx: context.WithoutCancel(ctx), event: event}:
		return nil
	}
}

// Subscribe registers a handler for specific event types
func (eb *ChannelEventBus) Subscribe(eventTypes []EventType, handler EventHandler) (string, error) {
	if handler == nil {
		return "", fmt.Errorf("handler cannot be nil")
	}
	if len(eventTypes) == 0 {
		return "", fmt.Errorf("at least one event type is required")
	}

	if eb.isClosed() {
		return "", fmt.Errorf("event bus is closed")
	}

	eb.mutex.Lock()
	defer eb.mutex.Unlock()
	subscriptionID := uuid.NewString()
	for _, eventType := range eventTypes {
		if _, exists := eb.subscribers[eventType]; !exists {
			eb.subscribers[eventType] = make(map[string]EventHandler)
		}
		eb.subscribers[eventType][subscriptionID] = handler
	}
	return subscriptionID, nil
}

// SubscribeAll registers a handler for all event types
func (eb *ChannelEventBus) SubscribeAll(handler EventHandler) (string, error) {
	if handler == nil {
		return "", fmt.Errorf("handler cannot be nil")
	}

	if eb.isClosed() {
		return "", fmt.Errorf("event bus is closed")
	}

	eb.mutex.Lock()
	defer eb.mutex.Unlock()
	subscriptionID := uuid.NewString()
	eb.allSubscribers[subscriptionID] = handler
	return subscriptionID, nil
}

// Unsubscribe removes a subscription by ID
func (eb *ChannelEventBus) Unsubscribe(subscriptionID string) error {
	eb.mutex.Lock()
	defer eb.mutex.Unlock()

	delete(eb.allSubscribers, subscriptionID)
	for _, subs := range eb.subscribers {
		delete(subs, subscriptionID)
	}
	return nil
}

// Close stops accepting events, lets the workers drain the queue and waits
// for them to exit. Calling Close twice is a no-op.
func (eb *ChannelEventBus) Close() error {
	eb.closeMu.Lock()
	if eb.closed {
		eb.closeMu.Unlock()
		return nil
	}
	eb.closed = true
	close(eb.eventChan)
	eb.closeMu.Unlock()

	eb.wg.Wait()
	return nil
}

func (eb *ChannelEventBus) isClosed() bool {
	eb.closeMu.RLock()
	defer eb.closeMu.RUnlock()
	return eb.closed
}
