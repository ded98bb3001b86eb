package eventbus

import (
	"context"
	"time"
)

// EventType represents the type of an event
type EventType string

const (
	// Request lifecycle events
	EventRequestStarted EventType = "request_started"
	EventRequestSuccess EventType = "request_success"
	EventRequestFailure EventType = "request_failure"

	// Triage events
	EventTriageClassified EventType = "triage_classified"

	// Planning events, one pair per model round
	EventPlanningStarted   EventType = "planning_started"
	EventPlanningSuccess   EventType = "planning_success"
	EventPlanningFailure   EventType = "planning_failure"
	EventRoundLimitReached EventType = "round_limit_reached"

	// Capability invocation events
	EventCapabilityStarted EventType = "capability_started"
	EventCapabilitySuccess EventType = "capability_success"
	EventCapabilityFailure EventType = "capability_failure"

	// Synthesis events
	EventSynthesisSuccess EventType = "synthesis_success"

	// External data cache events
	EventCacheHit     EventType = "cache_hit"
	EventCacheMiss    EventType = "cache_miss"
	EventCacheStale   EventType = "cache_stale"
	EventCacheIOError EventType = "cache_io_error"

	// Retrieval events
	EventRetrievalFallback EventType = "retrieval_fallback"
)

// EventHandler is a function that handles events
type EventHandler func(context.Context, Event) error

// Event represents something that has happened within the system
type Event interface {
	Type() EventType
	Payload() interface{}
	Metadata() map[string]interface{}
	// Timestamp returns when the event occurred, in unix nanoseconds.
	Timestamp() int64
	// Source names the component that generated the event.
	Source() string
}

// EventBus is the central event dispatch system
type EventBus interface {
	// Publish queues an event for all subscribed handlers.
	Publish(ctx context.Context, event Event) error

	// Subscribe registers a handler for specific event types and returns a
	// subscription ID that can be used to unsubscribe.
	Subscribe(eventTypes []EventType, handler EventHandler) (string, error)

	// SubscribeAll registers a handler for every event type.
	SubscribeAll(handler EventHandler) (string, error)

	Unsubscribe(subscriptionID string) error

	// Close drains queued events and stops the workers.
	Close() error
}

// BaseEvent is a simple implementation of the Event interface
type BaseEvent struct {
	eventType  EventType
	payload    interface{}
	metadata   map[string]interface{}
	timestamp  int64
	sourceInfo string
}

// NewEvent creates a new BaseEvent
func NewEvent(
	eventType EventType,
	payload interface{},
	source string,
	metadata map[string]interface{},
) *BaseEvent {
	if metadata == nil {
		metadata = make(map[string]interface{})
	}

	return &BaseEvent{
		eventType:  eventType,
		payload:    payload,
		metadata:   metadata,
		timestamp:  time.Now().UnixNano(),
		sourceInfo: source,
	}
}

func (e *BaseEvent) Type() EventType                  { return e.eventType }
func (e *BaseEvent) Payload() interface{}             { return e.payload }
func (e *BaseEvent) Metadata() map[string]interface{} { return e.metadata }
func (e *BaseEvent) Timestamp() int64                 { return e.timestamp }
func (e *BaseEvent) Source() string                   { return e.sourceInfo }

// WithMetadata adds or updates metadata and returns the same event
func (e *BaseEvent) WithMetadata(key string, value interface{}) *BaseEvent {
	e.metadata[key] = value
	return e
}

// MetaString reads a string metadata value, returning "" when absent.
func MetaString(e Event, key string) string {
	if v, ok := e.Metadata()[key].(string); ok {
		return v
	}
	return ""
}

// MetaFloat reads a numeric metadata value, returning 0 when absent.
func MetaFloat(e Event, key string) float64 {
	switch v := e.Metadata()[key].(type) {
	case float64:
		return v
	case int64:
		return float64(v)
	case int:
		return float64(v)
	case time.Duration:
		return v.Seconds()
	}
	return 0
}

// Emit publishes an event when bus is non-nil. Publish errors are dropped
// since events never gate the request path.
func Emit(ctx context.Context, bus EventBus, eventType EventType, source string, metadata map[string]interface{}) {
	if bus == nil {
		return
	}
	_ = bus.Publish(ctx, NewEvent(eventType, nil, source, metadata))
}
