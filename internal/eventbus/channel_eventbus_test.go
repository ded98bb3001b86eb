package eventbus

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

func TestChannelEventBus_PublishAndSubscribe(t *testing.T) {
	eb := NewChannelEventBus(
		WithBufferSize(1),
		WithWorkerCount(1),
		WithRetries(1, 10*time.Millisecond),
	)
	defer eb.Close()

	received := make(chan string, 1)
	handler := func(ctx context.Context, event Event) error {
		received <- MetaString(event, "tool")
		return nil
	}
	if _, err := eb.Subscribe([]EventType{EventCapabilitySuccess}, handler); err != nil {
		t.Fatalf("Subscribe failed: %v", err)
	}

	evt := NewEvent(EventCapabilitySuccess, nil, "test", map[string]interface{}{"tool": "WeatherInfo"})
	if err := eb.Publish(context.Background(), evt); err != nil {
		t.Fatalf("Publish failed: %v", err)
	}

	select {
	case tool := <-received:
		if tool != "WeatherInfo" {
			t.Errorf("expected tool metadata WeatherInfo, got %q", tool)
		}
	case <-time.After(time.Second):
		t.Error("timeout waiting for event handler")
	}
}

func TestChannelEventBus_HandlerRetry(t *testing.T) {
	eb := NewChannelEventBus(
		WithBufferSize(1),
		WithWorkerCount(1),
		WithRetries(2, 5*time.Millisecond),
	)

	var mu sync.Mutex
	calls := 0
	handler := func(ctx context.Context, event Event) error {
		mu.Lock()
		defer mu.Unlock()
		calls++
		if calls < 2 {
			return errors.New("transient")
		}
		return nil
	}
	if _, err := eb.Subscribe([]EventType{EventCapabilityFailure}, handler); err != nil {
		t.Fatalf("Subscribe failed: %v", err)
	}
	if err := eb.Publish(context.Background(), NewEvent(EventCapabilityFailure, nil, "test", nil)); err != nil {
		t.Fatalf("Publish failed: %v", err)
	}

	// Close drains the queue before returning.
	eb.Close()

	mu.Lock()
	defer mu.Unlock()
	if calls != 2 {
		t.Errorf("expected 2 calls, got %d", calls)
	}
}

func TestChannelEventBus_HandlersOutliveRequestContext(t *testing.T) {
	eb := NewChannelEventBus(WithWorkerCount(1))

	var mu sync.Mutex
	seen := 0
	_, err := eb.SubscribeAll(func(ctx context.Context, event Event) error {
		if ctx.Err() != nil {
			t.Errorf("handler context should not be cancelled")
		}
		mu.Lock()
		seen++
		mu.Unlock()
		return nil
	})
	if err != nil {
		t.Fatalf("SubscribeAll failed: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	if err := eb.Publish(ctx, NewEvent(EventRequestSuccess, nil, "test", nil)); err != nil {
		t.Fatalf("Publish failed: %v", err)
	}
	cancel()
	eb.Close()

	mu.Lock()
	defer mu.Unlock()
	if seen != 1 {
		t.Errorf("expected handler to run once, ran %d times", seen)
	}
}

func TestChannelEventBus_Unsubscribe(t *testing.T) {
	eb := NewChannelEventBus(WithWorkerCount(1))

	calls := 0
	id, err := eb.Subscribe([]EventType{EventCacheHit}, func(ctx context.Context, event Event) error {
		calls++
		return nil
	})
	if err != nil {
		t.Fatalf("Subscribe failed: %v", err)
	}
	if err := eb.Unsubscribe(id); err != nil {
		t.Fatalf("Unsubscribe failed: %v", err)
	}
	_ = eb.Publish(context.Background(), NewEvent(EventCacheHit, nil, "test", nil))
	eb.Close()

	if calls != 0 {
		t.Errorf("expected no calls after unsubscribe, got %d", calls)
	}
}

func TestChannelEventBus_PublishAfterClose(t *testing.T) {
	eb := NewChannelEventBus()
	eb.Close()

	if err := eb.Publish(context.Background(), NewEvent(EventCacheMiss, nil, "test", nil)); err == nil {
		t.Error("expected error publishing to closed bus")
	}
	if _, err := eb.SubscribeAll(func(context.Context, Event) error { return nil }); err == nil {
		t.Error("expected error subscribing to closed bus")
	}
	if err := eb.Close(); err != nil {
		t.Errorf("second Close should be a no-op, got %v", err)
	}
}

func TestEmit_NilBus(t *testing.T) {
	// Must not panic.
	Emit(context.Background(), nil, EventCacheHit, "test", nil)
}
