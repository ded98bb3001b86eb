package executor

import (
	"context"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ZanzyTHEbar/agrisage-genkit/internal/llm"
)

func calls(names ...string) []llm.ToolCall {
	out := make([]llm.ToolCall, len(names))
	for i, n := range names {
		out[i] = llm.ToolCall{ID: n, Name: n, Input: "in-" + n}
	}
	return out
}

func TestRoundExecutor_PreservesOrder(t *testing.T) {
	e := NewRoundExecutor(WithMaxWorkers(3))

	delays := map[string]time.Duration{"a": 30 * time.Millisecond, "b": 0, "c": 10 * time.Millisecond}
	results := e.Run(context.Background(), calls("a", "b", "c"), func(ctx context.Context, call llm.ToolCall) string {
		time.Sleep(delays[call.Name])
		return call.Input
	})

	want := []string{"in-a", "in-b", "in-c"}
	for i := range want {
		if results[i] != want[i] {
			t.Errorf("result %d = %q, want %q", i, results[i], want[i])
		}
	}
	if m := e.GetMetrics(); m.Rounds != 1 || m.CallsExecuted != 3 {
		t.Errorf("unexpected metrics %+v", m)
	}
}

func TestRoundExecutor_BoundsConcurrency(t *testing.T) {
	e := NewRoundExecutor(WithMaxWorkers(1))

	var inFlight, peak int32
	e.Run(context.Background(), calls("a", "b", "c", "d"), func(ctx context.Context, call llm.ToolCall) string {
		n := atomic.AddInt32(&inFlight, 1)
		if n > atomic.LoadInt32(&peak) {
			atomic.StoreInt32(&peak, n)
		}
		time.Sleep(5 * time.Millisecond)
		atomic.AddInt32(&inFlight, -1)
		return ""
	})
	if peak != 1 {
		t.Errorf("expected sequential execution, peak concurrency %d", peak)
	}
}

func TestRoundExecutor_TimeoutBecomesText(t *testing.T) {
	e := NewRoundExecutor(WithCallTimeout(20 * time.Millisecond))

	results := e.Run(context.Background(), calls("slow", "fast"), func(ctx context.Context, call llm.ToolCall) string {
		if call.Name == "slow" {
			time.Sleep(200 * time.Millisecond)
		}
		return "ok"
	})

	if !strings.HasPrefix(results[0], "Error in slow:") {
		t.Errorf("expected timeout text, got %q", results[0])
	}
	if results[1] != "ok" {
		t.Errorf("expected fast call to succeed, got %q", results[1])
	}
	if m := e.GetMetrics(); m.CallsTimedOut != 1 {
		t.Errorf("expected 1 timeout, got %d", m.CallsTimedOut)
	}
}

func TestRoundExecutor_CancelledContext(t *testing.T) {
	e := NewRoundExecutor()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	invoked := false
	results := e.Run(ctx, calls("a"), func(ctx context.Context, call llm.ToolCall) string {
		invoked = true
		return "ok"
	})
	if invoked {
		t.Error("call should not run on a cancelled context")
	}
	if !strings.Contains(results[0], "cancelled") {
		t.Errorf("unexpected result %q", results[0])
	}
}

func TestRoundExecutor_Empty(t *testing.T) {
	if got := NewRoundExecutor().Run(context.Background(), nil, nil); len(got) != 0 {
		t.Errorf("expected no results, got %v", got)
	}
}

func TestRoundExecutor_MetricsSnapshotIsDetached(t *testing.T) {
	e := NewRoundExecutor()
	echo := func(ctx context.Context, call llm.ToolCall) string { return call.Input }

	e.Run(context.Background(), calls("a"), echo)
	before := e.GetMetrics()
	e.Run(context.Background(), calls("b", "c"), echo)

	if before.Rounds != 1 || before.CallsExecuted != 1 {
		t.Errorf("earlier snapshot changed: %+v", before)
	}
	if after := e.GetMetrics(); after.Rounds != 2 || after.CallsExecuted != 3 {
		t.Errorf("unexpected metrics %+v", after)
	}
}
