// Package executor dispatches the capability calls requested in one planning
// round.
package executor

import (
	"context"
	"fmt"
	"time"

	"github.com/ZanzyTHEbar/agrisage-genkit/internal/llm"
	"github.com/rs/zerolog/log"
	"github.com/sourcegraph/conc/pool"
)

// InvokeFunc runs one tool call and returns its text result.
type InvokeFunc func(ctx context.Context, call llm.ToolCall) string

// RoundExecutor runs the calls of a round with bounded concurrency. Results
// are returned in request order regardless of completion order.
type RoundExecutor struct {
	maxWorkers  int
	callTimeout time.Duration

	metrics recorder
}

// ExecutorOption represents an option for configuring the RoundExecutor.
type ExecutorOption func(*RoundExecutor)

// WithMaxWorkers caps concurrent calls within a round. 1 runs calls
// sequentially.
func WithMaxWorkers(n int) ExecutorOption {
	return func(e *RoundExecutor) {
		e.maxWorkers = n
	}
}

// WithCallTimeout bounds each call. A call that exceeds it yields a timeout
// text result and the round continues.
func WithCallTimeout(d time.Duration) ExecutorOption {
	return func(e *RoundExecutor) {
		e.callTimeout = d
	}
}

// NewRoundExecutor creates an executor with default settings.
func NewRoundExecutor(options ...ExecutorOption) *RoundExecutor {
	e := &RoundExecutor{
		maxWorkers:  4,
		callTimeout: time.Minute,
	}
	for _, option := range options {
		option(e)
	}
	if e.maxWorkers < 1 {
		e.maxWorkers = 1
	}
	return e
}

// Run executes calls and returns one result per call, in order.
func (e *RoundExecutor) Run(ctx context.Context, calls []llm.ToolCall, invoke func(ctx context.Context, call llm.ToolCall) string) []string {
	results := make([]string, len(calls))
	if len(calls) == 0 {
		return results
	}

	start := time.Now()
	p := pool.New().WithMaxGoroutines(e.maxWorkers)
	for i, call := range calls {
		p.Go(func() {
			results[i] = e.runOne(ctx, call, invoke)
		})
	}
	p.Wait()

	e.metrics.recordRound(len(calls), time.Since(start))
	log.Debug().Int("calls", len(calls)).Dur("duration", time.Since(start)).Msg("round executed")
	return results
}

func (e *RoundExecutor) runOne(ctx context.Context, call llm.ToolCall, invoke func(ctx context.Context, call llm.ToolCall) string) string {
	if err := ctx.Err(); err != nil {
		return fmt.Sprintf("Error in %s: request cancelled before execution", call.Name)
	}

	callCtx := ctx
	cancel := context.CancelFunc(func() {})
	if e.callTimeout > 0 {
		callCtx, cancel = context.WithTimeout(ctx, e.callTimeout)
	}
	defer cancel()

	done := make(chan string, 1)
	go func() {
		done <- invoke(callCtx, call)
	}()

	select {
	case out := <-done:
		e.metrics.recordCall(false)
		return out
	case <-callCtx.Done():
		e.metrics.recordCall(true)
		log.Warn().Str("tool", call.Name).Dur("timeout", e.callTimeout).Msg("capability call timed out")
		return fmt.Sprintf("Error in %s: the call did not complete in time (%v)", call.Name, callCtx.Err())
	}
}

// GetMetrics returns a snapshot of execution statistics.
func (e *RoundExecutor) GetMetrics() Metrics {
	return e.metrics.snapshot()
}
