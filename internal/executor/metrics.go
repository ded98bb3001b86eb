package executor

import (
	"sync"
	"time"
)

// Metrics is a snapshot of round execution statistics.
type Metrics struct {
	Rounds        int
	CallsExecuted int
	CallsTimedOut int
	TotalDuration time.Duration
	LongestRound  time.Duration
}

// recorder accumulates Metrics under a lock.
type recorder struct {
	mu sync.Mutex
	m  Metrics
}

func (r *recorder) recordRound(calls int, d time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.m.Rounds++
	r.m.TotalDuration += d
	if d > r.m.LongestRound {
		r.m.LongestRound = d
	}
}

func (r *recorder) recordCall(timedOut bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.m.CallsExecuted++
	if timedOut {
		r.m.CallsTimedOut++
	}
}

func (r *recorder) snapshot() Metrics {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.m
}
