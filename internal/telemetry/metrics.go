// Package telemetry turns event bus traffic into prometheus metrics and
// debug logs.
package telemetry

import (
	"context"
	"net/http"

	"github.com/ZanzyTHEbar/agrisage-genkit/internal/eventbus"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
)

const namespace = "agrisage"

// Metrics holds the collectors on a private registry.
type Metrics struct {
	registry *prometheus.Registry

	requests          *prometheus.CounterVec
	requestDuration   prometheus.Histogram
	rounds            prometheus.Histogram
	roundLimit        prometheus.Counter
	capabilityCalls   *prometheus.CounterVec
	capabilityTiming  *prometheus.HistogramVec
	cacheEvents       *prometheus.CounterVec
	retrievalFallback prometheus.Counter
}

// NewMetrics creates and registers the collectors, including the Go and
// process collectors.
func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "requests_total",
			Help:      "Handled chat requests by outcome.",
		}, []string{"outcome", "code"}),
		requestDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "request_duration_seconds",
			Help:      "End-to-end request latency.",
			Buckets:   []float64{0.5, 1, 2, 5, 10, 20, 40, 80},
		}),
		rounds: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "planning_rounds",
			Help:      "Planning rounds used per successful request.",
			Buckets:   prometheus.LinearBuckets(1, 1, 8),
		}),
		roundLimit: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "round_limit_reached_total",
			Help:      "Requests that exhausted the planning round budget.",
		}),
		capabilityCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "capability_calls_total",
			Help:      "Capability invocations by tool and outcome.",
		}, []string{"tool", "outcome"}),
		capabilityTiming: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "capability_duration_seconds",
			Help:      "Capability latency by tool.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"tool"}),
		cacheEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_events_total",
			Help:      "Lookup cache hits, misses, stale reads and IO errors.",
		}, []string{"cache", "event"}),
		retrievalFallback: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "retrieval_fallback_total",
			Help:      "Retrievals answered from the static fallback set.",
		}),
	}
	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.requests, m.requestDuration, m.rounds, m.roundLimit,
		m.capabilityCalls, m.capabilityTiming, m.cacheEvents, m.retrievalFallback,
	)
	return m
}

// Registry exposes the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// Handler serves the registry in the prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Attach subscribes the metrics to every event on bus.
func (m *Metrics) Attach(bus eventbus.EventBus) (string, error) {
	return bus.SubscribeAll(m.Observe)
}

// Observe updates collectors for one event.
func (m *Metrics) Observe(_ context.Context, e eventbus.Event) error {
	switch e.Type() {
	case eventbus.EventRequestSuccess:
		m.requests.WithLabelValues("success", "OK").Inc()
		m.requestDuration.Observe(eventbus.MetaFloat(e, "duration"))
		m.rounds.Observe(eventbus.MetaFloat(e, "rounds"))
	case eventbus.EventRequestFailure:
		m.requests.WithLabelValues("failure", eventbus.MetaString(e, "error_code")).Inc()
		m.requestDuration.Observe(eventbus.MetaFloat(e, "duration"))
	case eventbus.EventRoundLimitReached:
		m.roundLimit.Inc()
	case eventbus.EventCapabilitySuccess, eventbus.EventCapabilityFailure:
		tool := eventbus.MetaString(e, "tool")
		outcome := "success"
		if e.Type() == eventbus.EventCapabilityFailure {
			outcome = "failure"
		}
		m.capabilityCalls.WithLabelValues(tool, outcome).Inc()
		m.capabilityTiming.WithLabelValues(tool).Observe(eventbus.MetaFloat(e, "duration"))
	case eventbus.EventCacheHit, eventbus.EventCacheMiss, eventbus.EventCacheStale, eventbus.EventCacheIOError:
		m.cacheEvents.WithLabelValues(eventbus.MetaString(e, "cache"), string(e.Type())).Inc()
	case eventbus.EventRetrievalFallback:
		m.retrievalFallback.Inc()
	}
	return nil
}

// AttachLogger logs every event at debug level.
func AttachLogger(bus eventbus.EventBus) (string, error) {
	return bus.SubscribeAll(func(_ context.Context, e eventbus.Event) error {
		log.Debug().
			Str("event", string(e.Type())).
			Str("source", e.Source()).
			Fields(e.Metadata()).
			Msg("event")
		return nil
	})
}
