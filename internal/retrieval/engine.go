package retrieval

import (
	"context"
	"errors"

	agrisage "github.com/ZanzyTHEbar/agrisage-genkit"
	"github.com/ZanzyTHEbar/agrisage-genkit/internal/adapters"
	"github.com/ZanzyTHEbar/agrisage-genkit/internal/eventbus"
	"github.com/rs/zerolog/log"
)

// Messages returned by Retrieve.
const (
	IndexMissingMessage = "❌ Error: The document database index is missing. Please ask the administrator to build it."
	IndexBrokenMessage  = "❌ Error: Could not load the document database due to an internal error."
	NoResultsMessage    = "No relevant information found in the knowledge base."
	SearchErrorMessage  = "Sorry, I encountered an error while searching my knowledge base."

	// CapabilityName is the tool name shown to the model.
	CapabilityName = "CropInfoRetriever"

	description  = "Use this tool for any questions about crop cultivation, farming techniques, plant diseases, soil data and agricultural practices."
	argumentHint = "The crop name or topic to look up, e.g. 'late blight in tomato' or 'soil data for Nadia'."
)

// Engine wraps a primary searcher with a keyword fallback.
type Engine struct {
	searcher Searcher
	loadErr  error
	fallback Searcher
	k        int
	bus      eventbus.EventBus
}

// EngineOption configures an Engine.
type EngineOption func(*Engine)

// WithLoadError records why the primary index could not be opened.
func WithLoadError(err error) EngineOption {
	return func(e *Engine) {
		e.loadErr = err
	}
}

// WithFallback sets the searcher consulted when the primary finds nothing.
func WithFallback(fallback Searcher) EngineOption {
	return func(e *Engine) {
		e.fallback = fallback
	}
}

// WithK sets the number of hits per query.
func WithK(k int) EngineOption {
	return func(e *Engine) {
		if k > 0 {
			e.k = k
		}
	}
}

// WithEventBus publishes a retrieval_fallback event whenever the fallback
// runs.
func WithEventBus(bus eventbus.EventBus) EngineOption {
	return func(e *Engine) {
		e.bus = bus
	}
}

// NewEngine creates an Engine. A nil searcher is reported as a missing index.
func NewEngine(searcher Searcher, opts ...EngineOption) *Engine {
	e := &Engine{searcher: searcher, k: DefaultK}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Retrieve returns formatted hits for query or one of the fixed messages.
func (e *Engine) Retrieve(ctx context.Context, query string) string {
	if e.loadErr != nil || e.searcher == nil {
		if e.loadErr == nil || errors.Is(e.loadErr, ErrIndexMissing) {
			return IndexMissingMessage
		}
		return IndexBrokenMessage
	}

	docs, err := e.searcher.Search(ctx, query, e.k)
	if err != nil {
		log.Error().Err(err).Str("query", query).Msg("retrieval failed")
		return SearchErrorMessage
	}
	if len(docs) > 0 {
		return Format(docs)
	}

	log.Warn().Str("query", query).Msg("no results from index, checking fallback documents")
	eventbus.Emit(ctx, e.bus, eventbus.EventRetrievalFallback, "retrieval", map[string]interface{}{
		"tool": CapabilityName,
	})
	if e.fallback == nil {
		return NoResultsMessage
	}
	docs, err = e.fallback.Search(ctx, query, e.k)
	if err != nil {
		log.Warn().Err(err).Str("query", query).Msg("fallback search failed")
		return NoResultsMessage
	}
	if len(docs) == 0 {
		return NoResultsMessage
	}
	return Format(docs)
}

// Capability exposes the engine as the CropInfoRetriever capability.
func (e *Engine) Capability(opts ...adapters.CapabilityOption) *adapters.FuncCapability {
	opts = append([]adapters.CapabilityOption{
		adapters.WithDescription(description),
		adapters.WithArgumentHint(argumentHint),
		adapters.WithValidator(adapters.NotEmpty),
	}, opts...)
	return adapters.NewCapability(CapabilityName, agrisage.KindRetrieval, func(ctx context.Context, argument string) (string, error) {
		return e.Retrieve(ctx, argument), nil
	}, opts...)
}
