package agrisage

import (
	"context"

	"github.com/ZanzyTHEbar/agrisage-genkit/internal/llm"
)

// Kind identifies one of the fixed capability variants.
type Kind string

const (
	KindRetrieval  Kind = "retrieval"
	KindWeather    Kind = "weather"
	KindMarket     Kind = "market"
	KindClassifier Kind = "classifier"
)

// Valid reports whether k is a known variant.
func (k Kind) Valid() bool {
	switch k {
	case KindRetrieval, KindWeather, KindMarket, KindClassifier:
		return true
	}
	return false
}

// Capability is a named text-in, text-out operation the model can invoke.
// Invoke never fails: faults are described in the returned text.
type Capability interface {
	Name() string
	// Description is the usage hint the model plans with.
	Description() string
	// ArgumentHint documents the expected argument text.
	ArgumentHint() string
	Kind() Kind
	Invoke(ctx context.Context, argument string) string
}

// HistoryStore holds the ordered per-session conversation log.
type HistoryStore interface {
	// Get returns the session history, creating an empty one on first use.
	Get(ctx context.Context, sessionID string) ([]llm.Message, error)
	// Append adds messages at the end of the session history, in order.
	Append(ctx context.Context, sessionID string, messages ...llm.Message) error
}

// RoundExecutor dispatches the capability calls of one planning round.
type RoundExecutor interface {
	Run(ctx context.Context, calls []llm.ToolCall, invoke func(ctx context.Context, call llm.ToolCall) string) []string
}
