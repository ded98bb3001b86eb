// Package agrisage is an agricultural advisory agent. It plans with a chat
// model over a fixed set of capabilities (document retrieval, weather,
// market prices and crop disease classification) and keeps per-session
// conversation history.
package agrisage

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/ZanzyTHEbar/agrisage-genkit/internal/eventbus"
	"github.com/ZanzyTHEbar/agrisage-genkit/internal/executor"
	"github.com/ZanzyTHEbar/agrisage-genkit/internal/history"
	"github.com/ZanzyTHEbar/agrisage-genkit/internal/llm"
	"github.com/ZanzyTHEbar/agrisage-genkit/internal/prompt"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

const eventSource = "agrisage"

// AgriSage is the agent orchestrator.
type AgriSage struct {
	model        llm.ChatModel
	capabilities map[string]Capability
	names        []string
	classifier   Capability
	history      HistoryStore
	executor     RoundExecutor
	eventBus     eventbus.EventBus
	config       Config
	now          func() time.Time

	registered []Capability
}

// Option configures AgriSage.
type Option func(*AgriSage)

// WithChatModel sets the planning model. Without one, Handle reports the
// service as unavailable.
func WithChatModel(model llm.ChatModel) Option {
	return func(a *AgriSage) {
		a.model = model
	}
}

// WithCapabilities registers capabilities. The set is fixed once New returns.
func WithCapabilities(caps ...Capability) Option {
	return func(a *AgriSage) {
		a.registered = append(a.registered, caps...)
	}
}

// WithHistory sets the session history store. Defaults to an in-memory store.
func WithHistory(store HistoryStore) Option {
	return func(a *AgriSage) {
		a.history = store
	}
}

// WithExecutor overrides the round executor built from Config.
func WithExecutor(exec RoundExecutor) Option {
	return func(a *AgriSage) {
		a.executor = exec
	}
}

// WithConfig sets orchestrator limits. Zero fields keep their defaults.
func WithConfig(cfg Config) Option {
	return func(a *AgriSage) {
		if cfg.MaxRounds > 0 {
			a.config.MaxRounds = cfg.MaxRounds
		}
		if cfg.MaxConcurrentCapabilities > 0 {
			a.config.MaxConcurrentCapabilities = cfg.MaxConcurrentCapabilities
		}
		if cfg.CapabilityTimeout > 0 {
			a.config.CapabilityTimeout = cfg.CapabilityTimeout
		}
	}
}

// WithClock sets the clock used for the date stamp of each request.
func WithClock(now func() time.Time) Option {
	return func(a *AgriSage) {
		a.now = now
	}
}

// New creates an orchestrator. It fails when a capability is nil, unnamed,
// of an unknown kind, or registered twice, or when more than one classifier
// is given.
func New(opts ...Option) (*AgriSage, error) {
	a := &AgriSage{
		capabilities: make(map[string]Capability),
		config:       DefaultConfig(),
		now:          time.Now,
	}
	for _, opt := range opts {
		opt(a)
	}

	for i, c := range a.registered {
		if c == nil {
			return nil, NewConfigurationError(fmt.Sprintf("capability #%d is nil", i), nil)
		}
		name := c.Name()
		if name == "" {
			return nil, NewConfigurationError(fmt.Sprintf("capability #%d has no name", i), nil)
		}
		if !c.Kind().Valid() {
			return nil, NewConfigurationError(fmt.Sprintf("capability '%s' has unknown kind '%s'", name, c.Kind()), nil)
		}
		if _, dup := a.capabilities[name]; dup {
			return nil, NewConfigurationError(fmt.Sprintf("capability '%s' registered twice", name), nil)
		}
		if c.Kind() == KindClassifier {
			if a.classifier != nil {
				return nil, NewConfigurationError("only one classifier capability may be registered", nil)
			}
			a.classifier = c
		}
		a.capabilities[name] = c
		a.names = append(a.names, name)
	}
	sort.Strings(a.names)
	a.registered = nil

	if a.history == nil {
		a.history = history.NewMemoryStore()
	}
	if a.executor == nil {
		a.executor = executor.NewRoundExecutor(
			executor.WithMaxWorkers(a.config.MaxConcurrentCapabilities),
			executor.WithCallTimeout(a.config.CapabilityTimeout),
		)
	}

	log.Info().
		Strs("capabilities", a.names).
		Str("model", a.modelName()).
		Int("max_rounds", a.config.MaxRounds).
		Msg("agrisage initialized")
	return a, nil
}

// Handle answers one user turn.
func (a *AgriSage) Handle(ctx context.Context, req Request) (*Response, error) {
	if strings.TrimSpace(req.Text) == "" && strings.TrimSpace(req.ImageRef) == "" {
		return nil, NewInvalidInputError("either text or an image is required")
	}
	if strings.TrimSpace(req.SessionID) == "" {
		return nil, NewInvalidInputError("session_id is required")
	}
	if a.model == nil {
		return nil, NewServiceUnavailableError("chat model is not available", nil)
	}

	pCtx := NewProcessContext(uuid.NewString(), req)
	logger := log.With().Str("session_id", req.SessionID).Str("request_id", pCtx.RequestID).Logger()
	eventbus.Emit(ctx, a.eventBus, eventbus.EventRequestStarted, eventSource, map[string]interface{}{
		"session_id": req.SessionID,
		"request_id": pCtx.RequestID,
		"has_image":  req.ImageRef != "",
	})

	answer, err := a.createStateMachine().Execute(ctx, pCtx)
	if err != nil {
		eventbus.Emit(context.WithoutCancel(ctx), a.eventBus, eventbus.EventRequestFailure, eventSource, map[string]interface{}{
			"session_id": req.SessionID,
			"request_id": pCtx.RequestID,
			"stage":      pCtx.ErrorStage,
			"error_code": ErrorCode(err),
			"duration":   pCtx.GetTotalDuration(),
		})
		if IsCancelled(err) {
			logger.Warn().Str("stage", pCtx.ErrorStage).Msg("request cancelled")
		} else {
			logger.Error().Err(err).Str("stage", pCtx.ErrorStage).Msg("request failed")
		}
		return nil, err
	}

	if err := a.history.Append(ctx, req.SessionID,
		llm.UserMessage(prompt.HistoryEntry(req.Text)),
		llm.AssistantMessage(answer),
	); err != nil {
		logger.Warn().Err(err).Msg("failed to record history")
	}

	eventbus.Emit(ctx, a.eventBus, eventbus.EventRequestSuccess, eventSource, map[string]interface{}{
		"session_id": req.SessionID,
		"request_id": pCtx.RequestID,
		"rounds":     pCtx.Round,
		"tool_calls": pCtx.ToolCalls,
		"duration":   pCtx.GetTotalDuration(),
	})
	logger.Info().Int("rounds", pCtx.Round).Int("tool_calls", pCtx.ToolCalls).Dur("duration", pCtx.GetTotalDuration()).Msg("request answered")

	return &Response{Answer: answer, SessionID: req.SessionID}, nil
}

// Health reports the model and the registered capability names.
func (a *AgriSage) Health(ctx context.Context) HealthReport {
	return HealthReport{
		Status:   "active",
		LLMModel: a.modelName(),
		Tools:    append([]string{}, a.names...),
	}
}

// Capabilities returns the registered capabilities sorted by name.
func (a *AgriSage) Capabilities() []Capability {
	out := make([]Capability, 0, len(a.names))
	for _, name := range a.names {
		out = append(out, a.capabilities[name])
	}
	return out
}

func (a *AgriSage) modelName() string {
	if a.model == nil || a.model.Name() == "" {
		return "unavailable"
	}
	return a.model.Name()
}

func (a *AgriSage) toolSpecs() []llm.ToolSpec {
	specs := make([]llm.ToolSpec, 0, len(a.names))
	for _, c := range a.Capabilities() {
		specs = append(specs, llm.ToolSpec{
			Name:         c.Name(),
			Description:  c.Description(),
			ArgumentHint: c.ArgumentHint(),
		})
	}
	return specs
}

// invoke runs one model-requested call. Unknown names and panicking
// capabilities become error text for the model.
func (a *AgriSage) invoke(ctx context.Context, call llm.ToolCall) (result string) {
	c, ok := a.capabilities[call.Name]
	if !ok {
		return fmt.Sprintf("Error: unknown tool '%s'. Available tools: %s", call.Name, strings.Join(a.names, ", "))
	}
	defer func() {
		if r := recover(); r != nil {
			log.Warn().Str("tool", call.Name).Interface("panic", r).Msg("capability panicked")
			result = fmt.Sprintf("Error in %s: %v", call.Name, NewCapabilityError(call.Name, fmt.Errorf("panic: %v", r)))
		}
	}()
	return c.Invoke(ctx, call.Input)
}
