package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/firebase/genkit/go/ai"
	"github.com/firebase/genkit/go/genkit"
	"github.com/firebase/genkit/go/plugins/googlegenai"
)

const (
	DefaultGeminiModel    = "gemini-2.0-flash"
	DefaultGeminiEmbedder = "text-embedding-004"

	googleAIProvider = "googleai"
)

// toolInput is the argument shape advertised for every capability.
type toolInput struct {
	Input string `json:"input" jsonschema:"description=Free-text argument for the tool"`
}

// GenkitModel adapts a Genkit model to ChatModel. Tool requests are returned
// to the caller instead of being resolved by Genkit so the orchestrator keeps
// control of the loop.
type GenkitModel struct {
	g           *genkit.Genkit
	provider    string
	modelName   string
	temperature float64

	toolsMu sync.Mutex
	tools   map[string]ai.Tool
}

// GenkitOption configures a GenkitModel.
type GenkitOption func(*GenkitModel)

// WithTemperature overrides the sampling temperature (default 0).
func WithTemperature(t float64) GenkitOption {
	return func(m *GenkitModel) {
		m.temperature = t
	}
}

// WithProvider sets the Genkit provider prefix the model is registered
// under (default "googleai").
func WithProvider(provider string) GenkitOption {
	return func(m *GenkitModel) {
		if provider != "" {
			m.provider = provider
		}
	}
}

// InitGoogleAI initializes Genkit with the Google AI plugin.
func InitGoogleAI(ctx context.Context, apiKey, model string) (*genkit.Genkit, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("google ai api key is not configured")
	}
	if model == "" {
		model = DefaultGeminiModel
	}
	g, err := genkit.Init(ctx,
		genkit.WithPlugins(&googlegenai.GoogleAI{APIKey: apiKey}),
		genkit.WithDefaultModel(googleAIProvider+"/"+model),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize genkit: %w", err)
	}
	return g, nil
}

// NewGenkitModel wraps an initialized Genkit instance.
func NewGenkitModel(g *genkit.Genkit, model string, opts ...GenkitOption) *GenkitModel {
	if model == "" {
		model = DefaultGeminiModel
	}
	m := &GenkitModel{
		g:         g,
		provider:  googleAIProvider,
		modelName: model,
		tools:     make(map[string]ai.Tool),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

func (m *GenkitModel) Name() string { return m.modelName }

// tool returns the Genkit definition for spec, defining it once per name.
func (m *GenkitModel) tool(spec ToolSpec) ai.Tool {
	m.toolsMu.Lock()
	defer m.toolsMu.Unlock()

	if t, ok := m.tools[spec.Name]; ok {
		return t
	}
	desc := spec.Description
	if spec.ArgumentHint != "" {
		desc += "\nInput: " + spec.ArgumentHint
	}
	// Never executed: requests are returned to the orchestrator.
	t := genkit.DefineTool(m.g, spec.Name, desc,
		func(tc *ai.ToolContext, in toolInput) (string, error) {
			return "", fmt.Errorf("tool %s must be resolved by the orchestrator", spec.Name)
		})
	m.tools[spec.Name] = t
	return t
}

// Chat implements ChatModel.
func (m *GenkitModel) Chat(ctx context.Context, req Request) (*Response, error) {
	msgs := make([]*ai.Message, 0, len(req.Messages))
	for _, msg := range req.Messages {
		msgs = append(msgs, toGenkitMessage(msg))
	}

	opts := []ai.GenerateOption{
		ai.WithModelName(m.provider + "/" + m.modelName),
		ai.WithMessages(msgs...),
		ai.WithConfig(&ai.GenerationCommonConfig{Temperature: m.temperature}),
	}
	if req.System != "" {
		opts = append(opts, ai.WithSystem(req.System))
	}
	if len(req.Tools) > 0 {
		refs := make([]ai.ToolRef, 0, len(req.Tools))
		for _, spec := range req.Tools {
			refs = append(refs, m.tool(spec))
		}
		opts = append(opts, ai.WithTools(refs...), ai.WithReturnToolRequests(true))
	}

	resp, err := genkit.Generate(ctx, m.g, opts...)
	if err != nil {
		return nil, fmt.Errorf("genkit generate failed: %w", err)
	}

	trs, err := resp.ToolRequests()
	if err != nil {
		return nil, fmt.Errorf("genkit tool requests: %w", err)
	}
	out := &Response{Content: resp.Text()}
	for i, tr := range trs {
		id := tr.Ref
		if id == "" {
			id = fmt.Sprintf("%s-%d", tr.Name, i)
		}
		out.ToolCalls = append(out.ToolCalls, ToolCall{ID: id, Name: tr.Name, Input: inputString(tr.Input)})
	}
	return out, nil
}

func toGenkitMessage(msg Message) *ai.Message {
	switch msg.Role {
	case RoleAssistant:
		parts := []*ai.Part{}
		if msg.Content != "" {
			parts = append(parts, ai.NewTextPart(msg.Content))
		}
		for _, call := range msg.ToolCalls {
			parts = append(parts, ai.NewToolRequestPart(&ai.ToolRequest{
				Name:  call.Name,
				Ref:   call.ID,
				Input: map[string]any{"input": call.Input},
			}))
		}
		return &ai.Message{Role: ai.RoleModel, Content: parts}
	case RoleTool:
		return &ai.Message{Role: ai.RoleTool, Content: []*ai.Part{
			ai.NewToolResponsePart(&ai.ToolResponse{
				Name:   msg.ToolName,
				Ref:    msg.ToolCallID,
				Output: map[string]any{"result": msg.Content},
			}),
		}}
	default:
		return &ai.Message{Role: ai.RoleUser, Content: []*ai.Part{ai.NewTextPart(msg.Content)}}
	}
}

// inputString flattens a tool request input into the single text argument.
func inputString(in any) string {
	switch v := in.(type) {
	case nil:
		return ""
	case string:
		return v
	case map[string]any:
		if s, ok := v["input"].(string); ok {
			return s
		}
	}
	b, err := json.Marshal(in)
	if err != nil {
		return fmt.Sprint(in)
	}
	return string(b)
}

// GenkitEmbedder embeds text with a Genkit embedder.
type GenkitEmbedder struct {
	embedder ai.Embedder
}

// NewGenkitEmbedder looks up a Google AI embedder by name.
func NewGenkitEmbedder(g *genkit.Genkit, name string) (*GenkitEmbedder, error) {
	if name == "" {
		name = DefaultGeminiEmbedder
	}
	e := googlegenai.GoogleAIEmbedder(g, name)
	if e == nil {
		return nil, fmt.Errorf("embedder %q not found", name)
	}
	return &GenkitEmbedder{embedder: e}, nil
}

// Embed returns one vector per input text, in order.
func (e *GenkitEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	docs := make([]*ai.Document, 0, len(texts))
	for _, t := range texts {
		docs = append(docs, ai.DocumentFromText(t, nil))
	}
	resp, err := e.embedder.Embed(ctx, &ai.EmbedRequest{Input: docs})
	if err != nil {
		return nil, fmt.Errorf("embedding failed: %w", err)
	}
	if len(resp.Embeddings) != len(texts) {
		return nil, fmt.Errorf("embedder returned %d vectors for %d inputs", len(resp.Embeddings), len(texts))
	}
	out := make([][]float32, len(resp.Embeddings))
	for i, emb := range resp.Embeddings {
		out[i] = emb.Embedding
	}
	return out, nil
}
