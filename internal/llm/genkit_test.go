package llm

import (
	"context"
	"testing"

	"github.com/firebase/genkit/go/ai"
	"github.com/firebase/genkit/go/genkit"
)

func newFakeGenkit(t *testing.T, reply *ai.Message, seen **ai.ModelRequest) *GenkitModel {
	t.Helper()
	g, err := genkit.Init(context.Background())
	if err != nil {
		t.Fatalf("genkit init failed: %v", err)
	}
	info := &ai.ModelInfo{Supports: &ai.ModelSupports{Multiturn: true, Tools: true, SystemRole: true}}
	genkit.DefineModel(g, "test", "fake", info,
		func(ctx context.Context, req *ai.ModelRequest, cb ai.ModelStreamCallback) (*ai.ModelResponse, error) {
			*seen = req
			return &ai.ModelResponse{Request: req, Message: reply, FinishReason: ai.FinishReasonStop}, nil
		})
	return NewGenkitModel(g, "fake", WithProvider("test"))
}

func TestGenkitModel_ReturnsToolRequests(t *testing.T) {
	var seen *ai.ModelRequest
	reply := &ai.Message{Role: ai.RoleModel, Content: []*ai.Part{
		ai.NewToolRequestPart(&ai.ToolRequest{Name: "WeatherInfo", Ref: "r1", Input: map[string]any{"input": "Kharagpur"}}),
		ai.NewToolRequestPart(&ai.ToolRequest{Name: "MarketInfo", Input: map[string]any{"input": `{"commodity":"rice"}`}}),
	}}
	m := newFakeGenkit(t, reply, &seen)

	resp, err := m.Chat(context.Background(), Request{
		System:   "be brief",
		Messages: []Message{UserMessage("weather and rice price?")},
		Tools: []ToolSpec{
			{Name: "WeatherInfo", Description: "weather", ArgumentHint: "city"},
			{Name: "MarketInfo", Description: "prices"},
		},
	})
	if err != nil {
		t.Fatalf("Chat failed: %v", err)
	}
	if resp.Final() || len(resp.ToolCalls) != 2 {
		t.Fatalf("expected two tool calls, got %+v", resp)
	}
	if got := resp.ToolCalls[0]; got.ID != "r1" || got.Name != "WeatherInfo" || got.Input != "Kharagpur" {
		t.Errorf("unexpected first call %+v", got)
	}
	if got := resp.ToolCalls[1]; got.ID != "MarketInfo-1" || got.Input != `{"commodity":"rice"}` {
		t.Errorf("unexpected second call %+v", got)
	}
	if seen == nil || len(seen.Tools) != 2 {
		t.Fatalf("expected the model to see two tool definitions, got %+v", seen)
	}
}

func TestGenkitModel_ReplaysToolExchange(t *testing.T) {
	var seen *ai.ModelRequest
	reply := &ai.Message{Role: ai.RoleModel, Content: []*ai.Part{ai.NewTextPart("Clear skies.")}}
	m := newFakeGenkit(t, reply, &seen)

	call := ToolCall{ID: "c1", Name: "WeatherInfo", Input: "Pune"}
	resp, err := m.Chat(context.Background(), Request{Messages: []Message{
		UserMessage("weather in Pune?"),
		AssistantMessage("", call),
		ToolMessage(call, "Temperature: 31C"),
	}})
	if err != nil {
		t.Fatalf("Chat failed: %v", err)
	}
	if !resp.Final() || resp.Content != "Clear skies." {
		t.Errorf("unexpected response %+v", resp)
	}

	var req, res *ai.Part
	for _, msg := range seen.Messages {
		for _, p := range msg.Content {
			if p.IsToolRequest() {
				req = p
			}
			if p.IsToolResponse() {
				res = p
			}
		}
	}
	if req == nil || req.ToolRequest.Ref != "c1" || inputString(req.ToolRequest.Input) != "Pune" {
		t.Errorf("tool request not replayed: %+v", req)
	}
	if res == nil || res.ToolResponse.Ref != "c1" || res.ToolResponse.Name != "WeatherInfo" {
		t.Errorf("tool response not replayed: %+v", res)
	}
}
