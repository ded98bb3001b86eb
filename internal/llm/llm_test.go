package llm

import (
	"context"
	"testing"
)

func TestScriptedModel_ReplaysAndRecords(t *testing.T) {
	m := NewScriptedModel(
		&Response{ToolCalls: []ToolCall{{ID: "1", Name: "WeatherInfo", Input: "Pune"}}},
		&Response{Content: "done"},
	)

	first, err := m.Chat(context.Background(), Request{Messages: []Message{UserMessage("hi")}})
	if err != nil {
		t.Fatalf("Chat failed: %v", err)
	}
	if first.Final() {
		t.Errorf("expected first response to carry tool calls")
	}

	second, err := m.Chat(context.Background(), Request{})
	if err != nil {
		t.Fatalf("Chat failed: %v", err)
	}
	if !second.Final() || second.Content != "done" {
		t.Errorf("unexpected second response: %+v", second)
	}

	if _, err := m.Chat(context.Background(), Request{}); err == nil {
		t.Errorf("expected error once responses are exhausted")
	}
	if m.Calls() != 3 {
		t.Errorf("expected 3 recorded calls, got %d", m.Calls())
	}
	if got := m.Requests[0].Messages[0].Content; got != "hi" {
		t.Errorf("expected recorded message 'hi', got %q", got)
	}
}

func TestArgumentInput(t *testing.T) {
	tests := []struct {
		raw  string
		want string
	}{
		{`{"input":"Kharagpur"}`, "Kharagpur"},
		{`{"input":"{\"commodity\":\"rice\"}"}`, `{"commodity":"rice"}`},
		{`not json`, "not json"},
		{`{"other":"x"}`, `{"other":"x"}`},
	}
	for _, tt := range tests {
		if got := argumentInput(tt.raw); got != tt.want {
			t.Errorf("argumentInput(%q) = %q, want %q", tt.raw, got, tt.want)
		}
	}
}

func TestInputString(t *testing.T) {
	if got := inputString(map[string]any{"input": "22.3,87.3"}); got != "22.3,87.3" {
		t.Errorf("unexpected input %q", got)
	}
	if got := inputString("plain"); got != "plain" {
		t.Errorf("unexpected input %q", got)
	}
	if got := inputString(nil); got != "" {
		t.Errorf("expected empty input, got %q", got)
	}
	if got := inputString(map[string]any{"commodity": "rice"}); got != `{"commodity":"rice"}` {
		t.Errorf("unexpected input %q", got)
	}
}
