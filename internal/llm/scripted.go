package llm

import (
	"context"
	"errors"
	"sync"
)

// ScriptedModel returns a pre-defined sequence of responses. It records every
// request it receives so tests can inspect the working context.
type ScriptedModel struct {
	mu        sync.Mutex
	ModelName string
	Responses []*Response
	Err       error
	Requests  []Request
}

// NewScriptedModel creates a ScriptedModel that replays responses in order.
func NewScriptedModel(responses ...*Response) *ScriptedModel {
	return &ScriptedModel{ModelName: "scripted", Responses: responses}
}

func (s *ScriptedModel) Name() string { return s.ModelName }

// Chat pops the next scripted response or returns the configured error.
func (s *ScriptedModel) Chat(ctx context.Context, req Request) (*Response, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cp := req
	cp.Messages = append([]Message(nil), req.Messages...)
	s.Requests = append(s.Requests, cp)

	if s.Err != nil {
		return nil, s.Err
	}
	if len(s.Responses) == 0 {
		return nil, errors.New("scripted model: no more responses available")
	}

	resp := s.Responses[0]
	s.Responses = s.Responses[1:]
	return resp, nil
}

// Calls returns the number of Chat invocations so far.
func (s *ScriptedModel) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.Requests)
}
