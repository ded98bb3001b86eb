// Package llm defines the chat model contract used by the orchestrator and
// its provider implementations.
package llm

import "context"

// Role represents the role of a message sender.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// ToolSpec describes a capability to the model. Every capability takes a
// single free-text argument named "input".
type ToolSpec struct {
	Name        string
	Description string
	// ArgumentHint documents what the input string should contain.
	ArgumentHint string
}

// ToolCall is a request from the model to invoke a capability.
type ToolCall struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Input string `json:"input"`
}

// Message is a single entry of the model's working context.
type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
	// ToolCalls is set on assistant messages that requested capabilities.
	ToolCalls []ToolCall `json:"tool_calls,omitempty"`
	// ToolCallID and ToolName are set on tool messages.
	ToolCallID string `json:"tool_call_id,omitempty"`
	ToolName   string `json:"tool_name,omitempty"`
}

// Request encapsulates one model call.
type Request struct {
	System   string
	Messages []Message
	Tools    []ToolSpec
}

// Response is the model output. A response without tool calls is final.
type Response struct {
	Content   string
	ToolCalls []ToolCall
}

// Final reports whether the model signalled a final answer.
func (r *Response) Final() bool {
	return r != nil && len(r.ToolCalls) == 0
}

// ChatModel is implemented by every model provider.
type ChatModel interface {
	// Name returns the provider model identifier reported by health checks.
	Name() string
	Chat(ctx context.Context, req Request) (*Response, error)
}

// UserMessage is a convenience constructor.
func UserMessage(content string) Message {
	return Message{Role: RoleUser, Content: content}
}

// AssistantMessage is a convenience constructor.
func AssistantMessage(content string, calls ...ToolCall) Message {
	return Message{Role: RoleAssistant, Content: content, ToolCalls: calls}
}

// ToolMessage carries the text result of one tool call.
func ToolMessage(call ToolCall, result string) Message {
	return Message{Role: RoleTool, Content: result, ToolCallID: call.ID, ToolName: call.Name}
}
