package agrisage

import "time"

// Request is one user turn.
type Request struct {
	SessionID string `json:"session_id"`
	Text      string `json:"text,omitempty"`
	// ImageRef is a served path such as /uploads/x.jpg or an http(s) URL.
	ImageRef string `json:"image_ref,omitempty"`
	Location string `json:"location,omitempty"`
}

// Response carries the synthesized answer.
type Response struct {
	Answer    string `json:"answer"`
	SessionID string `json:"session_id"`
}

// HealthReport is returned by Health.
type HealthReport struct {
	Status   string   `json:"status"`
	LLMModel string   `json:"llm_model"`
	Tools    []string `json:"tools"`
}

// Config holds orchestrator limits.
type Config struct {
	// MaxRounds bounds the planning rounds of one request. Once reached, a
	// last call without tools forces the final answer.
	MaxRounds int
	// MaxConcurrentCapabilities bounds parallel calls within one round.
	MaxConcurrentCapabilities int
	// CapabilityTimeout bounds each capability call.
	CapabilityTimeout time.Duration
}

// DefaultConfig returns the default orchestrator limits.
func DefaultConfig() Config {
	return Config{
		MaxRounds:                 6,
		MaxConcurrentCapabilities: 4,
		CapabilityTimeout:         60 * time.Second,
	}
}
