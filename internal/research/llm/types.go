// Package llm is a minimal OpenAI-compatible chat completion client used by
// the research adapters.
package llm

import (
	"context"
	"time"
)

// Message is one chat message.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// CompletionRequest is a single non-streaming chat completion call.
type CompletionRequest struct {
	Messages    []Message
	Temperature float64
	MaxTokens   int
	// JSONMode asks the provider for a JSON object response.
	JSONMode bool
}

// TokenUsage reports provider token accounting.
type TokenUsage struct {
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
}

// CompletionResponse is the first choice of a completion.
type CompletionResponse struct {
	Content    string
	StopReason string
	Usage      TokenUsage
}

// Client completes chat requests.
type Client interface {
	Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error)
	Model() string
}

// Config configures the OpenAI-compatible client.
type Config struct {
	BaseURL     string
	APIKey      string
	Model       string
	Timeout     time.Duration
	Temperature float64
	Headers     map[string]string
}

// PromptOptions tunes the prompts built by the research adapters.
type PromptOptions struct {
	Temperature float64
	// MaxPromptTokens caps the evidence embedded in a prompt; 0 disables.
	MaxPromptTokens int
}
