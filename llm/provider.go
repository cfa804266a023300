// Package llm defines the provider abstraction the gateway streams
// completions through. Tool calls travel inside ChatRequest.Tools; the
// provider surfaces them back as streamed tool-call fragments, and the
// actual execution is handled by the tools package.
package llm

import (
	"context"
	"time"

	"github.com/mindpattern/voicegate/types"
)

// ChatRequest is a provider-agnostic chat completion request.
type ChatRequest struct {
	TraceID     string             `json:"trace_id,omitempty"`
	Model       string             `json:"model"`
	Messages    []types.Message    `json:"messages"`
	MaxTokens   int                `json:"max_tokens,omitempty"`
	Temperature float32            `json:"temperature,omitempty"`
	TopP        float32            `json:"top_p,omitempty"`
	Stop        []string           `json:"stop,omitempty"`
	Tools       []types.ToolSchema `json:"tools,omitempty"`
	ToolChoice  string             `json:"tool_choice,omitempty"` // auto/none/<tool name>
	Timeout     time.Duration      `json:"timeout,omitempty"`
	Metadata    map[string]string  `json:"metadata,omitempty"`
}

type ChatUsage struct {
	PromptTokens     int `json:"prompt_tokens,omitempty"`
	CompletionTokens int `json:"completion_tokens,omitempty"`
	TotalTokens      int `json:"total_tokens,omitempty"`
}

type ChatChoice struct {
	Index        int           `json:"index"`
	FinishReason string        `json:"finish_reason,omitempty"`
	Message      types.Message `json:"message"`
}

type ChatResponse struct {
	ID        string       `json:"id,omitempty"`
	Provider  string       `json:"provider,omitempty"`
	Model     string       `json:"model"`
	Choices   []ChatChoice `json:"choices"`
	Usage     ChatUsage    `json:"usage,omitempty"`
	CreatedAt time.Time    `json:"created_at,omitempty"`
}

// StreamChunk is one increment of a streamed completion. Delta carries
// either text content or tool-call fragments; both may appear in the
// same chunk. The final chunk may carry Usage. A chunk with Err set
// terminates the stream abnormally.
type StreamChunk struct {
	ID           string        `json:"id,omitempty"`
	Provider     string        `json:"provider,omitempty"`
	Model        string        `json:"model,omitempty"`
	Index        int           `json:"index,omitempty"`
	Delta        types.Message `json:"delta"`
	FinishReason string        `json:"finish_reason,omitempty"`
	Usage        *ChatUsage    `json:"usage,omitempty"`
	Err          *types.Error  `json:"error,omitempty"`
}

// HealthStatus reports the result of a provider health probe.
type HealthStatus struct {
	Healthy bool          `json:"healthy"`
	Latency time.Duration `json:"latency"`
}

// Provider is the unified adapter interface for upstream LLM services.
type Provider interface {
	// Completion issues a synchronous chat request and returns the full response.
	Completion(ctx context.Context, req *ChatRequest) (*ChatResponse, error)

	// Stream issues a streaming chat request and returns a channel of
	// incremental chunks. The channel is closed when the upstream stream
	// ends; abnormal termination is delivered as a chunk with Err set.
	Stream(ctx context.Context, req *ChatRequest) (<-chan StreamChunk, error)

	// HealthCheck performs a lightweight liveness probe against the upstream.
	HealthCheck(ctx context.Context) (*HealthStatus, error)

	// Name returns the provider's unique identifier.
	Name() string
}
