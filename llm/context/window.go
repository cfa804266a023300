// Package context manages the conversation context window: it estimates
// prompt size against the target model's limit and truncates history
// before a request would overflow upstream.
package context

import (
	"go.uber.org/zap"

	"github.com/mindpattern/voicegate/llm/tokenizer"
	"github.com/mindpattern/voicegate/types"
)

// DefaultMaxTokens is used for models missing from the limits table.
const DefaultMaxTokens = 4096

// minRetainedMessages is the floor on how many non-system messages a
// truncation pass keeps, so short conversations are never gutted.
const minRetainedMessages = 8

// retainRatio is the fraction of non-system messages kept per pass.
const retainRatio = 0.75

// modelLimits maps model names to their context window size in tokens.
var modelLimits = map[string]int{
	"gpt-4o":            128000,
	"gpt-4o-mini":       128000,
	"gpt-4-turbo":       128000,
	"gpt-4":             8192,
	"gpt-3.5-turbo":     16385,
	"claude-3-5-sonnet": 200000,
	"claude-3-opus":     200000,
	"claude-3-haiku":    200000,
}

// ModelLimit returns the context window size for a model, using prefix
// matching and falling back to DefaultMaxTokens for unknown models.
func ModelLimit(model string) int {
	if limit, ok := modelLimits[model]; ok {
		return limit
	}
	for prefix, limit := range modelLimits {
		if len(model) >= len(prefix) && model[:len(prefix)] == prefix {
			return limit
		}
	}
	return DefaultMaxTokens
}

// Window tracks context usage for one model.
type Window struct {
	model     string
	maxTokens int
	logger    *zap.Logger
}

// NewWindow creates a context window sized for the given model.
func NewWindow(model string, logger *zap.Logger) *Window {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Window{
		model:     model,
		maxTokens: ModelLimit(model),
		logger:    logger.With(zap.String("component", "context_window")),
	}
}

// MaxTokens returns the context limit for the window's model.
func (w *Window) MaxTokens() int { return w.maxTokens }

// BufferTokens is the headroom reserved for the model's reply: 10% of
// the window, but never less than 500 tokens.
func (w *Window) BufferTokens() int {
	buffer := w.maxTokens / 10
	if buffer < 500 {
		buffer = 500
	}
	return buffer
}

// EstimateTokens returns the conservative token estimate for a message
// list. Every message contributes, regardless of role, including
// streamed tool-call argument payloads.
func (w *Window) EstimateTokens(messages []types.Message) int {
	total := 0
	for _, m := range messages {
		total += m.WordCount() * tokenizer.TokensPerWord
	}
	return total
}

// ShouldTruncate reports whether the estimated prompt size leaves less
// than the reply buffer inside the model's window.
func (w *Window) ShouldTruncate(messages []types.Message) bool {
	return w.EstimateTokens(messages) > w.maxTokens-w.BufferTokens()
}

// Truncate drops the oldest non-system messages. All system messages
// survive and keep their position at the front; of the rest, the most
// recent 75% are retained (never fewer than eight). Relative order is
// preserved. Truncate never recurses: one pass per call.
func (w *Window) Truncate(messages []types.Message) []types.Message {
	var system, rest []types.Message
	for _, m := range messages {
		if m.IsSystem() {
			system = append(system, m)
		} else {
			rest = append(rest, m)
		}
	}

	keep := int(float64(len(rest)) * retainRatio)
	if keep < minRetainedMessages {
		keep = minRetainedMessages
	}
	if keep >= len(rest) {
		return messages
	}

	dropped := len(rest) - keep
	out := make([]types.Message, 0, len(system)+keep)
	out = append(out, system...)
	out = append(out, rest[dropped:]...)

	w.logger.Info("truncated conversation history",
		zap.String("model", w.model),
		zap.Int("dropped", dropped),
		zap.Int("kept", len(out)),
		zap.Int("estimated_tokens", w.EstimateTokens(out)),
	)
	return out
}
