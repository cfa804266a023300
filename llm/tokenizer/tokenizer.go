// Package tokenizer provides token counting for context-window accounting
// and usage metrics. Exact counts come from tiktoken for OpenAI-family
// models; everything else falls back to a deliberately conservative
// word-count estimator.
package tokenizer

// Tokenizer is the unified token counting interface.
type Tokenizer interface {
	// CountTokens returns the token count for the given text.
	CountTokens(text string) (int, error)

	// CountMessages returns the total token count for a message list,
	// including per-message overhead (role markers, separators).
	CountMessages(messages []Message) (int, error)

	// MaxTokens returns the model's maximum context length.
	MaxTokens() int

	// Name returns the tokenizer's name.
	Name() string
}

// Message is a lightweight message structure used by the tokenizer
// package to avoid a circular dependency on the llm package.
type Message struct {
	Role    string
	Content string
}

// ForModel returns the exact tiktoken tokenizer for OpenAI-family
// models (matched by prefix) and the word-count estimator for
// everything else. Callers hold the result; there is no global
// registry.
func ForModel(model string) Tokenizer {
	if info, ok := lookupEncoding(model); ok {
		return newTiktokenTokenizer(model, info)
	}
	return NewEstimator(model, 0)
}
