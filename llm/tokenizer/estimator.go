package tokenizer

import "strings"

// TokensPerWord is the conservative multiplier applied to whitespace-split
// word counts. Real tokenizers produce closer to 1.3 tokens per English
// word; the overestimate makes the context-window check err toward
// truncating early rather than overflowing the upstream model.
const TokensPerWord = 4

// Estimator is a word-count-based token estimator.
type Estimator struct {
	model     string
	maxTokens int
}

// NewEstimator creates a generic word-count estimator.
func NewEstimator(model string, maxTokens int) *Estimator {
	if maxTokens <= 0 {
		maxTokens = 4096
	}
	return &Estimator{model: model, maxTokens: maxTokens}
}

// EstimateText returns the conservative token estimate for a single string.
func EstimateText(text string) int {
	return len(strings.Fields(text)) * TokensPerWord
}

func (e *Estimator) CountTokens(text string) (int, error) {
	return EstimateText(text), nil
}

func (e *Estimator) CountMessages(messages []Message) (int, error) {
	total := 0
	for _, msg := range messages {
		total += EstimateText(msg.Content)
	}
	return total, nil
}

func (e *Estimator) MaxTokens() int {
	return e.maxTokens
}

func (e *Estimator) Name() string {
	return "word-estimator"
}
