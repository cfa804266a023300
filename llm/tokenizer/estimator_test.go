package tokenizer

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"pgregory.net/rapid"
)

func TestEstimateText(t *testing.T) {
	tests := []struct {
		name string
		text string
		want int
	}{
		{"empty", "", 0},
		{"single word", "hello", 4},
		{"sentence", "what is the weather today", 20},
		{"extra whitespace", "  a \t b \n c  ", 12},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, EstimateText(tt.text))
		})
	}
}

func TestEstimatorCountMessages(t *testing.T) {
	e := NewEstimator("some-model", 0)
	got, err := e.CountMessages([]Message{
		{Role: "system", Content: "you are helpful"},
		{Role: "user", Content: "hi there"},
	})
	assert.NoError(t, err)
	assert.Equal(t, 5*TokensPerWord, got)
	assert.Equal(t, 4096, e.MaxTokens())
}

func TestEstimateTextProperties(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		words := rapid.SliceOfN(rapid.StringMatching(`[a-z]{1,12}`), 0, 50).Draw(t, "words")
		text := strings.Join(words, " ")
		assert.Equal(t, len(words)*TokensPerWord, EstimateText(text))
	})
}

func TestForModel(t *testing.T) {
	tests := []struct {
		model    string
		wantName string
		wantMax  int
	}{
		{"gpt-4o-mini", "tiktoken[o200k_base]", 128000},
		{"gpt-4o-2024-11-20", "tiktoken[o200k_base]", 128000},
		{"gpt-4", "tiktoken[cl100k_base]", 8192},
		{"totally-unknown-model", "word-estimator", 4096},
	}
	for _, tt := range tests {
		t.Run(tt.model, func(t *testing.T) {
			tok := ForModel(tt.model)
			assert.Equal(t, tt.wantName, tok.Name())
			assert.Equal(t, tt.wantMax, tok.MaxTokens())
		})
	}
}

func TestLookupEncodingPrefersLongestPrefix(t *testing.T) {
	info, ok := lookupEncoding("gpt-4o-mini-2024-07-18")
	assert.True(t, ok)
	assert.Equal(t, "o200k_base", info.encoding)
}
