package tokenizer

import (
	"fmt"
	"sync"

	"github.com/pkoukk/tiktoken-go"
)

// TiktokenTokenizer wraps tiktoken for OpenAI-family models.
type TiktokenTokenizer struct {
	model     string
	encoding  string
	maxTokens int
	enc       *tiktoken.Tiktoken
	once      sync.Once
	initErr   error
}

type encodingInfo struct {
	encoding  string
	maxTokens int
}

// modelEncodings maps model names to their tiktoken encoding and context size.
var modelEncodings = map[string]encodingInfo{
	"gpt-4o":        {encoding: "o200k_base", maxTokens: 128000},
	"gpt-4o-mini":   {encoding: "o200k_base", maxTokens: 128000},
	"gpt-4-turbo":   {encoding: "cl100k_base", maxTokens: 128000},
	"gpt-4":         {encoding: "cl100k_base", maxTokens: 8192},
	"gpt-3.5-turbo": {encoding: "cl100k_base", maxTokens: 16385},
}

// lookupEncoding resolves a model to its encoding, trying exact match
// first and then the longest matching prefix (so "gpt-4o-2024-11-20"
// hits "gpt-4o", not "gpt-4").
func lookupEncoding(model string) (encodingInfo, bool) {
	if info, ok := modelEncodings[model]; ok {
		return info, true
	}
	var best string
	var found encodingInfo
	for prefix, info := range modelEncodings {
		if len(model) >= len(prefix) && model[:len(prefix)] == prefix && len(prefix) > len(best) {
			best = prefix
			found = info
		}
	}
	return found, best != ""
}

func newTiktokenTokenizer(model string, info encodingInfo) *TiktokenTokenizer {
	return &TiktokenTokenizer{
		model:     model,
		encoding:  info.encoding,
		maxTokens: info.maxTokens,
	}
}

// NewTiktokenTokenizer creates a tiktoken-backed tokenizer for the given
// model, defaulting unknown models to cl100k_base.
func NewTiktokenTokenizer(model string) (*TiktokenTokenizer, error) {
	info, ok := lookupEncoding(model)
	if !ok {
		info = encodingInfo{encoding: "cl100k_base", maxTokens: 8192}
	}
	return newTiktokenTokenizer(model, info), nil
}

// init lazily initializes the tiktoken encoding (first use may download data).
func (t *TiktokenTokenizer) init() error {
	t.once.Do(func() {
		enc, err := tiktoken.GetEncoding(t.encoding)
		if err != nil {
			t.initErr = fmt.Errorf("init tiktoken encoding %s: %w", t.encoding, err)
			return
		}
		t.enc = enc
	})
	return t.initErr
}

func (t *TiktokenTokenizer) CountTokens(text string) (int, error) {
	if err := t.init(); err != nil {
		return 0, err
	}
	return len(t.enc.Encode(text, nil, nil)), nil
}

func (t *TiktokenTokenizer) CountMessages(messages []Message) (int, error) {
	if err := t.init(); err != nil {
		return 0, err
	}
	total := 0
	for _, msg := range messages {
		// Per-message overhead: <|start|>role\n content<|end|>\n
		total += 4
		total += len(t.enc.Encode(msg.Content, nil, nil))
		total += len(t.enc.Encode(msg.Role, nil, nil))
	}
	total += 3 // conversation-end overhead
	return total, nil
}

func (t *TiktokenTokenizer) MaxTokens() int {
	return t.maxTokens
}

func (t *TiktokenTokenizer) Name() string {
	return fmt.Sprintf("tiktoken[%s]", t.encoding)
}
