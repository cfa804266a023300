package openai

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/mindpattern/voicegate/llm"
	"github.com/mindpattern/voicegate/types"
)

func newTestProvider(t *testing.T, handler http.HandlerFunc) *Provider {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return New(Config{BaseURL: srv.URL, APIKey: "test-key", Model: "gpt-4o-mini"}, zap.NewNop())
}

func TestStreamTextDeltas(t *testing.T) {
	p := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprint(w, "data: {\"id\":\"c1\",\"model\":\"gpt-4o-mini\",\"choices\":[{\"index\":0,\"delta\":{\"role\":\"assistant\",\"content\":\"Hel\"}}]}\n\n")
		fmt.Fprint(w, "data: {\"id\":\"c1\",\"model\":\"gpt-4o-mini\",\"choices\":[{\"index\":0,\"delta\":{\"content\":\"lo\"},\"finish_reason\":\"stop\"}]}\n\n")
		fmt.Fprint(w, "data: [DONE]\n\n")
	})

	ch, err := p.Stream(context.Background(), &llm.ChatRequest{
		Messages: []types.Message{types.NewUserMessage("hi")},
	})
	require.NoError(t, err)

	var chunks []llm.StreamChunk
	for c := range ch {
		require.Nil(t, c.Err)
		chunks = append(chunks, c)
	}
	require.Len(t, chunks, 2)
	assert.Equal(t, "Hel", chunks[0].Delta.Content)
	assert.Equal(t, "lo", chunks[1].Delta.Content)
	assert.Equal(t, "stop", chunks[1].FinishReason)
}

func TestStreamToolCallFragments(t *testing.T) {
	p := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprint(w, "data: {\"id\":\"c2\",\"choices\":[{\"index\":0,\"delta\":{\"tool_calls\":[{\"index\":0,\"id\":\"call_1\",\"function\":{\"name\":\"get_weather\",\"arguments\":\"{\\\"loc\"}}]}}]}\n\n")
		fmt.Fprint(w, "data: {\"id\":\"c2\",\"choices\":[{\"index\":0,\"delta\":{\"tool_calls\":[{\"index\":0,\"function\":{\"arguments\":\"ation\\\": \\\"Tokyo\\\"}\"}}]}}]}\n\n")
		fmt.Fprint(w, "data: {\"id\":\"c2\",\"choices\":[{\"index\":0,\"delta\":{},\"finish_reason\":\"tool_calls\"}]}\n\n")
		fmt.Fprint(w, "data: [DONE]\n\n")
	})

	ch, err := p.Stream(context.Background(), &llm.ChatRequest{
		Messages: []types.Message{types.NewUserMessage("weather in tokyo")},
	})
	require.NoError(t, err)

	var chunks []llm.StreamChunk
	for c := range ch {
		require.Nil(t, c.Err)
		chunks = append(chunks, c)
	}
	require.Len(t, chunks, 3)

	first := chunks[0].Delta.ToolCalls
	require.Len(t, first, 1)
	assert.Equal(t, "call_1", first[0].ID)
	assert.Equal(t, "get_weather", first[0].Name)
	assert.Equal(t, `{"loc`, first[0].Arguments)

	second := chunks[1].Delta.ToolCalls
	require.Len(t, second, 1)
	assert.Empty(t, second[0].ID)
	assert.Equal(t, `ation": "Tokyo"}`, second[0].Arguments)

	assert.Equal(t, "tool_calls", chunks[2].FinishReason)
}

func TestStreamUpstreamError(t *testing.T) {
	p := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		fmt.Fprint(w, `{"error":{"message":"rate limit exceeded","type":"rate_limit_error"}}`)
	})

	_, err := p.Stream(context.Background(), &llm.ChatRequest{
		Messages: []types.Message{types.NewUserMessage("hi")},
	})
	require.Error(t, err)
	var terr *types.Error
	require.ErrorAs(t, err, &terr)
	assert.Equal(t, types.ErrRateLimited, terr.Code)
	assert.True(t, terr.Retryable)
	assert.Equal(t, "rate limit exceeded", terr.Message)
}

func TestCompletion(t *testing.T) {
	p := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"id":"c3","model":"gpt-4o-mini","choices":[{"index":0,"finish_reason":"stop","message":{"role":"assistant","content":"hello there"}}],"usage":{"prompt_tokens":9,"completion_tokens":2,"total_tokens":11}}`)
	})

	resp, err := p.Completion(context.Background(), &llm.ChatRequest{
		Messages: []types.Message{types.NewUserMessage("hi")},
	})
	require.NoError(t, err)
	require.Len(t, resp.Choices, 1)
	assert.Equal(t, "hello there", resp.Choices[0].Message.Content)
	assert.Equal(t, 11, resp.Usage.TotalTokens)
}

func TestMapError(t *testing.T) {
	tests := []struct {
		name      string
		status    int
		msg       string
		wantCode  types.ErrorCode
		retryable bool
	}{
		{"unauthorized", http.StatusUnauthorized, "bad key", types.ErrUnauthorized, false},
		{"forbidden", http.StatusForbidden, "denied", types.ErrForbidden, false},
		{"rate limited", http.StatusTooManyRequests, "slow down", types.ErrRateLimited, true},
		{"bad request", http.StatusBadRequest, "malformed", types.ErrInvalidRequest, false},
		{"quota keyword", http.StatusBadRequest, "insufficient quota", types.ErrQuotaExceeded, false},
		{"model not found", http.StatusNotFound, "no such model", types.ErrModelNotFound, false},
		{"bad gateway", http.StatusBadGateway, "upstream down", types.ErrUpstreamError, true},
		{"overloaded", 529, "overloaded", types.ErrModelOverloaded, true},
		{"server error", http.StatusInternalServerError, "boom", types.ErrUpstreamError, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := mapError(tt.status, tt.msg, "openai")
			assert.Equal(t, tt.wantCode, err.Code)
			assert.Equal(t, tt.retryable, err.Retryable)
			assert.Equal(t, tt.status, err.HTTPStatus)
		})
	}
}

func TestStreamAbandonedConsumer(t *testing.T) {
	p := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		f := w.(http.Flusher)
		for {
			if _, err := fmt.Fprint(w, "data: {\"id\":\"c1\",\"model\":\"gpt-4o-mini\",\"choices\":[{\"index\":0,\"delta\":{\"content\":\"x\"}}]}\n\n"); err != nil {
				return
			}
			f.Flush()
		}
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ch, err := p.Stream(ctx, &llm.ChatRequest{
		Messages: []types.Message{types.NewUserMessage("hi")},
	})
	require.NoError(t, err)

	// Take one chunk, then walk away mid-stream.
	first := <-ch
	require.Nil(t, first.Err)
	cancel()

	// The reader goroutine must unblock and close the channel even
	// though nobody is draining it.
	deadline := time.After(2 * time.Second)
	for {
		select {
		case _, ok := <-ch:
			if !ok {
				return
			}
		case <-deadline:
			t.Fatal("stream channel never closed after context cancel")
		}
	}
}

func TestStreamRetriesRetryableStatus(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			fmt.Fprint(w, `{"error":{"message":"overloaded"}}`)
			return
		}
		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprint(w, "data: {\"id\":\"c1\",\"model\":\"gpt-4o-mini\",\"choices\":[{\"index\":0,\"delta\":{\"content\":\"hi\"},\"finish_reason\":\"stop\"}]}\n\n")
		fmt.Fprint(w, "data: [DONE]\n\n")
	}))
	t.Cleanup(srv.Close)
	p := New(Config{BaseURL: srv.URL, APIKey: "test-key", Model: "gpt-4o-mini", MaxRetries: 1}, zap.NewNop())

	ch, err := p.Stream(context.Background(), &llm.ChatRequest{
		Messages: []types.Message{types.NewUserMessage("hi")},
	})
	require.NoError(t, err)

	var content string
	for c := range ch {
		require.Nil(t, c.Err)
		content += c.Delta.Content
	}
	assert.Equal(t, "hi", content)
	assert.EqualValues(t, 2, atomic.LoadInt32(&calls))
}

func TestCompletionDoesNotRetryAuthError(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusUnauthorized)
		fmt.Fprint(w, `{"error":{"message":"bad key"}}`)
	}))
	t.Cleanup(srv.Close)
	p := New(Config{BaseURL: srv.URL, APIKey: "test-key", Model: "gpt-4o-mini", MaxRetries: 3}, zap.NewNop())

	_, err := p.Completion(context.Background(), &llm.ChatRequest{
		Messages: []types.Message{types.NewUserMessage("hi")},
	})
	require.Error(t, err)
	var terr *types.Error
	require.ErrorAs(t, err, &terr)
	assert.Equal(t, types.ErrUnauthorized, terr.Code)
	assert.EqualValues(t, 1, atomic.LoadInt32(&calls))
}
