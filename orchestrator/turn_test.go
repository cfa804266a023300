package orchestrator

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/mindpattern/voicegate/llm"
	"github.com/mindpattern/voicegate/llm/tools"
	"github.com/mindpattern/voicegate/types"
)

// scriptedProvider replays canned chunk sequences, one per Stream call.
type scriptedProvider struct {
	scripts   [][]llm.StreamChunk
	requests  []*llm.ChatRequest
	streamErr error
}

func (p *scriptedProvider) Name() string { return "scripted" }

func (p *scriptedProvider) Completion(context.Context, *llm.ChatRequest) (*llm.ChatResponse, error) {
	return nil, types.NewError(types.ErrInternalError, "not implemented")
}

func (p *scriptedProvider) HealthCheck(context.Context) (*llm.HealthStatus, error) {
	return &llm.HealthStatus{Healthy: true}, nil
}

func (p *scriptedProvider) Stream(_ context.Context, req *llm.ChatRequest) (<-chan llm.StreamChunk, error) {
	if p.streamErr != nil {
		return nil, p.streamErr
	}
	p.requests = append(p.requests, req)
	if len(p.scripts) == 0 {
		ch := make(chan llm.StreamChunk)
		close(ch)
		return ch, nil
	}
	script := p.scripts[0]
	p.scripts = p.scripts[1:]

	ch := make(chan llm.StreamChunk, len(script))
	for _, c := range script {
		ch <- c
	}
	close(ch)
	return ch, nil
}

// echoTool returns its arguments verbatim.
type echoTool struct{ name string }

func (e *echoTool) Name() string                 { return e.name }
func (e *echoTool) Description() string          { return "echoes arguments" }
func (e *echoTool) Parameters() map[string]tools.Param {
	return map[string]tools.Param{"location": {Type: "string"}}
}
func (e *echoTool) Execute(_ context.Context, args json.RawMessage) (string, error) {
	return string(args), nil
}

func newTurnFixture(t *testing.T, p llm.Provider, withTool bool) (*Orchestrator, *Emitter, *httptest.ResponseRecorder) {
	t.Helper()
	reg := tools.NewRegistry(zap.NewNop())
	if withTool {
		require.NoError(t, reg.Register(&echoTool{name: "get_current_weather"}))
	}
	exec := tools.NewExecutor(reg, zap.NewNop())
	o := New(p, reg, exec, zap.NewNop())

	rec := httptest.NewRecorder()
	em, err := NewEmitter(rec, "gpt-4o-mini", "sess-1", zap.NewNop())
	require.NoError(t, err)
	return o, em, rec
}

func userTurn(content string) TurnRequest {
	return TurnRequest{
		Model:     "gpt-4o-mini",
		SessionID: "sess-1",
		Messages: []types.Message{
			types.NewSystemMessage("be helpful"),
			types.NewUserMessage(content),
		},
	}
}

func TestRunPlainTextTurn(t *testing.T) {
	p := &scriptedProvider{scripts: [][]llm.StreamChunk{{
		{ID: "c1", Delta: types.Message{Role: types.RoleAssistant, Content: "Hello "}},
		{ID: "c1", Delta: types.Message{Role: types.RoleAssistant, Content: "there"}, FinishReason: "stop"},
	}}}
	o, em, rec := newTurnFixture(t, p, true)

	result, err := o.Run(context.Background(), userTurn("hi"), em)
	require.NoError(t, err)
	assert.Equal(t, "Hello there", result.Text)
	assert.Empty(t, result.ToolCalls)

	frames := sseFrames(t, rec.Body.String())
	require.Len(t, frames, 4) // two deltas, assistant_end, [DONE]
	assert.Contains(t, frames[2], TypeAssistantEnd)
	assert.Equal(t, "[DONE]", frames[3])

	// Tools were advertised on the only request.
	require.Len(t, p.requests, 1)
	assert.NotEmpty(t, p.requests[0].Tools)
	assert.Equal(t, "auto", p.requests[0].ToolChoice)
}

func TestRunToolCallTurn(t *testing.T) {
	p := &scriptedProvider{scripts: [][]llm.StreamChunk{
		{
			{ID: "c1", Delta: types.Message{Role: types.RoleAssistant, ToolCalls: []types.ToolCall{
				{Index: 0, ID: "call_1", Name: "get_current_weather", Arguments: `{"location": "To`},
			}}},
			{ID: "c1", Delta: types.Message{Role: types.RoleAssistant, ToolCalls: []types.ToolCall{
				{Index: 0, Arguments: `kyo"}`},
			}}},
			{ID: "c1", FinishReason: "tool_calls"},
		},
		{
			{ID: "c2", Delta: types.Message{Role: types.RoleAssistant, Content: "18 degrees in Tokyo"}, FinishReason: "stop"},
		},
	}}
	o, em, rec := newTurnFixture(t, p, true)

	result, err := o.Run(context.Background(), userTurn("weather in tokyo?"), em)
	require.NoError(t, err)
	assert.Equal(t, "18 degrees in Tokyo", result.Text)
	require.Len(t, result.ToolCalls, 1)
	assert.Equal(t, "call_1", result.ToolCalls[0].ID)
	require.Len(t, result.Results, 1)
	assert.JSONEq(t, `{"location":"Tokyo"}`, result.Results[0].Output)

	// Second request carries the tool exchange and no tools.
	require.Len(t, p.requests, 2)
	second := p.requests[1]
	assert.Empty(t, second.Tools)
	msgs := second.Messages
	require.Len(t, msgs, 4)
	assert.Equal(t, types.RoleAssistant, msgs[2].Role)
	require.Len(t, msgs[2].ToolCalls, 1)
	assert.Equal(t, types.RoleTool, msgs[3].Role)
	assert.Equal(t, "call_1", msgs[3].ToolCallID)

	frames := sseFrames(t, rec.Body.String())
	require.Len(t, frames, 3) // one delta, assistant_end, [DONE]
	assert.Contains(t, frames[0], "18 degrees in Tokyo")
	assert.Contains(t, frames[1], TypeAssistantEnd)
}

func TestRunToolFailureEndsTurnWithoutSecondStream(t *testing.T) {
	p := &scriptedProvider{scripts: [][]llm.StreamChunk{{
		{ID: "c1", Delta: types.Message{Role: types.RoleAssistant, ToolCalls: []types.ToolCall{
			{Index: 0, ID: "call_1", Name: "unknown_tool", Arguments: `{}`},
		}}},
		{ID: "c1", FinishReason: "tool_calls"},
	}}}
	o, em, rec := newTurnFixture(t, p, true)

	result, err := o.Run(context.Background(), userTurn("do something"), em)
	require.NoError(t, err)
	assert.Empty(t, result.Results)
	require.Len(t, p.requests, 1)

	frames := sseFrames(t, rec.Body.String())
	require.Len(t, frames, 2)
	assert.Contains(t, frames[0], TypeAssistantEnd)
	assert.Equal(t, "[DONE]", frames[1])
}

func TestRunUpstreamChunkError(t *testing.T) {
	p := &scriptedProvider{scripts: [][]llm.StreamChunk{{
		{ID: "c1", Delta: types.Message{Role: types.RoleAssistant, Content: "partial"}},
		{Err: types.NewError(types.ErrUpstreamError, "connection reset")},
	}}}
	o, em, rec := newTurnFixture(t, p, true)

	_, err := o.Run(context.Background(), userTurn("hi"), em)
	require.Error(t, err)

	frames := sseFrames(t, rec.Body.String())
	require.Len(t, frames, 3) // delta, error, [DONE]
	var ev ErrorEvent
	require.NoError(t, json.Unmarshal([]byte(frames[1]), &ev))
	assert.Equal(t, TypeError, ev.Type)
	assert.Equal(t, "connection reset", ev.Error)
	assert.Equal(t, "[DONE]", frames[2])
}

func TestRunStreamOpenFailure(t *testing.T) {
	p := &scriptedProvider{streamErr: types.NewError(types.ErrRateLimited, "rate limit exceeded")}
	o, em, rec := newTurnFixture(t, p, false)

	_, err := o.Run(context.Background(), userTurn("hi"), em)
	require.Error(t, err)

	frames := sseFrames(t, rec.Body.String())
	require.Len(t, frames, 2)
	assert.Contains(t, frames[0], "rate limit exceeded")
	assert.Equal(t, "[DONE]", frames[1])
}
