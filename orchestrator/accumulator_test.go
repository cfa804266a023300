package orchestrator

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"pgregory.net/rapid"

	"github.com/mindpattern/voicegate/llm"
	"github.com/mindpattern/voicegate/types"
)

func fragChunk(frags ...types.ToolCall) llm.StreamChunk {
	return llm.StreamChunk{Delta: types.Message{Role: types.RoleAssistant, ToolCalls: frags}}
}

func textChunk(content string) llm.StreamChunk {
	return llm.StreamChunk{Delta: types.Message{Role: types.RoleAssistant, Content: content}}
}

func TestAccumulatorPlainText(t *testing.T) {
	a := NewAccumulator(zap.NewNop())

	ev := a.Ingest(textChunk("hello"))
	assert.Equal(t, EventText, ev.Kind)
	assert.Equal(t, "hello", ev.Text)
	assert.False(t, a.Detected())

	ev = a.Ingest(llm.StreamChunk{FinishReason: "stop"})
	assert.Equal(t, EventNone, ev.Kind)
}

func TestAccumulatorSingleCallAcrossFragments(t *testing.T) {
	a := NewAccumulator(zap.NewNop())

	ev := a.Ingest(fragChunk(types.ToolCall{Index: 0, ID: "call_1", Name: "get_current_weather", Arguments: `{"loc`}))
	assert.Equal(t, EventNone, ev.Kind)
	assert.True(t, a.Detected())

	ev = a.Ingest(fragChunk(types.ToolCall{Index: 0, Arguments: `ation": "Tokyo"}`}))
	// Balanced-brace ending fires the completion heuristic.
	require.Equal(t, EventToolsReady, ev.Kind)

	calls := a.Drain()
	require.Len(t, calls, 1)
	assert.Equal(t, "call_1", calls[0].ID)
	assert.Equal(t, "get_current_weather", calls[0].Name)
	assert.JSONEq(t, `{"location":"Tokyo"}`, calls[0].Arguments)
}

func TestAccumulatorFinishReasonOnSeparateChunk(t *testing.T) {
	a := NewAccumulator(zap.NewNop())

	// Argument payload that never ends with a closing brace on its own.
	a.Ingest(fragChunk(types.ToolCall{Index: 0, ID: "call_1", Name: "lookup", Arguments: `{"q": "go`}))
	ev := a.Ingest(llm.StreamChunk{FinishReason: "tool_calls"})
	require.Equal(t, EventToolsReady, ev.Kind)

	calls := a.Drain()
	require.Len(t, calls, 1)
	assert.Equal(t, `{"q": "go`, calls[0].Arguments)
}

func TestAccumulatorContentAlongsideFragmentCompletes(t *testing.T) {
	a := NewAccumulator(zap.NewNop())

	a.Ingest(fragChunk(types.ToolCall{Index: 0, ID: "call_1", Name: "lookup", Arguments: `{"q": "x`}))
	ev := a.Ingest(llm.StreamChunk{
		Delta: types.Message{
			Role:      types.RoleAssistant,
			Content:   "Let me check",
			ToolCalls: []types.ToolCall{{Index: 0, Arguments: `y`}},
		},
	})
	assert.Equal(t, EventToolsReady, ev.Kind)
}

func TestAccumulatorParallelCallsCorrelatedByIndex(t *testing.T) {
	a := NewAccumulator(zap.NewNop())

	// Interleaved fragments for two calls; arrival order crosses indexes.
	a.Ingest(fragChunk(types.ToolCall{Index: 0, ID: "call_a", Name: "get_current_weather", Arguments: `{"location": "To`}))
	a.Ingest(fragChunk(types.ToolCall{Index: 1, ID: "call_b", Name: "get_current_weather", Arguments: `{"location": "Lon`}))
	a.Ingest(fragChunk(types.ToolCall{Index: 0, Arguments: `kyo"`}))
	a.Ingest(fragChunk(types.ToolCall{Index: 1, Arguments: `don"`}))
	ev := a.Ingest(llm.StreamChunk{FinishReason: "tool_calls"})
	require.Equal(t, EventToolsReady, ev.Kind)

	calls := a.Drain()
	require.Len(t, calls, 2)
	assert.Equal(t, "call_a", calls[0].ID)
	assert.Equal(t, `{"location": "Tokyo"`, calls[0].Arguments)
	assert.Equal(t, "call_b", calls[1].ID)
	assert.Equal(t, `{"location": "London"`, calls[1].Arguments)
}

func TestAccumulatorSuppressesTextAfterDetection(t *testing.T) {
	a := NewAccumulator(zap.NewNop())

	a.Ingest(fragChunk(types.ToolCall{Index: 0, ID: "call_1", Name: "lookup", Arguments: `{"q`}))
	ev := a.Ingest(textChunk("stray narration"))
	assert.Equal(t, EventNone, ev.Kind)
}

func TestAccumulatorIgnoresFragmentsAfterDrain(t *testing.T) {
	a := NewAccumulator(zap.NewNop())

	a.Ingest(fragChunk(types.ToolCall{Index: 0, ID: "call_1", Name: "lookup", Arguments: `{}`}))
	_ = a.Drain()

	ev := a.Ingest(fragChunk(types.ToolCall{Index: 1, ID: "call_2", Name: "lookup", Arguments: `{}`}))
	assert.Equal(t, EventNone, ev.Kind)
	assert.Empty(t, a.Drain())
}

func TestAccumulatorFinishWithoutFragments(t *testing.T) {
	a := NewAccumulator(zap.NewNop())
	ev := a.Ingest(llm.StreamChunk{FinishReason: "tool_calls"})
	assert.Equal(t, EventNone, ev.Kind)
	assert.False(t, a.Detected())
}

func TestAccumulatorDropsUnnamedCalls(t *testing.T) {
	a := NewAccumulator(zap.NewNop())

	a.Ingest(fragChunk(types.ToolCall{Index: 0, ID: "call_1", Arguments: `{}`}))
	calls := a.Drain()
	assert.Empty(t, calls)
}

func TestAccumulatorSplitInvariance(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		// Braces only at the ends, so no split point can fire the
		// balanced-brace completion signal early.
		inner := rapid.StringMatching(`[a-z0-9:",. ]{0,80}`).Draw(t, "inner")
		args := "{" + inner + "}"

		oneShot := NewAccumulator(zap.NewNop())
		oneShot.Ingest(fragChunk(types.ToolCall{Index: 0, ID: "call_1", Name: "get_current_weather", Arguments: args}))
		want := oneShot.Drain()
		require.Len(t, want, 1)

		split := NewAccumulator(zap.NewNop())
		rest := args
		first := true
		for len(rest) > 0 {
			n := rapid.IntRange(1, len(rest)).Draw(t, "cut")
			frag := types.ToolCall{Index: 0, Arguments: rest[:n]}
			if first {
				frag.ID = "call_1"
				frag.Name = "get_current_weather"
				first = false
			}
			split.Ingest(fragChunk(frag))
			rest = rest[n:]
		}
		got := split.Drain()

		require.Len(t, got, 1)
		assert.Equal(t, want[0].ID, got[0].ID)
		assert.Equal(t, want[0].Name, got[0].Name)
		assert.Equal(t, want[0].Arguments, got[0].Arguments)
	})
}
