package orchestrator

import (
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/mindpattern/voicegate/llm"
	"github.com/mindpattern/voicegate/types"
)

// EventKind classifies what an ingested chunk means for the turn.
type EventKind int

const (
	// EventNone carries nothing actionable: keep reading.
	EventNone EventKind = iota
	// EventText carries a plain text delta to forward to the client.
	EventText
	// EventToolsReady signals the accumulated tool calls are complete
	// and the tool phase should begin.
	EventToolsReady
)

// Event is the accumulator's verdict on one stream chunk.
type Event struct {
	Kind EventKind
	Text string
}

// Accumulator reassembles streamed tool-call fragments into complete
// calls. Providers split a single call across many chunks: the first
// fragment for an index carries the call ID and function name, later
// fragments append argument text. Fragments are correlated by index,
// never by arrival order.
//
// Once any tool call has been detected, plain-text deltas from the same
// stream are suppressed; once the call set is drained, further fragments
// are ignored.
type Accumulator struct {
	calls    map[int]*types.ToolCall
	detected bool
	closed   bool
	logger   *zap.Logger
}

// NewAccumulator creates an empty accumulator for one streamed response.
func NewAccumulator(logger *zap.Logger) *Accumulator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Accumulator{
		calls:  make(map[int]*types.ToolCall),
		logger: logger.With(zap.String("component", "tool_accumulator")),
	}
}

// Detected reports whether any tool-call fragment has been seen.
func (a *Accumulator) Detected() bool { return a.detected }

// Ingest folds one stream chunk into the accumulator and classifies it.
func (a *Accumulator) Ingest(chunk llm.StreamChunk) Event {
	fragments := chunk.Delta.ToolCalls

	if len(fragments) > 0 && !a.closed {
		a.detected = true
		for _, f := range fragments {
			rec, ok := a.calls[f.Index]
			if !ok {
				rec = &types.ToolCall{Index: f.Index}
				a.calls[f.Index] = rec
			}
			if f.ID != "" {
				rec.ID = f.ID
			}
			if f.Name != "" {
				rec.Name = f.Name
			}
			rec.Arguments += f.Arguments
		}
		if a.complete(chunk) {
			a.closed = true
			return Event{Kind: EventToolsReady}
		}
		return Event{Kind: EventNone}
	}

	// A finish marker can arrive on a fragment-free chunk.
	if chunk.FinishReason == "tool_calls" && a.detected && !a.closed {
		a.closed = true
		return Event{Kind: EventToolsReady}
	}

	if chunk.Delta.Content != "" {
		if a.detected {
			// Stray text after tool calls started; drop it.
			a.logger.Debug("suppressing text delta during tool phase",
				zap.Int("bytes", len(chunk.Delta.Content)))
			return Event{Kind: EventNone}
		}
		return Event{Kind: EventText, Text: chunk.Delta.Content}
	}

	return Event{Kind: EventNone}
}

// complete applies the completion heuristic after the latest fragment
// has been appended. None of the signals is guaranteed on its own:
// balanced-brace endings can occur mid-payload and some providers never
// send a finish marker before switching back to text.
func (a *Accumulator) complete(chunk llm.StreamChunk) bool {
	if chunk.FinishReason == "tool_calls" {
		return true
	}
	if chunk.Delta.Content != "" {
		return true
	}
	for _, rec := range a.calls {
		if strings.HasSuffix(strings.TrimSpace(rec.Arguments), "}") {
			return true
		}
	}
	return false
}

// Drain returns the accumulated calls ordered by fragment index and
// closes the accumulator. Calls missing a name are dropped: they cannot
// be dispatched.
func (a *Accumulator) Drain() []types.ToolCall {
	a.closed = true

	indexes := make([]int, 0, len(a.calls))
	for idx := range a.calls {
		indexes = append(indexes, idx)
	}
	sort.Ints(indexes)

	out := make([]types.ToolCall, 0, len(indexes))
	for _, idx := range indexes {
		rec := a.calls[idx]
		if rec.Name == "" {
			a.logger.Warn("dropping unnamed tool call", zap.Int("index", idx))
			continue
		}
		out = append(out, *rec)
	}
	a.calls = make(map[int]*types.ToolCall)
	return out
}
