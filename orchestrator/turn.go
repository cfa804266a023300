// Package orchestrator drives one conversation turn: it streams the
// model's reply to the client, reassembles any tool calls the model
// makes mid-stream, executes them, and resumes streaming the model's
// final reply over the tool results.
package orchestrator

import (
	"context"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/mindpattern/voicegate/llm"
	"github.com/mindpattern/voicegate/llm/tools"
	"github.com/mindpattern/voicegate/types"
)

// TurnRequest describes one turn to run.
type TurnRequest struct {
	Model     string
	Messages  []types.Message
	SessionID string
	Prosody   map[string]float64
}

// TurnResult summarizes a finished turn for persistence and metrics.
type TurnResult struct {
	Text      string
	ToolCalls []types.ToolCall
	Results   []types.ToolResult
	Usage     llm.ChatUsage
	Duration  time.Duration
}

// Orchestrator coordinates the provider, the tool executor, and the
// outbound event stream.
type Orchestrator struct {
	provider llm.Provider
	registry *tools.Registry
	executor *tools.Executor
	logger   *zap.Logger
}

// New creates a turn orchestrator.
func New(provider llm.Provider, registry *tools.Registry, executor *tools.Executor, logger *zap.Logger) *Orchestrator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Orchestrator{
		provider: provider,
		registry: registry,
		executor: executor,
		logger:   logger.With(zap.String("component", "orchestrator")),
	}
}

// Run executes one turn against em. The terminal event is always
// written before Run returns: assistant_end on success, error
// otherwise. The returned error mirrors the error event for callers
// that track turn outcomes.
func (o *Orchestrator) Run(ctx context.Context, req TurnRequest, em *Emitter) (*TurnResult, error) {
	start := time.Now()
	result := &TurnResult{}
	em.SetProsody(req.Prosody)

	chatReq := &llm.ChatRequest{
		TraceID:  req.SessionID,
		Model:    req.Model,
		Messages: req.Messages,
	}
	if o.registry != nil && o.registry.Len() > 0 {
		chatReq.Tools = o.registry.Schemas()
		chatReq.ToolChoice = "auto"
	}

	calls, err := o.streamPhase(ctx, chatReq, em, result, true)
	if err != nil {
		result.Duration = time.Since(start)
		return result, err
	}

	if len(calls) > 0 {
		if err := o.toolPhase(ctx, req, calls, em, result); err != nil {
			result.Duration = time.Since(start)
			return result, err
		}
	}

	result.Duration = time.Since(start)
	if err := em.End(); err != nil {
		return result, err
	}
	o.logger.Info("turn complete",
		zap.String("session_id", req.SessionID),
		zap.Int("tool_calls", len(result.ToolCalls)),
		zap.Int("response_chars", len(result.Text)),
		zap.Duration("duration", result.Duration),
	)
	return result, nil
}

// streamPhase consumes one provider stream, forwarding text deltas.
// When allowTools is set it also accumulates tool-call fragments and
// returns the completed calls once the stream ends.
func (o *Orchestrator) streamPhase(ctx context.Context, chatReq *llm.ChatRequest, em *Emitter, result *TurnResult, allowTools bool) ([]types.ToolCall, error) {
	ch, err := o.provider.Stream(ctx, chatReq)
	if err != nil {
		o.emitError(em, err)
		return nil, err
	}

	acc := NewAccumulator(o.logger)
	var text strings.Builder
	ready := false

	for chunk := range ch {
		if chunk.Err != nil {
			o.emitError(em, chunk.Err)
			return nil, chunk.Err
		}
		if chunk.Usage != nil {
			result.Usage = *chunk.Usage
		}

		if !allowTools {
			if chunk.Delta.Content != "" {
				text.WriteString(chunk.Delta.Content)
				if err := em.Delta(chunk.ID, chunk.Delta.Content); err != nil {
					return nil, err
				}
			}
			continue
		}

		switch ev := acc.Ingest(chunk); ev.Kind {
		case EventText:
			text.WriteString(ev.Text)
			if err := em.Delta(chunk.ID, ev.Text); err != nil {
				return nil, err
			}
		case EventToolsReady:
			ready = true
		}
	}

	result.Text += text.String()
	if !ready && allowTools && acc.Detected() {
		// Stream ended without a completion signal; whatever
		// accumulated is the best we have.
		ready = true
	}
	if ready {
		return acc.Drain(), nil
	}
	return nil, nil
}

// toolPhase executes the accumulated calls, appends the exchange to the
// conversation, and streams the model's follow-up reply without tools.
func (o *Orchestrator) toolPhase(ctx context.Context, req TurnRequest, calls []types.ToolCall, em *Emitter, result *TurnResult) error {
	result.ToolCalls = calls
	names := make([]string, len(calls))
	for i, c := range calls {
		names[i] = c.Name
	}
	o.logger.Info("executing tool calls",
		zap.String("session_id", req.SessionID),
		zap.Strings("tools", names),
	)

	all := o.executor.Execute(ctx, calls)
	kept := make([]types.ToolResult, 0, len(all))
	for _, r := range all {
		if r.IsError() {
			o.logger.Warn("dropping failed tool result",
				zap.String("tool", r.Name),
				zap.String("error", r.Error),
			)
			continue
		}
		kept = append(kept, r)
	}
	result.Results = kept

	if len(kept) == 0 {
		// Nothing to ground a follow-up on; end the turn on the text
		// already streamed.
		return nil
	}

	messages := make([]types.Message, 0, len(req.Messages)+1+len(kept))
	messages = append(messages, req.Messages...)
	messages = append(messages, types.Message{
		Role:      types.RoleAssistant,
		ToolCalls: calls,
	})
	for _, r := range kept {
		messages = append(messages, r.ToMessage())
	}

	// The follow-up stream never advertises tools: one tool round per
	// turn.
	chatReq := &llm.ChatRequest{
		TraceID:  req.SessionID,
		Model:    req.Model,
		Messages: messages,
	}
	_, err := o.streamPhase(ctx, chatReq, em, result, false)
	return err
}

// emitError writes the error terminal event unless one was already
// sent. Client-facing messages carry the upstream description, never
// request internals.
func (o *Orchestrator) emitError(em *Emitter, err error) {
	msg := "upstream model request failed"
	if terr, ok := err.(*types.Error); ok && terr.Message != "" {
		msg = terr.Message
	}
	if em.Terminal() {
		return
	}
	if werr := em.Error(msg); werr != nil {
		o.logger.Warn("failed to write error event", zap.Error(werr))
	}
}
