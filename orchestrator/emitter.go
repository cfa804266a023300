package orchestrator

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/mindpattern/voicegate/types"
)

// Emitter writes the outbound SSE stream for one turn. It owns the
// terminal-event invariant: exactly one of assistant_end or error is
// written, always last, followed by the [DONE] sentinel. Further writes
// after the terminal event fail with STREAM_CLOSED.
type Emitter struct {
	mu      sync.Mutex
	w       http.ResponseWriter
	flusher http.Flusher
	logger  *zap.Logger

	model     string
	sessionID string
	prosody   map[string]float64
	begin     int64

	terminal bool
}

// NewEmitter prepares w for server-sent events and returns the emitter.
// Headers are written immediately, so any pre-stream validation must
// happen before this call. sessionID, when set, is echoed back on every
// delta frame as the system fingerprint.
func NewEmitter(w http.ResponseWriter, model, sessionID string, logger *zap.Logger) (*Emitter, error) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		return nil, types.NewError(types.ErrInternalError, "response writer does not support streaming")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	h := w.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache, no-transform")
	h.Set("Connection", "keep-alive")
	h.Set("X-Accel-Buffering", "no")
	h.Set("Access-Control-Allow-Origin", "*")
	h.Set("Access-Control-Allow-Methods", "POST, OPTIONS")
	h.Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

	return &Emitter{
		w:         w,
		flusher:   flusher,
		logger:    logger.With(zap.String("component", "sse_emitter")),
		model:     model,
		sessionID: sessionID,
		begin:     time.Now().UnixMilli(),
	}, nil
}

// SetProsody attaches emotion scores echoed on subsequent frames.
func (e *Emitter) SetProsody(scores map[string]float64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.prosody = scores
}

// Terminal reports whether the terminal event has been written.
func (e *Emitter) Terminal() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.terminal
}

func (e *Emitter) modelOutputs() ModelOutputs {
	if len(e.prosody) == 0 {
		return ModelOutputs{}
	}
	return ModelOutputs{Prosody: &ProsodyScores{Scores: e.prosody}}
}

func (e *Emitter) timeRange() TimeRange {
	return TimeRange{Begin: e.begin, End: time.Now().UnixMilli()}
}

// Delta writes one assistant text increment.
func (e *Emitter) Delta(id, content string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.terminal {
		return types.NewError(types.ErrStreamClosed, "delta after terminal event")
	}

	ev := ChunkEvent{
		ID:      id,
		Object:  ObjectStreamChunk,
		Created: time.Now().Unix(),
		Model:   e.model,
		Choices: []ChunkChoice{{
			Index:        0,
			Delta:        DeltaPayload{Role: "assistant", Content: content},
			FinishReason: nil,
			Models:       e.modelOutputs(),
			Time:         e.timeRange(),
		}},
		Type:              TypeAssistantInput,
		SystemFingerprint: e.sessionID,
	}
	return e.writeFrame(ev)
}

// End writes the assistant_end terminal event and the [DONE] sentinel.
func (e *Emitter) End() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.terminal {
		return types.NewError(types.ErrStreamClosed, "duplicate terminal event")
	}
	e.terminal = true

	if err := e.writeFrame(EndEvent{
		Type:   TypeAssistantEnd,
		Time:   e.timeRange(),
		Models: e.modelOutputs(),
	}); err != nil {
		return err
	}
	return e.writeDone()
}

// Error writes the error terminal event and the [DONE] sentinel.
func (e *Emitter) Error(msg string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.terminal {
		return types.NewError(types.ErrStreamClosed, "duplicate terminal event")
	}
	e.terminal = true

	if err := e.writeFrame(ErrorEvent{Type: TypeError, Error: msg}); err != nil {
		return err
	}
	return e.writeDone()
}

func (e *Emitter) writeFrame(v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return types.NewError(types.ErrInternalError, "encode stream event").WithCause(err)
	}
	if _, err := fmt.Fprintf(e.w, "data: %s\n\n", data); err != nil {
		return types.NewError(types.ErrStreamClosed, "client connection lost").WithCause(err)
	}
	e.flusher.Flush()
	return nil
}

func (e *Emitter) writeDone() error {
	if _, err := fmt.Fprint(e.w, "data: [DONE]\n\n"); err != nil {
		return types.NewError(types.ErrStreamClosed, "client connection lost").WithCause(err)
	}
	e.flusher.Flush()
	return nil
}
