package orchestrator

// Outbound SSE event shapes. The delta frames follow the OpenAI chunk
// layout so standard clients can parse them, extended with the event
// type, prosody scores, and a time range used for transcript alignment.

// Event type tags.
const (
	TypeAssistantInput = "assistant_input"
	TypeAssistantEnd   = "assistant_end"
	TypeError          = "error"
)

// ObjectStreamChunk is the object tag on delta frames.
const ObjectStreamChunk = "chat.stream.chunk"

// TimeRange marks when a turn segment began and when the frame was
// emitted, in Unix milliseconds.
type TimeRange struct {
	Begin int64 `json:"begin"`
	End   int64 `json:"end"`
}

// ProsodyScores carries emotion-dimension scores attached to the turn.
type ProsodyScores struct {
	Scores map[string]float64 `json:"scores"`
}

// ModelOutputs wraps auxiliary model annotations on an event.
type ModelOutputs struct {
	Prosody *ProsodyScores `json:"prosody,omitempty"`
}

// DeltaPayload is the incremental message content inside a chunk choice.
type DeltaPayload struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ChunkChoice is the single choice carried by every delta frame.
type ChunkChoice struct {
	Index        int          `json:"index"`
	Delta        DeltaPayload `json:"delta"`
	FinishReason any          `json:"finish_reason"`
	Models       ModelOutputs `json:"models"`
	Time         TimeRange    `json:"time"`
}

// ChunkEvent is one streamed assistant text delta.
type ChunkEvent struct {
	ID                string        `json:"id"`
	Object            string        `json:"object"`
	Created           int64         `json:"created"`
	Model             string        `json:"model"`
	Choices           []ChunkChoice `json:"choices"`
	Type              string        `json:"type"`
	SystemFingerprint string        `json:"system_fingerprint,omitempty"`
}

// EndEvent closes a successful turn.
type EndEvent struct {
	Type   string       `json:"type"`
	Time   TimeRange    `json:"time"`
	Models ModelOutputs `json:"models"`
}

// ErrorEvent closes a failed turn.
type ErrorEvent struct {
	Type  string `json:"type"`
	Error string `json:"error"`
}
