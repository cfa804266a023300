// Package api defines the wire types of the voicegate HTTP surface.
package api

// InboundProsody carries client-measured emotion scores for a message.
type InboundProsody struct {
	Scores map[string]float64 `json:"scores"`
}

// InboundModels wraps auxiliary annotations on an inbound message.
type InboundModels struct {
	Prosody *InboundProsody `json:"prosody,omitempty"`
}

// InboundMessage is one conversation message as sent by the client.
type InboundMessage struct {
	Role    string         `json:"role"`
	Content string         `json:"content"`
	Models  *InboundModels `json:"models,omitempty"`
}

// StreamRequest is the body of POST /api/v1/chat/completions/stream.
// The session identifier rides in the custom_session_id query parameter
// rather than the body, matching common voice-client conventions.
type StreamRequest struct {
	Model    string           `json:"model,omitempty"`
	Messages []InboundMessage `json:"messages"`
}
