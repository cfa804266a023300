// Package session persists per-session conversation transcripts keyed
// by the caller-supplied session ID. The store backs reconnects and the
// transcript archive; the live turn always streams from the messages
// the client sent.
// This package is internal and should not be imported by external projects.
package session

import (
	"context"

	"github.com/mindpattern/voicegate/types"
)

// Store is the session transcript interface.
type Store interface {
	// Append adds messages to the end of a session's transcript.
	Append(ctx context.Context, sessionID string, msgs ...types.Message) error

	// History returns the session's transcript, oldest first.
	History(ctx context.Context, sessionID string) ([]types.Message, error)

	// Clear removes a session's transcript.
	Clear(ctx context.Context, sessionID string) error

	// Close releases the store's resources.
	Close() error
}
