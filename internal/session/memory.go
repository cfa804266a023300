package session

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/mindpattern/voicegate/types"
)

const defaultMaxMessages = 400

// MemoryStore keeps transcripts in process memory. Each session is
// capped; the oldest messages are evicted first.
type MemoryStore struct {
	mu          sync.RWMutex
	sessions    map[string][]types.Message
	maxMessages int
	logger      *zap.Logger
}

// NewMemoryStore creates an in-memory store. maxMessages <= 0 uses the
// default cap.
func NewMemoryStore(maxMessages int, logger *zap.Logger) *MemoryStore {
	if maxMessages <= 0 {
		maxMessages = defaultMaxMessages
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &MemoryStore{
		sessions:    make(map[string][]types.Message),
		maxMessages: maxMessages,
		logger:      logger.With(zap.String("component", "session_memory")),
	}
}

func (s *MemoryStore) Append(_ context.Context, sessionID string, msgs ...types.Message) error {
	if sessionID == "" {
		return types.NewError(types.ErrInvalidRequest, "empty session id")
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	transcript := append(s.sessions[sessionID], msgs...)
	if over := len(transcript) - s.maxMessages; over > 0 {
		transcript = transcript[over:]
		s.logger.Debug("evicted transcript messages",
			zap.String("session_id", sessionID),
			zap.Int("evicted", over))
	}
	s.sessions[sessionID] = transcript
	return nil
}

func (s *MemoryStore) History(_ context.Context, sessionID string) ([]types.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	transcript, ok := s.sessions[sessionID]
	if !ok {
		return nil, nil
	}
	out := make([]types.Message, len(transcript))
	copy(out, transcript)
	return out, nil
}

func (s *MemoryStore) Clear(_ context.Context, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, sessionID)
	return nil
}

func (s *MemoryStore) Close() error { return nil }
