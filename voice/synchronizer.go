// Package voice synchronizes delayed assistant transcripts with audio
// playback for voice-mode sessions. Assistant text arrives before its
// audio clip; committing it to history only when the clip starts
// playing keeps the visible transcript aligned with what was actually
// spoken.
package voice

import (
	"go.uber.org/zap"

	"github.com/mindpattern/voicegate/types"
)

const defaultHistoryLimit = 400

// Transcript is one utterance flowing through the synchronizer.
type Transcript struct {
	ID      string     `json:"id"`
	Role    types.Role `json:"role"`
	Content string     `json:"content"`
	Interim bool       `json:"interim,omitempty"`
}

// Listener observes transcripts as they surface. Interim transcripts
// are delivered but never committed to history.
type Listener func(Transcript)

// Synchronizer holds assistant transcripts pending playback and the
// committed history. It is not safe for concurrent use: drive it from
// a single event loop, ordering comes from event arrival order.
type Synchronizer struct {
	pending  map[string]Transcript
	played   map[string]struct{}
	history  []Transcript
	limit    int
	listener Listener
	logger   *zap.Logger
}

// NewSynchronizer creates a synchronizer capping committed history at
// historyLimit messages. historyLimit <= 0 uses the default cap.
func NewSynchronizer(historyLimit int, logger *zap.Logger) *Synchronizer {
	if historyLimit <= 0 {
		historyLimit = defaultHistoryLimit
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Synchronizer{
		pending: make(map[string]Transcript),
		played:  make(map[string]struct{}),
		limit:   historyLimit,
		logger:  logger.With(zap.String("component", "voice_synchronizer")),
	}
}

// SetListener registers the commit observer.
func (s *Synchronizer) SetListener(fn Listener) {
	s.listener = fn
}

// OnTranscript routes one transcript. Assistant transcripts wait in the
// pending map for their playback event, unless that playback already
// started, in which case they commit right away; user transcripts
// commit immediately unless interim, in which case they are surfaced to
// the listener only.
func (s *Synchronizer) OnTranscript(t Transcript) {
	switch t.Role {
	case types.RoleAssistant:
		if _, ok := s.played[t.ID]; ok {
			delete(s.played, t.ID)
			s.commit(t)
			return
		}
		s.pending[t.ID] = t
	case types.RoleUser:
		if t.Interim {
			s.notify(t)
			return
		}
		s.commit(t)
	default:
		s.commit(t)
	}
}

// OnPlaybackStart commits the assistant transcript waiting on clipID.
// Playback and transcript arrival are only weakly ordered, so a start
// with no pending transcript is remembered and the transcript commits
// on arrival. Returns false if nothing was pending under that id.
func (s *Synchronizer) OnPlaybackStart(clipID string) bool {
	t, ok := s.pending[clipID]
	if !ok {
		s.logger.Debug("playback started before transcript", zap.String("clip_id", clipID))
		s.played[clipID] = struct{}{}
		return false
	}
	delete(s.pending, clipID)
	s.commit(t)
	return true
}

// OnInterruption drops every pending transcript: a transcript whose
// audio never played must not appear in history. Remembered playback
// starts are discarded too, so a transcript arriving after the
// interruption stays pending. Returns the number dropped.
func (s *Synchronizer) OnInterruption() int {
	n := len(s.pending)
	if n > 0 {
		s.logger.Info("dropping pending transcripts", zap.Int("count", n))
		s.pending = make(map[string]Transcript)
	}
	if len(s.played) > 0 {
		s.played = make(map[string]struct{})
	}
	return n
}

// OnMute behaves like an interruption: muted audio never plays, so its
// transcripts never commit.
func (s *Synchronizer) OnMute() int {
	return s.OnInterruption()
}

// History returns a copy of the committed transcripts, oldest first.
func (s *Synchronizer) History() []Transcript {
	out := make([]Transcript, len(s.history))
	copy(out, s.history)
	return out
}

// PendingCount reports how many assistant transcripts await playback.
func (s *Synchronizer) PendingCount() int {
	return len(s.pending)
}

func (s *Synchronizer) commit(t Transcript) {
	s.history = append(s.history, t)
	if over := len(s.history) - s.limit; over > 0 {
		s.history = s.history[over:]
	}
	s.notify(t)
}

func (s *Synchronizer) notify(t Transcript) {
	if s.listener != nil {
		s.listener(t)
	}
}
