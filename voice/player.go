package voice

import (
	"fmt"
	"sync"

	"go.uber.org/zap"
)

const defaultQueueSize = 32

// Clip is one audio segment awaiting playback, keyed by the id of the
// assistant transcript it voices.
type Clip struct {
	ID    string
	Audio []byte
}

// ErrQueueFull is returned when the clip queue is at capacity.
var ErrQueueFull = fmt.Errorf("playback queue full")

// Player is a bounded FIFO of audio clips. It models the playback side
// of a voice session so the synchronizer can key transcript commits off
// real playback order; the client reports start/finish over the
// websocket and the session loop advances the queue accordingly.
type Player struct {
	mu      sync.Mutex
	queue   []Clip
	max     int
	current string
	logger  *zap.Logger
}

// NewPlayer creates a player whose queue holds at most queueSize clips.
// queueSize <= 0 uses the default.
func NewPlayer(queueSize int, logger *zap.Logger) *Player {
	if queueSize <= 0 {
		queueSize = defaultQueueSize
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Player{
		max:    queueSize,
		logger: logger.With(zap.String("component", "voice_player")),
	}
}

// Enqueue appends a clip, rejecting it when the queue is full.
func (p *Player) Enqueue(c Clip) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.queue) >= p.max {
		return ErrQueueFull
	}
	p.queue = append(p.queue, c)
	return nil
}

// Next pops the head of the queue and marks it as the playing clip.
// The second return is false when the queue is empty.
func (p *Player) Next() (Clip, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.queue) == 0 {
		return Clip{}, false
	}
	c := p.queue[0]
	p.queue = p.queue[1:]
	p.current = c.ID
	return c, true
}

// Finish marks the current clip done.
func (p *Player) Finish(clipID string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.current == clipID {
		p.current = ""
	}
}

// Clear drops every queued clip and returns how many were dropped. The
// currently playing clip, if any, is unaffected: its audio already
// started.
func (p *Player) Clear() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := len(p.queue)
	p.queue = nil
	return n
}

// Len reports the number of queued clips.
func (p *Player) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.queue)
}

// Playing returns the id of the clip currently playing, or "".
func (p *Player) Playing() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.current
}
