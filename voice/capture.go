package voice

import (
	"fmt"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"
)

const defaultFrameBytes = 4096

// Frame is one fixed-size chunk of captured audio.
type Frame struct {
	Seq  int
	Data []byte
}

// ErrBufferFull is returned when the capture buffer cannot accept
// another frame.
var ErrBufferFull = fmt.Errorf("capture buffer full")

// Capture is the producer side of the microphone boundary: a bounded
// channel of fixed-size audio frames. Pushing into a full buffer drops
// the frame rather than blocking the session's event loop.
type Capture struct {
	frames     chan Frame
	frameBytes int
	seq        int
	dropped    atomic.Int64

	mu     sync.Mutex
	closed bool

	logger *zap.Logger
}

// NewCapture creates a capture buffer holding queueSize frames of
// frameBytes each. Non-positive arguments use defaults.
func NewCapture(queueSize, frameBytes int, logger *zap.Logger) *Capture {
	if queueSize <= 0 {
		queueSize = defaultQueueSize
	}
	if frameBytes <= 0 {
		frameBytes = defaultFrameBytes
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Capture{
		frames:     make(chan Frame, queueSize),
		frameBytes: frameBytes,
		logger:     logger.With(zap.String("component", "voice_capture")),
	}
}

// Push appends one frame. Frames must be exactly the configured size;
// oversized or undersized frames are rejected at the boundary.
func (c *Capture) Push(data []byte) error {
	if len(data) != c.frameBytes {
		return fmt.Errorf("frame must be %d bytes, got %d", c.frameBytes, len(data))
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return fmt.Errorf("capture closed")
	}
	c.seq++
	frame := Frame{Seq: c.seq, Data: data}
	c.mu.Unlock()

	select {
	case c.frames <- frame:
		return nil
	default:
		c.dropped.Add(1)
		return ErrBufferFull
	}
}

// Frames exposes the consumer side of the buffer. The channel closes
// when the capture is closed.
func (c *Capture) Frames() <-chan Frame {
	return c.frames
}

// Dropped reports how many frames were discarded on a full buffer.
func (c *Capture) Dropped() int64 {
	return c.dropped.Load()
}

// Close stops the capture. Idempotent.
func (c *Capture) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	close(c.frames)
}
