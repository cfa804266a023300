package voice

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"go.uber.org/zap"

	"github.com/mindpattern/voicegate/config"
	"github.com/mindpattern/voicegate/internal/metrics"
	"github.com/mindpattern/voicegate/internal/session"
	"github.com/mindpattern/voicegate/types"
)

// Inbound frame types.
const (
	FrameAssistantMessage = "assistant_message"
	FrameUserMessage      = "user_message"
	FrameAudioOutput      = "audio_output"
	FrameAudioInput       = "audio_input"
	FramePlaybackStarted  = "playback_started"
	FramePlaybackFinished = "playback_finished"
	FrameUserInterruption = "user_interruption"
	FrameMute             = "mute"
)

// Outbound frame types.
const (
	FrameChatMessage    = "chat_message"
	FrameInterimMessage = "interim_message"
	FrameError          = "error"
)

// Envelope is the typed frame on the voice websocket, both directions.
// Audio rides base64-encoded through encoding/json.
type Envelope struct {
	Type    string `json:"type"`
	ID      string `json:"id,omitempty"`
	Role    string `json:"role,omitempty"`
	Content string `json:"content,omitempty"`
	Interim bool   `json:"interim,omitempty"`
	Audio   []byte `json:"audio,omitempty"`
	Error   string `json:"error,omitempty"`
}

// Gateway serves the voice websocket endpoint. Each connection owns a
// synchronizer, a playback queue, and a capture buffer; a single event
// loop per connection serializes every frame, so the session state
// needs no locking.
type Gateway struct {
	cfg     config.VoiceConfig
	store   session.Store
	metrics *metrics.Collector
	logger  *zap.Logger
}

// NewGateway creates the voice gateway. store may be nil to disable
// transcript persistence; collector may be nil in tests.
func NewGateway(cfg config.VoiceConfig, store session.Store, collector *metrics.Collector, logger *zap.Logger) *Gateway {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Gateway{
		cfg:     cfg,
		store:   store,
		metrics: collector,
		logger:  logger.With(zap.String("component", "voice_gateway")),
	}
}

// HandleVoice handles GET /api/v1/voice: upgrades to a websocket and
// runs the session event loop until the client disconnects.
func (g *Gateway) HandleVoice(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: []string{"*"},
	})
	if err != nil {
		g.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}

	sessionID := r.URL.Query().Get("custom_session_id")
	g.logger.Info("voice session opened", zap.String("session_id", sessionID))
	if g.metrics != nil {
		g.metrics.VoiceSessionStarted()
	}
	defer func() {
		if g.metrics != nil {
			g.metrics.VoiceSessionEnded()
		}
	}()

	sess := g.newSession(conn, sessionID)
	defer sess.close()

	sess.run(r.Context())
}

// voiceSession is the per-connection state, owned by one event loop.
type voiceSession struct {
	gateway   *Gateway
	conn      *websocket.Conn
	sessionID string
	sync      *Synchronizer
	player    *Player
	capture   *Capture
	logger    *zap.Logger
}

func (g *Gateway) newSession(conn *websocket.Conn, sessionID string) *voiceSession {
	logger := g.logger.With(zap.String("session_id", sessionID))
	sess := &voiceSession{
		gateway:   g,
		conn:      conn,
		sessionID: sessionID,
		sync:      NewSynchronizer(g.cfg.HistoryLimit, logger),
		player:    NewPlayer(g.cfg.QueueSize, logger),
		capture:   NewCapture(g.cfg.QueueSize, g.cfg.FrameBytes, logger),
		logger:    logger,
	}
	return sess
}

func (s *voiceSession) close() {
	s.capture.Close()
	s.conn.Close(websocket.StatusNormalClosure, "session closed")
}

// run reads frames until the connection drops. The loop is the single
// writer on the session state; listener callbacks fire inline, so
// outbound writes are serialized with inbound handling.
func (s *voiceSession) run(ctx context.Context) {
	s.sync.SetListener(func(t Transcript) {
		s.surface(ctx, t)
	})

	for {
		var env Envelope
		if err := wsjson.Read(ctx, s.conn, &env); err != nil {
			s.onDisconnect(err)
			return
		}
		s.handleFrame(ctx, env)
	}
}

// onDisconnect drops whatever never played; a reconnecting client
// replays from committed history, so uncommitted transcripts must not
// survive the connection.
func (s *voiceSession) onDisconnect(err error) {
	status := websocket.CloseStatus(err)
	switch {
	case status == websocket.StatusNormalClosure || status == websocket.StatusGoingAway:
		s.logger.Info("voice session closed", zap.String("status", status.String()))
	case errors.Is(err, context.Canceled):
		s.logger.Info("voice session cancelled")
	default:
		s.logger.Warn("voice session read failed", zap.Error(err))
	}

	dropped := s.sync.OnInterruption()
	s.player.Clear()
	s.recordDropped("disconnect", dropped)
}

func (s *voiceSession) handleFrame(ctx context.Context, env Envelope) {
	switch env.Type {
	case FrameAssistantMessage:
		if env.ID == "" || env.Content == "" {
			s.reject(ctx, "assistant_message requires id and content")
			return
		}
		s.sync.OnTranscript(Transcript{
			ID:      env.ID,
			Role:    types.RoleAssistant,
			Content: env.Content,
		})

	case FrameUserMessage:
		if env.Content == "" {
			s.reject(ctx, "user_message requires content")
			return
		}
		s.sync.OnTranscript(Transcript{
			ID:      env.ID,
			Role:    types.RoleUser,
			Content: env.Content,
			Interim: env.Interim,
		})

	case FrameAudioOutput:
		if env.ID == "" || len(env.Audio) == 0 {
			s.reject(ctx, "audio_output requires id and audio")
			return
		}
		if err := s.player.Enqueue(Clip{ID: env.ID, Audio: env.Audio}); err != nil {
			s.logger.Warn("clip rejected", zap.String("clip_id", env.ID), zap.Error(err))
			s.reject(ctx, "playback queue full")
		}

	case FrameAudioInput:
		if err := s.capture.Push(env.Audio); err != nil {
			if errors.Is(err, ErrBufferFull) {
				// Dropped frames are expected under load; no error frame.
				return
			}
			s.reject(ctx, err.Error())
		}

	case FramePlaybackStarted:
		if clip, ok := s.player.Next(); ok && clip.ID != env.ID {
			s.logger.Warn("playback out of queue order",
				zap.String("expected", clip.ID),
				zap.String("got", env.ID),
			)
		}
		s.sync.OnPlaybackStart(env.ID)

	case FramePlaybackFinished:
		s.player.Finish(env.ID)

	case FrameUserInterruption:
		dropped := s.sync.OnInterruption()
		s.player.Clear()
		s.recordDropped("interruption", dropped)

	case FrameMute:
		dropped := s.sync.OnMute()
		s.player.Clear()
		s.recordDropped("mute", dropped)

	default:
		s.reject(ctx, "unknown frame type: "+env.Type)
	}
}

// surface forwards a transcript to the client and, when committed,
// records it and persists it under the session id.
func (s *voiceSession) surface(ctx context.Context, t Transcript) {
	out := Envelope{
		Type:    FrameChatMessage,
		ID:      t.ID,
		Role:    string(t.Role),
		Content: t.Content,
	}
	if t.Interim {
		out.Type = FrameInterimMessage
		out.Interim = true
	}
	if err := wsjson.Write(ctx, s.conn, out); err != nil {
		// Benign after disconnect; the read loop handles teardown.
		s.logger.Debug("transcript write failed", zap.Error(err))
		return
	}

	if t.Interim {
		return
	}
	if s.gateway.metrics != nil {
		s.gateway.metrics.RecordTranscriptCommitted(string(t.Role))
	}
	s.persist(t)
}

func (s *voiceSession) persist(t Transcript) {
	if s.gateway.store == nil || s.sessionID == "" {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	msg := types.Message{Role: t.Role, Content: t.Content}
	if err := s.gateway.store.Append(ctx, s.sessionID, msg); err != nil {
		s.logger.Warn("failed to persist transcript", zap.Error(err))
	}
}

func (s *voiceSession) reject(ctx context.Context, msg string) {
	if err := wsjson.Write(ctx, s.conn, Envelope{Type: FrameError, Error: msg}); err != nil {
		s.logger.Debug("error frame write failed", zap.Error(err))
	}
}

func (s *voiceSession) recordDropped(reason string, count int) {
	if s.gateway.metrics == nil {
		return
	}
	for i := 0; i < count; i++ {
		s.gateway.metrics.RecordTranscriptDropped(reason)
	}
}
