// Package metrics provides internal metrics collection.
// This package is internal and should not be imported by external projects.
package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"
)

// Collector aggregates the gateway's Prometheus metrics.
type Collector struct {
	// HTTP metrics
	httpRequestsTotal   *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec

	// Upstream stream metrics
	streamsTotal   *prometheus.CounterVec
	streamDuration *prometheus.HistogramVec
	tokensUsed     *prometheus.CounterVec

	// Turn metrics
	turnsTotal   *prometheus.CounterVec
	turnDuration *prometheus.HistogramVec

	// Tool metrics
	toolExecutionsTotal   *prometheus.CounterVec
	toolExecutionDuration *prometheus.HistogramVec

	// Voice metrics
	voiceSessionsActive        prometheus.Gauge
	voiceTranscriptsCommitted  *prometheus.CounterVec
	voiceTranscriptsDropped    *prometheus.CounterVec

	logger *zap.Logger
}

// NewCollector creates the metrics collector under the given namespace.
func NewCollector(namespace string, logger *zap.Logger) *Collector {
	if logger == nil {
		logger = zap.NewNop()
	}
	c := &Collector{
		logger: logger.With(zap.String("component", "metrics")),
	}

	c.httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	c.httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	c.streamsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "llm_streams_total",
			Help:      "Total number of upstream model streams",
		},
		[]string{"provider", "model", "phase", "status"}, // phase: initial, resume
	)

	c.streamDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "llm_stream_duration_seconds",
			Help:      "Upstream stream duration in seconds",
			Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60},
		},
		[]string{"provider", "model", "phase"},
	)

	c.tokensUsed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "llm_tokens_used_total",
			Help:      "Total number of tokens used",
		},
		[]string{"provider", "model", "type"}, // type: prompt, completion
	)

	c.turnsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "turns_total",
			Help:      "Total number of conversation turns",
		},
		[]string{"status", "tool_round"}, // tool_round: yes, no
	)

	c.turnDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "turn_duration_seconds",
			Help:      "End-to-end turn duration in seconds",
			Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120},
		},
		[]string{"status"},
	)

	c.toolExecutionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tool_executions_total",
			Help:      "Total number of tool executions",
		},
		[]string{"tool", "status"},
	)

	c.toolExecutionDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "tool_execution_duration_seconds",
			Help:      "Tool execution duration in seconds",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 10, 30},
		},
		[]string{"tool"},
	)

	c.voiceSessionsActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "voice_sessions_active",
			Help:      "Number of connected voice sessions",
		},
	)

	c.voiceTranscriptsCommitted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "voice_transcripts_committed_total",
			Help:      "Total number of transcripts committed to message history",
		},
		[]string{"role"},
	)

	c.voiceTranscriptsDropped = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "voice_transcripts_dropped_total",
			Help:      "Total number of pending transcripts dropped",
		},
		[]string{"reason"}, // reason: interruption, mute, disconnect
	)

	logger.Info("metrics collector initialized", zap.String("namespace", namespace))
	return c
}

// RecordHTTPRequest records one served HTTP request.
func (c *Collector) RecordHTTPRequest(method, path string, status int, duration time.Duration) {
	c.httpRequestsTotal.WithLabelValues(method, path, statusCode(status)).Inc()
	c.httpRequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}

// RecordStream records one upstream model stream.
func (c *Collector) RecordStream(provider, model, phase, status string, duration time.Duration) {
	c.streamsTotal.WithLabelValues(provider, model, phase, status).Inc()
	c.streamDuration.WithLabelValues(provider, model, phase).Observe(duration.Seconds())
}

// RecordTokens records token usage for a finished stream.
func (c *Collector) RecordTokens(provider, model string, promptTokens, completionTokens int) {
	c.tokensUsed.WithLabelValues(provider, model, "prompt").Add(float64(promptTokens))
	c.tokensUsed.WithLabelValues(provider, model, "completion").Add(float64(completionTokens))
}

// RecordTurn records one completed conversation turn.
func (c *Collector) RecordTurn(status string, usedTools bool, duration time.Duration) {
	toolRound := "no"
	if usedTools {
		toolRound = "yes"
	}
	c.turnsTotal.WithLabelValues(status, toolRound).Inc()
	c.turnDuration.WithLabelValues(status).Observe(duration.Seconds())
}

// RecordToolExecution records one tool call.
func (c *Collector) RecordToolExecution(tool, status string, duration time.Duration) {
	c.toolExecutionsTotal.WithLabelValues(tool, status).Inc()
	c.toolExecutionDuration.WithLabelValues(tool).Observe(duration.Seconds())
}

// VoiceSessionStarted marks a voice session as connected.
func (c *Collector) VoiceSessionStarted() { c.voiceSessionsActive.Inc() }

// VoiceSessionEnded marks a voice session as disconnected.
func (c *Collector) VoiceSessionEnded() { c.voiceSessionsActive.Dec() }

// RecordTranscriptCommitted records a transcript landing in history.
func (c *Collector) RecordTranscriptCommitted(role string) {
	c.voiceTranscriptsCommitted.WithLabelValues(role).Inc()
}

// RecordTranscriptDropped records a pending transcript being discarded.
func (c *Collector) RecordTranscriptDropped(reason string) {
	c.voiceTranscriptsDropped.WithLabelValues(reason).Inc()
}

func statusCode(status int) string {
	return strconv.Itoa(status)
}
