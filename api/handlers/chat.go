package handlers

import (
	"context"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/mindpattern/voicegate/api"
	"github.com/mindpattern/voicegate/config"
	"github.com/mindpattern/voicegate/internal/metrics"
	"github.com/mindpattern/voicegate/internal/session"
	llmcontext "github.com/mindpattern/voicegate/llm/context"
	"github.com/mindpattern/voicegate/llm/tokenizer"
	"github.com/mindpattern/voicegate/orchestrator"
	"github.com/mindpattern/voicegate/types"
)

// ChatHandler serves the streaming chat endpoint. Each request runs one
// conversation turn: the client sends its full message history, the
// handler prepends the system prompt, fits the conversation to the
// model's context window, and streams the turn back as SSE events.
type ChatHandler struct {
	orch     *orchestrator.Orchestrator
	store    session.Store
	metrics  *metrics.Collector
	gateway  config.GatewayConfig
	provider string
	logger   *zap.Logger
}

// NewChatHandler creates the chat handler. store may be nil to disable
// transcript persistence; metrics may be nil in tests.
func NewChatHandler(orch *orchestrator.Orchestrator, store session.Store, collector *metrics.Collector, gateway config.GatewayConfig, providerName string, logger *zap.Logger) *ChatHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ChatHandler{
		orch:     orch,
		store:    store,
		metrics:  collector,
		gateway:  gateway,
		provider: providerName,
		logger:   logger.With(zap.String("component", "chat_handler")),
	}
}

// HandleStream handles POST /api/v1/chat/completions/stream.
//
// The optional custom_session_id query parameter names the session; it
// is echoed back as the system_fingerprint on every chunk and keys
// transcript persistence. Errors before the first SSE byte are plain
// JSON; once streaming has begun they become error events on the
// stream.
func (h *ChatHandler) HandleStream(w http.ResponseWriter, r *http.Request) {
	if !ValidateContentType(w, r, h.logger) {
		return
	}

	var req api.StreamRequest
	if err := DecodeJSONBody(w, r, &req, h.logger); err != nil {
		return
	}

	if verr := validateStreamRequest(&req); verr != nil {
		WriteError(w, verr, h.logger)
		return
	}

	sessionID := r.URL.Query().Get("custom_session_id")
	model := req.Model
	if model == "" {
		model = h.gateway.Model
	}

	messages := h.buildMessages(req.Messages)

	window := llmcontext.NewWindow(model, h.logger)
	if window.ShouldTruncate(messages) {
		messages = window.Truncate(messages)
	}

	em, err := orchestrator.NewEmitter(w, model, sessionID, h.logger)
	if err != nil {
		WriteErrorMessage(w, http.StatusInternalServerError, types.ErrInternalError, "streaming not supported", h.logger)
		return
	}

	ctx := r.Context()
	if h.gateway.TurnTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, h.gateway.TurnTimeout)
		defer cancel()
	}

	turnReq := orchestrator.TurnRequest{
		Model:     model,
		Messages:  messages,
		SessionID: sessionID,
		Prosody:   lastProsody(req.Messages),
	}

	result, runErr := h.orch.Run(ctx, turnReq, em)

	h.recordTurn(model, messages, result, runErr)

	if runErr != nil {
		h.logger.Warn("turn failed",
			zap.String("session_id", sessionID),
			zap.Error(runErr),
		)
		return
	}

	if sessionID != "" && h.store != nil {
		h.persistTurn(sessionID, req.Messages, result)
	}
}

// buildMessages prepends the system prompt to the client's history.
func (h *ChatHandler) buildMessages(inbound []api.InboundMessage) []types.Message {
	prompt := h.gateway.SystemPrompt
	if prompt == "" {
		prompt = config.BaseSystemPrompt
	}

	messages := make([]types.Message, 0, len(inbound)+1)
	messages = append(messages, types.Message{
		Role:    types.RoleSystem,
		Content: prompt,
	})
	for _, m := range inbound {
		messages = append(messages, types.Message{
			Role:    types.Role(m.Role),
			Content: m.Content,
		})
	}
	return messages
}

// lastProsody returns the scores of the most recent message carrying
// prosody annotations, or nil.
func lastProsody(inbound []api.InboundMessage) map[string]float64 {
	for i := len(inbound) - 1; i >= 0; i-- {
		if m := inbound[i].Models; m != nil && m.Prosody != nil && len(m.Prosody.Scores) > 0 {
			return m.Prosody.Scores
		}
	}
	return nil
}

func validateStreamRequest(req *api.StreamRequest) *types.Error {
	if len(req.Messages) == 0 {
		return types.NewError(types.ErrInvalidRequest, "messages cannot be empty")
	}
	for _, m := range req.Messages {
		switch types.Role(m.Role) {
		case types.RoleSystem, types.RoleUser, types.RoleAssistant, types.RoleTool:
		default:
			return types.NewError(types.ErrInvalidRequest, "invalid message role: "+m.Role)
		}
	}
	return nil
}

// recordTurn updates turn and token metrics; nil-safe for tests. When
// the upstream stream carried no usage block, token counts are computed
// locally from the sent prompt and the streamed reply.
func (h *ChatHandler) recordTurn(model string, sent []types.Message, result *orchestrator.TurnResult, runErr error) {
	if h.metrics == nil || result == nil {
		return
	}
	status := "ok"
	if runErr != nil {
		status = "error"
	}
	h.metrics.RecordTurn(status, len(result.ToolCalls) > 0, result.Duration)

	prompt, completion := result.Usage.PromptTokens, result.Usage.CompletionTokens
	if result.Usage.TotalTokens == 0 && runErr == nil {
		prompt, completion = countUsage(model, sent, result.Text)
	}
	if prompt+completion > 0 {
		h.metrics.RecordTokens(h.provider, model, prompt, completion)
	}
}

// countUsage counts prompt and completion tokens with the model's
// tokenizer. Count failures yield zeros rather than an error: usage
// accounting never disturbs the turn.
func countUsage(model string, sent []types.Message, reply string) (int, int) {
	tok := tokenizer.ForModel(model)
	msgs := make([]tokenizer.Message, len(sent))
	for i, m := range sent {
		msgs[i] = tokenizer.Message{Role: string(m.Role), Content: m.Content}
	}
	prompt, err := tok.CountMessages(msgs)
	if err != nil {
		return 0, 0
	}
	completion, err := tok.CountTokens(reply)
	if err != nil {
		return 0, 0
	}
	return prompt, completion
}

// persistTurn archives the user's latest message and the assistant
// reply. Runs on a fresh context so a closed client connection cannot
// abort the write.
func (h *ChatHandler) persistTurn(sessionID string, inbound []api.InboundMessage, result *orchestrator.TurnResult) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	var toStore []types.Message
	if n := len(inbound); n > 0 && types.Role(inbound[n-1].Role) == types.RoleUser {
		toStore = append(toStore, types.Message{
			Role:    types.RoleUser,
			Content: inbound[n-1].Content,
		})
	}
	if result.Text != "" {
		toStore = append(toStore, types.Message{
			Role:    types.RoleAssistant,
			Content: result.Text,
		})
	}
	if len(toStore) == 0 {
		return
	}

	if err := h.store.Append(ctx, sessionID, toStore...); err != nil {
		h.logger.Warn("failed to persist transcript",
			zap.String("session_id", sessionID),
			zap.Error(err),
		)
	}
}
