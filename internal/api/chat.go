package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/policydesk/policydesk/internal/chat"
	"github.com/policydesk/policydesk/internal/history"
	"github.com/policydesk/policydesk/internal/rag"
)

// maxChatBodyBytes limits chat request bodies to 1MB.
const maxChatBodyBytes = 1024 * 1024

// maxSessionIDLength bounds client-supplied session identifiers.
const maxSessionIDLength = 128

// Retrieval knob bounds accepted from clients. Values outside these ranges
// are rejected rather than clamped, so misconfigured clients fail loudly.
const (
	maxBroadK = 100
	maxFileK  = 20
	maxFinalK = 30
)

// ChatService processes one chat turn.
type ChatService interface {
	HandleTurn(ctx context.Context, req chat.Request) (*chat.Response, error)
}

// HistoryStore persists and replays conversation history.
type HistoryStore interface {
	SaveMessage(ctx context.Context, sessionID, role, content string, metadata map[string]any) error
	LoadHistory(ctx context.Context, sessionID string, limit int) ([]rag.Turn, error)
}

// chatRequest is the POST /api/v1/chat request body.
type chatRequest struct {
	Message   string `json:"message"`
	SessionID string `json:"session_id"`
	BroadK    int    `json:"broad_k"`
	FileK     int    `json:"file_k"`
	FinalK    int    `json:"final_k"`
}

// chatResponse is the POST /api/v1/chat success payload. Retrieval is the
// compact wire form: broad hits dropped, snippet text truncated.
type chatResponse struct {
	Answer    string               `json:"answer"`
	SessionID string               `json:"session_id"`
	Sources   []rag.Source         `json:"sources"`
	Retrieval rag.RetrievalPayload `json:"retrieval"`
}

// chatHandler serves the chat endpoint.
type chatHandler struct {
	service         ChatService
	history         HistoryStore
	historyMaxTurns int
	maxSnippetChars int
	logger          *slog.Logger
}

// send handles POST /api/v1/chat.
//
// Persistence rules: a failure to store the incoming user message aborts the
// request, since silently losing the user's side of a conversation corrupts
// future history. A failure to store the assistant reply is logged and
// ignored; the caller already has the answer.
func (h *chatHandler) send(w http.ResponseWriter, r *http.Request) {
	var req chatRequest
	r.Body = http.MaxBytesReader(w, r.Body, maxChatBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		var maxBytesErr *http.MaxBytesError
		if errors.As(err, &maxBytesErr) {
			WriteError(w, http.StatusRequestEntityTooLarge, "body_too_large", "request body too large", h.logger)
			return
		}
		WriteError(w, http.StatusBadRequest, "invalid_body", "invalid request body", h.logger)
		return
	}

	message := strings.TrimSpace(req.Message)
	if message == "" {
		WriteError(w, http.StatusBadRequest, "missing_message", "message is required", h.logger)
		return
	}
	if code, msg, ok := validateKnobs(req); !ok {
		WriteError(w, http.StatusBadRequest, code, msg, h.logger)
		return
	}

	sessionID := strings.TrimSpace(req.SessionID)
	if len(sessionID) > maxSessionIDLength {
		WriteError(w, http.StatusBadRequest, "invalid_session_id", "session_id too long", h.logger)
		return
	}
	if sessionID == "" {
		sessionID = history.NewSessionID()
	}

	ctx := r.Context()

	if err := h.history.SaveMessage(ctx, sessionID, rag.RoleUser, message, nil); err != nil {
		h.logger.Error("failed to save user message", "session_id", sessionID, "error", err)
		WriteError(w, http.StatusInternalServerError, "history_unavailable", "failed to record message", h.logger)
		return
	}

	// History includes the message just saved; the generator drops the
	// duplicate of the live question itself.
	turns, err := h.history.LoadHistory(ctx, sessionID, h.historyMaxTurns)
	if err != nil {
		h.logger.Error("failed to load history", "session_id", sessionID, "error", err)
		WriteError(w, http.StatusInternalServerError, "history_unavailable", "failed to load history", h.logger)
		return
	}

	resp, err := h.service.HandleTurn(ctx, chat.Request{
		Query:   message,
		History: turns,
		BroadK:  req.BroadK,
		FileK:   req.FileK,
		FinalK:  req.FinalK,
	})
	if err != nil {
		h.writeTurnError(w, sessionID, err)
		return
	}
	if resp.Retrieval == nil {
		h.writeTurnError(w, sessionID, errors.New("turn completed without retrieval result"))
		return
	}

	if err := h.history.SaveMessage(ctx, sessionID, rag.RoleAssistant, resp.Answer, map[string]any{
		"mode":         string(resp.Retrieval.Mode),
		"chosen_files": resp.Retrieval.ChosenFiles,
	}); err != nil {
		h.logger.Warn("failed to save assistant message", "session_id", sessionID, "error", err)
	}

	WriteJSON(w, http.StatusOK, chatResponse{
		Answer:    resp.Answer,
		SessionID: sessionID,
		Sources:   resp.Sources,
		Retrieval: rag.EncodeRetrieval(resp.Retrieval, h.maxSnippetChars),
	}, h.logger)
}

// validateKnobs checks optional retrieval overrides. Zero means "use default".
func validateKnobs(req chatRequest) (code, msg string, ok bool) {
	if req.BroadK < 0 || req.BroadK > maxBroadK {
		return "invalid_broad_k", "broad_k must be between 1 and 100", false
	}
	if req.FileK < 0 || req.FileK > maxFileK {
		return "invalid_file_k", "file_k must be between 1 and 20", false
	}
	if req.FinalK < 0 || req.FinalK > maxFinalK {
		return "invalid_final_k", "final_k must be between 1 and 30", false
	}
	return "", "", true
}

// writeTurnError maps orchestration errors to stable API error codes.
func (h *chatHandler) writeTurnError(w http.ResponseWriter, sessionID string, err error) {
	switch {
	case errors.Is(err, rag.ErrRetrievalUnavailable):
		h.logger.Error("retrieval unavailable", "session_id", sessionID, "error", err)
		WriteError(w, http.StatusServiceUnavailable, "retrieval_unavailable", "document search is temporarily unavailable", h.logger)
	case errors.Is(err, rag.ErrGenerationUnavailable):
		h.logger.Error("generation unavailable", "session_id", sessionID, "error", err)
		WriteError(w, http.StatusServiceUnavailable, "generation_unavailable", "answer generation is temporarily unavailable", h.logger)
	default:
		h.logger.Error("chat turn failed", "session_id", sessionID, "error", err)
		WriteError(w, http.StatusInternalServerError, "internal_error", "internal server error", h.logger)
	}
}
