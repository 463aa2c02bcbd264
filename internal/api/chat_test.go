package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/policydesk/policydesk/internal/chat"
	"github.com/policydesk/policydesk/internal/log"
	"github.com/policydesk/policydesk/internal/rag"
)

// fakeChatService implements ChatService for testing.
type fakeChatService struct {
	resp   *chat.Response
	err    error
	gotReq chat.Request
	called int
}

func (f *fakeChatService) HandleTurn(ctx context.Context, req chat.Request) (*chat.Response, error) {
	f.called++
	f.gotReq = req
	if f.err != nil {
		return nil, f.err
	}
	return f.resp, nil
}

// savedMessage records one SaveMessage call.
type savedMessage struct {
	sessionID string
	role      string
	content   string
	metadata  map[string]any
}

// fakeHistoryStore implements HistoryStore for testing.
type fakeHistoryStore struct {
	saved       []savedMessage
	saveUserErr error
	saveAsstErr error
	turns       []rag.Turn
	loadErr     error
	loadCalls   int
	lastLimit   int
}

func (f *fakeHistoryStore) SaveMessage(ctx context.Context, sessionID, role, content string, metadata map[string]any) error {
	if role == rag.RoleUser && f.saveUserErr != nil {
		return f.saveUserErr
	}
	if role == rag.RoleAssistant && f.saveAsstErr != nil {
		return f.saveAsstErr
	}
	f.saved = append(f.saved, savedMessage{sessionID, role, content, metadata})
	return nil
}

func (f *fakeHistoryStore) LoadHistory(ctx context.Context, sessionID string, limit int) ([]rag.Turn, error) {
	f.loadCalls++
	f.lastLimit = limit
	if f.loadErr != nil {
		return nil, f.loadErr
	}
	return f.turns, nil
}

func defaultChatResponse() *chat.Response {
	return &chat.Response{
		Answer: "Visiting hours are 9am to 5pm [1].",
		Sources: []rag.Source{
			{FileName: "visitation_policy.pdf"},
		},
		Retrieval: &rag.TwoStepRetrievalResult{
			Query:       "when are visiting hours?",
			ChosenFiles: []string{"visitation_policy.pdf"},
			BroadHits:   []rag.Hit{},
			NarrowHits: []rag.Hit{
				{Text: "Visiting hours are 9am to 5pm.", Meta: rag.Meta{rag.MetaFileName: rag.String("visitation_policy.pdf")}},
			},
			Mode: rag.ModeTwoStep,
		},
	}
}

func newTestHandler(svc ChatService, hs HistoryStore) *chatHandler {
	return &chatHandler{
		service:         svc,
		history:         hs,
		historyMaxTurns: rag.DefaultHistoryMaxTurns,
		maxSnippetChars: rag.DefaultMaxSnippetChars,
		logger:          log.NewNop(),
	}
}

func postChat(t *testing.T, h *chatHandler, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/chat", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.send(rec, req)
	return rec
}

// decodeData unwraps the {"data": ...} envelope into dst.
func decodeData(t *testing.T, rec *httptest.ResponseRecorder, dst any) {
	t.Helper()
	var envelope struct {
		Data json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &envelope); err != nil {
		t.Fatalf("response is not an envelope: %v: %s", err, rec.Body.String())
	}
	if err := json.Unmarshal(envelope.Data, dst); err != nil {
		t.Fatalf("decoding data: %v: %s", err, envelope.Data)
	}
}

// errorCode extracts the error code from an error envelope.
func errorCode(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var envelope struct {
		Error struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &envelope); err != nil {
		t.Fatalf("response is not an error envelope: %v: %s", err, rec.Body.String())
	}
	return envelope.Error.Code
}

func TestChatSend(t *testing.T) {
	svc := &fakeChatService{resp: defaultChatResponse()}
	hs := &fakeHistoryStore{turns: []rag.Turn{{Role: "user", Content: "earlier"}}}
	h := newTestHandler(svc, hs)

	rec := postChat(t, h, `{"message": "when are visiting hours?", "session_id": "abc123"}`)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}

	var resp chatResponse
	decodeData(t, rec, &resp)
	if resp.Answer != "Visiting hours are 9am to 5pm [1]." {
		t.Errorf("answer = %q", resp.Answer)
	}
	if resp.SessionID != "abc123" {
		t.Errorf("session_id = %q, want abc123", resp.SessionID)
	}
	if resp.Retrieval.Mode != rag.ModeTwoStep {
		t.Errorf("mode = %q", resp.Retrieval.Mode)
	}
	if len(resp.Retrieval.NarrowHits) != 1 {
		t.Errorf("retrieval narrow hits = %+v", resp.Retrieval.NarrowHits)
	}
	if len(resp.Sources) != 1 || resp.Sources[0].FileName != "visitation_policy.pdf" {
		t.Errorf("sources = %+v", resp.Sources)
	}

	// User message saved first, then assistant with retrieval metadata.
	if len(hs.saved) != 2 {
		t.Fatalf("saved %d messages, want 2", len(hs.saved))
	}
	if hs.saved[0].role != rag.RoleUser || hs.saved[0].content != "when are visiting hours?" {
		t.Errorf("user save = %+v", hs.saved[0])
	}
	if hs.saved[0].metadata != nil {
		t.Errorf("user metadata = %v, want nil", hs.saved[0].metadata)
	}
	asst := hs.saved[1]
	if asst.role != rag.RoleAssistant {
		t.Errorf("assistant save = %+v", asst)
	}
	if asst.metadata["mode"] != "two_step" {
		t.Errorf("assistant metadata mode = %v", asst.metadata["mode"])
	}
	files, ok := asst.metadata["chosen_files"].([]string)
	if !ok || len(files) != 1 || files[0] != "visitation_policy.pdf" {
		t.Errorf("assistant metadata chosen_files = %v", asst.metadata["chosen_files"])
	}

	// Service received the loaded history and trimmed query.
	if svc.gotReq.Query != "when are visiting hours?" {
		t.Errorf("service query = %q", svc.gotReq.Query)
	}
	if len(svc.gotReq.History) != 1 || svc.gotReq.History[0].Content != "earlier" {
		t.Errorf("service history = %+v", svc.gotReq.History)
	}
	if hs.lastLimit != rag.DefaultHistoryMaxTurns {
		t.Errorf("history limit = %d, want %d", hs.lastLimit, rag.DefaultHistoryMaxTurns)
	}
}

func TestChatSendMintsSessionID(t *testing.T) {
	svc := &fakeChatService{resp: defaultChatResponse()}
	hs := &fakeHistoryStore{}
	h := newTestHandler(svc, hs)

	rec := postChat(t, h, `{"message": "hello"}`)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var resp chatResponse
	decodeData(t, rec, &resp)
	if len(resp.SessionID) != 32 {
		t.Errorf("minted session id = %q, want 32 hex chars", resp.SessionID)
	}
	if hs.saved[0].sessionID != resp.SessionID {
		t.Errorf("saved under %q, responded with %q", hs.saved[0].sessionID, resp.SessionID)
	}
}

func TestChatSendKnobsForwarded(t *testing.T) {
	svc := &fakeChatService{resp: defaultChatResponse()}
	h := newTestHandler(svc, &fakeHistoryStore{})

	rec := postChat(t, h, `{"message": "q", "broad_k": 40, "file_k": 2, "final_k": 9}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if svc.gotReq.BroadK != 40 || svc.gotReq.FileK != 2 || svc.gotReq.FinalK != 9 {
		t.Errorf("knobs = %+v", svc.gotReq)
	}
}

func TestChatSendValidation(t *testing.T) {
	tests := []struct {
		name     string
		body     string
		wantCode string
	}{
		{"invalid json", `{`, "invalid_body"},
		{"blank message", `{"message": "   "}`, "missing_message"},
		{"broad_k too large", `{"message": "q", "broad_k": 101}`, "invalid_broad_k"},
		{"negative broad_k", `{"message": "q", "broad_k": -1}`, "invalid_broad_k"},
		{"file_k too large", `{"message": "q", "file_k": 21}`, "invalid_file_k"},
		{"final_k too large", `{"message": "q", "final_k": 31}`, "invalid_final_k"},
		{"session id too long", `{"message": "q", "session_id": "` + strings.Repeat("a", 129) + `"}`, "invalid_session_id"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := &fakeChatService{resp: defaultChatResponse()}
			hs := &fakeHistoryStore{}
			rec := postChat(t, newTestHandler(svc, hs), tt.body)

			if rec.Code != http.StatusBadRequest {
				t.Errorf("status = %d, want 400", rec.Code)
			}
			if got := errorCode(t, rec); got != tt.wantCode {
				t.Errorf("error code = %q, want %q", got, tt.wantCode)
			}
			if svc.called != 0 {
				t.Errorf("service called %d times on invalid input", svc.called)
			}
			if len(hs.saved) != 0 {
				t.Errorf("messages saved on invalid input: %+v", hs.saved)
			}
		})
	}
}

func TestChatSendBodyTooLarge(t *testing.T) {
	h := newTestHandler(&fakeChatService{resp: defaultChatResponse()}, &fakeHistoryStore{})

	big := `{"message": "` + strings.Repeat("x", maxChatBodyBytes) + `"}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/chat", bytes.NewReader([]byte(big)))
	rec := httptest.NewRecorder()
	h.send(rec, req)

	if rec.Code != http.StatusRequestEntityTooLarge {
		t.Errorf("status = %d, want 413", rec.Code)
	}
	if got := errorCode(t, rec); got != "body_too_large" {
		t.Errorf("error code = %q", got)
	}
}

func TestChatSendUserSaveFailureAborts(t *testing.T) {
	svc := &fakeChatService{resp: defaultChatResponse()}
	hs := &fakeHistoryStore{saveUserErr: errors.New("db down")}
	rec := postChat(t, newTestHandler(svc, hs), `{"message": "q"}`)

	if rec.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want 500", rec.Code)
	}
	if got := errorCode(t, rec); got != "history_unavailable" {
		t.Errorf("error code = %q", got)
	}
	if svc.called != 0 {
		t.Error("service called despite user save failure")
	}
}

func TestChatSendAssistantSaveFailureIgnored(t *testing.T) {
	svc := &fakeChatService{resp: defaultChatResponse()}
	hs := &fakeHistoryStore{saveAsstErr: errors.New("db flake")}
	rec := postChat(t, newTestHandler(svc, hs), `{"message": "q"}`)

	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want 200 despite assistant save failure", rec.Code)
	}
	var resp chatResponse
	decodeData(t, rec, &resp)
	if resp.Answer == "" {
		t.Error("answer missing")
	}
}

func TestChatSendUpstreamFailures(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantCode   string
	}{
		{"retrieval down", rag.ErrRetrievalUnavailable, http.StatusServiceUnavailable, "retrieval_unavailable"},
		{"generation down", rag.ErrGenerationUnavailable, http.StatusServiceUnavailable, "generation_unavailable"},
		{"unknown error", errors.New("boom"), http.StatusInternalServerError, "internal_error"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := &fakeChatService{err: tt.err}
			rec := postChat(t, newTestHandler(svc, &fakeHistoryStore{}), `{"message": "q"}`)

			if rec.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", rec.Code, tt.wantStatus)
			}
			if got := errorCode(t, rec); got != tt.wantCode {
				t.Errorf("error code = %q, want %q", got, tt.wantCode)
			}
		})
	}
}

func TestChatSendLoadHistoryFailure(t *testing.T) {
	svc := &fakeChatService{resp: defaultChatResponse()}
	hs := &fakeHistoryStore{loadErr: errors.New("db down")}
	rec := postChat(t, newTestHandler(svc, hs), `{"message": "q"}`)

	if rec.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want 500", rec.Code)
	}
	if svc.called != 0 {
		t.Error("service called despite history load failure")
	}
}
