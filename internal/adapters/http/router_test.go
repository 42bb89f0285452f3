package httpadapter

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/mkravchenko/mediarag/internal/core/domain"
)

type fakeAgent struct {
	answer   *domain.Answer
	err      error
	gotQuery domain.Query
}

func (f *fakeAgent) RunQuery(_ context.Context, query domain.Query) (*domain.Answer, error) {
	f.gotQuery = query
	if f.err != nil {
		return nil, f.err
	}
	return f.answer, nil
}

type fakeSearch struct {
	hits []domain.RetrievalHit
	err  error

	gotModalities []domain.Modality
	gotLimit      int
	gotThreshold  float64
}

func (f *fakeSearch) Federate(_ context.Context, _ string, modalities []domain.Modality, limit int, threshold float64) ([]domain.RetrievalHit, error) {
	f.gotModalities = modalities
	f.gotLimit = limit
	f.gotThreshold = threshold
	return f.hits, f.err
}

type fakeConversations struct {
	summaries []domain.ConversationSummary
	turns     []domain.Turn
	err       error

	deletedID string
}

func (f *fakeConversations) ListConversations(_ context.Context, _ string) ([]domain.ConversationSummary, error) {
	return f.summaries, f.err
}

func (f *fakeConversations) GetConversation(_ context.Context, _, _ string) ([]domain.Turn, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.turns, nil
}

func (f *fakeConversations) DeleteConversation(_ context.Context, _, conversationID string) error {
	f.deletedID = conversationID
	return f.err
}

func newTestRouter(agent *fakeAgent, search *fakeSearch, conversations *fakeConversations) http.Handler {
	return NewRouter(agent, search, conversations, nil, "default").Handler()
}

func TestAgentQueryReturnsAnswer(t *testing.T) {
	agent := &fakeAgent{answer: &domain.Answer{
		ConversationID: "conv_1",
		Text:           "it covers revenue",
		Metadata:       domain.AnswerMetadata{Timestamp: time.Now().UTC(), HasDocContext: true},
	}}
	handler := newTestRouter(agent, &fakeSearch{}, &fakeConversations{})

	req := httptest.NewRequest(http.MethodPost, "/v1/agent/query",
		strings.NewReader(`{"query":"what does the report say?","conversation_id":"conv_1","user_id":"u1"}`))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	var resp struct {
		ConversationID string `json:"conversation_id"`
		Text           string `json:"text"`
		Metadata       struct {
			HasDocContext bool `json:"has_doc_context"`
		} `json:"metadata"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Text != "it covers revenue" || !resp.Metadata.HasDocContext {
		t.Fatalf("response = %+v", resp)
	}
	if agent.gotQuery.UserID != "u1" || agent.gotQuery.ConversationID != "conv_1" {
		t.Fatalf("forwarded query = %+v", agent.gotQuery)
	}
}

func TestAgentQueryRejectsEmptyQuery(t *testing.T) {
	handler := newTestRouter(&fakeAgent{}, &fakeSearch{}, &fakeConversations{})

	req := httptest.NewRequest(http.MethodPost, "/v1/agent/query", strings.NewReader(`{"query":"  "}`))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d", rec.Code)
	}
}

func TestAgentQueryMapsProviderFailure(t *testing.T) {
	agent := &fakeAgent{err: domain.WrapError(domain.ErrModelProvider, "planning", context.DeadlineExceeded)}
	handler := newTestRouter(agent, &fakeSearch{}, &fakeConversations{})

	req := httptest.NewRequest(http.MethodPost, "/v1/agent/query", strings.NewReader(`{"query":"hello"}`))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadGateway {
		t.Fatalf("status = %d, want 502", rec.Code)
	}
}

func TestAgentQueryDefaultsUserID(t *testing.T) {
	agent := &fakeAgent{answer: &domain.Answer{ConversationID: "c", Text: "ok"}}
	handler := newTestRouter(agent, &fakeSearch{}, &fakeConversations{})

	req := httptest.NewRequest(http.MethodPost, "/v1/agent/query", strings.NewReader(`{"query":"hello"}`))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if agent.gotQuery.UserID != "default" {
		t.Fatalf("user id = %q, want default", agent.gotQuery.UserID)
	}
}

func TestFederatedSearchForwardsParameters(t *testing.T) {
	search := &fakeSearch{hits: []domain.RetrievalHit{
		{Modality: domain.ModalityDocument, SourceID: "doc-1", Similarity: 0.9, Snippet: "snippet"},
	}}
	handler := newTestRouter(&fakeAgent{}, search, &fakeConversations{})

	req := httptest.NewRequest(http.MethodPost, "/v1/search",
		strings.NewReader(`{"query":"revenue","modalities":["document","image"],"limit":7,"threshold":0.5}`))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	if len(search.gotModalities) != 2 || search.gotModalities[0] != domain.ModalityDocument {
		t.Fatalf("modalities = %v", search.gotModalities)
	}
	if search.gotLimit != 7 || search.gotThreshold != 0.5 {
		t.Fatalf("limit = %d, threshold = %v", search.gotLimit, search.gotThreshold)
	}
	var resp struct {
		Hits []domain.RetrievalHit `json:"hits"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(resp.Hits) != 1 || resp.Hits[0].SourceID != "doc-1" {
		t.Fatalf("hits = %+v", resp.Hits)
	}
}

func TestFederatedSearchMapsInvalidModality(t *testing.T) {
	search := &fakeSearch{err: domain.WrapError(domain.ErrInvalidInput, "federate", context.Canceled)}
	handler := newTestRouter(&fakeAgent{}, search, &fakeConversations{})

	req := httptest.NewRequest(http.MethodPost, "/v1/search", strings.NewReader(`{"query":"x","modalities":["hologram"]}`))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestGetConversationNotFound(t *testing.T) {
	conversations := &fakeConversations{err: domain.WrapError(domain.ErrConversationNotFound, "get conversation", context.Canceled)}
	handler := newTestRouter(&fakeAgent{}, &fakeSearch{}, conversations)

	req := httptest.NewRequest(http.MethodGet, "/v1/agent/conversations/missing", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
}

func TestDeleteConversationNoContent(t *testing.T) {
	conversations := &fakeConversations{}
	handler := newTestRouter(&fakeAgent{}, &fakeSearch{}, conversations)

	req := httptest.NewRequest(http.MethodDelete, "/v1/agent/conversations/conv_1", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusNoContent {
		t.Fatalf("status = %d, want 204", rec.Code)
	}
	if conversations.deletedID != "conv_1" {
		t.Fatalf("deleted id = %q", conversations.deletedID)
	}
}

func TestListConversationsReturnsSummaries(t *testing.T) {
	conversations := &fakeConversations{summaries: []domain.ConversationSummary{
		{ConversationID: "conv_1", Title: "what is in the video?", TurnCount: 2},
	}}
	handler := newTestRouter(&fakeAgent{}, &fakeSearch{}, conversations)

	req := httptest.NewRequest(http.MethodGet, "/v1/agent/conversations", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var resp struct {
		Conversations []domain.ConversationSummary `json:"conversations"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(resp.Conversations) != 1 || resp.Conversations[0].Title != "what is in the video?" {
		t.Fatalf("conversations = %+v", resp.Conversations)
	}
}

func TestRequestIDHeaderIsSet(t *testing.T) {
	handler := newTestRouter(&fakeAgent{}, &fakeSearch{}, &fakeConversations{})

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Header().Get("X-Request-Id") == "" {
		t.Fatalf("expected generated request id header")
	}

	req = httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set("X-Request-Id", "client-supplied")
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Header().Get("X-Request-Id") != "client-supplied" {
		t.Fatalf("request id = %q", rec.Header().Get("X-Request-Id"))
	}
}

func TestMethodNotAllowed(t *testing.T) {
	handler := newTestRouter(&fakeAgent{}, &fakeSearch{}, &fakeConversations{})

	req := httptest.NewRequest(http.MethodGet, "/v1/agent/query", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusMethodNotAllowed {
		t.Fatalf("status = %d, want 405", rec.Code)
	}
}
