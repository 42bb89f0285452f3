package httpadapter

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/mkravchenko/mediarag/internal/core/domain"
	"github.com/mkravchenko/mediarag/internal/core/ports"
	"github.com/mkravchenko/mediarag/internal/observability/metrics"
)

const serviceName = "api"

type Router struct {
	agent         ports.AgentQueryService
	search        ports.FederatedSearchService
	conversations ports.ConversationService
	metrics       *metrics.APIMetrics
	defaultUserID string
}

func NewRouter(
	agent ports.AgentQueryService,
	search ports.FederatedSearchService,
	conversations ports.ConversationService,
	apiMetrics *metrics.APIMetrics,
	defaultUserID string,
) *Router {
	if defaultUserID == "" {
		defaultUserID = "default"
	}
	return &Router{
		agent:         agent,
		search:        search,
		conversations: conversations,
		metrics:       apiMetrics,
		defaultUserID: defaultUserID,
	}
}

func (rt *Router) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", rt.healthz)
	mux.HandleFunc("/v1/agent/query", rt.agentQuery)
	mux.HandleFunc("/v1/agent/conversations", rt.listConversations)
	mux.HandleFunc("/v1/agent/conversations/", rt.conversationByID)
	mux.HandleFunc("/v1/search", rt.federatedSearch)
	if rt.metrics != nil {
		mux.Handle("/metrics", rt.metrics.Handler())
	}

	var handler http.Handler = mux
	if rt.metrics != nil {
		handler = rt.metrics.Middleware(serviceName, handler)
	}
	return requestIDMiddleware(accessLogMiddleware(handler))
}

func (rt *Router) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (rt *Router) agentQuery(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}

	var req struct {
		Query          string `json:"query"`
		ConversationID string `json:"conversation_id"`
		UserID         string `json:"user_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid json"})
		return
	}
	if strings.TrimSpace(req.Query) == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "query is required"})
		return
	}

	start := time.Now()
	answer, err := rt.agent.RunQuery(r.Context(), domain.Query{
		Text:           req.Query,
		ConversationID: req.ConversationID,
		UserID:         rt.resolveUserID(req.UserID, r),
		SubmittedAt:    start.UTC(),
	})
	if err != nil {
		if rt.metrics != nil {
			rt.metrics.RecordPipelineRun(serviceName, "error", time.Since(start))
		}
		writeJSON(w, mapErrorToHTTPStatus(err), map[string]string{"error": err.Error()})
		return
	}
	if rt.metrics != nil {
		rt.metrics.RecordPipelineRun(serviceName, "success", time.Since(start))
	}
	writeJSON(w, http.StatusOK, answer)
}

func (rt *Router) listConversations(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}

	summaries, err := rt.conversations.ListConversations(r.Context(), rt.resolveUserID("", r))
	if err != nil {
		writeJSON(w, mapErrorToHTTPStatus(err), map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"conversations": summaries})
}

func (rt *Router) conversationByID(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimPrefix(r.URL.Path, "/v1/agent/conversations/")
	if id == "" || strings.Contains(id, "/") {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "conversation id is required"})
		return
	}
	userID := rt.resolveUserID("", r)

	switch r.Method {
	case http.MethodGet:
		turns, err := rt.conversations.GetConversation(r.Context(), userID, id)
		if err != nil {
			writeJSON(w, mapErrorToHTTPStatus(err), map[string]string{"error": err.Error()})
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"conversation_id": id, "turns": turns})
	case http.MethodDelete:
		if err := rt.conversations.DeleteConversation(r.Context(), userID, id); err != nil {
			writeJSON(w, mapErrorToHTTPStatus(err), map[string]string{"error": err.Error()})
			return
		}
		w.WriteHeader(http.StatusNoContent)
	default:
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
	}
}

func (rt *Router) federatedSearch(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}

	var req struct {
		Query      string   `json:"query"`
		Modalities []string `json:"modalities"`
		Limit      int      `json:"limit"`
		Threshold  float64  `json:"threshold"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid json"})
		return
	}

	modalities := make([]domain.Modality, 0, len(req.Modalities))
	for _, m := range req.Modalities {
		modalities = append(modalities, domain.Modality(m))
	}

	hits, err := rt.search.Federate(r.Context(), req.Query, modalities, req.Limit, req.Threshold)
	if err != nil {
		writeJSON(w, mapErrorToHTTPStatus(err), map[string]string{"error": err.Error()})
		return
	}
	if rt.metrics != nil {
		counts := make(map[domain.Modality]int)
		for _, hit := range hits {
			counts[hit.Modality]++
		}
		for modality, count := range counts {
			rt.metrics.RecordModalityHits(serviceName, string(modality), count)
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{"hits": hits})
}

func (rt *Router) resolveUserID(bodyUserID string, r *http.Request) string {
	if id := strings.TrimSpace(bodyUserID); id != "" {
		return id
	}
	if id := strings.TrimSpace(r.Header.Get("X-User-Id")); id != "" {
		return id
	}
	return rt.defaultUserID
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
