package ollama

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/mkravchenko/mediarag/internal/core/domain"
	"github.com/mkravchenko/mediarag/internal/infrastructure/resilience"
)

func testModels() Models {
	return Models{
		ChatModel:        "qwen2.5:7b",
		TextEmbedModel:   "nomic-embed-text",
		VisualEmbedModel: "clip-vit",
	}
}

func TestChatProviderDecodesTextResponse(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/chat" {
			t.Fatalf("unexpected path %s", r.URL.Path)
		}
		var req map[string]any
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		if req["model"] != "qwen2.5:7b" {
			t.Fatalf("model = %v", req["model"])
		}
		if _, hasTools := req["tools"]; hasTools {
			t.Fatalf("tools must be omitted when none are offered")
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"message": map[string]any{"role": "assistant", "content": "  plain answer  "},
		})
	}))
	defer server.Close()

	provider := NewChatProvider(New(server.URL, testModels(), nil))
	resp, err := provider.Generate(context.Background(), []domain.ModelMessage{
		{Role: "user", Content: "hi"},
	}, nil)
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}
	if resp.Text != "plain answer" {
		t.Fatalf("text = %q", resp.Text)
	}
	if resp.ToolCall != nil {
		t.Fatalf("unexpected tool call: %+v", resp.ToolCall)
	}
}

func TestChatProviderDecodesToolCall(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req map[string]any
		_ = json.NewDecoder(r.Body).Decode(&req)
		tools, ok := req["tools"].([]any)
		if !ok || len(tools) != 1 {
			t.Fatalf("expected one offered tool, got %v", req["tools"])
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"message": map[string]any{
				"role":    "assistant",
				"content": "",
				"tool_calls": []map[string]any{{
					"function": map[string]any{
						"name":      "web_search",
						"arguments": map[string]any{"query": "go 1.25", "max_results": 3},
					},
				}},
			},
		})
	}))
	defer server.Close()

	provider := NewChatProvider(New(server.URL, testModels(), nil))
	resp, err := provider.Generate(context.Background(), []domain.ModelMessage{
		{Role: "user", Content: "latest go release?"},
	}, []domain.ToolSpec{{Name: "web_search", Parameters: map[string]any{"type": "object"}}})
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}
	if resp.ToolCall == nil || resp.ToolCall.Name != "web_search" {
		t.Fatalf("tool call = %+v", resp.ToolCall)
	}
	if resp.ToolCall.Arguments["query"] != "go 1.25" {
		t.Fatalf("arguments = %v", resp.ToolCall.Arguments)
	}
}

func TestChatProviderForwardsImages(t *testing.T) {
	var gotImages []any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Messages []map[string]any `json:"messages"`
		}
		_ = json.NewDecoder(r.Body).Decode(&req)
		for _, m := range req.Messages {
			if imgs, ok := m["images"].([]any); ok {
				gotImages = imgs
			}
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"message": map[string]any{"role": "assistant", "content": "described"},
		})
	}))
	defer server.Close()

	provider := NewChatProvider(New(server.URL, testModels(), nil))
	_, err := provider.Generate(context.Background(), []domain.ModelMessage{
		{Role: "user", Content: "what is shown?", Images: []string{"cGl4ZWxz"}},
	}, nil)
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}
	if len(gotImages) != 1 || gotImages[0] != "cGl4ZWxz" {
		t.Fatalf("images = %v", gotImages)
	}
}

func TestChatProviderRetriesRetryableStatus(t *testing.T) {
	attempts := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		if attempts == 1 {
			http.Error(w, "overloaded", http.StatusServiceUnavailable)
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"message": map[string]any{"role": "assistant", "content": "recovered"},
		})
	}))
	defer server.Close()

	executor := resilience.NewExecutor(resilience.Policy{
		MaxAttempts:    2,
		InitialBackoff: 1,
		MaxBackoff:     1,
		BackoffFactor:  1,
		BreakerEnabled: false,
	})
	provider := NewChatProvider(New(server.URL, testModels(), executor))

	resp, err := provider.Generate(context.Background(), []domain.ModelMessage{{Role: "user", Content: "hi"}}, nil)
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}
	if resp.Text != "recovered" || attempts != 2 {
		t.Fatalf("text = %q, attempts = %d", resp.Text, attempts)
	}
}

func TestModalityEmbedderPicksModelByModality(t *testing.T) {
	var models []string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/embed" {
			t.Fatalf("unexpected path %s", r.URL.Path)
		}
		var req map[string]any
		_ = json.NewDecoder(r.Body).Decode(&req)
		models = append(models, req["model"].(string))
		_ = json.NewEncoder(w).Encode(map[string]any{
			"embeddings": [][]float32{{0.1, 0.2, 0.3}},
		})
	}))
	defer server.Close()

	embedder := NewModalityEmbedder(New(server.URL, testModels(), nil))

	if _, err := embedder.EmbedForModality(context.Background(), domain.ModalityDocument, "query"); err != nil {
		t.Fatalf("document embed error = %v", err)
	}
	if _, err := embedder.EmbedForModality(context.Background(), domain.ModalityImage, "query"); err != nil {
		t.Fatalf("image embed error = %v", err)
	}
	if _, err := embedder.EmbedForModality(context.Background(), domain.ModalityVideoFrame, "query"); err != nil {
		t.Fatalf("frame embed error = %v", err)
	}

	want := []string{"nomic-embed-text", "clip-vit", "clip-vit"}
	for i, model := range want {
		if models[i] != model {
			t.Fatalf("call %d used %s, want %s", i, models[i], model)
		}
	}
}

func TestEmbedderEmptyResultErrors(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{"embeddings": [][]float32{}})
	}))
	defer server.Close()

	embedder := NewEmbedder(New(server.URL, testModels(), nil))
	if _, err := embedder.EmbedQuery(context.Background(), "text"); err == nil {
		t.Fatalf("expected error for empty embedding result")
	}
}

func TestChatProviderStatusErrorIsTyped(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "model not found", http.StatusNotFound)
	}))
	defer server.Close()

	provider := NewChatProvider(New(server.URL, testModels(), nil))
	_, err := provider.Generate(context.Background(), []domain.ModelMessage{{Role: "user", Content: "hi"}}, nil)
	if err == nil {
		t.Fatalf("expected status error")
	}
	verdict := classifyOllamaError(err)
	if verdict.Retry {
		t.Fatalf("404 must not be retryable")
	}
}

func TestChatProviderSendsGenerationOptions(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req map[string]any
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		opts, ok := req["options"].(map[string]any)
		if !ok {
			t.Fatalf("options missing from request: %v", req)
		}
		if opts["temperature"] != 0.2 {
			t.Fatalf("temperature = %v", opts["temperature"])
		}
		if opts["num_predict"] != float64(512) {
			t.Fatalf("num_predict = %v", opts["num_predict"])
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"message": map[string]any{"role": "assistant", "content": "ok"},
		})
	}))
	defer server.Close()

	client := New(server.URL, testModels(), nil)
	client.SetGenerationOptions(GenerationOptions{Temperature: 0.2, MaxTokens: 512})
	if _, err := NewChatProvider(client).Generate(context.Background(), []domain.ModelMessage{
		{Role: "user", Content: "hi"},
	}, nil); err != nil {
		t.Fatalf("Generate() error = %v", err)
	}
}
