package ollama

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/mkravchenko/mediarag/internal/core/domain"
	"github.com/mkravchenko/mediarag/internal/infrastructure/resilience"
)

// Models names the served models one Client talks to. VisualEmbedModel
// is a multimodal (CLIP-style) embedder whose text tower produces
// vectors comparable with indexed image vectors.
type Models struct {
	ChatModel        string
	TextEmbedModel   string
	VisualEmbedModel string
}

// GenerationOptions tunes the chat model's sampling. Zero values mean
// server defaults.
type GenerationOptions struct {
	Temperature float64
	MaxTokens   int
}

type Client struct {
	baseURL    string
	models     Models
	genOptions GenerationOptions
	httpClient *http.Client
	executor   *resilience.Executor
}

func New(baseURL string, models Models, executor *resilience.Executor) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		models:     models,
		httpClient: &http.Client{Timeout: 120 * time.Second},
		executor:   executor,
	}
}

// SetGenerationOptions applies sampling options to future chat calls.
func (c *Client) SetGenerationOptions(opts GenerationOptions) {
	c.genOptions = opts
}

// ChatProvider adapts the /api/chat endpoint to the pipeline's model
// contract: optional tool offer on the way in, at most one tool call
// on the way out.
type ChatProvider struct {
	client *Client
}

func NewChatProvider(client *Client) *ChatProvider {
	return &ChatProvider{client: client}
}

type chatMessage struct {
	Role    string   `json:"role"`
	Content string   `json:"content"`
	Images  []string `json:"images,omitempty"`
}

type chatToolCall struct {
	Function struct {
		Name      string          `json:"name"`
		Arguments json.RawMessage `json:"arguments"`
	} `json:"function"`
}

type chatResponse struct {
	Message struct {
		Role      string         `json:"role"`
		Content   string         `json:"content"`
		ToolCalls []chatToolCall `json:"tool_calls"`
	} `json:"message"`
}

func (p *ChatProvider) Generate(ctx context.Context, messages []domain.ModelMessage, tools []domain.ToolSpec) (*domain.ModelResponse, error) {
	reqBody := map[string]any{
		"model":    p.client.models.ChatModel,
		"messages": renderMessages(messages),
		"stream":   false,
	}
	if len(tools) > 0 {
		reqBody["tools"] = renderTools(tools)
	}
	if opts := renderOptions(p.client.genOptions); len(opts) > 0 {
		reqBody["options"] = opts
	}

	var resp chatResponse
	call := func(callCtx context.Context) error {
		return p.client.postJSON(callCtx, "/api/chat", reqBody, &resp, "chat")
	}
	var err error
	if p.client.executor != nil {
		err = p.client.executor.Run(ctx, "ollama.chat", call, classifyOllamaError)
	} else {
		err = call(ctx)
	}
	if err != nil {
		return nil, wrapTemporaryIfNeeded("chat", err)
	}

	out := &domain.ModelResponse{Text: strings.TrimSpace(resp.Message.Content)}
	if len(resp.Message.ToolCalls) > 0 {
		toolCall, err := decodeToolCall(resp.Message.ToolCalls[0])
		if err != nil {
			return nil, domain.WrapError(domain.ErrMalformedModelResponse, "chat", err)
		}
		out.ToolCall = toolCall
	}
	return out, nil
}

func decodeToolCall(raw chatToolCall) (*domain.ToolCallRequest, error) {
	name := strings.TrimSpace(raw.Function.Name)
	if name == "" {
		return nil, fmt.Errorf("tool call without a function name")
	}
	args := make(map[string]any)
	if len(raw.Function.Arguments) > 0 {
		if err := json.Unmarshal(raw.Function.Arguments, &args); err != nil {
			return nil, fmt.Errorf("decode tool arguments for %s: %w", name, err)
		}
	}
	return &domain.ToolCallRequest{Name: name, Arguments: args}, nil
}

func renderMessages(messages []domain.ModelMessage) []chatMessage {
	out := make([]chatMessage, 0, len(messages))
	for _, m := range messages {
		out = append(out, chatMessage{Role: m.Role, Content: m.Content, Images: m.Images})
	}
	return out
}

func renderOptions(opts GenerationOptions) map[string]any {
	out := make(map[string]any)
	if opts.Temperature > 0 {
		out["temperature"] = opts.Temperature
	}
	if opts.MaxTokens > 0 {
		out["num_predict"] = opts.MaxTokens
	}
	return out
}

func renderTools(tools []domain.ToolSpec) []map[string]any {
	out := make([]map[string]any, 0, len(tools))
	for _, t := range tools {
		out = append(out, map[string]any{
			"type": "function",
			"function": map[string]any{
				"name":        t.Name,
				"description": t.Description,
				"parameters":  t.Parameters,
			},
		})
	}
	return out
}

// Embedder embeds text with the plain text model. Used for chat-memory
// indexing and text-modality queries.
type Embedder struct {
	client *Client
}

func NewEmbedder(client *Client) *Embedder {
	return &Embedder{client: client}
}

func (e *Embedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	return e.client.embed(ctx, e.client.models.TextEmbedModel, text)
}

// ModalityEmbedder picks the embedding model per searched modality:
// visual modalities need the multimodal model's text tower so query
// vectors live in the same space as the indexed previews.
type ModalityEmbedder struct {
	client *Client
}

func NewModalityEmbedder(client *Client) *ModalityEmbedder {
	return &ModalityEmbedder{client: client}
}

func (e *ModalityEmbedder) EmbedForModality(ctx context.Context, modality domain.Modality, text string) ([]float32, error) {
	model := e.client.models.TextEmbedModel
	if modality.IsVisual() {
		model = e.client.models.VisualEmbedModel
	}
	return e.client.embed(ctx, model, text)
}

func (c *Client) embed(ctx context.Context, model, text string) ([]float32, error) {
	reqBody := map[string]any{
		"model": model,
		"input": []string{text},
	}

	var resp struct {
		Embeddings [][]float32 `json:"embeddings"`
	}
	call := func(callCtx context.Context) error {
		return c.postJSON(callCtx, "/api/embed", reqBody, &resp, "embed")
	}
	var err error
	if c.executor != nil {
		err = c.executor.Run(ctx, "ollama.embed", call, classifyOllamaError)
	} else {
		err = call(ctx)
	}
	if err != nil {
		return nil, wrapTemporaryIfNeeded("embed", err)
	}
	if len(resp.Embeddings) == 0 {
		return nil, fmt.Errorf("empty embedding result")
	}
	return resp.Embeddings[0], nil
}
