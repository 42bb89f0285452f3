package qdrant

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/mkravchenko/mediarag/internal/core/domain"
	"github.com/mkravchenko/mediarag/internal/infrastructure/resilience"
)

// QueryEmbedder produces a query vector in the coordinate space of the
// searched modality's collection.
type QueryEmbedder interface {
	EmbedForModality(ctx context.Context, modality domain.Modality, text string) ([]float32, error)
}

// Collections maps each searchable modality onto its qdrant collection.
type Collections map[domain.Modality]string

func DefaultCollections() Collections {
	return Collections{
		domain.ModalityDocument:   "documents",
		domain.ModalityImage:      "images",
		domain.ModalityVideoFrame: "video_frames",
		domain.ModalityTranscript: "video_transcripts",
		domain.ModalityChatMemory: "chat_memory",
	}
}

// Index searches per-modality qdrant collections. Scores come back on
// qdrant's cosine scale; normalization happens downstream.
type Index struct {
	baseURL     string
	collections Collections
	embedder    QueryEmbedder
	httpClient  *http.Client
	executor    *resilience.Executor
}

func NewIndex(baseURL string, collections Collections, embedder QueryEmbedder, executor *resilience.Executor) *Index {
	if collections == nil {
		collections = DefaultCollections()
	}
	return &Index{
		baseURL:     strings.TrimRight(baseURL, "/"),
		collections: collections,
		embedder:    embedder,
		httpClient:  &http.Client{Timeout: 60 * time.Second},
		executor:    executor,
	}
}

func (ix *Index) Search(ctx context.Context, modality domain.Modality, queryText string, k int) ([]domain.SourceHit, error) {
	collection, ok := ix.collections[modality]
	if !ok {
		return nil, fmt.Errorf("no collection configured for modality %s", modality)
	}
	if k <= 0 {
		k = 10
	}

	vector, err := ix.embedder.EmbedForModality(ctx, modality, queryText)
	if err != nil {
		return nil, fmt.Errorf("embed query for %s: %w", modality, err)
	}

	reqBody := map[string]any{
		"vector":       vector,
		"limit":        k,
		"with_payload": true,
	}
	body, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("marshal search body: %w", err)
	}

	var searchResp struct {
		Result []struct {
			ID      any            `json:"id"`
			Score   float64        `json:"score"`
			Payload map[string]any `json:"payload"`
		} `json:"result"`
	}

	url := fmt.Sprintf("%s/collections/%s/points/search", ix.baseURL, collection)
	call := func(callCtx context.Context) error {
		req, err := http.NewRequestWithContext(callCtx, http.MethodPost, url, bytes.NewReader(body))
		if err != nil {
			return fmt.Errorf("create search request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := ix.httpClient.Do(req)
		if err != nil {
			return fmt.Errorf("qdrant search request: %w", err)
		}
		defer resp.Body.Close()

		if resp.StatusCode >= 300 {
			return statusError("search", resp)
		}
		if err := json.NewDecoder(resp.Body).Decode(&searchResp); err != nil {
			return fmt.Errorf("decode search response: %w", err)
		}
		return nil
	}
	if ix.executor != nil {
		err = ix.executor.Run(ctx, "qdrant.search."+string(modality), call, classifyQdrantError)
	} else {
		err = call(ctx)
	}
	if err != nil {
		return nil, err
	}

	out := make([]domain.SourceHit, 0, len(searchResp.Result))
	for _, r := range searchResp.Result {
		sourceID := payloadString(r.Payload, "source_id")
		if sourceID == "" {
			sourceID = fmt.Sprintf("%v", r.ID)
		}
		out = append(out, domain.SourceHit{
			Modality: modality,
			SourceID: sourceID,
			Score:    r.Score,
			Metric:   domain.MetricCosine,
			Snippet:  payloadString(r.Payload, "text"),
			Preview:  payloadString(r.Payload, "preview_b64"),
			Metadata: payloadMetadata(r.Payload),
		})
	}
	return out, nil
}

// payloadMetadata keeps the string payload fields except the ones that
// already map to dedicated hit fields.
func payloadMetadata(payload map[string]any) map[string]string {
	out := make(map[string]string)
	for key, value := range payload {
		if key == "text" || key == "preview_b64" {
			continue
		}
		if s, ok := value.(string); ok {
			out[key] = s
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

func payloadString(payload map[string]any, key string) string {
	v, ok := payload[key]
	if !ok {
		return ""
	}
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprintf("%v", v)
}

func statusError(operation string, resp *http.Response) error {
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
	if msg := strings.TrimSpace(string(raw)); msg != "" {
		return &StatusError{Operation: operation, StatusCode: resp.StatusCode, Status: resp.Status, Body: msg}
	}
	return &StatusError{Operation: operation, StatusCode: resp.StatusCode, Status: resp.Status}
}
