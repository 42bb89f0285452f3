package qdrant

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/mkravchenko/mediarag/internal/core/domain"
)

// MemoryWriter upserts embedded conversation turns into the chat-memory
// collection, creating it on first write.
type MemoryWriter struct {
	baseURL    string
	collection string
	httpClient *http.Client

	ensureMu          sync.Mutex
	ensuredCollection bool
	ensuredVectorSize int
}

func NewMemoryWriter(baseURL, collection string) *MemoryWriter {
	return &MemoryWriter{
		baseURL:    strings.TrimRight(baseURL, "/"),
		collection: collection,
		httpClient: &http.Client{Timeout: 60 * time.Second},
	}
}

func (w *MemoryWriter) IndexTurn(ctx context.Context, turn domain.Turn, vector []float32) error {
	if len(vector) == 0 {
		return nil
	}
	if err := w.ensureCollection(ctx, len(vector)); err != nil {
		return err
	}

	body, err := json.Marshal(map[string]any{
		"points": []map[string]any{
			{
				"id":     turn.ID,
				"vector": vector,
				"payload": map[string]any{
					"source_id":       turn.ID,
					"user_id":         turn.UserID,
					"conversation_id": turn.ConversationID,
					"role":            turn.Role,
					"text":            turn.Content,
					"created_at":      turn.CreatedAt.UTC().Format(time.RFC3339),
				},
			},
		},
	})
	if err != nil {
		return fmt.Errorf("marshal memory upsert body: %w", err)
	}

	url := fmt.Sprintf("%s/collections/%s/points?wait=true", w.baseURL, w.collection)
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create memory upsert request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := w.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("memory upsert request: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return statusError("memory upsert", resp)
	}
	return nil
}

func (w *MemoryWriter) ensureCollection(ctx context.Context, vectorSize int) error {
	w.ensureMu.Lock()
	if w.ensuredCollection && w.ensuredVectorSize == vectorSize {
		w.ensureMu.Unlock()
		return nil
	}
	w.ensureMu.Unlock()

	body, err := json.Marshal(map[string]any{
		"vectors": map[string]any{
			"size":     vectorSize,
			"distance": "Cosine",
		},
	})
	if err != nil {
		return fmt.Errorf("marshal create collection body: %w", err)
	}

	url := fmt.Sprintf("%s/collections/%s", w.baseURL, w.collection)
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create collection request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := w.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("qdrant ensure collection request: %w", err)
	}
	defer resp.Body.Close()

	// 200/201 for create, 409 when the collection already exists.
	if resp.StatusCode == http.StatusConflict {
		w.markEnsured(vectorSize)
		return nil
	}
	if resp.StatusCode >= 300 {
		return statusError("ensure collection", resp)
	}
	w.markEnsured(vectorSize)
	return nil
}

func (w *MemoryWriter) markEnsured(vectorSize int) {
	w.ensureMu.Lock()
	defer w.ensureMu.Unlock()
	w.ensuredCollection = true
	w.ensuredVectorSize = vectorSize
}
