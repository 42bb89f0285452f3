package usecase

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/mkravchenko/mediarag/internal/core/domain"
	"github.com/mkravchenko/mediarag/internal/core/ports"
)

const (
	ToolWebSearch        = "web_search"
	ToolTranscriptSearch = "transcript_search"
)

// WebSearchTool answers current-events lookups through the external
// search backend.
type WebSearchTool struct {
	searcher   ports.WebSearcher
	maxResults int
}

func NewWebSearchTool(searcher ports.WebSearcher, maxResults int) *WebSearchTool {
	if maxResults <= 0 {
		maxResults = 5
	}
	return &WebSearchTool{searcher: searcher, maxResults: maxResults}
}

func (t *WebSearchTool) Spec() domain.ToolSpec {
	return domain.ToolSpec{
		Name:        ToolWebSearch,
		Description: "Search the web for current information. Use for questions about recent events or facts not present in the uploaded content.",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"query": map[string]any{
					"type":        "string",
					"description": "Search keywords.",
				},
				"max_results": map[string]any{
					"type":        "integer",
					"description": "Maximum number of results.",
				},
			},
			"required": []string{"query"},
		},
	}
}

func (t *WebSearchTool) Execute(ctx context.Context, args map[string]any) (string, error) {
	query := strings.TrimSpace(stringArg(args, "query", ""))
	if query == "" {
		return "", fmt.Errorf("web search requires a query")
	}
	maxResults := intArg(args, "max_results", t.maxResults)

	results, err := t.searcher.Search(ctx, query, maxResults)
	if err != nil {
		return "", fmt.Errorf("web search: %w", err)
	}
	if len(results) == 0 {
		return "No results found.", nil
	}

	lines := make([]string, 0, len(results))
	for i, r := range results {
		lines = append(lines, fmt.Sprintf("%d. %s\n   URL: %s\n   %s", i+1, r.Title, r.URL, r.Snippet))
	}
	return strings.Join(lines, "\n"), nil
}

// TranscriptSearchTool searches ingested video transcripts through the
// same federation primitive that backs the retrieval steps.
type TranscriptSearchTool struct {
	federator *Federator
	limit     int
	threshold float64
}

func NewTranscriptSearchTool(federator *Federator, limit int, threshold float64) *TranscriptSearchTool {
	if limit <= 0 {
		limit = 10
	}
	return &TranscriptSearchTool{federator: federator, limit: limit, threshold: threshold}
}

func (t *TranscriptSearchTool) Spec() domain.ToolSpec {
	return domain.ToolSpec{
		Name:        ToolTranscriptSearch,
		Description: "Search transcripts of uploaded videos by semantic similarity. Use for questions about what was said in a video.",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"query": map[string]any{
					"type":        "string",
					"description": "What to look for in the transcripts.",
				},
			},
			"required": []string{"query"},
		},
	}
}

func (t *TranscriptSearchTool) Execute(ctx context.Context, args map[string]any) (string, error) {
	query := strings.TrimSpace(stringArg(args, "query", ""))
	if query == "" {
		return "", fmt.Errorf("transcript search requires a query")
	}

	hits, err := t.federator.Federate(ctx, query, []domain.Modality{domain.ModalityTranscript}, t.limit, t.threshold)
	if err != nil {
		return "", fmt.Errorf("transcript search: %w", err)
	}
	if len(hits) == 0 {
		return "No matching transcript segments found.", nil
	}

	lines := make([]string, 0, len(hits))
	for _, hit := range hits {
		source := hit.Metadata["source"]
		if source == "" {
			source = hit.SourceID
		}
		lines = append(lines, fmt.Sprintf("- [%s, similarity=%.2f] %s", source, hit.Similarity, hit.Snippet))
	}
	return strings.Join(lines, "\n"), nil
}

func stringArg(args map[string]any, key, fallback string) string {
	if args == nil {
		return fallback
	}
	value, ok := args[key]
	if !ok || value == nil {
		return fallback
	}
	switch typed := value.(type) {
	case string:
		return typed
	default:
		return fmt.Sprint(typed)
	}
}

func intArg(args map[string]any, key string, fallback int) int {
	if args == nil {
		return fallback
	}
	value, ok := args[key]
	if !ok || value == nil {
		return fallback
	}
	switch typed := value.(type) {
	case float64:
		return int(typed)
	case int:
		return typed
	case int64:
		return int(typed)
	case string:
		n, err := strconv.Atoi(strings.TrimSpace(typed))
		if err != nil {
			return fallback
		}
		return n
	default:
		return fallback
	}
}
