package ports

import (
	"context"

	"github.com/mkravchenko/mediarag/internal/core/domain"
)

// ModalityIndex performs similarity search over one or more content
// modalities. Hits carry the backend's native score; normalization to
// the shared scale is the federator's job.
type ModalityIndex interface {
	Search(ctx context.Context, modality domain.Modality, queryText string, k int) ([]domain.SourceHit, error)
}

// ModelProvider is the stateless language-model collaborator. With a
// non-empty tool list the response may be a tool invocation request;
// without tools it is always free text.
type ModelProvider interface {
	Generate(ctx context.Context, messages []domain.ModelMessage, tools []domain.ToolSpec) (*domain.ModelResponse, error)
}

// Tool is one entry of the fixed tool registry.
type Tool interface {
	Spec() domain.ToolSpec
	Execute(ctx context.Context, args map[string]any) (string, error)
}

// WebSearcher is the external search backend behind the web_search tool.
type WebSearcher interface {
	Search(ctx context.Context, query string, maxResults int) ([]domain.WebResult, error)
}

// ConversationStore is the append-only turn log. Append creates the
// conversation implicitly on first write.
type ConversationStore interface {
	Append(ctx context.Context, turn domain.Turn) error
	List(ctx context.Context, userID, conversationID string) ([]domain.Turn, error)
	ListRecent(ctx context.Context, userID, conversationID string, limit int) ([]domain.Turn, error)
	ListConversations(ctx context.Context, userID string) ([]domain.ConversationSummary, error)
	Delete(ctx context.Context, userID, conversationID string) (int, error)
	GetTurn(ctx context.Context, turnID string) (*domain.Turn, error)
}

// Embedder builds vectors for turn content indexed into chat memory.
type Embedder interface {
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
}

// MemoryIndex upserts embedded turns into the chat-memory index.
type MemoryIndex interface {
	IndexTurn(ctx context.Context, turn domain.Turn, vector []float32) error
}

// TurnEventBus decouples turn persistence from chat-memory indexing.
type TurnEventBus interface {
	PublishTurnRecorded(ctx context.Context, turnID string) error
	SubscribeTurnRecorded(ctx context.Context, handler func(context.Context, string) error) error
}
