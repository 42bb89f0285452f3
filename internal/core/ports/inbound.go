package ports

import (
	"context"

	"github.com/mkravchenko/mediarag/internal/core/domain"
)

// AgentQueryService is the inbound contract for one query → one answer.
type AgentQueryService interface {
	RunQuery(ctx context.Context, query domain.Query) (*domain.Answer, error)
}

// FederatedSearchService is the inbound contract for cross-modal search.
type FederatedSearchService interface {
	Federate(ctx context.Context, queryText string, modalities []domain.Modality, limit int, threshold float64) ([]domain.RetrievalHit, error)
}

// ConversationService is the inbound read/delete model over stored turns.
type ConversationService interface {
	ListConversations(ctx context.Context, userID string) ([]domain.ConversationSummary, error)
	GetConversation(ctx context.Context, userID, conversationID string) ([]domain.Turn, error)
	DeleteConversation(ctx context.Context, userID, conversationID string) error
}

// MemoryTurnIndexer is the inbound contract of the chat-memory worker.
type MemoryTurnIndexer interface {
	IndexTurnByID(ctx context.Context, turnID string) error
}
