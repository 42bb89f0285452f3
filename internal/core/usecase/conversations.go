package usecase

import (
	"context"
	"fmt"
	"strings"

	"github.com/mkravchenko/mediarag/internal/core/domain"
	"github.com/mkravchenko/mediarag/internal/core/ports"
)

// ConversationUseCase exposes the stored turn log to callers.
type ConversationUseCase struct {
	store ports.ConversationStore
}

func NewConversationUseCase(store ports.ConversationStore) *ConversationUseCase {
	return &ConversationUseCase{store: store}
}

func (uc *ConversationUseCase) ListConversations(ctx context.Context, userID string) ([]domain.ConversationSummary, error) {
	summaries, err := uc.store.ListConversations(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list conversations: %w", err)
	}
	return summaries, nil
}

func (uc *ConversationUseCase) GetConversation(ctx context.Context, userID, conversationID string) ([]domain.Turn, error) {
	conversationID = strings.TrimSpace(conversationID)
	if conversationID == "" {
		return nil, domain.WrapError(domain.ErrInvalidInput, "get conversation", fmt.Errorf("conversation id is required"))
	}
	turns, err := uc.store.List(ctx, userID, conversationID)
	if err != nil {
		return nil, fmt.Errorf("get conversation: %w", err)
	}
	if len(turns) == 0 {
		return nil, domain.WrapError(domain.ErrConversationNotFound, "get conversation", fmt.Errorf("conversation %s has no turns", conversationID))
	}
	return turns, nil
}

// DeleteConversation removes every turn of the conversation atomically.
// Deleting an unknown id succeeds: the end state is the same.
func (uc *ConversationUseCase) DeleteConversation(ctx context.Context, userID, conversationID string) error {
	conversationID = strings.TrimSpace(conversationID)
	if conversationID == "" {
		return domain.WrapError(domain.ErrInvalidInput, "delete conversation", fmt.Errorf("conversation id is required"))
	}
	if _, err := uc.store.Delete(ctx, userID, conversationID); err != nil {
		return fmt.Errorf("delete conversation: %w", err)
	}
	return nil
}
