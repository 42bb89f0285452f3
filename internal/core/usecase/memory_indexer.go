package usecase

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/mkravchenko/mediarag/internal/core/ports"
)

// MemoryIndexUseCase embeds persisted turns into the chat-memory index
// so later runs can retrieve conversational memory semantically. It is
// driven by the worker consuming turn-recorded events.
type MemoryIndexUseCase struct {
	store       ports.ConversationStore
	embedder    ports.Embedder
	index       ports.MemoryIndex
	lagObserver func(time.Duration)
}

func NewMemoryIndexUseCase(store ports.ConversationStore, embedder ports.Embedder, index ports.MemoryIndex) *MemoryIndexUseCase {
	return &MemoryIndexUseCase{store: store, embedder: embedder, index: index}
}

// OnEventLag registers an observer for the delay between a turn being
// persisted and its indexing starting.
func (uc *MemoryIndexUseCase) OnEventLag(fn func(time.Duration)) {
	uc.lagObserver = fn
}

func (uc *MemoryIndexUseCase) IndexTurnByID(ctx context.Context, turnID string) error {
	turnID = strings.TrimSpace(turnID)
	if turnID == "" {
		return fmt.Errorf("index turn: turn id is required")
	}

	turn, err := uc.store.GetTurn(ctx, turnID)
	if err != nil {
		return fmt.Errorf("load turn %s: %w", turnID, err)
	}
	if uc.lagObserver != nil {
		uc.lagObserver(time.Since(turn.CreatedAt))
	}
	content := strings.TrimSpace(turn.Content)
	if content == "" {
		return nil
	}

	vector, err := uc.embedder.EmbedQuery(ctx, content)
	if err != nil {
		return fmt.Errorf("embed turn %s: %w", turnID, err)
	}
	if len(vector) == 0 {
		return fmt.Errorf("embed turn %s: empty vector", turnID)
	}

	if err := uc.index.IndexTurn(ctx, *turn, vector); err != nil {
		return fmt.Errorf("index turn %s: %w", turnID, err)
	}
	return nil
}
