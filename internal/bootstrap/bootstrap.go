package bootstrap

import (
	"context"
	"fmt"
	"time"

	"github.com/mkravchenko/mediarag/internal/config"
	"github.com/mkravchenko/mediarag/internal/core/domain"
	"github.com/mkravchenko/mediarag/internal/core/ports"
	"github.com/mkravchenko/mediarag/internal/core/usecase"
	"github.com/mkravchenko/mediarag/internal/infrastructure/llm/ollama"
	"github.com/mkravchenko/mediarag/internal/infrastructure/queue/nats"
	"github.com/mkravchenko/mediarag/internal/infrastructure/repository/postgres"
	"github.com/mkravchenko/mediarag/internal/infrastructure/resilience"
	"github.com/mkravchenko/mediarag/internal/infrastructure/search/duckduckgo"
	"github.com/mkravchenko/mediarag/internal/infrastructure/vector/qdrant"
)

type App struct {
	Config config.Config

	Agent         *usecase.AgentPipeline
	Search        ports.FederatedSearchService
	Conversations ports.ConversationService
	Indexer       *usecase.MemoryIndexUseCase
	Events        ports.TurnEventBus

	closeFn func()
}

func New(ctx context.Context, cfg config.Config) (*App, error) {
	db, err := postgres.OpenDB(cfg.PostgresDSN)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	store := postgres.NewTurnRepository(db)
	if err := store.EnsureSchema(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ensure schema: %w", err)
	}

	policy := resilience.DefaultPolicy()
	policy.MaxAttempts = cfg.RetryMaxAttempts
	policy.InitialBackoff = time.Duration(cfg.RetryInitialBackoffMS) * time.Millisecond
	executor := resilience.NewExecutor(policy)

	events, err := nats.NewWithOptions(cfg.NATSURL, cfg.NATSSubject, nats.Options{
		QueueGroup:         cfg.NATSQueueGroup,
		ResilienceExecutor: executor,
	})
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("init event bus: %w", err)
	}

	ollamaClient := ollama.New(cfg.OllamaURL, ollama.Models{
		ChatModel:        cfg.OllamaChatModel,
		TextEmbedModel:   cfg.OllamaTextEmbedModel,
		VisualEmbedModel: cfg.OllamaVisualEmbedModel,
	}, executor)
	ollamaClient.SetGenerationOptions(ollama.GenerationOptions{
		Temperature: cfg.OllamaTemperature,
		MaxTokens:   cfg.OllamaMaxTokens,
	})
	provider := ollama.NewChatProvider(ollamaClient)
	embedder := ollama.NewEmbedder(ollamaClient)
	modalityEmbedder := ollama.NewModalityEmbedder(ollamaClient)

	index := qdrant.NewIndex(cfg.QdrantURL, qdrant.Collections(cfg.Collections()), modalityEmbedder, executor)
	memoryWriter := qdrant.NewMemoryWriter(cfg.QdrantURL, cfg.QdrantMemoryCollection)

	federator := usecase.NewFederator(index, cfg.RetrievalTimeout())
	assembler := usecase.NewContextAssembler(cfg.ContextBudgetChars, cfg.HistoryTurns)

	searcher := duckduckgo.New(cfg.SearchURL)
	invoker := usecase.NewToolInvoker(
		cfg.ToolTimeout(),
		usecase.NewWebSearchTool(searcher, cfg.SearchMaxResults),
		usecase.NewTranscriptSearchTool(federator, cfg.TranscriptToolTopK, cfg.TranscriptThreshold),
	)

	pipeline := usecase.NewAgentPipeline(provider, invoker, federator, assembler, store, events, usecase.PipelineConfig{
		Limits: domain.PipelineLimits{
			PlannerTimeout:   cfg.PlannerTimeout(),
			FinalTimeout:     cfg.FinalTimeout(),
			ToolTimeout:      cfg.ToolTimeout(),
			RetrievalTimeout: cfg.RetrievalTimeout(),
			HistoryTurns:     cfg.HistoryTurns,
			ContextBudget:    cfg.ContextBudgetChars,
			RetrievalLimit:   cfg.RetrievalTopK,
		},
		Prompts: usecase.PipelinePrompts{
			Planning: cfg.PlanningPrompt,
			Final:    cfg.FinalPrompt,
		},
		Thresholds: cfg.Thresholds(),
	})

	conversations := usecase.NewConversationUseCase(store)
	indexer := usecase.NewMemoryIndexUseCase(store, embedder, memoryWriter)

	return &App{
		Config: cfg,

		Agent:         pipeline,
		Search:        federator,
		Conversations: conversations,
		Indexer:       indexer,
		Events:        events,

		closeFn: func() {
			events.Close()
			_ = db.Close()
		},
	}, nil
}

func (a *App) Close() {
	if a.closeFn != nil {
		a.closeFn()
	}
}
