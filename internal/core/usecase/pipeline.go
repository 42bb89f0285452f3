package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/mkravchenko/mediarag/internal/core/domain"
	"github.com/mkravchenko/mediarag/internal/core/ports"
)

const fallbackAnswer = "I could not produce an answer from the available context. Please try rephrasing the question."

// PipelinePrompts carries the two system prompts of the run.
type PipelinePrompts struct {
	Planning string
	Final    string
}

// PipelineConfig fixes the retrieval topology of every run.
type PipelineConfig struct {
	Limits        domain.PipelineLimits
	Prompts       PipelinePrompts
	RAGModalities []domain.Modality
	// Thresholds holds the per-modality similarity floor passed to the
	// federator for each retrieval step.
	Thresholds map[domain.Modality]float64
}

// AgentPipeline evaluates the fixed step graph for one query:
// plan → (tool execution ∥ federated retrieval ∥ history fetch) →
// assembly → final generation → extraction and persistence.
type AgentPipeline struct {
	provider  ports.ModelProvider
	invoker   *ToolInvoker
	federator *Federator
	assembler *ContextAssembler
	store     ports.ConversationStore
	events    ports.TurnEventBus
	cfg       PipelineConfig
	observer  PipelineObserver
}

// PipelineObserver receives step-level signals for instrumentation.
// Implementations must be safe for concurrent use; steps fire from
// separate goroutines.
type PipelineObserver interface {
	ToolInvoked(tool, status string)
	ModalityDegraded(modality string)
}

// SetObserver attaches an observer. Must be called before the first
// RunQuery.
func (p *AgentPipeline) SetObserver(obs PipelineObserver) {
	p.observer = obs
}

func NewAgentPipeline(
	provider ports.ModelProvider,
	invoker *ToolInvoker,
	federator *Federator,
	assembler *ContextAssembler,
	store ports.ConversationStore,
	events ports.TurnEventBus,
	cfg PipelineConfig,
) *AgentPipeline {
	if cfg.Limits.PlannerTimeout <= 0 {
		cfg.Limits.PlannerTimeout = 20 * time.Second
	}
	if cfg.Limits.FinalTimeout <= 0 {
		cfg.Limits.FinalTimeout = 60 * time.Second
	}
	if cfg.Limits.RetrievalTimeout <= 0 {
		cfg.Limits.RetrievalTimeout = 10 * time.Second
	}
	if cfg.Limits.HistoryTurns <= 0 {
		cfg.Limits.HistoryTurns = defaultHistoryTurns
	}
	if cfg.Limits.RetrievalLimit <= 0 {
		cfg.Limits.RetrievalLimit = 5
	}
	if len(cfg.RAGModalities) == 0 {
		cfg.RAGModalities = []domain.Modality{
			domain.ModalityDocument,
			domain.ModalityImage,
			domain.ModalityVideoFrame,
			domain.ModalityChatMemory,
		}
	}
	return &AgentPipeline{
		provider:  provider,
		invoker:   invoker,
		federator: federator,
		assembler: assembler,
		store:     store,
		events:    events,
		cfg:       cfg,
	}
}

// planOutcome is the typed output of the planning step.
type planOutcome struct {
	toolCall *domain.ToolCallRequest
}

// retrievalOutcome is the joined output of the per-modality fan-out.
// A degraded modality is indistinguishable from zero hits downstream.
type retrievalOutcome struct {
	hits     map[domain.Modality][]domain.RetrievalHit
	degraded []domain.Modality
}

// RunQuery evaluates the whole graph. It returns an error only when a
// model-provider call fails after its own retry; every other failure
// degrades the context and the run still answers.
func (p *AgentPipeline) RunQuery(ctx context.Context, query domain.Query) (*domain.Answer, error) {
	text := strings.TrimSpace(query.Text)
	if text == "" {
		return nil, domain.WrapError(domain.ErrInvalidInput, "run query", fmt.Errorf("query text is required"))
	}
	conversationID := strings.TrimSpace(query.ConversationID)
	if conversationID == "" {
		conversationID = uuid.NewString()
	}
	if query.SubmittedAt.IsZero() {
		query.SubmittedAt = time.Now().UTC()
	}

	plan, err := p.plan(ctx, text)
	if err != nil {
		return nil, err
	}

	var (
		tool      domain.ToolOutcome
		retrieval retrievalOutcome
		history   []domain.Turn
	)

	// Tool execution, retrieval and history fetch depend only on the
	// planning output; run them concurrently. All three capture their
	// failures as values, so the group never aborts.
	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error {
		tool = p.invoker.Invoke(groupCtx, plan.toolCall)
		if tool.State == domain.ToolStateFailed {
			slog.Warn("tool_step_degraded", "tool", tool.Tool, "error", tool.Failure)
		}
		if p.observer != nil && tool.State != domain.ToolStateNone {
			p.observer.ToolInvoked(tool.Tool, string(tool.State))
		}
		return nil
	})
	group.Go(func() error {
		retrieval = p.retrieve(groupCtx, text)
		return nil
	})
	group.Go(func() error {
		history = p.fetchHistory(groupCtx, query.UserID, conversationID)
		return nil
	})
	_ = group.Wait()

	bundle := p.assembler.Assemble(tool, retrieval.hits, history)

	answerText, genErr := p.generateFinal(ctx, text, bundle)
	if genErr != nil {
		return nil, genErr
	}

	answer := &domain.Answer{
		ConversationID: conversationID,
		Text:           answerText,
		Metadata: domain.AnswerMetadata{
			Timestamp:       query.SubmittedAt,
			HasDocContext:   bundle.HasSection(domain.SectionDocuments),
			HasImageContext: bundle.HasSection(domain.SectionImages),
			HasToolOutput:   bundle.HasSection(domain.SectionToolOutput),
		},
	}

	p.persistTurns(ctx, query, conversationID, answer)
	return answer, nil
}

func (p *AgentPipeline) plan(ctx context.Context, text string) (planOutcome, error) {
	planCtx, cancel := context.WithTimeout(ctx, p.cfg.Limits.PlannerTimeout)
	defer cancel()

	messages := []domain.ModelMessage{
		{Role: "system", Content: p.cfg.Prompts.Planning},
		{Role: domain.RoleUser, Content: text},
	}
	resp, err := p.provider.Generate(planCtx, messages, p.invoker.Specs())
	if err != nil {
		return planOutcome{}, domain.WrapError(domain.ErrModelProvider, "planning", err)
	}
	// A direct textual answer at this stage is not authoritative; the
	// run proceeds through retrieval and final generation regardless.
	return planOutcome{toolCall: resp.ToolCall}, nil
}

func (p *AgentPipeline) retrieve(ctx context.Context, text string) retrievalOutcome {
	out := retrievalOutcome{hits: make(map[domain.Modality][]domain.RetrievalHit, len(p.cfg.RAGModalities))}

	group, groupCtx := errgroup.WithContext(ctx)
	results := make([][]domain.RetrievalHit, len(p.cfg.RAGModalities))
	failed := make([]bool, len(p.cfg.RAGModalities))

	for i, modality := range p.cfg.RAGModalities {
		group.Go(func() error {
			retrievalCtx, cancel := context.WithTimeout(groupCtx, p.cfg.Limits.RetrievalTimeout)
			defer cancel()

			hits, err := p.federator.Federate(
				retrievalCtx,
				text,
				[]domain.Modality{modality},
				p.cfg.Limits.RetrievalLimit,
				p.cfg.Thresholds[modality],
			)
			if err != nil {
				failed[i] = true
				slog.Warn("retrieval_step_degraded", "modality", modality, "error", err)
				return nil
			}
			results[i] = hits
			return nil
		})
	}
	_ = group.Wait()

	for i, modality := range p.cfg.RAGModalities {
		if failed[i] {
			out.degraded = append(out.degraded, modality)
			if p.observer != nil {
				p.observer.ModalityDegraded(string(modality))
			}
			continue
		}
		out.hits[modality] = results[i]
	}
	return out
}

func (p *AgentPipeline) fetchHistory(ctx context.Context, userID, conversationID string) []domain.Turn {
	if strings.TrimSpace(conversationID) == "" {
		return nil
	}
	turns, err := p.store.ListRecent(ctx, userID, conversationID, p.cfg.Limits.HistoryTurns)
	if err != nil {
		slog.Warn("history_step_degraded", "conversation_id", conversationID, "error", err)
		return nil
	}
	return turns
}

func (p *AgentPipeline) generateFinal(ctx context.Context, text string, bundle domain.ContextBundle) (string, error) {
	finalCtx, cancel := context.WithTimeout(ctx, p.cfg.Limits.FinalTimeout)
	defer cancel()

	// The final call offers no tools: one answer, no further chaining.
	resp, err := p.provider.Generate(finalCtx, renderFinalMessages(p.cfg.Prompts.Final, text, bundle), nil)
	if err != nil {
		return "", domain.WrapError(domain.ErrModelProvider, "final generation", err)
	}

	answerText := strings.TrimSpace(resp.Text)
	if answerText == "" || resp.ToolCall != nil {
		slog.Warn("answer_extraction_failed",
			"error", domain.WrapError(domain.ErrMalformedModelResponse, "extract answer", fmt.Errorf("response carries no answer text")))
		return fallbackAnswer, nil
	}
	return answerText, nil
}

func (p *AgentPipeline) persistTurns(ctx context.Context, query domain.Query, conversationID string, answer *domain.Answer) {
	userTurn := domain.Turn{
		ID:             uuid.NewString(),
		ConversationID: conversationID,
		UserID:         query.UserID,
		Role:           domain.RoleUser,
		Content:        strings.TrimSpace(query.Text),
		CreatedAt:      query.SubmittedAt,
	}
	assistantTurn := domain.Turn{
		ID:             uuid.NewString(),
		ConversationID: conversationID,
		UserID:         query.UserID,
		Role:           domain.RoleAssistant,
		Content:        answer.Text,
		Sources: domain.TurnSources{
			DocContext:   answer.Metadata.HasDocContext,
			ImageContext: answer.Metadata.HasImageContext,
			ToolOutput:   answer.Metadata.HasToolOutput,
		},
		CreatedAt: time.Now().UTC(),
	}

	for _, turn := range []domain.Turn{userTurn, assistantTurn} {
		if err := p.store.Append(ctx, turn); err != nil {
			slog.Error("turn_persist_failed", "conversation_id", conversationID, "role", turn.Role, "error", err)
			return
		}
		if p.events != nil {
			if err := p.events.PublishTurnRecorded(ctx, turn.ID); err != nil {
				slog.Warn("turn_event_publish_failed", "turn_id", turn.ID, "error", err)
			}
		}
	}
}

// sectionHeaders maps bundle labels onto the prompt headers of the
// final user message.
var sectionHeaders = map[domain.SectionLabel]string{
	domain.SectionToolOutput: "[TOOL RESULTS]",
	domain.SectionDocuments:  "[DOCUMENT CONTEXT]",
	domain.SectionImages:     "[IMAGE CONTEXT]",
	domain.SectionFrames:     "[VIDEO FRAME CONTEXT]",
	domain.SectionChatMemory: "[CHAT HISTORY CONTEXT]",
	domain.SectionHistory:    "[RECENT CONVERSATION]",
}

// renderFinalMessages flattens the bundle into the final-generation
// message list. Images ride on the user message instead of the text
// budget.
func renderFinalMessages(systemPrompt, question string, bundle domain.ContextBundle) []domain.ModelMessage {
	var b strings.Builder
	b.WriteString("ORIGINAL QUESTION:\n")
	b.WriteString(question)
	b.WriteString("\n\nAVAILABLE CONTEXT:\n")
	for _, section := range bundle.Sections {
		b.WriteString("\n")
		b.WriteString(sectionHeaders[section.Label])
		b.WriteString("\n")
		b.WriteString(section.Text)
		b.WriteString("\n")
	}

	images := make([]string, 0, len(bundle.Images))
	for _, img := range bundle.Images {
		images = append(images, img.Data)
	}

	return []domain.ModelMessage{
		{Role: "system", Content: systemPrompt},
		{Role: domain.RoleUser, Content: strings.TrimSpace(b.String()), Images: images},
	}
}
