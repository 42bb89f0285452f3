package usecase

import (
	"fmt"
	"strings"

	"github.com/mkravchenko/mediarag/internal/core/domain"
)

const (
	defaultContextBudget = 12000
	defaultHistoryTurns  = 6
)

// ContextAssembler merges tool output, per-modality retrieval hits and
// recent history into one bounded prompt payload with a fixed section
// order.
type ContextAssembler struct {
	budget       int
	historyTurns int
}

func NewContextAssembler(budget, historyTurns int) *ContextAssembler {
	if budget <= 0 {
		budget = defaultContextBudget
	}
	if historyTurns <= 0 {
		historyTurns = defaultHistoryTurns
	}
	return &ContextAssembler{budget: budget, historyTurns: historyTurns}
}

type contextEntry struct {
	line       string
	similarity float64
	image      *domain.InlineImage
}

type assembly struct {
	tool    string
	entries map[domain.SectionLabel][]contextEntry
	history []string
}

// Assemble renders every contributing source into its fixed slot.
// When the character budget is exceeded, whole lowest-similarity hits
// are dropped first, then the oldest history lines; a retained snippet
// is never cut mid-string.
func (a *ContextAssembler) Assemble(
	tool domain.ToolOutcome,
	retrieved map[domain.Modality][]domain.RetrievalHit,
	history []domain.Turn,
) domain.ContextBundle {
	state := assembly{entries: make(map[domain.SectionLabel][]contextEntry)}

	if tool.State == domain.ToolStateOK && strings.TrimSpace(tool.Output) != "" {
		state.tool = strings.TrimSpace(tool.Output)
	}

	for _, modality := range domain.AllModalities {
		for _, hit := range retrieved[modality] {
			entry, ok := renderHit(hit)
			if !ok {
				continue
			}
			label := sectionForModality(modality)
			state.entries[label] = append(state.entries[label], entry)
		}
	}

	turns := history
	if len(turns) > a.historyTurns {
		turns = turns[len(turns)-a.historyTurns:]
	}
	for _, turn := range turns {
		content := strings.TrimSpace(turn.Content)
		if content == "" {
			continue
		}
		state.history = append(state.history, fmt.Sprintf("%s: %s", turn.Role, content))
	}

	bundle := buildBundle(state)
	for bundle.TextLength() > a.budget {
		if dropLowestEntry(&state) {
			bundle = buildBundle(state)
			continue
		}
		if len(state.history) > 0 {
			state.history = state.history[1:]
			bundle = buildBundle(state)
			continue
		}
		break
	}
	return bundle
}

func sectionForModality(modality domain.Modality) domain.SectionLabel {
	switch modality {
	case domain.ModalityImage:
		return domain.SectionImages
	case domain.ModalityVideoFrame:
		return domain.SectionFrames
	case domain.ModalityChatMemory:
		return domain.SectionChatMemory
	default:
		return domain.SectionDocuments
	}
}

func renderHit(hit domain.RetrievalHit) (contextEntry, bool) {
	source := hit.Metadata["source"]
	if source == "" {
		source = hit.SourceID
	}

	if hit.Modality.IsVisual() {
		if hit.Preview == "" {
			return contextEntry{}, false
		}
		return contextEntry{
			line:       fmt.Sprintf("- [Source: %s] (image attached)", source),
			similarity: hit.Similarity,
			image: &domain.InlineImage{
				Modality: hit.Modality,
				SourceID: hit.SourceID,
				Data:     hit.Preview,
				Metadata: hit.Metadata,
			},
		}, true
	}

	snippet := strings.TrimSpace(hit.Snippet)
	if snippet == "" {
		return contextEntry{}, false
	}
	if hit.Modality == domain.ModalityChatMemory {
		role := hit.Metadata["role"]
		if role == "" {
			role = "unknown"
		}
		return contextEntry{
			line:       fmt.Sprintf("- [%s] %s", role, snippet),
			similarity: hit.Similarity,
		}, true
	}
	return contextEntry{
		line:       fmt.Sprintf("- [Source: %s] %s", source, snippet),
		similarity: hit.Similarity,
	}, true
}

func buildBundle(state assembly) domain.ContextBundle {
	var bundle domain.ContextBundle

	for _, label := range domain.SectionOrder {
		switch label {
		case domain.SectionToolOutput:
			if state.tool != "" {
				bundle.Sections = append(bundle.Sections, domain.ContextSection{Label: label, Text: state.tool})
			}
		case domain.SectionHistory:
			if len(state.history) > 0 {
				bundle.Sections = append(bundle.Sections, domain.ContextSection{
					Label: label,
					Text:  strings.Join(state.history, "\n"),
				})
			}
		default:
			entries := state.entries[label]
			if len(entries) == 0 {
				continue
			}
			lines := make([]string, 0, len(entries))
			for _, entry := range entries {
				lines = append(lines, entry.line)
				if entry.image != nil {
					bundle.Images = append(bundle.Images, *entry.image)
				}
			}
			bundle.Sections = append(bundle.Sections, domain.ContextSection{
				Label: label,
				Text:  strings.Join(lines, "\n"),
			})
		}
	}
	return bundle
}

// dropLowestEntry removes the globally lowest-similarity hit. Returns
// false when no droppable hit remains.
func dropLowestEntry(state *assembly) bool {
	var (
		lowestLabel domain.SectionLabel
		lowestIdx   = -1
		lowestSim   float64
	)
	for _, label := range domain.SectionOrder {
		for i, entry := range state.entries[label] {
			if lowestIdx == -1 || entry.similarity < lowestSim {
				lowestLabel = label
				lowestIdx = i
				lowestSim = entry.similarity
			}
		}
	}
	if lowestIdx == -1 {
		return false
	}
	entries := state.entries[lowestLabel]
	state.entries[lowestLabel] = append(entries[:lowestIdx], entries[lowestIdx+1:]...)
	return true
}
