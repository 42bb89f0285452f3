package usecase

import (
	"strings"
	"testing"
	"time"

	"github.com/mkravchenko/mediarag/internal/core/domain"
)

func docRetrievalHit(id string, similarity float64, snippet string) domain.RetrievalHit {
	return domain.RetrievalHit{
		Modality:   domain.ModalityDocument,
		SourceID:   id,
		Similarity: similarity,
		Snippet:    snippet,
		Metadata:   map[string]string{"source": id + ".pdf"},
	}
}

func TestAssembleEmitsSectionsInFixedOrder(t *testing.T) {
	assembler := NewContextAssembler(0, 0)

	bundle := assembler.Assemble(
		domain.ToolOutcome{State: domain.ToolStateOK, Tool: "web_search", Output: "1. Result"},
		map[domain.Modality][]domain.RetrievalHit{
			domain.ModalityChatMemory: {{
				Modality:   domain.ModalityChatMemory,
				SourceID:   "turn-1",
				Similarity: 0.9,
				Snippet:    "we discussed quarterly revenue",
				Metadata:   map[string]string{"role": "user"},
			}},
			domain.ModalityDocument: {docRetrievalHit("report", 0.8, "revenue grew by twelve percent")},
			domain.ModalityImage: {{
				Modality:   domain.ModalityImage,
				SourceID:   "img-1",
				Similarity: 0.7,
				Preview:    "cGl4ZWxz",
			}},
		},
		[]domain.Turn{{Role: domain.RoleUser, Content: "earlier question"}},
	)

	wantOrder := []domain.SectionLabel{
		domain.SectionToolOutput,
		domain.SectionDocuments,
		domain.SectionImages,
		domain.SectionChatMemory,
		domain.SectionHistory,
	}
	if len(bundle.Sections) != len(wantOrder) {
		t.Fatalf("section count = %d, want %d", len(bundle.Sections), len(wantOrder))
	}
	for i, label := range wantOrder {
		if bundle.Sections[i].Label != label {
			t.Fatalf("section[%d] = %s, want %s", i, bundle.Sections[i].Label, label)
		}
	}
	if len(bundle.Images) != 1 || bundle.Images[0].Data != "cGl4ZWxz" {
		t.Fatalf("expected one inline image, got %+v", bundle.Images)
	}
}

func TestAssembleOmitsEmptySections(t *testing.T) {
	assembler := NewContextAssembler(0, 0)

	bundle := assembler.Assemble(domain.NoToolOutcome(), nil, nil)
	if len(bundle.Sections) != 0 {
		t.Fatalf("expected empty bundle, got %d sections", len(bundle.Sections))
	}

	bundle = assembler.Assemble(
		domain.ToolOutcome{State: domain.ToolStateFailed, Tool: "web_search", Output: "partial"},
		nil, nil,
	)
	if bundle.HasSection(domain.SectionToolOutput) {
		t.Fatalf("failed tool outcome must not contribute a section")
	}
}

func TestAssembleSkipsVisualHitsWithoutPreview(t *testing.T) {
	assembler := NewContextAssembler(0, 0)

	bundle := assembler.Assemble(domain.NoToolOutcome(), map[domain.Modality][]domain.RetrievalHit{
		domain.ModalityVideoFrame: {{Modality: domain.ModalityVideoFrame, SourceID: "frame-1", Similarity: 0.9}},
	}, nil)
	if bundle.HasSection(domain.SectionFrames) {
		t.Fatalf("frame hit without preview must be skipped")
	}
}

func TestAssembleHistoryKeepsLastTurnsOldestFirst(t *testing.T) {
	assembler := NewContextAssembler(0, 2)

	base := time.Date(2026, 8, 1, 10, 0, 0, 0, time.UTC)
	history := []domain.Turn{
		{Role: domain.RoleUser, Content: "first", CreatedAt: base},
		{Role: domain.RoleAssistant, Content: "second", CreatedAt: base.Add(time.Minute)},
		{Role: domain.RoleUser, Content: "third", CreatedAt: base.Add(2 * time.Minute)},
	}

	bundle := assembler.Assemble(domain.NoToolOutcome(), nil, history)
	if len(bundle.Sections) != 1 || bundle.Sections[0].Label != domain.SectionHistory {
		t.Fatalf("expected only the history section, got %+v", bundle.Sections)
	}
	want := "assistant: second\nuser: third"
	if bundle.Sections[0].Text != want {
		t.Fatalf("history = %q, want %q", bundle.Sections[0].Text, want)
	}
}

func TestAssembleBudgetDropsLowestHitsWhole(t *testing.T) {
	long := strings.Repeat("x", 200)
	hits := map[domain.Modality][]domain.RetrievalHit{
		domain.ModalityDocument: {
			docRetrievalHit("high", 0.9, long),
			docRetrievalHit("mid", 0.6, long),
			docRetrievalHit("low", 0.3, long),
		},
	}
	assembler := NewContextAssembler(500, 0)

	bundle := assembler.Assemble(domain.NoToolOutcome(), hits, nil)
	if bundle.TextLength() > 500 {
		t.Fatalf("bundle length %d exceeds budget", bundle.TextLength())
	}
	text := bundle.Sections[0].Text
	if !strings.Contains(text, "high.pdf") {
		t.Fatalf("highest-similarity hit was dropped:\n%s", text)
	}
	if strings.Contains(text, "low.pdf") {
		t.Fatalf("lowest-similarity hit should be dropped first:\n%s", text)
	}
	// Every surviving line is a complete rendered snippet.
	for _, line := range strings.Split(text, "\n") {
		if !strings.HasPrefix(line, "- [Source: ") || !strings.HasSuffix(line, long) {
			t.Fatalf("snippet was cut mid-string: %q", line)
		}
	}
}

func TestAssembleBudgetDropsOldestHistoryAfterHits(t *testing.T) {
	long := strings.Repeat("h", 120)
	history := []domain.Turn{
		{Role: domain.RoleUser, Content: "old " + long},
		{Role: domain.RoleAssistant, Content: "new " + long},
	}
	assembler := NewContextAssembler(150, 6)

	bundle := assembler.Assemble(domain.NoToolOutcome(), nil, history)
	if bundle.TextLength() > 150 {
		t.Fatalf("bundle length %d exceeds budget", bundle.TextLength())
	}
	text := bundle.Sections[0].Text
	if strings.Contains(text, "old ") {
		t.Fatalf("oldest history line should be dropped first:\n%s", text)
	}
	if !strings.Contains(text, "new ") {
		t.Fatalf("newest history line must survive:\n%s", text)
	}
}

func TestAssembleToolOutputSurvivesBudgetPressure(t *testing.T) {
	toolText := strings.Repeat("t", 300)
	assembler := NewContextAssembler(100, 0)

	bundle := assembler.Assemble(
		domain.ToolOutcome{State: domain.ToolStateOK, Tool: "web_search", Output: toolText},
		map[domain.Modality][]domain.RetrievalHit{
			domain.ModalityDocument: {docRetrievalHit("doc", 0.5, strings.Repeat("d", 100))},
		},
		nil,
	)
	if !bundle.HasSection(domain.SectionToolOutput) {
		t.Fatalf("tool output must never be truncated away")
	}
	if bundle.HasSection(domain.SectionDocuments) {
		t.Fatalf("retrieval hits should be shed before tool output")
	}
}
