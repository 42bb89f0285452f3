package config

import (
	"testing"
	"time"

	"github.com/mkravchenko/mediarag/internal/core/domain"
)

func TestLoadThresholdDefaults(t *testing.T) {
	t.Setenv("DOCUMENT_THRESHOLD", "")
	t.Setenv("IMAGE_THRESHOLD", "")
	t.Setenv("TRANSCRIPT_THRESHOLD", "")
	t.Setenv("CHAT_MEMORY_THRESHOLD", "")

	cfg := Load()
	thresholds := cfg.Thresholds()
	if thresholds[domain.ModalityDocument] != 0.5 {
		t.Fatalf("expected default document threshold 0.5, got %v", thresholds[domain.ModalityDocument])
	}
	if thresholds[domain.ModalityImage] != 0.25 {
		t.Fatalf("expected default image threshold 0.25, got %v", thresholds[domain.ModalityImage])
	}
	if thresholds[domain.ModalityTranscript] != 0.7 {
		t.Fatalf("expected default transcript threshold 0.7, got %v", thresholds[domain.ModalityTranscript])
	}
	if thresholds[domain.ModalityChatMemory] != 0.8 {
		t.Fatalf("expected default chat memory threshold 0.8, got %v", thresholds[domain.ModalityChatMemory])
	}
}

func TestLoadParsesOverrides(t *testing.T) {
	t.Setenv("DOCUMENT_THRESHOLD", "0.65")
	t.Setenv("RETRIEVAL_TOP_K", "8")
	t.Setenv("PLANNER_TIMEOUT_SECONDS", "5")
	t.Setenv("NATS_SUBJECT", "agent.turns.test")

	cfg := Load()
	if cfg.DocumentThreshold != 0.65 {
		t.Fatalf("expected document threshold 0.65, got %v", cfg.DocumentThreshold)
	}
	if cfg.RetrievalTopK != 8 {
		t.Fatalf("expected retrieval top k 8, got %d", cfg.RetrievalTopK)
	}
	if cfg.PlannerTimeout() != 5*time.Second {
		t.Fatalf("expected planner timeout 5s, got %v", cfg.PlannerTimeout())
	}
	if cfg.NATSSubject != "agent.turns.test" {
		t.Fatalf("expected subject override, got %q", cfg.NATSSubject)
	}
}

func TestLoadIgnoresMalformedNumbers(t *testing.T) {
	t.Setenv("CONTEXT_BUDGET_CHARS", "lots")
	t.Setenv("IMAGE_THRESHOLD", "low")

	cfg := Load()
	if cfg.ContextBudgetChars != 12000 {
		t.Fatalf("expected fallback context budget 12000, got %d", cfg.ContextBudgetChars)
	}
	if cfg.ImageThreshold != 0.25 {
		t.Fatalf("expected fallback image threshold 0.25, got %v", cfg.ImageThreshold)
	}
}

func TestCollectionsCoverAllModalities(t *testing.T) {
	cfg := Load()
	collections := cfg.Collections()
	for _, modality := range domain.AllModalities {
		if collections[modality] == "" {
			t.Fatalf("missing collection for modality %s", modality)
		}
	}
}
