package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/mkravchenko/mediarag/internal/core/domain"
	"github.com/mkravchenko/mediarag/internal/core/ports"
)

const (
	defaultFederateLimit   = 30
	defaultModalityTimeout = 10 * time.Second

	// Transcript indices return many near-duplicate sentences; fetch
	// extra so de-duplication still fills the requested limit.
	transcriptOverfetch = 3

	// Document chunks shorter than this are headings or page noise.
	minDocumentSnippetLen = 30
)

// Federator fans one query out to independent modality indices and
// merges the results onto a shared similarity scale.
type Federator struct {
	index   ports.ModalityIndex
	timeout time.Duration
}

func NewFederator(index ports.ModalityIndex, timeout time.Duration) *Federator {
	if timeout <= 0 {
		timeout = defaultModalityTimeout
	}
	return &Federator{index: index, timeout: timeout}
}

// Federate searches every requested modality independently and returns
// one merged ranking. A failing modality contributes zero hits; the
// call errors only when every modality fails.
func (f *Federator) Federate(
	ctx context.Context,
	queryText string,
	modalities []domain.Modality,
	limit int,
	threshold float64,
) ([]domain.RetrievalHit, error) {
	queryText = strings.TrimSpace(queryText)
	if queryText == "" {
		return nil, domain.WrapError(domain.ErrInvalidInput, "federate", fmt.Errorf("query text is required"))
	}
	if len(modalities) == 0 {
		modalities = domain.AllModalities
	}
	for _, m := range modalities {
		if !m.Valid() {
			return nil, domain.WrapError(domain.ErrInvalidInput, "federate", fmt.Errorf("unknown modality: %s", m))
		}
	}
	if limit <= 0 {
		limit = defaultFederateLimit
	}
	if threshold < 0 {
		threshold = 0
	}

	perModality := make([][]domain.SourceHit, len(modalities))
	failures := make([]error, len(modalities))

	var wg sync.WaitGroup
	for i, modality := range modalities {
		wg.Add(1)
		go func(i int, modality domain.Modality) {
			defer wg.Done()
			searchCtx, cancel := context.WithTimeout(ctx, f.timeout)
			defer cancel()

			fetch := limit
			if modality == domain.ModalityTranscript {
				fetch = limit * transcriptOverfetch
			}
			hits, err := f.index.Search(searchCtx, modality, queryText, fetch)
			if err != nil {
				failures[i] = err
				slog.Warn("modality_search_failed", "modality", modality, "error", err)
				return
			}
			perModality[i] = hits
		}(i, modality)
	}
	wg.Wait()

	failed := 0
	for _, err := range failures {
		if err != nil {
			failed++
		}
	}
	if failed == len(modalities) {
		return nil, domain.WrapError(domain.ErrModalityUnavailable, "federate",
			fmt.Errorf("all %d modality searches failed, first: %w", failed, firstError(failures)))
	}

	merged := make([]domain.RetrievalHit, 0, limit)
	for i, modality := range modalities {
		merged = append(merged, normalizeModalityHits(modality, perModality[i])...)
	}

	sort.SliceStable(merged, func(i, j int) bool {
		if merged[i].Similarity != merged[j].Similarity {
			return merged[i].Similarity > merged[j].Similarity
		}
		if merged[i].Modality != merged[j].Modality {
			return merged[i].Modality.Priority() < merged[j].Modality.Priority()
		}
		return merged[i].SourceID < merged[j].SourceID
	})

	filtered := merged[:0]
	for _, hit := range merged {
		if hit.Similarity >= threshold {
			filtered = append(filtered, hit)
		}
	}
	if len(filtered) > limit {
		filtered = filtered[:limit]
	}
	return filtered, nil
}

// normalizeModalityHits rescales native scores to [0,1] and applies the
// per-modality hygiene filters.
func normalizeModalityHits(modality domain.Modality, hits []domain.SourceHit) []domain.RetrievalHit {
	out := make([]domain.RetrievalHit, 0, len(hits))
	seenSnippets := make(map[string]struct{})

	for _, hit := range hits {
		if modality == domain.ModalityDocument && len(strings.TrimSpace(hit.Snippet)) < minDocumentSnippetLen {
			continue
		}
		if modality == domain.ModalityTranscript {
			key := strings.TrimSpace(hit.Snippet)
			if _, dup := seenSnippets[key]; dup {
				continue
			}
			seenSnippets[key] = struct{}{}
		}
		out = append(out, domain.RetrievalHit{
			Modality:   modality,
			SourceID:   hit.SourceID,
			Similarity: domain.NormalizeScore(hit.Score, hit.Metric),
			Snippet:    hit.Snippet,
			Preview:    hit.Preview,
			Metadata:   hit.Metadata,
		})
	}
	return out
}

func firstError(errs []error) error {
	for _, err := range errs {
		if err != nil {
			return err
		}
	}
	return nil
}
