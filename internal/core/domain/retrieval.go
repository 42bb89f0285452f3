package domain

// Modality identifies one independently indexed content space.
type Modality string

const (
	ModalityDocument   Modality = "document"
	ModalityImage      Modality = "image"
	ModalityVideoFrame Modality = "video_frame"
	ModalityTranscript Modality = "transcript"
	ModalityChatMemory Modality = "chat_memory"
)

// AllModalities is the closed set in merge-priority order.
var AllModalities = []Modality{
	ModalityDocument,
	ModalityImage,
	ModalityVideoFrame,
	ModalityTranscript,
	ModalityChatMemory,
}

// Priority returns the tie-break rank used when merged hits have equal
// similarity. Lower ranks sort first. Unknown modalities sort last.
func (m Modality) Priority() int {
	for i, known := range AllModalities {
		if m == known {
			return i
		}
	}
	return len(AllModalities)
}

func (m Modality) Valid() bool {
	for _, known := range AllModalities {
		if m == known {
			return true
		}
	}
	return false
}

// IsVisual reports whether hits of this modality carry binary previews
// instead of text snippets.
func (m Modality) IsVisual() bool {
	return m == ModalityImage || m == ModalityVideoFrame
}

// ScoreMetric names the native similarity scale of a backend index.
type ScoreMetric string

const (
	// MetricCosine is cosine similarity in [-1, 1].
	MetricCosine ScoreMetric = "cosine"
	// MetricUnit is an already-normalized score in [0, 1].
	MetricUnit ScoreMetric = "unit"
)

// SourceHit is one raw result from a modality index, scored on the
// backend's native metric.
type SourceHit struct {
	Modality Modality          `json:"modality"`
	SourceID string            `json:"source_id"`
	Score    float64           `json:"score"`
	Metric   ScoreMetric       `json:"metric"`
	Snippet  string            `json:"snippet,omitempty"`
	Preview  string            `json:"preview,omitempty"` // base64 PNG for visual modalities
	Metadata map[string]string `json:"metadata,omitempty"`
}

// RetrievalHit is a federated result with similarity rescaled to [0, 1].
type RetrievalHit struct {
	Modality   Modality          `json:"modality"`
	SourceID   string            `json:"source_id"`
	Similarity float64           `json:"similarity"`
	Snippet    string            `json:"snippet,omitempty"`
	Preview    string            `json:"preview,omitempty"`
	Metadata   map[string]string `json:"metadata,omitempty"`
}

// NormalizeScore maps a native score onto the shared [0, 1] scale and
// clamps the result.
func NormalizeScore(score float64, metric ScoreMetric) float64 {
	v := score
	if metric == MetricCosine {
		v = (score + 1) / 2
	}
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
