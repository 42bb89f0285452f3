package domain

// SectionLabel names one context block in the assembled prompt payload.
// The assembler emits sections in exactly the order of SectionOrder.
type SectionLabel string

const (
	SectionToolOutput SectionLabel = "tool_output"
	SectionDocuments  SectionLabel = "document_context"
	SectionImages     SectionLabel = "image_context"
	SectionFrames     SectionLabel = "video_frame_context"
	SectionChatMemory SectionLabel = "chat_memory_context"
	SectionHistory    SectionLabel = "recent_history"
)

// SectionOrder is the fixed prompt position of every possible section.
var SectionOrder = []SectionLabel{
	SectionToolOutput,
	SectionDocuments,
	SectionImages,
	SectionFrames,
	SectionChatMemory,
	SectionHistory,
}

// ContextSection is one labeled text block of the assembled context.
type ContextSection struct {
	Label SectionLabel `json:"label"`
	Text  string       `json:"text"`
}

// InlineImage is a binary preview attached to the final message instead
// of being rendered into the text budget.
type InlineImage struct {
	Modality Modality          `json:"modality"`
	SourceID string            `json:"source_id"`
	Data     string            `json:"data"` // base64 PNG
	Metadata map[string]string `json:"metadata,omitempty"`
}

// ContextBundle is the bounded prompt payload fed to final generation.
type ContextBundle struct {
	Sections []ContextSection `json:"sections"`
	Images   []InlineImage    `json:"images,omitempty"`
}

// HasSection reports whether a section with the given label survived
// assembly with non-empty text.
func (b ContextBundle) HasSection(label SectionLabel) bool {
	for _, s := range b.Sections {
		if s.Label == label && s.Text != "" {
			return true
		}
	}
	return false
}

// TextLength is the total character count of all section texts, the
// quantity bounded by the assembler's budget.
func (b ContextBundle) TextLength() int {
	total := 0
	for _, s := range b.Sections {
		total += len(s.Text)
	}
	return total
}
