package domain

import "time"

const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// TurnSources marks which context sources were non-empty when an
// assistant turn was generated.
type TurnSources struct {
	DocContext   bool `json:"doc_context"`
	ImageContext bool `json:"image_context"`
	ToolOutput   bool `json:"tool_output"`
}

// Turn is one persisted exchange entry. Turns are append-only and
// totally ordered by (CreatedAt, Seq) within a conversation.
type Turn struct {
	ID             string      `json:"id"`
	ConversationID string      `json:"conversation_id"`
	UserID         string      `json:"user_id"`
	Role           string      `json:"role"`
	Content        string      `json:"content"`
	Sources        TurnSources `json:"sources"`
	CreatedAt      time.Time   `json:"created_at"`
}

// ConversationSummary is derived from a conversation's turns, never
// stored redundantly.
type ConversationSummary struct {
	ConversationID string    `json:"conversation_id"`
	Title          string    `json:"title"`
	TurnCount      int       `json:"turn_count"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}
