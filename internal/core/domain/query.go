package domain

import "time"

// Query is one immutable user request entering the pipeline.
type Query struct {
	Text           string    `json:"text"`
	ConversationID string    `json:"conversation_id,omitempty"`
	UserID         string    `json:"user_id"`
	SubmittedAt    time.Time `json:"submitted_at"`
}

// AnswerMetadata tells callers which context sources actually
// contributed, so provenance indicators need no re-derivation.
type AnswerMetadata struct {
	Timestamp       time.Time `json:"timestamp"`
	HasDocContext   bool      `json:"has_doc_context"`
	HasImageContext bool      `json:"has_image_context"`
	HasToolOutput   bool      `json:"has_tool_output"`
}

// Answer is the terminal output of a successful pipeline run.
type Answer struct {
	ConversationID string         `json:"conversation_id"`
	Text           string         `json:"text"`
	Metadata       AnswerMetadata `json:"metadata"`
}

// PipelineLimits bounds one pipeline run. Zero values are replaced with
// defaults by the pipeline constructor.
type PipelineLimits struct {
	PlannerTimeout   time.Duration `json:"planner_timeout"`
	FinalTimeout     time.Duration `json:"final_timeout"`
	ToolTimeout      time.Duration `json:"tool_timeout"`
	RetrievalTimeout time.Duration `json:"retrieval_timeout"`
	HistoryTurns     int           `json:"history_turns"`
	ContextBudget    int           `json:"context_budget"`
	RetrievalLimit   int           `json:"retrieval_limit"`
}
