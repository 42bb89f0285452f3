package domain

// ToolCallRequest is the planning step's request for one tool
// invocation. At most one is produced per pipeline run.
type ToolCallRequest struct {
	Name      string         `json:"name"`
	Arguments map[string]any `json:"arguments,omitempty"`
}

// ToolSpec describes a registered tool to the model provider.
type ToolSpec struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Parameters  map[string]any `json:"parameters,omitempty"`
}

// ToolState tags the outcome of the tool-execution step.
type ToolState string

const (
	// ToolStateNone means the planner chose not to call a tool. This is
	// a valid non-error outcome, distinct from a failed invocation.
	ToolStateNone   ToolState = "none"
	ToolStateOK     ToolState = "ok"
	ToolStateFailed ToolState = "failed"
)

// ToolOutcome is the structured observation of the tool-execution step.
// Failure is captured as a value so the run always reaches generation.
type ToolOutcome struct {
	State   ToolState `json:"state"`
	Tool    string    `json:"tool,omitempty"`
	Output  string    `json:"output,omitempty"`
	Failure error     `json:"-"`
}

// NoToolOutcome is the outcome of a run whose planner answered directly.
func NoToolOutcome() ToolOutcome {
	return ToolOutcome{State: ToolStateNone}
}

// WebResult is one hit returned by the external web search backend.
type WebResult struct {
	Title   string `json:"title"`
	URL     string `json:"url"`
	Snippet string `json:"snippet"`
}
