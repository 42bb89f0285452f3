package domain

// ModelMessage is one role-tagged entry in a provider call. The
// provider holds no session state; the full history travels every call.
type ModelMessage struct {
	Role    string   `json:"role"`
	Content string   `json:"content"`
	Images  []string `json:"images,omitempty"` // base64 PNG
}

// ModelResponse is either free text or a tool invocation request,
// never both.
type ModelResponse struct {
	Text     string           `json:"text,omitempty"`
	ToolCall *ToolCallRequest `json:"tool_call,omitempty"`
}
