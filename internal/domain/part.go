package domain

// Part is one element of a structured, multi-part message. The set of
// implementations is closed: SystemPart, UserPart, TextPart, ToolCallPart
// and ToolOutputPart.
type Part interface {
	Kind() PartKind
	isPart()
}

// SystemPart carries system instructions.
type SystemPart struct {
	Content string `json:"content"`
}

// UserPart carries user input.
type UserPart struct {
	Content string `json:"content"`
}

// TextPart carries assistant text.
type TextPart struct {
	Content string `json:"content"`
}

// ToolCallPart records a tool invocation requested by the assistant.
type ToolCallPart struct {
	ToolName string         `json:"tool_name"`
	Args     map[string]any `json:"args,omitempty"`
	CallID   string         `json:"call_id"`
}

// ToolOutputPart records the result returned by a tool.
type ToolOutputPart struct {
	ToolName string `json:"tool_name"`
	CallID   string `json:"call_id"`
	Content  any    `json:"content,omitempty"`
}

func (SystemPart) Kind() PartKind     { return PartKindSystem }
func (UserPart) Kind() PartKind       { return PartKindUser }
func (TextPart) Kind() PartKind       { return PartKindText }
func (ToolCallPart) Kind() PartKind   { return PartKindToolCall }
func (ToolOutputPart) Kind() PartKind { return PartKindToolOutput }

func (SystemPart) isPart()     {}
func (UserPart) isPart()       {}
func (TextPart) isPart()       {}
func (ToolCallPart) isPart()   {}
func (ToolOutputPart) isPart() {}

// StructuredMessage is the input shape accepted by the message store.
type StructuredMessage struct {
	Parts []Part

	// Content, when non-nil, is preferred over text found in Parts.
	Content *string

	// Context is channel metadata attached to user messages.
	Context map[string]any

	// SystemPrompt is an explicit prompt snapshot for assistant messages.
	SystemPrompt string

	UserID  string
	AgentID string
}

// StringPtr returns a pointer to s.
func StringPtr(s string) *string {
	return &s
}
