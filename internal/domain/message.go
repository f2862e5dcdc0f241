package domain

import "time"

// Message represents a single persisted turn in a session.
type Message struct {
	ID           string         `json:"id"`
	SessionID    string         `json:"session_id"`
	UserID       string         `json:"user_id,omitempty"`
	AgentID      string         `json:"agent_id,omitempty"`
	Role         Role           `json:"role"`
	TextContent  string         `json:"text_content"`
	ToolCalls    []ToolCall     `json:"tool_calls,omitempty"`
	ToolOutputs  []ToolOutput   `json:"tool_outputs,omitempty"`
	Context      map[string]any `json:"context,omitempty"`
	SystemPrompt string         `json:"system_prompt,omitempty"`
	CreatedAt    time.Time      `json:"created_at"`
	UpdatedAt    time.Time      `json:"updated_at"`

	// Seq is the backend-assigned insertion sequence. It breaks created_at ties.
	Seq int64 `json:"-"`
}

// ToolCall records an agent invoking a tool.
type ToolCall struct {
	ToolName string         `json:"tool_name"`
	Args     map[string]any `json:"args,omitempty"`
	CallID   string         `json:"call_id"`
}

// ToolOutput records the result of a tool call, correlated by CallID.
type ToolOutput struct {
	ToolName string `json:"tool_name"`
	CallID   string `json:"call_id"`
	Content  any    `json:"content,omitempty"`
}
