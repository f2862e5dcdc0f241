package domain

import "encoding/json"

// ResolveRequest carries a loosely-identified session reference.
type ResolveRequest struct {
	Reference string `json:"reference"`
	UserID    string `json:"user_id,omitempty"`
	AgentID   string `json:"agent_id,omitempty"`
	Name      string `json:"name,omitempty"`
	Platform  string `json:"platform,omitempty"`
}

// ResolveResponse is returned after a reference is resolved.
type ResolveResponse struct {
	SessionID string `json:"session_id"`
}

// CreateSessionRequest explicitly creates a session.
type CreateSessionRequest struct {
	ID       string         `json:"id,omitempty"`
	UserID   string         `json:"user_id,omitempty"`
	AgentID  string         `json:"agent_id,omitempty"`
	Name     string         `json:"name,omitempty"`
	Platform string         `json:"platform,omitempty"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// ListSessionsOptions filters ListSessions.
type ListSessionsOptions struct {
	UserID  string
	AgentID string
	Limit   int
}

// PartPayload is the wire form of a Part.
type PartPayload struct {
	Kind     PartKind        `json:"kind"`
	Content  json.RawMessage `json:"content,omitempty"`
	ToolName string          `json:"tool_name,omitempty"`
	Args     map[string]any  `json:"args,omitempty"`
	CallID   string          `json:"call_id,omitempty"`
}

// AddMessageRequest is the wire form of a StructuredMessage.
type AddMessageRequest struct {
	Parts        []PartPayload  `json:"parts"`
	Content      *string        `json:"content,omitempty"`
	Context      map[string]any `json:"context,omitempty"`
	SystemPrompt string         `json:"system_prompt,omitempty"`
	UserID       string         `json:"user_id,omitempty"`
	AgentID      string         `json:"agent_id,omitempty"`
}

// UpdateSystemPromptRequest replaces a session's system prompt.
type UpdateSystemPromptRequest struct {
	Prompt  string `json:"prompt"`
	AgentID string `json:"agent_id,omitempty"`
}

// AddMessageResponse reports where a message was stored. Message is nil when
// a system message was redirected to the session's system prompt.
type AddMessageResponse struct {
	SessionID           string   `json:"session_id"`
	Message             *Message `json:"message,omitempty"`
	SystemPromptUpdated bool     `json:"system_prompt_updated,omitempty"`
}

// AddMessagesResponse summarizes a batch write.
type AddMessagesResponse struct {
	SessionID string `json:"session_id"`
	Stored    int    `json:"stored"`
	Skipped   int    `json:"skipped"`
}
