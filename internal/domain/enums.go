// Package domain defines the core domain models for the conversation store.
package domain

// Role represents who produced a message.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	switch r {
	case RoleSystem, RoleUser, RoleAssistant:
		return true
	}
	return false
}

// PartKind identifies the variant of a message Part.
type PartKind string

const (
	PartKindSystem     PartKind = "system"
	PartKindUser       PartKind = "user"
	PartKindText       PartKind = "text"
	PartKindToolCall   PartKind = "tool_call"
	PartKindToolOutput PartKind = "tool_output"
)

// MetadataSystemPromptKey is the reserved session metadata key holding the
// session's current system prompt.
const MetadataSystemPromptKey = "system_prompt"
