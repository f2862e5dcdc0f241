package domain

import (
	"time"

	"github.com/google/uuid"
)

// Session represents a conversation session.
type Session struct {
	ID            string         `json:"id"`
	UserID        string         `json:"user_id,omitempty"`
	AgentID       string         `json:"agent_id,omitempty"`
	Name          string         `json:"name,omitempty"`
	Platform      string         `json:"platform,omitempty"`
	Metadata      map[string]any `json:"metadata"`
	CreatedAt     time.Time      `json:"created_at"`
	UpdatedAt     time.Time      `json:"updated_at"`
	RunFinishedAt *time.Time     `json:"run_finished_at,omitempty"`
}

// SystemPrompt returns the session's current system prompt, or "" when unset.
func (s *Session) SystemPrompt() string {
	if s == nil || s.Metadata == nil {
		return ""
	}
	prompt, _ := s.Metadata[MetadataSystemPromptKey].(string)
	return prompt
}

// Clone returns a deep-enough copy of the session so that callers may mutate
// the metadata map without affecting the original.
func (s *Session) Clone() *Session {
	if s == nil {
		return nil
	}
	c := *s
	c.Metadata = CloneMap(s.Metadata)
	if s.RunFinishedAt != nil {
		t := *s.RunFinishedAt
		c.RunFinishedAt = &t
	}
	return &c
}

// NewSessionID returns a fresh canonical session identifier.
func NewSessionID() string {
	return uuid.New().String()
}

// NewMessageID returns a fresh message identifier.
func NewMessageID() string {
	return uuid.New().String()
}

// IsCanonicalID reports whether ref is a well-formed canonical identifier.
func IsCanonicalID(ref string) bool {
	if ref == "" {
		return false
	}
	_, err := uuid.Parse(ref)
	return err == nil
}

// CanonicalID returns the canonical form of ref when it is a well-formed
// identifier.
func CanonicalID(ref string) (string, bool) {
	id, err := uuid.Parse(ref)
	if err != nil {
		return "", false
	}
	return id.String(), true
}

// CloneMap returns a shallow copy of m. A nil map stays nil.
func CloneMap(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
