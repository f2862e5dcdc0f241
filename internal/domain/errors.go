package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrSessionNotFound is returned when a lookup by canonical id yields nothing.
	ErrSessionNotFound = errors.New("session not found")

	// ErrSessionAgentConflict is returned when a write would reassign a
	// session's bound agent.
	ErrSessionAgentConflict = errors.New("session is bound to a different agent")

	// ErrSessionNameConflict is returned when a write would violate session
	// name uniqueness.
	ErrSessionNameConflict = errors.New("session name already in use")

	// ErrInvalidSessionReference is returned when a reference is unusable
	// even as a session name.
	ErrInvalidSessionReference = errors.New("invalid session reference")

	// ErrMessageAssembly is the sentinel wrapped by every MessageAssemblyError.
	ErrMessageAssembly = errors.New("message assembly failed")

	// ErrStoreUnavailable is returned on backend I/O failure or timeout.
	ErrStoreUnavailable = errors.New("store unavailable")
)

// MessageAssemblyError reports why one structured message could not be
// turned into a persisted message.
type MessageAssemblyError struct {
	Index  int
	Reason string
}

func (e *MessageAssemblyError) Error() string {
	if e.Index >= 0 {
		return fmt.Sprintf("%s: part %d: %s", ErrMessageAssembly, e.Index, e.Reason)
	}
	return fmt.Sprintf("%s: %s", ErrMessageAssembly, e.Reason)
}

func (e *MessageAssemblyError) Unwrap() error {
	return ErrMessageAssembly
}

// AgentConflictError wraps ErrSessionAgentConflict with the agents involved.
func AgentConflictError(sessionID, bound, requested string) error {
	return fmt.Errorf("%w: session %s bound to %q, requested %q", ErrSessionAgentConflict, sessionID, bound, requested)
}

// NameConflictError wraps ErrSessionNameConflict with the offending name.
func NameConflictError(name string) error {
	return fmt.Errorf("%w: %q", ErrSessionNameConflict, name)
}

// IsConflict reports whether err is an ownership or name conflict. Conflicts
// are always surfaced to callers.
func IsConflict(err error) bool {
	return errors.Is(err, ErrSessionAgentConflict) || errors.Is(err, ErrSessionNameConflict)
}
