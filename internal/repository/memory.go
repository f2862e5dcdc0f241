package repository

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/xiaot623/gogo/convstore/internal/domain"
)

// ErrDuplicateSession is returned by CreateSession when the id is taken.
var ErrDuplicateSession = errors.New("session id already exists")

// MemoryStore implements Store with in-process maps. Data lives as long as
// the store does.
type MemoryStore struct {
	mu       sync.RWMutex
	sessions map[string]*domain.Session
	names    map[string]string
	messages map[string][]domain.Message
	seq      int64
	now      func() time.Time
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		sessions: make(map[string]*domain.Session),
		names:    make(map[string]string),
		messages: make(map[string][]domain.Message),
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// Close releases nothing; it exists to satisfy Store.
func (s *MemoryStore) Close() error {
	return nil
}

// CreateSession creates a new session.
func (s *MemoryStore) CreateSession(ctx context.Context, session *domain.Session) error {
	if err := ctx.Err(); err != nil {
		return unavailable(err)
	}
	if session.ID == "" {
		return fmt.Errorf("session id is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.sessions[session.ID]; ok {
		return fmt.Errorf("%w: %s", ErrDuplicateSession, session.ID)
	}
	if session.Name != "" {
		if _, taken := s.names[session.Name]; taken {
			return domain.NameConflictError(session.Name)
		}
	}
	stampSession(session, s.now())
	s.sessions[session.ID] = session.Clone()
	if session.Name != "" {
		s.names[session.Name] = session.ID
	}
	return nil
}

// GetSession retrieves a session by ID.
func (s *MemoryStore) GetSession(ctx context.Context, sessionID string) (*domain.Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, unavailable(err)
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	session, ok := s.sessions[sessionID]
	if !ok {
		return nil, notFound(sessionID)
	}
	return session.Clone(), nil
}

// GetSessionByName retrieves a session by its unique name.
func (s *MemoryStore) GetSessionByName(ctx context.Context, name string) (*domain.Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, unavailable(err)
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.names[name]
	if !ok {
		return nil, fmt.Errorf("%w: name %q", domain.ErrSessionNotFound, name)
	}
	return s.sessions[id].Clone(), nil
}

// ListSessions returns sessions ordered by most recent activity.
func (s *MemoryStore) ListSessions(ctx context.Context, opts domain.ListSessionsOptions) ([]domain.Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, unavailable(err)
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []domain.Session
	for _, session := range s.sessions {
		if opts.UserID != "" && session.UserID != opts.UserID {
			continue
		}
		if opts.AgentID != "" && session.AgentID != opts.AgentID {
			continue
		}
		out = append(out, *session.Clone())
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].UpdatedAt.Equal(out[j].UpdatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].UpdatedAt.After(out[j].UpdatedAt)
	})
	if opts.Limit > 0 && len(out) > opts.Limit {
		out = out[:opts.Limit]
	}
	return out, nil
}

// SessionExists reports whether a session with the given id exists.
func (s *MemoryStore) SessionExists(ctx context.Context, sessionID string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, unavailable(err)
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.sessions[sessionID]
	return ok, nil
}

// BindSessionAgent sets the session's agent when it is unset. Binding to the
// agent already set is a no-op; binding to any other agent fails.
func (s *MemoryStore) BindSessionAgent(ctx context.Context, sessionID, agentID string) error {
	if err := ctx.Err(); err != nil {
		return unavailable(err)
	}
	if agentID == "" {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	session, ok := s.sessions[sessionID]
	if !ok {
		return notFound(sessionID)
	}
	switch session.AgentID {
	case agentID:
		return nil
	case "":
		session.AgentID = agentID
		session.UpdatedAt = s.now()
		return nil
	default:
		return domain.AgentConflictError(sessionID, session.AgentID, agentID)
	}
}

// UpdateSessionMetadata replaces the session's metadata map.
func (s *MemoryStore) UpdateSessionMetadata(ctx context.Context, sessionID string, metadata map[string]any) error {
	if err := ctx.Err(); err != nil {
		return unavailable(err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	session, ok := s.sessions[sessionID]
	if !ok {
		return notFound(sessionID)
	}
	session.Metadata = domain.CloneMap(metadata)
	if session.Metadata == nil {
		session.Metadata = map[string]any{}
	}
	session.UpdatedAt = s.now()
	return nil
}

// TouchRunFinished advances run_finished_at. Older timestamps are ignored.
func (s *MemoryStore) TouchRunFinished(ctx context.Context, sessionID string, at time.Time) error {
	if err := ctx.Err(); err != nil {
		return unavailable(err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	session, ok := s.sessions[sessionID]
	if !ok {
		return notFound(sessionID)
	}
	if session.RunFinishedAt == nil || session.RunFinishedAt.Before(at) {
		t := at
		session.RunFinishedAt = &t
	}
	session.UpdatedAt = s.now()
	return nil
}

// DeleteSession removes a session and all of its messages.
func (s *MemoryStore) DeleteSession(ctx context.Context, sessionID string) error {
	if err := ctx.Err(); err != nil {
		return unavailable(err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	session, ok := s.sessions[sessionID]
	if !ok {
		return notFound(sessionID)
	}
	if session.Name != "" {
		delete(s.names, session.Name)
	}
	delete(s.sessions, sessionID)
	delete(s.messages, sessionID)
	return nil
}

// CreateMessage appends a message to its session.
func (s *MemoryStore) CreateMessage(ctx context.Context, message *domain.Message) error {
	if err := ctx.Err(); err != nil {
		return unavailable(err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	session, ok := s.sessions[message.SessionID]
	if !ok {
		return notFound(message.SessionID)
	}
	now := s.now()
	if message.CreatedAt.IsZero() {
		message.CreatedAt = now
	}
	if message.UpdatedAt.IsZero() {
		message.UpdatedAt = message.CreatedAt
	}
	s.seq++
	message.Seq = s.seq
	s.messages[message.SessionID] = append(s.messages[message.SessionID], cloneMessage(*message))
	session.UpdatedAt = now
	return nil
}

// ListMessages returns a session's messages in insertion order by created_at.
func (s *MemoryStore) ListMessages(ctx context.Context, sessionID string) ([]domain.Message, error) {
	if err := ctx.Err(); err != nil {
		return nil, unavailable(err)
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	stored := s.messages[sessionID]
	out := make([]domain.Message, 0, len(stored))
	for _, m := range stored {
		out = append(out, cloneMessage(m))
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].Seq < out[j].Seq
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

// DeleteMessages removes all messages of a session; the session itself stays.
func (s *MemoryStore) DeleteMessages(ctx context.Context, sessionID string) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, unavailable(err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	n := int64(len(s.messages[sessionID]))
	delete(s.messages, sessionID)
	if session, ok := s.sessions[sessionID]; ok {
		session.UpdatedAt = s.now()
	}
	return n, nil
}

func stampSession(session *domain.Session, now time.Time) {
	if session.CreatedAt.IsZero() {
		session.CreatedAt = now
	}
	if session.UpdatedAt.IsZero() {
		session.UpdatedAt = session.CreatedAt
	}
	if session.Metadata == nil {
		session.Metadata = map[string]any{}
	}
}

func cloneMessage(m domain.Message) domain.Message {
	c := m
	if m.ToolCalls != nil {
		c.ToolCalls = append([]domain.ToolCall(nil), m.ToolCalls...)
	}
	if m.ToolOutputs != nil {
		c.ToolOutputs = append([]domain.ToolOutput(nil), m.ToolOutputs...)
	}
	c.Context = domain.CloneMap(m.Context)
	return c
}

func notFound(sessionID string) error {
	return fmt.Errorf("%w: %s", domain.ErrSessionNotFound, sessionID)
}

func unavailable(err error) error {
	return fmt.Errorf("%w: %v", domain.ErrStoreUnavailable, err)
}
