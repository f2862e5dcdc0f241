package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/xiaot623/gogo/convstore/internal/domain"
	"github.com/xiaot623/gogo/convstore/internal/repository"
	"github.com/xiaot623/gogo/convstore/policy"
)

const maxSessionNameLen = 255

// ResolveSession maps a loosely-identified reference to a canonical session
// id, creating the session when needed.
func (s *Service) ResolveSession(ctx context.Context, req domain.ResolveRequest) (string, error) {
	ref := strings.TrimSpace(req.Reference)

	id, err := s.resolve(ctx, ref, req)
	if err == nil {
		return id, nil
	}
	if domain.IsConflict(err) || errors.Is(err, domain.ErrInvalidSessionReference) {
		return "", err
	}

	reason := policy.ReasonInternal
	if errors.Is(err, domain.ErrStoreUnavailable) {
		reason = policy.ReasonStoreUnavailable
	}
	if s.decide(ctx, policy.Input{Reason: reason, Reference: ref, AgentID: req.AgentID}) == policy.FailOpen {
		fallback := domain.NewSessionID()
		s.logger.Error("session resolution failed, continuing with a disposable session",
			"reference", ref, "agent_id", req.AgentID, "session_id", fallback, "error", err)
		return fallback, nil
	}
	return "", fmt.Errorf("failed to resolve session: %w", err)
}

func (s *Service) resolve(ctx context.Context, ref string, req domain.ResolveRequest) (string, error) {
	if req.Name != "" {
		if err := validateName(req.Name); err != nil {
			return "", err
		}
	}

	if ref == "" {
		session := &domain.Session{
			ID:       domain.NewSessionID(),
			UserID:   req.UserID,
			AgentID:  req.AgentID,
			Name:     req.Name,
			Platform: req.Platform,
		}
		if err := s.createSession(ctx, session); err != nil {
			return "", err
		}
		return session.ID, nil
	}

	if id, ok := domain.CanonicalID(ref); ok {
		session, err := s.findOrCreate(ctx, &domain.Session{
			ID:       id,
			UserID:   req.UserID,
			AgentID:  req.AgentID,
			Name:     req.Name,
			Platform: req.Platform,
		})
		if err != nil {
			return "", err
		}
		return session.ID, nil
	}

	if err := validateName(ref); err != nil {
		return "", err
	}
	existing, err := s.getSessionByName(ctx, ref)
	switch {
	case err == nil:
		if req.AgentID != "" && existing.AgentID != "" && existing.AgentID != req.AgentID {
			return "", fmt.Errorf("%w: bound to agent %q", domain.NameConflictError(ref), existing.AgentID)
		}
		if err := s.bindAgent(ctx, existing, req.AgentID); err != nil {
			return "", err
		}
		return existing.ID, nil
	case !errors.Is(err, domain.ErrSessionNotFound):
		return "", err
	}

	session := &domain.Session{
		ID:       domain.NewSessionID(),
		UserID:   req.UserID,
		AgentID:  req.AgentID,
		Name:     ref,
		Platform: req.Platform,
	}
	if err := s.createSession(ctx, session); err != nil {
		return "", err
	}
	return session.ID, nil
}

// findOrCreate loads the session with want.ID, binding want.AgentID to it, or
// creates it from want.
func (s *Service) findOrCreate(ctx context.Context, want *domain.Session) (*domain.Session, error) {
	session, err := s.getSession(ctx, want.ID)
	if err == nil {
		if err := s.bindAgent(ctx, session, want.AgentID); err != nil {
			return nil, err
		}
		return session, nil
	}
	if !errors.Is(err, domain.ErrSessionNotFound) {
		return nil, err
	}

	err = s.createSession(ctx, want)
	if errors.Is(err, repository.ErrDuplicateSession) {
		// Lost a create race; the winner's row is authoritative.
		session, err = s.getSession(ctx, want.ID)
		if err != nil {
			return nil, err
		}
		if err := s.bindAgent(ctx, session, want.AgentID); err != nil {
			return nil, err
		}
		return session, nil
	}
	if err != nil {
		return nil, err
	}
	return want, nil
}

// bindAgent enforces that a session's agent never changes once set.
func (s *Service) bindAgent(ctx context.Context, session *domain.Session, agentID string) error {
	if agentID == "" || session.AgentID == agentID {
		return nil
	}
	if session.AgentID != "" {
		return domain.AgentConflictError(session.ID, session.AgentID, agentID)
	}
	ctx, cancel := s.storeCtx(ctx)
	defer cancel()
	if err := s.store.BindSessionAgent(ctx, session.ID, agentID); err != nil {
		return err
	}
	session.AgentID = agentID
	return nil
}

func (s *Service) decide(ctx context.Context, input policy.Input) policy.Decision {
	if s.policyEngine == nil {
		return policy.FailOpen
	}
	decision, err := s.policyEngine.Evaluate(ctx, input)
	if err != nil {
		s.logger.Error("failed to evaluate session policy", "reason", input.Reason, "error", err)
	}
	return decision
}

func validateName(name string) error {
	if len(name) > maxSessionNameLen {
		return fmt.Errorf("%w: name longer than %d bytes", domain.ErrInvalidSessionReference, maxSessionNameLen)
	}
	if !utf8.ValidString(name) {
		return fmt.Errorf("%w: name is not valid UTF-8", domain.ErrInvalidSessionReference)
	}
	for _, r := range name {
		if unicode.IsControl(r) {
			return fmt.Errorf("%w: name contains control characters", domain.ErrInvalidSessionReference)
		}
	}
	return nil
}

// CreateSession explicitly creates a session. An empty ID is generated.
func (s *Service) CreateSession(ctx context.Context, req domain.CreateSessionRequest) (*domain.Session, error) {
	id := domain.NewSessionID()
	if req.ID != "" {
		canonical, ok := domain.CanonicalID(req.ID)
		if !ok {
			return nil, fmt.Errorf("%w: %q is not a session id", domain.ErrInvalidSessionReference, req.ID)
		}
		id = canonical
	}
	if req.Name != "" {
		if err := validateName(req.Name); err != nil {
			return nil, err
		}
	}

	session := &domain.Session{
		ID:       id,
		UserID:   req.UserID,
		AgentID:  req.AgentID,
		Name:     req.Name,
		Platform: req.Platform,
		Metadata: domain.CloneMap(req.Metadata),
	}
	if err := s.createSession(ctx, session); err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}
	return session, nil
}

// GetSession retrieves a session by canonical id.
func (s *Service) GetSession(ctx context.Context, sessionID string) (*domain.Session, error) {
	id, ok := domain.CanonicalID(sessionID)
	if !ok {
		return nil, fmt.Errorf("%w: %s", domain.ErrSessionNotFound, sessionID)
	}
	return s.getSession(ctx, id)
}

// ListSessions lists sessions, most recently active first.
func (s *Service) ListSessions(ctx context.Context, opts domain.ListSessionsOptions) ([]domain.Session, error) {
	ctx, cancel := s.storeCtx(ctx)
	defer cancel()
	sessions, err := s.store.ListSessions(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}
	return sessions, nil
}

// DeleteSession removes a session and its messages.
func (s *Service) DeleteSession(ctx context.Context, sessionID string) error {
	id, ok := domain.CanonicalID(sessionID)
	if !ok {
		return fmt.Errorf("%w: %s", domain.ErrSessionNotFound, sessionID)
	}
	ctx, cancel := s.storeCtx(ctx)
	defer cancel()
	if err := s.store.DeleteSession(ctx, id); err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	return nil
}

// SessionExists reports whether a session is stored under sessionID.
func (s *Service) SessionExists(ctx context.Context, sessionID string) (bool, error) {
	id, ok := domain.CanonicalID(sessionID)
	if !ok {
		return false, nil
	}
	ctx, cancel := s.storeCtx(ctx)
	defer cancel()
	exists, err := s.store.SessionExists(ctx, id)
	if err != nil {
		return false, fmt.Errorf("failed to check session: %w", err)
	}
	return exists, nil
}

func (s *Service) createSession(ctx context.Context, session *domain.Session) error {
	ctx, cancel := s.storeCtx(ctx)
	defer cancel()
	return s.store.CreateSession(ctx, session)
}

func (s *Service) getSession(ctx context.Context, sessionID string) (*domain.Session, error) {
	ctx, cancel := s.storeCtx(ctx)
	defer cancel()
	return s.store.GetSession(ctx, sessionID)
}

func (s *Service) getSessionByName(ctx context.Context, name string) (*domain.Session, error) {
	ctx, cancel := s.storeCtx(ctx)
	defer cancel()
	return s.store.GetSessionByName(ctx, name)
}
