package cache

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/xiaot623/gogo/convstore/internal/domain"
	"github.com/xiaot623/gogo/convstore/internal/repository"
)

const keyPrefix = "convstore:"

func sessionKey(sessionID string) string  { return keyPrefix + "session:" + sessionID }
func messagesKey(sessionID string) string { return keyPrefix + "messages:" + sessionID }
func genKey(sessionID string) string      { return keyPrefix + "gen:" + sessionID }

// cachedMessage keeps Seq, which the domain type hides from JSON.
type cachedMessage struct {
	domain.Message
	Seq int64 `json:"seq"`
}

// Store decorates a repository.Store, reading sessions and message lists
// through Redis. Any write to a session bumps its generation and drops its
// keys; a read only fills the cache if the generation it started under is
// still current. Redis failures fall back to the inner store.
type Store struct {
	inner  repository.Store
	client *Client
	ttl    time.Duration
	logger *slog.Logger
}

var _ repository.Store = (*Store)(nil)

// NewStore wraps inner with a cache. The Store owns client and closes it.
func NewStore(inner repository.Store, client *Client, ttl time.Duration, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{inner: inner, client: client, ttl: ttl, logger: logger}
}

// Close closes the inner store and the Redis client.
func (s *Store) Close() error {
	return errors.Join(s.inner.Close(), s.client.Close())
}

func (s *Store) CreateSession(ctx context.Context, session *domain.Session) error {
	if err := s.inner.CreateSession(ctx, session); err != nil {
		return err
	}
	s.invalidate(ctx, session.ID)
	return nil
}

func (s *Store) GetSession(ctx context.Context, sessionID string) (*domain.Session, error) {
	var cached domain.Session
	if s.load(ctx, sessionKey(sessionID), &cached) {
		return &cached, nil
	}
	gen, genOK := s.generation(ctx, sessionID)
	session, err := s.inner.GetSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if genOK {
		s.save(ctx, sessionID, gen, sessionKey(sessionID), session)
	}
	return session, nil
}

func (s *Store) GetSessionByName(ctx context.Context, name string) (*domain.Session, error) {
	return s.inner.GetSessionByName(ctx, name)
}

func (s *Store) ListSessions(ctx context.Context, opts domain.ListSessionsOptions) ([]domain.Session, error) {
	return s.inner.ListSessions(ctx, opts)
}

func (s *Store) SessionExists(ctx context.Context, sessionID string) (bool, error) {
	return s.inner.SessionExists(ctx, sessionID)
}

func (s *Store) BindSessionAgent(ctx context.Context, sessionID, agentID string) error {
	defer s.invalidate(ctx, sessionID)
	return s.inner.BindSessionAgent(ctx, sessionID, agentID)
}

func (s *Store) UpdateSessionMetadata(ctx context.Context, sessionID string, metadata map[string]any) error {
	defer s.invalidate(ctx, sessionID)
	return s.inner.UpdateSessionMetadata(ctx, sessionID, metadata)
}

func (s *Store) TouchRunFinished(ctx context.Context, sessionID string, at time.Time) error {
	defer s.invalidate(ctx, sessionID)
	return s.inner.TouchRunFinished(ctx, sessionID, at)
}

func (s *Store) DeleteSession(ctx context.Context, sessionID string) error {
	defer s.invalidate(ctx, sessionID)
	return s.inner.DeleteSession(ctx, sessionID)
}

func (s *Store) CreateMessage(ctx context.Context, message *domain.Message) error {
	defer s.invalidate(ctx, message.SessionID)
	return s.inner.CreateMessage(ctx, message)
}

func (s *Store) ListMessages(ctx context.Context, sessionID string) ([]domain.Message, error) {
	var cached []cachedMessage
	if s.load(ctx, messagesKey(sessionID), &cached) {
		out := make([]domain.Message, 0, len(cached))
		for _, c := range cached {
			m := c.Message
			m.Seq = c.Seq
			out = append(out, m)
		}
		return out, nil
	}

	gen, genOK := s.generation(ctx, sessionID)
	messages, err := s.inner.ListMessages(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if genOK {
		toCache := make([]cachedMessage, 0, len(messages))
		for _, m := range messages {
			toCache = append(toCache, cachedMessage{Message: m, Seq: m.Seq})
		}
		s.save(ctx, sessionID, gen, messagesKey(sessionID), toCache)
	}
	return messages, nil
}

func (s *Store) DeleteMessages(ctx context.Context, sessionID string) (int64, error) {
	defer s.invalidate(ctx, sessionID)
	return s.inner.DeleteMessages(ctx, sessionID)
}

func (s *Store) load(ctx context.Context, key string, dst any) bool {
	raw, err := s.client.Get(ctx, key)
	if err != nil {
		if !errors.Is(err, ErrCacheMiss) {
			s.logger.Warn("cache read failed", "key", key, "error", err)
		}
		return false
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		s.logger.Warn("dropping undecodable cache entry", "key", key, "error", err)
		_ = s.client.Del(ctx, key)
		return false
	}
	return true
}

// generation reads the session's cache generation. ok is false when Redis
// cannot be read, in which case the result must not be cached.
func (s *Store) generation(ctx context.Context, sessionID string) (gen int64, ok bool) {
	gen, err := s.client.Generation(ctx, genKey(sessionID))
	if err != nil {
		s.logger.Warn("cache generation read failed", "session_id", sessionID, "error", err)
		return 0, false
	}
	return gen, true
}

// save writes value under key unless the session was written since gen was read.
func (s *Store) save(ctx context.Context, sessionID string, gen int64, key string, value any) {
	raw, err := json.Marshal(value)
	if err != nil {
		s.logger.Warn("failed to encode cache entry", "key", key, "error", err)
		return
	}
	err = s.client.SetAtGeneration(ctx, genKey(sessionID), gen, key, raw, s.ttl)
	switch {
	case err == nil:
	case errors.Is(err, ErrStaleGeneration):
		s.logger.Debug("skipped stale cache fill", "key", key)
	default:
		s.logger.Warn("cache write failed", "key", key, "error", err)
	}
}

func (s *Store) invalidate(ctx context.Context, sessionID string) {
	// Invalidate even when the caller's context is already done.
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), time.Second)
	defer cancel()
	if err := s.client.Bump(ctx, genKey(sessionID), 2*s.ttl, sessionKey(sessionID), messagesKey(sessionID)); err != nil {
		s.logger.Warn("cache invalidation failed", "session_id", sessionID, "error", err)
	}
}
