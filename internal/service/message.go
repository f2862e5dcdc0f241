package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/xiaot623/gogo/convstore/internal/assembler"
	"github.com/xiaot623/gogo/convstore/internal/domain"
	"github.com/xiaot623/gogo/convstore/internal/history"
)

// GetMessages returns all messages of a session, newest first when sortDesc
// is set. Like the other read views it degrades to an empty result.
func (s *Service) GetMessages(ctx context.Context, sessionID string, sortDesc bool) *MessageView {
	session, messages, err := s.loadConversation(ctx, sessionID)
	if err != nil {
		return s.degraded(sessionID, err)
	}
	return &MessageView{
		SessionID: session.ID,
		Messages:  history.Sort(messages, sortDesc),
		Total:     len(messages),
	}
}

// AddMessage stores one structured message. System messages replace the
// session's system prompt instead of adding a row. Unknown sessions are
// created, and a malformed session id is replaced with a fresh one.
func (s *Service) AddMessage(ctx context.Context, sessionID string, msg domain.StructuredMessage) (*domain.AddMessageResponse, error) {
	id := s.repairSessionID(sessionID)
	session, err := s.ensureSession(ctx, id, msg.UserID, msg.AgentID)
	if err != nil {
		return nil, err
	}

	if assembler.Classify(msg) == domain.RoleSystem {
		if err := s.setSystemPrompt(ctx, session, assembler.SystemText(msg)); err != nil {
			return nil, err
		}
		return &domain.AddMessageResponse{SessionID: id, SystemPromptUpdated: true}, nil
	}

	message, err := s.assembler.Assemble(ctx, id, msg)
	if err != nil {
		return nil, err
	}
	if err := s.persist(ctx, session, message); err != nil {
		return nil, err
	}
	return &domain.AddMessageResponse{SessionID: id, Message: message}, nil
}

// AddMessages stores a batch of structured messages in order. A system
// message takes effect for the messages after it. Messages that fail
// assembly are skipped and logged.
func (s *Service) AddMessages(ctx context.Context, sessionID string, msgs []domain.StructuredMessage) (*domain.AddMessagesResponse, error) {
	id := s.repairSessionID(sessionID)
	resp := &domain.AddMessagesResponse{SessionID: id}
	if len(msgs) == 0 {
		return resp, nil
	}

	session, err := s.ensureSession(ctx, id, msgs[0].UserID, msgs[0].AgentID)
	if err != nil {
		return nil, err
	}

	for _, msg := range msgs {
		if assembler.Classify(msg) == domain.RoleSystem {
			if err := s.setSystemPrompt(ctx, session, assembler.SystemText(msg)); err != nil {
				return resp, err
			}
			continue
		}
		if err := s.bindAgent(ctx, session, msg.AgentID); err != nil {
			return resp, err
		}
		message, err := s.assembler.Assemble(ctx, id, msg)
		if err != nil {
			s.logger.Error("skipping message that failed assembly", "session_id", id, "error", err)
			resp.Skipped++
			continue
		}
		if err := s.persist(ctx, session, message); err != nil {
			return resp, err
		}
		resp.Stored++
	}
	return resp, nil
}

// UpdateSystemPrompt replaces the session's system prompt. A non-empty
// agentID must match the session's agent, or is bound to it when unset.
func (s *Service) UpdateSystemPrompt(ctx context.Context, sessionID, prompt, agentID string) error {
	id, ok := domain.CanonicalID(sessionID)
	if !ok {
		return fmt.Errorf("%w: %s", domain.ErrSessionNotFound, sessionID)
	}
	session, err := s.getSession(ctx, id)
	if err != nil {
		return fmt.Errorf("failed to get session: %w", err)
	}
	if err := s.bindAgent(ctx, session, agentID); err != nil {
		return err
	}
	return s.setSystemPrompt(ctx, session, prompt)
}

// ClearSession deletes every message of a session; the session remains.
func (s *Service) ClearSession(ctx context.Context, sessionID string) error {
	id, ok := domain.CanonicalID(sessionID)
	if !ok {
		return fmt.Errorf("%w: %s", domain.ErrSessionNotFound, sessionID)
	}
	ctx, cancel := s.storeCtx(ctx)
	defer cancel()
	n, err := s.store.DeleteMessages(ctx, id)
	if err != nil {
		return fmt.Errorf("failed to clear session: %w", err)
	}
	s.logger.Debug("cleared session", "session_id", id, "deleted", n)
	return nil
}

func (s *Service) repairSessionID(sessionID string) string {
	if id, ok := domain.CanonicalID(sessionID); ok {
		return id
	}
	fresh := domain.NewSessionID()
	s.logger.Warn("malformed session id replaced", "session_id", sessionID, "replacement", fresh)
	return fresh
}

// ensureSession loads or creates the session a write targets.
func (s *Service) ensureSession(ctx context.Context, id, userID, agentID string) (*domain.Session, error) {
	session, err := s.findOrCreate(ctx, &domain.Session{ID: id, UserID: userID, AgentID: agentID})
	if err != nil {
		if domain.IsConflict(err) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to ensure session: %w", err)
	}
	return session, nil
}

func (s *Service) setSystemPrompt(ctx context.Context, session *domain.Session, prompt string) error {
	metadata := domain.CloneMap(session.Metadata)
	if metadata == nil {
		metadata = map[string]any{}
	}
	metadata[domain.MetadataSystemPromptKey] = prompt

	ctx, cancel := s.storeCtx(ctx)
	defer cancel()
	if err := s.store.UpdateSessionMetadata(ctx, session.ID, metadata); err != nil {
		return fmt.Errorf("failed to update system prompt: %w", err)
	}
	session.Metadata = metadata
	return nil
}

func (s *Service) persist(ctx context.Context, session *domain.Session, message *domain.Message) error {
	if message.UserID == "" {
		message.UserID = session.UserID
	}
	if message.AgentID == "" {
		message.AgentID = session.AgentID
	}

	ctx, cancel := s.storeCtx(ctx)
	defer cancel()
	if err := s.store.CreateMessage(ctx, message); err != nil {
		return fmt.Errorf("failed to create message: %w", err)
	}
	if message.Role != domain.RoleAssistant {
		return nil
	}
	if err := s.store.TouchRunFinished(ctx, session.ID, message.CreatedAt); err != nil {
		if errors.Is(err, domain.ErrSessionNotFound) {
			return err
		}
		return fmt.Errorf("failed to update run_finished_at: %w", err)
	}
	return nil
}

func (s *Service) listMessages(ctx context.Context, sessionID string) ([]domain.Message, error) {
	ctx, cancel := s.storeCtx(ctx)
	defer cancel()
	return s.store.ListMessages(ctx, sessionID)
}
