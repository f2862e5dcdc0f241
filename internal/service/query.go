package service

import (
	"context"
	"fmt"

	"github.com/xiaot623/gogo/convstore/internal/domain"
	"github.com/xiaot623/gogo/convstore/internal/history"
)

// MessageView is a read view over a session. Failures never surface as
// errors: the view is empty and Diagnostic says why.
type MessageView struct {
	SessionID  string           `json:"session_id"`
	Messages   []domain.Message `json:"messages"`
	Total      int              `json:"total"`
	Page       int              `json:"page,omitempty"`
	PageSize   int              `json:"page_size,omitempty"`
	TotalPages int              `json:"total_pages,omitempty"`
	Diagnostic string           `json:"diagnostic,omitempty"`

	err error
}

// Err returns the failure behind Diagnostic, if any.
func (v *MessageView) Err() error {
	return v.err
}

// GetFilteredMessages returns up to limit conversation messages headed by
// the system prompt entry. limit <= 0 returns everything.
func (s *Service) GetFilteredMessages(ctx context.Context, sessionID string, limit int, sortDesc bool) *MessageView {
	session, messages, err := s.loadConversation(ctx, sessionID)
	if err != nil {
		return s.degraded(sessionID, err)
	}
	out := history.Filter(session.ID, messages, session.SystemPrompt(), limit, sortDesc)
	total := 0
	for _, m := range messages {
		if m.Role != domain.RoleSystem {
			total++
		}
	}
	return &MessageView{SessionID: session.ID, Messages: out, Total: total}
}

// GetPaginatedMessages returns one page of conversation messages headed by
// the system prompt entry.
func (s *Service) GetPaginatedMessages(ctx context.Context, sessionID string, page, pageSize int, sortDesc bool) *MessageView {
	if pageSize < 1 {
		pageSize = s.config.DefaultPageSize
	}
	session, messages, err := s.loadConversation(ctx, sessionID)
	if err != nil {
		view := s.degraded(sessionID, err)
		view.Page = 1
		view.PageSize = pageSize
		return view
	}
	p := history.Paginate(session.ID, messages, session.SystemPrompt(), page, pageSize, sortDesc)
	return &MessageView{
		SessionID:  session.ID,
		Messages:   p.Messages,
		Total:      p.Total,
		Page:       p.Page,
		PageSize:   p.PageSize,
		TotalPages: p.TotalPages,
	}
}

func (s *Service) loadConversation(ctx context.Context, sessionID string) (*domain.Session, []domain.Message, error) {
	session, err := s.GetSession(ctx, sessionID)
	if err != nil {
		return nil, nil, err
	}
	messages, err := s.listMessages(ctx, session.ID)
	if err != nil {
		return nil, nil, err
	}
	return session, messages, nil
}

func (s *Service) degraded(sessionID string, err error) *MessageView {
	s.logger.Warn("message read degraded to empty result", "session_id", sessionID, "error", err)
	return &MessageView{
		SessionID:  sessionID,
		Messages:   []domain.Message{},
		Diagnostic: fmt.Sprintf("failed to read messages: %v", err),
		err:        err,
	}
}
