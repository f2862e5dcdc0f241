// Package repository defines the storage interface and its implementations.
package repository

import (
	"context"
	"time"

	"github.com/xiaot623/gogo/convstore/internal/domain"
)

// Store defines the raw persistence primitives for sessions and messages.
// Every implementation must pass the same conformance suite.
type Store interface {
	// Session operations
	CreateSession(ctx context.Context, session *domain.Session) error
	GetSession(ctx context.Context, sessionID string) (*domain.Session, error)
	GetSessionByName(ctx context.Context, name string) (*domain.Session, error)
	ListSessions(ctx context.Context, opts domain.ListSessionsOptions) ([]domain.Session, error)
	SessionExists(ctx context.Context, sessionID string) (bool, error)
	BindSessionAgent(ctx context.Context, sessionID, agentID string) error
	UpdateSessionMetadata(ctx context.Context, sessionID string, metadata map[string]any) error
	TouchRunFinished(ctx context.Context, sessionID string, at time.Time) error
	DeleteSession(ctx context.Context, sessionID string) error

	// Message operations
	CreateMessage(ctx context.Context, message *domain.Message) error
	ListMessages(ctx context.Context, sessionID string) ([]domain.Message, error)
	DeleteMessages(ctx context.Context, sessionID string) (int64, error)

	// Lifecycle
	Close() error
}
