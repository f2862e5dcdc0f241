package service

import (
	"context"
	"log/slog"

	"github.com/xiaot623/gogo/convstore/internal/assembler"
	"github.com/xiaot623/gogo/convstore/internal/config"
	"github.com/xiaot623/gogo/convstore/internal/repository"
	"github.com/xiaot623/gogo/convstore/policy"
)

// Service is the session and message persistence engine. It behaves the
// same over any repository.Store.
type Service struct {
	store        repository.Store
	assembler    *assembler.Assembler
	config       *config.Config
	policyEngine *policy.Engine
	logger       *slog.Logger
}

// New creates a Service. cfg defaults to config.Default() and logger to
// slog.Default(). A nil policyEngine fails open on resolution failures.
func New(store repository.Store, cfg *config.Config, policyEngine *policy.Engine, logger *slog.Logger) *Service {
	if cfg == nil {
		cfg = config.Default()
	}
	if logger == nil {
		logger = slog.Default()
	}
	s := &Service{
		store:        store,
		config:       cfg,
		policyEngine: policyEngine,
		logger:       logger,
	}
	s.assembler = assembler.New(assembler.PromptSourceFunc(s.systemPrompt), logger)
	return s
}

// Close closes the underlying store.
func (s *Service) Close() error {
	return s.store.Close()
}

// storeCtx bounds a single backend call by the configured store timeout.
func (s *Service) storeCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.config.StoreTimeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, s.config.StoreTimeout)
}

func (s *Service) systemPrompt(ctx context.Context, sessionID string) (string, error) {
	session, err := s.getSession(ctx, sessionID)
	if err != nil {
		return "", err
	}
	return session.SystemPrompt(), nil
}
