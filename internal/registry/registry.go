// Package registry owns one ephemeral, memory-backed service per agent.
// Callers hold a Registry explicitly; there is no process-wide instance.
package registry

import (
	"errors"
	"log/slog"
	"sync"

	"github.com/xiaot623/gogo/convstore/internal/config"
	"github.com/xiaot623/gogo/convstore/internal/repository"
	"github.com/xiaot623/gogo/convstore/internal/service"
	"github.com/xiaot623/gogo/convstore/policy"
)

// Registry maps agent ids to their in-memory services.
type Registry struct {
	mu       sync.Mutex
	services map[string]*service.Service
	config   *config.Config
	policy   *policy.Engine
	logger   *slog.Logger
	closed   bool
}

// ErrClosed is returned by For after Close.
var ErrClosed = errors.New("registry closed")

// New creates an empty registry whose services share cfg and policyEngine.
func New(cfg *config.Config, policyEngine *policy.Engine, logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		services: make(map[string]*service.Service),
		config:   cfg,
		policy:   policyEngine,
		logger:   logger,
	}
}

// For returns the service for agentID, creating it on first use.
func (r *Registry) For(agentID string) (*service.Service, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return nil, ErrClosed
	}
	if svc, ok := r.services[agentID]; ok {
		return svc, nil
	}
	svc := service.New(repository.NewMemoryStore(), r.config, r.policy, r.logger.With("agent_id", agentID))
	r.services[agentID] = svc
	return svc, nil
}

// Agents returns the agent ids that currently own a service.
func (r *Registry) Agents() []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]string, 0, len(r.services))
	for id := range r.services {
		out = append(out, id)
	}
	return out
}

// Drop discards the service for agentID and everything it stored.
func (r *Registry) Drop(agentID string) error {
	r.mu.Lock()
	svc, ok := r.services[agentID]
	delete(r.services, agentID)
	r.mu.Unlock()

	if !ok {
		return nil
	}
	return svc.Close()
}

// Close drops every service. For fails afterwards.
func (r *Registry) Close() error {
	r.mu.Lock()
	services := r.services
	r.services = make(map[string]*service.Service)
	r.closed = true
	r.mu.Unlock()

	var errs []error
	for _, svc := range services {
		errs = append(errs, svc.Close())
	}
	return errors.Join(errs...)
}
