// Package v1 provides the v1 HTTP handlers for the conversation store.
package v1

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/xiaot623/gogo/convstore/internal/domain"
	"github.com/xiaot623/gogo/convstore/internal/registry"
	"github.com/xiaot623/gogo/convstore/internal/repository"
	"github.com/xiaot623/gogo/convstore/internal/service"
)

const scratchServiceKey = "scratch_service"

// Handler handles HTTP requests.
type Handler struct {
	service *service.Service
	scratch *registry.Registry
}

// NewHandler creates a new handler. scratch may be nil, in which case the
// per-agent scratch routes are not registered.
func NewHandler(service *service.Service, scratch *registry.Registry) *Handler {
	return &Handler{
		service: service,
		scratch: scratch,
	}
}

// svc returns the service a request addresses: the agent's scratch service
// under /v1/agents/:agent_id/scratch, the durable one otherwise.
func (h *Handler) svc(c echo.Context) *service.Service {
	if s, ok := c.Get(scratchServiceKey).(*service.Service); ok {
		return s
	}
	return h.service
}

// RegisterRoutes registers routes with the echo server.
func (h *Handler) RegisterRoutes(e *echo.Echo) {
	// Sessions
	e.POST("/v1/sessions", h.CreateSession)
	e.GET("/v1/sessions", h.ListSessions)
	e.POST("/v1/sessions/resolve", h.ResolveSession)
	e.GET("/v1/sessions/:session_id", h.GetSession)
	e.DELETE("/v1/sessions/:session_id", h.DeleteSession)
	e.PUT("/v1/sessions/:session_id/system_prompt", h.UpdateSystemPrompt)

	// Messages
	e.POST("/v1/sessions/:session_id/messages", h.AddMessage)
	e.POST("/v1/sessions/:session_id/messages/batch", h.AddMessages)
	e.GET("/v1/sessions/:session_id/messages", h.GetSessionMessages)
	e.DELETE("/v1/sessions/:session_id/messages", h.ClearSession)
	e.GET("/v1/sessions/:session_id/history", h.GetHistory)
	e.POST("/v1/sessions/:session_id/history", h.ImportHistory)

	if h.scratch != nil {
		g := e.Group("/v1/agents/:agent_id/scratch", h.scratchService)
		g.DELETE("", h.DropScratch)
		g.POST("/sessions", h.CreateSession)
		g.GET("/sessions", h.ListSessions)
		g.POST("/sessions/resolve", h.ResolveSession)
		g.GET("/sessions/:session_id", h.GetSession)
		g.DELETE("/sessions/:session_id", h.DeleteSession)
		g.PUT("/sessions/:session_id/system_prompt", h.UpdateSystemPrompt)
		g.POST("/sessions/:session_id/messages", h.AddMessage)
		g.POST("/sessions/:session_id/messages/batch", h.AddMessages)
		g.GET("/sessions/:session_id/messages", h.GetSessionMessages)
		g.DELETE("/sessions/:session_id/messages", h.ClearSession)
		g.GET("/sessions/:session_id/history", h.GetHistory)
		g.POST("/sessions/:session_id/history", h.ImportHistory)
	}

	e.GET("/health", h.Health)
}

// scratchService binds the agent's in-memory service to the request.
func (h *Handler) scratchService(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		agentID := c.Param("agent_id")
		if agentID == "" {
			return c.JSON(http.StatusBadRequest, map[string]string{"error": "agent_id is required"})
		}
		if c.Request().Method == http.MethodDelete && c.Param("session_id") == "" {
			return next(c)
		}
		svc, err := h.scratch.For(agentID)
		if err != nil {
			return c.JSON(http.StatusServiceUnavailable, map[string]string{"error": err.Error()})
		}
		c.Set(scratchServiceKey, svc)
		return next(c)
	}
}

// DropScratch discards an agent's scratch sessions.
func (h *Handler) DropScratch(c echo.Context) error {
	if err := h.scratch.Drop(c.Param("agent_id")); err != nil {
		return errorJSON(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}

// Health returns health status.
func (h *Handler) Health(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{
		"status":  "healthy",
		"version": "0.1.0",
	})
}

// errorJSON writes err with the status its kind maps to.
func errorJSON(c echo.Context, err error) error {
	return c.JSON(errorStatus(err), map[string]string{"error": err.Error()})
}

func errorStatus(err error) int {
	switch {
	case errors.Is(err, domain.ErrSessionNotFound):
		return http.StatusNotFound
	case domain.IsConflict(err), errors.Is(err, repository.ErrDuplicateSession):
		return http.StatusConflict
	case errors.Is(err, domain.ErrInvalidSessionReference), errors.Is(err, domain.ErrMessageAssembly):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrStoreUnavailable):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
