package v1

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"
	"github.com/xiaot623/gogo/convstore/internal/domain"
)

// CreateSession creates a session.
// POST /v1/sessions
func (h *Handler) CreateSession(c echo.Context) error {
	ctx := c.Request().Context()

	var req domain.CreateSessionRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid request body"})
	}

	session, err := h.svc(c).CreateSession(ctx, req)
	if err != nil {
		return errorJSON(c, err)
	}
	return c.JSON(http.StatusCreated, session)
}

// ListSessions lists sessions.
// GET /v1/sessions
func (h *Handler) ListSessions(c echo.Context) error {
	opts := domain.ListSessionsOptions{
		UserID:  c.QueryParam("user_id"),
		AgentID: c.QueryParam("agent_id"),
		Limit:   50,
	}
	if l := c.QueryParam("limit"); l != "" {
		if val, err := strconv.Atoi(l); err == nil {
			opts.Limit = val
		}
	}

	sessions, err := h.svc(c).ListSessions(c.Request().Context(), opts)
	if err != nil {
		return errorJSON(c, err)
	}
	if sessions == nil {
		sessions = []domain.Session{}
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"sessions": sessions,
	})
}

// ResolveSession maps a session reference to a canonical session id.
// POST /v1/sessions/resolve
func (h *Handler) ResolveSession(c echo.Context) error {
	ctx := c.Request().Context()

	var req domain.ResolveRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid request body"})
	}

	sessionID, err := h.svc(c).ResolveSession(ctx, req)
	if err != nil {
		return errorJSON(c, err)
	}
	return c.JSON(http.StatusOK, domain.ResolveResponse{SessionID: sessionID})
}

// GetSession retrieves a session.
// GET /v1/sessions/:session_id
func (h *Handler) GetSession(c echo.Context) error {
	session, err := h.svc(c).GetSession(c.Request().Context(), c.Param("session_id"))
	if err != nil {
		return errorJSON(c, err)
	}
	return c.JSON(http.StatusOK, session)
}

// DeleteSession deletes a session and its messages.
// DELETE /v1/sessions/:session_id
func (h *Handler) DeleteSession(c echo.Context) error {
	if err := h.svc(c).DeleteSession(c.Request().Context(), c.Param("session_id")); err != nil {
		return errorJSON(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}

// UpdateSystemPrompt replaces a session's system prompt.
// PUT /v1/sessions/:session_id/system_prompt
func (h *Handler) UpdateSystemPrompt(c echo.Context) error {
	ctx := c.Request().Context()

	var req domain.UpdateSystemPromptRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid request body"})
	}

	if err := h.svc(c).UpdateSystemPrompt(ctx, c.Param("session_id"), req.Prompt, req.AgentID); err != nil {
		return errorJSON(c, err)
	}
	return c.JSON(http.StatusOK, map[string]interface{}{"ok": true})
}
