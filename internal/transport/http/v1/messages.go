package v1

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/cloudwego/eino/schema"
	"github.com/labstack/echo/v4"
	"github.com/xiaot623/gogo/convstore/internal/adapter/eino"
	"github.com/xiaot623/gogo/convstore/internal/domain"
	"github.com/xiaot623/gogo/convstore/internal/history"
)

// AddMessage stores one structured message.
// POST /v1/sessions/:session_id/messages
func (h *Handler) AddMessage(c echo.Context) error {
	ctx := c.Request().Context()

	var req domain.AddMessageRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid request body"})
	}
	msg, err := req.ToStructured()
	if err != nil {
		return errorJSON(c, err)
	}

	resp, err := h.svc(c).AddMessage(ctx, c.Param("session_id"), msg)
	if err != nil {
		return errorJSON(c, err)
	}
	return c.JSON(http.StatusCreated, resp)
}

// AddMessagesRequest is a batch of structured messages.
type AddMessagesRequest struct {
	Messages []domain.AddMessageRequest `json:"messages"`
}

// AddMessages stores a batch of structured messages. Messages that cannot be
// decoded are skipped like messages that fail assembly.
// POST /v1/sessions/:session_id/messages/batch
func (h *Handler) AddMessages(c echo.Context) error {
	ctx := c.Request().Context()

	var req AddMessagesRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid request body"})
	}

	msgs := make([]domain.StructuredMessage, 0, len(req.Messages))
	undecodable := 0
	for _, m := range req.Messages {
		msg, err := m.ToStructured()
		if err != nil {
			undecodable++
			continue
		}
		msgs = append(msgs, msg)
	}

	resp, err := h.svc(c).AddMessages(ctx, c.Param("session_id"), msgs)
	if err != nil {
		return errorJSON(c, err)
	}
	resp.Skipped += undecodable
	return c.JSON(http.StatusCreated, resp)
}

// GetSessionMessages returns a session's messages in API form. page or
// page_size selects the paginated view; otherwise limit bounds the filtered
// view.
// GET /v1/sessions/:session_id/messages
func (h *Handler) GetSessionMessages(c echo.Context) error {
	ctx := c.Request().Context()
	sessionID := c.Param("session_id")

	sortDesc := c.QueryParam("sort") != "asc"
	opts := history.ProjectOptions{HideTools: queryBool(c, "hide_tools")}

	pageParam, pageSizeParam := c.QueryParam("page"), c.QueryParam("page_size")

	resp := map[string]interface{}{}
	if pageParam != "" || pageSizeParam != "" {
		page := queryInt(c, "page", 1)
		pageSize := queryInt(c, "page_size", 0)
		v := h.svc(c).GetPaginatedMessages(ctx, sessionID, page, pageSize, sortDesc)
		if errors.Is(v.Err(), domain.ErrSessionNotFound) {
			return errorJSON(c, v.Err())
		}
		resp["messages"] = history.ProjectAll(v.Messages, opts)
		resp["total"] = v.Total
		resp["page"] = v.Page
		resp["page_size"] = v.PageSize
		resp["total_pages"] = v.TotalPages
		if v.Diagnostic != "" {
			resp["diagnostic"] = v.Diagnostic
		}
		return c.JSON(http.StatusOK, resp)
	}

	v := h.svc(c).GetFilteredMessages(ctx, sessionID, queryInt(c, "limit", 0), sortDesc)
	if errors.Is(v.Err(), domain.ErrSessionNotFound) {
		return errorJSON(c, v.Err())
	}
	resp["messages"] = history.ProjectAll(v.Messages, opts)
	resp["total"] = v.Total
	if v.Diagnostic != "" {
		resp["diagnostic"] = v.Diagnostic
	}
	return c.JSON(http.StatusOK, resp)
}

// ClearSession deletes every message of a session.
// DELETE /v1/sessions/:session_id/messages
func (h *Handler) ClearSession(c echo.Context) error {
	if err := h.svc(c).ClearSession(c.Request().Context(), c.Param("session_id")); err != nil {
		return errorJSON(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}

// GetHistory returns the session as an eino conversation, oldest first.
// GET /v1/sessions/:session_id/history
func (h *Handler) GetHistory(c echo.Context) error {
	ctx := c.Request().Context()

	session, err := h.svc(c).GetSession(ctx, c.Param("session_id"))
	if err != nil {
		return errorJSON(c, err)
	}
	view := h.svc(c).GetMessages(ctx, session.ID, false)
	conversation, err := eino.ToSchema(view.Messages, session.SystemPrompt())
	if err != nil {
		return errorJSON(c, err)
	}
	resp := map[string]interface{}{
		"session_id": session.ID,
		"messages":   conversation,
	}
	if view.Diagnostic != "" {
		resp["diagnostic"] = view.Diagnostic
	}
	return c.JSON(http.StatusOK, resp)
}

// ImportHistoryRequest is an eino conversation to append to a session.
type ImportHistoryRequest struct {
	Messages []*schema.Message `json:"messages"`
}

// ImportHistory appends an eino conversation to the session, in order.
// System messages replace the session's system prompt. Messages that cannot
// be converted are skipped.
// POST /v1/sessions/:session_id/history
func (h *Handler) ImportHistory(c echo.Context) error {
	ctx := c.Request().Context()

	var req ImportHistoryRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid request body"})
	}

	msgs := make([]domain.StructuredMessage, 0, len(req.Messages))
	unconvertible := 0
	for _, m := range req.Messages {
		msg, err := eino.FromSchema(m)
		if err != nil {
			unconvertible++
			continue
		}
		msgs = append(msgs, msg)
	}

	resp, err := h.svc(c).AddMessages(ctx, c.Param("session_id"), msgs)
	if err != nil {
		return errorJSON(c, err)
	}
	resp.Skipped += unconvertible
	return c.JSON(http.StatusCreated, resp)
}

func queryInt(c echo.Context, name string, defaultVal int) int {
	if v := c.QueryParam(name); v != "" {
		if val, err := strconv.Atoi(v); err == nil {
			return val
		}
	}
	return defaultVal
}

func queryBool(c echo.Context, name string) bool {
	val, err := strconv.ParseBool(c.QueryParam(name))
	return err == nil && val
}
