package rpc

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/rpc"
	"net/rpc/jsonrpc"

	"github.com/xiaot623/gogo/convstore/internal/domain"
	"github.com/xiaot623/gogo/convstore/internal/history"
	"github.com/xiaot623/gogo/convstore/internal/service"
)

// Server exposes the conversation store over JSON-RPC for agent processes.
type Server struct {
	listener  net.Listener
	rpcServer *rpc.Server
	logger    *slog.Logger
	done      chan struct{}
}

// NewServer creates a new RPC server bound to the conversation service.
func NewServer(svc *service.Service, logger *slog.Logger) (*Server, error) {
	if logger == nil {
		logger = slog.Default()
	}
	rpcServer := rpc.NewServer()
	handler := &Handler{service: svc}
	if err := rpcServer.RegisterName("ConvStore", handler); err != nil {
		return nil, fmt.Errorf("register rpc handler: %w", err)
	}

	return &Server{
		rpcServer: rpcServer,
		logger:    logger,
		done:      make(chan struct{}),
	}, nil
}

// Listen binds the server to addr without serving.
func (s *Server) Listen(addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	s.listener = ln
	return nil
}

// Addr returns the bound address, or nil before Listen.
func (s *Server) Addr() net.Addr {
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// Serve accepts connections until Shutdown closes the listener.
func (s *Server) Serve() error {
	if s.listener == nil {
		return errors.New("rpc server is not listening")
	}
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				close(s.done)
				return nil
			}
			s.logger.Warn("rpc accept error", "error", err)
			continue
		}

		go s.rpcServer.ServeCodec(jsonrpc.NewServerCodec(conn))
	}
}

// Shutdown stops accepting new RPC connections.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.listener == nil {
		return nil
	}

	if err := s.listener.Close(); err != nil {
		return err
	}

	select {
	case <-s.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Handler implements the ConvStore RPC methods.
type Handler struct {
	service *service.Service
}

// AddMessageArgs pairs a session reference with a message payload.
type AddMessageArgs struct {
	SessionID string                   `json:"session_id"`
	Message   domain.AddMessageRequest `json:"message"`
}

// MessagesArgs selects a page of a session's messages.
type MessagesArgs struct {
	SessionID string `json:"session_id"`
	Page      int    `json:"page"`
	PageSize  int    `json:"page_size"`
	SortDesc  bool   `json:"sort_desc"`
	HideTools bool   `json:"hide_tools"`
}

// MessagesReply is one page of projected messages.
type MessagesReply struct {
	SessionID  string               `json:"session_id"`
	Messages   []history.APIMessage `json:"messages"`
	Total      int                  `json:"total"`
	Page       int                  `json:"page"`
	PageSize   int                  `json:"page_size"`
	TotalPages int                  `json:"total_pages"`
	Diagnostic string               `json:"diagnostic,omitempty"`
}

// SystemPromptArgs replaces a session's system prompt.
type SystemPromptArgs struct {
	SessionID string `json:"session_id"`
	Prompt    string `json:"prompt"`
	AgentID   string `json:"agent_id,omitempty"`
}

// SessionArgs identifies a session.
type SessionArgs struct {
	SessionID string `json:"session_id"`
}

// AckResponse is a generic OK response.
type AckResponse struct {
	OK bool `json:"ok"`
}

// Resolve maps a loose reference to a canonical session id.
func (h *Handler) Resolve(req *domain.ResolveRequest, resp *domain.ResolveResponse) error {
	if req == nil {
		return errors.New("resolve request is required")
	}

	id, err := h.service.ResolveSession(context.Background(), *req)
	if err != nil {
		return err
	}
	if resp != nil {
		resp.SessionID = id
	}
	return nil
}

// AddMessage stores one message.
func (h *Handler) AddMessage(req *AddMessageArgs, resp *domain.AddMessageResponse) error {
	if req == nil {
		return errors.New("add message request is required")
	}
	if req.SessionID == "" {
		return errors.New("session_id is required")
	}

	msg, err := req.Message.ToStructured()
	if err != nil {
		return err
	}
	result, err := h.service.AddMessage(context.Background(), req.SessionID, msg)
	if err != nil {
		return err
	}
	if resp != nil && result != nil {
		*resp = *result
	}
	return nil
}

// Messages returns a page of projected messages. Read failures come back as
// an empty page carrying a diagnostic.
func (h *Handler) Messages(req *MessagesArgs, resp *MessagesReply) error {
	if req == nil {
		return errors.New("messages request is required")
	}
	if req.SessionID == "" {
		return errors.New("session_id is required")
	}

	view := h.service.GetPaginatedMessages(context.Background(), req.SessionID, req.Page, req.PageSize, req.SortDesc)
	if resp != nil {
		*resp = MessagesReply{
			SessionID:  view.SessionID,
			Messages:   history.ProjectAll(view.Messages, history.ProjectOptions{HideTools: req.HideTools}),
			Total:      view.Total,
			Page:       view.Page,
			PageSize:   view.PageSize,
			TotalPages: view.TotalPages,
			Diagnostic: view.Diagnostic,
		}
	}
	return nil
}

// UpdateSystemPrompt replaces a session's system prompt.
func (h *Handler) UpdateSystemPrompt(req *SystemPromptArgs, resp *AckResponse) error {
	if req == nil {
		return errors.New("system prompt request is required")
	}
	if req.SessionID == "" {
		return errors.New("session_id is required")
	}

	if err := h.service.UpdateSystemPrompt(context.Background(), req.SessionID, req.Prompt, req.AgentID); err != nil {
		return err
	}
	if resp != nil {
		resp.OK = true
	}
	return nil
}

// ClearSession deletes every message of a session.
func (h *Handler) ClearSession(req *SessionArgs, resp *AckResponse) error {
	if req == nil {
		return errors.New("clear request is required")
	}
	if req.SessionID == "" {
		return errors.New("session_id is required")
	}

	if err := h.service.ClearSession(context.Background(), req.SessionID); err != nil {
		return err
	}
	if resp != nil {
		resp.OK = true
	}
	return nil
}
