// Package assembler turns structured multi-part messages into persisted
// message rows.
package assembler

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/xiaot623/gogo/convstore/internal/domain"
)

// EmptyContentPlaceholder replaces text that could not be extracted, so that
// readers can tell "nothing extracted" apart from an intentionally blank turn.
const EmptyContentPlaceholder = "[no content]"

// PromptSource looks up a session's current system prompt.
type PromptSource interface {
	SystemPrompt(ctx context.Context, sessionID string) (string, error)
}

// PromptSourceFunc adapts a function to PromptSource.
type PromptSourceFunc func(ctx context.Context, sessionID string) (string, error)

// SystemPrompt calls f.
func (f PromptSourceFunc) SystemPrompt(ctx context.Context, sessionID string) (string, error) {
	return f(ctx, sessionID)
}

// Assembler classifies and extracts structured messages.
type Assembler struct {
	prompts PromptSource
	logger  *slog.Logger
	now     func() time.Time
}

// New creates an Assembler. prompts may be nil, in which case assistant
// messages only carry an explicit prompt snapshot.
func New(prompts PromptSource, logger *slog.Logger) *Assembler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Assembler{
		prompts: prompts,
		logger:  logger,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// Classify determines the role of a structured message: any system part makes
// it a system message, otherwise any user part makes it a user message,
// otherwise it is an assistant message.
func Classify(msg domain.StructuredMessage) domain.Role {
	role := domain.RoleAssistant
	for _, part := range msg.Parts {
		switch part.(type) {
		case domain.SystemPart, *domain.SystemPart:
			return domain.RoleSystem
		case domain.UserPart, *domain.UserPart:
			role = domain.RoleUser
		}
	}
	return role
}

// Assemble builds the message row for sessionID. The returned message has no
// id or timestamps beyond CreatedAt; the store assigns the rest.
func (a *Assembler) Assemble(ctx context.Context, sessionID string, msg domain.StructuredMessage) (*domain.Message, error) {
	role := Classify(msg)
	out := &domain.Message{
		ID:        domain.NewMessageID(),
		SessionID: sessionID,
		UserID:    msg.UserID,
		AgentID:   msg.AgentID,
		Role:      role,
		CreatedAt: a.now(),
	}

	text, err := extract(msg, role, out)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(text) == "" {
		text = EmptyContentPlaceholder
	}
	out.TextContent = text

	switch role {
	case domain.RoleUser:
		out.Context = domain.CloneMap(msg.Context)
	case domain.RoleAssistant:
		out.SystemPrompt = msg.SystemPrompt
		if out.SystemPrompt == "" && a.prompts != nil {
			prompt, err := a.prompts.SystemPrompt(ctx, sessionID)
			if err != nil {
				a.logger.Warn("failed to attach system prompt snapshot", "session_id", sessionID, "error", err)
			} else {
				out.SystemPrompt = prompt
			}
		}
	}
	return out, nil
}

// extract walks all parts once, collecting tool activity into out and
// returning the primary text for role.
func extract(msg domain.StructuredMessage, role domain.Role, out *domain.Message) (string, error) {
	text := ""
	found := false
	if msg.Content != nil && *msg.Content != "" {
		text = *msg.Content
		found = true
	}

	for i, part := range msg.Parts {
		var (
			content string
			kind    domain.Role
		)
		switch p := part.(type) {
		case domain.SystemPart:
			content, kind = p.Content, domain.RoleSystem
		case *domain.SystemPart:
			content, kind = p.Content, domain.RoleSystem
		case domain.UserPart:
			content, kind = p.Content, domain.RoleUser
		case *domain.UserPart:
			content, kind = p.Content, domain.RoleUser
		case domain.TextPart:
			content, kind = p.Content, domain.RoleAssistant
		case *domain.TextPart:
			content, kind = p.Content, domain.RoleAssistant
		case domain.ToolCallPart:
			if err := addToolCall(out, i, p); err != nil {
				return "", err
			}
			continue
		case *domain.ToolCallPart:
			if err := addToolCall(out, i, *p); err != nil {
				return "", err
			}
			continue
		case domain.ToolOutputPart:
			if err := addToolOutput(out, i, p); err != nil {
				return "", err
			}
			continue
		case *domain.ToolOutputPart:
			if err := addToolOutput(out, i, *p); err != nil {
				return "", err
			}
			continue
		case nil:
			return "", &domain.MessageAssemblyError{Index: i, Reason: "nil part"}
		default:
			return "", &domain.MessageAssemblyError{Index: i, Reason: "unsupported part kind " + string(part.Kind())}
		}
		if !found && kind == role && content != "" {
			text = content
			found = true
		}
	}
	return text, nil
}

func addToolCall(out *domain.Message, index int, p domain.ToolCallPart) error {
	if p.CallID == "" {
		return &domain.MessageAssemblyError{Index: index, Reason: "tool call without call_id"}
	}
	if p.ToolName == "" {
		return &domain.MessageAssemblyError{Index: index, Reason: "tool call without tool_name"}
	}
	out.ToolCalls = append(out.ToolCalls, domain.ToolCall{
		ToolName: p.ToolName,
		Args:     domain.CloneMap(p.Args),
		CallID:   p.CallID,
	})
	return nil
}

func addToolOutput(out *domain.Message, index int, p domain.ToolOutputPart) error {
	if p.CallID == "" {
		return &domain.MessageAssemblyError{Index: index, Reason: "tool output without call_id"}
	}
	out.ToolOutputs = append(out.ToolOutputs, domain.ToolOutput{
		ToolName: p.ToolName,
		CallID:   p.CallID,
		Content:  p.Content,
	})
	return nil
}

// SystemText returns the system instruction carried by a system-role message.
func SystemText(msg domain.StructuredMessage) string {
	if msg.Content != nil && *msg.Content != "" {
		return *msg.Content
	}
	for _, part := range msg.Parts {
		switch p := part.(type) {
		case domain.SystemPart:
			if p.Content != "" {
				return p.Content
			}
		case *domain.SystemPart:
			if p.Content != "" {
				return p.Content
			}
		}
	}
	return ""
}
