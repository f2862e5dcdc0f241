package history

import (
	"fmt"

	"github.com/xiaot623/gogo/convstore/internal/domain"
)

// DiagnosticPlaceholder prefixes the content returned for a row that could
// not be projected.
const DiagnosticPlaceholder = "[unrenderable message]"

// APIToolCall is the projected form of a tool call.
type APIToolCall struct {
	ToolName   string         `json:"tool_name"`
	Args       map[string]any `json:"args,omitempty"`
	ToolCallID string         `json:"tool_call_id"`
}

// APIToolOutput is the projected form of a tool output.
type APIToolOutput struct {
	ToolName   string `json:"tool_name,omitempty"`
	ToolCallID string `json:"tool_call_id"`
	Content    any    `json:"content,omitempty"`
}

// APIMessage is the outward shape of a message.
type APIMessage struct {
	Role        string          `json:"role"`
	Content     string          `json:"content,omitempty"`
	ToolCalls   []APIToolCall   `json:"tool_calls,omitempty"`
	ToolOutputs []APIToolOutput `json:"tool_outputs,omitempty"`
}

// ProjectOptions controls projection.
type ProjectOptions struct {
	HideTools bool
}

// Project converts msg to its API shape. It never panics: a malformed row
// becomes a system entry carrying a diagnostic.
func Project(msg *domain.Message, opts ProjectOptions) (out APIMessage) {
	defer func() {
		if r := recover(); r != nil {
			out = diagnostic(fmt.Sprint(r))
		}
	}()

	if msg == nil {
		return diagnostic("nil message")
	}
	if !msg.Role.Valid() {
		return diagnostic(fmt.Sprintf("unknown role %q", msg.Role))
	}

	out = APIMessage{
		Role:    string(msg.Role),
		Content: msg.TextContent,
	}
	if opts.HideTools {
		return out
	}
	for _, call := range msg.ToolCalls {
		out.ToolCalls = append(out.ToolCalls, APIToolCall{
			ToolName:   call.ToolName,
			Args:       call.Args,
			ToolCallID: call.CallID,
		})
	}
	for _, output := range msg.ToolOutputs {
		out.ToolOutputs = append(out.ToolOutputs, APIToolOutput{
			ToolName:   output.ToolName,
			ToolCallID: output.CallID,
			Content:    output.Content,
		})
	}
	return out
}

// ProjectAll projects every message in order.
func ProjectAll(msgs []domain.Message, opts ProjectOptions) []APIMessage {
	out := make([]APIMessage, 0, len(msgs))
	for i := range msgs {
		out = append(out, Project(&msgs[i], opts))
	}
	return out
}

func diagnostic(reason string) APIMessage {
	return APIMessage{
		Role:    string(domain.RoleSystem),
		Content: DiagnosticPlaceholder + " " + reason,
	}
}
