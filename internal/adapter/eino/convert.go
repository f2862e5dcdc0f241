// Package eino converts stored history to and from eino schema messages so
// agents built on eino can replay a session.
package eino

import (
	"encoding/json"
	"fmt"

	"github.com/cloudwego/eino/schema"
	"github.com/xiaot623/gogo/convstore/internal/assembler"
	"github.com/xiaot623/gogo/convstore/internal/domain"
)

// ToSchema converts messages, oldest first, into an eino conversation headed
// by prompt when it is set. Each assistant tool output becomes its own tool
// message following the assistant turn.
func ToSchema(messages []domain.Message, prompt string) ([]*schema.Message, error) {
	out := make([]*schema.Message, 0, len(messages)+1)
	if prompt != "" {
		out = append(out, &schema.Message{Role: schema.System, Content: prompt})
	}

	for _, msg := range messages {
		content := msg.TextContent
		if content == assembler.EmptyContentPlaceholder {
			content = ""
		}

		switch msg.Role {
		case domain.RoleUser:
			out = append(out, &schema.Message{Role: schema.User, Content: content})
		case domain.RoleSystem:
			out = append(out, &schema.Message{Role: schema.System, Content: content})
		case domain.RoleAssistant:
			assistant := &schema.Message{Role: schema.Assistant, Content: content}
			for i, call := range msg.ToolCalls {
				args, err := json.Marshal(call.Args)
				if err != nil {
					return nil, fmt.Errorf("failed to encode args of tool call %s: %w", call.CallID, err)
				}
				if call.Args == nil {
					args = []byte("{}")
				}
				index := i
				assistant.ToolCalls = append(assistant.ToolCalls, schema.ToolCall{
					Index: &index,
					ID:    call.CallID,
					Type:  "function",
					Function: schema.FunctionCall{
						Name:      call.ToolName,
						Arguments: string(args),
					},
				})
			}
			out = append(out, assistant)

			for _, output := range msg.ToolOutputs {
				text, err := outputText(output.Content)
				if err != nil {
					return nil, fmt.Errorf("failed to encode output of tool call %s: %w", output.CallID, err)
				}
				out = append(out, &schema.Message{
					Role:       schema.Tool,
					Content:    text,
					ToolCallID: output.CallID,
					ToolName:   output.ToolName,
				})
			}
		default:
			return nil, fmt.Errorf("unknown role %q on message %s", msg.Role, msg.ID)
		}
	}
	return out, nil
}

func outputText(content any) (string, error) {
	switch v := content.(type) {
	case nil:
		return "", nil
	case string:
		return v, nil
	default:
		raw, err := json.Marshal(v)
		if err != nil {
			return "", err
		}
		return string(raw), nil
	}
}

// FromSchema converts one eino message into the structured form accepted by
// the message store.
func FromSchema(msg *schema.Message) (domain.StructuredMessage, error) {
	if msg == nil {
		return domain.StructuredMessage{}, &domain.MessageAssemblyError{Index: -1, Reason: "nil message"}
	}

	switch msg.Role {
	case schema.System:
		return domain.StructuredMessage{Parts: []domain.Part{domain.SystemPart{Content: msg.Content}}}, nil
	case schema.User:
		return domain.StructuredMessage{Parts: []domain.Part{domain.UserPart{Content: msg.Content}}}, nil
	case schema.Assistant:
		parts := []domain.Part{domain.TextPart{Content: msg.Content}}
		for i, call := range msg.ToolCalls {
			var args map[string]any
			if call.Function.Arguments != "" {
				if err := json.Unmarshal([]byte(call.Function.Arguments), &args); err != nil {
					return domain.StructuredMessage{}, &domain.MessageAssemblyError{
						Index:  i + 1,
						Reason: fmt.Sprintf("tool call %s has undecodable arguments: %v", call.ID, err),
					}
				}
			}
			parts = append(parts, domain.ToolCallPart{ToolName: call.Function.Name, Args: args, CallID: call.ID})
		}
		return domain.StructuredMessage{Parts: parts}, nil
	case schema.Tool:
		return domain.StructuredMessage{Parts: []domain.Part{domain.ToolOutputPart{
			ToolName: msg.ToolName,
			CallID:   msg.ToolCallID,
			Content:  msg.Content,
		}}}, nil
	default:
		return domain.StructuredMessage{}, &domain.MessageAssemblyError{Index: -1, Reason: fmt.Sprintf("unsupported role %q", msg.Role)}
	}
}
