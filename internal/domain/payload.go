package domain

import (
	"encoding/json"
	"fmt"
)

// ToPart decodes the wire form into its Part variant.
func (p PartPayload) ToPart() (Part, error) {
	switch p.Kind {
	case PartKindSystem, PartKindUser, PartKindText:
		text, err := payloadText(p.Content)
		if err != nil {
			return nil, err
		}
		switch p.Kind {
		case PartKindSystem:
			return SystemPart{Content: text}, nil
		case PartKindUser:
			return UserPart{Content: text}, nil
		default:
			return TextPart{Content: text}, nil
		}
	case PartKindToolCall:
		return ToolCallPart{ToolName: p.ToolName, Args: p.Args, CallID: p.CallID}, nil
	case PartKindToolOutput:
		var content any
		if len(p.Content) > 0 {
			if err := json.Unmarshal(p.Content, &content); err != nil {
				return nil, fmt.Errorf("decode tool output content: %w", err)
			}
		}
		return ToolOutputPart{ToolName: p.ToolName, CallID: p.CallID, Content: content}, nil
	default:
		return nil, fmt.Errorf("unknown part kind %q", p.Kind)
	}
}

// ToStructured decodes the wire form into a StructuredMessage. Undecodable
// parts are reported as a MessageAssemblyError.
func (r AddMessageRequest) ToStructured() (StructuredMessage, error) {
	msg := StructuredMessage{
		Content:      r.Content,
		Context:      r.Context,
		SystemPrompt: r.SystemPrompt,
		UserID:       r.UserID,
		AgentID:      r.AgentID,
	}
	for i, pp := range r.Parts {
		part, err := pp.ToPart()
		if err != nil {
			return StructuredMessage{}, &MessageAssemblyError{Index: i, Reason: err.Error()}
		}
		msg.Parts = append(msg.Parts, part)
	}
	return msg, nil
}

// payloadText accepts either a JSON string or an arbitrary JSON value, which
// is kept in its encoded form.
func payloadText(raw json.RawMessage) (string, error) {
	if len(raw) == 0 {
		return "", nil
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s, nil
	}
	if !json.Valid(raw) {
		return "", fmt.Errorf("invalid part content")
	}
	return string(raw), nil
}
