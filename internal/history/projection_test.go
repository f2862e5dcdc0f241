package history

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xiaot623/gogo/convstore/internal/domain"
)

func TestProjectToolCorrelation(t *testing.T) {
	msg := &domain.Message{
		Role:        domain.RoleAssistant,
		TextContent: "Let me check",
		ToolCalls: []domain.ToolCall{
			{ToolName: "calc", Args: map[string]any{"x": 2}, CallID: "c1"},
			{ToolName: "search", Args: map[string]any{"q": "go"}, CallID: "c2"},
		},
		ToolOutputs: []domain.ToolOutput{
			{ToolName: "calc", CallID: "c1", Content: "4"},
			{ToolName: "search", CallID: "c2", Content: map[string]any{"hits": 3}},
		},
	}

	out := Project(msg, ProjectOptions{})
	assert.Equal(t, "assistant", out.Role)
	assert.Equal(t, "Let me check", out.Content)
	require.Len(t, out.ToolCalls, 2)
	require.Len(t, out.ToolOutputs, 2)
	for i := range out.ToolCalls {
		assert.Equal(t, msg.ToolCalls[i].CallID, out.ToolCalls[i].ToolCallID)
		assert.Equal(t, out.ToolCalls[i].ToolCallID, out.ToolOutputs[i].ToolCallID)
	}
	assert.Equal(t, "calc", out.ToolCalls[0].ToolName)
	assert.Equal(t, "search", out.ToolCalls[1].ToolName)
}

func TestProjectHideTools(t *testing.T) {
	msg := &domain.Message{
		Role:        domain.RoleAssistant,
		TextContent: "done",
		ToolCalls:   []domain.ToolCall{{ToolName: "calc", CallID: "c1"}},
	}
	out := Project(msg, ProjectOptions{HideTools: true})
	assert.Empty(t, out.ToolCalls)

	raw, err := json.Marshal(out)
	require.NoError(t, err)
	assert.JSONEq(t, `{"role":"assistant","content":"done"}`, string(raw))
}

func TestProjectOmitsEmptyKeys(t *testing.T) {
	out := Project(&domain.Message{Role: domain.RoleUser, TextContent: "hi"}, ProjectOptions{})
	raw, err := json.Marshal(out)
	require.NoError(t, err)
	assert.JSONEq(t, `{"role":"user","content":"hi"}`, string(raw))
}

func TestProjectMalformed(t *testing.T) {
	out := Project(nil, ProjectOptions{})
	assert.Equal(t, "system", out.Role)
	assert.True(t, strings.HasPrefix(out.Content, DiagnosticPlaceholder))

	out = Project(&domain.Message{Role: "robot", TextContent: "beep"}, ProjectOptions{})
	assert.Equal(t, "system", out.Role)
	assert.Contains(t, out.Content, "robot")
}

func TestProjectAll(t *testing.T) {
	msgs := []domain.Message{
		{Role: domain.RoleUser, TextContent: "Hello"},
		{Role: "bogus"},
		{Role: domain.RoleAssistant, TextContent: "Hi there"},
	}
	out := ProjectAll(msgs, ProjectOptions{})
	require.Len(t, out, 3)
	assert.Equal(t, "user", out[0].Role)
	assert.Equal(t, "system", out[1].Role)
	assert.Equal(t, "Hi there", out[2].Content)
}
