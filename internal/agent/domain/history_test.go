package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Drakonis96/optimAIzer-sub001/internal/agent/ports"
)

func TestHistoryTrimsAtUserBoundary(t *testing.T) {
	h := NewHistory(4)
	h.Append(ports.Message{Role: ports.RoleUser, Content: "u1"})
	h.Append(ports.Message{Role: ports.RoleAssistant, Content: "a1", ToolCalls: []ports.ToolCall{{ID: "c1", Name: "x"}}})
	h.Append(ports.Message{Role: ports.RoleTool, ToolResults: []ports.ToolResult{{CallID: "c1"}}})
	h.Append(ports.Message{Role: ports.RoleAssistant, Content: "a1-final"})
	h.Append(ports.Message{Role: ports.RoleUser, Content: "u2"})

	turns := h.Snapshot()
	require.NotEmpty(t, turns)
	assert.Equal(t, ports.RoleUser, turns[0].Role, "window must start at a user turn")
	assert.Equal(t, "u2", turns[0].Content)
}

func TestHistorySnapshotIsACopy(t *testing.T) {
	h := NewHistory(10)
	h.Append(ports.Message{Role: ports.RoleUser, Content: "original"})

	snap := h.Snapshot()
	snap[0].Content = "mutated"

	assert.Equal(t, "original", h.Snapshot()[0].Content)
}
