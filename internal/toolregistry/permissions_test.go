package toolregistry

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Drakonis96/optimAIzer-sub001/internal/agent/ports"
	"github.com/Drakonis96/optimAIzer-sub001/internal/errors"
)

type preflightStub struct {
	stubTool
	warnings   []string
	preflights int
}

func (p *preflightStub) Preflight(ports.ToolCall) ([]string, error) {
	p.preflights++
	return p.warnings, nil
}

func denyCategories(denied ...string) PermissionFunc {
	blocked := map[string]bool{}
	for _, c := range denied {
		blocked[c] = true
	}
	return func(category string) error {
		if blocked[category] {
			return errors.NewPermissionDenied(category, "")
		}
		return nil
	}
}

func TestPermissionAllowsEnabledCategory(t *testing.T) {
	inner := &stubTool{name: "create_note", meta: ports.ToolMetadata{Category: "notes"}}
	tool := WrapPermissioned(inner, denyCategories("terminal"))

	result, err := tool.Execute(context.Background(), ports.ToolCall{ID: "c1", Name: "create_note"})
	require.NoError(t, err)
	assert.Equal(t, "ok", result.Content)
	assert.Equal(t, 1, inner.executed)
}

func TestPermissionBlocksDisabledCategory(t *testing.T) {
	inner := &stubTool{name: "run_terminal_command", meta: ports.ToolMetadata{Category: "terminal"}}
	tool := WrapPermissioned(inner, denyCategories("terminal"))

	_, err := tool.Execute(context.Background(), ports.ToolCall{ID: "c1", Name: "run_terminal_command"})
	var denied *errors.PermissionDeniedError
	require.ErrorAs(t, err, &denied)
	assert.Equal(t, "terminal", denied.Category)
	assert.Zero(t, inner.executed, "delegate must not run")
}

func TestPermissionPreflightBlocksBeforeApproval(t *testing.T) {
	inner := &preflightStub{stubTool: stubTool{name: "run_terminal_command", meta: ports.ToolMetadata{Category: "terminal", Critical: true}}}
	tool := WrapPermissioned(inner, denyCategories("terminal"))

	checker, ok := tool.(ports.PreflightChecker)
	require.True(t, ok)

	_, err := checker.Preflight(ports.ToolCall{Name: "run_terminal_command"})
	var denied *errors.PermissionDeniedError
	require.ErrorAs(t, err, &denied)
	assert.Zero(t, inner.preflights, "delegate preflight must not run")
}

func TestPermissionPreflightDelegatesWhenAllowed(t *testing.T) {
	inner := &preflightStub{
		stubTool: stubTool{name: "run_terminal_command", meta: ports.ToolMetadata{Category: "terminal", Critical: true}},
		warnings: []string{"recursive delete"},
	}
	tool := WrapPermissioned(inner, denyCategories())

	checker, ok := tool.(ports.PreflightChecker)
	require.True(t, ok)

	warnings, err := checker.Preflight(ports.ToolCall{Name: "run_terminal_command"})
	require.NoError(t, err)
	assert.Equal(t, []string{"recursive delete"}, warnings)
	assert.Equal(t, 1, inner.preflights)
}

func TestPermissionPreservesMetadata(t *testing.T) {
	inner := &stubTool{name: "send_email", meta: ports.ToolMetadata{Category: "email", Critical: true}}
	tool := WrapPermissioned(inner, denyCategories())

	assert.Equal(t, "send_email", tool.Definition().Name)
	assert.True(t, tool.Metadata().Critical)
	assert.Equal(t, "email", tool.Metadata().Category)
}
