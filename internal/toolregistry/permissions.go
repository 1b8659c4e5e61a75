package toolregistry

import (
	"context"

	"github.com/Drakonis96/optimAIzer-sub001/internal/agent/ports"
)

// PermissionFunc reports whether a tool category is enabled for the agent.
// A nil return allows the call; a typed PermissionDenied error blocks it.
type PermissionFunc func(category string) error

// permissionedExecutor gates its delegate on the agent's capability set.
// The check runs both at Execute time and in Preflight, so disabled critical
// tools are refused before any approval prompt goes out.
type permissionedExecutor struct {
	delegate ports.ToolExecutor
	check    PermissionFunc
}

// WrapPermissioned decorates delegate with a category permission check.
func WrapPermissioned(delegate ports.ToolExecutor, check PermissionFunc) ports.ToolExecutor {
	if delegate == nil || check == nil {
		return delegate
	}
	return &permissionedExecutor{delegate: delegate, check: check}
}

func (p *permissionedExecutor) Execute(ctx context.Context, call ports.ToolCall) (*ports.ToolResult, error) {
	if err := p.check(p.delegate.Metadata().Category); err != nil {
		return nil, err
	}
	return p.delegate.Execute(ctx, call)
}

func (p *permissionedExecutor) Definition() ports.ToolDefinition { return p.delegate.Definition() }

func (p *permissionedExecutor) Metadata() ports.ToolMetadata { return p.delegate.Metadata() }

// Preflight refuses disabled categories outright, then defers to the
// delegate's own static checks when it has any.
func (p *permissionedExecutor) Preflight(call ports.ToolCall) ([]string, error) {
	if err := p.check(p.delegate.Metadata().Category); err != nil {
		return nil, err
	}
	if checker, ok := p.delegate.(ports.PreflightChecker); ok {
		return checker.Preflight(call)
	}
	return nil, nil
}
