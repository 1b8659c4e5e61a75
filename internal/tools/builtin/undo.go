package builtin

import (
	"context"
	"time"

	"github.com/Drakonis96/optimAIzer-sub001/internal/agent/ports"
	"github.com/Drakonis96/optimAIzer-sub001/internal/errors"
	"github.com/Drakonis96/optimAIzer-sub001/internal/store"
	"github.com/Drakonis96/optimAIzer-sub001/internal/utils/id"
)

// InverseAction names the tool call that reverses a recorded mutation.
type InverseAction struct {
	Tool   string         `json:"tool"`
	Params map[string]any `json:"params,omitempty"`
}

// UndoEntry is one recorded mutation on the per-agent undo stack. A nil
// Inverse marks the action as non-reversible; it still occupies a stack slot
// so "undo" answers honestly about the most recent change.
type UndoEntry struct {
	ID         string         `json:"id"`
	Tool       string         `json:"tool"`
	Params     map[string]any `json:"params,omitempty"`
	Inverse    *InverseAction `json:"inverse,omitempty"`
	RecordedAt time.Time      `json:"recorded_at"`
}

// recordUndo pushes an entry, trimming the oldest past the depth bound.
// Failures are logged and swallowed: losing an undo record must not fail the
// mutation it describes.
func recordUndo(ctx context.Context, b Binding, tool string, params map[string]any, inverse *InverseAction) {
	entries, err := loadCollection[UndoEntry](ctx, b, store.CollectionUndo)
	if err != nil {
		b.Logger.Warn("undo stack read failed: %v", err)
		return
	}
	entries = append(entries, UndoEntry{
		ID:         id.NewEntryID("undo"),
		Tool:       tool,
		Params:     params,
		Inverse:    inverse,
		RecordedAt: b.Now(),
	})
	if len(entries) > b.UndoDepth {
		entries = entries[len(entries)-b.UndoDepth:]
	}
	if err := saveCollection(ctx, b, store.CollectionUndo, entries); err != nil {
		b.Logger.Warn("undo stack write failed: %v", err)
	}
}

// undoLast pops the newest entry and executes its inverse through the
// registry. The inverse runs as a plain tool call, so it records its own
// undo entry; undoing twice round-trips.
type undoLast struct {
	binding  Binding
	registry ports.ToolRegistry
}

// NewUndoLast builds the undo tool. The registry reference is how inverse
// actions execute; register this tool after the tools it may need to invoke.
func NewUndoLast(binding Binding, registry ports.ToolRegistry) ports.ToolExecutor {
	return &undoLast{binding: binding.withDefaults(), registry: registry}
}

func (t *undoLast) Definition() ports.ToolDefinition {
	return ports.ToolDefinition{
		Name:        "undo_last",
		Description: "Undo the most recent reversible action (note/list/expense changes, reminders). Reports when the last action cannot be reversed.",
		Parameters:  ports.ParameterSchema{Type: "object"},
		SideEffect:  ports.SideEffectMutating,
	}
}

func (t *undoLast) Metadata() ports.ToolMetadata {
	return ports.ToolMetadata{Category: CategoryUndo}
}

func (t *undoLast) Execute(ctx context.Context, call ports.ToolCall) (*ports.ToolResult, error) {
	entries, err := loadCollection[UndoEntry](ctx, t.binding, store.CollectionUndo)
	if err != nil {
		return nil, err
	}
	if len(entries) == 0 {
		return textResult(call, "Nothing to undo."), nil
	}

	last := entries[len(entries)-1]
	if err := saveCollection(ctx, t.binding, store.CollectionUndo, entries[:len(entries)-1]); err != nil {
		return nil, err
	}

	if last.Inverse == nil {
		return textResult(call, "The last action (%s) cannot be undone automatically.", last.Tool), nil
	}

	tool, ok := t.registry.Lookup(last.Inverse.Tool)
	if !ok {
		return nil, errors.NewNotFound("tool", last.Inverse.Tool)
	}
	inverseCall := ports.ToolCall{
		ID:     id.NewCallID(),
		Name:   last.Inverse.Tool,
		Params: last.Inverse.Params,
	}
	result, err := tool.Execute(ctx, inverseCall)
	if err != nil {
		return nil, err
	}
	return textResult(call, "Undid %s: %s", last.Tool, result.Content), nil
}
