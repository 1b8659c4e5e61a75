package builtin

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/Drakonis96/optimAIzer-sub001/internal/agent/ports"
	"github.com/Drakonis96/optimAIzer-sub001/internal/errors"
	"github.com/Drakonis96/optimAIzer-sub001/internal/store"
	"github.com/Drakonis96/optimAIzer-sub001/internal/utils/id"
)

// MemoryEntry is one long-term remembered fact.
type MemoryEntry struct {
	ID        string    `json:"id"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}

// WorkingMemoryEntry is one labeled scratchpad slot. Labels are unique per
// agent; writing an existing label overwrites it. The engine injects the
// whole scratchpad into the system context each turn.
type WorkingMemoryEntry struct {
	ID        string    `json:"id"`
	Label     string    `json:"label"`
	Content   string    `json:"content"`
	UpdatedAt time.Time `json:"updated_at"`
}

type saveMemory struct{ binding Binding }

// NewSaveMemory builds the long-term memory tool.
func NewSaveMemory(binding Binding) ports.ToolExecutor {
	return &saveMemory{binding: binding.withDefaults()}
}

func (t *saveMemory) Definition() ports.ToolDefinition {
	return ports.ToolDefinition{
		Name:        "save_memory",
		Description: "Remember a fact about the user permanently (preferences, people, recurring context).",
		Parameters: ports.ParameterSchema{
			Type: "object",
			Properties: map[string]ports.Property{
				"content": {Type: "string", Description: "The fact to remember"},
			},
			Required: []string{"content"},
		},
		SideEffect: ports.SideEffectMutating,
	}
}

func (t *saveMemory) Metadata() ports.ToolMetadata {
	return ports.ToolMetadata{Category: CategoryMemory}
}

func (t *saveMemory) Execute(ctx context.Context, call ports.ToolCall) (*ports.ToolResult, error) {
	entries, err := loadCollection[MemoryEntry](ctx, t.binding, store.CollectionMemory)
	if err != nil {
		return nil, err
	}

	entry := MemoryEntry{
		ID:        id.NewEntryID("mem"),
		Content:   call.StringParam("content"),
		CreatedAt: t.binding.Now(),
	}
	entries = append(entries, entry)
	if err := saveCollection(ctx, t.binding, store.CollectionMemory, entries); err != nil {
		return nil, err
	}

	recordUndo(ctx, t.binding, call.Name, call.Params, &InverseAction{
		Tool:   "forget_memory",
		Params: map[string]any{"memory": entry.ID},
	})
	return textResult(call, "Remembered (%s).", entry.ID), nil
}

type recallMemory struct{ binding Binding }

// NewRecallMemory builds the memory search tool.
func NewRecallMemory(binding Binding) ports.ToolExecutor {
	return &recallMemory{binding: binding.withDefaults()}
}

func (t *recallMemory) Definition() ports.ToolDefinition {
	return ports.ToolDefinition{
		Name:        "recall_memory",
		Description: "Search remembered facts. An empty query lists everything.",
		Parameters: ports.ParameterSchema{
			Type: "object",
			Properties: map[string]ports.Property{
				"query": {Type: "string", Description: "Text to match"},
			},
		},
		SideEffect: ports.SideEffectReadOnly,
	}
}

func (t *recallMemory) Metadata() ports.ToolMetadata {
	return ports.ToolMetadata{Category: CategoryMemory}
}

func (t *recallMemory) Execute(ctx context.Context, call ports.ToolCall) (*ports.ToolResult, error) {
	entries, err := loadCollection[MemoryEntry](ctx, t.binding, store.CollectionMemory)
	if err != nil {
		return nil, err
	}

	query := strings.ToLower(call.StringParam("query"))
	var out strings.Builder
	found := 0
	for _, entry := range entries {
		if query != "" && !strings.Contains(strings.ToLower(entry.Content), query) {
			continue
		}
		found++
		fmt.Fprintf(&out, "• %s (%s)\n", entry.Content, entry.ID)
	}
	if found == 0 {
		return textResult(call, "Nothing remembered matches."), nil
	}
	return textResult(call, "%s", strings.TrimSuffix(out.String(), "\n")), nil
}

type forgetMemory struct{ binding Binding }

// NewForgetMemory builds the memory removal tool.
func NewForgetMemory(binding Binding) ports.ToolExecutor {
	return &forgetMemory{binding: binding.withDefaults()}
}

func (t *forgetMemory) Definition() ports.ToolDefinition {
	return ports.ToolDefinition{
		Name:        "forget_memory",
		Description: "Forget a remembered fact, found by id or content fragment.",
		Parameters: ports.ParameterSchema{
			Type: "object",
			Properties: map[string]ports.Property{
				"memory": {Type: "string", Description: "Memory id or content fragment"},
			},
			Required: []string{"memory"},
		},
		SideEffect: ports.SideEffectMutating,
	}
}

func (t *forgetMemory) Metadata() ports.ToolMetadata {
	return ports.ToolMetadata{Category: CategoryMemory}
}

func (t *forgetMemory) Execute(ctx context.Context, call ports.ToolCall) (*ports.ToolResult, error) {
	entries, err := loadCollection[MemoryEntry](ctx, t.binding, store.CollectionMemory)
	if err != nil {
		return nil, err
	}

	ref := call.StringParam("memory")
	idx := -1
	for i, entry := range entries {
		if entry.ID == ref {
			idx = i
			break
		}
	}
	if idx < 0 {
		lowered := strings.ToLower(ref)
		var matches []int
		var cands []errors.Candidate
		for i, entry := range entries {
			if strings.Contains(strings.ToLower(entry.Content), lowered) {
				matches = append(matches, i)
				cands = append(cands, errors.Candidate{ID: entry.ID, Label: firstLine(entry.Content, 60)})
			}
		}
		switch len(matches) {
		case 1:
			idx = matches[0]
		case 0:
			return nil, errors.NewNotFound("memory", ref)
		default:
			return nil, errors.NewAmbiguous("memory", cands)
		}
	}

	removed := entries[idx]
	entries = append(entries[:idx], entries[idx+1:]...)
	if err := saveCollection(ctx, t.binding, store.CollectionMemory, entries); err != nil {
		return nil, err
	}

	recordUndo(ctx, t.binding, call.Name, call.Params, &InverseAction{
		Tool:   "save_memory",
		Params: map[string]any{"content": removed.Content},
	})
	return textResult(call, "Forgot %q.", firstLine(removed.Content, 60)), nil
}

type updateWorkingMemory struct{ binding Binding }

// NewUpdateWorkingMemory builds the scratchpad tool. Empty content clears
// the label.
func NewUpdateWorkingMemory(binding Binding) ports.ToolExecutor {
	return &updateWorkingMemory{binding: binding.withDefaults()}
}

func (t *updateWorkingMemory) Definition() ports.ToolDefinition {
	return ports.ToolDefinition{
		Name:        "update_working_memory",
		Description: "Write a labeled working-memory slot carried into every turn (current plan, open thread, context). Writing an existing label replaces it; empty content clears it.",
		Parameters: ports.ParameterSchema{
			Type: "object",
			Properties: map[string]ports.Property{
				"label":   {Type: "string", Description: "Slot label, unique per agent"},
				"content": {Type: "string", Description: "Slot content; empty clears the slot"},
			},
			Required: []string{"label"},
		},
		SideEffect: ports.SideEffectMutating,
	}
}

func (t *updateWorkingMemory) Metadata() ports.ToolMetadata {
	return ports.ToolMetadata{Category: CategoryMemory}
}

func (t *updateWorkingMemory) Execute(ctx context.Context, call ports.ToolCall) (*ports.ToolResult, error) {
	entries, err := loadCollection[WorkingMemoryEntry](ctx, t.binding, store.CollectionWorkingMemory)
	if err != nil {
		return nil, err
	}

	label := call.StringParam("label")
	content := call.StringParam("content")
	idx := -1
	for i, entry := range entries {
		if strings.EqualFold(entry.Label, label) {
			idx = i
			break
		}
	}

	var inverse *InverseAction
	switch {
	case content == "" && idx < 0:
		return textResult(call, "Working memory has no slot %q.", label), nil
	case content == "":
		inverse = &InverseAction{Tool: call.Name, Params: map[string]any{"label": entries[idx].Label, "content": entries[idx].Content}}
		entries = append(entries[:idx], entries[idx+1:]...)
	case idx < 0:
		inverse = &InverseAction{Tool: call.Name, Params: map[string]any{"label": label, "content": ""}}
		entries = append(entries, WorkingMemoryEntry{
			ID:        id.NewEntryID("wm"),
			Label:     label,
			Content:   content,
			UpdatedAt: t.binding.Now(),
		})
	default:
		inverse = &InverseAction{Tool: call.Name, Params: map[string]any{"label": entries[idx].Label, "content": entries[idx].Content}}
		entries[idx].Content = content
		entries[idx].UpdatedAt = t.binding.Now()
	}

	if err := saveCollection(ctx, t.binding, store.CollectionWorkingMemory, entries); err != nil {
		return nil, err
	}
	recordUndo(ctx, t.binding, call.Name, call.Params, inverse)

	if content == "" {
		return textResult(call, "Cleared working-memory slot %q.", label), nil
	}
	return textResult(call, "Working memory %q updated.", label), nil
}
