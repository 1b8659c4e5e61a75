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

// ListItem is one entry in a list.
type ListItem struct {
	ID      string    `json:"id"`
	Text    string    `json:"text"`
	Done    bool      `json:"done,omitempty"`
	AddedAt time.Time `json:"added_at"`
}

// List is a named collection of items (shopping, packing, todos).
type List struct {
	ID        string     `json:"id"`
	Name      string     `json:"name"`
	Items     []ListItem `json:"items"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
}

// resolveList finds a list by id or case-insensitive name.
func resolveList(lists []List, ref string) (int, error) {
	lowered := strings.ToLower(ref)
	var matches []int
	var cands []errors.Candidate
	for i, l := range lists {
		if l.ID == ref {
			return i, nil
		}
		if strings.ToLower(l.Name) == lowered {
			matches = append(matches, i)
			cands = append(cands, errors.Candidate{ID: l.ID, Label: l.Name})
		}
	}
	switch len(matches) {
	case 1:
		return matches[0], nil
	case 0:
		return 0, errors.NewNotFound("list", ref)
	default:
		return 0, errors.NewAmbiguous("list", cands)
	}
}

// resolveListItem finds an item by id, exact text, or text fragment.
func resolveListItem(list List, ref string) (int, error) {
	for i, item := range list.Items {
		if item.ID == ref {
			return i, nil
		}
	}
	lowered := strings.ToLower(ref)
	match := func(pred func(text string) bool) ([]int, []errors.Candidate) {
		var idx []int
		var cands []errors.Candidate
		for i, item := range list.Items {
			if pred(strings.ToLower(item.Text)) {
				idx = append(idx, i)
				cands = append(cands, errors.Candidate{ID: item.ID, Label: item.Text})
			}
		}
		return idx, cands
	}

	if idx, cands := match(func(t string) bool { return t == lowered }); len(idx) == 1 {
		return idx[0], nil
	} else if len(idx) > 1 {
		return 0, errors.NewAmbiguous("list item", cands)
	}
	if idx, cands := match(func(t string) bool { return strings.Contains(t, lowered) }); len(idx) == 1 {
		return idx[0], nil
	} else if len(idx) > 1 {
		return 0, errors.NewAmbiguous("list item", cands)
	}
	return 0, errors.NewNotFound("list item", ref)
}

type addToList struct{ binding Binding }

// NewAddToList builds the list append tool. A missing list is created on
// first use.
func NewAddToList(binding Binding) ports.ToolExecutor {
	return &addToList{binding: binding.withDefaults()}
}

func (t *addToList) Definition() ports.ToolDefinition {
	return ports.ToolDefinition{
		Name:        "add_to_list",
		Description: "Add an item to a named list, creating the list when it does not exist yet.",
		Parameters: ports.ParameterSchema{
			Type: "object",
			Properties: map[string]ports.Property{
				"list": {Type: "string", Description: "List name or id"},
				"item": {Type: "string", Description: "Item text"},
			},
			Required: []string{"list", "item"},
		},
		SideEffect: ports.SideEffectMutating,
	}
}

func (t *addToList) Metadata() ports.ToolMetadata {
	return ports.ToolMetadata{Category: CategoryNotes}
}

func (t *addToList) Execute(ctx context.Context, call ports.ToolCall) (*ports.ToolResult, error) {
	lists, err := loadCollection[List](ctx, t.binding, store.CollectionLists)
	if err != nil {
		return nil, err
	}

	ref := call.StringParam("list")
	idx, err := resolveList(lists, ref)
	created := false
	if err != nil {
		var notFound *errors.NotFoundError
		if !errors.As(err, &notFound) {
			return nil, err
		}
		lists = append(lists, List{
			ID:        id.NewEntryID("list"),
			Name:      ref,
			CreatedAt: t.binding.Now(),
		})
		idx = len(lists) - 1
		created = true
	}

	item := ListItem{
		ID:      id.NewEntryID("item"),
		Text:    call.StringParam("item"),
		AddedAt: t.binding.Now(),
	}
	lists[idx].Items = append(lists[idx].Items, item)
	lists[idx].UpdatedAt = t.binding.Now()
	if err := saveCollection(ctx, t.binding, store.CollectionLists, lists); err != nil {
		return nil, err
	}

	recordUndo(ctx, t.binding, call.Name, call.Params, &InverseAction{
		Tool:   "remove_from_list",
		Params: map[string]any{"list": lists[idx].ID, "item": item.ID},
	})
	if created {
		return textResult(call, "Created list %q and added %q.", lists[idx].Name, item.Text), nil
	}
	return textResult(call, "Added %q to %q (%d items).", item.Text, lists[idx].Name, len(lists[idx].Items)), nil
}

type removeFromList struct{ binding Binding }

// NewRemoveFromList builds the list removal tool.
func NewRemoveFromList(binding Binding) ports.ToolExecutor {
	return &removeFromList{binding: binding.withDefaults()}
}

func (t *removeFromList) Definition() ports.ToolDefinition {
	return ports.ToolDefinition{
		Name:        "remove_from_list",
		Description: "Remove an item from a list. The item is found by id, exact text, or text fragment.",
		Parameters: ports.ParameterSchema{
			Type: "object",
			Properties: map[string]ports.Property{
				"list": {Type: "string", Description: "List name or id"},
				"item": {Type: "string", Description: "Item id or text"},
			},
			Required: []string{"list", "item"},
		},
		SideEffect: ports.SideEffectMutating,
	}
}

func (t *removeFromList) Metadata() ports.ToolMetadata {
	return ports.ToolMetadata{Category: CategoryNotes}
}

func (t *removeFromList) Execute(ctx context.Context, call ports.ToolCall) (*ports.ToolResult, error) {
	lists, err := loadCollection[List](ctx, t.binding, store.CollectionLists)
	if err != nil {
		return nil, err
	}
	listIdx, err := resolveList(lists, call.StringParam("list"))
	if err != nil {
		return nil, err
	}
	itemIdx, err := resolveListItem(lists[listIdx], call.StringParam("item"))
	if err != nil {
		return nil, err
	}

	removed := lists[listIdx].Items[itemIdx]
	lists[listIdx].Items = append(lists[listIdx].Items[:itemIdx], lists[listIdx].Items[itemIdx+1:]...)
	lists[listIdx].UpdatedAt = t.binding.Now()
	if err := saveCollection(ctx, t.binding, store.CollectionLists, lists); err != nil {
		return nil, err
	}

	recordUndo(ctx, t.binding, call.Name, call.Params, &InverseAction{
		Tool:   "add_to_list",
		Params: map[string]any{"list": lists[listIdx].ID, "item": removed.Text},
	})
	return textResult(call, "Removed %q from %q.", removed.Text, lists[listIdx].Name), nil
}

type checkListItem struct{ binding Binding }

// NewCheckListItem builds the done-state toggle tool.
func NewCheckListItem(binding Binding) ports.ToolExecutor {
	return &checkListItem{binding: binding.withDefaults()}
}

func (t *checkListItem) Definition() ports.ToolDefinition {
	return ports.ToolDefinition{
		Name:        "check_list_item",
		Description: "Mark a list item as done or not done.",
		Parameters: ports.ParameterSchema{
			Type: "object",
			Properties: map[string]ports.Property{
				"list": {Type: "string", Description: "List name or id"},
				"item": {Type: "string", Description: "Item id or text"},
				"done": {Type: "boolean", Description: "Target state; defaults to true", Default: true},
			},
			Required: []string{"list", "item"},
		},
		SideEffect: ports.SideEffectMutating,
	}
}

func (t *checkListItem) Metadata() ports.ToolMetadata {
	return ports.ToolMetadata{Category: CategoryNotes}
}

func (t *checkListItem) Execute(ctx context.Context, call ports.ToolCall) (*ports.ToolResult, error) {
	lists, err := loadCollection[List](ctx, t.binding, store.CollectionLists)
	if err != nil {
		return nil, err
	}
	listIdx, err := resolveList(lists, call.StringParam("list"))
	if err != nil {
		return nil, err
	}
	itemIdx, err := resolveListItem(lists[listIdx], call.StringParam("item"))
	if err != nil {
		return nil, err
	}

	done := true
	if v, ok := call.BoolParam("done"); ok {
		done = v
	}
	prev := lists[listIdx].Items[itemIdx].Done
	lists[listIdx].Items[itemIdx].Done = done
	lists[listIdx].UpdatedAt = t.binding.Now()
	if err := saveCollection(ctx, t.binding, store.CollectionLists, lists); err != nil {
		return nil, err
	}

	recordUndo(ctx, t.binding, call.Name, call.Params, &InverseAction{
		Tool: "check_list_item",
		Params: map[string]any{
			"list": lists[listIdx].ID,
			"item": lists[listIdx].Items[itemIdx].ID,
			"done": prev,
		},
	})
	state := "done"
	if !done {
		state = "not done"
	}
	return textResult(call, "Marked %q as %s.", lists[listIdx].Items[itemIdx].Text, state), nil
}

type showList struct{ binding Binding }

// NewShowList builds the list display tool.
func NewShowList(binding Binding) ports.ToolExecutor {
	return &showList{binding: binding.withDefaults()}
}

func (t *showList) Definition() ports.ToolDefinition {
	return ports.ToolDefinition{
		Name:        "show_list",
		Description: "Show a list's items. Without a list name, shows every list with its item count.",
		Parameters: ports.ParameterSchema{
			Type: "object",
			Properties: map[string]ports.Property{
				"list": {Type: "string", Description: "List name or id"},
			},
		},
		SideEffect: ports.SideEffectReadOnly,
	}
}

func (t *showList) Metadata() ports.ToolMetadata {
	return ports.ToolMetadata{Category: CategoryNotes}
}

func (t *showList) Execute(ctx context.Context, call ports.ToolCall) (*ports.ToolResult, error) {
	lists, err := loadCollection[List](ctx, t.binding, store.CollectionLists)
	if err != nil {
		return nil, err
	}

	ref := call.StringParam("list")
	if ref == "" {
		if len(lists) == 0 {
			return textResult(call, "No lists yet."), nil
		}
		var out strings.Builder
		for _, l := range lists {
			open := 0
			for _, item := range l.Items {
				if !item.Done {
					open++
				}
			}
			fmt.Fprintf(&out, "• %s — %d items (%d open)\n", l.Name, len(l.Items), open)
		}
		return textResult(call, "%s", strings.TrimSuffix(out.String(), "\n")), nil
	}

	idx, err := resolveList(lists, ref)
	if err != nil {
		return nil, err
	}
	list := lists[idx]
	if len(list.Items) == 0 {
		return textResult(call, "%q is empty.", list.Name), nil
	}
	var out strings.Builder
	fmt.Fprintf(&out, "%s:\n", list.Name)
	for _, item := range list.Items {
		mark := "☐"
		if item.Done {
			mark = "☑"
		}
		fmt.Fprintf(&out, "%s %s (%s)\n", mark, item.Text, item.ID)
	}
	return textResult(call, "%s", strings.TrimSuffix(out.String(), "\n")), nil
}
