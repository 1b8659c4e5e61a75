package builtin

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/Drakonis96/optimAIzer-sub001/internal/agent/ports"
	"github.com/Drakonis96/optimAIzer-sub001/internal/diff"
	"github.com/Drakonis96/optimAIzer-sub001/internal/errors"
	"github.com/Drakonis96/optimAIzer-sub001/internal/store"
	"github.com/Drakonis96/optimAIzer-sub001/internal/utils/id"
)

// Note is one stored note.
type Note struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	Content   string    `json:"content,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// resolveNote finds a note by id, exact title, or title substring, in that
// order. More than one match at the same tier is Ambiguous; the model must
// surface the candidates instead of guessing.
func resolveNote(notes []Note, ref string) (int, error) {
	for i, n := range notes {
		if n.ID == ref {
			return i, nil
		}
	}
	lowered := strings.ToLower(ref)
	match := func(pred func(title string) bool) ([]int, []errors.Candidate) {
		var idx []int
		var cands []errors.Candidate
		for i, n := range notes {
			if pred(strings.ToLower(n.Title)) {
				idx = append(idx, i)
				cands = append(cands, errors.Candidate{ID: n.ID, Label: n.Title})
			}
		}
		return idx, cands
	}

	if idx, cands := match(func(t string) bool { return t == lowered }); len(idx) == 1 {
		return idx[0], nil
	} else if len(idx) > 1 {
		return 0, errors.NewAmbiguous("note", cands)
	}
	if idx, cands := match(func(t string) bool { return strings.Contains(t, lowered) }); len(idx) == 1 {
		return idx[0], nil
	} else if len(idx) > 1 {
		return 0, errors.NewAmbiguous("note", cands)
	}
	return 0, errors.NewNotFound("note", ref)
}

type createNote struct{ binding Binding }

// NewCreateNote builds the note creation tool.
func NewCreateNote(binding Binding) ports.ToolExecutor {
	return &createNote{binding: binding.withDefaults()}
}

func (t *createNote) Definition() ports.ToolDefinition {
	return ports.ToolDefinition{
		Name:        "create_note",
		Description: "Create a note with a title and optional content.",
		Parameters: ports.ParameterSchema{
			Type: "object",
			Properties: map[string]ports.Property{
				"title":   {Type: "string", Description: "Note title"},
				"content": {Type: "string", Description: "Note body"},
			},
			Required: []string{"title"},
		},
		SideEffect: ports.SideEffectMutating,
	}
}

func (t *createNote) Metadata() ports.ToolMetadata {
	return ports.ToolMetadata{Category: CategoryNotes}
}

func (t *createNote) Execute(ctx context.Context, call ports.ToolCall) (*ports.ToolResult, error) {
	notes, err := loadCollection[Note](ctx, t.binding, store.CollectionNotes)
	if err != nil {
		return nil, err
	}

	note := Note{
		// note_id is the undo restore path: recreating a deleted note
		// keeps its original identity.
		ID:        call.StringParam("note_id"),
		Title:     call.StringParam("title"),
		Content:   call.StringParam("content"),
		CreatedAt: t.binding.Now(),
		UpdatedAt: t.binding.Now(),
	}
	if note.ID == "" {
		note.ID = id.NewEntryID("note")
	}

	notes = append(notes, note)
	if err := saveCollection(ctx, t.binding, store.CollectionNotes, notes); err != nil {
		return nil, err
	}

	recordUndo(ctx, t.binding, call.Name, call.Params, &InverseAction{
		Tool:   "delete_note",
		Params: map[string]any{"note": note.ID},
	})
	return textResult(call, "Created note %q (%s).", note.Title, note.ID), nil
}

type searchNotes struct{ binding Binding }

// NewSearchNotes builds the note search tool.
func NewSearchNotes(binding Binding) ports.ToolExecutor {
	return &searchNotes{binding: binding.withDefaults()}
}

func (t *searchNotes) Definition() ports.ToolDefinition {
	return ports.ToolDefinition{
		Name:        "search_notes",
		Description: "Search notes by title and content. An empty query lists every note.",
		Parameters: ports.ParameterSchema{
			Type: "object",
			Properties: map[string]ports.Property{
				"query": {Type: "string", Description: "Text to match against titles and content"},
			},
		},
		SideEffect: ports.SideEffectReadOnly,
	}
}

func (t *searchNotes) Metadata() ports.ToolMetadata {
	return ports.ToolMetadata{Category: CategoryNotes}
}

func (t *searchNotes) Execute(ctx context.Context, call ports.ToolCall) (*ports.ToolResult, error) {
	notes, err := loadCollection[Note](ctx, t.binding, store.CollectionNotes)
	if err != nil {
		return nil, err
	}

	query := strings.ToLower(call.StringParam("query"))
	var out strings.Builder
	found := 0
	for _, n := range notes {
		if query != "" &&
			!strings.Contains(strings.ToLower(n.Title), query) &&
			!strings.Contains(strings.ToLower(n.Content), query) {
			continue
		}
		found++
		fmt.Fprintf(&out, "• %s (%s)\n", n.Title, n.ID)
		if snippet := firstLine(n.Content, 120); snippet != "" {
			fmt.Fprintf(&out, "  %s\n", snippet)
		}
	}
	if found == 0 {
		if query == "" {
			return textResult(call, "No notes yet."), nil
		}
		return textResult(call, "No notes match %q.", call.StringParam("query")), nil
	}
	return textResult(call, "%d note(s):\n%s", found, strings.TrimSuffix(out.String(), "\n")), nil
}

type updateNote struct{ binding Binding }

// NewUpdateNote builds the note edit tool. Results carry a line diff of the
// change so the user sees exactly what moved.
func NewUpdateNote(binding Binding) ports.ToolExecutor {
	return &updateNote{binding: binding.withDefaults()}
}

func (t *updateNote) Definition() ports.ToolDefinition {
	return ports.ToolDefinition{
		Name:        "update_note",
		Description: "Replace a note's content and/or title. The note is found by id, exact title, or title fragment.",
		Parameters: ports.ParameterSchema{
			Type: "object",
			Properties: map[string]ports.Property{
				"note":    {Type: "string", Description: "Note id or title"},
				"content": {Type: "string", Description: "New body"},
				"title":   {Type: "string", Description: "New title"},
			},
			Required: []string{"note"},
		},
		SideEffect: ports.SideEffectMutating,
	}
}

func (t *updateNote) Metadata() ports.ToolMetadata {
	return ports.ToolMetadata{Category: CategoryNotes}
}

func (t *updateNote) Execute(ctx context.Context, call ports.ToolCall) (*ports.ToolResult, error) {
	_, hasContent := call.Params["content"]
	_, hasTitle := call.Params["title"]
	if !hasContent && !hasTitle {
		return nil, errors.NewValidation("content", "provide new content and/or a new title")
	}

	notes, err := loadCollection[Note](ctx, t.binding, store.CollectionNotes)
	if err != nil {
		return nil, err
	}
	idx, err := resolveNote(notes, call.StringParam("note"))
	if err != nil {
		return nil, err
	}

	prev := notes[idx]
	next := prev
	if hasContent {
		next.Content = call.StringParam("content")
	}
	if hasTitle {
		next.Title = call.StringParam("title")
	}
	next.UpdatedAt = t.binding.Now()
	notes[idx] = next
	if err := saveCollection(ctx, t.binding, store.CollectionNotes, notes); err != nil {
		return nil, err
	}

	recordUndo(ctx, t.binding, call.Name, call.Params, &InverseAction{
		Tool: "update_note",
		Params: map[string]any{
			"note":    prev.ID,
			"title":   prev.Title,
			"content": prev.Content,
		},
	})

	preview := diff.Lines(prev.Content, next.Content)
	switch {
	case preview.Changed():
		return textResult(call, "Updated note %q (%s, %s).\n```\n%s\n```", next.Title, next.ID, preview.Summary(), preview.Text), nil
	case prev.Title != next.Title:
		return textResult(call, "Renamed note %q to %q (%s).", prev.Title, next.Title, next.ID), nil
	default:
		return textResult(call, "Note %q (%s) is unchanged.", next.Title, next.ID), nil
	}
}

type deleteNote struct{ binding Binding }

// NewDeleteNote builds the note deletion tool.
func NewDeleteNote(binding Binding) ports.ToolExecutor {
	return &deleteNote{binding: binding.withDefaults()}
}

func (t *deleteNote) Definition() ports.ToolDefinition {
	return ports.ToolDefinition{
		Name:        "delete_note",
		Description: "Delete a note found by id, exact title, or title fragment.",
		Parameters: ports.ParameterSchema{
			Type: "object",
			Properties: map[string]ports.Property{
				"note": {Type: "string", Description: "Note id or title"},
			},
			Required: []string{"note"},
		},
		SideEffect: ports.SideEffectMutating,
	}
}

func (t *deleteNote) Metadata() ports.ToolMetadata {
	return ports.ToolMetadata{Category: CategoryNotes}
}

func (t *deleteNote) Execute(ctx context.Context, call ports.ToolCall) (*ports.ToolResult, error) {
	notes, err := loadCollection[Note](ctx, t.binding, store.CollectionNotes)
	if err != nil {
		return nil, err
	}
	idx, err := resolveNote(notes, call.StringParam("note"))
	if err != nil {
		return nil, err
	}

	removed := notes[idx]
	notes = append(notes[:idx], notes[idx+1:]...)
	if err := saveCollection(ctx, t.binding, store.CollectionNotes, notes); err != nil {
		return nil, err
	}

	recordUndo(ctx, t.binding, call.Name, call.Params, &InverseAction{
		Tool: "create_note",
		Params: map[string]any{
			"note_id": removed.ID,
			"title":   removed.Title,
			"content": removed.Content,
		},
	})
	return textResult(call, "Deleted note %q (%s).", removed.Title, removed.ID), nil
}

// firstLine truncates content to its first line, capped at max runes.
func firstLine(content string, max int) string {
	line := content
	if i := strings.IndexByte(line, '\n'); i >= 0 {
		line = line[:i]
	}
	runes := []rune(line)
	if len(runes) > max {
		return string(runes[:max-1]) + "…"
	}
	return line
}
