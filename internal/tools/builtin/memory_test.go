package builtin

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Drakonis96/optimAIzer-sub001/internal/errors"
	"github.com/Drakonis96/optimAIzer-sub001/internal/store"
)

func TestSaveAndRecallMemory(t *testing.T) {
	st := store.NewMemory()
	b := testBinding(st, newTestClock())
	save := NewSaveMemory(b)
	runTool(t, save, map[string]any{"content": "Prefers espresso over filter coffee"})
	runTool(t, save, map[string]any{"content": "Partner's birthday is June 3rd"})

	recall := NewRecallMemory(b)

	result := runTool(t, recall, map[string]any{"query": "birthday"})
	assert.Contains(t, result.Content, "Partner's birthday")
	assert.NotContains(t, result.Content, "espresso")

	result = runTool(t, recall, nil)
	assert.Contains(t, result.Content, "espresso")
	assert.Contains(t, result.Content, "birthday")

	result = runTool(t, recall, map[string]any{"query": "garden"})
	assert.Equal(t, "Nothing remembered matches.", result.Content)
}

func TestForgetMemoryByFragment(t *testing.T) {
	st := store.NewMemory()
	b := testBinding(st, newTestClock())
	runTool(t, NewSaveMemory(b), map[string]any{"content": "Prefers espresso over filter coffee"})

	result := runTool(t, NewForgetMemory(b), map[string]any{"memory": "espresso"})
	assert.Contains(t, result.Content, "Forgot")
	assert.Empty(t, collection[MemoryEntry](t, b, store.CollectionMemory))

	// The inverse restores the content verbatim.
	stack := collection[UndoEntry](t, b, store.CollectionUndo)
	last := stack[len(stack)-1]
	require.NotNil(t, last.Inverse)
	assert.Equal(t, "save_memory", last.Inverse.Tool)
	assert.Equal(t, "Prefers espresso over filter coffee", last.Inverse.Params["content"])
}

func TestForgetMemoryAmbiguous(t *testing.T) {
	st := store.NewMemory()
	b := testBinding(st, newTestClock())
	save := NewSaveMemory(b)
	runTool(t, save, map[string]any{"content": "Coffee: espresso"})
	runTool(t, save, map[string]any{"content": "Coffee: no sugar"})

	err := runToolErr(t, NewForgetMemory(b), map[string]any{"memory": "coffee"})
	var ambiguous *errors.AmbiguousError
	require.ErrorAs(t, err, &ambiguous)
	assert.Len(t, ambiguous.Candidates, 2)
	assert.Len(t, collection[MemoryEntry](t, b, store.CollectionMemory), 2)
}

func TestForgetMemoryNotFound(t *testing.T) {
	b := testBinding(store.NewMemory(), newTestClock())
	err := runToolErr(t, NewForgetMemory(b), map[string]any{"memory": "nothing"})
	var notFound *errors.NotFoundError
	require.ErrorAs(t, err, &notFound)
}

func TestWorkingMemoryLabelOverwrite(t *testing.T) {
	st := store.NewMemory()
	b := testBinding(st, newTestClock())
	update := NewUpdateWorkingMemory(b)

	result := runTool(t, update, map[string]any{"label": "current_plan", "content": "book flights"})
	assert.Equal(t, `Working memory "current_plan" updated.`, result.Content)

	// Same label, any case, replaces rather than duplicates.
	runTool(t, update, map[string]any{"label": "Current_Plan", "content": "book hotel"})

	entries := collection[WorkingMemoryEntry](t, b, store.CollectionWorkingMemory)
	require.Len(t, entries, 1)
	assert.Equal(t, "current_plan", entries[0].Label)
	assert.Equal(t, "book hotel", entries[0].Content)

	// The overwrite's inverse restores the previous content.
	stack := collection[UndoEntry](t, b, store.CollectionUndo)
	last := stack[len(stack)-1]
	require.NotNil(t, last.Inverse)
	assert.Equal(t, "book flights", last.Inverse.Params["content"])
}

func TestWorkingMemoryClear(t *testing.T) {
	st := store.NewMemory()
	b := testBinding(st, newTestClock())
	update := NewUpdateWorkingMemory(b)
	runTool(t, update, map[string]any{"label": "open_thread", "content": "waiting on plumber quote"})

	result := runTool(t, update, map[string]any{"label": "open_thread", "content": ""})
	assert.Equal(t, `Cleared working-memory slot "open_thread".`, result.Content)
	assert.Empty(t, collection[WorkingMemoryEntry](t, b, store.CollectionWorkingMemory))

	// Clearing a slot that never existed is a no-op answer, not an error.
	result = runTool(t, update, map[string]any{"label": "ghost", "content": ""})
	assert.Equal(t, `Working memory has no slot "ghost".`, result.Content)
}
