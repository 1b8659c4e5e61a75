package builtin

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Drakonis96/optimAIzer-sub001/internal/agent/ports"
	"github.com/Drakonis96/optimAIzer-sub001/internal/errors"
	"github.com/Drakonis96/optimAIzer-sub001/internal/store"
	"github.com/Drakonis96/optimAIzer-sub001/internal/toolregistry"
)

func fullCollaborators(t *testing.T, st store.Store, clk *testClock) Collaborators {
	t.Helper()
	return Collaborators{
		Outbound:  &captureOutbound{},
		Scheduler: newTestScheduler(t, st, clk),
		Searcher:  &fakeSearcher{rendered: "results"},
		Calendar:  newFakeCalendar(),
		Email:     newFakeMailbox(),
		Home:      newFakeHome(),
		Media:     &fakeMedia{},
	}
}

func TestBuildRegistryFullToolSet(t *testing.T) {
	st := store.NewMemory()
	clk := newTestClock()
	reg := BuildRegistry(testBinding(st, clk), fullCollaborators(t, st, clk), RegistryConfig{})

	names := reg.Names()
	assert.Len(t, names, 42)

	for _, name := range []string{
		"create_note", "search_notes", "update_note", "delete_note",
		"add_to_list", "remove_from_list", "check_list_item", "show_list",
		"add_expense", "list_expenses", "delete_expense",
		"save_memory", "recall_memory", "forget_memory", "update_working_memory",
		"set_reminder", "schedule_task", "cancel_reminder", "list_reminders",
		"set_location_reminder", "create_subscription", "list_subscriptions", "delete_subscription",
		"web_search", "fetch_webpage", "send_telegram_message",
		"create_calendar_event", "update_calendar_event", "delete_calendar_event", "list_calendar_events",
		"send_email", "reply_email", "search_email", "read_email",
		"get_home_state", "set_home_state",
		"search_media", "request_media", "delete_media",
		"run_terminal_command", "execute_code", "undo_last",
	} {
		assert.True(t, reg.Has(name), "missing tool %s", name)
	}
}

func TestBuildRegistryWithoutCollaborators(t *testing.T) {
	st := store.NewMemory()
	reg := BuildRegistry(testBinding(st, newTestClock()), Collaborators{}, RegistryConfig{})

	assert.True(t, reg.Has("create_note"))
	assert.True(t, reg.Has("fetch_webpage"))
	assert.True(t, reg.Has("run_terminal_command"))
	assert.True(t, reg.Has("undo_last"))

	for _, name := range []string{
		"set_reminder", "web_search", "send_telegram_message",
		"create_calendar_event", "send_email", "get_home_state", "search_media",
	} {
		assert.False(t, reg.Has(name), "unexpected tool %s without its backend", name)
	}
}

func TestBuildRegistryPermissionGate(t *testing.T) {
	st := store.NewMemory()
	clk := newTestClock()
	deny := func(category string) error {
		if category == CategoryEmail {
			return errors.NewPermissionDenied(category, "")
		}
		return nil
	}
	reg := BuildRegistry(testBinding(st, clk), fullCollaborators(t, st, clk), RegistryConfig{
		Permissions: deny,
	})

	send, ok := reg.Lookup("send_email")
	require.True(t, ok)
	_, err := send.Execute(context.Background(), ports.ToolCall{
		ID:     "call-1",
		Name:   "send_email",
		Params: map[string]any{"to": "a@example.com", "subject": "s", "body": "b"},
	})
	var denied *errors.PermissionDeniedError
	require.ErrorAs(t, err, &denied)
	assert.Equal(t, CategoryEmail, denied.Category)

	note, ok := reg.Lookup("create_note")
	require.True(t, ok)
	result, err := note.Execute(context.Background(), ports.ToolCall{
		ID:     "call-2",
		Name:   "create_note",
		Params: map[string]any{"title": "Allowed", "content": "still works"},
	})
	require.NoError(t, err)
	assert.Contains(t, result.Content, "Allowed")
}

func TestBuildRegistryCalendarCreateIsDeduplicated(t *testing.T) {
	st := store.NewMemory()
	clk := newTestClock()
	reg := BuildRegistry(testBinding(st, clk), fullCollaborators(t, st, clk), RegistryConfig{
		Dedup: toolregistry.DefaultDedupConfig(),
	})

	create, ok := reg.Lookup("create_calendar_event")
	require.True(t, ok)
	assert.True(t, create.Metadata().Deduplicated)
	assert.False(t, create.Metadata().Critical)
}

func TestBuildRegistryUndoReachesRegisteredTools(t *testing.T) {
	st := store.NewMemory()
	reg := BuildRegistry(testBinding(st, newTestClock()), Collaborators{}, RegistryConfig{})

	note, _ := reg.Lookup("create_note")
	_, err := note.Execute(context.Background(), ports.ToolCall{
		ID:     "call-1",
		Name:   "create_note",
		Params: map[string]any{"title": "Scratch", "content": "temp"},
	})
	require.NoError(t, err)

	undo, ok := reg.Lookup("undo_last")
	require.True(t, ok)
	result, err := undo.Execute(context.Background(), ports.ToolCall{ID: "call-2", Name: "undo_last"})
	require.NoError(t, err)
	assert.Contains(t, result.Content, "Undid create_note")
}

func TestRegistrySideEffectClasses(t *testing.T) {
	st := store.NewMemory()
	clk := newTestClock()
	reg := BuildRegistry(testBinding(st, clk), fullCollaborators(t, st, clk), RegistryConfig{})

	assert.Equal(t, ports.SideEffectReadOnly, reg.SideEffectOf("search_notes"))
	assert.Equal(t, ports.SideEffectReadOnly, reg.SideEffectOf("list_calendar_events"))
	assert.Equal(t, ports.SideEffectMutating, reg.SideEffectOf("create_note"))
	assert.Equal(t, ports.SideEffectMutating, reg.SideEffectOf("send_email"))
	assert.Equal(t, ports.SideEffectMutating, reg.SideEffectOf("no_such_tool"))
}
