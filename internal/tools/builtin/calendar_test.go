package builtin

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Drakonis96/optimAIzer-sub001/internal/agent/ports"
	"github.com/Drakonis96/optimAIzer-sub001/internal/errors"
	"github.com/Drakonis96/optimAIzer-sub001/internal/store"
	"github.com/Drakonis96/optimAIzer-sub001/internal/toolregistry"
)

type fakeCalendar struct {
	mu      sync.Mutex
	events  map[string]ports.CalendarEvent
	seq     int
	creates int
}

func newFakeCalendar() *fakeCalendar {
	return &fakeCalendar{events: make(map[string]ports.CalendarEvent)}
}

func (f *fakeCalendar) Name() string { return "testcal" }

func (f *fakeCalendar) CreateEvent(_ context.Context, event ports.CalendarEvent) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.seq++
	f.creates++
	id := fmt.Sprintf("ev-%d", f.seq)
	event.ID = id
	f.events[id] = event
	return id, nil
}

func (f *fakeCalendar) UpdateEvent(_ context.Context, id string, event ports.CalendarEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.events[id]; !ok {
		return fmt.Errorf("no event %s", id)
	}
	event.ID = id
	f.events[id] = event
	return nil
}

func (f *fakeCalendar) DeleteEvent(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.events[id]; !ok {
		return fmt.Errorf("no event %s", id)
	}
	delete(f.events, id)
	return nil
}

func (f *fakeCalendar) ListEvents(_ context.Context, from, to time.Time) ([]ports.CalendarEvent, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []ports.CalendarEvent
	for _, ev := range f.events {
		if ev.Start.Before(from) || ev.Start.After(to) {
			continue
		}
		out = append(out, ev)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Start.Before(out[j].Start) })
	return out, nil
}

func (f *fakeCalendar) event(t *testing.T, id string) ports.CalendarEvent {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	ev, ok := f.events[id]
	require.True(t, ok, "event %s not in backend", id)
	return ev
}

func TestCreateCalendarEventDefaultsEndToOneHour(t *testing.T) {
	b := testBinding(store.NewMemory(), newTestClock())
	cal := newFakeCalendar()

	result := runTool(t, NewCreateCalendarEvent(b, cal), map[string]any{
		"title": "Dentist",
		"start": "2026-03-12 09:00",
	})
	assert.Contains(t, result.Content, `Created event "Dentist" on Thu Mar 12 09:00`)

	ev := cal.event(t, "ev-1")
	assert.True(t, ev.Start.Equal(time.Date(2026, 3, 12, 9, 0, 0, 0, time.UTC)))
	assert.True(t, ev.End.Equal(time.Date(2026, 3, 12, 10, 0, 0, 0, time.UTC)))
	assert.False(t, ev.AllDay)
}

func TestCreateCalendarEventAllDay(t *testing.T) {
	b := testBinding(store.NewMemory(), newTestClock())
	cal := newFakeCalendar()

	runTool(t, NewCreateCalendarEvent(b, cal), map[string]any{
		"title":   "Conference",
		"start":   "2026-03-14",
		"all_day": true,
	})

	ev := cal.event(t, "ev-1")
	assert.True(t, ev.AllDay)
	assert.True(t, ev.Start.Equal(time.Date(2026, 3, 14, 0, 0, 0, 0, time.UTC)))
	assert.True(t, ev.End.Equal(time.Date(2026, 3, 15, 0, 0, 0, 0, time.UTC)))
}

func TestCreateCalendarEventRejectsInvertedRange(t *testing.T) {
	b := testBinding(store.NewMemory(), newTestClock())
	cal := newFakeCalendar()

	err := runToolErr(t, NewCreateCalendarEvent(b, cal), map[string]any{
		"title": "Dentist",
		"start": "2026-03-12 09:00",
		"end":   "2026-03-12 08:00",
	})
	var validation *errors.ValidationError
	require.ErrorAs(t, err, &validation)
	assert.Equal(t, 0, cal.creates)
}

func TestCreateCalendarEventRecordsDeleteInverse(t *testing.T) {
	b := testBinding(store.NewMemory(), newTestClock())
	cal := newFakeCalendar()
	runTool(t, NewCreateCalendarEvent(b, cal), map[string]any{"title": "Dentist", "start": "2026-03-12 09:00"})

	stack := collection[UndoEntry](t, b, store.CollectionUndo)
	last := stack[len(stack)-1]
	require.NotNil(t, last.Inverse)
	assert.Equal(t, "delete_calendar_event", last.Inverse.Tool)
	assert.Equal(t, "ev-1", last.Inverse.Params["event"])
}

func TestUpdateCalendarEventMergesOnlyProvidedFields(t *testing.T) {
	b := testBinding(store.NewMemory(), newTestClock())
	cal := newFakeCalendar()
	runTool(t, NewCreateCalendarEvent(b, cal), map[string]any{
		"title":       "Dentist",
		"start":       "2026-03-12 09:00",
		"end":         "2026-03-12 10:00",
		"location":    "Main St 4",
		"description": "checkup",
	})

	result := runTool(t, NewUpdateCalendarEvent(b, cal), map[string]any{
		"event": "Dentist",
		"start": "2026-03-12 11:00",
		"end":   "2026-03-12 12:00",
	})
	assert.Contains(t, result.Content, `Updated event "Dentist"`)

	ev := cal.event(t, "ev-1")
	assert.Equal(t, "Dentist", ev.Title)
	assert.Equal(t, "Main St 4", ev.Location)
	assert.Equal(t, "checkup", ev.Description)
	assert.True(t, ev.Start.Equal(time.Date(2026, 3, 12, 11, 0, 0, 0, time.UTC)))
	assert.True(t, ev.End.Equal(time.Date(2026, 3, 12, 12, 0, 0, 0, time.UTC)))

	// The inverse snapshots the full previous state.
	stack := collection[UndoEntry](t, b, store.CollectionUndo)
	last := stack[len(stack)-1]
	require.NotNil(t, last.Inverse)
	assert.Equal(t, "update_calendar_event", last.Inverse.Tool)
	assert.Equal(t, "ev-1", last.Inverse.Params["event"])
	assert.Equal(t, "2026-03-12T09:00:00Z", last.Inverse.Params["start"])
	assert.Equal(t, "2026-03-12T10:00:00Z", last.Inverse.Params["end"])
}

func TestUpdateCalendarEventClearsDescriptionWhenProvidedEmpty(t *testing.T) {
	b := testBinding(store.NewMemory(), newTestClock())
	cal := newFakeCalendar()
	runTool(t, NewCreateCalendarEvent(b, cal), map[string]any{
		"title":       "Dentist",
		"start":       "2026-03-12 09:00",
		"description": "checkup",
	})

	runTool(t, NewUpdateCalendarEvent(b, cal), map[string]any{
		"event":       "Dentist",
		"description": "",
	})
	assert.Equal(t, "", cal.event(t, "ev-1").Description)
}

func TestResolveEventAmbiguousTitles(t *testing.T) {
	b := testBinding(store.NewMemory(), newTestClock())
	cal := newFakeCalendar()
	create := NewCreateCalendarEvent(b, cal)
	runTool(t, create, map[string]any{"title": "Standup", "start": "2026-03-12 09:00"})
	runTool(t, create, map[string]any{"title": "Standup", "start": "2026-03-13 09:00"})

	err := runToolErr(t, NewDeleteCalendarEvent(b, cal), map[string]any{"event": "standup"})
	var ambiguous *errors.AmbiguousError
	require.ErrorAs(t, err, &ambiguous)
	require.Len(t, ambiguous.Candidates, 2)
	// Labels carry the start time so the user can tell them apart.
	assert.Contains(t, ambiguous.Candidates[0].Label, "Standup (Mar 1")
	assert.Len(t, cal.events, 2)
}

func TestDeleteCalendarEventRecordsRecreatingInverse(t *testing.T) {
	b := testBinding(store.NewMemory(), newTestClock())
	cal := newFakeCalendar()
	runTool(t, NewCreateCalendarEvent(b, cal), map[string]any{
		"title":    "Dentist",
		"start":    "2026-03-12 09:00",
		"location": "Main St 4",
	})

	result := runTool(t, NewDeleteCalendarEvent(b, cal), map[string]any{"event": "Dentist"})
	assert.Contains(t, result.Content, `Deleted event "Dentist"`)
	assert.Empty(t, cal.events)

	stack := collection[UndoEntry](t, b, store.CollectionUndo)
	last := stack[len(stack)-1]
	require.NotNil(t, last.Inverse)
	assert.Equal(t, "create_calendar_event", last.Inverse.Tool)
	assert.Equal(t, "Dentist", last.Inverse.Params["title"])
	assert.Equal(t, "2026-03-12T09:00:00Z", last.Inverse.Params["start"])
	assert.Equal(t, "Main St 4", last.Inverse.Params["location"])
}

func TestListCalendarEventsFormats(t *testing.T) {
	b := testBinding(store.NewMemory(), newTestClock())
	cal := newFakeCalendar()

	result := runTool(t, NewListCalendarEvents(b, cal), nil)
	assert.Equal(t, "No events in the next 7 days.", result.Content)

	create := NewCreateCalendarEvent(b, cal)
	runTool(t, create, map[string]any{"title": "Dentist", "start": "2026-03-12 09:00", "location": "Main St 4"})
	runTool(t, create, map[string]any{"title": "Conference", "start": "2026-03-14", "all_day": true})
	runTool(t, create, map[string]any{"title": "Far away", "start": "2026-03-25 10:00"})

	result = runTool(t, NewListCalendarEvents(b, cal), nil)
	assert.Contains(t, result.Content, "• Thu Mar 12 09:00 — Dentist @ Main St 4")
	assert.Contains(t, result.Content, "• Sat Mar 14 — Conference (all day)")
	assert.NotContains(t, result.Content, "Far away")

	result = runTool(t, NewListCalendarEvents(b, cal), map[string]any{"days": 30})
	assert.Contains(t, result.Content, "Far away")
}

func TestCalendarFingerprintNormalization(t *testing.T) {
	fp := CalendarFingerprint("u1", "a1", "testcal")
	call := func(title, start string) ports.ToolCall {
		return ports.ToolCall{Name: "create_calendar_event", Params: map[string]any{"title": title, "start": start}}
	}

	a, ok := fp(context.Background(), call("Dentist  Appointment", "2026-03-12 09:00"))
	require.True(t, ok)
	b, _ := fp(context.Background(), call("dentist appointment", "2026-03-12 09:00"))
	assert.Equal(t, a, b)

	c, _ := fp(context.Background(), call("dentist appointment", "2026-03-12 10:00"))
	assert.NotEqual(t, a, c)

	other := CalendarFingerprint("u1", "a1", "othercal")
	d, _ := other(context.Background(), call("dentist appointment", "2026-03-12 09:00"))
	assert.NotEqual(t, a, d)
}

func TestCreateCalendarEventDeduplicatedWithinWindow(t *testing.T) {
	b := testBinding(store.NewMemory(), newTestClock())
	cal := newFakeCalendar()
	wrapped := toolregistry.WrapDeduplicated(
		NewCreateCalendarEvent(b, cal),
		CalendarFingerprint(b.UserID, b.AgentID, cal.Name()),
		toolregistry.DefaultDedupConfig(),
		nil,
	)
	assert.True(t, wrapped.Metadata().Deduplicated)

	params := map[string]any{"title": "Dentist", "start": "2026-03-12 09:00"}
	first := runTool(t, wrapped, params)
	assert.Contains(t, first.Content, "Created event")

	second := runTool(t, wrapped, params)
	assert.Contains(t, second.Content, "Already done")
	assert.Equal(t, true, second.Metadata["deduplicated"])
	assert.Equal(t, 1, cal.creates)

	// A different event books normally.
	third := runTool(t, wrapped, map[string]any{"title": "Dentist", "start": "2026-03-19 09:00"})
	assert.Contains(t, third.Content, "Created event")
	assert.Equal(t, 2, cal.creates)
}
