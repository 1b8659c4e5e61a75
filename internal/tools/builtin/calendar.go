package builtin

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"github.com/Drakonis96/optimAIzer-sub001/internal/agent/ports"
	"github.com/Drakonis96/optimAIzer-sub001/internal/errors"
	"github.com/Drakonis96/optimAIzer-sub001/internal/toolregistry"
)

// calendarLookback bounds how far back event resolution searches; resolution
// is for editing, and edits target recent or upcoming events.
const (
	calendarLookback  = 30 * 24 * time.Hour
	calendarLookahead = 365 * 24 * time.Hour
)

// CalendarFingerprint derives the idempotency key for event creation. Two
// creates with the same normalized content inside the window book one event.
func CalendarFingerprint(userID, agentID, backendName string) toolregistry.Fingerprinter {
	return func(_ context.Context, call ports.ToolCall) (string, bool) {
		allDay := "false"
		if v, ok := call.BoolParam("all_day"); ok && v {
			allDay = "true"
		}
		parts := []string{
			userID,
			agentID,
			backendName,
			normalizeEventTitle(call.StringParam("title")),
			call.StringParam("start"),
			call.StringParam("end"),
			call.StringParam("description"),
			call.StringParam("location"),
			allDay,
		}
		sum := sha256.Sum256([]byte(strings.Join(parts, "\x1f")))
		return hex.EncodeToString(sum[:]), true
	}
}

func normalizeEventTitle(title string) string {
	return strings.Join(strings.Fields(strings.ToLower(title)), " ")
}

// parseEventTime accepts RFC3339, "YYYY-MM-DD HH:MM", and bare "YYYY-MM-DD"
// (midnight, for all-day events), the last two in the agent's timezone.
func parseEventTime(raw string, loc *time.Location) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return t, nil
	}
	if t, err := time.ParseInLocation("2006-01-02 15:04", raw, loc); err == nil {
		return t, nil
	}
	if t, err := time.ParseInLocation("2006-01-02", raw, loc); err == nil {
		return t, nil
	}
	return time.Time{}, errors.NewValidation("start", fmt.Sprintf("cannot parse time %q; use RFC3339, YYYY-MM-DD HH:MM, or YYYY-MM-DD", raw))
}

type createCalendarEvent struct {
	binding Binding
	backend ports.CalendarBackend
}

// NewCreateCalendarEvent builds the event creation tool. Creation is not
// approval-gated; the registry wraps it with the idempotency window instead.
func NewCreateCalendarEvent(binding Binding, backend ports.CalendarBackend) ports.ToolExecutor {
	return &createCalendarEvent{binding: binding.withDefaults(), backend: backend}
}

func (t *createCalendarEvent) Definition() ports.ToolDefinition {
	return ports.ToolDefinition{
		Name:        "create_calendar_event",
		Description: "Create a calendar event.",
		Parameters: ports.ParameterSchema{
			Type: "object",
			Properties: map[string]ports.Property{
				"title":       {Type: "string", Description: "Event title"},
				"start":       {Type: "string", Description: "Start: RFC3339, YYYY-MM-DD HH:MM, or YYYY-MM-DD for all-day"},
				"end":         {Type: "string", Description: "End; defaults to one hour after start"},
				"description": {Type: "string", Description: "Event description"},
				"location":    {Type: "string", Description: "Event location"},
				"all_day":     {Type: "boolean", Description: "All-day event"},
			},
			Required: []string{"title", "start"},
		},
		SideEffect: ports.SideEffectMutating,
	}
}

func (t *createCalendarEvent) Metadata() ports.ToolMetadata {
	return ports.ToolMetadata{Category: CategoryCalendar}
}

func (t *createCalendarEvent) Execute(ctx context.Context, call ports.ToolCall) (*ports.ToolResult, error) {
	loc := t.binding.location()
	start, err := parseEventTime(call.StringParam("start"), loc)
	if err != nil {
		return nil, err
	}
	allDay, _ := call.BoolParam("all_day")
	end := start.Add(time.Hour)
	if allDay {
		end = start.AddDate(0, 0, 1)
	}
	if raw := call.StringParam("end"); raw != "" {
		if end, err = parseEventTime(raw, loc); err != nil {
			return nil, err
		}
	}
	if !end.After(start) {
		return nil, errors.NewValidation("end", "end must be after start")
	}

	eventID, err := t.backend.CreateEvent(ctx, ports.CalendarEvent{
		Title:       call.StringParam("title"),
		Start:       start,
		End:         end,
		Description: call.StringParam("description"),
		Location:    call.StringParam("location"),
		AllDay:      allDay,
	})
	if err != nil {
		return nil, errors.NewExternal("calendar", 0, err, "")
	}

	recordUndo(ctx, t.binding, call.Name, call.Params, &InverseAction{
		Tool:   "delete_calendar_event",
		Params: map[string]any{"event": eventID},
	})
	return textResult(call, "Created event %q on %s (%s).", call.StringParam("title"), start.In(loc).Format("Mon Jan 2 15:04"), eventID), nil
}

// resolveEvent finds an event by id, then by case-insensitive title match
// over the resolution window.
func resolveEvent(ctx context.Context, backend ports.CalendarBackend, now time.Time, ref string) (ports.CalendarEvent, error) {
	events, err := backend.ListEvents(ctx, now.Add(-calendarLookback), now.Add(calendarLookahead))
	if err != nil {
		return ports.CalendarEvent{}, errors.NewExternal("calendar", 0, err, "")
	}
	for _, ev := range events {
		if ev.ID == ref {
			return ev, nil
		}
	}
	lowered := strings.ToLower(ref)
	var matches []ports.CalendarEvent
	for _, ev := range events {
		if strings.Contains(strings.ToLower(ev.Title), lowered) {
			matches = append(matches, ev)
		}
	}
	switch len(matches) {
	case 1:
		return matches[0], nil
	case 0:
		return ports.CalendarEvent{}, errors.NewNotFound("calendar event", ref)
	default:
		cands := make([]errors.Candidate, 0, len(matches))
		for _, ev := range matches {
			cands = append(cands, errors.Candidate{
				ID:    ev.ID,
				Label: fmt.Sprintf("%s (%s)", ev.Title, ev.Start.Format("Jan 2 15:04")),
			})
		}
		return ports.CalendarEvent{}, errors.NewAmbiguous("calendar event", cands)
	}
}

type updateCalendarEvent struct {
	binding Binding
	backend ports.CalendarBackend
}

// NewUpdateCalendarEvent builds the event update tool.
func NewUpdateCalendarEvent(binding Binding, backend ports.CalendarBackend) ports.ToolExecutor {
	return &updateCalendarEvent{binding: binding.withDefaults(), backend: backend}
}

func (t *updateCalendarEvent) Definition() ports.ToolDefinition {
	return ports.ToolDefinition{
		Name:        "update_calendar_event",
		Description: "Update an existing calendar event. Only the provided fields change.",
		Parameters: ports.ParameterSchema{
			Type: "object",
			Properties: map[string]ports.Property{
				"event":       {Type: "string", Description: "Event id or title"},
				"title":       {Type: "string", Description: "New title"},
				"start":       {Type: "string", Description: "New start"},
				"end":         {Type: "string", Description: "New end"},
				"description": {Type: "string", Description: "New description"},
				"location":    {Type: "string", Description: "New location"},
			},
			Required: []string{"event"},
		},
		SideEffect: ports.SideEffectMutating,
	}
}

func (t *updateCalendarEvent) Metadata() ports.ToolMetadata {
	return ports.ToolMetadata{Category: CategoryCalendar, Critical: true}
}

func (t *updateCalendarEvent) Execute(ctx context.Context, call ports.ToolCall) (*ports.ToolResult, error) {
	event, err := resolveEvent(ctx, t.backend, t.binding.Now(), call.StringParam("event"))
	if err != nil {
		return nil, err
	}
	prev := event
	loc := t.binding.location()

	if title := call.StringParam("title"); title != "" {
		event.Title = title
	}
	if raw := call.StringParam("start"); raw != "" {
		if event.Start, err = parseEventTime(raw, loc); err != nil {
			return nil, err
		}
	}
	if raw := call.StringParam("end"); raw != "" {
		if event.End, err = parseEventTime(raw, loc); err != nil {
			return nil, err
		}
	}
	if _, ok := call.Params["description"]; ok {
		event.Description = call.StringParam("description")
	}
	if _, ok := call.Params["location"]; ok {
		event.Location = call.StringParam("location")
	}
	if !event.End.After(event.Start) {
		return nil, errors.NewValidation("end", "end must be after start")
	}

	if err := t.backend.UpdateEvent(ctx, event.ID, event); err != nil {
		return nil, errors.NewExternal("calendar", 0, err, "")
	}

	recordUndo(ctx, t.binding, call.Name, call.Params, &InverseAction{
		Tool: "update_calendar_event",
		Params: map[string]any{
			"event":       prev.ID,
			"title":       prev.Title,
			"start":       prev.Start.Format(time.RFC3339),
			"end":         prev.End.Format(time.RFC3339),
			"description": prev.Description,
			"location":    prev.Location,
		},
	})
	return textResult(call, "Updated event %q (%s).", event.Title, event.ID), nil
}

type deleteCalendarEvent struct {
	binding Binding
	backend ports.CalendarBackend
}

// NewDeleteCalendarEvent builds the event deletion tool.
func NewDeleteCalendarEvent(binding Binding, backend ports.CalendarBackend) ports.ToolExecutor {
	return &deleteCalendarEvent{binding: binding.withDefaults(), backend: backend}
}

func (t *deleteCalendarEvent) Definition() ports.ToolDefinition {
	return ports.ToolDefinition{
		Name:        "delete_calendar_event",
		Description: "Delete a calendar event, found by id or title.",
		Parameters: ports.ParameterSchema{
			Type: "object",
			Properties: map[string]ports.Property{
				"event": {Type: "string", Description: "Event id or title"},
			},
			Required: []string{"event"},
		},
		SideEffect: ports.SideEffectMutating,
	}
}

func (t *deleteCalendarEvent) Metadata() ports.ToolMetadata {
	return ports.ToolMetadata{Category: CategoryCalendar, Critical: true}
}

func (t *deleteCalendarEvent) Execute(ctx context.Context, call ports.ToolCall) (*ports.ToolResult, error) {
	event, err := resolveEvent(ctx, t.backend, t.binding.Now(), call.StringParam("event"))
	if err != nil {
		return nil, err
	}
	if err := t.backend.DeleteEvent(ctx, event.ID); err != nil {
		return nil, errors.NewExternal("calendar", 0, err, "")
	}

	recordUndo(ctx, t.binding, call.Name, call.Params, &InverseAction{
		Tool: "create_calendar_event",
		Params: map[string]any{
			"title":       event.Title,
			"start":       event.Start.Format(time.RFC3339),
			"end":         event.End.Format(time.RFC3339),
			"description": event.Description,
			"location":    event.Location,
			"all_day":     event.AllDay,
		},
	})
	return textResult(call, "Deleted event %q (%s).", event.Title, event.ID), nil
}

type listCalendarEvents struct {
	binding Binding
	backend ports.CalendarBackend
}

// NewListCalendarEvents builds the upcoming events tool.
func NewListCalendarEvents(binding Binding, backend ports.CalendarBackend) ports.ToolExecutor {
	return &listCalendarEvents{binding: binding.withDefaults(), backend: backend}
}

func (t *listCalendarEvents) Definition() ports.ToolDefinition {
	return ports.ToolDefinition{
		Name:        "list_calendar_events",
		Description: "List upcoming calendar events.",
		Parameters: ports.ParameterSchema{
			Type: "object",
			Properties: map[string]ports.Property{
				"days": {Type: "integer", Description: "How many days ahead to look; defaults to 7"},
			},
		},
		SideEffect: ports.SideEffectReadOnly,
	}
}

func (t *listCalendarEvents) Metadata() ports.ToolMetadata {
	return ports.ToolMetadata{Category: CategoryCalendar}
}

func (t *listCalendarEvents) Execute(ctx context.Context, call ports.ToolCall) (*ports.ToolResult, error) {
	days, ok := call.IntParam("days")
	if !ok || days <= 0 {
		days = 7
	}
	now := t.binding.Now()
	events, err := t.backend.ListEvents(ctx, now, now.AddDate(0, 0, days))
	if err != nil {
		return nil, errors.NewExternal("calendar", 0, err, "")
	}
	if len(events) == 0 {
		return textResult(call, "No events in the next %d days.", days), nil
	}

	loc := t.binding.location()
	var out strings.Builder
	for _, ev := range events {
		if ev.AllDay {
			fmt.Fprintf(&out, "• %s — %s (all day)", ev.Start.In(loc).Format("Mon Jan 2"), ev.Title)
		} else {
			fmt.Fprintf(&out, "• %s — %s", ev.Start.In(loc).Format("Mon Jan 2 15:04"), ev.Title)
		}
		if ev.Location != "" {
			fmt.Fprintf(&out, " @ %s", ev.Location)
		}
		out.WriteString("\n")
	}
	return textResult(call, "%s", strings.TrimSuffix(out.String(), "\n")), nil
}
