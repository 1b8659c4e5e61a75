package builtin

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/Drakonis96/optimAIzer-sub001/internal/agent/ports"
	"github.com/Drakonis96/optimAIzer-sub001/internal/errors"
	"github.com/Drakonis96/optimAIzer-sub001/internal/scheduler"
)

// defaultLocationRadiusMeters applies when set_location_reminder omits the
// radius.
const defaultLocationRadiusMeters = 150

// parseWhen resolves a reminder trigger time: a relative minute offset wins,
// otherwise the raw string is tried as RFC3339, "YYYY-MM-DD HH:MM", and bare
// "HH:MM" (today, or tomorrow when already past).
func parseWhen(raw string, minutes int, loc *time.Location, now time.Time) (time.Time, error) {
	if minutes > 0 {
		return now.Add(time.Duration(minutes) * time.Minute), nil
	}
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, errors.NewValidation("trigger_at", "provide trigger_at or in_minutes")
	}
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return t, nil
	}
	if t, err := time.ParseInLocation("2006-01-02 15:04", raw, loc); err == nil {
		return t, nil
	}
	if t, err := time.ParseInLocation("15:04", raw, loc); err == nil {
		local := now.In(loc)
		candidate := time.Date(local.Year(), local.Month(), local.Day(), t.Hour(), t.Minute(), 0, 0, loc)
		if !candidate.After(now) {
			candidate = candidate.AddDate(0, 0, 1)
		}
		return candidate, nil
	}
	return time.Time{}, errors.NewValidation("trigger_at", fmt.Sprintf("cannot parse time %q; use RFC3339, YYYY-MM-DD HH:MM, or HH:MM", raw))
}

func schedulerLocation(sched *scheduler.Scheduler) *time.Location {
	if tz := sched.AgentTimezone(); tz != "" {
		if loc, err := time.LoadLocation(tz); err == nil {
			return loc
		}
	}
	return time.Local
}

type setReminder struct {
	binding Binding
	sched   *scheduler.Scheduler
}

// NewSetReminder builds the one-shot reminder tool.
func NewSetReminder(binding Binding, sched *scheduler.Scheduler) ports.ToolExecutor {
	return &setReminder{binding: binding.withDefaults(), sched: sched}
}

func (t *setReminder) Definition() ports.ToolDefinition {
	return ports.ToolDefinition{
		Name:        "set_reminder",
		Description: "Set a one-time reminder. Give either an absolute time (trigger_at) or a relative offset (in_minutes).",
		Parameters: ports.ParameterSchema{
			Type: "object",
			Properties: map[string]ports.Property{
				"message":    {Type: "string", Description: "What to remind about"},
				"trigger_at": {Type: "string", Description: "Absolute time: RFC3339, YYYY-MM-DD HH:MM, or HH:MM"},
				"in_minutes": {Type: "integer", Description: "Minutes from now"},
				"name":       {Type: "string", Description: "Display name"},
			},
			Required: []string{"message"},
		},
		SideEffect: ports.SideEffectMutating,
	}
}

func (t *setReminder) Metadata() ports.ToolMetadata {
	return ports.ToolMetadata{Category: CategoryScheduler}
}

func (t *setReminder) Execute(ctx context.Context, call ports.ToolCall) (*ports.ToolResult, error) {
	minutes, _ := call.IntParam("in_minutes")
	when, err := parseWhen(call.StringParam("trigger_at"), minutes, schedulerLocation(t.sched), t.binding.Now())
	if err != nil {
		return nil, err
	}

	name := call.StringParam("name")
	if name == "" {
		name = firstLine(call.StringParam("message"), 60)
	}
	task, err := t.sched.CreateTask(ctx, scheduler.Task{
		// reminder_id is the undo restore path.
		ID:          call.StringParam("reminder_id"),
		Name:        name,
		Instruction: call.StringParam("message"),
		OneShot:     true,
		TriggerAt:   &when,
		Enabled:     true,
	})
	if err != nil {
		return nil, err
	}

	recordUndo(ctx, t.binding, call.Name, call.Params, &InverseAction{
		Tool:   "cancel_reminder",
		Params: map[string]any{"reminder": task.ID},
	})
	return textResult(call, "Reminder set for %s (%s).", when.In(schedulerLocation(t.sched)).Format("Mon Jan 2 15:04"), task.ID), nil
}

type scheduleTask struct {
	binding Binding
	sched   *scheduler.Scheduler
}

// NewScheduleTask builds the recurring cron task tool.
func NewScheduleTask(binding Binding, sched *scheduler.Scheduler) ports.ToolExecutor {
	return &scheduleTask{binding: binding.withDefaults(), sched: sched}
}

func (t *scheduleTask) Definition() ports.ToolDefinition {
	return ports.ToolDefinition{
		Name:        "schedule_task",
		Description: "Schedule a recurring task with a five-field cron expression, e.g. \"0 9 * * 1\" for Mondays at 09:00.",
		Parameters: ports.ParameterSchema{
			Type: "object",
			Properties: map[string]ports.Property{
				"cron":        {Type: "string", Description: "Five-field cron expression"},
				"instruction": {Type: "string", Description: "What the agent should do when it fires"},
				"name":        {Type: "string", Description: "Display name"},
				"timezone":    {Type: "string", Description: "IANA timezone for evaluation; defaults to the agent's"},
			},
			Required: []string{"cron", "instruction"},
		},
		SideEffect: ports.SideEffectMutating,
	}
}

func (t *scheduleTask) Metadata() ports.ToolMetadata {
	return ports.ToolMetadata{Category: CategoryScheduler}
}

func (t *scheduleTask) Execute(ctx context.Context, call ports.ToolCall) (*ports.ToolResult, error) {
	name := call.StringParam("name")
	if name == "" {
		name = firstLine(call.StringParam("instruction"), 60)
	}
	task, err := t.sched.CreateTask(ctx, scheduler.Task{
		ID:             call.StringParam("task_id"),
		Name:           name,
		CronExpression: call.StringParam("cron"),
		Instruction:    call.StringParam("instruction"),
		Timezone:       call.StringParam("timezone"),
		Enabled:        true,
	})
	if err != nil {
		return nil, err
	}

	recordUndo(ctx, t.binding, call.Name, call.Params, &InverseAction{
		Tool:   "cancel_reminder",
		Params: map[string]any{"reminder": task.ID},
	})
	return textResult(call, "Scheduled %q (%s) on %q.", task.Name, task.ID, task.CronExpression), nil
}

type cancelReminder struct {
	binding Binding
	sched   *scheduler.Scheduler
}

// NewCancelReminder builds the cancellation tool covering one-shot
// reminders, recurring tasks, and location reminders.
func NewCancelReminder(binding Binding, sched *scheduler.Scheduler) ports.ToolExecutor {
	return &cancelReminder{binding: binding.withDefaults(), sched: sched}
}

func (t *cancelReminder) Definition() ports.ToolDefinition {
	return ports.ToolDefinition{
		Name:        "cancel_reminder",
		Description: "Cancel a reminder, scheduled task, or location reminder, found by id or name.",
		Parameters: ports.ParameterSchema{
			Type: "object",
			Properties: map[string]ports.Property{
				"reminder": {Type: "string", Description: "Reminder/task id or name"},
			},
			Required: []string{"reminder"},
		},
		SideEffect: ports.SideEffectMutating,
	}
}

func (t *cancelReminder) Metadata() ports.ToolMetadata {
	return ports.ToolMetadata{Category: CategoryScheduler}
}

func (t *cancelReminder) Execute(ctx context.Context, call ports.ToolCall) (*ports.ToolResult, error) {
	ref := call.StringParam("reminder")

	if task, ok := t.findTask(ref); ok {
		if err := t.sched.DeleteTask(ctx, task.ID); err != nil {
			return nil, err
		}
		recordUndo(ctx, t.binding, call.Name, call.Params, taskRestoreAction(task))
		return textResult(call, "Cancelled %q (%s).", task.Name, task.ID), nil
	}
	if rem, ok := t.findLocation(ref); ok {
		if err := t.sched.DeleteLocationReminder(ctx, rem.ID); err != nil {
			return nil, err
		}
		recordUndo(ctx, t.binding, call.Name, call.Params, &InverseAction{
			Tool: "set_location_reminder",
			Params: map[string]any{
				"reminder_id":   rem.ID,
				"name":          rem.Name,
				"message":       rem.Message,
				"lat":           rem.Lat,
				"lon":           rem.Lon,
				"radius_meters": rem.RadiusMeters,
			},
		})
		return textResult(call, "Cancelled location reminder %q (%s).", rem.Name, rem.ID), nil
	}

	if err := t.ambiguity(ref); err != nil {
		return nil, err
	}
	return nil, errors.NewNotFound("reminder", ref)
}

func (t *cancelReminder) findTask(ref string) (scheduler.Task, bool) {
	tasks := t.sched.Tasks()
	for _, task := range tasks {
		if task.ID == ref {
			return task, true
		}
	}
	matches := matchTasks(tasks, ref)
	if len(matches) == 1 {
		return matches[0], true
	}
	return scheduler.Task{}, false
}

func (t *cancelReminder) findLocation(ref string) (scheduler.LocationReminder, bool) {
	rems := t.sched.LocationReminders()
	for _, rem := range rems {
		if rem.ID == ref {
			return rem, true
		}
	}
	matches := matchLocationReminders(rems, ref)
	if len(matches) == 1 {
		return matches[0], true
	}
	return scheduler.LocationReminder{}, false
}

// ambiguity reports a multi-match as Ambiguous so the model can ask which
// one was meant.
func (t *cancelReminder) ambiguity(ref string) error {
	var cands []errors.Candidate
	for _, task := range matchTasks(t.sched.Tasks(), ref) {
		cands = append(cands, errors.Candidate{ID: task.ID, Label: task.Name})
	}
	for _, rem := range matchLocationReminders(t.sched.LocationReminders(), ref) {
		cands = append(cands, errors.Candidate{ID: rem.ID, Label: rem.Name})
	}
	if len(cands) > 1 {
		return errors.NewAmbiguous("reminder", cands)
	}
	return nil
}

func matchTasks(tasks []scheduler.Task, ref string) []scheduler.Task {
	lowered := strings.ToLower(ref)
	var out []scheduler.Task
	for _, task := range tasks {
		if strings.Contains(strings.ToLower(task.Name), lowered) ||
			strings.Contains(strings.ToLower(task.Instruction), lowered) {
			out = append(out, task)
		}
	}
	return out
}

func matchLocationReminders(rems []scheduler.LocationReminder, ref string) []scheduler.LocationReminder {
	lowered := strings.ToLower(ref)
	var out []scheduler.LocationReminder
	for _, rem := range rems {
		if strings.Contains(strings.ToLower(rem.Name), lowered) ||
			strings.Contains(strings.ToLower(rem.Message), lowered) {
			out = append(out, rem)
		}
	}
	return out
}

// taskRestoreAction rebuilds the creation call that resurrects a deleted
// task with its original identity.
func taskRestoreAction(task scheduler.Task) *InverseAction {
	if task.OneShot {
		params := map[string]any{
			"reminder_id": task.ID,
			"name":        task.Name,
			"message":     task.Instruction,
		}
		if task.TriggerAt != nil {
			params["trigger_at"] = task.TriggerAt.Format(time.RFC3339)
		}
		return &InverseAction{Tool: "set_reminder", Params: params}
	}
	return &InverseAction{Tool: "schedule_task", Params: map[string]any{
		"task_id":     task.ID,
		"name":        task.Name,
		"cron":        task.CronExpression,
		"instruction": task.Instruction,
		"timezone":    task.Timezone,
	}}
}

type listReminders struct {
	binding Binding
	sched   *scheduler.Scheduler
}

// NewListReminders builds the schedule overview tool.
func NewListReminders(binding Binding, sched *scheduler.Scheduler) ports.ToolExecutor {
	return &listReminders{binding: binding.withDefaults(), sched: sched}
}

func (t *listReminders) Definition() ports.ToolDefinition {
	return ports.ToolDefinition{
		Name:        "list_reminders",
		Description: "List pending reminders, recurring tasks, and location reminders.",
		Parameters:  ports.ParameterSchema{Type: "object"},
		SideEffect:  ports.SideEffectReadOnly,
	}
}

func (t *listReminders) Metadata() ports.ToolMetadata {
	return ports.ToolMetadata{Category: CategoryScheduler}
}

func (t *listReminders) Execute(_ context.Context, call ports.ToolCall) (*ports.ToolResult, error) {
	loc := schedulerLocation(t.sched)
	var out strings.Builder

	count := 0
	for _, task := range t.sched.Tasks() {
		if !task.Enabled {
			continue
		}
		count++
		if task.OneShot && task.TriggerAt != nil {
			fmt.Fprintf(&out, "• %s — at %s (%s)\n", task.Name, task.TriggerAt.In(loc).Format("Mon Jan 2 15:04"), task.ID)
		} else {
			fmt.Fprintf(&out, "• %s — cron %q (%s)\n", task.Name, task.CronExpression, task.ID)
		}
	}
	for _, rem := range t.sched.LocationReminders() {
		if !rem.Enabled {
			continue
		}
		count++
		fmt.Fprintf(&out, "• %s — within %.0fm of %.5f,%.5f (%s)\n", rem.Name, rem.RadiusMeters, rem.Lat, rem.Lon, rem.ID)
	}

	if count == 0 {
		return textResult(call, "Nothing scheduled."), nil
	}
	return textResult(call, "%s", strings.TrimSuffix(out.String(), "\n")), nil
}

type setLocationReminder struct {
	binding Binding
	sched   *scheduler.Scheduler
}

// NewSetLocationReminder builds the geofence reminder tool.
func NewSetLocationReminder(binding Binding, sched *scheduler.Scheduler) ports.ToolExecutor {
	return &setLocationReminder{binding: binding.withDefaults(), sched: sched}
}

func (t *setLocationReminder) Definition() ports.ToolDefinition {
	return ports.ToolDefinition{
		Name:        "set_location_reminder",
		Description: "Remind when the user's shared location comes within a radius of a point.",
		Parameters: ports.ParameterSchema{
			Type: "object",
			Properties: map[string]ports.Property{
				"message":       {Type: "string", Description: "What to remind about"},
				"lat":           {Type: "number", Description: "Latitude of the point"},
				"lon":           {Type: "number", Description: "Longitude of the point"},
				"radius_meters": {Type: "number", Description: "Trigger radius; defaults to 150"},
				"name":          {Type: "string", Description: "Display name"},
			},
			Required: []string{"message", "lat", "lon"},
		},
		SideEffect: ports.SideEffectMutating,
	}
}

func (t *setLocationReminder) Metadata() ports.ToolMetadata {
	return ports.ToolMetadata{Category: CategoryScheduler}
}

func (t *setLocationReminder) Execute(ctx context.Context, call ports.ToolCall) (*ports.ToolResult, error) {
	lat, latOK := call.FloatParam("lat")
	lon, lonOK := call.FloatParam("lon")
	if !latOK || !lonOK || lat < -90 || lat > 90 || lon < -180 || lon > 180 {
		return nil, errors.NewValidation("lat", "lat/lon must be valid coordinates")
	}
	radius, ok := call.FloatParam("radius_meters")
	if !ok || radius <= 0 {
		radius = defaultLocationRadiusMeters
	}
	name := call.StringParam("name")
	if name == "" {
		name = firstLine(call.StringParam("message"), 60)
	}

	rem, err := t.sched.CreateLocationReminder(ctx, scheduler.LocationReminder{
		ID:           call.StringParam("reminder_id"),
		Name:         name,
		Message:      call.StringParam("message"),
		Lat:          lat,
		Lon:          lon,
		RadiusMeters: radius,
		Enabled:      true,
	})
	if err != nil {
		return nil, err
	}

	recordUndo(ctx, t.binding, call.Name, call.Params, &InverseAction{
		Tool:   "cancel_reminder",
		Params: map[string]any{"reminder": rem.ID},
	})
	return textResult(call, "Location reminder %q set, %.0fm around %.5f,%.5f (%s).", rem.Name, rem.RadiusMeters, rem.Lat, rem.Lon, rem.ID), nil
}
