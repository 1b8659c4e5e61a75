package scheduler

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/Drakonis96/optimAIzer-sub001/internal/agent/domain"
	"github.com/Drakonis96/optimAIzer-sub001/internal/async"
	"github.com/Drakonis96/optimAIzer-sub001/internal/errors"
	"github.com/Drakonis96/optimAIzer-sub001/internal/store"
	"github.com/Drakonis96/optimAIzer-sub001/internal/utils/id"
)

// Task is a recurring cron task or a one-shot reminder. One-shots carry
// TriggerAt instead of a cron expression and disable themselves when fired.
type Task struct {
	ID             string     `json:"id"`
	Name           string     `json:"name"`
	CronExpression string     `json:"cron_expression,omitempty"`
	Instruction    string     `json:"instruction"`
	Enabled        bool       `json:"enabled"`
	Timezone       string     `json:"timezone,omitempty"`
	OneShot        bool       `json:"one_shot,omitempty"`
	TriggerAt      *time.Time `json:"trigger_at,omitempty"`
	StartAt        *time.Time `json:"start_at,omitempty"`
	LastRunAt      *time.Time `json:"last_run_at,omitempty"`
	LastStatus     string     `json:"last_status,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
}

// Task run statuses.
const (
	StatusOK    = "ok"
	StatusError = "error"
)

// CreateTask validates, persists, and (for one-shots) arms the task.
func (s *Scheduler) CreateTask(ctx context.Context, task Task) (Task, error) {
	task.Instruction = strings.TrimSpace(task.Instruction)
	if task.Instruction == "" {
		return Task{}, errors.NewValidation("instruction", "instruction is required")
	}
	if task.OneShot {
		if task.TriggerAt == nil {
			return Task{}, errors.NewValidation("trigger_at", "one-shot tasks need a trigger time")
		}
		task.CronExpression = ""
	} else {
		if _, err := s.cronParser.Parse(task.CronExpression); err != nil {
			return Task{}, errors.NewValidation("cron_expression", fmt.Sprintf("invalid cron expression %q: %v", task.CronExpression, err))
		}
	}
	if task.Timezone != "" {
		if _, err := time.LoadLocation(task.Timezone); err != nil {
			return Task{}, errors.NewValidation("timezone", fmt.Sprintf("unknown timezone %q", task.Timezone))
		}
	}
	if task.ID == "" {
		task.ID = id.NewTaskID()
	}
	task.CreatedAt = s.now()

	s.mu.Lock()
	tasks := append(cloneTasks(s.tasks), task)
	if err := s.saveTasksLocked(ctx, tasks); err != nil {
		s.mu.Unlock()
		return Task{}, err
	}
	if task.OneShot && task.Enabled {
		s.armOneShotLocked(task)
	}
	s.mu.Unlock()
	return task, nil
}

// UpdateTask applies mutate to the stored task and persists the result. The
// one-shot timer is re-armed from the updated definition.
func (s *Scheduler) UpdateTask(ctx context.Context, taskID string, mutate func(*Task)) (Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tasks := cloneTasks(s.tasks)
	idx := -1
	for i := range tasks {
		if tasks[i].ID == taskID {
			idx = i
			break
		}
	}
	if idx < 0 {
		return Task{}, errors.NewNotFound("task", taskID)
	}
	mutate(&tasks[idx])
	tasks[idx].ID = taskID
	if !tasks[idx].OneShot && tasks[idx].CronExpression != "" {
		if _, err := s.cronParser.Parse(tasks[idx].CronExpression); err != nil {
			return Task{}, errors.NewValidation("cron_expression", fmt.Sprintf("invalid cron expression %q: %v", tasks[idx].CronExpression, err))
		}
	}
	if err := s.saveTasksLocked(ctx, tasks); err != nil {
		return Task{}, err
	}

	updated := tasks[idx]
	if timer, ok := s.timers[taskID]; ok {
		timer.Stop()
		delete(s.timers, taskID)
	}
	if updated.OneShot && updated.Enabled {
		s.armOneShotLocked(updated)
	}
	return updated, nil
}

// DeleteTask removes the task and cancels its timer.
func (s *Scheduler) DeleteTask(ctx context.Context, taskID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tasks := cloneTasks(s.tasks)
	idx := -1
	for i := range tasks {
		if tasks[i].ID == taskID {
			idx = i
			break
		}
	}
	if idx < 0 {
		return errors.NewNotFound("task", taskID)
	}
	tasks = append(tasks[:idx], tasks[idx+1:]...)
	if err := s.saveTasksLocked(ctx, tasks); err != nil {
		return err
	}
	if timer, ok := s.timers[taskID]; ok {
		timer.Stop()
		delete(s.timers, taskID)
	}
	return nil
}

// Tasks returns a copy of the task list.
func (s *Scheduler) Tasks() []Task {
	s.mu.Lock()
	defer s.mu.Unlock()
	return cloneTasks(s.tasks)
}

// saveTasksLocked persists then swaps in the new slice. Callers hold mu.
func (s *Scheduler) saveTasksLocked(ctx context.Context, tasks []Task) error {
	if err := store.PutJSON(ctx, s.deps.Store, s.collectionKey(store.CollectionSchedules), tasks); err != nil {
		return fmt.Errorf("persist tasks: %w", err)
	}
	s.tasks = tasks
	return nil
}

func cloneTasks(tasks []Task) []Task {
	out := make([]Task, len(tasks))
	copy(out, tasks)
	return out
}

// evaluateCron fires every enabled recurring task whose schedule matches the
// given minute. Same-minute fires run in creation order.
func (s *Scheduler) evaluateCron(ctx context.Context, minute time.Time) {
	s.mu.Lock()
	due := make([]Task, 0, 2)
	for _, task := range s.tasks {
		if !task.Enabled || task.OneShot || task.CronExpression == "" {
			continue
		}
		if s.cronDueLocked(task, minute) {
			due = append(due, task)
		}
	}
	s.mu.Unlock()

	sort.SliceStable(due, func(i, j int) bool { return due[i].CreatedAt.Before(due[j].CreatedAt) })
	for _, task := range due {
		s.fireTask(ctx, task)
	}
}

// cronDueLocked reports whether the task's schedule matches the minute in the
// task's timezone, honoring StartAt.
func (s *Scheduler) cronDueLocked(task Task, minute time.Time) bool {
	sched, err := s.cronParser.Parse(task.CronExpression)
	if err != nil {
		return false
	}
	local := minute.In(s.taskLocation(task))
	if task.StartAt != nil && local.Before(*task.StartAt) {
		return false
	}
	// A minute is due when the next fire after the previous minute lands on it.
	return sched.Next(local.Add(-time.Minute)).Equal(local)
}

// taskLocation resolves task timezone, then agent timezone, then Local.
func (s *Scheduler) taskLocation(task Task) *time.Location {
	if task.Timezone != "" {
		if loc, err := time.LoadLocation(task.Timezone); err == nil {
			return loc
		}
	}
	if s.config.AgentTimezone != "" {
		if loc, err := time.LoadLocation(s.config.AgentTimezone); err == nil {
			return loc
		}
	}
	return time.Local
}

// armOneShotLocked schedules the fire. Past-due tasks fire immediately on a
// goroutine so load never blocks. Callers hold mu.
func (s *Scheduler) armOneShotLocked(task Task) {
	if task.TriggerAt == nil {
		return
	}
	if existing, ok := s.timers[task.ID]; ok {
		existing.Stop()
	}
	delay := task.TriggerAt.Sub(s.now())
	taskID := task.ID
	fire := func() {
		ctx := s.runCtx
		if ctx == nil {
			ctx = context.Background()
		}
		s.fireOneShot(ctx, taskID)
	}
	if delay <= 0 {
		s.wg.Add(1)
		async.Go(s.logger, "scheduler.oneshot", func() {
			defer s.wg.Done()
			fire()
		})
		return
	}
	s.timers[taskID] = time.AfterFunc(delay, func() {
		s.mu.Lock()
		delete(s.timers, taskID)
		s.mu.Unlock()
		fire()
	})
}

// fireOneShot disables the task, persists that state, then runs the turn.
// The disable-before-run order guarantees at-most-once firing even if the
// process dies mid-turn.
func (s *Scheduler) fireOneShot(ctx context.Context, taskID string) {
	s.mu.Lock()
	tasks := cloneTasks(s.tasks)
	idx := -1
	for i := range tasks {
		if tasks[i].ID == taskID {
			idx = i
			break
		}
	}
	if idx < 0 || !tasks[idx].Enabled {
		s.mu.Unlock()
		return
	}
	tasks[idx].Enabled = false
	if err := s.saveTasksLocked(ctx, tasks); err != nil {
		s.mu.Unlock()
		s.logger.Error("one-shot %s: persist disable failed, skipping fire: %v", taskID, err)
		return
	}
	task := tasks[idx]
	s.mu.Unlock()

	err := s.deliver(ctx, domain.StimulusReminder, reminderPrefix, task.Instruction, "one_shot")
	s.recordRun(ctx, taskID, err)
}

// fireTask runs a recurring task's turn and records the outcome.
func (s *Scheduler) fireTask(ctx context.Context, task Task) {
	err := s.deliver(ctx, domain.StimulusReminder, reminderPrefix, task.Instruction, "cron")
	s.recordRun(ctx, task.ID, err)
}

// recordRun stamps LastRunAt and LastStatus on the task, best effort.
func (s *Scheduler) recordRun(ctx context.Context, taskID string, runErr error) {
	now := s.now()
	status := StatusOK
	if runErr != nil {
		status = StatusError
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	tasks := cloneTasks(s.tasks)
	for i := range tasks {
		if tasks[i].ID != taskID {
			continue
		}
		tasks[i].LastRunAt = &now
		tasks[i].LastStatus = status
		if err := s.saveTasksLocked(ctx, tasks); err != nil {
			s.logger.Warn("task %s: record run state failed: %v", taskID, err)
		}
		return
	}
}
