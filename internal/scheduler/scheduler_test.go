package scheduler

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Drakonis96/optimAIzer-sub001/internal/agent/domain"
	"github.com/Drakonis96/optimAIzer-sub001/internal/agent/ports"
	"github.com/Drakonis96/optimAIzer-sub001/internal/store"
)

type fakeRunner struct {
	mu      sync.Mutex
	stimuli []domain.Stimulus
	reply   string
	err     error
}

func (f *fakeRunner) RunTurn(_ context.Context, stim domain.Stimulus) (*domain.TurnResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stimuli = append(f.stimuli, stim)
	if f.err != nil {
		return nil, f.err
	}
	return &domain.TurnResult{Text: f.reply}, nil
}

func (f *fakeRunner) texts() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.stimuli))
	for i, stim := range f.stimuli {
		out[i] = stim.Text
	}
	return out
}

func (f *fakeRunner) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.stimuli)
}

type fakeOutbound struct {
	mu   sync.Mutex
	sent []string
}

func (f *fakeOutbound) SendText(_ context.Context, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, text)
	return nil
}

func (f *fakeOutbound) SendKeyboard(context.Context, string, ports.Keyboard) (string, error) {
	return "", nil
}

func (f *fakeOutbound) EditText(context.Context, string, string) error { return nil }

func (f *fakeOutbound) texts() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.sent))
	copy(out, f.sent)
	return out
}

type testClock struct {
	mu sync.Mutex
	t  time.Time
}

func newTestClock(t time.Time) *testClock { return &testClock{t: t} }

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

func (c *testClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = t
}

func newTestScheduler(clock *testClock) (*Scheduler, *fakeRunner, *fakeOutbound, store.Store) {
	st := store.NewMemory()
	runner := &fakeRunner{reply: "done"}
	out := &fakeOutbound{}
	s := New(Deps{Store: st, Runner: runner, Outbound: out}, Config{
		UserID:        "u1",
		AgentID:       "a1",
		AgentTimezone: "UTC",
		Clock:         clock.Now,
	})
	return s, runner, out, st
}

func TestCreateTaskRejectsInvalidCron(t *testing.T) {
	clock := newTestClock(time.Date(2026, 1, 5, 8, 0, 0, 0, time.UTC))
	s, _, _, _ := newTestScheduler(clock)

	_, err := s.CreateTask(context.Background(), Task{
		Name:           "broken",
		CronExpression: "not a cron",
		Instruction:    "do it",
		Enabled:        true,
	})
	require.Error(t, err)

	_, err = s.CreateTask(context.Background(), Task{
		Name:        "no instruction",
		Instruction: "   ",
	})
	require.Error(t, err)

	_, err = s.CreateTask(context.Background(), Task{
		Name:        "one-shot without time",
		Instruction: "ping",
		OneShot:     true,
	})
	require.Error(t, err)
}

func TestCronFiresOnMatchingMinute(t *testing.T) {
	base := time.Date(2026, 1, 5, 9, 29, 0, 0, time.UTC)
	clock := newTestClock(base)
	s, runner, out, _ := newTestScheduler(clock)
	ctx := context.Background()

	_, err := s.CreateTask(ctx, Task{
		Name:           "standup",
		CronExpression: "30 9 * * *",
		Instruction:    "prepare the standup summary",
		Enabled:        true,
	})
	require.NoError(t, err)

	s.Tick(ctx, base)
	require.Equal(t, 0, runner.count())

	clock.Advance(time.Minute)
	s.Tick(ctx, clock.Now())
	require.Equal(t, 1, runner.count())
	require.Equal(t, "[REMINDER] prepare the standup summary", runner.texts()[0])
	require.Equal(t, []string{"done"}, out.texts())

	clock.Advance(time.Minute)
	s.Tick(ctx, clock.Now())
	require.Equal(t, 1, runner.count(), "non-matching minute must not fire")

	tasks := s.Tasks()
	require.Len(t, tasks, 1)
	require.NotNil(t, tasks[0].LastRunAt)
	assert.Equal(t, StatusOK, tasks[0].LastStatus)
}

func TestSameMinuteFiresInCreationOrder(t *testing.T) {
	base := time.Date(2026, 1, 5, 11, 59, 0, 0, time.UTC)
	clock := newTestClock(base)
	s, runner, _, _ := newTestScheduler(clock)
	ctx := context.Background()

	// Created later in wall time but inserted first, to prove order comes
	// from createdAt and not list position.
	clock.Advance(2 * time.Second)
	_, err := s.CreateTask(ctx, Task{
		Name:           "second",
		CronExpression: "0 12 * * *",
		Instruction:    "second instruction",
		Enabled:        true,
	})
	require.NoError(t, err)

	clock.Set(base)
	_, err = s.CreateTask(ctx, Task{
		Name:           "first",
		CronExpression: "0 12 * * *",
		Instruction:    "first instruction",
		Enabled:        true,
	})
	require.NoError(t, err)

	clock.Set(time.Date(2026, 1, 5, 12, 0, 0, 0, time.UTC))
	s.Tick(ctx, clock.Now())

	require.Equal(t, []string{
		"[REMINDER] first instruction",
		"[REMINDER] second instruction",
	}, runner.texts())
}

func TestStartAtDelaysFirstFire(t *testing.T) {
	base := time.Date(2026, 1, 5, 0, 0, 0, 0, time.UTC)
	clock := newTestClock(base)
	s, runner, _, _ := newTestScheduler(clock)
	ctx := context.Background()

	startAt := time.Date(2026, 1, 7, 0, 0, 0, 0, time.UTC)
	_, err := s.CreateTask(ctx, Task{
		Name:           "daily",
		CronExpression: "0 8 * * *",
		Instruction:    "morning brief",
		Enabled:        true,
		StartAt:        &startAt,
	})
	require.NoError(t, err)

	s.Tick(ctx, time.Date(2026, 1, 6, 8, 0, 0, 0, time.UTC))
	require.Equal(t, 0, runner.count(), "matching minute before startAt must not fire")

	s.Tick(ctx, time.Date(2026, 1, 7, 8, 0, 0, 0, time.UTC))
	require.Equal(t, 1, runner.count())
}

func TestCronHonorsTaskTimezoneAcrossDST(t *testing.T) {
	clock := newTestClock(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	s, runner, _, _ := newTestScheduler(clock)
	ctx := context.Background()

	_, err := s.CreateTask(ctx, Task{
		Name:           "madrid monday",
		CronExpression: "0 9 * * 1",
		Instruction:    "weekly plan",
		Enabled:        true,
		Timezone:       "Europe/Madrid",
	})
	require.NoError(t, err)

	// Monday 2026-01-05, Madrid on CET: 09:00 local is 08:00 UTC.
	s.Tick(ctx, time.Date(2026, 1, 5, 8, 0, 0, 0, time.UTC))
	require.Equal(t, 1, runner.count())

	// Monday 2026-03-30, the day after the spring shift to CEST: 09:00
	// local is now 07:00 UTC.
	s.Tick(ctx, time.Date(2026, 3, 30, 7, 0, 0, 0, time.UTC))
	require.Equal(t, 2, runner.count())

	// 08:00 UTC that same Monday is 10:00 local, so it must not fire.
	s.Tick(ctx, time.Date(2026, 3, 30, 8, 0, 0, 0, time.UTC))
	require.Equal(t, 2, runner.count())
}

func TestOneShotFiresOnceAndDisables(t *testing.T) {
	base := time.Date(2026, 1, 5, 10, 0, 0, 0, time.UTC)
	clock := newTestClock(base)
	s, runner, _, st := newTestScheduler(clock)
	ctx := context.Background()

	triggerAt := base.Add(-time.Minute)
	created, err := s.CreateTask(ctx, Task{
		Name:        "call mom",
		Instruction: "remind me to call mom",
		Enabled:     true,
		OneShot:     true,
		TriggerAt:   &triggerAt,
	})
	require.NoError(t, err)

	require.Eventually(t, func() bool { return runner.count() == 1 }, 2*time.Second, 10*time.Millisecond)
	require.Equal(t, "[REMINDER] remind me to call mom", runner.texts()[0])

	require.Eventually(t, func() bool {
		var stored []Task
		err := store.GetJSON(ctx, st, store.AgentCollectionKey("u1", "a1", store.CollectionSchedules), &stored)
		if err != nil || len(stored) != 1 {
			return false
		}
		return !stored[0].Enabled && stored[0].LastStatus == StatusOK
	}, 2*time.Second, 10*time.Millisecond, "disable and run status must be persisted")

	// A second fire attempt for the same task is a no-op.
	s.fireOneShot(ctx, created.ID)
	require.Equal(t, 1, runner.count())
}

func TestOneShotFutureFiresViaTimer(t *testing.T) {
	base := time.Now()
	clock := newTestClock(base)
	s, runner, _, _ := newTestScheduler(clock)
	ctx := context.Background()

	triggerAt := base.Add(50 * time.Millisecond)
	_, err := s.CreateTask(ctx, Task{
		Name:        "soon",
		Instruction: "nudge",
		Enabled:     true,
		OneShot:     true,
		TriggerAt:   &triggerAt,
	})
	require.NoError(t, err)

	require.Equal(t, 0, runner.count(), "must not fire before the trigger instant")
	require.Eventually(t, func() bool { return runner.count() == 1 }, 2*time.Second, 10*time.Millisecond)
}

func TestPastDueOneShotFiresAtLoad(t *testing.T) {
	base := time.Date(2026, 1, 5, 10, 0, 0, 0, time.UTC)
	clock := newTestClock(base)
	st := store.NewMemory()
	ctx := context.Background()

	triggerAt := base.Add(-time.Hour)
	seeded := []Task{{
		ID:          "task_overdue",
		Name:        "missed while down",
		Instruction: "water the plants",
		Enabled:     true,
		OneShot:     true,
		TriggerAt:   &triggerAt,
		CreatedAt:   base.Add(-2 * time.Hour),
	}}
	require.NoError(t, store.PutJSON(ctx, st, store.AgentCollectionKey("u1", "a1", store.CollectionSchedules), seeded))

	runner := &fakeRunner{reply: "done"}
	s := New(Deps{Store: st, Runner: runner}, Config{
		UserID: "u1", AgentID: "a1", Clock: clock.Now,
	})
	require.NoError(t, s.Start(ctx))
	defer s.Stop()

	require.Eventually(t, func() bool { return runner.count() == 1 }, 2*time.Second, 10*time.Millisecond)
	require.Equal(t, "[REMINDER] water the plants", runner.texts()[0])

	tasks := s.Tasks()
	require.Len(t, tasks, 1)
	require.False(t, tasks[0].Enabled)
}

func TestTickCatchUpIsCapped(t *testing.T) {
	base := time.Date(2026, 1, 5, 10, 0, 0, 0, time.UTC)
	clock := newTestClock(base)
	s, runner, _, _ := newTestScheduler(clock)
	ctx := context.Background()

	_, err := s.CreateTask(ctx, Task{
		Name:           "every minute",
		CronExpression: "* * * * *",
		Instruction:    "tick",
		Enabled:        true,
	})
	require.NoError(t, err)

	s.Tick(ctx, base)
	require.Equal(t, 1, runner.count())

	// An hour-long stall replays at most the catch-up window, not 60 fires.
	s.Tick(ctx, base.Add(time.Hour))
	require.Equal(t, 1+catchUpLimit, runner.count())
}

func TestTaskRunErrorRecorded(t *testing.T) {
	base := time.Date(2026, 1, 5, 9, 0, 0, 0, time.UTC)
	clock := newTestClock(base)
	s, runner, _, _ := newTestScheduler(clock)
	runner.err = fmt.Errorf("provider unavailable")
	ctx := context.Background()

	_, err := s.CreateTask(ctx, Task{
		Name:           "fragile",
		CronExpression: "0 9 * * *",
		Instruction:    "summarize",
		Enabled:        true,
	})
	require.NoError(t, err)

	s.Tick(ctx, base)
	tasks := s.Tasks()
	require.Len(t, tasks, 1)
	require.Equal(t, StatusError, tasks[0].LastStatus)
	require.NotNil(t, tasks[0].LastRunAt)
}

func TestUpdateTaskReArmsTimer(t *testing.T) {
	base := time.Now()
	clock := newTestClock(base)
	s, runner, _, _ := newTestScheduler(clock)
	ctx := context.Background()

	farFuture := base.Add(time.Hour)
	created, err := s.CreateTask(ctx, Task{
		Name:        "later",
		Instruction: "original",
		Enabled:     true,
		OneShot:     true,
		TriggerAt:   &farFuture,
	})
	require.NoError(t, err)

	soon := base.Add(30 * time.Millisecond)
	_, err = s.UpdateTask(ctx, created.ID, func(task *Task) {
		task.TriggerAt = &soon
	})
	require.NoError(t, err)

	require.Eventually(t, func() bool { return runner.count() == 1 }, 2*time.Second, 10*time.Millisecond)
}

func TestDeleteTaskCancelsTimer(t *testing.T) {
	base := time.Now()
	clock := newTestClock(base)
	s, runner, _, _ := newTestScheduler(clock)
	ctx := context.Background()

	soon := base.Add(40 * time.Millisecond)
	created, err := s.CreateTask(ctx, Task{
		Name:        "doomed",
		Instruction: "never",
		Enabled:     true,
		OneShot:     true,
		TriggerAt:   &soon,
	})
	require.NoError(t, err)
	require.NoError(t, s.DeleteTask(ctx, created.ID))

	time.Sleep(120 * time.Millisecond)
	require.Equal(t, 0, runner.count())
	require.Empty(t, s.Tasks())
}

func TestDisabledTaskDoesNotFire(t *testing.T) {
	base := time.Date(2026, 1, 5, 9, 0, 0, 0, time.UTC)
	clock := newTestClock(base)
	s, runner, _, _ := newTestScheduler(clock)
	ctx := context.Background()

	created, err := s.CreateTask(ctx, Task{
		Name:           "paused",
		CronExpression: "0 9 * * *",
		Instruction:    "skip me",
		Enabled:        true,
	})
	require.NoError(t, err)
	_, err = s.UpdateTask(ctx, created.ID, func(task *Task) { task.Enabled = false })
	require.NoError(t, err)

	s.Tick(ctx, base)
	require.Equal(t, 0, runner.count())
}

func TestStatePersistsAcrossRestart(t *testing.T) {
	base := time.Date(2026, 1, 5, 9, 0, 0, 0, time.UTC)
	clock := newTestClock(base)
	s, _, _, st := newTestScheduler(clock)
	ctx := context.Background()

	_, err := s.CreateTask(ctx, Task{
		Name:           "durable",
		CronExpression: "0 9 * * *",
		Instruction:    "persist me",
		Enabled:        true,
	})
	require.NoError(t, err)

	reloaded := New(Deps{Store: st, Runner: &fakeRunner{}}, Config{
		UserID: "u1", AgentID: "a1", Clock: clock.Now,
	})
	require.NoError(t, reloaded.Start(ctx))
	defer reloaded.Stop()

	tasks := reloaded.Tasks()
	require.Len(t, tasks, 1)
	assert.Equal(t, "durable", tasks[0].Name)
}
