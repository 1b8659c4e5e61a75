// Package scheduler runs an agent's background activity: cron tasks,
// one-shot reminders, event subscriptions with cooldowns, and location
// reminder matching. Fires synthesize user-equivalent stimuli and hand them
// to the agent's engine; replies go out through the transport.
package scheduler

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/Drakonis96/optimAIzer-sub001/internal/agent/domain"
	"github.com/Drakonis96/optimAIzer-sub001/internal/agent/ports"
	"github.com/Drakonis96/optimAIzer-sub001/internal/async"
	"github.com/Drakonis96/optimAIzer-sub001/internal/logging"
	"github.com/Drakonis96/optimAIzer-sub001/internal/observability"
	"github.com/Drakonis96/optimAIzer-sub001/internal/store"
)

// Stimulus prefixes for synthesized turns.
const (
	reminderPrefix = "[REMINDER]"
	triggerPrefix  = "[TRIGGER]"
)

// catchUpLimit caps how many missed ticks are replayed after a stall, so a
// laptop resume does not fire an hour of backlog.
const catchUpLimit = 5

// TurnRunner runs a synthesized conversation turn.
type TurnRunner interface {
	RunTurn(ctx context.Context, stim domain.Stimulus) (*domain.TurnResult, error)
}

// Poller decides whether a poll-type subscription should fire.
type Poller interface {
	Poll(ctx context.Context, sub Subscription) (bool, error)
}

// Deps wires the scheduler's collaborators.
type Deps struct {
	Store    store.Store
	Runner   TurnRunner
	Outbound ports.Outbound
	Poller   Poller
	Logger   logging.Logger
	Metrics  *observability.MetricsCollector
}

// Config identifies the owning agent and tunes timing.
type Config struct {
	UserID        string
	AgentID       string
	AgentTimezone string

	// TickInterval drives cron and poll evaluation; default one minute.
	TickInterval time.Duration

	// Clock overrides time.Now in tests.
	Clock func() time.Time
}

// Scheduler owns one agent's schedule state. All mutating operations persist
// through the keyed store before taking effect in memory.
type Scheduler struct {
	deps   Deps
	config Config
	logger logging.Logger

	mu            sync.Mutex
	tasks         []Task
	subscriptions []Subscription
	locations     []LocationReminder
	timers        map[string]*time.Timer
	lastPolled    map[string]time.Time
	lastFired     map[string]time.Time // monotonic cooldown readings
	lastTick      time.Time

	runCtx  context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	started bool

	cronParser cron.Parser
	now        func() time.Time
}

// New builds a scheduler; call Start to load persisted state and begin
// ticking.
func New(deps Deps, config Config) *Scheduler {
	if config.TickInterval <= 0 {
		config.TickInterval = time.Minute
	}
	now := config.Clock
	if now == nil {
		now = time.Now
	}
	return &Scheduler{
		deps:       deps,
		config:     config,
		logger:     logging.OrNop(deps.Logger),
		timers:     make(map[string]*time.Timer),
		lastPolled: make(map[string]time.Time),
		lastFired:  make(map[string]time.Time),
		cronParser: cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow),
		now:        now,
	}
}

// Start loads persisted definitions, arms one-shot timers (past-due fire
// immediately), and begins the tick loop.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		return fmt.Errorf("scheduler already started")
	}
	s.started = true
	s.runCtx, s.cancel = context.WithCancel(ctx)
	s.mu.Unlock()

	if err := s.loadAll(ctx); err != nil {
		return fmt.Errorf("load schedule state: %w", err)
	}

	s.mu.Lock()
	s.lastTick = s.now().Truncate(time.Minute)
	for _, task := range s.tasks {
		if task.OneShot && task.Enabled {
			s.armOneShotLocked(task)
		}
	}
	s.mu.Unlock()

	s.wg.Add(1)
	async.Go(s.logger, "scheduler.tick", func() {
		defer s.wg.Done()
		s.runTicker()
	})
	s.logger.Info("scheduler started for agent %s (%d tasks, %d subscriptions, %d locations)",
		s.config.AgentID, len(s.tasks), len(s.subscriptions), len(s.locations))
	return nil
}

// Stop cancels the tick loop and every armed timer, then waits for in-flight
// fires to finish.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.started {
		s.mu.Unlock()
		return
	}
	s.started = false
	cancel := s.cancel
	for id, timer := range s.timers {
		timer.Stop()
		delete(s.timers, id)
	}
	s.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	s.wg.Wait()
}

// Running reports whether Start succeeded and Stop has not been called.
func (s *Scheduler) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.started
}

// AgentTimezone returns the owning agent's configured timezone name; empty
// means the host default.
func (s *Scheduler) AgentTimezone() string {
	return s.config.AgentTimezone
}

func (s *Scheduler) loadAll(ctx context.Context) error {
	if err := s.loadCollection(ctx, store.CollectionSchedules, &s.tasks); err != nil {
		return err
	}
	if err := s.loadCollection(ctx, store.CollectionSubscriptions, &s.subscriptions); err != nil {
		return err
	}
	return s.loadCollection(ctx, store.CollectionLocations, &s.locations)
}

func (s *Scheduler) loadCollection(ctx context.Context, collection string, out any) error {
	err := store.GetJSON(ctx, s.deps.Store, s.collectionKey(collection), out)
	if err != nil && err != store.ErrNotFound {
		return err
	}
	return nil
}

func (s *Scheduler) collectionKey(collection string) string {
	return store.AgentCollectionKey(s.config.UserID, s.config.AgentID, collection)
}

func (s *Scheduler) runTicker() {
	ticker := time.NewTicker(s.config.TickInterval)
	defer ticker.Stop()
	for {
		select {
		case <-s.runCtx.Done():
			return
		case <-ticker.C:
			s.Tick(s.runCtx, s.now())
		}
	}
}

// Tick evaluates every minute boundary since the previous tick, capped to
// catchUpLimit, then runs due polls. Exported for deterministic tests.
func (s *Scheduler) Tick(ctx context.Context, now time.Time) {
	minute := now.Truncate(time.Minute)

	s.mu.Lock()
	last := s.lastTick
	if last.IsZero() {
		last = minute.Add(-time.Minute)
	}
	if minute.Sub(last) > catchUpLimit*time.Minute {
		last = minute.Add(-catchUpLimit * time.Minute)
	}
	s.lastTick = minute
	s.mu.Unlock()

	for m := last.Add(time.Minute); !m.After(minute); m = m.Add(time.Minute) {
		s.evaluateCron(ctx, m)
	}
	s.evaluatePolls(ctx, now)
}

// deliver synthesizes the stimulus, runs the turn, and sends the reply.
func (s *Scheduler) deliver(ctx context.Context, kind domain.StimulusKind, prefix, instruction, metricKind string) error {
	ctx, span := observability.StartSpan(ctx, observability.SpanSchedulerFire)
	defer span.End()
	if s.deps.Metrics != nil {
		s.deps.Metrics.RecordSchedulerFire(ctx, metricKind)
	}
	if s.deps.Runner == nil {
		return fmt.Errorf("no turn runner configured")
	}

	text := prefix + " " + strings.TrimSpace(instruction)
	result, err := s.deps.Runner.RunTurn(ctx, domain.Stimulus{Kind: kind, Text: text})
	if err != nil {
		s.logger.Error("scheduled turn failed: %v", err)
		return err
	}
	if s.deps.Outbound != nil && strings.TrimSpace(result.Text) != "" {
		if err := s.deps.Outbound.SendText(ctx, result.Text); err != nil {
			s.logger.Error("scheduled reply delivery failed: %v", err)
			return err
		}
	}
	return nil
}
