package scheduler

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/Drakonis96/optimAIzer-sub001/internal/agent/domain"
	"github.com/Drakonis96/optimAIzer-sub001/internal/errors"
	"github.com/Drakonis96/optimAIzer-sub001/internal/store"
	"github.com/Drakonis96/optimAIzer-sub001/internal/utils/id"
)

// Subscription types. Poll subscriptions are driven by the scheduler's own
// tick; the rest are fired reactively by other components and only gated on
// cooldown here.
const (
	SubWebhook = "webhook"
	SubPoll    = "poll"
	SubKeyword = "keyword"
	SubHAState = "ha_state"
	SubCustom  = "custom"
)

var validSubscriptionTypes = map[string]bool{
	SubWebhook: true,
	SubPoll:    true,
	SubKeyword: true,
	SubHAState: true,
	SubCustom:  true,
}

// defaultPollInterval applies when a poll subscription omits its interval.
const defaultPollInterval = 5 * time.Minute

// Subscription reacts to an external event by injecting its instruction into
// the agent. Pattern meaning depends on type: substring for keyword, entity
// glob for ha_state, free-form for the rest.
type Subscription struct {
	ID                  string     `json:"id"`
	Name                string     `json:"name"`
	Type                string     `json:"type"`
	Pattern             string     `json:"pattern,omitempty"`
	Instruction         string     `json:"instruction"`
	CooldownMinutes     int        `json:"cooldown_minutes,omitempty"`
	PollIntervalMinutes int        `json:"poll_interval_minutes,omitempty"`
	LastFiredAt         *time.Time `json:"last_fired_at,omitempty"`
	FireCount           int        `json:"fire_count"`
	Enabled             bool       `json:"enabled"`
}

// CreateSubscription validates and persists a subscription.
func (s *Scheduler) CreateSubscription(ctx context.Context, sub Subscription) (Subscription, error) {
	sub.Instruction = strings.TrimSpace(sub.Instruction)
	if sub.Instruction == "" {
		return Subscription{}, errors.NewValidation("instruction", "instruction is required")
	}
	if !validSubscriptionTypes[sub.Type] {
		return Subscription{}, errors.NewValidation("type", fmt.Sprintf("unknown subscription type %q", sub.Type))
	}
	if sub.Type == SubKeyword && strings.TrimSpace(sub.Pattern) == "" {
		return Subscription{}, errors.NewValidation("pattern", "keyword subscriptions need a pattern")
	}
	if sub.ID == "" {
		sub.ID = id.NewSubscriptionID()
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	subs := append(cloneSubscriptions(s.subscriptions), sub)
	if err := s.saveSubscriptionsLocked(ctx, subs); err != nil {
		return Subscription{}, err
	}
	return sub, nil
}

// UpdateSubscription applies mutate to the stored subscription and persists.
func (s *Scheduler) UpdateSubscription(ctx context.Context, subID string, mutate func(*Subscription)) (Subscription, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	subs := cloneSubscriptions(s.subscriptions)
	idx := -1
	for i := range subs {
		if subs[i].ID == subID {
			idx = i
			break
		}
	}
	if idx < 0 {
		return Subscription{}, errors.NewNotFound("subscription", subID)
	}
	mutate(&subs[idx])
	subs[idx].ID = subID
	if !validSubscriptionTypes[subs[idx].Type] {
		return Subscription{}, errors.NewValidation("type", fmt.Sprintf("unknown subscription type %q", subs[idx].Type))
	}
	if err := s.saveSubscriptionsLocked(ctx, subs); err != nil {
		return Subscription{}, err
	}
	return subs[idx], nil
}

// DeleteSubscription removes the subscription.
func (s *Scheduler) DeleteSubscription(ctx context.Context, subID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	subs := cloneSubscriptions(s.subscriptions)
	idx := -1
	for i := range subs {
		if subs[i].ID == subID {
			idx = i
			break
		}
	}
	if idx < 0 {
		return errors.NewNotFound("subscription", subID)
	}
	subs = append(subs[:idx], subs[idx+1:]...)
	if err := s.saveSubscriptionsLocked(ctx, subs); err != nil {
		return err
	}
	delete(s.lastFired, subID)
	delete(s.lastPolled, subID)
	return nil
}

// Subscriptions returns a copy of the subscription list.
func (s *Scheduler) Subscriptions() []Subscription {
	s.mu.Lock()
	defer s.mu.Unlock()
	return cloneSubscriptions(s.subscriptions)
}

func (s *Scheduler) saveSubscriptionsLocked(ctx context.Context, subs []Subscription) error {
	if err := store.PutJSON(ctx, s.deps.Store, s.collectionKey(store.CollectionSubscriptions), subs); err != nil {
		return fmt.Errorf("persist subscriptions: %w", err)
	}
	s.subscriptions = subs
	return nil
}

func cloneSubscriptions(subs []Subscription) []Subscription {
	out := make([]Subscription, len(subs))
	copy(out, subs)
	return out
}

// FireSubscription fires a subscription by id, reactively. The cooldown gate
// applies; a suppressed fire returns false with no error. Payload, when
// non-empty, is appended to the instruction as event context.
func (s *Scheduler) FireSubscription(ctx context.Context, subID, payload string) (bool, error) {
	s.mu.Lock()
	idx := -1
	for i := range s.subscriptions {
		if s.subscriptions[i].ID == subID {
			idx = i
			break
		}
	}
	if idx < 0 {
		s.mu.Unlock()
		return false, errors.NewNotFound("subscription", subID)
	}
	sub := s.subscriptions[idx]
	if !s.canFireLocked(sub) {
		s.mu.Unlock()
		return false, nil
	}
	if err := s.markFiredLocked(ctx, subID); err != nil {
		s.mu.Unlock()
		return false, err
	}
	s.mu.Unlock()

	return true, s.deliverSubscription(ctx, sub, payload)
}

// FireKeywords fires every keyword subscription whose pattern appears in the
// text, case-insensitively. Returns how many fired.
func (s *Scheduler) FireKeywords(ctx context.Context, text string) int {
	lower := strings.ToLower(text)

	s.mu.Lock()
	matched := make([]Subscription, 0, 1)
	for _, sub := range s.subscriptions {
		if sub.Type != SubKeyword || sub.Pattern == "" {
			continue
		}
		if !strings.Contains(lower, strings.ToLower(sub.Pattern)) {
			continue
		}
		if !s.canFireLocked(sub) {
			continue
		}
		if err := s.markFiredLocked(ctx, sub.ID); err != nil {
			s.logger.Warn("subscription %s: mark fired failed: %v", sub.ID, err)
			continue
		}
		matched = append(matched, sub)
	}
	s.mu.Unlock()

	for _, sub := range matched {
		if err := s.deliverSubscription(ctx, sub, ""); err != nil {
			s.logger.Error("keyword subscription %s fire failed: %v", sub.ID, err)
		}
	}
	return len(matched)
}

// evaluatePolls runs due poll subscriptions through the configured Poller.
func (s *Scheduler) evaluatePolls(ctx context.Context, now time.Time) {
	if s.deps.Poller == nil {
		return
	}

	s.mu.Lock()
	due := make([]Subscription, 0, 1)
	for _, sub := range s.subscriptions {
		if sub.Type != SubPoll || !sub.Enabled {
			continue
		}
		interval := defaultPollInterval
		if sub.PollIntervalMinutes > 0 {
			interval = time.Duration(sub.PollIntervalMinutes) * time.Minute
		}
		if last, ok := s.lastPolled[sub.ID]; ok && now.Sub(last) < interval {
			continue
		}
		s.lastPolled[sub.ID] = now
		due = append(due, sub)
	}
	s.mu.Unlock()

	for _, sub := range due {
		fire, err := s.deps.Poller.Poll(ctx, sub)
		if err != nil {
			s.logger.Warn("subscription %s poll failed: %v", sub.ID, err)
			continue
		}
		if !fire {
			continue
		}
		if _, err := s.FireSubscription(ctx, sub.ID, ""); err != nil {
			s.logger.Error("poll subscription %s fire failed: %v", sub.ID, err)
		}
	}
}

// canFireLocked applies the enabled flag and the cooldown invariant. The
// in-memory fire time wins over the persisted one so the gate keeps working
// through wall-clock jumps; the persisted stamp covers restarts.
func (s *Scheduler) canFireLocked(sub Subscription) bool {
	if !sub.Enabled {
		return false
	}
	if sub.CooldownMinutes <= 0 {
		return true
	}
	cooldown := time.Duration(sub.CooldownMinutes) * time.Minute
	if last, ok := s.lastFired[sub.ID]; ok {
		return s.now().Sub(last) >= cooldown
	}
	if sub.LastFiredAt != nil {
		return s.now().Sub(*sub.LastFiredAt) >= cooldown
	}
	return true
}

// markFiredLocked stamps the fire time and count, then persists.
func (s *Scheduler) markFiredLocked(ctx context.Context, subID string) error {
	now := s.now()
	subs := cloneSubscriptions(s.subscriptions)
	for i := range subs {
		if subs[i].ID != subID {
			continue
		}
		subs[i].LastFiredAt = &now
		subs[i].FireCount++
		if err := s.saveSubscriptionsLocked(ctx, subs); err != nil {
			return err
		}
		s.lastFired[subID] = now
		return nil
	}
	return errors.NewNotFound("subscription", subID)
}

func (s *Scheduler) deliverSubscription(ctx context.Context, sub Subscription, payload string) error {
	instruction := sub.Instruction
	if strings.TrimSpace(payload) != "" {
		instruction = instruction + "\n\nEvent payload: " + strings.TrimSpace(payload)
	}
	return s.deliver(ctx, domain.StimulusTrigger, triggerPrefix, instruction, "subscription")
}
