// Package usage keeps the append-only provider spend ledger and enforces the
// monthly budget. It implements the engine's UsageAccountant: CheckBudget
// runs before every provider round, RecordCall lands one row per completed
// call.
package usage

import (
	"context"
	"sync"
	"time"

	"github.com/Drakonis96/optimAIzer-sub001/internal/agent/ports"
	"github.com/Drakonis96/optimAIzer-sub001/internal/errors"
	"github.com/Drakonis96/optimAIzer-sub001/internal/logging"
	"github.com/Drakonis96/optimAIzer-sub001/internal/observability"
	"github.com/Drakonis96/optimAIzer-sub001/internal/store"
	"github.com/Drakonis96/optimAIzer-sub001/internal/utils/id"
)

// Event is one usage row in the user_usage_events stream.
type Event struct {
	ID               string    `json:"id"`
	UserID           string    `json:"userId,omitempty"`
	AgentID          string    `json:"agentId,omitempty"`
	Model            string    `json:"model,omitempty"`
	PromptTokens     int       `json:"promptTokens"`
	CompletionTokens int       `json:"completionTokens"`
	TotalTokens      int       `json:"totalTokens"`
	CostUSD          float64   `json:"costUsd"`
	At               time.Time `json:"at"`
}

// Config prices tokens and caps monthly spend. A zero MonthlyLimitUSD
// disables enforcement; zero rates make every call free, which also
// disables it.
type Config struct {
	MonthlyLimitUSD    float64
	PromptUSDPer1K     float64
	CompletionUSDPer1K float64
}

// Summary is a month-to-date aggregate for one user.
type Summary struct {
	Calls            int
	PromptTokens     int
	CompletionTokens int
	CostUSD          float64
}

// Accountant persists usage rows and answers budget checks. Appends
// serialize on an internal mutex; the stream is shared across agents.
type Accountant struct {
	store   store.Store
	cfg     Config
	logger  logging.Logger
	metrics *observability.MetricsCollector
	now     func() time.Time

	mu sync.Mutex
}

// NewAccountant builds the accountant over the keyed store.
func NewAccountant(st store.Store, cfg Config, logger logging.Logger) *Accountant {
	a := &Accountant{
		store:  st,
		cfg:    cfg,
		logger: logging.OrNop(logger),
		now:    time.Now,
	}
	if cfg.MonthlyLimitUSD > 0 && cfg.PromptUSDPer1K == 0 && cfg.CompletionUSDPer1K == 0 {
		a.logger.Warn("usage: monthly limit $%.2f set but token rates are zero; budget will never trip", cfg.MonthlyLimitUSD)
	}
	return a
}

// WithClock overrides the timestamp source.
func (a *Accountant) WithClock(now func() time.Time) *Accountant {
	a.now = now
	return a
}

// WithMetrics mirrors recorded spend onto the cost counter.
func (a *Accountant) WithMetrics(metrics *observability.MetricsCollector) *Accountant {
	a.metrics = metrics
	return a
}

// CheckBudget projects the cost of a request and refuses it when
// month-to-date spend plus the projection would pass the limit. The check
// scopes to the calling user (from the context); a ledger read failure lets
// the call through with a warning rather than silencing the agent.
func (a *Accountant) CheckBudget(ctx context.Context, projectedTokens int) error {
	if a.cfg.MonthlyLimitUSD <= 0 {
		return nil
	}
	projected := a.cost(projectedTokens, 0)

	summary, err := a.MonthToDate(ctx, id.UserIDFromContext(ctx))
	if err != nil {
		a.logger.Warn("usage: ledger unreadable, skipping budget check: %v", err)
		return nil
	}
	if summary.CostUSD+projected > a.cfg.MonthlyLimitUSD {
		return errors.NewBudgetExceeded(summary.CostUSD+projected, a.cfg.MonthlyLimitUSD)
	}
	return nil
}

// RecordCall appends one usage row. Failures log and are otherwise
// swallowed; accounting must never fail a turn.
func (a *Accountant) RecordCall(ctx context.Context, model string, usage ports.TokenUsage) {
	event := Event{
		ID:               id.NewEntryID("usage"),
		UserID:           id.UserIDFromContext(ctx),
		AgentID:          id.AgentIDFromContext(ctx),
		Model:            model,
		PromptTokens:     usage.PromptTokens,
		CompletionTokens: usage.CompletionTokens,
		TotalTokens:      usage.TotalTokens,
		CostUSD:          a.cost(usage.PromptTokens, usage.CompletionTokens),
		At:               a.now().UTC(),
	}
	if a.metrics != nil && event.CostUSD > 0 {
		a.metrics.RecordProviderCost(ctx, model, event.CostUSD)
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	var events []Event
	if err := store.GetJSON(ctx, a.store, store.KeyUsageEvents, &events); err != nil && err != store.ErrNotFound {
		a.logger.Warn("usage: ledger unreadable, dropping row: %v", err)
		return
	}
	events = append(events, event)
	if err := store.PutJSON(ctx, a.store, store.KeyUsageEvents, events); err != nil {
		a.logger.Warn("usage: ledger write failed, dropping row: %v", err)
	}
}

// MonthToDate aggregates the calling month's rows. An empty userID
// aggregates every user.
func (a *Accountant) MonthToDate(ctx context.Context, userID string) (Summary, error) {
	var events []Event
	if err := store.GetJSON(ctx, a.store, store.KeyUsageEvents, &events); err != nil {
		if err == store.ErrNotFound {
			return Summary{}, nil
		}
		return Summary{}, err
	}

	now := a.now().UTC()
	monthStart := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)

	var out Summary
	for _, event := range events {
		if userID != "" && event.UserID != userID {
			continue
		}
		if event.At.Before(monthStart) {
			continue
		}
		out.Calls++
		out.PromptTokens += event.PromptTokens
		out.CompletionTokens += event.CompletionTokens
		out.CostUSD += event.CostUSD
	}
	return out, nil
}

func (a *Accountant) cost(promptTokens, completionTokens int) float64 {
	return float64(promptTokens)/1000*a.cfg.PromptUSDPer1K +
		float64(completionTokens)/1000*a.cfg.CompletionUSDPer1K
}
