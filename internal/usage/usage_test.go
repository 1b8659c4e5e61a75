package usage

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Drakonis96/optimAIzer-sub001/internal/agent/ports"
	"github.com/Drakonis96/optimAIzer-sub001/internal/errors"
	"github.com/Drakonis96/optimAIzer-sub001/internal/logging"
	"github.com/Drakonis96/optimAIzer-sub001/internal/store"
	"github.com/Drakonis96/optimAIzer-sub001/internal/utils/id"
)

func testAccountant(t *testing.T, cfg Config) (*Accountant, *store.MemoryStore) {
	t.Helper()
	st := store.NewMemory()
	t.Cleanup(func() { _ = st.Close() })
	now := time.Date(2026, time.March, 10, 12, 0, 0, 0, time.UTC)
	return NewAccountant(st, cfg, logging.Nop()).WithClock(func() time.Time { return now }), st
}

func userContext(userID, agentID string) context.Context {
	ctx := id.WithUserID(context.Background(), userID)
	return id.WithAgentID(ctx, agentID)
}

func TestRecordCallAppendsRow(t *testing.T) {
	acc, st := testAccountant(t, Config{PromptUSDPer1K: 0.01, CompletionUSDPer1K: 0.03})
	ctx := userContext("u1", "agent-1")

	acc.RecordCall(ctx, "gpt-4o-mini", ports.TokenUsage{PromptTokens: 1500, CompletionTokens: 500, TotalTokens: 2000})

	var events []Event
	require.NoError(t, store.GetJSON(context.Background(), st, store.KeyUsageEvents, &events))
	require.Len(t, events, 1)
	event := events[0]
	assert.Contains(t, event.ID, "usage")
	assert.Equal(t, "u1", event.UserID)
	assert.Equal(t, "agent-1", event.AgentID)
	assert.Equal(t, "gpt-4o-mini", event.Model)
	assert.Equal(t, 1500, event.PromptTokens)
	assert.Equal(t, 500, event.CompletionTokens)
	assert.Equal(t, 2000, event.TotalTokens)
	assert.InDelta(t, 0.030, event.CostUSD, 1e-9)
	assert.True(t, event.At.Equal(time.Date(2026, time.March, 10, 12, 0, 0, 0, time.UTC)))
}

func TestRecordCallPreservesEarlierRows(t *testing.T) {
	acc, st := testAccountant(t, Config{PromptUSDPer1K: 0.01})
	ctx := userContext("u1", "agent-1")

	acc.RecordCall(ctx, "m", ports.TokenUsage{PromptTokens: 100})
	acc.RecordCall(ctx, "m", ports.TokenUsage{PromptTokens: 200})

	var events []Event
	require.NoError(t, store.GetJSON(context.Background(), st, store.KeyUsageEvents, &events))
	require.Len(t, events, 2)
	assert.Equal(t, 100, events[0].PromptTokens)
	assert.Equal(t, 200, events[1].PromptTokens)
}

func TestCheckBudgetAllowsUnderLimit(t *testing.T) {
	acc, _ := testAccountant(t, Config{MonthlyLimitUSD: 1.00, PromptUSDPer1K: 0.01, CompletionUSDPer1K: 0.03})
	ctx := userContext("u1", "agent-1")

	acc.RecordCall(ctx, "m", ports.TokenUsage{PromptTokens: 50_000, CompletionTokens: 10_000})

	assert.NoError(t, acc.CheckBudget(ctx, 10_000))
}

func TestCheckBudgetRefusesOverLimit(t *testing.T) {
	acc, _ := testAccountant(t, Config{MonthlyLimitUSD: 1.00, PromptUSDPer1K: 0.01, CompletionUSDPer1K: 0.03})
	ctx := userContext("u1", "agent-1")

	acc.RecordCall(ctx, "m", ports.TokenUsage{PromptTokens: 50_000, CompletionTokens: 10_000})

	err := acc.CheckBudget(ctx, 30_000)
	var budget *errors.BudgetExceededError
	require.ErrorAs(t, err, &budget)
	assert.InDelta(t, 1.10, budget.ProjectedUSD, 1e-9)
	assert.InDelta(t, 1.00, budget.LimitUSD, 1e-9)
}

func TestCheckBudgetScopesToCallingUser(t *testing.T) {
	acc, _ := testAccountant(t, Config{MonthlyLimitUSD: 1.00, PromptUSDPer1K: 0.01})

	acc.RecordCall(userContext("u2", "agent-2"), "m", ports.TokenUsage{PromptTokens: 500_000})

	assert.NoError(t, acc.CheckBudget(userContext("u1", "agent-1"), 10_000))
	assert.Error(t, acc.CheckBudget(userContext("u2", "agent-2"), 10_000))
}

func TestCheckBudgetIgnoresPreviousMonths(t *testing.T) {
	acc, _ := testAccountant(t, Config{MonthlyLimitUSD: 1.00, PromptUSDPer1K: 0.01})
	ctx := userContext("u1", "agent-1")

	february := time.Date(2026, time.February, 27, 9, 0, 0, 0, time.UTC)
	acc.WithClock(func() time.Time { return february })
	acc.RecordCall(ctx, "m", ports.TokenUsage{PromptTokens: 500_000})

	march := time.Date(2026, time.March, 10, 12, 0, 0, 0, time.UTC)
	acc.WithClock(func() time.Time { return march })
	assert.NoError(t, acc.CheckBudget(ctx, 10_000))

	summary, err := acc.MonthToDate(ctx, "u1")
	require.NoError(t, err)
	assert.Zero(t, summary.Calls)
}

func TestCheckBudgetDisabledWithoutLimit(t *testing.T) {
	acc, _ := testAccountant(t, Config{PromptUSDPer1K: 0.01})
	ctx := userContext("u1", "agent-1")

	acc.RecordCall(ctx, "m", ports.TokenUsage{PromptTokens: 5_000_000})

	assert.NoError(t, acc.CheckBudget(ctx, 5_000_000))
}

func TestCheckBudgetFailsOpenOnUnreadableLedger(t *testing.T) {
	acc, st := testAccountant(t, Config{MonthlyLimitUSD: 0.01, PromptUSDPer1K: 0.01})
	require.NoError(t, st.Put(context.Background(), store.KeyUsageEvents, []byte("{not json")))

	assert.NoError(t, acc.CheckBudget(userContext("u1", "agent-1"), 1_000_000))
}

func TestMonthToDateAggregates(t *testing.T) {
	acc, _ := testAccountant(t, Config{PromptUSDPer1K: 0.01, CompletionUSDPer1K: 0.03})
	ctx := userContext("u1", "agent-1")

	acc.RecordCall(ctx, "m", ports.TokenUsage{PromptTokens: 1000, CompletionTokens: 1000})
	acc.RecordCall(ctx, "m", ports.TokenUsage{PromptTokens: 2000, CompletionTokens: 500})
	acc.RecordCall(userContext("u2", "agent-2"), "m", ports.TokenUsage{PromptTokens: 9000})

	summary, err := acc.MonthToDate(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, 2, summary.Calls)
	assert.Equal(t, 3000, summary.PromptTokens)
	assert.Equal(t, 1500, summary.CompletionTokens)
	assert.InDelta(t, 0.075, summary.CostUSD, 1e-9)

	all, err := acc.MonthToDate(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, 3, all.Calls)
}

func TestMonthToDateEmptyLedger(t *testing.T) {
	acc, _ := testAccountant(t, Config{})

	summary, err := acc.MonthToDate(context.Background(), "u1")
	require.NoError(t, err)
	assert.Zero(t, summary.Calls)
	assert.Zero(t, summary.CostUSD)
}
