package builtin

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Drakonis96/optimAIzer-sub001/internal/errors"
	"github.com/Drakonis96/optimAIzer-sub001/internal/store"
)

func TestAddExpenseNormalizesAndRecords(t *testing.T) {
	st := store.NewMemory()
	b := testBinding(st, newTestClock())

	result := runTool(t, NewAddExpense(b), map[string]any{
		"amount":   12.5,
		"currency": "eur",
		"category": "Groceries",
		"note":     "weekly shop",
	})
	assert.Contains(t, result.Content, "Recorded 12.50 EUR")

	expenses := collection[Expense](t, b, store.CollectionExpenses)
	require.Len(t, expenses, 1)
	assert.Equal(t, "EUR", expenses[0].Currency)
	assert.Equal(t, "groceries", expenses[0].Category)
	assert.Equal(t, "weekly shop", expenses[0].Note)
}

func TestAddExpenseRejectsNonPositiveAmount(t *testing.T) {
	b := testBinding(store.NewMemory(), newTestClock())
	var validation *errors.ValidationError

	err := runToolErr(t, NewAddExpense(b), map[string]any{"amount": 0})
	require.ErrorAs(t, err, &validation)

	err = runToolErr(t, NewAddExpense(b), map[string]any{"amount": -3})
	require.ErrorAs(t, err, &validation)

	err = runToolErr(t, NewAddExpense(b), map[string]any{"note": "no amount"})
	require.ErrorAs(t, err, &validation)
}

func TestListExpensesTotalsByCategory(t *testing.T) {
	st := store.NewMemory()
	b := testBinding(st, newTestClock())
	add := NewAddExpense(b)
	runTool(t, add, map[string]any{"amount": 10.0, "category": "groceries"})
	runTool(t, add, map[string]any{"amount": 5.5, "category": "groceries"})
	runTool(t, add, map[string]any{"amount": 20.0, "category": "transport"})
	runTool(t, add, map[string]any{"amount": 1.0})

	result := runTool(t, NewListExpenses(b), nil)
	assert.Contains(t, result.Content, "4 expense(s):")
	assert.Contains(t, result.Content, "groceries: 15.50")
	assert.Contains(t, result.Content, "transport: 20.00")
	assert.Contains(t, result.Content, "uncategorized: 1.00")
}

func TestListExpensesDaysWindow(t *testing.T) {
	st := store.NewMemory()
	clk := newTestClock()
	b := testBinding(st, clk)
	add := NewAddExpense(b)

	runTool(t, add, map[string]any{"amount": 10.0, "note": "old"})
	clk.Advance(5 * 24 * time.Hour)
	runTool(t, add, map[string]any{"amount": 20.0, "note": "recent"})

	result := runTool(t, NewListExpenses(b), map[string]any{"days": 3})
	assert.Contains(t, result.Content, "1 expense(s):")
	assert.Contains(t, result.Content, "recent")
	assert.NotContains(t, result.Content, "old")
}

func TestListExpensesCategoryFilter(t *testing.T) {
	st := store.NewMemory()
	b := testBinding(st, newTestClock())
	add := NewAddExpense(b)
	runTool(t, add, map[string]any{"amount": 10.0, "category": "groceries"})
	runTool(t, add, map[string]any{"amount": 20.0, "category": "transport"})

	result := runTool(t, NewListExpenses(b), map[string]any{"category": "Transport"})
	assert.Contains(t, result.Content, "1 expense(s):")
	assert.Contains(t, result.Content, "transport: 20.00")
	assert.NotContains(t, result.Content, "groceries")
}

func TestListExpensesEmpty(t *testing.T) {
	b := testBinding(store.NewMemory(), newTestClock())
	result := runTool(t, NewListExpenses(b), nil)
	assert.Equal(t, "No matching expenses.", result.Content)
}

func TestDeleteExpenseRoundTrip(t *testing.T) {
	st := store.NewMemory()
	b := testBinding(st, newTestClock())
	runTool(t, NewAddExpense(b), map[string]any{"amount": 12.5, "currency": "EUR", "category": "groceries"})

	expenses := collection[Expense](t, b, store.CollectionExpenses)
	require.Len(t, expenses, 1)

	result := runTool(t, NewDeleteExpense(b), map[string]any{"expense_id": expenses[0].ID})
	assert.Equal(t, "Deleted expense 12.50 EUR.", result.Content)
	assert.Empty(t, collection[Expense](t, b, store.CollectionExpenses))

	stack := collection[UndoEntry](t, b, store.CollectionUndo)
	last := stack[len(stack)-1]
	require.NotNil(t, last.Inverse)
	assert.Equal(t, "add_expense", last.Inverse.Tool)
	assert.Equal(t, 12.5, last.Inverse.Params["amount"])
}

func TestDeleteExpenseNotFound(t *testing.T) {
	b := testBinding(store.NewMemory(), newTestClock())
	err := runToolErr(t, NewDeleteExpense(b), map[string]any{"expense_id": "exp_missing"})
	var notFound *errors.NotFoundError
	require.ErrorAs(t, err, &notFound)
}
