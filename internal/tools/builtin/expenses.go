package builtin

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/Drakonis96/optimAIzer-sub001/internal/agent/ports"
	"github.com/Drakonis96/optimAIzer-sub001/internal/errors"
	"github.com/Drakonis96/optimAIzer-sub001/internal/store"
	"github.com/Drakonis96/optimAIzer-sub001/internal/utils/id"
)

// Expense is one recorded spend.
type Expense struct {
	ID       string    `json:"id"`
	Amount   float64   `json:"amount"`
	Currency string    `json:"currency,omitempty"`
	Category string    `json:"category,omitempty"`
	Note     string    `json:"note,omitempty"`
	SpentAt  time.Time `json:"spent_at"`
}

type addExpense struct{ binding Binding }

// NewAddExpense builds the expense recording tool.
func NewAddExpense(binding Binding) ports.ToolExecutor {
	return &addExpense{binding: binding.withDefaults()}
}

func (t *addExpense) Definition() ports.ToolDefinition {
	return ports.ToolDefinition{
		Name:        "add_expense",
		Description: "Record an expense with amount, optional currency, category and note.",
		Parameters: ports.ParameterSchema{
			Type: "object",
			Properties: map[string]ports.Property{
				"amount":   {Type: "number", Description: "Amount spent; must be positive"},
				"currency": {Type: "string", Description: "Currency code, e.g. EUR"},
				"category": {Type: "string", Description: "Spend category, e.g. groceries"},
				"note":     {Type: "string", Description: "Free-form description"},
			},
			Required: []string{"amount"},
		},
		SideEffect: ports.SideEffectMutating,
	}
}

func (t *addExpense) Metadata() ports.ToolMetadata {
	return ports.ToolMetadata{Category: CategoryNotes}
}

func (t *addExpense) Execute(ctx context.Context, call ports.ToolCall) (*ports.ToolResult, error) {
	amount, ok := call.FloatParam("amount")
	if !ok || amount <= 0 {
		return nil, errors.NewValidation("amount", "amount must be a positive number")
	}

	expenses, err := loadCollection[Expense](ctx, t.binding, store.CollectionExpenses)
	if err != nil {
		return nil, err
	}

	exp := Expense{
		ID:       id.NewEntryID("exp"),
		Amount:   amount,
		Currency: strings.ToUpper(call.StringParam("currency")),
		Category: strings.ToLower(call.StringParam("category")),
		Note:     call.StringParam("note"),
		SpentAt:  t.binding.Now(),
	}
	expenses = append(expenses, exp)
	if err := saveCollection(ctx, t.binding, store.CollectionExpenses, expenses); err != nil {
		return nil, err
	}

	recordUndo(ctx, t.binding, call.Name, call.Params, &InverseAction{
		Tool:   "delete_expense",
		Params: map[string]any{"expense_id": exp.ID},
	})
	return textResult(call, "Recorded %s (%s).", formatAmount(exp), exp.ID), nil
}

type listExpenses struct{ binding Binding }

// NewListExpenses builds the expense listing tool with per-category totals.
func NewListExpenses(binding Binding) ports.ToolExecutor {
	return &listExpenses{binding: binding.withDefaults()}
}

func (t *listExpenses) Definition() ports.ToolDefinition {
	return ports.ToolDefinition{
		Name:        "list_expenses",
		Description: "List recorded expenses with a per-category total, optionally limited to the last N days or one category.",
		Parameters: ports.ParameterSchema{
			Type: "object",
			Properties: map[string]ports.Property{
				"days":     {Type: "integer", Description: "Only include expenses from the last N days"},
				"category": {Type: "string", Description: "Only include one category"},
			},
		},
		SideEffect: ports.SideEffectReadOnly,
	}
}

func (t *listExpenses) Metadata() ports.ToolMetadata {
	return ports.ToolMetadata{Category: CategoryNotes}
}

func (t *listExpenses) Execute(ctx context.Context, call ports.ToolCall) (*ports.ToolResult, error) {
	expenses, err := loadCollection[Expense](ctx, t.binding, store.CollectionExpenses)
	if err != nil {
		return nil, err
	}

	var cutoff time.Time
	if days, ok := call.IntParam("days"); ok && days > 0 {
		cutoff = t.binding.Now().AddDate(0, 0, -days)
	}
	category := strings.ToLower(call.StringParam("category"))

	var out strings.Builder
	totals := map[string]float64{}
	count := 0
	for _, exp := range expenses {
		if !cutoff.IsZero() && exp.SpentAt.Before(cutoff) {
			continue
		}
		if category != "" && exp.Category != category {
			continue
		}
		count++
		label := exp.Category
		if label == "" {
			label = "uncategorized"
		}
		totals[label] += exp.Amount
		fmt.Fprintf(&out, "• %s — %s", formatAmount(exp), exp.SpentAt.Format("Jan 2"))
		if exp.Note != "" {
			fmt.Fprintf(&out, " (%s)", exp.Note)
		}
		out.WriteByte('\n')
	}
	if count == 0 {
		return textResult(call, "No matching expenses."), nil
	}

	labels := make([]string, 0, len(totals))
	for label := range totals {
		labels = append(labels, label)
	}
	sort.Strings(labels)
	out.WriteString("Totals:\n")
	for _, label := range labels {
		fmt.Fprintf(&out, "  %s: %.2f\n", label, totals[label])
	}
	return textResult(call, "%d expense(s):\n%s", count, strings.TrimSuffix(out.String(), "\n")), nil
}

type deleteExpense struct{ binding Binding }

// NewDeleteExpense builds the expense removal tool.
func NewDeleteExpense(binding Binding) ports.ToolExecutor {
	return &deleteExpense{binding: binding.withDefaults()}
}

func (t *deleteExpense) Definition() ports.ToolDefinition {
	return ports.ToolDefinition{
		Name:        "delete_expense",
		Description: "Delete a recorded expense by id.",
		Parameters: ports.ParameterSchema{
			Type: "object",
			Properties: map[string]ports.Property{
				"expense_id": {Type: "string", Description: "Expense id"},
			},
			Required: []string{"expense_id"},
		},
		SideEffect: ports.SideEffectMutating,
	}
}

func (t *deleteExpense) Metadata() ports.ToolMetadata {
	return ports.ToolMetadata{Category: CategoryNotes}
}

func (t *deleteExpense) Execute(ctx context.Context, call ports.ToolCall) (*ports.ToolResult, error) {
	expenses, err := loadCollection[Expense](ctx, t.binding, store.CollectionExpenses)
	if err != nil {
		return nil, err
	}

	ref := call.StringParam("expense_id")
	idx := -1
	for i, exp := range expenses {
		if exp.ID == ref {
			idx = i
			break
		}
	}
	if idx < 0 {
		return nil, errors.NewNotFound("expense", ref)
	}

	removed := expenses[idx]
	expenses = append(expenses[:idx], expenses[idx+1:]...)
	if err := saveCollection(ctx, t.binding, store.CollectionExpenses, expenses); err != nil {
		return nil, err
	}

	// Re-adding sets a fresh timestamp; close enough for an undo.
	recordUndo(ctx, t.binding, call.Name, call.Params, &InverseAction{
		Tool: "add_expense",
		Params: map[string]any{
			"amount":   removed.Amount,
			"currency": removed.Currency,
			"category": removed.Category,
			"note":     removed.Note,
		},
	})
	return textResult(call, "Deleted expense %s.", formatAmount(removed)), nil
}

func formatAmount(exp Expense) string {
	if exp.Currency != "" {
		return fmt.Sprintf("%.2f %s", exp.Amount, exp.Currency)
	}
	return fmt.Sprintf("%.2f", exp.Amount)
}
