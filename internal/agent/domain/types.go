// Package domain drives one conversation turn end-to-end: request
// composition, provider streaming, tool dispatch with side-effect
// discipline, and the bounded round loop.
package domain

import (
	"context"

	"github.com/Drakonis96/optimAIzer-sub001/internal/agent/ports"
)

// StimulusKind distinguishes what started a turn.
type StimulusKind string

const (
	StimulusUser     StimulusKind = "user"
	StimulusReminder StimulusKind = "reminder"
	StimulusTrigger  StimulusKind = "trigger"
)

// Stimulus is the user-equivalent input that opens a turn. Sink, when set,
// receives assistant tokens as they stream; scheduler turns leave it nil and
// read the buffered result.
type Stimulus struct {
	Kind StimulusKind
	Text string
	Sink ports.TokenSink
}

// Channel names the surface a stimulus arrived on, for metrics.
func (s Stimulus) Channel() string {
	switch s.Kind {
	case StimulusReminder, StimulusTrigger:
		return "scheduler"
	default:
		return "chat"
	}
}

// TurnResult is the outcome of one completed turn.
type TurnResult struct {
	Text        string
	ToolResults []ports.ToolResult
	Rounds      int
	Usage       ports.TokenUsage
}

// ContextEnricher contributes extra system-context blocks to a turn: matched
// skill instructions, the working memory snapshot, host hints.
type ContextEnricher func(ctx context.Context, stim Stimulus) []string

// CombineEnrichers chains enrichers in order, skipping nil entries.
func CombineEnrichers(enrichers ...ContextEnricher) ContextEnricher {
	live := make([]ContextEnricher, 0, len(enrichers))
	for _, enrich := range enrichers {
		if enrich != nil {
			live = append(live, enrich)
		}
	}
	if len(live) == 0 {
		return nil
	}
	if len(live) == 1 {
		return live[0]
	}
	return func(ctx context.Context, stim Stimulus) []string {
		var blocks []string
		for _, enrich := range live {
			blocks = append(blocks, enrich(ctx, stim)...)
		}
		return blocks
	}
}

// UsageAccountant projects and records provider spend. CheckBudget runs
// before each provider round; a BudgetExceeded error aborts the turn.
type UsageAccountant interface {
	CheckBudget(ctx context.Context, projectedTokens int) error
	RecordCall(ctx context.Context, model string, usage ports.TokenUsage)
}

// Config tunes the engine.
type Config struct {
	// SystemPrompt is the agent's base instruction block.
	SystemPrompt string

	// MaxToolRounds bounds tool dispatch rounds per turn; the round after
	// the last one runs with tools disabled so the turn always ends in
	// text.
	MaxToolRounds int

	// ParallelLimit caps concurrent read-only tool executions.
	ParallelLimit int

	// HistoryLimit bounds retained conversation turns per session.
	HistoryLimit int

	// MaxToolResultTokens caps each tool result fed back to the model;
	// oversized outputs truncate before they re-enter the conversation.
	MaxToolResultTokens int

	Temperature float64
	MaxTokens   int
}

// Defaults for unset config fields.
const (
	DefaultMaxToolRounds       = 6
	DefaultParallelLimit       = 4
	DefaultHistoryLimit        = 40
	DefaultMaxToolResultTokens = 4000
)

func (c Config) withDefaults() Config {
	if c.MaxToolRounds <= 0 {
		c.MaxToolRounds = DefaultMaxToolRounds
	}
	if c.ParallelLimit <= 0 {
		c.ParallelLimit = DefaultParallelLimit
	}
	if c.HistoryLimit <= 0 {
		c.HistoryLimit = DefaultHistoryLimit
	}
	if c.MaxToolResultTokens <= 0 {
		c.MaxToolResultTokens = DefaultMaxToolResultTokens
	}
	return c
}
