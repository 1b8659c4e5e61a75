package domain

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel/trace"

	"github.com/Drakonis96/optimAIzer-sub001/internal/agent/ports"
	"github.com/Drakonis96/optimAIzer-sub001/internal/errors"
	"github.com/Drakonis96/optimAIzer-sub001/internal/logging"
	"github.com/Drakonis96/optimAIzer-sub001/internal/observability"
	"github.com/Drakonis96/optimAIzer-sub001/internal/tokenutil"
)

// Dependencies wires the engine's ports.
type Dependencies struct {
	Provider   ports.Provider
	Registry   ports.ToolRegistry
	Parser     ports.FunctionCallParser
	Approver   ports.Approver
	Enricher   ContextEnricher
	Accountant UsageAccountant
	Logger     logging.Logger
	Metrics    *observability.MetricsCollector
}

// Engine runs conversation turns for one agent session. Turns serialize on
// an internal mutex, so queued messages and scheduler fires never overlap.
type Engine struct {
	provider   ports.Provider
	registry   ports.ToolRegistry
	parser     ports.FunctionCallParser
	dispatch   *dispatcher
	enrich     ContextEnricher
	accountant UsageAccountant
	history    *History
	logger     logging.Logger
	metrics    *observability.MetricsCollector
	config     Config

	mu sync.Mutex
}

// NewEngine builds an engine from its dependencies.
func NewEngine(deps Dependencies, config Config) *Engine {
	config = config.withDefaults()
	logger := logging.OrNop(deps.Logger)
	return &Engine{
		provider:   deps.Provider,
		registry:   deps.Registry,
		parser:     deps.Parser,
		dispatch:   newDispatcher(deps.Registry, deps.Approver, logger, deps.Metrics, config.ParallelLimit),
		enrich:     deps.Enricher,
		accountant: deps.Accountant,
		history:    NewHistory(config.HistoryLimit),
		logger:     logger,
		metrics:    deps.Metrics,
		config:     config,
	}
}

// RunTurn drives one turn: compose, stream, dispatch tools, repeat until the
// model answers in plain text or the round budget forces it to.
func (e *Engine) RunTurn(ctx context.Context, stim Stimulus) (*TurnResult, error) {
	if e.provider == nil {
		return nil, errors.NewInternal(fmt.Errorf("no provider configured"))
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	ctx, span := observability.StartSpan(ctx, observability.SpanAgentTurn)
	defer span.End()

	e.history.Append(ports.Message{Role: ports.RoleUser, Content: stim.Text})
	result := &TurnResult{}
	system := e.composeSystem(ctx, stim)

	for round := 0; ; round++ {
		if err := ctx.Err(); err != nil {
			e.recordTurn(ctx, stim, "cancelled")
			return nil, errors.NewCancelled(err)
		}

		// The round after the budget runs with tools disabled so the
		// turn always ends in text.
		toolsAllowed := round < e.config.MaxToolRounds
		req := ports.ChatRequest{
			System:      system,
			Messages:    e.history.Snapshot(),
			Temperature: e.config.Temperature,
			MaxTokens:   e.config.MaxTokens,
		}
		if toolsAllowed {
			req.Tools = e.registry.Definitions()
		}

		if e.accountant != nil {
			if err := e.accountant.CheckBudget(ctx, estimateRequestTokens(req)); err != nil {
				e.recordTurn(ctx, stim, "budget_exceeded")
				return nil, err
			}
		}

		text, calls, usage, err := e.streamRound(ctx, req, stim.Sink)
		if err != nil {
			status := "error"
			if errors.IsCancelled(err) {
				status = "cancelled"
			}
			e.recordTurn(ctx, stim, status)
			return nil, err
		}
		result.Usage.Add(usage)
		result.Rounds = round + 1
		if e.accountant != nil {
			e.accountant.RecordCall(ctx, e.provider.Model(), usage)
		}

		// The fallback parser lifts envelopes out of the visible text
		// either way; the lifted calls only count when the stream
		// produced no native ones.
		if e.parser != nil {
			parsed, cleaned := e.parser.Extract(text)
			text = cleaned
			if len(calls) == 0 && toolsAllowed {
				calls = parsed
			}
		}

		if len(calls) == 0 || !toolsAllowed {
			e.history.Append(ports.Message{Role: ports.RoleAssistant, Content: text})
			result.Text = text
			e.recordTurn(ctx, stim, "ok")
			return result, nil
		}

		e.logger.Debug("round %d: dispatching %d tool call(s)", round+1, len(calls))
		roundCtx, roundSpan := observability.StartSpan(ctx, observability.SpanToolRound,
			observability.RoundAttrs(round+1)...)
		results := e.dispatch.Run(roundCtx, calls)
		roundSpan.End()
		result.ToolResults = append(result.ToolResults, results...)

		// The turn result keeps full outputs; the copies fed back to the
		// model truncate so one runaway page fetch or terminal dump cannot
		// consume the context window.
		for i := range results {
			results[i].Content = tokenutil.TruncateToTokens(results[i].Content, e.config.MaxToolResultTokens)
		}
		e.history.Append(ports.Message{Role: ports.RoleAssistant, Content: text, ToolCalls: calls})
		e.history.Append(ports.Message{Role: ports.RoleTool, ToolResults: results})
	}
}

// streamRound consumes one provider stream, forwarding tokens to sink as
// they arrive.
func (e *Engine) streamRound(ctx context.Context, req ports.ChatRequest, sink ports.TokenSink) (string, []ports.ToolCall, ports.TokenUsage, error) {
	var usage ports.TokenUsage
	start := time.Now()
	ctx, span := observability.StartSpan(ctx, observability.SpanProviderCall)
	defer span.End()

	events, err := e.provider.Stream(ctx, req)
	if err != nil {
		e.recordProvider(ctx, start, usage, "error", err)
		return "", nil, usage, err
	}

	var text strings.Builder
	var calls []ports.ToolCall
	var streamErr error
	for event := range events {
		if streamErr != nil {
			continue // drain so the producer never blocks
		}
		switch event.Type {
		case ports.StreamToken:
			text.WriteString(event.Token)
			if sink != nil {
				sink(event.Token)
			}
		case ports.StreamToolCall:
			if event.ToolCall != nil {
				calls = append(calls, *event.ToolCall)
			}
		case ports.StreamDone:
			if event.Usage != nil {
				usage = *event.Usage
			}
		case ports.StreamError:
			streamErr = event.Err
		}
	}
	if ctx.Err() != nil {
		e.recordProvider(ctx, start, usage, "cancelled", ctx.Err())
		return "", nil, usage, errors.NewCancelled(ctx.Err())
	}
	if streamErr != nil {
		e.recordProvider(ctx, start, usage, "error", streamErr)
		return "", nil, usage, streamErr
	}

	if usage.TotalTokens == 0 {
		// Backends that do not report usage get a local estimate.
		usage.PromptTokens = estimateRequestTokens(req)
		usage.CompletionTokens = tokenutil.CountTokens(text.String())
		usage.TotalTokens = usage.PromptTokens + usage.CompletionTokens
	}
	e.recordProvider(ctx, start, usage, "ok", nil)
	return text.String(), calls, usage, nil
}

func (e *Engine) composeSystem(ctx context.Context, stim Stimulus) string {
	blocks := make([]string, 0, 4)
	if base := strings.TrimSpace(e.config.SystemPrompt); base != "" {
		blocks = append(blocks, base)
	}
	if e.enrich != nil {
		for _, block := range e.enrich(ctx, stim) {
			if block = strings.TrimSpace(block); block != "" {
				blocks = append(blocks, block)
			}
		}
	}
	return strings.Join(blocks, "\n\n")
}

func (e *Engine) recordTurn(ctx context.Context, stim Stimulus, status string) {
	trace.SpanFromContext(ctx).SetAttributes(observability.StatusAttrs(status)...)
	if e.metrics != nil {
		e.metrics.RecordTurn(ctx, stim.Channel(), status)
	}
}

func (e *Engine) recordProvider(ctx context.Context, start time.Time, usage ports.TokenUsage, status string, err error) {
	span := trace.SpanFromContext(ctx)
	span.SetAttributes(observability.ProviderAttrs(e.provider.Model(), usage.PromptTokens, usage.CompletionTokens, 0)...)
	span.SetAttributes(observability.StatusAttrs(status)...)
	span.SetAttributes(observability.ErrorAttrs(err)...)
	if e.metrics != nil {
		e.metrics.RecordProviderRequest(ctx, e.provider.Name(), e.provider.Model(), status,
			time.Since(start), int64(usage.PromptTokens), int64(usage.CompletionTokens))
	}
}

// ClearHistory drops the session's conversation record.
func (e *Engine) ClearHistory() {
	e.history.Clear()
}

// HistoryLen reports retained turns, for health reporting and tests.
func (e *Engine) HistoryLen() int {
	return e.history.Len()
}

func estimateRequestTokens(req ports.ChatRequest) int {
	contents := make([]string, 0, len(req.Messages)+1)
	if req.System != "" {
		contents = append(contents, req.System)
	}
	for _, msg := range req.Messages {
		contents = append(contents, msg.Content)
	}
	return tokenutil.CountConversation(contents)
}
