package domain

import (
	"context"
	"fmt"
	"runtime/debug"
	"sort"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/Drakonis96/optimAIzer-sub001/internal/agent/ports"
	"github.com/Drakonis96/optimAIzer-sub001/internal/errors"
	"github.com/Drakonis96/optimAIzer-sub001/internal/logging"
	"github.com/Drakonis96/optimAIzer-sub001/internal/observability"
	"github.com/Drakonis96/optimAIzer-sub001/internal/security/redaction"
	"github.com/Drakonis96/optimAIzer-sub001/internal/utils/id"
)

// dispatcher executes one round of tool calls. Read-only calls fan out
// concurrently; mutating calls run strictly sequentially after the parallel
// batch drains. Every result lands at the index of its originating call, so
// the combined vector is in the model's original call order.
type dispatcher struct {
	registry      ports.ToolRegistry
	approver      ports.Approver
	logger        logging.Logger
	metrics       *observability.MetricsCollector
	parallelLimit int
}

func newDispatcher(registry ports.ToolRegistry, approver ports.Approver, logger logging.Logger, metrics *observability.MetricsCollector, parallelLimit int) *dispatcher {
	if parallelLimit <= 0 {
		parallelLimit = DefaultParallelLimit
	}
	return &dispatcher{
		registry:      registry,
		approver:      approver,
		logger:        logging.OrNop(logger),
		metrics:       metrics,
		parallelLimit: parallelLimit,
	}
}

// Run executes calls and returns results aligned index-for-index with calls.
func (d *dispatcher) Run(ctx context.Context, calls []ports.ToolCall) []ports.ToolResult {
	results := make([]ports.ToolResult, len(calls))
	if len(calls) == 0 {
		return results
	}

	var parallel, sequential []int
	for i, call := range calls {
		if d.registry.SideEffectOf(call.Name) == ports.SideEffectReadOnly {
			parallel = append(parallel, i)
		} else {
			sequential = append(sequential, i)
		}
	}

	if len(parallel) > 0 {
		g := new(errgroup.Group)
		g.SetLimit(d.parallelLimit)
		for _, idx := range parallel {
			idx := idx
			g.Go(func() error {
				results[idx] = d.executeOne(ctx, calls[idx])
				return nil
			})
		}
		_ = g.Wait()
	}

	for _, idx := range sequential {
		if ctx.Err() != nil {
			results[idx] = errorResult(calls[idx], errors.NewCancelled(ctx.Err()))
			continue
		}
		results[idx] = d.executeOne(ctx, calls[idx])
	}

	return results
}

// executeOne resolves, validates, gates and runs a single call. Failures of
// any stage become the call's error result; nothing here aborts the turn.
func (d *dispatcher) executeOne(ctx context.Context, call ports.ToolCall) (result ports.ToolResult) {
	start := time.Now()
	class := string(d.registry.SideEffectOf(call.Name))
	ctx, span := observability.StartSpan(ctx, observability.SpanToolExecute,
		observability.ToolAttrs(call.Name, class)...)
	defer span.End()
	defer func() {
		if r := recover(); r != nil {
			d.logger.Error("tool %s panicked: %v\n%s", call.Name, r, debug.Stack())
			result = errorResult(call, errors.NewInternal(fmt.Errorf("tool %s panicked: %v", call.Name, r)))
		}
		status := "ok"
		if result.Error != nil {
			status = "error"
		}
		span.SetAttributes(observability.StatusAttrs(status)...)
		span.SetAttributes(observability.ErrorAttrs(result.Error)...)
		if d.metrics != nil {
			d.metrics.RecordToolExecution(ctx, call.Name, class, status, time.Since(start))
		}
	}()

	tool, ok := d.registry.Lookup(call.Name)
	if !ok {
		return errorResult(call, errors.NewNotFound("tool", call.Name))
	}
	if err := tool.Definition().Parameters.Validate(call.Params); err != nil {
		return errorResult(call, err)
	}
	if tool.Metadata().Critical {
		if blocked, res := d.gate(ctx, tool, call); blocked {
			return res
		}
	}

	out, err := tool.Execute(ctx, call)
	if err != nil {
		return errorResult(call, err)
	}
	if out == nil {
		return errorResult(call, errors.NewInternal(fmt.Errorf("tool %s returned no result", call.Name)))
	}
	out.CallID = call.ID
	return *out
}

// gate runs the two-stage approval flow for a critical call: static
// preflight first, then the out-of-band approval prompt. blocked=true means
// the call must not execute and res carries the reason.
func (d *dispatcher) gate(ctx context.Context, tool ports.ToolExecutor, call ports.ToolCall) (blocked bool, res ports.ToolResult) {
	var warnings []string
	if checker, ok := tool.(ports.PreflightChecker); ok {
		ws, err := checker.Preflight(call)
		if err != nil {
			d.logger.Warn("tool %s blocked by preflight: %v", call.Name, err)
			return true, errorResult(call, err)
		}
		warnings = ws
	}

	if d.approver == nil {
		return true, errorResult(call, errors.NewApprovalDenied(call.Name))
	}

	ids := id.IDsFromContext(ctx)
	request := ports.ApprovalRequest{
		ID:       id.NewApprovalID(),
		UserID:   ids.UserID,
		AgentID:  ids.AgentID,
		ToolName: call.Name,
		Summary:  summarizeCall(call),
		Params:   redaction.RedactArgs(call.Params),
		Warnings: warnings,
	}

	decision, err := d.approver.RequestApproval(ctx, request)
	if err != nil {
		d.recordApproval(ctx, "timeout")
		return true, errorResult(call, err)
	}
	if !decision.Approved {
		d.recordApproval(ctx, "denied")
		denied := errors.NewApprovalDenied(call.Name)
		denied.Message = deniedMessage(decision)
		return true, errorResult(call, denied)
	}
	d.recordApproval(ctx, "approved")
	return false, ports.ToolResult{}
}

func (d *dispatcher) recordApproval(ctx context.Context, outcome string) {
	if d.metrics != nil {
		d.metrics.RecordApproval(ctx, outcome)
	}
}

func deniedMessage(decision ports.ApprovalDecision) string {
	if decision.Note != "" {
		return "user denied: " + decision.Note
	}
	return ""
}

func errorResult(call ports.ToolCall, err error) ports.ToolResult {
	return ports.ToolResult{CallID: call.ID, Error: err}
}

// summarizeCall renders a one-line description for approval prompts, with
// redacted params.
func summarizeCall(call ports.ToolCall) string {
	redacted := redaction.RedactArgs(call.Params)
	if len(redacted) == 0 {
		return call.Name
	}
	parts := make([]string, 0, len(redacted))
	for k, v := range redacted {
		parts = append(parts, fmt.Sprintf("%s=%v", k, v))
	}
	// Map iteration order varies; sort for a stable prompt.
	sort.Strings(parts)
	summary := call.Name + " " + strings.Join(parts, " ")
	if len(summary) > 300 {
		summary = summary[:297] + "..."
	}
	return summary
}
