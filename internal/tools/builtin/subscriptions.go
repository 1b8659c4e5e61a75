package builtin

import (
	"context"
	"fmt"
	"strings"

	"github.com/Drakonis96/optimAIzer-sub001/internal/agent/ports"
	"github.com/Drakonis96/optimAIzer-sub001/internal/errors"
	"github.com/Drakonis96/optimAIzer-sub001/internal/scheduler"
)

type createSubscription struct {
	binding Binding
	sched   *scheduler.Scheduler
}

// NewCreateSubscription builds the event subscription tool.
func NewCreateSubscription(binding Binding, sched *scheduler.Scheduler) ports.ToolExecutor {
	return &createSubscription{binding: binding.withDefaults(), sched: sched}
}

func (t *createSubscription) Definition() ports.ToolDefinition {
	return ports.ToolDefinition{
		Name:        "create_subscription",
		Description: "Subscribe the agent to an external event: a webhook, a poll, a chat keyword, or a home state change.",
		Parameters: ports.ParameterSchema{
			Type: "object",
			Properties: map[string]ports.Property{
				"name":                  {Type: "string", Description: "Display name"},
				"type":                  {Type: "string", Description: "Event source", Enum: []string{"webhook", "poll", "keyword", "ha_state", "custom"}},
				"pattern":               {Type: "string", Description: "Keyword to match or entity pattern; meaning depends on type"},
				"instruction":           {Type: "string", Description: "What the agent should do when the event fires"},
				"cooldown_minutes":      {Type: "integer", Description: "Minimum minutes between fires"},
				"poll_interval_minutes": {Type: "integer", Description: "Poll cadence for poll subscriptions"},
			},
			Required: []string{"type", "instruction"},
		},
		SideEffect: ports.SideEffectMutating,
	}
}

func (t *createSubscription) Metadata() ports.ToolMetadata {
	return ports.ToolMetadata{Category: CategoryScheduler}
}

func (t *createSubscription) Execute(ctx context.Context, call ports.ToolCall) (*ports.ToolResult, error) {
	name := call.StringParam("name")
	if name == "" {
		name = firstLine(call.StringParam("instruction"), 60)
	}
	cooldown, _ := call.IntParam("cooldown_minutes")
	interval, _ := call.IntParam("poll_interval_minutes")

	sub, err := t.sched.CreateSubscription(ctx, scheduler.Subscription{
		ID:                  call.StringParam("subscription_id"),
		Name:                name,
		Type:                call.StringParam("type"),
		Pattern:             call.StringParam("pattern"),
		Instruction:         call.StringParam("instruction"),
		CooldownMinutes:     cooldown,
		PollIntervalMinutes: interval,
		Enabled:             true,
	})
	if err != nil {
		return nil, err
	}

	recordUndo(ctx, t.binding, call.Name, call.Params, &InverseAction{
		Tool:   "delete_subscription",
		Params: map[string]any{"subscription": sub.ID},
	})
	return textResult(call, "Subscribed %q to %s events (%s).", sub.Name, sub.Type, sub.ID), nil
}

type listSubscriptions struct {
	binding Binding
	sched   *scheduler.Scheduler
}

// NewListSubscriptions builds the subscription overview tool.
func NewListSubscriptions(binding Binding, sched *scheduler.Scheduler) ports.ToolExecutor {
	return &listSubscriptions{binding: binding.withDefaults(), sched: sched}
}

func (t *listSubscriptions) Definition() ports.ToolDefinition {
	return ports.ToolDefinition{
		Name:        "list_subscriptions",
		Description: "List the agent's event subscriptions.",
		Parameters:  ports.ParameterSchema{Type: "object"},
		SideEffect:  ports.SideEffectReadOnly,
	}
}

func (t *listSubscriptions) Metadata() ports.ToolMetadata {
	return ports.ToolMetadata{Category: CategoryScheduler}
}

func (t *listSubscriptions) Execute(_ context.Context, call ports.ToolCall) (*ports.ToolResult, error) {
	subs := t.sched.Subscriptions()
	if len(subs) == 0 {
		return textResult(call, "No subscriptions."), nil
	}

	var out strings.Builder
	for _, sub := range subs {
		state := "enabled"
		if !sub.Enabled {
			state = "disabled"
		}
		fmt.Fprintf(&out, "• %s — %s", sub.Name, sub.Type)
		if sub.Pattern != "" {
			fmt.Fprintf(&out, " %q", sub.Pattern)
		}
		fmt.Fprintf(&out, ", %s, fired %d times (%s)\n", state, sub.FireCount, sub.ID)
	}
	return textResult(call, "%s", strings.TrimSuffix(out.String(), "\n")), nil
}

type deleteSubscription struct {
	binding Binding
	sched   *scheduler.Scheduler
}

// NewDeleteSubscription builds the subscription removal tool.
func NewDeleteSubscription(binding Binding, sched *scheduler.Scheduler) ports.ToolExecutor {
	return &deleteSubscription{binding: binding.withDefaults(), sched: sched}
}

func (t *deleteSubscription) Definition() ports.ToolDefinition {
	return ports.ToolDefinition{
		Name:        "delete_subscription",
		Description: "Delete an event subscription, found by id or name.",
		Parameters: ports.ParameterSchema{
			Type: "object",
			Properties: map[string]ports.Property{
				"subscription": {Type: "string", Description: "Subscription id or name"},
			},
			Required: []string{"subscription"},
		},
		SideEffect: ports.SideEffectMutating,
	}
}

func (t *deleteSubscription) Metadata() ports.ToolMetadata {
	return ports.ToolMetadata{Category: CategoryScheduler}
}

func (t *deleteSubscription) Execute(ctx context.Context, call ports.ToolCall) (*ports.ToolResult, error) {
	sub, err := t.resolve(call.StringParam("subscription"))
	if err != nil {
		return nil, err
	}
	if err := t.sched.DeleteSubscription(ctx, sub.ID); err != nil {
		return nil, err
	}

	recordUndo(ctx, t.binding, call.Name, call.Params, &InverseAction{
		Tool: "create_subscription",
		Params: map[string]any{
			"subscription_id":       sub.ID,
			"name":                  sub.Name,
			"type":                  sub.Type,
			"pattern":               sub.Pattern,
			"instruction":           sub.Instruction,
			"cooldown_minutes":      sub.CooldownMinutes,
			"poll_interval_minutes": sub.PollIntervalMinutes,
		},
	})
	return textResult(call, "Deleted subscription %q (%s).", sub.Name, sub.ID), nil
}

func (t *deleteSubscription) resolve(ref string) (scheduler.Subscription, error) {
	subs := t.sched.Subscriptions()
	for _, sub := range subs {
		if sub.ID == ref {
			return sub, nil
		}
	}
	lowered := strings.ToLower(ref)
	var matches []scheduler.Subscription
	for _, sub := range subs {
		if strings.Contains(strings.ToLower(sub.Name), lowered) {
			matches = append(matches, sub)
		}
	}
	switch len(matches) {
	case 1:
		return matches[0], nil
	case 0:
		return scheduler.Subscription{}, errors.NewNotFound("subscription", ref)
	default:
		cands := make([]errors.Candidate, 0, len(matches))
		for _, sub := range matches {
			cands = append(cands, errors.Candidate{ID: sub.ID, Label: sub.Name})
		}
		return scheduler.Subscription{}, errors.NewAmbiguous("subscription", cands)
	}
}
