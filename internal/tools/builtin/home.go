package builtin

import (
	"context"
	"fmt"
	"strings"

	"github.com/Drakonis96/optimAIzer-sub001/internal/agent/ports"
	"github.com/Drakonis96/optimAIzer-sub001/internal/errors"
)

type getHomeState struct {
	binding Binding
	backend ports.HomeBackend
}

// NewGetHomeState builds the home-automation state read tool.
func NewGetHomeState(binding Binding, backend ports.HomeBackend) ports.ToolExecutor {
	return &getHomeState{binding: binding.withDefaults(), backend: backend}
}

func (t *getHomeState) Definition() ports.ToolDefinition {
	return ports.ToolDefinition{
		Name:        "get_home_state",
		Description: "Read home-automation entity states. Give an entity id for one entity, or a filter to list matches.",
		Parameters: ports.ParameterSchema{
			Type: "object",
			Properties: map[string]ports.Property{
				"entity_id": {Type: "string", Description: "Exact entity id, e.g. light.kitchen"},
				"filter":    {Type: "string", Description: "Substring to match entity ids against"},
			},
		},
		SideEffect: ports.SideEffectReadOnly,
	}
}

func (t *getHomeState) Metadata() ports.ToolMetadata {
	return ports.ToolMetadata{Category: CategoryHome}
}

func (t *getHomeState) Execute(ctx context.Context, call ports.ToolCall) (*ports.ToolResult, error) {
	if entityID := call.StringParam("entity_id"); entityID != "" {
		state, err := t.backend.GetState(ctx, entityID)
		if err != nil {
			return nil, errors.NewExternal("home automation", 0, err, "")
		}
		return textResult(call, "%s is %s.", state.EntityID, state.State), nil
	}

	states, err := t.backend.ListStates(ctx)
	if err != nil {
		return nil, errors.NewExternal("home automation", 0, err, "")
	}
	filter := strings.ToLower(call.StringParam("filter"))

	var out strings.Builder
	count := 0
	for _, state := range states {
		if filter != "" && !strings.Contains(strings.ToLower(state.EntityID), filter) {
			continue
		}
		count++
		fmt.Fprintf(&out, "• %s: %s\n", state.EntityID, state.State)
	}
	if count == 0 {
		if filter != "" {
			return textResult(call, "No entities match %q.", call.StringParam("filter")), nil
		}
		return textResult(call, "No entities reported."), nil
	}
	return textResult(call, "%s", strings.TrimSuffix(out.String(), "\n")), nil
}

type setHomeState struct {
	binding Binding
	backend ports.HomeBackend
}

// NewSetHomeState builds the home-automation service call tool.
func NewSetHomeState(binding Binding, backend ports.HomeBackend) ports.ToolExecutor {
	return &setHomeState{binding: binding.withDefaults(), backend: backend}
}

func (t *setHomeState) Definition() ports.ToolDefinition {
	return ports.ToolDefinition{
		Name:        "set_home_state",
		Description: "Change a home-automation entity by calling a service, e.g. domain light, service turn_on.",
		Parameters: ports.ParameterSchema{
			Type: "object",
			Properties: map[string]ports.Property{
				"domain":    {Type: "string", Description: "Service domain, e.g. light, switch, climate"},
				"service":   {Type: "string", Description: "Service name, e.g. turn_on, turn_off"},
				"entity_id": {Type: "string", Description: "Target entity"},
				"data":      {Type: "object", Description: "Extra service data, e.g. brightness"},
			},
			Required: []string{"domain", "service", "entity_id"},
		},
		SideEffect: ports.SideEffectMutating,
	}
}

func (t *setHomeState) Metadata() ports.ToolMetadata {
	return ports.ToolMetadata{Category: CategoryHome, Critical: true}
}

func (t *setHomeState) Execute(ctx context.Context, call ports.ToolCall) (*ports.ToolResult, error) {
	entityID := call.StringParam("entity_id")
	data, _ := call.Params["data"].(map[string]any)

	// Capture the prior state so the undo entry can flip it back for the
	// common on/off services.
	var inverse *InverseAction
	if prev, err := t.backend.GetState(ctx, entityID); err == nil {
		if inverseService := invertService(call.StringParam("service"), prev.State); inverseService != "" {
			inverse = &InverseAction{
				Tool: "set_home_state",
				Params: map[string]any{
					"domain":    call.StringParam("domain"),
					"service":   inverseService,
					"entity_id": entityID,
				},
			}
		}
	}

	if err := t.backend.CallService(ctx, call.StringParam("domain"), call.StringParam("service"), entityID, data); err != nil {
		return nil, errors.NewExternal("home automation", 0, err, "")
	}

	recordUndo(ctx, t.binding, call.Name, call.Params, inverse)
	return textResult(call, "Called %s.%s on %s.", call.StringParam("domain"), call.StringParam("service"), entityID), nil
}

// invertService maps the common toggle services to their opposites. Anything
// else is not automatically reversible.
func invertService(service, prevState string) string {
	switch service {
	case "turn_on":
		if prevState == "off" {
			return "turn_off"
		}
	case "turn_off":
		if prevState == "on" {
			return "turn_on"
		}
	case "toggle":
		return "toggle"
	}
	return ""
}
