package ports

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/Drakonis96/optimAIzer-sub001/internal/errors"
)

// SideEffect classifies what a tool does to the world. The dispatcher uses it
// to decide execution order: read-only calls fan out in parallel, mutating
// calls run one at a time after the parallel batch drains.
type SideEffect string

const (
	SideEffectReadOnly SideEffect = "read_only"
	SideEffectMutating SideEffect = "mutating"
)

// ToolExecutor executes a single tool call.
type ToolExecutor interface {
	// Execute runs the tool with the given params
	Execute(ctx context.Context, call ToolCall) (*ToolResult, error)

	// Definition returns the tool's schema for the provider
	Definition() ToolDefinition

	// Metadata returns tool metadata
	Metadata() ToolMetadata
}

// PreflightChecker is an optional ToolExecutor capability. Critical tools
// implement it to run static validation before the approval prompt: a
// returned error blocks the call outright (no approval requested), returned
// warnings are shown in the prompt.
type PreflightChecker interface {
	Preflight(call ToolCall) (warnings []string, err error)
}

// ToolRegistry resolves tool names to executors.
type ToolRegistry interface {
	// Lookup returns the executor for a tool name
	Lookup(name string) (ToolExecutor, bool)

	// Definitions returns schemas for every registered tool
	Definitions() []ToolDefinition

	// SideEffectOf reports the effect class for a tool name; unknown
	// names count as mutating
	SideEffectOf(name string) SideEffect
}

// ToolDefinition describes a tool to the provider.
type ToolDefinition struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Parameters  ParameterSchema `json:"parameters"`
	SideEffect  SideEffect      `json:"-"`
}

// ParameterSchema is the JSON-schema shaped parameter descriptor.
type ParameterSchema struct {
	Type       string              `json:"type"`
	Properties map[string]Property `json:"properties,omitempty"`
	Required   []string            `json:"required,omitempty"`
}

// Property describes a single parameter.
type Property struct {
	Type        string    `json:"type"`
	Description string    `json:"description,omitempty"`
	Enum        []string  `json:"enum,omitempty"`
	Items       *Property `json:"items,omitempty"`
	Default     any       `json:"default,omitempty"`
}

// ToolMetadata carries execution hints that are not part of the schema.
type ToolMetadata struct {
	// Category groups tools for display and metrics ("notes", "calendar", ...)
	Category string

	// Critical tools must pass the approval gate before executing
	Critical bool

	// Deduplicated tools compute an idempotency fingerprint before
	// touching their backend
	Deduplicated bool
}

// ToolCall is a single invocation requested by the model.
type ToolCall struct {
	ID     string         `json:"id"`
	Name   string         `json:"name"`
	Params map[string]any `json:"params"`
}

// ToolResult is the outcome of one call, correlated by CallID.
type ToolResult struct {
	CallID   string         `json:"call_id"`
	Content  string         `json:"content"`
	Error    error          `json:"-"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// MarshalJSON renders the error as a string so results survive persistence
// and the provider wire format.
func (r ToolResult) MarshalJSON() ([]byte, error) {
	type alias ToolResult
	return json.Marshal(struct {
		alias
		ErrorText string `json:"error,omitempty"`
	}{
		alias:     alias(r),
		ErrorText: errorText(r.Error),
	})
}

func errorText(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}

// Succeeded reports whether the call produced a usable result.
func (r *ToolResult) Succeeded() bool {
	return r != nil && r.Error == nil
}

// Validate checks params against the schema: required fields present and
// primitive types matching. Nested object shapes are left to the tool itself.
func (s ParameterSchema) Validate(params map[string]any) error {
	for _, name := range s.Required {
		v, ok := params[name]
		if !ok || v == nil {
			return errors.NewValidation(name, "required parameter missing")
		}
		if str, isStr := v.(string); isStr && strings.TrimSpace(str) == "" {
			return errors.NewValidation(name, "required parameter empty")
		}
	}
	for name, v := range params {
		prop, ok := s.Properties[name]
		if !ok || v == nil {
			continue
		}
		if err := checkType(name, prop.Type, v); err != nil {
			return err
		}
	}
	return nil
}

func checkType(name, want string, v any) error {
	switch want {
	case "string":
		if _, ok := v.(string); !ok {
			return errors.NewValidation(name, fmt.Sprintf("expected string, got %T", v))
		}
	case "number", "integer":
		switch v.(type) {
		case float64, float32, int, int64, json.Number:
		default:
			return errors.NewValidation(name, fmt.Sprintf("expected %s, got %T", want, v))
		}
	case "boolean":
		if _, ok := v.(bool); !ok {
			return errors.NewValidation(name, fmt.Sprintf("expected boolean, got %T", v))
		}
	case "array":
		if _, ok := v.([]any); !ok {
			return errors.NewValidation(name, fmt.Sprintf("expected array, got %T", v))
		}
	case "object":
		if _, ok := v.(map[string]any); !ok {
			return errors.NewValidation(name, fmt.Sprintf("expected object, got %T", v))
		}
	}
	return nil
}

// StringParam extracts a string parameter, trimming surrounding space.
func (c ToolCall) StringParam(name string) string {
	v, ok := c.Params[name]
	if !ok {
		return ""
	}
	s, _ := v.(string)
	return strings.TrimSpace(s)
}

// FloatParam extracts a numeric parameter; JSON numbers decode as float64.
func (c ToolCall) FloatParam(name string) (float64, bool) {
	switch v := c.Params[name].(type) {
	case float64:
		return v, true
	case float32:
		return float64(v), true
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	case json.Number:
		f, err := v.Float64()
		return f, err == nil
	case string:
		var f float64
		if _, err := fmt.Sscanf(strings.TrimSpace(v), "%g", &f); err == nil {
			return f, true
		}
	}
	return 0, false
}

// IntParam extracts an integer parameter.
func (c ToolCall) IntParam(name string) (int, bool) {
	f, ok := c.FloatParam(name)
	if !ok {
		return 0, false
	}
	return int(f), true
}

// BoolParam extracts a boolean parameter, accepting "true"/"false" strings.
func (c ToolCall) BoolParam(name string) (bool, bool) {
	switch v := c.Params[name].(type) {
	case bool:
		return v, true
	case string:
		switch strings.ToLower(strings.TrimSpace(v)) {
		case "true", "yes", "1":
			return true, true
		case "false", "no", "0":
			return false, true
		}
	}
	return false, false
}
