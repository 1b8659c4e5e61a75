// Package toolregistry resolves tool names to executors and carries each
// tool's side-effect class for the dispatcher.
package toolregistry

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/Drakonis96/optimAIzer-sub001/internal/agent/ports"
)

// ExternalPrefix marks dynamically registered external tools. Their effect
// class defaults to mutating unless the definition says otherwise.
const ExternalPrefix = "mcp_"

// Registry implements ports.ToolRegistry over two tiers: built-in tools
// registered at startup and external tools registered while running.
type Registry struct {
	builtin  map[string]ports.ToolExecutor
	external map[string]ports.ToolExecutor
	mu       sync.RWMutex
}

// New builds an empty registry.
func New() *Registry {
	return &Registry{
		builtin:  make(map[string]ports.ToolExecutor),
		external: make(map[string]ports.ToolExecutor),
	}
}

// Register adds a tool. Names must be unique across both tiers; tools with
// the external prefix land in the external tier.
func (r *Registry) Register(tool ports.ToolExecutor) error {
	if tool == nil {
		return fmt.Errorf("nil tool")
	}
	name := tool.Definition().Name
	if name == "" {
		return fmt.Errorf("tool has empty name")
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.builtin[name]; exists {
		return fmt.Errorf("tool already registered: %s", name)
	}
	if _, exists := r.external[name]; exists {
		return fmt.Errorf("tool already registered: %s", name)
	}

	if strings.HasPrefix(name, ExternalPrefix) {
		r.external[name] = tool
	} else {
		r.builtin[name] = tool
	}
	return nil
}

// MustRegister panics on registration failure; used for the static builtin
// set where a collision is a programming error.
func (r *Registry) MustRegister(tools ...ports.ToolExecutor) {
	for _, tool := range tools {
		if err := r.Register(tool); err != nil {
			panic(err)
		}
	}
}

// Unregister removes an external tool. Built-in tools stay for the life of
// the registry.
func (r *Registry) Unregister(name string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.external[name]; ok {
		delete(r.external, name)
		return true
	}
	return false
}

// Lookup returns the executor for a name.
func (r *Registry) Lookup(name string) (ports.ToolExecutor, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if tool, ok := r.builtin[name]; ok {
		return tool, true
	}
	if tool, ok := r.external[name]; ok {
		return tool, true
	}
	return nil, false
}

// Definitions returns every registered schema, sorted by name so the
// provider request is stable across runs.
func (r *Registry) Definitions() []ports.ToolDefinition {
	r.mu.RLock()
	defer r.mu.RUnlock()
	defs := make([]ports.ToolDefinition, 0, len(r.builtin)+len(r.external))
	for _, tool := range r.builtin {
		defs = append(defs, tool.Definition())
	}
	for _, tool := range r.external {
		defs = append(defs, tool.Definition())
	}
	sort.Slice(defs, func(i, j int) bool { return defs[i].Name < defs[j].Name })
	return defs
}

// SideEffectOf reports the effect class for a name. Unknown tools and
// external tools without a declared class count as mutating; that keeps the
// dispatcher conservative when a model invents or mislabels a call.
func (r *Registry) SideEffectOf(name string) ports.SideEffect {
	tool, ok := r.Lookup(name)
	if !ok {
		return ports.SideEffectMutating
	}
	if effect := tool.Definition().SideEffect; effect != "" {
		return effect
	}
	return ports.SideEffectMutating
}

// Names returns all registered tool names, sorted.
func (r *Registry) Names() []string {
	defs := r.Definitions()
	names := make([]string, len(defs))
	for i, def := range defs {
		names[i] = def.Name
	}
	return names
}

// Has reports whether a tool name is registered.
func (r *Registry) Has(name string) bool {
	_, ok := r.Lookup(name)
	return ok
}

// Filtered returns a read-only view exposing only tools the predicate
// allows. Each agent gets a view shaped by its permissions.
func (r *Registry) Filtered(allow func(ports.ToolDefinition, ports.ToolMetadata) bool) ports.ToolRegistry {
	return &filteredRegistry{parent: r, allow: allow}
}

type filteredRegistry struct {
	parent *Registry
	allow  func(ports.ToolDefinition, ports.ToolMetadata) bool
}

func (f *filteredRegistry) Lookup(name string) (ports.ToolExecutor, bool) {
	tool, ok := f.parent.Lookup(name)
	if !ok {
		return nil, false
	}
	if f.allow != nil && !f.allow(tool.Definition(), tool.Metadata()) {
		return nil, false
	}
	return tool, true
}

func (f *filteredRegistry) Definitions() []ports.ToolDefinition {
	all := f.parent.Definitions()
	if f.allow == nil {
		return all
	}
	kept := all[:0]
	for _, def := range all {
		tool, ok := f.parent.Lookup(def.Name)
		if !ok {
			continue
		}
		if f.allow(def, tool.Metadata()) {
			kept = append(kept, def)
		}
	}
	return kept
}

func (f *filteredRegistry) SideEffectOf(name string) ports.SideEffect {
	return f.parent.SideEffectOf(name)
}
