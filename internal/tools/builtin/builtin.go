// Package builtin holds the runtime's built-in tool set: per-agent CRUD over
// the keyed store (notes, lists, expenses, memory), scheduler management,
// web access, messaging, and the critical-effect tools behind the approval
// gate (calendar writes, email, home automation, media deletion, terminal
// and code execution).
//
// Every tool operates inside a Binding that scopes it to one (user, agent)
// pair; the runtime builds one registry per deployed agent.
package builtin

import (
	"context"
	"fmt"
	"time"

	"github.com/Drakonis96/optimAIzer-sub001/internal/agent/ports"
	"github.com/Drakonis96/optimAIzer-sub001/internal/logging"
	"github.com/Drakonis96/optimAIzer-sub001/internal/store"
)

// Tool categories. Permission mapping happens in the workspace layer;
// categories without a permission bit are always allowed.
const (
	CategoryNotes     = "notes"
	CategoryScheduler = "scheduler"
	CategoryMemory    = "memory"
	CategoryInternet  = "internet"
	CategoryMessaging = "messaging"
	CategoryCalendar  = "calendar"
	CategoryEmail     = "email"
	CategoryHome      = "home"
	CategoryMedia     = "media"
	CategoryTerminal  = "terminal"
	CategoryCode      = "code"
	CategoryUndo      = "undo"
)

// DefaultUndoDepth bounds the per-agent undo stack.
const DefaultUndoDepth = 20

// Binding scopes store-backed tools to one agent.
type Binding struct {
	Store   store.Store
	UserID  string
	AgentID string
	Logger  logging.Logger

	// Timezone is the agent's IANA timezone for rendering and parsing
	// local times; empty falls back to the host zone.
	Timezone string

	// Now overrides the clock in tests.
	Now func() time.Time

	// UndoDepth bounds the undo stack; zero means DefaultUndoDepth.
	UndoDepth int

	// AllowHost gates fetch_webpage by host when the agent carries an
	// allowed-websites list; nil allows every host.
	AllowHost func(host string) bool
}

func (b Binding) withDefaults() Binding {
	b.Logger = logging.OrNop(b.Logger)
	if b.Now == nil {
		b.Now = time.Now
	}
	if b.UndoDepth <= 0 {
		b.UndoDepth = DefaultUndoDepth
	}
	return b
}

func (b Binding) location() *time.Location {
	if b.Timezone != "" {
		if loc, err := time.LoadLocation(b.Timezone); err == nil {
			return loc
		}
	}
	return time.Local
}

func (b Binding) key(collection string) string {
	return store.AgentCollectionKey(b.UserID, b.AgentID, collection)
}

// loadCollection reads one agent collection; a missing key is an empty
// collection, not an error.
func loadCollection[T any](ctx context.Context, b Binding, collection string) ([]T, error) {
	var items []T
	err := store.GetJSON(ctx, b.Store, b.key(collection), &items)
	if err != nil && err != store.ErrNotFound {
		return nil, err
	}
	return items, nil
}

func saveCollection[T any](ctx context.Context, b Binding, collection string, items []T) error {
	return store.PutJSON(ctx, b.Store, b.key(collection), items)
}

func textResult(call ports.ToolCall, format string, args ...any) *ports.ToolResult {
	return &ports.ToolResult{CallID: call.ID, Content: fmt.Sprintf(format, args...)}
}
