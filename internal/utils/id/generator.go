package id

import (
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/segmentio/ksuid"
)

// Strategy identifies the identifier generation algorithm to use.
type Strategy int

const (
	// StrategyKSUID generates lexicographically sortable identifiers using KSUID.
	StrategyKSUID Strategy = iota
	// StrategyUUIDv7 generates time-ordered identifiers using UUID version 7.
	StrategyUUIDv7
)

var defaultGenerator = &Generator{strategy: StrategyKSUID}

// Generator produces prefixed identifiers for runtime entities.
type Generator struct {
	mu       sync.RWMutex
	strategy Strategy
}

// SetStrategy configures the generation strategy for the default generator.
func SetStrategy(strategy Strategy) {
	defaultGenerator.setStrategy(strategy)
}

func (g *Generator) setStrategy(strategy Strategy) {
	g.mu.Lock()
	g.strategy = strategy
	g.mu.Unlock()
}

// NewAgentID generates an agent identifier with a stable prefix for display.
func NewAgentID() string {
	return defaultGenerator.newIdentifier("agent")
}

// NewTaskID generates a scheduled-task identifier.
func NewTaskID() string {
	return defaultGenerator.newIdentifier("task")
}

// NewSubscriptionID generates an event-subscription identifier.
func NewSubscriptionID() string {
	return defaultGenerator.newIdentifier("sub")
}

// NewReminderID generates a location-reminder identifier.
func NewReminderID() string {
	return defaultGenerator.newIdentifier("rem")
}

// NewRequestID generates a streaming request identifier.
func NewRequestID() string {
	return defaultGenerator.newIdentifier("req")
}

// NewEntryID generates an identifier for workspace collection entries
// (notes, list items, expenses, memory labels and the like).
func NewEntryID(kind string) string {
	if kind == "" {
		kind = "entry"
	}
	return defaultGenerator.newIdentifier(kind)
}

// NewCallID generates a tool-call correlation identifier.
func NewCallID() string {
	return defaultGenerator.newIdentifier("call")
}

// NewApprovalID generates an approval-request identifier.
func NewApprovalID() string {
	return defaultGenerator.newIdentifier("appr")
}

func (g *Generator) newIdentifier(prefix string) string {
	g.mu.RLock()
	strategy := g.strategy
	g.mu.RUnlock()

	var body string
	switch strategy {
	case StrategyUUIDv7:
		uuidv7, err := uuid.NewV7()
		if err == nil {
			body = uuidv7.String()
			break
		}
		fallthrough
	case StrategyKSUID:
		body = ksuid.New().String()
	default:
		body = ksuid.New().String()
	}

	return fmt.Sprintf("%s-%s", prefix, body)
}
