// Package llmtest provides a scripted Provider for tests and for running
// the assistant without a configured backend. Each Stream call plays the
// next scripted round as token / tool-call / done events.
package llmtest

import (
	"context"
	"sync"
	"time"

	"github.com/Drakonis96/optimAIzer-sub001/internal/agent/ports"
)

// Round is one scripted provider response.
type Round struct {
	// Tokens stream in order before any tool calls.
	Tokens []string
	// ToolCalls emit after the tokens.
	ToolCalls []ports.ToolCall
	// Usage rides on the done event when set.
	Usage *ports.TokenUsage
	// Err ends the round with an error event instead of done.
	Err error
	// TokenDelay spaces token events out, for cancellation tests.
	TokenDelay time.Duration
}

// TextRound scripts a plain text response.
func TextRound(tokens ...string) Round {
	return Round{Tokens: tokens}
}

// ToolRound scripts a response that requests tool calls.
func ToolRound(calls ...ports.ToolCall) Round {
	return Round{ToolCalls: calls}
}

// ErrorRound scripts a failing stream.
func ErrorRound(err error) Round {
	return Round{Err: err}
}

// Provider plays scripted rounds. When the script runs out it repeats the
// final round, so follow-up turns keep working in the console.
type Provider struct {
	mu       sync.Mutex
	rounds   []Round
	next     int
	requests []ports.ChatRequest
	model    string
	name     string
}

// NewProvider builds a scripted provider.
func NewProvider(rounds ...Round) *Provider {
	return &Provider{
		rounds: rounds,
		model:  "scripted-1",
		name:   "scripted",
	}
}

// WithIdentity overrides the reported provider name and model.
func (p *Provider) WithIdentity(name, model string) *Provider {
	p.name = name
	p.model = model
	return p
}

// Append adds rounds to the end of the script.
func (p *Provider) Append(rounds ...Round) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.rounds = append(p.rounds, rounds...)
}

// Requests returns a copy of every ChatRequest seen so far.
func (p *Provider) Requests() []ports.ChatRequest {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]ports.ChatRequest, len(p.requests))
	copy(out, p.requests)
	return out
}

// Stream implements ports.Provider.
func (p *Provider) Stream(ctx context.Context, req ports.ChatRequest) (<-chan ports.StreamEvent, error) {
	p.mu.Lock()
	p.requests = append(p.requests, req)
	var round Round
	switch {
	case len(p.rounds) == 0:
		round = TextRound("(no scripted response)")
	case p.next < len(p.rounds):
		round = p.rounds[p.next]
		p.next++
	default:
		round = p.rounds[len(p.rounds)-1]
	}
	p.mu.Unlock()

	events := make(chan ports.StreamEvent, 8)
	go func() {
		defer close(events)
		for _, token := range round.Tokens {
			if round.TokenDelay > 0 {
				select {
				case <-ctx.Done():
					events <- ports.StreamEvent{Type: ports.StreamError, Err: ctx.Err()}
					return
				case <-time.After(round.TokenDelay):
				}
			}
			select {
			case <-ctx.Done():
				events <- ports.StreamEvent{Type: ports.StreamError, Err: ctx.Err()}
				return
			case events <- ports.StreamEvent{Type: ports.StreamToken, Token: token}:
			}
		}
		for i := range round.ToolCalls {
			call := round.ToolCalls[i]
			select {
			case <-ctx.Done():
				events <- ports.StreamEvent{Type: ports.StreamError, Err: ctx.Err()}
				return
			case events <- ports.StreamEvent{Type: ports.StreamToolCall, ToolCall: &call}:
			}
		}
		if round.Err != nil {
			events <- ports.StreamEvent{Type: ports.StreamError, Err: round.Err}
			return
		}
		events <- ports.StreamEvent{Type: ports.StreamDone, Usage: round.Usage}
	}()
	return events, nil
}

// Model implements ports.Provider.
func (p *Provider) Model() string { return p.model }

// Name implements ports.Provider.
func (p *Provider) Name() string { return p.name }
