package domain

import (
	"sync"

	"github.com/Drakonis96/optimAIzer-sub001/internal/agent/ports"
)

// History is the bounded per-session conversation record. Turns live for the
// session only; durable facts belong in working memory.
type History struct {
	mu    sync.Mutex
	turns []ports.Message
	limit int
}

// NewHistory builds a history bounded to limit turns.
func NewHistory(limit int) *History {
	if limit <= 0 {
		limit = DefaultHistoryLimit
	}
	return &History{limit: limit}
}

// Append records a turn, trimming the oldest when over the limit. Trimming
// never leaves a tool-result turn without the assistant turn that requested
// it: the window advances to the next user turn.
func (h *History) Append(msg ports.Message) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.turns = append(h.turns, msg)
	if len(h.turns) <= h.limit {
		return
	}
	drop := len(h.turns) - h.limit
	for drop < len(h.turns) && h.turns[drop].Role != ports.RoleUser {
		drop++
	}
	h.turns = append([]ports.Message(nil), h.turns[drop:]...)
}

// Snapshot returns a copy of the current turns.
func (h *History) Snapshot() []ports.Message {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]ports.Message, len(h.turns))
	copy(out, h.turns)
	return out
}

// Len returns the retained turn count.
func (h *History) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.turns)
}

// Clear drops all turns.
func (h *History) Clear() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.turns = nil
}
