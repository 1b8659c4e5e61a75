// Package memory injects the agent's working-memory scratchpad into turn
// context. The scratchpad itself is written by the update_working_memory
// tool; this package is the read side that puts the current snapshot in
// front of the model every turn.
package memory

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/Drakonis96/optimAIzer-sub001/internal/agent/domain"
	"github.com/Drakonis96/optimAIzer-sub001/internal/logging"
	"github.com/Drakonis96/optimAIzer-sub001/internal/store"
)

// slot mirrors the stored working-memory row shape.
type slot struct {
	Label     string    `json:"label"`
	Content   string    `json:"content"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Snapshotter renders working-memory snapshots for one keyed store.
type Snapshotter struct {
	store  store.Store
	logger logging.Logger
}

// NewSnapshotter builds the read side over the keyed store.
func NewSnapshotter(st store.Store, logger logging.Logger) *Snapshotter {
	return &Snapshotter{store: st, logger: logging.OrNop(logger)}
}

// Snapshot renders the agent's scratchpad as one labeled block. An empty
// scratchpad renders to the empty string.
func (s *Snapshotter) Snapshot(ctx context.Context, userID, agentID string) (string, error) {
	var slots []slot
	key := store.AgentCollectionKey(userID, agentID, store.CollectionWorkingMemory)
	if err := store.GetJSON(ctx, s.store, key, &slots); err != nil {
		if err == store.ErrNotFound {
			return "", nil
		}
		return "", err
	}
	if len(slots) == 0 {
		return "", nil
	}

	var b strings.Builder
	b.WriteString("Working memory:")
	for _, slot := range slots {
		fmt.Fprintf(&b, "\n- %s: %s", slot.Label, slot.Content)
	}
	return b.String(), nil
}

// Enricher adapts the snapshot into the engine's context hook for one
// agent. A store failure logs and contributes nothing rather than failing
// the turn.
func (s *Snapshotter) Enricher(userID, agentID string) domain.ContextEnricher {
	return func(ctx context.Context, _ domain.Stimulus) []string {
		snapshot, err := s.Snapshot(ctx, userID, agentID)
		if err != nil {
			s.logger.Warn("memory: snapshot failed for agent %s: %v", agentID, err)
			return nil
		}
		if snapshot == "" {
			return nil
		}
		return []string{snapshot}
	}
}
