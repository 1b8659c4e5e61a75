package bootstrap

import (
	"context"
	"fmt"
	"sync"

	"github.com/Drakonis96/optimAIzer-sub001/internal/logging"
)

// Subsystem is a long-lived component whose lifecycle the bootstrap owns:
// started during boot, stopped in reverse order on shutdown.
type Subsystem interface {
	Name() string
	Start(ctx context.Context) error
	Stop()
}

// SubsystemManager tracks started subsystems. Each runs under a context the
// manager cancels on StopAll, so blocking loops unwind even when a Stop
// implementation only flips a flag.
type SubsystemManager struct {
	logger logging.Logger

	mu      sync.Mutex
	entries []subsystemEntry
}

type subsystemEntry struct {
	sub    Subsystem
	cancel context.CancelFunc
}

// NewSubsystemManager returns an empty manager.
func NewSubsystemManager(logger logging.Logger) *SubsystemManager {
	return &SubsystemManager{logger: logging.OrNop(logger)}
}

// Start launches the subsystem. A failed start is not tracked: StopAll will
// never call Stop on it.
func (m *SubsystemManager) Start(ctx context.Context, sub Subsystem) error {
	runCtx, cancel := context.WithCancel(ctx)
	if err := sub.Start(runCtx); err != nil {
		cancel()
		return fmt.Errorf("subsystem %s: %w", sub.Name(), err)
	}
	m.mu.Lock()
	m.entries = append(m.entries, subsystemEntry{sub: sub, cancel: cancel})
	m.mu.Unlock()
	m.logger.Info("[Bootstrap] Subsystem started: %s", sub.Name())
	return nil
}

// StopAll stops tracked subsystems in LIFO order, cancelling each one's
// context first. Calling it again is a no-op.
func (m *SubsystemManager) StopAll() {
	m.mu.Lock()
	entries := m.entries
	m.entries = nil
	m.mu.Unlock()

	for i := len(entries) - 1; i >= 0; i-- {
		entries[i].cancel()
		entries[i].sub.Stop()
		m.logger.Info("[Bootstrap] Subsystem stopped: %s", entries[i].sub.Name())
	}
}
