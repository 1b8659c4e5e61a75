package bootstrap

import (
	"fmt"
	"sync"

	"github.com/Drakonis96/optimAIzer-sub001/internal/logging"
)

// Stage is one initialization step of the phased startup. Required stages
// abort the boot on failure; optional ones degrade.
type Stage struct {
	Name     string
	Required bool
	Init     func() error
}

// DegradedSet collects components whose optional initialization failed
// without preventing startup.
type DegradedSet struct {
	mu         sync.RWMutex
	components map[string]string
}

// NewDegradedSet returns an empty tracker.
func NewDegradedSet() *DegradedSet {
	return &DegradedSet{components: make(map[string]string)}
}

// Record marks a component degraded with the failure reason.
func (d *DegradedSet) Record(name, reason string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.components[name] = reason
}

// Map returns a snapshot of the degraded components.
func (d *DegradedSet) Map() map[string]string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	out := make(map[string]string, len(d.components))
	for k, v := range d.components {
		out[k] = v
	}
	return out
}

// IsEmpty reports whether nothing degraded.
func (d *DegradedSet) IsEmpty() bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.components) == 0
}

// RunStages executes stages in order. A required stage's error aborts the
// run; an optional stage's error is recorded and execution continues.
func RunStages(stages []Stage, degraded *DegradedSet, logger logging.Logger) error {
	logger = logging.OrNop(logger)
	for _, stage := range stages {
		logger.Info("[Bootstrap] Running stage: %s (required=%v)", stage.Name, stage.Required)
		if err := stage.Init(); err != nil {
			if stage.Required {
				return fmt.Errorf("required stage %q failed: %w", stage.Name, err)
			}
			logger.Warn("[Bootstrap] Optional stage %q failed: %v (continuing in degraded mode)", stage.Name, err)
			if degraded != nil {
				degraded.Record(stage.Name, err.Error())
			}
		}
	}
	return nil
}
