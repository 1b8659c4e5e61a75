package toolregistry

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/Drakonis96/optimAIzer-sub001/internal/agent/ports"
	"github.com/Drakonis96/optimAIzer-sub001/internal/logging"
)

const (
	defaultDedupWindow  = 2 * time.Minute
	defaultDedupEntries = 256
)

// DedupConfig tunes the idempotency window.
type DedupConfig struct {
	// Window is how long a completed fingerprint suppresses repeats.
	Window time.Duration
	// MaxEntries bounds the fingerprint LRU.
	MaxEntries int
}

// DefaultDedupConfig returns the stock two-minute window.
func DefaultDedupConfig() DedupConfig {
	return DedupConfig{Window: defaultDedupWindow, MaxEntries: defaultDedupEntries}
}

// Fingerprinter derives the idempotency key for a call. Returning false
// means the call is not dedupable and goes straight through.
type Fingerprinter func(ctx context.Context, call ports.ToolCall) (string, bool)

// dedupExecutor suppresses repeated side effects: when an identical
// fingerprint completed successfully inside the window, the delegate is not
// invoked and a synthetic "already done" result is returned. Models retrying
// a calendar insert after a slow round otherwise double-book the event.
type dedupExecutor struct {
	delegate    ports.ToolExecutor
	fingerprint Fingerprinter
	seen        *lru.Cache[string, time.Time]
	window      time.Duration
	logger      logging.Logger
	now         func() time.Time
}

// WrapDeduplicated decorates delegate with the idempotency window.
func WrapDeduplicated(delegate ports.ToolExecutor, fingerprint Fingerprinter, config DedupConfig, logger logging.Logger) ports.ToolExecutor {
	if delegate == nil || fingerprint == nil {
		return delegate
	}
	if config.Window <= 0 {
		config.Window = defaultDedupWindow
	}
	if config.MaxEntries <= 0 {
		config.MaxEntries = defaultDedupEntries
	}
	seen, err := lru.New[string, time.Time](config.MaxEntries)
	if err != nil {
		return delegate
	}
	return &dedupExecutor{
		delegate:    delegate,
		fingerprint: fingerprint,
		seen:        seen,
		window:      config.Window,
		logger:      logging.OrNop(logger),
		now:         time.Now,
	}
}

func (d *dedupExecutor) Execute(ctx context.Context, call ports.ToolCall) (*ports.ToolResult, error) {
	key, ok := d.fingerprint(ctx, call)
	if !ok {
		return d.delegate.Execute(ctx, call)
	}

	// time.Now carries a monotonic reading, so wall-clock jumps cannot
	// reopen or shrink the window.
	if completedAt, hit := d.seen.Get(key); hit {
		elapsed := d.now().Sub(completedAt)
		if elapsed < d.window {
			d.logger.Info("dedup: suppressed repeat of %s (%s ago)", call.Name, elapsed.Round(time.Second))
			return &ports.ToolResult{
				CallID:  call.ID,
				Content: fmt.Sprintf("Already done: an identical %s request completed %s ago. No new action was taken.", call.Name, elapsed.Round(time.Second)),
				Metadata: map[string]any{
					"deduplicated": true,
				},
			}, nil
		}
		d.seen.Remove(key)
	}

	result, err := d.delegate.Execute(ctx, call)
	if err == nil && result.Succeeded() {
		// Only successful completions arm the window; failures may be
		// retried immediately.
		d.seen.Add(key, d.now())
	}
	return result, err
}

func (d *dedupExecutor) Definition() ports.ToolDefinition { return d.delegate.Definition() }

func (d *dedupExecutor) Metadata() ports.ToolMetadata {
	meta := d.delegate.Metadata()
	meta.Deduplicated = true
	return meta
}

// NormalizeParams renders params as JSON with sorted keys so fingerprints
// do not depend on map iteration order.
func NormalizeParams(params map[string]any) string {
	if len(params) == 0 {
		return "{}"
	}
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	ordered := make([]any, 0, len(keys)*2)
	for _, k := range keys {
		ordered = append(ordered, k, params[k])
	}
	data, err := json.Marshal(ordered)
	if err != nil {
		return fmt.Sprintf("%v", params)
	}
	return string(data)
}
