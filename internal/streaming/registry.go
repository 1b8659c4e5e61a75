package streaming

import (
	"context"
	"errors"
	"sync"
)

// Cancellation causes, distinguishable through context.Cause.
var (
	// ErrReplaced means a newer stream claimed the same request id.
	ErrReplaced = errors.New("stream replaced by a newer request")
	// ErrCancelRequested means an explicit cancel call aborted the stream.
	ErrCancelRequested = errors.New("stream cancelled by request")
)

// Registry tracks in-flight streams by request id. Registering an id that is
// already in flight aborts the previous holder.
type Registry struct {
	mu       sync.Mutex
	inflight map[string]*registryEntry
}

type registryEntry struct {
	cancel context.CancelCauseFunc
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{inflight: make(map[string]*registryEntry)}
}

// Register installs cancel under the id and returns a release func. Release
// removes the entry only if it still belongs to this registration, so a
// replaced stream cannot evict its replacement on the way out.
func (r *Registry) Register(requestID string, cancel context.CancelCauseFunc) func() {
	r.mu.Lock()
	if prev, ok := r.inflight[requestID]; ok {
		prev.cancel(ErrReplaced)
	}
	entry := &registryEntry{cancel: cancel}
	r.inflight[requestID] = entry
	r.mu.Unlock()

	return func() {
		r.mu.Lock()
		if current, ok := r.inflight[requestID]; ok && current == entry {
			delete(r.inflight, requestID)
		}
		r.mu.Unlock()
	}
}

// Cancel aborts the named stream. False when no such stream is in flight.
func (r *Registry) Cancel(requestID string) bool {
	r.mu.Lock()
	entry, ok := r.inflight[requestID]
	r.mu.Unlock()
	if !ok {
		return false
	}
	entry.cancel(ErrCancelRequested)
	return true
}

// Len reports how many streams are in flight.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.inflight)
}
