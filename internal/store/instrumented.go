package store

import (
	"context"
	"errors"

	"github.com/Drakonis96/optimAIzer-sub001/internal/observability"
)

// instrumented wraps a Store and feeds operation counts into StoreMetrics.
type instrumented struct {
	inner   Store
	metrics *observability.StoreMetrics
}

// WithMetrics returns a store that records every operation. A nil metrics
// recorder returns the store unchanged.
func WithMetrics(inner Store, metrics *observability.StoreMetrics) Store {
	if metrics == nil {
		return inner
	}
	return &instrumented{inner: inner, metrics: metrics}
}

func (s *instrumented) Get(ctx context.Context, key string) ([]byte, error) {
	value, err := s.inner.Get(ctx, key)
	// A miss is a normal outcome, not a store failure.
	if errors.Is(err, ErrNotFound) {
		s.metrics.RecordOperation("get", nil)
	} else {
		s.metrics.RecordOperation("get", err)
	}
	return value, err
}

func (s *instrumented) Put(ctx context.Context, key string, value []byte) error {
	err := s.inner.Put(ctx, key, value)
	s.metrics.RecordOperation("put", err)
	return err
}

func (s *instrumented) Delete(ctx context.Context, key string) error {
	err := s.inner.Delete(ctx, key)
	s.metrics.RecordOperation("delete", err)
	return err
}

func (s *instrumented) Scan(ctx context.Context, prefix string) ([]Entry, error) {
	entries, err := s.inner.Scan(ctx, prefix)
	s.metrics.RecordScan(len(entries), err)
	return entries, err
}

func (s *instrumented) Batch(ctx context.Context, mutations []Mutation) error {
	err := s.inner.Batch(ctx, mutations)
	s.metrics.RecordBatch(len(mutations), err)
	return err
}

func (s *instrumented) Close() error { return s.inner.Close() }
