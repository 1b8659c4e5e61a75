// Package store defines the keyed persistence port the runtime is built on,
// plus file-backed and in-memory implementations. Keys are flat strings
// namespaced by convention (user:<id>:agent:<id>:<collection>), values are
// JSON documents.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
)

// ErrNotFound is returned by Get when no value exists for the key.
var ErrNotFound = errors.New("store: key not found")

// Entry is one key/value pair returned by Scan.
type Entry struct {
	Key   string
	Value []byte
}

// Mutation is one write inside a Batch. A nil Value with Delete set removes
// the key.
type Mutation struct {
	Key    string
	Value  []byte
	Delete bool
}

// Put builds a write mutation.
func Put(key string, value []byte) Mutation {
	return Mutation{Key: key, Value: value}
}

// Del builds a delete mutation.
func Del(key string) Mutation {
	return Mutation{Key: key, Delete: true}
}

// Store is the keyed persistence port. Implementations must make Batch
// all-or-nothing with respect to concurrent readers.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Put(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error
	// Scan returns every entry whose key starts with prefix, sorted by key.
	Scan(ctx context.Context, prefix string) ([]Entry, error)
	Batch(ctx context.Context, mutations []Mutation) error
	Close() error
}

// GetJSON reads key and unmarshals it into out. ErrNotFound passes through.
func GetJSON(ctx context.Context, s Store, key string, out any) error {
	data, err := s.Get(ctx, key)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decode %s: %w", key, err)
	}
	return nil
}

// PutJSON marshals value and writes it under key.
func PutJSON(ctx context.Context, s Store, key string, value any) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}
	return s.Put(ctx, key, data)
}

// Keys returns just the keys under prefix, sorted.
func Keys(ctx context.Context, s Store, prefix string) ([]string, error) {
	entries, err := s.Scan(ctx, prefix)
	if err != nil {
		return nil, err
	}
	keys := make([]string, len(entries))
	for i, e := range entries {
		keys[i] = e.Key
	}
	return keys, nil
}

func validateMutations(mutations []Mutation) error {
	for i, m := range mutations {
		if m.Key == "" {
			return fmt.Errorf("store: batch mutation %d has empty key", i)
		}
		if !m.Delete && m.Value == nil {
			return fmt.Errorf("store: batch mutation %d writes nil value to %s", i, m.Key)
		}
	}
	return nil
}
