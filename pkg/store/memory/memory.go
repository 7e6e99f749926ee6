// Package memory provides an in-memory implementation of [store.Store].
//
// Intended for development mode and tests; nothing survives a restart. All
// methods are safe for concurrent use.
package memory

import (
	"context"
	"slices"
	"sync"

	"github.com/biosso/facegate/pkg/store"
)

// Compile-time interface check.
var _ store.Store = (*Store)(nil)

// Store keeps all records in a map keyed by identity, each value holding the
// identity's records in insertion order.
type Store struct {
	mu      sync.RWMutex
	records map[string][]store.Record
}

// New creates an empty in-memory store.
func New() *Store {
	return &Store{records: make(map[string][]store.Record)}
}

// Append implements [store.Store].
func (s *Store) Append(_ context.Context, rec store.Record) error {
	if rec.Identity == "" {
		return store.ErrEmptyIdentity
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[rec.Identity] = append(s.records[rec.Identity], cloneRecord(rec))
	return nil
}

// AppendBatch implements [store.Store]. The write is atomic: validation runs
// over the whole batch before anything is stored.
func (s *Store) AppendBatch(_ context.Context, recs []store.Record) error {
	for _, rec := range recs {
		if rec.Identity == "" {
			return store.ErrEmptyIdentity
		}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, rec := range recs {
		s.records[rec.Identity] = append(s.records[rec.Identity], cloneRecord(rec))
	}
	return nil
}

// List implements [store.Store]. Returned records are copies; mutating them
// does not affect the store.
func (s *Store) List(_ context.Context, identity string) ([]store.Record, error) {
	if identity == "" {
		return nil, store.ErrEmptyIdentity
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	recs := s.records[identity]
	out := make([]store.Record, 0, len(recs))
	for _, rec := range recs {
		out = append(out, cloneRecord(rec))
	}
	return out, nil
}

// Count implements [store.Store].
func (s *Store) Count(_ context.Context, identity string) (int, error) {
	if identity == "" {
		return 0, store.ErrEmptyIdentity
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records[identity]), nil
}

// DeleteIdentity implements [store.Store].
func (s *Store) DeleteIdentity(_ context.Context, identity string) (int, error) {
	if identity == "" {
		return 0, store.ErrEmptyIdentity
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	n := len(s.records[identity])
	delete(s.records, identity)
	return n, nil
}

// Close implements [store.Store]. It is a no-op for the in-memory store.
func (s *Store) Close() error { return nil }

func cloneRecord(rec store.Record) store.Record {
	rec.Embedding = slices.Clone(rec.Embedding)
	return rec
}
