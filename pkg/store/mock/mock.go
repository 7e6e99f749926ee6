// Package mock provides a test double for the store.Store interface.
//
// Use Store to return pre-canned records without a live database and to
// inject failures at specific operations. Unlike the in-memory production
// store, every call is recorded so tests can assert on the exact sequence
// of store interactions.
package mock

import (
	"context"
	"slices"
	"sync"

	"github.com/biosso/facegate/pkg/store"
)

// Compile-time interface check.
var _ store.Store = (*Store)(nil)

// Store is a mock implementation of store.Store. It behaves like a working
// in-memory store unless one of the Err fields is set, in which case the
// corresponding operation fails without touching state.
type Store struct {
	mu      sync.Mutex
	records map[string][]store.Record

	// --- Injected failures ---

	// AppendErr, if non-nil, is returned by Append.
	AppendErr error

	// AppendBatchErr, if non-nil, is returned by AppendBatch.
	AppendBatchErr error

	// ListErr, if non-nil, is returned by List.
	ListErr error

	// CountErr, if non-nil, is returned by Count.
	CountErr error

	// DeleteErr, if non-nil, is returned by DeleteIdentity.
	DeleteErr error

	// --- Call records ---

	// AppendCalls records every record passed to Append in order.
	AppendCalls []store.Record

	// AppendBatchCalls records every batch passed to AppendBatch in order.
	AppendBatchCalls [][]store.Record

	// ListCalls records every identity passed to List in order.
	ListCalls []string
}

// New creates an empty mock store.
func New() *Store {
	return &Store{records: make(map[string][]store.Record)}
}

// Seed pre-populates the mock with records without recording calls.
func (s *Store) Seed(recs ...store.Record) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, rec := range recs {
		s.records[rec.Identity] = append(s.records[rec.Identity], rec)
	}
}

// Append records the call and stores the record unless AppendErr is set.
func (s *Store) Append(_ context.Context, rec store.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.AppendCalls = append(s.AppendCalls, rec)
	if s.AppendErr != nil {
		return s.AppendErr
	}
	if rec.Identity == "" {
		return store.ErrEmptyIdentity
	}
	s.records[rec.Identity] = append(s.records[rec.Identity], rec)
	return nil
}

// AppendBatch records the call and stores all records unless AppendBatchErr
// is set. The batch is applied atomically.
func (s *Store) AppendBatch(_ context.Context, recs []store.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.AppendBatchCalls = append(s.AppendBatchCalls, slices.Clone(recs))
	if s.AppendBatchErr != nil {
		return s.AppendBatchErr
	}
	for _, rec := range recs {
		if rec.Identity == "" {
			return store.ErrEmptyIdentity
		}
	}
	for _, rec := range recs {
		s.records[rec.Identity] = append(s.records[rec.Identity], rec)
	}
	return nil
}

// List records the call and returns the stored records in insertion order.
func (s *Store) List(_ context.Context, identity string) ([]store.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ListCalls = append(s.ListCalls, identity)
	if s.ListErr != nil {
		return nil, s.ListErr
	}
	if identity == "" {
		return nil, store.ErrEmptyIdentity
	}
	return slices.Clone(s.records[identity]), nil
}

// Count returns the number of stored records for identity.
func (s *Store) Count(_ context.Context, identity string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.CountErr != nil {
		return 0, s.CountErr
	}
	if identity == "" {
		return 0, store.ErrEmptyIdentity
	}
	return len(s.records[identity]), nil
}

// DeleteIdentity removes all records for identity.
func (s *Store) DeleteIdentity(_ context.Context, identity string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.DeleteErr != nil {
		return 0, s.DeleteErr
	}
	if identity == "" {
		return 0, store.ErrEmptyIdentity
	}
	n := len(s.records[identity])
	delete(s.records, identity)
	return n, nil
}

// Close is a no-op.
func (s *Store) Close() error { return nil }

// RecordCount reports the number of stored records for identity without
// counting as a call. Intended for test assertions.
func (s *Store) RecordCount(identity string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.records[identity])
}
