// Package store defines the durable embedding store abstraction for FaceGate.
//
// A Store maps user identities to the face embeddings enrolled for them.
// Records are append-only: a registration adds embeddings, verification only
// reads them, and the sole mutation besides append is administrative deletion
// of a whole identity. There is no update path — once written, a record never
// changes.
//
// Implementations must be safe for concurrent use and must preserve insertion
// order in [Store.List] so that matching results stay deterministic.
package store

import (
	"context"
	"errors"
	"time"
)

// ErrEmptyIdentity is returned when an operation is attempted with an empty
// user identity.
var ErrEmptyIdentity = errors.New("store: identity must not be empty")

// Record is one enrolled embedding for a user identity. Immutable once stored.
type Record struct {
	// Identity is the opaque user key the embedding belongs to.
	Identity string

	// Embedding is the fixed-length vector produced by the extractor.
	Embedding []float32

	// CreatedAt is when the record was enrolled.
	CreatedAt time.Time
}

// Store is the durable mapping from identity to enrolled embeddings.
//
// An identity counts as registered iff at least one record exists for it.
// Callers that need a check-then-append sequence to be race-free (the
// registration-uniqueness invariant) must serialize it externally; the store
// itself only guarantees that each individual operation is atomic.
type Store interface {
	// Append stores a single record.
	Append(ctx context.Context, rec Record) error

	// AppendBatch stores all records atomically: either every record becomes
	// visible or none do.
	AppendBatch(ctx context.Context, recs []Record) error

	// List returns all records for the identity in insertion order. An
	// unknown identity yields an empty slice, not an error.
	List(ctx context.Context, identity string) ([]Record, error)

	// Count returns the number of records stored for the identity.
	Count(ctx context.Context, identity string) (int, error)

	// DeleteIdentity removes every record for the identity and returns how
	// many were deleted. Deleting an unknown identity returns 0, nil.
	DeleteIdentity(ctx context.Context, identity string) (int, error)

	// Close releases the store's resources.
	Close() error
}
