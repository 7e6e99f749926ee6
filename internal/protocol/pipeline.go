package protocol

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/biosso/facegate/pkg/extract"
	"github.com/biosso/facegate/pkg/match"
	"github.com/biosso/facegate/pkg/store"
)

var (
	// ErrNotRegistered is the domain outcome for verification against an
	// identity with no enrolled embeddings. A valid outcome, not a fault.
	ErrNotRegistered = errors.New("protocol: identity is not registered")

	// ErrAlreadyRegistered is the registration conflict outcome: the
	// identity already has enrolled embeddings and re-enrollment would
	// silently pollute them.
	ErrAlreadyRegistered = errors.New("protocol: identity is already registered")
)

// BatchError reports a failed bulk registration together with how many
// images had been embedded successfully before the failure. Nothing is
// stored when a BatchError is returned.
type BatchError struct {
	// Processed is the number of leading images that embedded successfully.
	Processed int

	// Err is the underlying failure.
	Err error
}

// Error implements the error interface.
func (e *BatchError) Error() string {
	return fmt.Sprintf("bulk registration failed after %d image(s): %v", e.Processed, e.Err)
}

// Unwrap exposes the underlying failure to errors.Is / errors.As.
func (e *BatchError) Unwrap() error { return e.Err }

// VerifyOutcome is the result of a verification attempt against a
// registered identity.
type VerifyOutcome struct {
	// Identity is the identity the query was matched against.
	Identity string

	// Similarity is the best cosine similarity across the identity's
	// enrolled embeddings.
	Similarity float64

	// Verified reports whether the similarity exceeded the accept threshold.
	Verified bool
}

// Pipeline is the shared extract → store → match sequence behind every
// protocol surface. The persistent-connection sessions and the single-shot
// HTTP facade both delegate here, so matching and registration semantics are
// identical across surfaces.
//
// Dependencies are injected at construction; Pipeline holds no per-request
// state and is safe for concurrent use.
type Pipeline struct {
	extractor extract.Provider
	store     store.Store
	matcher   *match.Matcher
	locks     *IdentityLocks

	// now is swappable for tests.
	now func() time.Time
}

// NewPipeline wires a Pipeline from its collaborators. locks may be shared
// with other pipelines when multiple surfaces must agree on registration
// uniqueness; pass nil to create a private registry.
func NewPipeline(extractor extract.Provider, st store.Store, matcher *match.Matcher, locks *IdentityLocks) *Pipeline {
	if locks == nil {
		locks = NewIdentityLocks()
	}
	return &Pipeline{
		extractor: extractor,
		store:     st,
		matcher:   matcher,
		locks:     locks,
		now:       time.Now,
	}
}

// Locks returns the identity lock registry this pipeline serializes
// registrations with.
func (p *Pipeline) Locks() *IdentityLocks { return p.locks }

// Threshold returns the accept threshold of the underlying matcher.
func (p *Pipeline) Threshold() float64 { return p.matcher.Threshold() }

// Verify extracts an embedding from image and matches it against the
// identity's enrolled embeddings.
//
// Returns [ErrNotRegistered] when the identity has no records,
// [extract.ErrUndecodableImage] (wrapped) when the image cannot be decoded,
// and a plain error for matcher faults (corrupted or incompatible stored
// records) and store failures.
func (p *Pipeline) Verify(ctx context.Context, identity string, image []byte) (VerifyOutcome, error) {
	if identity == "" {
		return VerifyOutcome{}, store.ErrEmptyIdentity
	}

	query, err := p.extractor.Embed(ctx, image)
	if err != nil {
		return VerifyOutcome{}, fmt.Errorf("verify %q: %w", identity, err)
	}

	recs, err := p.store.List(ctx, identity)
	if err != nil {
		return VerifyOutcome{}, fmt.Errorf("verify %q: list embeddings: %w", identity, err)
	}
	if len(recs) == 0 {
		return VerifyOutcome{}, fmt.Errorf("verify %q: %w", identity, ErrNotRegistered)
	}

	candidates := make([][]float32, len(recs))
	for i, rec := range recs {
		candidates[i] = rec.Embedding
	}

	res, err := p.matcher.BestMatch(query, candidates)
	if err != nil {
		// ErrNoCandidates cannot happen here; dimension mismatches and
		// degenerate vectors indicate corrupted stored records and are
		// server faults.
		return VerifyOutcome{}, fmt.Errorf("verify %q: match: %w", identity, err)
	}

	return VerifyOutcome{
		Identity:   identity,
		Similarity: res.BestSimilarity,
		Verified:   res.Accepted,
	}, nil
}

// RegisterImage enrolls a single image for identity.
//
// The no-double-registration invariant is enforced here exactly as in
// [Pipeline.RegisterBatch]: the policy applies uniformly at every
// registration entry point. The existence check and the append run under the
// identity's lock so concurrent registrations cannot both succeed.
func (p *Pipeline) RegisterImage(ctx context.Context, identity string, image []byte) error {
	if identity == "" {
		return store.ErrEmptyIdentity
	}

	// Extraction happens outside the lock: it is the slow step and touches
	// no shared state.
	vec, err := p.extractor.Embed(ctx, image)
	if err != nil {
		return fmt.Errorf("register %q: %w", identity, err)
	}

	unlock := p.locks.Lock(identity)
	defer unlock()

	n, err := p.store.Count(ctx, identity)
	if err != nil {
		return fmt.Errorf("register %q: count embeddings: %w", identity, err)
	}
	if n > 0 {
		return fmt.Errorf("register %q: %w", identity, ErrAlreadyRegistered)
	}

	rec := store.Record{Identity: identity, Embedding: vec, CreatedAt: p.now().UTC()}
	if err := p.store.Append(ctx, rec); err != nil {
		return fmt.Errorf("register %q: append: %w", identity, err)
	}
	return nil
}

// RegisterBatch enrolls identity from several images as one atomic unit and
// returns the number of embeddings stored.
//
// The whole batch is rejected with [ErrAlreadyRegistered] when the identity
// already has records. Extraction is fail-fast: the first undecodable image
// aborts the batch, and the returned [BatchError] reports how many images
// succeeded before the failure. No partial writes ever reach the store.
func (p *Pipeline) RegisterBatch(ctx context.Context, identity string, images [][]byte) (int, error) {
	if identity == "" {
		return 0, store.ErrEmptyIdentity
	}
	if len(images) == 0 {
		return 0, fmt.Errorf("register %q: no images", identity)
	}

	unlock := p.locks.Lock(identity)
	defer unlock()

	n, err := p.store.Count(ctx, identity)
	if err != nil {
		return 0, fmt.Errorf("register %q: count embeddings: %w", identity, err)
	}
	if n > 0 {
		return 0, fmt.Errorf("register %q: %w", identity, ErrAlreadyRegistered)
	}

	vectors, processed, err := p.extractor.EmbedBatch(ctx, images)
	if err != nil {
		return 0, &BatchError{Processed: processed, Err: err}
	}

	createdAt := p.now().UTC()
	recs := make([]store.Record, len(vectors))
	for i, vec := range vectors {
		recs[i] = store.Record{Identity: identity, Embedding: vec, CreatedAt: createdAt}
	}
	if err := p.store.AppendBatch(ctx, recs); err != nil {
		return 0, fmt.Errorf("register %q: append batch: %w", identity, err)
	}
	return len(recs), nil
}

// DeleteIdentity removes every enrolled embedding for identity. Runs under
// the identity lock so it cannot interleave with an in-flight registration
// check.
func (p *Pipeline) DeleteIdentity(ctx context.Context, identity string) (int, error) {
	if identity == "" {
		return 0, store.ErrEmptyIdentity
	}

	unlock := p.locks.Lock(identity)
	defer unlock()

	n, err := p.store.DeleteIdentity(ctx, identity)
	if err != nil {
		return 0, fmt.Errorf("delete %q: %w", identity, err)
	}
	return n, nil
}
