// Package match implements the similarity scoring and accept/reject decision
// logic for face verification.
//
// Embeddings are compared with cosine similarity: dot(a,b) / (‖a‖·‖b‖). A
// verification attempt is accepted when the best similarity across all stored
// candidate embeddings exceeds the configured threshold.
//
// All functions are pure and safe for concurrent use.
package match

import (
	"errors"
	"fmt"
	"math"
	"sync/atomic"
)

// DefaultThreshold is the accept threshold applied when a [Matcher] is
// constructed with a zero threshold. The value matches the operating point
// of the deployed face model.
const DefaultThreshold = 0.6

var (
	// ErrDimensionMismatch is returned when two embeddings of different
	// lengths are compared. Stored and query embeddings must come from the
	// same extractor model.
	ErrDimensionMismatch = errors.New("match: embedding dimension mismatch")

	// ErrDegenerateVector is returned when an embedding has zero norm and
	// therefore has no defined direction to compare.
	ErrDegenerateVector = errors.New("match: zero-norm embedding cannot be scored")

	// ErrNoCandidates is returned by [Matcher.BestMatch] when the candidate
	// set is empty. Callers must map this to a "not registered" outcome
	// rather than treating it as a scoring fault.
	ErrNoCandidates = errors.New("match: no candidate embeddings")
)

// Result is the outcome of matching a query embedding against a candidate set.
type Result struct {
	// BestSimilarity is the highest cosine similarity observed across all
	// candidates. Range is [-1, 1] in theory, [0, 1] for real face embeddings.
	BestSimilarity float64

	// Accepted reports whether BestSimilarity exceeded the threshold.
	Accepted bool

	// BestIndex is the position of the winning candidate in the input slice.
	// On equal similarity the earliest candidate wins, so results are
	// deterministic for a fixed candidate order.
	BestIndex int
}

// Score computes the cosine similarity between two embeddings.
//
// Returns [ErrDimensionMismatch] if the lengths differ and
// [ErrDegenerateVector] if either vector has zero norm.
func Score(a, b []float32) (float64, error) {
	if len(a) != len(b) {
		return 0, fmt.Errorf("%w: %d vs %d", ErrDimensionMismatch, len(a), len(b))
	}

	var dot, normA, normB float64
	for i := range a {
		av, bv := float64(a[i]), float64(b[i])
		dot += av * bv
		normA += av * av
		normB += bv * bv
	}
	if normA == 0 || normB == 0 {
		return 0, ErrDegenerateVector
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB)), nil
}

// Matcher applies an accept threshold to cosine similarity scores. The zero
// value uses [DefaultThreshold]. The threshold may be updated at runtime with
// [Matcher.SetThreshold]; in-flight matches use whichever value they observe.
type Matcher struct {
	// math.Float64bits of the threshold; zero selects DefaultThreshold.
	threshold atomic.Uint64
}

// New creates a Matcher with the given accept threshold. A threshold of 0
// selects [DefaultThreshold].
func New(threshold float64) *Matcher {
	m := &Matcher{}
	m.SetThreshold(threshold)
	return m
}

// Threshold returns the accept threshold in use.
func (m *Matcher) Threshold() float64 {
	bits := m.threshold.Load()
	if bits == 0 {
		return DefaultThreshold
	}
	return math.Float64frombits(bits)
}

// SetThreshold replaces the accept threshold. A threshold of 0 selects
// [DefaultThreshold]. Safe to call concurrently with BestMatch.
func (m *Matcher) SetThreshold(threshold float64) {
	m.threshold.Store(math.Float64bits(threshold))
}

// BestMatch scores query against every candidate and returns the best result.
// Acceptance requires the best similarity to be strictly greater than the
// threshold.
//
// Returns [ErrNoCandidates] for an empty candidate set. A dimension mismatch
// or degenerate vector among the candidates indicates a corrupted or
// incompatible stored record and is surfaced as an error, never coerced to a
// similarity of zero.
func (m *Matcher) BestMatch(query []float32, candidates [][]float32) (Result, error) {
	if len(candidates) == 0 {
		return Result{}, ErrNoCandidates
	}

	best := Result{BestSimilarity: math.Inf(-1), BestIndex: -1}
	for i, cand := range candidates {
		sim, err := Score(query, cand)
		if err != nil {
			return Result{}, fmt.Errorf("candidate %d: %w", i, err)
		}
		if sim > best.BestSimilarity {
			best.BestSimilarity = sim
			best.BestIndex = i
		}
	}
	best.Accepted = best.BestSimilarity > m.Threshold()
	return best, nil
}
