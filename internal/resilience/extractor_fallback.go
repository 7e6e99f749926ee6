package resilience

import (
	"context"
	"errors"

	"github.com/biosso/facegate/pkg/extract"
)

// ExtractorFallback implements [extract.Provider] with automatic failover
// across multiple inference sidecars. Each sidecar has its own circuit
// breaker; when the primary fails or its breaker is open, the next healthy
// fallback is tried.
//
// [extract.ErrUndecodableImage] is a client fault, not a sidecar failure: it
// neither trips a breaker nor triggers failover, since every sidecar would
// reject the same image.
type ExtractorFallback struct {
	group *FallbackGroup[extract.Provider]
}

// Compile-time interface assertion.
var _ extract.Provider = (*ExtractorFallback)(nil)

// NewExtractorFallback creates an [ExtractorFallback] with primary as the
// preferred sidecar.
func NewExtractorFallback(primary extract.Provider, primaryName string, cfg FallbackConfig) *ExtractorFallback {
	return &ExtractorFallback{
		group: NewFallbackGroup(primary, primaryName, cfg),
	}
}

// AddFallback registers an additional extractor as a fallback.
func (f *ExtractorFallback) AddFallback(name string, provider extract.Provider) {
	f.group.AddFallback(name, provider)
}

// embedResult separates sidecar failures (which drive failover) from
// per-image decode faults (which are definitive outcomes).
type embedResult struct {
	vectors   [][]float32
	processed int
	imgErr    error
}

// Embed extracts an embedding via the first healthy sidecar.
func (f *ExtractorFallback) Embed(ctx context.Context, image []byte) ([]float32, error) {
	res, err := ExecuteWithResult(f.group, func(p extract.Provider) (embedResult, error) {
		vec, err := p.Embed(ctx, image)
		if errors.Is(err, extract.ErrUndecodableImage) {
			return embedResult{imgErr: err}, nil
		}
		if err != nil {
			return embedResult{}, err
		}
		return embedResult{vectors: [][]float32{vec}}, nil
	})
	if err != nil {
		return nil, err
	}
	if res.imgErr != nil {
		return nil, res.imgErr
	}
	return res.vectors[0], nil
}

// EmbedBatch extracts a batch via the first healthy sidecar, preserving the
// fail-fast partial-progress contract of the underlying provider.
func (f *ExtractorFallback) EmbedBatch(ctx context.Context, images [][]byte) ([][]float32, int, error) {
	res, err := ExecuteWithResult(f.group, func(p extract.Provider) (embedResult, error) {
		vectors, processed, err := p.EmbedBatch(ctx, images)
		if errors.Is(err, extract.ErrUndecodableImage) {
			return embedResult{processed: processed, imgErr: err}, nil
		}
		if err != nil {
			return embedResult{}, err
		}
		return embedResult{vectors: vectors, processed: processed}, nil
	})
	if err != nil {
		return nil, 0, err
	}
	if res.imgErr != nil {
		return nil, res.processed, res.imgErr
	}
	return res.vectors, res.processed, nil
}

// Dimensions returns the primary sidecar's embedding dimensionality. This is
// static metadata and does not participate in failover; fallbacks must serve
// the same model family.
func (f *ExtractorFallback) Dimensions() int {
	if len(f.group.entries) > 0 {
		return f.group.entries[0].value.Dimensions()
	}
	return 0
}

// ModelID returns the primary sidecar's model identifier.
func (f *ExtractorFallback) ModelID() string {
	if len(f.group.entries) > 0 {
		return f.group.entries[0].value.ModelID()
	}
	return ""
}
