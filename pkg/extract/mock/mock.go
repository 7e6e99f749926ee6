// Package mock provides a test double for the extract.Provider interface.
//
// Use Provider to return pre-canned embedding vectors without an inference
// sidecar. Vectors can be keyed by image content, so a test can map specific
// image payloads to specific embeddings:
//
//	p := &mock.Provider{
//	    DimensionsValue: 3,
//	    VectorsByImage: map[string][]float32{
//	        "face-a": {1, 0, 0},
//	        "face-b": {0, 1, 0},
//	    },
//	}
package mock

import (
	"context"
	"sync"

	"github.com/biosso/facegate/pkg/extract"
)

// Compile-time interface check.
var _ extract.Provider = (*Provider)(nil)

// Provider is a mock implementation of extract.Provider.
//
// Resolution order for each image: if EmbedErr is set it is returned; if the
// image content appears in UndecodableImages, [extract.ErrUndecodableImage]
// is returned; if VectorsByImage has an entry for the content it is used;
// otherwise EmbedResult is returned.
type Provider struct {
	mu sync.Mutex

	// --- Configurable responses ---

	// EmbedResult is the fallback vector returned when no keyed entry matches.
	EmbedResult []float32

	// VectorsByImage maps image payloads (as strings) to embedding vectors.
	VectorsByImage map[string][]float32

	// UndecodableImages lists image payloads that fail with ErrUndecodableImage.
	UndecodableImages map[string]bool

	// EmbedErr, if non-nil, is returned by every Embed call.
	EmbedErr error

	// DimensionsValue is returned by Dimensions.
	DimensionsValue int

	// ModelIDValue is returned by ModelID. Defaults to "mock-face-model".
	ModelIDValue string

	// --- Call records ---

	// EmbedCalls records every image passed to Embed or EmbedBatch, in order.
	EmbedCalls [][]byte
}

func (p *Provider) resolve(image []byte) ([]float32, error) {
	if p.EmbedErr != nil {
		return nil, p.EmbedErr
	}
	if p.UndecodableImages[string(image)] {
		return nil, extract.ErrUndecodableImage
	}
	if vec, ok := p.VectorsByImage[string(image)]; ok {
		return vec, nil
	}
	return p.EmbedResult, nil
}

// Embed records the call and resolves the configured vector for image.
func (p *Provider) Embed(_ context.Context, image []byte) ([]float32, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.EmbedCalls = append(p.EmbedCalls, image)
	return p.resolve(image)
}

// EmbedBatch resolves each image in order, stopping at the first failure and
// reporting how many leading images succeeded.
func (p *Provider) EmbedBatch(_ context.Context, images [][]byte) ([][]float32, int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	vectors := make([][]float32, 0, len(images))
	for i, img := range images {
		p.EmbedCalls = append(p.EmbedCalls, img)
		vec, err := p.resolve(img)
		if err != nil {
			return nil, i, err
		}
		vectors = append(vectors, vec)
	}
	return vectors, len(images), nil
}

// Dimensions returns DimensionsValue.
func (p *Provider) Dimensions() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.DimensionsValue
}

// ModelID returns ModelIDValue, or "mock-face-model" when unset.
func (p *Provider) ModelID() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.ModelIDValue == "" {
		return "mock-face-model"
	}
	return p.ModelIDValue
}

// Reset clears all recorded calls.
func (p *Provider) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.EmbedCalls = nil
}
