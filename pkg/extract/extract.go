// Package extract defines the Provider interface for face embedding backends.
//
// An extractor wraps a face recognition model that maps raw image bytes to a
// dense float32 vector. The model itself runs out of process (typically an
// ONNX inference sidecar); this package only specifies the boundary the
// gateway calls through.
//
// Implementations must be safe for concurrent use.
package extract

import (
	"context"
	"errors"
)

// ErrUndecodableImage is returned when the submitted bytes cannot be decoded
// as an image. This is a caller error, always recoverable: the gateway
// reports it on the same connection and nothing is stored.
var ErrUndecodableImage = errors.New("extract: image bytes could not be decoded")

// Provider is the abstraction over any face embedding backend.
//
// All embedding vectors returned by a single Provider instance share the same
// dimensionality (returned by Dimensions). Callers must not mix vectors from
// different Provider instances in the same similarity computation unless they
// have verified that both use the same model.
type Provider interface {
	// Embed computes the embedding vector for a single face image. Returns a
	// float32 slice of length Dimensions(), [ErrUndecodableImage] if the
	// bytes are not a valid image, or another error if the backend fails or
	// ctx is cancelled.
	Embed(ctx context.Context, image []byte) ([]float32, error)

	// EmbedBatch computes embedding vectors for a slice of images. The
	// returned slice has the same length as images and the i-th element
	// corresponds to images[i].
	//
	// On error, the second return value reports how many leading images were
	// embedded successfully before the failure; the vectors for those images
	// are not returned. Bulk registration uses this for partial-success
	// reporting under its fail-fast policy.
	EmbedBatch(ctx context.Context, images [][]byte) (vectors [][]float32, processed int, err error)

	// Dimensions returns the fixed length of every embedding vector produced
	// by this provider. Constant for the lifetime of the instance.
	Dimensions() int

	// ModelID returns the backend-specific model identifier (e.g.,
	// "buffalo_sc/w600k_mbf"). Useful for logging and for ensuring stored
	// embeddings and queries come from the same model.
	ModelID() string
}
