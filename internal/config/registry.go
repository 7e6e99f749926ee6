package config

import (
	"errors"
	"fmt"
	"sync"

	"github.com/biosso/facegate/pkg/extract"
)

// ErrExtractorNotRegistered is returned by [Registry.CreateExtractor] when no
// factory has been registered under the requested extractor name.
var ErrExtractorNotRegistered = errors.New("config: extractor not registered")

// Registry maps extractor names to their constructor functions.
// It is safe for concurrent use.
type Registry struct {
	mu         sync.RWMutex
	extractors map[string]func(ExtractorConfig) (extract.Provider, error)
}

// NewRegistry returns an empty, ready-to-use [Registry].
func NewRegistry() *Registry {
	return &Registry{
		extractors: make(map[string]func(ExtractorConfig) (extract.Provider, error)),
	}
}

// RegisterExtractor registers an extractor factory under name.
// Subsequent calls with the same name overwrite the previous registration.
func (r *Registry) RegisterExtractor(name string, factory func(ExtractorConfig) (extract.Provider, error)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.extractors[name] = factory
}

// CreateExtractor instantiates an extractor using the factory registered under
// cfg.Name. Returns [ErrExtractorNotRegistered] if no factory has been
// registered for that name.
func (r *Registry) CreateExtractor(cfg ExtractorConfig) (extract.Provider, error) {
	r.mu.RLock()
	factory, ok := r.extractors[cfg.Name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrExtractorNotRegistered, cfg.Name)
	}
	return factory(cfg)
}
