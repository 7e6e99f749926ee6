package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"

	"gopkg.in/yaml.v3"
)

// ValidExtractorNames lists the extractor names the binary registers. Used
// by [Validate] to warn about unrecognised extractor names.
var ValidExtractorNames = []string{"remote"}

// Load reads the YAML configuration file at path and returns a validated [Config].
// It is a convenience wrapper around [LoadFromReader] and [Validate].
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r and validates the result.
// Useful in tests where configs are constructed from string literals.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := &Config{}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	// Server
	if cfg.Server.LogLevel != "" && !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}
	if cfg.Server.TLS != nil {
		if cfg.Server.TLS.CertFile == "" {
			errs = append(errs, errors.New("server.tls.cert_file is required when tls is configured"))
		}
		if cfg.Server.TLS.KeyFile == "" {
			errs = append(errs, errors.New("server.tls.key_file is required when tls is configured"))
		}
	}

	// Extractor
	if cfg.Extractor.Name != "" && !slices.Contains(ValidExtractorNames, cfg.Extractor.Name) {
		slog.Warn("unknown extractor name — may be a typo or an externally registered extractor",
			"name", cfg.Extractor.Name,
			"known", ValidExtractorNames,
		)
	}
	if cfg.Extractor.Name == "remote" && cfg.Extractor.BaseURL == "" {
		errs = append(errs, errors.New("extractor.base_url is required for the remote extractor"))
	}
	if cfg.Extractor.Dimensions < 0 {
		errs = append(errs, fmt.Errorf("extractor.dimensions %d must not be negative", cfg.Extractor.Dimensions))
	}
	if cfg.Extractor.TimeoutSeconds < 0 {
		errs = append(errs, fmt.Errorf("extractor.timeout_seconds %d must not be negative", cfg.Extractor.TimeoutSeconds))
	}

	// Store
	if cfg.Store.Driver != "" && !cfg.Store.Driver.IsValid() {
		errs = append(errs, fmt.Errorf("store.driver %q is invalid; valid values: postgres, memory", cfg.Store.Driver))
	}
	if cfg.Store.Driver == StorePostgres && cfg.Store.PostgresDSN == "" {
		errs = append(errs, errors.New("store.postgres_dsn is required for the postgres driver"))
	}
	if cfg.Store.Driver == StoreMemory {
		slog.Warn("store.driver is memory; enrolled identities will not survive a restart")
	}

	// Match
	if cfg.Match.AcceptThreshold != 0 {
		if cfg.Match.AcceptThreshold < -1 || cfg.Match.AcceptThreshold > 1 {
			errs = append(errs, fmt.Errorf("match.accept_threshold %.2f is out of range [-1, 1]", cfg.Match.AcceptThreshold))
		}
	}

	// Gateway
	if cfg.Gateway.MaxImageBytes < 0 {
		errs = append(errs, fmt.Errorf("gateway.max_image_bytes %d must not be negative", cfg.Gateway.MaxImageBytes))
	}
	if cfg.Gateway.FrameMinWidth < 0 || cfg.Gateway.FrameMinHeight < 0 {
		errs = append(errs, fmt.Errorf("gateway frame minimums %dx%d must not be negative", cfg.Gateway.FrameMinWidth, cfg.Gateway.FrameMinHeight))
	}
	if cfg.Gateway.FeedbackRate < 0 {
		errs = append(errs, fmt.Errorf("gateway.feedback_rate %.2f must not be negative", cfg.Gateway.FeedbackRate))
	}
	if cfg.Gateway.FeedbackBurst < 0 {
		errs = append(errs, fmt.Errorf("gateway.feedback_burst %d must not be negative", cfg.Gateway.FeedbackBurst))
	}
	if cfg.Gateway.IdleTimeoutSeconds < 0 {
		errs = append(errs, fmt.Errorf("gateway.idle_timeout_seconds %d must not be negative", cfg.Gateway.IdleTimeoutSeconds))
	}

	return errors.Join(errs...)
}
