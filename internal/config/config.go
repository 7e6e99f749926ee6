// Package config provides the configuration schema, loader, and extractor
// registry for the FaceGate service.
package config

// LogLevel controls log verbosity for the FaceGate server.
type LogLevel string

const (
	LogDebug LogLevel = "debug"
	LogInfo  LogLevel = "info"
	LogWarn  LogLevel = "warn"
	LogError LogLevel = "error"
)

// IsValid reports whether l is a recognised log level.
func (l LogLevel) IsValid() bool {
	switch l {
	case LogDebug, LogInfo, LogWarn, LogError:
		return true
	}
	return false
}

// StoreDriver selects the embedding store backend.
type StoreDriver string

const (
	// StorePostgres persists embeddings in PostgreSQL with pgvector.
	StorePostgres StoreDriver = "postgres"

	// StoreMemory keeps embeddings in process memory. Development only;
	// nothing survives a restart.
	StoreMemory StoreDriver = "memory"
)

// IsValid reports whether d is a recognised store driver.
func (d StoreDriver) IsValid() bool {
	return d == StorePostgres || d == StoreMemory
}

// Config is the root configuration structure for FaceGate.
// It is typically loaded from a YAML file using [Load] or [LoadFromReader].
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Extractor ExtractorConfig `yaml:"extractor"`
	Store     StoreConfig     `yaml:"store"`
	Match     MatchConfig     `yaml:"match"`
	Gateway   GatewayConfig   `yaml:"gateway"`
}

// ServerConfig holds network and logging settings for the FaceGate server.
type ServerConfig struct {
	// ListenAddr is the TCP address the server listens on (e.g., ":5001").
	ListenAddr string `yaml:"listen_addr"`

	// LogLevel controls verbosity.
	LogLevel LogLevel `yaml:"log_level"`

	// TLS configures TLS for the server. When nil, the server runs plain HTTP.
	TLS *TLSConfig `yaml:"tls"`
}

// TLSConfig holds TLS certificate paths for enabling HTTPS.
type TLSConfig struct {
	// CertFile is the path to the PEM-encoded TLS certificate.
	CertFile string `yaml:"cert_file"`

	// KeyFile is the path to the PEM-encoded TLS private key.
	KeyFile string `yaml:"key_file"`
}

// ExtractorConfig selects and configures the embedding extractor backend.
// The Name field is used to look up the constructor in the [Registry].
type ExtractorConfig struct {
	// Name selects the registered extractor implementation (e.g., "remote").
	Name string `yaml:"name"`

	// BaseURL is the address of the inference sidecar for the remote
	// extractor.
	BaseURL string `yaml:"base_url"`

	// Model names the deployed face model (e.g., "buffalo_sc/w600k_mbf").
	Model string `yaml:"model"`

	// Dimensions is the embedding vector length the model produces.
	Dimensions int `yaml:"dimensions"`

	// TimeoutSeconds bounds each extraction request. Zero means no timeout.
	TimeoutSeconds int `yaml:"timeout_seconds"`
}

// StoreConfig configures the embedding store.
type StoreConfig struct {
	// Driver selects the backend.
	Driver StoreDriver `yaml:"driver"`

	// PostgresDSN is the connection string for the postgres driver.
	PostgresDSN string `yaml:"postgres_dsn"`
}

// MatchConfig holds the similarity decision settings.
type MatchConfig struct {
	// AcceptThreshold is the cosine similarity a verification must exceed
	// to be accepted. Zero selects the built-in default of 0.6.
	AcceptThreshold float64 `yaml:"accept_threshold"`
}

// GatewayConfig holds limits and tuning for the connection surfaces.
type GatewayConfig struct {
	// MaxImageBytes caps the size of a single submitted image. Zero selects
	// the built-in default of 8 MiB.
	MaxImageBytes int64 `yaml:"max_image_bytes"`

	// FrameMinWidth and FrameMinHeight are the minimum dimensions a live
	// preview frame must have to pass the quality check. Zero selects the
	// built-in default of 50.
	FrameMinWidth  int `yaml:"frame_min_width"`
	FrameMinHeight int `yaml:"frame_min_height"`

	// FeedbackRate limits quality-feedback responses per second on one
	// feedback connection. Zero selects the built-in default of 10.
	FeedbackRate float64 `yaml:"feedback_rate"`

	// FeedbackBurst is the burst allowance for the feedback limiter. Zero
	// selects the built-in default of 5.
	FeedbackBurst int `yaml:"feedback_burst"`

	// IdleTimeoutSeconds closes a protocol connection after this much
	// inactivity. Zero disables the idle timeout.
	IdleTimeoutSeconds int `yaml:"idle_timeout_seconds"`
}
