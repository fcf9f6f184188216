// Package config provides configuration loading for mfeshell.
//
// Configuration is loaded from a YAML file, then overridden with
// environment variables prefixed MFESHELL_. All sections carry
// validated defaults so the daemon starts with no config file at all.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"time"

	"github.com/fyrsmithlabs/mfeshell/internal/logging"
)

// Errors for configuration validation.
var (
	ErrInvalidPort     = errors.New("server port must be between 1 and 65535")
	ErrMissingManifest = errors.New("manifest source is required")
	ErrInvalidCapacity = errors.New("cache capacity must be positive")
)

// Config holds the complete mfeshell configuration.
type Config struct {
	Server        ServerConfig        `koanf:"server"`
	Manifest      ManifestConfig      `koanf:"manifest"`
	Loader        LoaderConfig        `koanf:"loader"`
	Cache         CacheConfig         `koanf:"cache"`
	NATS          NATSConfig          `koanf:"nats"`
	Observability ObservabilityConfig `koanf:"observability"`
	Logging       logging.Config      `koanf:"logging"`
	Shell         ShellConfig         `koanf:"shell"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Port            int           `koanf:"port"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout"`

	// NavigateRate limits POST /api/v1/navigate calls per second.
	NavigateRate float64 `koanf:"navigate_rate"`
	// NavigateBurst is the rate limiter burst for navigate calls.
	NavigateBurst int `koanf:"navigate_burst"`
}

// ManifestConfig holds manifest loading configuration.
type ManifestConfig struct {
	// Source is a file path or an http(s) URL to the manifest JSON.
	Source string `koanf:"source"`

	// Watch enables wholesale reload when the manifest file changes.
	// Only effective for file sources.
	Watch bool `koanf:"watch"`

	// StrictRoutes rejects manifests where two registrations claim
	// overlapping route prefixes instead of resolving by list order.
	StrictRoutes bool `koanf:"strict_routes"`

	// FetchTimeout bounds HTTP manifest fetches.
	FetchTimeout time.Duration `koanf:"fetch_timeout"`
}

// LoaderConfig holds module loader configuration.
type LoaderConfig struct {
	// ArtifactDir is the scratch directory for downloaded module artifacts.
	ArtifactDir string `koanf:"artifact_dir"`

	// ResolveTimeout bounds a single artifact fetch + load.
	ResolveTimeout time.Duration `koanf:"resolve_timeout"`

	// MaxIdle evicts a deactivated module's loaded code after this long.
	// Zero keeps handles for the life of the process.
	MaxIdle time.Duration `koanf:"max_idle"`
}

// CacheConfig holds the per-module state cache configuration.
type CacheConfig struct {
	// Capacity is the total entry budget shared by all module namespaces.
	Capacity int `koanf:"capacity"`

	// TTL is the default entry time-to-live.
	TTL time.Duration `koanf:"ttl"`
}

// NATSConfig holds the event bus bridge configuration.
type NATSConfig struct {
	Enabled bool   `koanf:"enabled"`
	URL     string `koanf:"url"`

	// SubjectPrefix prefixes bridged event subjects.
	SubjectPrefix string `koanf:"subject_prefix"`
}

// ObservabilityConfig holds telemetry configuration.
type ObservabilityConfig struct {
	EnableTelemetry bool   `koanf:"enable_telemetry"`
	ServiceName     string `koanf:"service_name"`
	OTLPEndpoint    string `koanf:"otlp_endpoint"`
	OTLPProtocol    string `koanf:"otlp_protocol"` // "grpc" or "http/protobuf"
	Insecure        bool   `koanf:"insecure"`
	SampleRate      float64 `koanf:"sample_rate"`
}

// ShellConfig holds shell controller configuration.
type ShellConfig struct {
	// Container is the mount target id modules render into.
	Container string `koanf:"container"`

	// Theme is the initial theme placed in the shared state store.
	Theme string `koanf:"theme"`

	// FeatureFlags enables feature-flag-gated manifest registrations.
	FeatureFlags map[string]bool `koanf:"feature_flags"`
}

// Default returns the configuration defaults.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Port:            9280,
			ShutdownTimeout: 10 * time.Second,
			NavigateRate:    5,
			NavigateBurst:   10,
		},
		Manifest: ManifestConfig{
			Source:       "mfe-manifest.json",
			Watch:        true,
			StrictRoutes: false,
			FetchTimeout: 10 * time.Second,
		},
		Loader: LoaderConfig{
			ArtifactDir:    "",
			ResolveTimeout: 30 * time.Second,
			MaxIdle:        0,
		},
		Cache: CacheConfig{
			Capacity: 50,
			TTL:      5 * time.Minute,
		},
		NATS: NATSConfig{
			Enabled:       false,
			URL:           "nats://localhost:4222",
			SubjectPrefix: "mfe.events",
		},
		Observability: ObservabilityConfig{
			EnableTelemetry: false,
			ServiceName:     "mfeshell",
			OTLPEndpoint:    "localhost:4317",
			OTLPProtocol:    "grpc",
			Insecure:        true,
			SampleRate:      1.0,
		},
		Logging: *logging.DefaultConfig(),
		Shell: ShellConfig{
			Container: "shell-root",
			Theme:     "light",
		},
	}
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("%w: got %d", ErrInvalidPort, c.Server.Port)
	}
	if c.Manifest.Source == "" {
		return ErrMissingManifest
	}
	if u, err := url.Parse(c.Manifest.Source); err == nil && u.Scheme != "" {
		if u.Scheme != "http" && u.Scheme != "https" && u.Scheme != "file" {
			return fmt.Errorf("manifest source scheme %q not supported", u.Scheme)
		}
	}
	if c.Cache.Capacity <= 0 {
		return fmt.Errorf("%w: got %d", ErrInvalidCapacity, c.Cache.Capacity)
	}
	if c.Cache.TTL <= 0 {
		return fmt.Errorf("cache ttl must be positive, got %s", c.Cache.TTL)
	}
	if c.Observability.OTLPProtocol != "grpc" && c.Observability.OTLPProtocol != "http/protobuf" {
		return fmt.Errorf("otlp protocol %q not supported", c.Observability.OTLPProtocol)
	}
	if err := c.Logging.Validate(); err != nil {
		return fmt.Errorf("logging: %w", err)
	}
	return nil
}
