// Package config defines configuration parsing and helpers.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v10"
)

// Config holds all application configuration parsed from environment variables.
type Config struct {
	AppEnv string `env:"APP_ENV" envDefault:"dev"`
	Port   int    `env:"PORT" envDefault:"8080"`

	// Engine
	AllowAnonymous bool `env:"ALLOW_ANONYMOUS" envDefault:"true"`
	// ConvertMode selects a one-off reinterpretation of persisted counters
	// on boot. "to_tokens" rereads chars-era usage and contribution totals
	// as tokens, writes the snapshot once and exits.
	ConvertMode string `env:"CONVERT_MODE" envDefault:""`

	// Persistence
	DataDir          string        `env:"DATA_DIR" envDefault:"db"`
	SnapshotInterval time.Duration `env:"SNAPSHOT_INTERVAL" envDefault:"3s"`
	ReapInterval     time.Duration `env:"REAP_INTERVAL" envDefault:"60s"`

	// Model oracle
	ModelReferenceFile  string        `env:"MODEL_REFERENCE_FILE"`
	HFBaseURL           string        `env:"HF_BASE_URL" envDefault:"https://huggingface.co"`
	HFTimeout           time.Duration `env:"HF_TIMEOUT" envDefault:"10s"`
	HFBackoffMaxElapsed time.Duration `env:"HF_BACKOFF_MAX_ELAPSED" envDefault:"15s"`

	// HTTP server
	CORSAllowOrigins string `env:"CORS_ALLOW_ORIGINS" envDefault:"*"`
	// RateLimitPerMin is per client IP on mutating endpoints. Workers poll
	// every few seconds, so the ceiling stays well above one rig's rate.
	RateLimitPerMin       int           `env:"RATE_LIMIT_PER_MIN" envDefault:"300"`
	ServerShutdownTimeout time.Duration `env:"SERVER_SHUTDOWN_TIMEOUT" envDefault:"30s"`
	HTTPReadTimeout       time.Duration `env:"HTTP_READ_TIMEOUT" envDefault:"15s"`
	HTTPWriteTimeout      time.Duration `env:"HTTP_WRITE_TIMEOUT" envDefault:"30s"`
	HTTPIdleTimeout       time.Duration `env:"HTTP_IDLE_TIMEOUT" envDefault:"60s"`

	// Throughput drift monitor
	DriftWindow    int     `env:"DRIFT_WINDOW" envDefault:"10"`
	DriftThreshold float64 `env:"DRIFT_THRESHOLD" envDefault:"0.5"`

	// Telemetry
	OTLPEndpoint    string `env:"OTEL_EXPORTER_OTLP_ENDPOINT" envDefault:""`
	OTELServiceName string `env:"OTEL_SERVICE_NAME" envDefault:"textgen-horde"`
}

// Load parses environment variables into a Config.
func Load() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("op=config.Load: %w", err)
	}
	return cfg, nil
}

// Addr renders the listen address for the HTTP server.
func (c Config) Addr() string { return fmt.Sprintf(":%d", c.Port) }

// IsDev reports whether the app is running in development mode.
func (c Config) IsDev() bool { return strings.ToLower(c.AppEnv) == "dev" }

// IsProd reports whether the app is running in production mode.
func (c Config) IsProd() bool { return strings.ToLower(c.AppEnv) == "prod" }

// IsTest reports whether the app is running under tests.
func (c Config) IsTest() bool { return strings.ToLower(c.AppEnv) == "test" }
