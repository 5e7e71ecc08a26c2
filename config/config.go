package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

const (
	EnvDBFile              = "SENSORLAKE_DB_FILE"
	EnvWebhookSecret       = "SENSORLAKE_WEBHOOK_SECRET"
	EnvListenAddr          = "SENSORLAKE_LISTEN_ADDR"
	EnvMetricsAddr         = "SENSORLAKE_METRICS_ADDR"
	EnvMaxBodySize         = "SENSORLAKE_MAX_BODY_SIZE"
	EnvCheckpointThreshold = "SENSORLAKE_CHECKPOINT_THRESHOLD"
	EnvShutdownTimeout     = "SENSORLAKE_SHUTDOWN_TIMEOUT"

	DefaultDBFile              = "sensorlake.duckdb"
	DefaultListenAddr          = "0.0.0.0:8000"
	DefaultMaxBodySize         = int64(1 << 20)
	DefaultCheckpointThreshold = "16MB"
	DefaultShutdownTimeout     = 10 * time.Second
)

var (
	ErrInvalidMaxBodySize     = errors.New("invalid max body size")
	ErrInvalidShutdownTimeout = errors.New("invalid shutdown timeout")
)

// Config is built once at startup and handed to every component that needs it.
type Config struct {
	// DBFile is the DuckDB database file. An empty value means in-memory.
	DBFile string

	// WebhookSecret, when set, must be presented on every webhook delivery.
	WebhookSecret string

	ListenAddr          string
	MetricsAddr         string
	MaxBodySize         int64
	CheckpointThreshold string
	ShutdownTimeout     time.Duration
}

// AuthEnabled reports whether webhook deliveries must carry the shared secret.
func (c *Config) AuthEnabled() bool {
	return c.WebhookSecret != ""
}

// Load reads an optional .env file from the working directory and then builds the
// config from the process environment.
func Load() (*Config, error) {
	_ = godotenv.Load()
	return FromLookup(os.Getenv)
}

// FromLookup builds the config from the given variable lookup, applying defaults for
// anything unset.
func FromLookup(getenv func(string) string) (*Config, error) {
	cfg := &Config{
		DBFile:              getenv(EnvDBFile),
		WebhookSecret:       getenv(EnvWebhookSecret),
		ListenAddr:          getenv(EnvListenAddr),
		MetricsAddr:         getenv(EnvMetricsAddr),
		CheckpointThreshold: getenv(EnvCheckpointThreshold),
	}
	if cfg.DBFile == "" {
		cfg.DBFile = DefaultDBFile
	}
	if cfg.ListenAddr == "" {
		cfg.ListenAddr = DefaultListenAddr
	}
	if cfg.CheckpointThreshold == "" {
		cfg.CheckpointThreshold = DefaultCheckpointThreshold
	}

	cfg.MaxBodySize = DefaultMaxBodySize
	if v := getenv(EnvMaxBodySize); v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil || n <= 0 {
			return nil, fmt.Errorf("%w: %q", ErrInvalidMaxBodySize, v)
		}
		cfg.MaxBodySize = n
	}

	cfg.ShutdownTimeout = DefaultShutdownTimeout
	if v := getenv(EnvShutdownTimeout); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil || d <= 0 {
			return nil, fmt.Errorf("%w: %q", ErrInvalidShutdownTimeout, v)
		}
		cfg.ShutdownTimeout = d
	}

	return cfg, nil
}
