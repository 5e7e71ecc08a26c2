package server

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/malbeclabs/sensorlake/internal/querier"
	"github.com/malbeclabs/sensorlake/internal/store"
)

const (
	defaultListenAddr        = "0.0.0.0:8000"
	defaultReadHeaderTimeout = 5 * time.Second
	defaultShutdownTimeout   = 10 * time.Second
	defaultMaxBodySize       = int64(1 << 20)
)

type Config struct {
	Logger *slog.Logger

	Store   *store.Store
	Querier *querier.Querier

	Version           string
	ListenAddr        string
	WebhookSecret     string
	MaxBodySize       int64
	ReadHeaderTimeout time.Duration
	ShutdownTimeout   time.Duration
}

func (c *Config) Validate() error {
	if c.Logger == nil {
		return fmt.Errorf("logger is required")
	}
	if c.Store == nil {
		return fmt.Errorf("store is required")
	}
	if c.Querier == nil {
		return fmt.Errorf("querier is required")
	}
	if c.Version == "" {
		c.Version = "dev"
	}
	if c.ListenAddr == "" {
		c.ListenAddr = defaultListenAddr
	}
	if c.MaxBodySize == 0 {
		c.MaxBodySize = defaultMaxBodySize
	}
	if c.ReadHeaderTimeout == 0 {
		c.ReadHeaderTimeout = defaultReadHeaderTimeout
	}
	if c.ShutdownTimeout == 0 {
		c.ShutdownTimeout = defaultShutdownTimeout
	}
	return nil
}
