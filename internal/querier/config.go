package querier

import (
	"fmt"
	"log/slog"

	"github.com/malbeclabs/sensorlake/internal/duck"
)

const (
	DefaultHistoryLimit     = 50
	DefaultAlertsLimit      = 25
	DefaultSensorQueryLimit = 100
	DefaultEventLogLimit    = 20
	DefaultGatewayLimit     = 20

	// MaxLimit caps every caller-supplied row limit.
	MaxLimit = 1000
)

type Config struct {
	Logger *slog.Logger
	DB     duck.DB
}

func (cfg *Config) Validate() error {
	if cfg.Logger == nil {
		return fmt.Errorf("logger is required")
	}
	if cfg.DB == nil {
		return fmt.Errorf("database is required")
	}
	return nil
}

// clampLimit applies the default for non-positive limits and caps the rest at MaxLimit.
func clampLimit(limit, def int) int {
	if limit <= 0 {
		return def
	}
	if limit > MaxLimit {
		return MaxLimit
	}
	return limit
}
