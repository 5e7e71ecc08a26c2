package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jonboulle/clockwork"
	"github.com/malbeclabs/sensorlake/internal/duck"
)

type StoreConfig struct {
	Logger *slog.Logger
	DB     duck.DB
	Clock  clockwork.Clock
}

func (cfg *StoreConfig) Validate() error {
	if cfg.Logger == nil {
		return errors.New("logger is required")
	}
	if cfg.DB == nil {
		return errors.New("db is required")
	}
	if cfg.Clock == nil {
		cfg.Clock = clockwork.NewRealClock()
	}
	return nil
}

// Store is the write side of the event store. Every delivery is persisted in its own
// transaction; nothing is cached between calls.
type Store struct {
	log   *slog.Logger
	cfg   StoreConfig
	db    duck.DB
	clock clockwork.Clock
}

func NewStore(cfg StoreConfig) (*Store, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Store{
		log:   cfg.Logger,
		cfg:   cfg,
		db:    cfg.DB,
		clock: cfg.Clock,
	}, nil
}

func (s *Store) CreateTablesIfNotExists(ctx context.Context) error {
	conn, err := s.db.Conn(ctx)
	if err != nil {
		return fmt.Errorf("failed to get connection: %w", err)
	}
	defer conn.Close()

	for _, stmt := range schema {
		if _, err := conn.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to create schema: %w", err)
		}
	}
	return nil
}

// Ping checks that the store accepts queries.
func (s *Store) Ping(ctx context.Context) error {
	conn, err := s.db.Conn(ctx)
	if err != nil {
		return fmt.Errorf("failed to get connection: %w", err)
	}
	defer conn.Close()

	var one int
	if err := conn.QueryRowContext(ctx, "SELECT 1").Scan(&one); err != nil {
		return fmt.Errorf("failed to query store: %w", err)
	}
	return nil
}

// nullable turns an optional field into a bind argument, nil meaning SQL NULL.
func nullable[T any](p *T) any {
	if p == nil {
		return nil
	}
	return *p
}
