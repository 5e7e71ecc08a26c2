package querier

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"
)

// Querier answers read-only questions about the event store. Each call opens its own
// connection; no state is kept between calls.
type Querier struct {
	log *slog.Logger
	cfg Config
}

func New(cfg Config) (*Querier, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("failed to validate querier config: %w", err)
	}
	return &Querier{
		log: cfg.Logger,
		cfg: cfg,
	}, nil
}

type scanner interface {
	Scan(dest ...any) error
}

// queryRows runs query and converts every row with scan.
func queryRows[T any](ctx context.Context, q *Querier, scan func(scanner) (T, error), query string, args ...any) ([]T, error) {
	conn, err := q.cfg.DB.Conn(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get connection: %w", err)
	}
	defer conn.Close()

	rows, err := conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to execute query: %w", err)
	}
	defer rows.Close()

	var out []T
	for rows.Next() {
		v, err := scan(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		out = append(out, v)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read rows: %w", err)
	}
	return out, nil
}

func (q *Querier) count(ctx context.Context, query string, args ...any) (int64, error) {
	conn, err := q.cfg.DB.Conn(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to get connection: %w", err)
	}
	defer conn.Close()

	var n int64
	if err := conn.QueryRowContext(ctx, query, args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count rows: %w", err)
	}
	return n, nil
}

func str(ns sql.NullString) string {
	if !ns.Valid {
		return ""
	}
	return ns.String
}

func intPtr(n sql.NullInt64) *int64 {
	if !n.Valid {
		return nil
	}
	v := n.Int64
	return &v
}

func floatPtr(n sql.NullFloat64) *float64 {
	if !n.Valid {
		return nil
	}
	v := n.Float64
	return &v
}

func timeOrZero(t sql.NullTime) time.Time {
	if !t.Valid {
		return time.Time{}
	}
	return t.Time.UTC()
}
