package duck

import (
	"context"
	"errors"
	"fmt"
	"os"
)

const snapshotAlias = "sensorlake_snapshot"

// Snapshot copies every table, sequence and index of db into a new database file at
// dest. The copy is taken inside one DuckDB statement, so it is consistent even while
// writers are active on db.
func Snapshot(ctx context.Context, db DB, dest string) error {
	if dest == "" {
		return errors.New("snapshot destination is required")
	}
	if _, err := os.Stat(dest); err == nil {
		return fmt.Errorf("snapshot destination %s already exists", dest)
	}

	conn, err := db.Conn(ctx)
	if err != nil {
		return err
	}
	defer conn.Close()

	if _, err := conn.ExecContext(ctx, fmt.Sprintf("ATTACH %s AS %s", quoteString(dest), snapshotAlias)); err != nil {
		return fmt.Errorf("failed to attach snapshot database: %w", err)
	}
	_, copyErr := conn.ExecContext(ctx, fmt.Sprintf("COPY FROM DATABASE %s TO %s", QuoteIdent(db.Catalog()), snapshotAlias))
	if _, err := conn.ExecContext(ctx, "DETACH "+snapshotAlias); err != nil && copyErr == nil {
		return fmt.Errorf("failed to detach snapshot database: %w", err)
	}
	if copyErr != nil {
		return fmt.Errorf("failed to copy database: %w", copyErr)
	}
	return nil
}
