package duck_test

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/malbeclabs/sensorlake/internal/duck"
	"github.com/stretchr/testify/require"
)

var testLogger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelDebug}))

func TestSensorLake_Duck_NewDB_InMemory(t *testing.T) {
	t.Parallel()

	db, err := duck.NewDB(t.Context(), "", testLogger)
	require.NoError(t, err)
	defer db.Close()

	require.Equal(t, "memory", db.Catalog())
	require.Equal(t, "main", db.Schema())
	require.Empty(t, db.Path())

	conn, err := db.Conn(t.Context())
	require.NoError(t, err)
	defer conn.Close()

	var one int
	require.NoError(t, conn.QueryRowContext(t.Context(), "SELECT 1").Scan(&one))
	require.Equal(t, 1, one)
}

func TestSensorLake_Duck_NewDB_ReadOnlyRequiresFile(t *testing.T) {
	t.Parallel()

	_, err := duck.NewDB(t.Context(), ":memory:", testLogger, duck.WithReadOnly())
	require.Error(t, err)
}

func TestSensorLake_Duck_NewDB_FileReopenReadOnly(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "data.duckdb")

	db, err := duck.NewDB(t.Context(), path, testLogger, duck.WithCheckpointThreshold("1MB"))
	require.NoError(t, err)
	require.Equal(t, "data", db.Catalog())

	conn, err := db.Conn(t.Context())
	require.NoError(t, err)
	_, err = conn.ExecContext(t.Context(), "CREATE TABLE t (v INTEGER)")
	require.NoError(t, err)
	_, err = conn.ExecContext(t.Context(), "INSERT INTO t VALUES (1), (2)")
	require.NoError(t, err)
	require.NoError(t, conn.Close())
	require.NoError(t, db.Close())

	ro, err := duck.NewDB(t.Context(), path, testLogger, duck.WithReadOnly())
	require.NoError(t, err)
	defer ro.Close()

	conn, err = ro.Conn(t.Context())
	require.NoError(t, err)
	defer conn.Close()

	var n int
	require.NoError(t, conn.QueryRowContext(t.Context(), "SELECT count(*) FROM t").Scan(&n))
	require.Equal(t, 2, n)

	_, err = conn.ExecContext(t.Context(), "INSERT INTO t VALUES (3)")
	require.Error(t, err)
}

func TestSensorLake_Duck_Snapshot(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	db, err := duck.NewDB(t.Context(), filepath.Join(dir, "live.duckdb"), testLogger)
	require.NoError(t, err)
	defer db.Close()

	conn, err := db.Conn(t.Context())
	require.NoError(t, err)
	_, err = conn.ExecContext(t.Context(), "CREATE TABLE readings (device_id VARCHAR, value DOUBLE)")
	require.NoError(t, err)
	_, err = conn.ExecContext(t.Context(), "INSERT INTO readings VALUES ('d1', 21.5)")
	require.NoError(t, err)
	require.NoError(t, conn.Close())

	dest := filepath.Join(dir, "snap.duckdb")
	require.NoError(t, duck.Snapshot(t.Context(), db, dest))
	require.ErrorContains(t, duck.Snapshot(t.Context(), db, dest), "already exists")

	snap, err := duck.NewDB(t.Context(), dest, testLogger, duck.WithReadOnly())
	require.NoError(t, err)
	defer snap.Close()

	sconn, err := snap.Conn(t.Context())
	require.NoError(t, err)
	defer sconn.Close()

	var value float64
	require.NoError(t, sconn.QueryRowContext(t.Context(), "SELECT value FROM readings WHERE device_id = 'd1'").Scan(&value))
	require.Equal(t, 21.5, value)
}

func TestSensorLake_Duck_IsConflictError(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"plain", errors.New("Binder Error: column not found"), false},
		{"conflict", errors.New("TransactionContext Error: Transaction conflict: cannot update"), true},
		{"tuple", errors.New("TransactionContext Error: Conflict on tuple deletion!"), true},
		{"duplicate", errors.New(`Constraint Error: Duplicate key "device_id: d1" violates primary key constraint`), true},
		{"duplicate at commit", errors.New(`failed to commit transaction: TransactionContext Error: Failed to commit: PRIMARY KEY or UNIQUE constraint violation: duplicate key "NEW-DEV"`), true},
		{"lowercase conflict", errors.New("TransactionContext Error: transaction conflict on commit"), true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			require.Equal(t, tt.want, duck.IsConflictError(tt.err))
		})
	}
}

func TestSensorLake_Duck_RetryOnConflict(t *testing.T) {
	t.Parallel()

	t.Run("retries conflicts until success", func(t *testing.T) {
		t.Parallel()

		calls := 0
		err := duck.RetryOnConflict(t.Context(), testLogger, "test", func() error {
			calls++
			if calls < 3 {
				return errors.New("Transaction conflict")
			}
			return nil
		})
		require.NoError(t, err)
		require.Equal(t, 3, calls)
	})

	t.Run("does not retry other errors", func(t *testing.T) {
		t.Parallel()

		boom := errors.New("boom")
		calls := 0
		err := duck.RetryOnConflict(t.Context(), testLogger, "test", func() error {
			calls++
			return boom
		})
		require.ErrorIs(t, err, boom)
		require.Equal(t, 1, calls)
	})

	t.Run("stops on cancelled context", func(t *testing.T) {
		t.Parallel()

		ctx, cancel := context.WithCancel(t.Context())
		cancel()
		err := duck.RetryOnConflict(ctx, testLogger, "test", func() error {
			return errors.New("Transaction conflict")
		})
		require.Error(t, err)
	})
}
