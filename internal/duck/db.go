package duck

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"net/url"
	"strings"

	_ "github.com/duckdb/duckdb-go/v2"
)

type DB interface {
	Catalog() string
	Schema() string
	Path() string
	Close() error
	Conn(ctx context.Context) (Connection, error)
}

type Connection interface {
	DB() DB
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	BeginTx(ctx context.Context, opts *sql.TxOptions) (*sql.Tx, error)
	Close() error
}

type Option func(*options)

type options struct {
	readOnly            bool
	checkpointThreshold string
}

// WithReadOnly opens the database file in read-only access mode.
func WithReadOnly() Option {
	return func(o *options) { o.readOnly = true }
}

// WithCheckpointThreshold sets the WAL size (e.g. "16MB") after which DuckDB
// automatically checkpoints into the main database file.
func WithCheckpointThreshold(threshold string) Option {
	return func(o *options) { o.checkpointThreshold = threshold }
}

type duckDB struct {
	log     *slog.Logger
	dbPath  string
	db      *sql.DB
	catalog string
	schema  string
	opts    options
}

type duckDBConn struct {
	conn *sql.Conn
	db   *duckDB
}

// NewDB opens the DuckDB database at dbPath. An empty path or ":memory:" opens an
// in-memory database.
func NewDB(ctx context.Context, dbPath string, log *slog.Logger, opts ...Option) (*duckDB, error) {
	var o options
	for _, opt := range opts {
		opt(&o)
	}
	if dbPath == ":memory:" {
		dbPath = ""
	}
	if o.readOnly && dbPath == "" {
		return nil, fmt.Errorf("read-only mode requires a database file")
	}

	db, err := sql.Open("duckdb", dsn(dbPath, o))
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	row := db.QueryRowContext(ctx, "SELECT current_database() AS catalog, current_schema() AS schema")
	var catalog, schema string
	if err := row.Scan(&catalog, &schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to get current database and schema: %w", err)
	}

	if o.checkpointThreshold != "" && !o.readOnly {
		if _, err := db.ExecContext(ctx, "SET GLOBAL checkpoint_threshold = "+quoteString(o.checkpointThreshold)); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to set checkpoint threshold: %w", err)
		}
	}

	log.Debug("duck: opened database", "path", dbPath, "catalog", catalog, "schema", schema, "read_only", o.readOnly)

	return &duckDB{
		log:     log,
		dbPath:  dbPath,
		db:      db,
		catalog: catalog,
		schema:  schema,
		opts:    o,
	}, nil
}

func dsn(dbPath string, o options) string {
	if !o.readOnly {
		return dbPath
	}
	q := url.Values{}
	q.Set("access_mode", "read_only")
	return dbPath + "?" + q.Encode()
}

func quoteString(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}

// QuoteIdent quotes a catalog, schema or table name for use in a statement.
func QuoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

func (d *duckDB) Conn(ctx context.Context) (Connection, error) {
	conn, err := d.db.Conn(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to open connection: %w", err)
	}

	if _, err := conn.ExecContext(ctx, "USE "+QuoteIdent(d.catalog)+"."+QuoteIdent(d.schema)); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to use database: %w", err)
	}

	return &duckDBConn{
		conn: conn,
		db:   d,
	}, nil
}

func (d *duckDB) Catalog() string {
	return d.catalog
}

func (d *duckDB) Schema() string {
	return d.schema
}

func (d *duckDB) Path() string {
	return d.dbPath
}

// Close checkpoints the write-ahead log into the database file and closes it.
func (d *duckDB) Close() error {
	if d.dbPath != "" && !d.opts.readOnly {
		if _, err := d.db.Exec("CHECKPOINT"); err != nil {
			d.log.Warn("duck: checkpoint on close failed", "error", err)
		}
	}
	return d.db.Close()
}

func (c *duckDBConn) DB() DB {
	return c.db
}

func (c *duckDBConn) ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error) {
	return c.conn.ExecContext(ctx, query, args...)
}

func (c *duckDBConn) QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	return c.conn.QueryContext(ctx, query, args...)
}

func (c *duckDBConn) QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row {
	return c.conn.QueryRowContext(ctx, query, args...)
}

func (c *duckDBConn) BeginTx(ctx context.Context, opts *sql.TxOptions) (*sql.Tx, error) {
	return c.conn.BeginTx(ctx, opts)
}

func (c *duckDBConn) Close() error {
	return c.conn.Close()
}
