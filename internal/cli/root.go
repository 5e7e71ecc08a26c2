package cli

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/malbeclabs/sensorlake/config"
	"github.com/malbeclabs/sensorlake/internal/duck"
	"github.com/malbeclabs/sensorlake/internal/logger"
	"github.com/spf13/cobra"
)

type ExitCode int

const (
	exitCodeSuccess = 0
	exitCodeError   = 1
)

// BuildInfo is stamped into the binary through ldflags.
type BuildInfo struct {
	Version string
	Commit  string
	Date    string
}

func Run(build BuildInfo) ExitCode {
	if err := NewRootCmd(build, os.Stdout, os.Stderr).Execute(); err != nil {
		return exitCodeError
	}
	return exitCodeSuccess
}

// app carries what every subcommand needs once the persistent flags are parsed.
type app struct {
	build BuildInfo
	cfg   *config.Config
	log   *slog.Logger
}

func NewRootCmd(build BuildInfo, stdout, stderr io.Writer) *cobra.Command {
	a := &app{build: build}

	var verbose bool
	var dbFile string

	rootCmd := &cobra.Command{
		Use:          "sensorlake",
		Short:        "IoT webhook ingestion and query service.",
		SilenceUsage: true,
		Version:      fmt.Sprintf("%s (commit %s, built %s)", build.Version, build.Commit, build.Date),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := cmd.Help(); err != nil {
				return fmt.Errorf("failed to show help: %w", err)
			}
			return nil
		},
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}
			if cmd.Flags().Changed("db-file") {
				cfg.DBFile = dbFile
			}
			a.cfg = cfg
			a.log = logger.New(stderr, verbose)
			return nil
		},
	}
	rootCmd.SetOut(stdout)
	rootCmd.SetErr(stderr)

	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "set debug logging level")
	rootCmd.PersistentFlags().StringVar(&dbFile, "db-file", config.DefaultDBFile, "DuckDB database file (env "+config.EnvDBFile+")")

	rootCmd.AddCommand(
		newServeCmd(a),
		newInspectCmd(a),
		newBackupCmd(a),
		newSendSamplesCmd(a),
	)
	return rootCmd
}

// openDB opens the configured database file, creating its directory when writable.
func (a *app) openDB(ctx context.Context, readOnly bool) (duck.DB, error) {
	path := a.cfg.DBFile
	inMemory := path == "" || path == ":memory:"

	var opts []duck.Option
	switch {
	case readOnly:
		if inMemory {
			return nil, fmt.Errorf("an in-memory database has nothing to inspect; set --db-file")
		}
		if _, err := os.Stat(path); err != nil {
			return nil, fmt.Errorf("database file %s: %w", path, err)
		}
		opts = append(opts, duck.WithReadOnly())
	case inMemory:
		a.log.Info("using in-memory database")
	default:
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
		opts = append(opts, duck.WithCheckpointThreshold(a.cfg.CheckpointThreshold))
		a.log.Info("using persistent database", "path", path)
	}

	db, err := duck.NewDB(ctx, path, a.log, opts...)
	if err != nil {
		return nil, err
	}
	return db, nil
}

func (a *app) closeDB(db duck.DB) {
	if err := db.Close(); err != nil {
		a.log.Error("failed to close database", "error", err)
	}
}
