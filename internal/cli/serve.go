package cli

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"os/signal"
	"syscall"

	"github.com/malbeclabs/sensorlake/config"
	"github.com/malbeclabs/sensorlake/internal/querier"
	"github.com/malbeclabs/sensorlake/internal/server"
	"github.com/malbeclabs/sensorlake/internal/server/metrics"
	"github.com/malbeclabs/sensorlake/internal/store"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

func newServeCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the webhook receiver and MCP query endpoint",
		RunE: func(cmd *cobra.Command, args []string) error {
			applyServeFlags(cmd.Flags(), a.cfg)

			ctx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer cancel()

			return a.serve(ctx)
		},
	}

	cmd.Flags().String("listen-addr", "", "HTTP listen address (env SENSORLAKE_LISTEN_ADDR)")
	cmd.Flags().String("metrics-addr", "", "prometheus metrics listen address, disabled when empty (env SENSORLAKE_METRICS_ADDR)")
	return cmd
}

// applyServeFlags overrides the environment config with any flag set explicitly.
func applyServeFlags(fs *pflag.FlagSet, cfg *config.Config) {
	fs.Visit(func(f *pflag.Flag) {
		switch f.Name {
		case "listen-addr":
			cfg.ListenAddr = f.Value.String()
		case "metrics-addr":
			cfg.MetricsAddr = f.Value.String()
		}
	})
}

func (a *app) serve(ctx context.Context) error {
	log := a.log

	db, err := a.openDB(ctx, false)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer a.closeDB(db)

	st, err := store.NewStore(store.StoreConfig{Logger: log, DB: db})
	if err != nil {
		return fmt.Errorf("failed to create store: %w", err)
	}
	if err := st.CreateTablesIfNotExists(ctx); err != nil {
		return err
	}

	q, err := querier.New(querier.Config{Logger: log, DB: db})
	if err != nil {
		return fmt.Errorf("failed to create querier: %w", err)
	}

	srv, err := server.New(server.Config{
		Logger:          log,
		Store:           st,
		Querier:         q,
		Version:         a.build.Version,
		ListenAddr:      a.cfg.ListenAddr,
		WebhookSecret:   a.cfg.WebhookSecret,
		MaxBodySize:     a.cfg.MaxBodySize,
		ShutdownTimeout: a.cfg.ShutdownTimeout,
	})
	if err != nil {
		return fmt.Errorf("failed to create server: %w", err)
	}
	if !a.cfg.AuthEnabled() {
		log.Warn("server: webhook secret not set, accepting unauthenticated deliveries")
	}

	metricsServerErrCh := make(chan error, 1)
	if a.cfg.MetricsAddr != "" {
		metrics.BuildInfo.WithLabelValues(a.build.Version, a.build.Commit, a.build.Date).Set(1)
		listener, err := net.Listen("tcp", a.cfg.MetricsAddr)
		if err != nil {
			return fmt.Errorf("failed to start prometheus metrics server listener: %w", err)
		}
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		metricsSrv := &http.Server{Handler: mux}
		go func() {
			log.Info("prometheus metrics server listening", "address", listener.Addr().String())
			if err := metricsSrv.Serve(listener); err != nil && err != http.ErrServerClosed {
				metricsServerErrCh <- err
			}
		}()
		defer metricsSrv.Close()
	}

	serverErrCh := make(chan error, 1)
	go func() {
		serverErrCh <- srv.Run(ctx)
	}()

	select {
	case err := <-serverErrCh:
		if err != nil {
			log.Error("server: server error causing shutdown", "error", err)
		}
		return err
	case err := <-metricsServerErrCh:
		log.Error("server: metrics server error causing shutdown", "error", err)
		return err
	}
}
