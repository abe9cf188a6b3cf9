// Package main provides the graphsession CLI: a small driver that opens the
// embedded store, builds a session graph over it and runs demo or stress
// workloads through the session API.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/orneryd/graphsession/pkg/config"
	"github.com/orneryd/graphsession/pkg/logging"
	"github.com/orneryd/graphsession/pkg/session"
	"github.com/orneryd/graphsession/pkg/store"
)

var (
	version   = "0.1.0"
	commit    = "dev"
	buildTime = "unknown" // Set via ldflags: -X main.buildTime=$(date +%Y%m%d-%H%M%S)
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "graphsession",
		Short: "Session-scoped transactional graph cache",
		Long: `graphsession drives the session layer over an embedded Badger store.

Sessions buffer vertex and edge changes, resolve adjacency once and share
committed states through a bounded global cache.`,
		SilenceUsage: true,
	}
	rootCmd.PersistentFlags().String("config", "", "Config file (default: search graphsession.yaml, ~/.graphsession/config.yaml)")
	rootCmd.PersistentFlags().String("log-level", "", "Log level: trace, debug, info, warn, error")
	rootCmd.PersistentFlags().String("metrics-addr", "", "Serve Prometheus metrics on this address (e.g. :9090)")
	rootCmd.PersistentFlags().String("data-dir", "", "Store data directory")
	rootCmd.PersistentFlags().Bool("in-memory", false, "Keep the store in memory")

	// Version command
	rootCmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "graphsession v%s (%s) built %s\n", version, commit, buildTime)
		},
	})

	rootCmd.AddCommand(newDemoCmd())
	rootCmd.AddCommand(newStressCmd())
	return rootCmd
}

// app holds everything a command needs: the resolved configuration and the
// open store and graph.
type app struct {
	cfg     *config.Config
	log     zerolog.Logger
	store   *store.Store
	graph   *session.Graph
	metrics *http.Server
}

// loadConfig resolves the configuration from file, environment and flags.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	path, _ := cmd.Flags().GetString("config")
	if path == "" {
		path = config.FindConfigFile()
	}
	cfg, err := config.LoadFromFile(path)
	if err != nil {
		return nil, err
	}
	if err := config.ApplyEnv(cfg); err != nil {
		return nil, err
	}

	if level, _ := cmd.Flags().GetString("log-level"); level != "" {
		cfg.Logging.Level = level
	}
	if addr, _ := cmd.Flags().GetString("metrics-addr"); addr != "" {
		cfg.Metrics.Enabled = true
		cfg.Metrics.Addr = addr
	}
	if dir, _ := cmd.Flags().GetString("data-dir"); dir != "" {
		cfg.Store.DataDir = dir
	}
	if cmd.Flags().Changed("in-memory") {
		cfg.Store.InMemory, _ = cmd.Flags().GetBool("in-memory")
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// openApp opens the store and the session graph described by cfg and starts
// the metrics endpoint when enabled.
func openApp(cfg *config.Config, stderr io.Writer) (*app, error) {
	log, err := logging.New(logging.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Output: stderr,
	})
	if err != nil {
		return nil, err
	}
	log.Debug().Str("config", cfg.String()).Msg("configuration loaded")

	st, err := store.Open(store.Options{
		DataDir:    cfg.Store.DataDir,
		InMemory:   cfg.Store.InMemory,
		SyncWrites: cfg.Store.SyncWrites,
		LowMemory:  cfg.Store.LowMemory,
		Logger:     log,
	})
	if err != nil {
		return nil, err
	}

	g, err := session.Open(session.Options{
		Vertices:            st.Vertices(),
		Edges:               st.Edges(),
		VertexCacheCapacity: cfg.Cache.VertexCapacity,
		EdgeCacheCapacity:   cfg.Cache.EdgeCapacity,
		Logger:              log,
	})
	if err != nil {
		st.Close()
		return nil, err
	}

	a := &app{cfg: cfg, log: log, store: st, graph: g}
	if cfg.Metrics.Enabled {
		a.serveMetrics(cfg.Metrics.Addr)
	}
	return a, nil
}

func (a *app) serveMetrics(addr string) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	a.metrics = &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := a.metrics.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.log.Error().Err(err).Str("addr", addr).Msg("metrics server failed")
		}
	}()
	a.log.Info().Str("addr", addr).Msg("serving metrics")
}

// Close stops the metrics endpoint and closes the graph and the store.
func (a *app) Close() error {
	if a.metrics != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		a.metrics.Shutdown(ctx)
	}
	return errors.Join(a.graph.Close(), a.store.Close())
}

// signalContext is cancelled on SIGINT or SIGTERM.
func signalContext(parent context.Context) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
}
