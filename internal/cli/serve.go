package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/roach88/synclog/internal/api"
	"github.com/roach88/synclog/internal/config"
	"github.com/roach88/synclog/internal/engine"
	"github.com/roach88/synclog/internal/ownership"
	"github.com/roach88/synclog/internal/sharing"
	"github.com/roach88/synclog/internal/store"
)

// shutdownTimeout bounds graceful HTTP drain.
const shutdownTimeout = 15 * time.Second

// ServeOptions holds flags for the serve command.
type ServeOptions struct {
	*RootOptions
	ConfigPath string
	EnvFile    string

	// Lookup overrides os.LookupEnv for tests.
	Lookup config.Lookup

	// Ready, if set, receives the bound address once the listener is open.
	Ready chan<- string
}

// NewServeCommand creates the serve command.
func NewServeCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ServeOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the sync API over HTTP",
		Long: `Serve push, pull and reset over HTTP.

Configuration is read from a CUE file unified with the built-in schema,
then overridden by SYNCLOG_* environment variables. A .env file is
loaded first if present.

Example:
  synclogd serve --config ./synclog.cue
  SYNCLOG_PROFILE=staging synclogd serve`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.ConfigPath, "config", "", "path to CUE config file (defaults only if empty)")
	cmd.Flags().StringVar(&opts.EnvFile, "env-file", ".env", "dotenv file loaded before reading the environment")

	return cmd
}

func runServe(opts *ServeOptions, cmd *cobra.Command) error {
	setupLogging(opts.Verbose, cmd.ErrOrStderr(), slog.LevelInfo)

	lookup := opts.Lookup
	if lookup == nil {
		if err := config.LoadDotEnv(opts.EnvFile); err != nil {
			return WrapExitError(ExitCommandError, "failed to load env file", err)
		}
		lookup = os.LookupEnv
	}
	cfg, err := config.Load(opts.ConfigPath, lookup)
	if err != nil {
		return WrapExitError(ExitCommandError, "invalid configuration", err)
	}
	slog.Info("configuration loaded", "config", cfg.String())

	st, err := store.Open(cfg.Database)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to open database", err)
	}
	defer closeStore(st)

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	checker, err := sharing.NewChecker(cfg.SharingMode(), st, st)
	if err != nil {
		return WrapExitError(ExitCommandError, "invalid sharing mode", err)
	}
	eng, err := engine.New(st,
		ownership.NewGuard(st, ownership.WithLegacyPrefix(cfg.LegacyStorePrefix)),
		cfg.AccessPolicy(),
		checker,
		cfg.EngineProfile(),
		engine.WithMaxBatchSize(cfg.MaxBatchSize),
		engine.WithMaxPullLimit(cfg.MaxPullLimit),
		engine.WithRebaseLimit(cfg.RebaseLimit),
		engine.WithMetrics(engine.NewMetrics(reg)),
	)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to create engine", err)
	}

	srv := api.NewServer(eng, api.NewAuthenticator(cfg.Auth.SigningKeys),
		api.WithRateLimit(cfg.RateLimit.RPS, cfg.RateLimit.Burst),
		api.WithHealthCheck(st),
		api.WithMetricsHandler(promhttp.HandlerFor(reg, promhttp.HandlerOpts{})),
	)

	ln, err := net.Listen("tcp", cfg.Listen)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to listen", err)
	}
	httpServer := &http.Server{
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	parentCtx := cmd.Context()
	if parentCtx == nil {
		parentCtx = context.Background()
	}
	ctx, stop := signal.NotifyContext(parentCtx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		errCh <- httpServer.Serve(ln)
	}()

	addr := ln.Addr().String()
	slog.Info("synclogd listening", "addr", addr, "profile", eng.Profile(), "sharing", eng.SharingMode())
	fmt.Fprintf(cmd.OutOrStdout(), "Listening on %s\n", addr)
	if opts.Ready != nil {
		opts.Ready <- addr
	}

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return WrapExitError(ExitFailure, "server error", err)
		}
		return nil
	case <-ctx.Done():
		slog.Info("shutting down")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return WrapExitError(ExitFailure, "shutdown failed", err)
	}
	slog.Info("server stopped gracefully")
	return nil
}
