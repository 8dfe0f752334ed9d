package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/cloudx-io/hotiron/config"
	"github.com/cloudx-io/hotiron/registry"
	"github.com/cloudx-io/hotiron/server"
	"github.com/cloudx-io/hotiron/telemetry"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP clearing service",
	Long: `Serves the auction API on a TCP address, or on a vsock port when
server.network is "vsock" (Nitro Enclave deployments).

With registry.source=file and registry.watch=true the seller file is
reloaded whenever it changes. A failed reload keeps the previous sellers.`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func runServe(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := telemetry.SetupTracing(ctx, cfg.Tracing, "hotiron", version, logger)
	if err != nil {
		return err
	}
	defer func() {
		tctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracing(tctx); err != nil {
			logger.Error("Tracing shutdown failed", zap.Error(err))
		}
	}()

	a, err := buildApp(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := a.Close(); err != nil {
			logger.Error("Failed to close resources", zap.Error(err))
		}
	}()

	srv, err := server.New(server.Deps{
		Engine:   a.engine,
		Registry: a.registry,
		History:  a.history,
		Issuer:   a.issuer,
		Logger:   logger.Named("server"),
	}, serverOptions(cfg))
	if err != nil {
		return err
	}

	stopWatcher, err := startWatcher(ctx, cfg.Registry, a.registry)
	if err != nil {
		return err
	}
	defer stopWatcher()

	ln, err := server.Listen(cfg.Server.Network, cfg.Server.Addr, cfg.Server.VsockPort)
	if err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return srv.Serve(gctx, ln)
	})

	logger.Info("hotiron started",
		zap.String("version", version),
		zap.String("network", cfg.Server.Network),
		zap.String("registry", cfg.Registry.Source),
		zap.String("history", cfg.History.Backend),
		zap.String("receipts", cfg.Receipts.Mode))

	if err := g.Wait(); err != nil {
		return err
	}
	logger.Info("hotiron stopped")
	return nil
}

// startWatcher begins reloading the registry on seller file changes when
// watching is enabled. It runs before the server goroutine so a failure
// leaves nothing to wait on. The returned stop func is always non-nil.
func startWatcher(ctx context.Context, rc config.RegistryConfig, reg registry.Reloader) (func(), error) {
	if !rc.Watch {
		return func() {}, nil
	}
	watcher, err := registry.NewWatcher(rc.Path, reg, rc.WatchDebounce, logger.Named("watcher"))
	if err != nil {
		return nil, err
	}
	if err := watcher.Start(ctx); err != nil {
		watcher.Stop()
		return nil, fmt.Errorf("watch seller file: %w", err)
	}
	return watcher.Stop, nil
}

func serverOptions(cfg *config.Config) server.Options {
	return server.Options{
		MaxWorkers:      cfg.Server.MaxWorkers,
		RateLimit:       cfg.Server.RateLimit.RequestsPerSecond,
		RateBurst:       cfg.Server.RateLimit.Burst,
		AllowedOrigins:  cfg.Server.AllowedOrigins,
		TrustedProxies:  cfg.Server.TrustedProxies,
		RevealMinDelay:  cfg.Reveal.MinDelay,
		RevealMaxDelay:  cfg.Reveal.MaxDelay,
		AdminSecret:     cfg.Admin.JWTSecret,
		AdminIssuer:     cfg.Admin.Issuer,
		ReadTimeout:     cfg.Server.ReadTimeout,
		WriteTimeout:    cfg.Server.WriteTimeout,
		ShutdownTimeout: cfg.Server.ShutdownTimeout,
	}
}
