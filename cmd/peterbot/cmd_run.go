package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"peterbot/internal/dispatch"
	"peterbot/internal/generation"
	"peterbot/internal/logging"
	"peterbot/internal/metrics"
	"peterbot/internal/persona"
	"peterbot/internal/platform"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Connect to the chat platform and answer messages",
	Long: `Connects to the configured platform and serves until SIGINT or SIGTERM.

The persona file is reloaded when it changes (persona.watch), and a
Prometheus endpoint is served on metrics.addr when metrics are enabled.`,
	Args: cobra.NoArgs,
	RunE: runBot,
}

func runBot(cmd *cobra.Command, args []string) error {
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	bootBanner(cfg)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	adapter, maxContent, err := openPlatform(cfg)
	if err != nil {
		return err
	}

	store, err := openHistory(cfg)
	if err != nil {
		return err
	}
	defer func() {
		if err := store.Close(); err != nil {
			logging.BootWarn("failed to close history store: %v", err)
		}
	}()

	watcher, err := persona.NewWatcher(cfg.Persona.File)
	if err != nil {
		return err
	}

	client, err := generation.NewClientFromConfig(ctx, cfg, watcher)
	if err != nil {
		return fmt.Errorf("failed to create generation client: %w", err)
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	collector := metrics.NewCollector(reg)

	limiter := platform.NewLimiter(cfg.RateLimit.RequestsPerSecond, cfg.RateLimit.Burst)
	paced := platform.NewPaced(adapter, limiter, maxContent)

	dispatcher, err := dispatch.New(dispatch.Deps{
		Platform: paced,
		Client:   client,
		Store:    store,
		Metrics:  collector,
	}, dispatchOptions(cfg, maxContent))
	if err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)
	if cfg.Persona.Watch {
		g.Go(func() error { return watcher.Run(gctx) })
	}
	if cfg.Metrics.Enabled {
		g.Go(func() error { return metrics.Serve(gctx, cfg.Metrics.Addr, reg) })
	}
	g.Go(func() error { return adapter.Run(gctx, dispatcher.Handle) })

	err = g.Wait()
	logging.Boot("shutting down")
	return err
}
