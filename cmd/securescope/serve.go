package main

import (
	"context"
	"errors"
	"os"
	"syscall"
	"time"

	"github.com/oklog/run"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"

	"github.com/pankaj-dahiya-devops/securescope/internal/api"
	"github.com/pankaj-dahiya-devops/securescope/internal/dispatch"
	"github.com/pankaj-dahiya-devops/securescope/internal/engine"
	"github.com/pankaj-dahiya-devops/securescope/internal/telemetry"
	"github.com/pankaj-dahiya-devops/securescope/internal/vault"
)

const vaultSweepInterval = time.Minute

func newServeCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve the scan API and run queued scans",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, opts, serve)
		},
	}
}

// serve runs the HTTP API, the scan workers and, for the memory vault, the
// expiry sweeper until a signal arrives or one of them fails.
func serve(ctx context.Context, a *app) error {
	if err := a.syncCatalog(ctx); err != nil {
		return err
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	metrics := telemetry.NewMetrics(reg)

	var orch *engine.Orchestrator
	queue := dispatch.NewQueue(a.cfg.Queue.Size, a.cfg.Queue.Concurrency, func(ctx context.Context, job dispatch.Job) error {
		return orch.ExecuteScan(ctx, job)
	}, a.logger)
	orch = a.orchestrator(queue, metrics)
	queue.OnDrop(orch.AbandonScan)

	web := api.NewWebAPI(api.Config{
		Addr:         a.cfg.ListenAddr,
		Prefix:       a.cfg.APIPrefix,
		EnforceHTTPS: a.cfg.EnforceHTTPS,
		Dependencies: api.Dependencies{
			Scans:    orch,
			Logger:   a.logger,
			Gatherer: reg,
		},
	})

	var g run.Group
	{
		ctx, cancel := context.WithCancel(ctx)
		g.Add(func() error {
			return web.Run(ctx)
		}, func(error) {
			cancel()
		})
	}
	{
		ctx, cancel := context.WithCancel(ctx)
		g.Add(func() error {
			return queue.Start(ctx)
		}, func(error) {
			cancel()
		})
	}
	if mem, ok := a.vault.(*vault.Memory); ok {
		ctx, cancel := context.WithCancel(ctx)
		g.Add(func() error {
			sweepVault(ctx, mem, vaultSweepInterval, a)
			return nil
		}, func(error) {
			cancel()
		})
	}
	g.Add(run.SignalHandler(ctx, os.Interrupt, syscall.SIGTERM))

	err := g.Run()
	var sig run.SignalError
	if errors.As(err, &sig) {
		a.logger.Info().Str("signal", sig.Signal.String()).Msg("shutting down")
		return nil
	}
	return err
}

// sweepVault drops expired credentials every interval until ctx ends.
func sweepVault(ctx context.Context, mem *vault.Memory, interval time.Duration, a *app) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := mem.Sweep(); n > 0 {
				a.logger.Debug().Int("expired", n).Msg("vault swept")
			}
		}
	}
}
