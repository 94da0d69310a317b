package commands

import (
	"context"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/outflowhq/outflow/logger"
	"github.com/outflowhq/outflow/server"
)

// ServeCmd starts the trigger server with internal tickers.
var ServeCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the Outflow service",
	Long: `Start the HTTP trigger server and the internal tickers for the
dispatch cycle, the webhook queue runner, and the maintenance sweep. HTTP
triggers and tickers call the same pass functions; the stores' conditional
updates keep overlapping invocations safe.`,
	RunE: runServe,
}

var serveNoTickers bool

func init() {
	ServeCmd.Flags().BoolVar(&serveNoTickers, "no-tickers", false, "Disable internal tickers (HTTP triggers only)")
}

func runServe(cmd *cobra.Command, args []string) error {
	a, err := buildApp()
	if err != nil {
		return err
	}
	defer a.Close()

	log := logger.Named("serve")
	printStartupBanner(a.cfg)

	srv := server.New(a.dispatcher, a.runner, a.sweeper, a.collector, a.cfg.Server, log)

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	var wg sync.WaitGroup
	if !serveNoTickers {
		startTickers(ctx, &wg, a, log)
	}

	errChan := make(chan error, 1)
	go func() {
		errChan <- srv.Start()
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	select {
	case sig := <-sigChan:
		log.Infow("Shutting down", "signal", sig.String())
	case err := <-errChan:
		if err != nil {
			cancel()
			wg.Wait()
			return err
		}
	}

	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Warnw("Server shutdown incomplete", "error", err)
	}

	wg.Wait()
	log.Infow("Shutdown complete")
	return nil
}

// startTickers launches the three periodic loops. Each records its metrics
// the same way the HTTP trigger handlers do.
func startTickers(ctx context.Context, wg *sync.WaitGroup, a *app, log *zap.SugaredLogger) {
	dispatchInterval := a.dispatcher.PollInterval()
	queueInterval := time.Duration(a.cfg.Queue.TimeBudgetSeconds+a.cfg.Queue.SafetyMarginSeconds) * time.Second
	if queueInterval <= 0 {
		queueInterval = time.Minute
	}
	maintenanceInterval := time.Duration(a.cfg.Maintenance.SweepIntervalMinutes) * time.Minute
	if maintenanceInterval <= 0 {
		maintenanceInterval = 15 * time.Minute
	}

	runTicker(ctx, wg, dispatchInterval, func(tickCtx context.Context) {
		start := time.Now()
		summary, err := a.dispatcher.RunCycle(tickCtx, "ticker")
		if err != nil {
			log.Errorw("Dispatch ticker cycle failed", "error", err)
			return
		}
		a.collector.RecordCycle(summary.Suppressed, summary.Enqueued, summary.Inline, summary.Failed, time.Since(start).Seconds())
	})

	runTicker(ctx, wg, queueInterval, func(tickCtx context.Context) {
		start := time.Now()
		summary, err := a.runner.RunPass(tickCtx)
		if err != nil {
			log.Errorw("Queue ticker pass failed", "error", err)
			return
		}
		a.collector.RecordPass(
			summary.Processed, summary.Succeeded, summary.Failed,
			summary.Retried, summary.Skipped, summary.ReleasedStale,
			summary.Remaining, time.Since(start).Seconds(),
		)
	})

	runTicker(ctx, wg, maintenanceInterval, func(tickCtx context.Context) {
		report := a.sweeper.Sweep(tickCtx)
		a.collector.RecordSweep(report.PrunedRuns.Count + report.PrunedEvents.Count + report.PrunedContacts.Count)
	})
}

// runTicker runs fn every interval until ctx is cancelled. The first run
// happens after one interval, not immediately, so startup is quiet.
func runTicker(ctx context.Context, wg *sync.WaitGroup, interval time.Duration, fn func(context.Context)) {
	wg.Add(1)
	go func() {
		defer wg.Done()
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				fn(ctx)
			}
		}
	}()
}
