// Feedreader-Worker runs only the ingestion scheduler, for deployments that
// serve the API from a separate process.
package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"os"
	"syscall"

	"github.com/oklog/run"
	_ "golang.org/x/crypto/x509roots/fallback"

	"github.com/jdholdren/feedreader/internal/app"
	"github.com/jdholdren/feedreader/internal/config"
	"github.com/jdholdren/feedreader/internal/logger"
)

func main() {
	ctx := context.Background()

	// Parse the config
	cfg, err := config.Load(ctx)
	if err != nil {
		log.Fatalf("error parsing config: %s", err)
	}

	l, err := logger.New(os.Stdout, cfg.LogFormat, cfg.LogLevel)
	if err != nil {
		log.Fatalf("error building logger: %s", err)
	}
	slog.SetDefault(l)

	if err := runWorker(ctx, cfg); err != nil {
		slog.Error("error running worker", "err", err)
		os.Exit(1)
	}
}

func runWorker(ctx context.Context, cfg config.Config) error {
	a, err := app.New(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.Close(context.WithoutCancel(ctx))

	var g run.Group
	{
		schedCtx, cancel := context.WithCancel(ctx)
		g.Add(func() error {
			slog.Info("starting scheduler", "crontab", cfg.SchedulerCrontab)
			return a.Scheduler.Run(schedCtx)
		}, func(error) {
			cancel()
		})
	}
	g.Add(run.SignalHandler(ctx, os.Interrupt, syscall.SIGTERM))

	err = g.Run()
	if sigErr := (run.SignalError{}); errors.As(err, &sigErr) {
		slog.Info("shutting down", "signal", sigErr.Signal)
		return nil
	}

	return err
}
