// Package app builds the long-lived pieces of a feedreader process from its
// config and tears them down again.
package app

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jmoiron/sqlx"
	"go.uber.org/fx"

	"github.com/jdholdren/feedreader/internal/config"
	"github.com/jdholdren/feedreader/internal/fetch"
	"github.com/jdholdren/feedreader/internal/ingest"
	"github.com/jdholdren/feedreader/internal/migrations"
	"github.com/jdholdren/feedreader/internal/scheduler"
	"github.com/jdholdren/feedreader/internal/sqlite"
)

// App is everything one process shares: the database, the store on top of
// it, the ingestion runner and the scheduler that drives it.
type App struct {
	Config    config.Config
	DB        *sqlx.DB
	Repo      sqlite.Repo
	Runner    *ingest.Runner
	Scheduler *scheduler.Scheduler
}

// New opens and migrates the database and wires the ingestion pipeline.
// The scheduler is built but not started.
func New(ctx context.Context, cfg config.Config) (*App, error) {
	dbx, err := sqlite.Open(ctx, cfg.Database)
	if err != nil {
		return nil, err
	}

	a, err := build(dbx, cfg)
	if err != nil {
		dbx.Close()
		return nil, err
	}

	return a, nil
}

func build(dbx *sqlx.DB, cfg config.Config) (*App, error) {
	if err := migrations.Run(dbx); err != nil {
		return nil, fmt.Errorf("error running migrations: %w", err)
	}

	parser, err := fetch.New(fetch.Config{
		Timeout:        cfg.FetchTimeout,
		UserAgent:      cfg.FetchUserAgent,
		ConditionalGet: cfg.FetchConditionalGet,
	})
	if err != nil {
		return nil, err
	}

	repo := sqlite.New(dbx)
	runner := ingest.NewRunner(repo, parser, ingest.WithConcurrency(cfg.FetchConcurrency))
	sched, err := scheduler.New(scheduler.Config{
		Crontab:      cfg.SchedulerCrontab,
		MisfireGrace: cfg.SchedulerMisfireGrace,
	}, runner.FetchFeedsJob)
	if err != nil {
		return nil, err
	}

	return &App{
		Config:    cfg,
		DB:        dbx,
		Repo:      repo,
		Runner:    runner,
		Scheduler: sched,
	}, nil
}

// Close stops the scheduler if it was started and then closes the database.
func (a *App) Close(ctx context.Context) error {
	if err := a.Scheduler.Stop(ctx); err != nil {
		slog.ErrorContext(ctx, "error stopping scheduler", "err", err)
	}

	if err := a.DB.Close(); err != nil {
		return fmt.Errorf("error closing database: %w", err)
	}

	return nil
}

// Module provides the App to an fx graph. The scheduler starts with the
// application when enabled, and everything is closed on stop.
var Module = fx.Module("app",
	fx.Provide(NewFx),
)

func NewFx(lc fx.Lifecycle, ctx context.Context, cfg config.Config) (*App, error) {
	a, err := New(ctx, cfg)
	if err != nil {
		return nil, err
	}

	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			if cfg.SchedulerEnabled {
				a.Scheduler.Start()
				slog.Info("started scheduler", "crontab", cfg.SchedulerCrontab)
			}
			return nil
		},
		OnStop: func(ctx context.Context) error {
			return a.Close(ctx)
		},
	})

	return a, nil
}
