// Feedreader-API serves the feed query API and, unless disabled, runs the
// ingestion scheduler in the same process.
package main

import (
	"context"
	"log"
	"log/slog"
	"os"
	"os/signal"

	"go.uber.org/fx"
	_ "golang.org/x/crypto/x509roots/fallback"

	"github.com/jdholdren/feedreader/internal/api"
	"github.com/jdholdren/feedreader/internal/app"
	"github.com/jdholdren/feedreader/internal/config"
	"github.com/jdholdren/feedreader/internal/logger"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

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

	// Start the application. The server's hooks are registered after the
	// app's, so the server stops first and the database closes last.
	fx.New(
		fx.Supply(
			cfg,
			fx.Annotate(ctx, fx.As(new(context.Context))),
		),
		fx.NopLogger,
		app.Module,
		api.Module,
		fx.Invoke(func(*api.Server) {}), // Start the API server
	).Run()
}
