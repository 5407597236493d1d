// Feedctl is the operator tool for a feedreader database: it runs one
// ingestion pass on demand and applies or rolls back migrations.
package main

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"

	"github.com/sethvargo/go-envconfig"
	"github.com/urfave/cli/v2"
	_ "golang.org/x/crypto/x509roots/fallback"

	"github.com/jdholdren/feedreader/internal/app"
	"github.com/jdholdren/feedreader/internal/config"
	"github.com/jdholdren/feedreader/internal/logger"
	"github.com/jdholdren/feedreader/internal/migrations"
	"github.com/jdholdren/feedreader/internal/sqlite"
)

func main() {
	if err := rootApp().Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func rootApp() *cli.App {
	return &cli.App{
		Name:  "feedctl",
		Usage: "Operate a feedreader database",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:     "database",
				Usage:    "Path to the sqlite database file",
				EnvVars:  []string{"DATABASE"},
				Required: true,
			},
		},
		Before: func(ctx *cli.Context) error {
			cfg, err := loadConfig(ctx)
			if err != nil {
				return err
			}

			// Logs go to stderr so stdout stays clean for summaries.
			l, err := logger.New(os.Stderr, cfg.LogFormat, cfg.LogLevel)
			if err != nil {
				return err
			}
			slog.SetDefault(l)

			return nil
		},
		Commands: []*cli.Command{
			fetchCmd(),
			migrateCmd(),
			rollbackCmd(),
		},
	}
}

// loadConfig reads the environment, letting --database win over DATABASE.
func loadConfig(ctx *cli.Context) (config.Config, error) {
	return config.LoadFrom(ctx.Context, envconfig.MultiLookuper(
		envconfig.MapLookuper(map[string]string{"DATABASE": ctx.String("database")}),
		envconfig.OsLookuper(),
	))
}

func fetchCmd() *cli.Command {
	return &cli.Command{
		Name:        "fetch",
		Usage:       "Run one ingestion pass over every feed source",
		Description: `Fetches every registered feed once, reconciles its entries and prints the run summary.`,
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:  "json",
				Usage: "Print the summary as JSON",
			},
		},
		Action: func(ctx *cli.Context) error {
			cfg, err := loadConfig(ctx)
			if err != nil {
				return err
			}

			a, err := app.New(ctx.Context, cfg)
			if err != nil {
				return err
			}
			defer a.Close(ctx.Context)

			summary, err := a.Runner.Run(ctx.Context)
			if err != nil {
				return fmt.Errorf("error running ingestion: %w", err)
			}

			if ctx.Bool("json") {
				enc := json.NewEncoder(ctx.App.Writer)
				enc.SetIndent("", "  ")
				return enc.Encode(summary)
			}

			fmt.Fprintf(ctx.App.Writer, "run %s: %d/%d sources ok, %d inserted, %d updated, %d skipped in %s\n",
				summary.RunID,
				summary.Succeeded,
				summary.Sources,
				summary.Inserted,
				summary.Updated,
				summary.Skipped,
				summary.Duration,
			)
			for _, f := range summary.Failures {
				fmt.Fprintf(ctx.App.Writer, "  failed: %s\n", f.Error())
			}

			return nil
		},
	}
}

func migrateCmd() *cli.Command {
	return &cli.Command{
		Name:        "migrate",
		Usage:       "Run database migrations",
		Description: `Applies every pending migration. Creates the database file if it does not exist.`,
		Action: func(ctx *cli.Context) error {
			dbx, err := sqlite.Open(ctx.Context, ctx.String("database"))
			if err != nil {
				return err
			}
			defer dbx.Close()

			return migrations.Run(dbx)
		},
	}
}

func rollbackCmd() *cli.Command {
	return &cli.Command{
		Name:        "rollback",
		Usage:       "Rollback database migrations",
		Description: `Rolls back the given number of migrations, the last one by default.`,
		Flags: []cli.Flag{
			&cli.IntFlag{
				Name:  "steps",
				Usage: "Number of migrations to roll back",
				Value: 1,
			},
		},
		Action: func(ctx *cli.Context) error {
			dbx, err := sqlite.Open(ctx.Context, ctx.String("database"))
			if err != nil {
				return err
			}
			defer dbx.Close()

			return migrations.Rollback(dbx, ctx.Int("steps"))
		},
	}
}
