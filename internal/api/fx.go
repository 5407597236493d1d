package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"go.uber.org/fx"

	"github.com/jdholdren/feedreader/internal/app"
)

var Module = fx.Module("api",
	fx.Provide(
		NewServer,
	),
)

type Params struct {
	fx.In

	App *app.App
}

// NewServer builds the API server over the application's store and ties its
// listener to the fx lifecycle. Manual runs are only accepted when the
// scheduler runs in this process.
func NewServer(lc fx.Lifecycle, p Params) *Server {
	var runs RunTrigger
	if p.App.Config.SchedulerEnabled {
		runs = p.App.Scheduler
	}

	srvr := New(ServerConfig{Port: p.App.Config.Port}, p.App.Repo, runs)

	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			go func() {
				slog.Info("starting api server", "addr", srvr.Addr)
				if err := srvr.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					slog.Error("api server stopped", "err", err)
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			return srvr.Shutdown(ctx)
		},
	})

	return srvr
}
