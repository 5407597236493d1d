// Package api serves the feedreader HTTP API: feed source management, the
// feed entry query, health, metrics and manual ingestion runs.
package api

import (
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	frerrs "github.com/jdholdren/feedreader/internal/errors"
	"github.com/jdholdren/feedreader/internal/feedreader"
	"github.com/jdholdren/feedreader/internal/serverutil"
)

type (
	// RunTrigger queues an ingestion run without waiting for it.
	RunTrigger interface {
		Trigger()
	}

	Server struct {
		*http.Server

		sources feedreader.SourceService
		entries feedreader.EntryService
		runs    RunTrigger
	}

	ServerConfig struct {
		Port int
	}
)

// New builds the server and its routes. runs may be nil when no scheduler
// runs in this process.
func New(config ServerConfig, repo feedreader.Repository, runs RunTrigger) *Server {
	r := serverutil.NewErrRouter()

	srvr := &Server{
		sources: repo,
		entries: repo,
		runs:    runs,
		Server: &http.Server{
			Addr:         fmt.Sprintf(":%d", config.Port),
			ReadTimeout:  5 * time.Second,
			WriteTimeout: 10 * time.Second,
			Handler:      serverutil.Recover(r),
		},
	}

	r.Use(serverutil.AccessLogMiddleware) // Log everything

	r.HandleFuncE("/feed-sources", srvr.postFeedSource).Methods(http.MethodPost)
	r.HandleFuncE("/feed-sources", srvr.getFeedSources).Methods(http.MethodGet)
	r.HandleFuncE("/feed-sources/{id:[0-9]+}", srvr.getFeedSource).Methods(http.MethodGet)
	r.HandleFuncE("/feed-sources/{id:[0-9]+}", srvr.patchFeedSource).Methods(http.MethodPatch)
	r.HandleFuncE("/feed-sources/{id:[0-9]+}", srvr.deleteFeedSource).Methods(http.MethodDelete)

	r.HandleFuncE("/feed-entries", srvr.getFeedEntries).Methods(http.MethodGet)
	r.HandleFuncE("/feed-entries/{id:[0-9]+}", srvr.getFeedEntry).Methods(http.MethodGet)

	r.HandleFuncE("/runs", srvr.postRun).Methods(http.MethodPost)

	r.HandleFuncE("/health", srvr.getHealth).Methods(http.MethodGet)
	r.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)

	slog.Debug("configured api server", "port", config.Port)

	return srvr
}

func (s *Server) getHealth(w http.ResponseWriter, r *http.Request) error {
	return serverutil.WriteJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}

type RunResp struct {
	Status string `json:"status"`
}

func (s *Server) postRun(w http.ResponseWriter, r *http.Request) error {
	if s.runs == nil {
		return frerrs.E(http.StatusServiceUnavailable, "scheduler is not running in this process")
	}

	s.runs.Trigger()
	slog.InfoContext(r.Context(), "ingestion run requested")

	return serverutil.WriteJSON(w, http.StatusAccepted, RunResp{Status: "queued"})
}
