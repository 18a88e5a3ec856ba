// Package api exposes the dashboard JSON routes.
package api

import (
	"context"
	"encoding/json"
	"net/http"
	"os"
	"path/filepath"

	"github.com/go-chi/chi/v5"
	"github.com/swissbasket/livedesk/internal/broadcasts"
	"github.com/swissbasket/livedesk/internal/credentials"
	"github.com/swissbasket/livedesk/internal/keemotion"
	"github.com/swissbasket/livedesk/internal/livecontrol"
	"github.com/swissbasket/livedesk/internal/metrics"
	"github.com/swissbasket/livedesk/internal/model"
	"github.com/swissbasket/livedesk/internal/schedule"
	"github.com/swissbasket/livedesk/internal/telemetry"
	"github.com/swissbasket/livedesk/logging"
)

const serviceName = "livedesk"

// Views is the set of cached YouTube views served by the router.
type Views interface {
	Live(ctx context.Context) broadcasts.LiveView
	Health(ctx context.Context) broadcasts.HealthView
	StreamKeys(ctx context.Context) broadcasts.StreamKeysView
	YTUpcoming(ctx context.Context) broadcasts.UpcomingView
	Feed(ctx context.Context) broadcasts.FeedView
	Debug(ctx context.Context, envs credentials.Availability) broadcasts.DebugView
}

// IssueSource reports arenas flagged by the ingest vendor.
type IssueSource interface {
	Issues(ctx context.Context) (keemotion.Report, error)
}

// ScheduleSource lists upcoming games from the published sheet.
type ScheduleSource interface {
	Upcoming(ctx context.Context, q schedule.Query) ([]model.UpcomingEvent, error)
}

// Controller applies live-control requests.
type Controller interface {
	Apply(ctx context.Context, req livecontrol.Request) (livecontrol.Result, error)
}

// TokenProber checks that a YouTube token can be obtained.
type TokenProber interface {
	Probe(ctx context.Context) credentials.Probe
}

// Options configures the HTTP router.
type Options struct {
	Logger      *logging.Logger
	Views       Views
	Issues      IssueSource
	Schedule    ScheduleSource
	Control     Controller
	Prober      TokenProber
	Credentials credentials.Availability
	AssetsDir   string
	HorizonDays int
	// MaxLogBody caps request and response bodies in the access log.
	MaxLogBody int
}

type handlers struct {
	opts   Options
	logger *logging.Logger
}

// NewRouter constructs the chi router with logging, metrics and panic recovery.
func NewRouter(opts Options) http.Handler {
	h := &handlers{opts: opts, logger: opts.Logger}

	r := chi.NewRouter()
	r.Use(telemetry.Recover(serviceName))
	r.Use(logging.NewHTTPLogger(opts.Logger, opts.MaxLogBody).Middleware)
	r.Use(metrics.Middleware)

	r.Get("/", h.index)
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		_, _ = w.Write([]byte("ok"))
	})
	r.Handle("/metrics", metrics.Handler())

	r.Route("/api", func(r chi.Router) {
		r.Get("/live", h.live)
		r.Get("/health", h.health)
		r.Get("/issues", h.issues)
		r.Get("/upcoming", h.upcoming)
		r.Get("/stream-keys", h.streamKeys)
		r.Get("/yt-upcoming", h.ytUpcoming)
		r.Get("/live-feed", h.liveFeed)
		r.Get("/yt-debug", h.ytDebug)
		r.Get("/yt-status", h.ytStatus)
		r.HandleFunc("/live-control", h.liveControl)
	})
	return r
}

func respondJSON(w http.ResponseWriter, v any) {
	respondStatus(w, http.StatusOK, v)
}

func respondStatus(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func (h *handlers) index(w http.ResponseWriter, r *http.Request) {
	data, err := os.ReadFile(filepath.Join(h.opts.AssetsDir, "index.html"))
	if err != nil {
		h.logger.Error("http", "index not readable", err, map[string]any{"assets": h.opts.AssetsDir})
		http.Error(w, "Error loading index.html", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write(data)
}
