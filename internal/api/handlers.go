package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/swissbasket/livedesk/internal/keemotion"
	"github.com/swissbasket/livedesk/internal/livecontrol"
	"github.com/swissbasket/livedesk/internal/model"
	"github.com/swissbasket/livedesk/internal/schedule"
	"github.com/swissbasket/livedesk/internal/telemetry"
	"github.com/swissbasket/livedesk/logging"
)

const maxControlBody = 64 << 10

func wantDebug(r *http.Request) bool {
	v := strings.TrimSpace(r.URL.Query().Get("debug"))
	return v == "1" || strings.EqualFold(v, "true")
}

func (h *handlers) live(w http.ResponseWriter, r *http.Request) {
	view := h.opts.Views.Live(r.Context())
	if !wantDebug(r) {
		view.Debug = nil
	}
	respondJSON(w, view)
}

func (h *handlers) health(w http.ResponseWriter, r *http.Request) {
	view := h.opts.Views.Health(r.Context())
	if !wantDebug(r) {
		view.Debug = nil
	}
	respondJSON(w, view)
}

func (h *handlers) streamKeys(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, h.opts.Views.StreamKeys(r.Context()))
}

func (h *handlers) ytUpcoming(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, h.opts.Views.YTUpcoming(r.Context()))
}

func (h *handlers) liveFeed(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, h.opts.Views.Feed(r.Context()))
}

func (h *handlers) ytDebug(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, h.opts.Views.Debug(r.Context(), h.opts.Credentials))
}

func (h *handlers) ytStatus(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, h.opts.Prober.Probe(r.Context()))
}

type issuesResponse struct {
	Items []model.ArenaIssue `json:"items"`
	Error string             `json:"error,omitempty"`
	Debug *keemotion.Debug   `json:"debug,omitempty"`
}

func (h *handlers) issues(w http.ResponseWriter, r *http.Request) {
	report, err := h.opts.Issues.Issues(r.Context())
	resp := issuesResponse{Items: report.Issues}
	if resp.Items == nil {
		resp.Items = []model.ArenaIssue{}
	}
	if err != nil {
		resp.Error = err.Error()
		telemetry.CaptureError(err, map[string]string{"route": "/api/issues"})
	}
	if wantDebug(r) {
		resp.Debug = &report.Debug
	}
	respondJSON(w, resp)
}

type upcomingResponse struct {
	Items []model.UpcomingEvent `json:"items"`
	Error string                `json:"error,omitempty"`
}

func (h *handlers) upcoming(w http.ResponseWriter, r *http.Request) {
	q := schedule.Query{
		HorizonDays:  h.opts.HorizonDays,
		StreamedOnly: r.URL.Query().Get("streamed") == "1",
	}
	if days, err := strconv.Atoi(strings.TrimSpace(r.URL.Query().Get("days"))); err == nil {
		q.HorizonDays = days
	}
	events, err := h.opts.Schedule.Upcoming(r.Context(), q)
	resp := upcomingResponse{Items: events}
	if resp.Items == nil {
		resp.Items = []model.UpcomingEvent{}
	}
	if err != nil {
		resp.Error = err.Error()
		h.logger.Warn("schedule", "upcoming fetch failed", map[string]any{"error": err.Error()})
	}
	respondJSON(w, resp)
}

func (h *handlers) liveControl(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		respondStatus(w, http.StatusMethodNotAllowed, livecontrol.Result{Error: "Method not allowed"})
		return
	}
	// an empty body is an empty request; Apply rejects it with a 400
	var req livecontrol.Request
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxControlBody)).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		respondJSON(w, livecontrol.Result{Error: "Invalid JSON body: " + err.Error()})
		return
	}

	log := h.logger.WithRequestID(logging.RequestIDFromContext(r.Context())).
		WithCategory("livecontrol").
		WithFields(map[string]any{"action": req.Action, "id": req.ID})

	res, err := h.opts.Control.Apply(r.Context(), req)
	var verr *livecontrol.ValidationError
	switch {
	case errors.As(err, &verr):
		log.Warn("rejected: " + verr.Message)
		respondStatus(w, http.StatusBadRequest, livecontrol.Result{Error: verr.Message})
		return
	case err != nil:
		log.Error("apply failed", err)
		res = livecontrol.Result{Error: err.Error()}
	}
	if !res.OK && res.Error != "" {
		telemetry.CaptureError(errors.New(res.Error), map[string]string{"route": "/api/live-control", "action": req.Action})
	}
	respondJSON(w, res)
}
