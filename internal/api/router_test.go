package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/swissbasket/livedesk/internal/broadcasts"
	"github.com/swissbasket/livedesk/internal/credentials"
	"github.com/swissbasket/livedesk/internal/keemotion"
	"github.com/swissbasket/livedesk/internal/livecontrol"
	"github.com/swissbasket/livedesk/internal/model"
	"github.com/swissbasket/livedesk/internal/schedule"
)

type fakeViews struct{}

func (fakeViews) Live(context.Context) broadcasts.LiveView {
	return broadcasts.LiveView{
		Live:     []model.LiveEntry{{ID: "L1", Title: "Fribourg - Genève", URL: model.WatchURL("L1")}},
		Upcoming: []model.LiveEntry{},
		Meta:     broadcasts.LiveMeta{Source: broadcasts.SourceBroadcasts},
		Debug:    &broadcasts.LiveDebug{Credentials: "playground", Broadcasts: 1},
	}
}

func (fakeViews) Health(context.Context) broadcasts.HealthView {
	return broadcasts.HealthView{
		Items: []model.NormalizedLiveItem{{ID: "L1", Name: "Fribourg - Genève", Status: "perfect", StatusLabel: "Perfect"}},
		Debug: &broadcasts.HealthDebug{Live: 1},
	}
}

func (fakeViews) StreamKeys(context.Context) broadcasts.StreamKeysView {
	return broadcasts.StreamKeysView{Items: []model.StreamKeyItem{}}
}

func (fakeViews) YTUpcoming(context.Context) broadcasts.UpcomingView {
	return broadcasts.UpcomingView{Items: []model.UpcomingBroadcast{}, Source: "broadcasts"}
}

func (fakeViews) Feed(context.Context) broadcasts.FeedView {
	return broadcasts.FeedView{Live: []model.LiveEntry{}, Upcoming: []model.LiveEntry{}, Source: broadcasts.SourceAtom}
}

func (fakeViews) Debug(_ context.Context, envs credentials.Availability) broadcasts.DebugView {
	return broadcasts.DebugView{Envs: envs}
}

type fakeIssues struct {
	report keemotion.Report
	err    error
}

func (f fakeIssues) Issues(context.Context) (keemotion.Report, error) { return f.report, f.err }

type fakeSchedule struct {
	got schedule.Query
}

func (f *fakeSchedule) Upcoming(_ context.Context, q schedule.Query) ([]model.UpcomingEvent, error) {
	f.got = q
	return []model.UpcomingEvent{{Datetime: time.Date(2024, 3, 15, 17, 30, 0, 0, time.UTC), TeamA: "Fribourg", TeamB: "Genève", Production: model.ProductionKeemotion}}, nil
}

type fakeControl struct {
	calls int
}

func (f *fakeControl) Apply(_ context.Context, req livecontrol.Request) (livecontrol.Result, error) {
	f.calls++
	if err := livecontrol.Validate(req); err != nil {
		return livecontrol.Result{}, err
	}
	return livecontrol.Result{OK: true, Confirmed: true, Attempts: 1}, nil
}

type fakeProber struct{}

func (fakeProber) Probe(context.Context) credentials.Probe {
	return credentials.Probe{OK: true, Set: "playground", TokenType: "Bearer", ExpiresIn: 3599}
}

func newTestRouter(t *testing.T, issues fakeIssues) (http.Handler, *fakeSchedule, *fakeControl) {
	t.Helper()
	sched := &fakeSchedule{}
	control := &fakeControl{}
	router := NewRouter(Options{
		Views:       fakeViews{},
		Issues:      issues,
		Schedule:    sched,
		Control:     control,
		Prober:      fakeProber{},
		Credentials: credentials.Availability{Playground: true},
		AssetsDir:   t.TempDir(),
		HorizonDays: 7,
	})
	return router, sched, control
}

func serve(router http.Handler, method, target, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, target, nil)
	} else {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode %q: %v", rec.Body.String(), err)
	}
	return out
}

func TestLiveHidesDebugUnlessAsked(t *testing.T) {
	router, _, _ := newTestRouter(t, fakeIssues{})

	rec := serve(router, http.MethodGet, "/api/live", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	body := decode(t, rec)
	if _, ok := body["debug"]; ok {
		t.Fatalf("debug should be omitted: %v", body)
	}
	if meta := body["meta"].(map[string]any); meta["source"] != "broadcasts" {
		t.Fatalf("unexpected meta: %v", meta)
	}

	for _, flag := range []string{"1", "true", "TRUE"} {
		body = decode(t, serve(router, http.MethodGet, "/api/live?debug="+flag, ""))
		if _, ok := body["debug"]; !ok {
			t.Fatalf("debug=%s should include debug: %v", flag, body)
		}
	}
}

func TestHealthDebugFlag(t *testing.T) {
	router, _, _ := newTestRouter(t, fakeIssues{})
	body := decode(t, serve(router, http.MethodGet, "/api/health", ""))
	if _, ok := body["debug"]; ok {
		t.Fatalf("debug should be omitted: %v", body)
	}
	items := body["items"].([]any)
	if len(items) != 1 || items[0].(map[string]any)["statusLabel"] != "Perfect" {
		t.Fatalf("unexpected items: %v", items)
	}
	body = decode(t, serve(router, http.MethodGet, "/api/health?debug=1", ""))
	if _, ok := body["debug"]; !ok {
		t.Fatalf("expected debug payload")
	}
}

func TestIssuesErrorStays200(t *testing.T) {
	router, _, _ := newTestRouter(t, fakeIssues{
		report: keemotion.Report{Debug: keemotion.Debug{UsedURL: "https://k.example/game/arenas"}},
		err:    &keemotion.FetchError{Status: http.StatusForbidden},
	})
	rec := serve(router, http.MethodGet, "/api/issues?debug=1", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	body := decode(t, rec)
	if items, ok := body["items"].([]any); !ok || len(items) != 0 {
		t.Fatalf("expected empty items array, got %v", body["items"])
	}
	if body["error"] != "Keemotion fetch failed (403)" {
		t.Fatalf("unexpected error: %v", body["error"])
	}
	if debug := body["debug"].(map[string]any); debug["usedUrl"] != "https://k.example/game/arenas" {
		t.Fatalf("unexpected debug: %v", debug)
	}
}

func TestIssuesListsCritical(t *testing.T) {
	router, _, _ := newTestRouter(t, fakeIssues{report: keemotion.Report{Issues: []model.ArenaIssue{
		{Arena: "Salle du Pommier", Vendor: keemotion.Vendor, Status: "Critical", Note: "Encoder offline", Severity: model.SeverityCritical},
	}}})
	body := decode(t, serve(router, http.MethodGet, "/api/issues", ""))
	items := body["items"].([]any)
	if len(items) != 1 || items[0].(map[string]any)["arena"] != "Salle du Pommier" {
		t.Fatalf("unexpected items: %v", items)
	}
	if _, ok := body["debug"]; ok {
		t.Fatalf("debug should be omitted")
	}
}

func TestUpcomingQueryParams(t *testing.T) {
	router, sched, _ := newTestRouter(t, fakeIssues{})

	body := decode(t, serve(router, http.MethodGet, "/api/upcoming", ""))
	if sched.got.HorizonDays != 7 || sched.got.StreamedOnly {
		t.Fatalf("unexpected default query: %+v", sched.got)
	}
	items := body["items"].([]any)
	if len(items) != 1 || items[0].(map[string]any)["datetime"] != "2024-03-15T17:30:00Z" {
		t.Fatalf("unexpected items: %v", items)
	}

	serve(router, http.MethodGet, "/api/upcoming?days=14&streamed=1", "")
	if sched.got.HorizonDays != 14 || !sched.got.StreamedOnly {
		t.Fatalf("query params ignored: %+v", sched.got)
	}

	serve(router, http.MethodGet, "/api/upcoming?days=soon", "")
	if sched.got.HorizonDays != 7 {
		t.Fatalf("bad days should fall back to default, got %d", sched.got.HorizonDays)
	}
}

func TestLiveControlContract(t *testing.T) {
	router, _, control := newTestRouter(t, fakeIssues{})

	cases := []struct {
		name   string
		method string
		body   string
		status int
		ok     bool
		errMsg string
	}{
		{name: "missing id", method: http.MethodPost, body: `{"action":"endLive"}`, status: http.StatusBadRequest, errMsg: "Missing action or id"},
		{name: "empty body", method: http.MethodPost, status: http.StatusBadRequest, errMsg: "Missing action or id"},
		{name: "unknown action", method: http.MethodPost, body: `{"action":"unknown","id":"x"}`, status: http.StatusBadRequest, errMsg: "Unknown action"},
		{name: "invalid privacy", method: http.MethodPost, body: `{"action":"setVisibility","id":"x","privacy":"secret"}`, status: http.StatusBadRequest, errMsg: "Invalid privacy"},
		{name: "malformed json", method: http.MethodPost, body: `{"action":`, status: http.StatusOK},
		{name: "wrong method", method: http.MethodGet, status: http.StatusMethodNotAllowed, errMsg: "Method not allowed"},
		{name: "end live", method: http.MethodPost, body: `{"action":"endLive","id":"x"}`, status: http.StatusOK, ok: true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := serve(router, tc.method, "/api/live-control", tc.body)
			if rec.Code != tc.status {
				t.Fatalf("expected %d, got %d (%s)", tc.status, rec.Code, rec.Body.String())
			}
			body := decode(t, rec)
			if body["ok"] != tc.ok {
				t.Fatalf("expected ok=%v, got %v", tc.ok, body)
			}
			if tc.errMsg != "" && body["error"] != tc.errMsg {
				t.Fatalf("expected error %q, got %v", tc.errMsg, body["error"])
			}
			if !tc.ok && body["error"] == nil {
				t.Fatalf("expected an error message: %v", body)
			}
			if _, ok := body["confirmed"]; !tc.ok && ok {
				t.Fatalf("rejections should only carry ok and error: %v", body)
			}
		})
	}

	rec := serve(router, http.MethodPut, "/api/live-control", `{}`)
	if rec.Header().Get("Allow") != http.MethodPost {
		t.Fatalf("expected Allow header, got %q", rec.Header().Get("Allow"))
	}
	// malformed body and wrong method never reach the controller
	if control.calls != 5 {
		t.Fatalf("expected 5 controller calls, got %d", control.calls)
	}
}

func TestDebugAndStatusEndpoints(t *testing.T) {
	router, _, _ := newTestRouter(t, fakeIssues{})

	body := decode(t, serve(router, http.MethodGet, "/api/yt-debug", ""))
	if envs := body["envs"].(map[string]any); envs["playground"] != true || envs["legacy"] != false {
		t.Fatalf("unexpected envs: %v", envs)
	}
	body = decode(t, serve(router, http.MethodGet, "/api/yt-status", ""))
	if body["ok"] != true || body["token_type"] != "Bearer" {
		t.Fatalf("unexpected probe: %v", body)
	}
	body = decode(t, serve(router, http.MethodGet, "/api/live-feed", ""))
	if body["source"] != "atom" {
		t.Fatalf("unexpected feed: %v", body)
	}
}

func TestIndexAndOperations(t *testing.T) {
	router, _, _ := newTestRouter(t, fakeIssues{})

	rec := serve(router, http.MethodGet, "/", "")
	if rec.Code != http.StatusInternalServerError || !strings.Contains(rec.Body.String(), "Error loading index.html") {
		t.Fatalf("expected index error, got %d %q", rec.Code, rec.Body.String())
	}

	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "index.html"), []byte("<h1>desk</h1>"), 0o644); err != nil {
		t.Fatalf("write index: %v", err)
	}
	withIndex := NewRouter(Options{Views: fakeViews{}, AssetsDir: dir})
	rec = serve(withIndex, http.MethodGet, "/", "")
	if rec.Code != http.StatusOK || rec.Body.String() != "<h1>desk</h1>" {
		t.Fatalf("unexpected index: %d %q", rec.Code, rec.Body.String())
	}

	rec = serve(router, http.MethodGet, "/healthz", "")
	if rec.Body.String() != "ok" {
		t.Fatalf("unexpected healthz: %q", rec.Body.String())
	}
	serve(router, http.MethodGet, "/api/live", "")
	rec = serve(router, http.MethodGet, "/metrics", "")
	if !strings.Contains(rec.Body.String(), "livedesk_http_requests_total") {
		t.Fatalf("metrics missing request counter")
	}
	if rec.Header().Get("X-Request-ID") == "" {
		t.Fatalf("expected request id header")
	}
}

func TestPanicsBecome500(t *testing.T) {
	router := NewRouter(Options{Issues: fakeIssues{err: errors.New("x")}})
	rec := serve(router, http.MethodGet, "/api/live", "")
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("nil views should panic into a 500, got %d", rec.Code)
	}
}
