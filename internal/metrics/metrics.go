// Package metrics exposes Prometheus collectors for livedesk.
//
// Mount Handler at GET /metrics. Series:
//
//	livedesk_http_requests_total          counter by route/method/status
//	livedesk_http_request_duration_seconds histogram by route/method
//	livedesk_upstream_requests_total      counter by upstream/outcome
//	livedesk_upstream_duration_seconds    histogram by upstream
//	livedesk_cache_lookups_total          counter by key/result
//	livedesk_quota_backoffs_total         counter by key
//	livedesk_live_control_total           counter by action/result
//	livedesk_critical_arenas              gauge
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// HTTPRequests counts handled requests.
var HTTPRequests = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "livedesk_http_requests_total",
	Help: "Total HTTP requests handled.",
}, []string{"route", "method", "status"})

// HTTPDuration tracks handler latency.
var HTTPDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
	Name:    "livedesk_http_request_duration_seconds",
	Help:    "HTTP request latency in seconds.",
	Buckets: prometheus.DefBuckets,
}, []string{"route", "method"})

// UpstreamRequests counts outbound calls by upstream host label and outcome.
var UpstreamRequests = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "livedesk_upstream_requests_total",
	Help: "Outbound requests to YouTube, Keemotion and the schedule sheet.",
}, []string{"upstream", "outcome"})

// UpstreamDuration tracks outbound latency.
var UpstreamDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
	Name:    "livedesk_upstream_duration_seconds",
	Help:    "Outbound request latency in seconds.",
	Buckets: []float64{.05, .1, .25, .5, 1, 2.5, 5, 10, 20},
}, []string{"upstream"})

// CacheLookups counts memo lookups by result: hit, miss, stale, backoff.
var CacheLookups = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "livedesk_cache_lookups_total",
	Help: "Cache lookups by key and result.",
}, []string{"key", "result"})

// QuotaBackoffs counts backoff windows opened after quota errors.
var QuotaBackoffs = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "livedesk_quota_backoffs_total",
	Help: "Quota backoff windows started.",
}, []string{"key"})

// LiveControl counts mutation requests by action and result.
var LiveControl = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "livedesk_live_control_total",
	Help: "Live-control mutations by action and result.",
}, []string{"action", "result"})

// CriticalArenas is the number of arenas flagged critical on the last fetch.
var CriticalArenas = promauto.NewGauge(prometheus.GaugeOpts{
	Name: "livedesk_critical_arenas",
	Help: "Arenas flagged critical by the last issues fetch.",
})

// Handler returns the Prometheus scrape handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObserveUpstream records one outbound call.
func ObserveUpstream(upstream, outcome string, d time.Duration) {
	UpstreamRequests.WithLabelValues(upstream, outcome).Inc()
	UpstreamDuration.WithLabelValues(upstream).Observe(d.Seconds())
}

// Middleware records request counts and latency labelled by the chi route pattern.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rw := &responseWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rw, r)
		route := routePattern(r)
		HTTPRequests.WithLabelValues(route, r.Method, strconv.Itoa(rw.status)).Inc()
		HTTPDuration.WithLabelValues(route, r.Method).Observe(time.Since(start).Seconds())
	})
}

func routePattern(r *http.Request) string {
	if rctx := chi.RouteContext(r.Context()); rctx != nil {
		if p := rctx.RoutePattern(); p != "" {
			return p
		}
	}
	return "unmatched"
}

type responseWriter struct {
	http.ResponseWriter
	status      int
	wroteHeader bool
}

func (rw *responseWriter) WriteHeader(code int) {
	if !rw.wroteHeader {
		rw.status = code
		rw.wroteHeader = true
	}
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *responseWriter) Flush() {
	if f, ok := rw.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}
