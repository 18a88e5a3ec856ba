// Package upstream builds the outbound HTTP clients used for YouTube, Keemotion and the schedule sheet.
package upstream

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/swissbasket/livedesk/internal/metrics"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

// Options configures a client.
type Options struct {
	// Name labels metrics and spans, e.g. "youtube".
	Name        string
	Timeout     time.Duration
	MinInterval time.Duration
	Base        http.RoundTripper
}

// NewClient returns an *http.Client whose transport traces, counts and
// optionally spaces out requests.
func NewClient(opts Options) *http.Client {
	rt := opts.Base
	if rt == nil {
		rt = http.DefaultTransport
	}
	if opts.MinInterval > 0 {
		rt = &throttledTransport{base: rt, interval: opts.MinInterval}
	}
	rt = instrumentedTransport{name: opts.Name, base: rt}
	rt = otelhttp.NewTransport(rt, otelhttp.WithSpanNameFormatter(func(_ string, r *http.Request) string {
		return opts.Name + " " + r.Method + " " + r.URL.Path
	}))
	return &http.Client{Timeout: opts.Timeout, Transport: rt}
}

// throttledTransport keeps at least interval between request starts.
type throttledTransport struct {
	base     http.RoundTripper
	interval time.Duration

	mu   sync.Mutex
	next time.Time
}

func (t *throttledTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if err := t.wait(req.Context()); err != nil {
		return nil, err
	}
	return t.base.RoundTrip(req)
}

func (t *throttledTransport) wait(ctx context.Context) error {
	t.mu.Lock()
	now := time.Now()
	start := t.next
	if start.Before(now) {
		start = now
	}
	t.next = start.Add(t.interval)
	t.mu.Unlock()

	delay := time.Until(start)
	if delay <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

type instrumentedTransport struct {
	name string
	base http.RoundTripper
}

func (t instrumentedTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	start := time.Now()
	resp, err := t.base.RoundTrip(req)
	metrics.ObserveUpstream(t.name, outcome(resp, err), time.Since(start))
	return resp, err
}

func outcome(resp *http.Response, err error) string {
	switch {
	case err != nil:
		return "error"
	case resp.StatusCode >= 500:
		return "5xx"
	case resp.StatusCode >= 400:
		return "4xx"
	default:
		return "ok"
	}
}
