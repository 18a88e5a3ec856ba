package schedule

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/swissbasket/livedesk/internal/config"
	"github.com/swissbasket/livedesk/internal/model"
	"github.com/swissbasket/livedesk/internal/reconcile"
	"github.com/swissbasket/livedesk/logging"
)

// Client fetches the published sheet.
type Client struct {
	URL        string
	HTTPClient *http.Client
	Logger     *logging.Logger
	Location   *time.Location
	Now        func() time.Time
}

// Query narrows Upcoming.
type Query struct {
	HorizonDays  int
	StreamedOnly bool
}

// NewClient returns a client reading url in Europe/Zurich time.
func NewClient(url string, httpClient *http.Client, logger *logging.Logger) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Client{URL: url, HTTPClient: httpClient, Logger: logger, Location: reconcile.Zurich(), Now: time.Now}
}

// Rows downloads the sheet and returns its rows. An HTML response is read as
// the published-to-web table.
func (c *Client) Rows(ctx context.Context) ([][]string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.URL, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "text/csv, text/html;q=0.5")
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch sheet: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("schedule fetch failed (%d)", resp.StatusCode)
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, 8<<20))
	if err != nil {
		return nil, fmt.Errorf("read sheet: %w", err)
	}
	if isHTML(resp.Header.Get("Content-Type"), body) {
		c.Logger.Debug("schedule", "sheet returned html, reading table", map[string]any{"bytes": len(body)})
		return ParseHTML(bytes.NewReader(body))
	}
	return ParseCSV(bytes.NewReader(body))
}

func isHTML(contentType string, body []byte) bool {
	if strings.Contains(strings.ToLower(contentType), "text/html") {
		return true
	}
	return bytes.HasPrefix(bytes.TrimSpace(body), []byte("<"))
}

// Upcoming returns events inside the horizon, sorted by start.
func (c *Client) Upcoming(ctx context.Context, q Query) ([]model.UpcomingEvent, error) {
	rows, err := c.Rows(ctx)
	if err != nil {
		c.Logger.Warn("schedule", "sheet unavailable", map[string]any{"error": err.Error()})
		return []model.UpcomingEvent{}, err
	}
	events, err := Events(rows, c.Location)
	if err != nil {
		return []model.UpcomingEvent{}, err
	}
	now := time.Now
	if c.Now != nil {
		now = c.Now
	}
	out := Filter(events, now(), config.ClampHorizon(q.HorizonDays), q.StreamedOnly)
	c.Logger.Debug("schedule", "sheet parsed", map[string]any{"rows": len(rows) - 1, "events": len(events), "kept": len(out)})
	return out, nil
}
