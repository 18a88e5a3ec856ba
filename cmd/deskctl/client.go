package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/swissbasket/livedesk/internal/broadcasts"
	"github.com/swissbasket/livedesk/internal/livecontrol"
	"github.com/swissbasket/livedesk/internal/model"
)

// client calls a running livedesk server.
type client struct {
	base string
	http *http.Client
}

func newClient(base string, timeout time.Duration) *client {
	return &client{base: strings.TrimRight(base, "/"), http: &http.Client{Timeout: timeout}}
}

func (c *client) do(ctx context.Context, method, path string, body, out any) error {
	var rdr io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return err
		}
		rdr = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.base+path, rdr)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return err
	}
	// live-control answers 400 with a JSON body worth decoding
	if resp.StatusCode >= 300 && resp.StatusCode != http.StatusBadRequest {
		return fmt.Errorf("%s %s: %s", method, path, resp.Status)
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decode %s: %w", path, err)
	}
	return nil
}

func (c *client) live(ctx context.Context) (broadcasts.LiveView, error) {
	var v broadcasts.LiveView
	return v, c.do(ctx, http.MethodGet, "/api/live", nil, &v)
}

func (c *client) health(ctx context.Context) (broadcasts.HealthView, error) {
	var v broadcasts.HealthView
	return v, c.do(ctx, http.MethodGet, "/api/health", nil, &v)
}

func (c *client) streamKeys(ctx context.Context) (broadcasts.StreamKeysView, error) {
	var v broadcasts.StreamKeysView
	return v, c.do(ctx, http.MethodGet, "/api/stream-keys", nil, &v)
}

type issuesView struct {
	Items []model.ArenaIssue `json:"items"`
	Error string             `json:"error,omitempty"`
}

func (c *client) issues(ctx context.Context) (issuesView, error) {
	var v issuesView
	return v, c.do(ctx, http.MethodGet, "/api/issues", nil, &v)
}

type upcomingView struct {
	Items []model.UpcomingEvent `json:"items"`
	Error string                `json:"error,omitempty"`
}

func (c *client) upcoming(ctx context.Context, days int, streamed bool) (upcomingView, error) {
	q := url.Values{}
	if days > 0 {
		q.Set("days", strconv.Itoa(days))
	}
	if streamed {
		q.Set("streamed", "1")
	}
	path := "/api/upcoming"
	if len(q) > 0 {
		path += "?" + q.Encode()
	}
	var v upcomingView
	return v, c.do(ctx, http.MethodGet, path, nil, &v)
}

func (c *client) control(ctx context.Context, req livecontrol.Request) (livecontrol.Result, error) {
	var res livecontrol.Result
	return res, c.do(ctx, http.MethodPost, "/api/live-control", req, &res)
}
