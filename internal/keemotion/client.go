// Package keemotion reads arena ingest health from the Keemotion API and
// flags arenas whose encoder or network is in trouble.
package keemotion

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strings"
	"sync"

	"github.com/swissbasket/livedesk/internal/config"
	"github.com/swissbasket/livedesk/internal/metrics"
	"github.com/swissbasket/livedesk/internal/model"
	"github.com/swissbasket/livedesk/logging"
)

var (
	headerToken  = regexp.MustCompile(`[A-Za-z0-9\-._~+/=]{20,}`)
	meToken      = regexp.MustCompile(`eyJ[A-Za-z0-9\-._=]{10,}|[A-Za-z0-9\-._~+/=]{30,}`)
	schemePrefix = regexp.MustCompile(`(?i)^(OAuth2|Bearer)\s+`)
)

const rawPreview = 200

// FetchError is returned when no arenas URL produced a usable payload.
type FetchError struct {
	Status int
	Err    error
}

func (e *FetchError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("Keemotion fetch failed (%d): %v", e.Status, e.Err)
	}
	return fmt.Sprintf("Keemotion fetch failed (%d)", e.Status)
}

func (e *FetchError) Unwrap() error { return e.Err }

// AuthStep records one attempt of the token chain.
type AuthStep struct {
	Step   string `json:"step"`
	Status int    `json:"status,omitempty"`
	Raw    string `json:"raw,omitempty"`
	Error  string `json:"error,omitempty"`
}

// AuthFlow describes how the bearer token was obtained.
type AuthFlow struct {
	UsedStaticToken bool       `json:"usedStaticEnvToken,omitempty"`
	Tried           []AuthStep `json:"tried,omitempty"`
	TokenFound      bool       `json:"tokenFound"`
	TokenSource     string     `json:"tokenSource,omitempty"`
}

// Debug is attached to /api/issues responses when requested.
type Debug struct {
	AuthFlow   AuthFlow `json:"authFlow"`
	UsedURL    string   `json:"usedUrl,omitempty"`
	SentCookie bool     `json:"sentCookie"`
	Arenas     int      `json:"arenas"`
}

// Report is the outcome of one issues fetch.
type Report struct {
	Issues []model.ArenaIssue `json:"items"`
	Debug  Debug              `json:"debug"`
}

// Client talks to the Keemotion API. The token derived from the session
// cookie is kept for the life of the client.
type Client struct {
	cfg    config.KeemotionConfig
	http   *http.Client
	logger *logging.Logger

	mu      sync.Mutex
	derived string
}

// NewClient returns a client for cfg using httpClient for every call.
func NewClient(cfg config.KeemotionConfig, httpClient *http.Client, logger *logging.Logger) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	if len(cfg.Agents) == 0 {
		cfg.Agents = []string{"KeecastWeb 5.24.2"}
	}
	if cfg.AuthScheme == "" {
		cfg.AuthScheme = "OAuth2"
	}
	cfg.APIBase = strings.TrimRight(cfg.APIBase, "/")
	return &Client{cfg: cfg, http: httpClient, logger: logger}
}

type response struct {
	status int
	header http.Header
	body   []byte
}

func (r response) ok() bool { return r.status >= 200 && r.status < 300 }

func (r response) preview() string {
	s := string(r.body)
	if len(s) > rawPreview {
		s = s[:rawPreview]
	}
	return s
}

func (c *Client) do(ctx context.Context, method, url, agent string, extra http.Header, body io.Reader) (response, error) {
	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return response{}, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", agent)
	req.Header.Set("Keemotion-Agent", agent)
	if c.cfg.AcceptLanguage != "" {
		req.Header.Set("Accept-Language", c.cfg.AcceptLanguage)
	}
	if c.cfg.Referer != "" {
		req.Header.Set("Referer", c.cfg.Referer)
	}
	if c.cfg.Origin != "" {
		req.Header.Set("Origin", c.cfg.Origin)
	}
	for k, v := range extra {
		req.Header[k] = v
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return response{}, err
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return response{}, fmt.Errorf("read body: %w", err)
	}
	return response{status: resp.StatusCode, header: resp.Header, body: data}, nil
}

func (c *Client) cookieHeader() http.Header {
	h := http.Header{}
	if c.cfg.CookieT != "" {
		h.Set("Cookie", "t="+c.cfg.CookieT)
	}
	return h
}

// tokenFrom looks for a token in the JSON body, then in the Authorization header.
func tokenFrom(r response) (string, string) {
	var body map[string]any
	if json.Unmarshal(r.body, &body) == nil {
		for _, k := range []string{"access_token", "token", "jwt", "accessToken"} {
			if s, ok := body[k].(string); ok && s != "" {
				return s, "json"
			}
		}
	}
	if h := r.header.Get("Authorization"); h != "" && headerToken.MatchString(h) {
		return schemePrefix.ReplaceAllString(h, ""), "header"
	}
	return "", ""
}

// Token returns the bearer token: the static one, the cached derived one, or
// one obtained from the session cookie.
func (c *Client) Token(ctx context.Context) (string, AuthFlow) {
	if c.cfg.Token != "" {
		return c.cfg.Token, AuthFlow{UsedStaticToken: true, TokenFound: true, TokenSource: "static"}
	}
	c.mu.Lock()
	derived := c.derived
	c.mu.Unlock()
	if derived != "" {
		return derived, AuthFlow{TokenFound: true, TokenSource: "cache"}
	}

	token, flow := c.tokenFromCookie(ctx)
	if token != "" {
		c.mu.Lock()
		c.derived = token
		c.mu.Unlock()
		c.logger.Info("keemotion", "derived token from session cookie", map[string]any{"source": flow.TokenSource})
	}
	return token, flow
}

func (c *Client) forgetToken() {
	c.mu.Lock()
	c.derived = ""
	c.mu.Unlock()
}

func (c *Client) tokenFromCookie(ctx context.Context) (string, AuthFlow) {
	var flow AuthFlow
	if c.cfg.CookieT == "" {
		flow.Tried = append(flow.Tried, AuthStep{Step: "no cookie supplied"})
		return "", flow
	}
	tokenURL := c.cfg.APIBase + "/auth/token"

	attempt := func(step, method, url, agent string, extra http.Header, body string) (response, bool) {
		var rdr io.Reader
		if body != "" {
			rdr = strings.NewReader(body)
		}
		r, err := c.do(ctx, method, url, agent, extra, rdr)
		if err != nil {
			flow.Tried = append(flow.Tried, AuthStep{Step: step, Error: err.Error()})
			return response{}, false
		}
		flow.Tried = append(flow.Tried, AuthStep{Step: step, Status: r.status, Raw: r.preview()})
		return r, true
	}

	for _, agent := range c.cfg.Agents {
		extra := c.cookieHeader()
		extra.Set("Content-Type", "application/json")
		extra.Set("Cache-Control", "no-cache")
		r, ok := attempt("PUT /auth/token ("+agent+")", http.MethodPut, tokenURL, agent, extra, "{}")
		if !ok {
			continue
		}
		if token, where := tokenFrom(r); token != "" {
			flow.TokenFound, flow.TokenSource = true, where+"(PUT)"
			return token, flow
		}
	}

	agent := c.cfg.Agents[0]
	if r, ok := attempt("GET /auth/token", http.MethodGet, tokenURL, agent, c.cookieHeader(), ""); ok {
		if token, where := tokenFrom(r); token != "" {
			flow.TokenFound, flow.TokenSource = true, where+"(GET)"
			return token, flow
		}
	}

	if r, ok := attempt("GET /me", http.MethodGet, c.cfg.APIBase+"/me", agent, c.cookieHeader(), ""); ok {
		if m := meToken.Find(r.body); m != nil {
			flow.TokenFound, flow.TokenSource = true, "regex(/me)"
			return string(m), flow
		}
	}
	return "", flow
}

// ArenaURLs lists the arenas listing shapes accepted by different tenants.
func (c *Client) ArenaURLs() []string {
	path := c.cfg.ArenasBasePath
	if path == "" {
		path = "/game/arenas"
	}
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	base := c.cfg.APIBase + path + "?inactive=false&can_schedule=true&sort=name,asc"
	o, l := c.cfg.Offset, c.cfg.Limit
	if l <= 0 {
		l = 25
	}
	return []string{
		fmt.Sprintf("%s&page=%d,%d", base, o, l),
		fmt.Sprintf("%s&page=%d&size=%d", base, o, l),
		fmt.Sprintf("%s&limit=%d&offset=%d", base, l, o),
	}
}

// decodeArenas accepts a bare array or an object wrapping one in results or content.
func decodeArenas(body []byte) ([]map[string]any, bool) {
	var list []map[string]any
	if json.Unmarshal(body, &list) == nil && list != nil {
		return list, true
	}
	var wrapped map[string]json.RawMessage
	if json.Unmarshal(body, &wrapped) != nil {
		return nil, false
	}
	for _, k := range []string{"results", "content"} {
		raw, ok := wrapped[k]
		if !ok {
			continue
		}
		if json.Unmarshal(raw, &list) == nil && list != nil {
			return list, true
		}
	}
	return nil, false
}

// Arenas fetches the raw arena list, trying each URL shape in turn.
func (c *Client) Arenas(ctx context.Context) ([]map[string]any, Debug, error) {
	token, flow := c.Token(ctx)
	debug := Debug{AuthFlow: flow, SentCookie: c.cfg.CookieT != ""}

	extra := c.cookieHeader()
	if token != "" {
		extra.Set("Authorization", c.cfg.AuthScheme+" "+token)
	}

	last := &FetchError{}
	for _, u := range c.ArenaURLs() {
		r, err := c.do(ctx, http.MethodGet, u, c.cfg.Agents[0], extra, nil)
		if err != nil {
			last = &FetchError{Err: err}
			c.logger.Warn("keemotion", "arenas request failed", map[string]any{"url": u, "error": err.Error()})
			continue
		}
		if !r.ok() {
			last = &FetchError{Status: r.status}
			continue
		}
		arenas, ok := decodeArenas(r.body)
		if !ok {
			last = &FetchError{Status: r.status}
			continue
		}
		debug.UsedURL = u
		debug.Arenas = len(arenas)
		return arenas, debug, nil
	}
	if last.Status == http.StatusUnauthorized && flow.TokenSource != "static" {
		c.forgetToken()
	}
	return nil, debug, last
}

// Issues returns the arenas currently flagged critical.
func (c *Client) Issues(ctx context.Context) (Report, error) {
	arenas, debug, err := c.Arenas(ctx)
	if err != nil {
		c.logger.Error("keemotion", "issues fetch failed", err, map[string]any{"cookie": debug.SentCookie, "token": debug.AuthFlow.TokenFound})
		return Report{Issues: []model.ArenaIssue{}, Debug: debug}, err
	}
	issues := CriticalIssues(arenas)
	metrics.CriticalArenas.Set(float64(len(issues)))
	return Report{Issues: issues, Debug: debug}, nil
}
