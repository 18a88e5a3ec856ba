package youtube

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/swissbasket/livedesk/internal/credentials"
	"github.com/swissbasket/livedesk/logging"
	"golang.org/x/oauth2"
)

func newAPIServer(t *testing.T, routes map[string]http.HandlerFunc) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	for path, h := range routes {
		mux.HandleFunc(path, h)
	}
	return httptest.NewServer(mux)
}

func newTestClient(t *testing.T, srv *httptest.Server) *Client {
	t.Helper()
	c, err := NewClient(context.Background(), srv.Client(), srv.URL, logging.New("test", logging.DEBUG, io.Discard))
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	return c
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

func TestMyBroadcastsFollowsPagination(t *testing.T) {
	var calls int
	srv := newAPIServer(t, map[string]http.HandlerFunc{
		"/youtube/v3/liveBroadcasts": func(w http.ResponseWriter, r *http.Request) {
			calls++
			q := r.URL.Query()
			if q.Get("mine") != "true" || q.Get("broadcastStatus") != "" {
				t.Errorf("expected mine=true without broadcastStatus, got %s", r.URL.RawQuery)
			}
			if q.Get("pageToken") == "" {
				writeJSON(w, map[string]any{
					"nextPageToken": "p2",
					"items": []any{map[string]any{
						"id":             "b1",
						"snippet":        map[string]any{"title": "Game 1", "actualStartTime": "2024-03-15T17:30:00Z"},
						"status":         map[string]any{"lifeCycleStatus": "live", "privacyStatus": "public"},
						"contentDetails": map[string]any{"boundStreamId": "s1"},
					}},
				})
				return
			}
			writeJSON(w, map[string]any{"items": []any{map[string]any{
				"id":      "b2",
				"snippet": map[string]any{"title": "Game 2", "scheduledStartTime": "2024-03-16T17:30:00Z"},
				"status":  map[string]any{"lifeCycleStatus": "ready", "privacyStatus": "unlisted"},
			}}})
		},
	})
	defer srv.Close()

	got, err := newTestClient(t, srv).MyBroadcasts(context.Background())
	if err != nil {
		t.Fatalf("my broadcasts: %v", err)
	}
	if calls != 2 || len(got) != 2 {
		t.Fatalf("expected 2 pages and 2 items, got %d calls %d items", calls, len(got))
	}
	b := got[0]
	if b.ID != "b1" || b.LifeCycleStatus != "live" || b.BoundStreamID != "s1" || b.ActualStartTime.IsZero() {
		t.Fatalf("unexpected first record: %+v", b)
	}
	if got[1].PrivacyStatus != "unlisted" || got[1].ScheduledStartTime.Hour() != 17 {
		t.Fatalf("unexpected second record: %+v", got[1])
	}
}

func TestStreamsMapsIngestAndHealth(t *testing.T) {
	srv := newAPIServer(t, map[string]http.HandlerFunc{
		"/youtube/v3/liveStreams": func(w http.ResponseWriter, r *http.Request) {
			if got := strings.Join(r.URL.Query()["id"], ","); got != "s1,s2" {
				t.Errorf("expected ids s1,s2 got %q", got)
			}
			writeJSON(w, map[string]any{"items": []any{
				map[string]any{
					"id":      "s1",
					"snippet": map[string]any{"title": "Court 1"},
					"cdn":     map[string]any{"ingestionInfo": map[string]any{"ingestionAddress": "rtmp://a.rtmp.youtube.com/live2", "streamName": "abcd-efgh"}},
					"status":  map[string]any{"streamStatus": "active", "healthStatus": map[string]any{"status": "good", "lastUpdateTimeSeconds": "1710523800"}},
				},
			}})
		},
	})
	defer srv.Close()

	got, err := newTestClient(t, srv).Streams(context.Background(), []string{"s1", "s2", "s1", ""})
	if err != nil {
		t.Fatalf("streams: %v", err)
	}
	s, ok := got["s1"]
	if !ok {
		t.Fatalf("missing s1 in %v", got)
	}
	if s.StreamName != "abcd-efgh" || s.HealthStatus != "good" || s.Title != "Court 1" {
		t.Fatalf("unexpected stream: %+v", s)
	}
	if !s.LastUpdateTime.Equal(time.Unix(1710523800, 0)) {
		t.Fatalf("unexpected last update %s", s.LastUpdateTime)
	}
}

func TestSearchUsesChannelOrForMine(t *testing.T) {
	var queries []string
	srv := newAPIServer(t, map[string]http.HandlerFunc{
		"/youtube/v3/search": func(w http.ResponseWriter, r *http.Request) {
			queries = append(queries, r.URL.RawQuery)
			writeJSON(w, map[string]any{"items": []any{
				map[string]any{"id": map[string]any{"videoId": "v1"}, "snippet": map[string]any{"title": "Live now"}},
				map[string]any{"id": map[string]any{"channelId": "c"}},
			}})
		},
	})
	defer srv.Close()
	c := newTestClient(t, srv)

	hits, err := c.Search(context.Background(), SearchQuery{EventType: "live"})
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(hits) != 1 || hits[0].VideoID != "v1" {
		t.Fatalf("unexpected hits: %+v", hits)
	}
	if _, err := c.Search(context.Background(), SearchQuery{EventType: "upcoming", ChannelID: "UC1"}); err != nil {
		t.Fatalf("search: %v", err)
	}
	if !strings.Contains(queries[0], "forMine=true") || strings.Contains(queries[0], "channelId") {
		t.Fatalf("expected forMine query, got %s", queries[0])
	}
	if !strings.Contains(queries[1], "channelId=UC1") || strings.Contains(queries[1], "forMine") {
		t.Fatalf("expected channel query, got %s", queries[1])
	}
}

func TestVideosReadsLiveStreamingDetails(t *testing.T) {
	srv := newAPIServer(t, map[string]http.HandlerFunc{
		"/youtube/v3/videos": func(w http.ResponseWriter, r *http.Request) {
			writeJSON(w, map[string]any{"items": []any{map[string]any{
				"id":                   "v1",
				"snippet":              map[string]any{"title": "Game", "publishedAt": "2024-03-10T10:00:00Z"},
				"liveStreamingDetails": map[string]any{"scheduledStartTime": "2024-03-15T17:30:00Z"},
				"status":               map[string]any{"privacyStatus": "private"},
			}}})
		},
	})
	defer srv.Close()

	got, err := newTestClient(t, srv).Videos(context.Background(), []string{"v1"})
	if err != nil {
		t.Fatalf("videos: %v", err)
	}
	v := got["v1"]
	if v.ScheduledStartTime.IsZero() || v.PrivacyStatus != "private" || v.Title != "Game" {
		t.Fatalf("unexpected details: %+v", v)
	}
}

func TestSetPrivacyAndTransition(t *testing.T) {
	var update map[string]any
	var transition string
	srv := newAPIServer(t, map[string]http.HandlerFunc{
		"/youtube/v3/liveBroadcasts": func(w http.ResponseWriter, r *http.Request) {
			if r.Method != http.MethodPut {
				t.Errorf("expected PUT, got %s", r.Method)
			}
			_ = json.NewDecoder(r.Body).Decode(&update)
			writeJSON(w, update)
		},
		"/youtube/v3/liveBroadcasts/transition": func(w http.ResponseWriter, r *http.Request) {
			transition = r.URL.Query().Get("broadcastStatus") + ":" + r.URL.Query().Get("id")
			writeJSON(w, map[string]any{"id": "b1"})
		},
	})
	defer srv.Close()
	c := newTestClient(t, srv)

	if err := c.SetPrivacy(context.Background(), "b1", "unlisted"); err != nil {
		t.Fatalf("set privacy: %v", err)
	}
	status, _ := update["status"].(map[string]any)
	if update["id"] != "b1" || status["privacyStatus"] != "unlisted" {
		t.Fatalf("unexpected update body: %v", update)
	}
	if err := c.Transition(context.Background(), "b1", "complete"); err != nil {
		t.Fatalf("transition: %v", err)
	}
	if transition != "complete:b1" {
		t.Fatalf("unexpected transition call %q", transition)
	}
}

func TestQuotaErrorDetection(t *testing.T) {
	srv := newAPIServer(t, map[string]http.HandlerFunc{
		"/youtube/v3/liveBroadcasts": func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusForbidden)
			_, _ = io.WriteString(w, `{"error":{"code":403,"message":"The request cannot be completed because you have exceeded your quota.","errors":[{"reason":"quotaExceeded","domain":"youtube.quota"}]}}`)
		},
	})
	defer srv.Close()

	_, err := newTestClient(t, srv).MyBroadcasts(context.Background())
	if err == nil {
		t.Fatalf("expected error")
	}
	if !IsQuotaError(err) {
		t.Fatalf("expected quota error, got %v", err)
	}
	if HTTPStatus(err) != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", HTTPStatus(err))
	}
	if IsQuotaError(errors.New("plain")) || IsQuotaError(fmt.Errorf("wrapped: %w", context.Canceled)) {
		t.Fatalf("plain errors must not count as quota errors")
	}
}

type staticTokens struct {
	tok *oauth2.Token
	err error
}

func (s staticTokens) Token(context.Context) (*oauth2.Token, credentials.Resolved, error) {
	return s.tok, credentials.Resolved{Name: credentials.SetDefault}, s.err
}

func TestConnectorSendsBearerToken(t *testing.T) {
	var auth string
	srv := newAPIServer(t, map[string]http.HandlerFunc{
		"/youtube/v3/channels": func(w http.ResponseWriter, r *http.Request) {
			auth = r.Header.Get("Authorization")
			writeJSON(w, map[string]any{"items": []any{map[string]any{"id": "UC123", "snippet": map[string]any{"title": "Swiss Basket"}}}})
		},
	})
	defer srv.Close()

	conn := Connector{Tokens: staticTokens{tok: &oauth2.Token{AccessToken: "ya29.x", TokenType: "Bearer"}}, Base: srv.Client(), Endpoint: srv.URL}
	c, resolved, err := conn.Connect(context.Background())
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	id, err := c.MyChannelID(context.Background())
	if err != nil {
		t.Fatalf("channel id: %v", err)
	}
	if id != "UC123" || auth != "Bearer ya29.x" || resolved.Name != credentials.SetDefault {
		t.Fatalf("unexpected id=%q auth=%q resolved=%+v", id, auth, resolved)
	}
}

func TestConnectorPropagatesTokenError(t *testing.T) {
	conn := Connector{Tokens: staticTokens{err: &credentials.TokenError{Stage: "credentials", Err: credentials.ErrIncomplete}}}
	if _, _, err := conn.Connect(context.Background()); !errors.Is(err, credentials.ErrIncomplete) {
		t.Fatalf("expected incomplete credentials error, got %v", err)
	}
}
