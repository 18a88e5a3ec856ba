package credentials

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/swissbasket/livedesk/internal/config"
	"github.com/swissbasket/livedesk/logging"
)

var (
	playground = config.Credentials{ClientID: "pg-id", ClientSecret: "pg-secret", RefreshToken: "pg-refresh"}
	fallback   = config.Credentials{ClientID: "id", ClientSecret: "secret", RefreshToken: "refresh"}
)

func TestResolvePrefersPlayground(t *testing.T) {
	got, err := Resolve(config.YouTubeConfig{Playground: playground, Default: fallback})
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if got.Name != SetPlayground || got.Credentials != playground {
		t.Fatalf("expected playground set, got %+v", got)
	}
}

func TestResolveFallsBackWhenPlaygroundIncomplete(t *testing.T) {
	partial := playground
	partial.RefreshToken = ""
	got, err := Resolve(config.YouTubeConfig{Playground: partial, Default: fallback})
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if got.Name != SetDefault {
		t.Fatalf("expected default set, got %s", got.Name)
	}
}

func TestResolveIncomplete(t *testing.T) {
	_, err := Resolve(config.YouTubeConfig{Default: config.Credentials{ClientID: "x"}})
	var te *TokenError
	if !errors.As(err, &te) || !errors.Is(err, ErrIncomplete) {
		t.Fatalf("expected TokenError wrapping ErrIncomplete, got %v", err)
	}
}

func newTokenServer(t *testing.T, status int, body string, captured *url.Values) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("expected POST, got %s", r.Method)
		}
		raw, _ := io.ReadAll(r.Body)
		if captured != nil {
			*captured, _ = url.ParseQuery(string(raw))
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = io.WriteString(w, body)
	}))
}

func TestTokenExchangesRefreshToken(t *testing.T) {
	var form url.Values
	srv := newTokenServer(t, http.StatusOK, `{"access_token":"ya29.abc","token_type":"Bearer","expires_in":3599,"scope":"https://www.googleapis.com/auth/youtube"}`, &form)
	defer srv.Close()

	src := Source{Config: config.YouTubeConfig{Default: fallback, TokenURL: srv.URL}, Logger: logging.New("test", logging.DEBUG, io.Discard)}
	tok, resolved, err := src.Token(context.Background())
	if err != nil {
		t.Fatalf("token: %v", err)
	}
	if tok.AccessToken != "ya29.abc" || resolved.Name != SetDefault {
		t.Fatalf("unexpected token %+v resolved %+v", tok, resolved)
	}
	if form.Get("grant_type") != "refresh_token" || form.Get("refresh_token") != "refresh" || form.Get("client_id") != "id" || form.Get("client_secret") != "secret" {
		t.Fatalf("unexpected form: %v", form)
	}
}

func TestTokenFailsOnHTTPError(t *testing.T) {
	srv := newTokenServer(t, http.StatusBadRequest, `{"error":"invalid_grant","error_description":"Token has been expired or revoked."}`, nil)
	defer srv.Close()

	src := Source{Config: config.YouTubeConfig{Default: fallback, TokenURL: srv.URL}}
	_, _, err := src.Token(context.Background())
	var te *TokenError
	if !errors.As(err, &te) {
		t.Fatalf("expected TokenError, got %v", err)
	}
	if te.Status != http.StatusBadRequest || te.Code != "invalid_grant" {
		t.Fatalf("unexpected token error: %+v", te)
	}
}

func TestTokenFailsWithoutAccessToken(t *testing.T) {
	srv := newTokenServer(t, http.StatusOK, `{"token_type":"Bearer"}`, nil)
	defer srv.Close()

	src := Source{Config: config.YouTubeConfig{Default: fallback, TokenURL: srv.URL}}
	_, _, err := src.Token(context.Background())
	var te *TokenError
	if !errors.As(err, &te) || te.Stage != "response" {
		t.Fatalf("expected response TokenError, got %v", err)
	}
}

func TestProbeReportsScope(t *testing.T) {
	srv := newTokenServer(t, http.StatusOK, `{"access_token":"a","token_type":"Bearer","expires_in":3600,"scope":"yt"}`, nil)
	defer srv.Close()

	p := Source{Config: config.YouTubeConfig{Playground: playground, TokenURL: srv.URL}}.Probe(context.Background())
	if !p.OK || p.Set != SetPlayground || p.Scope != "yt" || p.ExpiresIn != 3600 {
		t.Fatalf("unexpected probe: %+v", p)
	}
}

func TestProbeReportsMissingCredentials(t *testing.T) {
	p := Source{}.Probe(context.Background())
	if p.OK || p.Error == "" {
		t.Fatalf("expected failed probe, got %+v", p)
	}
}
