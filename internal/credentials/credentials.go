// Package credentials selects the YouTube OAuth client and exchanges its refresh token.
package credentials

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/swissbasket/livedesk/internal/config"
	"github.com/swissbasket/livedesk/logging"
	"golang.org/x/oauth2"
)

// ErrIncomplete means neither credential set has all three fields.
var ErrIncomplete = errors.New("missing client_id / client_secret / refresh_token")

// Credential set names.
const (
	SetPlayground = "playground"
	SetDefault    = "default"
)

// Resolved is the credential set chosen for a request.
type Resolved struct {
	Name        string
	Credentials config.Credentials
}

// Resolve picks the playground set when complete, otherwise the default set.
func Resolve(cfg config.YouTubeConfig) (Resolved, error) {
	if cfg.Playground.Complete() {
		return Resolved{Name: SetPlayground, Credentials: cfg.Playground}, nil
	}
	if cfg.Default.Complete() {
		return Resolved{Name: SetDefault, Credentials: cfg.Default}, nil
	}
	return Resolved{}, &TokenError{Stage: "credentials", Err: ErrIncomplete}
}

// Availability reports which sets are complete.
type Availability struct {
	Playground bool `json:"playground"`
	Default    bool `json:"legacy"`
}

// Available inspects cfg without exchanging anything.
func Available(cfg config.YouTubeConfig) Availability {
	return Availability{Playground: cfg.Playground.Complete(), Default: cfg.Default.Complete()}
}

// TokenError describes a failed token exchange.
type TokenError struct {
	// Stage is credentials, request or response.
	Stage       string
	Status      int
	Code        string
	Description string
	Err         error
}

func (e *TokenError) Error() string {
	var b strings.Builder
	b.WriteString("token")
	if e.Status > 0 {
		fmt.Fprintf(&b, "(%d)", e.Status)
	}
	b.WriteString(": ")
	b.WriteString(e.Stage)
	if e.Code != "" {
		b.WriteString(": ")
		b.WriteString(e.Code)
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *TokenError) Unwrap() error { return e.Err }

// Source resolves credentials and exchanges them for a bearer token.
type Source struct {
	Config     config.YouTubeConfig
	HTTPClient *http.Client
	Logger     *logging.Logger
}

// Token exchanges the selected refresh token. No retry is attempted.
func (s Source) Token(ctx context.Context) (*oauth2.Token, Resolved, error) {
	resolved, err := Resolve(s.Config)
	if err != nil {
		return nil, Resolved{}, err
	}
	tok, err := s.exchange(ctx, resolved.Credentials)
	if err != nil {
		s.Logger.Warn("token", "refresh token exchange failed", map[string]any{
			"set":   resolved.Name,
			"error": err.Error(),
		})
		return nil, resolved, err
	}
	s.Logger.Debug("token", "access token issued", map[string]any{"set": resolved.Name})
	return tok, resolved, nil
}

func (s Source) exchange(ctx context.Context, creds config.Credentials) (*oauth2.Token, error) {
	conf := &oauth2.Config{
		ClientID:     strings.TrimSpace(creds.ClientID),
		ClientSecret: strings.TrimSpace(creds.ClientSecret),
		Endpoint: oauth2.Endpoint{
			TokenURL:  s.Config.TokenURL,
			AuthStyle: oauth2.AuthStyleInParams,
		},
	}
	if s.HTTPClient != nil {
		ctx = context.WithValue(ctx, oauth2.HTTPClient, s.HTTPClient)
	}
	seed := &oauth2.Token{RefreshToken: strings.TrimSpace(creds.RefreshToken)}
	tok, err := conf.TokenSource(ctx, seed).Token()
	if err != nil {
		return nil, classify(err)
	}
	if tok.AccessToken == "" {
		return nil, &TokenError{Stage: "response", Err: errors.New("response lacks access_token")}
	}
	return tok, nil
}

func classify(err error) error {
	var re *oauth2.RetrieveError
	if errors.As(err, &re) {
		te := &TokenError{Stage: "response", Code: re.ErrorCode, Description: re.ErrorDescription, Err: err}
		if re.Response != nil {
			te.Status = re.Response.StatusCode
		}
		return te
	}
	if strings.Contains(err.Error(), "missing access_token") {
		return &TokenError{Stage: "response", Err: errors.New("response lacks access_token")}
	}
	return &TokenError{Stage: "request", Err: err}
}

// Probe is the result of a token health check.
type Probe struct {
	OK               bool   `json:"ok"`
	Set              string `json:"set,omitempty"`
	TokenType        string `json:"token_type,omitempty"`
	Scope            string `json:"scope,omitempty"`
	ExpiresIn        int64  `json:"expires_in,omitempty"`
	HTTPStatus       int    `json:"httpStatus,omitempty"`
	Error            string `json:"error,omitempty"`
	ErrorDescription string `json:"error_description,omitempty"`
}

// Probe performs one exchange and reports the outcome without the token itself.
func (s Source) Probe(ctx context.Context) Probe {
	tok, resolved, err := s.Token(ctx)
	if err != nil {
		p := Probe{Set: resolved.Name, Error: err.Error()}
		var te *TokenError
		if errors.As(err, &te) {
			p.HTTPStatus = te.Status
			if te.Code != "" {
				p.Error = te.Code
			}
			p.ErrorDescription = te.Description
		}
		return p
	}
	p := Probe{OK: true, Set: resolved.Name, TokenType: tok.TokenType, ExpiresIn: tok.ExpiresIn}
	if p.TokenType == "" {
		p.TokenType = "Bearer"
	}
	if scope, ok := tok.Extra("scope").(string); ok {
		p.Scope = scope
	}
	return p
}
