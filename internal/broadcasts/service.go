// Package broadcasts builds the YouTube views of the dashboard: live and
// upcoming broadcasts, ingest health, today's stream keys and the feed.
// Each view is memoized under its own cache key.
package broadcasts

import (
	"context"
	"errors"
	"time"

	"github.com/swissbasket/livedesk/internal/cache"
	"github.com/swissbasket/livedesk/internal/credentials"
	"github.com/swissbasket/livedesk/internal/model"
	"github.com/swissbasket/livedesk/internal/reconcile"
	"github.com/swissbasket/livedesk/internal/youtube"
	"github.com/swissbasket/livedesk/logging"
)

// Cache keys, one per view.
const (
	KeyLive       = "live"
	KeyHealth     = "health"
	KeyStreamKeys = "stream-keys"
	KeyYTUpcoming = "yt-upcoming"
	KeyFeed       = "live-feed"
)

// Keys lists every view key; mutations invalidate all of them.
var Keys = []string{KeyLive, KeyHealth, KeyStreamKeys, KeyYTUpcoming, KeyFeed}

var (
	errAtomDisabled = errors.New("atom fallback disabled")
	errNoChannel    = errors.New("no channel id configured")
)

// API is the subset of the Data API client the views read from.
type API interface {
	MyBroadcasts(ctx context.Context) ([]model.BroadcastRecord, error)
	BroadcastsByStatus(ctx context.Context, status string) ([]model.BroadcastRecord, error)
	Streams(ctx context.Context, ids []string) (map[string]model.StreamRecord, error)
	Search(ctx context.Context, q youtube.SearchQuery) ([]model.SearchHit, error)
	Videos(ctx context.Context, ids []string) (map[string]model.VideoDetails, error)
	MyChannels(ctx context.Context) ([]youtube.Channel, error)
	MyChannelID(ctx context.Context) (string, error)
}

// Connector yields an API bound to a fresh token.
type Connector interface {
	Connect(ctx context.Context) (API, credentials.Resolved, error)
}

// ConnectorFunc adapts a function to Connector.
type ConnectorFunc func(ctx context.Context) (API, credentials.Resolved, error)

func (f ConnectorFunc) Connect(ctx context.Context) (API, credentials.Resolved, error) {
	return f(ctx)
}

// YouTubeConnector adapts the Data API connector.
func YouTubeConnector(c youtube.Connector) Connector {
	return ConnectorFunc(func(ctx context.Context) (API, credentials.Resolved, error) {
		client, resolved, err := c.Connect(ctx)
		if err != nil {
			return nil, resolved, err
		}
		return client, resolved, nil
	})
}

// FeedSource reads a channel's public Atom feed.
type FeedSource interface {
	Entries(ctx context.Context, channelID string) ([]model.FeedEntry, error)
}

// Options tunes the views.
type Options struct {
	IncludeTesting bool
	AtomFallback   bool
	ChannelID      string
	Location       *time.Location
	Now            func() time.Time
}

// Service composes the views.
type Service struct {
	connect Connector
	feed    FeedSource
	memo    *cache.Memo
	opts    Options
	logger  *logging.Logger
}

// NewService wires a Service.
func NewService(connect Connector, feed FeedSource, memo *cache.Memo, opts Options, logger *logging.Logger) *Service {
	if opts.Location == nil {
		opts.Location = reconcile.Zurich()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Service{connect: connect, feed: feed, memo: memo, opts: opts, logger: logger}
}

func (s *Service) reconcileOptions() reconcile.Options {
	return reconcile.Options{IncludeTesting: s.opts.IncludeTesting}
}

// Invalidate drops every cached view.
func (s *Service) Invalidate(ctx context.Context) {
	s.memo.Invalidate(ctx, Keys...)
}

// CacheState describes how a view was served, for debug payloads.
type CacheState struct {
	Source       cache.Source `json:"source"`
	StoredAt     *time.Time   `json:"storedAt,omitempty"`
	BackoffUntil *time.Time   `json:"backoffUntil,omitempty"`
	Error        string       `json:"error,omitempty"`
}

func cacheState(res cache.Result) CacheState {
	st := CacheState{Source: res.Source}
	if !res.StoredAt.IsZero() {
		t := res.StoredAt
		st.StoredAt = &t
	}
	if !res.BackoffUntil.IsZero() {
		t := res.BackoffUntil
		st.BackoffUntil = &t
	}
	if res.Err != nil {
		st.Error = res.Err.Error()
	}
	return st
}

// viewError picks the message shown to the dashboard: the masked upstream
// error when a cached value was served, else the fetch error.
func viewError(res cache.Result, err error) string {
	switch {
	case err != nil:
		return err.Error()
	case res.Err != nil:
		return res.Err.Error()
	default:
		return ""
	}
}

func (s *Service) channelID(ctx context.Context, api API) (string, error) {
	if s.opts.ChannelID != "" {
		return s.opts.ChannelID, nil
	}
	if api == nil {
		return "", errNoChannel
	}
	return api.MyChannelID(ctx)
}
