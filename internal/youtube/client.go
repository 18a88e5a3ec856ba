// Package youtube wraps the YouTube Data API calls used by livedesk and the
// public channel Atom feed.
package youtube

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/swissbasket/livedesk/internal/credentials"
	"github.com/swissbasket/livedesk/internal/model"
	"github.com/swissbasket/livedesk/logging"
	"golang.org/x/oauth2"
	"google.golang.org/api/option"
	ytapi "google.golang.org/api/youtube/v3"
)

const (
	pageSize        = 50
	defaultMaxPages = 5
)

var (
	broadcastParts = []string{"id", "snippet", "contentDetails", "status"}
	streamParts    = []string{"id", "snippet", "cdn", "status"}
)

// Client issues Data API calls with one bearer token.
type Client struct {
	svc      *ytapi.Service
	logger   *logging.Logger
	maxPages int
}

// NewClient builds a Client on top of an already authorised HTTP client.
// endpoint overrides the API base URL and may be empty.
func NewClient(ctx context.Context, httpClient *http.Client, endpoint string, logger *logging.Logger) (*Client, error) {
	opts := []option.ClientOption{option.WithHTTPClient(httpClient)}
	if endpoint != "" {
		opts = append(opts, option.WithEndpoint(strings.TrimRight(endpoint, "/")+"/"))
	}
	svc, err := ytapi.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create youtube service: %w", err)
	}
	return &Client{svc: svc, logger: logger, maxPages: defaultMaxPages}, nil
}

// TokenSource yields a bearer token and the credential set it came from.
type TokenSource interface {
	Token(ctx context.Context) (*oauth2.Token, credentials.Resolved, error)
}

// Connector exchanges credentials and returns a Client for a single request.
type Connector struct {
	Tokens   TokenSource
	Base     *http.Client
	Endpoint string
	Logger   *logging.Logger
}

// Connect resolves a token and builds a Client bound to it.
func (c Connector) Connect(ctx context.Context) (*Client, credentials.Resolved, error) {
	tok, resolved, err := c.Tokens.Token(ctx)
	if err != nil {
		return nil, resolved, err
	}
	base := c.Base
	if base == nil {
		base = &http.Client{Timeout: 15 * time.Second}
	}
	authed := &http.Client{
		Timeout: base.Timeout,
		Transport: &oauth2.Transport{
			Source: oauth2.StaticTokenSource(tok),
			Base:   base.Transport,
		},
	}
	client, err := NewClient(ctx, authed, c.Endpoint, c.Logger)
	return client, resolved, err
}

// MyBroadcasts lists every broadcast of the authorised account with mine=true
// and no status filter, following pagination.
func (c *Client) MyBroadcasts(ctx context.Context) ([]model.BroadcastRecord, error) {
	var out []model.BroadcastRecord
	pageToken := ""
	for page := 0; page < c.maxPages; page++ {
		call := c.svc.LiveBroadcasts.List(broadcastParts).Mine(true).MaxResults(pageSize).Context(ctx)
		if pageToken != "" {
			call = call.PageToken(pageToken)
		}
		resp, err := call.Do()
		if err != nil {
			return out, fmt.Errorf("liveBroadcasts.list mine: %w", err)
		}
		for _, b := range resp.Items {
			out = append(out, broadcastRecord(b))
		}
		pageToken = resp.NextPageToken
		if pageToken == "" {
			break
		}
	}
	c.logger.Debug("youtube", "listed broadcasts", map[string]any{"count": len(out)})
	return out, nil
}

// BroadcastsByStatus lists broadcasts filtered by active, upcoming, completed or all.
func (c *Client) BroadcastsByStatus(ctx context.Context, status string) ([]model.BroadcastRecord, error) {
	resp, err := c.svc.LiveBroadcasts.List(broadcastParts).
		BroadcastStatus(status).
		BroadcastType("all").
		MaxResults(pageSize).
		Context(ctx).
		Do()
	if err != nil {
		return nil, fmt.Errorf("liveBroadcasts.list %s: %w", status, err)
	}
	out := make([]model.BroadcastRecord, 0, len(resp.Items))
	for _, b := range resp.Items {
		out = append(out, broadcastRecord(b))
	}
	return out, nil
}

// Broadcast fetches one broadcast by id. found is false when the id is unknown.
func (c *Client) Broadcast(ctx context.Context, id string) (model.BroadcastRecord, bool, error) {
	resp, err := c.svc.LiveBroadcasts.List(broadcastParts).Id(id).Context(ctx).Do()
	if err != nil {
		return model.BroadcastRecord{}, false, fmt.Errorf("liveBroadcasts.list id: %w", err)
	}
	if len(resp.Items) == 0 {
		return model.BroadcastRecord{}, false, nil
	}
	return broadcastRecord(resp.Items[0]), true, nil
}

// Streams looks up ingest streams by id, keyed by stream id.
func (c *Client) Streams(ctx context.Context, ids []string) (map[string]model.StreamRecord, error) {
	out := make(map[string]model.StreamRecord, len(ids))
	for _, chunk := range chunks(unique(ids), pageSize) {
		resp, err := c.svc.LiveStreams.List(streamParts).Id(chunk...).MaxResults(pageSize).Context(ctx).Do()
		if err != nil {
			return out, fmt.Errorf("liveStreams.list: %w", err)
		}
		for _, s := range resp.Items {
			rec := streamRecord(s)
			out[rec.ID] = rec
		}
	}
	return out, nil
}

// SearchQuery selects live or upcoming videos of a channel.
type SearchQuery struct {
	// EventType is live or upcoming.
	EventType string
	// ChannelID is used when set; otherwise the search is forMine.
	ChannelID string
}

// Search runs search.list for event videos.
func (c *Client) Search(ctx context.Context, q SearchQuery) ([]model.SearchHit, error) {
	call := c.svc.Search.List([]string{"snippet"}).
		EventType(q.EventType).
		Type("video").
		MaxResults(pageSize).
		Context(ctx)
	if q.ChannelID != "" {
		call = call.ChannelId(q.ChannelID)
	} else {
		call = call.ForMine(true)
	}
	resp, err := call.Do()
	if err != nil {
		return nil, fmt.Errorf("search.list %s: %w", q.EventType, err)
	}
	out := make([]model.SearchHit, 0, len(resp.Items))
	for _, it := range resp.Items {
		if it.Id == nil || it.Id.VideoId == "" {
			continue
		}
		hit := model.SearchHit{VideoID: it.Id.VideoId}
		if it.Snippet != nil {
			hit.Title = it.Snippet.Title
			hit.PublishedAt = parseTime(it.Snippet.PublishedAt)
			hit.LiveBroadcastContent = it.Snippet.LiveBroadcastContent
		}
		out = append(out, hit)
	}
	return out, nil
}

// Videos fetches liveStreamingDetails for the given ids, keyed by video id.
func (c *Client) Videos(ctx context.Context, ids []string) (map[string]model.VideoDetails, error) {
	out := make(map[string]model.VideoDetails, len(ids))
	for _, chunk := range chunks(unique(ids), pageSize) {
		resp, err := c.svc.Videos.List([]string{"liveStreamingDetails", "snippet", "status"}).
			Id(chunk...).
			MaxResults(pageSize).
			Context(ctx).
			Do()
		if err != nil {
			return out, fmt.Errorf("videos.list: %w", err)
		}
		for _, v := range resp.Items {
			d := model.VideoDetails{ID: v.Id}
			if v.Snippet != nil {
				d.Title = v.Snippet.Title
				d.PublishedAt = parseTime(v.Snippet.PublishedAt)
				d.LiveBroadcastContent = v.Snippet.LiveBroadcastContent
			}
			if v.LiveStreamingDetails != nil {
				d.ActualStartTime = parseTime(v.LiveStreamingDetails.ActualStartTime)
				d.ScheduledStartTime = parseTime(v.LiveStreamingDetails.ScheduledStartTime)
			}
			if v.Status != nil {
				d.PrivacyStatus = v.Status.PrivacyStatus
			}
			out[v.Id] = d
		}
	}
	return out, nil
}

// Channel is the minimal channel identity used by debug output.
type Channel struct {
	ID    string `json:"id"`
	Title string `json:"title,omitempty"`
}

// MyChannels returns the channels owned by the authorised account.
func (c *Client) MyChannels(ctx context.Context) ([]Channel, error) {
	resp, err := c.svc.Channels.List([]string{"id", "snippet"}).Mine(true).Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("channels.list mine: %w", err)
	}
	out := make([]Channel, 0, len(resp.Items))
	for _, ch := range resp.Items {
		item := Channel{ID: ch.Id}
		if ch.Snippet != nil {
			item.Title = ch.Snippet.Title
		}
		out = append(out, item)
	}
	return out, nil
}

// MyChannelID returns the first owned channel id, or "" when there is none.
func (c *Client) MyChannelID(ctx context.Context) (string, error) {
	channels, err := c.MyChannels(ctx)
	if err != nil || len(channels) == 0 {
		return "", err
	}
	return channels[0].ID, nil
}

// SetPrivacy updates status.privacyStatus of a broadcast.
func (c *Client) SetPrivacy(ctx context.Context, id, privacy string) error {
	body := &ytapi.LiveBroadcast{
		Id:     id,
		Status: &ytapi.LiveBroadcastStatus{PrivacyStatus: privacy},
	}
	if _, err := c.svc.LiveBroadcasts.Update([]string{"status"}, body).Context(ctx).Do(); err != nil {
		return fmt.Errorf("visibility: %w", err)
	}
	c.logger.Info("youtube", "broadcast privacy updated", map[string]any{"id": id, "privacy": privacy})
	return nil
}

// Transition moves a broadcast to the given lifecycle status, e.g. complete.
func (c *Client) Transition(ctx context.Context, id, status string) error {
	if _, err := c.svc.LiveBroadcasts.Transition(status, id, []string{"status"}).Context(ctx).Do(); err != nil {
		return fmt.Errorf("transition: %w", err)
	}
	c.logger.Info("youtube", "broadcast transitioned", map[string]any{"id": id, "status": status})
	return nil
}

func broadcastRecord(b *ytapi.LiveBroadcast) model.BroadcastRecord {
	rec := model.BroadcastRecord{ID: b.Id}
	if b.Snippet != nil {
		rec.Title = b.Snippet.Title
		rec.ActualStartTime = parseTime(b.Snippet.ActualStartTime)
		rec.ScheduledStartTime = parseTime(b.Snippet.ScheduledStartTime)
		rec.PublishedAt = parseTime(b.Snippet.PublishedAt)
	}
	if b.Status != nil {
		rec.LifeCycleStatus = b.Status.LifeCycleStatus
		rec.PrivacyStatus = b.Status.PrivacyStatus
	}
	if b.ContentDetails != nil {
		rec.BoundStreamID = b.ContentDetails.BoundStreamId
	}
	return rec
}

func streamRecord(s *ytapi.LiveStream) model.StreamRecord {
	rec := model.StreamRecord{ID: s.Id}
	if s.Snippet != nil {
		rec.Title = s.Snippet.Title
	}
	if s.Cdn != nil && s.Cdn.IngestionInfo != nil {
		rec.IngestionAddress = s.Cdn.IngestionInfo.IngestionAddress
		rec.StreamName = s.Cdn.IngestionInfo.StreamName
	}
	if s.Status != nil {
		rec.StreamStatus = s.Status.StreamStatus
		if h := s.Status.HealthStatus; h != nil {
			rec.HealthStatus = h.Status
			if h.LastUpdateTimeSeconds > 0 {
				rec.LastUpdateTime = time.Unix(int64(h.LastUpdateTimeSeconds), 0).UTC()
			}
		}
	}
	return rec
}

func parseTime(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}
	}
	return t.UTC()
}

func unique(ids []string) []string {
	seen := make(map[string]bool, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	return out
}

func chunks(ids []string, size int) [][]string {
	var out [][]string
	for len(ids) > size {
		out = append(out, ids[:size])
		ids = ids[size:]
	}
	if len(ids) > 0 {
		out = append(out, ids)
	}
	return out
}
