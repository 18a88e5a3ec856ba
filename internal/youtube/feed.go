package youtube

import (
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/swissbasket/livedesk/internal/model"
	"github.com/swissbasket/livedesk/logging"
)

const defaultFeedBase = "https://www.youtube.com"

type atomFeed struct {
	XMLName xml.Name    `xml:"feed"`
	Entries []atomEntry `xml:"entry"`
}

type atomEntry struct {
	VideoID              string `xml:"videoId"`
	Title                string `xml:"title"`
	Published            string `xml:"published"`
	Updated              string `xml:"updated"`
	LiveBroadcastContent string `xml:"liveBroadcastContent"`
}

// FeedClient reads the public channel Atom feed. It needs no credentials.
type FeedClient struct {
	BaseURL    string
	HTTPClient *http.Client
	Logger     *logging.Logger
}

func (c FeedClient) baseURL() string {
	if c.BaseURL != "" {
		return strings.TrimRight(c.BaseURL, "/")
	}
	return defaultFeedBase
}

// Entries fetches /feeds/videos.xml for channelID.
func (c FeedClient) Entries(ctx context.Context, channelID string) ([]model.FeedEntry, error) {
	if strings.TrimSpace(channelID) == "" {
		return nil, fmt.Errorf("channel id required")
	}
	client := c.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	endpoint := c.baseURL() + "/feeds/videos.xml?channel_id=" + url.QueryEscape(channelID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", "Mozilla/5.0")

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("atom feed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("atom feed %s", resp.Status)
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, 2<<20))
	if err != nil {
		return nil, fmt.Errorf("read atom feed: %w", err)
	}
	entries, err := ParseFeed(body)
	if err != nil {
		c.Logger.Warn("youtube", "failed to parse atom feed", map[string]any{"channel_id": channelID, "error": err.Error()})
		return nil, err
	}
	return entries, nil
}

// ParseFeed decodes an Atom document into entries.
func ParseFeed(body []byte) ([]model.FeedEntry, error) {
	var feed atomFeed
	if err := xml.Unmarshal(body, &feed); err != nil {
		return nil, fmt.Errorf("decode atom feed: %w", err)
	}
	out := make([]model.FeedEntry, 0, len(feed.Entries))
	for _, e := range feed.Entries {
		out = append(out, model.FeedEntry{
			VideoID:              strings.TrimSpace(e.VideoID),
			Title:                strings.TrimSpace(e.Title),
			Published:            strings.TrimSpace(e.Published),
			Updated:              strings.TrimSpace(e.Updated),
			LiveBroadcastContent: strings.TrimSpace(e.LiveBroadcastContent),
		})
	}
	return out, nil
}

// SplitFeed sorts entries into live and upcoming by liveBroadcastContent.
// Start times are unknown on this path.
func SplitFeed(entries []model.FeedEntry) (live, upcoming []model.LiveEntry) {
	live, upcoming = []model.LiveEntry{}, []model.LiveEntry{}
	for _, e := range entries {
		if e.VideoID == "" {
			continue
		}
		item := model.LiveEntry{ID: e.VideoID, Title: e.Title, URL: model.WatchURL(e.VideoID)}
		switch e.LiveBroadcastContent {
		case "live":
			live = append(live, item)
		case "upcoming":
			upcoming = append(upcoming, item)
		}
	}
	return live, upcoming
}
