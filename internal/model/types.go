// Package model holds the records shared between the upstream clients and the HTTP API.
package model

import "time"

// Broadcast lifecycle values reported by YouTube.
const (
	LifeCycleCreated      = "created"
	LifeCycleReady        = "ready"
	LifeCycleTestStarting = "testStarting"
	LifeCycleTesting      = "testing"
	LifeCycleLiveStarting = "liveStarting"
	LifeCycleLive         = "live"
	LifeCycleComplete     = "complete"
	LifeCycleRevoked      = "revoked"
)

// Privacy values accepted by YouTube.
const (
	PrivacyPublic   = "public"
	PrivacyUnlisted = "unlisted"
	PrivacyPrivate  = "private"
)

// BroadcastRecord is one entry from the liveBroadcasts listing.
type BroadcastRecord struct {
	ID                 string    `json:"id"`
	Title              string    `json:"title"`
	LifeCycleStatus    string    `json:"lifeCycleStatus"`
	PrivacyStatus      string    `json:"privacyStatus"`
	BoundStreamID      string    `json:"boundStreamId,omitempty"`
	ActualStartTime    time.Time `json:"actualStartTime,omitzero"`
	ScheduledStartTime time.Time `json:"scheduledStartTime,omitzero"`
	PublishedAt        time.Time `json:"publishedAt,omitzero"`
}

// BestTime returns actual start, else scheduled start, else publish time.
// The zero time means none is known.
func (b BroadcastRecord) BestTime() time.Time {
	switch {
	case !b.ActualStartTime.IsZero():
		return b.ActualStartTime
	case !b.ScheduledStartTime.IsZero():
		return b.ScheduledStartTime
	default:
		return b.PublishedAt
	}
}

// StreamRecord is the ingest stream a broadcast is bound to.
type StreamRecord struct {
	ID               string    `json:"id"`
	Title            string    `json:"title,omitempty"`
	IngestionAddress string    `json:"ingestionAddress,omitempty"`
	StreamName       string    `json:"streamName,omitempty"`
	StreamStatus     string    `json:"streamStatus,omitempty"`
	HealthStatus     string    `json:"healthStatus,omitempty"`
	LastUpdateTime   time.Time `json:"lastUpdateTime,omitzero"`
}

// NormalizedLiveItem is the row emitted by the health endpoint.
type NormalizedLiveItem struct {
	ID              string     `json:"id"`
	Name            string     `json:"name"`
	Status          string     `json:"status"`
	StatusLabel     string     `json:"statusLabel"`
	LastUpdate      *time.Time `json:"lastUpdate"`
	LastUpdateAgo   string     `json:"lastUpdateAgo,omitempty"`
	StreamKey       string     `json:"streamKey,omitempty"`
	LifeCycleStatus string     `json:"lifeCycleStatus"`
	Privacy         string     `json:"privacy"`
}

// LiveEntry is a live or upcoming broadcast as listed by /api/live and /api/live-feed.
type LiveEntry struct {
	ID              string     `json:"id,omitempty"`
	Title           string     `json:"title"`
	URL             string     `json:"url"`
	StartedAt       *time.Time `json:"startedAt,omitempty"`
	ScheduledStart  *time.Time `json:"scheduledStart,omitempty"`
	Privacy         string     `json:"privacy,omitempty"`
	LifeCycleStatus string     `json:"lifeCycleStatus,omitempty"`
	StreamKey       string     `json:"streamKey,omitempty"`
	Health          string     `json:"health,omitempty"`
}

// StreamKeyItem is a row of /api/stream-keys.
type StreamKeyItem struct {
	ID          string     `json:"id"`
	Title       string     `json:"title"`
	Status      string     `json:"status"`
	When        *time.Time `json:"when"`
	StreamKey   string     `json:"streamKey"`
	StreamLabel string     `json:"streamLabel,omitempty"`
	URL         string     `json:"url"`
}

// UpcomingBroadcast is a row of /api/yt-upcoming, private broadcasts included.
type UpcomingBroadcast struct {
	ID             string    `json:"id"`
	Title          string    `json:"title"`
	ScheduledStart time.Time `json:"scheduledStart"`
	URL            string    `json:"url"`
	Visibility     string    `json:"visibility,omitempty"`
	Late           bool      `json:"late"`
}

// SearchHit is a video found by search.list.
type SearchHit struct {
	VideoID              string    `json:"videoId"`
	Title                string    `json:"title"`
	PublishedAt          time.Time `json:"publishedAt,omitzero"`
	LiveBroadcastContent string    `json:"liveBroadcastContent,omitempty"`
}

// VideoDetails carries the liveStreamingDetails of a video.
type VideoDetails struct {
	ID                   string    `json:"id"`
	Title                string    `json:"title"`
	ActualStartTime      time.Time `json:"actualStartTime,omitzero"`
	ScheduledStartTime   time.Time `json:"scheduledStartTime,omitzero"`
	PublishedAt          time.Time `json:"publishedAt,omitzero"`
	PrivacyStatus        string    `json:"privacyStatus,omitempty"`
	LiveBroadcastContent string    `json:"liveBroadcastContent,omitempty"`
}

// FeedEntry is one <entry> of a channel Atom feed.
type FeedEntry struct {
	VideoID              string `json:"videoId"`
	Title                string `json:"title"`
	Published            string `json:"published,omitempty"`
	Updated              string `json:"updated,omitempty"`
	LiveBroadcastContent string `json:"liveBroadcastContent,omitempty"`
}

// Production labels for scheduled games.
const (
	ProductionKeemotion = "Keemotion"
	ProductionSwishLive = "Swish Live"
	ProductionManual    = "Manual"
	ProductionTV        = "TV"
)

// UpcomingEvent is one scheduled game from the published sheet.
type UpcomingEvent struct {
	Datetime       time.Time `json:"datetime"`
	Day            string    `json:"day,omitempty"`
	TeamA          string    `json:"teamA"`
	TeamB          string    `json:"teamB"`
	Arena          string    `json:"arena"`
	Production     string    `json:"production"`
	ProductionRaw  string    `json:"productionRaw,omitempty"`
	Competition    string    `json:"competition"`
	YouTubeEventID string    `json:"youtubeEventId"`
}

// Severity of an arena issue.
const (
	SeverityCritical = "critical"
	SeverityNormal   = "normal"
)

// ArenaIssue is an arena flagged by the ingest-health vendor.
type ArenaIssue struct {
	Arena     string `json:"arena"`
	Vendor    string `json:"vendor"`
	Status    string `json:"status"`
	Note      string `json:"note"`
	UpdatedAt string `json:"updatedAt,omitempty"`
	Severity  string `json:"severity"`
	Rule      string `json:"rule,omitempty"`
}

// WatchURL returns the public watch page of a video.
func WatchURL(videoID string) string {
	return "https://www.youtube.com/watch?v=" + videoID
}
