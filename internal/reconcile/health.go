package reconcile

import (
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/swissbasket/livedesk/internal/model"
)

// Health is the dashboard badge for an ingest stream.
type Health struct {
	Status string `json:"status"`
	Label  string `json:"label"`
}

var healthTable = map[string]Health{
	"good": {Status: "perfect", Label: "Perfect"},
	"ok":   {Status: "good", Label: "Good"},
	"bad":  {Status: "bad", Label: "Bad"},
}

// NoData is the badge for a missing or unknown health status.
var NoData = Health{Status: "nodata", Label: "No data"}

// MapHealth maps a YouTube healthStatus.status value, case-insensitively.
func MapHealth(status string) Health {
	if h, ok := healthTable[strings.ToLower(strings.TrimSpace(status))]; ok {
		return h
	}
	return NoData
}

// StreamKey returns the full ingest key of a stream, or "" when it has no stream name.
func StreamKey(s model.StreamRecord) string {
	if s.StreamName == "" {
		return ""
	}
	if s.IngestionAddress == "" {
		return s.StreamName
	}
	return strings.TrimRight(s.IngestionAddress, "/") + "/" + s.StreamName
}

// HealthItems joins live broadcasts with their streams. Broadcasts without a
// bound stream are kept with no data.
func HealthItems(live []model.BroadcastRecord, streams map[string]model.StreamRecord, now time.Time) []model.NormalizedLiveItem {
	out := make([]model.NormalizedLiveItem, 0, len(live))
	for _, b := range live {
		name := b.Title
		if name == "" {
			name = "Live"
		}
		item := model.NormalizedLiveItem{
			ID:              b.ID,
			Name:            name,
			Status:          NoData.Status,
			StatusLabel:     NoData.Label,
			LifeCycleStatus: b.LifeCycleStatus,
			Privacy:         b.PrivacyStatus,
		}
		if s, ok := streams[b.BoundStreamID]; ok && b.BoundStreamID != "" {
			h := MapHealth(s.HealthStatus)
			item.Status, item.StatusLabel = h.Status, h.Label
			item.StreamKey = StreamKey(s)
			if !s.LastUpdateTime.IsZero() {
				t := s.LastUpdateTime
				item.LastUpdate = &t
				item.LastUpdateAgo = humanize.RelTime(t, now, "ago", "from now")
			}
		}
		out = append(out, item)
	}
	return out
}
