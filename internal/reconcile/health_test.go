package reconcile

import (
	"testing"
	"time"

	"github.com/swissbasket/livedesk/internal/model"
)

func TestMapHealth(t *testing.T) {
	cases := map[string]Health{
		"good":     {"perfect", "Perfect"},
		"GOOD":     {"perfect", "Perfect"},
		" ok ":     {"good", "Good"},
		"bad":      {"bad", "Bad"},
		"noData":   NoData,
		"revoked":  NoData,
		"":         NoData,
		"terrible": NoData,
	}
	for in, want := range cases {
		if got := MapHealth(in); got != want {
			t.Fatalf("MapHealth(%q) = %+v, want %+v", in, got, want)
		}
	}
}

func TestHealthItemsJoinStreams(t *testing.T) {
	updated := now.Add(-5 * time.Minute)
	live := []model.BroadcastRecord{
		{ID: "b1", Title: "Fribourg - Geneva", LifeCycleStatus: "live", PrivacyStatus: "public", BoundStreamID: "s1"},
		{ID: "b2", Title: "No stream", LifeCycleStatus: "live", PrivacyStatus: "unlisted"},
		{ID: "b3", LifeCycleStatus: "live", BoundStreamID: "s3"},
	}
	streams := map[string]model.StreamRecord{
		"s1": {ID: "s1", IngestionAddress: "rtmp://a.rtmp.youtube.com/live2/", StreamName: "key-1", HealthStatus: "ok", LastUpdateTime: updated},
		"s3": {ID: "s3", HealthStatus: "bad"},
	}
	items := HealthItems(live, streams, now)
	if len(items) != 3 {
		t.Fatalf("expected 3 items, got %d", len(items))
	}
	first := items[0]
	if first.Status != "good" || first.StatusLabel != "Good" || first.StreamKey != "rtmp://a.rtmp.youtube.com/live2/key-1" {
		t.Fatalf("unexpected first item: %+v", first)
	}
	if first.LastUpdate == nil || !first.LastUpdate.Equal(updated) || first.LastUpdateAgo != "5 minutes ago" {
		t.Fatalf("unexpected last update: %+v", first)
	}
	if items[1].Status != "nodata" || items[1].StreamKey != "" {
		t.Fatalf("unbound broadcast should have no data: %+v", items[1])
	}
	if items[2].Status != "bad" || items[2].StreamKey != "" || items[2].Name != "Live" {
		t.Fatalf("stream without name must not carry a key: %+v", items[2])
	}
}
