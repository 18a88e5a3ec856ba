package reconcile

import (
	"testing"
	"time"

	"github.com/swissbasket/livedesk/internal/model"
)

func TestSameLocalDayUsesZurichCalendar(t *testing.T) {
	zurich := Zurich()
	todayNoon := time.Date(2024, 1, 1, 11, 0, 0, 0, time.UTC) // 12:00 in Zurich
	lateUTC := time.Date(2024, 1, 1, 23, 30, 0, 0, time.UTC)  // 00:30 on Jan 2 in Zurich
	if SameLocalDay(lateUTC, todayNoon, zurich) {
		t.Fatalf("23:30Z on Jan 1 is Jan 2 in Zurich and must not be today")
	}
	earlyUTC := time.Date(2023, 12, 31, 23, 30, 0, 0, time.UTC) // 00:30 on Jan 1 in Zurich
	if !SameLocalDay(earlyUTC, todayNoon, zurich) {
		t.Fatalf("23:30Z on Dec 31 is Jan 1 in Zurich and must be today")
	}
	if SameLocalDay(time.Time{}, todayNoon, zurich) {
		t.Fatalf("zero time is never today")
	}
}

func TestStreamKeyItemsFiltersToday(t *testing.T) {
	zurich := Zurich()
	current := time.Date(2024, 1, 1, 11, 0, 0, 0, time.UTC)
	broadcasts := []model.BroadcastRecord{
		{ID: "tomorrow", Title: "Late game", ScheduledStartTime: time.Date(2024, 1, 1, 23, 30, 0, 0, time.UTC), BoundStreamID: "s2"},
		{ID: "live", Title: "Live game", ActualStartTime: time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC), BoundStreamID: "s1"},
		{ID: "evening", ScheduledStartTime: time.Date(2024, 1, 1, 18, 0, 0, 0, time.UTC)},
	}
	streams := map[string]model.StreamRecord{
		"s1": {ID: "s1", Title: "Court A", StreamName: "aaaa-bbbb"},
	}
	items := StreamKeyItems(broadcasts, streams, current, zurich)
	if len(items) != 2 {
		t.Fatalf("expected 2 items, got %+v", items)
	}
	if items[0].ID != "live" || items[0].Status != "live" || items[0].StreamKey != "aaaa-bbbb" || items[0].StreamLabel != "Court A" {
		t.Fatalf("unexpected live item: %+v", items[0])
	}
	if items[1].Status != "upcoming" || items[1].Title != "Live" || items[1].StreamKey != "" {
		t.Fatalf("unexpected upcoming item: %+v", items[1])
	}
}

func TestIsLate(t *testing.T) {
	scheduled := now.Add(-4 * time.Minute)
	if !IsLate(scheduled, "public", now) || !IsLate(scheduled, "", now) {
		t.Fatalf("public broadcast 4 minutes past start should be late")
	}
	if IsLate(scheduled, "private", now) {
		t.Fatalf("private broadcasts are never late")
	}
	if IsLate(now.Add(-2*time.Minute), "public", now) {
		t.Fatalf("within grace should not be late")
	}
}

func TestSearchRecordsFallbackTimes(t *testing.T) {
	hits := []model.SearchHit{{VideoID: "v2", Title: "B"}, {VideoID: "v1", Title: "A", PublishedAt: now.Add(-time.Hour)}}
	details := map[string]model.VideoDetails{
		"v2": {ID: "v2", ScheduledStartTime: now.Add(time.Hour), PrivacyStatus: "unlisted"},
	}
	recs := SearchRecords(hits, details, Upcoming)
	if len(recs) != 2 || recs[0].ID != "v1" || recs[0].ScheduledStartTime.IsZero() {
		t.Fatalf("expected publishedAt fallback first, got %+v", recs)
	}
	if recs[1].PrivacyStatus != "unlisted" {
		t.Fatalf("details not merged: %+v", recs[1])
	}
	live := SearchRecords(hits[:1], details, Live)
	if live[0].LifeCycleStatus != model.LifeCycleLive {
		t.Fatalf("live search hit should carry live lifecycle")
	}
}

func TestUpcomingBroadcastsDropsUnscheduled(t *testing.T) {
	recs := []model.BroadcastRecord{
		{ID: "a", ScheduledStartTime: now.Add(-10 * time.Minute), PrivacyStatus: "public"},
		{ID: "b"},
	}
	got := UpcomingBroadcasts(recs, now)
	if len(got) != 1 || !got[0].Late || got[0].Title != "Upcoming" {
		t.Fatalf("unexpected rows: %+v", got)
	}
}
