package reconcile

import (
	"strings"
	"time"

	"github.com/swissbasket/livedesk/internal/model"
)

// LateGrace is how long past its scheduled start a public broadcast may stay upcoming.
const LateGrace = 3 * time.Minute

func timePtr(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}

// LiveEntries renders live broadcasts with stream key and health where bound.
func LiveEntries(live []model.BroadcastRecord, streams map[string]model.StreamRecord) []model.LiveEntry {
	out := make([]model.LiveEntry, 0, len(live))
	for _, b := range live {
		started := b.ActualStartTime
		if started.IsZero() {
			started = b.ScheduledStartTime
		}
		e := model.LiveEntry{
			ID:              b.ID,
			Title:           b.Title,
			URL:             model.WatchURL(b.ID),
			StartedAt:       timePtr(started),
			Privacy:         b.PrivacyStatus,
			LifeCycleStatus: b.LifeCycleStatus,
		}
		if s, ok := streams[b.BoundStreamID]; ok && b.BoundStreamID != "" {
			e.StreamKey = s.StreamName
			e.Health = MapHealth(s.HealthStatus).Status
		}
		out = append(out, e)
	}
	return out
}

// UpcomingEntries renders upcoming broadcasts.
func UpcomingEntries(upcoming []model.BroadcastRecord, streams map[string]model.StreamRecord) []model.LiveEntry {
	out := make([]model.LiveEntry, 0, len(upcoming))
	for _, b := range upcoming {
		e := model.LiveEntry{
			ID:              b.ID,
			Title:           b.Title,
			URL:             model.WatchURL(b.ID),
			ScheduledStart:  timePtr(b.ScheduledStartTime),
			Privacy:         b.PrivacyStatus,
			LifeCycleStatus: b.LifeCycleStatus,
		}
		if s, ok := streams[b.BoundStreamID]; ok && b.BoundStreamID != "" {
			e.StreamKey = s.StreamName
		}
		out = append(out, e)
	}
	return out
}

// SearchRecords converts search hits plus video details into broadcast
// records so the fallback path reuses the same ordering. bucket marks the
// event type searched for.
func SearchRecords(hits []model.SearchHit, details map[string]model.VideoDetails, bucket Bucket) []model.BroadcastRecord {
	out := make([]model.BroadcastRecord, 0, len(hits))
	for _, h := range hits {
		d := details[h.VideoID]
		rec := model.BroadcastRecord{
			ID:                 h.VideoID,
			Title:              h.Title,
			ActualStartTime:    d.ActualStartTime,
			ScheduledStartTime: d.ScheduledStartTime,
			PublishedAt:        h.PublishedAt,
			PrivacyStatus:      d.PrivacyStatus,
		}
		if rec.Title == "" {
			rec.Title = d.Title
		}
		if rec.PublishedAt.IsZero() {
			rec.PublishedAt = d.PublishedAt
		}
		switch bucket {
		case Live:
			rec.LifeCycleStatus = model.LifeCycleLive
		case Upcoming:
			if rec.ScheduledStartTime.IsZero() {
				rec.ScheduledStartTime = rec.PublishedAt
			}
		}
		out = append(out, rec)
	}
	SortByBestTime(out)
	return out
}

// StreamKeyItems keeps broadcasts starting on now's Zurich calendar day and
// attaches their stream names.
func StreamKeyItems(broadcasts []model.BroadcastRecord, streams map[string]model.StreamRecord, now time.Time, loc *time.Location) []model.StreamKeyItem {
	today := make([]model.BroadcastRecord, 0, len(broadcasts))
	for _, b := range broadcasts {
		if SameLocalDay(b.BestTime(), now, loc) {
			today = append(today, b)
		}
	}
	SortByBestTime(today)

	out := make([]model.StreamKeyItem, 0, len(today))
	for _, b := range today {
		when := b.ActualStartTime
		status := "live"
		if when.IsZero() {
			when = b.ScheduledStartTime
			status = "upcoming"
		}
		title := b.Title
		if title == "" {
			title = "Live"
		}
		item := model.StreamKeyItem{
			ID:     b.ID,
			Title:  title,
			Status: status,
			When:   timePtr(when),
			URL:    model.WatchURL(b.ID),
		}
		if s, ok := streams[b.BoundStreamID]; ok && b.BoundStreamID != "" {
			item.StreamKey = s.StreamName
			item.StreamLabel = s.Title
		}
		out = append(out, item)
	}
	return out
}

// IsLate reports whether a public (or unknown visibility) broadcast is past
// its scheduled start plus LateGrace.
func IsLate(scheduled time.Time, visibility string, now time.Time) bool {
	if scheduled.IsZero() {
		return false
	}
	if v := strings.ToLower(visibility); v != "" && v != model.PrivacyPublic {
		return false
	}
	return scheduled.Add(LateGrace).Before(now)
}

// UpcomingBroadcasts renders yt-upcoming rows, dropping records without a
// scheduled start.
func UpcomingBroadcasts(records []model.BroadcastRecord, now time.Time) []model.UpcomingBroadcast {
	out := make([]model.UpcomingBroadcast, 0, len(records))
	for _, b := range records {
		if b.ScheduledStartTime.IsZero() {
			continue
		}
		title := b.Title
		if title == "" {
			title = "Upcoming"
		}
		out = append(out, model.UpcomingBroadcast{
			ID:             b.ID,
			Title:          title,
			ScheduledStart: b.ScheduledStartTime,
			URL:            model.WatchURL(b.ID),
			Visibility:     b.PrivacyStatus,
			Late:           IsLate(b.ScheduledStartTime, b.PrivacyStatus, now),
		})
	}
	return out
}
