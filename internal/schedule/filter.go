package schedule

import (
	"slices"
	"time"

	"github.com/swissbasket/livedesk/internal/model"
)

// Filter keeps events in [now, now+horizonDays] sorted by start. With
// streamedOnly, events whose production did not normalize are dropped.
func Filter(events []model.UpcomingEvent, now time.Time, horizonDays int, streamedOnly bool) []model.UpcomingEvent {
	end := now.Add(time.Duration(horizonDays) * 24 * time.Hour)
	out := make([]model.UpcomingEvent, 0, len(events))
	for _, e := range events {
		if e.Datetime.Before(now) || e.Datetime.After(end) {
			continue
		}
		if streamedOnly && e.Production == "" {
			continue
		}
		out = append(out, e)
	}
	slices.SortStableFunc(out, func(a, b model.UpcomingEvent) int {
		return a.Datetime.Compare(b.Datetime)
	})
	return out
}
