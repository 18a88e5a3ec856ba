// Package reconcile turns raw broadcast and stream listings into the live,
// upcoming and health views served to the dashboard.
package reconcile

import (
	"cmp"
	"slices"
	"time"

	"github.com/swissbasket/livedesk/internal/model"
)

// Bucket is the classification of a broadcast.
type Bucket int

const (
	Ignored Bucket = iota
	Live
	Upcoming
)

func (b Bucket) String() string {
	switch b {
	case Live:
		return "live"
	case Upcoming:
		return "upcoming"
	default:
		return "ignored"
	}
}

// Options carries the behavioural switches of a view.
type Options struct {
	// IncludeTesting counts testing and preview broadcasts as live.
	IncludeTesting bool
}

// Rule is one entry of the ordered classification list.
type Rule struct {
	Name   string
	Bucket Bucket
	Match  func(b model.BroadcastRecord, now time.Time, opts Options) bool
}

func lifecycleIn(values ...string) func(model.BroadcastRecord, time.Time, Options) bool {
	return func(b model.BroadcastRecord, _ time.Time, _ Options) bool {
		return slices.Contains(values, b.LifeCycleStatus)
	}
}

// Rules is evaluated top to bottom; the first match decides. No match means Ignored.
var Rules = []Rule{
	{Name: "lifecycle-live", Bucket: Live, Match: lifecycleIn(model.LifeCycleLive)},
	{Name: "lifecycle-finished", Bucket: Ignored, Match: lifecycleIn(model.LifeCycleComplete, model.LifeCycleRevoked)},
	{Name: "lifecycle-testing", Bucket: Live, Match: func(b model.BroadcastRecord, now time.Time, opts Options) bool {
		return opts.IncludeTesting && lifecycleIn(model.LifeCycleTesting, model.LifeCycleTestStarting, model.LifeCycleLiveStarting)(b, now, opts)
	}},
	{Name: "lifecycle-prepared", Bucket: Upcoming, Match: lifecycleIn(model.LifeCycleCreated, model.LifeCycleReady)},
	{Name: "scheduled-future", Bucket: Upcoming, Match: func(b model.BroadcastRecord, now time.Time, _ Options) bool {
		return !b.ScheduledStartTime.IsZero() && b.ScheduledStartTime.After(now)
	}},
}

// Classify returns the bucket of b and the name of the rule that decided it.
func Classify(b model.BroadcastRecord, now time.Time, opts Options) (Bucket, string) {
	for _, r := range Rules {
		if r.Match(b, now, opts) {
			return r.Bucket, r.Name
		}
	}
	return Ignored, ""
}

// Partition splits broadcasts into sorted live and upcoming lists.
func Partition(broadcasts []model.BroadcastRecord, now time.Time, opts Options) (live, upcoming []model.BroadcastRecord) {
	live, upcoming = []model.BroadcastRecord{}, []model.BroadcastRecord{}
	for _, b := range broadcasts {
		switch bucket, _ := Classify(b, now, opts); bucket {
		case Live:
			live = append(live, b)
		case Upcoming:
			upcoming = append(upcoming, b)
		}
	}
	SortByBestTime(live)
	SortByBestTime(upcoming)
	return live, upcoming
}

// SortByBestTime orders ascending by BestTime. Records without any timestamp
// sort last; ties break on id so the order is deterministic.
func SortByBestTime(broadcasts []model.BroadcastRecord) {
	slices.SortStableFunc(broadcasts, func(a, b model.BroadcastRecord) int {
		if c := compareTimes(a.BestTime(), b.BestTime()); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})
}

// compareTimes orders zero times after every real time.
func compareTimes(a, b time.Time) int {
	switch {
	case a.IsZero() && b.IsZero():
		return 0
	case a.IsZero():
		return 1
	case b.IsZero():
		return -1
	default:
		return a.Compare(b)
	}
}

// StreamIDs returns the bound stream ids of broadcasts, skipping unbound ones.
func StreamIDs(broadcasts ...[]model.BroadcastRecord) []string {
	var ids []string
	for _, list := range broadcasts {
		for _, b := range list {
			if b.BoundStreamID != "" {
				ids = append(ids, b.BoundStreamID)
			}
		}
	}
	return ids
}
