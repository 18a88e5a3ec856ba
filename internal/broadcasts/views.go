package broadcasts

import (
	"context"
	"errors"
	"fmt"

	"github.com/swissbasket/livedesk/internal/cache"
	"github.com/swissbasket/livedesk/internal/model"
	"github.com/swissbasket/livedesk/internal/reconcile"
	"github.com/swissbasket/livedesk/internal/youtube"
	"golang.org/x/sync/errgroup"
)

// HealthDebug is attached to /api/health with ?debug=1.
type HealthDebug struct {
	Credentials  string     `json:"credentials,omitempty"`
	Broadcasts   int        `json:"broadcasts"`
	Live         int        `json:"live"`
	BoundStreams int        `json:"boundStreams"`
	Cache        CacheState `json:"cache"`
}

// HealthView is the /api/health payload.
type HealthView struct {
	Items []model.NormalizedLiveItem `json:"items"`
	Error string                     `json:"error,omitempty"`
	Debug *HealthDebug               `json:"debug,omitempty"`
}

// Health joins live broadcasts with their ingest streams.
func (s *Service) Health(ctx context.Context) HealthView {
	view, res, err := cache.Fetch(ctx, s.memo, KeyHealth, s.loadHealth)
	if err != nil {
		view = HealthView{Items: []model.NormalizedLiveItem{}}
	}
	if view.Debug == nil {
		view.Debug = &HealthDebug{}
	}
	view.Debug.Cache = cacheState(res)
	if msg := viewError(res, err); msg != "" {
		view.Error = msg
	}
	return view
}

func (s *Service) loadHealth(ctx context.Context) (HealthView, error) {
	api, resolved, err := s.connect.Connect(ctx)
	if err != nil {
		return HealthView{}, err
	}
	all, err := api.MyBroadcasts(ctx)
	if err != nil {
		return HealthView{}, err
	}
	now := s.opts.Now()
	live, _ := reconcile.Partition(all, now, s.reconcileOptions())
	ids := reconcile.StreamIDs(live)
	streams, err := api.Streams(ctx, ids)
	if err != nil {
		return HealthView{}, err
	}
	return HealthView{
		Items: reconcile.HealthItems(live, streams, now),
		Debug: &HealthDebug{Credentials: resolved.Name, Broadcasts: len(all), Live: len(live), BoundStreams: len(ids)},
	}, nil
}

// StreamKeysView is the /api/stream-keys payload.
type StreamKeysView struct {
	Items []model.StreamKeyItem `json:"items"`
	Error string                `json:"error,omitempty"`
}

// StreamKeys lists today's (Zurich) active and upcoming broadcasts with
// their stream names.
func (s *Service) StreamKeys(ctx context.Context) StreamKeysView {
	view, res, err := cache.Fetch(ctx, s.memo, KeyStreamKeys, s.loadStreamKeys)
	if err != nil {
		view = StreamKeysView{Items: []model.StreamKeyItem{}}
	}
	if msg := viewError(res, err); msg != "" {
		view.Error = msg
	}
	return view
}

func (s *Service) loadStreamKeys(ctx context.Context) (StreamKeysView, error) {
	api, _, err := s.connect.Connect(ctx)
	if err != nil {
		return StreamKeysView{}, err
	}

	statuses := []string{"active", "upcoming"}
	lists := make([][]model.BroadcastRecord, len(statuses))
	errs := make([]error, len(statuses))
	var g errgroup.Group
	for i, status := range statuses {
		g.Go(func() error {
			lists[i], errs[i] = api.BroadcastsByStatus(ctx, status)
			return nil
		})
	}
	g.Wait()

	// A failing status contributes nothing; only a total failure is an error.
	var all []model.BroadcastRecord
	seen := make(map[string]bool)
	failed := 0
	var partial error
	for i, list := range lists {
		if errs[i] != nil {
			failed++
			partial = errors.Join(partial, fmt.Errorf("%s: %w", statuses[i], errs[i]))
			s.logger.Warn("youtube", "stream-keys listing failed", map[string]any{"status": statuses[i], "error": errs[i].Error()})
			continue
		}
		for _, b := range list {
			if !seen[b.ID] {
				seen[b.ID] = true
				all = append(all, b)
			}
		}
	}
	if failed == len(statuses) {
		return StreamKeysView{}, partial
	}

	streams, err := api.Streams(ctx, reconcile.StreamIDs(all))
	if err != nil {
		if youtube.IsQuotaError(err) {
			return StreamKeysView{}, err
		}
		partial = errors.Join(partial, err)
	}
	view := StreamKeysView{Items: reconcile.StreamKeyItems(all, streams, s.opts.Now(), s.opts.Location)}
	if partial != nil {
		view.Error = partial.Error()
	}
	return view, nil
}

// UpcomingView is the /api/yt-upcoming payload.
type UpcomingView struct {
	Items  []model.UpcomingBroadcast `json:"items"`
	Source string                    `json:"source,omitempty"`
	Error  string                    `json:"error,omitempty"`
}

// YTUpcoming lists upcoming broadcasts, private ones included. When the
// broadcasts listing is empty the channel is searched instead.
func (s *Service) YTUpcoming(ctx context.Context) UpcomingView {
	view, res, err := cache.Fetch(ctx, s.memo, KeyYTUpcoming, s.loadYTUpcoming)
	switch {
	case err != nil:
		view = UpcomingView{Items: []model.UpcomingBroadcast{}, Source: SourceNone}
	case res.Source == cache.SourceCache || res.Source == cache.SourceStale:
		view.Source = SourceCache
	case res.Source == cache.SourceBackoff:
		view.Source = SourceBackoff
	}
	if msg := viewError(res, err); msg != "" {
		view.Error = msg
	}
	return view
}

func (s *Service) loadYTUpcoming(ctx context.Context) (UpcomingView, error) {
	api, _, err := s.connect.Connect(ctx)
	if err != nil {
		return UpcomingView{}, err
	}
	now := s.opts.Now()

	records, lerr := api.BroadcastsByStatus(ctx, "upcoming")
	if lerr == nil && len(records) > 0 {
		reconcile.SortByBestTime(records)
		return UpcomingView{Items: reconcile.UpcomingBroadcasts(records, now), Source: SourceBroadcasts}, nil
	}
	if lerr != nil {
		if youtube.IsQuotaError(lerr) {
			return UpcomingView{}, lerr
		}
		s.logger.Warn("youtube", "upcoming listing failed, searching channel", map[string]any{"error": lerr.Error()})
	}

	channel, err := s.channelID(ctx, api)
	if err != nil {
		return UpcomingView{}, errors.Join(lerr, err)
	}
	hits, err := api.Search(ctx, youtube.SearchQuery{EventType: "upcoming", ChannelID: channel})
	if err != nil {
		return UpcomingView{}, errors.Join(lerr, err)
	}
	ids := make([]string, 0, len(hits))
	for _, h := range hits {
		ids = append(ids, h.VideoID)
	}
	var details map[string]model.VideoDetails
	if len(ids) > 0 {
		if details, err = api.Videos(ctx, ids); err != nil {
			return UpcomingView{}, errors.Join(lerr, err)
		}
	}
	recs := reconcile.SearchRecords(hits, details, reconcile.Upcoming)
	view := UpcomingView{Items: reconcile.UpcomingBroadcasts(recs, now), Source: SourceSearch}
	if lerr != nil {
		view.Error = lerr.Error()
	}
	return view, nil
}

// FeedView is the /api/live-feed payload.
type FeedView struct {
	Live      []model.LiveEntry `json:"live"`
	Upcoming  []model.LiveEntry `json:"upcoming"`
	Source    string            `json:"source"`
	ChannelID string            `json:"channelId,omitempty"`
	Error     string            `json:"error,omitempty"`
}

// Feed reads the public Atom feed of the channel.
func (s *Service) Feed(ctx context.Context) FeedView {
	view, res, err := cache.Fetch(ctx, s.memo, KeyFeed, s.loadFeed)
	if err != nil {
		view = FeedView{Live: []model.LiveEntry{}, Upcoming: []model.LiveEntry{}}
	}
	view.Source = SourceAtom
	if msg := viewError(res, err); msg != "" {
		view.Error = msg
	}
	return view
}

func (s *Service) loadFeed(ctx context.Context) (FeedView, error) {
	if s.feed == nil {
		return FeedView{}, errAtomDisabled
	}
	channel := s.opts.ChannelID
	if channel == "" {
		api, _, err := s.connect.Connect(ctx)
		if err != nil {
			return FeedView{}, fmt.Errorf("resolve channel: %w", err)
		}
		if channel, err = api.MyChannelID(ctx); err != nil {
			return FeedView{}, fmt.Errorf("resolve channel: %w", err)
		}
	}
	entries, err := s.feed.Entries(ctx, channel)
	if err != nil {
		return FeedView{}, err
	}
	live, upcoming := youtube.SplitFeed(entries)
	return FeedView{Live: live, Upcoming: upcoming, ChannelID: channel}, nil
}
