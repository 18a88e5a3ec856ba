package broadcasts

import (
	"context"
	"errors"
	"time"

	"github.com/swissbasket/livedesk/internal/cache"
	"github.com/swissbasket/livedesk/internal/model"
	"github.com/swissbasket/livedesk/internal/reconcile"
	"github.com/swissbasket/livedesk/internal/youtube"
	"golang.org/x/sync/errgroup"
)

// Sources reported in LiveMeta.Source.
const (
	SourceBroadcasts = "broadcasts"
	SourceSearch     = "search"
	SourceAtom       = "atom"
	SourceCache      = "cache"
	SourceBackoff    = "backoff"
	SourceNone       = "none"
)

// LiveMeta explains where the lists came from.
type LiveMeta struct {
	Source            string     `json:"source"`
	LastError         string     `json:"lastError,omitempty"`
	QuotaBackoffUntil *time.Time `json:"quotaBackoffUntil,omitempty"`
}

// LiveDebug is attached with ?debug=1.
type LiveDebug struct {
	Credentials string     `json:"credentials,omitempty"`
	Broadcasts  int        `json:"broadcasts"`
	Origin      string     `json:"origin"`
	Cache       CacheState `json:"cache"`
}

// LiveView is the /api/live payload.
type LiveView struct {
	Live     []model.LiveEntry `json:"live"`
	Upcoming []model.LiveEntry `json:"upcoming"`
	Meta     LiveMeta          `json:"meta"`
	Debug    *LiveDebug        `json:"debug,omitempty"`
}

func emptyLive(source string) LiveView {
	return LiveView{Live: []model.LiveEntry{}, Upcoming: []model.LiveEntry{}, Meta: LiveMeta{Source: source}, Debug: &LiveDebug{Origin: source}}
}

// Live returns live and upcoming broadcasts. The broadcasts listing is tried
// first, then search plus videos, then the Atom feed.
func (s *Service) Live(ctx context.Context) LiveView {
	view, res, err := cache.Fetch(ctx, s.memo, KeyLive, s.loadLive)
	if err != nil {
		lastErr := err
		view = emptyLive(SourceNone)
		// Quota and backoff failures stop the chain before the feed; it needs
		// no quota, so try it here. Other failures already went through it.
		if errors.Is(err, cache.ErrBackedOff) || youtube.IsQuotaError(err) {
			atom, aerr := s.atomView(ctx, nil)
			switch {
			case aerr == nil:
				view = atom
			case !errors.Is(aerr, errAtomDisabled):
				lastErr = errors.Join(err, aerr)
			}
		}
		view.Meta.LastError = lastErr.Error()
	}
	if view.Debug == nil {
		view.Debug = &LiveDebug{}
	}
	view.Debug.Cache = cacheState(res)
	if err == nil {
		switch res.Source {
		case cache.SourceCache, cache.SourceStale:
			view.Meta.Source = SourceCache
		case cache.SourceBackoff:
			view.Meta.Source = SourceBackoff
		}
	}
	if res.Err != nil {
		view.Meta.LastError = res.Err.Error()
	}
	if !res.BackoffUntil.IsZero() {
		until := res.BackoffUntil.UTC()
		view.Meta.QuotaBackoffUntil = &until
	}
	return view
}

func (s *Service) loadLive(ctx context.Context) (LiveView, error) {
	api, resolved, err := s.connect.Connect(ctx)
	if err != nil {
		s.logger.Warn("youtube", "token unavailable for live view", map[string]any{"error": err.Error()})
		atom, aerr := s.atomView(ctx, nil)
		if aerr == nil {
			atom.Meta.LastError = err.Error()
			return atom, nil
		}
		if !errors.Is(aerr, errAtomDisabled) {
			return LiveView{}, errors.Join(err, aerr)
		}
		return LiveView{}, err
	}

	now := s.opts.Now()
	all, perr := api.MyBroadcasts(ctx)
	if perr == nil {
		live, upcoming := reconcile.Partition(all, now, s.reconcileOptions())
		if len(live)+len(upcoming) > 0 {
			view := LiveView{Meta: LiveMeta{Source: SourceBroadcasts}}
			streams, serr := api.Streams(ctx, reconcile.StreamIDs(live, upcoming))
			if serr != nil {
				if youtube.IsQuotaError(serr) {
					return LiveView{}, serr
				}
				s.logger.Warn("youtube", "stream lookup failed", map[string]any{"error": serr.Error()})
				view.Meta.LastError = serr.Error()
			}
			view.Live = reconcile.LiveEntries(live, streams)
			view.Upcoming = reconcile.UpcomingEntries(upcoming, streams)
			view.Debug = &LiveDebug{Credentials: resolved.Name, Broadcasts: len(all), Origin: SourceBroadcasts}
			return view, nil
		}
	} else {
		if youtube.IsQuotaError(perr) {
			return LiveView{}, perr
		}
		s.logger.Warn("youtube", "broadcasts listing failed, falling back to search", map[string]any{"error": perr.Error()})
	}

	view, ferr := s.searchView(ctx, api)
	if ferr == nil {
		if perr != nil {
			view.Meta.LastError = perr.Error()
		}
		view.Debug = &LiveDebug{Credentials: resolved.Name, Broadcasts: len(all), Origin: SourceSearch}
		return view, nil
	}
	if youtube.IsQuotaError(ferr) {
		return LiveView{}, ferr
	}
	lastErr := errors.Join(perr, ferr)

	if atom, aerr := s.atomView(ctx, api); aerr == nil {
		atom.Meta.LastError = lastErr.Error()
		return atom, nil
	} else if !errors.Is(aerr, errAtomDisabled) {
		lastErr = errors.Join(lastErr, aerr)
	}

	if perr == nil {
		// The listing worked and was simply empty.
		view := emptyLive(SourceBroadcasts)
		view.Meta.LastError = lastErr.Error()
		view.Debug.Credentials = resolved.Name
		view.Debug.Broadcasts = len(all)
		return view, nil
	}
	return LiveView{}, lastErr
}

// searchView runs search.list for live and upcoming videos and completes
// them with videos.list.
func (s *Service) searchView(ctx context.Context, api API) (LiveView, error) {
	var liveHits, upcomingHits []model.SearchHit
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		liveHits, err = api.Search(gctx, youtube.SearchQuery{EventType: "live", ChannelID: s.opts.ChannelID})
		return err
	})
	g.Go(func() error {
		var err error
		upcomingHits, err = api.Search(gctx, youtube.SearchQuery{EventType: "upcoming", ChannelID: s.opts.ChannelID})
		return err
	})
	if err := g.Wait(); err != nil {
		return LiveView{}, err
	}

	ids := make([]string, 0, len(liveHits)+len(upcomingHits))
	for _, h := range append(append([]model.SearchHit{}, liveHits...), upcomingHits...) {
		ids = append(ids, h.VideoID)
	}
	view := LiveView{Meta: LiveMeta{Source: SourceSearch}}
	var details map[string]model.VideoDetails
	if len(ids) > 0 {
		var err error
		details, err = api.Videos(ctx, ids)
		if err != nil {
			if youtube.IsQuotaError(err) {
				return LiveView{}, err
			}
			s.logger.Warn("youtube", "videos lookup failed", map[string]any{"error": err.Error()})
			view.Meta.LastError = err.Error()
		}
	}
	view.Live = reconcile.LiveEntries(reconcile.SearchRecords(liveHits, details, reconcile.Live), nil)
	view.Upcoming = reconcile.UpcomingEntries(reconcile.SearchRecords(upcomingHits, details, reconcile.Upcoming), nil)
	return view, nil
}

// atomView reads the public feed. api may be nil; it is only used to
// resolve the channel when none is configured.
func (s *Service) atomView(ctx context.Context, api API) (LiveView, error) {
	if !s.opts.AtomFallback || s.feed == nil {
		return LiveView{}, errAtomDisabled
	}
	channel, err := s.channelID(ctx, api)
	if err != nil {
		return LiveView{}, err
	}
	entries, err := s.feed.Entries(ctx, channel)
	if err != nil {
		return LiveView{}, err
	}
	live, upcoming := youtube.SplitFeed(entries)
	return LiveView{
		Live:     live,
		Upcoming: upcoming,
		Meta:     LiveMeta{Source: SourceAtom},
		Debug:    &LiveDebug{Origin: SourceAtom},
	}, nil
}
