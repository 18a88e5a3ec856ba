package broadcasts

import (
	"context"

	"github.com/swissbasket/livedesk/internal/credentials"
	"github.com/swissbasket/livedesk/internal/youtube"
	"golang.org/x/sync/errgroup"
)

// StatusCount is the size of one broadcastStatus listing, or why it failed.
type StatusCount struct {
	Status     string `json:"status"`
	OK         bool   `json:"ok"`
	Count      int    `json:"count"`
	HTTPStatus int    `json:"httpStatus,omitempty"`
	Body       any    `json:"body,omitempty"`
}

// DebugView is the /api/yt-debug payload.
type DebugView struct {
	Envs        credentials.Availability `json:"envs"`
	Credentials string                   `json:"credentials,omitempty"`
	ChannelMine any                      `json:"channelMine,omitempty"`
	Counts      map[string]StatusCount   `json:"liveBroadcastsCounts,omitempty"`
	Error       bool                     `json:"error,omitempty"`
	Message     string                   `json:"message,omitempty"`
}

// Debug reports which credential sets are usable, the authorised channel and
// listing sizes per status. It bypasses the cache.
func (s *Service) Debug(ctx context.Context, envs credentials.Availability) DebugView {
	view := DebugView{Envs: envs}
	api, resolved, err := s.connect.Connect(ctx)
	if err != nil {
		view.Error, view.Message = true, err.Error()
		return view
	}
	view.Credentials = resolved.Name

	if channels, err := api.MyChannels(ctx); err != nil {
		view.ChannelMine = youtube.ErrorBody(err)
	} else {
		view.ChannelMine = channels
	}

	statuses := []string{"active", "upcoming"}
	counts := make([]StatusCount, len(statuses))
	var g errgroup.Group
	for i, status := range statuses {
		g.Go(func() error {
			records, err := api.BroadcastsByStatus(ctx, status)
			if err != nil {
				counts[i] = StatusCount{Status: status, HTTPStatus: youtube.HTTPStatus(err), Body: youtube.ErrorBody(err)}
				return nil
			}
			counts[i] = StatusCount{Status: status, OK: true, Count: len(records)}
			return nil
		})
	}
	g.Wait()

	view.Counts = make(map[string]StatusCount, len(statuses))
	for i, status := range statuses {
		view.Counts[status] = counts[i]
	}
	return view
}
