// Package livecontrol applies visibility changes and end-of-stream
// transitions to YouTube broadcasts, then polls until the change is visible.
package livecontrol

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/swissbasket/livedesk/internal/credentials"
	"github.com/swissbasket/livedesk/internal/metrics"
	"github.com/swissbasket/livedesk/internal/model"
	"github.com/swissbasket/livedesk/internal/youtube"
	"github.com/swissbasket/livedesk/logging"
)

// Actions accepted in a Request.
const (
	ActionSetVisibility = "setVisibility"
	ActionEndLive       = "endLive"
)

// Request is the body of POST /api/live-control.
type Request struct {
	Action  string `json:"action"`
	ID      string `json:"id"`
	Privacy string `json:"privacy,omitempty"`
}

// ValidationError is a client mistake; the handler answers 400.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string { return e.Message }

// Validate checks the request without touching upstream.
func Validate(req Request) error {
	if strings.TrimSpace(req.Action) == "" || strings.TrimSpace(req.ID) == "" {
		return &ValidationError{Message: "Missing action or id"}
	}
	switch req.Action {
	case ActionSetVisibility:
		switch req.Privacy {
		case "":
			return &ValidationError{Message: "Missing privacy"}
		case model.PrivacyPublic, model.PrivacyUnlisted, model.PrivacyPrivate:
			return nil
		default:
			return &ValidationError{Message: "Invalid privacy"}
		}
	case ActionEndLive:
		return nil
	default:
		return &ValidationError{Message: "Unknown action"}
	}
}

// Mutator is the part of the Data API client that changes broadcasts.
type Mutator interface {
	SetPrivacy(ctx context.Context, id, privacy string) error
	Transition(ctx context.Context, id, status string) error
	Broadcast(ctx context.Context, id string) (model.BroadcastRecord, bool, error)
}

// Connector yields a Mutator bound to a fresh token.
type Connector interface {
	Connect(ctx context.Context) (Mutator, credentials.Resolved, error)
}

// ConnectorFunc adapts a function to Connector.
type ConnectorFunc func(ctx context.Context) (Mutator, credentials.Resolved, error)

func (f ConnectorFunc) Connect(ctx context.Context) (Mutator, credentials.Resolved, error) {
	return f(ctx)
}

// YouTubeConnector adapts the Data API connector.
func YouTubeConnector(c youtube.Connector) Connector {
	return ConnectorFunc(func(ctx context.Context) (Mutator, credentials.Resolved, error) {
		client, resolved, err := c.Connect(ctx)
		if err != nil {
			return nil, resolved, err
		}
		return client, resolved, nil
	})
}

// Invalidator drops cached views after a mutation.
type Invalidator interface {
	Invalidate(ctx context.Context)
}

// Result is the body of a processed request.
type Result struct {
	OK        bool   `json:"ok"`
	Confirmed bool   `json:"confirmed,omitempty"`
	Attempts  int    `json:"attempts,omitempty"`
	Error     string `json:"error,omitempty"`
}

// Options configures confirmation polling.
type Options struct {
	// Attempts is the maximum number of confirmation reads.
	Attempts int
	// Delay is the wait before the second read; it doubles after each miss.
	Delay time.Duration
}

// Controller runs mutations.
type Controller struct {
	connect    Connector
	invalidate Invalidator
	opts       Options
	logger     *logging.Logger
	sleep      func(ctx context.Context, d time.Duration) error
}

// NewController returns a Controller. invalidate may be nil.
func NewController(connect Connector, invalidate Invalidator, opts Options, logger *logging.Logger) *Controller {
	if opts.Attempts <= 0 {
		opts.Attempts = 1
	}
	return &Controller{connect: connect, invalidate: invalidate, opts: opts, logger: logger, sleep: sleepCtx}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Apply validates req, performs the mutation and waits for confirmation.
// A *ValidationError is returned for bad requests; upstream failures are
// reported in Result with a nil error.
func (c *Controller) Apply(ctx context.Context, req Request) (Result, error) {
	if err := Validate(req); err != nil {
		metrics.LiveControl.WithLabelValues(req.Action, "invalid").Inc()
		return Result{Error: err.Error()}, err
	}
	log := c.logger.WithRequestID(logging.RequestIDFromContext(ctx)).
		WithCategory("livecontrol").
		WithFields(map[string]any{"op": uuid.NewString(), "action": req.Action, "id": req.ID})

	mut, resolved, err := c.connect.Connect(ctx)
	if err != nil {
		metrics.LiveControl.WithLabelValues(req.Action, "error").Inc()
		log.Error("token exchange failed", err)
		return Result{Error: err.Error()}, nil
	}

	switch req.Action {
	case ActionSetVisibility:
		err = mut.SetPrivacy(ctx, req.ID, req.Privacy)
		if err != nil {
			err = fmt.Errorf("visibility(%d): %w", youtube.HTTPStatus(err), err)
		}
	case ActionEndLive:
		err = mut.Transition(ctx, req.ID, model.LifeCycleComplete)
		if err != nil {
			err = fmt.Errorf("transition(%d): %w", youtube.HTTPStatus(err), err)
		}
	}
	if err != nil {
		metrics.LiveControl.WithLabelValues(req.Action, "error").Inc()
		log.Error("mutation failed", err)
		return Result{Error: err.Error()}, nil
	}
	c.invalidateViews(ctx)
	log.WithField("credentials", resolved.Name).Info("mutation accepted")

	confirmed, attempts := c.confirm(ctx, mut, req)
	if confirmed {
		c.invalidateViews(ctx)
		metrics.LiveControl.WithLabelValues(req.Action, "confirmed").Inc()
		log.WithField("attempts", attempts).Info("mutation confirmed")
	} else {
		metrics.LiveControl.WithLabelValues(req.Action, "unconfirmed").Inc()
		log.WithField("attempts", attempts).Warn("mutation not yet visible")
	}
	return Result{OK: true, Confirmed: confirmed, Attempts: attempts}, nil
}

func (c *Controller) invalidateViews(ctx context.Context) {
	if c.invalidate != nil {
		c.invalidate.Invalidate(ctx)
	}
}

// confirm reads the broadcast until it reflects req, sleeping Delay, 2*Delay,
// 4*Delay... between reads.
func (c *Controller) confirm(ctx context.Context, mut Mutator, req Request) (bool, int) {
	delay := c.opts.Delay
	for attempt := 1; attempt <= c.opts.Attempts; attempt++ {
		if attempt > 1 {
			if err := c.sleep(ctx, delay); err != nil {
				return false, attempt - 1
			}
			delay *= 2
		}
		rec, found, err := mut.Broadcast(ctx, req.ID)
		if err != nil {
			c.logger.Warn("livecontrol", "confirmation read failed", map[string]any{"id": req.ID, "attempt": attempt, "error": err.Error()})
			continue
		}
		if found && applied(rec, req) {
			return true, attempt
		}
	}
	return false, c.opts.Attempts
}

func applied(rec model.BroadcastRecord, req Request) bool {
	switch req.Action {
	case ActionSetVisibility:
		return rec.PrivacyStatus == req.Privacy
	case ActionEndLive:
		return rec.LifeCycleStatus == model.LifeCycleComplete || rec.LifeCycleStatus == model.LifeCycleRevoked
	}
	return false
}
