// Package cache memoizes upstream views with a TTL and a quota backoff window.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/swissbasket/livedesk/internal/metrics"
	"github.com/swissbasket/livedesk/logging"
)

// ErrBackedOff is returned when a key is inside its backoff window and no
// cached value exists.
var ErrBackedOff = errors.New("upstream backed off after quota error")

// Entry is a stored payload.
type Entry struct {
	StoredAt time.Time       `json:"ts"`
	Data     json.RawMessage `json:"data"`
}

// Store holds entries and backoff deadlines. A miss is reported as
// (Entry{}, false, nil).
type Store interface {
	Get(ctx context.Context, key string) (Entry, bool, error)
	Set(ctx context.Context, key string, e Entry) error
	Delete(ctx context.Context, keys ...string) error
	BackOff(ctx context.Context, key string, until time.Time) error
	IsBackedOff(ctx context.Context, key string, now time.Time) (time.Time, bool, error)
}

// Source tells where a Fetch result came from.
type Source string

const (
	SourceFresh   Source = "fresh"
	SourceCache   Source = "cache"
	SourceStale   Source = "stale"
	SourceBackoff Source = "backoff"
)

// Result describes a Fetch.
type Result struct {
	Source       Source
	StoredAt     time.Time
	BackoffUntil time.Time
	// Err is the upstream error that was masked by a stale or backoff value.
	Err error
}

// Options configures a Memo.
type Options struct {
	TTL     time.Duration
	Backoff time.Duration
	// IsQuota decides which load errors open a backoff window.
	IsQuota func(error) bool
	Logger  *logging.Logger
	Now     func() time.Time
}

// Memo wraps a Store with TTL and backoff policy.
type Memo struct {
	store   Store
	ttl     time.Duration
	backoff time.Duration
	isQuota func(error) bool
	logger  *logging.Logger
	now     func() time.Time
}

// NewMemo builds a Memo over store.
func NewMemo(store Store, opts Options) *Memo {
	m := &Memo{
		store:   store,
		ttl:     opts.TTL,
		backoff: opts.Backoff,
		isQuota: opts.IsQuota,
		logger:  opts.Logger,
		now:     opts.Now,
	}
	if m.now == nil {
		m.now = time.Now
	}
	if m.isQuota == nil {
		m.isQuota = func(error) bool { return false }
	}
	return m
}

// IsBackedOff reports the backoff deadline of key, if one is active.
func (m *Memo) IsBackedOff(ctx context.Context, key string) (time.Time, bool) {
	until, ok, err := m.store.IsBackedOff(ctx, key, m.now())
	if err != nil {
		m.logger.Warn("cache", "backoff lookup failed", map[string]any{"key": key, "error": err.Error()})
		return time.Time{}, false
	}
	return until, ok
}

// Invalidate drops cached values so the next Fetch reloads. Backoff windows stay.
func (m *Memo) Invalidate(ctx context.Context, keys ...string) {
	if len(keys) == 0 {
		return
	}
	if err := m.store.Delete(ctx, keys...); err != nil {
		m.logger.Warn("cache", "invalidate failed", map[string]any{"keys": keys, "error": err.Error()})
	}
}

func (m *Memo) lookup(ctx context.Context, key string) (Entry, bool) {
	e, ok, err := m.store.Get(ctx, key)
	if err != nil {
		m.logger.Warn("cache", "get failed", map[string]any{"key": key, "error": err.Error()})
		return Entry{}, false
	}
	return e, ok
}

// Fetch returns the value under key, calling load when the cached value is
// older than the TTL. Inside a backoff window load is never called. When load
// fails the last cached value is served, whatever its age.
func Fetch[T any](ctx context.Context, m *Memo, key string, load func(context.Context) (T, error)) (T, Result, error) {
	var zero T
	now := m.now()
	entry, cached := m.lookup(ctx, key)

	var value T
	if cached {
		if err := json.Unmarshal(entry.Data, &value); err != nil {
			m.logger.Warn("cache", "discarding undecodable entry", map[string]any{"key": key, "error": err.Error()})
			cached = false
		}
	}

	if until, backedOff := m.IsBackedOff(ctx, key); backedOff {
		metrics.CacheLookups.WithLabelValues(key, "backoff").Inc()
		res := Result{Source: SourceBackoff, BackoffUntil: until}
		if !cached {
			return zero, res, ErrBackedOff
		}
		res.StoredAt = entry.StoredAt
		return value, res, nil
	}

	if cached && now.Sub(entry.StoredAt) < m.ttl {
		metrics.CacheLookups.WithLabelValues(key, "hit").Inc()
		return value, Result{Source: SourceCache, StoredAt: entry.StoredAt}, nil
	}
	metrics.CacheLookups.WithLabelValues(key, "miss").Inc()

	fresh, err := load(ctx)
	if err != nil {
		res := Result{Source: SourceStale, Err: err}
		if m.isQuota(err) && m.backoff > 0 {
			res.Source = SourceBackoff
			res.BackoffUntil = now.Add(m.backoff)
			if berr := m.store.BackOff(ctx, key, res.BackoffUntil); berr != nil {
				m.logger.Warn("cache", "backoff store failed", map[string]any{"key": key, "error": berr.Error()})
			}
			metrics.QuotaBackoffs.WithLabelValues(key).Inc()
			m.logger.Warn("cache", "quota error, backing off", map[string]any{"key": key, "until": res.BackoffUntil.Format(time.RFC3339)})
		}
		if !cached {
			return zero, res, err
		}
		metrics.CacheLookups.WithLabelValues(key, "stale").Inc()
		res.StoredAt = entry.StoredAt
		return value, res, nil
	}

	data, err := json.Marshal(fresh)
	if err != nil {
		return fresh, Result{Source: SourceFresh, StoredAt: now}, fmt.Errorf("encode %s: %w", key, err)
	}
	if err := m.store.Set(ctx, key, Entry{StoredAt: now, Data: data}); err != nil {
		m.logger.Warn("cache", "set failed", map[string]any{"key": key, "error": err.Error()})
	}
	return fresh, Result{Source: SourceFresh, StoredAt: now}, nil
}
