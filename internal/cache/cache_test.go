package cache

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"
)

var errQuota = errors.New("quotaExceeded")

type clock struct{ t time.Time }

func (c *clock) now() time.Time { return c.t }

func newTestMemo(c *clock) *Memo {
	return NewMemo(NewMemoryStore(), Options{
		TTL:     30 * time.Second,
		Backoff: 10 * time.Minute,
		IsQuota: func(err error) bool { return errors.Is(err, errQuota) },
		Now:     c.now,
	})
}

type payload struct {
	Live []string `json:"live"`
}

func TestFetchServesWithinTTL(t *testing.T) {
	ctx := context.Background()
	c := &clock{t: time.Date(2024, 3, 15, 12, 0, 0, 0, time.UTC)}
	m := newTestMemo(c)
	calls := 0
	load := func(context.Context) (payload, error) {
		calls++
		return payload{Live: []string{"a"}}, nil
	}

	if _, res, err := Fetch(ctx, m, "live", load); err != nil || res.Source != SourceFresh {
		t.Fatalf("first fetch: res=%+v err=%v", res, err)
	}
	c.t = c.t.Add(10 * time.Second)
	v, res, err := Fetch(ctx, m, "live", load)
	if err != nil || res.Source != SourceCache || calls != 1 || v.Live[0] != "a" {
		t.Fatalf("expected cache hit, got res=%+v calls=%d err=%v", res, calls, err)
	}
	c.t = c.t.Add(30 * time.Second)
	if _, res, _ := Fetch(ctx, m, "live", load); res.Source != SourceFresh || calls != 2 {
		t.Fatalf("expected reload after ttl, got %+v calls=%d", res, calls)
	}
}

func TestQuotaErrorBacksOffAndServesCache(t *testing.T) {
	ctx := context.Background()
	c := &clock{t: time.Date(2024, 3, 15, 12, 0, 0, 0, time.UTC)}
	m := newTestMemo(c)

	good := payload{Live: []string{"b1", "b2"}}
	if _, _, err := Fetch(ctx, m, "live", func(context.Context) (payload, error) { return good, nil }); err != nil {
		t.Fatalf("seed: %v", err)
	}

	c.t = c.t.Add(time.Minute)
	v, res, err := Fetch(ctx, m, "live", func(context.Context) (payload, error) { return payload{}, errQuota })
	if err != nil {
		t.Fatalf("quota error should be masked by cache: %v", err)
	}
	if res.Source != SourceBackoff || !errors.Is(res.Err, errQuota) || !res.BackoffUntil.Equal(c.t.Add(10*time.Minute)) {
		t.Fatalf("unexpected result: %+v", res)
	}
	if len(v.Live) != 2 {
		t.Fatalf("expected cached payload, got %+v", v)
	}

	c.t = c.t.Add(5 * time.Minute)
	calls := 0
	v, res, err = Fetch(ctx, m, "live", func(context.Context) (payload, error) {
		calls++
		return payload{Live: []string{"new"}}, nil
	})
	if err != nil || calls != 0 {
		t.Fatalf("upstream called inside backoff window: calls=%d err=%v", calls, err)
	}
	if res.Source != SourceBackoff || v.Live[0] != "b1" || v.Live[1] != "b2" {
		t.Fatalf("expected unchanged cached payload, got %+v %+v", v, res)
	}
	if _, ok := m.IsBackedOff(ctx, "live"); !ok {
		t.Fatalf("key should report backoff")
	}

	c.t = c.t.Add(6 * time.Minute)
	if _, res, _ := Fetch(ctx, m, "live", func(context.Context) (payload, error) {
		calls++
		return payload{Live: []string{"new"}}, nil
	}); res.Source != SourceFresh || calls != 1 {
		t.Fatalf("expected reload after window, got %+v calls=%d", res, calls)
	}
}

func TestBackoffWithoutCacheReturnsErr(t *testing.T) {
	ctx := context.Background()
	c := &clock{t: time.Date(2024, 3, 15, 12, 0, 0, 0, time.UTC)}
	m := newTestMemo(c)
	if _, _, err := Fetch(ctx, m, "upcoming", func(context.Context) ([]int, error) { return nil, errQuota }); !errors.Is(err, errQuota) {
		t.Fatalf("expected quota error, got %v", err)
	}
	_, res, err := Fetch(ctx, m, "upcoming", func(context.Context) ([]int, error) {
		t.Fatalf("load called during backoff")
		return nil, nil
	})
	if !errors.Is(err, ErrBackedOff) || res.Source != SourceBackoff {
		t.Fatalf("expected ErrBackedOff, got res=%+v err=%v", res, err)
	}
}

func TestNonQuotaErrorServesStale(t *testing.T) {
	ctx := context.Background()
	c := &clock{t: time.Date(2024, 3, 15, 12, 0, 0, 0, time.UTC)}
	m := newTestMemo(c)
	Fetch(ctx, m, "keys", func(context.Context) (string, error) { return "v1", nil })
	c.t = c.t.Add(time.Hour)
	boom := errors.New("502")
	v, res, err := Fetch(ctx, m, "keys", func(context.Context) (string, error) { return "", boom })
	if err != nil || v != "v1" || res.Source != SourceStale || !errors.Is(res.Err, boom) {
		t.Fatalf("expected stale v1, got v=%q res=%+v err=%v", v, res, err)
	}
	if _, ok := m.IsBackedOff(ctx, "keys"); ok {
		t.Fatalf("non-quota errors must not back off")
	}
}

func TestInvalidateForcesReload(t *testing.T) {
	ctx := context.Background()
	c := &clock{t: time.Date(2024, 3, 15, 12, 0, 0, 0, time.UTC)}
	m := newTestMemo(c)
	calls := 0
	load := func(context.Context) (int, error) { calls++; return calls, nil }
	Fetch(ctx, m, "live", load)
	m.Invalidate(ctx, "live")
	if v, _, _ := Fetch(ctx, m, "live", load); v != 2 {
		t.Fatalf("expected reload after invalidate, got %d", v)
	}
}

func TestRedisStoreRoundTrip(t *testing.T) {
	url := os.Getenv("REDIS_TEST_URL")
	if url == "" {
		t.Skip("REDIS_TEST_URL not set")
	}
	ctx := context.Background()
	client, err := NewRedisClient(ctx, url, "")
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	defer client.Close()
	store := &RedisStore{Client: client, Prefix: "livedesk-test:"}
	defer client.Del(ctx, store.entryKey("k"), store.backoffKey("k"))

	if _, ok, err := store.Get(ctx, "k"); err != nil || ok {
		t.Fatalf("expected miss, ok=%v err=%v", ok, err)
	}
	now := time.Now().UTC().Truncate(time.Second)
	if err := store.Set(ctx, "k", Entry{StoredAt: now, Data: []byte(`{"a":1}`)}); err != nil {
		t.Fatalf("set: %v", err)
	}
	e, ok, err := store.Get(ctx, "k")
	if err != nil || !ok || !e.StoredAt.Equal(now) || string(e.Data) != `{"a":1}` {
		t.Fatalf("unexpected entry %+v ok=%v err=%v", e, ok, err)
	}
	until := now.Add(time.Minute)
	if err := store.BackOff(ctx, "k", until); err != nil {
		t.Fatalf("backoff: %v", err)
	}
	if got, ok, err := store.IsBackedOff(ctx, "k", now); err != nil || !ok || !got.Equal(until) {
		t.Fatalf("expected backoff until %v, got %v ok=%v err=%v", until, got, ok, err)
	}
}
