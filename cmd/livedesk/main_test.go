package main

import (
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/swissbasket/livedesk/internal/api"
	"github.com/swissbasket/livedesk/internal/cache"
	"github.com/swissbasket/livedesk/internal/config"
)

func TestNewStoreDefaultsToMemory(t *testing.T) {
	store, closeStore := newStore(context.Background(), config.CacheConfig{}, "", nil)
	defer closeStore()
	if _, ok := store.(*cache.MemoryStore); !ok {
		t.Fatalf("expected memory store, got %T", store)
	}
}

func TestNewStoreFallsBackWhenRedisUnreachable(t *testing.T) {
	store, closeStore := newStore(context.Background(), config.CacheConfig{RedisURL: "redis://127.0.0.1:1/0"}, "", nil)
	defer closeStore()
	if _, ok := store.(*cache.MemoryStore); !ok {
		t.Fatalf("expected memory fallback, got %T", store)
	}
}

func TestBuildOptionsWiresEveryRoute(t *testing.T) {
	t.Setenv("YT_PLAYGROUND_CLIENT_ID", "")
	t.Setenv("YT_CLIENT_ID", "")
	t.Setenv("YT_DESKTOP_CLIENT_ID", "")
	cfg, err := config.Load(filepath.Join(t.TempDir(), "missing.json"))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	opts := buildOptions(cfg, cache.NewMemoryStore(), nil)
	if opts.Views == nil || opts.Issues == nil || opts.Schedule == nil || opts.Control == nil || opts.Prober == nil {
		t.Fatalf("incomplete options: %+v", opts)
	}
	if opts.HorizonDays != 7 {
		t.Fatalf("unexpected horizon %d", opts.HorizonDays)
	}

	// Without credentials the routes still answer 200 with an embedded error.
	router := api.NewRouter(opts)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/yt-status", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
}
