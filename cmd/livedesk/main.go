package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/alexflint/go-arg"
	"github.com/joho/godotenv"
	"github.com/swissbasket/livedesk/internal/api"
	"github.com/swissbasket/livedesk/internal/broadcasts"
	"github.com/swissbasket/livedesk/internal/cache"
	"github.com/swissbasket/livedesk/internal/config"
	"github.com/swissbasket/livedesk/internal/credentials"
	"github.com/swissbasket/livedesk/internal/keemotion"
	"github.com/swissbasket/livedesk/internal/livecontrol"
	"github.com/swissbasket/livedesk/internal/reconcile"
	"github.com/swissbasket/livedesk/internal/schedule"
	"github.com/swissbasket/livedesk/internal/server"
	"github.com/swissbasket/livedesk/internal/telemetry"
	"github.com/swissbasket/livedesk/internal/upstream"
	"github.com/swissbasket/livedesk/internal/youtube"
	"github.com/swissbasket/livedesk/logging"
)

type args struct {
	Config        string `arg:"-c,--config,env:LIVEDESK_CONFIG" default:"config.json" help:"path to the JSON config file; missing files are ignored"`
	Listen        string `arg:"-l,--listen" help:"listen address, overrides LISTEN_ADDR"`
	Assets        string `arg:"--assets" help:"directory holding index.html, overrides ASSETS_DIR"`
	Environment   string `arg:"--env,env:LIVEDESK_ENV" default:"production" help:"environment reported with errors"`
	RedisPassword string `arg:"--redis-password,env:REDIS_PASSWORD" help:"password for REDIS_URL"`
}

func (args) Description() string {
	return "livedesk serves the live-ops dashboard API for YouTube broadcasts, Keemotion arenas and the game schedule.\n"
}

func main() {
	loadEnv()

	var a args
	arg.MustParse(&a)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, a); err != nil && !errors.Is(err, context.Canceled) {
		log.Fatalf("livedesk: %v", err)
	}
}

// loadEnv reads ENV_FILE when set, else .env if present. Real environment
// variables win over .env but not over ENV_FILE.
func loadEnv() {
	if envFile := os.Getenv("ENV_FILE"); envFile != "" {
		if err := godotenv.Overload(envFile); err != nil {
			log.Printf("env: failed to load ENV_FILE=%q: %v", envFile, err)
		}
		return
	}
	_ = godotenv.Load()
}

func run(ctx context.Context, a args) error {
	cfg, err := config.Load(a.Config)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if a.Listen != "" {
		cfg.Server.ListenAddr = a.Listen
	}
	if a.Assets != "" {
		cfg.Server.AssetsDir = a.Assets
	}
	if cfg.Server.AssetsDir == "" {
		cfg.Server.AssetsDir = "web"
	}

	logger := logging.New("livedesk", logging.ParseLevel(cfg.Log.Level), os.Stdout)
	if cfg.Log.Dir != "" {
		fw, err := logging.NewFileWriter(cfg.Log.Dir, "livedesk.log", 10, 5)
		if err != nil {
			return err
		}
		defer fw.Close()
		logger.AddWriter(fw)
	}

	enabled, err := telemetry.Init(cfg.Telemetry.SentryDSN, "livedesk", cfg.Telemetry.Release, a.Environment)
	if err != nil {
		logger.Error("telemetry", "sentry init failed", err, nil)
	}
	if enabled {
		defer telemetry.Flush()
	}

	store, closeStore := newStore(ctx, cfg.Cache, a.RedisPassword, logger)
	defer closeStore()

	router := api.NewRouter(buildOptions(cfg, store, logger))
	return server.Run(ctx, server.Options{
		Listen:  cfg.Server.ListenAddr,
		Handler: router,
		Logger:  logger,
	})
}

// newStore picks Redis when REDIS_URL is set and falls back to memory when it
// cannot be reached.
func newStore(ctx context.Context, cfg config.CacheConfig, password string, logger *logging.Logger) (cache.Store, func()) {
	if cfg.RedisURL == "" {
		return cache.NewMemoryStore(), func() {}
	}
	rdb, err := cache.NewRedisClient(ctx, cfg.RedisURL, password)
	if err != nil {
		logger.Error("cache", "redis unavailable, using memory store", err, nil)
		return cache.NewMemoryStore(), func() {}
	}
	logger.Info("cache", "using redis store", nil)
	return &cache.RedisStore{Client: rdb, Prefix: "livedesk:"}, func() { _ = rdb.Close() }
}

func buildOptions(cfg config.Config, store cache.Store, logger *logging.Logger) api.Options {
	newHTTP := func(name string) upstream.Options {
		return upstream.Options{Name: name, Timeout: cfg.Upstream.Timeout, MinInterval: cfg.Upstream.MinInterval}
	}
	ytHTTP := upstream.NewClient(newHTTP("youtube"))

	tokens := credentials.Source{
		Config:     cfg.YouTube,
		HTTPClient: upstream.NewClient(newHTTP("oauth")),
		Logger:     logger,
	}
	connector := youtube.Connector{
		Tokens:   tokens,
		Base:     ytHTTP,
		Endpoint: cfg.YouTube.APIEndpoint,
		Logger:   logger,
	}
	feed := youtube.FeedClient{
		BaseURL:    cfg.YouTube.FeedBase,
		HTTPClient: upstream.NewClient(newHTTP("youtube-feed")),
		Logger:     logger,
	}

	memo := cache.NewMemo(store, cache.Options{
		TTL:     cfg.Cache.TTL,
		Backoff: cfg.Cache.QuotaBackoff,
		IsQuota: youtube.IsQuotaError,
		Logger:  logger,
	})
	views := broadcasts.NewService(broadcasts.YouTubeConnector(connector), feed, memo, broadcasts.Options{
		IncludeTesting: cfg.YouTube.IncludeTesting,
		AtomFallback:   cfg.YouTube.UseAtomFallback(),
		ChannelID:      cfg.YouTube.ChannelID,
		Location:       reconcile.Zurich(),
	}, logger)

	control := livecontrol.NewController(livecontrol.YouTubeConnector(connector), views, livecontrol.Options{
		Attempts: cfg.LiveControl.ConfirmAttempts,
		Delay:    cfg.LiveControl.ConfirmDelay,
	}, logger)

	return api.Options{
		Logger:      logger,
		Views:       views,
		Issues:      keemotion.NewClient(cfg.Keemotion, upstream.NewClient(newHTTP("keemotion")), logger),
		Schedule:    schedule.NewClient(cfg.Schedule.CSVURL, upstream.NewClient(newHTTP("schedule")), logger),
		Control:     control,
		Prober:      tokens,
		Credentials: credentials.Available(cfg.YouTube),
		AssetsDir:   cfg.Server.AssetsDir,
		HorizonDays: cfg.Schedule.HorizonDays,
	}
}
