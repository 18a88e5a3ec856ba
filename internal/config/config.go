// Package config loads livedesk settings from an optional JSON file and the environment.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

const (
	defaultListenAddr     = ":8080"
	defaultTokenURL       = "https://oauth2.googleapis.com/token"
	defaultFeedBase       = "https://www.youtube.com"
	defaultKeemotionBase  = "https://pointguard.keemotion.com"
	defaultArenasBasePath = "/game/arenas"
	defaultKeemotionAgent = "KeecastWeb 5.24.2"
	defaultReferer        = "https://sportshub.keemotion.com/"
	defaultOrigin         = "https://sportshub.keemotion.com"
	defaultAcceptLanguage = "fr-CH,fr;q=0.9,de-DE;q=0.8,de;q=0.7,en-US;q=0.6,en;q=0.5,fr-FR;q=0.4"
	defaultScheduleCSV    = "https://docs.google.com/spreadsheets/d/e/2PACX-1vSJbAy9lLRUi22IZZTwuL0hpbMdekSoyFbL05_GaO2p9gbHJFQYVomMlKIM8zRKX0e42B9awnelGz5H/pub?gid=1442510586&single=true&output=csv"
	defaultHorizonDays    = 7
	maxHorizonDays        = 30
	defaultCacheTTL       = 30 * time.Second
	defaultQuotaBackoff   = 10 * time.Minute
	defaultConfirmTries   = 3
	defaultConfirmDelay   = time.Second
	defaultUpstreamTO     = 15 * time.Second
)

// Credentials is one OAuth client triple.
type Credentials struct {
	ClientID     string `json:"client_id"`
	ClientSecret string `json:"client_secret"`
	RefreshToken string `json:"refresh_token"`
}

// Complete reports whether every field is populated.
func (c Credentials) Complete() bool {
	return strings.TrimSpace(c.ClientID) != "" &&
		strings.TrimSpace(c.ClientSecret) != "" &&
		strings.TrimSpace(c.RefreshToken) != ""
}

// YouTubeConfig configures the Data API, token exchange and feed fallback.
type YouTubeConfig struct {
	Playground     Credentials `json:"playground"`
	Default        Credentials `json:"default"`
	TokenURL       string      `json:"token_url"`
	APIEndpoint    string      `json:"api_endpoint"`
	ChannelID      string      `json:"channel_id"`
	FeedBase       string      `json:"feed_base"`
	IncludeTesting bool        `json:"include_testing"`
	AtomFallback   *bool       `json:"atom_fallback,omitempty"`
}

// UseAtomFallback reports whether the Atom feed may be used when API calls fail.
func (y YouTubeConfig) UseAtomFallback() bool {
	return y.AtomFallback == nil || *y.AtomFallback
}

// KeemotionConfig configures the ingest-health vendor API.
type KeemotionConfig struct {
	APIBase        string   `json:"api_base"`
	ArenasBasePath string   `json:"arenas_base_path"`
	Limit          int      `json:"limit"`
	Offset         int      `json:"offset"`
	AuthScheme     string   `json:"auth_scheme"`
	Token          string   `json:"token"`
	CookieT        string   `json:"cookie_t"`
	Agents         []string `json:"agents"`
	Referer        string   `json:"referer"`
	Origin         string   `json:"origin"`
	AcceptLanguage string   `json:"accept_language"`
}

// ScheduleConfig configures the published game sheet.
type ScheduleConfig struct {
	CSVURL      string `json:"csv_url"`
	HorizonDays int    `json:"horizon_days"`
}

// CacheConfig configures memoization of YouTube reads.
type CacheConfig struct {
	TTL          time.Duration `json:"-"`
	QuotaBackoff time.Duration `json:"-"`
	RedisURL     string        `json:"redis_url"`
	TTLRaw       string        `json:"ttl"`
	BackoffRaw   string        `json:"quota_backoff"`
}

// LiveControlConfig configures confirmation polling after a mutation.
type LiveControlConfig struct {
	ConfirmAttempts int           `json:"confirm_attempts"`
	ConfirmDelay    time.Duration `json:"-"`
	ConfirmDelayRaw string        `json:"confirm_delay"`
}

// UpstreamConfig configures the shared outbound HTTP client.
type UpstreamConfig struct {
	MinInterval    time.Duration `json:"-"`
	Timeout        time.Duration `json:"-"`
	MinIntervalRaw string        `json:"min_interval"`
	TimeoutRaw     string        `json:"timeout"`
}

// ServerConfig configures the HTTP listener and static assets.
type ServerConfig struct {
	ListenAddr string `json:"listen_addr"`
	AssetsDir  string `json:"assets_dir"`
}

// LogConfig configures logging output.
type LogConfig struct {
	Level string `json:"level"`
	Dir   string `json:"dir"`
}

// TelemetryConfig configures error reporting.
type TelemetryConfig struct {
	SentryDSN string `json:"sentry_dsn"`
	Release   string `json:"release"`
}

// Config is the complete runtime configuration.
type Config struct {
	Server      ServerConfig      `json:"server"`
	YouTube     YouTubeConfig     `json:"youtube"`
	Keemotion   KeemotionConfig   `json:"keemotion"`
	Schedule    ScheduleConfig    `json:"schedule"`
	Cache       CacheConfig       `json:"cache"`
	LiveControl LiveControlConfig `json:"live_control"`
	Upstream    UpstreamConfig    `json:"upstream"`
	Log         LogConfig         `json:"log"`
	Telemetry   TelemetryConfig   `json:"telemetry"`
}

// Load reads the JSON config at path when it exists, then applies environment
// overrides and defaults. An empty path skips the file.
func Load(path string) (Config, error) {
	var cfg Config
	if strings.TrimSpace(path) != "" {
		data, err := os.ReadFile(path)
		switch {
		case errors.Is(err, os.ErrNotExist):
		case err != nil:
			return Config{}, fmt.Errorf("read config: %w", err)
		default:
			if err := json.Unmarshal(data, &cfg); err != nil {
				return Config{}, fmt.Errorf("decode config: %w", err)
			}
		}
	}
	if err := cfg.applyEnv(); err != nil {
		return Config{}, err
	}
	cfg.applyDefaults()
	return cfg, nil
}

// FromEnv builds a Config from the environment only.
func FromEnv() (Config, error) {
	return Load("")
}

func (c *Config) applyEnv() error {
	y := &c.YouTube
	setString(&y.Playground.ClientID, "YT_PLAYGROUND_CLIENT_ID")
	setString(&y.Playground.ClientSecret, "YT_PLAYGROUND_CLIENT_SECRET")
	setString(&y.Playground.RefreshToken, "YT_PLAYGROUND_REFRESH_TOKEN")
	// YT_DESKTOP_* is the older name of the default set.
	setString(&y.Default.ClientID, "YT_DESKTOP_CLIENT_ID")
	setString(&y.Default.ClientSecret, "YT_DESKTOP_CLIENT_SECRET")
	setString(&y.Default.RefreshToken, "YT_DESKTOP_REFRESH_TOKEN")
	setString(&y.Default.ClientID, "YT_CLIENT_ID")
	setString(&y.Default.ClientSecret, "YT_CLIENT_SECRET")
	setString(&y.Default.RefreshToken, "YT_REFRESH_TOKEN")
	setString(&y.TokenURL, "YT_TOKEN_URL")
	setString(&y.APIEndpoint, "YT_API_ENDPOINT")
	setString(&y.ChannelID, "YT_CHANNEL_ID")
	setString(&y.FeedBase, "YT_FEED_BASE")
	if v, ok := lookup("YT_INCLUDE_TESTING"); ok {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("YT_INCLUDE_TESTING: %w", err)
		}
		y.IncludeTesting = b
	}
	if v, ok := lookup("YT_ATOM_FALLBACK"); ok {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("YT_ATOM_FALLBACK: %w", err)
		}
		y.AtomFallback = &b
	}

	k := &c.Keemotion
	setString(&k.APIBase, "KEEMOTION_API_BASE")
	setString(&k.ArenasBasePath, "KEEMOTION_ARENAS_BASEPATH")
	setString(&k.AuthScheme, "KEEMOTION_AUTH_SCHEME")
	setString(&k.Token, "KEEMOTION_TOKEN")
	setString(&k.CookieT, "KEEMOTION_COOKIE_T")
	setString(&k.Referer, "KEEMOTION_REFERER")
	setString(&k.Origin, "KEEMOTION_ORIGIN")
	setString(&k.AcceptLanguage, "KEEMOTION_ACCEPT_LANGUAGE")
	if err := setInt(&k.Limit, "KEEMOTION_LIMIT"); err != nil {
		return err
	}
	if err := setInt(&k.Offset, "KEEMOTION_OFFSET"); err != nil {
		return err
	}
	if agents := agentsFromEnv(); len(agents) > 0 {
		k.Agents = agents
	}

	setString(&c.Schedule.CSVURL, "SCHEDULE_CSV_URL")
	if err := setInt(&c.Schedule.HorizonDays, "SCHEDULE_HORIZON_DAYS"); err != nil {
		return err
	}

	setString(&c.Cache.RedisURL, "REDIS_URL")
	setString(&c.Cache.TTLRaw, "CACHE_TTL")
	setString(&c.Cache.BackoffRaw, "QUOTA_BACKOFF")
	if err := setInt(&c.LiveControl.ConfirmAttempts, "LIVE_CONTROL_CONFIRM_ATTEMPTS"); err != nil {
		return err
	}
	setString(&c.LiveControl.ConfirmDelayRaw, "LIVE_CONTROL_CONFIRM_DELAY")
	setString(&c.Upstream.MinIntervalRaw, "UPSTREAM_MIN_INTERVAL")
	setString(&c.Upstream.TimeoutRaw, "UPSTREAM_TIMEOUT")

	setString(&c.Server.ListenAddr, "LISTEN_ADDR")
	setString(&c.Server.AssetsDir, "ASSETS_DIR")
	setString(&c.Log.Level, "LOG_LEVEL")
	setString(&c.Log.Dir, "LOG_DIR")
	setString(&c.Telemetry.SentryDSN, "SENTRY_DSN")
	setString(&c.Telemetry.Release, "RELEASE")

	durations := []struct {
		raw  string
		dst  *time.Duration
		name string
	}{
		{c.Cache.TTLRaw, &c.Cache.TTL, "cache ttl"},
		{c.Cache.BackoffRaw, &c.Cache.QuotaBackoff, "quota backoff"},
		{c.LiveControl.ConfirmDelayRaw, &c.LiveControl.ConfirmDelay, "confirm delay"},
		{c.Upstream.MinIntervalRaw, &c.Upstream.MinInterval, "upstream min interval"},
		{c.Upstream.TimeoutRaw, &c.Upstream.Timeout, "upstream timeout"},
	}
	for _, d := range durations {
		if strings.TrimSpace(d.raw) == "" {
			continue
		}
		parsed, err := time.ParseDuration(strings.TrimSpace(d.raw))
		if err != nil {
			return fmt.Errorf("%s: %w", d.name, err)
		}
		*d.dst = parsed
	}
	return nil
}

func (c *Config) applyDefaults() {
	if c.Server.ListenAddr == "" {
		c.Server.ListenAddr = defaultListenAddr
	}
	if c.YouTube.TokenURL == "" {
		c.YouTube.TokenURL = defaultTokenURL
	}
	if c.YouTube.FeedBase == "" {
		c.YouTube.FeedBase = defaultFeedBase
	}
	c.YouTube.FeedBase = strings.TrimRight(c.YouTube.FeedBase, "/")

	k := &c.Keemotion
	if k.APIBase == "" {
		k.APIBase = defaultKeemotionBase
	}
	k.APIBase = strings.TrimRight(k.APIBase, "/")
	if k.ArenasBasePath == "" {
		k.ArenasBasePath = defaultArenasBasePath
	}
	if !strings.HasPrefix(k.ArenasBasePath, "/") {
		k.ArenasBasePath = "/" + k.ArenasBasePath
	}
	if k.Limit <= 0 {
		k.Limit = 25
	}
	if k.Offset < 0 {
		k.Offset = 0
	}
	if k.AuthScheme == "" {
		k.AuthScheme = "OAuth2"
	}
	if len(k.Agents) == 0 {
		k.Agents = []string{defaultKeemotionAgent}
	}
	if k.Referer == "" {
		k.Referer = defaultReferer
	}
	if k.Origin == "" {
		k.Origin = defaultOrigin
	}
	if k.AcceptLanguage == "" {
		k.AcceptLanguage = defaultAcceptLanguage
	}

	if c.Schedule.CSVURL == "" {
		c.Schedule.CSVURL = defaultScheduleCSV
	}
	c.Schedule.HorizonDays = ClampHorizon(c.Schedule.HorizonDays)

	if c.Cache.TTL <= 0 {
		c.Cache.TTL = defaultCacheTTL
	}
	if c.Cache.QuotaBackoff <= 0 {
		c.Cache.QuotaBackoff = defaultQuotaBackoff
	}
	if c.LiveControl.ConfirmAttempts <= 0 {
		c.LiveControl.ConfirmAttempts = defaultConfirmTries
	}
	if c.LiveControl.ConfirmDelay <= 0 {
		c.LiveControl.ConfirmDelay = defaultConfirmDelay
	}
	if c.Upstream.Timeout <= 0 {
		c.Upstream.Timeout = defaultUpstreamTO
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
}

// ClampHorizon bounds a schedule horizon to 1..30 days; non-positive means the default.
func ClampHorizon(days int) int {
	switch {
	case days <= 0:
		return defaultHorizonDays
	case days > maxHorizonDays:
		return maxHorizonDays
	default:
		return days
	}
}

// agentsFromEnv collects KEEMOTION_AGENT, KEEMOTION_AGENT_2..9 and the
// comma separated KEEMOTION_AGENTS, in that order, without duplicates.
func agentsFromEnv() []string {
	var out []string
	seen := map[string]bool{}
	add := func(v string) {
		v = strings.TrimSpace(v)
		if v == "" || seen[v] {
			return
		}
		seen[v] = true
		out = append(out, v)
	}
	add(os.Getenv("KEEMOTION_AGENT"))
	for i := 2; i <= 9; i++ {
		add(os.Getenv(fmt.Sprintf("KEEMOTION_AGENT_%d", i)))
	}
	for _, v := range strings.Split(os.Getenv("KEEMOTION_AGENTS"), ",") {
		add(v)
	}
	return out
}

func lookup(key string) (string, bool) {
	v, ok := os.LookupEnv(key)
	v = strings.TrimSpace(v)
	return v, ok && v != ""
}

func setString(dst *string, key string) {
	if v, ok := lookup(key); ok {
		*dst = v
	}
}

func setInt(dst *int, key string) error {
	v, ok := lookup(key)
	if !ok {
		return nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fmt.Errorf("%s: %w", key, err)
	}
	*dst = n
	return nil
}
