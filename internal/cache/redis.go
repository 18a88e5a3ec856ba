package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisStore shares entries between instances. Entries are kept for
// retention so stale values can still be served after the TTL.
type RedisStore struct {
	Client    *redis.Client
	Prefix    string
	Retention time.Duration
}

// NewRedisClient parses url, applies password when set, and pings the server.
func NewRedisClient(ctx context.Context, url, password string) (*redis.Client, error) {
	opt, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse REDIS_URL: %w", err)
	}
	if password != "" {
		opt.Password = password
	}
	rdb := redis.NewClient(opt)
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return rdb, nil
}

func (s *RedisStore) entryKey(key string) string {
	return s.Prefix + "cache:{" + key + "}"
}

func (s *RedisStore) backoffKey(key string) string {
	return s.Prefix + "backoff:{" + key + "}"
}

func (s *RedisStore) Get(ctx context.Context, key string) (Entry, bool, error) {
	raw, err := s.Client.Get(ctx, s.entryKey(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return Entry{}, false, nil
	}
	if err != nil {
		return Entry{}, false, fmt.Errorf("redis GET %s: %w", key, err)
	}
	var e Entry
	if err := json.Unmarshal(raw, &e); err != nil {
		return Entry{}, false, fmt.Errorf("decode %s: %w", key, err)
	}
	return e, true, nil
}

func (s *RedisStore) Set(ctx context.Context, key string, e Entry) error {
	b, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}
	retention := s.Retention
	if retention <= 0 {
		retention = 24 * time.Hour
	}
	if err := s.Client.Set(ctx, s.entryKey(key), b, retention).Err(); err != nil {
		return fmt.Errorf("redis SET %s: %w", key, err)
	}
	return nil
}

func (s *RedisStore) Delete(ctx context.Context, keys ...string) error {
	full := make([]string, 0, len(keys))
	for _, k := range keys {
		full = append(full, s.entryKey(k))
	}
	if err := s.Client.Del(ctx, full...).Err(); err != nil {
		return fmt.Errorf("redis DEL: %w", err)
	}
	return nil
}

// BackOff stores the deadline with a matching expiry so the key disappears
// when the window closes.
func (s *RedisStore) BackOff(ctx context.Context, key string, until time.Time) error {
	ttl := time.Until(until)
	if ttl <= 0 {
		return nil
	}
	if err := s.Client.Set(ctx, s.backoffKey(key), until.UTC().Format(time.RFC3339Nano), ttl).Err(); err != nil {
		return fmt.Errorf("redis SET %s: %w", key, err)
	}
	return nil
}

func (s *RedisStore) IsBackedOff(ctx context.Context, key string, now time.Time) (time.Time, bool, error) {
	raw, err := s.Client.Get(ctx, s.backoffKey(key)).Result()
	if errors.Is(err, redis.Nil) {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, fmt.Errorf("redis GET %s: %w", key, err)
	}
	until, err := time.Parse(time.RFC3339Nano, raw)
	if err != nil {
		return time.Time{}, false, fmt.Errorf("parse backoff %s: %w", key, err)
	}
	if !now.Before(until) {
		return time.Time{}, false, nil
	}
	return until, true, nil
}
