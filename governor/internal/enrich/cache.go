package enrich

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/Sm36384/Phoenix/governor/internal/store"
)

// StoreCache keeps enrichment results in the governor's SQLite store.
type StoreCache struct {
	st *store.Store
}

func NewStoreCache(st *store.Store) *StoreCache { return &StoreCache{st: st} }

func (c *StoreCache) Get(ctx context.Context, key string) (string, bool, error) {
	return c.st.CacheGet(ctx, key)
}

func (c *StoreCache) Put(ctx context.Context, key, value, provider string) error {
	return c.st.CachePut(ctx, key, value, provider)
}

// RedisCache shares enrichment results between governor processes.
type RedisCache struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

// RedisConfig configures a RedisCache.
type RedisConfig struct {
	Addr     string        `yaml:"addr"`
	Password string        `yaml:"-"`
	DB       int           `yaml:"db"`
	Prefix   string        `yaml:"prefix"`
	TTL      time.Duration `yaml:"ttl"`
}

// NewRedisCache connects to Redis and pings it.
func NewRedisCache(ctx context.Context, cfg RedisConfig) (*RedisCache, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("enrich: redis ping %s: %w", cfg.Addr, err)
	}
	prefix := cfg.Prefix
	if prefix == "" {
		prefix = "phoenix:enrich:"
	}
	return &RedisCache{client: client, prefix: prefix, ttl: cfg.TTL}, nil
}

type redisEntry struct {
	Value    string `json:"value"`
	Provider string `json:"provider"`
}

func (c *RedisCache) Get(ctx context.Context, key string) (string, bool, error) {
	raw, err := c.client.Get(ctx, c.prefix+key).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("enrich: redis get: %w", err)
	}
	var e redisEntry
	if err := json.Unmarshal([]byte(raw), &e); err != nil {
		return "", false, fmt.Errorf("enrich: redis decode: %w", err)
	}
	return e.Value, true, nil
}

// Put stores value with the configured TTL (0 keeps it forever).
func (c *RedisCache) Put(ctx context.Context, key, value, provider string) error {
	raw, err := json.Marshal(redisEntry{Value: value, Provider: provider})
	if err != nil {
		return err
	}
	if err := c.client.Set(ctx, c.prefix+key, raw, c.ttl).Err(); err != nil {
		return fmt.Errorf("enrich: redis set: %w", err)
	}
	return nil
}

func (c *RedisCache) Close() error { return c.client.Close() }
