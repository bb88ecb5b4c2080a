package store

import (
	"context"
	"crypto/tls"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
)

// RedisConfig holds connection parameters for the Redis client.
type RedisConfig struct {
	Addr       string `yaml:"addr"`
	Password   string `yaml:"password"`
	DB         int    `yaml:"db"`
	PoolSize   int    `yaml:"poolSize"`
	MaxRetries int    `yaml:"maxRetries"`
	TLSEnabled bool   `yaml:"tls"`
	// KeyPrefix 区分同一 Redis 上的多个实例。
	KeyPrefix string `yaml:"keyPrefix"`
}

// NewRedisClient creates a client and pings it to verify connectivity.
func NewRedisClient(ctx context.Context, cfg RedisConfig) (*redis.Client, error) {
	opts := &redis.Options{
		Addr:       cfg.Addr,
		Password:   cfg.Password,
		DB:         cfg.DB,
		PoolSize:   cfg.PoolSize,
		MaxRetries: cfg.MaxRetries,
	}
	if cfg.TLSEnabled {
		opts.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12}
	}
	rdb := redis.NewClient(opts)
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis: ping: %w", err)
	}
	return rdb, nil
}

// RedisPriceStore 把初始价保存在 Redis hash 中，字段 price 与 ts（UnixNano）。
type RedisPriceStore struct {
	rdb redis.Cmdable
	key string
}

func NewRedisPriceStore(rdb redis.Cmdable, keyPrefix string) *RedisPriceStore {
	return &RedisPriceStore{rdb: rdb, key: initialPriceKey(keyPrefix)}
}

func initialPriceKey(prefix string) string {
	if prefix == "" {
		prefix = "ladder"
	}
	return prefix + ":initial_price"
}

// Get 返回保存的初始价；不存在时第二个返回值为 false。
func (s *RedisPriceStore) Get(ctx context.Context) (decimal.Decimal, bool, error) {
	vals, err := s.rdb.HGetAll(ctx, s.key).Result()
	if err != nil {
		return decimal.Zero, false, fmt.Errorf("redis: get initial price: %w", err)
	}
	raw, ok := vals["price"]
	if !ok || raw == "" {
		return decimal.Zero, false, nil
	}
	price, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Zero, false, fmt.Errorf("redis: parse initial price %q: %w", raw, err)
	}
	return price, true, nil
}

func (s *RedisPriceStore) Set(ctx context.Context, price decimal.Decimal) error {
	fields := map[string]interface{}{
		"price": price.String(),
		"ts":    strconv.FormatInt(time.Now().UnixNano(), 10),
	}
	if err := s.rdb.HSet(ctx, s.key, fields).Err(); err != nil {
		return fmt.Errorf("redis: set initial price: %w", err)
	}
	return nil
}
