package storage

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/sevigo/learnlog/internal/config"
	"github.com/sevigo/learnlog/internal/core"
)

// INCR and PEXPIRE run inside one script so no caller can observe a counter
// that was created without its expiry.
var (
	incrWithExpiryScript = redis.NewScript(`
local v = redis.call('INCR', KEYS[1])
if v == 1 then
	redis.call('PEXPIRE', KEYS[1], ARGV[1])
end
return v
`)

	incrAndExpireScript = redis.NewScript(`
local v = redis.call('INCR', KEYS[1])
redis.call('PEXPIRE', KEYS[1], ARGV[1])
return v
`)
)

type redisCounterStore struct {
	rdb redis.UniversalClient
}

// NewRedisCounterStore creates a core.CounterStore on top of Redis.
func NewRedisCounterStore(rdb redis.UniversalClient) core.CounterStore {
	return &redisCounterStore{rdb: rdb}
}

// NewRedisClient connects to Redis and verifies the connection.
func NewRedisClient(cfg *config.RedisConfig, logger *slog.Logger) (*redis.Client, func(), error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, func() {}, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return rdb, func() {
		if err := rdb.Close(); err != nil {
			logger.Error("failed to close redis connection", "error", err)
		}
	}, nil
}

func (s *redisCounterStore) IncrWithExpiry(ctx context.Context, key string, ttl time.Duration) (int64, error) {
	return incrWithExpiryScript.Run(ctx, s.rdb, []string{key}, ttlMillis(ttl)).Int64()
}

func (s *redisCounterStore) IncrAndExpire(ctx context.Context, key string, ttl time.Duration) (int64, error) {
	return incrAndExpireScript.Run(ctx, s.rdb, []string{key}, ttlMillis(ttl)).Int64()
}

func (s *redisCounterStore) GetInt(ctx context.Context, key string) (int64, error) {
	v, err := s.rdb.Get(ctx, key).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	return v, err
}

func (s *redisCounterStore) Get(ctx context.Context, key string) (string, bool, error) {
	v, err := s.rdb.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return v, true, nil
}

func (s *redisCounterStore) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	return s.rdb.Set(ctx, key, value, ttl).Err()
}

// ttlMillis never lets a counter live forever because of a rounding to zero.
func ttlMillis(ttl time.Duration) string {
	ms := ttl.Milliseconds()
	if ms < 1 {
		ms = 1
	}
	return strconv.FormatInt(ms, 10)
}
