// Package ratelimit provides the stores backing echo's rate limiter middleware.
package ratelimit

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/labstack/echo/v4/middleware"
	"github.com/pkg/errors"
	"golang.org/x/time/rate"

	"github.com/trezcool/shule/core"
)

const defaultWindow = time.Minute

// NewRedisClient connects to the configured redis server. It returns a nil client when no address is set.
func NewRedisClient(conf *core.Config) (*redis.Client, error) {
	if conf.Redis.Addr == "" {
		return nil, nil
	}
	client := redis.NewClient(&redis.Options{
		Addr:     conf.Redis.Addr,
		Password: conf.Redis.Password,
		DB:       conf.Redis.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, errors.Wrap(err, "pinging redis")
	}
	return client, nil
}

// RedisStore is a fixed window rate limiter shared by all the API instances.
type RedisStore struct {
	client *redis.Client
	prefix string
	limit  int64
	window time.Duration
	now    func() time.Time
}

var _ middleware.RateLimiterStore = (*RedisStore)(nil)

// NewRedisStore allows perSecond requests per second and identifier, counted over one minute windows.
func NewRedisStore(client *redis.Client, prefix string, perSecond float64) *RedisStore {
	return &RedisStore{
		client: client,
		prefix: prefix,
		limit:  windowLimit(perSecond, defaultWindow),
		window: defaultWindow,
		now:    time.Now,
	}
}

// windowLimit is the number of requests allowed per window, at least 1.
func windowLimit(perSecond float64, window time.Duration) int64 {
	limit := int64(math.Ceil(perSecond * window.Seconds()))
	if limit < 1 {
		return 1
	}
	return limit
}

func (s *RedisStore) key(identifier string) string {
	return fmt.Sprintf("ratelimit:%s:%s:%d", s.prefix, identifier, s.now().Unix()/int64(s.window.Seconds()))
}

func (s *RedisStore) Allow(identifier string) (bool, error) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	key := s.key(identifier)
	pipe := s.client.TxPipeline()
	incr := pipe.Incr(ctx, key)
	pipe.Expire(ctx, key, s.window)
	if _, err := pipe.Exec(ctx); err != nil {
		return false, errors.Wrap(err, "counting requests")
	}
	return incr.Val() <= s.limit, nil
}

// NewStore returns a RedisStore when client is set, and a process local store otherwise.
func NewStore(client *redis.Client, prefix string, perSecond float64) middleware.RateLimiterStore {
	if client == nil {
		return middleware.NewRateLimiterMemoryStoreWithConfig(middleware.RateLimiterMemoryStoreConfig{
			Rate:      rate.Limit(perSecond),
			Burst:     int(windowLimit(perSecond, time.Second)),
			ExpiresIn: 3 * time.Minute,
		})
	}
	return NewRedisStore(client, prefix, perSecond)
}
