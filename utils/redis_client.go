package utils

import (
	"context"
	"net"
	"strconv"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/bnnchamploo/bandle-garden/config"
)

const redisOpTimeout = 2 * time.Second

var (
	redisOnce   sync.Once
	redisClient *redis.Client
)

// GetRedis returns the shared Redis client, dialing on first use. A
// dead Redis is tolerated: callers treat every failure as a cache miss,
// so reads fall through to the database.
func GetRedis() *redis.Client {
	redisOnce.Do(func() {
		cfg := config.Get()
		redisClient = redis.NewClient(&redis.Options{
			Addr:         net.JoinHostPort(cfg.RedisHost, strconv.Itoa(cfg.RedisPort)),
			Password:     cfg.RedisPassword,
			DB:           cfg.RedisDB,
			DialTimeout:  3 * time.Second,
			ReadTimeout:  redisOpTimeout,
			WriteTimeout: redisOpTimeout,
		})
		ctx, cancel := redisCtx()
		defer cancel()
		if err := redisClient.Ping(ctx).Err(); err != nil && Sugar != nil {
			Sugar.Warnf("redis unreachable, serving without cache: %v", err)
		}
	})
	return redisClient
}

func redisCtx() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), redisOpTimeout)
}
