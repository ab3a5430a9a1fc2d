package lock

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"

	"github.com/yungbote/marketplace-backend/internal/platform/logger"
)

var releaseScript = goredis.NewScript(`
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("del", KEYS[1])
end
return 0
`)

type RedisConfig struct {
	Addr         string
	Prefix       string
	TTL          time.Duration
	PollInterval time.Duration
}

// Redis is a SETNX-based Locker shared by every replica. The TTL bounds how long a crashed
// holder can block others.
type Redis struct {
	log    *logger.Logger
	rdb    *goredis.Client
	prefix string
	ttl    time.Duration
	poll   time.Duration
}

func NewRedis(log *logger.Logger, cfg RedisConfig) (*Redis, error) {
	if log == nil {
		return nil, fmt.Errorf("logger required")
	}
	if cfg.Addr == "" {
		return nil, fmt.Errorf("missing REDIS_ADDR")
	}
	if cfg.TTL <= 0 {
		cfg.TTL = 60 * time.Second
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 50 * time.Millisecond
	}
	if cfg.Prefix == "" {
		cfg.Prefix = "mkt:lock:"
	}

	rdb := goredis.NewClient(&goredis.Options{
		Addr:        cfg.Addr,
		DialTimeout: 5 * time.Second,
	})
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}

	return &Redis{
		log:    log.With("service", "RedisLocker"),
		rdb:    rdb,
		prefix: cfg.Prefix,
		ttl:    cfg.TTL,
		poll:   cfg.PollInterval,
	}, nil
}

func (r *Redis) Acquire(ctx context.Context, key string) (func(), error) {
	full := r.prefix + key
	token := uuid.NewString()
	for {
		ok, err := r.rdb.SetNX(ctx, full, token, r.ttl).Result()
		if err != nil {
			if ctx.Err() != nil {
				return nil, errors.Join(ErrNotAcquired, ctx.Err())
			}
			return nil, fmt.Errorf("redis setnx %s: %w", key, err)
		}
		if ok {
			break
		}
		t := time.NewTimer(r.poll)
		select {
		case <-ctx.Done():
			t.Stop()
			return nil, errors.Join(ErrNotAcquired, ctx.Err())
		case <-t.C:
		}
	}

	return func() {
		// The caller ctx may already be cancelled here.
		relCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		if err := releaseScript.Run(relCtx, r.rdb, []string{full}, token).Err(); err != nil && !errors.Is(err, goredis.Nil) {
			r.log.Warn("lock release failed", "key", key, "error", err)
		}
	}, nil
}

func (r *Redis) Close() error {
	if r == nil || r.rdb == nil {
		return nil
	}
	return r.rdb.Close()
}
