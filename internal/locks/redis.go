package locks

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/sethvargo/go-retry"
)

var (
	// ErrLockBackend wraps Redis failures during acquire or release.
	ErrLockBackend = errors.New("lock backend unavailable")

	errLockHeld = errors.New("lock held")
)

var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
  return redis.call("DEL", KEYS[1])
end
return 0
`)

// RedisConfig tunes the Redis lease lock.
type RedisConfig struct {
	Prefix         string
	Lease          time.Duration
	AcquireTimeout time.Duration
	RetryBase      time.Duration
	RetryCap       time.Duration
}

// Redis is a lease lock using SET NX PX with a random owner token.
type Redis struct {
	redis redis.UniversalClient
	cfg   RedisConfig
}

func NewRedis(redisClient redis.UniversalClient, cfg RedisConfig) *Redis {
	if cfg.Prefix == "" {
		cfg.Prefix = "otl"
	}
	if cfg.Lease <= 0 {
		cfg.Lease = 5 * time.Second
	}
	if cfg.AcquireTimeout <= 0 {
		cfg.AcquireTimeout = 2 * time.Second
	}
	if cfg.RetryBase <= 0 {
		cfg.RetryBase = 5 * time.Millisecond
	}
	if cfg.RetryCap <= 0 {
		cfg.RetryCap = 100 * time.Millisecond
	}
	return &Redis{redis: redisClient, cfg: cfg}
}

func (r *Redis) key(key string) string {
	return r.cfg.Prefix + ":" + key
}

func (r *Redis) Lock(ctx context.Context, key string) (func(), error) {
	if ctx == nil {
		ctx = context.Background()
	}
	redisKey := r.key(key)
	token := uuid.NewString()

	b := retry.NewFibonacci(r.cfg.RetryBase)
	b = retry.WithCappedDuration(r.cfg.RetryCap, b)
	b = retry.WithMaxDuration(r.cfg.AcquireTimeout, b)

	err := retry.Do(ctx, b, func(ctx context.Context) error {
		ok, err := r.redis.SetNX(ctx, redisKey, token, r.cfg.Lease).Result()
		if err != nil {
			return fmt.Errorf("%w: %v", ErrLockBackend, err)
		}
		if !ok {
			return retry.RetryableError(errLockHeld)
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, ErrLockBackend) {
			return nil, err
		}
		return nil, ErrLockTimeout
	}

	return func() {
		// Release uses a fresh context so a cancelled request still frees the lease.
		releaseCtx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = releaseScript.Run(releaseCtx, r.redis, []string{redisKey}, token).Err()
	}, nil
}
