package userstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sethvargo/go-retry"

	goMFA "github.com/MrEthical07/goMFA"
)

// ErrUserCorrupt is returned when a stored user document cannot be decoded.
var ErrUserCorrupt = errors.New("stored user corrupt")

// RedisConfig tunes the Redis repository.
type RedisConfig struct {
	Prefix     string
	MaxRetries uint64        // optimistic transaction retries
	RetryBase  time.Duration // base backoff between retries
}

type stringGetter interface {
	Get(ctx context.Context, key string) *redis.StringCmd
}

// Redis is a UserRepository backed by Redis.
//
// Keys:
//
//	<prefix>:u:<id>          JSON user document
//	<prefix>:i:<identifier>  user id
type Redis struct {
	redis redis.UniversalClient
	cfg   RedisConfig
}

func NewRedis(redisClient redis.UniversalClient, cfg RedisConfig) *Redis {
	if cfg.Prefix == "" {
		cfg.Prefix = "otu"
	}
	if cfg.MaxRetries == 0 {
		cfg.MaxRetries = 8
	}
	if cfg.RetryBase <= 0 {
		cfg.RetryBase = 2 * time.Millisecond
	}
	return &Redis{redis: redisClient, cfg: cfg}
}

func (r *Redis) userKey(id string) string {
	return r.cfg.Prefix + ":u:" + id
}

func (r *Redis) indexKey(identifier string) string {
	return r.cfg.Prefix + ":i:" + normalizeIdentifier(identifier)
}

func (r *Redis) FindByID(ctx context.Context, id string) (*goMFA.User, error) {
	return r.load(ctx, r.redis, id)
}

func (r *Redis) FindByIdentifier(ctx context.Context, identifier string) (*goMFA.User, error) {
	id, err := r.redis.Get(ctx, r.indexKey(identifier)).Result()
	if errors.Is(err, redis.Nil) {
		return nil, goMFA.ErrUserNotFound
	}
	if err != nil {
		return nil, err
	}
	return r.load(ctx, r.redis, id)
}

// Save writes the user document and keeps the identifier index in step.
func (r *Redis) Save(ctx context.Context, user *goMFA.User) error {
	if user == nil || user.ID == "" {
		return errors.New("user id required")
	}
	data, err := json.Marshal(user)
	if err != nil {
		return err
	}
	userKey := r.userKey(user.ID)
	newIndex := r.indexKey(user.Identifier)

	return r.transact(ctx, func(tx *redis.Tx) error {
		owner, err := tx.Get(ctx, newIndex).Result()
		if err != nil && !errors.Is(err, redis.Nil) {
			return err
		}
		if err == nil && owner != user.ID {
			return ErrIdentifierTaken
		}

		prev, err := r.load(ctx, tx, user.ID)
		if err != nil && !errors.Is(err, goMFA.ErrUserNotFound) {
			return err
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			if prev != nil && r.indexKey(prev.Identifier) != newIndex {
				pipe.Del(ctx, r.indexKey(prev.Identifier))
			}
			pipe.Set(ctx, userKey, data, 0)
			pipe.Set(ctx, newIndex, user.ID, 0)
			return nil
		})
		return err
	}, userKey, newIndex)
}

func (r *Redis) Lock(ctx context.Context, id string, until time.Time) error {
	return r.update(ctx, id, func(u *goMFA.User) {
		u.Locked = true
		u.LockExpiresAt = until
	})
}

func (r *Redis) Unlock(ctx context.Context, id string) error {
	return r.update(ctx, id, func(u *goMFA.User) {
		u.Locked = false
		u.LockExpiresAt = time.Time{}
	})
}

func (r *Redis) update(ctx context.Context, id string, fn func(*goMFA.User)) error {
	key := r.userKey(id)
	return r.transact(ctx, func(tx *redis.Tx) error {
		u, err := r.load(ctx, tx, id)
		if err != nil {
			return err
		}
		fn(u)
		data, err := json.Marshal(u)
		if err != nil {
			return err
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, data, 0)
			return nil
		})
		return err
	}, key)
}

// transact runs fn under WATCH on keys, retrying when a watched key changed.
func (r *Redis) transact(ctx context.Context, fn func(*redis.Tx) error, keys ...string) error {
	b := retry.WithMaxRetries(r.cfg.MaxRetries, retry.NewExponential(r.cfg.RetryBase))
	return retry.Do(ctx, b, func(ctx context.Context) error {
		err := r.redis.Watch(ctx, fn, keys...)
		if errors.Is(err, redis.TxFailedErr) {
			return retry.RetryableError(err)
		}
		return err
	})
}

func (r *Redis) load(ctx context.Context, cmd stringGetter, id string) (*goMFA.User, error) {
	data, err := cmd.Get(ctx, r.userKey(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, goMFA.ErrUserNotFound
	}
	if err != nil {
		return nil, err
	}
	var u goMFA.User
	if err := json.Unmarshal(data, &u); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUserCorrupt, err)
	}
	return &u, nil
}
