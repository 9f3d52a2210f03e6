package stores

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// swapChallengeScript replaces the record only when the stored bytes equal
// ARGV[1]. Returns 1 on success, 0 on mismatch, -1 when the key is absent.
var swapChallengeScript = redis.NewScript(`
local current = redis.call("GET", KEYS[1])
if not current then
  return -1
end
if current ~= ARGV[1] then
  return 0
end
redis.call("SET", KEYS[1], ARGV[2], "PX", ARGV[3])
return 1
`)

// RedisChallengeStore keeps one encoded challenge per user key.
type RedisChallengeStore struct {
	redis  redis.UniversalClient
	prefix string
}

func NewRedisChallengeStore(redisClient redis.UniversalClient, prefix string) *RedisChallengeStore {
	if prefix == "" {
		prefix = "otc"
	}
	return &RedisChallengeStore{
		redis:  redisClient,
		prefix: prefix,
	}
}

func (s *RedisChallengeStore) key(userID string) string {
	return s.prefix + ":" + userID
}

func (s *RedisChallengeStore) Put(ctx context.Context, record *Challenge, ttl time.Duration) error {
	encoded, err := encodeChallenge(record)
	if err != nil {
		return err
	}
	if err := s.redis.Set(ctx, s.key(record.UserID), encoded, normalizeTTL(ttl)).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrChallengeBackend, err)
	}
	return nil
}

func (s *RedisChallengeStore) Get(ctx context.Context, userID string) (*Challenge, error) {
	data, err := s.redis.Get(ctx, s.key(userID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrChallengeNotFound
		}
		return nil, fmt.Errorf("%w: %v", ErrChallengeBackend, err)
	}
	return decodeChallenge(data)
}

func (s *RedisChallengeStore) Swap(ctx context.Context, old, next *Challenge, ttl time.Duration) error {
	if old == nil || next == nil || old.UserID != next.UserID {
		return ErrChallengeConflict
	}
	oldEncoded, err := encodeChallenge(old)
	if err != nil {
		return err
	}
	nextEncoded, err := encodeChallenge(next)
	if err != nil {
		return err
	}

	res, err := swapChallengeScript.Run(
		ctx,
		s.redis,
		[]string{s.key(old.UserID)},
		oldEncoded,
		nextEncoded,
		normalizeTTL(ttl).Milliseconds(),
	).Int64()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrChallengeBackend, err)
	}

	switch res {
	case 1:
		return nil
	case -1:
		return ErrChallengeNotFound
	default:
		return ErrChallengeConflict
	}
}

func (s *RedisChallengeStore) Delete(ctx context.Context, userID string) error {
	if err := s.redis.Del(ctx, s.key(userID)).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrChallengeBackend, err)
	}
	return nil
}

func normalizeTTL(ttl time.Duration) time.Duration {
	if ttl < time.Millisecond {
		return time.Millisecond
	}
	return ttl
}

func sameRecord(a, b *Challenge) bool {
	ea, err := encodeChallenge(a)
	if err != nil {
		return false
	}
	eb, err := encodeChallenge(b)
	if err != nil {
		return false
	}
	return bytes.Equal(ea, eb)
}
