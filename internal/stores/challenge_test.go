package stores

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newRedisStore(t *testing.T) (*RedisChallengeStore, *miniredis.Miniredis) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis: %v", err)
	}
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() {
		_ = rdb.Close()
		mr.Close()
	})
	return NewRedisChallengeStore(rdb, "test-otc"), mr
}

func sampleChallenge(userID string) *Challenge {
	issued := time.Unix(1_700_000_000, 0)
	return &Challenge{
		ID:        "c-" + userID,
		UserID:    userID,
		Digest:    "9f86d081884c7d659a2feaa0c55ad015",
		Channel:   1,
		State:     StatePending,
		IssuedAt:  issued,
		ExpiresAt: issued.Add(5 * time.Minute),
	}
}

func backends(t *testing.T) map[string]ChallengeStore {
	t.Helper()
	rs, _ := newRedisStore(t)
	return map[string]ChallengeStore{
		"redis":  rs,
		"memory": NewMemoryChallengeStore(nil),
	}
}

func TestChallengeEncodingRoundTrip(t *testing.T) {
	in := sampleChallenge("u1")
	data, err := encodeChallenge(in)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	out, err := decodeChallenge(data)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if out.ID != in.ID || out.UserID != in.UserID || out.Digest != in.Digest {
		t.Fatalf("identity fields mismatch: %+v", out)
	}
	if !out.ExpiresAt.Equal(in.ExpiresAt) || !out.IssuedAt.Equal(in.IssuedAt) {
		t.Fatalf("timestamps mismatch: %+v", out)
	}
	if out.State != StatePending || out.Channel != 1 {
		t.Fatalf("state/channel mismatch: %+v", out)
	}
}

func TestDecodeChallengeRejectsCorruptInput(t *testing.T) {
	data, err := encodeChallenge(sampleChallenge("u1"))
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	cases := map[string][]byte{
		"empty":     {},
		"version":   append([]byte{9}, data[1:]...),
		"truncated": data[:len(data)-3],
		"trailing":  append(append([]byte{}, data...), 0x01),
	}
	for name, raw := range cases {
		if _, err := decodeChallenge(raw); !errors.Is(err, ErrChallengeCorrupt) {
			t.Fatalf("%s: expected ErrChallengeCorrupt, got %v", name, err)
		}
	}
}

func TestChallengeStorePutOverwrites(t *testing.T) {
	ctx := context.Background()
	for name, store := range backends(t) {
		first := sampleChallenge("u1")
		if err := store.Put(ctx, first, time.Minute); err != nil {
			t.Fatalf("%s: put: %v", name, err)
		}
		second := sampleChallenge("u1")
		second.ID = "c-second"
		if err := store.Put(ctx, second, time.Minute); err != nil {
			t.Fatalf("%s: put second: %v", name, err)
		}
		got, err := store.Get(ctx, "u1")
		if err != nil {
			t.Fatalf("%s: get: %v", name, err)
		}
		if got.ID != "c-second" {
			t.Fatalf("%s: expected overwrite, got %q", name, got.ID)
		}
	}
}

func TestChallengeStoreSwapConflictAndMissing(t *testing.T) {
	ctx := context.Background()
	for name, store := range backends(t) {
		if err := store.Swap(ctx, sampleChallenge("ghost"), sampleChallenge("ghost"), time.Minute); !errors.Is(err, ErrChallengeNotFound) {
			t.Fatalf("%s: expected ErrChallengeNotFound, got %v", name, err)
		}

		current := sampleChallenge("u2")
		if err := store.Put(ctx, current, time.Minute); err != nil {
			t.Fatalf("%s: put: %v", name, err)
		}
		stale := current.Clone()
		stale.State = StateExpired
		next := current.Clone()
		next.State = StateConsumed
		if err := store.Swap(ctx, stale, next, time.Minute); !errors.Is(err, ErrChallengeConflict) {
			t.Fatalf("%s: expected ErrChallengeConflict, got %v", name, err)
		}
		if err := store.Swap(ctx, current, next, time.Minute); err != nil {
			t.Fatalf("%s: swap: %v", name, err)
		}
		got, err := store.Get(ctx, "u2")
		if err != nil {
			t.Fatalf("%s: get: %v", name, err)
		}
		if got.State != StateConsumed {
			t.Fatalf("%s: expected consumed state, got %d", name, got.State)
		}
	}
}

func TestChallengeStoreSwapSingleWinner(t *testing.T) {
	ctx := context.Background()
	for name, store := range backends(t) {
		current := sampleChallenge("race")
		if err := store.Put(ctx, current, time.Minute); err != nil {
			t.Fatalf("%s: put: %v", name, err)
		}

		const n = 16
		var wg sync.WaitGroup
		results := make(chan error, n)
		for i := 0; i < n; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				next := current.Clone()
				next.State = StateConsumed
				results <- store.Swap(ctx, current, next, time.Minute)
			}()
		}
		wg.Wait()
		close(results)

		wins := 0
		for err := range results {
			if err == nil {
				wins++
				continue
			}
			if !errors.Is(err, ErrChallengeConflict) {
				t.Fatalf("%s: unexpected error %v", name, err)
			}
		}
		if wins != 1 {
			t.Fatalf("%s: expected exactly one winner, got %d", name, wins)
		}
	}
}

func TestRedisChallengeStoreHonorsRetention(t *testing.T) {
	ctx := context.Background()
	store, mr := newRedisStore(t)
	if err := store.Put(ctx, sampleChallenge("u3"), 2*time.Second); err != nil {
		t.Fatalf("put: %v", err)
	}
	mr.FastForward(3 * time.Second)
	if _, err := store.Get(ctx, "u3"); !errors.Is(err, ErrChallengeNotFound) {
		t.Fatalf("expected ErrChallengeNotFound after retention, got %v", err)
	}
}

func TestMemoryChallengeStoreHonorsRetention(t *testing.T) {
	ctx := context.Background()
	now := time.Unix(1_700_000_000, 0)
	store := NewMemoryChallengeStore(func() time.Time { return now })
	if err := store.Put(ctx, sampleChallenge("u4"), time.Minute); err != nil {
		t.Fatalf("put: %v", err)
	}
	now = now.Add(2 * time.Minute)
	if _, err := store.Get(ctx, "u4"); !errors.Is(err, ErrChallengeNotFound) {
		t.Fatalf("expected ErrChallengeNotFound after retention, got %v", err)
	}
}

func TestRedisChallengeStoreBackendError(t *testing.T) {
	store, mr := newRedisStore(t)
	mr.SetError("ERR injected")
	if _, err := store.Get(context.Background(), "u5"); !errors.Is(err, ErrChallengeBackend) {
		t.Fatalf("expected ErrChallengeBackend, got %v", err)
	}
}
