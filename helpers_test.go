package goMFA

import (
	"context"
	"regexp"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

const testPassword = "Str0ng!Passw0rd"

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type testRepo struct {
	mu      sync.Mutex
	users   map[string]*User
	findErr error
}

func newTestRepo() *testRepo {
	return &testRepo{users: map[string]*User{}}
}

func (r *testRepo) put(u *User) {
	r.mu.Lock()
	r.users[u.ID] = u.Clone()
	r.mu.Unlock()
}

func (r *testRepo) get(id string) *User {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.users[id].Clone()
}

func (r *testRepo) FindByID(_ context.Context, id string) (*User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.findErr != nil {
		return nil, r.findErr
	}
	u, ok := r.users[id]
	if !ok {
		return nil, ErrUserNotFound
	}
	return u.Clone(), nil
}

func (r *testRepo) FindByIdentifier(_ context.Context, identifier string) (*User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.findErr != nil {
		return nil, r.findErr
	}
	for _, u := range r.users {
		if strings.EqualFold(u.Identifier, identifier) {
			return u.Clone(), nil
		}
	}
	// nil user without error is also a valid not-found report.
	return nil, nil
}

func (r *testRepo) Save(_ context.Context, user *User) error {
	r.put(user)
	return nil
}

func (r *testRepo) Lock(_ context.Context, id string, until time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.users[id]
	if !ok {
		return ErrUserNotFound
	}
	u.Locked = true
	u.LockExpiresAt = until
	return nil
}

func (r *testRepo) Unlock(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.users[id]
	if !ok {
		return ErrUserNotFound
	}
	u.Locked = false
	u.LockExpiresAt = time.Time{}
	return nil
}

type sentMessage struct {
	address string
	msg     Message
}

type captureTransport struct {
	mu   sync.Mutex
	sent []sentMessage
	err  error
}

func (c *captureTransport) Send(_ context.Context, address string, msg Message) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err != nil {
		return c.err
	}
	c.sent = append(c.sent, sentMessage{address: address, msg: msg})
	return nil
}

func (c *captureTransport) failWith(err error) {
	c.mu.Lock()
	c.err = err
	c.mu.Unlock()
}

func (c *captureTransport) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.sent)
}

var codePattern = regexp.MustCompile(`\b\d{6,10}\b`)

func (c *captureTransport) lastCode(t *testing.T) string {
	t.Helper()
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.sent) == 0 {
		t.Fatal("no message sent")
	}
	code := codePattern.FindString(c.sent[len(c.sent)-1].msg.Body)
	if code == "" {
		t.Fatalf("no code in %q", c.sent[len(c.sent)-1].msg.Body)
	}
	return code
}

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.Password.Memory = 8 * 1024
	cfg.Password.Time = 1
	cfg.Password.Parallelism = 1
	cfg.Lockout.Threshold = 3
	cfg.Lockout.Duration = 15 * time.Minute
	cfg.Metrics.EnableLatencyHistograms = true
	return cfg
}

type testEnv struct {
	engine *Engine
	repo   *testRepo
	clock  *fakeClock
	email  *captureTransport
	mobile *captureTransport
	sink   *ChannelSink
}

type envOption func(*Builder)

func withRedis(t *testing.T) envOption {
	return func(b *Builder) {
		mr := miniredis.RunT(t)
		rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
		t.Cleanup(func() { _ = rdb.Close() })
		b.WithRedis(rdb)
	}
}

func newTestEnv(t *testing.T, cfg Config, opts ...envOption) *testEnv {
	t.Helper()
	env := &testEnv{
		repo:   newTestRepo(),
		clock:  newFakeClock(),
		email:  &captureTransport{},
		mobile: &captureTransport{},
		sink:   NewChannelSink(256),
	}

	b := New().
		WithConfig(cfg).
		WithUserRepository(env.repo).
		WithTransport(ChannelEmail, env.email).
		WithTransport(ChannelMobile, env.mobile).
		WithClock(env.clock).
		WithAuditSink(env.sink)
	for _, opt := range opts {
		opt(b)
	}

	engine, err := b.Build()
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	t.Cleanup(engine.Close)
	env.engine = engine
	return env
}

// addUser stores a user whose password is testPassword.
func (env *testEnv) addUser(t *testing.T, id string, mutate func(*User)) *User {
	t.Helper()
	hash, err := env.engine.argon.Hash(testPassword)
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	u := &User{
		ID:           id,
		Identifier:   id,
		Email:        id + "@example.com",
		Phone:        "+15550001111",
		PasswordHash: hash,
	}
	if mutate != nil {
		mutate(u)
	}
	env.repo.put(u)
	return u
}

func creds(identifier, secret string) Credentials {
	return Credentials{Identifier: identifier, Secret: secret}
}
