// Command gomfa-loadtest drives concurrent logins and duplicate OTP
// submissions against a Redis-backed engine and reports latency plus the
// number of codes accepted more than once.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"regexp"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/samber/lo"

	goMFA "github.com/MrEthical07/goMFA"
	"github.com/MrEthical07/goMFA/configfile"
	"github.com/MrEthical07/goMFA/transport"
	"github.com/MrEthical07/goMFA/userstore"
)

const loadPassword = "L0ad!Test#Passw0rd"

var codePattern = regexp.MustCompile(`\b\d{6,10}\b`)

func main() {
	var (
		users       = flag.Int("users", 2000, "number of users to seed")
		concurrency = flag.Int("concurrency", 64, "number of concurrent login workers")
		dupes       = flag.Int("dupes", 8, "concurrent submissions of each valid code")
		redisAddr   = flag.String("redis-addr", "", "redis address; if empty, REDIS_ADDR env or miniredis is used")
		configPath  = flag.String("config", "", "optional config file")
		verbose     = flag.Bool("v", false, "debug logging and audit events")
	)
	flag.Parse()

	level := slog.LevelInfo
	if *verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	if *users <= 0 || *concurrency <= 0 || *dupes <= 0 {
		fmt.Fprintln(os.Stderr, "users, concurrency, and dupes must be > 0")
		os.Exit(2)
	}

	cfg, err := configfile.Load(*configPath, "GOMFA")
	if err != nil {
		logger.Error("config", "error", err)
		os.Exit(1)
	}
	cfg.MFA.Required = true
	cfg.Redis.Addr = ""

	client, cleanup, err := connect(*redisAddr, logger)
	if err != nil {
		logger.Error("redis", "error", err)
		os.Exit(1)
	}
	defer cleanup()

	repo := userstore.NewRedis(client, userstore.RedisConfig{})
	outbox := transport.NewOutbox()
	if *verbose {
		cfg.Audit.Enabled = true
		cfg.Audit.DropIfFull = true
	}
	engine, err := goMFA.New().
		WithConfig(cfg).
		WithRedis(client).
		WithUserRepository(repo).
		WithTransport(goMFA.ChannelEmail, outbox).
		WithTransport(goMFA.ChannelMobile, outbox).
		WithAuditSink(goMFA.NewSlogSink(logger)).
		WithLogger(logger).
		WithLatencyHistograms(true).
		Build()
	if err != nil {
		logger.Error("engine build", "error", err)
		os.Exit(1)
	}
	defer engine.Close()

	ctx := context.Background()
	if err := seed(ctx, engine, repo, *users, logger); err != nil {
		logger.Error("seed", "error", err)
		os.Exit(1)
	}

	pending, loginStats := runLoginPhase(ctx, engine, *users, *concurrency)
	completeStats, doubleAccepts := runCompletePhase(ctx, engine, outbox, pending, *dupes)

	fmt.Println("---- results ----")
	printStats("login", loginStats)
	printStats("complete", completeStats)
	fmt.Printf("codes accepted more than once: %d\n", doubleAccepts)

	snap := engine.MetricsSnapshot()
	fmt.Printf("otp issued=%d validated=%d replay-rejected=%d no-challenge=%d\n",
		snap.Counters[goMFA.MetricOTPIssued],
		snap.Counters[goMFA.MetricOTPValidated],
		snap.Counters[goMFA.MetricOTPReuseRejected],
		snap.Counters[goMFA.MetricOTPNoChallenge],
	)
	if doubleAccepts > 0 {
		os.Exit(1)
	}
}

func connect(addr string, logger *slog.Logger) (redis.UniversalClient, func(), error) {
	if addr == "" {
		addr = os.Getenv("REDIS_ADDR")
	}
	if addr != "" {
		client := redis.NewUniversalClient(&redis.UniversalOptions{Addrs: []string{addr}})
		logger.Info("using redis", "addr", addr)
		return client, func() { _ = client.Close() }, nil
	}

	mr, err := miniredis.Run()
	if err != nil {
		return nil, nil, fmt.Errorf("start miniredis: %w", err)
	}
	client := redis.NewUniversalClient(&redis.UniversalOptions{Addrs: []string{mr.Addr()}})
	logger.Info("using miniredis", "addr", mr.Addr())
	return client, func() {
		_ = client.Close()
		mr.Close()
	}, nil
}

func seed(ctx context.Context, engine *goMFA.Engine, repo *userstore.Redis, n int, logger *slog.Logger) error {
	hash, err := engine.HashPassword(ctx, loadPassword, "", "")
	if err != nil {
		return err
	}

	start := time.Now()
	for i := 0; i < n; i++ {
		id := userID(i)
		err := repo.Save(ctx, &goMFA.User{
			ID:               id,
			Identifier:       id,
			Email:            id + "@load.test",
			Phone:            phoneOf(i),
			PasswordHash:     hash,
			MFAEnabled:       true,
			PreferredChannel: lo.Ternary(i%2 == 0, goMFA.ChannelEmail, goMFA.ChannelMobile),
		})
		if err != nil {
			return fmt.Errorf("save %s: %w", id, err)
		}
	}
	logger.Info("seeded users", "count", n, "elapsed", time.Since(start).Round(time.Millisecond))
	return nil
}

type pendingLogin struct {
	user      string
	address   string
	reference string
}

func runLoginPhase(ctx context.Context, engine *goMFA.Engine, users, concurrency int) ([]pendingLogin, phaseStats) {
	var (
		wg        sync.WaitGroup
		cursor    int64
		failures  int64
		mu        sync.Mutex
		latencies = make([]time.Duration, 0, users)
		pending   = make([]pendingLogin, 0, users)
	)

	start := time.Now()
	for w := 0; w < concurrency; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				i := int(atomic.AddInt64(&cursor, 1)) - 1
				if i >= users {
					return
				}
				id := userID(i)
				t0 := time.Now()
				result, err := engine.Login(ctx, goMFA.Credentials{Identifier: id, Secret: loadPassword})
				d := time.Since(t0)

				mu.Lock()
				latencies = append(latencies, d)
				if err != nil || !result.MFARequired {
					failures++
				} else {
					address := id + "@load.test"
					if result.Channel == goMFA.ChannelMobile {
						address = phoneOf(i)
					}
					pending = append(pending, pendingLogin{user: id, address: address, reference: result.PendingMFA})
				}
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	return pending, computeStats(time.Since(start), latencies, failures)
}

// runCompletePhase submits every code dupes times at once. Exactly one
// submission per code may win.
func runCompletePhase(ctx context.Context, engine *goMFA.Engine, outbox *transport.Outbox, pending []pendingLogin, dupes int) (phaseStats, int) {
	var (
		mu            sync.Mutex
		latencies     = make([]time.Duration, 0, len(pending)*dupes)
		failures      int64
		doubleAccepts int
	)

	start := time.Now()
	for _, p := range pending {
		delivery, ok := outbox.Last(p.address)
		code := codePattern.FindString(delivery.Message.Body)
		if !ok || code == "" {
			atomic.AddInt64(&failures, 1)
			continue
		}

		var (
			wg      sync.WaitGroup
			winners int64
		)
		for d := 0; d < dupes; d++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				t0 := time.Now()
				_, err := engine.CompleteMFA(ctx, p.reference, code)
				elapsed := time.Since(t0)
				if err == nil {
					atomic.AddInt64(&winners, 1)
				} else if !errors.Is(err, goMFA.ErrOTPAlreadyUsed) && !errors.Is(err, goMFA.ErrNoActiveChallenge) {
					atomic.AddInt64(&failures, 1)
				}
				mu.Lock()
				latencies = append(latencies, elapsed)
				mu.Unlock()
			}()
		}
		wg.Wait()

		switch {
		case winners == 0:
			atomic.AddInt64(&failures, 1)
		case winners > 1:
			doubleAccepts++
		}
	}
	return computeStats(time.Since(start), latencies, failures), doubleAccepts
}

type phaseStats struct {
	total    time.Duration
	ops      int
	failures int64
	p50      time.Duration
	p95      time.Duration
	p99      time.Duration
	opsPerS  float64
}

func computeStats(total time.Duration, samples []time.Duration, failures int64) phaseStats {
	if len(samples) == 0 {
		return phaseStats{total: total, failures: failures}
	}
	sort.Slice(samples, func(i, j int) bool { return samples[i] < samples[j] })
	return phaseStats{
		total:    total,
		ops:      len(samples),
		failures: failures,
		p50:      percentile(samples, 50),
		p95:      percentile(samples, 95),
		p99:      percentile(samples, 99),
		opsPerS:  float64(len(samples)) / total.Seconds(),
	}
}

func percentile(samples []time.Duration, p int) time.Duration {
	if p <= 0 {
		return samples[0]
	}
	if p >= 100 {
		return samples[len(samples)-1]
	}
	return samples[(len(samples)-1)*p/100]
}

func printStats(name string, s phaseStats) {
	fmt.Printf("%s: ops=%d failures=%d total=%s ops/sec=%.0f p50=%s p95=%s p99=%s\n",
		name,
		s.ops,
		s.failures,
		s.total.Round(time.Millisecond),
		s.opsPerS,
		s.p50.Round(time.Microsecond),
		s.p95.Round(time.Microsecond),
		s.p99.Round(time.Microsecond),
	)
}

func userID(i int) string {
	return fmt.Sprintf("load-%d", i)
}

func phoneOf(i int) string {
	return fmt.Sprintf("+1555%07d", i)
}
