package goMFA

import (
	"crypto/rand"
	"errors"
	"io"
	"log/slog"

	"github.com/go-playground/validator/v10"
	"github.com/redis/go-redis/v9"

	internalaudit "github.com/MrEthical07/goMFA/internal/audit"
	"github.com/MrEthical07/goMFA/internal/dispatch"
	internalflows "github.com/MrEthical07/goMFA/internal/flows"
	"github.com/MrEthical07/goMFA/internal/locks"
	"github.com/MrEthical07/goMFA/internal/otp"
	"github.com/MrEthical07/goMFA/internal/stores"
	"github.com/MrEthical07/goMFA/jwt"
	"github.com/MrEthical07/goMFA/password"
)

// Builder assembles an [Engine]. A Builder is single use.
type Builder struct {
	config     Config
	redis      redis.UniversalClient
	repo       UserRepository
	transports map[Channel]Transport
	clock      Clock
	random     io.Reader
	auditSink  AuditSink
	logger     *slog.Logger

	built bool
}

// New returns a Builder seeded with [DefaultConfig].
func New() *Builder {
	return &Builder{
		config:     DefaultConfig(),
		transports: map[Channel]Transport{},
	}
}

// WithConfig replaces the whole configuration.
func (b *Builder) WithConfig(cfg Config) *Builder {
	b.config = cloneConfig(cfg)
	return b
}

// WithRedis backs challenges and per-user locks with Redis. Without it the
// engine keeps both in process memory.
func (b *Builder) WithRedis(client redis.UniversalClient) *Builder {
	b.redis = client
	return b
}

// WithUserRepository sets the required user store.
func (b *Builder) WithUserRepository(repo UserRepository) *Builder {
	b.repo = repo
	return b
}

// WithTransport registers t for ch. A nil t removes the channel.
func (b *Builder) WithTransport(ch Channel, t Transport) *Builder {
	if t == nil {
		delete(b.transports, ch)
		return b
	}
	b.transports[ch] = t
	return b
}

// WithClock injects the time source.
func (b *Builder) WithClock(c Clock) *Builder {
	b.clock = c
	return b
}

// WithRandom injects the random source for codes and generated keys. It must
// be cryptographically secure outside tests.
func (b *Builder) WithRandom(r io.Reader) *Builder {
	b.random = r
	return b
}

// WithAuditSink sets the audit sink. Audit.Enabled must also be true.
func (b *Builder) WithAuditSink(sink AuditSink) *Builder {
	b.auditSink = sink
	return b
}

// WithLogger sets the structured logger. Defaults to slog.Default().
func (b *Builder) WithLogger(logger *slog.Logger) *Builder {
	b.logger = logger
	return b
}

// WithMetricsEnabled toggles in-process counters.
func (b *Builder) WithMetricsEnabled(enabled bool) *Builder {
	b.config.Metrics.Enabled = enabled
	return b
}

// WithLatencyHistograms toggles the validate and dispatch histograms.
func (b *Builder) WithLatencyHistograms(enabled bool) *Builder {
	b.config.Metrics.EnableLatencyHistograms = enabled
	return b
}

// Build validates the configuration and wires the engine.
func (b *Builder) Build() (*Engine, error) {
	if b.built {
		return nil, ErrBuilderUsed
	}

	cfg := cloneConfig(b.config)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if b.repo == nil {
		return nil, errors.New("user repository required")
	}
	if len(b.transports) == 0 {
		return nil, errors.New("at least one transport required")
	}
	if _, ok := b.transports[cfg.MFA.DefaultChannel]; !ok {
		return nil, errors.New("MFA DefaultChannel has no transport")
	}

	clock := b.clock
	if clock == nil {
		clock = SystemClock{}
	}
	random := b.random
	if random == nil {
		random = rand.Reader
	}
	logger := b.logger
	if logger == nil {
		logger = slog.Default()
	}

	engine := &Engine{
		config:   cfg,
		repo:     b.repo,
		clock:    clock,
		random:   random,
		logger:   logger,
		validate: validator.New(validator.WithRequiredStructEnabled()),
	}

	// -------- REDIS --------
	client := b.redis
	if client == nil && cfg.Redis.Addr != "" {
		client = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Username: cfg.Redis.Username,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		engine.ownedRedis = client
	}

	if client != nil {
		engine.challenges = stores.NewRedisChallengeStore(client, cfg.OTP.RedisPrefix)
		engine.locker = locks.NewRedis(client, locks.RedisConfig{
			Prefix:         cfg.Locking.RedisPrefix,
			Lease:          cfg.Locking.Lease,
			AcquireTimeout: cfg.Locking.AcquireTimeout,
		})
	} else {
		engine.challenges = stores.NewMemoryChallengeStore(clock.Now)
		engine.locker = locks.NewKeyed()
	}

	// -------- KEYS --------
	digestKey := cfg.OTP.DigestKey
	if len(digestKey) == 0 {
		key, err := otp.NewKey(random)
		if err != nil {
			return nil, err
		}
		digestKey = key
		if client != nil {
			logger.Warn("gomfa: OTP DigestKey not set; using a per-process key, reuse history will not be shared across instances")
		}
	}
	digester, err := otp.NewDigester(digestKey)
	if err != nil {
		return nil, err
	}
	engine.digester = digester

	refKey := cfg.MFA.PrivateKey
	if cfg.MFA.SigningMethod == "hs256" && len(refKey) == 0 {
		key, err := otp.NewKey(random)
		if err != nil {
			return nil, err
		}
		refKey = key
		if client != nil {
			logger.Warn("gomfa: MFA PrivateKey not set; references only verify on this instance")
		}
	}
	refs, err := jwt.NewManager(jwt.Config{
		SigningMethod: jwt.SigningMethod(cfg.MFA.SigningMethod),
		PrivateKey:    refKey,
		PublicKey:     cloneBytes(cfg.MFA.PublicKey),
		Issuer:        cfg.MFA.Issuer,
		Now:           clock.Now,
	})
	if err != nil {
		return nil, err
	}
	engine.refs = refs

	// -------- PASSWORD --------
	argon, err := password.NewArgon2(password.Argon2Params{
		Memory:      cfg.Password.Memory,
		Time:        cfg.Password.Time,
		Parallelism: cfg.Password.Parallelism,
		SaltLength:  cfg.Password.SaltLength,
		KeyLength:   cfg.Password.KeyLength,
	})
	if err != nil {
		return nil, err
	}
	engine.argon = argon
	engine.verifier = password.NewVerifier(argon)
	engine.policy = password.Policy{MinLength: cfg.Password.MinLength, Symbols: cfg.Password.Symbols}

	// -------- OBSERVABILITY --------
	engine.metrics = NewMetrics(cfg.Metrics)
	engine.audit = internalaudit.NewDispatcher(internalaudit.Config{
		Enabled:    cfg.Audit.Enabled,
		BufferSize: cfg.Audit.BufferSize,
		DropIfFull: cfg.Audit.DropIfFull,
	}, b.auditSink, func() {
		logger.Debug("gomfa: audit event dropped")
	})

	transports := make(map[dispatch.Channel]Transport, len(b.transports))
	for ch, t := range b.transports {
		transports[ch] = t
	}
	engine.dispatcher = dispatch.New(dispatch.Config{
		Timeout:        cfg.Dispatch.Timeout,
		EmailSubject:   cfg.Dispatch.EmailSubject,
		EmailTemplate:  cfg.Dispatch.EmailTemplate,
		MobileTemplate: cfg.Dispatch.MobileTemplate,
	}, transports, engine.observeDispatch)

	engine.flows = internalflows.New(internalflows.Deps{
		Challenge: engine.challengeFlowDeps(),
		Login:     engine.loginFlowDeps(),
	})

	b.built = true
	return engine, nil
}
