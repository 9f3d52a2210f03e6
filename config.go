package goMFA

import (
	"errors"
	"time"

	"github.com/MrEthical07/goMFA/password"
)

// Config defines a public type used by goMFA APIs.
//
// Config instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type Config struct {
	OTP      OTPConfig
	Resend   ResendConfig
	Lockout  LockoutConfig
	Dispatch DispatchConfig
	Password PasswordConfig
	MFA      MFAConfig
	Locking  LockingConfig
	Redis    RedisConfig
	Audit    AuditConfig
	Metrics  MetricsConfig
}

/*
====================================
OTP CONFIG
====================================
*/

// OTPConfig controls code shape and challenge lifetime.
//
// DigestKey keys the HMAC used for stored digests and reuse history. Every
// engine sharing a store must use the same key; an empty key is replaced by a
// random per-process key at build.
type OTPConfig struct {
	Digits           int
	TTL              time.Duration
	ExpiredRetention time.Duration // how long a consumed/expired record stays observable
	HistoryRetention time.Duration // 0 keeps reuse history forever
	DigestKey        []byte
	RedisPrefix      string
}

// ResendConfig controls the per-user issuance cooldown.
type ResendConfig struct {
	Cooldown time.Duration
}

// LockoutConfig controls lockout after consecutive incorrect codes. A zero
// Duration locks until [Engine.UnlockUser] is called.
type LockoutConfig struct {
	Threshold int
	Duration  time.Duration
}

/*
====================================
DISPATCH CONFIG
====================================
*/

// DispatchConfig controls notification rendering and delivery deadlines.
// Templates may use {{code}} and {{ttl_minutes}}.
type DispatchConfig struct {
	Timeout        time.Duration
	EmailSubject   string
	EmailTemplate  string
	MobileTemplate string
}

// PasswordConfig holds the complexity policy and argon2id parameters.
type PasswordConfig struct {
	MinLength   int
	Symbols     string
	Memory      uint32 // in KB
	Time        uint32
	Parallelism uint8
	SaltLength  uint32
	KeyLength   uint32
}

/*
====================================
MFA CONFIG
====================================
*/

// MFAConfig controls the login orchestration and the signed pending-MFA
// reference.
type MFAConfig struct {
	Required       bool
	DefaultChannel Channel
	ReferenceGrace time.Duration
	SigningMethod  string // "hs256" (default) or "ed25519"
	PrivateKey     []byte
	PublicKey      []byte
	Issuer         string
}

// LockingConfig controls the distributed per-user lock used with Redis.
type LockingConfig struct {
	RedisPrefix    string
	Lease          time.Duration
	AcquireTimeout time.Duration
}

// RedisConfig lets Build dial Redis itself when no client is supplied.
type RedisConfig struct {
	Addr     string
	Username string
	Password string
	DB       int
}

// AuditConfig controls the async audit dispatcher.
type AuditConfig struct {
	Enabled    bool
	BufferSize int
	DropIfFull bool
}

// MetricsConfig toggles in-process metrics.
type MetricsConfig struct {
	Enabled                 bool
	EnableLatencyHistograms bool
}

// DefaultConfig returns the baseline configuration used by [New].
func DefaultConfig() Config {
	argon := password.DefaultArgon2Params()
	return Config{
		OTP: OTPConfig{
			Digits:           6,
			TTL:              5 * time.Minute,
			ExpiredRetention: 10 * time.Minute,
			HistoryRetention: 24 * time.Hour,
			RedisPrefix:      "otc",
		},
		Resend: ResendConfig{
			Cooldown: 60 * time.Second,
		},
		Lockout: LockoutConfig{
			Threshold: 5,
			Duration:  15 * time.Minute,
		},
		Dispatch: DispatchConfig{
			Timeout: 5 * time.Second,
		},
		Password: PasswordConfig{
			MinLength:   password.DefaultMinLength,
			Symbols:     password.DefaultSymbols,
			Memory:      argon.Memory,
			Time:        argon.Time,
			Parallelism: argon.Parallelism,
			SaltLength:  argon.SaltLength,
			KeyLength:   argon.KeyLength,
		},
		MFA: MFAConfig{
			Required:       false,
			DefaultChannel: ChannelEmail,
			ReferenceGrace: 30 * time.Second,
			SigningMethod:  "hs256",
			Issuer:         "gomfa",
		},
		Locking: LockingConfig{
			RedisPrefix:    "otl",
			Lease:          5 * time.Second,
			AcquireTimeout: 2 * time.Second,
		},
		Audit: AuditConfig{
			Enabled:    false,
			BufferSize: 1024,
			DropIfFull: true,
		},
		Metrics: MetricsConfig{
			Enabled:                 true,
			EnableLatencyHistograms: false,
		},
	}
}

func cloneConfig(cfg Config) Config {
	out := cfg
	out.OTP.DigestKey = cloneBytes(cfg.OTP.DigestKey)
	out.MFA.PrivateKey = cloneBytes(cfg.MFA.PrivateKey)
	out.MFA.PublicKey = cloneBytes(cfg.MFA.PublicKey)
	return out
}

func cloneBytes(b []byte) []byte {
	if len(b) == 0 {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}

/*
====================================
VALIDATION
====================================
*/

// Validate reports the first invalid setting.
func (c *Config) Validate() error {
	// OTP
	if c.OTP.Digits < 6 || c.OTP.Digits > 10 {
		return errors.New("OTP Digits must be between 6 and 10")
	}
	if c.OTP.TTL <= 0 {
		return errors.New("OTP TTL must be > 0")
	}
	if c.OTP.ExpiredRetention < 0 {
		return errors.New("OTP ExpiredRetention must be >= 0")
	}
	if c.OTP.HistoryRetention < 0 {
		return errors.New("OTP HistoryRetention must be >= 0")
	}
	if c.OTP.HistoryRetention > 0 && c.OTP.HistoryRetention < c.OTP.TTL+c.OTP.ExpiredRetention {
		return errors.New("OTP HistoryRetention must cover TTL + ExpiredRetention")
	}
	if len(c.OTP.DigestKey) > 0 && len(c.OTP.DigestKey) < 16 {
		return errors.New("OTP DigestKey must be >= 16 bytes")
	}
	if c.OTP.RedisPrefix == "" {
		return errors.New("OTP RedisPrefix must not be empty")
	}

	// Resend / Lockout
	if c.Resend.Cooldown < 0 {
		return errors.New("Resend Cooldown must be >= 0")
	}
	if c.Lockout.Threshold <= 0 {
		return errors.New("Lockout Threshold must be > 0")
	}
	if c.Lockout.Duration < 0 {
		return errors.New("Lockout Duration must be >= 0")
	}

	// Dispatch
	if c.Dispatch.Timeout <= 0 {
		return errors.New("Dispatch Timeout must be > 0")
	}

	// Password
	if c.Password.MinLength < 1 {
		return errors.New("Password MinLength must be >= 1")
	}
	if c.Password.Symbols == "" {
		return errors.New("Password Symbols must not be empty")
	}
	if c.Password.Memory < 8*1024 {
		return errors.New("Password Memory must be >= 8192 KB")
	}
	if c.Password.Time < 1 {
		return errors.New("Password Time must be >= 1")
	}
	if c.Password.Parallelism < 1 {
		return errors.New("Password Parallelism must be >= 1")
	}
	if c.Password.SaltLength < 16 {
		return errors.New("Password SaltLength must be >= 16")
	}
	if c.Password.KeyLength < 16 {
		return errors.New("Password KeyLength must be >= 16")
	}

	// MFA
	if !c.MFA.DefaultChannel.Valid() {
		return errors.New("MFA DefaultChannel is invalid")
	}
	if c.MFA.ReferenceGrace < 0 {
		return errors.New("MFA ReferenceGrace must be >= 0")
	}
	switch c.MFA.SigningMethod {
	case "hs256":
		if len(c.MFA.PrivateKey) > 0 && len(c.MFA.PrivateKey) < 32 {
			return errors.New("hs256 requires PrivateKey >= 32 bytes")
		}
	case "ed25519":
		if len(c.MFA.PrivateKey) == 0 {
			return errors.New("ed25519 requires PrivateKey")
		}
	default:
		return errors.New("unsupported MFA signing method")
	}

	// Locking
	if c.Locking.RedisPrefix == "" {
		return errors.New("Locking RedisPrefix must not be empty")
	}
	if c.Locking.Lease < 100*time.Millisecond {
		return errors.New("Locking Lease must be >= 100ms")
	}
	if c.Locking.AcquireTimeout <= 0 {
		return errors.New("Locking AcquireTimeout must be > 0")
	}

	// Audit
	if c.Audit.Enabled && c.Audit.BufferSize <= 0 {
		return errors.New("Audit BufferSize must be > 0")
	}

	return nil
}
