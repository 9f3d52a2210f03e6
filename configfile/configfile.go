// Package configfile loads a goMFA.Config from an optional file plus
// environment variables using Viper.
//
// Keys are lower snake case grouped by section, e.g. otp.ttl or
// lockout.threshold. With an env prefix of "GOMFA" the same key is read from
// GOMFA_OTP_TTL. Durations accept Go duration strings ("90s", "15m").
// Binary keys (otp.digest_key, mfa.private_key, mfa.public_key) are base64.
package configfile

import (
	"encoding/base64"
	"fmt"
	"strings"

	"github.com/spf13/viper"

	goMFA "github.com/MrEthical07/goMFA"
)

// Load reads path (skipped when empty), overlays environment variables and
// returns a validated Config. Unset keys keep goMFA.DefaultConfig values.
func Load(path, envPrefix string) (goMFA.Config, error) {
	v := viper.New()
	setDefaults(v, goMFA.DefaultConfig())

	if envPrefix != "" {
		v.SetEnvPrefix(envPrefix)
	}
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return goMFA.Config{}, fmt.Errorf("configfile: read %s: %w", path, err)
		}
	}

	cfg, err := decode(v)
	if err != nil {
		return goMFA.Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return goMFA.Config{}, fmt.Errorf("configfile: %w", err)
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper, d goMFA.Config) {
	v.SetDefault("otp.digits", d.OTP.Digits)
	v.SetDefault("otp.ttl", d.OTP.TTL)
	v.SetDefault("otp.expired_retention", d.OTP.ExpiredRetention)
	v.SetDefault("otp.history_retention", d.OTP.HistoryRetention)
	v.SetDefault("otp.digest_key", "")
	v.SetDefault("otp.redis_prefix", d.OTP.RedisPrefix)

	v.SetDefault("resend.cooldown", d.Resend.Cooldown)
	v.SetDefault("lockout.threshold", d.Lockout.Threshold)
	v.SetDefault("lockout.duration", d.Lockout.Duration)

	v.SetDefault("dispatch.timeout", d.Dispatch.Timeout)
	v.SetDefault("dispatch.email_subject", d.Dispatch.EmailSubject)
	v.SetDefault("dispatch.email_template", d.Dispatch.EmailTemplate)
	v.SetDefault("dispatch.mobile_template", d.Dispatch.MobileTemplate)

	v.SetDefault("password.min_length", d.Password.MinLength)
	v.SetDefault("password.symbols", d.Password.Symbols)
	v.SetDefault("password.memory", d.Password.Memory)
	v.SetDefault("password.time", d.Password.Time)
	v.SetDefault("password.parallelism", d.Password.Parallelism)
	v.SetDefault("password.salt_length", d.Password.SaltLength)
	v.SetDefault("password.key_length", d.Password.KeyLength)

	v.SetDefault("mfa.required", d.MFA.Required)
	v.SetDefault("mfa.default_channel", d.MFA.DefaultChannel.String())
	v.SetDefault("mfa.reference_grace", d.MFA.ReferenceGrace)
	v.SetDefault("mfa.signing_method", d.MFA.SigningMethod)
	v.SetDefault("mfa.private_key", "")
	v.SetDefault("mfa.public_key", "")
	v.SetDefault("mfa.issuer", d.MFA.Issuer)

	v.SetDefault("locking.redis_prefix", d.Locking.RedisPrefix)
	v.SetDefault("locking.lease", d.Locking.Lease)
	v.SetDefault("locking.acquire_timeout", d.Locking.AcquireTimeout)

	v.SetDefault("redis.addr", d.Redis.Addr)
	v.SetDefault("redis.username", d.Redis.Username)
	v.SetDefault("redis.password", d.Redis.Password)
	v.SetDefault("redis.db", d.Redis.DB)

	v.SetDefault("audit.enabled", d.Audit.Enabled)
	v.SetDefault("audit.buffer_size", d.Audit.BufferSize)
	v.SetDefault("audit.drop_if_full", d.Audit.DropIfFull)

	v.SetDefault("metrics.enabled", d.Metrics.Enabled)
	v.SetDefault("metrics.latency_histograms", d.Metrics.EnableLatencyHistograms)
}

func decode(v *viper.Viper) (goMFA.Config, error) {
	var cfg goMFA.Config
	var err error

	cfg.OTP = goMFA.OTPConfig{
		Digits:           v.GetInt("otp.digits"),
		TTL:              v.GetDuration("otp.ttl"),
		ExpiredRetention: v.GetDuration("otp.expired_retention"),
		HistoryRetention: v.GetDuration("otp.history_retention"),
		RedisPrefix:      v.GetString("otp.redis_prefix"),
	}
	if cfg.OTP.DigestKey, err = decodeKey(v, "otp.digest_key"); err != nil {
		return cfg, err
	}

	cfg.Resend.Cooldown = v.GetDuration("resend.cooldown")
	cfg.Lockout = goMFA.LockoutConfig{
		Threshold: v.GetInt("lockout.threshold"),
		Duration:  v.GetDuration("lockout.duration"),
	}

	cfg.Dispatch = goMFA.DispatchConfig{
		Timeout:        v.GetDuration("dispatch.timeout"),
		EmailSubject:   v.GetString("dispatch.email_subject"),
		EmailTemplate:  v.GetString("dispatch.email_template"),
		MobileTemplate: v.GetString("dispatch.mobile_template"),
	}

	cfg.Password = goMFA.PasswordConfig{
		MinLength:   v.GetInt("password.min_length"),
		Symbols:     v.GetString("password.symbols"),
		Memory:      v.GetUint32("password.memory"),
		Time:        v.GetUint32("password.time"),
		Parallelism: uint8(v.GetUint("password.parallelism")),
		SaltLength:  v.GetUint32("password.salt_length"),
		KeyLength:   v.GetUint32("password.key_length"),
	}

	channel, err := goMFA.ParseChannel(v.GetString("mfa.default_channel"))
	if err != nil {
		return cfg, fmt.Errorf("configfile: mfa.default_channel: %w", err)
	}
	cfg.MFA = goMFA.MFAConfig{
		Required:       v.GetBool("mfa.required"),
		DefaultChannel: channel,
		ReferenceGrace: v.GetDuration("mfa.reference_grace"),
		SigningMethod:  strings.ToLower(v.GetString("mfa.signing_method")),
		Issuer:         v.GetString("mfa.issuer"),
	}
	if cfg.MFA.PrivateKey, err = decodeKey(v, "mfa.private_key"); err != nil {
		return cfg, err
	}
	if cfg.MFA.PublicKey, err = decodeKey(v, "mfa.public_key"); err != nil {
		return cfg, err
	}

	cfg.Locking = goMFA.LockingConfig{
		RedisPrefix:    v.GetString("locking.redis_prefix"),
		Lease:          v.GetDuration("locking.lease"),
		AcquireTimeout: v.GetDuration("locking.acquire_timeout"),
	}
	cfg.Redis = goMFA.RedisConfig{
		Addr:     v.GetString("redis.addr"),
		Username: v.GetString("redis.username"),
		Password: v.GetString("redis.password"),
		DB:       v.GetInt("redis.db"),
	}
	cfg.Audit = goMFA.AuditConfig{
		Enabled:    v.GetBool("audit.enabled"),
		BufferSize: v.GetInt("audit.buffer_size"),
		DropIfFull: v.GetBool("audit.drop_if_full"),
	}
	cfg.Metrics = goMFA.MetricsConfig{
		Enabled:                 v.GetBool("metrics.enabled"),
		EnableLatencyHistograms: v.GetBool("metrics.latency_histograms"),
	}
	return cfg, nil
}

func decodeKey(v *viper.Viper, key string) ([]byte, error) {
	raw := strings.TrimSpace(v.GetString(key))
	if raw == "" {
		return nil, nil
	}
	b, err := base64.StdEncoding.DecodeString(raw)
	if err != nil {
		return nil, fmt.Errorf("configfile: %s must be base64: %w", key, err)
	}
	return b, nil
}
