package goMFA

import (
	"testing"
	"time"
)

func TestDefaultConfigValid(t *testing.T) {
	cfg := DefaultConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config must validate: %v", err)
	}
	if cfg.OTP.TTL != 5*time.Minute || cfg.Lockout.Threshold != 5 || cfg.Lockout.Duration != 15*time.Minute {
		t.Fatalf("unexpected defaults %+v", cfg)
	}
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name      string
		mutate    func(*Config)
		wantValid bool
	}{
		{name: "ten digits", mutate: func(c *Config) { c.OTP.Digits = 10 }, wantValid: true},
		{name: "five digits", mutate: func(c *Config) { c.OTP.Digits = 5 }},
		{name: "eleven digits", mutate: func(c *Config) { c.OTP.Digits = 11 }},
		{name: "zero ttl", mutate: func(c *Config) { c.OTP.TTL = 0 }},
		{name: "history shorter than ttl", mutate: func(c *Config) { c.OTP.HistoryRetention = time.Minute }},
		{name: "history forever", mutate: func(c *Config) { c.OTP.HistoryRetention = 0 }, wantValid: true},
		{name: "short digest key", mutate: func(c *Config) { c.OTP.DigestKey = []byte("short") }},
		{name: "zero cooldown", mutate: func(c *Config) { c.Resend.Cooldown = 0 }, wantValid: true},
		{name: "negative cooldown", mutate: func(c *Config) { c.Resend.Cooldown = -time.Second }},
		{name: "zero threshold", mutate: func(c *Config) { c.Lockout.Threshold = 0 }},
		{name: "permanent lockout", mutate: func(c *Config) { c.Lockout.Duration = 0 }, wantValid: true},
		{name: "zero dispatch timeout", mutate: func(c *Config) { c.Dispatch.Timeout = 0 }},
		{name: "weak argon memory", mutate: func(c *Config) { c.Password.Memory = 1024 }},
		{name: "bad channel", mutate: func(c *Config) { c.MFA.DefaultChannel = 0 }},
		{name: "short hs256 key", mutate: func(c *Config) { c.MFA.PrivateKey = []byte("short") }},
		{name: "ed25519 without key", mutate: func(c *Config) { c.MFA.SigningMethod = "ed25519" }},
		{name: "unknown signing method", mutate: func(c *Config) { c.MFA.SigningMethod = "rs256" }},
		{name: "tiny lease", mutate: func(c *Config) { c.Locking.Lease = time.Millisecond }},
		{name: "audit without buffer", mutate: func(c *Config) { c.Audit.Enabled = true; c.Audit.BufferSize = 0 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantValid && err != nil {
				t.Fatalf("expected valid, got %v", err)
			}
			if !tt.wantValid && err == nil {
				t.Fatal("expected validation error")
			}
		})
	}
}

func TestCloneConfigCopiesKeys(t *testing.T) {
	cfg := DefaultConfig()
	cfg.OTP.DigestKey = []byte("0123456789abcdef")
	out := cloneConfig(cfg)
	cfg.OTP.DigestKey[0] = 'X'
	if out.OTP.DigestKey[0] != '0' {
		t.Fatal("clone must not share key bytes")
	}
}
