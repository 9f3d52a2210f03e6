package goMFA

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"errors"
	"testing"
)

func TestBuildRequiresRepositoryAndTransport(t *testing.T) {
	if _, err := New().WithConfig(testConfig()).WithTransport(ChannelEmail, &captureTransport{}).Build(); err == nil {
		t.Fatal("expected error without repository")
	}
	if _, err := New().WithConfig(testConfig()).WithUserRepository(newTestRepo()).Build(); err == nil {
		t.Fatal("expected error without transport")
	}

	cfg := testConfig()
	cfg.MFA.DefaultChannel = ChannelMobile
	_, err := New().WithConfig(cfg).WithUserRepository(newTestRepo()).WithTransport(ChannelEmail, &captureTransport{}).Build()
	if err == nil {
		t.Fatal("expected error when the default channel has no transport")
	}
}

func TestBuildRejectsInvalidConfig(t *testing.T) {
	cfg := testConfig()
	cfg.OTP.Digits = 4
	_, err := New().WithConfig(cfg).WithUserRepository(newTestRepo()).WithTransport(ChannelEmail, &captureTransport{}).Build()
	if err == nil {
		t.Fatal("expected config error")
	}
}

func TestBuilderSingleUse(t *testing.T) {
	b := New().WithConfig(testConfig()).WithUserRepository(newTestRepo()).WithTransport(ChannelEmail, &captureTransport{})
	engine, err := b.Build()
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	defer engine.Close()
	if _, err := b.Build(); !errors.Is(err, ErrBuilderUsed) {
		t.Fatalf("expected ErrBuilderUsed, got %v", err)
	}
}

func TestBuildWithEd25519References(t *testing.T) {
	_, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatal(err)
	}
	cfg := testConfig()
	cfg.MFA.SigningMethod = "ed25519"
	cfg.MFA.PrivateKey = priv
	cfg.MFA.Required = true

	env := newTestEnv(t, cfg)
	env.addUser(t, "alice", nil)
	ctx := context.Background()

	result, err := env.engine.Login(ctx, creds("alice", testPassword))
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	if _, err := env.engine.CompleteMFA(ctx, result.PendingMFA, env.email.lastCode(t)); err != nil {
		t.Fatalf("complete: %v", err)
	}
}

func TestZeroEngineNotReady(t *testing.T) {
	var e Engine
	ctx := context.Background()
	if _, err := e.Login(ctx, creds("a", "b")); !errors.Is(err, ErrEngineNotReady) {
		t.Fatalf("expected ErrEngineNotReady, got %v", err)
	}
	if err := e.Validate(ctx, "a", "123456"); !errors.Is(err, ErrEngineNotReady) {
		t.Fatalf("expected ErrEngineNotReady, got %v", err)
	}
	var nilEngine *Engine
	if _, err := nilEngine.IssueChallenge(ctx, "a", ChannelEmail); !errors.Is(err, ErrEngineNotReady) {
		t.Fatalf("expected ErrEngineNotReady, got %v", err)
	}
	nilEngine.Close()
	if nilEngine.AuditDropped() != 0 || len(nilEngine.MetricsSnapshot().Counters) != 0 {
		t.Fatal("nil engine must be inert")
	}
}

func TestValidateAddress(t *testing.T) {
	env := newTestEnv(t, testConfig())
	if err := env.engine.ValidateAddress(ChannelEmail, "a@example.com"); err != nil {
		t.Fatalf("valid email: %v", err)
	}
	if err := env.engine.ValidateAddress(ChannelEmail, "not-an-email"); !errors.Is(err, ErrInvalidAddress) {
		t.Fatalf("expected ErrInvalidAddress, got %v", err)
	}
	if err := env.engine.ValidateAddress(ChannelMobile, "+14155550100"); err != nil {
		t.Fatalf("valid phone: %v", err)
	}
	if err := env.engine.ValidateAddress(Channel(7), "x"); !errors.Is(err, ErrInvalidChannel) {
		t.Fatalf("expected ErrInvalidChannel, got %v", err)
	}
}
