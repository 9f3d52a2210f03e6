package goMFA

import (
	"context"
	"errors"
	"strings"
	"testing"
)

func drainAudit(env *testEnv) []AuditEvent {
	env.engine.Close()
	var out []AuditEvent
	for {
		select {
		case e := <-env.sink.Events():
			out = append(out, e)
		default:
			return out
		}
	}
}

func TestAuditEventsForMFALogin(t *testing.T) {
	cfg := testConfig()
	cfg.Audit.Enabled = true
	cfg.Audit.BufferSize = 64
	env := newTestEnv(t, cfg)
	env.addUser(t, "alice", func(u *User) { u.MFAEnabled = true })

	ctx := WithRequestID(WithClientIP(WithUserAgent(context.Background(), "test-agent"), "203.0.113.9"), "req-1")
	result, err := env.engine.Login(ctx, creds("alice", testPassword))
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	code := env.email.lastCode(t)
	if _, err := env.engine.CompleteMFA(ctx, result.PendingMFA, code); err != nil {
		t.Fatalf("complete: %v", err)
	}

	events := drainAudit(env)
	seen := map[string]AuditEvent{}
	for _, e := range events {
		seen[e.EventType] = e
		for k, v := range e.Metadata {
			if strings.Contains(v, code) {
				t.Fatalf("event %s leaks the code in %s", e.EventType, k)
			}
		}
	}
	for _, want := range []string{auditEventOTPIssued, auditEventMFARequired, auditEventOTPValidated, auditEventMFAComplete} {
		e, ok := seen[want]
		if !ok {
			t.Fatalf("missing %s in %v", want, events)
		}
		if e.UserID != "alice" || e.RequestID != "req-1" || e.IP != "203.0.113.9" || e.UserAgent != "test-agent" || e.ID == "" {
			t.Fatalf("unexpected event fields %+v", e)
		}
	}
}

func TestAuditLockoutErrorCode(t *testing.T) {
	cfg := testConfig()
	cfg.Audit.Enabled = true
	env := newTestEnv(t, cfg)
	env.addUser(t, "alice", nil)
	ctx := context.Background()

	challenge, _ := env.engine.IssueChallenge(ctx, "alice", ChannelEmail)
	wrong := "111111"
	if wrong == challenge.Code {
		wrong = "222222"
	}
	for i := 0; i < cfg.Lockout.Threshold; i++ {
		_ = env.engine.Validate(ctx, "alice", wrong)
	}

	var locked, userNotFound bool
	for _, e := range drainAudit(env) {
		if e.EventType == auditEventAccountLocked && e.Error == string(auditErrAccountLocked) {
			locked = true
		}
		if e.Error == string(auditErrUserNotFound) {
			userNotFound = true
		}
	}
	if !locked {
		t.Fatal("expected account_locked event")
	}
	if userNotFound {
		t.Fatal("unexpected user_not_found")
	}
}

func TestAuditErrorCodeMapping(t *testing.T) {
	tests := []struct {
		err  error
		want AuditErrorCode
	}{
		{nil, ""},
		{ErrInvalidCredentials, auditErrInvalidCredentials},
		{errors.Join(ErrIncorrectCode, ErrAccountLocked), auditErrAccountLocked},
		{ErrIncorrectCode, auditErrIncorrectCode},
		{ErrOTPAlreadyUsed, auditErrOTPReplay},
		{ErrTransportFailure, auditErrTransportFailure},
		{ErrPasswordPolicy, auditErrPasswordPolicy},
		{errors.New("other"), auditErrInternal},
	}
	for _, tt := range tests {
		if got := auditErrorCode(tt.err); got != tt.want {
			t.Fatalf("auditErrorCode(%v) = %q, want %q", tt.err, got, tt.want)
		}
	}
}
