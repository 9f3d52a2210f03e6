package flows

import (
	"context"
	"errors"
	"testing"
	"time"
)

var (
	errInvalidCreds = errors.New("invalid credentials")
	errBadReference = errors.New("bad reference")
)

func loginDeps(h *flowHarness, svc Service) LoginDeps {
	return LoginDeps{
		DefaultChannel: 1,
		Now:            h.clock,
		FindUserByIdentifier: func(_ context.Context, identifier string) (*UserRecord, error) {
			h.mu.Lock()
			defer h.mu.Unlock()
			for _, u := range h.users {
				if u.Identifier == identifier {
					return u.Clone(), nil
				}
			}
			return nil, errUserNotFound
		},
		VerifySecret: func(secret, encoded string) (bool, error) {
			return secret == encoded, nil
		},
		LockGate:       svc.LockGate,
		IssueChallenge: svc.IssueChallenge,
		ValidateOTP:    svc.ValidateOTP,
		IssueReference: func(ref MFAReference) (string, error) {
			return ref.UserID + "|" + ref.ChallengeID, nil
		},
		ParseReference: func(s string) (*MFAReference, error) {
			for i := 0; i < len(s); i++ {
				if s[i] == '|' {
					return &MFAReference{UserID: s[:i], ChallengeID: s[i+1:]}, nil
				}
			}
			return nil, errBadReference
		},
		Errors: LoginErrors{
			EngineNotReady:     errNotReady,
			InvalidCredentials: errInvalidCreds,
			UserNotFound:       errUserNotFound,
			AccountLocked:      errLocked,
			ReferenceInvalid:   errBadReference,
			Backend:            errBackend,
		},
	}
}

func TestLoginWithoutMFA(t *testing.T) {
	h := newFlowHarness()
	h.users["u1"].PasswordHash = "secret"
	svc := New(Deps{Challenge: h.deps()})
	deps := loginDeps(h, svc)

	out, err := RunLogin(context.Background(), "bob", "secret", deps)
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	if out.MFARequired || out.UserID != "u1" || out.AuthenticatedAt.IsZero() {
		t.Fatalf("unexpected outcome %+v", out)
	}
}

func TestLoginUnknownUserLooksLikeBadPassword(t *testing.T) {
	h := newFlowHarness()
	h.users["u1"].PasswordHash = "secret"
	svc := New(Deps{Challenge: h.deps()})
	deps := loginDeps(h, svc)
	burned := 0
	deps.BurnVerify = func(string) { burned++ }

	_, errUnknown := RunLogin(context.Background(), "alice", "secret", deps)
	_, errWrong := RunLogin(context.Background(), "bob", "wrong", deps)
	if !errors.Is(errUnknown, errInvalidCreds) || !errors.Is(errWrong, errInvalidCreds) {
		t.Fatalf("expected invalid credentials for both, got %v / %v", errUnknown, errWrong)
	}
	if errUnknown.Error() != errWrong.Error() {
		t.Fatalf("error text differs: %q vs %q", errUnknown, errWrong)
	}
	if burned != 1 {
		t.Fatalf("expected dummy verification for unknown user, got %d", burned)
	}

	if _, err := RunAuthenticate(context.Background(), "alice", "secret", deps); !errors.Is(err, errUserNotFound) {
		t.Fatalf("expected internal user not found, got %v", err)
	}
}

func TestLoginMFARoundTrip(t *testing.T) {
	h := newFlowHarness()
	h.users["u1"].PasswordHash = "secret"
	h.users["u1"].MFAEnabled = true
	svc := New(Deps{Challenge: h.deps()})
	deps := loginDeps(h, svc)
	ctx := context.Background()

	out, err := RunLogin(ctx, "bob", "secret", deps)
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	if !out.MFARequired || out.Reference == "" || out.Channel != 1 {
		t.Fatalf("expected pending mfa, got %+v", out)
	}
	code := h.sent[len(h.sent)-1]

	if _, err := RunCompleteMFA(ctx, "garbage", code, deps); !errors.Is(err, errBadReference) {
		t.Fatalf("expected bad reference, got %v", err)
	}
	done, err := RunCompleteMFA(ctx, out.Reference, code, deps)
	if err != nil {
		t.Fatalf("complete mfa: %v", err)
	}
	if done.UserID != "u1" || done.ChallengeID != out.ChallengeID {
		t.Fatalf("unexpected completion %+v", done)
	}
	if _, err := RunCompleteMFA(ctx, out.Reference, code, deps); !errors.Is(err, errAlreadyUsed) {
		t.Fatalf("expected replay rejected, got %v", err)
	}
}

func TestLoginLockedAfterPasswordCheck(t *testing.T) {
	h := newFlowHarness()
	h.users["u1"].PasswordHash = "secret"
	h.users["u1"].Locked = true
	h.users["u1"].LockExpiresAt = h.clock().Add(time.Hour)
	svc := New(Deps{Challenge: h.deps()})
	deps := loginDeps(h, svc)

	if _, err := RunLogin(context.Background(), "bob", "wrong", deps); !errors.Is(err, errInvalidCreds) {
		t.Fatalf("expected invalid credentials before lock reveal, got %v", err)
	}
	if _, err := RunLogin(context.Background(), "bob", "secret", deps); !errors.Is(err, errLocked) {
		t.Fatalf("expected locked, got %v", err)
	}
}
