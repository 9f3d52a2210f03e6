package flows

import (
	"context"
	"errors"
	"log/slog"
	"strconv"
	"time"
)

// MFAReference is the decoded pending-MFA reference handed back by login.
type MFAReference struct {
	UserID      string
	ChallengeID string
	Channel     uint8
	ExpiresAt   time.Time
}

// LoginOutcome is the flow-local login/complete-MFA response shape.
type LoginOutcome struct {
	UserID          string
	MFARequired     bool
	Reference       string
	ChallengeID     string
	Channel         uint8
	ExpiresAt       time.Time
	AuthenticatedAt time.Time
}

// LoginMetrics carries metric IDs needed by login/mfa flows.
type LoginMetrics struct {
	LoginSuccess     int
	LoginFailure     int
	LoginLocked      int
	MFALoginRequired int
	MFALoginSuccess  int
	MFALoginFailure  int
	ReferenceInvalid int
}

// LoginEvents carries audit event names used by login/mfa flows.
type LoginEvents struct {
	LoginSuccess string
	LoginFailure string
	MFARequired  string
	MFASuccess   string
	MFAFailure   string
}

// LoginErrors carries host-level sentinel errors used by login/mfa flows.
type LoginErrors struct {
	EngineNotReady     error
	InvalidCredentials error
	UserNotFound       error
	AccountLocked      error
	ReferenceInvalid   error
	Backend            error
}

// LoginDeps captures login+mfa dependencies.
type LoginDeps struct {
	MFARequired    bool
	DefaultChannel uint8

	Now                  func() time.Time
	ValidateInput        func(identifier, secret string) error
	FindUserByIdentifier func(context.Context, string) (*UserRecord, error)
	VerifySecret         func(secret, encoded string) (bool, error)
	BurnVerify           func(secret string)
	LockGate             func(context.Context, string) error

	IssueChallenge func(context.Context, string, uint8) (*IssuedChallenge, error)
	ValidateOTP    func(ctx context.Context, userID, challengeID, code string) error
	IssueReference func(ref MFAReference) (string, error)
	ParseReference func(string) (*MFAReference, error)

	MetricInc func(int)
	EmitAudit func(context.Context, string, bool, string, error, func() map[string]string)
	Logger    *slog.Logger

	Metrics LoginMetrics
	Events  LoginEvents
	Errors  LoginErrors
}

func (d *LoginDeps) normalize() {
	if d.Now == nil {
		d.Now = time.Now
	}
	if d.MetricInc == nil {
		d.MetricInc = func(int) {}
	}
	if d.EmitAudit == nil {
		d.EmitAudit = func(context.Context, string, bool, string, error, func() map[string]string) {}
	}
	if d.Logger == nil {
		d.Logger = slog.New(slog.DiscardHandler)
	}
	if d.BurnVerify == nil {
		d.BurnVerify = func(string) {}
	}
	if d.ValidateInput == nil {
		d.ValidateInput = func(identifier, secret string) error {
			if identifier == "" || secret == "" {
				return errors.New("identifier and secret are required")
			}
			return nil
		}
	}
}

// RunAuthenticate verifies primary credentials. UserNotFound is returned as
// is; callers facing the outside must collapse it into InvalidCredentials.
// The lock gate runs only after the secret is verified.
func RunAuthenticate(ctx context.Context, identifier, secret string, deps LoginDeps) (*UserRecord, error) {
	deps.normalize()
	if deps.FindUserByIdentifier == nil || deps.VerifySecret == nil || deps.LockGate == nil {
		return nil, deps.Errors.EngineNotReady
	}

	fail := func(userID string, err error, reason string) (*UserRecord, error) {
		deps.MetricInc(deps.Metrics.LoginFailure)
		deps.EmitAudit(ctx, deps.Events.LoginFailure, false, userID, err, func() map[string]string {
			return map[string]string{
				"identifier": identifier,
				"reason":     reason,
			}
		})
		return nil, err
	}

	if err := deps.ValidateInput(identifier, secret); err != nil {
		return fail("", deps.Errors.InvalidCredentials, "invalid_input")
	}

	user, err := deps.FindUserByIdentifier(ctx, identifier)
	if err != nil && !errors.Is(err, deps.Errors.UserNotFound) {
		return nil, err
	}
	if user == nil {
		deps.BurnVerify(secret)
		deps.Logger.DebugContext(ctx, "login for unknown identifier")
		return fail("", deps.Errors.UserNotFound, "user_not_found")
	}

	ok, err := deps.VerifySecret(secret, user.PasswordHash)
	if err != nil || !ok {
		if err != nil {
			deps.Logger.WarnContext(ctx, "stored password hash unusable", "user_id", user.ID, "error", err)
		}
		return fail(user.ID, deps.Errors.InvalidCredentials, "password_mismatch")
	}

	if err := deps.LockGate(ctx, user.ID); err != nil {
		if errors.Is(err, deps.Errors.AccountLocked) {
			deps.MetricInc(deps.Metrics.LoginLocked)
			return fail(user.ID, err, "account_locked")
		}
		return nil, err
	}
	return user, nil
}

func publicAuthError(err error, errs LoginErrors) error {
	if errors.Is(err, errs.UserNotFound) {
		return errs.InvalidCredentials
	}
	return err
}

// RunLogin authenticates and either completes login or opens an MFA
// challenge and returns its signed reference.
func RunLogin(ctx context.Context, identifier, secret string, deps LoginDeps) (*LoginOutcome, error) {
	deps.normalize()
	if deps.IssueChallenge == nil || deps.IssueReference == nil {
		return nil, deps.Errors.EngineNotReady
	}

	user, err := RunAuthenticate(ctx, identifier, secret, deps)
	if err != nil {
		return nil, publicAuthError(err, deps.Errors)
	}

	if !deps.MFARequired && !user.MFAEnabled {
		now := deps.Now()
		deps.MetricInc(deps.Metrics.LoginSuccess)
		deps.EmitAudit(ctx, deps.Events.LoginSuccess, true, user.ID, nil, func() map[string]string {
			return map[string]string{"mfa": "false"}
		})
		return &LoginOutcome{UserID: user.ID, AuthenticatedAt: now}, nil
	}

	channel := user.PreferredChannel
	if channel == 0 {
		channel = deps.DefaultChannel
	}
	issued, err := deps.IssueChallenge(ctx, user.ID, channel)
	if err != nil {
		return nil, err
	}

	ref, err := deps.IssueReference(MFAReference{
		UserID:      user.ID,
		ChallengeID: issued.ID,
		Channel:     issued.Channel,
		ExpiresAt:   issued.ExpiresAt,
	})
	if err != nil {
		return nil, err
	}

	deps.MetricInc(deps.Metrics.MFALoginRequired)
	deps.EmitAudit(ctx, deps.Events.MFARequired, true, user.ID, nil, func() map[string]string {
		return map[string]string{
			"challenge_id": issued.ID,
			"channel":      strconv.Itoa(int(issued.Channel)),
		}
	})
	return &LoginOutcome{
		UserID:      user.ID,
		MFARequired: true,
		Reference:   ref,
		ChallengeID: issued.ID,
		Channel:     issued.Channel,
		ExpiresAt:   issued.ExpiresAt,
	}, nil
}

// RunCompleteMFA validates code against the challenge named by reference.
func RunCompleteMFA(ctx context.Context, reference, code string, deps LoginDeps) (*LoginOutcome, error) {
	deps.normalize()
	if deps.ParseReference == nil || deps.ValidateOTP == nil {
		return nil, deps.Errors.EngineNotReady
	}

	ref, err := deps.ParseReference(reference)
	if err != nil || ref == nil || ref.UserID == "" || ref.ChallengeID == "" {
		deps.MetricInc(deps.Metrics.ReferenceInvalid)
		deps.EmitAudit(ctx, deps.Events.MFAFailure, false, "", deps.Errors.ReferenceInvalid, func() map[string]string {
			return map[string]string{"reason": "reference_invalid"}
		})
		return nil, deps.Errors.ReferenceInvalid
	}

	if err := deps.ValidateOTP(ctx, ref.UserID, ref.ChallengeID, code); err != nil {
		deps.MetricInc(deps.Metrics.MFALoginFailure)
		deps.EmitAudit(ctx, deps.Events.MFAFailure, false, ref.UserID, err, func() map[string]string {
			return map[string]string{"challenge_id": ref.ChallengeID}
		})
		return nil, publicAuthError(err, deps.Errors)
	}

	now := deps.Now()
	deps.MetricInc(deps.Metrics.MFALoginSuccess)
	deps.EmitAudit(ctx, deps.Events.MFASuccess, true, ref.UserID, nil, func() map[string]string {
		return map[string]string{"challenge_id": ref.ChallengeID}
	})
	return &LoginOutcome{
		UserID:          ref.UserID,
		ChallengeID:     ref.ChallengeID,
		Channel:         ref.Channel,
		AuthenticatedAt: now,
	}, nil
}
