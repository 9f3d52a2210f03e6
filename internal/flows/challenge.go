package flows

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/MrEthical07/goMFA/internal/stores"
)

// ChallengeMetrics carries metric IDs needed by the OTP lifecycle flows.
type ChallengeMetrics struct {
	OTPIssued          int
	OTPResendThrottled int
	OTPValidated       int
	OTPIncorrect       int
	OTPExpired         int
	OTPReuseRejected   int
	OTPNoChallenge     int
	AccountLocked      int
	AccountUnlocked    int
	DispatchFailure    int
	InvalidAddress     int
}

// ChallengeEvents carries audit event names used by the OTP lifecycle flows.
type ChallengeEvents struct {
	Issued          string
	ResendThrottled string
	ResendDisabled  string
	Validated       string
	Rejected        string
	AccountLocked   string
	AccountUnlocked string
	DispatchFailure string
}

// ChallengeErrors carries host-level sentinel errors used by the OTP lifecycle flows.
type ChallengeErrors struct {
	EngineNotReady    error
	UserNotFound      error
	AccountLocked     error
	ResendThrottled   error
	NoActiveChallenge error
	Expired           error
	AlreadyUsed       error
	IncorrectCode     error
	InvalidAddress    error
	LockUnavailable   error
	Backend           error
}

// ChallengeDeps captures the OTP lifecycle dependencies.
type ChallengeDeps struct {
	TTL              time.Duration
	ExpiredRetention time.Duration
	ResendCooldown   time.Duration
	LockoutThreshold int
	LockoutDuration  time.Duration
	HistoryRetention time.Duration
	MaxCodeAttempts  int

	Now           func() time.Time
	LockUser      func(context.Context, string) (func(), error)
	FindUser      func(context.Context, string) (*UserRecord, error)
	SaveUser      func(context.Context, *UserRecord) error
	LockAccount   func(context.Context, string, time.Time) error
	UnlockAccount func(context.Context, string) error

	GenerateCode   func() (string, error)
	DigestCode     func(userID, code string) string
	DigestEqual    func(a, b string) bool
	NewChallengeID func() string

	GetChallenge    func(context.Context, string) (*stores.Challenge, error)
	PutChallenge    func(context.Context, *stores.Challenge, time.Duration) error
	SwapChallenge   func(context.Context, *stores.Challenge, *stores.Challenge, time.Duration) error
	DeleteChallenge func(context.Context, string) error

	Preflight func(channel uint8, user *UserRecord) error
	Dispatch  func(ctx context.Context, channel uint8, user *UserRecord, code string, ttl time.Duration) error

	MetricInc func(int)
	EmitAudit func(context.Context, string, bool, string, error, func() map[string]string)
	Logger    *slog.Logger

	Metrics ChallengeMetrics
	Events  ChallengeEvents
	Errors  ChallengeErrors
}

func (d *ChallengeDeps) normalize() bool {
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
	if d.MaxCodeAttempts <= 0 {
		d.MaxCodeAttempts = 8
	}
	return d.LockUser != nil &&
		d.FindUser != nil &&
		d.SaveUser != nil &&
		d.LockAccount != nil &&
		d.UnlockAccount != nil &&
		d.GenerateCode != nil &&
		d.DigestCode != nil &&
		d.DigestEqual != nil &&
		d.NewChallengeID != nil &&
		d.GetChallenge != nil &&
		d.PutChallenge != nil &&
		d.SwapChallenge != nil &&
		d.DeleteChallenge != nil &&
		d.Preflight != nil &&
		d.Dispatch != nil
}

func (d *ChallengeDeps) backend(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, d.Errors.Backend) {
		return err
	}
	return fmt.Errorf("%w: %v", d.Errors.Backend, err)
}

// withUser runs fn under the per-user lock with a fresh copy of the user.
func withUser(ctx context.Context, userID string, deps *ChallengeDeps, fn func(user *UserRecord, now time.Time) error) error {
	if userID == "" {
		return deps.Errors.UserNotFound
	}
	release, err := deps.LockUser(ctx, userID)
	if err != nil {
		return fmt.Errorf("%w: %v", deps.Errors.LockUnavailable, err)
	}
	defer release()

	user, err := deps.FindUser(ctx, userID)
	if err != nil {
		return err
	}
	if user == nil {
		return deps.Errors.UserNotFound
	}
	return fn(user, deps.Now())
}

// lockGate fails while the lock is active and lifts an elapsed lock. Must run
// under the user lock.
func lockGate(ctx context.Context, user *UserRecord, now time.Time, deps *ChallengeDeps) error {
	if !user.Locked {
		return nil
	}
	if user.lockActive(now) {
		return deps.Errors.AccountLocked
	}

	if err := deps.UnlockAccount(ctx, user.ID); err != nil {
		return deps.backend(err)
	}
	user.Locked = false
	user.LockExpiresAt = time.Time{}
	user.FailedOTPCount = 0
	if err := deps.SaveUser(ctx, user); err != nil {
		return deps.backend(err)
	}

	deps.MetricInc(deps.Metrics.AccountUnlocked)
	deps.EmitAudit(ctx, deps.Events.AccountUnlocked, true, user.ID, nil, func() map[string]string {
		return map[string]string{"reason": "lock_expired"}
	})
	return nil
}

// RunLockGate evaluates the account lock for userID, lifting it when its
// expiry has passed.
func RunLockGate(ctx context.Context, userID string, deps ChallengeDeps) error {
	if !deps.normalize() {
		return deps.Errors.EngineNotReady
	}
	return withUser(ctx, userID, &deps, func(user *UserRecord, now time.Time) error {
		return lockGate(ctx, user, now, &deps)
	})
}

// RunIssueChallenge creates a new pending challenge for userID on channel and
// dispatches its code. Any previous challenge is replaced.
func RunIssueChallenge(ctx context.Context, userID string, channel uint8, deps ChallengeDeps) (*IssuedChallenge, error) {
	if !deps.normalize() {
		return nil, deps.Errors.EngineNotReady
	}

	var (
		issued *IssuedChallenge
		user   *UserRecord
	)
	err := withUser(ctx, userID, &deps, func(u *UserRecord, now time.Time) error {
		if err := lockGate(ctx, u, now, &deps); err != nil {
			deps.EmitAudit(ctx, deps.Events.Rejected, false, userID, err, func() map[string]string {
				return map[string]string{"stage": "issue"}
			})
			return err
		}

		if now.Before(u.ResendDisabledUntil) {
			deps.MetricInc(deps.Metrics.OTPResendThrottled)
			retryAfter := u.ResendDisabledUntil.Sub(now)
			deps.EmitAudit(ctx, deps.Events.ResendThrottled, false, userID, deps.Errors.ResendThrottled, func() map[string]string {
				return map[string]string{"retry_after_ms": strconv.FormatInt(retryAfter.Milliseconds(), 10)}
			})
			return deps.Errors.ResendThrottled
		}

		if err := deps.Preflight(channel, u); err != nil {
			if errors.Is(err, deps.Errors.InvalidAddress) {
				deps.MetricInc(deps.Metrics.InvalidAddress)
			}
			deps.EmitAudit(ctx, deps.Events.DispatchFailure, false, userID, err, func() map[string]string {
				return map[string]string{"stage": "preflight"}
			})
			return err
		}

		code, digest, err := generateUnused(u, &deps)
		if err != nil {
			return err
		}

		record := &stores.Challenge{
			ID:        deps.NewChallengeID(),
			UserID:    userID,
			Digest:    digest,
			Channel:   channel,
			State:     stores.StatePending,
			IssuedAt:  now,
			ExpiresAt: now.Add(deps.TTL),
		}
		if err := deps.PutChallenge(ctx, record, deps.TTL+deps.ExpiredRetention); err != nil {
			return deps.backend(err)
		}

		u.ResendDisabledUntil = now.Add(deps.ResendCooldown)
		u.LastChallengeAt = now
		u.FailedOTPCount = 0
		u.UsedOTPs = pruneHistory(u.UsedOTPs, now, deps.HistoryRetention)
		if err := deps.SaveUser(ctx, u); err != nil {
			_ = deps.DeleteChallenge(ctx, userID)
			return deps.backend(err)
		}

		issued = &IssuedChallenge{
			ID:        record.ID,
			UserID:    userID,
			Code:      code,
			Channel:   channel,
			IssuedAt:  record.IssuedAt,
			ExpiresAt: record.ExpiresAt,
		}
		user = u.Clone()
		return nil
	})
	if err != nil {
		return nil, err
	}

	// Delivery happens outside the user lock so a slow transport does not
	// stall concurrent validation for the same user.
	if err := deps.Dispatch(ctx, channel, user, issued.Code, deps.TTL); err != nil {
		deps.MetricInc(deps.Metrics.DispatchFailure)
		deps.Logger.WarnContext(ctx, "otp dispatch failed", "user_id", userID, "channel", channel, "error", err)
		deps.EmitAudit(ctx, deps.Events.DispatchFailure, false, userID, err, func() map[string]string {
			return map[string]string{"stage": "send", "challenge_id": issued.ID}
		})
		revokeChallenge(ctx, userID, issued.ID, &deps)
		return nil, err
	}

	deps.MetricInc(deps.Metrics.OTPIssued)
	deps.EmitAudit(ctx, deps.Events.Issued, true, userID, nil, func() map[string]string {
		return map[string]string{
			"challenge_id": issued.ID,
			"channel":      strconv.Itoa(int(channel)),
			"expires_at":   issued.ExpiresAt.UTC().Format(time.RFC3339),
		}
	})
	return issued, nil
}

// revokeChallenge deletes the challenge if it is still the one identified by
// challengeID. The resend cooldown is left in place.
func revokeChallenge(ctx context.Context, userID, challengeID string, deps *ChallengeDeps) {
	err := withUser(ctx, userID, deps, func(_ *UserRecord, _ time.Time) error {
		current, err := deps.GetChallenge(ctx, userID)
		if err != nil {
			return err
		}
		if current.ID != challengeID || current.State != stores.StatePending {
			return nil
		}
		return deps.DeleteChallenge(ctx, userID)
	})
	if err != nil && !errors.Is(err, stores.ErrChallengeNotFound) {
		deps.Logger.WarnContext(ctx, "otp challenge revoke failed", "user_id", userID, "error", err)
	}
}

func generateUnused(user *UserRecord, deps *ChallengeDeps) (string, string, error) {
	for i := 0; i < deps.MaxCodeAttempts; i++ {
		code, err := deps.GenerateCode()
		if err != nil {
			return "", "", err
		}
		digest := deps.DigestCode(user.ID, code)
		if !inHistory(user.UsedOTPs, digest, deps.DigestEqual) {
			return code, digest, nil
		}
	}
	return "", "", errors.New("otp generation exhausted attempts")
}

// RunValidateOTP checks code against the pending challenge of userID. When
// challengeID is non-empty the pending challenge must carry that ID.
//
// Check order: lock, reuse history, pending state, expiry, code.
func RunValidateOTP(ctx context.Context, userID, challengeID, code string, deps ChallengeDeps) error {
	if !deps.normalize() {
		return deps.Errors.EngineNotReady
	}

	return withUser(ctx, userID, &deps, func(user *UserRecord, now time.Time) error {
		reject := func(err error, reason string) error {
			deps.EmitAudit(ctx, deps.Events.Rejected, false, userID, err, func() map[string]string {
				return map[string]string{"stage": "validate", "reason": reason}
			})
			return err
		}

		if err := lockGate(ctx, user, now, &deps); err != nil {
			return reject(err, "locked")
		}

		digest := deps.DigestCode(userID, code)
		if inHistory(user.UsedOTPs, digest, deps.DigestEqual) {
			deps.MetricInc(deps.Metrics.OTPReuseRejected)
			return reject(deps.Errors.AlreadyUsed, "already_used")
		}

		record, err := deps.GetChallenge(ctx, userID)
		if err != nil {
			if errors.Is(err, stores.ErrChallengeNotFound) {
				deps.MetricInc(deps.Metrics.OTPNoChallenge)
				return reject(deps.Errors.NoActiveChallenge, "no_challenge")
			}
			return deps.backend(err)
		}
		if record.State != stores.StatePending || (challengeID != "" && record.ID != challengeID) {
			deps.MetricInc(deps.Metrics.OTPNoChallenge)
			return reject(deps.Errors.NoActiveChallenge, "not_pending")
		}

		if now.After(record.ExpiresAt) {
			next := record.Clone()
			next.State = stores.StateExpired
			if err := deps.SwapChallenge(ctx, record, next, deps.ExpiredRetention); err != nil &&
				!errors.Is(err, stores.ErrChallengeConflict) && !errors.Is(err, stores.ErrChallengeNotFound) {
				return deps.backend(err)
			}
			deps.MetricInc(deps.Metrics.OTPExpired)
			return reject(deps.Errors.Expired, "expired")
		}

		if !deps.DigestEqual(digest, record.Digest) {
			return recordIncorrect(ctx, user, now, &deps, reject)
		}

		next := record.Clone()
		next.State = stores.StateConsumed
		retain := record.ExpiresAt.Add(deps.ExpiredRetention).Sub(now)
		if err := deps.SwapChallenge(ctx, record, next, retain); err != nil {
			if errors.Is(err, stores.ErrChallengeConflict) || errors.Is(err, stores.ErrChallengeNotFound) {
				deps.MetricInc(deps.Metrics.OTPNoChallenge)
				return reject(deps.Errors.NoActiveChallenge, "lost_race")
			}
			return deps.backend(err)
		}

		user.UsedOTPs = append(pruneHistory(user.UsedOTPs, now, deps.HistoryRetention), UsedOTP{
			Digest:     digest,
			IssuedAt:   record.IssuedAt,
			ConsumedAt: now,
		})
		user.FailedOTPCount = 0
		if err := deps.SaveUser(ctx, user); err != nil {
			// The challenge is already consumed; failing here keeps the code spent.
			return deps.backend(err)
		}

		deps.MetricInc(deps.Metrics.OTPValidated)
		deps.EmitAudit(ctx, deps.Events.Validated, true, userID, nil, func() map[string]string {
			return map[string]string{"challenge_id": record.ID}
		})
		return nil
	})
}

func recordIncorrect(
	ctx context.Context,
	user *UserRecord,
	now time.Time,
	deps *ChallengeDeps,
	reject func(error, string) error,
) error {
	user.FailedOTPCount++
	if err := deps.SaveUser(ctx, user); err != nil {
		return deps.backend(err)
	}
	deps.MetricInc(deps.Metrics.OTPIncorrect)

	if deps.LockoutThreshold <= 0 || user.FailedOTPCount < deps.LockoutThreshold {
		return reject(deps.Errors.IncorrectCode, "incorrect_code")
	}

	var until time.Time
	if deps.LockoutDuration > 0 {
		until = now.Add(deps.LockoutDuration)
	}
	if err := deps.LockAccount(ctx, user.ID, until); err != nil {
		return deps.backend(err)
	}
	user.Locked = true
	user.LockExpiresAt = until
	if err := deps.DeleteChallenge(ctx, user.ID); err != nil {
		deps.Logger.WarnContext(ctx, "otp challenge delete after lockout failed", "user_id", user.ID, "error", err)
	}

	deps.MetricInc(deps.Metrics.AccountLocked)
	deps.EmitAudit(ctx, deps.Events.AccountLocked, true, user.ID, deps.Errors.AccountLocked, func() map[string]string {
		meta := map[string]string{
			"reason":    "otp_failures",
			"threshold": strconv.Itoa(deps.LockoutThreshold),
		}
		if !until.IsZero() {
			meta["until"] = until.UTC().Format(time.RFC3339)
		}
		return meta
	})

	err := errors.Join(deps.Errors.IncorrectCode, deps.Errors.AccountLocked)
	return reject(err, "lockout")
}

// RunDisableResend pushes the resend cooldown to now + ResendCooldown. An
// existing later deadline is kept.
func RunDisableResend(ctx context.Context, userID string, deps ChallengeDeps) error {
	if !deps.normalize() {
		return deps.Errors.EngineNotReady
	}
	return withUser(ctx, userID, &deps, func(user *UserRecord, now time.Time) error {
		until := now.Add(deps.ResendCooldown)
		if user.ResendDisabledUntil.After(until) {
			return nil
		}
		user.ResendDisabledUntil = until
		if err := deps.SaveUser(ctx, user); err != nil {
			return deps.backend(err)
		}
		deps.EmitAudit(ctx, deps.Events.ResendDisabled, true, userID, nil, func() map[string]string {
			return map[string]string{"until": until.UTC().Format(time.RFC3339)}
		})
		return nil
	})
}

// RunUnlock lifts the account lock and clears the failure count.
func RunUnlock(ctx context.Context, userID string, deps ChallengeDeps) error {
	if !deps.normalize() {
		return deps.Errors.EngineNotReady
	}
	return withUser(ctx, userID, &deps, func(user *UserRecord, _ time.Time) error {
		if err := deps.UnlockAccount(ctx, userID); err != nil {
			return deps.backend(err)
		}
		wasLocked := user.Locked
		user.Locked = false
		user.LockExpiresAt = time.Time{}
		user.FailedOTPCount = 0
		if err := deps.SaveUser(ctx, user); err != nil {
			return deps.backend(err)
		}
		if wasLocked {
			deps.MetricInc(deps.Metrics.AccountUnlocked)
		}
		deps.EmitAudit(ctx, deps.Events.AccountUnlocked, true, userID, nil, func() map[string]string {
			return map[string]string{"reason": "manual", "was_locked": strconv.FormatBool(wasLocked)}
		})
		return nil
	})
}

// RunChallengeStatus reports the lifecycle state for userID without
// mutating anything.
func RunChallengeStatus(ctx context.Context, userID string, deps ChallengeDeps) (ChallengeStatus, int, error) {
	if !deps.normalize() {
		return StatusNone, 0, deps.Errors.EngineNotReady
	}
	user, err := deps.FindUser(ctx, userID)
	if err != nil {
		return StatusNone, 0, err
	}
	if user == nil {
		return StatusNone, 0, deps.Errors.UserNotFound
	}
	now := deps.Now()
	if user.lockActive(now) {
		return StatusLockedOut, user.FailedOTPCount, nil
	}

	record, err := deps.GetChallenge(ctx, userID)
	if err != nil {
		if errors.Is(err, stores.ErrChallengeNotFound) {
			return StatusNone, user.FailedOTPCount, nil
		}
		return StatusNone, 0, deps.backend(err)
	}
	switch record.State {
	case stores.StateConsumed:
		return StatusConsumed, user.FailedOTPCount, nil
	case stores.StateExpired:
		return StatusExpired, user.FailedOTPCount, nil
	default:
		if now.After(record.ExpiresAt) {
			return StatusExpired, user.FailedOTPCount, nil
		}
		return StatusPending, user.FailedOTPCount, nil
	}
}
