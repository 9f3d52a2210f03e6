package goMFA

import (
	"context"
	"time"
)

// IssueChallenge opens a new OTP challenge for userID and delivers its code
// over ch. Any pending challenge for the user is replaced.
//
// Errors: ErrAccountLocked, ErrResendThrottled, ErrInvalidAddress,
// ErrChannelNotConfigured, ErrTransportFailure (retryable, challenge revoked,
// cooldown kept), ErrLockUnavailable, ErrBackendUnavailable.
func (e *Engine) IssueChallenge(ctx context.Context, userID string, ch Channel) (*OTPChallenge, error) {
	if !e.ready() {
		return nil, ErrEngineNotReady
	}
	if !ch.Valid() {
		return nil, ErrInvalidChannel
	}

	issued, err := e.flows.IssueChallenge(ctx, userID, uint8(ch))
	if err != nil {
		return nil, err
	}
	return &OTPChallenge{
		ID:        issued.ID,
		UserID:    issued.UserID,
		Code:      issued.Code,
		Channel:   Channel(issued.Channel),
		IssuedAt:  issued.IssuedAt,
		ExpiresAt: issued.ExpiresAt,
		State:     Pending,
	}, nil
}

// Validate checks code against the pending challenge of userID and consumes
// it on success. Exactly one concurrent caller can consume a given challenge.
//
// Checks run in order: account lock, reuse history (ErrOTPAlreadyUsed),
// pending challenge (ErrNoActiveChallenge), expiry (ErrOTPExpired), code
// (ErrIncorrectCode). The attempt that reaches the lockout threshold returns
// an error matching both ErrIncorrectCode and ErrAccountLocked.
func (e *Engine) Validate(ctx context.Context, userID, code string) error {
	if !e.ready() {
		return ErrEngineNotReady
	}
	start := time.Now()
	defer func() { e.metrics.Observe(MetricValidateLatency, time.Since(start)) }()

	return e.flows.ValidateOTP(ctx, userID, "", code)
}

// ResendCooldown is the configured minimum gap between two challenges.
func (e *Engine) ResendCooldown() time.Duration {
	if e == nil {
		return 0
	}
	return e.config.Resend.Cooldown
}

// DisableResend blocks new challenges for userID until now + Resend.Cooldown.
// A later existing deadline is kept.
func (e *Engine) DisableResend(ctx context.Context, userID string) error {
	if !e.ready() {
		return ErrEngineNotReady
	}
	return e.flows.DisableResend(ctx, userID)
}

// UnlockUser lifts an account lock and resets the failed-code counter.
func (e *Engine) UnlockUser(ctx context.Context, userID string) error {
	if !e.ready() {
		return ErrEngineNotReady
	}
	return e.flows.Unlock(ctx, userID)
}

// ChallengeStatus reports the OTP lifecycle state of userID. It does not
// change any state; an elapsed lock is reported as whatever challenge state
// remains.
func (e *Engine) ChallengeStatus(ctx context.Context, userID string) (ChallengeState, error) {
	if !e.ready() {
		return NoChallenge, ErrEngineNotReady
	}
	status, _, err := e.flows.ChallengeStatus(ctx, userID)
	if err != nil {
		return NoChallenge, err
	}
	return toChallengeState(status), nil
}

// FailedOTPCount returns the consecutive incorrect-code count of userID.
func (e *Engine) FailedOTPCount(ctx context.Context, userID string) (int, error) {
	if !e.ready() {
		return 0, ErrEngineNotReady
	}
	_, count, err := e.flows.ChallengeStatus(ctx, userID)
	return count, err
}
