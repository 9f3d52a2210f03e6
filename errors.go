package goMFA

import (
	"errors"

	"github.com/MrEthical07/goMFA/internal/dispatch"
	"github.com/MrEthical07/goMFA/password"
)

var (
	// ErrInvalidCredentials is returned when the identifier/secret pair does not verify.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrUserNotFound is the internal outcome for an unknown user. Login-facing
	// methods report it as ErrInvalidCredentials.
	ErrUserNotFound = errors.New("user not found")
	// ErrAccountLocked is returned while the account is locked.
	ErrAccountLocked = errors.New("account locked")
	// ErrResendThrottled is returned when a challenge is requested inside the resend cooldown.
	ErrResendThrottled = errors.New("otp resend throttled")
	// ErrNoActiveChallenge is returned when the user has no pending challenge.
	ErrNoActiveChallenge = errors.New("no active otp challenge")
	// ErrOTPExpired is returned when the pending challenge outlived its TTL.
	ErrOTPExpired = errors.New("otp expired")
	// ErrOTPAlreadyUsed is returned when a previously consumed code is submitted again.
	ErrOTPAlreadyUsed = errors.New("otp already used")
	// ErrIncorrectCode is returned when the submitted code does not match the pending challenge.
	ErrIncorrectCode = errors.New("incorrect otp code")
	// ErrInvalidAddress is returned when the destination for a channel is malformed or missing.
	ErrInvalidAddress = dispatch.ErrInvalidAddress
	// ErrTransportFailure is returned when a transport fails or times out. It is the only retryable kind.
	ErrTransportFailure = dispatch.ErrTransportFailure
	// ErrChannelNotConfigured is returned when no transport is registered for a channel.
	ErrChannelNotConfigured = dispatch.ErrChannelNotConfigured
	// ErrMFAReferenceInvalid is returned when a pending-MFA reference fails verification.
	ErrMFAReferenceInvalid = errors.New("mfa reference invalid")
	// ErrLockUnavailable is returned when the per-user lock cannot be acquired in time.
	ErrLockUnavailable = errors.New("user lock unavailable")
	// ErrBackendUnavailable wraps failures of the user repository or challenge store.
	ErrBackendUnavailable = errors.New("authentication backend unavailable")
	// ErrEngineNotReady is returned by a zero-value or closed Engine.
	ErrEngineNotReady = errors.New("engine not initialized")
	// ErrBuilderUsed is returned when Build is called twice.
	ErrBuilderUsed = errors.New("builder already used")
	// ErrInvalidChannel is returned for an unknown Channel value.
	ErrInvalidChannel = dispatch.ErrInvalidChannel

	// ErrPasswordPolicy matches any password policy violation.
	ErrPasswordPolicy = password.ErrPolicy
	// ErrPasswordTooShort matches the minimum-length rule.
	ErrPasswordTooShort = password.ErrTooShort
	// ErrPasswordMissingClass matches the character-class rule.
	ErrPasswordMissingClass = password.ErrMissingCharacterClass
	// ErrPasswordContainsIdentifier matches the username/email rule.
	ErrPasswordContainsIdentifier = password.ErrContainsIdentifier
)

// IsRetryable reports whether err may succeed if the caller retries later.
// Only transport failures qualify; every other kind needs a new attempt or is final.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrTransportFailure)
}
