package goMFA

import (
	"context"
	"errors"

	"github.com/google/uuid"
)

const (
	auditEventLoginSuccess       = "login_success"
	auditEventLoginFailure       = "login_failure"
	auditEventMFARequired        = "mfa_required"
	auditEventMFAComplete        = "mfa_complete"
	auditEventMFAFailure         = "mfa_failure"
	auditEventOTPIssued          = "otp_issued"
	auditEventOTPResendThrottled = "otp_resend_throttled"
	auditEventOTPResendDisabled  = "otp_resend_disabled"
	auditEventOTPValidated       = "otp_validated"
	auditEventOTPRejected        = "otp_rejected"
	auditEventDispatchFailure    = "dispatch_failure"
	auditEventAccountLocked      = "account_locked"
	auditEventAccountUnlocked    = "account_unlocked"
	auditEventPasswordRejected   = "password_policy_rejected"
)

// AuditErrorCode is the stable error label written to AuditEvent.Error.
type AuditErrorCode string

const (
	auditErrInvalidCredentials AuditErrorCode = "invalid_credentials"
	auditErrUserNotFound       AuditErrorCode = "user_not_found"
	auditErrAccountLocked      AuditErrorCode = "account_locked"
	auditErrResendThrottled    AuditErrorCode = "resend_throttled"
	auditErrNoChallenge        AuditErrorCode = "no_active_challenge"
	auditErrOTPExpired         AuditErrorCode = "otp_expired"
	auditErrOTPReplay          AuditErrorCode = "otp_already_used"
	auditErrIncorrectCode      AuditErrorCode = "incorrect_code"
	auditErrInvalidAddress     AuditErrorCode = "invalid_address"
	auditErrTransportFailure   AuditErrorCode = "transport_failure"
	auditErrChannel            AuditErrorCode = "channel_unavailable"
	auditErrMFAInvalid         AuditErrorCode = "mfa_invalid"
	auditErrPasswordPolicy     AuditErrorCode = "password_policy"
	auditErrLockUnavailable    AuditErrorCode = "lock_unavailable"
	auditErrUnavailable        AuditErrorCode = "backend_unavailable"
	auditErrInternal           AuditErrorCode = "internal_error"
)

func (e *Engine) emitAudit(
	ctx context.Context,
	eventType string,
	success bool,
	userID string,
	err error,
	metadataBuilder func() map[string]string,
) {
	if e == nil || e.audit == nil {
		return
	}

	var metadata map[string]string
	if metadataBuilder != nil {
		metadata = metadataBuilder()
	}

	event := AuditEvent{
		ID:        uuid.NewString(),
		Timestamp: e.clock.Now().UTC(),
		EventType: eventType,
		UserID:    userID,
		IP:        clientIPFromContext(ctx),
		UserAgent: userAgentFromContext(ctx),
		RequestID: requestIDFromContext(ctx),
		Success:   success,
		Metadata:  metadata,
	}
	if code := auditErrorCode(err); code != "" {
		event.Error = string(code)
	}

	e.audit.Emit(ctx, event)
}

// auditErrorCode checks AccountLocked before IncorrectCode so the final
// failing attempt is labelled as the lockout.
func auditErrorCode(err error) AuditErrorCode {
	if err == nil {
		return ""
	}

	switch {
	case errors.Is(err, ErrAccountLocked):
		return auditErrAccountLocked
	case errors.Is(err, ErrInvalidCredentials):
		return auditErrInvalidCredentials
	case errors.Is(err, ErrUserNotFound):
		return auditErrUserNotFound
	case errors.Is(err, ErrResendThrottled):
		return auditErrResendThrottled
	case errors.Is(err, ErrNoActiveChallenge):
		return auditErrNoChallenge
	case errors.Is(err, ErrOTPExpired):
		return auditErrOTPExpired
	case errors.Is(err, ErrOTPAlreadyUsed):
		return auditErrOTPReplay
	case errors.Is(err, ErrIncorrectCode):
		return auditErrIncorrectCode
	case errors.Is(err, ErrInvalidAddress):
		return auditErrInvalidAddress
	case errors.Is(err, ErrTransportFailure):
		return auditErrTransportFailure
	case errors.Is(err, ErrChannelNotConfigured),
		errors.Is(err, ErrInvalidChannel):
		return auditErrChannel
	case errors.Is(err, ErrMFAReferenceInvalid):
		return auditErrMFAInvalid
	case errors.Is(err, ErrPasswordPolicy):
		return auditErrPasswordPolicy
	case errors.Is(err, ErrLockUnavailable):
		return auditErrLockUnavailable
	case errors.Is(err, ErrBackendUnavailable):
		return auditErrUnavailable
	default:
		return auditErrInternal
	}
}
