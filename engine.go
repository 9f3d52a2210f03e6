package goMFA

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	internalaudit "github.com/MrEthical07/goMFA/internal/audit"
	"github.com/MrEthical07/goMFA/internal/dispatch"
	internalflows "github.com/MrEthical07/goMFA/internal/flows"
	"github.com/MrEthical07/goMFA/internal/locks"
	"github.com/MrEthical07/goMFA/internal/otp"
	"github.com/MrEthical07/goMFA/internal/stores"
	"github.com/MrEthical07/goMFA/jwt"
	"github.com/MrEthical07/goMFA/password"
)

// Engine defines a public type used by goMFA APIs.
//
// Engine instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type Engine struct {
	config     Config
	repo       UserRepository
	clock      Clock
	random     io.Reader
	logger     *slog.Logger
	validate   *validator.Validate
	ownedRedis redis.UniversalClient

	challenges stores.ChallengeStore
	locker     locks.Locker
	digester   *otp.Digester
	refs       *jwt.Manager
	argon      *password.Argon2
	verifier   *password.Verifier
	policy     password.Policy
	dispatcher *dispatch.Dispatcher
	audit      *internalaudit.Dispatcher
	metrics    *Metrics

	flows internalflows.Service
}

// Close flushes the audit dispatcher and closes a Redis client that Build
// dialed itself. A client passed to WithRedis is left open.
func (e *Engine) Close() {
	if e == nil {
		return
	}
	if e.audit != nil {
		e.audit.Close()
	}
	if e.ownedRedis != nil {
		if err := e.ownedRedis.Close(); err != nil {
			e.logger.Warn("gomfa: redis close failed", "error", err)
		}
	}
}

// AuditDropped returns the number of audit events dropped because the buffer was full.
func (e *Engine) AuditDropped() uint64 {
	if e == nil || e.audit == nil {
		return 0
	}
	return e.audit.Dropped()
}

// MetricsSnapshot returns a point-in-time copy of all counters and histograms.
func (e *Engine) MetricsSnapshot() MetricsSnapshot {
	if e == nil || e.metrics == nil {
		return MetricsSnapshot{
			Counters:   map[MetricID]uint64{},
			Histograms: map[MetricID][]uint64{},
		}
	}
	return e.metrics.Snapshot()
}

// ValidateAddress reports whether address is a deliverable destination for
// ch. It performs no delivery.
func (e *Engine) ValidateAddress(ch Channel, address string) error {
	if !e.ready() {
		return ErrEngineNotReady
	}
	var r dispatch.Recipient
	switch ch {
	case ChannelEmail:
		r.Email = address
	case ChannelMobile:
		r.Phone = address
	default:
		return ErrInvalidChannel
	}
	_, err := e.dispatcher.Address(ch, r)
	return err
}

func (e *Engine) ready() bool {
	return e != nil && e.flows.Initialized()
}

func (e *Engine) metricInc(id MetricID) {
	if e == nil || e.metrics == nil {
		return
	}
	e.metrics.Inc(id)
}

func (e *Engine) observeDispatch(d time.Duration) {
	e.metrics.Observe(MetricDispatchLatency, d)
}

func (e *Engine) backend(err error) error {
	return fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
}

/*
====================================
REPOSITORY ADAPTERS
====================================
*/

func (e *Engine) findUserByID(ctx context.Context, id string) (*internalflows.UserRecord, error) {
	user, err := e.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return nil, nil
		}
		return nil, e.backend(err)
	}
	return toUserRecord(user), nil
}

func (e *Engine) findUserByIdentifier(ctx context.Context, identifier string) (*internalflows.UserRecord, error) {
	user, err := e.repo.FindByIdentifier(ctx, identifier)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return nil, nil
		}
		return nil, e.backend(err)
	}
	return toUserRecord(user), nil
}

func (e *Engine) saveUser(ctx context.Context, user *internalflows.UserRecord) error {
	return e.repo.Save(ctx, fromUserRecord(user))
}

func (e *Engine) lockUser(ctx context.Context, userID string) (func(), error) {
	return e.locker.Lock(ctx, userID)
}

func recipientOf(user *internalflows.UserRecord) dispatch.Recipient {
	return dispatch.Recipient{Email: user.Email, Phone: user.Phone}
}

/*
====================================
FLOW WIRING
====================================
*/

func (e *Engine) emitFlowAudit(ctx context.Context, event string, success bool, userID string, err error, meta func() map[string]string) {
	e.emitAudit(ctx, event, success, userID, err, meta)
}

func (e *Engine) flowMetricInc(id int) {
	e.metricInc(MetricID(id))
}

func (e *Engine) challengeFlowDeps() internalflows.ChallengeDeps {
	return internalflows.ChallengeDeps{
		TTL:              e.config.OTP.TTL,
		ExpiredRetention: e.config.OTP.ExpiredRetention,
		ResendCooldown:   e.config.Resend.Cooldown,
		LockoutThreshold: e.config.Lockout.Threshold,
		LockoutDuration:  e.config.Lockout.Duration,
		HistoryRetention: e.config.OTP.HistoryRetention,

		Now:           e.clock.Now,
		LockUser:      e.lockUser,
		FindUser:      e.findUserByID,
		SaveUser:      e.saveUser,
		LockAccount:   e.repo.Lock,
		UnlockAccount: e.repo.Unlock,

		GenerateCode: func() (string, error) {
			return otp.Generate(e.random, e.config.OTP.Digits)
		},
		DigestCode:     e.digester.Digest,
		DigestEqual:    otp.Equal,
		NewChallengeID: uuid.NewString,

		GetChallenge:    e.challenges.Get,
		PutChallenge:    e.challenges.Put,
		SwapChallenge:   e.challenges.Swap,
		DeleteChallenge: e.challenges.Delete,

		Preflight: func(channel uint8, user *internalflows.UserRecord) error {
			return e.dispatcher.Preflight(Channel(channel), recipientOf(user))
		},
		Dispatch: func(ctx context.Context, channel uint8, user *internalflows.UserRecord, code string, ttl time.Duration) error {
			return e.dispatcher.Send(ctx, Channel(channel), recipientOf(user), code, ttl)
		},

		MetricInc: e.flowMetricInc,
		EmitAudit: e.emitFlowAudit,
		Logger:    e.logger,

		Metrics: internalflows.ChallengeMetrics{
			OTPIssued:          int(MetricOTPIssued),
			OTPResendThrottled: int(MetricOTPResendThrottled),
			OTPValidated:       int(MetricOTPValidated),
			OTPIncorrect:       int(MetricOTPIncorrect),
			OTPExpired:         int(MetricOTPExpired),
			OTPReuseRejected:   int(MetricOTPReuseRejected),
			OTPNoChallenge:     int(MetricOTPNoChallenge),
			AccountLocked:      int(MetricAccountLocked),
			AccountUnlocked:    int(MetricAccountUnlocked),
			DispatchFailure:    int(MetricDispatchFailure),
			InvalidAddress:     int(MetricInvalidAddress),
		},
		Events: internalflows.ChallengeEvents{
			Issued:          auditEventOTPIssued,
			ResendThrottled: auditEventOTPResendThrottled,
			ResendDisabled:  auditEventOTPResendDisabled,
			Validated:       auditEventOTPValidated,
			Rejected:        auditEventOTPRejected,
			AccountLocked:   auditEventAccountLocked,
			AccountUnlocked: auditEventAccountUnlocked,
			DispatchFailure: auditEventDispatchFailure,
		},
		Errors: internalflows.ChallengeErrors{
			EngineNotReady:    ErrEngineNotReady,
			UserNotFound:      ErrUserNotFound,
			AccountLocked:     ErrAccountLocked,
			ResendThrottled:   ErrResendThrottled,
			NoActiveChallenge: ErrNoActiveChallenge,
			Expired:           ErrOTPExpired,
			AlreadyUsed:       ErrOTPAlreadyUsed,
			IncorrectCode:     ErrIncorrectCode,
			InvalidAddress:    ErrInvalidAddress,
			LockUnavailable:   ErrLockUnavailable,
			Backend:           ErrBackendUnavailable,
		},
	}
}

// loginFlowDeps leaves LockGate, IssueChallenge and ValidateOTP unset; the
// flow service binds them to its own challenge flows.
func (e *Engine) loginFlowDeps() internalflows.LoginDeps {
	return internalflows.LoginDeps{
		MFARequired:    e.config.MFA.Required,
		DefaultChannel: uint8(e.config.MFA.DefaultChannel),

		Now: e.clock.Now,
		ValidateInput: func(identifier, secret string) error {
			return e.validate.Struct(Credentials{Identifier: identifier, Secret: secret})
		},
		FindUserByIdentifier: e.findUserByIdentifier,
		VerifySecret:         e.verifier.Verify,
		BurnVerify:           e.verifier.Burn,

		IssueReference: e.issueReference,
		ParseReference: e.parseReference,

		MetricInc: e.flowMetricInc,
		EmitAudit: e.emitFlowAudit,
		Logger:    e.logger,

		Metrics: internalflows.LoginMetrics{
			LoginSuccess:     int(MetricLoginSuccess),
			LoginFailure:     int(MetricLoginFailure),
			LoginLocked:      int(MetricLoginLocked),
			MFALoginRequired: int(MetricMFALoginRequired),
			MFALoginSuccess:  int(MetricMFALoginSuccess),
			MFALoginFailure:  int(MetricMFALoginFailure),
			ReferenceInvalid: int(MetricMFAReferenceInvalid),
		},
		Events: internalflows.LoginEvents{
			LoginSuccess: auditEventLoginSuccess,
			LoginFailure: auditEventLoginFailure,
			MFARequired:  auditEventMFARequired,
			MFASuccess:   auditEventMFAComplete,
			MFAFailure:   auditEventMFAFailure,
		},
		Errors: internalflows.LoginErrors{
			EngineNotReady:     ErrEngineNotReady,
			InvalidCredentials: ErrInvalidCredentials,
			UserNotFound:       ErrUserNotFound,
			AccountLocked:      ErrAccountLocked,
			ReferenceInvalid:   ErrMFAReferenceInvalid,
			Backend:            ErrBackendUnavailable,
		},
	}
}

func (e *Engine) issueReference(ref internalflows.MFAReference) (string, error) {
	return e.refs.Issue(jwt.Reference{
		UserID:      ref.UserID,
		ChallengeID: ref.ChallengeID,
		Channel:     ref.Channel,
		ExpiresAt:   ref.ExpiresAt.Add(e.config.MFA.ReferenceGrace),
	})
}

func (e *Engine) parseReference(token string) (*internalflows.MFAReference, error) {
	ref, err := e.refs.Parse(token)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMFAReferenceInvalid, err)
	}
	return &internalflows.MFAReference{
		UserID:      ref.UserID,
		ChallengeID: ref.ChallengeID,
		Channel:     ref.Channel,
		ExpiresAt:   ref.ExpiresAt,
	}, nil
}
