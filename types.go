package goMFA

import (
	"context"
	"io"
	"log/slog"
	"time"

	internalaudit "github.com/MrEthical07/goMFA/internal/audit"
	"github.com/MrEthical07/goMFA/internal/dispatch"
	"github.com/MrEthical07/goMFA/internal/flows"
)

// Channel selects the delivery route of an OTP.
type Channel = dispatch.Channel

const (
	// ChannelEmail delivers codes to User.Email.
	ChannelEmail = dispatch.ChannelEmail
	// ChannelMobile delivers codes to User.Phone (E.164).
	ChannelMobile = dispatch.ChannelMobile
)

// ParseChannel maps "email", "mobile" or "sms" to a Channel.
func ParseChannel(s string) (Channel, error) {
	return dispatch.ParseChannel(s)
}

// Message is the rendered notification handed to a [Transport].
type Message = dispatch.Message

// Transport delivers a message to an address. Implementations must honor ctx;
// the engine abandons calls that outlive Dispatch.Timeout either way.
type Transport = dispatch.Transport

// TransportFunc adapts a plain function to [Transport].
type TransportFunc = dispatch.TransportFunc

// UsedOTP is one entry of a user's reuse history. Digest is a keyed hash of
// the code, never the code itself.
type UsedOTP struct {
	Digest     string    `json:"digest"`
	IssuedAt   time.Time `json:"issued_at"`
	ConsumedAt time.Time `json:"consumed_at"`
}

// User is the identity record owned by the [UserRepository]. The engine only
// changes it through repository calls. Zero times mean unset.
type User struct {
	ID                  string    `json:"id"`
	Identifier          string    `json:"identifier"`
	Email               string    `json:"email,omitempty"`
	Phone               string    `json:"phone,omitempty"`
	PasswordHash        string    `json:"password_hash"`
	MFAEnabled          bool      `json:"mfa_enabled"`
	PreferredChannel    Channel   `json:"preferred_channel,omitempty"`
	Locked              bool      `json:"locked"`
	LockExpiresAt       time.Time `json:"lock_expires_at"`
	FailedOTPCount      int       `json:"failed_otp_count"`
	ResendDisabledUntil time.Time `json:"resend_disabled_until"`
	LastChallengeAt     time.Time `json:"last_challenge_at"`
	UsedOTPs            []UsedOTP `json:"used_otps,omitempty"`
}

// Clone returns a deep copy of u.
func (u *User) Clone() *User {
	if u == nil {
		return nil
	}
	out := *u
	out.UsedOTPs = append([]UsedOTP(nil), u.UsedOTPs...)
	return &out
}

// Credentials is the transient primary-auth input. It is never stored.
type Credentials struct {
	Identifier string `validate:"required,max=320"`
	Secret     string `validate:"required,max=1024"`
}

// ChallengeState is the lifecycle state reported by [Engine.ChallengeStatus].
type ChallengeState uint8

const (
	NoChallenge ChallengeState = iota
	Pending
	Consumed
	Expired
	LockedOut
)

func (s ChallengeState) String() string {
	switch s {
	case Pending:
		return "pending"
	case Consumed:
		return "consumed"
	case Expired:
		return "expired"
	case LockedOut:
		return "locked_out"
	default:
		return "no_challenge"
	}
}

// OTPChallenge is returned once per issuance. Code is the only copy of the
// plaintext; stores keep a digest.
type OTPChallenge struct {
	ID        string
	UserID    string
	Code      string
	Channel   Channel
	IssuedAt  time.Time
	ExpiresAt time.Time
	State     ChallengeState
}

// AuthSession is the result of a fully authenticated login. Issuing a real
// session or token from it is left to the caller.
type AuthSession struct {
	UserID          string
	AuthenticatedAt time.Time
	Methods         []string
}

// LoginResult is returned by [Engine.Login]. Exactly one of PendingMFA or
// Session is set.
type LoginResult struct {
	MFARequired bool
	PendingMFA  string
	Channel     Channel
	ExpiresAt   time.Time
	Session     *AuthSession
}

// UserRepository is the external user store. Implementations must be safe for
// concurrent use. Lock with a zero until locks until Unlock is called.
// Not-found may be reported as ErrUserNotFound or as a nil user with nil error.
type UserRepository interface {
	FindByID(ctx context.Context, id string) (*User, error)
	FindByIdentifier(ctx context.Context, identifier string) (*User, error)
	Save(ctx context.Context, user *User) error
	Lock(ctx context.Context, id string, until time.Time) error
	Unlock(ctx context.Context, id string) error
}

// Clock supplies the current time.
type Clock interface {
	Now() time.Time
}

// SystemClock reads the wall clock.
type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now() }

// AuditEvent is the canonical audit record emitted by the engine.
type AuditEvent = internalaudit.Event

// AuditSink receives audit events from the dispatcher goroutine.
type AuditSink = internalaudit.Sink

// NoOpSink discards audit events.
type NoOpSink = internalaudit.NoOpSink

// ChannelSink buffers audit events on a channel.
type ChannelSink = internalaudit.ChannelSink

// JSONWriterSink writes newline-delimited JSON audit events.
type JSONWriterSink = internalaudit.JSONWriterSink

// SlogSink logs audit events through a slog.Logger.
type SlogSink = internalaudit.SlogSink

// AuditSinkFunc adapts a function to [AuditSink].
type AuditSinkFunc = internalaudit.SinkFunc

// NewSlogSink returns a sink logging to logger, or slog.Default when nil.
func NewSlogSink(logger *slog.Logger) *SlogSink {
	return internalaudit.NewSlogSink(logger)
}

// NewChannelSink returns a ChannelSink with the given buffer.
func NewChannelSink(buffer int) *ChannelSink {
	return internalaudit.NewChannelSink(buffer)
}

// NewJSONWriterSink returns a sink writing to w.
func NewJSONWriterSink(w io.Writer) *JSONWriterSink {
	return internalaudit.NewJSONWriterSink(w)
}

func toUserRecord(u *User) *flows.UserRecord {
	if u == nil {
		return nil
	}
	history := make([]flows.UsedOTP, len(u.UsedOTPs))
	for i, h := range u.UsedOTPs {
		history[i] = flows.UsedOTP{Digest: h.Digest, IssuedAt: h.IssuedAt, ConsumedAt: h.ConsumedAt}
	}
	return &flows.UserRecord{
		ID:                  u.ID,
		Identifier:          u.Identifier,
		Email:               u.Email,
		Phone:               u.Phone,
		PasswordHash:        u.PasswordHash,
		MFAEnabled:          u.MFAEnabled,
		PreferredChannel:    uint8(u.PreferredChannel),
		Locked:              u.Locked,
		LockExpiresAt:       u.LockExpiresAt,
		FailedOTPCount:      u.FailedOTPCount,
		ResendDisabledUntil: u.ResendDisabledUntil,
		LastChallengeAt:     u.LastChallengeAt,
		UsedOTPs:            history,
	}
}

func fromUserRecord(r *flows.UserRecord) *User {
	if r == nil {
		return nil
	}
	var history []UsedOTP
	if len(r.UsedOTPs) > 0 {
		history = make([]UsedOTP, len(r.UsedOTPs))
		for i, h := range r.UsedOTPs {
			history[i] = UsedOTP{Digest: h.Digest, IssuedAt: h.IssuedAt, ConsumedAt: h.ConsumedAt}
		}
	}
	return &User{
		ID:                  r.ID,
		Identifier:          r.Identifier,
		Email:               r.Email,
		Phone:               r.Phone,
		PasswordHash:        r.PasswordHash,
		MFAEnabled:          r.MFAEnabled,
		PreferredChannel:    Channel(r.PreferredChannel),
		Locked:              r.Locked,
		LockExpiresAt:       r.LockExpiresAt,
		FailedOTPCount:      r.FailedOTPCount,
		ResendDisabledUntil: r.ResendDisabledUntil,
		LastChallengeAt:     r.LastChallengeAt,
		UsedOTPs:            history,
	}
}

func toChallengeState(s flows.ChallengeStatus) ChallengeState {
	switch s {
	case flows.StatusPending:
		return Pending
	case flows.StatusConsumed:
		return Consumed
	case flows.StatusExpired:
		return Expired
	case flows.StatusLockedOut:
		return LockedOut
	default:
		return NoChallenge
	}
}
