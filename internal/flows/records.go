package flows

import (
	"time"

	"github.com/samber/lo"
)

// UsedOTP is one entry of a user's reuse history.
type UsedOTP struct {
	Digest     string
	IssuedAt   time.Time
	ConsumedAt time.Time
}

// UserRecord is the flow-local user model. Zero times mean unset.
type UserRecord struct {
	ID                  string
	Identifier          string
	Email               string
	Phone               string
	PasswordHash        string
	MFAEnabled          bool
	PreferredChannel    uint8
	Locked              bool
	LockExpiresAt       time.Time
	FailedOTPCount      int
	ResendDisabledUntil time.Time
	LastChallengeAt     time.Time
	UsedOTPs            []UsedOTP
}

// Clone deep-copies the record.
func (u *UserRecord) Clone() *UserRecord {
	if u == nil {
		return nil
	}
	out := *u
	out.UsedOTPs = append([]UsedOTP(nil), u.UsedOTPs...)
	return &out
}

// lockActive reports whether the lock still applies at now.
func (u *UserRecord) lockActive(now time.Time) bool {
	if !u.Locked {
		return false
	}
	return u.LockExpiresAt.IsZero() || now.Before(u.LockExpiresAt)
}

// IssuedChallenge is returned to the caller once per issuance. Code is the
// only place the plaintext exists.
type IssuedChallenge struct {
	ID        string
	UserID    string
	Code      string
	Channel   uint8
	IssuedAt  time.Time
	ExpiresAt time.Time
}

// ChallengeStatus is the externally reported lifecycle state.
type ChallengeStatus uint8

const (
	StatusNone ChallengeStatus = iota
	StatusPending
	StatusConsumed
	StatusExpired
	StatusLockedOut
)

// pruneHistory drops entries consumed longer than retention ago. A zero
// retention keeps everything.
func pruneHistory(history []UsedOTP, now time.Time, retention time.Duration) []UsedOTP {
	if retention <= 0 {
		return history
	}
	return lo.Filter(history, func(e UsedOTP, _ int) bool {
		return now.Sub(e.ConsumedAt) < retention
	})
}

// inHistory scans the whole history regardless of where a match sits.
func inHistory(history []UsedOTP, digest string, equal func(a, b string) bool) bool {
	found := false
	for _, e := range history {
		if equal(e.Digest, digest) {
			found = true
		}
	}
	return found
}
