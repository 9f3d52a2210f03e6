package goMFA

import (
	"context"
	"errors"
	"strconv"

	"github.com/MrEthical07/goMFA/password"
)

// CheckPassword applies the configured password policy. All violated rules
// are reported together; use errors.Is with ErrPasswordTooShort,
// ErrPasswordMissingClass or ErrPasswordContainsIdentifier to inspect them.
func (e *Engine) CheckPassword(ctx context.Context, secret, username, email string) error {
	if !e.ready() {
		return ErrEngineNotReady
	}
	err := e.policy.Check(secret, username, email)
	if err == nil {
		return nil
	}

	e.metricInc(MetricPasswordPolicyRejected)
	e.emitAudit(ctx, auditEventPasswordRejected, false, "", err, func() map[string]string {
		var pe *password.PolicyError
		if !errors.As(err, &pe) {
			return nil
		}
		return map[string]string{"violations": strconv.Itoa(len(pe.Violations))}
	})
	return err
}

// HashPassword checks secret against the policy and returns its argon2id
// PHC string.
func (e *Engine) HashPassword(ctx context.Context, secret, username, email string) (string, error) {
	if err := e.CheckPassword(ctx, secret, username, email); err != nil {
		return "", err
	}
	return e.argon.Hash(secret)
}

// PasswordNeedsRehash reports whether encoded should be re-hashed with the
// current parameters, including any bcrypt hash.
func (e *Engine) PasswordNeedsRehash(encoded string) bool {
	if !e.ready() {
		return false
	}
	return e.argon.NeedsRehash(encoded)
}
