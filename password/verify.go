package password

import (
	"strings"
	"sync"

	"golang.org/x/crypto/bcrypt"
)

// Verifier checks a secret against any supported stored hash format.
type Verifier struct {
	argon *Argon2

	dummyOnce sync.Once
	dummy     string
}

func NewVerifier(argon *Argon2) *Verifier {
	return &Verifier{argon: argon}
}

// Verify returns (false, nil) on mismatch and an error only when the stored
// hash cannot be used.
func (v *Verifier) Verify(secret, encoded string) (bool, error) {
	switch {
	case strings.HasPrefix(encoded, argon2Prefix):
		return v.argon.Verify(secret, encoded)
	case isBcrypt(encoded):
		err := bcrypt.CompareHashAndPassword([]byte(encoded), []byte(secret))
		if err == nil {
			return true, nil
		}
		if err == bcrypt.ErrMismatchedHashAndPassword {
			return false, nil
		}
		return false, ErrMalformedHash
	default:
		return false, ErrUnsupportedHash
	}
}

// Burn performs one argon2 verification against a throwaway hash so an
// unknown identifier costs the same time as a known one.
func (v *Verifier) Burn(secret string) {
	v.dummyOnce.Do(func() {
		v.dummy, _ = v.argon.Hash("gomfa-unknown-identifier")
	})
	if v.dummy == "" {
		return
	}
	_, _ = v.argon.Verify(secret, v.dummy)
}

func isBcrypt(encoded string) bool {
	return strings.HasPrefix(encoded, "$2a$") ||
		strings.HasPrefix(encoded, "$2b$") ||
		strings.HasPrefix(encoded, "$2y$")
}

// HashBcrypt is provided for stores that standardize on bcrypt.
func HashBcrypt(secret string, cost int) (string, error) {
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		cost = bcrypt.DefaultCost
	}
	out, err := bcrypt.GenerateFromPassword([]byte(secret), cost)
	if err != nil {
		return "", err
	}
	return string(out), nil
}
