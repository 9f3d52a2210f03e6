// Package otp generates numeric one-time codes and the keyed digests under
// which they are stored.
package otp

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"math/big"
)

const (
	MinDigits     = 6
	MaxDigits     = 10
	DefaultDigits = 6
	// KeySize is the digest key length produced by NewKey.
	KeySize = 32
)

var (
	ErrInvalidDigits = errors.New("otp digits must be between 6 and 10")
	ErrShortKey      = errors.New("otp digest key must be at least 16 bytes")
)

// Generate returns a uniformly distributed code of exactly digits decimal
// digits, zero-padded. A nil reader means crypto/rand.Reader.
func Generate(r io.Reader, digits int) (string, error) {
	if digits < MinDigits || digits > MaxDigits {
		return "", ErrInvalidDigits
	}
	if r == nil {
		r = rand.Reader
	}

	limit := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(digits)), nil)
	n, err := rand.Int(r, limit)
	if err != nil {
		return "", fmt.Errorf("otp random source: %w", err)
	}
	return fmt.Sprintf("%0*d", digits, n.Uint64()), nil
}

// IsNumeric reports whether code has the expected width and only ASCII digits.
func IsNumeric(code string, digits int) bool {
	if len(code) != digits {
		return false
	}
	for i := 0; i < len(code); i++ {
		if code[i] < '0' || code[i] > '9' {
			return false
		}
	}
	return true
}

// NewKey returns a random digest key.
func NewKey(r io.Reader) ([]byte, error) {
	if r == nil {
		r = rand.Reader
	}
	key := make([]byte, KeySize)
	if _, err := io.ReadFull(r, key); err != nil {
		return nil, err
	}
	return key, nil
}

// Digester computes HMAC-SHA256(key, userID || 0x00 || code). Binding the
// user ID keeps identical codes of different users distinct.
type Digester struct {
	key []byte
}

func NewDigester(key []byte) (*Digester, error) {
	if len(key) < 16 {
		return nil, ErrShortKey
	}
	k := make([]byte, len(key))
	copy(k, key)
	return &Digester{key: k}, nil
}

// Digest returns the hex-encoded digest.
func (d *Digester) Digest(userID, code string) string {
	mac := hmac.New(sha256.New, d.key)
	mac.Write([]byte(userID))
	mac.Write([]byte{0})
	mac.Write([]byte(code))
	return hex.EncodeToString(mac.Sum(nil))
}

// Equal compares two digests in constant time.
func Equal(a, b string) bool {
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}
