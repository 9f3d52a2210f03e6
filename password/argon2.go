package password

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"strings"

	"golang.org/x/crypto/argon2"
)

const argon2Prefix = "$argon2id$"

var (
	ErrMalformedHash      = errors.New("malformed password hash")
	ErrUnsupportedHash    = errors.New("unsupported password hash")
	ErrWeakArgon2Settings = errors.New("argon2 parameters below minimum")
)

// Argon2Params are the cost parameters for new hashes. Memory is in KiB.
type Argon2Params struct {
	Memory      uint32
	Time        uint32
	Parallelism uint8
	SaltLength  uint32
	KeyLength   uint32
}

// DefaultArgon2Params follows the OWASP argon2id baseline.
func DefaultArgon2Params() Argon2Params {
	return Argon2Params{
		Memory:      64 * 1024,
		Time:        1,
		Parallelism: 4,
		SaltLength:  16,
		KeyLength:   32,
	}
}

func (p Argon2Params) validate() error {
	if p.Memory < 8*1024 || p.Time < 1 || p.Parallelism < 1 || p.SaltLength < 16 || p.KeyLength < 16 {
		return ErrWeakArgon2Settings
	}
	return nil
}

// Argon2 hashes and verifies argon2id PHC strings.
type Argon2 struct {
	params Argon2Params
	rand   io.Reader
}

func NewArgon2(params Argon2Params) (*Argon2, error) {
	if err := params.validate(); err != nil {
		return nil, err
	}
	return &Argon2{params: params, rand: rand.Reader}, nil
}

// Hash returns $argon2id$v=19$m=..,t=..,p=..$salt$key with unpadded base64.
func (a *Argon2) Hash(secret string) (string, error) {
	salt := make([]byte, a.params.SaltLength)
	if _, err := io.ReadFull(a.rand, salt); err != nil {
		return "", err
	}
	key := argon2.IDKey([]byte(secret), salt, a.params.Time, a.params.Memory, a.params.Parallelism, a.params.KeyLength)

	return fmt.Sprintf("%sv=%d$m=%d,t=%d,p=%d$%s$%s",
		argon2Prefix,
		argon2.Version,
		a.params.Memory, a.params.Time, a.params.Parallelism,
		base64.RawStdEncoding.EncodeToString(salt),
		base64.RawStdEncoding.EncodeToString(key),
	), nil
}

// Verify recomputes the key with the parameters embedded in encoded and
// compares in constant time.
func (a *Argon2) Verify(secret, encoded string) (bool, error) {
	h, err := parseArgon2(encoded)
	if err != nil {
		return false, err
	}
	key := argon2.IDKey([]byte(secret), h.salt, h.params.Time, h.params.Memory, h.params.Parallelism, uint32(len(h.key)))
	return subtle.ConstantTimeCompare(key, h.key) == 1, nil
}

// NeedsRehash reports whether encoded was produced with weaker parameters
// than a's.
func (a *Argon2) NeedsRehash(encoded string) bool {
	h, err := parseArgon2(encoded)
	if err != nil {
		return true
	}
	return h.params.Memory < a.params.Memory ||
		h.params.Time < a.params.Time ||
		h.params.Parallelism < a.params.Parallelism ||
		uint32(len(h.key)) != a.params.KeyLength
}

type argon2Hash struct {
	params Argon2Params
	salt   []byte
	key    []byte
}

func parseArgon2(encoded string) (*argon2Hash, error) {
	if !strings.HasPrefix(encoded, argon2Prefix) {
		return nil, ErrUnsupportedHash
	}
	// "", "argon2id", "v=19", "m=..,t=..,p=..", salt, key
	parts := strings.Split(encoded, "$")
	if len(parts) != 6 {
		return nil, ErrMalformedHash
	}

	var version int
	if _, err := fmt.Sscanf(parts[2], "v=%d", &version); err != nil || version != argon2.Version {
		return nil, ErrUnsupportedHash
	}

	h := &argon2Hash{}
	var parallelism uint32
	if _, err := fmt.Sscanf(parts[3], "m=%d,t=%d,p=%d", &h.params.Memory, &h.params.Time, &parallelism); err != nil {
		return nil, ErrMalformedHash
	}
	if parallelism == 0 || parallelism > 255 {
		return nil, ErrMalformedHash
	}
	h.params.Parallelism = uint8(parallelism)

	var err error
	if h.salt, err = decodeB64(parts[4]); err != nil || len(h.salt) < 16 {
		return nil, ErrMalformedHash
	}
	if h.key, err = decodeB64(parts[5]); err != nil || len(h.key) < 16 {
		return nil, ErrMalformedHash
	}
	h.params.SaltLength = uint32(len(h.salt))
	h.params.KeyLength = uint32(len(h.key))
	if h.params.Memory < 8*1024 || h.params.Time < 1 {
		return nil, ErrMalformedHash
	}
	return h, nil
}

// decodeB64 accepts padded and unpadded standard base64.
func decodeB64(s string) ([]byte, error) {
	return base64.RawStdEncoding.DecodeString(strings.TrimRight(s, "="))
}
