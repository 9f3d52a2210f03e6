package stores

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"io"
	"time"
)

const (
	challengeRecordVersion1 = 1
)

// Challenge states as persisted.
const (
	StatePending  uint8 = 1
	StateConsumed uint8 = 2
	StateExpired  uint8 = 3
)

var (
	ErrChallengeNotFound = errors.New("otp challenge not found")
	ErrChallengeConflict = errors.New("otp challenge changed concurrently")
	ErrChallengeBackend  = errors.New("otp challenge backend unavailable")
	ErrChallengeCorrupt  = errors.New("otp challenge record corrupt")
)

// Challenge is the persisted form of an OTP challenge. Digest is the keyed
// code digest; the plaintext code is never stored.
type Challenge struct {
	ID        string
	UserID    string
	Digest    string
	Channel   uint8
	State     uint8
	IssuedAt  time.Time
	ExpiresAt time.Time
}

// Clone returns a copy safe to mutate.
func (c *Challenge) Clone() *Challenge {
	if c == nil {
		return nil
	}
	out := *c
	return &out
}

// ChallengeStore is implemented by the Redis and memory backends.
type ChallengeStore interface {
	Put(ctx context.Context, record *Challenge, ttl time.Duration) error
	Get(ctx context.Context, userID string) (*Challenge, error)
	Swap(ctx context.Context, old, next *Challenge, ttl time.Duration) error
	Delete(ctx context.Context, userID string) error
}

func encodeChallenge(record *Challenge) ([]byte, error) {
	if record == nil {
		return nil, errors.New("nil otp challenge")
	}

	var buf bytes.Buffer
	buf.WriteByte(challengeRecordVersion1)
	buf.WriteByte(record.State)
	buf.WriteByte(record.Channel)

	if err := binary.Write(&buf, binary.BigEndian, record.IssuedAt.UnixNano()); err != nil {
		return nil, err
	}
	if err := binary.Write(&buf, binary.BigEndian, record.ExpiresAt.UnixNano()); err != nil {
		return nil, err
	}

	for _, field := range []string{record.ID, record.UserID, record.Digest} {
		if len(field) > 65535 {
			return nil, errors.New("otp challenge field length exceeded")
		}
		if err := binary.Write(&buf, binary.BigEndian, uint16(len(field))); err != nil {
			return nil, err
		}
		buf.WriteString(field)
	}

	return buf.Bytes(), nil
}

func decodeChallenge(data []byte) (*Challenge, error) {
	reader := bytes.NewReader(data)

	version, err := reader.ReadByte()
	if err != nil {
		return nil, ErrChallengeCorrupt
	}
	if version != challengeRecordVersion1 {
		return nil, ErrChallengeCorrupt
	}

	record := &Challenge{}
	if record.State, err = reader.ReadByte(); err != nil {
		return nil, ErrChallengeCorrupt
	}
	if record.Channel, err = reader.ReadByte(); err != nil {
		return nil, ErrChallengeCorrupt
	}

	var issued, expires int64
	if err := binary.Read(reader, binary.BigEndian, &issued); err != nil {
		return nil, ErrChallengeCorrupt
	}
	if err := binary.Read(reader, binary.BigEndian, &expires); err != nil {
		return nil, ErrChallengeCorrupt
	}
	record.IssuedAt = time.Unix(0, issued)
	record.ExpiresAt = time.Unix(0, expires)

	fields := []*string{&record.ID, &record.UserID, &record.Digest}
	for _, field := range fields {
		var n uint16
		if err := binary.Read(reader, binary.BigEndian, &n); err != nil {
			return nil, ErrChallengeCorrupt
		}
		raw := make([]byte, n)
		if _, err := io.ReadFull(reader, raw); err != nil {
			return nil, ErrChallengeCorrupt
		}
		*field = string(raw)
	}
	if reader.Len() != 0 {
		return nil, ErrChallengeCorrupt
	}

	return record, nil
}
