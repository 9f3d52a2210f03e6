// Package dispatch delivers OTP codes over a channel-specific transport.
//
// Addresses are validated before any delivery attempt. Each delivery runs
// under a deadline; a transport that ignores its context is abandoned when the
// deadline passes and the call reports ErrTransportFailure. Nothing is retried.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
)

var (
	ErrInvalidAddress       = errors.New("invalid delivery address")
	ErrTransportFailure     = errors.New("otp transport failure")
	ErrChannelNotConfigured = errors.New("otp channel not configured")
	ErrInvalidChannel       = errors.New("invalid otp channel")
)

// emailPattern requires local@domain.TLD with an alphabetic TLD.
var emailPattern = regexp.MustCompile(`(?i)^[a-z0-9._%+\-]+@[a-z0-9.\-]+\.[a-z]{2,}$`)

// Channel is a delivery channel.
type Channel uint8

const (
	ChannelEmail  Channel = 1
	ChannelMobile Channel = 2
)

func (c Channel) String() string {
	switch c {
	case ChannelEmail:
		return "email"
	case ChannelMobile:
		return "mobile"
	default:
		return "unknown"
	}
}

// Valid reports whether c is a known channel.
func (c Channel) Valid() bool {
	return c == ChannelEmail || c == ChannelMobile
}

// ParseChannel maps "email", "mobile" and "sms" to a Channel.
func ParseChannel(s string) (Channel, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "email":
		return ChannelEmail, nil
	case "mobile", "sms":
		return ChannelMobile, nil
	default:
		return 0, ErrInvalidChannel
	}
}

// Message is what a transport delivers. Subject is empty for mobile.
type Message struct {
	Channel Channel
	Subject string
	Body    string
}

// Transport delivers a message to one address.
type Transport interface {
	Send(ctx context.Context, address string, msg Message) error
}

// TransportFunc adapts a function to Transport.
type TransportFunc func(ctx context.Context, address string, msg Message) error

func (f TransportFunc) Send(ctx context.Context, address string, msg Message) error {
	return f(ctx, address, msg)
}

// Recipient carries the contact fields of a user.
type Recipient struct {
	Email string
	Phone string
}

// Config controls rendering and deadlines.
type Config struct {
	Timeout        time.Duration
	EmailSubject   string
	EmailTemplate  string
	MobileTemplate string
}

// Dispatcher routes messages to per-channel transports.
type Dispatcher struct {
	cfg        Config
	transports map[Channel]Transport
	validate   *validator.Validate
	observe    func(time.Duration)
}

// New copies transports; nil entries are ignored. observe, if non-nil,
// receives the duration of every delivery attempt.
func New(cfg Config, transports map[Channel]Transport, observe func(time.Duration)) *Dispatcher {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Second
	}
	if cfg.EmailSubject == "" {
		cfg.EmailSubject = "Your verification code"
	}
	if cfg.EmailTemplate == "" {
		cfg.EmailTemplate = "Your verification code is {{code}}. It expires in {{ttl_minutes}} minutes."
	}
	if cfg.MobileTemplate == "" {
		cfg.MobileTemplate = "{{code}} is your verification code. Valid for {{ttl_minutes}} min."
	}
	if observe == nil {
		observe = func(time.Duration) {}
	}

	ts := make(map[Channel]Transport, len(transports))
	for ch, t := range transports {
		if t != nil {
			ts[ch] = t
		}
	}

	return &Dispatcher{
		cfg:        cfg,
		transports: ts,
		validate:   validator.New(validator.WithRequiredStructEnabled()),
		observe:    observe,
	}
}

// Configured reports whether a transport is registered for ch.
func (d *Dispatcher) Configured(ch Channel) bool {
	_, ok := d.transports[ch]
	return ok
}

// Address resolves and validates the destination for ch.
func (d *Dispatcher) Address(ch Channel, r Recipient) (string, error) {
	switch ch {
	case ChannelEmail:
		addr := strings.TrimSpace(r.Email)
		if !emailPattern.MatchString(addr) || d.validate.Var(addr, "required,email,max=254") != nil {
			return "", fmt.Errorf("%w: email", ErrInvalidAddress)
		}
		return addr, nil
	case ChannelMobile:
		addr := strings.TrimSpace(r.Phone)
		// The e164 tag alone accepts a missing "+".
		if !strings.HasPrefix(addr, "+") || d.validate.Var(addr, "required,e164") != nil {
			return "", fmt.Errorf("%w: mobile number must be E.164", ErrInvalidAddress)
		}
		return addr, nil
	default:
		return "", ErrInvalidChannel
	}
}

// Preflight checks everything Send would check before contacting the transport.
func (d *Dispatcher) Preflight(ch Channel, r Recipient) error {
	if !ch.Valid() {
		return ErrInvalidChannel
	}
	if _, err := d.Address(ch, r); err != nil {
		return err
	}
	if !d.Configured(ch) {
		return fmt.Errorf("%w: %s", ErrChannelNotConfigured, ch)
	}
	return nil
}

// Send validates the address, renders the message and delivers it within the
// configured timeout.
func (d *Dispatcher) Send(ctx context.Context, ch Channel, r Recipient, code string, ttl time.Duration) error {
	if err := d.Preflight(ch, r); err != nil {
		return err
	}
	addr, _ := d.Address(ch, r)
	msg := d.render(ch, code, ttl)
	transport := d.transports[ch]

	if ctx == nil {
		ctx = context.Background()
	}
	ctx, cancel := context.WithTimeout(ctx, d.cfg.Timeout)
	defer cancel()

	start := time.Now()
	done := make(chan error, 1)
	go func() {
		defer func() {
			if rec := recover(); rec != nil {
				done <- fmt.Errorf("transport panic: %v", rec)
			}
		}()
		done <- transport.Send(ctx, addr, msg)
	}()

	var err error
	select {
	case err = <-done:
	case <-ctx.Done():
		err = ctx.Err()
	}
	d.observe(time.Since(start))

	if err != nil {
		return fmt.Errorf("%w: %s: %v", ErrTransportFailure, ch, err)
	}
	return nil
}

func (d *Dispatcher) render(ch Channel, code string, ttl time.Duration) Message {
	minutes := int(ttl.Round(time.Minute) / time.Minute)
	if minutes < 1 {
		minutes = 1
	}
	r := strings.NewReplacer("{{code}}", code, "{{ttl_minutes}}", strconv.Itoa(minutes))

	if ch == ChannelEmail {
		return Message{Channel: ch, Subject: d.cfg.EmailSubject, Body: r.Replace(d.cfg.EmailTemplate)}
	}
	return Message{Channel: ch, Body: r.Replace(d.cfg.MobileTemplate)}
}
