package dispatch

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"
)

type recordingTransport struct {
	mu   sync.Mutex
	sent []sent
	err  error
}

type sent struct {
	address string
	msg     Message
}

func (r *recordingTransport) Send(_ context.Context, address string, msg Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sent = append(r.sent, sent{address: address, msg: msg})
	return r.err
}

func newTestDispatcher(t *testing.T, timeout time.Duration, email, mobile Transport) *Dispatcher {
	t.Helper()
	return New(Config{Timeout: timeout}, map[Channel]Transport{
		ChannelEmail:  email,
		ChannelMobile: mobile,
	}, nil)
}

func TestAddressValidation(t *testing.T) {
	d := newTestDispatcher(t, time.Second, &recordingTransport{}, &recordingTransport{})

	valid := []Recipient{
		{Email: "bob@example.com"},
		{Email: "Bob.Smith+otp@Example.CO"},
	}
	for _, r := range valid {
		if _, err := d.Address(ChannelEmail, r); err != nil {
			t.Fatalf("expected %q to be valid, got %v", r.Email, err)
		}
	}

	invalid := []string{"", "bob", "bob@example", "bob@@example.com", "@example.com", "bob@example.c0m", "bob example@x.com"}
	for _, addr := range invalid {
		if _, err := d.Address(ChannelEmail, Recipient{Email: addr}); !errors.Is(err, ErrInvalidAddress) {
			t.Fatalf("expected ErrInvalidAddress for %q, got %v", addr, err)
		}
	}

	if _, err := d.Address(ChannelMobile, Recipient{Phone: "+14155552671"}); err != nil {
		t.Fatalf("expected E.164 number to be valid, got %v", err)
	}
	for _, phone := range []string{"", "4155552671", "14155552671", "+0123", "+1-415-555-2671", " 4155552671"} {
		if _, err := d.Address(ChannelMobile, Recipient{Phone: phone}); !errors.Is(err, ErrInvalidAddress) {
			t.Fatalf("expected ErrInvalidAddress for %q, got %v", phone, err)
		}
	}

	if _, err := d.Address(Channel(9), Recipient{}); !errors.Is(err, ErrInvalidChannel) {
		t.Fatalf("expected ErrInvalidChannel, got %v", err)
	}
}

func TestSendRendersMessage(t *testing.T) {
	email := &recordingTransport{}
	mobile := &recordingTransport{}
	d := newTestDispatcher(t, time.Second, email, mobile)
	r := Recipient{Email: "bob@example.com", Phone: "+14155552671"}

	if err := d.Send(context.Background(), ChannelEmail, r, "042117", 5*time.Minute); err != nil {
		t.Fatalf("send email: %v", err)
	}
	if err := d.Send(context.Background(), ChannelMobile, r, "042117", 5*time.Minute); err != nil {
		t.Fatalf("send mobile: %v", err)
	}

	if len(email.sent) != 1 || email.sent[0].address != "bob@example.com" {
		t.Fatalf("unexpected email deliveries %+v", email.sent)
	}
	if email.sent[0].msg.Subject == "" || !strings.Contains(email.sent[0].msg.Body, "042117") || !strings.Contains(email.sent[0].msg.Body, "5 minutes") {
		t.Fatalf("unexpected email message %+v", email.sent[0].msg)
	}
	if len(mobile.sent) != 1 || mobile.sent[0].msg.Subject != "" || !strings.Contains(mobile.sent[0].msg.Body, "042117") {
		t.Fatalf("unexpected mobile deliveries %+v", mobile.sent)
	}
}

func TestSendInvalidAddressSkipsTransport(t *testing.T) {
	email := &recordingTransport{}
	d := newTestDispatcher(t, time.Second, email, nil)
	err := d.Send(context.Background(), ChannelEmail, Recipient{Email: "nope"}, "123456", time.Minute)
	if !errors.Is(err, ErrInvalidAddress) {
		t.Fatalf("expected ErrInvalidAddress, got %v", err)
	}
	if len(email.sent) != 0 {
		t.Fatalf("transport must not be called for invalid address")
	}
}

func TestSendUnconfiguredChannel(t *testing.T) {
	d := newTestDispatcher(t, time.Second, &recordingTransport{}, nil)
	err := d.Send(context.Background(), ChannelMobile, Recipient{Phone: "+14155552671"}, "123456", time.Minute)
	if !errors.Is(err, ErrChannelNotConfigured) {
		t.Fatalf("expected ErrChannelNotConfigured, got %v", err)
	}
}

func TestSendTransportErrorIsTransportFailure(t *testing.T) {
	email := &recordingTransport{err: errors.New("smtp 451")}
	d := newTestDispatcher(t, time.Second, email, nil)
	err := d.Send(context.Background(), ChannelEmail, Recipient{Email: "bob@example.com"}, "123456", time.Minute)
	if !errors.Is(err, ErrTransportFailure) {
		t.Fatalf("expected ErrTransportFailure, got %v", err)
	}
}

func TestSendTimeoutDoesNotHang(t *testing.T) {
	block := make(chan struct{})
	defer close(block)
	stuck := TransportFunc(func(context.Context, string, Message) error {
		<-block
		return nil
	})

	var observed time.Duration
	d := New(Config{Timeout: 30 * time.Millisecond}, map[Channel]Transport{ChannelEmail: stuck}, func(d time.Duration) { observed = d })

	start := time.Now()
	err := d.Send(context.Background(), ChannelEmail, Recipient{Email: "bob@example.com"}, "123456", time.Minute)
	if !errors.Is(err, ErrTransportFailure) {
		t.Fatalf("expected ErrTransportFailure, got %v", err)
	}
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Fatalf("send blocked for %v", elapsed)
	}
	if observed <= 0 {
		t.Fatalf("expected latency observation")
	}
}

func TestSendRecoversTransportPanic(t *testing.T) {
	boom := TransportFunc(func(context.Context, string, Message) error { panic("boom") })
	d := New(Config{Timeout: time.Second}, map[Channel]Transport{ChannelEmail: boom}, nil)
	err := d.Send(context.Background(), ChannelEmail, Recipient{Email: "bob@example.com"}, "123456", time.Minute)
	if !errors.Is(err, ErrTransportFailure) {
		t.Fatalf("expected ErrTransportFailure, got %v", err)
	}
}

func TestParseChannel(t *testing.T) {
	cases := map[string]Channel{"email": ChannelEmail, "EMAIL": ChannelEmail, "sms": ChannelMobile, " mobile ": ChannelMobile}
	for in, want := range cases {
		got, err := ParseChannel(in)
		if err != nil || got != want {
			t.Fatalf("ParseChannel(%q) = %v, %v", in, got, err)
		}
	}
	if _, err := ParseChannel("pigeon"); !errors.Is(err, ErrInvalidChannel) {
		t.Fatalf("expected ErrInvalidChannel, got %v", err)
	}
}
