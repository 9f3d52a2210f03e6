package transport

import (
	"context"
	"sync"

	goMFA "github.com/MrEthical07/goMFA"
)

// Delivery is one captured message.
type Delivery struct {
	Address string
	Message goMFA.Message
}

// Outbox records every message it is asked to send.
type Outbox struct {
	mu         sync.Mutex
	deliveries []Delivery
	fail       error
}

func NewOutbox() *Outbox {
	return &Outbox{}
}

func (o *Outbox) Send(ctx context.Context, address string, msg goMFA.Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.fail != nil {
		return o.fail
	}
	o.deliveries = append(o.deliveries, Delivery{Address: address, Message: msg})
	return nil
}

// FailWith makes subsequent sends return err. A nil err restores delivery.
func (o *Outbox) FailWith(err error) {
	o.mu.Lock()
	o.fail = err
	o.mu.Unlock()
}

// Deliveries returns a copy of the captured messages in send order.
func (o *Outbox) Deliveries() []Delivery {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]Delivery(nil), o.deliveries...)
}

// Last returns the most recent delivery to address.
func (o *Outbox) Last(address string) (Delivery, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	for i := len(o.deliveries) - 1; i >= 0; i-- {
		if o.deliveries[i].Address == address {
			return o.deliveries[i], true
		}
	}
	return Delivery{}, false
}

// Reset drops captured messages.
func (o *Outbox) Reset() {
	o.mu.Lock()
	o.deliveries = nil
	o.mu.Unlock()
}
