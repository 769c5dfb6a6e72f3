package mailsink

import (
	"context"
	"slices"
	"sync"

	"github.com/shineum/smtp-mailer/internal/email"
)

// Inbox is a Provider that keeps every delivered message in memory.
type Inbox struct {
	mu       sync.Mutex
	messages []*email.Email
	notify   chan struct{}
}

// NewInbox creates an empty Inbox.
func NewInbox() *Inbox {
	return &Inbox{notify: make(chan struct{}, 1)}
}

// Send records msg.
func (in *Inbox) Send(_ context.Context, msg *email.Email) error {
	in.mu.Lock()
	in.messages = append(in.messages, msg)
	in.mu.Unlock()

	select {
	case in.notify <- struct{}{}:
	default:
	}
	return nil
}

// Name returns the provider name.
func (in *Inbox) Name() string {
	return "inbox"
}

// Messages returns the delivered messages in arrival order.
func (in *Inbox) Messages() []*email.Email {
	in.mu.Lock()
	defer in.mu.Unlock()
	return slices.Clone(in.messages)
}

// Wait blocks until at least n messages arrived or ctx is done.
func (in *Inbox) Wait(ctx context.Context, n int) ([]*email.Email, error) {
	for {
		if msgs := in.Messages(); len(msgs) >= n {
			return msgs, nil
		}
		select {
		case <-ctx.Done():
			return in.Messages(), ctx.Err()
		case <-in.notify:
		}
	}
}
