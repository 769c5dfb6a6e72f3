// Package smtp implements a Provider that relays messages through an SMTP
// server using a mailer.Composer.
package smtp

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/shineum/smtp-mailer/internal/email"
	"github.com/shineum/smtp-mailer/internal/mailer"
)

// Provider opens one authenticated session per Send and delivers the
// message to each recipient over it.
type Provider struct {
	creds mailer.Credentials
	opts  []mailer.Option
}

// New creates a Provider for the relay described by creds. Options are
// passed to every Composer it creates.
func New(creds mailer.Credentials, opts ...mailer.Option) *Provider {
	return &Provider{creds: creds, opts: opts}
}

// Send connects, sends to every address in msg.To and closes the session.
// The session is closed on failure too.
func (p *Provider) Send(ctx context.Context, msg *email.Email) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	c, err := mailer.New(p.creds, p.opts...)
	if err != nil {
		return err
	}

	c.SetMessage(msg)
	if err := c.SetRecipients(msg.To); err != nil {
		disconnect(c)
		return err
	}
	if err := c.Connect(); err != nil {
		disconnect(c)
		return err
	}
	if err := c.SendAll(true); err != nil {
		disconnect(c)
		return err
	}
	return nil
}

// Name returns the provider name.
func (p *Provider) Name() string {
	return "smtp"
}

func disconnect(c *mailer.Composer) {
	if err := c.Disconnect(); err != nil {
		slog.Warn("failed to close SMTP session", "error", err)
	}
}

// String describes the relay.
func (p *Provider) String() string {
	if p.creds.Host == "" {
		return "smtp(default relay)"
	}
	return fmt.Sprintf("smtp(%s)", p.creds.Addr())
}
