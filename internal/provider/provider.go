// Package provider defines the interface for email delivery backends.
package provider

import (
	"context"
	"errors"

	"github.com/shineum/smtp-mailer/internal/email"
)

// Provider delivers a composed message to every address in msg.To.
// Implementations exist for an SMTP relay, AWS SES, Resend and stdout.
type Provider interface {
	// Send delivers msg. Each recipient receives a copy whose To header
	// names only that recipient.
	Send(ctx context.Context, msg *email.Email) error

	// Name returns the provider name used in logs.
	Name() string
}

// ErrDelivery is wrapped by API providers when the remote service rejects
// a message.
var ErrDelivery = errors.New("delivery failed")
