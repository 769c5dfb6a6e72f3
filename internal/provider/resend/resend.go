// Package resend implements a Provider that sends emails via the Resend API.
package resend

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/resend/resend-go/v3"

	"github.com/shineum/smtp-mailer/internal/email"
	"github.com/shineum/smtp-mailer/internal/provider"
)

// EmailsAPI is the part of the Resend emails service used here.
type EmailsAPI interface {
	SendWithContext(ctx context.Context, params *resend.SendEmailRequest) (*resend.SendEmailResponse, error)
}

// Provider sends one Resend request per recipient.
type Provider struct {
	from   string
	emails EmailsAPI
}

// New creates a Provider authenticated with apiKey. from overrides the
// message sender when set.
func New(apiKey, from string) (*Provider, error) {
	if apiKey == "" {
		return nil, errors.New("resend API key is required")
	}
	return NewWithClient(from, resend.NewClient(apiKey).Emails), nil
}

// NewWithClient creates a Provider with a custom emails service.
func NewWithClient(from string, emails EmailsAPI) *Provider {
	return &Provider{from: from, emails: emails}
}

// Send delivers msg to each recipient in order and stops at the first
// rejected one.
func (p *Provider) Send(ctx context.Context, msg *email.Email) error {
	from := p.from
	if from == "" {
		from = msg.From
	}

	attachments := convertAttachments(msg.Attachments)
	for _, rcpt := range msg.To {
		req := &resend.SendEmailRequest{
			From:        from,
			To:          []string{rcpt},
			Subject:     msg.Subject,
			Text:        msg.TextBody,
			Html:        msg.HtmlBody,
			Attachments: attachments,
		}
		if msg.MessageID != "" {
			req.Headers = map[string]string{"Message-ID": msg.MessageID}
		}

		sent, err := p.emails.SendWithContext(ctx, req)
		if err != nil {
			return fmt.Errorf("%w: resend rejected message to %s: %w", provider.ErrDelivery, rcpt, err)
		}
		slog.Info("message sent",
			"provider", p.Name(),
			"recipient", rcpt,
			"message_id", sent.Id,
		)
	}
	return nil
}

// Name returns the provider name.
func (p *Provider) Name() string {
	return "resend"
}

func convertAttachments(attachments []email.Attachment) []*resend.Attachment {
	if len(attachments) == 0 {
		return nil
	}
	result := make([]*resend.Attachment, len(attachments))
	for i, a := range attachments {
		result[i] = &resend.Attachment{
			Filename:    a.Filename,
			Content:     a.Content,
			ContentType: a.ContentType,
		}
	}
	return result
}
