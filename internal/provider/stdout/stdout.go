// Package stdout implements a Provider that prints messages instead of
// delivering them. It backs dry runs and the local mail sink.
package stdout

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/docker/go-units"

	"github.com/shineum/smtp-mailer/internal/email"
)

const separator = "========================================\n"

// Provider writes a readable summary of every message to a writer.
type Provider struct {
	mu     sync.Mutex
	writer io.Writer
	raw    bool
}

// Option configures a Provider.
type Option func(*Provider)

// WithWriter replaces os.Stdout as the destination.
func WithWriter(w io.Writer) Option {
	return func(p *Provider) {
		p.writer = w
	}
}

// WithRaw prints the rendered MIME message for each recipient after the
// summary.
func WithRaw() Option {
	return func(p *Provider) {
		p.raw = true
	}
}

// New creates a Provider writing to os.Stdout.
func New(opts ...Option) *Provider {
	p := &Provider{writer: os.Stdout}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Send prints msg. It fails only when the message cannot be rendered or
// the writer rejects the output.
func (p *Provider) Send(_ context.Context, msg *email.Email) error {
	var b strings.Builder

	b.WriteString(separator)
	fmt.Fprintf(&b, "From: %s\n", msg.From)
	fmt.Fprintf(&b, "To: %s\n", strings.Join(msg.To, ", "))
	if len(msg.Cc) > 0 {
		fmt.Fprintf(&b, "Cc: %s\n", strings.Join(msg.Cc, ", "))
	}
	fmt.Fprintf(&b, "Subject: %s\n", msg.Subject)
	if msg.MessageID != "" {
		fmt.Fprintf(&b, "Message-ID: %s\n", msg.MessageID)
	}

	b.WriteString("Body:\n")
	body := msg.TextBody
	if body == "" {
		body = msg.HtmlBody
	}
	b.WriteString(body + "\n")
	if msg.HasHTML() && msg.TextBody != "" {
		fmt.Fprintf(&b, "HTML: %s\n", units.BytesSize(float64(len(msg.HtmlBody))))
	}

	if len(msg.Attachments) > 0 {
		attachments := make([]string, 0, len(msg.Attachments))
		for _, att := range msg.Attachments {
			attachments = append(attachments,
				fmt.Sprintf("%s (%s)", att.Filename, units.BytesSize(float64(len(att.Content)))))
		}
		fmt.Fprintf(&b, "Attachments: %s\n", strings.Join(attachments, ", "))
	}

	if p.raw {
		for _, rcpt := range msg.To {
			data, err := msg.Render(rcpt)
			if err != nil {
				return fmt.Errorf("failed to render message for %s: %w", rcpt, err)
			}
			b.WriteString(strings.TrimRight(strings.ReplaceAll(string(data), "\r\n", "\n"), "\n"))
			b.WriteString("\n")
		}
	}

	b.WriteString(separator)

	p.mu.Lock()
	defer p.mu.Unlock()
	if _, err := io.WriteString(p.writer, b.String()); err != nil {
		return fmt.Errorf("failed to write message: %w", err)
	}
	return nil
}

// Name returns the provider name.
func (p *Provider) Name() string {
	return "stdout"
}
