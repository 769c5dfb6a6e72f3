// Package contract sends the contract email: it decides whether the HTML
// body and the contract attachment apply, builds the message and hands it
// to a delivery provider.
package contract

import (
	"context"
	"log/slog"
	"path/filepath"

	"github.com/shineum/smtp-mailer/internal/config"
	"github.com/shineum/smtp-mailer/internal/email"
	"github.com/shineum/smtp-mailer/internal/provider"
)

const contractHTML = `<html>
    <body>
        <p>Hello,</p>
        <p>Please find the signed contract attached.</p>
    </body>
</html>
`

// PathValidator reports whether a path names a usable file.
type PathValidator interface {
	IsValidPath(path string) bool
}

// Service sends contract emails with one configuration and provider.
type Service struct {
	cfg      *config.Config
	provider provider.Provider
	paths    PathValidator
}

// New creates a Service.
func New(cfg *config.Config, prov provider.Provider, paths PathValidator) *Service {
	return &Service{
		cfg:      cfg,
		provider: prov,
		paths:    paths,
	}
}

// GenerateHTML returns the HTML body of the contract email. The content is
// fixed; the parameters are accepted for a future template.
func (s *Service) GenerateHTML(sellerName, contractType, companyName, service string) string {
	return contractHTML
}

// ContractPath returns the path of the contract attachment.
func (s *Service) ContractPath() string {
	return s.cfg.Contract.AttachmentPath
}

// SendContractEmail sends the contract email to the configured recipient.
// The HTML body is included only when the signature file is valid, and
// the contract is attached only alongside the HTML body when attaching is
// enabled. The outcome is logged; failures are returned as *Error.
func (s *Service) SendContractEmail(ctx context.Context) error {
	err := s.send(ctx)
	if err != nil {
		kind := Classify(err)
		slog.Error("failed to send contract email",
			"provider", s.provider.Name(),
			"kind", kind.String(),
			"transient", kind.Transient(),
			"error", err,
		)
		return &Error{Kind: kind, Err: err}
	}

	slog.Info("contract email sent",
		"provider", s.provider.Name(),
		"recipient", s.cfg.Mail.To,
	)
	return nil
}

func (s *Service) send(ctx context.Context) error {
	if err := s.cfg.Validate(); err != nil {
		return err
	}

	content := email.Content{
		Text:    s.cfg.Mail.Body,
		Subject: s.cfg.Mail.Subject,
		From:    s.cfg.Sender(),
	}

	c := s.cfg.Contract
	if s.paths.IsValidPath(c.SignaturePath) {
		content.HTML = s.GenerateHTML(c.SellerName, c.Type, c.CompanyName, c.Service)
		if c.AttachPhoto {
			content.AttachmentPath = s.ContractPath()
			content.AttachmentFilename = filepath.Base(content.AttachmentPath)
		}
	} else {
		slog.Debug("signature file not found, sending plain text only",
			"path", c.SignaturePath,
		)
	}

	msg, err := email.Build(content)
	if err != nil {
		return err
	}
	msg.To = []string{s.cfg.Mail.To}

	return s.provider.Send(ctx, msg)
}
