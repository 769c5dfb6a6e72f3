package contract

import (
	"errors"

	"github.com/shineum/smtp-mailer/internal/config"
	"github.com/shineum/smtp-mailer/internal/email"
	"github.com/shineum/smtp-mailer/internal/mailer"
	"github.com/shineum/smtp-mailer/internal/provider"
)

// Kind groups failures by what the caller can do about them.
type Kind int

const (
	KindUnknown Kind = iota
	KindConfig
	KindConnection
	KindAttachment
	KindNotConnected
	KindRecipients
	KindDelivery
)

func (k Kind) String() string {
	switch k {
	case KindConfig:
		return "config"
	case KindConnection:
		return "connection"
	case KindAttachment:
		return "attachment"
	case KindNotConnected:
		return "not_connected"
	case KindRecipients:
		return "recipients"
	case KindDelivery:
		return "delivery"
	default:
		return "unknown"
	}
}

// Transient reports whether trying again later may succeed without a
// change to the configuration or the files on disk.
func (k Kind) Transient() bool {
	return k == KindConnection || k == KindDelivery
}

// Error is returned by SendContractEmail.
type Error struct {
	Kind Kind
	Err  error
}

func (e *Error) Error() string {
	return "contract email: " + e.Kind.String() + ": " + e.Err.Error()
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Classify maps an error from the mail stack to its Kind.
func Classify(err error) Kind {
	var ce *Error
	switch {
	case err == nil:
		return KindUnknown
	case errors.As(err, &ce):
		return ce.Kind
	case errors.Is(err, config.ErrInvalid):
		return KindConfig
	case errors.Is(err, email.ErrAttachment):
		return KindAttachment
	case errors.Is(err, mailer.ErrDial),
		errors.Is(err, mailer.ErrStartTLS),
		errors.Is(err, mailer.ErrAuth):
		return KindConnection
	case errors.Is(err, mailer.ErrNotConnected):
		return KindNotConnected
	case errors.Is(err, mailer.ErrInvalidRecipients):
		return KindRecipients
	case errors.Is(err, mailer.ErrSend),
		errors.Is(err, mailer.ErrNoMessage),
		errors.Is(err, provider.ErrDelivery):
		return KindDelivery
	default:
		return KindUnknown
	}
}
