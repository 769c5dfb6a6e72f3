package contract

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/shineum/smtp-mailer/internal/config"
	"github.com/shineum/smtp-mailer/internal/email"
	"github.com/shineum/smtp-mailer/internal/mailer"
	"github.com/shineum/smtp-mailer/internal/provider"
)

func TestClassify(t *testing.T) {
	t.Parallel()

	wrap := func(err error) error { return fmt.Errorf("outer: %w", err) }
	tests := []struct {
		name string
		err  error
		want Kind
	}{
		{name: "nil", err: nil, want: KindUnknown},
		{name: "config", err: wrap(config.ErrInvalid), want: KindConfig},
		{name: "attachment", err: wrap(email.ErrAttachment), want: KindAttachment},
		{name: "dial", err: wrap(mailer.ErrDial), want: KindConnection},
		{name: "starttls", err: wrap(mailer.ErrStartTLS), want: KindConnection},
		{name: "auth", err: wrap(mailer.ErrAuth), want: KindConnection},
		{name: "not connected", err: mailer.ErrNotConnected, want: KindNotConnected},
		{name: "recipients", err: mailer.ErrInvalidRecipients, want: KindRecipients},
		{name: "smtp send", err: wrap(mailer.ErrSend), want: KindDelivery},
		{name: "api delivery", err: wrap(provider.ErrDelivery), want: KindDelivery},
		{name: "classified", err: wrap(&Error{Kind: KindAttachment, Err: errors.New("x")}), want: KindAttachment},
		{name: "cancelled", err: context.Canceled, want: KindUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := Classify(tt.err); got != tt.want {
				t.Errorf("Classify: got %v, want %v", got, tt.want)
			}
		})
	}
}

func TestKind_Transient(t *testing.T) {
	t.Parallel()

	transient := map[Kind]bool{
		KindUnknown:      false,
		KindConfig:       false,
		KindConnection:   true,
		KindAttachment:   false,
		KindNotConnected: false,
		KindRecipients:   false,
		KindDelivery:     true,
	}
	for kind, want := range transient {
		if got := kind.Transient(); got != want {
			t.Errorf("%v.Transient(): got %v, want %v", kind, got, want)
		}
	}
}

func TestError(t *testing.T) {
	t.Parallel()

	err := &Error{Kind: KindConnection, Err: mailer.ErrAuth}
	if got, want := err.Error(), "contract email: connection: SMTP authentication failed"; got != want {
		t.Errorf("Error(): got %q, want %q", got, want)
	}
	if !errors.Is(err, mailer.ErrAuth) {
		t.Error("Unwrap should expose the cause")
	}
}
