package mailer

import "errors"

var (
	// ErrDial indicates the SMTP server could not be reached.
	ErrDial = errors.New("failed to connect to SMTP server")

	// ErrStartTLS indicates the STARTTLS upgrade failed.
	ErrStartTLS = errors.New("failed to upgrade SMTP connection to TLS")

	// ErrAuth indicates the server rejected the credentials.
	ErrAuth = errors.New("SMTP authentication failed")

	// ErrNotConnected indicates SendAll was called before Connect, or
	// after Disconnect.
	ErrNotConnected = errors.New("not connected to any SMTP server, call Connect first")

	// ErrInvalidRecipients indicates SetRecipients got no list at all.
	ErrInvalidRecipients = errors.New("recipients must be a list")

	// ErrNoMessage indicates SendAll was called before a message was set.
	ErrNoMessage = errors.New("no message to send")

	// ErrSend indicates the server refused a message for a recipient.
	ErrSend = errors.New("failed to send message")
)
