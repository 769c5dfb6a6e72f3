// Package mailer composes one MIME message and sends it to an ordered list
// of recipients over a single SMTP session.
//
// A Composer moves through Initialized → Connected → Disconnected. The
// socket is opened by New, authenticated by Connect and released by
// Disconnect; SendAll only works while connected.
package mailer

import (
	"bytes"
	"crypto/tls"
	"fmt"
	"log/slog"
	"net"
	"slices"
	"strconv"

	"github.com/emersion/go-sasl"

	"github.com/shineum/smtp-mailer/internal/config"
	"github.com/shineum/smtp-mailer/internal/email"
	smtptls "github.com/shineum/smtp-mailer/internal/tls"
)

// Credentials identify the SMTP relay and the account used on it.
type Credentials struct {
	Username string
	Password string
	Host     string
	Port     int
	// ImplicitTLS connects over TLS directly instead of upgrading a plain
	// connection with STARTTLS.
	ImplicitTLS   bool
	TLSSkipVerify bool
}

// CredentialsFromConfig maps the SMTP section of the configuration.
func CredentialsFromConfig(c config.SMTPConfig) Credentials {
	return Credentials{
		Username:      c.Username,
		Password:      c.Password,
		Host:          c.Server,
		Port:          c.Port,
		ImplicitTLS:   c.SSL,
		TLSSkipVerify: c.TLSSkipVerify,
	}
}

// WithDefaults fills every empty credential field from d. The transport
// security mode is never defaulted.
func (c Credentials) WithDefaults(d Credentials) Credentials {
	if c.Username == "" {
		c.Username = d.Username
	}
	if c.Password == "" {
		c.Password = d.Password
	}
	if c.Host == "" {
		c.Host = d.Host
	}
	if c.Port == 0 {
		c.Port = d.Port
	}
	c.TLSSkipVerify = c.TLSSkipVerify || d.TLSSkipVerify
	return c
}

// Addr returns host:port.
func (c Credentials) Addr() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

func (c Credentials) validate() error {
	switch {
	case c.Host == "":
		return fmt.Errorf("%w: SMTP server is not set", config.ErrInvalid)
	case c.Port <= 0:
		return fmt.Errorf("%w: SMTP port is not set", config.ErrInvalid)
	case c.Username == "" || c.Password == "":
		return fmt.Errorf("%w: SMTP username and password are required", config.ErrInvalid)
	}
	return nil
}

// Option configures a Composer.
type Option func(*Composer)

// WithDefaultCredentials supplies the values New uses for credential fields
// left empty by the caller. Typically these come from the environment.
func WithDefaultCredentials(d Credentials) Option {
	return func(c *Composer) {
		c.defaults = d
	}
}

// WithDialer replaces DialSMTP.
func WithDialer(d Dialer) Option {
	return func(c *Composer) {
		c.dial = d
	}
}

// WithTLSConfig replaces the client TLS configuration derived from the
// credentials.
func WithTLSConfig(cfg *tls.Config) Option {
	return func(c *Composer) {
		c.tlsConfig = cfg
	}
}

// Composer owns one SMTP session and one message. It is not safe for
// concurrent use.
type Composer struct {
	creds     Credentials
	defaults  Credentials
	tlsConfig *tls.Config
	dial      Dialer

	client     Client
	connected  bool
	closed     bool
	recipients []string
	msg        *email.Email
}

// New fills empty credential fields from WithDefaultCredentials, validates
// them and opens the socket to the relay. The session is not authenticated
// until Connect.
func New(creds Credentials, opts ...Option) (*Composer, error) {
	c := &Composer{
		dial:       DialSMTP,
		recipients: []string{},
	}
	for _, opt := range opts {
		opt(c)
	}

	creds = creds.WithDefaults(c.defaults)
	if err := creds.validate(); err != nil {
		return nil, err
	}
	c.creds = creds

	if c.tlsConfig == nil {
		c.tlsConfig = smtptls.ClientConfig(creds.Host, creds.TLSSkipVerify)
	}

	client, err := c.dial(creds.Addr(), creds.ImplicitTLS, c.tlsConfig)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrDial, creds.Addr(), err)
	}
	c.client = client

	slog.Debug("opened SMTP connection",
		"server", creds.Addr(),
		"implicit_tls", creds.ImplicitTLS,
	)
	return c, nil
}

// BuildMessage composes the message to send. From defaults to the
// account username. See email.Build for the resulting structure.
func (c *Composer) BuildMessage(content email.Content) error {
	if content.From == "" {
		content.From = c.creds.Username
	}
	msg, err := email.Build(content)
	if err != nil {
		return err
	}
	c.msg = msg
	return nil
}

// SetMessage replaces the message with one built elsewhere.
func (c *Composer) SetMessage(msg *email.Email) {
	c.msg = msg
}

// Message returns the current message, or nil.
func (c *Composer) Message() *email.Email {
	return c.msg
}

// SetRecipients replaces the recipient list with a copy of rcpts. An empty
// list is accepted; a nil one is not.
func (c *Composer) SetRecipients(rcpts []string) error {
	if rcpts == nil {
		return ErrInvalidRecipients
	}
	c.recipients = slices.Clone(rcpts)
	return nil
}

// AddRecipient appends addr to the recipient list.
func (c *Composer) AddRecipient(addr string) {
	c.recipients = append(c.recipients, addr)
}

// Recipients returns a copy of the recipient list.
func (c *Composer) Recipients() []string {
	return slices.Clone(c.recipients)
}

// Connected reports whether the session is authenticated and open.
func (c *Composer) Connected() bool {
	return c.connected
}

// Connect upgrades the connection with STARTTLS unless implicit TLS is in
// use, then logs in with AUTH PLAIN.
func (c *Composer) Connect() error {
	if !c.creds.ImplicitTLS {
		if err := c.client.StartTLS(c.tlsConfig); err != nil {
			return fmt.Errorf("%w: %w", ErrStartTLS, err)
		}
	}

	if err := c.client.Auth(sasl.NewPlainClient("", c.creds.Username, c.creds.Password)); err != nil {
		return fmt.Errorf("%w: %w", ErrAuth, err)
	}

	c.connected = true
	slog.Info("connected to SMTP server", "server", c.creds.Host)
	return nil
}

// Disconnect ends the session and closes the socket. Calling it again is
// a no-op.
func (c *Composer) Disconnect() error {
	if c.closed {
		return nil
	}
	c.closed = true
	c.connected = false

	if err := c.client.Quit(); err != nil {
		// QUIT failed, so the socket may still be open.
		_ = c.client.Close()
		return fmt.Errorf("failed to close SMTP session: %w", err)
	}
	return nil
}

// SendAll sends the message to every recipient in order, rendering the To
// header for each one. It fails with ErrNotConnected before any network
// traffic when the session is not connected. The first failed recipient
// aborts the remaining sends and leaves the session open. With closeAfter
// the session is closed once every recipient succeeded.
func (c *Composer) SendAll(closeAfter bool) error {
	if !c.connected {
		return ErrNotConnected
	}
	if c.msg == nil {
		return ErrNoMessage
	}

	from := c.msg.EnvelopeFrom()
	for _, rcpt := range c.recipients {
		raw, err := c.msg.Render(rcpt)
		if err != nil {
			return fmt.Errorf("failed to render message for %s: %w", rcpt, err)
		}
		if err := c.client.SendMail(from, []string{rcpt}, bytes.NewReader(raw)); err != nil {
			return fmt.Errorf("%w to %s: %w", ErrSend, rcpt, err)
		}
		slog.Info("message sent", "recipient", rcpt)
	}

	if closeAfter {
		if err := c.Disconnect(); err != nil {
			return err
		}
		slog.Info("connection closed", "server", c.creds.Host)
	}
	return nil
}

// String describes the session without revealing the password.
func (c *Composer) String() string {
	return fmt.Sprintf("Type: Mail Sender\nConnection to server %s, port %d\nConnected: %t\nUsername: %s",
		c.creds.Host, c.creds.Port, c.connected, c.creds.Username)
}
