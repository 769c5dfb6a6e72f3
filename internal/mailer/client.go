package mailer

import (
	"crypto/tls"
	"io"
	"net"
	"time"

	"github.com/emersion/go-sasl"
	"github.com/emersion/go-smtp"
)

const dialTimeout = 30 * time.Second

// Client is the part of an SMTP client session the Composer drives.
type Client interface {
	StartTLS(config *tls.Config) error
	Auth(a sasl.Client) error
	SendMail(from string, to []string, r io.Reader) error
	Quit() error
	Close() error
}

// Dialer opens the socket to addr. With implicitTLS the TLS handshake
// happens on connect; otherwise the connection stays plain until STARTTLS.
type Dialer func(addr string, implicitTLS bool, tlsConfig *tls.Config) (Client, error)

var _ Client = (*smtpClient)(nil)

// smtpClient wraps a go-smtp client around a socket opened ahead of the
// SMTP exchange, so the STARTTLS upgrade can be issued later by Connect.
type smtpClient struct {
	conn net.Conn
	*smtp.Client
}

// StartTLS replaces the plain client with one that has completed STARTTLS
// on the same socket. It must be called before any other command.
func (c *smtpClient) StartTLS(config *tls.Config) error {
	upgraded, err := smtp.NewClientStartTLS(c.conn, config)
	if err != nil {
		return err
	}
	c.Client = upgraded
	return nil
}

// DialSMTP is the default Dialer.
func DialSMTP(addr string, implicitTLS bool, tlsConfig *tls.Config) (Client, error) {
	nd := &net.Dialer{Timeout: dialTimeout}

	var (
		conn net.Conn
		err  error
	)
	if implicitTLS {
		conn, err = (&tls.Dialer{NetDialer: nd, Config: tlsConfig}).Dial("tcp", addr)
	} else {
		conn, err = nd.Dial("tcp", addr)
	}
	if err != nil {
		return nil, err
	}

	return &smtpClient{conn: conn, Client: smtp.NewClient(conn)}, nil
}
