package mailer

import (
	"context"
	"crypto/tls"
	"errors"
	"net"
	"slices"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/emersion/go-sasl"

	"github.com/shineum/smtp-mailer/internal/mailsink"
	smtptls "github.com/shineum/smtp-mailer/internal/tls"
)

// startTLSSink runs a mail sink requiring AUTH on a loopback port. With
// withTLS it offers STARTTLS; the returned client config trusts its
// certificate.
func startTLSSink(t *testing.T, inbox *mailsink.Inbox, withTLS bool) (*mailsink.Server, Credentials, *tls.Config) {
	t.Helper()

	cert, err := smtptls.GenerateSelfSignedCert()
	if err != nil {
		t.Fatalf("GenerateSelfSignedCert: %v", err)
	}
	pool, err := smtptls.CertPool(cert)
	if err != nil {
		t.Fatalf("CertPool: %v", err)
	}

	cfg := mailsink.Config{
		ListenAddr: "127.0.0.1:0",
		Provider:   inbox,
		Username:   "u",
		Password:   "p",
	}
	if withTLS {
		cfg.TLSConfig = &tls.Config{Certificates: []tls.Certificate{*cert}, MinVersion: tls.VersionTLS12}
	}
	srv := mailsink.New(cfg)
	if err := srv.Listen(); err != nil {
		t.Fatalf("Listen: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = srv.Serve(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})

	host, portStr, err := net.SplitHostPort(srv.Addr())
	if err != nil {
		t.Fatalf("SplitHostPort: %v", err)
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		t.Fatalf("port: %v", err)
	}

	creds := Credentials{Username: "u", Password: "p", Host: host, Port: port}
	return srv, creds, &tls.Config{RootCAs: pool, ServerName: "localhost", MinVersion: tls.VersionTLS12}
}

func TestDialSMTP_StartTLSThenAuth(t *testing.T) {
	t.Parallel()

	inbox := mailsink.NewInbox()
	srv, creds, clientTLS := startTLSSink(t, inbox, true)

	client, err := DialSMTP(creds.Addr(), false, clientTLS)
	if err != nil {
		t.Fatalf("DialSMTP: %v", err)
	}
	defer client.Close()

	if err := client.StartTLS(clientTLS); err != nil {
		t.Fatalf("StartTLS: %v", err)
	}
	if err := client.Auth(sasl.NewPlainClient("", "u", "p")); err != nil {
		t.Fatalf("Auth: %v", err)
	}

	raw := "From: sender@example.com\r\nTo: a@example.com\r\nSubject: hi\r\n\r\nhello\r\n"
	if err := client.SendMail("sender@example.com", []string{"a@example.com"}, strings.NewReader(raw)); err != nil {
		t.Fatalf("SendMail: %v", err)
	}
	if err := client.Quit(); err != nil {
		t.Fatalf("Quit: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if _, err := inbox.Wait(ctx, 1); err != nil {
		t.Fatalf("Wait: %v", err)
	}

	transcript := srv.Transcript()
	starttls := slices.Index(transcript, "STARTTLS")
	auth := slices.Index(transcript, "AUTH PLAIN")
	if starttls < 0 || auth < starttls {
		t.Errorf("expected STARTTLS before AUTH PLAIN: %v", transcript)
	}
}

func TestDialSMTP_StartTLSUnsupported(t *testing.T) {
	t.Parallel()

	_, creds, clientTLS := startTLSSink(t, mailsink.NewInbox(), false)

	c, err := New(creds, WithTLSConfig(clientTLS))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer c.Disconnect()

	if err := c.Connect(); !errors.Is(err, ErrStartTLS) {
		t.Errorf("Connect: got %v, want ErrStartTLS", err)
	}
	if c.Connected() {
		t.Error("composer must not be connected after a failed upgrade")
	}
}

func TestNew_FallsBackToDefaultCredentials(t *testing.T) {
	t.Parallel()

	inbox := mailsink.NewInbox()
	_, defaults, clientTLS := startTLSSink(t, inbox, true)

	c, err := New(Credentials{}, WithDefaultCredentials(defaults), WithTLSConfig(clientTLS))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := c.Connect(); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	if err := c.Disconnect(); err != nil {
		t.Errorf("Disconnect: %v", err)
	}
	if got := c.String(); !strings.Contains(got, defaults.Host) || !strings.Contains(got, "Username: u") {
		t.Errorf("String: got %q, want the default relay and username", got)
	}
}
