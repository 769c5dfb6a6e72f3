// Package mailsink is a small SMTP server that accepts mail and hands it to
// a delivery provider. It backs the local mail catcher and the end-to-end
// tests of the SMTP sender.
package mailsink

import (
	"context"
	"crypto/tls"
	"errors"
	"log/slog"
	"net"
	"slices"
	"sync"
	"time"

	"github.com/docker/go-units"

	"github.com/shineum/smtp-mailer/internal/config"
	"github.com/shineum/smtp-mailer/internal/provider"
)

// shutdownTimeout bounds the wait for in-flight sessions on shutdown.
const shutdownTimeout = 30 * time.Second

// Config holds the configuration for a Server.
type Config struct {
	// ListenAddr is the address to listen on, e.g. "127.0.0.1:2525".
	ListenAddr string

	// Hostname is announced in the greeting and EHLO replies.
	Hostname string

	// Provider receives every accepted message.
	Provider provider.Provider

	// TLSConfig enables STARTTLS. Nil disables it.
	TLSConfig *tls.Config

	// Username and Password require AUTH when both are set.
	Username string
	Password string

	// MaxMessageSize is the largest accepted DATA payload in bytes.
	MaxMessageSize int64
}

// Server accepts SMTP connections and delivers received mail to the
// configured provider.
type Server struct {
	config   Config
	auth     *Authenticator
	listener net.Listener

	wg sync.WaitGroup

	mu         sync.Mutex
	transcript []string
}

// New creates a Server.
func New(cfg Config) *Server {
	if cfg.Hostname == "" {
		cfg.Hostname = "localhost"
	}
	if cfg.MaxMessageSize <= 0 {
		cfg.MaxMessageSize = config.DefaultSinkMaxMessageSize
	}

	return &Server{
		config: cfg,
		auth:   NewAuthenticator(cfg.Username, cfg.Password),
	}
}

// Listen binds the listening socket. Call Serve afterwards.
func (s *Server) Listen() error {
	ln, err := net.Listen("tcp", s.config.ListenAddr)
	if err != nil {
		return err
	}
	s.listener = ln
	return nil
}

// ListenAndServe binds the socket and serves until ctx is cancelled.
func (s *Server) ListenAndServe(ctx context.Context) error {
	if err := s.Listen(); err != nil {
		return err
	}
	return s.Serve(ctx)
}

// Serve accepts connections until ctx is cancelled, then stops accepting
// and waits up to 30 seconds for in-flight sessions.
func (s *Server) Serve(ctx context.Context) error {
	ln := s.listener
	if ln == nil {
		return errors.New("mailsink: Serve called before Listen")
	}

	slog.Info("mail sink listening",
		"addr", ln.Addr().String(),
		"provider", s.config.Provider.Name(),
		"auth_enabled", s.auth.Enabled(),
		"tls_enabled", s.config.TLSConfig != nil,
		"max_message_size", units.BytesSize(float64(s.config.MaxMessageSize)),
	)

	go func() {
		<-ctx.Done()
		slog.Info("shutting down mail sink")
		ln.Close()
	}()

	for {
		conn, err := ln.Accept()
		if err != nil {
			select {
			case <-ctx.Done():
				s.waitForSessions()
				return nil
			default:
				slog.Error("accept error", "error", err)
				continue
			}
		}

		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			newSession(conn, s).handle(ctx)
		}()
	}
}

func (s *Server) waitForSessions() {
	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		slog.Info("all sessions completed")
	case <-time.After(shutdownTimeout):
		slog.Warn("shutdown timeout reached, forcing close")
	}
}

// Addr returns the listener address, or an empty string before Listen.
func (s *Server) Addr() string {
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return ""
}

// Transcript returns the commands received so far across all sessions.
// AUTH entries include the mechanism but never the credentials.
func (s *Server) Transcript() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.transcript)
}

func (s *Server) record(entry string) {
	s.mu.Lock()
	s.transcript = append(s.transcript, entry)
	s.mu.Unlock()
}
