package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/shineum/smtp-mailer/internal/config"
	"github.com/shineum/smtp-mailer/internal/email"
	"github.com/shineum/smtp-mailer/internal/mailsink"
	smtptls "github.com/shineum/smtp-mailer/internal/tls"
)

func TestSelectProvider(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		cfg      config.Config
		wantName string
		wantErr  bool
	}{
		{name: "smtp", cfg: config.Config{Provider: config.ProviderSMTP, SMTP: config.SMTPConfig{Server: "smtp.example.com", Port: 587}}, wantName: "smtp"},
		{name: "stdout", cfg: config.Config{Provider: config.ProviderStdout}, wantName: "stdout"},
		{name: "resend", cfg: config.Config{Provider: config.ProviderResend, Resend: config.ResendConfig{APIKey: "re_test"}}, wantName: "resend"},
		{name: "resend without key", cfg: config.Config{Provider: config.ProviderResend}, wantErr: true},
		{name: "ses without region", cfg: config.Config{Provider: config.ProviderSES}, wantErr: true},
		{name: "unknown", cfg: config.Config{Provider: "pigeon"}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			p, err := selectProvider(context.Background(), &tt.cfg)
			if tt.wantErr {
				if !errors.Is(err, config.ErrInvalid) {
					t.Errorf("expected config.ErrInvalid, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if p.Name() != tt.wantName {
				t.Errorf("Name: got %q, want %q", p.Name(), tt.wantName)
			}
		})
	}
}

func TestLoadConfig_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("provider: stdout\nmail:\n  to: client@example.com\n"), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	t.Setenv("PROVIDER", "")
	t.Setenv("MAIL_TO", "")

	cfg, err := loadConfig(path)
	if err != nil {
		t.Fatalf("loadConfig: %v", err)
	}
	if cfg.Provider != config.ProviderStdout || cfg.Mail.To != "client@example.com" {
		t.Errorf("unexpected config: provider=%q to=%q", cfg.Provider, cfg.Mail.To)
	}
}

func TestSelectProvider_SMTPUsesConfiguredRelay(t *testing.T) {
	t.Parallel()

	serverTLS, err := smtptls.ServerConfig("", "")
	if err != nil {
		t.Fatalf("ServerConfig: %v", err)
	}
	inbox := mailsink.NewInbox()
	srv := mailsink.New(mailsink.Config{
		ListenAddr: "127.0.0.1:0",
		Provider:   inbox,
		TLSConfig:  serverTLS,
		Username:   "u",
		Password:   "p",
	})
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

	cfg := &config.Config{
		Provider: config.ProviderSMTP,
		SMTP: config.SMTPConfig{
			Username:      "u",
			Password:      "p",
			Server:        host,
			Port:          port,
			TLSSkipVerify: true,
		},
	}
	prov, err := selectProvider(context.Background(), cfg)
	if err != nil {
		t.Fatalf("selectProvider: %v", err)
	}

	msg := &email.Email{From: "u@example.com", To: []string{"client@example.com"}, Subject: "Contract", TextBody: "hello"}
	if err := prov.Send(context.Background(), msg); err != nil {
		t.Fatalf("Send: %v", err)
	}

	waitCtx, waitCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer waitCancel()
	received, err := inbox.Wait(waitCtx, 1)
	if err != nil {
		t.Fatalf("Wait: %v", err)
	}
	if received[0].Subject != "Contract" {
		t.Errorf("Subject: got %q", received[0].Subject)
	}

	transcript := srv.Transcript()
	starttls := slices.Index(transcript, "STARTTLS")
	auth := slices.Index(transcript, "AUTH PLAIN")
	if starttls < 0 || auth < starttls {
		t.Errorf("expected STARTTLS before AUTH PLAIN: %v", transcript)
	}
}

// Not parallel: run replaces the process-wide default logger.
func TestRun_ConfigErrorLoggedAsJSON(t *testing.T) {
	previous := slog.Default()
	t.Cleanup(func() { slog.SetDefault(previous) })
	t.Setenv("LOG_LEVEL", "")

	var stderr bytes.Buffer
	code := run([]string{"-config", filepath.Join(t.TempDir(), "missing.yaml")}, &stderr)
	if code != exitConfig {
		t.Errorf("exit code: got %d, want %d", code, exitConfig)
	}

	line, _, _ := strings.Cut(stderr.String(), "\n")
	var entry map[string]any
	if err := json.Unmarshal([]byte(line), &entry); err != nil {
		t.Fatalf("expected a JSON log line, got %q: %v", stderr.String(), err)
	}
	if entry["msg"] != "failed to load configuration" || entry["level"] != "ERROR" {
		t.Errorf("unexpected entry: %v", entry)
	}
}

func TestRun_BadFlag(t *testing.T) {
	var stderr bytes.Buffer
	if code := run([]string{"-no-such-flag"}, &stderr); code != exitConfig {
		t.Errorf("exit code: got %d, want %d", code, exitConfig)
	}
}
