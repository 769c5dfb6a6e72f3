// Package main runs a local SMTP server that prints every message it
// receives. Point the contract mailer at it to inspect outgoing mail.
package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/shineum/smtp-mailer/internal/config"
	"github.com/shineum/smtp-mailer/internal/logging"
	"github.com/shineum/smtp-mailer/internal/mailsink"
	"github.com/shineum/smtp-mailer/internal/provider/stdout"
	smtptls "github.com/shineum/smtp-mailer/internal/tls"
)

func main() {
	configPath := flag.String("config", "", "path to YAML configuration file (optional)")
	raw := flag.Bool("raw", false, "also print the raw MIME message")
	flag.Parse()

	logging.Setup(os.Stderr, os.Getenv("LOG_LEVEL"))

	cfg, err := loadConfig(*configPath)
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	logging.Setup(os.Stderr, cfg.Logging.Level)

	tlsConfig, err := smtptls.ServerConfig(cfg.TLS.CertFile, cfg.TLS.KeyFile)
	if err != nil {
		slog.Error("failed to setup TLS", "error", err)
		os.Exit(1)
	}

	tlsMode := "self-signed"
	if cfg.TLS.CertFile != "" && cfg.TLS.KeyFile != "" {
		tlsMode = "file"
	}

	var opts []stdout.Option
	if *raw {
		opts = append(opts, stdout.WithRaw())
	}

	server := mailsink.New(mailsink.Config{
		ListenAddr:     cfg.Sink.Listen,
		Hostname:       "localhost",
		Provider:       stdout.New(opts...),
		TLSConfig:      tlsConfig,
		Username:       cfg.Sink.Username,
		Password:       cfg.Sink.Password,
		MaxMessageSize: cfg.Sink.MaxMessageSize,
	})

	slog.Info("starting mail sink",
		"listen", cfg.Sink.Listen,
		"auth_enabled", cfg.SinkAuthEnabled(),
		"tls_mode", tlsMode,
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)

	go func() {
		sig := <-sigCh
		slog.Info("received signal, initiating shutdown", "signal", sig)
		cancel()
	}()

	if err := server.ListenAndServe(ctx); err != nil {
		slog.Error("server error", "error", err)
		os.Exit(1)
	}

	slog.Info("mail sink stopped")
}

func loadConfig(path string) (*config.Config, error) {
	if path != "" {
		return config.LoadFromFile(path)
	}
	return config.Load()
}
