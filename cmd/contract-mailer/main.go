// Package main sends the contract email once and exits.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/shineum/smtp-mailer/internal/config"
	"github.com/shineum/smtp-mailer/internal/contract"
	"github.com/shineum/smtp-mailer/internal/fsutil"
	"github.com/shineum/smtp-mailer/internal/logging"
	"github.com/shineum/smtp-mailer/internal/mailer"
	"github.com/shineum/smtp-mailer/internal/provider"
	"github.com/shineum/smtp-mailer/internal/provider/resend"
	"github.com/shineum/smtp-mailer/internal/provider/ses"
	smtpprovider "github.com/shineum/smtp-mailer/internal/provider/smtp"
	"github.com/shineum/smtp-mailer/internal/provider/stdout"
)

const (
	exitFailure = 1
	exitConfig  = 2
)

func main() {
	os.Exit(run(os.Args[1:], os.Stderr))
}

// run sends the contract email once and returns the process exit code.
func run(args []string, stderr io.Writer) int {
	fs := flag.NewFlagSet("contract-mailer", flag.ContinueOnError)
	fs.SetOutput(stderr)
	configPath := fs.String("config", "", "path to YAML configuration file (optional)")
	dryRun := fs.Bool("dry-run", false, "print the message instead of sending it")
	if err := fs.Parse(args); err != nil {
		return exitConfig
	}

	// The configured level is only known after loading, but load errors
	// are logged as JSON too.
	logging.Setup(stderr, os.Getenv("LOG_LEVEL"))

	cfg, err := loadConfig(*configPath)
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		return exitConfig
	}
	if *dryRun {
		cfg.Provider = config.ProviderStdout
	}

	logging.Setup(stderr, cfg.Logging.Level)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	prov, err := selectProvider(ctx, cfg)
	if err != nil {
		slog.Error("failed to set up delivery provider", "provider", cfg.Provider, "error", err)
		return exitConfig
	}

	svc := contract.New(cfg, prov, fsutil.Validator{})
	if err := svc.SendContractEmail(ctx); err != nil {
		// Already logged by the service.
		if contract.Classify(err) == contract.KindConfig {
			return exitConfig
		}
		return exitFailure
	}
	return 0
}

// loadConfig reads the YAML file at path with environment overrides, or
// the environment alone when path is empty.
func loadConfig(path string) (*config.Config, error) {
	if path != "" {
		return config.LoadFromFile(path)
	}
	return config.Load()
}

// selectProvider builds the delivery backend named by cfg.Provider.
func selectProvider(ctx context.Context, cfg *config.Config) (provider.Provider, error) {
	switch cfg.Provider {
	case config.ProviderSMTP:
		// Only the transport mode is chosen here; every other field falls
		// back to the configured relay inside the composer.
		defaults := mailer.CredentialsFromConfig(cfg.SMTP)
		slog.Info("using SMTP provider", "server", defaults.Addr(), "implicit_tls", defaults.ImplicitTLS)
		return smtpprovider.New(
			mailer.Credentials{ImplicitTLS: defaults.ImplicitTLS},
			mailer.WithDefaultCredentials(defaults),
		), nil

	case config.ProviderSES:
		if !cfg.SESConfigured() {
			return nil, fmt.Errorf("%w: SES_REGION and SES_SENDER are required", config.ErrInvalid)
		}
		slog.Info("using AWS SES provider", "region", cfg.SES.Region, "sender", cfg.SES.Sender)
		p, err := ses.New(ctx, ses.Config{
			Region:          cfg.SES.Region,
			AccessKeyID:     cfg.SES.AccessKeyID,
			SecretAccessKey: cfg.SES.SecretAccessKey,
			Sender:          cfg.SES.Sender,
		})
		if err != nil {
			return nil, err
		}
		return p, nil

	case config.ProviderResend:
		from := cfg.Resend.FromEmail
		if from == "" {
			from = cfg.Mail.From
		}
		slog.Info("using Resend provider", "sender", from)
		p, err := resend.New(cfg.Resend.APIKey, from)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", config.ErrInvalid, err)
		}
		return p, nil

	case config.ProviderStdout:
		slog.Info("using stdout provider")
		return stdout.New(), nil

	default:
		return nil, fmt.Errorf("%w: unknown provider %q", config.ErrInvalid, cfg.Provider)
	}
}
