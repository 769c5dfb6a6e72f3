// Package config provides environment-variable-first configuration loading
// with optional YAML file fallback for the contract mailer and the local
// mail sink.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/docker/go-units"
	"gopkg.in/yaml.v3"
)

// ErrInvalid is wrapped by every configuration error, whether a value is
// missing or malformed.
var ErrInvalid = errors.New("invalid configuration")

// Delivery provider names.
const (
	ProviderSMTP   = "smtp"
	ProviderSES    = "ses"
	ProviderResend = "resend"
	ProviderStdout = "stdout"
)

const (
	defaultSubject        = "Contract"
	defaultBody           = "This is a test message"
	defaultContractPath   = "contract.png"
	defaultSinkListen     = "127.0.0.1:2525"
)

// DefaultSinkMaxMessageSize is the largest message the mail sink accepts
// unless SINK_MAX_MESSAGE_SIZE says otherwise.
const DefaultSinkMaxMessageSize = 25 * units.MiB

// Config holds the complete application configuration.
type Config struct {
	Provider string         `yaml:"provider"`
	SMTP     SMTPConfig     `yaml:"smtp"`
	Mail     MailConfig     `yaml:"mail"`
	Contract ContractConfig `yaml:"contract"`
	SES      SESConfig      `yaml:"ses"`
	Resend   ResendConfig   `yaml:"resend"`
	Sink     SinkConfig     `yaml:"sink"`
	TLS      TLSConfig      `yaml:"tls"`
	Logging  LoggingConfig  `yaml:"logging"`
}

// SMTPConfig holds the credentials and address of the outgoing SMTP relay.
type SMTPConfig struct {
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	Server   string `yaml:"server"`
	Port     int    `yaml:"port"`
	// SSL selects implicit TLS on connect instead of a STARTTLS upgrade.
	SSL           bool `yaml:"ssl"`
	TLSSkipVerify bool `yaml:"tls_skip_verify"`
}

// MailConfig holds the envelope and plain text content of the contract email.
type MailConfig struct {
	From    string `yaml:"from"`
	To      string `yaml:"to"`
	Subject string `yaml:"subject"`
	Body    string `yaml:"body"`
}

// ContractConfig describes the contract whose email is being sent.
type ContractConfig struct {
	SellerName     string `yaml:"seller_name"`
	Type           string `yaml:"type"`
	CompanyName    string `yaml:"company_name"`
	Service        string `yaml:"service"`
	SignaturePath  string `yaml:"signature_path"`
	AttachmentPath string `yaml:"attachment_path"`
	AttachPhoto    bool   `yaml:"attach_photo"`
}

// SESConfig holds AWS SES v2 configuration.
type SESConfig struct {
	Region          string `yaml:"region"`
	AccessKeyID     string `yaml:"access_key_id"`
	SecretAccessKey string `yaml:"secret_access_key"`
	Sender          string `yaml:"sender"`
}

// ResendConfig holds Resend API configuration.
type ResendConfig struct {
	APIKey    string `yaml:"api_key"`
	FromEmail string `yaml:"from_email"`
}

// SinkConfig holds settings for the local mail sink server.
type SinkConfig struct {
	Listen         string `yaml:"listen"`
	Username       string `yaml:"username"`
	Password       string `yaml:"password"`
	MaxMessageSize int64  `yaml:"max_message_size"`
}

// TLSConfig holds TLS certificate file paths used by the sink.
type TLSConfig struct {
	CertFile string `yaml:"cert_file"`
	KeyFile  string `yaml:"key_file"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level string `yaml:"level"`
}

// Load loads configuration from environment variables with sensible defaults.
func Load() (*Config, error) {
	cfg := &Config{}
	cfg.applyDefaults()
	if err := cfg.applyEnvVars(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadFromFile loads configuration from a YAML file as the base layer,
// then overrides with environment variables.
func LoadFromFile(path string) (*Config, error) {
	cfg := &Config{}
	cfg.applyDefaults()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to read config file: %w", ErrInvalid, err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("%w: failed to parse config file: %w", ErrInvalid, err)
	}

	if err := cfg.applyEnvVars(); err != nil {
		return nil, err
	}
	cfg.Provider = strings.ToLower(cfg.Provider)

	return cfg, nil
}

// Validate checks that every setting required by the selected provider is
// present. The sink settings are not checked here.
func (c *Config) Validate() error {
	var missing []string

	switch c.Provider {
	case ProviderSMTP:
		if c.SMTP.Server == "" {
			missing = append(missing, "SMTP_SERVER")
		}
		if c.SMTP.Port <= 0 {
			missing = append(missing, "SMTP_PORT")
		}
		if c.SMTP.Username == "" {
			missing = append(missing, "SMTP_USER")
		}
		if c.SMTP.Password == "" {
			missing = append(missing, "SMTP_PASSWORD")
		}
	case ProviderSES:
		if !c.SESConfigured() {
			missing = append(missing, "SES_REGION", "SES_SENDER")
		}
	case ProviderResend:
		if c.Resend.APIKey == "" {
			missing = append(missing, "RESEND_API_KEY")
		}
		if c.Resend.FromEmail == "" && c.Mail.From == "" {
			missing = append(missing, "RESEND_FROM_EMAIL")
		}
	case ProviderStdout:
	default:
		return fmt.Errorf("%w: unknown provider %q", ErrInvalid, c.Provider)
	}

	if c.Mail.To == "" {
		missing = append(missing, "MAIL_TO")
	}

	if len(missing) > 0 {
		return fmt.Errorf("%w: missing %s", ErrInvalid, strings.Join(missing, ", "))
	}
	return nil
}

// SESConfigured returns true if the SES region and sender are set.
func (c *Config) SESConfigured() bool {
	return c.SES.Region != "" && c.SES.Sender != ""
}

// SinkAuthEnabled returns true if both sink username and password are set.
func (c *Config) SinkAuthEnabled() bool {
	return c.Sink.Username != "" && c.Sink.Password != ""
}

// Sender returns the From address: MAIL_FROM when set, otherwise the SMTP
// username.
func (c *Config) Sender() string {
	if c.Mail.From != "" {
		return c.Mail.From
	}
	return c.SMTP.Username
}

func (c *Config) applyDefaults() {
	c.Provider = ProviderSMTP
	c.Mail.Subject = defaultSubject
	c.Mail.Body = defaultBody
	c.Contract.AttachmentPath = defaultContractPath
	c.Contract.AttachPhoto = true
	c.Sink.Listen = defaultSinkListen
	c.Sink.MaxMessageSize = DefaultSinkMaxMessageSize
	c.Logging.Level = "info"
}

// applyEnvVars overrides configuration with environment variable values.
// Only non-empty environment variables override existing values. Values
// that cannot be parsed are reported, not skipped.
func (c *Config) applyEnvVars() error {
	strs := []struct {
		name string
		dst  *string
	}{
		{"SMTP_USER", &c.SMTP.Username},
		{"SMTP_PASSWORD", &c.SMTP.Password},
		{"SMTP_SERVER", &c.SMTP.Server},
		{"MAIL_FROM", &c.Mail.From},
		{"MAIL_TO", &c.Mail.To},
		{"MAIL_SUBJECT", &c.Mail.Subject},
		{"MAIL_BODY", &c.Mail.Body},
		{"CONTRACT_SELLER_NAME", &c.Contract.SellerName},
		{"CONTRACT_TYPE", &c.Contract.Type},
		{"CONTRACT_COMPANY_NAME", &c.Contract.CompanyName},
		{"CONTRACT_SERVICE", &c.Contract.Service},
		{"CONTRACT_SIGNATURE_PATH", &c.Contract.SignaturePath},
		{"CONTRACT_ATTACHMENT_PATH", &c.Contract.AttachmentPath},
		{"SES_REGION", &c.SES.Region},
		{"SES_ACCESS_KEY_ID", &c.SES.AccessKeyID},
		{"SES_SECRET_ACCESS_KEY", &c.SES.SecretAccessKey},
		{"SES_SENDER", &c.SES.Sender},
		{"RESEND_API_KEY", &c.Resend.APIKey},
		{"RESEND_FROM_EMAIL", &c.Resend.FromEmail},
		{"SINK_LISTEN", &c.Sink.Listen},
		{"SINK_USERNAME", &c.Sink.Username},
		{"SINK_PASSWORD", &c.Sink.Password},
		{"TLS_CERT_FILE", &c.TLS.CertFile},
		{"TLS_KEY_FILE", &c.TLS.KeyFile},
	}
	for _, s := range strs {
		if v := os.Getenv(s.name); v != "" {
			*s.dst = v
		}
	}

	if v := os.Getenv("PROVIDER"); v != "" {
		c.Provider = strings.ToLower(v)
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		c.Logging.Level = strings.ToLower(v)
	}

	if v := os.Getenv("SMTP_PORT"); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil || port <= 0 || port > 65535 {
			return fmt.Errorf("%w: SMTP_PORT %q is not a valid port", ErrInvalid, v)
		}
		c.SMTP.Port = port
	}
	if v := os.Getenv("SINK_MAX_MESSAGE_SIZE"); v != "" {
		size, err := units.RAMInBytes(v)
		if err != nil || size <= 0 {
			return fmt.Errorf("%w: SINK_MAX_MESSAGE_SIZE %q is not a positive size", ErrInvalid, v)
		}
		c.Sink.MaxMessageSize = size
	}

	bools := []struct {
		name string
		dst  *bool
	}{
		{"SMTP_SSL", &c.SMTP.SSL},
		{"SMTP_TLS_SKIP_VERIFY", &c.SMTP.TLSSkipVerify},
		{"ATTACH_PHOTO", &c.Contract.AttachPhoto},
	}
	for _, b := range bools {
		v := os.Getenv(b.name)
		if v == "" {
			continue
		}
		parsed, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("%w: %s %q is not a boolean", ErrInvalid, b.name, v)
		}
		*b.dst = parsed
	}

	return nil
}
