// Package ses implements a Provider that sends emails via AWS SES v2.
package ses

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	sesv2 "github.com/aws/aws-sdk-go-v2/service/sesv2"
	"github.com/aws/aws-sdk-go-v2/service/sesv2/types"

	"github.com/shineum/smtp-mailer/internal/email"
	"github.com/shineum/smtp-mailer/internal/provider"
)

// Config holds the settings for creating a Provider.
type Config struct {
	Region          string
	AccessKeyID     string
	SecretAccessKey string
	// Sender overrides the message From address as the SES identity.
	Sender string
}

// SendEmailAPI is the SES v2 SendEmail operation.
type SendEmailAPI interface {
	SendEmail(ctx context.Context, params *sesv2.SendEmailInput, optFns ...func(*sesv2.Options)) (*sesv2.SendEmailOutput, error)
}

// Provider sends emails through the AWS SES v2 API, one request per
// recipient.
type Provider struct {
	sender string
	client SendEmailAPI
}

// New creates a Provider. Static credentials are used when both keys are
// set; otherwise the default AWS credential chain applies.
func New(ctx context.Context, cfg Config) (*Provider, error) {
	opts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(cfg.Region),
	}
	if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	return NewWithClient(cfg.Sender, sesv2.NewFromConfig(awsCfg)), nil
}

// NewWithClient creates a Provider with a custom client.
func NewWithClient(sender string, client SendEmailAPI) *Provider {
	return &Provider{
		sender: sender,
		client: client,
	}
}

// Send delivers msg to each recipient in order. Messages with attachments
// are sent as raw MIME; others use the SES simple format. The first
// rejected recipient stops the loop.
func (p *Provider) Send(ctx context.Context, msg *email.Email) error {
	from := p.sender
	if from == "" {
		from = msg.From
	}

	for _, rcpt := range msg.To {
		input, err := p.buildInput(from, rcpt, msg)
		if err != nil {
			return err
		}

		out, err := p.client.SendEmail(ctx, input)
		if err != nil {
			return fmt.Errorf("%w: SES rejected message to %s: %w", provider.ErrDelivery, rcpt, err)
		}
		slog.Info("message sent",
			"provider", p.Name(),
			"recipient", rcpt,
			"message_id", aws.ToString(out.MessageId),
		)
	}
	return nil
}

// Name returns the provider name.
func (p *Provider) Name() string {
	return "ses"
}

func (p *Provider) buildInput(from, rcpt string, msg *email.Email) (*sesv2.SendEmailInput, error) {
	if len(msg.Attachments) == 0 {
		return buildSimpleInput(from, rcpt, msg), nil
	}

	raw, err := msg.Render(rcpt)
	if err != nil {
		return nil, fmt.Errorf("failed to build raw message: %w", err)
	}
	return &sesv2.SendEmailInput{
		FromEmailAddress: aws.String(from),
		Destination:      &types.Destination{ToAddresses: []string{rcpt}},
		Content: &types.EmailContent{
			Raw: &types.RawMessage{Data: raw},
		},
	}, nil
}

func buildSimpleInput(from, rcpt string, msg *email.Email) *sesv2.SendEmailInput {
	body := &types.Body{}
	if msg.HtmlBody != "" {
		body.Html = &types.Content{
			Data:    aws.String(msg.HtmlBody),
			Charset: aws.String("UTF-8"),
		}
	}
	if msg.TextBody != "" {
		body.Text = &types.Content{
			Data:    aws.String(msg.TextBody),
			Charset: aws.String("UTF-8"),
		}
	}

	return &sesv2.SendEmailInput{
		FromEmailAddress: aws.String(from),
		Destination:      &types.Destination{ToAddresses: []string{rcpt}},
		Content: &types.EmailContent{
			Simple: &types.Message{
				Subject: &types.Content{
					Data:    aws.String(msg.Subject),
					Charset: aws.String("UTF-8"),
				},
				Body: body,
			},
		},
	}
}
