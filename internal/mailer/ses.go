package mailer

import (
	"context"
	"fmt"
	"regexp"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	"github.com/aws/aws-sdk-go-v2/service/sesv2/types"

	"github.com/techgrid/site-backend/internal/pkg/logger"
)

// sesAPI is the subset of the SES v2 client the transport uses.
type sesAPI interface {
	SendEmail(ctx context.Context, in *sesv2.SendEmailInput, optFns ...func(*sesv2.Options)) (*sesv2.SendEmailOutput, error)
}

// SESConfig configures the SES transport.
type SESConfig struct {
	Region           string
	AccessKey        string
	SecretKey        string
	ConfigurationSet string
	Timeout          time.Duration
}

// SESTransport delivers mail through AWS SES v2.
type SESTransport struct {
	client    sesAPI
	configSet string
	timeout   time.Duration
}

// NewSESTransport creates an SES transport. Static credentials are used when
// given; otherwise the default AWS credential chain applies.
func NewSESTransport(ctx context.Context, cfg SESConfig) (*SESTransport, error) {
	if cfg.Region == "" {
		cfg.Region = "us-east-1"
	}
	opts := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(cfg.Region)}
	if cfg.AccessKey != "" && cfg.SecretKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, "")))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("load AWS config: %w", err)
	}
	return newSESTransport(sesv2.NewFromConfig(awsCfg), cfg), nil
}

func newSESTransport(client sesAPI, cfg SESConfig) *SESTransport {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	return &SESTransport{client: client, configSet: cfg.ConfigurationSet, timeout: cfg.Timeout}
}

// SES tag values allow only [A-Za-z0-9_-].
var tagUnsafe = regexp.MustCompile(`[^A-Za-z0-9_\-]`)

// Deliver sends one message.
func (t *SESTransport) Deliver(ctx context.Context, msg *Message) error {
	ctx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()

	input := &sesv2.SendEmailInput{
		FromEmailAddress: aws.String(msg.From),
		Destination:      &types.Destination{ToAddresses: []string{msg.To}},
		Content: &types.EmailContent{
			Simple: &types.Message{
				Subject: &types.Content{Data: aws.String(msg.Subject), Charset: aws.String("UTF-8")},
				Body:    &types.Body{},
			},
		},
	}
	if msg.HTML != "" {
		input.Content.Simple.Body.Html = &types.Content{Data: aws.String(msg.HTML), Charset: aws.String("UTF-8")}
	}
	if msg.Text != "" {
		input.Content.Simple.Body.Text = &types.Content{Data: aws.String(msg.Text), Charset: aws.String("UTF-8")}
	}
	if msg.ReplyTo != "" {
		input.ReplyToAddresses = []string{msg.ReplyTo}
	}
	if t.configSet != "" {
		input.ConfigurationSetName = aws.String(t.configSet)
	}
	for k, v := range msg.Tags {
		input.EmailTags = append(input.EmailTags, types.MessageTag{
			Name:  aws.String(tagUnsafe.ReplaceAllString(k, "_")),
			Value: aws.String(tagUnsafe.ReplaceAllString(v, "_")),
		})
	}

	out, err := t.client.SendEmail(ctx, input)
	if err != nil {
		return fmt.Errorf("ses send: %w", err)
	}
	logger.Debug("ses: sent", "email", msg.To, "message_id", aws.ToString(out.MessageId))
	return nil
}

// LogTransport writes messages to the log instead of sending them. Used
// when no mail provider is configured.
type LogTransport struct{}

// Deliver logs the envelope of msg.
func (LogTransport) Deliver(_ context.Context, msg *Message) error {
	logger.Info("mail: delivery skipped (log transport)", "email", msg.To, "subject", msg.Subject)
	return nil
}
