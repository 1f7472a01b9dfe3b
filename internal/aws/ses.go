package aws

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ses"
	"github.com/aws/aws-sdk-go-v2/service/ses/types"
	"github.com/tailingsiq/tailingsiq/internal/config"
)

type SESService struct {
	client    *ses.Client
	fromEmail string
}

func NewSESService(ctx context.Context, cfg config.AWSConfig) (*SESService, error) {
	awsCfg, err := LoadAWSConfig(ctx, cfg)
	if err != nil {
		return nil, err
	}

	// endpoint override is for LocalStack
	client := ses.NewFromConfig(awsCfg, func(o *ses.Options) {
		if cfg.EndpointURL != "" {
			o.BaseEndpoint = aws.String(cfg.EndpointURL)
		}
	})

	return &SESService{
		client:    client,
		fromEmail: cfg.FromEmail,
	}, nil
}

func (s *SESService) SendEmail(ctx context.Context, to, subject, body string) error {
	input := &ses.SendEmailInput{
		Destination: &types.Destination{
			ToAddresses: []string{to},
		},
		Message: &types.Message{
			Body: &types.Body{
				Text: &types.Content{
					Data: aws.String(body),
				},
			},
			Subject: &types.Content{
				Data: aws.String(subject),
			},
		},
		Source: aws.String(s.fromEmail),
	}

	_, err := s.client.SendEmail(ctx, input)
	if err != nil {
		return fmt.Errorf("failed to send email via SES: %w", err)
	}

	return nil
}

// VerifySender registers the from address. SES (and LocalStack) refuse
// mail from unverified identities.
func (s *SESService) VerifySender(ctx context.Context) error {
	_, err := s.client.VerifyEmailIdentity(ctx, &ses.VerifyEmailIdentityInput{
		EmailAddress: aws.String(s.fromEmail),
	})
	if err != nil {
		return fmt.Errorf("failed to verify sender %s: %w", s.fromEmail, err)
	}
	return nil
}

// SentCount reports how many messages SES has accepted in the current
// sending window.
func (s *SESService) SentCount(ctx context.Context) (float64, error) {
	out, err := s.client.GetSendQuota(ctx, &ses.GetSendQuotaInput{})
	if err != nil {
		return 0, fmt.Errorf("failed to get send quota: %w", err)
	}
	return out.SentLast24Hours, nil
}

func (s *SESService) FromEmail() string {
	return s.fromEmail
}
