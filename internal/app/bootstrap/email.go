package bootstrap

import (
	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"

	appconfig "github.com/wolfman30/agency-leads/internal/config"
	"github.com/wolfman30/agency-leads/internal/notify"
	"github.com/wolfman30/agency-leads/pkg/logging"
)

// Email provider names reported by BuildEmailSender.
const (
	ProviderSendGrid = "sendgrid"
	ProviderSES      = "ses"
	ProviderStub     = "stub"
	ProviderNone     = "none"
)

// BuildEmailSender picks the email provider from config. It returns a nil
// interface, never a typed nil, when email is not configured so callers can
// compare against nil. awsCfg is only needed for SES.
func BuildEmailSender(cfg *appconfig.Config, awsCfg *aws.Config, logger *logging.Logger) (notify.EmailSender, string) {
	if cfg == nil || !cfg.EmailConfigured() {
		return nil, ProviderNone
	}
	if logger == nil {
		logger = logging.Default()
	}

	switch cfg.EmailProvider {
	case "stub":
		return notify.NewStubEmailSender(logger), ProviderStub
	case "ses":
		if awsCfg == nil {
			logger.Warn("EMAIL_PROVIDER=ses but no AWS config; email disabled")
			return nil, ProviderNone
		}
		sender := notify.NewSESSender(sesv2.NewFromConfig(*awsCfg), notify.SESConfig{
			FromEmail: cfg.EmailFromAddress,
			FromName:  cfg.EmailFromName,
		}, logger)
		if sender == nil {
			return nil, ProviderNone
		}
		return sender, ProviderSES
	default:
		sender := notify.NewSendGridSender(notify.SendGridConfig{
			APIKey:    cfg.SendGridAPIKey,
			FromEmail: cfg.EmailFromAddress,
			FromName:  cfg.EmailFromName,
		}, logger)
		if sender == nil {
			return nil, ProviderNone
		}
		return sender, ProviderSendGrid
	}
}
