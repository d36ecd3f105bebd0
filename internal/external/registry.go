package external

import (
	"log/slog"
	"net/http"

	"github.com/aws/aws-sdk-go-v2/aws"

	"amberline/internal/config"
	"amberline/internal/types"
)

// ClientRegistry holds the vendor clients a binary needs. The SMS side is a
// credential set plus a constructor: the SMS gateway decides whether the
// credentials are usable before any client exists.
type ClientRegistry struct {
	Email EmailProvider

	Twilio         TwilioConfig
	NewSMSProvider func(TwilioConfig) SMSProvider
}

// NewClientRegistry picks stub or real vendors. Test mode and APP_ENV=local
// get stubs for both channels; EMAIL_PROVIDER=stub forces the email stub in
// any environment.
func NewClientRegistry(cfg *config.Config, awsCfg aws.Config, logger *slog.Logger) *ClientRegistry {
	if logger == nil {
		logger = slog.Default()
	}
	useStubs := cfg.IsTestMode || cfg.Environment == "local"

	reg := &ClientRegistry{
		Twilio: TwilioConfig{
			AccountSID:       cfg.SMS.AccountSID,
			AuthToken:        cfg.SMS.AuthToken,
			FromNumber:       cfg.SMS.FromNumber,
			VerifyServiceSID: cfg.SMS.VerifyServiceSID,
			Logger:           logger.With("client", "twilio"),
		},
	}

	switch {
	case useStubs || cfg.Email.Provider == "stub":
		reg.Email = NewStubEmailProvider(logger.With("mode", "stub"))
	case cfg.Email.Provider == "sendgrid":
		reg.Email = NewSendGridClient(&http.Client{Timeout: cfg.Email.Timeout}, SendGridClientConfig{
			APIKey: cfg.Email.SendGridAPIKey,
			Logger: logger.With("client", "sendgrid"),
		})
	default:
		reg.Email = NewSESClient(awsCfg, SESClientConfig{Logger: logger.With("client", "ses")})
	}

	if useStubs {
		stub := NewStubSMSProvider(logger.With("mode", "stub"))
		if !reg.Twilio.Complete() {
			reg.Twilio = TwilioConfig{
				AccountSID:       "ACstub",
				AuthToken:        types.SecretString("stub"),
				FromNumber:       "+15550000000",
				VerifyServiceSID: "VAstub",
			}
		}
		reg.NewSMSProvider = func(TwilioConfig) SMSProvider { return stub }
		logger.Info("initializing external clients in STUB mode", "environment", cfg.Environment)
		return reg
	}

	httpClient := &http.Client{Timeout: cfg.SMS.Timeout}
	reg.NewSMSProvider = func(tc TwilioConfig) SMSProvider {
		return NewTwilioClient(httpClient, tc)
	}
	logger.Info("initializing external clients", "environment", cfg.Environment, "email_provider", cfg.Email.Provider)
	return reg
}
