package external

import (
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/stretchr/testify/assert"

	"amberline/internal/config"
)

func TestNewClientRegistry_LocalUsesStubs(t *testing.T) {
	cfg := &config.Config{Environment: "local"}
	cfg.Email.Provider = "ses"

	reg := NewClientRegistry(cfg, aws.Config{}, nil)

	assert.IsType(t, &StubEmailProvider{}, reg.Email)
	assert.True(t, reg.Twilio.Complete(), "local mode fills placeholder credentials")
	assert.IsType(t, &StubSMSProvider{}, reg.NewSMSProvider(reg.Twilio))
}

func TestNewClientRegistry_Production(t *testing.T) {
	cfg := &config.Config{Environment: "prod"}
	cfg.Email.Provider = "sendgrid"
	cfg.Email.SendGridAPIKey = "SG.x"
	cfg.SMS.AccountSID = "AC1"

	reg := NewClientRegistry(cfg, aws.Config{}, nil)

	assert.IsType(t, &SendGridClient{}, reg.Email)
	assert.False(t, reg.Twilio.Complete(), "partial credentials stay partial")
	assert.IsType(t, &TwilioClient{}, reg.NewSMSProvider(reg.Twilio))
}

func TestNewClientRegistry_SESDefault(t *testing.T) {
	cfg := &config.Config{Environment: "staging"}
	cfg.Email.Provider = "ses"

	reg := NewClientRegistry(cfg, aws.Config{Region: "us-east-1"}, nil)
	assert.IsType(t, &SESClient{}, reg.Email)
}
