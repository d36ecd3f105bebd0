package external

import (
	"context"
	"log/slog"

	"github.com/google/uuid"

	"amberline/internal/types"
)

// StubApprovalCode is the only code StubSMSProvider approves.
const StubApprovalCode = "000000"

// StubEmailProvider logs sends and returns a fake message ID. Used when
// EMAIL_PROVIDER=stub or APP_ENV=local.
type StubEmailProvider struct {
	logger *slog.Logger
}

// NewStubEmailProvider creates a new StubEmailProvider.
func NewStubEmailProvider(logger *slog.Logger) *StubEmailProvider {
	if logger == nil {
		logger = slog.Default()
	}
	return &StubEmailProvider{logger: logger}
}

func (s *StubEmailProvider) Send(ctx context.Context, input types.SendInput) (string, error) {
	s.logger.InfoContext(ctx, "stub: email send",
		"to", RedactEmail(input.To),
		"subject", input.Subject,
	)
	return "stub-" + uuid.NewString(), nil
}

// StubSMSProvider logs sends and approves StubApprovalCode. Used for local
// development so the verification flow can be exercised without Twilio.
type StubSMSProvider struct {
	logger *slog.Logger
}

// NewStubSMSProvider creates a new StubSMSProvider.
func NewStubSMSProvider(logger *slog.Logger) *StubSMSProvider {
	if logger == nil {
		logger = slog.Default()
	}
	return &StubSMSProvider{logger: logger}
}

func (s *StubSMSProvider) SendMessage(ctx context.Context, to, body string) (string, error) {
	s.logger.InfoContext(ctx, "stub: sms send", "to", RedactPhone(to), "length", len([]rune(body)))
	return "SMstub" + uuid.NewString(), nil
}

func (s *StubSMSProvider) StartVerification(ctx context.Context, to string) (string, error) {
	s.logger.InfoContext(ctx, "stub: verification started", "to", RedactPhone(to), "code", StubApprovalCode)
	return string(types.VerificationPending), nil
}

func (s *StubSMSProvider) CheckVerification(_ context.Context, _, code string) (string, error) {
	if code == StubApprovalCode {
		return string(types.VerificationApproved), nil
	}
	return string(types.VerificationPending), nil
}

var (
	_ EmailProvider = (*StubEmailProvider)(nil)
	_ SMSProvider   = (*StubSMSProvider)(nil)
)
