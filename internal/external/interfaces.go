package external

import (
	"context"

	"amberline/internal/types"
)

// EmailProvider transmits one plain-text message. Implementations: SESClient,
// SendGridClient, StubEmailProvider.
type EmailProvider interface {
	// Send returns the provider's message ID.
	Send(ctx context.Context, input types.SendInput) (providerMsgID string, err error)
}

// SMSProvider is the SMS/verification vendor. Implementations: TwilioClient,
// StubSMSProvider.
type SMSProvider interface {
	// SendMessage sends body to one E.164 number and returns the message SID.
	SendMessage(ctx context.Context, to, body string) (sid string, err error)

	// StartVerification asks the vendor to issue a one-time code to "to".
	// Returns the vendor status string (normally "pending").
	StartVerification(ctx context.Context, to string) (status string, err error)

	// CheckVerification submits a code. Returns the vendor status string;
	// only "approved" confirms ownership of the number.
	CheckVerification(ctx context.Context, to, code string) (status string, err error)
}
