package email

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"amberline/internal/external"
	"amberline/internal/types"
)

// Gateway sends single messages. It never returns an error and never
// retries; callers read the DeliveryResult.
type Gateway struct {
	provider external.EmailProvider
	sender   types.SenderIdentity
	enabled  bool
	logger   *slog.Logger
}

// GatewayConfig configures a Gateway. Enabled=false is the operator kill
// switch: every Send fails with gateway_disabled without touching Provider.
type GatewayConfig struct {
	Provider external.EmailProvider
	Sender   types.SenderIdentity
	Enabled  bool
	Logger   *slog.Logger
}

// NewGateway creates a Gateway.
func NewGateway(cfg GatewayConfig) *Gateway {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	enabled := cfg.Enabled && cfg.Provider != nil
	if !enabled {
		logger.Warn("email gateway disabled")
	}
	return &Gateway{
		provider: cfg.Provider,
		sender:   cfg.Sender,
		enabled:  enabled,
		logger:   logger,
	}
}

// Send delivers one message to "to". A provider panic is recovered and
// reported as a failed result so sibling sends continue.
func (g *Gateway) Send(ctx context.Context, to, subject, body string) (result types.DeliveryResult) {
	to = strings.TrimSpace(to)
	result = types.DeliveryResult{Channel: types.ChannelEmail, Recipient: to}

	if !g.enabled {
		return types.FailedDelivery(types.ChannelEmail, to,
			types.NewAppError(types.ErrCodeGatewayDisabled, "email gateway disabled", nil))
	}
	if to == "" {
		return types.FailedDelivery(types.ChannelEmail, to,
			types.NewAppError(types.ErrCodeInvalidRecipient, "empty recipient address", nil))
	}

	defer func() {
		if r := recover(); r != nil {
			g.logger.ErrorContext(ctx, "email provider panicked", "dest", external.RedactEmail(to), "panic", r)
			result = types.FailedDelivery(types.ChannelEmail, to,
				types.NewAppError(types.ErrCodeInternalUnexpected, fmt.Sprintf("email provider panic: %v", r), nil))
		}
	}()

	msgID, err := g.provider.Send(ctx, types.SendInput{
		To:      to,
		From:    g.sender,
		Subject: subject,
		Body:    body,
	})
	if err != nil {
		if IsBlocklistError(err) {
			g.logger.WarnContext(ctx, "recipient blocked by provider", "dest", external.RedactEmail(to))
		} else {
			g.logger.ErrorContext(ctx, "email delivery failed", "dest", external.RedactEmail(to), "error", err)
		}
		return types.FailedDelivery(types.ChannelEmail, to, err)
	}

	result.Success = true
	result.ProviderID = msgID
	return result
}
