// Package sms is the SMS Gateway. It wraps an external.SMSProvider for alert
// fan-out and the two-step verification contract, and degrades to a disabled
// state when provider credentials are incomplete.
package sms

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"golang.org/x/time/rate"

	"amberline/internal/external"
	"amberline/internal/types"
)

// Config configures a Gateway.
type Config struct {
	Credentials external.TwilioConfig
	// NewProvider builds the vendor client. Called once, and only when
	// Enabled is true and Credentials are complete.
	NewProvider func(external.TwilioConfig) external.SMSProvider
	// SendRate caps outbound messages per second. <= 0 means unlimited.
	SendRate float64
	Enabled  bool
	Logger   *slog.Logger
}

// Gateway sends SMS alerts and drives provider-side verification.
type Gateway struct {
	provider external.SMSProvider
	limiter  *rate.Limiter
	logger   *slog.Logger
	reason   string
}

// NewGateway validates credentials and constructs the provider. A gateway
// that cannot be fully configured is returned disabled rather than as an
// error; every call on it fails without network I/O.
func NewGateway(cfg Config) *Gateway {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	limit := rate.Inf
	if cfg.SendRate > 0 {
		limit = rate.Limit(cfg.SendRate)
	}
	g := &Gateway{
		limiter: rate.NewLimiter(limit, 1),
		logger:  logger,
	}

	switch {
	case !cfg.Enabled:
		g.reason = "sms gateway disabled by feature flag"
	case !cfg.Credentials.Complete():
		g.reason = "sms gateway disabled: provider credentials incomplete"
	case cfg.NewProvider == nil:
		g.reason = "sms gateway disabled: no provider constructor"
	default:
		g.provider = cfg.NewProvider(cfg.Credentials)
	}
	if g.provider == nil {
		if g.reason == "" {
			g.reason = "sms gateway disabled: provider constructor returned nil"
		}
		logger.Warn(g.reason)
	}
	return g
}

// Enabled reports whether the gateway will attempt deliveries.
func (g *Gateway) Enabled() bool {
	return g.provider != nil
}

func (g *Gateway) disabledErr() error {
	return types.NewAppError(types.ErrCodeGatewayDisabled, g.reason, nil)
}

// SendAlert sends body to every number. Duplicates are collapsed before
// sending, so each distinct number appears exactly once in the result.
// Each blank entry gets its own invalid_recipient failure and is never
// sent. One failure never stops the remaining sends.
func (g *Gateway) SendAlert(ctx context.Context, body string, phones []string) []types.DeliveryResult {
	numbers, blanks := uniqueNumbers(phones)
	results := make([]types.DeliveryResult, 0, len(numbers)+blanks)
	for range blanks {
		results = append(results, types.FailedDelivery(types.ChannelSMS, "",
			types.NewAppError(types.ErrCodeInvalidRecipient, "blank phone number", nil)))
	}

	if !g.Enabled() {
		err := g.disabledErr()
		for _, n := range numbers {
			results = append(results, types.FailedDelivery(types.ChannelSMS, n, err))
		}
		return results
	}

	for _, n := range numbers {
		results = append(results, g.sendOne(ctx, n, body))
	}
	return results
}

func (g *Gateway) sendOne(ctx context.Context, to, body string) (result types.DeliveryResult) {
	if err := g.limiter.Wait(ctx); err != nil {
		return types.FailedDelivery(types.ChannelSMS, to,
			types.NewAppError(types.ErrCodeUpstreamSMSProvider, "send aborted", err))
	}

	defer func() {
		if r := recover(); r != nil {
			g.logger.ErrorContext(ctx, "sms provider panicked", "dest", external.RedactPhone(to), "panic", r)
			result = types.FailedDelivery(types.ChannelSMS, to,
				types.NewAppError(types.ErrCodeInternalUnexpected, fmt.Sprintf("sms provider panic: %v", r), nil))
		}
	}()

	sid, err := g.provider.SendMessage(ctx, to, body)
	if err != nil {
		g.logger.WarnContext(ctx, "sms delivery failed", "dest", external.RedactPhone(to), "error", err)
		return types.FailedDelivery(types.ChannelSMS, to, err)
	}
	return types.DeliveryResult{
		Channel:    types.ChannelSMS,
		Recipient:  to,
		Success:    true,
		ProviderID: sid,
	}
}

// SendVerificationCode asks the provider to issue a code. Success is
// VerificationPending; the code itself never passes through this process.
func (g *Gateway) SendVerificationCode(ctx context.Context, phone string) (types.VerificationStatus, error) {
	if !g.Enabled() {
		return types.VerificationFailed, g.disabledErr()
	}
	phone = strings.TrimSpace(phone)
	status, err := g.provider.StartVerification(ctx, phone)
	if err != nil {
		g.logger.WarnContext(ctx, "verification request failed", "dest", external.RedactPhone(phone), "error", err)
		return types.VerificationFailed, err
	}
	if types.VerificationStatus(status) != types.VerificationPending {
		return types.VerificationFailed, types.NewAppError(types.ErrCodeUpstreamSMSProvider,
			fmt.Sprintf("unexpected verification status %q", status), nil)
	}
	return types.VerificationPending, nil
}

// CheckVerificationCode submits code for phone. Only VerificationApproved
// confirms ownership. Pending and unknown provider statuses map to
// VerificationDenied; an expired or missing verification maps to
// VerificationExpired.
func (g *Gateway) CheckVerificationCode(ctx context.Context, phone, code string) (types.VerificationStatus, error) {
	if !g.Enabled() {
		return types.VerificationFailed, g.disabledErr()
	}
	phone = strings.TrimSpace(phone)
	status, err := g.provider.CheckVerification(ctx, phone, strings.TrimSpace(code))
	if err != nil {
		g.logger.WarnContext(ctx, "verification check failed", "dest", external.RedactPhone(phone), "error", err)
		return types.VerificationFailed, err
	}
	switch types.VerificationStatus(status) {
	case types.VerificationApproved:
		return types.VerificationApproved, nil
	case types.VerificationExpired:
		return types.VerificationExpired, nil
	default:
		return types.VerificationDenied, nil
	}
}

// uniqueNumbers trims and dedupes phones. Blank entries are counted, not
// sent.
func uniqueNumbers(phones []string) (numbers []string, blanks int) {
	seen := make(map[string]struct{}, len(phones))
	out := make([]string, 0, len(phones))
	for _, p := range phones {
		p = strings.TrimSpace(p)
		if p == "" {
			blanks++
			continue
		}
		if _, ok := seen[p]; ok {
			continue
		}
		seen[p] = struct{}{}
		out = append(out, p)
	}
	return out, blanks
}
