// Package verification owns the subscribe, verify and activate transitions
// for email (token link) and SMS (provider-issued code) subscriptions.
package verification

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"log/slog"
	"strings"

	"amberline/internal/external"
	"amberline/internal/notifications/format"
	"amberline/internal/types"
)

// TokenBytes is the entropy of an email verification token.
const TokenBytes = 32

// EmailStore persists email subscriptions.
type EmailStore interface {
	// CreatePendingEmail inserts or refreshes an unverified subscription.
	// Returns conflict_already_verified when the address is already verified.
	CreatePendingEmail(ctx context.Context, email, location, token string) (*types.EmailSubscription, error)
	// VerifyEmailToken flips verified=true and clears the token on the single
	// record holding token. Returns not_found_subscription otherwise.
	VerifyEmailToken(ctx context.Context, token string) (*types.EmailSubscription, error)
}

// SMSStore persists SMS subscriptions.
type SMSStore interface {
	GetSMSByPhone(ctx context.Context, phone string) (*types.SMSSubscription, error)
	UpsertPendingSMS(ctx context.Context, sub *types.SMSSubscription) (*types.SMSSubscription, error)
	MarkSMSVerified(ctx context.Context, phone string) (*types.SMSSubscription, error)
}

// EmailSender is the Email Gateway.
type EmailSender interface {
	Send(ctx context.Context, to, subject, body string) types.DeliveryResult
}

// CodeGateway is the verification half of the SMS Gateway.
type CodeGateway interface {
	SendVerificationCode(ctx context.Context, phone string) (types.VerificationStatus, error)
	CheckVerificationCode(ctx context.Context, phone, code string) (types.VerificationStatus, error)
}

// Config wires a Service.
type Config struct {
	Emails    EmailStore
	SMS       SMSStore
	Mailer    EmailSender
	Codes     CodeGateway
	Limiter   RequestLimiter
	Formatter format.Formatter
	Clock     types.Clock
	Logger    *slog.Logger
}

// Service runs the verification state machines. It is the only writer of
// the verified flags.
type Service struct {
	emails    EmailStore
	sms       SMSStore
	mailer    EmailSender
	codes     CodeGateway
	limiter   RequestLimiter
	formatter format.Formatter
	clock     types.Clock
	logger    *slog.Logger
}

// NewService creates a Service.
func NewService(cfg Config) *Service {
	s := &Service{
		emails:    cfg.Emails,
		sms:       cfg.SMS,
		mailer:    cfg.Mailer,
		codes:     cfg.Codes,
		limiter:   cfg.Limiter,
		formatter: cfg.Formatter,
		clock:     cfg.Clock,
		logger:    cfg.Logger,
	}
	if s.limiter == nil {
		s.limiter = NoopLimiter{}
	}
	if s.clock == nil {
		s.clock = types.RealClock{}
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	return s
}

// SMSRequest is a request for a verification code.
type SMSRequest struct {
	Phone           string
	Location        string
	RadiusMiles     int
	DigestFrequency types.DigestFrequency
}

// SubscribeEmail stores a pending subscription with a fresh token and mails
// the verification link. Subscribing again before verifying rotates the
// token.
func (s *Service) SubscribeEmail(ctx context.Context, email, location string) (*types.EmailSubscription, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" {
		return nil, types.NewAppError(types.ErrCodeValidationInvalidEmail, "email is required", nil)
	}
	if err := s.limiter.Allow(ctx, "email:"+email); err != nil {
		return nil, err
	}

	token, err := NewToken()
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalUnexpected, "failed to generate token", err)
	}

	sub, err := s.emails.CreatePendingEmail(ctx, email, strings.TrimSpace(location), token)
	if err != nil {
		return nil, fmt.Errorf("create pending email subscription: %w", err)
	}

	subject, body := s.formatter.VerificationEmail(token)
	res := s.mailer.Send(ctx, email, subject, body)
	if !res.Success {
		s.logger.WarnContext(ctx, "verification email not delivered",
			"dest", external.RedactEmail(email), "code", string(res.Code))
		return sub, types.NewAppErrorWithDetails(types.ErrCodeUpstreamEmailProvider,
			"verification email could not be sent", nil, map[string]any{"reason": string(res.Code)})
	}

	s.logger.InfoContext(ctx, "email subscription pending", "dest", external.RedactEmail(email))
	return sub, nil
}

// VerifyEmail consumes token. An empty or unknown token is NotFound and
// changes nothing; a consumed token cannot be replayed.
func (s *Service) VerifyEmail(ctx context.Context, token string) (*types.EmailSubscription, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, types.NewAppError(types.ErrCodeNotFoundSubscription, "invalid verification token", nil)
	}
	sub, err := s.emails.VerifyEmailToken(ctx, token)
	if err != nil {
		return nil, err
	}
	s.logger.InfoContext(ctx, "email subscription verified", "dest", external.RedactEmail(sub.Email))
	return sub, nil
}

// RequestSMSCode asks the provider to text a code and records the
// code-pending state. A provider failure leaves the stored state untouched.
func (s *Service) RequestSMSCode(ctx context.Context, req SMSRequest) (*types.SMSSubscription, error) {
	phone := strings.TrimSpace(req.Phone)
	if phone == "" {
		return nil, types.NewAppError(types.ErrCodeValidationInvalidPhone, "phone number is required", nil)
	}
	freq := req.DigestFrequency
	if freq == "" {
		freq = types.DigestDaily
	}
	if !freq.Valid() {
		return nil, types.NewAppError(types.ErrCodeValidationInvalidFilter, "invalid digest frequency", nil)
	}

	existing, err := s.sms.GetSMSByPhone(ctx, phone)
	switch {
	case err == nil && existing.Verified:
		return nil, types.NewAppError(types.ErrCodeConflictVerified, "phone number already verified", nil)
	case err != nil && !types.IsNotFound(err):
		return nil, fmt.Errorf("load sms subscription: %w", err)
	}

	if err := s.limiter.Allow(ctx, "sms:"+phone); err != nil {
		return nil, err
	}

	if _, err := s.codes.SendVerificationCode(ctx, phone); err != nil {
		return nil, err
	}

	now := s.clock.Now()
	sub, err := s.sms.UpsertPendingSMS(ctx, &types.SMSSubscription{
		PhoneNumber:        phone,
		VerificationSentAt: &now,
		Location:           strings.TrimSpace(req.Location),
		RadiusMiles:        req.RadiusMiles,
		DigestFrequency:    freq,
		Active:             true,
	})
	if err != nil {
		return nil, fmt.Errorf("store pending sms subscription: %w", err)
	}
	s.logger.InfoContext(ctx, "sms verification code sent", "dest", external.RedactPhone(phone))
	return sub, nil
}

// CheckSMSCode checks code with the provider. Only an approved result marks
// the subscription verified; any other result keeps it code-pending and
// returns validation_verification_code_invalid.
func (s *Service) CheckSMSCode(ctx context.Context, phone, code string) (*types.SMSSubscription, error) {
	phone = strings.TrimSpace(phone)
	code = strings.TrimSpace(code)
	if code == "" {
		return nil, types.NewAppError(types.ErrCodeValidationInvalidCode, "verification code is required", nil)
	}

	sub, err := s.sms.GetSMSByPhone(ctx, phone)
	if err != nil {
		return nil, err
	}
	if sub.Verified {
		return nil, types.NewAppError(types.ErrCodeConflictVerified, "phone number already verified", nil)
	}
	if !sub.CodePending() {
		return nil, types.NewAppError(types.ErrCodeNotFoundSubscription, "no verification pending for this number", nil)
	}

	status, err := s.codes.CheckVerificationCode(ctx, phone, code)
	if err != nil {
		return nil, err
	}
	if status != types.VerificationApproved {
		s.logger.InfoContext(ctx, "sms verification rejected", "dest", external.RedactPhone(phone), "status", string(status))
		return nil, types.NewAppErrorWithDetails(types.ErrCodeValidationInvalidCode,
			"verification code was not accepted", nil, map[string]any{"status": string(status)})
	}

	verified, err := s.sms.MarkSMSVerified(ctx, phone)
	if err != nil {
		return nil, fmt.Errorf("mark sms subscription verified: %w", err)
	}
	s.logger.InfoContext(ctx, "sms subscription verified", "dest", external.RedactPhone(phone))
	return verified, nil
}

// NewToken returns a hex-encoded random token of TokenBytes bytes.
func NewToken() (string, error) {
	b := make([]byte, TokenBytes)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
