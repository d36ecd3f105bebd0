package external

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"amberline/internal/types"
)

const (
	twilioAPIBase    = "https://api.twilio.com"
	twilioVerifyBase = "https://verify.twilio.com"
)

// Twilio error codes that identify a bad destination rather than an outage.
var twilioRecipientErrors = map[int]bool{
	21211: true, // invalid 'To' number
	21408: true, // region not enabled
	21610: true, // recipient replied STOP
	21614: true, // not a mobile number
}

// TwilioConfig carries the Twilio credentials. All four credential fields
// are required; the SMS gateway checks Complete before constructing a client.
type TwilioConfig struct {
	AccountSID       string
	AuthToken        types.SecretString
	FromNumber       string
	VerifyServiceSID string

	// Overrides for testing.
	APIBaseURL    string
	VerifyBaseURL string
	Logger        *slog.Logger
}

// Complete reports whether every credential is present.
func (c TwilioConfig) Complete() bool {
	return c.AccountSID != "" && c.AuthToken.IsSet() && c.FromNumber != "" && c.VerifyServiceSID != ""
}

// TwilioClient talks to the Twilio Messaging and Verify REST APIs.
type TwilioClient struct {
	base      *BaseClient
	cfg       TwilioConfig
	apiURL    string
	verifyURL string
	logger    *slog.Logger
}

// NewTwilioClient builds a client with its own "twilio" breaker.
func NewTwilioClient(httpClient *http.Client, cfg TwilioConfig) *TwilioClient {
	base := NewBaseClient(httpClient, "twilio", DefaultBreakerSettings(), "Amberline/1.0", types.ErrCodeUpstreamSMSProvider)
	return NewTwilioClientWithBase(base, cfg)
}

// NewTwilioClientWithBase builds a client around an existing BaseClient.
func NewTwilioClientWithBase(base *BaseClient, cfg TwilioConfig) *TwilioClient {
	apiURL := cfg.APIBaseURL
	if apiURL == "" {
		apiURL = twilioAPIBase
	}
	verifyURL := cfg.VerifyBaseURL
	if verifyURL == "" {
		verifyURL = twilioVerifyBase
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &TwilioClient{
		base:      base,
		cfg:       cfg,
		apiURL:    strings.TrimSuffix(apiURL, "/"),
		verifyURL: strings.TrimSuffix(verifyURL, "/"),
		logger:    logger,
	}
}

type twilioMessage struct {
	SID    string `json:"sid"`
	Status string `json:"status"`
}

type twilioVerification struct {
	SID    string `json:"sid"`
	Status string `json:"status"`
}

type twilioError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Status  int    `json:"status"`
}

// SendMessage posts to the Messages resource and returns the message SID.
func (t *TwilioClient) SendMessage(ctx context.Context, to, body string) (string, error) {
	endpoint := fmt.Sprintf("%s/2010-04-01/Accounts/%s/Messages.json", t.apiURL, url.PathEscape(t.cfg.AccountSID))
	form := url.Values{
		"To":   {to},
		"From": {t.cfg.FromNumber},
		"Body": {body},
	}

	var msg twilioMessage
	if err := t.post(ctx, endpoint, form, &msg); err != nil {
		return "", err
	}
	return msg.SID, nil
}

// StartVerification creates a Verify verification over the sms channel.
func (t *TwilioClient) StartVerification(ctx context.Context, to string) (string, error) {
	endpoint := fmt.Sprintf("%s/v2/Services/%s/Verifications", t.verifyURL, url.PathEscape(t.cfg.VerifyServiceSID))
	form := url.Values{
		"To":      {to},
		"Channel": {"sms"},
	}

	var v twilioVerification
	if err := t.post(ctx, endpoint, form, &v); err != nil {
		return "", err
	}
	return v.Status, nil
}

// CheckVerification submits a code to the VerificationCheck resource.
// Twilio answers 404 once a verification has expired, been approved, or run
// out of attempts; that is reported as status "expired" rather than an error.
func (t *TwilioClient) CheckVerification(ctx context.Context, to, code string) (string, error) {
	endpoint := fmt.Sprintf("%s/v2/Services/%s/VerificationCheck", t.verifyURL, url.PathEscape(t.cfg.VerifyServiceSID))
	form := url.Values{
		"To":   {to},
		"Code": {code},
	}

	var v twilioVerification
	err := t.post(ctx, endpoint, form, &v)
	if err != nil {
		var appErr *types.AppError
		if errors.As(err, &appErr) && appErr.Details["status"] == http.StatusNotFound {
			return string(types.VerificationExpired), nil
		}
		return "", err
	}
	return v.Status, nil
}

func (t *TwilioClient) post(ctx context.Context, endpoint string, form url.Values, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalUnexpected, "failed to create Twilio request", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.SetBasicAuth(t.cfg.AccountSID, t.cfg.AuthToken.Unmask())

	resp, err := t.base.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if err != nil {
		return types.NewAppError(types.ErrCodeUpstreamSMSProvider, "failed to read Twilio response", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return t.errorFromResponse(resp.StatusCode, raw)
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return types.NewAppError(types.ErrCodeUpstreamSMSProvider, "malformed Twilio response", err)
	}
	return nil
}

func (t *TwilioClient) errorFromResponse(status int, raw []byte) error {
	var te twilioError
	msg := strings.TrimSpace(string(raw))
	if json.Unmarshal(raw, &te) == nil && te.Message != "" {
		msg = te.Message
	}

	code := types.ErrCodeUpstreamSMSProvider
	if twilioRecipientErrors[te.Code] {
		code = types.ErrCodeInvalidRecipient
	}
	return types.NewAppErrorWithDetails(code,
		fmt.Sprintf("Twilio error (%d): %s", status, msg), nil,
		map[string]any{"status": status, "twilio_code": te.Code})
}

var _ SMSProvider = (*TwilioClient)(nil)
