package handlers

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"amberline/internal/core"
	"amberline/internal/types"
	"amberline/internal/verification"
)

// SubscriptionService is the verification lifecycle behind the subscribe
// endpoints.
type SubscriptionService interface {
	SubscribeEmail(ctx context.Context, email, location string) (*types.EmailSubscription, error)
	VerifyEmail(ctx context.Context, token string) (*types.EmailSubscription, error)
	RequestSMSCode(ctx context.Context, req verification.SMSRequest) (*types.SMSSubscription, error)
	CheckSMSCode(ctx context.Context, phone, code string) (*types.SMSSubscription, error)
}

// SubscribeEmailRequest is the body of POST /v1/subscriptions/email.
type SubscribeEmailRequest struct {
	Email    string `json:"email" validate:"required,email,max=254"`
	Location string `json:"location" validate:"max=255"`
}

// SubscribeSMSRequest is the body of POST /v1/subscriptions/sms.
type SubscribeSMSRequest struct {
	PhoneNumber     string                `json:"phone_number" validate:"required,e164"`
	Location        string                `json:"location" validate:"max=255"`
	RadiusMiles     int                   `json:"radius_miles" validate:"min=0,max=500"`
	DigestFrequency types.DigestFrequency `json:"digest_frequency" validate:"omitempty,digest_frequency"`
}

// VerifySMSRequest is the body of POST /v1/subscriptions/sms/verify.
type VerifySMSRequest struct {
	PhoneNumber string `json:"phone_number" validate:"required,e164"`
	Code        string `json:"code" validate:"required,numeric,min=4,max=10"`
}

// SubscriptionHandler serves subscribe and verification requests.
type SubscriptionHandler struct {
	svc       SubscriptionService
	validator *core.Validator
	logger    *slog.Logger
}

// NewSubscriptionHandler wires a SubscriptionHandler.
func NewSubscriptionHandler(svc SubscriptionService, v *core.Validator, l *slog.Logger) *SubscriptionHandler {
	if l == nil {
		l = slog.Default()
	}
	return &SubscriptionHandler{svc: svc, validator: v, logger: l}
}

// RegisterRoutes mounts the versioned subscription routes.
func (h *SubscriptionHandler) RegisterRoutes(r chi.Router) {
	r.Post("/subscriptions/email", h.SubscribeEmail)
	r.Post("/subscriptions/sms", h.RequestSMSCode)
	r.Post("/subscriptions/sms/verify", h.VerifySMSCode)
}

// RegisterRootRoutes mounts the e-mail verification link target, which
// lives outside /v1 because it is embedded in sent mail.
func (h *SubscriptionHandler) RegisterRootRoutes(r chi.Router) {
	r.Get("/verify-email/{token}", h.VerifyEmail)
	r.Get("/verify-email/{token}/", h.VerifyEmail)
}

// SubscribeEmail creates or refreshes a pending subscription and mails the
// verification link.
func (h *SubscriptionHandler) SubscribeEmail(w http.ResponseWriter, r *http.Request) {
	var req SubscribeEmailRequest
	if err := core.DecodeJSON(w, r, &req); err != nil {
		core.Error(w, r, err)
		return
	}
	if err := h.validator.ValidateStruct(req); err != nil {
		core.Error(w, r, err)
		return
	}

	sub, err := h.svc.SubscribeEmail(r.Context(), req.Email, req.Location)
	if err != nil {
		core.Error(w, r, err)
		return
	}
	core.Data(w, r, http.StatusAccepted, sub)
}

// VerifyEmail consumes a verification token.
func (h *SubscriptionHandler) VerifyEmail(w http.ResponseWriter, r *http.Request) {
	sub, err := h.svc.VerifyEmail(r.Context(), chi.URLParam(r, "token"))
	if err != nil {
		core.Error(w, r, err)
		return
	}
	core.Data(w, r, http.StatusOK, sub)
}

// RequestSMSCode asks the provider to text a verification code.
func (h *SubscriptionHandler) RequestSMSCode(w http.ResponseWriter, r *http.Request) {
	var req SubscribeSMSRequest
	if err := core.DecodeJSON(w, r, &req); err != nil {
		core.Error(w, r, err)
		return
	}
	if err := h.validator.ValidateStruct(req); err != nil {
		core.Error(w, r, err)
		return
	}

	sub, err := h.svc.RequestSMSCode(r.Context(), verification.SMSRequest{
		Phone:           req.PhoneNumber,
		Location:        req.Location,
		RadiusMiles:     req.RadiusMiles,
		DigestFrequency: req.DigestFrequency,
	})
	if err != nil {
		core.Error(w, r, err)
		return
	}
	core.Data(w, r, http.StatusAccepted, sub)
}

// VerifySMSCode checks a code with the provider.
func (h *SubscriptionHandler) VerifySMSCode(w http.ResponseWriter, r *http.Request) {
	var req VerifySMSRequest
	if err := core.DecodeJSON(w, r, &req); err != nil {
		core.Error(w, r, err)
		return
	}
	if err := h.validator.ValidateStruct(req); err != nil {
		core.Error(w, r, err)
		return
	}

	sub, err := h.svc.CheckSMSCode(r.Context(), req.PhoneNumber, req.Code)
	if err != nil {
		core.Error(w, r, err)
		return
	}
	core.Data(w, r, http.StatusOK, sub)
}
