package handlers

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"amberline/internal/core"
	"amberline/internal/types"
)

// SightingStore persists sightings and their staff verification.
type SightingStore interface {
	Create(ctx context.Context, s *types.Sighting) error
	GetByID(ctx context.Context, id string) (*types.Sighting, error)
	MarkVerified(ctx context.Context, id string) (bool, error)
}

// LeadStore persists leads and their triage status.
type LeadStore interface {
	Create(ctx context.Context, l *types.Lead) error
	UpdateStatus(ctx context.Context, id string, status types.LeadStatus) error
	ListByCase(ctx context.Context, caseID string) ([]*types.Lead, error)
}

// CreateSightingRequest is the body of POST /v1/cases/{id}/sightings.
type CreateSightingRequest struct {
	Location      string    `json:"location" validate:"required,max=255"`
	SightingTime  time.Time `json:"sighting_time" validate:"required"`
	ReportedBy    string    `json:"reported_by" validate:"required,max=100"`
	ContactNumber string    `json:"contact_number" validate:"omitempty,max=20"`
	Description   string    `json:"description" validate:"max=2000"`
}

// CreateLeadRequest is the body of POST /v1/cases/{id}/leads.
type CreateLeadRequest struct {
	ReporterName  string `json:"reporter_name" validate:"max=100"`
	ReporterEmail string `json:"reporter_email" validate:"omitempty,email"`
	ReporterPhone string `json:"reporter_phone" validate:"omitempty,max=20"`
	Information   string `json:"information" validate:"required,max=5000"`
	EvidenceURL   string `json:"evidence_url" validate:"omitempty,url"`
}

// UpdateLeadStatusRequest is the body of PATCH /v1/leads/{id}.
type UpdateLeadStatusRequest struct {
	Status types.LeadStatus `json:"status" validate:"required,lead_status"`
}

// ReportHandler accepts public sightings and leads and serves staff review.
type ReportHandler struct {
	sightings SightingStore
	leads     LeadStore
	alerts    AlertEnqueuer
	validator *core.Validator
	logger    *slog.Logger
}

// NewReportHandler wires a ReportHandler.
func NewReportHandler(sightings SightingStore, leads LeadStore, alerts AlertEnqueuer, v *core.Validator, l *slog.Logger) *ReportHandler {
	if l == nil {
		l = slog.Default()
	}
	return &ReportHandler{sightings: sightings, leads: leads, alerts: alerts, validator: v, logger: l}
}

// RegisterRoutes mounts report routes. throttle guards anonymous
// submissions; staff guards review.
func (h *ReportHandler) RegisterRoutes(r chi.Router, staff, throttle Middleware) {
	r.With(throttle).Post("/cases/{id}/sightings", h.CreateSighting)
	r.With(throttle).Post("/cases/{id}/leads", h.CreateLead)

	r.With(staff).Post("/sightings/{id}/verify", h.VerifySighting)
	r.With(staff).Get("/cases/{id}/leads", h.ListLeads)
	r.With(staff).Patch("/leads/{id}", h.UpdateLeadStatus)
}

// CreateSighting stores an unverified sighting. Nothing is sent until staff
// verify it.
func (h *ReportHandler) CreateSighting(w http.ResponseWriter, r *http.Request) {
	var req CreateSightingRequest
	if err := core.DecodeJSON(w, r, &req); err != nil {
		core.Error(w, r, err)
		return
	}
	if err := h.validator.ValidateStruct(req); err != nil {
		core.Error(w, r, err)
		return
	}

	s := &types.Sighting{
		CaseID:        chi.URLParam(r, "id"),
		Location:      strings.TrimSpace(req.Location),
		SightingTime:  req.SightingTime.UTC(),
		ReportedBy:    strings.TrimSpace(req.ReportedBy),
		ContactNumber: req.ContactNumber,
		Description:   req.Description,
	}
	if err := h.sightings.Create(r.Context(), s); err != nil {
		core.Error(w, r, err)
		return
	}

	h.logger.InfoContext(r.Context(), "sighting submitted", "case_id", s.CaseID, "sighting_id", s.ID)
	core.Data(w, r, http.StatusCreated, s)
}

// VerifySighting marks a sighting verified. Only the first verification
// queues a sighting alert; repeating the call is a no-op.
func (h *ReportHandler) VerifySighting(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	changed, err := h.sightings.MarkVerified(r.Context(), id)
	if err != nil {
		core.Error(w, r, err)
		return
	}
	s, err := h.sightings.GetByID(r.Context(), id)
	if err != nil {
		core.Error(w, r, err)
		return
	}

	if changed {
		if err := h.alerts.EnqueueSightingAlert(r.Context(), s.CaseID, s.ID); err != nil {
			h.logger.ErrorContext(r.Context(), "failed to enqueue sighting alert",
				"case_id", s.CaseID,
				"sighting_id", s.ID,
				"error", err,
			)
		}
		h.logger.InfoContext(r.Context(), "sighting verified",
			"case_id", s.CaseID,
			"sighting_id", s.ID,
			"actor", core.ActorFrom(r).ID,
		)
	}
	core.Data(w, r, http.StatusOK, s)
}

// CreateLead stores a tip with status new. Staff callers are recorded as
// the reporter; anonymous callers are not.
func (h *ReportHandler) CreateLead(w http.ResponseWriter, r *http.Request) {
	var req CreateLeadRequest
	if err := core.DecodeJSON(w, r, &req); err != nil {
		core.Error(w, r, err)
		return
	}
	if err := h.validator.ValidateStruct(req); err != nil {
		core.Error(w, r, err)
		return
	}

	l := &types.Lead{
		CaseID:        chi.URLParam(r, "id"),
		ReportedBy:    core.ActorFrom(r).ReporterID(),
		ReporterName:  strings.TrimSpace(req.ReporterName),
		ReporterEmail: strings.TrimSpace(req.ReporterEmail),
		ReporterPhone: strings.TrimSpace(req.ReporterPhone),
		Information:   req.Information,
		EvidenceURL:   req.EvidenceURL,
	}
	if err := h.leads.Create(r.Context(), l); err != nil {
		core.Error(w, r, err)
		return
	}
	core.Data(w, r, http.StatusCreated, l)
}

// ListLeads handles GET /v1/cases/{id}/leads.
func (h *ReportHandler) ListLeads(w http.ResponseWriter, r *http.Request) {
	leads, err := h.leads.ListByCase(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		core.Error(w, r, err)
		return
	}
	if leads == nil {
		leads = []*types.Lead{}
	}
	core.Data(w, r, http.StatusOK, leads)
}

// UpdateLeadStatus handles PATCH /v1/leads/{id}.
func (h *ReportHandler) UpdateLeadStatus(w http.ResponseWriter, r *http.Request) {
	var req UpdateLeadStatusRequest
	if err := core.DecodeJSON(w, r, &req); err != nil {
		core.Error(w, r, err)
		return
	}
	if err := h.validator.ValidateStruct(req); err != nil {
		core.Error(w, r, err)
		return
	}

	id := chi.URLParam(r, "id")
	if err := h.leads.UpdateStatus(r.Context(), id, req.Status); err != nil {
		core.Error(w, r, err)
		return
	}
	core.Data(w, r, http.StatusOK, map[string]string{"id": id, "status": string(req.Status)})
}
