// Package handlers contains the HTTP handlers for the Amberline API: case
// intake and search, public sighting and lead submission with staff review,
// and alert subscriptions.
package handlers

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"amberline/internal/core"
	"amberline/internal/types"
)

// Middleware is a chi-compatible request wrapper.
type Middleware = func(http.Handler) http.Handler

// CaseStore is the case persistence used by the handlers.
type CaseStore interface {
	Create(ctx context.Context, c *types.Case) error
	GetByID(ctx context.Context, id string) (*types.Case, error)
	UpdateStatus(ctx context.Context, id string, status types.CaseStatus) error
	List(ctx context.Context, filter types.CaseFilter) ([]*types.Case, error)
	GetAbductor(ctx context.Context, caseID string) (*types.AbductorInformation, error)
}

// VerifiedSightingLister supplies the sightings shown on a case page.
type VerifiedSightingLister interface {
	ListVerifiedByCase(ctx context.Context, caseID string) ([]*types.Sighting, error)
}

// ContactLister supplies the emergency contact directory.
type ContactLister interface {
	ListActive(ctx context.Context) ([]*types.EmergencyContact, error)
}

// AlertEnqueuer hands dispatches to the alert worker.
type AlertEnqueuer interface {
	EnqueueCaseAlert(ctx context.Context, caseID string) error
	EnqueueSightingAlert(ctx context.Context, caseID, sightingID string) error
}

// CreateCaseRequest is the body of POST /v1/cases.
type CreateCaseRequest struct {
	FirstName           string           `json:"first_name" validate:"required,max=100"`
	LastName            string           `json:"last_name" validate:"max=100"`
	Age                 int              `json:"age" validate:"min=0,max=120"`
	Gender              types.Gender     `json:"gender" validate:"required,oneof=M F O"`
	Height              string           `json:"height" validate:"max=50"`
	Weight              string           `json:"weight" validate:"max=50"`
	EyeColor            string           `json:"eye_color" validate:"max=50"`
	HairColor           string           `json:"hair_color" validate:"max=50"`
	LastSeenAt          time.Time        `json:"last_seen_at" validate:"required"`
	LastSeenLocation    string           `json:"last_seen_location" validate:"required,max=255"`
	LastSeenWearing     string           `json:"last_seen_wearing" validate:"max=1000"`
	DistinctiveFeatures string           `json:"distinctive_features" validate:"max=1000"`
	PhotoURL            string           `json:"photo_url" validate:"omitempty,url"`
	IsAbducted          bool             `json:"is_abducted"`
	Abductor            *AbductorRequest `json:"abductor,omitempty"`
}

// AbductorRequest describes a suspect attached to a case.
type AbductorRequest struct {
	Description        string `json:"description" validate:"required,max=2000"`
	VehicleDescription string `json:"vehicle_description" validate:"max=255"`
	VehiclePlate       string `json:"vehicle_plate" validate:"max=20"`
	LastSeenDirection  string `json:"last_seen_direction" validate:"max=100"`
	KnownAssociates    string `json:"known_associates" validate:"max=1000"`
}

// UpdateCaseStatusRequest is the body of PATCH /v1/cases/{id}.
type UpdateCaseStatusRequest struct {
	Status types.CaseStatus `json:"status" validate:"required,case_status"`
}

// CaseHandler serves case intake, search and detail.
type CaseHandler struct {
	cases     CaseStore
	sightings VerifiedSightingLister
	contacts  ContactLister
	alerts    AlertEnqueuer
	validator *core.Validator
	logger    *slog.Logger
}

// NewCaseHandler wires a CaseHandler.
func NewCaseHandler(
	cases CaseStore,
	sightings VerifiedSightingLister,
	contacts ContactLister,
	alerts AlertEnqueuer,
	v *core.Validator,
	l *slog.Logger,
) *CaseHandler {
	if l == nil {
		l = slog.Default()
	}
	return &CaseHandler{
		cases:     cases,
		sightings: sightings,
		contacts:  contacts,
		alerts:    alerts,
		validator: v,
		logger:    l,
	}
}

// RegisterRoutes mounts the case routes. staff guards the write paths.
func (h *CaseHandler) RegisterRoutes(r chi.Router, staff Middleware) {
	r.Get("/cases", h.List)
	r.Get("/cases/{id}", h.Get)
	r.Get("/emergency-contacts", h.ListContacts)
	r.With(staff).Post("/cases", h.Create)
	r.With(staff).Patch("/cases/{id}", h.UpdateStatus)
}

// Create handles POST /v1/cases. The case starts as missing, is stamped
// with the calling staff member and queues a new-case alert. A queueing
// failure is logged and does not fail the request.
func (h *CaseHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req CreateCaseRequest
	if err := core.DecodeJSON(w, r, &req); err != nil {
		core.Error(w, r, err)
		return
	}
	if err := h.validator.ValidateStruct(req); err != nil {
		core.Error(w, r, err)
		return
	}

	actor := core.ActorFrom(r)
	c := &types.Case{
		FirstName:           strings.TrimSpace(req.FirstName),
		LastName:            strings.TrimSpace(req.LastName),
		Age:                 req.Age,
		Gender:              req.Gender,
		Height:              req.Height,
		Weight:              req.Weight,
		EyeColor:            req.EyeColor,
		HairColor:           req.HairColor,
		LastSeenAt:          req.LastSeenAt.UTC(),
		LastSeenLocation:    strings.TrimSpace(req.LastSeenLocation),
		LastSeenWearing:     req.LastSeenWearing,
		DistinctiveFeatures: req.DistinctiveFeatures,
		PhotoURL:            req.PhotoURL,
		Status:              types.CaseStatusMissing,
		IsAbducted:          req.IsAbducted,
		ReportedBy:          actor.ReporterID(),
	}
	if req.Abductor != nil {
		c.Abductor = &types.AbductorInformation{
			Description:        req.Abductor.Description,
			VehicleDescription: req.Abductor.VehicleDescription,
			VehiclePlate:       req.Abductor.VehiclePlate,
			LastSeenDirection:  req.Abductor.LastSeenDirection,
			KnownAssociates:    req.Abductor.KnownAssociates,
			AddedBy:            actor.ReporterID(),
		}
	}
	// The case and its abductor are stored atomically; a failure here
	// leaves nothing behind to alert about.
	if err := h.cases.Create(r.Context(), c); err != nil {
		core.Error(w, r, err)
		return
	}

	if err := h.alerts.EnqueueCaseAlert(r.Context(), c.ID); err != nil {
		h.logger.ErrorContext(r.Context(), "failed to enqueue case alert",
			"case_id", c.ID,
			"error", err,
		)
	}

	h.logger.InfoContext(r.Context(), "case created",
		"case_id", c.ID,
		"case_number", c.CaseNumber,
		"actor", actor.ID,
	)
	core.Data(w, r, http.StatusCreated, c)
}

// Get handles GET /v1/cases/{id} with the abductor record and the verified
// sightings, newest first.
func (h *CaseHandler) Get(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	c, err := h.cases.GetByID(r.Context(), id)
	if err != nil {
		core.Error(w, r, err)
		return
	}

	if c.Abductor, err = h.cases.GetAbductor(r.Context(), id); err != nil {
		core.Error(w, r, err)
		return
	}
	sightings, err := h.sightings.ListVerifiedByCase(r.Context(), id)
	if err != nil {
		core.Error(w, r, err)
		return
	}
	c.Sightings = publicSightings(sightings)
	core.Data(w, r, http.StatusOK, c)
}

// publicSightings strips the reporter's phone number from sightings shown
// on the unauthenticated case page.
func publicSightings(in []*types.Sighting) []*types.Sighting {
	out := make([]*types.Sighting, 0, len(in))
	for _, s := range in {
		cp := *s
		cp.ContactNumber = ""
		out = append(out, &cp)
	}
	return out
}

// List handles GET /v1/cases?q=&status=&gender=&location=&age_min=&age_max=&limit=&offset=.
func (h *CaseHandler) List(w http.ResponseWriter, r *http.Request) {
	filter, err := parseCaseFilter(r)
	if err != nil {
		core.Error(w, r, err)
		return
	}

	cases, err := h.cases.List(r.Context(), filter)
	if err != nil {
		core.Error(w, r, err)
		return
	}
	if cases == nil {
		cases = []*types.Case{}
	}
	core.JSON(w, r, http.StatusOK, core.APIResponse{
		Data: cases,
		Page: &core.PageInfo{Limit: filter.Limit, Offset: filter.Offset, Count: len(cases)},
	})
}

// UpdateStatus handles PATCH /v1/cases/{id}.
func (h *CaseHandler) UpdateStatus(w http.ResponseWriter, r *http.Request) {
	var req UpdateCaseStatusRequest
	if err := core.DecodeJSON(w, r, &req); err != nil {
		core.Error(w, r, err)
		return
	}
	if err := h.validator.ValidateStruct(req); err != nil {
		core.Error(w, r, err)
		return
	}

	id := chi.URLParam(r, "id")
	if err := h.cases.UpdateStatus(r.Context(), id, req.Status); err != nil {
		core.Error(w, r, err)
		return
	}
	c, err := h.cases.GetByID(r.Context(), id)
	if err != nil {
		core.Error(w, r, err)
		return
	}

	h.logger.InfoContext(r.Context(), "case status updated",
		"case_id", id,
		"status", string(req.Status),
		"actor", core.ActorFrom(r).ID,
	)
	core.Data(w, r, http.StatusOK, c)
}

// ListContacts handles GET /v1/emergency-contacts.
func (h *CaseHandler) ListContacts(w http.ResponseWriter, r *http.Request) {
	contacts, err := h.contacts.ListActive(r.Context())
	if err != nil {
		core.Error(w, r, err)
		return
	}
	if contacts == nil {
		contacts = []*types.EmergencyContact{}
	}
	core.Data(w, r, http.StatusOK, contacts)
}

const (
	defaultListLimit = 20
	maxListLimit     = 100
)

func parseCaseFilter(r *http.Request) (types.CaseFilter, error) {
	q := r.URL.Query()
	f := types.CaseFilter{
		Query:    strings.TrimSpace(q.Get("q")),
		Location: strings.TrimSpace(q.Get("location")),
		Limit:    defaultListLimit,
	}

	if s := q.Get("status"); s != "" {
		f.Status = types.CaseStatus(s)
		if !f.Status.Valid() {
			return f, invalidFilter("status", s)
		}
	}
	if g := q.Get("gender"); g != "" {
		switch types.Gender(g) {
		case types.GenderMale, types.GenderFemale, types.GenderOther:
			f.Gender = types.Gender(g)
		default:
			return f, invalidFilter("gender", g)
		}
	}

	var err error
	if f.AgeMin, err = optionalInt(q.Get("age_min"), "age_min"); err != nil {
		return f, err
	}
	if f.AgeMax, err = optionalInt(q.Get("age_max"), "age_max"); err != nil {
		return f, err
	}
	if f.AgeMin != nil && f.AgeMax != nil && *f.AgeMin > *f.AgeMax {
		return f, types.NewAppError(types.ErrCodeValidationInvalidFilter, "age_min must not exceed age_max", nil)
	}

	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 || n > maxListLimit {
			return f, types.NewAppError(types.ErrCodeValidationInvalidFilter, "limit must be a number between 1 and 100", nil)
		}
		f.Limit = n
	}
	if v := q.Get("offset"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return f, invalidFilter("offset", v)
		}
		f.Offset = n
	}
	return f, nil
}

func optionalInt(raw, name string) (*int, error) {
	if raw == "" {
		return nil, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return nil, invalidFilter(name, raw)
	}
	return &n, nil
}

func invalidFilter(name, value string) error {
	return types.NewAppErrorWithDetails(types.ErrCodeValidationInvalidFilter, "invalid "+name, nil,
		map[string]any{"parameter": name, "value": value})
}
