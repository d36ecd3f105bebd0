package handlers

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"amberline/internal/core"
	"amberline/internal/types"
)

type memCases struct {
	cases      map[string]*types.Case
	abductors  map[string]*types.AbductorInformation
	lastFilter  types.CaseFilter
	createErr   error
	abductorErr error
}

func newMemCases() *memCases {
	return &memCases{cases: map[string]*types.Case{}, abductors: map[string]*types.AbductorInformation{}}
}

func (m *memCases) Create(_ context.Context, c *types.Case) error {
	if m.createErr != nil {
		return m.createErr
	}
	if c.Abductor != nil && m.abductorErr != nil {
		return m.abductorErr
	}
	c.ID = "case-1"
	c.CaseNumber = "MC-20260601-0001"
	m.cases[c.ID] = c
	if c.Abductor != nil {
		c.Abductor.CaseID = c.ID
		m.abductors[c.ID] = c.Abductor
	}
	return nil
}

func (m *memCases) GetByID(_ context.Context, id string) (*types.Case, error) {
	c, ok := m.cases[id]
	if !ok {
		return nil, types.NewAppError(types.ErrCodeNotFoundCase, "case not found", nil)
	}
	cp := *c
	return &cp, nil
}

func (m *memCases) UpdateStatus(_ context.Context, id string, status types.CaseStatus) error {
	c, ok := m.cases[id]
	if !ok {
		return types.NewAppError(types.ErrCodeNotFoundCase, "case not found", nil)
	}
	c.Status = status
	return nil
}

func (m *memCases) List(_ context.Context, f types.CaseFilter) ([]*types.Case, error) {
	m.lastFilter = f
	var out []*types.Case
	for _, c := range m.cases {
		out = append(out, c)
	}
	return out, nil
}

func (m *memCases) GetAbductor(_ context.Context, caseID string) (*types.AbductorInformation, error) {
	return m.abductors[caseID], nil
}

type stubSightingLister struct{ sightings []*types.Sighting }

func (s stubSightingLister) ListVerifiedByCase(context.Context, string) ([]*types.Sighting, error) {
	return s.sightings, nil
}

type stubContacts struct {
	contacts []*types.EmergencyContact
	err      error
}

func (s stubContacts) ListActive(context.Context) ([]*types.EmergencyContact, error) {
	return s.contacts, s.err
}

type caseFixture struct {
	cases  *memCases
	alerts *recordingAlerts
	router chi.Router
}

func newCaseFixture(sightings []*types.Sighting, contacts stubContacts) *caseFixture {
	f := &caseFixture{cases: newMemCases(), alerts: &recordingAlerts{}}
	h := NewCaseHandler(f.cases, stubSightingLister{sightings}, contacts, f.alerts, core.NewValidator(testLogger()), testLogger())
	r := chi.NewRouter()
	h.RegisterRoutes(r, fakeStaff)
	f.router = r
	return f
}

func validCaseRequest() CreateCaseRequest {
	return CreateCaseRequest{
		FirstName:        "Jamie",
		LastName:         "Doe",
		Age:              9,
		Gender:           types.GenderFemale,
		LastSeenAt:       time.Date(2026, 6, 1, 15, 0, 0, 0, time.UTC),
		LastSeenLocation: "Springfield Mall",
	}
}

func TestCreateCase_StampsActorAndEnqueues(t *testing.T) {
	f := newCaseFixture(nil, stubContacts{})
	req := validCaseRequest()
	req.Abductor = &AbductorRequest{Description: "tall adult", VehiclePlate: "ABC123"}

	rec, env := do(t, f.router, http.MethodPost, "/cases", req, true)

	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	c := decodeData[types.Case](t, env)
	assert.Equal(t, "MC-20260601-0001", c.CaseNumber)
	assert.Equal(t, types.CaseStatusMissing, c.Status)
	require.NotNil(t, c.ReportedBy)
	assert.Equal(t, "officer-1", *c.ReportedBy)
	require.NotNil(t, c.Abductor)
	assert.Equal(t, "ABC123", c.Abductor.VehiclePlate)
	assert.Equal(t, []string{"case-1"}, f.alerts.cases)
}

func TestCreateCase_EnqueueFailureStillSucceeds(t *testing.T) {
	f := newCaseFixture(nil, stubContacts{})
	f.alerts.err = errors.New("sqs down")

	rec, _ := do(t, f.router, http.MethodPost, "/cases", validCaseRequest(), true)

	assert.Equal(t, http.StatusCreated, rec.Code)
	assert.Len(t, f.alerts.cases, 1)
}

func TestCreateCase_RequiresStaff(t *testing.T) {
	f := newCaseFixture(nil, stubContacts{})

	rec, _ := do(t, f.router, http.MethodPost, "/cases", validCaseRequest(), false)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Empty(t, f.cases.cases)
	assert.Empty(t, f.alerts.cases)
}

func TestCreateCase_Validation(t *testing.T) {
	f := newCaseFixture(nil, stubContacts{})
	req := validCaseRequest()
	req.Gender = "X"
	req.LastSeenLocation = ""

	rec, env := do(t, f.router, http.MethodPost, "/cases", req, true)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	require.NotNil(t, env.Error)
	assert.Empty(t, f.alerts.cases)
}

func TestCreateCase_StoreError(t *testing.T) {
	f := newCaseFixture(nil, stubContacts{})
	f.cases.createErr = types.NewAppError(types.ErrCodeInternalDB, "failed to create case", errors.New("timeout"))

	rec, env := do(t, f.router, http.MethodPost, "/cases", validCaseRequest(), true)

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, string(types.ErrCodeInternalDB), env.Error.Code)
	assert.Empty(t, f.alerts.cases)
}

func TestCreateCase_AbductorFailureStoresNothing(t *testing.T) {
	f := newCaseFixture(nil, stubContacts{})
	f.cases.abductorErr = types.NewAppError(types.ErrCodeInternalDB, "failed to create case", errors.New("value too long"))
	req := validCaseRequest()
	req.Abductor = &AbductorRequest{Description: "tall adult"}

	rec, env := do(t, f.router, http.MethodPost, "/cases", req, true)

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, string(types.ErrCodeInternalDB), env.Error.Code)
	assert.Empty(t, f.cases.cases)
	assert.Empty(t, f.cases.abductors)
	assert.Empty(t, f.alerts.cases)
}

func TestCreateCase_AbductorStoredWithCase(t *testing.T) {
	f := newCaseFixture(nil, stubContacts{})
	req := validCaseRequest()
	req.Abductor = &AbductorRequest{Description: "tall adult"}

	rec, _ := do(t, f.router, http.MethodPost, "/cases", req, true)

	require.Equal(t, http.StatusCreated, rec.Code)
	require.Contains(t, f.cases.abductors, "case-1")
	require.NotNil(t, f.cases.abductors["case-1"].AddedBy)
	assert.Equal(t, "officer-1", *f.cases.abductors["case-1"].AddedBy)
	assert.Equal(t, []string{"case-1"}, f.alerts.cases)
}

func TestGetCase_HidesSightingContactNumber(t *testing.T) {
	s := &types.Sighting{ID: "s-1", Location: "Elm St", ReportedBy: "Pat", ContactNumber: "+15551234567", Verified: true}
	f := newCaseFixture([]*types.Sighting{s}, stubContacts{})
	f.cases.cases["case-1"] = &types.Case{ID: "case-1", FirstName: "Jamie", Status: types.CaseStatusMissing}

	rec, env := do(t, f.router, http.MethodGet, "/cases/case-1", nil, false)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.NotContains(t, rec.Body.String(), "contact_number")
	assert.NotContains(t, rec.Body.String(), "+15551234567")
	c := decodeData[types.Case](t, env)
	require.Len(t, c.Sightings, 1)
	assert.Equal(t, "Elm St", c.Sightings[0].Location)
	assert.Equal(t, "+15551234567", s.ContactNumber, "source record must not be mutated")
}

func TestGetCase_HydratesDetail(t *testing.T) {
	newer := &types.Sighting{ID: "s-2", SightingTime: time.Date(2026, 6, 2, 0, 0, 0, 0, time.UTC), Verified: true}
	older := &types.Sighting{ID: "s-1", SightingTime: time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC), Verified: true}
	f := newCaseFixture([]*types.Sighting{newer, older}, stubContacts{})
	f.cases.cases["case-1"] = &types.Case{ID: "case-1", FirstName: "Jamie", Status: types.CaseStatusMissing}
	f.cases.abductors["case-1"] = &types.AbductorInformation{CaseID: "case-1", Description: "adult"}

	rec, env := do(t, f.router, http.MethodGet, "/cases/case-1", nil, false)

	require.Equal(t, http.StatusOK, rec.Code)
	c := decodeData[types.Case](t, env)
	require.Len(t, c.Sightings, 2)
	assert.Equal(t, "s-2", c.Sightings[0].ID)
	require.NotNil(t, c.Abductor)
}

func TestGetCase_NotFound(t *testing.T) {
	f := newCaseFixture(nil, stubContacts{})

	rec, env := do(t, f.router, http.MethodGet, "/cases/nope", nil, false)

	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, string(types.ErrCodeNotFoundCase), env.Error.Code)
}

func TestListCases_ParsesFilter(t *testing.T) {
	f := newCaseFixture(nil, stubContacts{})
	f.cases.cases["case-1"] = &types.Case{ID: "case-1"}

	rec, env := do(t, f.router, http.MethodGet,
		"/cases?q=jamie&status=missing&gender=F&location=Springfield&age_min=5&age_max=12&limit=10&offset=20", nil, false)

	require.Equal(t, http.StatusOK, rec.Code)
	got := f.cases.lastFilter
	assert.Equal(t, "jamie", got.Query)
	assert.Equal(t, types.CaseStatusMissing, got.Status)
	assert.Equal(t, types.GenderFemale, got.Gender)
	assert.Equal(t, "Springfield", got.Location)
	require.NotNil(t, got.AgeMin)
	require.NotNil(t, got.AgeMax)
	assert.Equal(t, 5, *got.AgeMin)
	assert.Equal(t, 12, *got.AgeMax)
	assert.Equal(t, 10, got.Limit)
	assert.Equal(t, 20, got.Offset)
	require.NotNil(t, env.Page)
	assert.Equal(t, 1, env.Page.Count)
}

func TestListCases_EmptyIsArray(t *testing.T) {
	f := newCaseFixture(nil, stubContacts{})

	rec, env := do(t, f.router, http.MethodGet, "/cases", nil, false)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `[]`, string(env.Data))
	assert.Equal(t, defaultListLimit, f.cases.lastFilter.Limit)
}

func TestListCases_InvalidFilters(t *testing.T) {
	for _, q := range []string{
		"status=deleted",
		"gender=Z",
		"age_min=abc",
		"age_min=10&age_max=5",
		"limit=0",
		"limit=500",
		"offset=-1",
	} {
		t.Run(q, func(t *testing.T) {
			f := newCaseFixture(nil, stubContacts{})
			rec, env := do(t, f.router, http.MethodGet, "/cases?"+q, nil, false)

			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.Equal(t, string(types.ErrCodeValidationInvalidFilter), env.Error.Code)
		})
	}
}

func TestUpdateCaseStatus(t *testing.T) {
	f := newCaseFixture(nil, stubContacts{})
	f.cases.cases["case-1"] = &types.Case{ID: "case-1", Status: types.CaseStatusMissing}

	rec, env := do(t, f.router, http.MethodPatch, "/cases/case-1", map[string]string{"status": "found"}, true)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, types.CaseStatusFound, decodeData[types.Case](t, env).Status)
	assert.Empty(t, f.alerts.cases, "status changes do not alert")
}

func TestUpdateCaseStatus_InvalidStatus(t *testing.T) {
	f := newCaseFixture(nil, stubContacts{})
	f.cases.cases["case-1"] = &types.Case{ID: "case-1", Status: types.CaseStatusMissing}

	rec, env := do(t, f.router, http.MethodPatch, "/cases/case-1", map[string]string{"status": "closed"}, true)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, string(types.ErrCodeValidationInvalidStatus), env.Error.Code)
	assert.Equal(t, types.CaseStatusMissing, f.cases.cases["case-1"].Status)
}

func TestListContacts(t *testing.T) {
	f := newCaseFixture(nil, stubContacts{contacts: []*types.EmergencyContact{{ID: "c1", Name: "Hotline"}}})

	rec, env := do(t, f.router, http.MethodGet, "/emergency-contacts", nil, false)

	require.Equal(t, http.StatusOK, rec.Code)
	contacts := decodeData[[]types.EmergencyContact](t, env)
	require.Len(t, contacts, 1)
	assert.Equal(t, "Hotline", contacts[0].Name)
}
