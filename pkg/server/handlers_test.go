package server

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/wattwise/wattwise/pkg/eflcheck"
	"github.com/wattwise/wattwise/pkg/estimate"
	"github.com/wattwise/wattwise/pkg/extract"
	"github.com/wattwise/wattwise/pkg/storage"
	"github.com/wattwise/wattwise/pkg/storage/storagemock"
	"github.com/wattwise/wattwise/pkg/types"
)

const flatEFL = `Electricity Facts Label
SteadyRate 12, PUCT Certificate #10004
Average Monthly Use:   500 kWh   1,000 kWh   2,000 kWh
Average price per kWh: 12.99¢    12.0¢       11.5¢
`

const overpricedEFL = `Electricity Facts Label
BrightSpark Energy, Saver 12
Average Monthly Use:          500 kWh    1,000 kWh    2,000 kWh
Average price per kWh:        18.5¢      14.2¢        12.1¢
`

func testNow() time.Time {
	return time.Date(2024, 7, 10, 12, 0, 0, 0, time.UTC)
}

func newTestServer(db storage.Database, ex extract.Extractor) *Server {
	return &Server{
		storage:      db,
		extractor:    ex,
		orchestrator: estimate.New(db, estimate.Config{Now: testNow}),
		serverName:   "test",
		tolerance:    eflcheck.DefaultToleranceCentsPerKWH,
		now:          testNow,
	}
}

func flatTestPlan() types.PlanRules {
	return types.PlanRules{
		Fingerprint:             types.PlanFingerprint{ContentHash: "abc123"},
		PlanType:                types.PlanTypeFlat,
		DefaultRateCentsPerKWH:  types.Float64Ptr(12.0),
		BaseChargePerMonthCents: types.Float64Ptr(995),
	}
}

func TestHandleEstimate(t *testing.T) {
	db := &storagemock.MockDatabase{}
	db.On("GetPlan", mock.Anything, "abc123").Return(flatTestPlan(), nil)
	db.On("GetMonthlyBuckets", mock.Anything, "home1", mock.Anything).Return(map[string]map[string]float64{}, nil)

	s := newTestServer(db, nil)
	body := `{"planFingerprint": "abc123", "homeId": "home1", "annualKwh": 12000}`
	req := httptest.NewRequest(http.MethodPost, "/api/estimate", strings.NewReader(body))
	w := httptest.NewRecorder()
	s.handleEstimate(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "public, max-age=60", w.Header().Get("Cache-Control"))

	var resp types.EstimateResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.True(t, resp.OK)
	assert.Equal(t, types.PathFixedAnnual, resp.Path)
	assert.InDelta(t, 1559.40, resp.Estimate.AnnualCostDollars, 1e-9)
}

func TestHandleEstimateBadRequest(t *testing.T) {
	s := newTestServer(&storagemock.MockDatabase{}, nil)

	req := httptest.NewRequest(http.MethodPost, "/api/estimate", strings.NewReader(`{"homeId": "home1"}`))
	w := httptest.NewRecorder()
	s.handleEstimate(w, req)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	req = httptest.NewRequest(http.MethodPost, "/api/estimate", strings.NewReader(`{"planFingerprint": "abc123"}`))
	w = httptest.NewRecorder()
	s.handleEstimate(w, req)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestHandleEstimatePlanNotFound(t *testing.T) {
	db := &storagemock.MockDatabase{}
	db.On("GetPlan", mock.Anything, "nope").Return(types.PlanRules{}, storage.ErrPlanNotFound)

	s := newTestServer(db, nil)
	req := httptest.NewRequest(http.MethodPost, "/api/estimate", strings.NewReader(`{"planFingerprint": "nope", "homeId": "home1"}`))
	w := httptest.NewRecorder()
	s.handleEstimate(w, req)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestHandleCreatePlanPersistsOnPass(t *testing.T) {
	// 11¢ energy + $9.95 base models exactly onto the disclosed curve
	candidate := extract.Candidate{
		Rules: types.PlanRules{
			PlanType:                types.PlanTypeFlat,
			DefaultRateCentsPerKWH:  types.Float64Ptr(11.0),
			BaseChargePerMonthCents: types.Float64Ptr(995),
		},
		Confidence: 0.95,
	}

	db := &storagemock.MockDatabase{}
	db.On("GetPlan", mock.Anything, mock.Anything).Return(types.PlanRules{}, storage.ErrPlanNotFound)
	db.On("CreatePlan", mock.Anything, mock.Anything).Return(nil)
	db.On("InsertValidationReport", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(nil)

	ex := &mockExtractor{}
	ex.On("ExtractPlanRules", mock.Anything, flatEFL, mock.Anything).Return(candidate, nil)

	s := newTestServer(db, ex)
	body, err := json.Marshal(createPlanRequest{EFLText: flatEFL})
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, "/api/plans", strings.NewReader(string(body)))
	w := httptest.NewRecorder()
	s.handleCreatePlan(w, req)

	require.Equal(t, http.StatusCreated, w.Code)

	var resp createPlanResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.True(t, resp.Persisted)
	assert.Equal(t, types.ValidationPass, resp.Report.Status)
	// the certificate printed on the disclosure ends up in the fingerprint
	assert.Equal(t, "10004", resp.Fingerprint.Certificate)
	require.NotNil(t, resp.Plan)
	assert.Equal(t, resp.Fingerprint, resp.Plan.Fingerprint)

	db.AssertCalled(t, "CreatePlan", mock.Anything, mock.Anything)
	db.AssertNotCalled(t, "QuarantinePlan", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestHandleCreatePlanQuarantinesOnFail(t *testing.T) {
	// modeled 14.2¢ flat vs a disclosed 18.5¢ at 500 kWh is far out of
	// tolerance, so the candidate must never become a plan document
	candidate := extract.Candidate{
		Rules: types.PlanRules{
			PlanType:               types.PlanTypeFlat,
			DefaultRateCentsPerKWH: types.Float64Ptr(14.2),
		},
		Confidence: 0.9,
	}

	db := &storagemock.MockDatabase{}
	db.On("GetPlan", mock.Anything, mock.Anything).Return(types.PlanRules{}, storage.ErrPlanNotFound)
	db.On("QuarantinePlan", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(nil)

	ex := &mockExtractor{}
	ex.On("ExtractPlanRules", mock.Anything, overpricedEFL, mock.Anything).Return(candidate, nil)

	s := newTestServer(db, ex)
	body, err := json.Marshal(createPlanRequest{EFLText: overpricedEFL})
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, "/api/plans", strings.NewReader(string(body)))
	w := httptest.NewRecorder()
	s.handleCreatePlan(w, req)

	require.Equal(t, http.StatusAccepted, w.Code)

	var resp createPlanResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.False(t, resp.Persisted)
	assert.Equal(t, types.ValidationFail, resp.Report.Status)

	db.AssertCalled(t, "QuarantinePlan", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	db.AssertNotCalled(t, "CreatePlan", mock.Anything, mock.Anything)
}

func TestHandleCreatePlanDuplicateFingerprint(t *testing.T) {
	existing := flatTestPlan()
	db := &storagemock.MockDatabase{}
	db.On("GetPlan", mock.Anything, mock.Anything).Return(existing, nil)

	ex := &mockExtractor{}

	s := newTestServer(db, ex)
	body, err := json.Marshal(createPlanRequest{EFLText: flatEFL})
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, "/api/plans", strings.NewReader(string(body)))
	w := httptest.NewRecorder()
	s.handleCreatePlan(w, req)

	require.Equal(t, http.StatusOK, w.Code)

	var resp createPlanResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.True(t, resp.Persisted)

	// nothing extracted, nothing written
	ex.AssertNotCalled(t, "ExtractPlanRules", mock.Anything, mock.Anything, mock.Anything)
	db.AssertNotCalled(t, "CreatePlan", mock.Anything, mock.Anything)
}

func TestHandleValidatePlan(t *testing.T) {
	s := newTestServer(&storagemock.MockDatabase{}, nil)

	body, err := json.Marshal(validatePlanRequest{
		EFLText: overpricedEFL,
		Plan: types.PlanRules{
			PlanType:               types.PlanTypeFlat,
			DefaultRateCentsPerKWH: types.Float64Ptr(14.2),
		},
	})
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, "/api/plans/validate", strings.NewReader(string(body)))
	w := httptest.NewRecorder()
	s.handleValidatePlan(w, req)

	require.Equal(t, http.StatusOK, w.Code)

	var report types.ValidationReport
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &report))
	assert.Equal(t, types.ValidationFail, report.Status)
	assert.Len(t, report.Points, 3)
}

func TestHandleGetPlanRouting(t *testing.T) {
	db := &storagemock.MockDatabase{}
	db.On("GetPlan", mock.Anything, "abc123").Return(flatTestPlan(), nil)
	db.On("GetPlan", mock.Anything, "nope").Return(types.PlanRules{}, storage.ErrPlanNotFound)

	s := newTestServer(db, nil)
	handler := s.setupHandler()

	req := httptest.NewRequest(http.MethodGet, "/api/plans/abc123", nil)
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)
	// immutable documents get a long client cache
	assert.Equal(t, "public, max-age=86400", w.Header().Get("Cache-Control"))
	assert.Equal(t, "test", w.Header().Get("Server"))

	var plan types.PlanRules
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &plan))
	assert.Equal(t, "abc123", plan.Fingerprint.ContentHash)

	req = httptest.NewRequest(http.MethodGet, "/api/plans/nope", nil)
	w = httptest.NewRecorder()
	handler.ServeHTTP(w, req)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestHandleReviewQueue(t *testing.T) {
	items := []types.ReviewItem{
		{
			Plan:          types.PlanRules{Fingerprint: types.PlanFingerprint{ContentHash: "def456"}},
			Report:        types.ValidationReport{Status: types.ValidationFail, ReviewReason: "out of tolerance"},
			QuarantinedAt: testNow(),
		},
	}
	db := &storagemock.MockDatabase{}
	db.On("ListReviewQueue", mock.Anything).Return(items, nil)

	s := newTestServer(db, nil)
	handler := s.setupHandler()

	req := httptest.NewRequest(http.MethodGet, "/api/plans/review", nil)
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)

	var got []types.ReviewItem
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
	require.Len(t, got, 1)
	assert.Equal(t, "def456", got[0].Plan.Fingerprint.ContentHash)
}

func TestHandleHealthz(t *testing.T) {
	s := newTestServer(&storagemock.MockDatabase{}, nil)
	handler := s.setupHandler()

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "ok", w.Body.String())
}
