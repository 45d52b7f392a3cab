package estimate

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/wattwise/wattwise/pkg/buckets"
	"github.com/wattwise/wattwise/pkg/rateplan"
	"github.com/wattwise/wattwise/pkg/types"
)

type mockStore struct {
	mock.Mock
}

func (m *mockStore) GetMonthlyBuckets(ctx context.Context, homeID string, yearMonths []string) (map[string]map[string]float64, error) {
	args := m.Called(ctx, homeID, yearMonths)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(map[string]map[string]float64), args.Error(1)
}

type mockAggregator struct {
	mock.Mock
}

func (m *mockAggregator) MaterializeBuckets(ctx context.Context, homeID string, yearMonths []string, bucketKeys []string) error {
	args := m.Called(ctx, homeID, yearMonths, bucketKeys)
	return args.Error(0)
}

func fixedNow() time.Time {
	return time.Date(2024, 7, 10, 12, 0, 0, 0, time.UTC)
}

// window ending June 2024 for fixedNow
func windowMonths(n int) []string {
	months := make([]string, 0, n)
	cursor := time.Date(2024, 7, 1, 0, 0, 0, 0, time.UTC)
	for i := n; i >= 1; i-- {
		months = append(months, cursor.AddDate(0, -i, 0).Format("2006-01"))
	}
	return months
}

func flatPlan() types.PlanRules {
	return types.PlanRules{
		Fingerprint:             types.PlanFingerprint{ContentHash: "abc123"},
		PlanType:                types.PlanTypeFlat,
		DefaultRateCentsPerKWH:  types.Float64Ptr(12.0),
		BaseChargePerMonthCents: types.Float64Ptr(995),
	}
}

func freeWeekendsPlan() types.PlanRules {
	weekdays := []time.Weekday{time.Monday, time.Tuesday, time.Wednesday, time.Thursday, time.Friday}
	return types.PlanRules{
		Fingerprint:            types.PlanFingerprint{ContentHash: "fw456"},
		PlanType:               types.PlanTypeFreeWeekends,
		DefaultRateCentsPerKWH: types.Float64Ptr(15.0),
		TOUPeriods: []types.TOUPeriod{
			{Label: "weekend", StartHour: 0, EndHour: 0, Days: []time.Weekday{time.Saturday, time.Sunday}, Free: true},
			{Label: "weekday", StartHour: 0, EndHour: 0, Days: weekdays, RateCentsPerKWH: types.Float64Ptr(15.0)},
		},
	}
}

func fullBuckets(months []string) map[string]map[string]float64 {
	data := make(map[string]map[string]float64, len(months))
	for _, ym := range months {
		data[ym] = map[string]float64{
			string(buckets.KeyAllTotal):     1000,
			string(buckets.KeyWeekdayTotal): 700,
			string(buckets.KeyWeekendTotal): 300,
		}
	}
	return data
}

func TestEstimateBucketedFreeWeekends(t *testing.T) {
	months := windowMonths(12)
	store := &mockStore{}
	store.On("GetMonthlyBuckets", mock.Anything, "home1", months).Return(fullBuckets(months), nil)

	o := New(store, Config{Now: fixedNow})
	resp := o.Estimate(context.Background(), Request{Plan: freeWeekendsPlan(), HomeID: "home1"})

	require.True(t, resp.OK)
	assert.Equal(t, types.PathBucketed, resp.Path)
	assert.Equal(t, types.EstimateOK, resp.Estimate.Status)
	assert.True(t, resp.Detected.FreeWeekends)
	assert.False(t, resp.Detected.DayNightTOU)
	assert.Equal(t, months, resp.MonthsIncluded)
	assert.InDelta(t, 12000, resp.AnnualKWH, 1e-9)
	// 700 kWh weekday × 15¢ × 12 months, weekends free
	assert.InDelta(t, 700*15*12, resp.Estimate.Components.EnergyCents, 1e-6)
	store.AssertExpectations(t)
}

func TestEstimateFailsClosedWhenBucketsMissing(t *testing.T) {
	months := windowMonths(12)
	data := fullBuckets(months)
	delete(data[months[3]], string(buckets.KeyWeekdayTotal))

	store := &mockStore{}
	store.On("GetMonthlyBuckets", mock.Anything, "home1", months).Return(data, nil)

	o := New(store, Config{Now: fixedNow})
	resp := o.Estimate(context.Background(), Request{Plan: freeWeekendsPlan(), HomeID: "home1"})

	assert.False(t, resp.OK)
	assert.Equal(t, types.EstimateNotComputable, resp.Estimate.Status)
	assert.Equal(t, types.ReasonMissingBucket, resp.Estimate.Reason)
	assert.Zero(t, resp.Estimate.AnnualCostDollars, "never a partial number")
}

// The materialization collaborator must run at most once per estimate call,
// no matter how many canonical keys are missing.
func TestEstimateBackfillInvokedAtMostOnce(t *testing.T) {
	months := windowMonths(12)
	empty := map[string]map[string]float64{}
	full := fullBuckets(months)

	store := &mockStore{}
	// first read: nothing; read after backfill: everything
	store.On("GetMonthlyBuckets", mock.Anything, "home1", months).Return(empty, nil).Once()
	store.On("GetMonthlyBuckets", mock.Anything, "home1", months).Return(full, nil).Once()

	agg := &mockAggregator{}
	agg.On("MaterializeBuckets", mock.Anything, "home1", months, mock.Anything).Return(nil).Once()

	o := New(store, Config{Now: fixedNow, Aggregation: agg})
	resp := o.Estimate(context.Background(), Request{
		Plan:              freeWeekendsPlan(),
		HomeID:            "home1",
		AutoEnsureBuckets: true,
	})

	require.True(t, resp.OK)
	assert.True(t, resp.Backfill.Requested)
	assert.True(t, resp.Backfill.Attempted)
	assert.True(t, resp.Backfill.OK)
	assert.NotEmpty(t, resp.Backfill.MissingKeysBefore)
	assert.Empty(t, resp.Backfill.MissingKeysAfter)
	agg.AssertNumberOfCalls(t, "MaterializeBuckets", 1)
	store.AssertExpectations(t)
}

func TestEstimateBackfillStillMissingNoRetry(t *testing.T) {
	months := windowMonths(12)
	empty := map[string]map[string]float64{}

	store := &mockStore{}
	store.On("GetMonthlyBuckets", mock.Anything, "home1", months).Return(empty, nil)

	agg := &mockAggregator{}
	agg.On("MaterializeBuckets", mock.Anything, "home1", months, mock.Anything).Return(nil)

	o := New(store, Config{Now: fixedNow, Aggregation: agg})
	resp := o.Estimate(context.Background(), Request{
		Plan:              freeWeekendsPlan(),
		HomeID:            "home1",
		AutoEnsureBuckets: true,
	})

	assert.False(t, resp.OK)
	assert.True(t, resp.Backfill.Attempted)
	assert.False(t, resp.Backfill.OK)
	assert.NotEmpty(t, resp.Backfill.MissingKeysAfter)
	agg.AssertNumberOfCalls(t, "MaterializeBuckets", 1)
}

func TestEstimateBackfillTimeoutIsNormalFailure(t *testing.T) {
	months := windowMonths(12)
	store := &mockStore{}
	store.On("GetMonthlyBuckets", mock.Anything, "home1", months).Return(map[string]map[string]float64{}, nil)

	agg := &mockAggregator{}
	agg.On("MaterializeBuckets", mock.Anything, "home1", months, mock.Anything).Return(context.DeadlineExceeded)

	o := New(store, Config{Now: fixedNow, Aggregation: agg, BackfillTimeout: time.Millisecond})
	resp := o.Estimate(context.Background(), Request{
		Plan:              freeWeekendsPlan(),
		HomeID:            "home1",
		AutoEnsureBuckets: true,
	})

	assert.False(t, resp.OK)
	assert.False(t, resp.Backfill.OK)
	assert.Equal(t, resp.Backfill.MissingKeysBefore, resp.Backfill.MissingKeysAfter)
}

// A fixed-rate plan degrades to the annual-total path when buckets are
// unavailable, reporting which path was used and why.
func TestEstimateDegradedFixedAnnualPath(t *testing.T) {
	months := windowMonths(12)
	store := &mockStore{}
	store.On("GetMonthlyBuckets", mock.Anything, "home1", months).Return(map[string]map[string]float64{}, nil)

	o := New(store, Config{Now: fixedNow})
	resp := o.Estimate(context.Background(), Request{
		Plan:      flatPlan(),
		HomeID:    "home1",
		AnnualKWH: 12000,
	})

	require.True(t, resp.OK)
	assert.Equal(t, types.PathFixedAnnual, resp.Path)
	assert.NotEmpty(t, resp.PathReason)
	assert.InDelta(t, 1559.40, resp.Estimate.AnnualCostDollars, 1e-9)
}

func TestEstimateTOUNeverDegradesToAnnual(t *testing.T) {
	months := windowMonths(12)
	store := &mockStore{}
	store.On("GetMonthlyBuckets", mock.Anything, "home1", months).Return(map[string]map[string]float64{}, nil)

	o := New(store, Config{Now: fixedNow})
	resp := o.Estimate(context.Background(), Request{
		Plan:      freeWeekendsPlan(),
		HomeID:    "home1",
		AnnualKWH: 12000, // must not be used: mixing methods is not permitted
	})

	assert.False(t, resp.OK)
	assert.Equal(t, types.EstimateNotComputable, resp.Estimate.Status)
}

func TestEstimateInconsistentKeysReason(t *testing.T) {
	months := windowMonths(2)
	data := map[string]map[string]float64{
		months[0]: {"kwh.m.all.total": 1000},
		months[1]: {"kwh.m.ALL.0000-2400": 950},
	}
	store := &mockStore{}
	store.On("GetMonthlyBuckets", mock.Anything, "home1", months).Return(data, nil)

	o := New(store, Config{Now: fixedNow})
	resp := o.Estimate(context.Background(), Request{
		Plan:   flatPlan(),
		HomeID: "home1",
		Months: 2,
	})

	assert.False(t, resp.OK)
	assert.Equal(t, types.ReasonInconsistentKeys, resp.Estimate.Reason)
}

// Cache hits must be observably identical to misses.
func TestEstimateCacheIdenticalResult(t *testing.T) {
	months := windowMonths(12)
	store := &mockStore{}
	store.On("GetMonthlyBuckets", mock.Anything, "home1", months).Return(fullBuckets(months), nil).Once()

	o := New(store, Config{Now: fixedNow, Cache: NewCache(time.Minute, 10)})
	req := Request{Plan: freeWeekendsPlan(), HomeID: "home1"}

	first := o.Estimate(context.Background(), req)
	second := o.Estimate(context.Background(), req)
	assert.Equal(t, first, second)
	store.AssertExpectations(t) // single read proves the second call was a hit
}

func TestEstimateStoreErrorFailsClosed(t *testing.T) {
	months := windowMonths(12)
	store := &mockStore{}
	store.On("GetMonthlyBuckets", mock.Anything, "home1", months).Return(nil, fmt.Errorf("unavailable"))

	o := New(store, Config{Now: fixedNow})
	resp := o.Estimate(context.Background(), Request{Plan: freeWeekendsPlan(), HomeID: "home1"})

	assert.False(t, resp.OK)
	assert.Equal(t, types.EstimateNotComputable, resp.Estimate.Status)
}

func TestRequiredKeys(t *testing.T) {
	rs := rateplan.Project(flatPlan())
	keys, ok := RequiredKeys(rs)
	assert.True(t, ok)
	assert.Equal(t, []buckets.Key{buckets.KeyAllTotal}, keys)

	rs = rateplan.Project(freeWeekendsPlan())
	keys, ok = RequiredKeys(rs)
	assert.True(t, ok)
	assert.Equal(t, []buckets.Key{buckets.KeyAllTotal, buckets.KeyWeekendTotal, buckets.KeyWeekdayTotal}, keys)

	// day/night plan requires its window buckets
	night := types.PlanRules{
		TOUPeriods: []types.TOUPeriod{
			{Label: "night", StartHour: 20, EndHour: 7, Free: true},
			{Label: "day", StartHour: 7, EndHour: 20, RateCentsPerKWH: types.Float64Ptr(18)},
		},
	}
	keys, ok = RequiredKeys(rateplan.Project(night))
	assert.True(t, ok)
	assert.Equal(t, []buckets.Key{buckets.KeyAllTotal, buckets.KeyAllNight, buckets.KeyAllDay}, keys)
}

func TestMonthWindow(t *testing.T) {
	o := New(&mockStore{}, Config{Now: fixedNow})
	months := o.monthWindow(3)
	assert.Equal(t, []string{"2024-04", "2024-05", "2024-06"}, months)
}

func TestCacheTTLAndEviction(t *testing.T) {
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	c := NewCache(time.Minute, 2)
	c.now = func() time.Time { return now }

	c.Put("a", types.EstimateResponse{RatePlan: "a"})
	got, ok := c.Get("a")
	require.True(t, ok)
	assert.Equal(t, "a", got.RatePlan)

	// expiry
	now = now.Add(2 * time.Minute)
	_, ok = c.Get("a")
	assert.False(t, ok)

	// eviction keeps the cap
	c.Put("a", types.EstimateResponse{})
	c.Put("b", types.EstimateResponse{})
	c.Put("c", types.EstimateResponse{})
	assert.LessOrEqual(t, c.Len(), 2)
}
