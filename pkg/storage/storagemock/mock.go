package storagemock

import (
	"context"
	"time"

	"github.com/stretchr/testify/mock"
	"github.com/wattwise/wattwise/pkg/storage"
	"github.com/wattwise/wattwise/pkg/types"
)

type MockDatabase struct {
	mock.Mock
}

var _ storage.Database = (*MockDatabase)(nil)

func (m *MockDatabase) CreatePlan(ctx context.Context, plan types.PlanRules) error {
	args := m.Called(ctx, plan)
	return args.Error(0)
}

func (m *MockDatabase) GetPlan(ctx context.Context, contentHash string) (types.PlanRules, error) {
	args := m.Called(ctx, contentHash)
	if len(args) > 0 {
		return args.Get(0).(types.PlanRules), args.Error(1)
	}
	return types.PlanRules{}, nil
}

func (m *MockDatabase) ListPlans(ctx context.Context) ([]types.PlanRules, error) {
	args := m.Called(ctx)
	if len(args) > 0 {
		return args.Get(0).([]types.PlanRules), args.Error(1)
	}
	return nil, nil
}

func (m *MockDatabase) InsertValidationReport(ctx context.Context, contentHash string, report types.ValidationReport, at time.Time) error {
	args := m.Called(ctx, contentHash, report, at)
	return args.Error(0)
}

func (m *MockDatabase) GetValidationReports(ctx context.Context, contentHash string) ([]types.ValidationReport, error) {
	args := m.Called(ctx, contentHash)
	if len(args) > 0 {
		return args.Get(0).([]types.ValidationReport), args.Error(1)
	}
	return nil, nil
}

func (m *MockDatabase) QuarantinePlan(ctx context.Context, plan types.PlanRules, report types.ValidationReport, at time.Time) error {
	args := m.Called(ctx, plan, report, at)
	return args.Error(0)
}

func (m *MockDatabase) ListReviewQueue(ctx context.Context) ([]types.ReviewItem, error) {
	args := m.Called(ctx)
	if len(args) > 0 {
		return args.Get(0).([]types.ReviewItem), args.Error(1)
	}
	return nil, nil
}

func (m *MockDatabase) GetMonthlyBuckets(ctx context.Context, homeID string, yearMonths []string) (map[string]map[string]float64, error) {
	args := m.Called(ctx, homeID, yearMonths)
	if len(args) > 0 {
		if args.Get(0) == nil {
			return nil, args.Error(1)
		}
		return args.Get(0).(map[string]map[string]float64), args.Error(1)
	}
	return nil, nil
}

func (m *MockDatabase) SetMonthlyBuckets(ctx context.Context, homeID, yearMonth string, buckets map[string]float64) error {
	args := m.Called(ctx, homeID, yearMonth, buckets)
	return args.Error(0)
}

func (m *MockDatabase) Close() error {
	args := m.Called()
	return args.Error(0)
}
