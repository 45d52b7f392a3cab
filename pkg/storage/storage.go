package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/levenlabs/go-lflag"
	"github.com/wattwise/wattwise/pkg/types"
)

var (
	ErrPlanNotFound = errors.New("plan not found")
	// ErrPlanExists is returned when creating a plan whose fingerprint is
	// already stored. Plan documents are immutable; a changed disclosure
	// gets a new fingerprint and a new document.
	ErrPlanExists = errors.New("plan already exists")
)

// Database defines the interface for persisting plans, validation reports,
// and usage buckets.
type Database interface {
	// Plans, keyed by fingerprint content hash. Immutable once created.
	CreatePlan(ctx context.Context, plan types.PlanRules) error
	GetPlan(ctx context.Context, contentHash string) (types.PlanRules, error)
	ListPlans(ctx context.Context) ([]types.PlanRules, error)

	// Validation reports attached to a plan, newest last.
	InsertValidationReport(ctx context.Context, contentHash string, report types.ValidationReport, at time.Time) error
	GetValidationReports(ctx context.Context, contentHash string) ([]types.ValidationReport, error)

	// Review queue: candidates that failed validation, held for a human.
	QuarantinePlan(ctx context.Context, plan types.PlanRules, report types.ValidationReport, at time.Time) error
	ListReviewQueue(ctx context.Context) ([]types.ReviewItem, error)

	// Monthly usage buckets per home: yearMonth -> bucket key -> kWh.
	// Months with no stored document are simply absent from the result.
	GetMonthlyBuckets(ctx context.Context, homeID string, yearMonths []string) (map[string]map[string]float64, error)
	SetMonthlyBuckets(ctx context.Context, homeID, yearMonth string, buckets map[string]float64) error

	// Lifecycle
	Close() error
}

// Configured sets up the Storage provider based on flags.
func Configured() Database {
	provider := lflag.String("storage-provider", "firestore", "Storage provider to use (available: firestore)")

	var p struct{ Database }

	fs := configuredFirestore()

	lflag.Do(func() {
		switch *provider {
		case "firestore":
			if err := fs.Validate(); err != nil {
				panic(fmt.Sprintf("firestore validation failed: %v", err))
			}
			p.Database = fs
			if err := fs.Init(context.Background()); err != nil {
				panic(fmt.Sprintf("firestore init failed: %v", err))
			}
		default:
			panic(fmt.Sprintf("unknown storage provider: %s", *provider))
		}
	})

	return &p
}
