package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"time"

	"cloud.google.com/go/firestore"
	"github.com/levenlabs/go-lflag"
	"github.com/wattwise/wattwise/pkg/log"
	"github.com/wattwise/wattwise/pkg/types"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// FirestoreProvider implements the Database interface using Google Cloud
// Firestore. Documents carry a single "json" string field so the stored
// shape stays portable across schema changes.
type FirestoreProvider struct {
	client    *firestore.Client
	projectID string
	database  string
}

// configuredFirestore sets up the Firestore provider.
// It registers flags for configuration.
func configuredFirestore() *FirestoreProvider {
	projectID := lflag.String("firestore-project-id", "", "Google Cloud Project ID for Firestore")
	database := lflag.String("firestore-database", "", "Google Cloud Firestore Database")
	emulator := lflag.String("firestore-emulator", "", "Use Firestore emulator")

	f := &FirestoreProvider{}

	lflag.Do(func() {
		f.projectID = *projectID
		f.database = *database

		// set this because that's how firestore client expects it
		if *emulator != "" {
			os.Setenv("FIRESTORE_EMULATOR_HOST", *emulator)
		}
	})

	return f
}

// Validate checks if the provider is properly configured.
func (f *FirestoreProvider) Validate() error {
	// Project ID verification could be here, but we allow empty if inferred.
	return nil
}

// Init initializes the Firestore client.
// This must be called before using the provider methods.
func (f *FirestoreProvider) Init(ctx context.Context) error {
	projectID := f.projectID
	if projectID == "" {
		projectID = firestore.DetectProjectID
	}
	database := f.database
	if database == "" {
		database = firestore.DefaultDatabaseID
	}
	client, err := firestore.NewClientWithDatabase(ctx, projectID, database)
	if err != nil {
		return fmt.Errorf("failed to create firestore client (project=%s, database=%s): %w", projectID, database, err)
	}
	f.client = client
	return nil
}

// Close closes the Firestore client connection.
func (f *FirestoreProvider) Close() error {
	if f.client != nil {
		return f.client.Close()
	}
	return nil
}

// CreatePlan stores a plan document in the "plans" collection keyed by
// fingerprint content hash. Create (not Set) enforces immutability: a second
// write to the same fingerprint fails with ErrPlanExists.
func (f *FirestoreProvider) CreatePlan(ctx context.Context, plan types.PlanRules) error {
	hash := plan.Fingerprint.ContentHash
	if hash == "" {
		return fmt.Errorf("plan missing fingerprint content hash")
	}
	jsonBytes, err := json.Marshal(plan)
	if err != nil {
		return fmt.Errorf("failed to marshal plan %s: %w", hash, err)
	}
	_, err = f.client.Collection("plans").Doc(hash).Create(ctx, map[string]interface{}{
		"json":        string(jsonBytes),
		"certificate": plan.Fingerprint.Certificate,
	})
	if err != nil {
		if status.Code(err) == codes.AlreadyExists {
			return fmt.Errorf("%w: %s", ErrPlanExists, hash)
		}
		return fmt.Errorf("failed to create plan %s: %w", hash, err)
	}
	return nil
}

// GetPlan retrieves a plan document by fingerprint content hash.
func (f *FirestoreProvider) GetPlan(ctx context.Context, contentHash string) (types.PlanRules, error) {
	if contentHash == "" {
		return types.PlanRules{}, fmt.Errorf("contentHash cannot be empty")
	}
	doc, err := f.client.Collection("plans").Doc(contentHash).Get(ctx)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return types.PlanRules{}, fmt.Errorf("%w: %s", ErrPlanNotFound, contentHash)
		}
		return types.PlanRules{}, fmt.Errorf("failed to get plan %s: %w", contentHash, err)
	}

	plan, err := planFromDoc(ctx, doc)
	if err != nil {
		return types.PlanRules{}, err
	}
	return plan, nil
}

// ListPlans retrieves all plan documents.
func (f *FirestoreProvider) ListPlans(ctx context.Context) ([]types.PlanRules, error) {
	iter := f.client.Collection("plans").Documents(ctx)
	defer iter.Stop()

	var plans []types.PlanRules
	for {
		doc, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("error iterating plans: %w", err)
		}

		plan, err := planFromDoc(ctx, doc)
		if err != nil {
			// Skip malformed documents
			log.Ctx(ctx).WarnContext(ctx, "skipping malformed plan doc", slog.String("planID", doc.Ref.ID), slog.Any("err", err))
			continue
		}
		plans = append(plans, plan)
	}
	return plans, nil
}

func planFromDoc(ctx context.Context, doc *firestore.DocumentSnapshot) (types.PlanRules, error) {
	val, err := doc.DataAt("json")
	if err != nil {
		log.Ctx(ctx).WarnContext(ctx, "plan doc missing json", slog.String("planID", doc.Ref.ID))
		return types.PlanRules{}, fmt.Errorf("plan document %s missing 'json' field: %w", doc.Ref.ID, err)
	}
	jsonStr, ok := val.(string)
	if !ok {
		log.Ctx(ctx).WarnContext(ctx, "plan doc json not string", slog.String("planID", doc.Ref.ID))
		return types.PlanRules{}, fmt.Errorf("plan document %s 'json' field is not string", doc.Ref.ID)
	}
	var plan types.PlanRules
	if err := json.Unmarshal([]byte(jsonStr), &plan); err != nil {
		return types.PlanRules{}, fmt.Errorf("failed to unmarshal plan (id=%s): %w", doc.Ref.ID, err)
	}
	return plan, nil
}

// InsertValidationReport adds a report to the plan's "validation"
// sub-collection. The document ID is the RFC3339 timestamp for lexicographic
// ordering and efficient range queries.
func (f *FirestoreProvider) InsertValidationReport(ctx context.Context, contentHash string, report types.ValidationReport, at time.Time) error {
	if contentHash == "" {
		return fmt.Errorf("contentHash cannot be empty")
	}
	jsonBytes, err := json.Marshal(report)
	if err != nil {
		return fmt.Errorf("failed to marshal validation report: %w", err)
	}
	docID := at.UTC().Format(time.RFC3339)
	_, err = f.client.Collection("plans").Doc(contentHash).Collection("validation").Doc(docID).Set(ctx, map[string]interface{}{
		"json":      string(jsonBytes),
		"timestamp": at,
		"status":    string(report.Status),
	})
	if err != nil {
		return fmt.Errorf("failed to insert validation report for %s: %w", contentHash, err)
	}
	return nil
}

// GetValidationReports retrieves every report for a plan, oldest first.
func (f *FirestoreProvider) GetValidationReports(ctx context.Context, contentHash string) ([]types.ValidationReport, error) {
	if contentHash == "" {
		return nil, fmt.Errorf("contentHash cannot be empty")
	}
	iter := f.client.Collection("plans").Doc(contentHash).Collection("validation").
		OrderBy(firestore.DocumentID, firestore.Asc).
		Documents(ctx)
	defer iter.Stop()

	var reports []types.ValidationReport
	for {
		doc, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("error iterating validation reports: %w", err)
		}

		val, err := doc.DataAt("json")
		if err != nil {
			log.Ctx(ctx).WarnContext(ctx, "validation doc missing json", slog.String("docID", doc.Ref.ID), slog.String("planID", contentHash))
			return nil, fmt.Errorf("validation document %s missing 'json' field: %w", doc.Ref.ID, err)
		}
		jsonStr, ok := val.(string)
		if !ok {
			log.Ctx(ctx).WarnContext(ctx, "validation doc json not string", slog.String("docID", doc.Ref.ID), slog.String("planID", contentHash))
			return nil, fmt.Errorf("validation document %s 'json' field is not string", doc.Ref.ID)
		}

		var r types.ValidationReport
		if err := json.Unmarshal([]byte(jsonStr), &r); err != nil {
			return nil, fmt.Errorf("failed to unmarshal validation report (id=%s): %w", doc.Ref.ID, err)
		}
		reports = append(reports, r)
	}
	return reports, nil
}

// QuarantinePlan stores a failed candidate in the "review" collection keyed
// by fingerprint. Re-quarantining the same fingerprint overwrites the earlier
// entry so the queue holds one item per plan.
func (f *FirestoreProvider) QuarantinePlan(ctx context.Context, plan types.PlanRules, report types.ValidationReport, at time.Time) error {
	hash := plan.Fingerprint.ContentHash
	if hash == "" {
		return fmt.Errorf("plan missing fingerprint content hash")
	}
	item := types.ReviewItem{Plan: plan, Report: report, QuarantinedAt: at.UTC()}
	jsonBytes, err := json.Marshal(item)
	if err != nil {
		return fmt.Errorf("failed to marshal review item %s: %w", hash, err)
	}
	_, err = f.client.Collection("review").Doc(hash).Set(ctx, map[string]interface{}{
		"json":      string(jsonBytes),
		"timestamp": at.UTC(),
	})
	if err != nil {
		return fmt.Errorf("failed to quarantine plan %s: %w", hash, err)
	}
	return nil
}

// ListReviewQueue retrieves all quarantined candidates, oldest first.
func (f *FirestoreProvider) ListReviewQueue(ctx context.Context) ([]types.ReviewItem, error) {
	iter := f.client.Collection("review").
		OrderBy("timestamp", firestore.Asc).
		Documents(ctx)
	defer iter.Stop()

	var items []types.ReviewItem
	for {
		doc, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("error iterating review queue: %w", err)
		}

		val, err := doc.DataAt("json")
		if err != nil {
			log.Ctx(ctx).WarnContext(ctx, "review doc missing json", slog.String("docID", doc.Ref.ID))
			continue
		}
		jsonStr, ok := val.(string)
		if !ok {
			log.Ctx(ctx).WarnContext(ctx, "review doc json not string", slog.String("docID", doc.Ref.ID))
			continue
		}

		var item types.ReviewItem
		if err := json.Unmarshal([]byte(jsonStr), &item); err != nil {
			log.Ctx(ctx).WarnContext(ctx, "failed to unmarshal review item", slog.String("docID", doc.Ref.ID), slog.Any("err", err))
			continue
		}
		items = append(items, item)
	}
	return items, nil
}

// GetMonthlyBuckets retrieves bucket documents for the given months from the
// home's "buckets" sub-collection. The document ID is the yearMonth; months
// with no document are absent from the result, not an error.
func (f *FirestoreProvider) GetMonthlyBuckets(ctx context.Context, homeID string, yearMonths []string) (map[string]map[string]float64, error) {
	if homeID == "" {
		return nil, fmt.Errorf("homeID cannot be empty")
	}
	coll := f.client.Collection("homes").Doc(homeID).Collection("buckets")

	out := make(map[string]map[string]float64, len(yearMonths))
	for _, ym := range yearMonths {
		doc, err := coll.Doc(ym).Get(ctx)
		if err != nil {
			if status.Code(err) == codes.NotFound {
				continue
			}
			return nil, fmt.Errorf("failed to get buckets %s/%s: %w", homeID, ym, err)
		}

		val, err := doc.DataAt("json")
		if err != nil {
			log.Ctx(ctx).WarnContext(ctx, "bucket doc missing json", slog.String("homeID", homeID), slog.String("yearMonth", ym))
			return nil, fmt.Errorf("bucket document %s missing 'json' field: %w", ym, err)
		}
		jsonStr, ok := val.(string)
		if !ok {
			log.Ctx(ctx).WarnContext(ctx, "bucket doc json not string", slog.String("homeID", homeID), slog.String("yearMonth", ym))
			return nil, fmt.Errorf("bucket document %s 'json' field is not string", ym)
		}

		var buckets map[string]float64
		if err := json.Unmarshal([]byte(jsonStr), &buckets); err != nil {
			return nil, fmt.Errorf("failed to unmarshal buckets (home=%s, month=%s): %w", homeID, ym, err)
		}
		out[ym] = buckets
	}
	return out, nil
}

// SetMonthlyBuckets writes one month's bucket document for a home.
func (f *FirestoreProvider) SetMonthlyBuckets(ctx context.Context, homeID, yearMonth string, buckets map[string]float64) error {
	if homeID == "" {
		return fmt.Errorf("homeID cannot be empty")
	}
	jsonBytes, err := json.Marshal(buckets)
	if err != nil {
		return fmt.Errorf("failed to marshal buckets: %w", err)
	}
	_, err = f.client.Collection("homes").Doc(homeID).Collection("buckets").Doc(yearMonth).Set(ctx, map[string]interface{}{
		"json":      string(jsonBytes),
		"yearMonth": yearMonth,
	})
	if err != nil {
		return fmt.Errorf("failed to set buckets %s/%s: %w", homeID, yearMonth, err)
	}
	return nil
}
