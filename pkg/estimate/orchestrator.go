// Package estimate composes the cost engine: it derives which usage buckets
// a plan requires, ensures they exist (delegating to the external aggregation
// collaborator when missing, at most once), and produces a final cost
// estimate with full provenance of what succeeded and failed.
package estimate

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/wattwise/wattwise/pkg/billing"
	"github.com/wattwise/wattwise/pkg/buckets"
	"github.com/wattwise/wattwise/pkg/log"
	"github.com/wattwise/wattwise/pkg/rateplan"
	"github.com/wattwise/wattwise/pkg/tdu"
	"github.com/wattwise/wattwise/pkg/types"
)

// DefaultBackfillTimeout bounds a single bucket-materialization call so a
// slow external dependency cannot hang a request.
const DefaultBackfillTimeout = 90 * time.Second

// DefaultMonths is the usage window when the request doesn't specify one.
const DefaultMonths = 12

// BucketStore reads monthly usage aggregates. The write path is owned by the
// aggregation collaborator; this core only reads.
type BucketStore interface {
	// GetMonthlyBuckets returns yearMonth -> bucketKey -> kWh for the
	// requested months. Months with no rows may be absent from the map.
	GetMonthlyBuckets(ctx context.Context, homeID string, yearMonths []string) (map[string]map[string]float64, error)
}

// Aggregator materializes missing monthly buckets from raw interval data.
type Aggregator interface {
	MaterializeBuckets(ctx context.Context, homeID string, yearMonths []string, bucketKeys []string) error
}

// Config carries the orchestrator's optional collaborators.
type Config struct {
	Aggregation     Aggregator
	Tariffs         tdu.Provider
	Cache           *Cache
	BackfillTimeout time.Duration

	// Now is injectable for tests; defaults to time.Now.
	Now func() time.Time
}

// Orchestrator produces offer estimates. Safe for concurrent use; estimate
// requests for different plans/homes are independent.
type Orchestrator struct {
	store BucketStore
	cfg   Config
}

// New creates an Orchestrator reading buckets from store.
func New(store BucketStore, cfg Config) *Orchestrator {
	if cfg.BackfillTimeout <= 0 {
		cfg.BackfillTimeout = DefaultBackfillTimeout
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Orchestrator{store: store, cfg: cfg}
}

// Request is one estimate request for a plan and home.
type Request struct {
	Plan   types.PlanRules
	HomeID string

	// Months is the usage window length; defaults to DefaultMonths.
	Months int

	// DeliveryUtility selects the TDU tariff to add, when set.
	DeliveryUtility string

	// AnnualKWH enables the degraded fixed-rate path when the bucket set is
	// incomplete but the plan is computable from an annual total alone.
	AnnualKWH float64

	// AutoEnsureBuckets permits one bounded backfill of missing buckets.
	AutoEnsureBuckets bool
}

func (r Request) cacheKey() string {
	return fmt.Sprintf("%s|%s|%d|%s|%.3f|%t",
		r.Plan.Fingerprint.ContentHash, r.HomeID, r.Months, r.DeliveryUtility, r.AnnualKWH, r.AutoEnsureBuckets)
}

// Estimate runs the full pipeline. It always returns a structured response;
// data problems surface as a NOT_COMPUTABLE estimate with a reason, never as
// a panic or partial number.
func (o *Orchestrator) Estimate(ctx context.Context, req Request) types.EstimateResponse {
	if req.Months <= 0 {
		req.Months = DefaultMonths
	}

	if o.cfg.Cache != nil {
		if resp, ok := o.cfg.Cache.Get(req.cacheKey()); ok {
			return resp
		}
	}

	resp := o.estimate(ctx, req)

	if o.cfg.Cache != nil {
		o.cfg.Cache.Put(req.cacheKey(), resp)
	}
	return resp
}

func (o *Orchestrator) estimate(ctx context.Context, req Request) types.EstimateResponse {
	rs := rateplan.Project(req.Plan)
	months := o.monthWindow(req.Months)

	resp := types.EstimateResponse{
		RatePlan:       req.Plan.Fingerprint.ContentHash,
		MonthsIncluded: months,
		AnnualKWH:      req.AnnualKWH,
	}

	required, mappable := RequiredKeys(rs)
	resp.Detected = detectShape(required)

	delivery := o.deliveryTariff(ctx, req.DeliveryUtility)

	if !mappable {
		// a tier with no canonical bucket can never be costed from monthly
		// aggregates, and a TOU plan may not degrade to a fixed-rate average
		resp.Estimate = types.CostEstimate{
			Status: types.EstimateNotComputable,
			Reason: types.ReasonMissingBucket,
		}
		resp.PathReason = "plan has a pricing window with no canonical usage bucket"
		return resp
	}

	data, err := o.store.GetMonthlyBuckets(ctx, req.HomeID, months)
	if err != nil {
		log.Ctx(ctx).WarnContext(ctx, "bucket read failed",
			slog.String("homeID", req.HomeID), slog.Any("error", err))
		data = nil
	}
	win := buckets.ResolveWindow(months, data, required)

	if !win.Complete() && req.AutoEnsureBuckets && o.cfg.Aggregation != nil {
		win = o.backfillOnce(ctx, req, months, required, win, &resp.Backfill)
	} else {
		resp.Backfill.Requested = req.AutoEnsureBuckets
	}

	if win.Complete() {
		o.fillBucketed(&resp, rs, req, months, win, required, delivery)
		return resp
	}

	// degraded path: no full bucket set, but a fixed-shape plan is
	// computable from an annual total alone
	if (rs.Type == types.RateStructureFixed || rs.Type == types.RateStructureVariable) && req.AnnualKWH > 0 {
		resp.Path = types.PathFixedAnnual
		resp.PathReason = fmt.Sprintf("bucket window incomplete (missing: %v); using annual total", win.MissingKeys(required))
		resp.Estimate = billing.Calculate(billing.CycleInput{
			Rates:       rs,
			Delivery:    delivery,
			Months:      months,
			AnnualKWH:   req.AnnualKWH,
			MinUsageFee: req.Plan.MinUsageFee,
		})
		resp.OK = resp.Estimate.Status == types.EstimateOK
		return resp
	}

	reason := types.ReasonMissingBucket
	if len(win.Inconsistent) > 0 {
		reason = types.ReasonInconsistentKeys
	}
	resp.Estimate = types.CostEstimate{Status: types.EstimateNotComputable, Reason: reason}
	resp.PathReason = fmt.Sprintf("bucket window incomplete (missing: %v)", win.MissingKeys(required))
	return resp
}

// backfillOnce invokes the materialization collaborator exactly once under a
// timeout and re-resolves. Never retried: repeated retries are avoided to
// bound external load.
func (o *Orchestrator) backfillOnce(ctx context.Context, req Request, months []string, required []buckets.Key, win buckets.WindowResolution, report *types.BackfillReport) buckets.WindowResolution {
	report.Requested = true
	report.Attempted = true
	report.MissingKeysBefore = win.MissingKeys(required)

	keys := make([]string, 0, len(required))
	for _, k := range required {
		keys = append(keys, string(k))
	}

	bctx, cancel := context.WithTimeout(ctx, o.cfg.BackfillTimeout)
	defer cancel()
	if err := o.cfg.Aggregation.MaterializeBuckets(bctx, req.HomeID, months, keys); err != nil {
		// timeout is a normal failure mode, treated like missing buckets
		if errors.Is(err, context.DeadlineExceeded) {
			log.Ctx(ctx).WarnContext(ctx, "bucket backfill timed out",
				slog.String("homeID", req.HomeID), slog.Duration("timeout", o.cfg.BackfillTimeout))
		} else {
			log.Ctx(ctx).WarnContext(ctx, "bucket backfill failed",
				slog.String("homeID", req.HomeID), slog.Any("error", err))
		}
		report.MissingKeysAfter = report.MissingKeysBefore
		return win
	}

	data, err := o.store.GetMonthlyBuckets(ctx, req.HomeID, months)
	if err != nil {
		log.Ctx(ctx).WarnContext(ctx, "bucket re-read failed",
			slog.String("homeID", req.HomeID), slog.Any("error", err))
		report.MissingKeysAfter = report.MissingKeysBefore
		return win
	}

	win = buckets.ResolveWindow(months, data, required)
	report.MissingKeysAfter = win.MissingKeys(required)
	report.OK = win.Complete()
	return win
}

func (o *Orchestrator) fillBucketed(resp *types.EstimateResponse, rs types.RateStructure, req Request, months []string, win buckets.WindowResolution, required []buckets.Key, delivery *types.DeliveryTariff) {
	byMonth := make(map[string]map[string]float64, len(months))
	for _, ym := range months {
		byMonth[ym] = make(map[string]float64, len(required))
	}
	for key, perMonth := range win.ByKey {
		for ym, r := range perMonth {
			byMonth[ym][string(key)] = r.KWH
		}
	}

	var windowTotal float64
	for _, ym := range months {
		windowTotal += byMonth[ym][string(buckets.KeyAllTotal)]
	}
	resp.AnnualKWH = windowTotal * 12 / float64(len(months))
	resp.UsageBucketsByMonthIncluded = byMonth
	resp.Path = types.PathBucketed

	resp.Estimate = billing.Calculate(billing.CycleInput{
		Rates:          rs,
		Delivery:       delivery,
		Months:         months,
		BucketsByMonth: byMonth,
		MinUsageFee:    req.Plan.MinUsageFee,
	})
	resp.OK = resp.Estimate.Status == types.EstimateOK
}

func (o *Orchestrator) deliveryTariff(ctx context.Context, utility string) *types.DeliveryTariff {
	if utility == "" || o.cfg.Tariffs == nil {
		return nil
	}
	tariff, err := o.cfg.Tariffs.Tariff(ctx, utility, o.cfg.Now())
	if err != nil {
		log.Ctx(ctx).WarnContext(ctx, "no delivery tariff; estimating energy charges only",
			slog.String("utility", utility), slog.Any("error", err))
		return nil
	}
	return &tariff
}

// monthWindow lists the most recent n complete calendar months, oldest first.
func (o *Orchestrator) monthWindow(n int) []string {
	first := o.cfg.Now().UTC()
	first = time.Date(first.Year(), first.Month(), 1, 0, 0, 0, 0, time.UTC)

	months := make([]string, 0, n)
	for i := n; i >= 1; i-- {
		months = append(months, first.AddDate(0, -i, 0).Format("2006-01"))
	}
	return months
}

// RequiredKeys derives the canonical bucket set a rate structure needs: the
// month total always, plus one bucket per time-of-use tier. mappable is false
// when some tier has no canonical bucket.
func RequiredKeys(rs types.RateStructure) (keys []buckets.Key, mappable bool) {
	keys = []buckets.Key{buckets.KeyAllTotal}
	if rs.Type != types.RateStructureTimeOfUse {
		return keys, true
	}

	seen := map[buckets.Key]bool{buckets.KeyAllTotal: true}
	for _, tier := range rs.Tiers {
		key, ok := billing.TierBucketKey(tier)
		if !ok {
			return keys, false
		}
		if !seen[key] {
			seen[key] = true
			keys = append(keys, key)
		}
	}
	return keys, true
}

// detectShape reports the recognized plan shapes for response provenance.
func detectShape(required []buckets.Key) types.DetectedShape {
	var shape types.DetectedShape
	var hasWeekday, hasWeekend bool
	for _, k := range required {
		switch k {
		case buckets.KeyWeekdayTotal:
			hasWeekday = true
		case buckets.KeyWeekendTotal:
			hasWeekend = true
		case buckets.KeyAllTotal:
		default:
			// any explicit hour-range bucket is a day/night style split
			shape.DayNightTOU = true
		}
	}
	shape.FreeWeekends = hasWeekday && hasWeekend
	return shape
}
