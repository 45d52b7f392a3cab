package main

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand"
	"os"
	"time"

	"github.com/levenlabs/go-lflag"
	"github.com/wattwise/wattwise/pkg/buckets"
	"github.com/wattwise/wattwise/pkg/log"
	"github.com/wattwise/wattwise/pkg/storage"
	"github.com/wattwise/wattwise/pkg/types"
)

const demoHomeID = "demo-home"

func main() {
	os.Setenv("FIRESTORE_EMULATOR_HOST", "127.0.0.1:8087")
	s := storage.Configured()
	lflag.Configure()

	ctx := context.Background()

	log.Ctx(ctx).InfoContext(ctx, "seeding mock data")

	for _, plan := range demoPlans() {
		err := s.CreatePlan(ctx, plan)
		if errors.Is(err, storage.ErrPlanExists) {
			continue
		}
		if err != nil {
			log.Ctx(ctx).ErrorContext(ctx, "failed to seed plan", "error", err)
			os.Exit(1)
		}
		fmt.Printf("Seeded plan %s (%s)\n", plan.Fingerprint.ContentHash, plan.PlanType)
	}

	rng := rand.New(rand.NewSource(time.Now().UnixNano()))

	// 13 months of buckets so a 12-month window is always complete
	first := time.Now().UTC()
	first = time.Date(first.Year(), first.Month(), 1, 0, 0, 0, 0, time.UTC)
	for i := 13; i >= 1; i-- {
		month := first.AddDate(0, -i, 0)
		ym := month.Format("2006-01")

		// Texas-shaped seasonal curve: summer AC dominates
		seasonal := 1.0 + 0.55*math.Cos(2*math.Pi*(float64(month.Month())-7.5)/12)
		total := 1050*seasonal + rng.Float64()*80

		// roughly 5/7 of usage on weekdays, nights run a bit under half
		weekday := total * (0.71 + rng.Float64()*0.02)
		night := total * (0.42 + rng.Float64()*0.04)

		row := map[string]float64{
			string(buckets.KeyAllTotal):     round1(total),
			string(buckets.KeyWeekdayTotal): round1(weekday),
			string(buckets.KeyWeekendTotal): round1(total - weekday),
			string(buckets.KeyAllNight):     round1(night),
			string(buckets.KeyAllDay):       round1(total - night),
		}
		if err := s.SetMonthlyBuckets(ctx, demoHomeID, ym, row); err != nil {
			log.Ctx(ctx).ErrorContext(ctx, "failed to seed buckets", "error", err)
			os.Exit(1)
		}
		fmt.Printf("Seeded buckets for %s: %.0f kWh total\n", ym, total)
	}

	log.Ctx(ctx).InfoContext(ctx, "seeded mock data successfully")
}

func demoPlans() []types.PlanRules {
	weekdays := []time.Weekday{time.Monday, time.Tuesday, time.Wednesday, time.Thursday, time.Friday}
	weekend := []time.Weekday{time.Saturday, time.Sunday}

	return []types.PlanRules{
		{
			Fingerprint:             types.PlanFingerprint{ContentHash: "demo-flat-12", Certificate: "10004"},
			PlanType:                types.PlanTypeFlat,
			DefaultRateCentsPerKWH:  types.Float64Ptr(12.0),
			BaseChargePerMonthCents: types.Float64Ptr(995),
		},
		{
			Fingerprint:             types.PlanFingerprint{ContentHash: "demo-free-nights", Certificate: "10004"},
			PlanType:                types.PlanTypeFreeNights,
			DefaultRateCentsPerKWH:  types.Float64Ptr(18.9),
			BaseChargePerMonthCents: types.Float64Ptr(495),
			TOUPeriods: []types.TOUPeriod{
				{Label: "night", StartHour: 20, EndHour: 7, Free: true},
				{Label: "day", StartHour: 7, EndHour: 20, RateCentsPerKWH: types.Float64Ptr(18.9)},
			},
		},
		{
			Fingerprint:            types.PlanFingerprint{ContentHash: "demo-free-weekends", Certificate: "10052"},
			PlanType:               types.PlanTypeFreeWeekends,
			DefaultRateCentsPerKWH: types.Float64Ptr(15.5),
			TOUPeriods: []types.TOUPeriod{
				{Label: "weekend", StartHour: 0, EndHour: 0, Days: weekend, Free: true},
				{Label: "weekday", StartHour: 0, EndHour: 0, Days: weekdays, RateCentsPerKWH: types.Float64Ptr(15.5)},
			},
			BillCredits: []types.BillCredit{
				{ThresholdKWH: 1000, CreditDollars: 25},
			},
		},
	}
}

func round1(v float64) float64 {
	return math.Round(v*10) / 10
}
