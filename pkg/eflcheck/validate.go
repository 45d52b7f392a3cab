package eflcheck

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/wattwise/wattwise/pkg/billing"
	"github.com/wattwise/wattwise/pkg/buckets"
	"github.com/wattwise/wattwise/pkg/log"
	"github.com/wattwise/wattwise/pkg/rateplan"
	"github.com/wattwise/wattwise/pkg/types"
)

// DefaultToleranceCentsPerKWH is the per-level acceptance tolerance.
const DefaultToleranceCentsPerKWH = 0.25

// referenceDate is the fixed date synthetic profiles are priced on. A Monday,
// so weekday periods apply, and mid-June so summer month restrictions do.
var referenceDate = time.Date(2024, time.June, 17, 0, 0, 0, 0, time.UTC)

// Options tunes a validation run. The zero value uses defaults.
type Options struct {
	// ToleranceCentsPerKWH defaults to DefaultToleranceCentsPerKWH.
	ToleranceCentsPerKWH float64

	// Delivery is included in modeled cost when the disclosed averages are
	// known to bundle delivery charges.
	Delivery *types.DeliveryTariff
}

// Validate checks candidate PlanRules against the plan's own disclosed
// average-price table by simulating synthetic usage profiles through the
// billing calculator. It never returns an error: insufficient disclosure data
// yields SKIP, out-of-tolerance modeling yields FAIL with a queueable reason.
func Validate(ctx context.Context, eflText string, plan types.PlanRules, opts Options) (report types.ValidationReport) {
	tol := opts.ToleranceCentsPerKWH
	if tol <= 0 {
		tol = DefaultToleranceCentsPerKWH
	}
	report = types.ValidationReport{
		Status:               types.ValidationSkip,
		ToleranceCentsPerKWH: tol,
	}

	// this gates money-affecting persistence: a malformed document or plan
	// must degrade to SKIP, never take the process down
	defer func() {
		if r := recover(); r != nil {
			log.Ctx(ctx).ErrorContext(ctx, "validator panic recovered",
				slog.Any("panic", r),
				slog.String("contentHash", plan.Fingerprint.ContentHash))
			report = types.ValidationReport{
				Status:               types.ValidationSkip,
				ToleranceCentsPerKWH: tol,
				AssumptionsUsed:      []string{fmt.Sprintf("validator error: %v", r)},
			}
		}
	}()

	rows, snippet, found := extractAvgTable(eflText)
	report.AvgTableSnippet = snippet
	report.AvgTableFound = found
	if !found {
		return report
	}
	report.DisclosedRows = rows

	assumption := detectNightAssumption(eflText, plan)
	if assumption != nil {
		report.AssumptionsUsed = append(report.AssumptionsUsed,
			fmt.Sprintf("disclosed table assumes %.0f%% consumption during night hours %02d:00-%02d:00",
				assumption.Percent, assumption.StartHour, assumption.EndHour))
	}

	rs := rateplan.Project(plan)

	modeledAny := false
	allOK := true
	anyOutOfTolerance := false
	var failures []string

	for _, row := range rows {
		point := types.ValidationPoint{
			UsageKWH:               row.UsageKWH,
			ExpectedAvgCentsPerKWH: row.EflAvgCentsPerKWH,
		}

		modeled, ok := modelAvgPrice(plan, rs, row.UsageKWH, assumption, opts.Delivery)
		if !ok {
			// missing plan rules, zero-kWh hours, and cost-engine errors are
			// each a missing data point, never a crash
			allOK = false
			report.Points = append(report.Points, point)
			continue
		}
		modeledAny = true
		diff := modeled - row.EflAvgCentsPerKWH
		point.ModeledAvgCentsPerKWH = &modeled
		point.DiffCentsPerKWH = &diff
		// the epsilon keeps exactly-at-tolerance points from flipping to
		// FAIL over float noise in the modeled price
		point.OK = math.Abs(diff) <= tol+1e-9
		if !point.OK {
			allOK = false
			anyOutOfTolerance = true
			failures = append(failures, fmt.Sprintf("%.0f kWh: disclosed %.2f¢ vs modeled %.2f¢ (diff %.2f¢)",
				row.UsageKWH, row.EflAvgCentsPerKWH, modeled, diff))
		}
		report.Points = append(report.Points, point)
	}

	switch {
	case anyOutOfTolerance:
		report.Status = types.ValidationFail
		report.ReviewReason = fmt.Sprintf("avg price mismatch beyond %.2f¢/kWh: %s",
			tol, strings.Join(failures, "; "))
	case modeledAny && allOK:
		report.Status = types.ValidationPass
	default:
		report.Status = types.ValidationSkip
	}
	return report
}

// modelAvgPrice synthesizes a one-month usage profile at the given level,
// costs it through the billing cycle aggregator, and returns the implied
// average cents per kWh.
func modelAvgPrice(plan types.PlanRules, rs types.RateStructure, usageKWH float64, assumption *nightAssumption, delivery *types.DeliveryTariff) (float64, bool) {
	if usageKWH <= 0 {
		return 0, false
	}

	profile := synthProfile(plan, usageKWH, assumption)
	monthBuckets, ok := profileBuckets(rs, profile, usageKWH)
	if !ok {
		return 0, false
	}

	ym := referenceDate.Format("2006-01")
	est := billing.Calculate(billing.CycleInput{
		Rates:          rs,
		Delivery:       delivery,
		Months:         []string{ym},
		BucketsByMonth: map[string]map[string]float64{ym: monthBuckets},
		MinUsageFee:    plan.MinUsageFee,
	})
	if est.Status != types.EstimateOK {
		return 0, false
	}

	// avg ¢/kWh = (dollars × 100) / kWh, from unrounded cents
	avg := est.Components.TotalCents() / usageKWH
	if math.IsNaN(avg) || math.IsInf(avg, 0) {
		return 0, false
	}
	return avg, true
}

// synthProfile builds 24 hourly kWh values summing to usageKWH. Uniform
// unless the plan is a free-nights style TOU plan and the disclosure stated
// its own night-consumption assumption, in which case the profile mirrors
// that assumption.
func synthProfile(plan types.PlanRules, usageKWH float64, assumption *nightAssumption) [24]float64 {
	var profile [24]float64

	if assumption == nil || !isFreeNightsStyle(plan) {
		for h := range profile {
			profile[h] = usageKWH / 24
		}
		return profile
	}

	night := hoursInWindow(assumption.StartHour, assumption.EndHour)
	if len(night) == 0 || len(night) == 24 {
		for h := range profile {
			profile[h] = usageKWH / 24
		}
		return profile
	}

	nightKWH := usageKWH * assumption.Percent / 100
	dayKWH := usageKWH - nightKWH
	isNight := make(map[int]bool, len(night))
	for _, h := range night {
		isNight[h] = true
	}
	dayCount := 24 - len(night)
	for h := 0; h < 24; h++ {
		if isNight[h] {
			profile[h] = nightKWH / float64(len(night))
		} else {
			profile[h] = dayKWH / float64(dayCount)
		}
	}
	return profile
}

func isFreeNightsStyle(plan types.PlanRules) bool {
	if plan.PlanType == types.PlanTypeFreeNights {
		return true
	}
	for _, p := range plan.TOUPeriods {
		// a free period crossing midnight is a night window
		if p.Free && p.EndHour < p.StartHour {
			return true
		}
	}
	return false
}

// hoursInWindow lists whole hours in [start,end), crossing midnight when
// end < start. start == end yields every hour.
func hoursInWindow(start, end int) []int {
	var hours []int
	for h := 0; h < 24; h++ {
		switch {
		case start == end:
			hours = append(hours, h)
		case start < end:
			if h >= start && h < end {
				hours = append(hours, h)
			}
		default:
			if h >= start || h < end {
				hours = append(hours, h)
			}
		}
	}
	return hours
}

// profileBuckets turns an hourly profile into the monthly buckets the plan
// shape requires, assigning each hour to the first tier whose window covers
// it on the reference date. The total bucket carries the exact usage level
// rather than a re-summed profile, so an at-tolerance point does not pick up
// float noise from the 24-way split.
func profileBuckets(rs types.RateStructure, profile [24]float64, usageKWH float64) (map[string]float64, bool) {
	out := map[string]float64{string(buckets.KeyAllTotal): usageKWH}

	if rs.Type != types.RateStructureTimeOfUse {
		return out, true
	}

	// every tier's bucket must exist even when no hour lands in it
	for _, tier := range rs.Tiers {
		key, ok := billing.TierBucketKey(tier)
		if !ok {
			return nil, false
		}
		if _, exists := out[string(key)]; !exists {
			out[string(key)] = 0
		}
	}

	refDay := referenceDate.Weekday().String()[:3]
	refMonth := int(referenceDate.Month())

	for h := 0; h < 24; h++ {
		for _, tier := range rs.Tiers {
			if !tierApplies(tier, refDay, refMonth, h) {
				continue
			}
			key, _ := billing.TierBucketKey(tier)
			out[string(key)] += profile[h]
			break
		}
	}
	return out, true
}

func tierApplies(tier types.RateTier, day string, month, hour int) bool {
	if !tier.Days.Contains(day) {
		return false
	}
	if len(tier.Months) > 0 {
		found := false
		for _, m := range tier.Months {
			if m == month {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	start := hhmmToHour(tier.Start)
	end := hhmmToHour(tier.End)
	h := float64(hour)
	switch {
	case start == end:
		return true
	case start < end:
		return h >= start && h < end
	default:
		return h >= start || h < end
	}
}

func hhmmToHour(s string) float64 {
	parts := strings.SplitN(s, ":", 2)
	h, err := strconv.Atoi(parts[0])
	if err != nil {
		return 0
	}
	var m int
	if len(parts) == 2 {
		m, _ = strconv.Atoi(parts[1])
	}
	return float64(h) + float64(m)/60
}
