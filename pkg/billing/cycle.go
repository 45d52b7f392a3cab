// Package billing sums per-interval energy charges, fixed monthly charges,
// bill credits, and minimum-usage adjustments into monthly and annual cost.
// All dollar math is carried in double-precision cents and rendered to
// two-decimal dollars only at output, so internal rounding never compounds
// across months. Data-quality problems surface as NOT_COMPUTABLE results with
// a machine reason, never as errors.
package billing

import (
	"fmt"
	"math"

	"github.com/wattwise/wattwise/pkg/buckets"
	"github.com/wattwise/wattwise/pkg/types"
)

// CycleInput is everything needed to cost a window of billing cycles.
type CycleInput struct {
	Rates types.RateStructure

	// Delivery is the delivery utility's tariff, when the plan does not
	// bundle delivery charges.
	Delivery *types.DeliveryTariff

	// Months lists the yearMonths in the window, e.g. ["2024-01", ...].
	Months []string

	// AnnualKWH is the annualized usage figure for the degraded fixed-rate
	// path. Ignored when BucketsByMonth is set.
	AnnualKWH float64

	// BucketsByMonth maps yearMonth -> canonical bucket key -> kWh. When set,
	// every month must carry every bucket the plan shape requires; the
	// calculation never mixes bucketed and annual-average methods across
	// months within one estimate.
	BucketsByMonth map[string]map[string]float64

	MinUsageFee *types.MinUsageFee
}

// Calculate produces a cost estimate for the window, failing closed with
// NOT_COMPUTABLE rather than approximating when required usage data is
// absent.
func Calculate(in CycleInput) types.CostEstimate {
	if in.Rates.Type == "" {
		return notComputable(types.ReasonNoRateStructure)
	}
	if len(in.Months) == 0 {
		return notComputable(types.ReasonNoUsage)
	}

	var comp types.CostComponents
	for _, ym := range in.Months {
		monthUsage, energyCents, est := monthlyEnergy(in, ym)
		if est != nil {
			return *est
		}
		comp.EnergyCents += energyCents

		if in.Rates.BaseMonthlyFeeCents != nil {
			comp.BaseChargeCents += *in.Rates.BaseMonthlyFeeCents
		}
		if in.Delivery != nil {
			comp.TDUEnergyCents += monthUsage * in.Delivery.PerKWHCents
			comp.TDUFixedCents += in.Delivery.MonthlyFixedCents
		}
		if in.Rates.BillCredits != nil && in.Rates.BillCredits.HasBillCredit {
			for _, rule := range in.Rates.BillCredits.Rules {
				if monthUsage >= rule.ThresholdKWH {
					comp.BillCreditCents += rule.CreditCents
				}
			}
		}
		if in.MinUsageFee != nil && monthUsage < in.MinUsageFee.FloorKWH {
			comp.MinUsageFeeCents += in.MinUsageFee.FeeCents
		}
	}

	totalCents := comp.TotalCents()
	monthly := totalCents / float64(len(in.Months)) / 100
	return types.CostEstimate{
		Status:             types.EstimateOK,
		MonthlyCostDollars: roundDollars(monthly),
		AnnualCostDollars:  roundDollars(monthly * 12),
		Components:         comp,
	}
}

// monthlyEnergy returns the month's total usage and energy cost in cents, or
// a NOT_COMPUTABLE estimate when a required bucket is missing.
func monthlyEnergy(in CycleInput, ym string) (float64, float64, *types.CostEstimate) {
	switch in.Rates.Type {
	case types.RateStructureFixed, types.RateStructureVariable:
		usage, reason := monthTotalUsage(in, ym)
		if reason != "" {
			est := notComputable(reason)
			return 0, 0, &est
		}
		return usage, usage * in.Rates.EnergyRateCents, nil

	case types.RateStructureTimeOfUse:
		if in.BucketsByMonth == nil {
			est := notComputable(types.ReasonMissingBucket)
			return 0, 0, &est
		}
		monthBuckets := in.BucketsByMonth[ym]
		var usage, energyCents float64
		for _, tier := range in.Rates.Tiers {
			key, ok := TierBucketKey(tier)
			if !ok {
				est := notComputable(types.ReasonMissingBucket)
				return 0, 0, &est
			}
			kwh, present := monthBuckets[string(key)]
			if !present || math.IsNaN(kwh) || math.IsInf(kwh, 0) {
				est := notComputable(types.ReasonMissingBucket)
				return 0, 0, &est
			}
			usage += kwh
			energyCents += kwh * tier.PriceCents
		}
		return usage, energyCents, nil

	default:
		est := notComputable(types.ReasonNoRateStructure)
		return 0, 0, &est
	}
}

// monthTotalUsage finds the month's total kWh: from the all-day bucket when
// the estimate runs bucketed, else a twelfth of the annual figure.
func monthTotalUsage(in CycleInput, ym string) (float64, string) {
	if in.BucketsByMonth != nil {
		kwh, ok := in.BucketsByMonth[ym][string(buckets.KeyAllTotal)]
		if !ok || math.IsNaN(kwh) || math.IsInf(kwh, 0) {
			return 0, types.ReasonMissingBucket
		}
		return kwh, ""
	}
	if in.AnnualKWH <= 0 {
		return 0, types.ReasonNoUsage
	}
	return in.AnnualKWH / 12, ""
}

// TierBucketKey maps a rate tier onto the canonical usage bucket its charge
// applies to. The mapping is closed: a tier whose day set and window do not
// correspond to a known bucket cannot be costed from monthly aggregates.
func TierBucketKey(tier types.RateTier) (buckets.Key, bool) {
	wholeDay := tier.Start == tier.End

	if tier.Days.All {
		if wholeDay {
			return buckets.KeyAllTotal, true
		}
		return buckets.WindowKey(tier.Start, tier.End), true
	}

	if !wholeDay {
		return "", false
	}
	switch {
	case daySetEquals(tier.Days, "Mon", "Tue", "Wed", "Thu", "Fri"):
		return buckets.KeyWeekdayTotal, true
	case daySetEquals(tier.Days, "Sat", "Sun"):
		return buckets.KeyWeekendTotal, true
	}
	return "", false
}

func daySetEquals(d types.DaySelector, want ...string) bool {
	if d.All || len(d.Days) != len(want) {
		return false
	}
	for _, w := range want {
		if !d.Contains(w) {
			return false
		}
	}
	return true
}

func notComputable(reason string) types.CostEstimate {
	return types.CostEstimate{
		Status: types.EstimateNotComputable,
		Reason: reason,
	}
}

func roundDollars(d float64) float64 {
	return math.Round(d*100) / 100
}

// FormatDollars renders a dollar amount the way estimates present it.
func FormatDollars(d float64) string {
	return fmt.Sprintf("$%.2f", roundDollars(d))
}
