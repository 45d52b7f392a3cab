// Package rateplan implements the canonical rate-plan model operations: the
// projection into the billing-facing RateStructure and interval-level price
// resolution. Everything in this package is a pure function of its inputs.
package rateplan

import (
	"fmt"
	"time"

	"github.com/wattwise/wattwise/pkg/types"
)

// Project derives the billing-facing RateStructure from PlanRules. It is
// deterministic and idempotent: the same PlanRules always yields an identical
// RateStructure. No I/O, no clock, no randomness.
func Project(p types.PlanRules) types.RateStructure {
	rs := types.RateStructure{}

	if len(p.TOUPeriods) > 0 {
		rs.Type = types.RateStructureTimeOfUse
		rs.Tiers = make([]types.RateTier, 0, len(p.TOUPeriods))
		for _, period := range p.TOUPeriods {
			rs.Tiers = append(rs.Tiers, types.RateTier{
				PriceCents: periodRateCents(period, p.DefaultRateCentsPerKWH),
				Start:      hourToHHMM(period.StartHour),
				End:        hourToHHMM(period.EndHour),
				Days:       daysToSelector(period.Days),
				Months:     monthsToInts(period.Months),
				Label:      period.Label,
			})
		}
	} else {
		rs.Type = types.RateStructureFixed
		if p.DefaultRateCentsPerKWH != nil {
			rs.EnergyRateCents = *p.DefaultRateCentsPerKWH
		}
	}

	if p.BaseChargePerMonthCents != nil {
		fee := *p.BaseChargePerMonthCents
		rs.BaseMonthlyFeeCents = &fee
	}

	if rules := creditRules(p.BillCredits); len(rules) > 0 {
		rs.BillCredits = &types.BillCreditConfig{
			HasBillCredit: true,
			Rules:         rules,
		}
	}

	return rs
}

// periodRateCents picks the effective rate for a projected tier: 0 for free
// periods without an explicit rate, else the period rate, else the plan
// default, else 0.
func periodRateCents(period types.TOUPeriod, defaultRate *float64) float64 {
	if period.Free && period.RateCentsPerKWH == nil {
		return 0
	}
	if period.RateCentsPerKWH != nil {
		return *period.RateCentsPerKWH
	}
	if defaultRate != nil {
		return *defaultRate
	}
	return 0
}

// hourToHHMM renders a fractional hour as "HH:MM", truncating to the whole
// hour. A 24 wraps to "00:00".
func hourToHHMM(hour float64) string {
	h := int(hour)
	if h >= 24 || h < 0 {
		h = 0
	}
	return fmt.Sprintf("%02d:00", h)
}

func daysToSelector(days []time.Weekday) types.DaySelector {
	// no restriction means every day, matching interval resolution
	if len(days) == 0 || coversAllDays(days) {
		return types.AllDays
	}
	named := make([]string, 0, len(days))
	for _, d := range days {
		named = append(named, d.String()[:3])
	}
	return types.DaySelector{Days: named}
}

func coversAllDays(days []time.Weekday) bool {
	if len(days) < 7 {
		return false
	}
	var seen [7]bool
	for _, d := range days {
		if d >= 0 && d <= 6 {
			seen[d] = true
		}
	}
	for _, s := range seen {
		if !s {
			return false
		}
	}
	return true
}

func monthsToInts(months []time.Month) []int {
	if len(months) == 0 {
		return nil
	}
	out := make([]int, 0, len(months))
	for _, m := range months {
		out = append(out, int(m))
	}
	return out
}

// creditRules converts bill credits to cents, dropping rules with a
// non-positive threshold or credit.
func creditRules(credits []types.BillCredit) []types.BillCreditRule {
	var rules []types.BillCreditRule
	for _, c := range credits {
		if c.ThresholdKWH <= 0 || c.CreditDollars <= 0 {
			continue
		}
		rules = append(rules, types.BillCreditRule{
			ThresholdKWH: c.ThresholdKWH,
			CreditCents:  c.CreditDollars * 100,
		})
	}
	return rules
}
