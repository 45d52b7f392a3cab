package rateplan

import (
	"fmt"
	"time"

	"github.com/wattwise/wattwise/pkg/types"
)

// IntervalPrice is the effective pricing at a single point in time.
type IntervalPrice struct {
	PeriodLabel             string  `json:"periodLabel"`
	ImportRateCentsPerKWH   float64 `json:"importRateCentsPerKwh"`
	ExportCreditCentsPerKWH float64 `json:"exportCreditCentsPerKwh"`
	Free                    bool    `json:"isFree"`

	// Assumptions records any defaulting applied because the plan was silent
	// (e.g. no rate anywhere, assumed 0). Resolution never fails.
	Assumptions []string `json:"assumptions,omitempty"`
}

// ResolveInterval resolves which time-of-use period applies at ts and the
// effective import/export rates. Periods are evaluated in declaration order
// and the first match wins; overlapping periods are a modeling error the
// caller avoids, not something arbitrated here. Pure function of plan + ts.
func ResolveInterval(p types.PlanRules, ts time.Time) IntervalPrice {
	hour := float64(ts.Hour()) + float64(ts.Minute())/60

	for _, period := range p.TOUPeriods {
		if !periodMatchesDay(period, ts) {
			continue
		}
		if !periodMatchesHour(period, hour) {
			continue
		}
		return matchedPrice(p, period)
	}

	out := IntervalPrice{PeriodLabel: "default"}
	if p.DefaultRateCentsPerKWH != nil {
		out.ImportRateCentsPerKWH = *p.DefaultRateCentsPerKWH
	} else {
		out.Assumptions = append(out.Assumptions, "no matching period and no default rate; assumed 0 ¢/kWh")
	}
	out.ExportCreditCentsPerKWH = exportCredit(p, out.ImportRateCentsPerKWH)
	return out
}

func matchedPrice(p types.PlanRules, period types.TOUPeriod) IntervalPrice {
	out := IntervalPrice{
		PeriodLabel: period.Label,
		Free:        period.Free,
	}
	switch {
	case period.Free && period.RateCentsPerKWH == nil:
		// free period, rate stays 0
	case period.RateCentsPerKWH != nil:
		out.ImportRateCentsPerKWH = *period.RateCentsPerKWH
	case p.DefaultRateCentsPerKWH != nil:
		out.ImportRateCentsPerKWH = *p.DefaultRateCentsPerKWH
	default:
		out.Assumptions = append(out.Assumptions,
			fmt.Sprintf("period %q has no rate and plan has no default; assumed 0 ¢/kWh", period.Label))
	}
	out.ExportCreditCentsPerKWH = exportCredit(p, out.ImportRateCentsPerKWH)
	return out
}

// periodMatchesDay checks the day-of-week set and the optional months-of-year
// restriction. An empty day set means no day restriction.
func periodMatchesDay(period types.TOUPeriod, ts time.Time) bool {
	if len(period.Days) > 0 {
		found := false
		dow := ts.Weekday()
		for _, d := range period.Days {
			if d == dow {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	if len(period.Months) > 0 {
		found := false
		m := ts.Month()
		for _, pm := range period.Months {
			if pm == m {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

// periodMatchesHour implements the window convention: start == end covers the
// whole day, start < end is [start,end), and start > end crosses midnight,
// covering [start,24) ∪ [0,end).
func periodMatchesHour(period types.TOUPeriod, hour float64) bool {
	start, end := period.StartHour, period.EndHour
	switch {
	case start == end:
		return true
	case start < end:
		return hour >= start && hour < end
	default:
		return hour >= start || hour < end
	}
}

// exportCredit returns the credit per exported kWh: 0 without buyback, the
// import rate when the buyback matches it, else the buyback's own rate.
func exportCredit(p types.PlanRules, importRate float64) float64 {
	sb := p.SolarBuyback
	if sb == nil || !sb.Enabled {
		return 0
	}
	if sb.MatchesImportRate {
		return importRate
	}
	if sb.CreditCentsPerKWH != nil {
		return *sb.CreditCentsPerKWH
	}
	return 0
}
