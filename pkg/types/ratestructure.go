package types

import (
	"encoding/json"
	"fmt"
)

// RateStructureType discriminates the billing-facing projection of a plan.
type RateStructureType string

const (
	RateStructureFixed     RateStructureType = "FIXED"
	RateStructureVariable  RateStructureType = "VARIABLE"
	RateStructureTimeOfUse RateStructureType = "TIME_OF_USE"
)

// DaySelector is either the literal "ALL" or an explicit set of three-letter
// day names. Historical documents stored both spellings, so both marshal
// forms are supported but the in-memory form is closed.
type DaySelector struct {
	All  bool
	Days []string
}

// AllDays is the selector covering every day of the week.
var AllDays = DaySelector{All: true}

func (d DaySelector) MarshalJSON() ([]byte, error) {
	if d.All {
		return json.Marshal("ALL")
	}
	return json.Marshal(d.Days)
}

func (d *DaySelector) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err == nil {
		if s != "ALL" {
			return fmt.Errorf("invalid day selector string: %q", s)
		}
		d.All = true
		d.Days = nil
		return nil
	}
	var days []string
	if err := json.Unmarshal(b, &days); err != nil {
		return fmt.Errorf("invalid day selector: %w", err)
	}
	d.All = false
	d.Days = days
	return nil
}

// Contains reports whether the selector includes the given three-letter day.
func (d DaySelector) Contains(day string) bool {
	if d.All {
		return true
	}
	for _, dd := range d.Days {
		if dd == day {
			return true
		}
	}
	return false
}

// RateTier is one priced window of a TIME_OF_USE rate structure.
type RateTier struct {
	PriceCents float64 `json:"priceCents"`
	// Start and End are "HH:MM" wall-clock times. End before Start crosses
	// midnight; equal values cover the whole day.
	Start  string      `json:"start"`
	End    string      `json:"end"`
	Days   DaySelector `json:"days"`
	Months []int       `json:"months,omitempty"`
	Label  string      `json:"label,omitempty"`
}

// BillCreditRule is a threshold-triggered credit in cents.
type BillCreditRule struct {
	ThresholdKWH float64 `json:"thresholdKWH"`
	CreditCents  float64 `json:"creditCents"`
}

// BillCreditConfig carries the plan's bill-credit rules.
type BillCreditConfig struct {
	HasBillCredit bool             `json:"hasBillCredit"`
	Rules         []BillCreditRule `json:"rules"`
}

// RateStructure is the storage/billing-facing projection of PlanRules. It is
// lossy by design and always derived, never authored.
type RateStructure struct {
	Type RateStructureType `json:"type"`

	// EnergyRateCents is set for FIXED and VARIABLE structures.
	EnergyRateCents float64 `json:"energyRateCents,omitempty"`

	// Tiers is set for TIME_OF_USE structures.
	Tiers []RateTier `json:"tiers,omitempty"`

	BaseMonthlyFeeCents *float64          `json:"baseMonthlyFeeCents,omitempty"`
	BillCredits         *BillCreditConfig `json:"billCredits,omitempty"`
}
