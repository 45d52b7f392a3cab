package types

import (
	"time"
)

// PlanType classifies the overall pricing regime of a retail plan.
type PlanType string

const (
	PlanTypeFlat         PlanType = "flat"
	PlanTypeTimeOfUse    PlanType = "time-of-use"
	PlanTypeFreeNights   PlanType = "free-nights"
	PlanTypeFreeWeekends PlanType = "free-weekends"
	PlanTypeSolarBuyback PlanType = "solar-buyback"
	PlanTypeOther        PlanType = "other"
)

// PlanFingerprint identifies a distinct rate-plan document. A new fingerprint
// always produces a new PlanRules document; existing documents are never
// mutated.
type PlanFingerprint struct {
	// ContentHash is a hex digest of the normalized disclosure text.
	ContentHash string `json:"contentHash"`
	// Certificate is the provider-issued certificate or version code printed
	// on the disclosure, when one was found.
	Certificate string `json:"certificate,omitempty"`
}

// TOUPeriod is a single time-of-use window within a plan.
type TOUPeriod struct {
	Label string `json:"label"`

	// StartHour and EndHour are hours of the day (0-23, fractional allowed).
	// EndHour < StartHour means the window crosses midnight. StartHour ==
	// EndHour means the window covers the whole day.
	StartHour float64 `json:"startHour"`
	EndHour   float64 `json:"endHour"`

	Days []time.Weekday `json:"days"`
	// Months restricts the period to specific months when non-empty.
	Months []time.Month `json:"months,omitempty"`

	// RateCentsPerKWH is nil when the period is free or inherits the plan
	// default.
	RateCentsPerKWH *float64 `json:"rateCentsPerKWH"`
	Free            bool     `json:"free"`
}

// SolarBuyback describes how exported energy is credited.
type SolarBuyback struct {
	Enabled             bool     `json:"enabled"`
	CreditCentsPerKWH   *float64 `json:"creditCentsPerKWH,omitempty"`
	MatchesImportRate   bool     `json:"matchesImportRate"`
	MonthlyExportCapKWH *float64 `json:"monthlyExportCapKWH,omitempty"`
	Notes               string   `json:"notes,omitempty"`
}

// BillCredit is a one-time credit applied when cycle usage meets a threshold.
type BillCredit struct {
	ThresholdKWH  float64 `json:"thresholdKWH"`
	CreditDollars float64 `json:"creditDollars"`
}

// MinUsageFee is charged when total cycle usage falls below the floor.
type MinUsageFee struct {
	FloorKWH float64 `json:"floorKWH"`
	FeeCents float64 `json:"feeCents"`
}

// PlanRules is the canonical representation of a retail plan's pricing rules,
// extracted from its disclosure document. It is immutable once created.
type PlanRules struct {
	Fingerprint PlanFingerprint `json:"fingerprint"`
	PlanType    PlanType        `json:"planType"`

	// DefaultRateCentsPerKWH is the fallback import rate for any interval not
	// covered by an explicit period.
	DefaultRateCentsPerKWH *float64 `json:"defaultRateCentsPerKWH"`

	// BaseChargePerMonthCents is a fixed monthly charge, if any.
	BaseChargePerMonthCents *float64 `json:"baseChargePerMonthCents"`

	TOUPeriods []TOUPeriod `json:"timeOfUsePeriods,omitempty"`

	SolarBuyback *SolarBuyback `json:"solarBuyback,omitempty"`

	BillCredits []BillCredit `json:"billCredits,omitempty"`

	MinUsageFee *MinUsageFee `json:"minUsageFee,omitempty"`
}

// Float64Ptr returns a pointer to v. Convenience for building literal plans.
func Float64Ptr(v float64) *float64 {
	return &v
}
