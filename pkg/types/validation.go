package types

import "time"

// ValidationStatus is the overall verdict of the disclosure self-consistency
// check.
type ValidationStatus string

const (
	// ValidationPass means every disclosed level was modeled and matched
	// within tolerance.
	ValidationPass ValidationStatus = "PASS"
	// ValidationFail means at least one level was out of tolerance; the plan
	// routes to manual review and must not be used for billing.
	ValidationFail ValidationStatus = "FAIL"
	// ValidationSkip means there was not enough disclosure data to judge.
	// Neutral, not a pass.
	ValidationSkip ValidationStatus = "SKIP"
)

// EflAvgPricePoint is one row of the disclosure's average-price table. Used
// only for validation, never for billing.
type EflAvgPricePoint struct {
	UsageKWH          float64 `json:"kwh"`
	EflAvgCentsPerKWH float64 `json:"eflAvgCentsPerKwh"`
}

// ValidationPoint compares the modeled average price against the disclosed
// one at a single usage level. Modeled and Diff are nil when the level could
// not be modeled.
type ValidationPoint struct {
	UsageKWH               float64  `json:"usageKwh"`
	ExpectedAvgCentsPerKWH float64  `json:"expectedAvgCentsPerKwh"`
	ModeledAvgCentsPerKWH  *float64 `json:"modeledAvgCentsPerKwh"`
	DiffCentsPerKWH        *float64 `json:"diffCentsPerKwh"`
	OK                     bool     `json:"ok"`
}

// ReviewItem is one quarantined candidate awaiting manual review: the
// extracted rules together with the failing report.
type ReviewItem struct {
	Plan          PlanRules        `json:"plan"`
	Report        ValidationReport `json:"report"`
	QuarantinedAt time.Time        `json:"quarantinedAt"`
}

// ValidationReport is consumed by the manual-review queue, never by the live
// billing path.
type ValidationReport struct {
	Status               ValidationStatus  `json:"status"`
	ToleranceCentsPerKWH float64           `json:"toleranceCentsPerKwh"`
	Points               []ValidationPoint `json:"points"`

	AssumptionsUsed []string `json:"assumptionsUsed,omitempty"`

	AvgTableFound   bool               `json:"avgTableFound"`
	AvgTableSnippet string             `json:"avgTableSnippet,omitempty"`
	DisclosedRows   []EflAvgPricePoint `json:"disclosedRows,omitempty"`

	// ReviewReason is a queueable message set on FAIL.
	ReviewReason string `json:"reviewReason,omitempty"`
}
