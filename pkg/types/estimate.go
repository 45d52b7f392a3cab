package types

// EstimateStatus is the outcome of a billing-cycle calculation.
type EstimateStatus string

const (
	EstimateOK            EstimateStatus = "OK"
	EstimateNotComputable EstimateStatus = "NOT_COMPUTABLE"
)

// Machine-readable reasons attached to NOT_COMPUTABLE estimates.
const (
	ReasonNoRateStructure  = "no_rate_structure"
	ReasonNoUsage          = "no_usage"
	ReasonMissingBucket    = "missing_bucket"
	ReasonAmbiguousBucket  = "ambiguous_bucket"
	ReasonInconsistentKeys = "inconsistent_bucket_keys"
	ReasonBackfillTimeout  = "backfill_timeout"
)

// CostComponents breaks an estimate down by charge type. All values are in
// cents over the full window; credits are positive and subtracted at render.
type CostComponents struct {
	EnergyCents      float64 `json:"energyCents"`
	BaseChargeCents  float64 `json:"baseChargeCents"`
	TDUEnergyCents   float64 `json:"tduEnergyCents"`
	TDUFixedCents    float64 `json:"tduFixedCents"`
	BillCreditCents  float64 `json:"billCreditCents"`
	MinUsageFeeCents float64 `json:"minUsageFeeCents"`
}

// TotalCents returns the window total with credits applied.
func (c CostComponents) TotalCents() float64 {
	return c.EnergyCents + c.BaseChargeCents + c.TDUEnergyCents + c.TDUFixedCents + c.MinUsageFeeCents - c.BillCreditCents
}

// CostEstimate is the result of running usage through a plan for a window of
// billing cycles. Dollar figures are rendered to two decimals at output;
// Components retains unrounded cents.
type CostEstimate struct {
	Status EstimateStatus `json:"status"`
	// Reason is set when Status is NOT_COMPUTABLE.
	Reason string `json:"reason,omitempty"`

	MonthlyCostDollars float64 `json:"monthlyCostDollars,omitempty"`
	AnnualCostDollars  float64 `json:"annualCostDollars,omitempty"`

	Components CostComponents `json:"componentsBreakdown"`
}

// DetectedShape reports which plan shape the orchestrator derived from the
// rate structure.
type DetectedShape struct {
	FreeWeekends bool `json:"freeWeekends"`
	DayNightTOU  bool `json:"dayNightTou"`
}

// BackfillReport records the single bounded backfill attempt, if any.
type BackfillReport struct {
	Requested         bool     `json:"requested"`
	Attempted         bool     `json:"attempted"`
	OK                bool     `json:"ok"`
	MissingKeysBefore []string `json:"missingKeysBefore,omitempty"`
	MissingKeysAfter  []string `json:"missingKeysAfter,omitempty"`
}

// EstimatePath records which calculation path produced the estimate.
type EstimatePath string

const (
	// PathBucketed means per-month canonical buckets fed the calculator.
	PathBucketed EstimatePath = "bucketed"
	// PathFixedAnnual is the degraded path for plans computable from an
	// annual total alone.
	PathFixedAnnual EstimatePath = "fixed_annual"
)

// EstimateResponse is the orchestrator's full answer, with provenance of what
// succeeded and what failed.
type EstimateResponse struct {
	OK       bool   `json:"ok"`
	RatePlan string `json:"ratePlan"`

	MonthsIncluded []string `json:"monthsIncluded"`
	AnnualKWH      float64  `json:"annualKwh"`

	// UsageBucketsByMonthIncluded maps yearMonth -> canonical key -> kWh for
	// every bucket actually used.
	UsageBucketsByMonthIncluded map[string]map[string]float64 `json:"usageBucketsByMonthIncluded,omitempty"`

	Detected DetectedShape  `json:"detected"`
	Backfill BackfillReport `json:"backfill"`

	Path       EstimatePath `json:"path"`
	PathReason string       `json:"pathReason,omitempty"`

	Estimate CostEstimate `json:"estimate"`
}
