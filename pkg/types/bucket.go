package types

// MonthlyUsageBucket is one aggregate row of historical usage: total kWh for
// a home in one calendar month, scoped to a day-type and time window. Rows
// are written by the external aggregation collaborator and read-only here.
type MonthlyUsageBucket struct {
	HomeID string `json:"homeId"`
	// YearMonth is formatted "2006-01".
	YearMonth string `json:"yearMonth"`
	// BucketKey is one of the canonical or legacy spellings of
	// "kwh.m.<dayType>.<window>".
	BucketKey string  `json:"bucketKey"`
	KWHTotal  float64 `json:"kwhTotal"`
}
