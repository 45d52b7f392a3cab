package types

// DeliveryTariff is a delivery utility's pass-through charges as of a given
// date: a per-kWh volumetric charge plus a fixed monthly charge.
type DeliveryTariff struct {
	Utility           string  `json:"utility"`
	PerKWHCents       float64 `json:"perKwhCents"`
	MonthlyFixedCents float64 `json:"monthlyFixedCents"`
}
