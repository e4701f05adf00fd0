package rules

// Thresholds are the documented detection constants the rules compare
// against. Amounts are in the institution's normalized reporting currency.
type Thresholds struct {
	// SingleTxnAmount is the single-transaction reporting threshold.
	SingleTxnAmount float64
	// TotalInflow is the aggregate-credit threshold over the observation window.
	TotalInflow float64
	// VelocityCount is the transaction-count threshold over the window.
	VelocityCount int
	// UniqueCounterparties is the distinct-sender threshold over the window.
	UniqueCounterparties int
	// StructuringBandLow/High bound the just-below-threshold band; three or
	// more transactions in the band indicate structuring.
	StructuringBandLow  float64
	StructuringBandHigh float64
	// StructuringMinCount is the number of in-band transactions that fires
	// the structuring rule.
	StructuringMinCount int
	// LayeringMinSources is the distinct-source count above which rapid
	// pass-through is treated as layering.
	LayeringMinSources int
	// RapidOutflowPct is the fraction of inflow leaving again that counts as
	// rapid pass-through.
	RapidOutflowPct float64
	// IntlOutflowAmount is the single international debit size that fires
	// the rapid-international rule.
	IntlOutflowAmount float64
	// IncomeTurnoverRatio is the turnover-to-declared-income multiple above
	// which facilitation is suspected.
	IncomeTurnoverRatio float64
	// HomeCountry is the jurisdiction transactions are considered domestic in.
	HomeCountry string
}

// DefaultThresholds returns the standard detection constants.
func DefaultThresholds() Thresholds {
	return Thresholds{
		SingleTxnAmount:      1_000_000,
		TotalInflow:          5_000_000,
		VelocityCount:        30,
		UniqueCounterparties: 20,
		StructuringBandLow:   900_000,
		StructuringBandHigh:  999_999,
		StructuringMinCount:  3,
		LayeringMinSources:   10,
		RapidOutflowPct:      0.80,
		IntlOutflowAmount:    500_000,
		IncomeTurnoverRatio:  10,
		HomeCountry:          "IN",
	}
}

// highRiskJurisdictions is the FATF grey/blacklist plus common offshore
// layering destinations.
var highRiskJurisdictions = map[string]bool{
	"AF": true, "AL": true, "MM": true, "PA": true, "PK": true,
	"SY": true, "YE": true, "IR": true, "KP": true,
	"VG": true, "KY": true, "JE": true, "GG": true, "IM": true,
	"BZ": true, "SC": true, "MU": true,
	"AE": true, "HK": true, "SG": true,
}
