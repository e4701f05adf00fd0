package rules

import (
	"fmt"
	"sort"
	"strings"

	"github.com/casetrail/engine/pkg/models"
)

// Rule identifiers. These are stable: they appear in persisted evaluations,
// audit payloads and reconstruction output.
const (
	RuleThreshold                = "threshold_check"
	RuleVelocity                 = "velocity_check"
	RuleJurisdiction             = "jurisdiction_check"
	RuleStructuring              = "structuring_check"
	RuleLayering                 = "layering_check"
	RuleRapidInternational       = "rapid_international_movement"
	RuleProfessionalFacilitation = "professional_facilitation"
	RulePredicateOffences        = "predicate_offence_indicators"
)

// Typology labels emitted by the rules.
const (
	TypologyHighValue            = "high_value_transaction"
	TypologyVelocityAnomaly      = "velocity_anomaly"
	TypologyHighRiskJurisdiction = "high_risk_jurisdiction"
	TypologyStructuring          = "structuring"
	TypologyLayering             = "layering"
	TypologyRapidInternational   = "rapid_international_movement"
	TypologyFacilitation         = "professional_facilitation"
	TypologyPredicateOffences    = "predicate_offences"
)

// checkThreshold fires when a single transaction or the aggregate inflow
// exceeds the reporting threshold.
func checkThreshold(t Thresholds, nc *models.NormalizedCase) models.RuleResult {
	agg := nc.Aggregates
	singleHit := agg.MaxTransactionAmount > t.SingleTxnAmount
	totalHit := agg.TotalCredit > t.TotalInflow

	res := models.RuleResult{RuleID: RuleThreshold, Severity: 0.25}
	if !singleHit && !totalHit {
		res.Reasoning = "Within thresholds"
		return res
	}

	res.Triggered = true
	res.Confidence = 0.9
	res.Typology = TypologyHighValue
	res.Reasoning = "Transaction amounts exceed regulatory reporting thresholds"
	if singleHit {
		res.Evidence = append(res.Evidence, fmt.Sprintf(
			"Max single transaction %.0f exceeds %.0f", agg.MaxTransactionAmount, t.SingleTxnAmount))
	}
	if totalHit {
		res.Evidence = append(res.Evidence, fmt.Sprintf(
			"Total credits %.0f exceed %.0f", agg.TotalCredit, t.TotalInflow))
	}
	return res
}

// checkVelocity fires when transaction count or counterparty count exceeds
// normal patterns for the observation window.
func checkVelocity(t Thresholds, nc *models.NormalizedCase) models.RuleResult {
	agg := nc.Aggregates
	countHit := agg.TotalTransactions > t.VelocityCount
	cpHit := agg.UniqueCounterparties > t.UniqueCounterparties

	res := models.RuleResult{RuleID: RuleVelocity, Severity: 0.20}
	if !countHit && !cpHit {
		res.Reasoning = "Normal velocity"
		return res
	}

	res.Triggered = true
	res.Confidence = 0.85
	res.Typology = TypologyVelocityAnomaly
	res.Reasoning = "Unusually high transaction velocity detected"
	if countHit {
		res.Evidence = append(res.Evidence, fmt.Sprintf(
			"%d transactions in observation window (threshold: %d)", agg.TotalTransactions, t.VelocityCount))
	}
	if cpHit {
		res.Evidence = append(res.Evidence, fmt.Sprintf(
			"%d unique counterparties (threshold: %d)", agg.UniqueCounterparties, t.UniqueCounterparties))
	}
	return res
}

// checkJurisdiction fires on any transaction to or from a high-risk jurisdiction.
func checkJurisdiction(t Thresholds, nc *models.NormalizedCase) models.RuleResult {
	riskySet := make(map[string]bool)
	var riskyTxns []string
	for _, txn := range nc.Transactions {
		country := strings.ToUpper(txn.CounterpartyCountry)
		if highRiskJurisdictions[country] {
			riskySet[country] = true
			riskyTxns = append(riskyTxns, txn.TransactionID)
		}
	}

	res := models.RuleResult{RuleID: RuleJurisdiction, Severity: 0.20}
	if len(riskySet) == 0 {
		res.Reasoning = "No high-risk jurisdictions"
		return res
	}

	countries := make([]string, 0, len(riskySet))
	for c := range riskySet {
		countries = append(countries, c)
	}
	sort.Strings(countries)
	if len(riskyTxns) > 10 {
		riskyTxns = riskyTxns[:10]
	}

	res.Triggered = true
	res.Confidence = 0.80
	res.Typology = TypologyHighRiskJurisdiction
	res.Reasoning = fmt.Sprintf("Funds flow to/from FATF-listed or high-risk jurisdictions: %s", strings.Join(countries, ", "))
	res.Evidence = []string{
		fmt.Sprintf("Transactions to/from high-risk jurisdictions: %s", strings.Join(countries, ", ")),
		fmt.Sprintf("Affected transactions: %s", strings.Join(riskyTxns, ", ")),
	}
	return res
}

// checkStructuring fires on repeated amounts just below the reporting threshold.
func checkStructuring(t Thresholds, nc *models.NormalizedCase) models.RuleResult {
	var inBand int
	for _, txn := range nc.Transactions {
		if txn.Amount >= t.StructuringBandLow && txn.Amount <= t.StructuringBandHigh {
			inBand++
		}
	}

	res := models.RuleResult{RuleID: RuleStructuring, Severity: 0.25}
	if inBand < t.StructuringMinCount {
		res.Reasoning = "No structuring pattern"
		return res
	}

	res.Triggered = true
	res.Confidence = 0.90
	res.Typology = TypologyStructuring
	res.Reasoning = "Multiple transactions structured just below reporting threshold, indicative of smurfing"
	res.Evidence = []string{fmt.Sprintf(
		"%d transactions in %.0f-%.0f band", inBand, t.StructuringBandLow, t.StructuringBandHigh)}
	return res
}

// checkLayering fires when funds aggregated from many sources leave again
// almost as fast as they arrived.
func checkLayering(t Thresholds, nc *models.NormalizedCase) models.RuleResult {
	agg := nc.Aggregates
	manySources := agg.UniqueCounterparties > t.LayeringMinSources

	var totalCredit, totalDebit float64
	for _, txn := range nc.Transactions {
		switch txn.Type {
		case "credit":
			totalCredit += txn.Amount
		case "debit":
			totalDebit += txn.Amount
		}
	}
	rapidOutflow := totalCredit > 0 && totalDebit > totalCredit*t.RapidOutflowPct

	res := models.RuleResult{RuleID: RuleLayering, Severity: 0.30}
	if !manySources || !rapidOutflow {
		res.Reasoning = "No layering pattern"
		return res
	}

	res.Triggered = true
	res.Confidence = 0.88
	res.Typology = TypologyLayering
	res.Reasoning = "Classic layering pattern: funds aggregated from multiple sources then rapidly moved onward"
	res.Evidence = []string{
		fmt.Sprintf("Received funds from %d unique sources", agg.UniqueCounterparties),
		fmt.Sprintf("%.0f in, %.0f out (%.0f%% outflow)", totalCredit, totalDebit, totalDebit/totalCredit*100),
	}
	return res
}

// checkRapidInternational fires on large cross-border debits.
func checkRapidInternational(t Thresholds, nc *models.NormalizedCase) models.RuleResult {
	destSet := make(map[string]bool)
	var count int
	for _, txn := range nc.Transactions {
		country := txn.CounterpartyCountry
		if country == "" {
			country = t.HomeCountry
		}
		if txn.Type == "debit" && country != t.HomeCountry && txn.Amount > t.IntlOutflowAmount {
			count++
			destSet[country] = true
		}
	}

	res := models.RuleResult{RuleID: RuleRapidInternational, Severity: 0.20}
	if count == 0 {
		res.Reasoning = "No rapid international movement"
		return res
	}

	dests := make([]string, 0, len(destSet))
	for c := range destSet {
		dests = append(dests, c)
	}
	sort.Strings(dests)

	res.Triggered = true
	res.Confidence = 0.85
	res.Typology = TypologyRapidInternational
	res.Reasoning = "Significant funds rapidly transferred to foreign jurisdictions"
	res.Evidence = []string{
		fmt.Sprintf("%d large international outflows detected", count),
		fmt.Sprintf("Destinations: %s", strings.Join(dests, ", ")),
	}
	return res
}

// checkProfessionalFacilitation fires when turnover is grossly inconsistent
// with declared income.
func checkProfessionalFacilitation(t Thresholds, nc *models.NormalizedCase) models.RuleResult {
	income := nc.KYC.AnnualIncome
	totalCredit := nc.Aggregates.TotalCredit

	ratio := 999.0
	if income > 0 {
		ratio = totalCredit / income
	}
	triggered := ratio > t.IncomeTurnoverRatio && totalCredit > t.SingleTxnAmount

	res := models.RuleResult{RuleID: RuleProfessionalFacilitation, Severity: 0.15}
	if !triggered {
		res.Reasoning = "Income consistent with activity"
		return res
	}

	res.Triggered = true
	res.Confidence = 0.75
	res.Typology = TypologyFacilitation
	res.Reasoning = "Transaction volumes grossly inconsistent with declared income, possible third-party facilitation"
	res.Evidence = []string{
		fmt.Sprintf("Declared annual income: %.0f", income),
		fmt.Sprintf("Transaction volume: %.0f (%.1fx declared income)", totalCredit, ratio),
	}
	return res
}

// checkPredicateOffences fires on PEP status, sanctions matches or a high
// KYC risk rating.
func checkPredicateOffences(t Thresholds, nc *models.NormalizedCase) models.RuleResult {
	pep := nc.KYC.PEPStatus
	sanctions := nc.KYC.SanctionsHit
	highRisk := strings.EqualFold(nc.KYC.RiskRating, "high")

	res := models.RuleResult{RuleID: RulePredicateOffences, Severity: 0.15}
	if !pep && !sanctions && !highRisk {
		res.Reasoning = "No predicate offence indicators"
		return res
	}

	res.Triggered = true
	res.Confidence = 0.70
	if sanctions {
		res.Confidence = 0.95
		res.Severity = 0.30
	}
	res.Typology = TypologyPredicateOffences
	res.Reasoning = "Subject linked to predicate offence indicators"
	if pep {
		res.Evidence = append(res.Evidence, "Customer is a Politically Exposed Person (PEP)")
	}
	if sanctions {
		res.Evidence = append(res.Evidence, "Customer matches sanctions list")
	}
	if highRisk {
		res.Evidence = append(res.Evidence, "Customer has HIGH KYC risk rating")
	}
	return res
}
