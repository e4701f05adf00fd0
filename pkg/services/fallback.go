package services

import (
	"fmt"
	"strings"

	"github.com/casetrail/engine/pkg/models"
)

// fallbackNotice flags a template-assembled narrative for the reviewing
// analyst. It is stripped of markdown so the document remains submission
// shaped even before review.
const fallbackNotice = "[NOTICE: This narrative was assembled from a deterministic template. Model-based generation was unavailable.]"

// BuildFallbackNarrative assembles a deterministic SAR narrative from the
// rule evaluation and the case's normalized snapshot. No model is involved:
// identical inputs produce identical output. The result always lands in
// review as pending, never auto-approved.
func BuildFallbackNarrative(nc *models.NormalizedCase, eval *models.RuleEvaluation) string {
	var b strings.Builder

	agg := nc.Aggregates
	typologies := "General suspicious activity"
	if len(eval.Typologies) > 0 {
		typologies = strings.Join(eval.Typologies, ", ")
	}

	b.WriteString("SUSPICIOUS ACTIVITY REPORT\n\n")

	b.WriteString("1. SUBJECT INFORMATION\n")
	fmt.Fprintf(&b, "   Customer ID: %s\n", orUnavailable(nc.Customer.CustomerID))
	fmt.Fprintf(&b, "   KYC Risk Rating: %s\n", orUnavailable(nc.KYC.RiskRating))
	fmt.Fprintf(&b, "   PEP Status: %s\n", yesNo(nc.KYC.PEPStatus))
	fmt.Fprintf(&b, "   Sanctions Match: %s\n\n", yesNo(nc.KYC.SanctionsHit))

	b.WriteString("2. SUSPICIOUS ACTIVITY DESCRIPTION\n")
	b.WriteString("   a. Nature of Suspicious Activity:\n")
	fmt.Fprintf(&b, "      The following typologies have been identified: %s.\n\n", typologies)
	b.WriteString("   b. Accounts and Transactions Involved:\n")
	fmt.Fprintf(&b, "      Total transactions: %d\n", agg.TotalTransactions)
	fmt.Fprintf(&b, "      Total credits: %.0f\n", agg.TotalCredit)
	fmt.Fprintf(&b, "      Total debits: %.0f\n", agg.TotalDebit)
	fmt.Fprintf(&b, "      Unique counterparties: %d\n", agg.UniqueCounterparties)
	fmt.Fprintf(&b, "      Transaction period: %d days\n\n", agg.DateRangeDays)

	b.WriteString("3. NARRATIVE\n")
	fmt.Fprintf(&b,
		"   The institution's monitoring systems identified suspicious financial activity associated with\n"+
			"   customer %s. During the observation period of %d days, the customer's accounts received\n"+
			"   %.0f in credits from %d unique counterparties. Subsequently, %.0f was debited from the accounts.\n\n",
		orUnavailable(nc.Customer.CustomerID), agg.DateRangeDays, agg.TotalCredit, agg.UniqueCounterparties, agg.TotalDebit)
	b.WriteString("   The volume and pattern of transactions are inconsistent with the customer's declared profile\n" +
		"   and trigger the following concerns:\n")
	triggered := eval.TriggeredResults()
	if len(triggered) == 0 {
		b.WriteString("   Information not available at time of submission.\n")
	}
	for _, r := range triggered {
		fmt.Fprintf(&b, "   • %s\n", r.Reasoning)
		for _, e := range r.Evidence {
			fmt.Fprintf(&b, "     - %s\n", e)
		}
	}
	b.WriteString("\n")

	b.WriteString("4. SUPPORTING EVIDENCE\n")
	fmt.Fprintf(&b, "   Rules triggered: %d of %d evaluated\n", len(triggered), len(eval.Results))
	fmt.Fprintf(&b, "   Typologies: %s\n", typologies)
	if hasAny(eval.Typologies, "structuring", "layering") {
		b.WriteString("\n   Relevant Legislation:\n" +
			"   This activity may constitute an offence under Section 327 (Concealing criminal property),\n" +
			"   Section 328 (Arrangements facilitating acquisition, retention, use or control of criminal\n" +
			"   property), or Section 329 (Acquisition, use and possession of criminal property) of the\n" +
			"   Proceeds of Crime Act 2002 (POCA).\n")
	}
	b.WriteString("\n")

	b.WriteString("5. RECOMMENDATION\n")
	fmt.Fprintf(&b,
		"   Based on the analysis, this activity warrants further investigation and regulatory reporting.\n"+
			"   The case has been assigned a risk category of %s.\n\n", eval.RiskCategory)

	b.WriteString(fallbackNotice)
	b.WriteString("\n")
	return b.String()
}

func orUnavailable(s string) string {
	if strings.TrimSpace(s) == "" {
		return "Information not available at time of submission."
	}
	return s
}

func yesNo(v bool) string {
	if v {
		return "Yes"
	}
	return "No"
}

func hasAny(items []string, wanted ...string) bool {
	for _, item := range items {
		for _, w := range wanted {
			if item == w {
				return true
			}
		}
	}
	return false
}
