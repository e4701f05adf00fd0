// Package prompts builds the constrained prompt for SAR narrative
// generation. The prompt is strictly scoped to rule-engine output and
// retrieved context documents: no other case fields may reach the
// generation collaborator.
package prompts

import (
	"fmt"
	"strings"

	"github.com/casetrail/engine/pkg/hashchain"
	"github.com/casetrail/engine/pkg/models"
)

// RequiredSections are the narrative section headings the generated output
// must contain, in order. The validator checks presence; the fallback
// template emits exactly these.
var RequiredSections = []string{
	"1. SUBJECT INFORMATION",
	"2. SUSPICIOUS ACTIVITY DESCRIPTION",
	"3. NARRATIVE",
	"4. SUPPORTING EVIDENCE",
	"5. RECOMMENDATION",
}

// systemPreamble enforces regulatory constraints on the collaborator's output.
const systemPreamble = `You are a SAR (Suspicious Activity Report) narrative generation engine
used by compliance analysts at a regulated financial institution.

STRICT RULES YOU MUST FOLLOW:
1. Use ONLY the evidence and data provided. Do NOT fabricate or hallucinate any facts.
2. Write in formal, third-person, regulatory tone.
3. Present events in chronological order.
4. Reference specific amounts and counts only as stated in the evidence.
5. Do NOT include internal system names, model scores, confidence levels, or rule identifiers.
6. Do NOT include any discriminatory language.
7. If data is missing, write: "Information not available at time of submission."
8. Produce exactly these sections, in order, with these headings:
   1. SUBJECT INFORMATION
   2. SUSPICIOUS ACTIVITY DESCRIPTION
   3. NARRATIVE
   4. SUPPORTING EVIDENCE
   5. RECOMMENDATION
9. DO NOT add sections beyond these. DO NOT remove sections.
10. Include all typology indicators identified by the detection system.

OUTPUT FORMAT:
Return ONLY the completed SAR narrative. No preamble, no commentary, no markdown formatting.`

// BuildNarrativePrompt assembles the generation prompt from the rule
// evaluation and retrieved context. Nothing outside these two inputs
// participates; that is the data-scope guarantee downstream validation
// relies on.
func BuildNarrativePrompt(eval *models.RuleEvaluation, docs []models.RetrievedDocument) string {
	var b strings.Builder
	b.WriteString(systemPreamble)
	b.WriteString("\n\n")

	b.WriteString("CASE FINDINGS:\n")
	fmt.Fprintf(&b, "- Typologies detected: %s\n", joinOr(eval.Typologies, "none"))
	fmt.Fprintf(&b, "- Composite risk score: %.2f\n", eval.CompositeScore)
	fmt.Fprintf(&b, "- Risk category: %s\n", eval.RiskCategory)

	b.WriteString("\nEVIDENCE:\n")
	triggered := eval.TriggeredResults()
	if len(triggered) == 0 {
		b.WriteString("No detection rules triggered; activity flagged for manual review only.\n")
	}
	for _, r := range triggered {
		fmt.Fprintf(&b, "• [%s] %s\n", r.Typology, r.Reasoning)
		for _, e := range r.Evidence {
			fmt.Fprintf(&b, "  - %s\n", e)
		}
	}

	b.WriteString("\nREGULATORY CONTEXT:\n")
	if len(docs) == 0 {
		b.WriteString("No reference material available; use the standard SAR structure.\n")
	}
	for _, d := range docs {
		fmt.Fprintf(&b, "--- [%s] (relevance %.2f)\n%s\n", d.Source, d.SimilarityScore, d.Snippet)
	}

	b.WriteString("\nGenerate the SAR narrative now, filling in all sections using only the evidence above.\n")
	return b.String()
}

// PromptHash returns the content hash recorded on every generation attempt,
// so reconstruction can prove which prompt produced which output.
func PromptHash(prompt string) string {
	return hashchain.SumString(prompt)
}

// RegulatoryHooks derives the retrieval query hooks from detected
// typologies. Structuring and layering implicate the concealment and
// arrangement offences; everything else retrieves general guidance.
func RegulatoryHooks(typologies []string) []string {
	hooks := []string{"suspicious_activity_reporting"}
	for _, t := range typologies {
		switch t {
		case "structuring", "layering":
			hooks = append(hooks, "proceeds_of_crime_concealment")
		case "predicate_offences":
			hooks = append(hooks, "predicate_offence_disclosure")
		case "high_risk_jurisdiction", "rapid_international_movement":
			hooks = append(hooks, "cross_border_reporting")
		}
	}
	return dedupe(hooks)
}

func joinOr(items []string, empty string) string {
	if len(items) == 0 {
		return empty
	}
	return strings.Join(items, ", ")
}

func dedupe(items []string) []string {
	seen := make(map[string]bool)
	var out []string
	for _, s := range items {
		if !seen[s] {
			seen[s] = true
			out = append(out, s)
		}
	}
	return out
}
