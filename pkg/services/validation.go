package services

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/casetrail/engine/pkg/models"
	"github.com/casetrail/engine/pkg/prompts"
)

// minNarrativeLength rejects outputs too short to be a usable SAR narrative.
const minNarrativeLength = 400

// maxNarrativeLength rejects runaway outputs.
const maxNarrativeLength = 20000

// internalLeakMarkers are fragments that must never appear in a
// regulator-facing narrative. Rule identifiers and engine scores are
// internal detail; the generation prompt forbids them and validation
// enforces it.
var internalLeakMarkers = []string{
	"composite risk score",
	"confidence level",
	"rule_id",
	"engine_version",
}

// figurePattern captures numeric figures, tolerating thousands separators.
var figurePattern = regexp.MustCompile(`[0-9][0-9,]*`)

// minCheckedFigureDigits limits the fabrication check to monetary-scale
// figures. Dates, section numbers and transaction counts fall below it.
const minCheckedFigureDigits = 6

// ValidateNarrative checks a generated narrative against the output
// contract and returns the list of failures, empty when the output is
// acceptable. Validation is deterministic so a retried attempt fails or
// passes for stated, reproducible reasons.
func ValidateNarrative(content string, nc *models.NormalizedCase, eval *models.RuleEvaluation) []string {
	var failures []string

	trimmed := strings.TrimSpace(content)
	if trimmed == "" {
		return []string{"empty narrative"}
	}
	if len(trimmed) < minNarrativeLength {
		failures = append(failures, fmt.Sprintf("narrative too short: %d chars, minimum %d", len(trimmed), minNarrativeLength))
	}
	if len(trimmed) > maxNarrativeLength {
		failures = append(failures, fmt.Sprintf("narrative too long: %d chars, maximum %d", len(trimmed), maxNarrativeLength))
	}

	// Required sections must all be present, in order.
	pos := 0
	for _, section := range prompts.RequiredSections {
		idx := strings.Index(trimmed[pos:], section)
		if idx < 0 {
			if strings.Contains(trimmed, section) {
				failures = append(failures, fmt.Sprintf("section out of order: %s", section))
			} else {
				failures = append(failures, fmt.Sprintf("missing section: %s", section))
			}
			continue
		}
		pos += idx + len(section)
	}

	lower := strings.ToLower(trimmed)
	for _, marker := range internalLeakMarkers {
		if strings.Contains(lower, marker) {
			failures = append(failures, fmt.Sprintf("internal detail leaked into narrative: %q", marker))
		}
	}

	// Every detected typology must be acknowledged somewhere in the output.
	for _, t := range eval.Typologies {
		if !strings.Contains(lower, strings.ReplaceAll(t, "_", " ")) && !strings.Contains(lower, t) {
			failures = append(failures, fmt.Sprintf("typology not addressed: %s", t))
		}
	}

	// Monetary-scale figures must come from the case data or the rule
	// evidence. A model inventing an amount the evidence never mentions is
	// a fabrication, not a phrasing choice.
	known := knownFigures(nc, eval)
	seen := make(map[string]bool)
	for _, match := range figurePattern.FindAllString(trimmed, -1) {
		digits := strings.ReplaceAll(match, ",", "")
		if len(digits) < minCheckedFigureDigits || seen[digits] {
			continue
		}
		seen[digits] = true
		if _, ok := known[digits]; !ok {
			failures = append(failures, fmt.Sprintf("figure not supported by case evidence: %s", digits))
		}
	}

	return failures
}

// knownFigures collects every numeric figure present in the case's
// normalized data and rule evaluation, keyed by its digits with separators
// stripped.
func knownFigures(nc *models.NormalizedCase, eval *models.RuleEvaluation) map[string]struct{} {
	known := make(map[string]struct{})
	collect := func(v any) {
		data, err := json.Marshal(v)
		if err != nil {
			return
		}
		for _, match := range figurePattern.FindAllString(string(data), -1) {
			known[strings.ReplaceAll(match, ",", "")] = struct{}{}
		}
	}
	if nc != nil {
		collect(nc)
	}
	if eval != nil {
		collect(eval)
	}
	return known
}
