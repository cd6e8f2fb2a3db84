package entities

import (
	"fmt"
	"regexp"
	"strings"
)

// Numeric-threshold patterns with operator context. Thresholds are
// normalized to an operator, value, and inclusivity so downstream
// consumers can compare them across documents.

var (
	reBoundedValue = regexp.MustCompile(`(?i)\b(minimum|maximum|min|max|at least|no more than|up to|not to exceed|below|above|over|under|exceeds?)\s+(?:(?:FICO|LTV|CLTV|DTI|DSCR|credit score|loan amount)\s+)?(?:of\s+)?(\$?[\d,]+(?:\.\d+)?\s*(?:%|x|months?|days?|years?)?)`)
	reComparison   = regexp.MustCompile(`(?i)(\$?[\d,]+(?:\.\d+)?\s*(?:%|x|months?|days?|years?)?)\s*(or (?:greater|less|higher|lower|more|better))`)
	reRange        = regexp.MustCompile(`(?i)\bbetween\s+(\$?[\d,]+(?:\.\d+)?%?)\s+and\s+(\$?[\d,]+(?:\.\d+)?%?)`)
	reBareMetric   = regexp.MustCompile(`(?i)\b(FICO|LTV|CLTV|DTI|DSCR)\s*(?:of|is|:)?\s*(\$?[\d,]+(?:\.\d+)?%?x?)`)
)

// Threshold is a normalized numeric threshold.
type Threshold struct {
	Op        string // ">=", "<=", ">", "<", "==", "range"
	Value     string
	UpperValue string // range only
	Inclusive bool
	Metric    string // FICO, LTV, ... when identifiable
}

// String renders the canonical normalized form, e.g. ">=660", "[640,700]".
func (t Threshold) String() string {
	switch t.Op {
	case "range":
		return fmt.Sprintf("[%s,%s]", t.Value, t.UpperValue)
	case "==":
		if t.Metric != "" {
			return fmt.Sprintf("%s=%s", t.Metric, t.Value)
		}
		return t.Value
	default:
		return t.Op + t.Value
	}
}

// extractThresholds finds numeric thresholds in text and returns the
// raw mention alongside the normalized form.
func extractThresholds(text string) []thresholdHit {
	var out []thresholdHit

	for _, m := range reRange.FindAllStringSubmatch(text, -1) {
		out = append(out, thresholdHit{
			mention: m[0],
			norm: Threshold{
				Op:        "range",
				Value:     canonValue(m[1]),
				UpperValue: canonValue(m[2]),
				Inclusive: true,
			},
		})
	}

	for _, m := range reBoundedValue.FindAllStringSubmatch(text, -1) {
		op, inclusive := boundOperator(m[1])
		out = append(out, thresholdHit{
			mention: m[0],
			norm:    Threshold{Op: op, Value: canonValue(m[2]), Inclusive: inclusive},
		})
	}

	for _, m := range reComparison.FindAllStringSubmatch(text, -1) {
		op := ">="
		if strings.Contains(strings.ToLower(m[2]), "less") || strings.Contains(strings.ToLower(m[2]), "lower") {
			op = "<="
		}
		out = append(out, thresholdHit{
			mention: m[0],
			norm:    Threshold{Op: op, Value: canonValue(m[1]), Inclusive: true},
		})
	}

	for _, m := range reBareMetric.FindAllStringSubmatch(text, -1) {
		out = append(out, thresholdHit{
			mention: m[0],
			norm:    Threshold{Op: "==", Value: canonValue(m[2]), Metric: strings.ToUpper(m[1])},
		})
	}

	return out
}

type thresholdHit struct {
	mention string
	norm    Threshold
}

// boundOperator maps bound words to operators and inclusivity.
func boundOperator(word string) (string, bool) {
	switch strings.ToLower(strings.TrimSpace(word)) {
	case "minimum", "min", "at least":
		return ">=", true
	case "maximum", "max", "no more than", "up to", "not to exceed":
		return "<=", true
	case "below", "under":
		return "<", false
	case "above", "over", "exceeds", "exceed":
		return ">", false
	default:
		return ">=", true
	}
}

// canonValue strips spaces and thousands separators, lowercases units.
func canonValue(v string) string {
	v = strings.ToLower(strings.TrimSpace(v))
	v = strings.ReplaceAll(v, ",", "")
	v = strings.ReplaceAll(v, " ", "")
	v = strings.TrimSuffix(v, "s") // months -> month, years -> year
	return v
}
