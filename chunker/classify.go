package chunker

import (
	"regexp"
	"strings"

	"github.com/guidegraph/guidegraph/navigation"
)

var (
	reDecisionKeyword = regexp.MustCompile(`(?i)\b(?:approve[ds]?|decline[ds]?|refer(?:red)?|eligible|ineligible|must (?:not )?be|is required|may not exceed)\b`)
	reCondition       = regexp.MustCompile(`(?i)\b(?:if|when|unless|provided that|in the event|where)\b`)
	reTableRow        = regexp.MustCompile(`(?m)^[^\n|]*\|[^\n]*\|`)
	reColumnarRow     = regexp.MustCompile(`(?m)^\S[^\n]*?\s{3,}\S[^\n]*?\s{3,}\S`)
	reThresholdCell   = regexp.MustCompile(`(?i)(?:\b\d{2,3}%|\b\d\.\d{2}x?\b|[<>]=?\s*\d|\$[\d,]+\b)`)
)

// Classify assigns a chunk type to content owned by node. HEADER chunks
// are built directly by the chunker and never pass through here.
func Classify(content string, node *navigation.Node) ChunkType {
	if isTabular(content) {
		return TypeMatrix
	}
	if isDecision(content, node) {
		return TypeDecision
	}
	return TypeContent
}

// isDecision requires decision keywords plus at least two conditions.
func isDecision(content string, node *navigation.Node) bool {
	if node != nil && node.Type == navigation.NodeDecisionFlow {
		// Content inside a decision-flow section still needs at least
		// one condition to count as decision logic rather than prose.
		return reDecisionKeyword.MatchString(content) && len(reCondition.FindAllString(content, 2)) >= 1
	}
	if !reDecisionKeyword.MatchString(content) {
		return false
	}
	return len(reCondition.FindAllString(content, 3)) >= 2
}

// isTabular detects pipe tables and whitespace-columned matrices with
// threshold-looking cells.
func isTabular(content string) bool {
	if len(reTableRow.FindAllString(content, 3)) >= 2 {
		return true
	}
	rows := reColumnarRow.FindAllString(content, 4)
	if len(rows) >= 3 {
		hits := 0
		for _, r := range rows {
			if reThresholdCell.MatchString(r) {
				hits++
			}
		}
		return hits >= 2
	}
	return false
}

// DecisionKeywords returns the outcome keywords present in content,
// lowercased and deduplicated. Used by downstream relationship rules.
func DecisionKeywords(content string) []string {
	seen := map[string]bool{}
	var out []string
	for _, m := range reDecisionKeyword.FindAllString(content, -1) {
		k := strings.ToLower(strings.TrimSpace(m))
		if !seen[k] {
			seen[k] = true
			out = append(out, k)
		}
	}
	return out
}
