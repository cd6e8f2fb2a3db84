package navigation

import (
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"
)

// Regex-only extraction path. Produces a shallower tree than the LLM
// path but never fails, which makes it the safety net for unparseable
// model output.

var (
	reHeadingLine = regexp.MustCompile(`^\s{0,3}(\d+(?:\.\d+){0,4})\.?\s+(\S.*)$`)
	reChapterLine = regexp.MustCompile(`(?i)^\s{0,3}(?:CHAPTER|PART|APPENDIX)\s+([0-9IVXLC]+)\.?\s*(.*)$`)
	reSectionLine = regexp.MustCompile(`(?i)^\s{0,3}Section\s+(\d+(?:\.\d+)*)\.?\s+(\S.*)$`)
	reCapsLine    = regexp.MustCompile(`^\s{0,3}([A-Z][A-Z &/\-]{6,60})$`)

	reDecisionTitle = regexp.MustCompile(`(?i)\b(eligib|decision|approval|decline|refer|exception|underwriting criteria|qualif)`)
)

// regexExtract scans lines for heading patterns and derives depth from
// the numbering (dots + 1) or the heading style.
func regexExtract(text string) []rawNode {
	var nodes []rawNode
	offset := 0
	for _, line := range strings.SplitAfter(text, "\n") {
		trimmed := strings.TrimRight(line, "\n")
		start := offset
		offset += len(line)
		if strings.TrimSpace(trimmed) == "" {
			continue
		}

		var n rawNode
		switch {
		case reChapterLine.MatchString(trimmed):
			m := reChapterLine.FindStringSubmatch(trimmed)
			n = rawNode{Title: strings.TrimSpace(trimmed), Numbering: m[1], Depth: 1}
		case reSectionLine.MatchString(trimmed):
			m := reSectionLine.FindStringSubmatch(trimmed)
			n = rawNode{Title: strings.TrimSpace(m[2]), Numbering: m[1], Depth: numberingDepth(m[1])}
		case reHeadingLine.MatchString(trimmed):
			m := reHeadingLine.FindStringSubmatch(trimmed)
			// Skip lines that look like numbered prose ("30 days after...")
			// or table rows whose second column is numeric.
			if len(m[2]) > 120 || strings.HasSuffix(strings.TrimSpace(m[2]), ".") {
				continue
			}
			if first, _ := utf8.DecodeRuneInString(m[2]); !unicode.IsLetter(first) {
				continue
			}
			n = rawNode{Title: strings.TrimSpace(m[2]), Numbering: m[1], Depth: numberingDepth(m[1])}
		case reCapsLine.MatchString(trimmed):
			m := reCapsLine.FindStringSubmatch(trimmed)
			n = rawNode{Title: strings.TrimSpace(m[1]), Depth: 1}
		default:
			continue
		}

		n.Start = start
		n.Decision = reDecisionTitle.MatchString(n.Title)
		nodes = append(nodes, n)
	}

	// Close each node's span at the next heading of the same or
	// shallower depth.
	for i := range nodes {
		nodes[i].End = len(text)
		for j := i + 1; j < len(nodes); j++ {
			if nodes[j].Depth <= nodes[i].Depth {
				nodes[i].End = nodes[j].Start
				break
			}
		}
	}
	return nodes
}

// numberingDepth derives heading depth from dotted numbering: "3" is
// depth 1, "3.2" depth 2, "3.2.1" depth 3.
func numberingDepth(numbering string) int {
	d := strings.Count(numbering, ".") + 1
	if d > MaxDepth-1 {
		d = MaxDepth - 1
	}
	return d
}
