package decision

// Validation reports per-category scores for one tree. Thresholds:
// structural and outcome coverage must be total; logical consistency,
// path coverage, and the overall blend tolerate bounded shortfall. A
// tree failing its thresholds is still emitted, flagged for manual
// review — downstream consumers rely on a total mapping from decision
// section to tree.
type Validation struct {
	Structural      float64 `json:"structural"`
	OutcomeCoverage float64 `json:"outcome_coverage"`
	Logical         float64 `json:"logical"`
	PathCoverage    float64 `json:"path_coverage"`
	Overall         float64 `json:"overall"`
}

// Category thresholds.
const (
	thresholdStructural = 1.0
	thresholdOutcome    = 1.0
	thresholdLogical    = 0.95
	thresholdPath       = 0.90
	thresholdOverall    = 0.85
)

// Passed reports whether every category meets its threshold.
func (v Validation) Passed() bool {
	return v.Structural >= thresholdStructural &&
		v.OutcomeCoverage >= thresholdOutcome &&
		v.Logical >= thresholdLogical &&
		v.PathCoverage >= thresholdPath &&
		v.Overall >= thresholdOverall
}

// Validate scores a completed tree.
func Validate(t *Tree) Validation {
	var v Validation

	// Structural: exactly one ROOT and at least three leaves. The
	// number of BRANCH nodes is not checked.
	roots := 0
	for i := range t.Nodes {
		if t.Nodes[i].Role == RoleRoot {
			roots++
		}
	}
	leaves := t.Leaves()
	structuralOK := roots == 1 && len(leaves) >= 3
	if structuralOK {
		v.Structural = 1.0
	}

	// Outcome coverage: all three outcomes present and reachable.
	reach := t.reachable()
	covered := 0
	for _, o := range []Outcome{OutcomeApprove, OutcomeDecline, OutcomeRefer} {
		if leaf, ok := t.leafFor(o); ok && reach[leaf.ID] {
			covered++
		}
	}
	v.OutcomeCoverage = float64(covered) / 3.0

	// Logical consistency: branches carry non-empty expressions and
	// in-range precedences.
	branches := t.Branches()
	if len(branches) == 0 {
		v.Logical = 1.0
	} else {
		ok := 0
		for _, b := range branches {
			if b.Expression != "" && b.Precedence >= 1 && b.Precedence <= maxCriteriaPrecedence {
				ok++
			}
		}
		v.Logical = float64(ok) / float64(len(branches))
	}

	// Path coverage: every node reachable from ROOT.
	if len(t.Nodes) > 0 {
		reached := 0
		for i := range t.Nodes {
			if reach[t.Nodes[i].ID] {
				reached++
			}
		}
		v.PathCoverage = float64(reached) / float64(len(t.Nodes))
	}

	v.Overall = 0.3*v.Structural + 0.3*v.OutcomeCoverage + 0.2*v.Logical + 0.2*v.PathCoverage
	return v
}
