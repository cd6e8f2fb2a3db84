package decision

import (
	"errors"
	"testing"

	"github.com/guidegraph/guidegraph/chunker"
	"github.com/guidegraph/guidegraph/llm"
	"github.com/guidegraph/guidegraph/navigation"
)

const decisionDoc = `CHAPTER 1 UNDERWRITING

1.1 Eligibility Decision
Loans are underwritten according to credit policy. If the credit score
is below 660 the loan is declined. If DTI exceeds 50% without
compensating factors the loan is declined. When compensating factors
are documented the file is referred for senior review. All remaining
loans are approved.
`

func buildFixture(t *testing.T, client llm.Client, text string) (*navigation.Tree, []chunker.Chunk) {
	t.Helper()
	e := navigation.NewExtractor(nil, 0.0, nil)
	tree, err := e.Extract(t.Context(), "doc1", text, "Guidelines", "NQM")
	if err != nil {
		t.Fatalf("navigation extract: %v", err)
	}
	chunks := chunker.New(chunker.Config{MinTokens: 5}).Chunk(tree, text)
	return tree, chunks
}

func assertComplete(t *testing.T, dt Tree) {
	t.Helper()
	roots := 0
	for _, n := range dt.Nodes {
		if n.Role == RoleRoot {
			roots++
		}
	}
	if roots != 1 {
		t.Errorf("tree has %d ROOT nodes, want exactly 1", roots)
	}

	reach := dt.reachable()
	for _, o := range []Outcome{OutcomeApprove, OutcomeDecline, OutcomeRefer} {
		leaf, ok := dt.leafFor(o)
		if !ok {
			t.Errorf("missing %s leaf", o)
			continue
		}
		if !reach[leaf.ID] {
			t.Errorf("%s leaf not reachable from ROOT", o)
		}
	}
	if len(dt.Leaves()) < 3 {
		t.Errorf("tree has %d leaves, want >= 3", len(dt.Leaves()))
	}
	if dt.State != StateEmitted {
		t.Errorf("State = %s, want EMITTED", dt.State)
	}
}

func TestExtractRegexPath(t *testing.T) {
	tree, chunks := buildFixture(t, nil, decisionDoc)
	trees := NewExtractor(nil).ExtractAll(t.Context(), tree, chunks)

	if len(trees) != 1 {
		t.Fatalf("trees = %d, want 1 (one per decision section)", len(trees))
	}
	dt := trees[0]
	assertComplete(t, dt)

	if len(dt.Branches()) == 0 {
		t.Error("decision content present but no BRANCH nodes extracted")
	}
	for _, b := range dt.Branches() {
		if b.Precedence < 1 || b.Precedence > 89 {
			t.Errorf("branch precedence %d outside 1-89", b.Precedence)
		}
	}
	if dt.NeedsManualReview {
		t.Error("well-formed section should not need manual review")
	}
}

func TestSynthesizedLeafPrecedences(t *testing.T) {
	// Section with only APPROVE language: DECLINE and REFER must be
	// synthesized at the reserved precedences and the tree still passes.
	text := `CHAPTER 1 POLICY

1.1 Approval Decision
If all criteria are satisfied the loan is approved. When documentation
is complete the loan is approved.
`
	tree, chunks := buildFixture(t, nil, text)
	trees := NewExtractor(nil).ExtractAll(t.Context(), tree, chunks)
	if len(trees) != 1 {
		t.Fatalf("trees = %d, want 1", len(trees))
	}
	dt := trees[0]
	assertComplete(t, dt)

	decline, _ := dt.leafFor(OutcomeDecline)
	refer, _ := dt.leafFor(OutcomeRefer)
	if !decline.Synthesized || decline.Precedence != PrecedenceDecline {
		t.Errorf("DECLINE leaf: synthesized=%v precedence=%d, want true/99", decline.Synthesized, decline.Precedence)
	}
	if !refer.Synthesized || refer.Precedence != PrecedenceRefer {
		t.Errorf("REFER leaf: synthesized=%v precedence=%d, want true/97", refer.Synthesized, refer.Precedence)
	}
	if dt.NeedsManualReview {
		t.Error("tree with synthesized leaves covering all outcomes must not need manual review")
	}
}

func TestZeroOutcomeSectionStillYieldsTree(t *testing.T) {
	text := `CHAPTER 1 POLICY

1.1 Exception Decision Process
Exception requests follow a documented workflow with second-level
sign-off from credit committee members before processing continues.
`
	tree, chunks := buildFixture(t, nil, text)
	trees := NewExtractor(nil).ExtractAll(t.Context(), tree, chunks)
	if len(trees) != 1 {
		t.Fatalf("trees = %d, want 1", len(trees))
	}
	dt := trees[0]
	assertComplete(t, dt)

	for _, o := range []Outcome{OutcomeApprove, OutcomeDecline, OutcomeRefer} {
		leaf, _ := dt.leafFor(o)
		if !leaf.Synthesized {
			t.Errorf("%s leaf should be synthesized for a zero-outcome section", o)
		}
	}
}

func TestLLMPathAssembly(t *testing.T) {
	fake := &llm.Fake{
		Default: `{"policy": "Underwrite per credit policy.",
			"criteria": [
				{"expression": "credit_score < 660", "precedence": 2},
				{"expression": "DTI > 50%", "precedence": 1}
			],
			"outcomes": [
				{"statement": "the loan is declined", "outcome": "DECLINE"}
			]}`,
	}
	tree, chunks := buildFixture(t, fake, decisionDoc)
	trees := NewExtractor(fake).ExtractAll(t.Context(), tree, chunks)
	if len(trees) != 1 {
		t.Fatalf("trees = %d, want 1", len(trees))
	}
	dt := trees[0]
	assertComplete(t, dt)

	branches := dt.Branches()
	if len(branches) != 2 {
		t.Fatalf("branches = %d, want 2", len(branches))
	}
	// Branches chain in precedence order: DTI (1) before credit score (2).
	if branches[0].Precedence > branches[1].Precedence {
		t.Error("branches not ordered by evaluation precedence")
	}

	root, _ := dt.Root()
	if root.Synthesized {
		t.Error("policy entry present; ROOT must not be synthesized")
	}

	// APPROVE and REFER were absent from the LLM output.
	approve, _ := dt.leafFor(OutcomeApprove)
	if !approve.Synthesized {
		t.Error("APPROVE leaf should be synthesized")
	}
}

func TestExtractionFailureRetriesThenMinimalTree(t *testing.T) {
	fake := &llm.Fake{Err: errors.New("provider down")}
	tree, chunks := buildFixture(t, fake, decisionDoc)
	trees := NewExtractor(fake).ExtractAll(t.Context(), tree, chunks)
	if len(trees) != 1 {
		t.Fatalf("trees = %d, want 1 (mapping must be total)", len(trees))
	}
	dt := trees[0]

	if fake.CallCount() != 2 {
		t.Errorf("LLM called %d times, want 2 (one retry)", fake.CallCount())
	}
	if !dt.NeedsManualReview {
		t.Error("minimal tree must be flagged for manual review")
	}
	assertComplete(t, dt)

	branches := dt.Branches()
	if len(branches) != 1 {
		t.Fatalf("minimal tree branches = %d, want 1", len(branches))
	}
	var hasDefault bool
	for _, e := range dt.Edges {
		if e.Kind == EdgeDefaultPath {
			hasDefault = true
			refer, _ := dt.leafFor(OutcomeRefer)
			if e.To != refer.ID {
				t.Error("DEFAULT_PATH must target the REFER leaf")
			}
		}
	}
	if !hasDefault {
		t.Error("minimal tree missing DEFAULT_PATH edge")
	}
}

func TestDeadEndBranchGetsDefaultPath(t *testing.T) {
	dt := Tree{SectionID: "s1", DocumentID: "d1"}
	dt.Nodes = append(dt.Nodes,
		Node{ID: "root", Role: RoleRoot, Expression: "entry"},
		Node{ID: "b1", Role: RoleBranch, Precedence: 1, Expression: "x > 1"},
	)
	dt.addEdge("root", "b1", EdgeIfTrue)

	EnsureComplete(&dt)

	refer, ok := dt.leafFor(OutcomeRefer)
	if !ok {
		t.Fatal("REFER leaf not synthesized")
	}
	var found bool
	for _, e := range dt.Edges {
		if e.From == "b1" && e.To == refer.ID && e.Kind == EdgeDefaultPath {
			found = true
		}
	}
	if !found {
		t.Error("dead-end branch did not receive DEFAULT_PATH to REFER")
	}
}

func TestOrphanReattachment(t *testing.T) {
	dt := Tree{SectionID: "s1", DocumentID: "d1"}
	dt.Nodes = append(dt.Nodes,
		Node{ID: "root", Role: RoleRoot, Expression: "entry"},
		Node{ID: "orphan", Role: RoleBranch, Precedence: 5, Expression: "y < 2"},
	)

	EnsureComplete(&dt)

	reach := dt.reachable()
	if !reach["orphan"] {
		t.Error("orphan branch not reattached to the tree")
	}
}

func TestStateMachineIllegalTransition(t *testing.T) {
	dt := Tree{State: StateEmpty}
	if err := dt.advance(StateComplete); err == nil {
		t.Error("EMPTY -> COMPLETE must be rejected")
	}
	if err := dt.advance(StateExtracting); err != nil {
		t.Errorf("EMPTY -> EXTRACTING rejected: %v", err)
	}
}

func TestValidationScores(t *testing.T) {
	tree, chunks := buildFixture(t, nil, decisionDoc)
	trees := NewExtractor(nil).ExtractAll(t.Context(), tree, chunks)
	v := trees[0].Validation

	if v.Structural != 1.0 {
		t.Errorf("Structural = %f, want 1.0", v.Structural)
	}
	if v.OutcomeCoverage != 1.0 {
		t.Errorf("OutcomeCoverage = %f, want 1.0", v.OutcomeCoverage)
	}
	if !v.Passed() {
		t.Errorf("validation failed: %+v", v)
	}
}
