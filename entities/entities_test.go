package entities

import (
	"testing"

	"github.com/guidegraph/guidegraph/chunker"
	"github.com/guidegraph/guidegraph/llm"
	"github.com/guidegraph/guidegraph/navigation"
)

const decisionText = `CHAPTER 1 PROGRAMS

1.1 Bank Statement Decision Rules
The bank statement program requires a minimum FICO of 680 for primary
residence purchases. Self-employed borrowers must document 12 months of
reserves. If a bankruptcy is seasoned under 48 months the loan is
declined; otherwise files are referred per Section 2.3.
`

func buildFixture(t *testing.T, client llm.Client) (*navigation.Tree, []chunker.Chunk, *Extractor) {
	t.Helper()
	e := navigation.NewExtractor(nil, 0.0, nil)
	tree, err := e.Extract(t.Context(), "doc1", decisionText, "Guidelines", "NQM")
	if err != nil {
		t.Fatalf("navigation extract: %v", err)
	}
	chunks := chunker.New(chunker.Config{MinTokens: 5}).Chunk(tree, decisionText)
	return tree, chunks, NewExtractor(client)
}

func typesOf(ents []Entity) map[Type]int {
	out := map[Type]int{}
	for _, e := range ents {
		out[e.Type]++
	}
	return out
}

func TestPatternPassFindsDomainEntities(t *testing.T) {
	tree, chunks, ex := buildFixture(t, nil)
	ents, _ := ex.Extract(t.Context(), tree, chunks)

	counts := typesOf(ents)
	for _, want := range []Type{NumericThreshold, CreditEvent, OccupancyType, GuidelineSection, BorrowerType} {
		if counts[want] == 0 {
			t.Errorf("no %s entities extracted", want)
		}
	}

	for _, e := range ents {
		if !KnownType(e.Type) {
			t.Errorf("unknown entity type %s", e.Type)
		}
		if e.NodeID == "" {
			t.Error("entity missing navigation context")
		}
		if e.Confidence <= 0 || e.Confidence > 1 {
			t.Errorf("confidence %f outside (0,1]", e.Confidence)
		}
	}
}

func TestThresholdNormalization(t *testing.T) {
	hits := extractThresholds("A minimum FICO of 680 is required. LTV may not exceed 80%. Reserves between 6 and 12 required.")

	norms := map[string]bool{}
	for _, h := range hits {
		norms[h.norm.String()] = true
	}
	if !norms[">=680"] {
		t.Errorf("missing >=680, got %v", norms)
	}
	if !norms["[6,12]"] {
		t.Errorf("missing range [6,12], got %v", norms)
	}
}

func TestBoundInclusivity(t *testing.T) {
	cases := []struct {
		word      string
		op        string
		inclusive bool
	}{
		{"minimum", ">=", true},
		{"at least", ">=", true},
		{"up to", "<=", true},
		{"below", "<", false},
		{"exceeds", ">", false},
	}
	for _, c := range cases {
		op, inc := boundOperator(c.word)
		if op != c.op || inc != c.inclusive {
			t.Errorf("boundOperator(%q) = %s,%v want %s,%v", c.word, op, inc, c.op, c.inclusive)
		}
	}
}

func TestMergeWithinNode(t *testing.T) {
	found := []Entity{
		{ID: "1", PrimaryMention: "bankruptcy", Normalized: "bankruptcy", Confidence: 0.7},
		{ID: "2", PrimaryMention: "Bankruptcy", Normalized: "bankruptcy", Confidence: 0.9},
		{ID: "3", PrimaryMention: "foreclosure", Normalized: "foreclosure", Confidence: 0.9},
	}
	merged := mergeNode(found)
	if len(merged) != 2 {
		t.Fatalf("merged to %d entities, want 2", len(merged))
	}
	if merged[0].Confidence != 0.9 {
		t.Errorf("merge kept confidence %f, want highest (0.9)", merged[0].Confidence)
	}
}

func TestLLMSupplementOnDecisionSections(t *testing.T) {
	fake := &llm.Fake{
		Default: `{"entities": [{"mention": "asset depletion", "type": "INCOME_TYPE", "normalized": "asset depletion"}, {"mention": "nonsense", "type": "NOT_A_TYPE", "normalized": ""}]}`,
	}
	tree, chunks, ex := buildFixture(t, fake)
	ents, _ := ex.Extract(t.Context(), tree, chunks)

	if fake.CallCount() == 0 {
		t.Fatal("LLM pass did not run on decision-flow section")
	}
	var supplemented bool
	for _, e := range ents {
		if e.Type == "NOT_A_TYPE" {
			t.Error("unknown LLM type survived validation")
		}
		if e.PrimaryMention == "asset depletion" && e.Confidence == 0.7 {
			supplemented = true
		}
	}
	if !supplemented {
		t.Error("LLM supplement entity missing")
	}
}

func TestLLMFailureDegradesToPatterns(t *testing.T) {
	fake := &llm.Fake{Default: "not json at all"}
	tree, chunks, ex := buildFixture(t, fake)
	ents, _ := ex.Extract(t.Context(), tree, chunks)
	if len(ents) == 0 {
		t.Error("pattern entities lost when LLM output is unparseable")
	}
}

func TestEntityRelationships(t *testing.T) {
	tree, chunks, ex := buildFixture(t, nil)
	ents, rels := ex.Extract(t.Context(), tree, chunks)

	byID := map[string]Entity{}
	for _, e := range ents {
		byID[e.ID] = e
	}
	var hasThreshold bool
	for _, r := range rels {
		src, ok1 := byID[r.SourceID]
		tgt, ok2 := byID[r.TargetID]
		if !ok1 || !ok2 {
			t.Fatal("relationship references unknown entity")
		}
		if r.Kind == KindHasThreshold {
			hasThreshold = true
			if src.Type != LoanProgram || tgt.Type != NumericThreshold {
				t.Error("HAS_THRESHOLD must run LOAN_PROGRAM → NUMERIC_THRESHOLD")
			}
		}
	}
	if !hasThreshold {
		t.Error("expected a HAS_THRESHOLD relationship")
	}
}

func TestEntityIDsStable(t *testing.T) {
	tree, chunks, ex := buildFixture(t, nil)
	a, _ := ex.Extract(t.Context(), tree, chunks)
	b, _ := ex.Extract(t.Context(), tree, chunks)
	if len(a) != len(b) {
		t.Fatalf("entity counts differ: %d vs %d", len(a), len(b))
	}
	ids := map[string]bool{}
	for _, e := range a {
		ids[e.ID] = true
	}
	for _, e := range b {
		if !ids[e.ID] {
			t.Errorf("entity id %s not stable across runs", e.ID)
		}
	}
}
