package navigation

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/guidegraph/guidegraph/llm"
)

const structuredDoc = `CHAPTER 1 BORROWER ELIGIBILITY

1.1 Citizenship
US citizens and permanent resident aliens are eligible borrowers.

1.2 Credit Requirements
Minimum credit score of 660 is required. See Section 2.1 for exceptions.

1.2.1 Credit Event Seasoning
Bankruptcy must be seasoned 48 months. Foreclosure requires 48 months.

CHAPTER 2 UNDERWRITING DECISIONS

2.1 Eligibility Decision Criteria
If DTI exceeds 50% the loan is declined. Loans with compensating factors
may be referred to senior underwriting. All other loans are approved.
`

func TestProbeStructured(t *testing.T) {
	r := Probe(structuredDoc)
	if r.Score <= 0.3 {
		t.Errorf("Score = %.2f, want > 0.3 for structured text", r.Score)
	}
	if r.NumberedHits == 0 {
		t.Error("expected numbered heading hits")
	}
	if r.DecisionHits == 0 {
		t.Error("expected decision keyword hits")
	}
}

func TestProbeUnstructured(t *testing.T) {
	prose := strings.Repeat("This overview describes our lending products in plain prose without any headings at all. ", 40)
	r := Probe(prose)
	if r.Score > 0.3 {
		t.Errorf("Score = %.2f, want <= 0.3 for prose", r.Score)
	}
}

func TestProbeEmpty(t *testing.T) {
	if r := Probe("   \n"); r.Score != 0 {
		t.Errorf("Score = %.2f, want 0 for empty text", r.Score)
	}
}

func TestCheckCeiling(t *testing.T) {
	e := NewExtractor(nil, 0.0, func(docType string) int {
		if docType == "Matrix" {
			return 10
		}
		return 600_000
	})
	_, err := e.Check(structuredDoc, "Matrix")
	if !errors.Is(err, ErrStructureInsufficient) {
		t.Errorf("err = %v, want ErrStructureInsufficient for oversized doc", err)
	}
	if _, err := e.Check(structuredDoc, "Guidelines"); err != nil {
		t.Errorf("Check: %v", err)
	}
}

func TestCheckScoreFloor(t *testing.T) {
	e := NewExtractor(nil, 0.99, func(string) int { return 600_000 })
	_, err := e.Check(structuredDoc, "Guidelines")
	if !errors.Is(err, ErrStructureInsufficient) {
		t.Errorf("err = %v, want ErrStructureInsufficient below floor", err)
	}
}

func TestRegexExtract(t *testing.T) {
	nodes := regexExtract(structuredDoc)
	if len(nodes) < 5 {
		t.Fatalf("extracted %d nodes, want >= 5", len(nodes))
	}

	byTitle := map[string]rawNode{}
	for _, n := range nodes {
		byTitle[n.Title] = n
	}

	if n, ok := byTitle["Credit Event Seasoning"]; !ok {
		t.Error("missing subsection heading")
	} else if n.Depth != 3 {
		t.Errorf("subsection depth = %d, want 3", n.Depth)
	}

	if n, ok := byTitle["Eligibility Decision Criteria"]; !ok {
		t.Error("missing decision section heading")
	} else if !n.Decision {
		t.Error("decision section not flagged")
	}
}

func TestExtractRegexFallbackOnBadLLM(t *testing.T) {
	fake := &llm.Fake{Default: "I could not produce JSON for this."}
	e := NewExtractor(fake, 0.0, nil)

	tree, err := e.Extract(context.Background(), "doc1", structuredDoc, "Guidelines", "NQM")
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if len(tree.Nodes) < 6 {
		t.Errorf("tree has %d nodes, want >= 6 from regex fallback", len(tree.Nodes))
	}
	if tree.Nodes[tree.Root()].Type != NodeRoot {
		t.Error("index 0 must be ROOT")
	}
}

func TestExtractLLMPath(t *testing.T) {
	fake := &llm.Fake{
		Default: `{"nodes": [
			{"title": "Chapter 1", "numbering": "1", "depth": 1, "start": 0, "end": 300, "decision": false},
			{"title": "Credit", "numbering": "1.2", "depth": 2, "start": 100, "end": 300, "decision": false, "cross_refs": ["Section 2.1"]},
			{"title": "Decisions", "numbering": "2.1", "depth": 2, "start": 320, "end": 600, "decision": true}
		]}`,
	}
	e := NewExtractor(fake, 0.0, nil)

	tree, err := e.Extract(context.Background(), "doc1", structuredDoc, "Guidelines", "NQM")
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}

	if got := len(tree.DecisionSections()); got != 1 {
		t.Errorf("decision sections = %d, want 1", got)
	}

	idx, ok := tree.Index(tree.Nodes[1].ID)
	if !ok || idx != 1 {
		t.Error("Index lookup failed for first heading")
	}

	// Path from a depth-3 node terminates at ROOT.
	for i, n := range tree.Nodes {
		if n.Title == "Credit" {
			path := tree.Path(i)
			if path[0] != tree.Nodes[tree.Root()].ID {
				t.Error("path must start at ROOT")
			}
			if path[len(path)-1] != n.ID {
				t.Error("path must end at the node itself")
			}
		}
	}
}

func TestBuildTreeDepthGapRepair(t *testing.T) {
	nodes := []rawNode{
		{Title: "Chapter 1", Depth: 1, Start: 0, End: 100},
		{Title: "Deep Clause", Depth: 3, Start: 10, End: 90}, // skips depth 2
	}
	tree := buildTree("doc1", strings.Repeat("x", 100), nodes)

	var synthetic int
	tree.Walk(func(_ int, n *Node) {
		if n.Synthetic && n.Type != NodeRoot {
			synthetic++
		}
	})
	if synthetic != 1 {
		t.Errorf("synthetic placeholders = %d, want 1", synthetic)
	}

	// Depth increments along every path are monotonic by exactly one.
	tree.Walk(func(idx int, n *Node) {
		if n.Parent >= 0 {
			if n.Depth != tree.Nodes[n.Parent].Depth+1 {
				t.Errorf("node %q depth %d under parent depth %d", n.Title, n.Depth, tree.Nodes[n.Parent].Depth)
			}
		}
	})
}

func TestNodeIDStable(t *testing.T) {
	t1 := buildTree("doc1", structuredDoc, regexExtract(structuredDoc))
	t2 := buildTree("doc1", structuredDoc, regexExtract(structuredDoc))
	if len(t1.Nodes) != len(t2.Nodes) {
		t.Fatalf("node counts differ: %d vs %d", len(t1.Nodes), len(t2.Nodes))
	}
	for i := range t1.Nodes {
		if t1.Nodes[i].ID != t2.Nodes[i].ID {
			t.Errorf("node %d id differs across runs", i)
		}
	}
}
