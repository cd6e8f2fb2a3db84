// Package relations detects typed, evidence-scored relationships
// between chunks. Candidate generation goes through indexes on
// numbering, normalized titles, and owning navigation nodes so the
// pass stays near-linear in chunk count.
package relations

import (
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/guidegraph/guidegraph/chunker"
	"github.com/guidegraph/guidegraph/navigation"
)

// Kind is a relationship type. Closed set.
type Kind string

const (
	ParentChild     Kind = "PARENT_CHILD"
	Sequential      Kind = "SEQUENTIAL"
	References      Kind = "REFERENCES"
	DecisionBranch  Kind = "DECISION_BRANCH"
	DecisionOutcome Kind = "DECISION_OUTCOME"
	Conditional     Kind = "CONDITIONAL"
	Elaborates      Kind = "ELABORATES"
	Summarizes      Kind = "SUMMARIZES"
	InterDocument   Kind = "INTER_DOCUMENT"
	MatrixGuideline Kind = "MATRIX_GUIDELINE"
)

// Evidence backs a detected relationship: the rule that fired, up to
// three supporting excerpts, and the normalized anchors (numbers,
// titles) the rule matched on.
type Evidence struct {
	RuleID   string   `json:"rule_id"`
	Excerpts []string `json:"excerpts,omitempty"`
	Anchors  []string `json:"anchors,omitempty"`
}

// Relationship is one typed edge between two chunks.
type Relationship struct {
	From       string   `json:"from"`
	To         string   `json:"to"`
	Kind       Kind     `json:"kind"`
	Strength   float64  `json:"strength"`
	Confidence float64  `json:"confidence"`
	Evidence   Evidence `json:"evidence"`

	// Bidirectional marks overlay edges (MATRIX_GUIDELINE) that may be
	// traversed both ways; the edge itself is stored once.
	Bidirectional bool `json:"bidirectional,omitempty"`
}

// Metrics summarizes one detection pass.
type Metrics struct {
	PairsEvaluated int     `json:"pairs_evaluated"`
	Detected       int     `json:"detected"`
	Dropped        int     `json:"dropped"`
	DetectionRate  float64 `json:"detection_rate"`
	AvgStrength    float64 `json:"avg_strength"`
	AvgConfidence  float64 `json:"avg_confidence"`
	Elapsed        time.Duration `json:"elapsed"`
}

// Rule priors: confidence = prior * evidence factor.
var rulePriors = map[Kind]float64{
	ParentChild:     0.95,
	Sequential:      0.9,
	References:      0.85,
	DecisionBranch:  0.8,
	DecisionOutcome: 0.8,
	Conditional:     0.7,
	Elaborates:      0.65,
	Summarizes:      0.6,
	InterDocument:   0.75,
	MatrixGuideline: 0.7,
}

// Manager runs the detection rules over one document (or, for
// inter-document rules, a set of documents in the same package).
type Manager struct {
	minStrength float64
}

// NewManager builds a manager; relationships weaker than minStrength
// are dropped during validation.
func NewManager(minStrength float64) *Manager {
	return &Manager{minStrength: minStrength}
}

// Detect runs all intra-document rules and returns validated
// relationships plus pass metrics.
func (m *Manager) Detect(tree *navigation.Tree, chunks []chunker.Chunk) ([]Relationship, Metrics) {
	start := time.Now()
	idx := buildIndex(tree, chunks)

	var out []Relationship
	pairs := 0

	out = append(out, detectParentChild(tree, idx)...)
	out = append(out, detectSequential(idx, &pairs)...)
	out = append(out, detectReferences(tree, idx, &pairs)...)
	out = append(out, detectDecisionBranches(tree, idx, &pairs)...)
	out = append(out, detectDecisionOutcomes(tree, idx, &pairs)...)
	out = append(out, detectConditional(idx, &pairs)...)
	out = append(out, detectElaborates(idx, &pairs)...)
	out = append(out, detectSummarizes(idx, &pairs)...)
	out = append(out, detectMatrixGuideline(idx, &pairs)...)

	valid := m.Validate(out, chunks)
	sortByPosition(valid)
	metrics := m.metrics(valid, len(out), pairs, time.Since(start))
	slog.Info("relations: detection complete",
		"doc_id", tree.DocumentID, "detected", len(out), "kept", len(valid),
		"pairs", pairs, "elapsed", metrics.Elapsed.Round(time.Millisecond))
	return valid, metrics
}

// Validate enforces the structural rules: endpoints exist, no
// self-loops, unique (from, to, kind) keeping the highest confidence,
// strength floor, and no cycles among PARENT_CHILD edges.
func (m *Manager) Validate(rels []Relationship, chunks []chunker.Chunk) []Relationship {
	known := make(map[string]bool, len(chunks))
	for _, c := range chunks {
		known[c.ID] = true
	}

	best := make(map[string]Relationship, len(rels))
	var order []string
	for _, r := range rels {
		if r.From == r.To {
			continue
		}
		if !known[r.From] || !known[r.To] {
			continue
		}
		if r.Strength < m.minStrength {
			continue
		}
		key := fmt.Sprintf("%s|%s|%s", r.From, r.To, r.Kind)
		if prev, ok := best[key]; ok {
			if r.Confidence > prev.Confidence {
				best[key] = r
			}
			continue
		}
		best[key] = r
		order = append(order, key)
	}

	out := make([]Relationship, 0, len(best))
	for _, key := range order {
		out = append(out, best[key])
	}
	return dropParentChildCycles(out)
}

// dropParentChildCycles removes PARENT_CHILD edges that would close a
// cycle, preserving the tree invariant. Edges are considered in
// detection order; an edge whose target already reaches its source is
// dropped.
func dropParentChildCycles(rels []Relationship) []Relationship {
	adj := map[string][]string{}
	reaches := func(from, to string) bool {
		seen := map[string]bool{}
		stack := []string{from}
		for len(stack) > 0 {
			n := stack[len(stack)-1]
			stack = stack[:len(stack)-1]
			if n == to {
				return true
			}
			if seen[n] {
				continue
			}
			seen[n] = true
			stack = append(stack, adj[n]...)
		}
		return false
	}

	out := rels[:0]
	for _, r := range rels {
		if r.Kind == ParentChild {
			if reaches(r.To, r.From) {
				slog.Warn("relations: dropping PARENT_CHILD cycle", "from", r.From, "to", r.To)
				continue
			}
			adj[r.From] = append(adj[r.From], r.To)
		}
		out = append(out, r)
	}
	return out
}

func (m *Manager) metrics(kept []Relationship, detected, pairs int, elapsed time.Duration) Metrics {
	met := Metrics{
		PairsEvaluated: pairs,
		Detected:       len(kept),
		Dropped:        detected - len(kept),
		Elapsed:        elapsed,
	}
	if pairs > 0 {
		met.DetectionRate = float64(len(kept)) / float64(pairs)
	}
	var s, c float64
	for _, r := range kept {
		s += r.Strength
		c += r.Confidence
	}
	if len(kept) > 0 {
		met.AvgStrength = s / float64(len(kept))
		met.AvgConfidence = c / float64(len(kept))
	}
	return met
}

// confidence computes prior * evidence saturation.
func confidence(kind Kind, evidenceCount int) float64 {
	prior := rulePriors[kind]
	factor := float64(evidenceCount) / 3.0
	if factor > 1 {
		factor = 1
	}
	if factor == 0 {
		factor = 1.0 / 3.0
	}
	return prior * factor
}

// excerpt clips text for evidence records.
func excerpt(text string) string {
	const limit = 160
	if len(text) <= limit {
		return text
	}
	return text[:limit] + "..."
}

// sortByPosition orders relationships deterministically for stable
// output across runs.
func sortByPosition(rels []Relationship) {
	sort.SliceStable(rels, func(i, j int) bool {
		if rels[i].From != rels[j].From {
			return rels[i].From < rels[j].From
		}
		if rels[i].To != rels[j].To {
			return rels[i].To < rels[j].To
		}
		return rels[i].Kind < rels[j].Kind
	})
}
