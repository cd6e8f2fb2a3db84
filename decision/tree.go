// Package decision extracts a complete decision tree from every
// DECISION_FLOW_SECTION and guarantees completeness by synthesis: each
// emitted tree has exactly one ROOT and APPROVE, DECLINE, and REFER
// leaves reachable from it, even when the source text names none.
package decision

import (
	"fmt"

	"github.com/cespare/xxhash/v2"
)

// Role classifies a decision-tree node. Small closed set.
type Role string

const (
	RoleRoot     Role = "ROOT"
	RoleBranch   Role = "BRANCH"
	RoleLeaf     Role = "LEAF"
	RoleTerminal Role = "TERMINAL"
	RoleGateway  Role = "GATEWAY"
)

// Outcome is a leaf's final disposition.
type Outcome string

const (
	OutcomeApprove Outcome = "APPROVE"
	OutcomeDecline Outcome = "DECLINE"
	OutcomeRefer   Outcome = "REFER"
	OutcomeNone    Outcome = ""
)

// Reserved evaluation precedences for synthesized leaves. Real criteria
// use 1–89.
const (
	PrecedenceRefer   = 97
	PrecedenceApprove = 98
	PrecedenceDecline = 99
	maxCriteriaPrecedence = 89
)

// EdgeKind types the edges between decision nodes.
type EdgeKind string

const (
	EdgeIfTrue      EdgeKind = "IF_TRUE"
	EdgeIfFalse     EdgeKind = "IF_FALSE"
	EdgeDefaultPath EdgeKind = "DEFAULT_PATH"
	EdgeResultsIn   EdgeKind = "RESULTS_IN"
)

// Node is one decision-tree node.
type Node struct {
	ID          string  `json:"id"`
	Role        Role    `json:"role"`
	Outcome     Outcome `json:"outcome,omitempty"`
	Precedence  int     `json:"precedence"`
	Expression  string  `json:"expression,omitempty"`
	Synthesized bool    `json:"synthesized,omitempty"`
}

// Edge connects two decision nodes.
type Edge struct {
	From string   `json:"from"`
	To   string   `json:"to"`
	Kind EdgeKind `json:"kind"`
}

// Tree is the complete decision tree for one DECISION_FLOW_SECTION.
type Tree struct {
	SectionID  string `json:"section_id"`
	DocumentID string `json:"document_id"`
	Nodes      []Node `json:"nodes"`
	Edges      []Edge `json:"edges"`

	State             State      `json:"state"`
	NeedsManualReview bool       `json:"needs_manual_review"`
	Validation        Validation `json:"validation"`
}

// Root returns the ROOT node; emitted trees always have exactly one.
func (t *Tree) Root() (*Node, bool) {
	for i := range t.Nodes {
		if t.Nodes[i].Role == RoleRoot {
			return &t.Nodes[i], true
		}
	}
	return nil, false
}

// node looks a node up by id.
func (t *Tree) node(id string) (*Node, bool) {
	for i := range t.Nodes {
		if t.Nodes[i].ID == id {
			return &t.Nodes[i], true
		}
	}
	return nil, false
}

// Leaves returns all LEAF nodes.
func (t *Tree) Leaves() []*Node {
	var out []*Node
	for i := range t.Nodes {
		if t.Nodes[i].Role == RoleLeaf {
			out = append(out, &t.Nodes[i])
		}
	}
	return out
}

// Branches returns all BRANCH nodes in precedence order as stored.
func (t *Tree) Branches() []*Node {
	var out []*Node
	for i := range t.Nodes {
		if t.Nodes[i].Role == RoleBranch {
			out = append(out, &t.Nodes[i])
		}
	}
	return out
}

// outgoing returns a node's outgoing edges.
func (t *Tree) outgoing(id string) []Edge {
	var out []Edge
	for _, e := range t.Edges {
		if e.From == id {
			out = append(out, e)
		}
	}
	return out
}

// reachable returns the set of node ids reachable from ROOT.
func (t *Tree) reachable() map[string]bool {
	root, ok := t.Root()
	if !ok {
		return nil
	}
	seen := map[string]bool{}
	stack := []string{root.ID}
	for len(stack) > 0 {
		id := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if seen[id] {
			continue
		}
		seen[id] = true
		for _, e := range t.outgoing(id) {
			stack = append(stack, e.To)
		}
	}
	return seen
}

// leafFor returns the leaf carrying outcome, when present.
func (t *Tree) leafFor(outcome Outcome) (*Node, bool) {
	for i := range t.Nodes {
		if t.Nodes[i].Role == RoleLeaf && t.Nodes[i].Outcome == outcome {
			return &t.Nodes[i], true
		}
	}
	return nil, false
}

// addEdge appends an edge unless the identical edge already exists.
func (t *Tree) addEdge(from, to string, kind EdgeKind) {
	for _, e := range t.Edges {
		if e.From == from && e.To == to && e.Kind == kind {
			return
		}
	}
	t.Edges = append(t.Edges, Edge{From: from, To: to, Kind: kind})
}

// nodeID derives a stable decision-node id.
func nodeID(sectionID string, role Role, discriminator string) string {
	h := xxhash.New()
	fmt.Fprintf(h, "%s|%s|%s", sectionID, role, discriminator)
	return fmt.Sprintf("dt_%016x", h.Sum64())
}
