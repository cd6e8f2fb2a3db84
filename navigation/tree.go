// Package navigation discovers a document's heading skeleton and
// represents it as a rooted tree of typed nodes. Nodes live in an arena
// and reference each other by index, so parent and child links never
// form owning-pointer cycles.
package navigation

import (
	"fmt"

	"github.com/cespare/xxhash/v2"
)

// NodeType classifies a navigation node.
type NodeType string

const (
	NodeRoot         NodeType = "ROOT"
	NodeChapter      NodeType = "CHAPTER"
	NodeSection      NodeType = "SECTION"
	NodeSubsection   NodeType = "SUBSECTION"
	NodeDecisionFlow NodeType = "DECISION_FLOW_SECTION"
)

// MaxDepth is the deepest level a node may occupy; deeper headings are
// clamped during tree construction.
const MaxDepth = 5

// DecisionMetadata marks a node whose content drives an underwriting
// decision.
type DecisionMetadata struct {
	Keywords   []string `json:"keywords,omitempty"`
	OutcomeCue string   `json:"outcome_cue,omitempty"`
}

// Node is one structural element of a document. Parent and Children are
// arena indices into the owning Tree; Parent is -1 for ROOT.
type Node struct {
	ID        string            `json:"id"`
	Type      NodeType          `json:"type"`
	Depth     int               `json:"depth"`
	Title     string            `json:"title"`
	Numbering string            `json:"numbering,omitempty"`
	Start     int               `json:"start"`
	End       int               `json:"end"`
	Parent    int               `json:"-"`
	Children  []int             `json:"-"`
	Synthetic bool              `json:"synthetic,omitempty"`
	Decision  *DecisionMetadata `json:"decision,omitempty"`

	// CrossRefs holds raw citation strings the extractor flagged in
	// this node's text ("see Section 3.2", "refer to Matrix").
	CrossRefs []string `json:"cross_refs,omitempty"`
}

// Tree is the rooted navigation skeleton of one document. Index 0 is
// always ROOT.
type Tree struct {
	DocumentID string
	Nodes      []Node

	byID map[string]int
}

// NewTree creates a tree containing only the synthetic ROOT covering
// [0, textLen).
func NewTree(documentID string, textLen int) *Tree {
	t := &Tree{DocumentID: documentID, byID: make(map[string]int)}
	root := Node{
		ID:        nodeID(documentID, "", "ROOT", 0),
		Type:      NodeRoot,
		Depth:     1,
		Title:     "ROOT",
		Start:     0,
		End:       textLen,
		Parent:    -1,
		Synthetic: true,
	}
	t.Nodes = append(t.Nodes, root)
	t.byID[root.ID] = 0
	return t
}

// Root returns the arena index of ROOT.
func (t *Tree) Root() int { return 0 }

// Add appends node as a child of parent and returns its arena index.
// The node's ID is derived from the document, numbering, title, and
// span, so re-extraction of identical input reproduces identical ids.
func (t *Tree) Add(parent int, node Node) int {
	node.ID = nodeID(t.DocumentID, node.Numbering, node.Title, node.Start)
	node.Parent = parent
	idx := len(t.Nodes)
	t.Nodes = append(t.Nodes, node)
	t.Nodes[parent].Children = append(t.Nodes[parent].Children, idx)
	t.byID[node.ID] = idx
	return idx
}

// Index returns the arena index for a node ID.
func (t *Tree) Index(id string) (int, bool) {
	i, ok := t.byID[id]
	return i, ok
}

// Path returns the node IDs from ROOT down to idx, inclusive.
func (t *Tree) Path(idx int) []string {
	var rev []string
	for i := idx; i >= 0; i = t.Nodes[i].Parent {
		rev = append(rev, t.Nodes[i].ID)
	}
	out := make([]string, len(rev))
	for i := range rev {
		out[i] = rev[len(rev)-1-i]
	}
	return out
}

// Walk visits nodes depth-first in document order.
func (t *Tree) Walk(fn func(idx int, n *Node)) {
	var visit func(int)
	visit = func(i int) {
		fn(i, &t.Nodes[i])
		for _, c := range t.Nodes[i].Children {
			visit(c)
		}
	}
	visit(0)
}

// Leaves returns arena indices of nodes with no children, excluding a
// childless ROOT.
func (t *Tree) Leaves() []int {
	var out []int
	t.Walk(func(idx int, n *Node) {
		if len(n.Children) == 0 && n.Type != NodeRoot {
			out = append(out, idx)
		}
	})
	return out
}

// DecisionSections returns arena indices of DECISION_FLOW_SECTION nodes.
func (t *Tree) DecisionSections() []int {
	var out []int
	t.Walk(func(idx int, n *Node) {
		if n.Type == NodeDecisionFlow {
			out = append(out, idx)
		}
	})
	return out
}

// MaxLevel returns the deepest level in the tree (1 for ROOT alone).
func (t *Tree) MaxLevel() int {
	deepest := 0
	t.Walk(func(_ int, n *Node) {
		if n.Depth > deepest {
			deepest = n.Depth
		}
	})
	return deepest
}

// nodeID derives a stable node identifier. xxhash keeps ids cheap and
// reproducible across runs on identical input.
func nodeID(documentID, numbering, title string, start int) string {
	h := xxhash.New()
	fmt.Fprintf(h, "%s|%s|%s|%d", documentID, numbering, title, start)
	return fmt.Sprintf("nav_%016x", h.Sum64())
}

// typeForDepth maps a repaired depth to the node type ladder.
func typeForDepth(depth int, decision bool) NodeType {
	if decision {
		return NodeDecisionFlow
	}
	switch depth {
	case 2:
		return NodeChapter
	case 3:
		return NodeSection
	default:
		return NodeSubsection
	}
}
