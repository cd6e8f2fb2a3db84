package relations

import (
	"regexp"
	"strings"

	"github.com/guidegraph/guidegraph/chunker"
	"github.com/guidegraph/guidegraph/navigation"
)

// index precomputes the lookups the rules need so candidate generation
// never scans all chunk pairs.
type index struct {
	tree   *navigation.Tree
	chunks []chunker.Chunk

	// chunksByNode maps a navigation node id to the positions of its
	// chunks, in reading order.
	chunksByNode map[string][]int

	// byNumbering and byTitle resolve citations to node ids.
	byNumbering map[string]string
	byTitle     map[string]string

	// decisionAncestor maps a node id to the id of its enclosing
	// DECISION_FLOW_SECTION, when any.
	decisionAncestor map[string]string

	// thresholds caches normalized numeric anchors per chunk position.
	thresholds [][]string
}

func buildIndex(tree *navigation.Tree, chunks []chunker.Chunk) *index {
	ix := &index{
		tree:             tree,
		chunks:           chunks,
		chunksByNode:     make(map[string][]int),
		byNumbering:      make(map[string]string),
		byTitle:          make(map[string]string),
		decisionAncestor: make(map[string]string),
		thresholds:       make([][]string, len(chunks)),
	}

	for i, c := range chunks {
		ix.chunksByNode[c.NodeID] = append(ix.chunksByNode[c.NodeID], i)
		ix.thresholds[i] = NormalizeThresholds(c.Content)
	}

	tree.Walk(func(idx int, n *navigation.Node) {
		if n.Numbering != "" {
			ix.byNumbering[normalizeNumbering(n.Numbering)] = n.ID
		}
		if n.Title != "" {
			ix.byTitle[normalizeTitle(n.Title)] = n.ID
		}
		for i := idx; i >= 0; i = tree.Nodes[i].Parent {
			if tree.Nodes[i].Type == navigation.NodeDecisionFlow {
				ix.decisionAncestor[n.ID] = tree.Nodes[i].ID
				break
			}
		}
	})

	return ix
}

// firstChunk returns the position of a node's first chunk, or -1.
func (ix *index) firstChunk(nodeID string) int {
	if list := ix.chunksByNode[nodeID]; len(list) > 0 {
		return list[0]
	}
	return -1
}

// subtreeChunks returns all chunk positions owned by the subtree rooted at
// nodeID.
func (ix *index) subtreeChunks(nodeID string) []int {
	start, ok := ix.tree.Index(nodeID)
	if !ok {
		return nil
	}
	var out []int
	var visit func(int)
	visit = func(i int) {
		out = append(out, ix.chunksByNode[ix.tree.Nodes[i].ID]...)
		for _, c := range ix.tree.Nodes[i].Children {
			visit(c)
		}
	}
	visit(start)
	return out
}

// resolveCitation maps a citation to a node id: exact numbering match
// first, then normalized title match.
func (ix *index) resolveCitation(numbering, title string) (string, bool) {
	if numbering != "" {
		if id, ok := ix.byNumbering[normalizeNumbering(numbering)]; ok {
			return id, true
		}
	}
	if title != "" {
		if id, ok := ix.byTitle[normalizeTitle(title)]; ok {
			return id, true
		}
	}
	return "", false
}

// ---------------------------------------------------------------------------
// normalization
// ---------------------------------------------------------------------------

var (
	reThreshold   = regexp.MustCompile(`(?i)(?:\$[\d,]+(?:\.\d+)?|\d{1,3}(?:\.\d+)?\s*%|\d\.\d{2}x?|\b\d{3}\b|\b\d+\s*months?\b)`)
	reTrailingDot = regexp.MustCompile(`\.+$`)
)

// normalizeNumbering strips trailing dots: "3.2." and "3.2" resolve
// identically.
func normalizeNumbering(n string) string {
	return reTrailingDot.ReplaceAllString(strings.TrimSpace(n), "")
}

// normalizeTitle lowercases and collapses whitespace.
func normalizeTitle(t string) string {
	return strings.Join(strings.Fields(strings.ToLower(t)), " ")
}

// NormalizeThresholds extracts numeric anchors (dollar amounts,
// percentages, ratio multiples, FICO-style scores, month counts) in a
// canonical lowercase, whitespace-free form.
func NormalizeThresholds(text string) []string {
	seen := map[string]bool{}
	var out []string
	for _, m := range reThreshold.FindAllString(text, -1) {
		key := strings.ToLower(strings.ReplaceAll(strings.ReplaceAll(m, " ", ""), ",", ""))
		if !seen[key] {
			seen[key] = true
			out = append(out, key)
		}
	}
	return out
}

// sharedAnchors returns the intersection of two anchor sets.
func sharedAnchors(a, b []string) []string {
	set := make(map[string]bool, len(a))
	for _, x := range a {
		set[x] = true
	}
	var out []string
	for _, y := range b {
		if set[y] {
			out = append(out, y)
		}
	}
	return out
}
