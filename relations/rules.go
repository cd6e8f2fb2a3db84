package relations

import (
	"regexp"
	"strings"

	"github.com/guidegraph/guidegraph/chunker"
	"github.com/guidegraph/guidegraph/navigation"
)

var (
	reSeeSection  = regexp.MustCompile(`(?i)(?:see|refer to|per|as described in|described in)\s+section\s+(\d+(?:\.\d+)*)`)
	reBareSection = regexp.MustCompile(`(?i)\bsection\s+(\d+(?:\.\d+)*)`)
	reSeeTitled   = regexp.MustCompile(`(?i)(?:see|refer to)\s+(?:the\s+)?"([^"]{3,80})"`)
	reMatrixRef   = regexp.MustCompile(`(?i)(?:refer to|see|per)\s+(?:the\s+)?(?:eligibility\s+|rate\s+)?matrix\b`)

	reIfThen  = regexp.MustCompile(`(?is)\bif\b.{3,200}?\b(?:then|,)\s`)
	reOutcome = regexp.MustCompile(`(?i)\b(approve[ds]?|approval|decline[ds]?|denial|refer(?:red|ral)?)\b`)
)

// detectParentChild derives one edge per navigation parent/child pair,
// anchored at each node's first chunk. The count therefore equals
// Σ(children) over navigation nodes that own chunks on both sides.
func detectParentChild(tree *navigation.Tree, ix *index) []Relationship {
	var out []Relationship
	tree.Walk(func(idx int, n *navigation.Node) {
		from := ix.firstChunk(n.ID)
		if from < 0 {
			return
		}
		for _, childIdx := range n.Children {
			child := &tree.Nodes[childIdx]
			to := ix.firstChunk(child.ID)
			if to < 0 {
				continue
			}
			out = append(out, Relationship{
				From:       ix.chunks[from].ID,
				To:         ix.chunks[to].ID,
				Kind:       ParentChild,
				Strength:   1.0,
				Confidence: confidence(ParentChild, 3),
				Evidence: Evidence{
					RuleID:  "parent_child_nav_edge",
					Anchors: []string{n.Title, child.Title},
				},
			})
		}
	})
	return out
}

// detectSequential links consecutive chunks owned by the same node.
func detectSequential(ix *index, pairs *int) []Relationship {
	var out []Relationship
	for i := 0; i+1 < len(ix.chunks); i++ {
		*pairs++
		a, b := ix.chunks[i], ix.chunks[i+1]
		if a.NodeID != b.NodeID {
			continue
		}
		out = append(out, Relationship{
			From:       a.ID,
			To:         b.ID,
			Kind:       Sequential,
			Strength:   1.0,
			Confidence: confidence(Sequential, 3),
			Evidence:   Evidence{RuleID: "sequential_same_section"},
		})
	}
	return out
}

// detectReferences resolves explicit citations to navigation nodes and
// links the citing chunk to the cited node's first chunk. Exact
// numbering wins over title matching; match quality feeds strength.
func detectReferences(tree *navigation.Tree, ix *index, pairs *int) []Relationship {
	var out []Relationship
	for _, c := range ix.chunks {
		if c.Type == chunker.TypeHeader {
			continue
		}

		type hit struct {
			numbering string
			title     string
			strength  float64
			excerpt   string
		}
		var hits []hit
		for _, m := range reSeeSection.FindAllStringSubmatch(c.Content, -1) {
			hits = append(hits, hit{numbering: m[1], strength: 1.0, excerpt: m[0]})
		}
		for _, m := range reBareSection.FindAllStringSubmatch(c.Content, -1) {
			hits = append(hits, hit{numbering: m[1], strength: 0.7, excerpt: m[0]})
		}
		for _, m := range reSeeTitled.FindAllStringSubmatch(c.Content, -1) {
			hits = append(hits, hit{title: m[1], strength: 0.8, excerpt: m[0]})
		}

		for _, h := range hits {
			*pairs++
			nodeID, ok := ix.resolveCitation(h.numbering, h.title)
			if !ok {
				continue
			}
			to := ix.firstChunk(nodeID)
			if to < 0 {
				// The cited node may own no direct chunks; fall back to
				// its subtree.
				if sub := ix.subtreeChunks(nodeID); len(sub) > 0 {
					to = sub[0]
				}
			}
			if to < 0 || ix.chunks[to].ID == c.ID {
				continue
			}
			anchor := h.numbering
			if anchor == "" {
				anchor = h.title
			}
			out = append(out, Relationship{
				From:       c.ID,
				To:         ix.chunks[to].ID,
				Kind:       References,
				Strength:   h.strength,
				Confidence: confidence(References, 1),
				Evidence: Evidence{
					RuleID:   "explicit_citation",
					Excerpts: []string{excerpt(h.excerpt)},
					Anchors:  []string{anchor},
				},
			})
		}
	}
	return out
}

// detectDecisionBranches links each DECISION chunk to the other chunks
// co-located under the same DECISION_FLOW_SECTION: those are the
// candidate outcome criteria.
func detectDecisionBranches(tree *navigation.Tree, ix *index, pairs *int) []Relationship {
	var out []Relationship
	for i, c := range ix.chunks {
		if c.Type != chunker.TypeDecision {
			continue
		}
		anc, ok := ix.decisionAncestor[c.NodeID]
		if !ok {
			continue
		}
		for _, j := range ix.subtreeChunks(anc) {
			if j == i || ix.chunks[j].Type == chunker.TypeHeader {
				continue
			}
			*pairs++
			out = append(out, Relationship{
				From:       c.ID,
				To:         ix.chunks[j].ID,
				Kind:       DecisionBranch,
				Strength:   0.8,
				Confidence: confidence(DecisionBranch, 1),
				Evidence: Evidence{
					RuleID:  "colocated_decision_flow",
					Anchors: []string{anc},
				},
			})
		}
	}
	return out
}

// detectDecisionOutcomes links DECISION chunks to chunks carrying a
// final outcome keyword.
func detectDecisionOutcomes(tree *navigation.Tree, ix *index, pairs *int) []Relationship {
	var out []Relationship
	for i, c := range ix.chunks {
		if c.Type != chunker.TypeDecision {
			continue
		}
		anc, ok := ix.decisionAncestor[c.NodeID]
		if !ok {
			anc = c.NodeID
		}
		for _, j := range ix.subtreeChunks(anc) {
			if j == i {
				continue
			}
			*pairs++
			matches := reOutcome.FindAllString(ix.chunks[j].Content, 3)
			if len(matches) == 0 {
				continue
			}
			out = append(out, Relationship{
				From:       c.ID,
				To:         ix.chunks[j].ID,
				Kind:       DecisionOutcome,
				Strength:   0.9,
				Confidence: confidence(DecisionOutcome, len(matches)),
				Evidence: Evidence{
					RuleID:  "outcome_keyword",
					Anchors: lowered(matches),
				},
			})
		}
	}
	return out
}

// detectConditional flags IF-THEN patterns inside CONTENT chunks,
// linking the conditional chunk to its in-node successor (the text the
// consequent flows into).
func detectConditional(ix *index, pairs *int) []Relationship {
	var out []Relationship
	for i, c := range ix.chunks {
		if c.Type != chunker.TypeContent {
			continue
		}
		m := reIfThen.FindString(c.Content)
		if m == "" {
			continue
		}
		if i+1 >= len(ix.chunks) || ix.chunks[i+1].NodeID != c.NodeID {
			continue
		}
		*pairs++
		out = append(out, Relationship{
			From:       c.ID,
			To:         ix.chunks[i+1].ID,
			Kind:       Conditional,
			Strength:   0.6,
			Confidence: confidence(Conditional, 1),
			Evidence: Evidence{
				RuleID:   "if_then_pattern",
				Excerpts: []string{excerpt(m)},
			},
		})
	}
	return out
}

// detectElaborates links CONTENT chunks that textually expand MATRIX
// cells: two or more shared normalized thresholds counts as expansion.
func detectElaborates(ix *index, pairs *int) []Relationship {
	matrixChunks := ix.chunksOfType(chunker.TypeMatrix)
	if len(matrixChunks) == 0 {
		return nil
	}
	var out []Relationship
	for i, c := range ix.chunks {
		if c.Type != chunker.TypeContent {
			continue
		}
		for _, j := range matrixChunks {
			*pairs++
			shared := sharedAnchors(ix.thresholds[i], ix.thresholds[j])
			if len(shared) < 2 {
				continue
			}
			strength := float64(len(shared)) / float64(len(ix.thresholds[j])+1)
			if strength > 1 {
				strength = 1
			}
			out = append(out, Relationship{
				From:       c.ID,
				To:         ix.chunks[j].ID,
				Kind:       Elaborates,
				Strength:   strength,
				Confidence: confidence(Elaborates, len(shared)),
				Evidence: Evidence{
					RuleID:  "threshold_overlap",
					Anchors: shared,
				},
			})
		}
	}
	return out
}

// detectSummarizes finds short siblings with high lexical recall
// against a longer sibling under the same node.
func detectSummarizes(ix *index, pairs *int) []Relationship {
	var out []Relationship
	for _, positions := range ix.chunksByNode {
		for _, i := range positions {
			short := ix.chunks[i]
			if short.Type == chunker.TypeHeader {
				continue
			}
			for _, j := range positions {
				if i == j {
					continue
				}
				long := ix.chunks[j]
				if long.TokenCount == 0 || short.TokenCount*3 > long.TokenCount {
					continue
				}
				*pairs++
				recall := lexicalRecall(short.Content, long.Content)
				if recall < 0.7 {
					continue
				}
				out = append(out, Relationship{
					From:       short.ID,
					To:         long.ID,
					Kind:       Summarizes,
					Strength:   recall,
					Confidence: confidence(Summarizes, 1),
					Evidence: Evidence{
						RuleID:   "short_high_recall_sibling",
						Excerpts: []string{excerpt(short.Content)},
					},
				})
			}
		}
	}
	return out
}

// detectMatrixGuideline overlays guideline sections onto matrix cells
// sharing a normalized threshold. Emitted once per pair with the
// bidirectional flag set; the store decides traversal direction.
func detectMatrixGuideline(ix *index, pairs *int) []Relationship {
	matrixChunks := ix.chunksOfType(chunker.TypeMatrix)
	if len(matrixChunks) == 0 {
		return nil
	}
	var out []Relationship
	for i, c := range ix.chunks {
		if c.Type != chunker.TypeContent && c.Type != chunker.TypeDecision {
			continue
		}
		for _, j := range matrixChunks {
			*pairs++
			shared := sharedAnchors(ix.thresholds[i], ix.thresholds[j])
			if len(shared) == 0 {
				continue
			}
			out = append(out, Relationship{
				From:          c.ID,
				To:            ix.chunks[j].ID,
				Kind:          MatrixGuideline,
				Strength:      0.5 + 0.5*float64(min(len(shared), 3))/3.0,
				Confidence:    confidence(MatrixGuideline, len(shared)),
				Bidirectional: true,
				Evidence: Evidence{
					RuleID:  "shared_threshold_overlay",
					Anchors: shared,
				},
			})
		}
	}
	return out
}

// Document bundles one document's pipeline output for the
// inter-document pass.
type Document struct {
	ID     string
	Type   string // Guidelines, Matrix, ...
	Tree   *navigation.Tree
	Chunks []chunker.Chunk
}

// DetectInterDocument links Guidelines chunks to Matrix chunks of other
// documents in the same package: explicit matrix citations plus shared
// numeric thresholds. Edges run Guidelines → Matrix.
func (m *Manager) DetectInterDocument(docs []Document) []Relationship {
	var guidelines, matrices []Document
	for _, d := range docs {
		switch d.Type {
		case "Guidelines":
			guidelines = append(guidelines, d)
		case "Matrix":
			matrices = append(matrices, d)
		}
	}
	if len(guidelines) == 0 || len(matrices) == 0 {
		return nil
	}

	var all []chunker.Chunk
	for _, d := range docs {
		all = append(all, d.Chunks...)
	}

	var out []Relationship
	for _, g := range guidelines {
		for _, gc := range g.Chunks {
			if gc.Type == chunker.TypeHeader {
				continue
			}
			gAnchors := NormalizeThresholds(gc.Content)
			cites := reMatrixRef.MatchString(gc.Content)
			if len(gAnchors) == 0 && !cites {
				continue
			}
			for _, mx := range matrices {
				for _, mc := range mx.Chunks {
					if mc.Type != chunker.TypeMatrix {
						continue
					}
					shared := sharedAnchors(gAnchors, NormalizeThresholds(mc.Content))
					if len(shared) == 0 && !cites {
						continue
					}
					strength := 0.4
					if cites {
						strength += 0.3
					}
					if len(shared) > 0 {
						strength += 0.3
					}
					out = append(out, Relationship{
						From:       gc.ID,
						To:         mc.ID,
						Kind:       InterDocument,
						Strength:   strength,
						Confidence: confidence(InterDocument, len(shared)+boolToInt(cites)),
						Evidence: Evidence{
							RuleID:  "guideline_matrix_crossref",
							Anchors: shared,
						},
					})
				}
			}
		}
	}
	return m.Validate(out, all)
}

// chunksOfType returns positions of chunks with the given type.
func (ix *index) chunksOfType(t chunker.ChunkType) []int {
	var out []int
	for i, c := range ix.chunks {
		if c.Type == t {
			out = append(out, i)
		}
	}
	return out
}

// lexicalRecall is the fraction of short's content words found in long.
func lexicalRecall(short, long string) float64 {
	longWords := map[string]bool{}
	for _, w := range strings.Fields(strings.ToLower(long)) {
		longWords[strings.Trim(w, ".,;:()")] = true
	}
	var total, found int
	for _, w := range strings.Fields(strings.ToLower(short)) {
		w = strings.Trim(w, ".,;:()")
		if len(w) < 4 {
			continue
		}
		total++
		if longWords[w] {
			found++
		}
	}
	if total == 0 {
		return 0
	}
	return float64(found) / float64(total)
}

func lowered(ss []string) []string {
	out := make([]string, len(ss))
	for i, s := range ss {
		out[i] = strings.ToLower(s)
	}
	return out
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
