package graphstore

import (
	"fmt"

	"github.com/guidegraph/guidegraph/entities"
	"github.com/guidegraph/guidegraph/pkgmodel"
	"github.com/guidegraph/guidegraph/relations"
)

// BuildPackageRecords translates the package tiers and slots into
// records, in MERGE order (tiers top-down, then slots).
func BuildPackageRecords(pkg *pkgmodel.Package) ([]NodeRecord, []EdgeRecord) {
	var nodes []NodeRecord
	var edges []EdgeRecord

	nodes = append(nodes, NodeRecord{
		Label: LabelCategory,
		ID:    string(pkg.Category),
		Props: map[string]any{"name": string(pkg.Category)},
	})

	for _, prod := range pkg.Products {
		nodes = append(nodes, NodeRecord{
			Label: LabelProduct,
			ID:    prod.ID,
			Props: map[string]any{
				"name":       prod.Name,
				"package_id": pkg.ID,
				"priority":   prod.Priority,
				"version":    pkg.Version.String(),
				"status":     string(pkg.Status),
			},
		})
		edges = append(edges, EdgeRecord{Type: EdgeContains, From: string(pkg.Category), To: prod.ID})

		for _, slot := range prod.Slots {
			nodes = append(nodes, slotRecord(slot))
			edges = append(edges, EdgeRecord{Type: EdgeSlotFor, From: slot.SlotID, To: prod.ID})
		}

		for _, prog := range prod.Programs {
			nodes = append(nodes, NodeRecord{
				Label: LabelProgram,
				ID:    prog.ID,
				Props: map[string]any{"code": prog.Code, "product_id": prod.ID},
			})
			edges = append(edges, EdgeRecord{Type: EdgeContains, From: prod.ID, To: prog.ID})

			for _, slot := range prog.Slots {
				nodes = append(nodes, slotRecord(slot))
				edges = append(edges, EdgeRecord{Type: EdgeSlotFor, From: slot.SlotID, To: prog.ID})
			}
		}
	}
	return nodes, edges
}

func slotRecord(slot *pkgmodel.ExpectedDocument) NodeRecord {
	return NodeRecord{
		Label: LabelExpectedDocument,
		ID:    slot.SlotID,
		Props: map[string]any{
			"document_type": string(slot.DocumentType),
			"required":      slot.Required,
			"upload_status": string(slot.UploadStatus),
		},
	}
}

// BuildDocumentRecords translates one document's pipeline output into
// node and edge records following the documented write order: tiers and
// slot first, then the document, navigation nodes, chunks, entities,
// chunk relationships, and decision trees. Every edge endpoint is
// checked against the write set; a dangling endpoint aborts the build.
func BuildDocumentRecords(g *DocumentGraph) ([]NodeRecord, []EdgeRecord, error) {
	var nodes []NodeRecord
	var edges []EdgeRecord

	if g.Package != nil {
		pn, pe := BuildPackageRecords(g.Package)
		nodes = append(nodes, pn...)
		edges = append(edges, pe...)
	}

	// Document node, attached to its slot's owning tier: INCLUDES for
	// program-level documents, CONTAINS for product-level.
	nodes = append(nodes, NodeRecord{
		Label: LabelDocument,
		ID:    g.DocumentID,
		Props: map[string]any{
			"document_type": string(g.DocumentType),
			"content_hash":  g.ContentHash,
		},
	})
	if g.Package != nil && g.SlotID != "" {
		if slot, ok := g.Package.FindSlot(g.SlotID); ok {
			if slot.ProgramID != "" {
				edges = append(edges, EdgeRecord{Type: EdgeIncludes, From: slot.ProgramID, To: g.DocumentID})
			} else if slot.ProductID != "" {
				edges = append(edges, EdgeRecord{Type: EdgeContains, From: slot.ProductID, To: g.DocumentID})
			}
		}
	}

	// Navigation nodes with CONTAINS edges top-down.
	if g.Navigation != nil {
		for i := range g.Navigation.Nodes {
			n := &g.Navigation.Nodes[i]
			nodes = append(nodes, NodeRecord{
				Label: LabelNavigationNode,
				ID:    n.ID,
				Props: map[string]any{
					"document_id": g.DocumentID,
					"type":        string(n.Type),
					"title":       n.Title,
					"numbering":   n.Numbering,
					"depth":       n.Depth,
					"start":       n.Start,
					"end":         n.End,
					"synthetic":   n.Synthetic,
				},
			})
			if n.Parent >= 0 {
				edges = append(edges, EdgeRecord{
					Type: EdgeContains,
					From: g.Navigation.Nodes[n.Parent].ID,
					To:   n.ID,
				})
			}
		}
	}

	// Chunks with PART_OF, BELONGS_TO, and NEXT_CHUNK edges.
	for i := range g.Chunks {
		c := &g.Chunks[i]
		props := map[string]any{
			"content":     c.Content,
			"chunk_type":  string(c.Type),
			"depth":       c.Depth,
			"position":    c.Position,
			"token_count": c.TokenCount,
			"quality":     c.QualityScore,
		}
		nodes = append(nodes, NodeRecord{Label: LabelChunk, ID: c.ID, Props: props})
		edges = append(edges, EdgeRecord{Type: EdgePartOf, From: c.ID, To: g.DocumentID})
		if g.Navigation != nil && c.NodeID != "" {
			edges = append(edges, EdgeRecord{Type: EdgeBelongsTo, From: c.ID, To: c.NodeID})
		}
		if i+1 < len(g.Chunks) {
			edges = append(edges, EdgeRecord{Type: EdgeNextChunk, From: c.ID, To: g.Chunks[i+1].ID})
		}
	}

	// Entities with HAS_ENTITY from their node's first chunk, plus
	// entity-level edges.
	firstChunkOfNode := map[string]string{}
	for _, c := range g.Chunks {
		if _, ok := firstChunkOfNode[c.NodeID]; !ok {
			firstChunkOfNode[c.NodeID] = c.ID
		}
	}
	for _, ent := range g.Entities {
		nodes = append(nodes, NodeRecord{
			Label: LabelEntity,
			ID:    ent.ID,
			Props: map[string]any{
				"document_id": g.DocumentID,
				"entity_type": string(ent.Type),
				"mention":     ent.PrimaryMention,
				"normalized":  ent.Normalized,
				"confidence":  ent.Confidence,
			},
		})
		if chunkID, ok := firstChunkOfNode[ent.NodeID]; ok {
			edges = append(edges, EdgeRecord{Type: EdgeHasEntity, From: chunkID, To: ent.ID})
		}
	}
	for _, rel := range g.EntityRels {
		edges = append(edges, EdgeRecord{Type: entityRelEdge(rel.Kind), From: rel.SourceID, To: rel.TargetID})
	}

	// Chunk relationships as typed edges.
	edges = append(edges, chunkRelEdges(g.ChunkRels)...)

	// Decision trees: nodes, typed edges, and an anchor from the
	// owning navigation section to the tree's ROOT.
	for ti := range g.Trees {
		t := &g.Trees[ti]
		for i := range t.Nodes {
			dn := &t.Nodes[i]
			nodes = append(nodes, NodeRecord{
				Label: LabelDecisionTreeNode,
				ID:    dn.ID,
				Props: map[string]any{
					"document_id":         g.DocumentID,
					"section_id":          t.SectionID,
					"role":                string(dn.Role),
					"outcome":             string(dn.Outcome),
					"precedence":          dn.Precedence,
					"expression":          dn.Expression,
					"synthesized":         dn.Synthesized,
					"needs_manual_review": t.NeedsManualReview,
				},
			})
		}
		for _, e := range t.Edges {
			edges = append(edges, EdgeRecord{Type: EdgeType(e.Kind), From: e.From, To: e.To})
		}
		if root, ok := t.Root(); ok && g.Navigation != nil {
			if _, exists := g.Navigation.Index(t.SectionID); exists {
				edges = append(edges, EdgeRecord{Type: EdgeContains, From: t.SectionID, To: root.ID})
			}
		}
	}

	if err := checkEndpoints(nodes, edges); err != nil {
		return nil, nil, err
	}
	return nodes, edges, nil
}

// chunkRelEdges converts chunk relationships to edge records. Used for
// the intra-document write set and for the cross-document follow-up
// merge, whose endpoints live in previously written sets.
func chunkRelEdges(rels []relations.Relationship) []EdgeRecord {
	var out []EdgeRecord
	for _, rel := range rels {
		et, ok := chunkRelEdge(rel.Kind)
		if !ok {
			continue
		}
		props := map[string]any{
			"strength":   rel.Strength,
			"confidence": rel.Confidence,
			"rule_id":    rel.Evidence.RuleID,
		}
		if rel.Bidirectional {
			props["bidirectional"] = true
		}
		out = append(out, EdgeRecord{Type: et, From: rel.From, To: rel.To, Props: props})
	}
	return out
}

// InterDocumentEdges exposes the conversion for cross-document
// relationships merged after both documents are persisted.
func InterDocumentEdges(rels []relations.Relationship) []EdgeRecord {
	return chunkRelEdges(rels)
}

// chunkRelEdge maps relationship kinds onto schema edge types.
// Chunk-level PARENT_CHILD containment reuses the CONTAINS edge type;
// SEQUENTIAL reuses NEXT_CHUNK.
func chunkRelEdge(kind relations.Kind) (EdgeType, bool) {
	switch kind {
	case relations.ParentChild:
		return EdgeContains, true
	case relations.Sequential:
		return EdgeNextChunk, true
	case relations.References:
		return EdgeReferences, true
	case relations.DecisionBranch:
		return EdgeDecisionBranch, true
	case relations.DecisionOutcome:
		return EdgeDecisionOutcome, true
	case relations.Conditional:
		return EdgeConditional, true
	case relations.Elaborates:
		return EdgeElaborates, true
	case relations.Summarizes:
		return EdgeSummarizes, true
	case relations.InterDocument:
		return EdgeInterDocument, true
	case relations.MatrixGuideline:
		return EdgeMatrixGuideline, true
	default:
		return "", false
	}
}

// entityRelEdge maps entity-level relationship kinds onto schema edge
// types: a program implementing a threshold criterion, and plain
// co-mention references.
func entityRelEdge(kind string) EdgeType {
	switch kind {
	case entities.KindHasThreshold:
		return EdgeImplements
	default:
		return EdgeReferences
	}
}

// checkEndpoints rejects edges whose endpoints are absent from the
// write set.
func checkEndpoints(nodes []NodeRecord, edges []EdgeRecord) error {
	known := make(map[string]bool, len(nodes))
	for _, n := range nodes {
		known[n.ID] = true
	}
	for _, e := range edges {
		if !known[e.From] || !known[e.To] {
			return fmt.Errorf("%w: %s %s -> %s", ErrDanglingEdge, e.Type, e.From, e.To)
		}
	}
	return nil
}
