// Package graphstore persists pipeline output into a labelled property
// graph. The schema is logical: a record builder translates one
// document's results into node and edge records, and interchangeable
// backends (embedded SQLite, Neo4j, in-memory fake) apply them under a
// single transaction per document with MERGE semantics, so re-running a
// document leaves the graph equivalent up to timestamps.
package graphstore

import (
	"context"
	"errors"

	"github.com/guidegraph/guidegraph/chunker"
	"github.com/guidegraph/guidegraph/decision"
	"github.com/guidegraph/guidegraph/entities"
	"github.com/guidegraph/guidegraph/navigation"
	"github.com/guidegraph/guidegraph/pkgmodel"
	"github.com/guidegraph/guidegraph/relations"
)

var (
	// ErrStoreClosed is returned when operating on a closed store.
	ErrStoreClosed = errors.New("graphstore: store is closed")

	// ErrDanglingEdge is returned when an edge references a node absent
	// from the write set; the transaction is aborted, leaving no
	// partial data.
	ErrDanglingEdge = errors.New("graphstore: edge references missing node")
)

// Label is a node label in the logical schema.
type Label string

const (
	LabelCategory         Label = "Category"
	LabelProduct          Label = "Product"
	LabelProgram          Label = "Program"
	LabelDocument         Label = "Document"
	LabelExpectedDocument Label = "ExpectedDocument"
	LabelNavigationNode   Label = "NavigationNode"
	LabelChunk            Label = "Chunk"
	LabelEntity           Label = "Entity"
	LabelDecisionTreeNode Label = "DecisionTreeNode"
)

// EdgeType is an edge type in the logical schema.
type EdgeType string

const (
	EdgeContains        EdgeType = "CONTAINS"
	EdgeIncludes        EdgeType = "INCLUDES"
	EdgeSlotFor         EdgeType = "SLOT_FOR"
	EdgeBelongsTo       EdgeType = "BELONGS_TO"
	EdgePartOf          EdgeType = "PART_OF"
	EdgeNextChunk       EdgeType = "NEXT_CHUNK"
	EdgeHasEntity       EdgeType = "HAS_ENTITY"
	EdgeReferences      EdgeType = "REFERENCES"
	EdgeElaborates      EdgeType = "ELABORATES"
	EdgeImplements      EdgeType = "IMPLEMENTS"
	EdgeDecisionBranch  EdgeType = "DECISION_BRANCH"
	EdgeDecisionOutcome EdgeType = "DECISION_OUTCOME"
	EdgeConditional     EdgeType = "CONDITIONAL"
	EdgeSummarizes      EdgeType = "SUMMARIZES"
	EdgeInterDocument   EdgeType = "INTER_DOCUMENT"
	EdgeMatrixGuideline EdgeType = "MATRIX_GUIDELINE"
	EdgeIfTrue          EdgeType = "IF_TRUE"
	EdgeIfFalse         EdgeType = "IF_FALSE"
	EdgeDefaultPath     EdgeType = "DEFAULT_PATH"
	EdgeResultsIn       EdgeType = "RESULTS_IN"
	EdgeEscalatesTo     EdgeType = "ESCALATES_TO"
	EdgeVersionOf       EdgeType = "VERSION_OF"
	EdgeSnapshot        EdgeType = "SNAPSHOT"
)

// NodeRecord is one node to MERGE.
type NodeRecord struct {
	Label Label
	ID    string
	Props map[string]any
}

// EdgeRecord is one edge to MERGE, keyed by (from, to, type).
type EdgeRecord struct {
	Type  EdgeType
	From  string
	To    string
	Props map[string]any
}

// DocumentGraph bundles everything one document's pipeline run
// produced. Navigation is nil when the document was routed flat.
type DocumentGraph struct {
	Package      *pkgmodel.Package
	SlotID       string
	DocumentID   string
	DocumentType pkgmodel.DocumentType
	ContentHash  string

	Navigation *navigation.Tree
	Chunks     []chunker.Chunk
	ChunkRels  []relations.Relationship
	Entities   []entities.Entity
	EntityRels []entities.Relationship
	Trees      []decision.Tree

	// Embeddings maps chunk id to a precomputed vector; optional.
	Embeddings map[string][]float32
}

// Stats reports node and edge counts, scoped to one document when a
// document id is given.
type Stats struct {
	Nodes map[Label]int
	Edges map[EdgeType]int
}

// Store is the persistence contract. Implementations apply a write set
// atomically: on failure nothing of the document's data remains.
type Store interface {
	// PersistPackage merges the Category → Product → Program tiers and
	// expected-document slots.
	PersistPackage(ctx context.Context, pkg *pkgmodel.Package) error

	// PersistDocument merges one document's full write set in a single
	// logical transaction.
	PersistDocument(ctx context.Context, g *DocumentGraph) error

	// MergeEdges applies edges whose endpoints were written by earlier
	// persists (the inter-document pass).
	MergeEdges(ctx context.Context, edges []EdgeRecord) error

	// DocumentStats counts nodes and edges attached to a document.
	DocumentStats(ctx context.Context, documentID string) (Stats, error)

	Close() error
}
