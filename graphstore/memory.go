package graphstore

import (
	"context"
	"sync"

	"github.com/guidegraph/guidegraph/pkgmodel"
)

// Memory is an in-memory Store used by tests and as the reference for
// MERGE semantics: nodes keyed by id, edges keyed by (from, to, type),
// writes applied atomically.
type Memory struct {
	mu     sync.Mutex
	closed bool

	nodes map[string]NodeRecord          // id -> record
	edges map[[3]string]EdgeRecord       // (type, from, to) -> record
	docs  map[string]map[string]bool     // document id -> node ids written for it
}

// NewMemory creates an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{
		nodes: make(map[string]NodeRecord),
		edges: make(map[[3]string]EdgeRecord),
		docs:  make(map[string]map[string]bool),
	}
}

// PersistPackage merges the package tiers.
func (m *Memory) PersistPackage(ctx context.Context, pkg *pkgmodel.Package) error {
	nodes, edges := BuildPackageRecords(pkg)
	return m.apply(ctx, "", nodes, edges)
}

// PersistDocument merges a full document write set atomically.
func (m *Memory) PersistDocument(ctx context.Context, g *DocumentGraph) error {
	nodes, edges, err := BuildDocumentRecords(g)
	if err != nil {
		return err
	}
	return m.apply(ctx, g.DocumentID, nodes, edges)
}

// MergeEdges applies extra edges (inter-document pass). Endpoints must
// already exist in the graph.
func (m *Memory) MergeEdges(ctx context.Context, edges []EdgeRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrStoreClosed
	}
	for _, e := range edges {
		if _, ok := m.nodes[e.From]; !ok {
			return ErrDanglingEdge
		}
		if _, ok := m.nodes[e.To]; !ok {
			return ErrDanglingEdge
		}
	}
	for _, e := range edges {
		m.edges[[3]string{string(e.Type), e.From, e.To}] = e
	}
	return nil
}

func (m *Memory) apply(ctx context.Context, documentID string, nodes []NodeRecord, edges []EdgeRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrStoreClosed
	}
	for _, n := range nodes {
		m.nodes[n.ID] = n
		if documentID != "" {
			if m.docs[documentID] == nil {
				m.docs[documentID] = make(map[string]bool)
			}
			m.docs[documentID][n.ID] = true
		}
	}
	for _, e := range edges {
		m.edges[[3]string{string(e.Type), e.From, e.To}] = e
	}
	return nil
}

// DocumentStats counts nodes and edges in the document's write set.
func (m *Memory) DocumentStats(ctx context.Context, documentID string) (Stats, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return Stats{}, ErrStoreClosed
	}
	stats := Stats{Nodes: map[Label]int{}, Edges: map[EdgeType]int{}}
	ids := m.docs[documentID]
	for id := range ids {
		stats.Nodes[m.nodes[id].Label]++
	}
	for key, e := range m.edges {
		if ids[e.From] || ids[e.To] {
			stats.Edges[EdgeType(key[0])]++
		}
	}
	return stats, nil
}

// TotalNodes reports the number of distinct nodes in the graph.
func (m *Memory) TotalNodes() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.nodes)
}

// TotalEdges reports the number of distinct edges in the graph.
func (m *Memory) TotalEdges() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.edges)
}

// Node returns a stored node record by id.
func (m *Memory) Node(id string) (NodeRecord, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n, ok := m.nodes[id]
	return n, ok
}

// Close marks the store closed.
func (m *Memory) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

var _ Store = (*Memory)(nil)
