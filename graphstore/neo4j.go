package graphstore

import (
	"context"
	"fmt"

	"github.com/cenkalti/backoff/v4"
	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"github.com/guidegraph/guidegraph/pkgmodel"
)

// Neo4j is the Cypher-backed graph store. Writes go through a single
// managed write transaction per document; the driver's id-keyed MERGE
// statements give the same idempotence as the embedded backend.
type Neo4j struct {
	driver   neo4j.DriverWithContext
	database string
}

// Neo4jConfig carries the connection settings.
type Neo4jConfig struct {
	URI      string
	Username string
	Password string
	Database string // default "neo4j"
}

// NewNeo4j connects and verifies the driver.
func NewNeo4j(ctx context.Context, cfg Neo4jConfig) (*Neo4j, error) {
	driver, err := neo4j.NewDriverWithContext(cfg.URI, neo4j.BasicAuth(cfg.Username, cfg.Password, ""))
	if err != nil {
		return nil, fmt.Errorf("creating neo4j driver: %w", err)
	}
	if err := driver.VerifyConnectivity(ctx); err != nil {
		driver.Close(ctx)
		return nil, fmt.Errorf("verifying neo4j connectivity: %w", err)
	}
	db := cfg.Database
	if db == "" {
		db = "neo4j"
	}
	return &Neo4j{driver: driver, database: db}, nil
}

// PersistPackage merges the package tiers and slots.
func (n *Neo4j) PersistPackage(ctx context.Context, pkg *pkgmodel.Package) error {
	nodes, edges := BuildPackageRecords(pkg)
	return n.write(ctx, nodes, edges)
}

// PersistDocument merges the document write set in one transaction.
func (n *Neo4j) PersistDocument(ctx context.Context, g *DocumentGraph) error {
	nodes, edges, err := BuildDocumentRecords(g)
	if err != nil {
		return err
	}
	if g.Embeddings != nil {
		for i := range nodes {
			if nodes[i].Label != LabelChunk {
				continue
			}
			if emb, ok := g.Embeddings[nodes[i].ID]; ok {
				nodes[i].Props["embedding"] = emb
			}
		}
	}
	return n.write(ctx, nodes, edges)
}

// MergeEdges applies cross-document edges after both endpoints exist.
func (n *Neo4j) MergeEdges(ctx context.Context, edges []EdgeRecord) error {
	return n.write(ctx, nil, edges)
}

// write runs the records through one managed write transaction with
// transient retry.
func (n *Neo4j) write(ctx context.Context, nodes []NodeRecord, edges []EdgeRecord) error {
	op := func() error {
		session := n.driver.NewSession(ctx, neo4j.SessionConfig{
			DatabaseName: n.database,
			AccessMode:   neo4j.AccessModeWrite,
		})
		defer session.Close(ctx)

		_, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
			for _, node := range nodes {
				query := fmt.Sprintf("MERGE (n:%s {id: $id}) SET n += $props", node.Label)
				props := node.Props
				if props == nil {
					props = map[string]any{}
				}
				if _, err := tx.Run(ctx, query, map[string]any{"id": node.ID, "props": props}); err != nil {
					return nil, err
				}
			}
			for _, edge := range edges {
				query := fmt.Sprintf(`
					MATCH (a {id: $from}), (b {id: $to})
					MERGE (a)-[r:%s]->(b)
					SET r += $props`, edge.Type)
				props := edge.Props
				if props == nil {
					props = map[string]any{}
				}
				if _, err := tx.Run(ctx, query, map[string]any{"from": edge.From, "to": edge.To, "props": props}); err != nil {
					return nil, err
				}
			}
			return nil, nil
		})
		if err == nil {
			return nil
		}
		if neo4j.IsRetryable(err) {
			return err
		}
		return backoff.Permanent(err)
	}
	return backoff.Retry(op, retryPolicy(ctx))
}

// DocumentStats counts nodes and edges attached to a document.
func (n *Neo4j) DocumentStats(ctx context.Context, documentID string) (Stats, error) {
	stats := Stats{Nodes: map[Label]int{}, Edges: map[EdgeType]int{}}
	session := n.driver.NewSession(ctx, neo4j.SessionConfig{
		DatabaseName: n.database,
		AccessMode:   neo4j.AccessModeRead,
	})
	defer session.Close(ctx)

	_, err := session.ExecuteRead(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		res, err := tx.Run(ctx, `
			MATCH (n {document_id: $doc})
			RETURN labels(n)[0] AS label, count(n) AS count`,
			map[string]any{"doc": documentID})
		if err != nil {
			return nil, err
		}
		for res.Next(ctx) {
			rec := res.Record()
			label, _ := rec.Get("label")
			count, _ := rec.Get("count")
			stats.Nodes[Label(label.(string))] = int(count.(int64))
		}
		if err := res.Err(); err != nil {
			return nil, err
		}

		eres, err := tx.Run(ctx, `
			MATCH (n {document_id: $doc})-[r]->()
			RETURN type(r) AS edge_type, count(r) AS count`,
			map[string]any{"doc": documentID})
		if err != nil {
			return nil, err
		}
		for eres.Next(ctx) {
			rec := eres.Record()
			et, _ := rec.Get("edge_type")
			count, _ := rec.Get("count")
			stats.Edges[EdgeType(et.(string))] = int(count.(int64))
		}
		return nil, eres.Err()
	})
	return stats, err
}

// Close shuts the driver down.
func (n *Neo4j) Close() error {
	return n.driver.Close(context.Background())
}

var _ Store = (*Neo4j)(nil)
