package graphstore

import (
	"context"
	"database/sql"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"strings"
	"time"

	sqlite_vec "github.com/asg017/sqlite-vec-go-bindings/cgo"
	"github.com/cenkalti/backoff/v4"
	"github.com/guidegraph/guidegraph/pkgmodel"
	_ "github.com/mattn/go-sqlite3"
)

func init() {
	sqlite_vec.Auto()
}

// sqliteSchema is the embedded labelled-property-graph DDL. Nodes and
// edges are keyed by stable ids so re-runs MERGE instead of duplicating.
const sqliteSchema = `
CREATE TABLE IF NOT EXISTS nodes (
    label TEXT NOT NULL,
    id TEXT NOT NULL,
    document_id TEXT,
    props JSON,
    created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
    updated_at DATETIME DEFAULT CURRENT_TIMESTAMP,
    PRIMARY KEY (id)
);
CREATE INDEX IF NOT EXISTS idx_nodes_label ON nodes(label);
CREATE INDEX IF NOT EXISTS idx_nodes_document ON nodes(document_id);

CREATE TABLE IF NOT EXISTS edges (
    edge_type TEXT NOT NULL,
    from_id TEXT NOT NULL REFERENCES nodes(id) ON DELETE CASCADE,
    to_id TEXT NOT NULL REFERENCES nodes(id) ON DELETE CASCADE,
    props JSON,
    created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
    PRIMARY KEY (edge_type, from_id, to_id)
);
CREATE INDEX IF NOT EXISTS idx_edges_from ON edges(from_id);
CREATE INDEX IF NOT EXISTS idx_edges_to ON edges(to_id);
`

// vecSchema adds the optional chunk-embedding table when a dimension is
// configured.
func vecSchema(dim int) string {
	return fmt.Sprintf(`
CREATE VIRTUAL TABLE IF NOT EXISTS vec_chunks USING vec0(
    chunk_id TEXT PRIMARY KEY,
    embedding float[%d]
);`, dim)
}

// SQLite is the embedded graph store backend.
type SQLite struct {
	db           *sql.DB
	embeddingDim int
}

// retryPolicy builds the transient-error backoff: at least three
// attempts with jittered exponential delays.
func retryPolicy(ctx context.Context) backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 100 * time.Millisecond
	b.MaxElapsedTime = 15 * time.Second
	return backoff.WithContext(backoff.WithMaxRetries(b, 4), ctx)
}

// NewSQLite opens (or creates) the embedded graph database at path.
// embeddingDim of zero disables the vector table.
func NewSQLite(dbPath string, embeddingDim int) (*SQLite, error) {
	dir := filepath.Dir(dbPath)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("creating db directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_foreign_keys=on&_busy_timeout=30000")
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	if _, err := db.Exec(sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}
	if embeddingDim > 0 {
		if _, err := db.Exec(vecSchema(embeddingDim)); err != nil {
			db.Close()
			return nil, fmt.Errorf("creating vector table: %w", err)
		}
	}

	db.SetMaxOpenConns(4)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(30 * time.Minute)

	return &SQLite{db: db, embeddingDim: embeddingDim}, nil
}

// PersistPackage merges the package tiers and slots.
func (s *SQLite) PersistPackage(ctx context.Context, pkg *pkgmodel.Package) error {
	nodes, edges := BuildPackageRecords(pkg)
	return s.applyWithRetry(ctx, "", nodes, edges, nil)
}

// PersistDocument merges the document write set in one transaction,
// retrying transient failures with backoff.
func (s *SQLite) PersistDocument(ctx context.Context, g *DocumentGraph) error {
	nodes, edges, err := BuildDocumentRecords(g)
	if err != nil {
		return err
	}
	return s.applyWithRetry(ctx, g.DocumentID, nodes, edges, g.Embeddings)
}

// MergeEdges applies cross-document edges after both endpoints exist.
func (s *SQLite) MergeEdges(ctx context.Context, edges []EdgeRecord) error {
	op := func() error {
		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return classify(err)
		}
		defer tx.Rollback()
		for _, e := range edges {
			if err := mergeEdge(ctx, tx, e); err != nil {
				return classify(err)
			}
		}
		return classify(tx.Commit())
	}
	return backoff.Retry(op, retryPolicy(ctx))
}

// applyWithRetry runs the full write set inside one transaction. A
// transient failure (busy, locked) retries from scratch; a permanent
// failure aborts with nothing written.
func (s *SQLite) applyWithRetry(ctx context.Context, documentID string, nodes []NodeRecord, edges []EdgeRecord, embeddings map[string][]float32) error {
	attempt := 0
	op := func() error {
		attempt++
		if attempt > 1 {
			slog.Warn("graphstore: retrying write", "document_id", documentID, "attempt", attempt)
		}
		return s.applyOnce(ctx, documentID, nodes, edges, embeddings)
	}
	return backoff.Retry(op, retryPolicy(ctx))
}

func (s *SQLite) applyOnce(ctx context.Context, documentID string, nodes []NodeRecord, edges []EdgeRecord, embeddings map[string][]float32) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return classify(err)
	}
	defer tx.Rollback()

	for _, n := range nodes {
		props, err := json.Marshal(n.Props)
		if err != nil {
			return backoff.Permanent(fmt.Errorf("marshaling props: %w", err))
		}
		docID := sql.NullString{}
		if documentID != "" {
			docID = sql.NullString{String: documentID, Valid: true}
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO nodes (label, id, document_id, props)
			VALUES (?, ?, ?, ?)
			ON CONFLICT(id) DO UPDATE SET
				label = excluded.label,
				props = excluded.props,
				updated_at = CURRENT_TIMESTAMP
		`, string(n.Label), n.ID, docID, string(props)); err != nil {
			return classify(err)
		}
	}

	for _, e := range edges {
		if err := mergeEdge(ctx, tx, e); err != nil {
			return classify(err)
		}
	}

	for chunkID, emb := range embeddings {
		if s.embeddingDim == 0 || len(emb) != s.embeddingDim {
			continue
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT OR REPLACE INTO vec_chunks (chunk_id, embedding) VALUES (?, ?)
		`, chunkID, serializeVector(emb)); err != nil {
			return classify(err)
		}
	}

	return classify(tx.Commit())
}

func mergeEdge(ctx context.Context, tx *sql.Tx, e EdgeRecord) error {
	props, err := json.Marshal(e.Props)
	if err != nil {
		return backoff.Permanent(fmt.Errorf("marshaling edge props: %w", err))
	}
	_, err = tx.ExecContext(ctx, `
		INSERT INTO edges (edge_type, from_id, to_id, props)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(edge_type, from_id, to_id) DO UPDATE SET
			props = excluded.props
	`, string(e.Type), e.From, e.To, string(props))
	return err
}

// classify wraps non-transient database errors as permanent so backoff
// stops retrying them.
func classify(err error) error {
	if err == nil {
		return nil
	}
	msg := strings.ToLower(err.Error())
	if strings.Contains(msg, "database is locked") ||
		strings.Contains(msg, "database table is locked") ||
		strings.Contains(msg, "busy") {
		return err
	}
	return backoff.Permanent(err)
}

// DocumentStats counts nodes and edges attached to a document.
func (s *SQLite) DocumentStats(ctx context.Context, documentID string) (Stats, error) {
	stats := Stats{Nodes: map[Label]int{}, Edges: map[EdgeType]int{}}

	rows, err := s.db.QueryContext(ctx, `
		SELECT label, COUNT(*) FROM nodes WHERE document_id = ? GROUP BY label
	`, documentID)
	if err != nil {
		return stats, err
	}
	defer rows.Close()
	for rows.Next() {
		var label string
		var count int
		if err := rows.Scan(&label, &count); err != nil {
			return stats, err
		}
		stats.Nodes[Label(label)] = count
	}
	if err := rows.Err(); err != nil {
		return stats, err
	}

	erows, err := s.db.QueryContext(ctx, `
		SELECT e.edge_type, COUNT(*)
		FROM edges e
		JOIN nodes n ON n.id = e.from_id
		WHERE n.document_id = ?
		GROUP BY e.edge_type
	`, documentID)
	if err != nil {
		return stats, err
	}
	defer erows.Close()
	for erows.Next() {
		var et string
		var count int
		if err := erows.Scan(&et, &count); err != nil {
			return stats, err
		}
		stats.Edges[EdgeType(et)] = count
	}
	return stats, erows.Err()
}

// Close closes the underlying database.
func (s *SQLite) Close() error {
	return s.db.Close()
}

// serializeVector encodes a float32 slice in sqlite-vec's little-endian
// layout.
func serializeVector(v []float32) []byte {
	buf := make([]byte, len(v)*4)
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return buf
}

var _ Store = (*SQLite)(nil)
