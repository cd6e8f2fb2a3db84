package pipeline

import (
	"time"

	"github.com/guidegraph/guidegraph/relations"
)

// StageFailure is a typed failure record; stage boundaries convert
// exceptions into these instead of propagating them.
type StageFailure struct {
	Stage string `json:"stage"`
	Error string `json:"error"`
}

// Report is the per-document processing summary.
type Report struct {
	DocumentID     string  `json:"document_id"`
	Route          string  `json:"route"`
	FallbackReason string  `json:"fallback_reason,omitempty"`
	StructureScore float64 `json:"structure_score"`

	ChunkCount         int `json:"chunk_count"`
	RelationshipCount  int `json:"relationship_count"`
	InterDocumentCount int `json:"inter_document_count,omitempty"`
	EntityCount        int `json:"entity_count"`
	TreeCount          int `json:"tree_count"`
	// TreesComplete counts trees that validated without manual-review
	// shortfall; flagged trees are excluded from this quality metric.
	TreesComplete int `json:"trees_complete"`

	StageLatency        map[string]time.Duration `json:"stage_latency"`
	RelationshipMetrics *relations.Metrics       `json:"relationship_metrics,omitempty"`
	Failures            []StageFailure           `json:"failures,omitempty"`
	Elapsed             time.Duration            `json:"elapsed"`
}

// Succeeded reports whether the document persisted: either without
// failures, or through a flat fallback that completed after the
// hierarchical path failed.
func (r Report) Succeeded() bool {
	for _, f := range r.Failures {
		if f.Stage == "flat" {
			return false
		}
	}
	return len(r.Failures) == 0 || r.Route == RouteFlat && r.ChunkCount > 0
}
