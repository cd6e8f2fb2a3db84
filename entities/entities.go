// Package entities extracts mortgage-domain entities from chunks with
// their navigation context. A vocabulary and pattern pass covers every
// node; an LLM pass supplements decision-flow sections, where the
// densest domain language lives.
package entities

import (
	"fmt"

	"github.com/cespare/xxhash/v2"
)

// Type is one of the ten domain entity kinds. Closed set.
type Type string

const (
	LoanProgram       Type = "LOAN_PROGRAM"
	BorrowerType      Type = "BORROWER_TYPE"
	NumericThreshold  Type = "NUMERIC_THRESHOLD"
	IncomeType        Type = "INCOME_TYPE"
	AssetType         Type = "ASSET_TYPE"
	PropertyType      Type = "PROPERTY_TYPE"
	DocumentationType Type = "DOCUMENTATION_TYPE"
	OccupancyType     Type = "OCCUPANCY_TYPE"
	CreditEvent       Type = "CREDIT_EVENT"
	GuidelineSection  Type = "GUIDELINE_SECTION"
)

// KnownType reports whether t is in the closed set.
func KnownType(t Type) bool {
	switch t {
	case LoanProgram, BorrowerType, NumericThreshold, IncomeType, AssetType,
		PropertyType, DocumentationType, OccupancyType, CreditEvent, GuidelineSection:
		return true
	}
	return false
}

// Entity is one extracted domain entity.
type Entity struct {
	ID             string  `json:"id"`
	Type           Type    `json:"type"`
	PrimaryMention string  `json:"primary_mention"`
	Normalized     string  `json:"normalized,omitempty"`
	NodeID         string  `json:"node_id"`
	NavigationPath []string `json:"navigation_path,omitempty"`
	Confidence     float64 `json:"confidence"`
}

// Relationship is an entity-level edge.
type Relationship struct {
	SourceID string `json:"source_id"`
	TargetID string `json:"target_id"`
	Kind     string `json:"kind"`
}

// Entity-relationship kinds emitted by the extractor.
const (
	KindHasThreshold  = "HAS_THRESHOLD"
	KindMentionedWith = "MENTIONED_WITH"
)

// entityID derives a stable id from the owning document, node, type,
// mention, and normalized value, so re-runs reproduce identical ids.
func entityID(documentID, nodeID string, t Type, mention, normalized string) string {
	h := xxhash.New()
	fmt.Fprintf(h, "%s|%s|%s|%s|%s", documentID, nodeID, t, mention, normalized)
	return fmt.Sprintf("ent_%016x", h.Sum64())
}
