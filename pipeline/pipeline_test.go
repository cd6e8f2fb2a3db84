package pipeline

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/guidegraph/guidegraph/chunker"
	"github.com/guidegraph/guidegraph/graphstore"
	"github.com/guidegraph/guidegraph/pkgmodel"
)

const structuredText = `CHAPTER 1 CREDIT POLICY

1.1 Credit Scores
The minimum credit score is 660 for all programs. Reserves of 6 months
are required per the eligibility matrix. See Section 1.3 for details.

1.2 Decision Criteria
If the credit score is below 660 the loan is declined. If DTI exceeds
50% the loan is declined. When compensating factors are documented the
file is referred for review. All remaining loans are approved.

1.3 Reserve Schedule
Loan Amount      Reserves      FICO
$1,000,000       6 months      660
$2,000,000       12 months     700
$3,000,000       18 months     720
`

const matrixText = `PROGRAM MATRIX

1.1 Limits
FICO      LTV      Loan Amount
660       80%      $1,000,000
700       75%      $2,000,000
`

const flatText = `This short product overview describes our lending products in plain
prose. There are no headings and no numbered sections anywhere in this
document, just a couple of descriptive paragraphs for marketing.`

// mapReader serves canned documents by reference.
type mapReader map[string]string

func (m mapReader) Read(ctx context.Context, ref string) (*Document, error) {
	text, ok := m[ref]
	if !ok {
		return nil, fmt.Errorf("no such document: %s", ref)
	}
	return &Document{Text: text, MIME: "text/plain", SizeBytes: int64(len(text))}, nil
}

func testOptions() Options {
	return Options{
		EnableHierarchical:  true,
		EnableRelationships: true,
		StructureScoreFloor: 0.2,
		Chunker:             chunker.Config{MinTokens: 5},
		MinRelationshipStrength: 0.1,
	}
}

func singleDocPackage(t *testing.T) (*pkgmodel.Package, Input) {
	t.Helper()
	pkg, err := pkgmodel.CreatePackage(pkgmodel.CategoryNQM, []pkgmodel.ProductSpec{
		{Name: "Flex", Programs: []pkgmodel.ProgramSpec{{Code: "STD"}}},
	})
	if err != nil {
		t.Fatalf("CreatePackage: %v", err)
	}
	return pkg, Input{
		DocumentID: "doc1",
		SlotID:     pkg.Products[0].Slots[0].SlotID,
		Ref:        "guide.txt",
		Type:       pkgmodel.DocGuidelines,
		Category:   pkgmodel.CategoryNQM,
	}
}

func TestHierarchicalRoute(t *testing.T) {
	store := graphstore.NewMemory()
	pkg, in := singleDocPackage(t)
	o := New(Deps{Store: store, Reader: mapReader{"guide.txt": structuredText}}, testOptions())

	report, result := o.ProcessDocument(t.Context(), pkg, in)

	if report.Route != RouteHierarchical {
		t.Fatalf("Route = %s (%s), want hierarchical", report.Route, report.FallbackReason)
	}
	if result == nil {
		t.Fatal("hierarchical run must return a result for the inter-document pass")
	}
	if report.ChunkCount == 0 || report.RelationshipCount == 0 || report.EntityCount == 0 {
		t.Errorf("counts: chunks=%d rels=%d entities=%d, want all > 0",
			report.ChunkCount, report.RelationshipCount, report.EntityCount)
	}
	if report.TreeCount != 1 {
		t.Errorf("TreeCount = %d, want 1", report.TreeCount)
	}

	stats, err := store.DocumentStats(t.Context(), "doc1")
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if stats.Nodes[graphstore.LabelNavigationNode] == 0 {
		t.Error("no NavigationNode persisted for hierarchical route")
	}
	if stats.Edges[graphstore.EdgeBelongsTo] == 0 {
		t.Error("no BELONGS_TO edges persisted")
	}

	slot, _ := pkg.FindSlot(in.SlotID)
	if slot.UploadStatus != pkgmodel.UploadCompleted {
		t.Errorf("slot status = %s, want completed", slot.UploadStatus)
	}
}

func TestFlatRouteForUnstructuredText(t *testing.T) {
	store := graphstore.NewMemory()
	pkg, in := singleDocPackage(t)
	o := New(Deps{Store: store, Reader: mapReader{"guide.txt": flatText}}, testOptions())

	report, result := o.ProcessDocument(t.Context(), pkg, in)

	if report.Route != RouteFlat {
		t.Fatalf("Route = %s, want flat", report.Route)
	}
	if report.FallbackReason != "structure_insufficient" {
		t.Errorf("FallbackReason = %q, want structure_insufficient", report.FallbackReason)
	}
	if result != nil {
		t.Error("flat runs must not feed the inter-document pass")
	}

	stats, err := store.DocumentStats(t.Context(), "doc1")
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if stats.Nodes[graphstore.LabelNavigationNode] != 0 {
		t.Error("flat route persisted navigation nodes")
	}
	if stats.Edges[graphstore.EdgeBelongsTo] != 0 {
		t.Error("flat route persisted BELONGS_TO edges")
	}
	if stats.Nodes[graphstore.LabelChunk] == 0 {
		t.Error("flat route persisted no chunks")
	}
}

func TestSizeCeilingBoundary(t *testing.T) {
	pkg, in := singleDocPackage(t)

	run := func(ceiling int) Report {
		opts := testOptions()
		opts.CeilingFor = func(string) int { return ceiling }
		o := New(Deps{Store: graphstore.NewMemory(), Reader: mapReader{"guide.txt": structuredText}}, opts)
		report, _ := o.ProcessDocument(t.Context(), pkg, in)
		return report
	}

	if r := run(len(structuredText)); r.Route != RouteHierarchical {
		t.Errorf("length == ceiling: route = %s, want hierarchical", r.Route)
	}
	if r := run(len(structuredText) - 1); r.Route != RouteFlat || r.FallbackReason != "size_ceiling_exceeded" {
		t.Errorf("length == ceiling+1: route = %s reason = %q, want flat/size_ceiling_exceeded", r.Route, r.FallbackReason)
	}
}

func TestSoftDeadlineFallsBack(t *testing.T) {
	store := graphstore.NewMemory()
	pkg, in := singleDocPackage(t)
	opts := testOptions()
	opts.SoftDeadline = time.Nanosecond
	o := New(Deps{Store: store, Reader: mapReader{"guide.txt": structuredText}}, opts)

	report, _ := o.ProcessDocument(t.Context(), pkg, in)

	if report.Route != RouteFlat {
		t.Fatalf("Route = %s, want flat", report.Route)
	}
	if report.FallbackReason != "soft_deadline_exceeded" {
		t.Errorf("FallbackReason = %q, want soft_deadline_exceeded", report.FallbackReason)
	}
	stats, _ := store.DocumentStats(t.Context(), "doc1")
	if stats.Nodes[graphstore.LabelChunk] == 0 {
		t.Error("flat fallback did not complete")
	}
}

func TestHierarchicalDisabledFlag(t *testing.T) {
	pkg, in := singleDocPackage(t)
	opts := testOptions()
	opts.EnableHierarchical = false
	o := New(Deps{Store: graphstore.NewMemory(), Reader: mapReader{"guide.txt": structuredText}}, opts)

	report, _ := o.ProcessDocument(t.Context(), pkg, in)
	if report.Route != RouteFlat || report.FallbackReason != "hierarchical_disabled" {
		t.Errorf("route = %s reason = %q", report.Route, report.FallbackReason)
	}
}

func TestRelationshipDetectionDisabled(t *testing.T) {
	store := graphstore.NewMemory()
	pkg, in := singleDocPackage(t)
	opts := testOptions()
	opts.EnableRelationships = false
	o := New(Deps{Store: store, Reader: mapReader{"guide.txt": structuredText}}, opts)

	report, _ := o.ProcessDocument(t.Context(), pkg, in)
	if report.Route != RouteHierarchical {
		t.Fatalf("Route = %s, want hierarchical", report.Route)
	}
	if report.RelationshipCount != 0 {
		t.Errorf("RelationshipCount = %d, want 0 when detection disabled", report.RelationshipCount)
	}
	stats, _ := store.DocumentStats(t.Context(), "doc1")
	if stats.Edges[graphstore.EdgeDecisionBranch] != 0 {
		t.Error("chunk relationship edges persisted despite disabled detection")
	}
}

func TestProcessPackageInterDocument(t *testing.T) {
	pkg, err := pkgmodel.CreatePackage(pkgmodel.CategoryNQM, []pkgmodel.ProductSpec{
		{Name: "Flex", Programs: []pkgmodel.ProgramSpec{{Code: "STD"}, {Code: "JMB"}, {Code: "INV"}}},
	})
	if err != nil {
		t.Fatalf("CreatePackage: %v", err)
	}
	prod := pkg.Products[0]

	reader := mapReader{"guide.txt": structuredText}
	inputs := []Input{{
		DocumentID: "guide",
		SlotID:     prod.Slots[0].SlotID,
		Ref:        "guide.txt",
		Type:       pkgmodel.DocGuidelines,
		Category:   pkgmodel.CategoryNQM,
	}}
	for i, prog := range prod.Programs {
		ref := fmt.Sprintf("matrix%d.txt", i)
		reader[ref] = matrixText
		inputs = append(inputs, Input{
			DocumentID: fmt.Sprintf("matrix%d", i),
			SlotID:     prog.Slots[0].SlotID,
			Ref:        ref,
			Type:       pkgmodel.DocMatrix,
			Category:   pkgmodel.CategoryNQM,
		})
	}

	store := graphstore.NewMemory()
	o := New(Deps{Store: store, Reader: reader}, testOptions())
	reports := o.ProcessPackage(t.Context(), pkg, inputs)

	if len(reports) != 4 {
		t.Fatalf("reports = %d, want 4", len(reports))
	}
	for _, r := range reports {
		if r.Route != RouteHierarchical {
			t.Errorf("doc %s route = %s (%s)", r.DocumentID, r.Route, r.FallbackReason)
		}
	}
	// Guidelines processed before matrices.
	if reports[0].DocumentID != "guide" {
		t.Error("Guidelines document was not processed first")
	}
	if reports[0].InterDocumentCount == 0 {
		t.Error("no INTER_DOCUMENT relationships for overlapping thresholds")
	}

	// No slot is left in processing; all are terminal.
	for _, slot := range pkg.AllSlots() {
		switch slot.UploadStatus {
		case pkgmodel.UploadProcessing:
			t.Errorf("slot %s left in processing", slot.SlotID)
		case pkgmodel.UploadCompleted, pkgmodel.UploadFailed, pkgmodel.UploadEmpty:
		default:
			t.Errorf("slot %s in unexpected state %s", slot.SlotID, slot.UploadStatus)
		}
	}
}

func TestReingestIdempotent(t *testing.T) {
	store := graphstore.NewMemory()
	pkg, in := singleDocPackage(t)
	o := New(Deps{Store: store, Reader: mapReader{"guide.txt": structuredText}}, testOptions())

	if r, _ := o.ProcessDocument(t.Context(), pkg, in); r.Route != RouteHierarchical {
		t.Fatalf("first run route = %s", r.Route)
	}
	nodes, edges := store.TotalNodes(), store.TotalEdges()

	if r, _ := o.ProcessDocument(t.Context(), pkg, in); r.Route != RouteHierarchical {
		t.Fatalf("second run route = %s", r.Route)
	}
	if store.TotalNodes() != nodes {
		t.Errorf("re-ingest grew nodes %d -> %d", nodes, store.TotalNodes())
	}
	if store.TotalEdges() != edges {
		t.Errorf("re-ingest grew edges %d -> %d", edges, store.TotalEdges())
	}
}

func TestReaderFailureRecorded(t *testing.T) {
	pkg, in := singleDocPackage(t)
	o := New(Deps{Store: graphstore.NewMemory(), Reader: mapReader{}}, testOptions())

	report, _ := o.ProcessDocument(t.Context(), pkg, in)
	if len(report.Failures) == 0 || report.Failures[0].Stage != "read" {
		t.Errorf("expected a read stage failure, got %+v", report.Failures)
	}
	slot, _ := pkg.FindSlot(in.SlotID)
	if slot.UploadStatus != pkgmodel.UploadFailed {
		t.Errorf("slot status = %s, want failed", slot.UploadStatus)
	}
}

func TestMetricsCounters(t *testing.T) {
	pkg, in := singleDocPackage(t)
	o := New(Deps{Store: graphstore.NewMemory(), Reader: mapReader{"guide.txt": structuredText}}, testOptions())

	o.ProcessDocument(t.Context(), pkg, in)
	snap := o.Metrics().Snapshot()
	if snap.Documents != 1 || snap.Chunks == 0 {
		t.Errorf("snapshot = %+v", snap)
	}
}

func TestStructureScoreRecorded(t *testing.T) {
	pkg, in := singleDocPackage(t)
	o := New(Deps{Store: graphstore.NewMemory(), Reader: mapReader{"guide.txt": structuredText}}, testOptions())
	report, _ := o.ProcessDocument(t.Context(), pkg, in)
	if report.StructureScore <= 0 {
		t.Error("structure score not recorded")
	}
	if !strings.Contains(report.Route, "hier") {
		t.Errorf("Route = %s", report.Route)
	}
}
