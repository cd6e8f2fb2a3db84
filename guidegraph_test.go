package guidegraph

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/guidegraph/guidegraph/graphstore"
	"github.com/guidegraph/guidegraph/pipeline"
	"github.com/guidegraph/guidegraph/pkgmodel"
)

const guidelineFixture = `CHAPTER 1 CREDIT POLICY

1.1 Credit Scores
The minimum credit score is 660 for all programs. Reserves of 6 months
are required per the eligibility matrix. See Section 1.2 for decisions.

1.2 Decision Criteria
If the credit score is below 660 the loan is declined. When
compensating factors are documented the file is referred for review.
All remaining loans are approved.
`

const matrixFixture = `PROGRAM MATRIX

1.1 Limits
FICO      LTV      Loan Amount
660       80%      $1,000,000
700       75%      $2,000,000
`

func testEngine(t *testing.T) Engine {
	t.Helper()
	cfg := DefaultConfig()
	cfg.Graph.Backend = "memory"
	cfg.LLM = LLMConfig{} // regex paths only
	cfg.StructureScoreFloor = 0.2
	cfg.MinChunkTokens = 5

	eng, err := New(t.Context(), cfg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { eng.Close() })
	return eng
}

func writeFixture(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("writing fixture: %v", err)
	}
	return path
}

func TestEngineEndToEnd(t *testing.T) {
	eng := testEngine(t)

	pkg, err := eng.CreatePackage(t.Context(), pkgmodel.CategoryNQM, []pkgmodel.ProductSpec{
		{Name: "Flex Select", Priority: 1, Programs: []pkgmodel.ProgramSpec{{Code: "STD"}}},
	})
	if err != nil {
		t.Fatalf("CreatePackage: %v", err)
	}

	guidePath := writeFixture(t, "guide.txt", guidelineFixture)
	matrixPath := writeFixture(t, "matrix.txt", matrixFixture)

	prod := pkg.Products[0]
	if _, err := eng.BindDocument(pkg, prod.Slots[0].SlotID, guidePath, pkgmodel.DocGuidelines); err != nil {
		t.Fatalf("binding guidelines: %v", err)
	}
	if _, err := eng.BindDocument(pkg, prod.Programs[0].Slots[0].SlotID, matrixPath, pkgmodel.DocMatrix); err != nil {
		t.Fatalf("binding matrix: %v", err)
	}

	reports, err := eng.ProcessPackage(t.Context(), pkg)
	if err != nil {
		t.Fatalf("ProcessPackage: %v", err)
	}
	if len(reports) != 2 {
		t.Fatalf("reports = %d, want 2", len(reports))
	}

	for _, r := range reports {
		if r.Route != pipeline.RouteHierarchical {
			t.Errorf("doc %s route = %s (%s)", r.DocumentID, r.Route, r.FallbackReason)
		}
		if r.ChunkCount == 0 {
			t.Errorf("doc %s produced no chunks", r.DocumentID)
		}
	}
	// Guidelines first.
	if reports[0].TreeCount != 1 {
		t.Errorf("guidelines TreeCount = %d, want 1", reports[0].TreeCount)
	}

	mem := eng.Store().(*graphstore.Memory)
	if mem.TotalNodes() == 0 || mem.TotalEdges() == 0 {
		t.Error("nothing persisted")
	}

	for _, slot := range pkg.AllSlots() {
		if slot.UploadStatus == pkgmodel.UploadProcessing {
			t.Errorf("slot %s left in processing", slot.SlotID)
		}
	}
}

func TestEngineRejectsEmptyPackage(t *testing.T) {
	eng := testEngine(t)
	pkg, err := eng.CreatePackage(t.Context(), pkgmodel.CategoryRTL, []pkgmodel.ProductSpec{{Name: "Bridge"}})
	if err != nil {
		t.Fatalf("CreatePackage: %v", err)
	}
	if _, err := eng.ProcessPackage(t.Context(), pkg); err == nil {
		t.Error("expected error for package with no bound documents")
	}
}

func TestEngineRejectsUnknownCategory(t *testing.T) {
	eng := testEngine(t)
	_, err := eng.CreatePackage(t.Context(), "HELOC", []pkgmodel.ProductSpec{{Name: "X"}})
	if err == nil {
		t.Error("expected unknown category error")
	}
}

func TestConfigDefaults(t *testing.T) {
	cfg := DefaultConfig()
	if cfg.MaxDocChars.Guidelines != 600_000 || cfg.MaxDocChars.Matrix != 300_000 ||
		cfg.MaxDocChars.Procedures != 200_000 || cfg.MaxDocChars.Default != 600_000 {
		t.Errorf("MaxDocChars defaults wrong: %+v", cfg.MaxDocChars)
	}
	if cfg.TargetChunkTokens != 1500 || cfg.ChunkOverlapTokens != 200 ||
		cfg.MinChunkTokens != 200 || cfg.MaxChunkTokens != 2000 {
		t.Error("chunker sizing defaults wrong")
	}
	if cfg.SoftDeadlineSeconds != 300 || cfg.HardDeadlineSeconds != 600 {
		t.Error("deadline defaults wrong")
	}
	if !*cfg.EnableHierarchicalChunking || !*cfg.EnableRelationshipDetection {
		t.Error("feature flags must default on")
	}
}

func TestConfigValidation(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MinChunkTokens = 3000
	if err := cfg.validate(); err == nil {
		t.Error("min > target must be rejected")
	}

	cfg = DefaultConfig()
	cfg.SoftDeadlineSeconds = 700
	if err := cfg.validate(); err == nil {
		t.Error("soft > hard deadline must be rejected")
	}

	cfg = DefaultConfig()
	cfg.Graph.Backend = "dynamo"
	if err := cfg.validate(); err == nil {
		t.Error("unknown backend must be rejected")
	}
}

func TestLoadConfig(t *testing.T) {
	path := writeFixture(t, "config.yaml", `
target_chunk_tokens: 900
structure_score_floor: 0.4
graph:
  backend: memory
llm:
  model: test-model
  requests_per_minute: 30
`)
	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.TargetChunkTokens != 900 {
		t.Errorf("TargetChunkTokens = %d", cfg.TargetChunkTokens)
	}
	if cfg.StructureScoreFloor != 0.4 {
		t.Errorf("StructureScoreFloor = %f", cfg.StructureScoreFloor)
	}
	// Defaults backfill untouched fields.
	if cfg.MaxDocChars.Guidelines != 600_000 {
		t.Error("defaults not backfilled")
	}
	if cfg.LLM.Model != "test-model" || cfg.LLM.RequestsPerMinute != 30 {
		t.Errorf("LLM config = %+v", cfg.LLM)
	}
}

func TestCeilingFor(t *testing.T) {
	m := DefaultConfig().MaxDocChars
	if m.CeilingFor("Guidelines") != 600_000 {
		t.Error("Guidelines ceiling")
	}
	if m.CeilingFor("Matrix") != 300_000 {
		t.Error("Matrix ceiling")
	}
	if m.CeilingFor("RateSheet") != 600_000 {
		t.Error("default ceiling")
	}
}
