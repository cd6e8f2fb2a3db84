// Package pipeline routes documents between the hierarchical
// document-understanding path and the flat fallback chunker, runs the
// enrichment stages, and persists results through the graph store.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/guidegraph/guidegraph/chunker"
	"github.com/guidegraph/guidegraph/decision"
	"github.com/guidegraph/guidegraph/entities"
	"github.com/guidegraph/guidegraph/flatchunk"
	"github.com/guidegraph/guidegraph/graphstore"
	"github.com/guidegraph/guidegraph/llm"
	"github.com/guidegraph/guidegraph/navigation"
	"github.com/guidegraph/guidegraph/pkgmodel"
	"github.com/guidegraph/guidegraph/relations"
)

// DocumentReader is the raw-document provider dependency.
type DocumentReader interface {
	Read(ctx context.Context, ref string) (*Document, error)
}

// Document mirrors the provider contract so the orchestrator does not
// depend on a concrete registry.
type Document struct {
	Text      string
	MIME      string
	SizeBytes int64
}

// Options carries the routing and sizing configuration.
type Options struct {
	EnableHierarchical  bool
	EnableRelationships bool

	CeilingFor          func(docType string) int
	StructureScoreFloor float64

	Chunker                 chunker.Config
	MinRelationshipStrength float64

	SoftDeadline time.Duration
	HardDeadline time.Duration

	DocumentConcurrency int
}

// Deps are the orchestrator's collaborators.
type Deps struct {
	LLM    llm.Client
	Store  graphstore.Store
	Reader DocumentReader
	Flat   flatchunk.Chunker
}

// Input identifies one document to process.
type Input struct {
	DocumentID string
	SlotID     string
	Ref        string
	Type       pkgmodel.DocumentType
	Category   pkgmodel.Category
}

// Orchestrator runs documents through the pipeline.
type Orchestrator struct {
	opts    Options
	deps    Deps
	nav     *navigation.Extractor
	chunks  *chunker.Chunker
	rels    *relations.Manager
	ents    *entities.Extractor
	trees   *decision.Extractor
	metrics *Metrics
}

// New builds an orchestrator. Zero-valued options get the documented
// defaults.
func New(deps Deps, opts Options) *Orchestrator {
	if opts.CeilingFor == nil {
		opts.CeilingFor = func(string) int { return 600_000 }
	}
	if opts.SoftDeadline == 0 {
		opts.SoftDeadline = 300 * time.Second
	}
	if opts.HardDeadline == 0 {
		opts.HardDeadline = 600 * time.Second
	}
	if opts.DocumentConcurrency <= 0 {
		opts.DocumentConcurrency = 4
	}
	if deps.Flat == nil {
		deps.Flat = flatchunk.New()
	}
	return &Orchestrator{
		opts:    opts,
		deps:    deps,
		nav:     navigation.NewExtractor(deps.LLM, opts.StructureScoreFloor, opts.CeilingFor),
		chunks:  chunker.New(opts.Chunker),
		rels:    relations.NewManager(opts.MinRelationshipStrength),
		ents:    entities.NewExtractor(deps.LLM),
		trees:   decision.NewExtractor(deps.LLM),
		metrics: NewMetrics(),
	}
}

// Metrics returns the process-wide counters.
func (o *Orchestrator) Metrics() *Metrics { return o.metrics }

// docResult carries one document's output for the inter-document pass.
type docResult struct {
	input  Input
	tree   *navigation.Tree
	chunks []chunker.Chunk
}

// ProcessPackage persists the package skeleton, processes its documents
// (Guidelines before Matrices, parallel within each phase), and runs
// the inter-document relationship pass. Slots never stay in
// "processing" after return.
func (o *Orchestrator) ProcessPackage(ctx context.Context, pkg *pkgmodel.Package, inputs []Input) []Report {
	if err := o.deps.Store.PersistPackage(ctx, pkg); err != nil {
		slog.Error("pipeline: package persist failed", "package_id", pkg.ID, "error", err)
		reports := make([]Report, 0, len(inputs))
		for _, in := range inputs {
			reports = append(reports, Report{
				DocumentID: in.DocumentID,
				Failures:   []StageFailure{{Stage: "persist_package", Error: err.Error()}},
			})
		}
		return reports
	}

	// Guidelines documents resolve before program matrices: the
	// inter-document pass needs their sections in place.
	ordered := make([]Input, len(inputs))
	copy(ordered, inputs)
	sort.SliceStable(ordered, func(i, j int) bool {
		return docPhase(ordered[i].Type) < docPhase(ordered[j].Type)
	})

	var (
		reports = make([]Report, len(ordered))
		results = make([]*docResult, len(ordered))
	)

	for start := 0; start < len(ordered); {
		end := start
		for end < len(ordered) && docPhase(ordered[end].Type) == docPhase(ordered[start].Type) {
			end++
		}

		grp, grpCtx := errgroup.WithContext(ctx)
		grp.SetLimit(o.opts.DocumentConcurrency)
		for i := start; i < end; i++ {
			grp.Go(func() error {
				report, result := o.ProcessDocument(grpCtx, pkg, ordered[i])
				reports[i] = report
				results[i] = result
				return nil
			})
		}
		if err := grp.Wait(); err != nil {
			slog.Warn("pipeline: document phase error", "error", err)
		}
		start = end
	}

	o.interDocumentPass(ctx, results, &reports)
	return reports
}

// docPhase orders processing: Guidelines first, then everything else.
func docPhase(t pkgmodel.DocumentType) int {
	if t == pkgmodel.DocGuidelines {
		return 0
	}
	return 1
}

// interDocumentPass links Guidelines chunks to Matrix chunks across the
// package's processed documents.
func (o *Orchestrator) interDocumentPass(ctx context.Context, results []*docResult, reports *[]Report) {
	if !o.opts.EnableRelationships {
		return
	}
	var docs []relations.Document
	for _, r := range results {
		if r == nil || r.tree == nil {
			continue
		}
		docs = append(docs, relations.Document{
			ID:     r.input.DocumentID,
			Type:   string(r.input.Type),
			Tree:   r.tree,
			Chunks: r.chunks,
		})
	}
	if len(docs) < 2 {
		return
	}

	rels := o.rels.DetectInterDocument(docs)
	if len(rels) == 0 {
		return
	}
	if err := o.deps.Store.MergeEdges(ctx, graphstore.InterDocumentEdges(rels)); err != nil {
		slog.Warn("pipeline: inter-document merge failed", "error", err)
		return
	}
	slog.Info("pipeline: inter-document pass complete", "edges", len(rels))
	for i := range *reports {
		(*reports)[i].InterDocumentCount = len(rels)
	}
}

// ProcessDocument runs one document through routing, the selected
// path, and persistence. The returned result is non-nil only for
// hierarchical runs (it feeds the inter-document pass).
func (o *Orchestrator) ProcessDocument(ctx context.Context, pkg *pkgmodel.Package, in Input) (Report, *docResult) {
	report := Report{DocumentID: in.DocumentID, StageLatency: map[string]time.Duration{}}
	started := time.Now()

	ctx, cancel := context.WithTimeout(ctx, o.opts.HardDeadline)
	defer cancel()

	softExpired := func() bool { return time.Since(started) > o.opts.SoftDeadline }

	if pkg != nil && in.SlotID != "" {
		pkg.SetSlotStatus(in.SlotID, pkgmodel.UploadProcessing)
	}
	// Whatever happens below, the slot leaves "processing".
	finish := func(ok bool) {
		if pkg == nil || in.SlotID == "" {
			return
		}
		if ok {
			pkg.SetSlotStatus(in.SlotID, pkgmodel.UploadCompleted)
		} else {
			pkg.SetSlotStatus(in.SlotID, pkgmodel.UploadFailed)
		}
	}

	readStart := time.Now()
	doc, err := o.deps.Reader.Read(ctx, in.Ref)
	report.StageLatency["read"] = time.Since(readStart)
	if err != nil {
		report.Failures = append(report.Failures, StageFailure{Stage: "read", Error: err.Error()})
		finish(false)
		o.metrics.DocumentFailed()
		return report, nil
	}

	// Routing decision.
	route, reason, score := o.route(doc.Text, in.Type, softExpired())
	report.Route = route
	report.StructureScore = score
	report.FallbackReason = reason

	if route == RouteHierarchical {
		result, herr := o.runHierarchical(ctx, pkg, in, doc.Text, &report, softExpired)
		if herr == nil {
			finish(true)
			o.metrics.DocumentProcessed(len(result.chunks), false)
			report.Elapsed = time.Since(started)
			return report, result
		}
		if ctx.Err() != nil {
			// Hard deadline: the store transaction never committed, so
			// nothing partial remains.
			report.Failures = append(report.Failures, StageFailure{Stage: "hierarchical", Error: ctx.Err().Error()})
			report.FallbackReason = "hard_deadline_exceeded"
			finish(false)
			o.metrics.DocumentFailed()
			report.Elapsed = time.Since(started)
			return report, nil
		}
		report.Route = RouteFlat
		report.FallbackReason = fallbackReasonFor(herr)
		report.Failures = append(report.Failures, StageFailure{Stage: "hierarchical", Error: herr.Error()})
	}

	if err := o.runFlat(ctx, pkg, in, doc.Text, &report); err != nil {
		report.Failures = append(report.Failures, StageFailure{Stage: "flat", Error: err.Error()})
		finish(false)
		o.metrics.DocumentFailed()
		report.Elapsed = time.Since(started)
		return report, nil
	}
	finish(true)
	o.metrics.DocumentProcessed(report.ChunkCount, true)
	report.Elapsed = time.Since(started)
	return report, nil
}

// Route names.
const (
	RouteHierarchical = "hierarchical"
	RouteFlat         = "flat"
)

// route makes the routing decision and, for flat routes, the reason.
func (o *Orchestrator) route(text string, docType pkgmodel.DocumentType, softExpired bool) (string, string, float64) {
	probe := navigation.Probe(text)
	if !o.opts.EnableHierarchical {
		return RouteFlat, "hierarchical_disabled", probe.Score
	}
	if softExpired {
		return RouteFlat, "soft_deadline_exceeded", probe.Score
	}
	if probe.Length > o.opts.CeilingFor(string(docType)) {
		return RouteFlat, "size_ceiling_exceeded", probe.Score
	}
	if probe.Score < o.opts.StructureScoreFloor {
		return RouteFlat, "structure_insufficient", probe.Score
	}
	return RouteHierarchical, "", probe.Score
}

// errSoftDeadline aborts the hierarchical path between stages.
var errSoftDeadline = errors.New("pipeline: soft deadline exceeded")

// runHierarchical executes navigation → chunking, then the three
// enrichment stages concurrently over their shared read-only inputs,
// then the store transaction.
func (o *Orchestrator) runHierarchical(ctx context.Context, pkg *pkgmodel.Package, in Input, text string, report *Report, softExpired func() bool) (*docResult, error) {
	navStart := time.Now()
	tree, err := o.nav.Extract(ctx, in.DocumentID, text, string(in.Type), string(in.Category))
	report.StageLatency["navigation"] = time.Since(navStart)
	if err != nil {
		return nil, fmt.Errorf("navigation: %w", err)
	}

	if softExpired() {
		return nil, errSoftDeadline
	}
	chunkStart := time.Now()
	chunks := o.chunks.Chunk(tree, text)
	report.StageLatency["chunking"] = time.Since(chunkStart)
	report.ChunkCount = len(chunks)

	if softExpired() {
		return nil, errSoftDeadline
	}

	// The three enrichment stages share read-only inputs and produce
	// disjoint result sets, so they run concurrently. Latencies are
	// recorded into the shared report only after Wait.
	var (
		chunkRels  []relations.Relationship
		relMetrics relations.Metrics
		ents       []entities.Entity
		entRels    []entities.Relationship
		trees      []decision.Tree

		relElapsed, entElapsed, treeElapsed time.Duration
	)
	grp, grpCtx := errgroup.WithContext(ctx)
	if o.opts.EnableRelationships {
		grp.Go(func() error {
			start := time.Now()
			chunkRels, relMetrics = o.rels.Detect(tree, chunks)
			relElapsed = time.Since(start)
			return nil
		})
	}
	grp.Go(func() error {
		start := time.Now()
		ents, entRels = o.ents.Extract(grpCtx, tree, chunks)
		entElapsed = time.Since(start)
		return nil
	})
	grp.Go(func() error {
		start := time.Now()
		trees = o.trees.ExtractAll(grpCtx, tree, chunks)
		treeElapsed = time.Since(start)
		return nil
	})
	if err := grp.Wait(); err != nil {
		return nil, err
	}
	report.StageLatency["relationships"] = relElapsed
	report.StageLatency["entities"] = entElapsed
	report.StageLatency["decisions"] = treeElapsed
	if o.opts.EnableRelationships {
		report.RelationshipMetrics = &relMetrics
	}

	report.RelationshipCount = len(chunkRels)
	report.EntityCount = len(ents)
	report.TreeCount = len(trees)
	for _, t := range trees {
		if !t.NeedsManualReview {
			report.TreesComplete++
		}
	}

	if softExpired() {
		return nil, errSoftDeadline
	}
	persistStart := time.Now()
	err = o.deps.Store.PersistDocument(ctx, &graphstore.DocumentGraph{
		Package:      pkg,
		SlotID:       in.SlotID,
		DocumentID:   in.DocumentID,
		DocumentType: in.Type,
		ContentHash:  chunker.ChunkID(text),
		Navigation:   tree,
		Chunks:       chunks,
		ChunkRels:    chunkRels,
		Entities:     ents,
		EntityRels:   entRels,
		Trees:        trees,
	})
	report.StageLatency["persist"] = time.Since(persistStart)
	if err != nil {
		return nil, fmt.Errorf("persist: %w", err)
	}

	slog.Info("pipeline: hierarchical document complete",
		"doc_id", in.DocumentID, "chunks", len(chunks),
		"relationships", len(chunkRels), "entities", len(ents), "trees", len(trees))
	return &docResult{input: in, tree: tree, chunks: chunks}, nil
}

// runFlat hands the raw text to the fallback chunker and persists
// chunks without navigation context.
func (o *Orchestrator) runFlat(ctx context.Context, pkg *pkgmodel.Package, in Input, text string, report *Report) error {
	start := time.Now()
	target := o.opts.Chunker.TargetTokens
	if target == 0 {
		target = 1500
	}
	flat := o.deps.Flat.Chunk(text, target, o.opts.Chunker.OverlapTokens)
	report.StageLatency["flat_chunking"] = time.Since(start)

	converted := make([]chunker.Chunk, len(flat))
	for i, fc := range flat {
		converted[i] = chunker.Chunk{
			ID:         fc.ID,
			Content:    fc.Content,
			Type:       chunker.TypeContent,
			Position:   fc.Position,
			TokenCount: fc.TokenCount,
		}
	}
	report.ChunkCount = len(converted)

	persistStart := time.Now()
	err := o.deps.Store.PersistDocument(ctx, &graphstore.DocumentGraph{
		Package:      pkg,
		SlotID:       in.SlotID,
		DocumentID:   in.DocumentID,
		DocumentType: in.Type,
		ContentHash:  chunker.ChunkID(text),
		Chunks:       converted,
	})
	report.StageLatency["persist"] = time.Since(persistStart)
	if err != nil {
		return fmt.Errorf("persist: %w", err)
	}

	slog.Info("pipeline: flat document complete",
		"doc_id", in.DocumentID, "chunks", len(converted), "reason", report.FallbackReason)
	return nil
}

// fallbackReasonFor classifies a hierarchical-path error.
func fallbackReasonFor(err error) string {
	switch {
	case errors.Is(err, errSoftDeadline):
		return "soft_deadline_exceeded"
	case errors.Is(err, navigation.ErrStructureInsufficient):
		return "structure_insufficient"
	default:
		return "stage_exception"
	}
}
