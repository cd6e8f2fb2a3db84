// Package guidegraph ingests mortgage guideline and matrix documents
// and builds a queryable knowledge graph: navigation discovery,
// navigation-aware chunking, typed chunk relationships, entity
// extraction, complete decision trees, and persistence into a labelled
// property graph under a Category → Product → Program hierarchy.
package guidegraph

import (
	"context"
	"fmt"

	"github.com/guidegraph/guidegraph/chunker"
	"github.com/guidegraph/guidegraph/graphstore"
	"github.com/guidegraph/guidegraph/llm"
	"github.com/guidegraph/guidegraph/pipeline"
	"github.com/guidegraph/guidegraph/pkgmodel"
	"github.com/guidegraph/guidegraph/provider"
)

// Engine is the main entry point.
type Engine interface {
	// CreatePackage validates and registers a package skeleton.
	CreatePackage(ctx context.Context, category pkgmodel.Category, products []pkgmodel.ProductSpec) (*pkgmodel.Package, error)

	// BindDocument attaches a raw document reference to a slot.
	BindDocument(pkg *pkgmodel.Package, slotID, ref string, detectedType pkgmodel.DocumentType) (*pkgmodel.ExpectedDocument, error)

	// ProcessPackage runs every bound document through the pipeline and
	// persists the results.
	ProcessPackage(ctx context.Context, pkg *pkgmodel.Package) ([]pipeline.Report, error)

	// ProcessDocument runs a single document.
	ProcessDocument(ctx context.Context, pkg *pkgmodel.Package, in pipeline.Input) (pipeline.Report, error)

	// Store exposes the graph store for diagnostic access.
	Store() graphstore.Store

	// Metrics exposes the process-wide counters.
	Metrics() *pipeline.Metrics

	// Close shuts the engine down.
	Close() error
}

// engine is the concrete implementation.
type engine struct {
	cfg   Config
	store graphstore.Store
	orch  *pipeline.Orchestrator
}

// New creates an engine from configuration: graph store backend, LLM
// client with its shared rate bucket, document providers, and the
// orchestrator.
func New(ctx context.Context, cfg Config) (Engine, error) {
	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	var store graphstore.Store
	var err error
	switch cfg.Graph.Backend {
	case "neo4j":
		store, err = graphstore.NewNeo4j(ctx, graphstore.Neo4jConfig{
			URI:      cfg.Graph.URI,
			Username: cfg.Graph.Username,
			Password: cfg.Graph.Password,
			Database: cfg.Graph.Database,
		})
	case "memory":
		store = graphstore.NewMemory()
	default:
		store, err = graphstore.NewSQLite(cfg.Graph.DBPath, cfg.Graph.EmbeddingDim)
	}
	if err != nil {
		return nil, fmt.Errorf("opening graph store: %w", err)
	}

	var client llm.Client
	if cfg.LLM.Model != "" && (cfg.LLM.APIKey != "" || cfg.LLM.BaseURL != "") {
		client = llm.NewOpenAI(llm.Config{
			Model:             cfg.LLM.Model,
			BaseURL:           cfg.LLM.BaseURL,
			APIKey:            cfg.LLM.APIKey,
			RequestsPerMinute: cfg.LLM.RequestsPerMinute,
		}, nil)
	}

	orch := pipeline.New(pipeline.Deps{
		LLM:    client,
		Store:  store,
		Reader: readerAdapter{registry: provider.NewRegistry()},
	}, pipeline.Options{
		EnableHierarchical:      *cfg.EnableHierarchicalChunking,
		EnableRelationships:     *cfg.EnableRelationshipDetection,
		CeilingFor:              cfg.MaxDocChars.CeilingFor,
		StructureScoreFloor:     cfg.StructureScoreFloor,
		Chunker:                 chunkerConfig(cfg),
		MinRelationshipStrength: cfg.MinRelationshipStrength,
		SoftDeadline:            cfg.SoftDeadline(),
		HardDeadline:            cfg.HardDeadline(),
		DocumentConcurrency:     cfg.DocumentConcurrency,
	})

	return &engine{cfg: cfg, store: store, orch: orch}, nil
}

// CreatePackage validates and registers a package skeleton.
func (e *engine) CreatePackage(ctx context.Context, category pkgmodel.Category, products []pkgmodel.ProductSpec) (*pkgmodel.Package, error) {
	pkg, err := pkgmodel.CreatePackage(category, products)
	if err != nil {
		return nil, err
	}
	if err := e.store.PersistPackage(ctx, pkg); err != nil {
		return nil, fmt.Errorf("persisting package: %w", err)
	}
	return pkg, nil
}

// BindDocument attaches a raw document reference to a slot.
func (e *engine) BindDocument(pkg *pkgmodel.Package, slotID, ref string, detectedType pkgmodel.DocumentType) (*pkgmodel.ExpectedDocument, error) {
	return pkg.BindDocument(slotID, ref, detectedType)
}

// ProcessPackage processes every bound slot in the package.
func (e *engine) ProcessPackage(ctx context.Context, pkg *pkgmodel.Package) ([]pipeline.Report, error) {
	var inputs []pipeline.Input
	for _, prod := range pkg.Products {
		for _, slot := range prod.Slots {
			if slot.DocumentRef != "" {
				inputs = append(inputs, inputForSlot(pkg, slot))
			}
		}
		for _, prog := range prod.Programs {
			for _, slot := range prog.Slots {
				if slot.DocumentRef != "" {
					inputs = append(inputs, inputForSlot(pkg, slot))
				}
			}
		}
	}
	if len(inputs) == 0 {
		return nil, fmt.Errorf("%w: no documents bound", ErrInvalidPackage)
	}
	return e.orch.ProcessPackage(ctx, pkg, inputs), nil
}

// ProcessDocument runs one document through the pipeline.
func (e *engine) ProcessDocument(ctx context.Context, pkg *pkgmodel.Package, in pipeline.Input) (pipeline.Report, error) {
	report, _ := e.orch.ProcessDocument(ctx, pkg, in)
	return report, nil
}

// Store exposes the graph store.
func (e *engine) Store() graphstore.Store { return e.store }

// Metrics exposes the process-wide counters.
func (e *engine) Metrics() *pipeline.Metrics { return e.orch.Metrics() }

// Close shuts the engine down.
func (e *engine) Close() error { return e.store.Close() }

// inputForSlot derives the pipeline input for a bound slot. The slot id
// doubles as the document id namespace so re-ingesting the same slot
// merges rather than duplicates.
func inputForSlot(pkg *pkgmodel.Package, slot *pkgmodel.ExpectedDocument) pipeline.Input {
	return pipeline.Input{
		DocumentID: "doc_" + slot.SlotID,
		SlotID:     slot.SlotID,
		Ref:        slot.DocumentRef,
		Type:       slot.DocumentType,
		Category:   pkg.Category,
	}
}

// readerAdapter bridges the provider registry to the pipeline's reader
// contract.
type readerAdapter struct {
	registry *provider.Registry
}

func (r readerAdapter) Read(ctx context.Context, ref string) (*pipeline.Document, error) {
	doc, err := r.registry.Read(ctx, ref)
	if err != nil {
		return nil, err
	}
	return &pipeline.Document{Text: doc.Text, MIME: doc.MIME, SizeBytes: doc.SizeBytes}, nil
}

// chunkerConfig maps config fields onto the chunker's sizing.
func chunkerConfig(cfg Config) chunker.Config {
	return chunker.Config{
		TargetTokens:  cfg.TargetChunkTokens,
		OverlapTokens: cfg.ChunkOverlapTokens,
		MinTokens:     cfg.MinChunkTokens,
		MaxTokens:     cfg.MaxChunkTokens,
	}
}
