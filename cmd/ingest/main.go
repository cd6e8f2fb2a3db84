// Command ingest processes guideline and matrix documents into the
// knowledge graph from the command line: one product, a Guidelines
// file, and any number of Matrix files, each bound to its own program
// (codes get an -A, -B, ... suffix when there is more than one).
package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/guidegraph/guidegraph"
	"github.com/guidegraph/guidegraph/pkgmodel"
)

func main() {
	configPath := flag.String("config", "", "Path to config file (YAML)")
	category := flag.String("category", "NQM", "Package category (NQM, RTL, SBC, CONV)")
	product := flag.String("product", "Default Product", "Product name")
	program := flag.String("program", "STD", "Program code")
	guidelines := flag.String("guidelines", "", "Path to the Guidelines document")
	matrices := flag.String("matrices", "", "Comma-separated paths to Matrix documents")
	verbose := flag.Bool("v", false, "Debug logging")
	flag.Parse()

	level := slog.LevelInfo
	if *verbose {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level})))

	cfg := guidegraph.DefaultConfig()
	if *configPath != "" {
		loaded, err := guidegraph.LoadConfig(*configPath)
		if err != nil {
			slog.Error("loading config", "error", err)
			os.Exit(1)
		}
		cfg = loaded
	}
	if v := os.Getenv("GUIDEGRAPH_LLM_API_KEY"); v != "" {
		cfg.LLM.APIKey = v
	}
	if v := os.Getenv("GUIDEGRAPH_LLM_BASE_URL"); v != "" {
		cfg.LLM.BaseURL = v
	}
	if v := os.Getenv("GUIDEGRAPH_DB_PATH"); v != "" {
		cfg.Graph.DBPath = v
	}
	if cfg.LLM.APIKey == "" {
		cfg.LLM.APIKey = os.Getenv("OPENAI_API_KEY")
	}

	if *guidelines == "" {
		slog.Error("missing required -guidelines path")
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	eng, err := guidegraph.New(ctx, cfg)
	if err != nil {
		slog.Error("creating engine", "error", err)
		os.Exit(1)
	}
	defer eng.Close()

	matrixPaths := splitNonEmpty(*matrices)
	programs := make([]pkgmodel.ProgramSpec, 0, len(matrixPaths))
	if len(matrixPaths) == 0 {
		programs = append(programs, pkgmodel.ProgramSpec{Code: *program})
	}
	for i := range matrixPaths {
		code := *program
		if len(matrixPaths) > 1 {
			code = *program + "-" + string(rune('A'+i))
		}
		programs = append(programs, pkgmodel.ProgramSpec{Code: code})
	}

	pkg, err := eng.CreatePackage(ctx, pkgmodel.Category(*category), []pkgmodel.ProductSpec{
		{Name: *product, Priority: 1, Programs: programs},
	})
	if err != nil {
		slog.Error("creating package", "error", err)
		os.Exit(1)
	}

	prod := pkg.Products[0]
	if _, err := eng.BindDocument(pkg, prod.Slots[0].SlotID, *guidelines, pkgmodel.DocGuidelines); err != nil {
		slog.Error("binding guidelines", "error", err)
		os.Exit(1)
	}
	for i, path := range matrixPaths {
		slot := prod.Programs[i].Slots[0]
		if _, err := eng.BindDocument(pkg, slot.SlotID, path, pkgmodel.DocMatrix); err != nil {
			slog.Error("binding matrix", "path", path, "error", err)
			os.Exit(1)
		}
	}

	reports, err := eng.ProcessPackage(ctx, pkg)
	if err != nil {
		slog.Error("processing package", "error", err)
		os.Exit(1)
	}

	failed := 0
	for _, r := range reports {
		slog.Info("document processed",
			"doc_id", r.DocumentID, "route", r.Route, "fallback_reason", r.FallbackReason,
			"chunks", r.ChunkCount, "relationships", r.RelationshipCount,
			"entities", r.EntityCount, "trees", r.TreeCount, "trees_complete", r.TreesComplete,
			"elapsed", r.Elapsed)
		if !r.Succeeded() {
			failed++
		}
	}
	snap := eng.Metrics().Snapshot()
	slog.Info("ingest complete",
		"documents", snap.Documents, "fallbacks", snap.Fallbacks,
		"failures", snap.Failures, "chunks", snap.Chunks)
	if failed > 0 {
		os.Exit(1)
	}
}

func splitNonEmpty(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
