package navigation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/guidegraph/guidegraph/llm"
)

// ErrStructureInsufficient signals that a document lacks the structure
// (or is too large) for hierarchical processing. The orchestrator
// treats it as a routing decision, not a failure.
var ErrStructureInsufficient = errors.New("navigation: document structure insufficient")

// Extractor produces the navigation tree for one document.
type Extractor struct {
	llm llm.Client

	// ScoreFloor and Ceiling gate the routing pre-check.
	ScoreFloor float64
	CeilingFor func(docType string) int
}

// NewExtractor builds an extractor over the given LLM client.
func NewExtractor(client llm.Client, scoreFloor float64, ceilingFor func(string) int) *Extractor {
	if ceilingFor == nil {
		ceilingFor = func(string) int { return 600_000 }
	}
	return &Extractor{llm: client, ScoreFloor: scoreFloor, CeilingFor: ceilingFor}
}

// rawNode is the pre-tree node shape shared by the LLM and regex paths.
type rawNode struct {
	Title     string   `json:"title"`
	Numbering string   `json:"numbering"`
	Depth     int      `json:"depth"`
	Start     int      `json:"start"`
	End       int      `json:"end"`
	Decision  bool     `json:"decision"`
	CrossRefs []string `json:"cross_refs"`
}

type nodeList struct {
	Nodes []rawNode `json:"nodes"`
}

// navigationSchema is the JSON contract handed to the LLM client.
var navigationSchema = json.RawMessage(`{"type":"object","properties":{"nodes":{"type":"array"}},"required":["nodes"]}`)

// Check runs the routing pre-check only: probe score and size ceiling.
// It returns the probe result so the orchestrator can record the score.
func (e *Extractor) Check(text, docType string) (ProbeResult, error) {
	probe := Probe(text)
	ceiling := e.CeilingFor(docType)
	if probe.Length > ceiling {
		return probe, fmt.Errorf("%w: %d chars exceeds %d ceiling for %s",
			ErrStructureInsufficient, probe.Length, ceiling, docType)
	}
	if probe.Score < e.ScoreFloor {
		return probe, fmt.Errorf("%w: structure score %.2f below floor %.2f",
			ErrStructureInsufficient, probe.Score, e.ScoreFloor)
	}
	return probe, nil
}

// Extract runs the full navigation pipeline: pre-check, LLM node-list
// extraction with regex fallback, and tree construction. The returned
// tree always has a synthetic ROOT; a document with no detectable
// headings yields ROOT alone.
func (e *Extractor) Extract(ctx context.Context, documentID, text, docType, category string) (*Tree, error) {
	if _, err := e.Check(text, docType); err != nil {
		return nil, err
	}

	nodes, method := e.extractNodes(ctx, text, docType, category)
	slog.Info("navigation: nodes extracted",
		"doc_id", documentID, "method", method, "nodes", len(nodes))

	return buildTree(documentID, text, nodes), nil
}

// extractNodes tries the LLM first and falls back to the regex
// extractor on any parse failure. The fallback produces a shallower but
// always-valid node list, so this never errors.
func (e *Extractor) extractNodes(ctx context.Context, text, docType, category string) ([]rawNode, string) {
	if e.llm != nil {
		start := time.Now()
		resp, err := e.llm.Complete(ctx, llm.CompletionRequest{
			SystemPrompt: systemPromptFor(category),
			UserPrompt:   userPromptFor(docType, text),
			Schema:       navigationSchema,
			Temperature:  0.0,
		})
		if err == nil && resp.JSON != nil {
			var list nodeList
			if jerr := json.Unmarshal(resp.JSON, &list); jerr == nil && len(list.Nodes) > 0 {
				if sane := sanitizeNodes(list.Nodes, len(text)); len(sane) > 0 {
					slog.Debug("navigation: llm extraction ok",
						"nodes", len(sane), "elapsed", time.Since(start).Round(time.Millisecond))
					return sane, "llm"
				}
			}
		}
		if err != nil {
			slog.Warn("navigation: llm extraction failed, using regex fallback", "error", err)
		} else {
			slog.Warn("navigation: llm response unparseable, using regex fallback")
		}
	}
	return regexExtract(text), "regex"
}

// sanitizeNodes drops nodes with empty titles or spans outside the
// document, clamps depths, and orders by start offset.
func sanitizeNodes(nodes []rawNode, textLen int) []rawNode {
	out := make([]rawNode, 0, len(nodes))
	for _, n := range nodes {
		if n.Title == "" {
			continue
		}
		if n.Start < 0 || n.Start >= textLen {
			continue
		}
		if n.End <= n.Start || n.End > textLen {
			n.End = textLen
		}
		if n.Depth < 1 {
			n.Depth = 1
		}
		if n.Depth > MaxDepth-1 {
			n.Depth = MaxDepth - 1
		}
		out = append(out, n)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Start < out[j].Start })
	return out
}

// buildTree attaches each node to the deepest open ancestor whose depth
// is smaller, inserting synthetic SECTION placeholders when a node
// skips levels so depth increments stay monotonic.
func buildTree(documentID, text string, nodes []rawNode) *Tree {
	t := NewTree(documentID, len(text))

	// Raw node depths start at 1; tree depths start at 1 for ROOT, so
	// every heading sits at rawDepth+1.
	type open struct {
		idx   int
		depth int
	}
	stack := []open{{idx: t.Root(), depth: 1}}

	for i, n := range nodes {
		depth := n.Depth + 1
		if depth > MaxDepth {
			depth = MaxDepth
		}

		// Pop until the top of the stack is a valid ancestor.
		for len(stack) > 1 && stack[len(stack)-1].depth >= depth {
			stack = stack[:len(stack)-1]
		}

		// Repair depth gaps: a jump from depth d to d+k (k>1) gets
		// synthetic SECTION placeholders for the missing levels.
		for stack[len(stack)-1].depth < depth-1 {
			parent := stack[len(stack)-1]
			synthDepth := parent.depth + 1
			synthIdx := t.Add(parent.idx, Node{
				Type:      typeForDepth(synthDepth, false),
				Depth:     synthDepth,
				Title:     n.Title,
				Start:     n.Start,
				End:       n.End,
				Synthetic: true,
			})
			stack = append(stack, open{idx: synthIdx, depth: synthDepth})
		}

		end := n.End
		if i+1 < len(nodes) && nodes[i+1].Start > n.Start && nodes[i+1].Start < end {
			// Non-overlapping sibling spans read better downstream;
			// deeper children re-narrow within the parent span anyway.
			if nodes[i+1].Depth <= n.Depth {
				end = nodes[i+1].Start
			}
		}

		node := Node{
			Type:      typeForDepth(depth, n.Decision),
			Depth:     depth,
			Title:     n.Title,
			Numbering: n.Numbering,
			Start:     n.Start,
			End:       end,
			CrossRefs: n.CrossRefs,
		}
		if n.Decision {
			node.Decision = &DecisionMetadata{}
		}
		idx := t.Add(stack[len(stack)-1].idx, node)
		stack = append(stack, open{idx: idx, depth: depth})
	}

	return t
}
