package entities

import (
	"context"
	"encoding/json"
	"log/slog"
	"regexp"
	"strings"

	"github.com/guidegraph/guidegraph/chunker"
	"github.com/guidegraph/guidegraph/llm"
	"github.com/guidegraph/guidegraph/navigation"
)

// decisionEntityPrompt supplements the pattern pass on decision-flow
// sections, where qualification language is too varied for vocabularies.
const decisionEntityPrompt = `You are an entity extraction engine for mortgage underwriting documents.
Given a decision section, extract domain entities.

ENTITY TYPES (use exactly these values):
LOAN_PROGRAM, BORROWER_TYPE, NUMERIC_THRESHOLD, INCOME_TYPE, ASSET_TYPE, PROPERTY_TYPE, DOCUMENTATION_TYPE, OCCUPANCY_TYPE, CREDIT_EVENT, GUIDELINE_SECTION

Return a JSON object with exactly one key:
  "entities" : array of {"mention": string, "type": string, "normalized": string}

Rules:
- "mention" is the exact text span from the input.
- "normalized" is the canonical form (thresholds as operator+value, e.g. ">=660").
- Only include entities clearly supported by the text.
- Do NOT include any text outside the JSON object.

EXAMPLE:
Input: "Bank statement borrowers require a minimum FICO of 680 and 12 months reserves after a bankruptcy."
Output:
{"entities": [{"mention": "Bank statement", "type": "LOAN_PROGRAM", "normalized": "bank statement program"}, {"mention": "minimum FICO of 680", "type": "NUMERIC_THRESHOLD", "normalized": ">=680"}, {"mention": "12 months reserves", "type": "NUMERIC_THRESHOLD", "normalized": ">=12month"}, {"mention": "bankruptcy", "type": "CREDIT_EVENT", "normalized": "bankruptcy"}]}`

var entitySchema = json.RawMessage(`{"type":"object","properties":{"entities":{"type":"array"}},"required":["entities"]}`)

var reSectionCitation = regexp.MustCompile(`(?i)\bsection\s+(\d+(?:\.\d+)*)`)

// Extractor runs the entity passes over a document.
type Extractor struct {
	llm llm.Client
}

// NewExtractor builds an extractor; client may be nil to disable the
// LLM supplement.
func NewExtractor(client llm.Client) *Extractor {
	return &Extractor{llm: client}
}

// Extract runs the vocabulary/pattern pass on every node and the LLM
// pass on decision-flow sections. Duplicates within a node merge by
// mention + normalized value; the merged entity keeps the highest
// confidence.
func (e *Extractor) Extract(ctx context.Context, tree *navigation.Tree, chunks []chunker.Chunk) ([]Entity, []Relationship) {
	byNode := map[string][]chunker.Chunk{}
	for _, c := range chunks {
		byNode[c.NodeID] = append(byNode[c.NodeID], c)
	}

	var entities []Entity
	tree.Walk(func(idx int, n *navigation.Node) {
		nodeChunks := byNode[n.ID]
		if len(nodeChunks) == 0 {
			return
		}
		var text strings.Builder
		for _, c := range nodeChunks {
			text.WriteString(c.Content)
			text.WriteString("\n")
		}
		nodeText := text.String()
		path := tree.Path(idx)

		found := e.patternPass(tree.DocumentID, n.ID, path, nodeText)
		if n.Type == navigation.NodeDecisionFlow && e.llm != nil {
			found = append(found, e.llmPass(ctx, tree.DocumentID, n.ID, path, nodeText)...)
		}
		entities = append(entities, mergeNode(found)...)
	})

	rels := relate(entities)
	slog.Info("entities: extraction complete",
		"doc_id", tree.DocumentID, "entities", len(entities), "relationships", len(rels))
	return entities, rels
}

// patternPass runs vocabularies, threshold patterns, and section
// citations over one node's text.
func (e *Extractor) patternPass(documentID, nodeID string, path []string, text string) []Entity {
	var out []Entity
	// Vocabulary terms may wrap across lines; match on single-spaced text.
	flat := strings.Join(strings.Fields(text), " ")
	lower := strings.ToLower(flat)

	for typ, terms := range vocabularies {
		for _, term := range terms {
			idx := indexWord(lower, strings.ToLower(term))
			if idx < 0 {
				continue
			}
			mention := flat[idx : idx+len(term)]
			out = append(out, Entity{
				ID:             entityID(documentID, nodeID, typ, strings.ToLower(mention), term),
				Type:           typ,
				PrimaryMention: mention,
				Normalized:     term,
				NodeID:         nodeID,
				NavigationPath: path,
				Confidence:     vocabConfidence,
			})
		}
	}

	for _, hit := range extractThresholds(text) {
		norm := hit.norm.String()
		out = append(out, Entity{
			ID:             entityID(documentID, nodeID, NumericThreshold, strings.ToLower(hit.mention), norm),
			Type:           NumericThreshold,
			PrimaryMention: hit.mention,
			Normalized:     norm,
			NodeID:         nodeID,
			NavigationPath: path,
			Confidence:     patternConfidence,
		})
	}

	for _, m := range reSectionCitation.FindAllStringSubmatch(text, -1) {
		out = append(out, Entity{
			ID:             entityID(documentID, nodeID, GuidelineSection, strings.ToLower(m[0]), m[1]),
			Type:           GuidelineSection,
			PrimaryMention: m[0],
			Normalized:     m[1],
			NodeID:         nodeID,
			NavigationPath: path,
			Confidence:     patternConfidence,
		})
	}

	return out
}

// llmResult is the JSON shape of the LLM supplement.
type llmResult struct {
	Entities []struct {
		Mention    string `json:"mention"`
		Type       string `json:"type"`
		Normalized string `json:"normalized"`
	} `json:"entities"`
}

// llmPass supplements decision-flow sections. Failures degrade to the
// pattern pass alone.
func (e *Extractor) llmPass(ctx context.Context, documentID, nodeID string, path []string, text string) []Entity {
	resp, err := e.llm.Complete(ctx, llm.CompletionRequest{
		SystemPrompt: decisionEntityPrompt,
		UserPrompt:   text,
		Schema:       entitySchema,
		Temperature:  0.0,
	})
	if err != nil {
		slog.Warn("entities: llm pass failed, keeping pattern results", "node", nodeID, "error", err)
		return nil
	}
	if resp.JSON == nil {
		slog.Warn("entities: llm response unparseable, keeping pattern results", "node", nodeID)
		return nil
	}

	var result llmResult
	if err := json.Unmarshal(resp.JSON, &result); err != nil {
		slog.Warn("entities: llm result malformed", "node", nodeID, "error", err)
		return nil
	}

	var out []Entity
	for _, ent := range result.Entities {
		typ := Type(strings.ToUpper(strings.TrimSpace(ent.Type)))
		if !KnownType(typ) || ent.Mention == "" {
			continue
		}
		out = append(out, Entity{
			ID:             entityID(documentID, nodeID, typ, strings.ToLower(ent.Mention), ent.Normalized),
			Type:           typ,
			PrimaryMention: ent.Mention,
			Normalized:     ent.Normalized,
			NodeID:         nodeID,
			NavigationPath: path,
			Confidence:     llmConfidence,
		})
	}
	return out
}

// mergeNode deduplicates entities within one node by mention +
// normalized value, keeping the highest confidence.
func mergeNode(found []Entity) []Entity {
	best := map[string]int{}
	var out []Entity
	for _, ent := range found {
		key := strings.ToLower(ent.PrimaryMention) + "|" + strings.ToLower(ent.Normalized)
		if i, ok := best[key]; ok {
			if ent.Confidence > out[i].Confidence {
				out[i] = ent
			}
			continue
		}
		best[key] = len(out)
		out = append(out, ent)
	}
	return out
}

// relate emits entity-level edges: LOAN_PROGRAM → NUMERIC_THRESHOLD
// pairs within the same node carry HAS_THRESHOLD; LOAN_PROGRAM pairs
// with any other type in the same node carry MENTIONED_WITH. Pairs
// without a LOAN_PROGRAM source get no edge.
func relate(entities []Entity) []Relationship {
	byNode := map[string][]Entity{}
	for _, e := range entities {
		byNode[e.NodeID] = append(byNode[e.NodeID], e)
	}

	var out []Relationship
	seen := map[string]bool{}
	add := func(src, tgt Entity, kind string) {
		key := src.ID + "|" + tgt.ID + "|" + kind
		if src.ID == tgt.ID || seen[key] {
			return
		}
		seen[key] = true
		out = append(out, Relationship{SourceID: src.ID, TargetID: tgt.ID, Kind: kind})
	}

	for _, group := range byNode {
		for _, a := range group {
			for _, b := range group {
				if a.Type == LoanProgram && b.Type == NumericThreshold {
					add(a, b, KindHasThreshold)
					continue
				}
				if a.Type == LoanProgram && b.Type != LoanProgram && b.Type != NumericThreshold {
					add(a, b, KindMentionedWith)
				}
			}
		}
	}
	return out
}

// indexWord finds term in text on word boundaries; -1 when absent.
func indexWord(text, term string) int {
	from := 0
	for {
		i := strings.Index(text[from:], term)
		if i < 0 {
			return -1
		}
		i += from
		beforeOK := i == 0 || !isWordByte(text[i-1])
		afterIdx := i + len(term)
		afterOK := afterIdx >= len(text) || !isWordByte(text[afterIdx])
		if !afterOK && text[afterIdx] == 's' {
			// Plural of a vocabulary term still counts.
			afterOK = afterIdx+1 >= len(text) || !isWordByte(text[afterIdx+1])
		}
		if beforeOK && afterOK {
			return i
		}
		from = i + 1
	}
}

func isWordByte(b byte) bool {
	return b == '_' || (b >= '0' && b <= '9') || (b >= 'a' && b <= 'z') || (b >= 'A' && b <= 'Z')
}
