package decision

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"regexp"
	"sort"
	"strings"

	"github.com/guidegraph/guidegraph/chunker"
	"github.com/guidegraph/guidegraph/llm"
	"github.com/guidegraph/guidegraph/navigation"
)

// decisionExtractionPrompt asks the model for the raw decision
// elements; tree assembly and completeness stay in code.
const decisionExtractionPrompt = `You are a decision-logic extraction engine for mortgage underwriting documents.
Given a decision section, extract its policy entry, criteria, and outcome statements.

Return a JSON object with exactly these keys:
  "policy"   : string — the section's entry policy statement, or "" if none
  "criteria" : array of {"expression": string, "precedence": number}
  "outcomes" : array of {"statement": string, "outcome": "APPROVE"|"DECLINE"|"REFER"}

Rules:
- "expression" is the testable condition, e.g. "credit_score < 660".
- "precedence" orders evaluation, 1 (first) to 89 (last).
- Classify every outcome statement as APPROVE, DECLINE, or REFER.
- Do NOT include any text outside the JSON object.

EXAMPLE:
Input: "Loans are underwritten per credit policy. If FICO is below 660 the loan is declined. Files with exceptions are referred."
Output:
{"policy": "Loans are underwritten per credit policy.", "criteria": [{"expression": "FICO < 660", "precedence": 1}, {"expression": "file has exceptions", "precedence": 2}], "outcomes": [{"statement": "the loan is declined", "outcome": "DECLINE"}, {"statement": "files with exceptions are referred", "outcome": "REFER"}]}`

var decisionSchema = json.RawMessage(`{"type":"object","properties":{"policy":{"type":"string"},"criteria":{"type":"array"},"outcomes":{"type":"array"}},"required":["criteria","outcomes"]}`)

// extracted is the raw element set from either extraction path.
type extracted struct {
	Policy   string `json:"policy"`
	Criteria []struct {
		Expression string `json:"expression"`
		Precedence int    `json:"precedence"`
	} `json:"criteria"`
	Outcomes []struct {
		Statement string  `json:"statement"`
		Outcome   Outcome `json:"outcome"`
	} `json:"outcomes"`
}

// Extractor produces decision trees for a document.
type Extractor struct {
	llm llm.Client
}

// NewExtractor builds an extractor; client may be nil to force the
// regex path.
func NewExtractor(client llm.Client) *Extractor {
	return &Extractor{llm: client}
}

// ExtractAll produces one validated tree per DECISION_FLOW_SECTION.
// The mapping is total: a section whose extraction fails twice still
// yields a minimal synthesized tree flagged for manual review.
func (e *Extractor) ExtractAll(ctx context.Context, tree *navigation.Tree, chunks []chunker.Chunk) []Tree {
	byNode := map[string]string{}
	for _, c := range chunks {
		if c.Type == chunker.TypeHeader {
			continue
		}
		byNode[c.NodeID] += c.Content + "\n"
	}

	var out []Tree
	for _, idx := range tree.DecisionSections() {
		section := &tree.Nodes[idx]
		text := sectionText(tree, idx, byNode)
		dt := e.extractOne(ctx, tree.DocumentID, section.ID, text)
		out = append(out, dt)
	}
	return out
}

// extractOne runs the state machine for a single section: extract,
// complete, validate. An extractor exception drops back to EMPTY and
// retries once; a second failure synthesizes the minimal tree.
func (e *Extractor) extractOne(ctx context.Context, documentID, sectionID, text string) Tree {
	t := Tree{SectionID: sectionID, DocumentID: documentID, State: StateEmpty}

	for attempt := 0; attempt < 2; attempt++ {
		t.advance(StateExtracting)
		elems, err := e.extractElements(ctx, text)
		if err != nil {
			slog.Warn("decision: extraction failed",
				"section", sectionID, "attempt", attempt+1, "error", err)
			t.reset()
			continue
		}
		assemble(&t, elems)
		t.advance(StateStructuralValid)

		EnsureComplete(&t)
		t.advance(StateComplete)

		t.Validation = Validate(&t)
		t.advance(StateValidated)
		if !t.Validation.Passed() {
			t.NeedsManualReview = true
		}
		t.advance(StateEmitted)
		return t
	}

	slog.Warn("decision: synthesizing minimal tree after repeated failures", "section", sectionID)
	minimal(&t)
	return t
}

// extractElements runs the LLM extraction with regex fallback.
func (e *Extractor) extractElements(ctx context.Context, text string) (extracted, error) {
	if strings.TrimSpace(text) == "" {
		return extracted{}, nil
	}
	if e.llm != nil {
		resp, err := e.llm.Complete(ctx, llm.CompletionRequest{
			SystemPrompt: decisionExtractionPrompt,
			UserPrompt:   text,
			Schema:       decisionSchema,
			Temperature:  0.0,
		})
		if err != nil {
			return extracted{}, fmt.Errorf("llm extraction: %w", err)
		}
		if resp.JSON != nil {
			var elems extracted
			if jerr := json.Unmarshal(resp.JSON, &elems); jerr == nil {
				return elems, nil
			}
		}
		slog.Debug("decision: llm response unparseable, using regex extraction")
	}
	return regexElements(text), nil
}

var (
	reCriterion = regexp.MustCompile(`(?i)\b(?:if|when|unless|where)\b[^.?!]{5,200}`)
	reApprove   = regexp.MustCompile(`(?i)\b(?:approve[ds]?|approval|eligible)\b`)
	reDecline   = regexp.MustCompile(`(?i)\b(?:decline[ds]?|denial|denied|ineligible)\b`)
	reRefer     = regexp.MustCompile(`(?i)\b(?:refer(?:red|ral)?|manual review|escalat)\b`)
)

// regexElements is the deterministic fallback: conditional clauses
// become criteria, outcome sentences become classified outcomes.
func regexElements(text string) extracted {
	var elems extracted

	for i, m := range reCriterion.FindAllString(text, -1) {
		prec := i + 1
		if prec > maxCriteriaPrecedence {
			break
		}
		elems.Criteria = append(elems.Criteria, struct {
			Expression string `json:"expression"`
			Precedence int    `json:"precedence"`
		}{Expression: strings.TrimSpace(m), Precedence: prec})
	}

	for _, sent := range splitSentences(text) {
		switch {
		case reDecline.MatchString(sent):
			elems.Outcomes = append(elems.Outcomes, outcomeElem(sent, OutcomeDecline))
		case reRefer.MatchString(sent):
			elems.Outcomes = append(elems.Outcomes, outcomeElem(sent, OutcomeRefer))
		case reApprove.MatchString(sent):
			elems.Outcomes = append(elems.Outcomes, outcomeElem(sent, OutcomeApprove))
		}
	}

	if lines := strings.SplitN(strings.TrimSpace(text), "\n", 2); len(lines) > 0 {
		first := strings.TrimSpace(lines[0])
		if first != "" && !reCriterion.MatchString(first) {
			elems.Policy = first
		}
	}
	return elems
}

func outcomeElem(statement string, o Outcome) struct {
	Statement string  `json:"statement"`
	Outcome   Outcome `json:"outcome"`
} {
	return struct {
		Statement string  `json:"statement"`
		Outcome   Outcome `json:"outcome"`
	}{Statement: strings.TrimSpace(statement), Outcome: o}
}

// assemble builds the node/edge structure from extracted elements:
// ROOT (synthesized when the section names no policy entry), criteria
// as BRANCH nodes chained by precedence, outcomes as LEAF nodes.
func assemble(t *Tree, elems extracted) {
	policy := strings.TrimSpace(elems.Policy)
	rootSynth := policy == ""
	if rootSynth {
		policy = "Policy entry"
	}
	root := Node{
		ID:          nodeID(t.SectionID, RoleRoot, "root"),
		Role:        RoleRoot,
		Expression:  policy,
		Synthesized: rootSynth,
	}
	t.Nodes = append(t.Nodes, root)

	// Criteria ordered by evaluation precedence, clamped to 1–89.
	criteria := elems.Criteria
	sort.SliceStable(criteria, func(i, j int) bool { return criteria[i].Precedence < criteria[j].Precedence })
	var branchIDs []string
	for i, c := range criteria {
		expr := strings.TrimSpace(c.Expression)
		if expr == "" {
			continue
		}
		prec := c.Precedence
		if prec < 1 {
			prec = 1
		}
		if prec > maxCriteriaPrecedence {
			prec = maxCriteriaPrecedence
		}
		b := Node{
			ID:         nodeID(t.SectionID, RoleBranch, fmt.Sprintf("%d|%s", i, expr)),
			Role:       RoleBranch,
			Precedence: prec,
			Expression: expr,
		}
		t.Nodes = append(t.Nodes, b)
		branchIDs = append(branchIDs, b.ID)
	}

	// ROOT enters the first branch; each branch falls through to the
	// next on IF_FALSE.
	if len(branchIDs) > 0 {
		t.addEdge(root.ID, branchIDs[0], EdgeIfTrue)
		for i := 0; i+1 < len(branchIDs); i++ {
			t.addEdge(branchIDs[i], branchIDs[i+1], EdgeIfFalse)
		}
	}

	// Outcome statements become leaves; a branch whose expression text
	// appears in the statement connects to the leaf directly.
	for i, o := range elems.Outcomes {
		if o.Outcome != OutcomeApprove && o.Outcome != OutcomeDecline && o.Outcome != OutcomeRefer {
			continue
		}
		leaf, exists := t.leafFor(o.Outcome)
		if !exists {
			n := Node{
				ID:         nodeID(t.SectionID, RoleLeaf, string(o.Outcome)),
				Role:       RoleLeaf,
				Outcome:    o.Outcome,
				Precedence: leafPrecedence(o.Outcome),
				Expression: strings.TrimSpace(o.Statement),
			}
			t.Nodes = append(t.Nodes, n)
			leaf, _ = t.leafFor(o.Outcome)
		}
		from := connectFrom(t, branchIDs, i, o.Statement)
		t.addEdge(from, leaf.ID, EdgeResultsIn)
	}
}

// connectFrom picks the branch an outcome statement flows out of: the
// branch whose condition text the statement shares, else the branch at
// the statement's ordinal, else ROOT.
func connectFrom(t *Tree, branchIDs []string, ordinal int, statement string) string {
	stmt := strings.ToLower(statement)
	for _, id := range branchIDs {
		b, _ := t.node(id)
		cond := strings.ToLower(b.Expression)
		if cond != "" && strings.Contains(stmt, firstWords(cond, 4)) {
			return id
		}
	}
	if ordinal < len(branchIDs) {
		return branchIDs[ordinal]
	}
	if len(branchIDs) > 0 {
		return branchIDs[len(branchIDs)-1]
	}
	root, _ := t.Root()
	return root.ID
}

func leafPrecedence(o Outcome) int {
	switch o {
	case OutcomeApprove:
		return PrecedenceApprove
	case OutcomeDecline:
		return PrecedenceDecline
	default:
		return PrecedenceRefer
	}
}

// minimal builds the fallback tree after repeated extraction failures:
// ROOT, a single defer-to-review BRANCH, and the three mandatory
// leaves, flagged for manual review.
func minimal(t *Tree) {
	t.Nodes = nil
	t.Edges = nil
	t.State = StateEmitted
	t.NeedsManualReview = true

	root := Node{ID: nodeID(t.SectionID, RoleRoot, "root"), Role: RoleRoot, Expression: "Policy entry", Synthesized: true}
	branch := Node{
		ID:          nodeID(t.SectionID, RoleBranch, "defer"),
		Role:        RoleBranch,
		Precedence:  1,
		Expression:  "defer to manual review",
		Synthesized: true,
	}
	t.Nodes = append(t.Nodes, root, branch)
	t.addEdge(root.ID, branch.ID, EdgeIfTrue)

	for _, o := range []Outcome{OutcomeApprove, OutcomeDecline, OutcomeRefer} {
		leaf := Node{
			ID:          nodeID(t.SectionID, RoleLeaf, string(o)),
			Role:        RoleLeaf,
			Outcome:     o,
			Precedence:  leafPrecedence(o),
			Expression:  defaultLeafMessage(o),
			Synthesized: true,
		}
		t.Nodes = append(t.Nodes, leaf)
		t.addEdge(branch.ID, leaf.ID, EdgeResultsIn)
	}
	refer, _ := t.leafFor(OutcomeRefer)
	t.addEdge(branch.ID, refer.ID, EdgeDefaultPath)

	t.Validation = Validate(t)
}

// sectionText gathers a decision section's chunk text, including its
// subtree.
func sectionText(tree *navigation.Tree, idx int, byNode map[string]string) string {
	var b strings.Builder
	var visit func(int)
	visit = func(i int) {
		b.WriteString(byNode[tree.Nodes[i].ID])
		for _, c := range tree.Nodes[i].Children {
			visit(c)
		}
	}
	visit(idx)
	return b.String()
}

// splitSentences splits on ./?/! followed by whitespace.
func splitSentences(text string) []string {
	var out []string
	var cur strings.Builder
	runes := []rune(text)
	for i := 0; i < len(runes); i++ {
		cur.WriteRune(runes[i])
		if runes[i] == '.' || runes[i] == '?' || runes[i] == '!' {
			if i+1 >= len(runes) || runes[i+1] == ' ' || runes[i+1] == '\n' {
				if s := strings.TrimSpace(cur.String()); s != "" {
					out = append(out, s)
				}
				cur.Reset()
			}
		}
	}
	if s := strings.TrimSpace(cur.String()); s != "" {
		out = append(out, s)
	}
	return out
}

func firstWords(s string, n int) string {
	words := strings.Fields(s)
	if len(words) > n {
		words = words[:n]
	}
	return strings.Join(words, " ")
}
