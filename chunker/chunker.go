// Package chunker splits document text into navigation-aware chunks.
// Every chunk belongs to exactly one navigation node, carries the full
// root-to-node path, and gets a content-addressed id so re-running the
// pipeline on identical input reproduces identical chunk ids.
package chunker

import (
	"crypto/sha256"
	"encoding/hex"
	"math"
	"strings"

	"github.com/guidegraph/guidegraph/navigation"
)

// ChunkType classifies a chunk. Small closed set, tagged not inherited.
type ChunkType string

const (
	TypeHeader   ChunkType = "HEADER"
	TypeContent  ChunkType = "CONTENT"
	TypeDecision ChunkType = "DECISION"
	TypeMatrix   ChunkType = "MATRIX"
)

// Chunk is one unit of document text.
type Chunk struct {
	ID             string    `json:"id"`
	Content        string    `json:"content"`
	Type           ChunkType `json:"type"`
	NodeID         string    `json:"node_id"`
	NavigationPath []string  `json:"navigation_path"`
	Depth          int       `json:"depth"`
	Position       int       `json:"position"`
	TokenCount     int       `json:"token_count"`
	QualityScore   float64   `json:"quality_score"`

	// MergedSiblings counts forward-merged short siblings folded into
	// this chunk; it lowers the cohesion component of the quality score.
	MergedSiblings int `json:"merged_siblings,omitempty"`

	// SentenceSplit marks a chunk whose boundary cut a sentence.
	SentenceSplit bool `json:"sentence_split,omitempty"`
}

// Config controls chunk sizing, in estimated tokens.
type Config struct {
	TargetTokens  int
	OverlapTokens int
	MinTokens     int
	MaxTokens     int
}

// Chunker converts a navigation tree plus full text into chunks.
type Chunker struct {
	cfg Config
}

// New returns a Chunker; zero-value fields get the documented defaults.
func New(cfg Config) *Chunker {
	if cfg.TargetTokens == 0 {
		cfg.TargetTokens = 1500
	}
	if cfg.OverlapTokens == 0 {
		cfg.OverlapTokens = 200
	}
	if cfg.MinTokens == 0 {
		cfg.MinTokens = 200
	}
	if cfg.MaxTokens == 0 {
		cfg.MaxTokens = 2000
	}
	return &Chunker{cfg: cfg}
}

// Chunk walks the tree in document order and emits ordered chunks. A
// tree with no nodes above ROOT yields exactly one CONTENT chunk over
// the full text with a degraded quality score.
func (c *Chunker) Chunk(tree *navigation.Tree, text string) []Chunk {
	root := tree.Root()
	if len(tree.Nodes[root].Children) == 0 {
		return c.wholeDocumentChunk(tree, text)
	}

	var chunks []Chunk
	pos := 0
	c.processNode(tree, text, root, &chunks, &pos)
	return chunks
}

// processNode emits chunks for one node and recurses into children in
// document order. Non-root nodes contribute a HEADER chunk for the
// title plus content chunks for their own span text (the part not
// covered by children).
func (c *Chunker) processNode(tree *navigation.Tree, text string, idx int, chunks *[]Chunk, pos *int) {
	node := &tree.Nodes[idx]
	path := tree.Path(idx)

	if node.Type != navigation.NodeRoot && node.Title != "" && !node.Synthetic {
		*chunks = append(*chunks, c.build(node.Title, TypeHeader, node, path, pos, 0, false))
	}

	own := ownText(tree, text, idx)
	if strings.TrimSpace(own) != "" {
		c.emitContent(own, node, path, chunks, pos, 0)
	}

	children := node.Children
	carried := "" // forward-merged text from short siblings
	carriedCount := 0
	for i, child := range children {
		cn := &tree.Nodes[child]
		if len(cn.Children) == 0 {
			leafText := ownText(tree, text, child)
			if carried != "" {
				leafText = carried + "\n\n" + leafText
			}
			// A leaf shorter than min merges forward into the next
			// sibling instead of forming an undersized chunk.
			if estimateTokens(leafText) < c.cfg.MinTokens && i+1 < len(children) {
				carried = leafText
				carriedCount++
				continue
			}
			childPath := tree.Path(child)
			if cn.Title != "" && !cn.Synthetic {
				*chunks = append(*chunks, c.build(cn.Title, TypeHeader, cn, childPath, pos, 0, false))
			}
			c.emitContent(leafText, cn, childPath, chunks, pos, carriedCount)
			carried = ""
			carriedCount = 0
			continue
		}
		if carried != "" {
			// Interior sibling follows a short leaf: flush the carry
			// into the parent before descending.
			c.emitContent(carried, node, path, chunks, pos, carriedCount)
			carried = ""
			carriedCount = 0
		}
		c.processNode(tree, text, child, chunks, pos)
	}
	if carried != "" {
		c.emitContent(carried, node, path, chunks, pos, carriedCount)
	}
}

// emitContent splits text to size and appends classified chunks.
func (c *Chunker) emitContent(text string, node *navigation.Node, path []string, chunks *[]Chunk, pos *int, merged int) {
	text = strings.TrimSpace(text)
	if text == "" {
		return
	}
	fragments, cutSentence := c.splitContent(text)
	for i, frag := range fragments {
		ctype := Classify(frag, node)
		split := cutSentence && i < len(fragments)-1
		*chunks = append(*chunks, c.build(frag, ctype, node, path, pos, merged, split))
	}
}

// build assembles one chunk with its content-addressed id and score.
func (c *Chunker) build(content string, ctype ChunkType, node *navigation.Node, path []string, pos *int, merged int, sentenceSplit bool) Chunk {
	tokens := estimateTokens(content)
	ch := Chunk{
		ID:             ChunkID(content),
		Content:        content,
		Type:           ctype,
		NodeID:         node.ID,
		NavigationPath: path,
		Depth:          node.Depth,
		Position:       *pos,
		TokenCount:     tokens,
		MergedSiblings: merged,
		SentenceSplit:  sentenceSplit,
	}
	ch.QualityScore = c.score(ch)
	*pos++
	return ch
}

// wholeDocumentChunk covers the zero-structure case: one CONTENT chunk
// spanning the full text, quality capped at 0.5.
func (c *Chunker) wholeDocumentChunk(tree *navigation.Tree, text string) []Chunk {
	root := tree.Root()
	node := &tree.Nodes[root]
	content := strings.TrimSpace(text)
	ch := Chunk{
		ID:             ChunkID(content),
		Content:        content,
		Type:           TypeContent,
		NodeID:         node.ID,
		NavigationPath: tree.Path(root),
		Depth:          node.Depth,
		Position:       0,
		TokenCount:     estimateTokens(content),
	}
	score := c.score(ch)
	if score > 0.5 {
		score = 0.5
	}
	ch.QualityScore = score
	return []Chunk{ch}
}

// splitContent breaks long text into fragments within MaxTokens,
// splitting at the highest-precedence internal break available:
// paragraph, then sentence, then hard token cut. Consecutive fragments
// share OverlapTokens of trailing text. The bool reports whether any
// sentence had to be cut mid-way.
func (c *Chunker) splitContent(text string) ([]string, bool) {
	if estimateTokens(text) <= c.cfg.MaxTokens {
		return []string{strings.TrimSpace(text)}, false
	}

	paragraphs := splitParagraphs(text)
	var fragments []string
	var current strings.Builder
	currentTokens := 0
	overlapText := ""
	cutSentence := false

	flush := func() {
		if current.Len() == 0 {
			return
		}
		fragments = append(fragments, strings.TrimSpace(current.String()))
		overlapText = extractOverlap(current.String(), c.cfg.OverlapTokens)
		current.Reset()
		currentTokens = 0
	}
	seed := func(sep string) {
		if overlapText != "" {
			current.WriteString(overlapText)
			current.WriteString(sep)
			currentTokens = estimateTokens(overlapText)
		}
	}

	for _, para := range paragraphs {
		paraTokens := estimateTokens(para)

		if paraTokens > c.cfg.MaxTokens {
			flush()
			sentFrags, cut := c.splitBySentences(para, overlapText)
			cutSentence = cutSentence || cut
			fragments = append(fragments, sentFrags...)
			if len(sentFrags) > 0 {
				overlapText = extractOverlap(sentFrags[len(sentFrags)-1], c.cfg.OverlapTokens)
			}
			continue
		}

		if currentTokens+paraTokens > c.cfg.TargetTokens && current.Len() > 0 {
			flush()
			seed("\n\n")
		}
		if current.Len() > 0 {
			current.WriteString("\n\n")
		}
		current.WriteString(para)
		currentTokens += paraTokens
	}
	flush()

	return fragments, cutSentence
}

// splitBySentences breaks an oversized paragraph at sentence boundaries,
// hard-cutting single sentences that alone exceed MaxTokens.
func (c *Chunker) splitBySentences(text, initialOverlap string) ([]string, bool) {
	sentences := splitSentences(text)
	var fragments []string
	var current strings.Builder
	currentTokens := 0
	cut := false

	if initialOverlap != "" {
		current.WriteString(initialOverlap)
		current.WriteString(" ")
		currentTokens = estimateTokens(initialOverlap)
	}

	for _, sent := range sentences {
		sentTokens := estimateTokens(sent)

		if sentTokens > c.cfg.MaxTokens {
			// Hard token cut as the last resort.
			if current.Len() > 0 {
				fragments = append(fragments, strings.TrimSpace(current.String()))
				current.Reset()
				currentTokens = 0
			}
			fragments = append(fragments, hardCut(sent, c.cfg.MaxTokens, c.cfg.OverlapTokens)...)
			cut = true
			continue
		}

		if currentTokens+sentTokens > c.cfg.MaxTokens && current.Len() > 0 {
			fragments = append(fragments, strings.TrimSpace(current.String()))
			overlap := extractOverlap(current.String(), c.cfg.OverlapTokens)
			current.Reset()
			currentTokens = 0
			if overlap != "" {
				current.WriteString(overlap)
				current.WriteString(" ")
				currentTokens = estimateTokens(overlap)
			}
		}
		if current.Len() > 0 {
			current.WriteString(" ")
		}
		current.WriteString(sent)
		currentTokens += sentTokens
	}
	if current.Len() > 0 {
		fragments = append(fragments, strings.TrimSpace(current.String()))
	}
	return fragments, cut
}

// ---------------------------------------------------------------------------
// helpers
// ---------------------------------------------------------------------------

// ownText returns the part of a node's span not covered by its children.
func ownText(tree *navigation.Tree, text string, idx int) string {
	node := &tree.Nodes[idx]
	start := node.Start
	end := node.End
	if node.Type != navigation.NodeRoot {
		// Skip the heading line itself.
		body := spanText(text, start, end)
		if i := strings.IndexByte(body, '\n'); i >= 0 && strings.Contains(body[:i], node.Title) {
			start += i + 1
		}
	}
	if len(node.Children) > 0 {
		firstChild := &tree.Nodes[node.Children[0]]
		if firstChild.Start >= start && firstChild.Start <= end {
			end = firstChild.Start
		}
	}
	return spanText(text, start, end)
}

// spanText slices text defensively against bad offsets.
func spanText(text string, start, end int) string {
	if start < 0 {
		start = 0
	}
	if end > len(text) {
		end = len(text)
	}
	if start >= end {
		return ""
	}
	return text[start:end]
}

// estimateTokens approximates token count with the word heuristic
// tokens ~ words * 1.3.
func estimateTokens(text string) int {
	words := len(strings.Fields(text))
	return int(math.Ceil(float64(words) * 1.3))
}

// splitParagraphs splits on blank-line boundaries.
func splitParagraphs(text string) []string {
	raw := strings.Split(text, "\n\n")
	out := make([]string, 0, len(raw))
	for _, p := range raw {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

// splitSentences splits on ./?/! followed by whitespace or end of text.
func splitSentences(text string) []string {
	var sentences []string
	var cur strings.Builder

	runes := []rune(text)
	for i := 0; i < len(runes); i++ {
		cur.WriteRune(runes[i])
		if runes[i] == '.' || runes[i] == '?' || runes[i] == '!' {
			if i+1 >= len(runes) || runes[i+1] == ' ' || runes[i+1] == '\n' || runes[i+1] == '\t' {
				s := strings.TrimSpace(cur.String())
				if s != "" {
					sentences = append(sentences, s)
				}
				cur.Reset()
			}
		}
	}
	if s := strings.TrimSpace(cur.String()); s != "" {
		sentences = append(sentences, s)
	}
	return sentences
}

// extractOverlap returns the trailing words of text worth at most
// maxTokens estimated tokens.
func extractOverlap(text string, maxTokens int) string {
	words := strings.Fields(text)
	if len(words) == 0 {
		return ""
	}
	maxWords := int(float64(maxTokens) / 1.3)
	if maxWords > len(words) {
		maxWords = len(words)
	}
	if maxWords == 0 {
		return ""
	}
	return strings.Join(words[len(words)-maxWords:], " ")
}

// hardCut slices a single oversized sentence at word boundaries.
func hardCut(text string, maxTokens, overlapTokens int) []string {
	words := strings.Fields(text)
	maxWords := int(float64(maxTokens) / 1.3)
	if maxWords < 1 {
		maxWords = 1
	}
	overlapWords := int(float64(overlapTokens) / 1.3)
	var out []string
	for start := 0; start < len(words); {
		end := start + maxWords
		if end > len(words) {
			end = len(words)
		}
		out = append(out, strings.Join(words[start:end], " "))
		if end == len(words) {
			break
		}
		start = end - overlapWords
		if start < 0 {
			start = 0
		}
	}
	return out
}

// normalizeContent collapses whitespace so the chunk id is insensitive
// to incidental spacing differences.
func normalizeContent(text string) string {
	return strings.Join(strings.Fields(text), " ")
}

// ChunkID is the SHA-256 hex digest of normalized content.
func ChunkID(content string) string {
	h := sha256.Sum256([]byte(normalizeContent(content)))
	return hex.EncodeToString(h[:])
}
