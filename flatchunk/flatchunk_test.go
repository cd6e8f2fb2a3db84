package flatchunk

import (
	"strings"
	"testing"
)

func TestChunkShortText(t *testing.T) {
	chunks := New().Chunk("A short product overview.", 1500, 200)
	if len(chunks) != 1 {
		t.Fatalf("chunks = %d, want 1", len(chunks))
	}
	if chunks[0].Position != 0 || chunks[0].TokenCount == 0 {
		t.Errorf("unexpected chunk: %+v", chunks[0])
	}
}

func TestChunkEmpty(t *testing.T) {
	if chunks := New().Chunk("   ", 1500, 200); chunks != nil {
		t.Errorf("expected nil for blank text, got %d chunks", len(chunks))
	}
}

func TestChunkLongTextSplits(t *testing.T) {
	text := strings.Repeat("Reserves must be documented before the closing date. ", 500)
	chunks := New().Chunk(text, 300, 40)
	if len(chunks) < 2 {
		t.Fatalf("chunks = %d, want >= 2", len(chunks))
	}
	for i, c := range chunks {
		if c.Position != i {
			t.Errorf("chunk %d position = %d", i, c.Position)
		}
		if c.TokenCount > 300+60 {
			t.Errorf("chunk %d tokens = %d, exceeds target + overlap slack", i, c.TokenCount)
		}
	}
}

func TestChunkDeterministicIDs(t *testing.T) {
	text := strings.Repeat("Stable content for hashing. ", 200)
	a := New().Chunk(text, 200, 20)
	b := New().Chunk(text, 200, 20)
	if len(a) != len(b) {
		t.Fatalf("chunk counts differ")
	}
	for i := range a {
		if a[i].ID != b[i].ID {
			t.Errorf("chunk %d id differs across runs", i)
		}
	}
}
