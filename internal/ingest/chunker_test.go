package ingest

import (
	"strings"
	"testing"
)

func TestNormalizeText(t *testing.T) {
	raw := "  hello\x00\tworld \n\n again  "
	got := NormalizeText(raw)
	want := "hello world again"
	if got != want {
		t.Fatalf("NormalizeText() = %q, want %q", got, want)
	}
}

func TestChunkTextOverlap(t *testing.T) {
	text := strings.Repeat("a", 10)
	chunks := ChunkText(text, 4, 2)
	want := []string{"aaaa", "aaaa", "aaaa", "aaaa", "aa"}
	if len(chunks) != len(want) {
		t.Fatalf("got %d chunks, want %d: %v", len(chunks), len(want), chunks)
	}
	for i := range want {
		if chunks[i] != want[i] {
			t.Fatalf("chunk %d = %q, want %q", i, chunks[i], want[i])
		}
	}
}

func TestChunkTextShortInput(t *testing.T) {
	chunks := ChunkText("short", 100, 20)
	if len(chunks) != 1 || chunks[0] != "short" {
		t.Fatalf("unexpected chunks: %v", chunks)
	}
}

func TestChunkTextEmpty(t *testing.T) {
	if chunks := ChunkText("", 100, 20); chunks != nil {
		t.Fatalf("expected nil for empty input, got %v", chunks)
	}
	if chunks := ChunkText("text", 0, 0); chunks != nil {
		t.Fatalf("expected nil for zero size, got %v", chunks)
	}
}

func TestChunkTextOverlapGEQSize(t *testing.T) {
	// overlap >= size must not loop forever; step falls back to size.
	chunks := ChunkText(strings.Repeat("b", 8), 4, 4)
	if len(chunks) != 2 {
		t.Fatalf("expected 2 chunks, got %v", chunks)
	}
}
