package rag

import (
	"strings"
	"testing"
)

func TestChunkTextShortInputSingleChunk(t *testing.T) {
	chunks := ChunkText("  hello   world  ", 1000, 150)
	if len(chunks) != 1 || chunks[0] != "hello world" {
		t.Fatalf("expected single normalized chunk, got %v", chunks)
	}
}

func TestChunkTextNoEmptyChunks(t *testing.T) {
	text := strings.Repeat("alpha beta gamma delta ", 200)
	chunks := ChunkText(text, 1000, 150)
	if len(chunks) == 0 {
		t.Fatal("expected at least one chunk")
	}
	for i, c := range chunks {
		if c == "" {
			t.Fatalf("chunk %d is empty", i)
		}
		if len([]rune(c)) > 1000 {
			t.Fatalf("chunk %d exceeds chunkSize: %d runes", i, len([]rune(c)))
		}
	}
}

func TestChunkTextEndsAtSpaceBoundary(t *testing.T) {
	text := strings.Repeat("word ", 300)
	chunks := ChunkText(text, 100, 20)
	for i, c := range chunks {
		if strings.HasSuffix(c, " ") {
			t.Fatalf("chunk %d has trailing space: %q", i, c)
		}
	}
}

func TestChunkTextEmptyInput(t *testing.T) {
	if chunks := ChunkText("   ", 1000, 150); chunks != nil {
		t.Fatalf("expected nil for whitespace-only input, got %v", chunks)
	}
}

func TestEstimateTokens(t *testing.T) {
	cases := []struct {
		text string
		want int
	}{
		{"", 1},
		{"one two three four five six seven eight nine ten", 13},
	}
	for _, tc := range cases {
		if got := EstimateTokens(tc.text); got != tc.want {
			t.Errorf("EstimateTokens(%q) = %d, want %d", tc.text, got, tc.want)
		}
	}
}
