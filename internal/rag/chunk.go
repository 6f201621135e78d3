// Package rag implements document chunking, embedding, and retrieval
// (spec §4.H): ingest turns a file into Document + Chunk + Embedding
// rows, and retrieve turns a query into a ranked context string.
package rag

import (
	"math"
	"strings"

	"github.com/valyala/bytebufferpool"
)

const (
	defaultChunkSize = 1000
	defaultOverlap   = 150
)

// boundaryFraction is the 0.6 in "move end back to the last space
// within the window that is ≥ start + ⌊0.6·chunkSize⌋".
const boundaryFraction = 0.6

// normalizeWhitespace collapses any run of whitespace to a single
// space and trims the result.
func normalizeWhitespace(t string) string {
	buf := bytebufferpool.Get()
	defer bytebufferpool.Put(buf)

	inSpace := false
	for _, r := range t {
		if isSpace(r) {
			if !inSpace {
				buf.WriteByte(' ')
				inSpace = true
			}
			continue
		}
		inSpace = false
		buf.WriteRune(r)
	}
	return strings.TrimSpace(buf.String())
}

func isSpace(r rune) bool {
	switch r {
	case ' ', '\t', '\n', '\r', '\v', '\f':
		return true
	default:
		return false
	}
}

// ChunkText splits normalized text into overlapping windows of at most
// chunkSize runes, preferring to end a window at the last whitespace
// boundary when one falls within the last 0.4·chunkSize of the window
// (spec §4.H / §8 round-trip law). Empty chunks are dropped.
func ChunkText(text string, chunkSize, overlap int) []string {
	if chunkSize <= 0 {
		chunkSize = defaultChunkSize
	}
	if overlap < 0 {
		overlap = defaultOverlap
	}

	t := normalizeWhitespace(text)
	runes := []rune(t)
	if len(runes) == 0 {
		return nil
	}
	if len(runes) <= chunkSize {
		return []string{t}
	}

	minBoundary := int(float64(chunkSize) * boundaryFraction)

	var chunks []string
	start := 0
	for start < len(runes) {
		end := start + chunkSize
		if end > len(runes) {
			end = len(runes)
		}
		if end < len(runes) {
			if boundary := lastSpaceWithin(runes, start+minBoundary, end); boundary >= 0 {
				end = boundary
			}
		}

		chunk := strings.TrimSpace(string(runes[start:end]))
		if chunk != "" {
			chunks = append(chunks, chunk)
		}

		next := end - overlap
		if next <= start {
			next = end
		}
		start = next
		if end >= len(runes) {
			break
		}
	}
	return chunks
}

// lastSpaceWithin returns the index of the last space in
// runes[lo:hi), or -1 if none exists. lo is clamped to 0.
func lastSpaceWithin(runes []rune, lo, hi int) int {
	if lo < 0 {
		lo = 0
	}
	if lo >= hi {
		return -1
	}
	for i := hi - 1; i >= lo; i-- {
		if isSpace(runes[i]) {
			return i
		}
	}
	return -1
}

// EstimateTokens approximates token count from word count, per spec
// §4.H: max(1, ceil(wordCount * 1.3)).
func EstimateTokens(text string) int {
	words := strings.Fields(text)
	if len(words) == 0 {
		return 1
	}
	est := int(math.Ceil(float64(len(words)) * 1.3))
	if est < 1 {
		est = 1
	}
	return est
}
