package idgen

import (
	"crypto/rand"
	"encoding/binary"
	"time"
)

// idLength is the number of base36 characters after the prefix for
// entity IDs minted by this package (conversations, documents, memories).
const idLength = 7

func randomNonce() int {
	var b [4]byte
	_, _ = rand.Read(b[:])
	return int(binary.BigEndian.Uint32(b[:]) & 0x7fffffff)
}

// NewConversationID mints a short, stable, collision-resistant conversation
// identifier, e.g. "conv-9wt4w2a".
func NewConversationID() string {
	return GenerateHashID("conv", "", "", "", time.Now(), idLength, randomNonce())
}

// NewDocumentID mints a short document identifier, e.g. "doc-a1b2c3d".
func NewDocumentID(title string) string {
	return GenerateHashID("doc", title, "", "", time.Now(), idLength, randomNonce())
}

// NewMemoryID mints a short memory-note identifier, e.g. "mem-q3r7z9k".
func NewMemoryID(title string) string {
	return GenerateHashID("mem", title, "", "", time.Now(), idLength, randomNonce())
}
