package rag

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/consultd/consultd/internal/model"
)

type fakeBackend struct {
	docs       map[string]*model.Document
	chunks     map[string][]model.Chunk
	embeddings map[int64]model.Embedding
	memories   []model.Memory
	nextChunk  int64
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{
		docs:       make(map[string]*model.Document),
		chunks:     make(map[string][]model.Chunk),
		embeddings: make(map[int64]model.Embedding),
	}
}

func (b *fakeBackend) CreateDocument(ctx context.Context, doc *model.Document) error {
	cp := *doc
	b.docs[doc.ID] = &cp
	return nil
}

func (b *fakeBackend) GetDocument(ctx context.Context, id string) (*model.Document, error) {
	return b.docs[id], nil
}

func (b *fakeBackend) ListDocuments(ctx context.Context, folder string) ([]model.Document, error) {
	var out []model.Document
	for _, d := range b.docs {
		if folder == "" || d.Folder == folder {
			out = append(out, *d)
		}
	}
	return out, nil
}

func (b *fakeBackend) ListFolders(ctx context.Context) ([]string, error) { return nil, nil }

func (b *fakeBackend) DeleteDocument(ctx context.Context, id string) error {
	delete(b.docs, id)
	delete(b.chunks, id)
	return nil
}

func (b *fakeBackend) InsertChunks(ctx context.Context, documentID string, contents []string, tokenCounts []int, now time.Time) ([]int64, error) {
	ids := make([]int64, len(contents))
	for i, content := range contents {
		b.nextChunk++
		id := b.nextChunk
		ids[i] = id
		b.chunks[documentID] = append(b.chunks[documentID], model.Chunk{
			ID: id, DocumentID: documentID, ChunkIndex: i, Content: content, TokenCount: tokenCounts[i], CreatedAt: now,
		})
	}
	return ids, nil
}

func (b *fakeBackend) ChunksByDocument(ctx context.Context, documentID string) ([]model.Chunk, error) {
	return b.chunks[documentID], nil
}

func (b *fakeBackend) UpsertEmbedding(ctx context.Context, chunkID int64, vector []byte, dim int, modelName string, now time.Time) error {
	b.embeddings[chunkID] = model.Embedding{ChunkID: chunkID, Vector: vector, Dim: dim, Model: modelName, CreatedAt: now}
	return nil
}

func (b *fakeBackend) CandidateChunks(ctx context.Context, docIDs []string, folder string) ([]model.Chunk, []model.Embedding, []model.Document, error) {
	var chunks []model.Chunk
	var embeddings []model.Embedding
	var docs []model.Document
	for docID, cs := range b.chunks {
		doc := b.docs[docID]
		if len(docIDs) > 0 && !contains(docIDs, docID) {
			continue
		}
		if folder != "" && doc.Folder != folder {
			continue
		}
		for _, c := range cs {
			chunks = append(chunks, c)
			embeddings = append(embeddings, b.embeddings[c.ID])
			docs = append(docs, *doc)
		}
	}
	return chunks, embeddings, docs, nil
}

func (b *fakeBackend) CreateMemory(ctx context.Context, mem *model.Memory) error {
	b.memories = append(b.memories, *mem)
	return nil
}

func (b *fakeBackend) ListMemories(ctx context.Context, category model.MemoryCategory) ([]model.Memory, error) {
	return b.memories, nil
}

func contains(ss []string, s string) bool {
	for _, v := range ss {
		if v == s {
			return true
		}
	}
	return false
}

// wordVectorEmbedServer fakes the embedding service: each text's vector
// is textVector(text), so texts sharing vocabulary score similarly under
// cosine similarity.
func wordVectorEmbedServer(t *testing.T) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req embedRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("decode embed request: %v", err)
		}
		vectors := make([][]float32, len(req.Texts))
		for i, text := range req.Texts {
			vectors[i] = textVector(text)
		}
		_ = json.NewEncoder(w).Encode(embedResponse{Vectors: vectors, Dim: 4, Model: "fake-embed"})
	}))
}

// textVector builds a crude bag-of-words vector over 4 fixed terms so
// cosine similarity meaningfully ranks "beta gamma"-containing chunks
// above unrelated ones.
func textVector(text string) []float32 {
	terms := []string{"alpha", "beta", "gamma", "delta"}
	lower := strings.ToLower(text)
	v := make([]float32, len(terms))
	for i, term := range terms {
		v[i] = float32(strings.Count(lower, term))
	}
	return v
}

func TestIngestBatchThenRetrieveFindsRelevantChunk(t *testing.T) {
	srv := wordVectorEmbedServer(t)
	defer srv.Close()

	backend := newFakeBackend()
	embedder := NewEmbedder(srv.URL, nil)
	fixedNow := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	pipeline := New(backend, embedder, func() time.Time { return fixedNow })

	text := strings.Repeat("alpha beta gamma delta ", 200)
	results, err := pipeline.IngestBatch(context.Background(), []IngestInput{{Title: "doc1", Text: text}}, ExistsAllow)
	if err != nil {
		t.Fatalf("IngestBatch: %v", err)
	}
	if len(results) != 1 || results[0].ChunkCount <= 1 {
		t.Fatalf("expected multiple chunks, got %+v", results)
	}

	ctxStr, err := pipeline.Retrieve(context.Background(), "beta gamma", RetrieveOptions{TopK: 2})
	if err != nil {
		t.Fatalf("Retrieve: %v", err)
	}
	if !strings.HasPrefix(ctxStr, "Relevant Context (RAG):") {
		t.Fatalf("unexpected context prefix: %q", ctxStr)
	}
	if !strings.Contains(ctxStr, "beta gamma") {
		t.Fatalf("expected top hit to contain query terms, got %q", ctxStr)
	}
}

func TestRetrieveWithHighMinScoreReturnsEmpty(t *testing.T) {
	srv := wordVectorEmbedServer(t)
	defer srv.Close()

	backend := newFakeBackend()
	embedder := NewEmbedder(srv.URL, nil)
	pipeline := New(backend, embedder, nil)

	if _, err := pipeline.IngestBatch(context.Background(), []IngestInput{{Title: "doc1", Text: "alpha beta gamma delta"}}, ExistsAllow); err != nil {
		t.Fatalf("IngestBatch: %v", err)
	}

	ctxStr, err := pipeline.Retrieve(context.Background(), "alpha beta gamma delta", RetrieveOptions{MinScore: floatPtr(1.5)})
	if err != nil {
		t.Fatalf("Retrieve: %v", err)
	}
	if ctxStr != "" {
		t.Fatalf("expected empty context above highest score, got %q", ctxStr)
	}
}

func TestRetrieveWithExplicitZeroMinScoreDisablesFloor(t *testing.T) {
	srv := wordVectorEmbedServer(t)
	defer srv.Close()

	backend := newFakeBackend()
	embedder := NewEmbedder(srv.URL, nil)
	pipeline := New(backend, embedder, nil)

	if _, err := pipeline.IngestBatch(context.Background(), []IngestInput{{Title: "doc1", Text: "zeta eta theta"}}, ExistsAllow); err != nil {
		t.Fatalf("IngestBatch: %v", err)
	}

	hits, err := pipeline.Search(context.Background(), "alpha beta gamma delta", RetrieveOptions{MinScore: floatPtr(0)})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(hits) == 0 {
		t.Fatalf("expected an explicit zero MinScore to disable the floor and return the unrelated chunk")
	}
}

func floatPtr(v float64) *float64 { return &v }

func TestIngestBatchSkipPolicyDropsDuplicateTitle(t *testing.T) {
	srv := wordVectorEmbedServer(t)
	defer srv.Close()

	backend := newFakeBackend()
	embedder := NewEmbedder(srv.URL, nil)
	pipeline := New(backend, embedder, nil)
	ctx := context.Background()

	if _, err := pipeline.IngestBatch(ctx, []IngestInput{{Title: "Notes", Text: "first version"}}, ExistsAllow); err != nil {
		t.Fatalf("first ingest: %v", err)
	}

	results, err := pipeline.IngestBatch(ctx, []IngestInput{{Title: "notes", Text: "second version"}}, ExistsSkip)
	if err != nil {
		t.Fatalf("second ingest: %v", err)
	}
	if len(results) != 1 || !results[0].Skipped {
		t.Fatalf("expected the duplicate title to be skipped, got %+v", results)
	}
}

func TestAddMemoryCreatesMirrorDocument(t *testing.T) {
	srv := wordVectorEmbedServer(t)
	defer srv.Close()

	backend := newFakeBackend()
	embedder := NewEmbedder(srv.URL, nil)
	pipeline := New(backend, embedder, nil)

	mem, err := pipeline.AddMemory(context.Background(), model.MemoryArchitecture, "Auth flow", "uses PBKDF2 and AES-GCM", "manual")
	if err != nil {
		t.Fatalf("AddMemory: %v", err)
	}
	doc, ok := backend.docs[mem.DocumentID]
	if !ok {
		t.Fatal("expected mirror document to be created")
	}
	if doc.Title != "Memory: Auth flow" || doc.SourceType != model.SourceManual {
		t.Fatalf("unexpected mirror document %+v", doc)
	}
}

func TestInferMIME(t *testing.T) {
	cases := map[string]string{
		"notes.md":   "text/markdown",
		"data.csv":   "text/csv",
		"weird.xyz":  "application/octet-stream",
		"report.pdf": "application/pdf",
	}
	for path, want := range cases {
		if got := InferMIME(path); got != want {
			t.Errorf("InferMIME(%q) = %q, want %q", path, got, want)
		}
	}
}
