package rag

import (
	"context"
	"fmt"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/consultd/consultd/internal/apierr"
	"github.com/consultd/consultd/internal/idgen"
	"github.com/consultd/consultd/internal/model"
)

// Backend is the subset of the store the RAG pipeline depends on.
type Backend interface {
	CreateDocument(ctx context.Context, doc *model.Document) error
	GetDocument(ctx context.Context, id string) (*model.Document, error)
	ListDocuments(ctx context.Context, folder string) ([]model.Document, error)
	ListFolders(ctx context.Context) ([]string, error)
	DeleteDocument(ctx context.Context, id string) error
	InsertChunks(ctx context.Context, documentID string, contents []string, tokenCounts []int, now time.Time) ([]int64, error)
	ChunksByDocument(ctx context.Context, documentID string) ([]model.Chunk, error)
	UpsertEmbedding(ctx context.Context, chunkID int64, vector []byte, dim int, modelName string, now time.Time) error
	CandidateChunks(ctx context.Context, docIDs []string, folder string) ([]model.Chunk, []model.Embedding, []model.Document, error)
	CreateMemory(ctx context.Context, mem *model.Memory) error
	ListMemories(ctx context.Context, category model.MemoryCategory) ([]model.Memory, error)
}

// Now is overridable in tests; defaults to time.Now.
type Now func() time.Time

// Pipeline implements chunk → embed → store ingest and
// embed → candidate-load → rank retrieval (spec §4.H).
type Pipeline struct {
	store     Backend
	embedder  *Embedder
	chunkSize int
	overlap   int
	now       Now
}

// New builds a Pipeline with the default chunk size/overlap.
func New(store Backend, embedder *Embedder, now Now) *Pipeline {
	if now == nil {
		now = time.Now
	}
	return &Pipeline{store: store, embedder: embedder, chunkSize: defaultChunkSize, overlap: defaultOverlap, now: now}
}

// ExistsPolicy is the per-batch duplicate handling for IngestText/
// upload (spec §4.H).
type ExistsPolicy string

const (
	ExistsSkip    ExistsPolicy = "skip"
	ExistsAllow   ExistsPolicy = "allow"
	ExistsReplace ExistsPolicy = "replace"
)

// IngestInput is one file's worth of text to ingest.
type IngestInput struct {
	Title    string
	Text     string
	MimeType string
	Folder   string
}

// IngestResult reports what happened for one input.
type IngestResult struct {
	DocumentID string
	Skipped    bool
	ChunkCount int
}

// IngestBatch ingests a batch of inputs honoring the duplicate policy,
// deduplicating by normalized title within the batch itself for the
// skip/replace policies (spec §4.H).
func (p *Pipeline) IngestBatch(ctx context.Context, inputs []IngestInput, policy ExistsPolicy) ([]IngestResult, error) {
	existing, err := p.store.ListDocuments(ctx, "")
	if err != nil {
		return nil, err
	}
	existingByTitle := make(map[string]model.Document, len(existing))
	for _, d := range existing {
		existingByTitle[normalizeTitle(d.Title)] = d
	}

	seenInBatch := make(map[string]bool)
	results := make([]IngestResult, 0, len(inputs))

	for _, in := range inputs {
		norm := normalizeTitle(in.Title)

		if policy != ExistsAllow {
			if seenInBatch[norm] {
				results = append(results, IngestResult{Skipped: true})
				continue
			}
			seenInBatch[norm] = true
		}

		if doc, ok := existingByTitle[norm]; ok {
			switch policy {
			case ExistsSkip:
				results = append(results, IngestResult{DocumentID: doc.ID, Skipped: true})
				continue
			case ExistsReplace:
				if err := p.store.DeleteDocument(ctx, doc.ID); err != nil {
					return nil, err
				}
			case ExistsAllow:
				// fall through to insert unconditionally
			}
		}

		res, err := p.ingestOne(ctx, in)
		if err != nil {
			return nil, err
		}
		results = append(results, res)
	}
	return results, nil
}

func (p *Pipeline) ingestOne(ctx context.Context, in IngestInput) (IngestResult, error) {
	now := p.now()
	docID := idgen.NewDocumentID(in.Title)

	doc := &model.Document{
		ID:         docID,
		Title:      in.Title,
		SourceType: model.SourceUpload,
		MimeType:   in.MimeType,
		Folder:     in.Folder,
		CreatedAt:  now,
	}
	if err := p.store.CreateDocument(ctx, doc); err != nil {
		return IngestResult{}, err
	}

	chunkCount, err := p.chunkEmbedStore(ctx, docID, in.Text, now)
	if err != nil {
		return IngestResult{}, err
	}

	return IngestResult{DocumentID: docID, ChunkCount: chunkCount}, nil
}

func (p *Pipeline) chunkEmbedStore(ctx context.Context, documentID, text string, now time.Time) (int, error) {
	chunks := ChunkText(text, p.chunkSize, p.overlap)
	if len(chunks) == 0 {
		return 0, nil
	}

	tokenCounts := make([]int, len(chunks))
	for i, c := range chunks {
		tokenCounts[i] = EstimateTokens(c)
	}

	ids, err := p.store.InsertChunks(ctx, documentID, chunks, tokenCounts, now)
	if err != nil {
		return 0, err
	}

	vectors, dim, modelName, err := p.embedder.EmbedBatched(ctx, chunks)
	if err != nil {
		return 0, err
	}
	for i, vec := range vectors {
		if i >= len(ids) {
			break
		}
		if err := p.store.UpsertEmbedding(ctx, ids[i], EncodeVector(vec), dim, modelName, now); err != nil {
			return 0, err
		}
	}
	return len(chunks), nil
}

// Reindex re-chunks and re-embeds an existing document's text (the
// concatenation of its current chunks), replacing its embeddings.
func (p *Pipeline) Reindex(ctx context.Context, documentID string) (int, error) {
	chunks, err := p.store.ChunksByDocument(ctx, documentID)
	if err != nil {
		return 0, err
	}
	var text strings.Builder
	for i, c := range chunks {
		if i > 0 {
			text.WriteByte(' ')
		}
		text.WriteString(c.Content)
	}
	return p.chunkEmbedStore(ctx, documentID, text.String(), p.now())
}

// RetrieveOptions filters and bounds a retrieve() call (spec §4.H).
// MinScore is a pointer so an explicit 0 (disable the floor entirely,
// per spec.md §8 scenario 4) is distinguishable from "omitted, use the
// default floor."
type RetrieveOptions struct {
	DocIDs    []string
	DocTitles []string
	Folder    string
	TopK      int
	MinScore  *float64
}

const (
	defaultTopK     = 4
	defaultMinScore = 0.35
)

// Hit is one ranked chunk returned by Search, exported so the REST
// boundary's /rag/search endpoint can render per-hit scores and
// snippets instead of the flattened context string Retrieve produces.
type Hit struct {
	Score   float64
	Title   string
	Source  model.SourceType
	Index   int
	Content string
}

// Search embeds the query, loads and filters candidate chunks, scores
// them by cosine similarity, and returns the ranked hits above minScore
// truncated to topK (spec §4.H steps 1-4).
func (p *Pipeline) Search(ctx context.Context, query string, opts RetrieveOptions) ([]Hit, error) {
	topK := opts.TopK
	if topK <= 0 {
		topK = defaultTopK
	}
	minScore := defaultMinScore
	if opts.MinScore != nil {
		minScore = *opts.MinScore
	}

	vectors, _, _, err := p.embedder.Embed(ctx, []string{query})
	if err != nil {
		return nil, err
	}
	if len(vectors) == 0 {
		return nil, nil
	}
	queryVec := vectors[0]

	chunks, embeddings, docs, err := p.store.CandidateChunks(ctx, opts.DocIDs, opts.Folder)
	if err != nil {
		return nil, err
	}

	var hits []Hit
	for i, c := range chunks {
		doc := docs[i]
		if len(opts.DocTitles) > 0 && !matchesAnyTitle(doc.Title, opts.DocTitles) {
			continue
		}
		emb := embeddings[i]
		if len(emb.Vector) == 0 {
			continue
		}
		score := CosineSimilarity(queryVec, DecodeVector(emb.Vector))
		if score < minScore {
			continue
		}
		hits = append(hits, Hit{Score: score, Title: doc.Title, Source: doc.SourceType, Index: c.ChunkIndex, Content: c.Content})
	}

	sort.Slice(hits, func(i, j int) bool { return hits[i].Score > hits[j].Score })
	if len(hits) > topK {
		hits = hits[:topK]
	}
	return hits, nil
}

// Retrieve is Search rendered as the flattened context string the
// orchestrator splices into a system prompt (spec §4.H step 5).
func (p *Pipeline) Retrieve(ctx context.Context, query string, opts RetrieveOptions) (string, error) {
	hits, err := p.Search(ctx, query, opts)
	if err != nil {
		return "", err
	}
	if len(hits) == 0 {
		return "", nil
	}
	return renderContext(hits), nil
}

func renderContext(hits []Hit) string {
	var b strings.Builder
	b.WriteString("Relevant Context (RAG):")
	for _, h := range hits {
		fmt.Fprintf(&b, "\n- [%s | %s | chunk #%d] %s", h.Title, h.Source, h.Index, h.Content)
	}
	return b.String()
}

func matchesAnyTitle(title string, filters []string) bool {
	lowered := strings.ToLower(title)
	for _, f := range filters {
		if strings.Contains(lowered, strings.ToLower(f)) {
			return true
		}
	}
	return false
}

// AddMemory persists a Memory note plus a mirror Document titled
// "Memory: <title>" with sourceType manual, then runs it through the
// same chunk → embed → store path so it is retrievable (spec §4.H).
func (p *Pipeline) AddMemory(ctx context.Context, category model.MemoryCategory, title, content, source string) (*model.Memory, error) {
	now := p.now()
	docTitle := "Memory: " + title
	docID := idgen.NewDocumentID(docTitle)

	doc := &model.Document{
		ID:         docID,
		Title:      docTitle,
		SourceType: model.SourceManual,
		CreatedAt:  now,
	}
	if err := p.store.CreateDocument(ctx, doc); err != nil {
		return nil, err
	}

	if _, err := p.chunkEmbedStore(ctx, docID, content, now); err != nil {
		return nil, err
	}

	mem := &model.Memory{
		ID:         idgen.NewMemoryID(title),
		Category:   category,
		Title:      title,
		Content:    content,
		Source:     source,
		CreatedAt:  now,
		DocumentID: docID,
	}
	if err := p.store.CreateMemory(ctx, mem); err != nil {
		return nil, err
	}
	return mem, nil
}

func normalizeTitle(title string) string {
	return strings.ToLower(strings.TrimSpace(title))
}

// InferMIME maps a file extension to a MIME type per spec §6.
func InferMIME(path string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".md":
		return "text/markdown"
	case ".txt":
		return "text/plain"
	case ".json":
		return "application/json"
	case ".pdf":
		return "application/pdf"
	case ".docx":
		return "application/vnd.openxmlformats-officedocument.wordprocessingml.document"
	case ".csv":
		return "text/csv"
	case ".yaml", ".yml":
		return "application/x-yaml"
	default:
		return "application/octet-stream"
	}
}

// ExtractText turns raw file bytes into plain text based on MIME type.
// PDFs and DOCX require an external parser this package doesn't embed;
// callers should supply already-extracted text for those and only rely
// on ExtractText for plain-text formats.
func ExtractText(mimeType string, data []byte) (string, error) {
	switch mimeType {
	case "application/pdf", "application/vnd.openxmlformats-officedocument.wordprocessingml.document":
		return "", apierr.Newf(apierr.ExternalUnavail, "extraction for %s requires an external parser", mimeType)
	default:
		return string(data), nil
	}
}
