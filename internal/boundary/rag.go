package boundary

import (
	"io"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/consultd/consultd/internal/apierr"
	"github.com/consultd/consultd/internal/model"
	"github.com/consultd/consultd/internal/rag"
)

const snippetLimit = 240

// handleRagListDocuments lists documents, optionally filtered to one
// folder via ?folder=.
func (b *Boundary) handleRagListDocuments(c echo.Context) error {
	docs, err := b.deps.Documents.ListDocuments(c.Request().Context(), c.QueryParam("folder"))
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, docs)
}

// handleRagUpload accepts a multipart form with one or more "files"
// parts and an optional "folder" field, ingesting each file through the
// RAG pipeline under the duplicate policy named by ?policy= (default
// skip, per spec §4.H).
func (b *Boundary) handleRagUpload(c echo.Context) error {
	form, err := c.MultipartForm()
	if err != nil {
		return writeError(c, apierr.Wrap(apierr.ValidationError, err, "malformed multipart form"))
	}
	files := form.File["files"]
	if len(files) == 0 {
		return writeError(c, apierr.Newf(apierr.ValidationError, "no files in upload"))
	}

	policy := rag.ExistsPolicy(c.QueryParam("policy"))
	if policy == "" {
		policy = rag.ExistsSkip
	}
	folder := c.FormValue("folder")

	inputs := make([]rag.IngestInput, 0, len(files))
	for _, fh := range files {
		f, err := fh.Open()
		if err != nil {
			return writeError(c, apierr.Wrap(apierr.ValidationError, err, "could not open uploaded file"))
		}
		data, err := io.ReadAll(f)
		f.Close()
		if err != nil {
			return writeError(c, apierr.Wrap(apierr.ValidationError, err, "could not read uploaded file"))
		}

		mimeType := rag.InferMIME(fh.Filename)
		text, err := rag.ExtractText(mimeType, data)
		if err != nil {
			return writeError(c, err)
		}

		inputs = append(inputs, rag.IngestInput{
			Title:    fh.Filename,
			Text:     text,
			MimeType: mimeType,
			Folder:   folder,
		})
	}

	results, err := b.deps.RAG.IngestBatch(c.Request().Context(), inputs, policy)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, results)
}

// handleRagDeleteDocument removes one document and its chunks/embeddings.
func (b *Boundary) handleRagDeleteDocument(c echo.Context) error {
	if err := b.deps.Documents.DeleteDocument(c.Request().Context(), c.Param("id")); err != nil {
		return writeError(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}

// handleRagDocumentChunks lists the chunks belonging to one document.
func (b *Boundary) handleRagDocumentChunks(c echo.Context) error {
	chunks, err := b.deps.Documents.ChunksByDocument(c.Request().Context(), c.Param("id"))
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, chunks)
}

// handleRagReindex re-chunks and re-embeds one document's existing text.
func (b *Boundary) handleRagReindex(c echo.Context) error {
	n, err := b.deps.RAG.Reindex(c.Request().Context(), c.Param("id"))
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, map[string]int{"chunkCount": n})
}

// handleRagListFolders lists the distinct folder names in use.
func (b *Boundary) handleRagListFolders(c echo.Context) error {
	folders, err := b.deps.Documents.ListFolders(c.Request().Context())
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, folders)
}

// handleRagDeleteFolder bulk-deletes every document in a folder. There is
// no dedicated folder row to drop; deleting its documents is equivalent
// since a folder is just a Document.Folder value.
func (b *Boundary) handleRagDeleteFolder(c echo.Context) error {
	ctx := c.Request().Context()
	folder := c.Param("folder")

	docs, err := b.deps.Documents.ListDocuments(ctx, folder)
	if err != nil {
		return writeError(c, err)
	}
	for _, d := range docs {
		if err := b.deps.Documents.DeleteDocument(ctx, d.ID); err != nil {
			return writeError(c, err)
		}
	}
	return c.JSON(http.StatusOK, map[string]int{"deleted": len(docs)})
}

type ragSearchBody struct {
	Query     string   `json:"query"`
	DocIDs    []string `json:"docIds"`
	DocTitles []string `json:"docTitles"`
	Folder    string   `json:"folder"`
	TopK      int      `json:"topK"`
	// MinScore is a pointer so an explicit 0 (disable the relevance
	// floor) survives JSON decoding distinguishably from "omitted".
	MinScore *float64 `json:"minScore"`
}

type ragSearchHit struct {
	Score      float64          `json:"score"`
	Title      string           `json:"title"`
	SourceType model.SourceType `json:"sourceType"`
	ChunkIndex int              `json:"chunkIndex"`
	Snippet    string           `json:"snippet"`
}

type ragSearchResponse struct {
	Query          string         `json:"query"`
	ContextPreview string         `json:"contextPreview"`
	Hits           []ragSearchHit `json:"hits"`
}

// handleRagSearch runs a retrieval query and returns both the ranked
// hits and the rendered context string the orchestrator would splice
// into a system prompt (spec §6).
func (b *Boundary) handleRagSearch(c echo.Context) error {
	var body ragSearchBody
	if err := c.Bind(&body); err != nil {
		return writeError(c, apierr.Wrap(apierr.ValidationError, err, "malformed request body"))
	}
	if strings.TrimSpace(body.Query) == "" {
		return writeError(c, apierr.Newf(apierr.ValidationError, "query is required"))
	}

	opts := rag.RetrieveOptions{
		DocIDs:    body.DocIDs,
		DocTitles: body.DocTitles,
		Folder:    body.Folder,
		TopK:      body.TopK,
		MinScore:  body.MinScore,
	}

	hits, err := b.deps.RAG.Search(c.Request().Context(), body.Query, opts)
	if err != nil {
		return writeError(c, err)
	}

	resp := ragSearchResponse{Query: body.Query, Hits: make([]ragSearchHit, 0, len(hits))}
	for _, h := range hits {
		resp.Hits = append(resp.Hits, ragSearchHit{
			Score:      h.Score,
			Title:      h.Title,
			SourceType: h.Source,
			ChunkIndex: h.Index,
			Snippet:    snippet(h.Content),
		})
	}
	if len(hits) > 0 {
		preview, err := b.deps.RAG.Retrieve(c.Request().Context(), body.Query, opts)
		if err != nil {
			return writeError(c, err)
		}
		resp.ContextPreview = preview
	}
	return c.JSON(http.StatusOK, resp)
}

func snippet(content string) string {
	if len(content) <= snippetLimit {
		return content
	}
	return content[:snippetLimit] + "…"
}

type ragMemoryBody struct {
	Category model.MemoryCategory `json:"category"`
	Title    string               `json:"title"`
	Content  string               `json:"content"`
	Source   string               `json:"source"`
}

// handleRagAddMemory persists a structured Memory note and mirrors it
// into the Document/Chunk/Embedding path so it is retrievable.
func (b *Boundary) handleRagAddMemory(c echo.Context) error {
	var body ragMemoryBody
	if err := c.Bind(&body); err != nil {
		return writeError(c, apierr.Wrap(apierr.ValidationError, err, "malformed request body"))
	}
	if strings.TrimSpace(body.Title) == "" || strings.TrimSpace(body.Content) == "" {
		return writeError(c, apierr.Newf(apierr.ValidationError, "title and content are required"))
	}

	mem, err := b.deps.RAG.AddMemory(c.Request().Context(), body.Category, body.Title, body.Content, body.Source)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, mem)
}
