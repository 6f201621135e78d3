package store

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/consultd/consultd/internal/apierr"
	"github.com/consultd/consultd/internal/model"
)

// CreateDocument inserts a new document row.
func (s *Store) CreateDocument(ctx context.Context, doc *model.Document) error {
	ctx, span := s.span(ctx, "CreateDocument")
	defer span.End()

	_, err := s.write.ExecContext(ctx, `
		INSERT INTO documents (id, title, source_type, source_uri, mime_type, folder, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, doc.ID, doc.Title, doc.SourceType, doc.SourceURI, doc.MimeType, nullableString(doc.Folder), doc.CreatedAt)
	if err != nil {
		return apierr.Wrap(apierr.Internal, err, "insert document")
	}
	return nil
}

func nullableString(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}

// GetDocument loads a document by id.
func (s *Store) GetDocument(ctx context.Context, id string) (*model.Document, error) {
	ctx, span := s.span(ctx, "GetDocument")
	defer span.End()

	var doc model.Document
	var folder sql.NullString
	err := s.read.QueryRowContext(ctx, `
		SELECT id, title, source_type, source_uri, mime_type, folder, created_at
		FROM documents WHERE id = ?
	`, id).Scan(&doc.ID, &doc.Title, &doc.SourceType, &doc.SourceURI, &doc.MimeType, &folder, &doc.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apierr.Newf(apierr.NotFound, "document %s not found", id)
	}
	if err != nil {
		return nil, apierr.Wrap(apierr.Internal, err, "scan document")
	}
	doc.Folder = folder.String
	return &doc, nil
}

// ListDocuments returns every document, optionally filtered by folder
// (exact match; empty means no filter).
func (s *Store) ListDocuments(ctx context.Context, folder string) ([]model.Document, error) {
	ctx, span := s.span(ctx, "ListDocuments")
	defer span.End()

	query := `SELECT id, title, source_type, source_uri, mime_type, folder, created_at FROM documents`
	args := []interface{}{}
	if folder != "" {
		query += ` WHERE folder = ?`
		args = append(args, folder)
	}
	query += ` ORDER BY created_at DESC`

	rows, err := s.read.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, apierr.Wrap(apierr.Internal, err, "list documents")
	}
	defer rows.Close()

	var out []model.Document
	for rows.Next() {
		var doc model.Document
		var f sql.NullString
		if err := rows.Scan(&doc.ID, &doc.Title, &doc.SourceType, &doc.SourceURI, &doc.MimeType, &f, &doc.CreatedAt); err != nil {
			return nil, apierr.Wrap(apierr.Internal, err, "scan document row")
		}
		doc.Folder = f.String
		out = append(out, doc)
	}
	return out, rows.Err()
}

// ListFolders returns the distinct, non-empty folder names in use.
func (s *Store) ListFolders(ctx context.Context) ([]string, error) {
	ctx, span := s.span(ctx, "ListFolders")
	defer span.End()

	rows, err := s.read.QueryContext(ctx, `SELECT DISTINCT folder FROM documents WHERE folder IS NOT NULL AND folder != '' ORDER BY folder ASC`)
	if err != nil {
		return nil, apierr.Wrap(apierr.Internal, err, "list folders")
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var f string
		if err := rows.Scan(&f); err != nil {
			return nil, apierr.Wrap(apierr.Internal, err, "scan folder")
		}
		out = append(out, f)
	}
	return out, rows.Err()
}

// DeleteDocument cascades to chunks and embeddings (ON DELETE CASCADE).
func (s *Store) DeleteDocument(ctx context.Context, id string) error {
	ctx, span := s.span(ctx, "DeleteDocument")
	defer span.End()

	res, err := s.write.ExecContext(ctx, `DELETE FROM documents WHERE id = ?`, id)
	if err != nil {
		return apierr.Wrap(apierr.Internal, err, "delete document")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return apierr.Wrap(apierr.Internal, err, "rows affected")
	}
	if n == 0 {
		return apierr.Newf(apierr.NotFound, "document %s not found", id)
	}
	return nil
}

// InsertChunks inserts the chunks for a document in order, returning their
// assigned ids in the same order.
func (s *Store) InsertChunks(ctx context.Context, documentID string, contents []string, tokenCounts []int, now time.Time) ([]int64, error) {
	ctx, span := s.span(ctx, "InsertChunks")
	defer span.End()

	tx, err := s.write.BeginTx(ctx, nil)
	if err != nil {
		return nil, apierr.Wrap(apierr.Internal, err, "begin tx")
	}
	defer tx.Rollback()

	ids := make([]int64, len(contents))
	for i, content := range contents {
		res, err := tx.ExecContext(ctx, `
			INSERT INTO chunks (document_id, chunk_index, content, token_count, created_at)
			VALUES (?, ?, ?, ?, ?)
		`, documentID, i, content, tokenCounts[i], now)
		if err != nil {
			return nil, apierr.Wrap(apierr.Internal, err, "insert chunk")
		}
		id, err := res.LastInsertId()
		if err != nil {
			return nil, apierr.Wrap(apierr.Internal, err, "last insert id")
		}
		ids[i] = id
	}

	if err := tx.Commit(); err != nil {
		return nil, apierr.Wrap(apierr.Internal, err, "commit")
	}
	return ids, nil
}

// ChunksByDocument returns every chunk for a document in index order.
func (s *Store) ChunksByDocument(ctx context.Context, documentID string) ([]model.Chunk, error) {
	ctx, span := s.span(ctx, "ChunksByDocument")
	defer span.End()

	rows, err := s.read.QueryContext(ctx, `
		SELECT id, document_id, chunk_index, content, token_count, created_at
		FROM chunks WHERE document_id = ? ORDER BY chunk_index ASC
	`, documentID)
	if err != nil {
		return nil, apierr.Wrap(apierr.Internal, err, "query chunks")
	}
	defer rows.Close()

	var out []model.Chunk
	for rows.Next() {
		var c model.Chunk
		if err := rows.Scan(&c.ID, &c.DocumentID, &c.ChunkIndex, &c.Content, &c.TokenCount, &c.CreatedAt); err != nil {
			return nil, apierr.Wrap(apierr.Internal, err, "scan chunk")
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// UpsertEmbedding replaces the embedding for chunkID, enforcing the
// at-most-one-per-chunk invariant.
func (s *Store) UpsertEmbedding(ctx context.Context, chunkID int64, vector []byte, dim int, modelName string, now time.Time) error {
	ctx, span := s.span(ctx, "UpsertEmbedding")
	defer span.End()

	_, err := s.write.ExecContext(ctx, `
		INSERT INTO embeddings (chunk_id, vector, dim, model, created_at) VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(chunk_id) DO UPDATE SET vector = excluded.vector, dim = excluded.dim, model = excluded.model, created_at = excluded.created_at
	`, chunkID, vector, dim, modelName, now)
	if err != nil {
		return apierr.Wrap(apierr.Internal, err, "upsert embedding")
	}
	return nil
}

// CandidateChunks loads chunks (with their embeddings, if present) for
// retrieval, filtered by the optional docIds/folder/docTitles constraints.
// docTitles is applied by the caller as a case-insensitive substring
// filter over the joined document title, since SQL's LIKE semantics on
// arbitrary user substrings are easier to get right in Go.
func (s *Store) CandidateChunks(ctx context.Context, docIDs []string, folder string) ([]model.Chunk, []model.Embedding, []model.Document, error) {
	ctx, span := s.span(ctx, "CandidateChunks")
	defer span.End()

	query := `
		SELECT c.id, c.document_id, c.chunk_index, c.content, c.token_count, c.created_at,
		       e.vector, e.dim, e.model, e.created_at,
		       d.id, d.title, d.source_type, d.source_uri, d.mime_type, d.folder, d.created_at
		FROM chunks c
		JOIN documents d ON d.id = c.document_id
		LEFT JOIN embeddings e ON e.chunk_id = c.id
	`
	var conds []string
	var args []interface{}
	if len(docIDs) > 0 {
		placeholders := ""
		for i, id := range docIDs {
			if i > 0 {
				placeholders += ","
			}
			placeholders += "?"
			args = append(args, id)
		}
		conds = append(conds, "c.document_id IN ("+placeholders+")")
	}
	if folder != "" {
		conds = append(conds, "d.folder = ?")
		args = append(args, folder)
	}
	for i, c := range conds {
		if i == 0 {
			query += " WHERE " + c
		} else {
			query += " AND " + c
		}
	}

	rows, err := s.read.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, nil, nil, apierr.Wrap(apierr.Internal, err, "query candidate chunks")
	}
	defer rows.Close()

	var chunks []model.Chunk
	var embeddings []model.Embedding
	var docs []model.Document
	for rows.Next() {
		var c model.Chunk
		var e model.Embedding
		var vec []byte
		var dim sql.NullInt64
		var emodel sql.NullString
		var ecreated sql.NullTime
		var d model.Document
		var dfolder sql.NullString
		if err := rows.Scan(
			&c.ID, &c.DocumentID, &c.ChunkIndex, &c.Content, &c.TokenCount, &c.CreatedAt,
			&vec, &dim, &emodel, &ecreated,
			&d.ID, &d.Title, &d.SourceType, &d.SourceURI, &d.MimeType, &dfolder, &d.CreatedAt,
		); err != nil {
			return nil, nil, nil, apierr.Wrap(apierr.Internal, err, "scan candidate row")
		}
		d.Folder = dfolder.String
		e.ChunkID = c.ID
		e.Vector = vec
		if dim.Valid {
			e.Dim = int(dim.Int64)
		}
		e.Model = emodel.String
		if ecreated.Valid {
			e.CreatedAt = ecreated.Time
		}
		chunks = append(chunks, c)
		embeddings = append(embeddings, e)
		docs = append(docs, d)
	}
	return chunks, embeddings, docs, rows.Err()
}
