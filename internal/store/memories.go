package store

import (
	"context"
	"database/sql"
	"errors"

	"github.com/consultd/consultd/internal/apierr"
	"github.com/consultd/consultd/internal/model"
)

// CreateMemory inserts a memory note, linked to its mirror document.
func (s *Store) CreateMemory(ctx context.Context, mem *model.Memory) error {
	ctx, span := s.span(ctx, "CreateMemory")
	defer span.End()

	_, err := s.write.ExecContext(ctx, `
		INSERT INTO memories (id, category, title, content, source, document_id, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, mem.ID, mem.Category, mem.Title, mem.Content, mem.Source, nullableString(mem.DocumentID), mem.CreatedAt)
	if err != nil {
		return apierr.Wrap(apierr.Internal, err, "insert memory")
	}
	return nil
}

// ListMemories returns memories, optionally filtered by category.
func (s *Store) ListMemories(ctx context.Context, category model.MemoryCategory) ([]model.Memory, error) {
	ctx, span := s.span(ctx, "ListMemories")
	defer span.End()

	query := `SELECT id, category, title, content, source, document_id, created_at FROM memories`
	args := []interface{}{}
	if category != "" {
		query += ` WHERE category = ?`
		args = append(args, category)
	}
	query += ` ORDER BY created_at DESC`

	rows, err := s.read.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, apierr.Wrap(apierr.Internal, err, "list memories")
	}
	defer rows.Close()

	var out []model.Memory
	for rows.Next() {
		var m model.Memory
		var docID sql.NullString
		if err := rows.Scan(&m.ID, &m.Category, &m.Title, &m.Content, &m.Source, &docID, &m.CreatedAt); err != nil {
			return nil, apierr.Wrap(apierr.Internal, err, "scan memory row")
		}
		m.DocumentID = docID.String
		out = append(out, m)
	}
	return out, rows.Err()
}

// GetMemory loads one memory by id.
func (s *Store) GetMemory(ctx context.Context, id string) (*model.Memory, error) {
	ctx, span := s.span(ctx, "GetMemory")
	defer span.End()

	var m model.Memory
	var docID sql.NullString
	err := s.read.QueryRowContext(ctx, `
		SELECT id, category, title, content, source, document_id, created_at
		FROM memories WHERE id = ?
	`, id).Scan(&m.ID, &m.Category, &m.Title, &m.Content, &m.Source, &docID, &m.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apierr.Newf(apierr.NotFound, "memory %s not found", id)
	}
	if err != nil {
		return nil, apierr.Wrap(apierr.Internal, err, "scan memory")
	}
	m.DocumentID = docID.String
	return &m, nil
}
