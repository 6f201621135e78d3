package store

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/consultd/consultd/internal/apierr"
	"github.com/consultd/consultd/internal/model"
)

// CreateConversation inserts a new active conversation.
func (s *Store) CreateConversation(ctx context.Context, id, modelName, systemPrompt string, now time.Time) (*model.Conversation, error) {
	ctx, span := s.span(ctx, "CreateConversation")
	defer span.End()

	_, err := s.write.ExecContext(ctx, `
		INSERT INTO conversations (id, model, system_prompt, status, created_at, updated_at)
		VALUES (?, ?, ?, 'active', ?, ?)
	`, id, modelName, systemPrompt, now, now)
	if err != nil {
		return nil, apierr.Wrap(apierr.Internal, err, "insert conversation")
	}

	return &model.Conversation{
		ID:           id,
		Model:        modelName,
		SystemPrompt: systemPrompt,
		Status:       model.ConversationActive,
		CreatedAt:    now,
		UpdatedAt:    now,
	}, nil
}

// GetConversation loads a conversation with its messages in ascending
// ordinal order. Returns apierr.NotFound when id is unknown.
func (s *Store) GetConversation(ctx context.Context, id string) (*model.Conversation, error) {
	ctx, span := s.span(ctx, "GetConversation")
	defer span.End()

	conv, err := s.scanConversation(ctx, id)
	if err != nil {
		return nil, err
	}

	rows, err := s.read.QueryContext(ctx, `
		SELECT ordinal, role, content, created_at
		FROM messages WHERE conversation_id = ? ORDER BY ordinal ASC
	`, id)
	if err != nil {
		return nil, apierr.Wrap(apierr.Internal, err, "query messages")
	}
	defer rows.Close()

	for rows.Next() {
		var m model.Message
		m.ConversationID = id
		if err := rows.Scan(&m.Ordinal, &m.Role, &m.Content, &m.CreatedAt); err != nil {
			return nil, apierr.Wrap(apierr.Internal, err, "scan message")
		}
		conv.Messages = append(conv.Messages, m)
	}
	if err := rows.Err(); err != nil {
		return nil, apierr.Wrap(apierr.Internal, err, "iterate messages")
	}

	return conv, nil
}

func (s *Store) scanConversation(ctx context.Context, id string) (*model.Conversation, error) {
	var conv model.Conversation
	var endReason sql.NullString
	var endedAt sql.NullTime

	err := s.read.QueryRowContext(ctx, `
		SELECT id, model, system_prompt, status, end_reason, created_at, updated_at, ended_at
		FROM conversations WHERE id = ?
	`, id).Scan(&conv.ID, &conv.Model, &conv.SystemPrompt, &conv.Status, &endReason, &conv.CreatedAt, &conv.UpdatedAt, &endedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apierr.Newf(apierr.NotFound, "conversation %s not found", id)
	}
	if err != nil {
		return nil, apierr.Wrap(apierr.Internal, err, "scan conversation")
	}
	if endReason.Valid {
		r := model.EndReason(endReason.String)
		conv.EndReason = &r
	}
	if endedAt.Valid {
		t := endedAt.Time
		conv.EndedAt = &t
	}
	return &conv, nil
}

// ListConversations returns conversations with the given status, most
// recently updated first.
func (s *Store) ListConversations(ctx context.Context, status model.ConversationStatus) ([]model.Conversation, error) {
	ctx, span := s.span(ctx, "ListConversations")
	defer span.End()

	rows, err := s.read.QueryContext(ctx, `
		SELECT id, model, system_prompt, status, end_reason, created_at, updated_at, ended_at
		FROM conversations WHERE status = ? ORDER BY updated_at DESC
	`, status)
	if err != nil {
		return nil, apierr.Wrap(apierr.Internal, err, "list conversations")
	}
	defer rows.Close()

	var out []model.Conversation
	for rows.Next() {
		var conv model.Conversation
		var endReason sql.NullString
		var endedAt sql.NullTime
		if err := rows.Scan(&conv.ID, &conv.Model, &conv.SystemPrompt, &conv.Status, &endReason, &conv.CreatedAt, &conv.UpdatedAt, &endedAt); err != nil {
			return nil, apierr.Wrap(apierr.Internal, err, "scan conversation row")
		}
		if endReason.Valid {
			r := model.EndReason(endReason.String)
			conv.EndReason = &r
		}
		if endedAt.Valid {
			t := endedAt.Time
			conv.EndedAt = &t
		}
		out = append(out, conv)
	}
	return out, rows.Err()
}

// AddMessage appends a message, bumping the conversation's updatedAt.
// Returns apierr.LimitExceeded if the 2*maxMessages cap is already hit,
// apierr.NotFound if the conversation doesn't exist.
func (s *Store) AddMessage(ctx context.Context, convID string, role model.MessageRole, content string, maxMessages int, now time.Time) (*model.Message, int, error) {
	ctx, span := s.span(ctx, "AddMessage")
	defer span.End()

	tx, err := s.write.BeginTx(ctx, nil)
	if err != nil {
		return nil, 0, apierr.Wrap(apierr.Internal, err, "begin tx")
	}
	defer tx.Rollback()

	var status string
	err = tx.QueryRowContext(ctx, `SELECT status FROM conversations WHERE id = ?`, convID).Scan(&status)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, 0, apierr.Newf(apierr.NotFound, "conversation %s not found", convID)
	}
	if err != nil {
		return nil, 0, apierr.Wrap(apierr.Internal, err, "check conversation status")
	}

	var count int
	if err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM messages WHERE conversation_id = ?`, convID).Scan(&count); err != nil {
		return nil, 0, apierr.Wrap(apierr.Internal, err, "count messages")
	}
	cap := 2 * maxMessages
	if count >= cap {
		return nil, count, apierr.Newf(apierr.LimitExceeded, "conversation %s has reached the %d message cap", convID, cap)
	}

	ordinal := count
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO messages (conversation_id, ordinal, role, content, created_at)
		VALUES (?, ?, ?, ?, ?)
	`, convID, ordinal, role, content, now); err != nil {
		return nil, 0, apierr.Wrap(apierr.Internal, err, "insert message")
	}

	if _, err := tx.ExecContext(ctx, `UPDATE conversations SET updated_at = ? WHERE id = ?`, now, convID); err != nil {
		return nil, 0, apierr.Wrap(apierr.Internal, err, "bump updated_at")
	}

	if err := tx.Commit(); err != nil {
		return nil, 0, apierr.Wrap(apierr.Internal, err, "commit")
	}

	return &model.Message{
		ConversationID: convID,
		Ordinal:        ordinal,
		Role:           role,
		Content:        content,
		CreatedAt:      now,
	}, count + 1, nil
}

// ArchiveConversation flips status to archived and stamps endReason/endedAt.
// Idempotent: returns changed=false if the conversation is already archived.
func (s *Store) ArchiveConversation(ctx context.Context, id string, reason model.EndReason, now time.Time) (changed bool, err error) {
	ctx, span := s.span(ctx, "ArchiveConversation")
	defer span.End()

	res, err := s.write.ExecContext(ctx, `
		UPDATE conversations SET status = 'archived', end_reason = ?, ended_at = ?
		WHERE id = ? AND status = 'active'
	`, reason, now, id)
	if err != nil {
		return false, apierr.Wrap(apierr.Internal, err, "archive conversation")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, apierr.Wrap(apierr.Internal, err, "rows affected")
	}
	if n == 0 {
		var exists bool
		if err := s.read.QueryRowContext(ctx, `SELECT COUNT(*) > 0 FROM conversations WHERE id = ?`, id).Scan(&exists); err != nil {
			return false, apierr.Wrap(apierr.Internal, err, "check existence")
		}
		if !exists {
			return false, apierr.Newf(apierr.NotFound, "conversation %s not found", id)
		}
		return false, nil
	}
	return true, nil
}

// SweepStale archives every active conversation whose updatedAt is older
// than cutoff, returning the affected ids.
func (s *Store) SweepStale(ctx context.Context, cutoff, now time.Time) ([]string, error) {
	ctx, span := s.span(ctx, "SweepStale")
	defer span.End()

	rows, err := s.read.QueryContext(ctx, `SELECT id FROM conversations WHERE status = 'active' AND updated_at < ?`, cutoff)
	if err != nil {
		return nil, apierr.Wrap(apierr.Internal, err, "query stale conversations")
	}
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return nil, apierr.Wrap(apierr.Internal, err, "scan stale id")
		}
		ids = append(ids, id)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, apierr.Wrap(apierr.Internal, err, "iterate stale ids")
	}

	if len(ids) == 0 {
		return nil, nil
	}

	if _, err := s.write.ExecContext(ctx, `
		UPDATE conversations SET status = 'archived', end_reason = 'timeout', ended_at = ?
		WHERE status = 'active' AND updated_at < ?
	`, now, cutoff); err != nil {
		return nil, apierr.Wrap(apierr.Internal, err, "sweep update")
	}

	return ids, nil
}

// DeleteConversation hard-deletes a conversation and its messages.
func (s *Store) DeleteConversation(ctx context.Context, id string) error {
	ctx, span := s.span(ctx, "DeleteConversation")
	defer span.End()

	res, err := s.write.ExecContext(ctx, `DELETE FROM conversations WHERE id = ?`, id)
	if err != nil {
		return apierr.Wrap(apierr.Internal, err, "delete conversation")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return apierr.Wrap(apierr.Internal, err, "rows affected")
	}
	if n == 0 {
		return apierr.Newf(apierr.NotFound, "conversation %s not found", id)
	}
	return nil
}

// DeleteAllArchived hard-deletes every archived conversation, returning
// the count removed.
func (s *Store) DeleteAllArchived(ctx context.Context) (int64, error) {
	ctx, span := s.span(ctx, "DeleteAllArchived")
	defer span.End()

	res, err := s.write.ExecContext(ctx, `DELETE FROM conversations WHERE status = 'archived'`)
	if err != nil {
		return 0, apierr.Wrap(apierr.Internal, err, "delete archived conversations")
	}
	return res.RowsAffected()
}
