// Package migrations holds the store's idempotent, numbered schema
// migrations. Each is safe to re-run against an already-migrated database.
package migrations

import (
	"context"
	"database/sql"
	"fmt"
)

// migration is one numbered, idempotent schema step.
type migration struct {
	id   int
	name string
	fn   func(ctx context.Context, db *sql.DB) error
}

var all = []migration{
	{1, "create_conversations", createConversations},
	{2, "create_messages", createMessages},
	{3, "create_config", createConfig},
	{4, "create_documents", createDocuments},
	{5, "create_chunks", createChunks},
	{6, "create_embeddings", createEmbeddings},
	{7, "create_memories", createMemories},
	{8, "strip_repo_scan_enum", stripRepoScanEnum},
	{9, "add_documents_folder", addDocumentsFolder},
	{10, "create_indices", createIndices},
}

// Run applies every pending migration in order and then records it in
// schema_migrations; Run does not wrap a migration and its record in one
// transaction. Each migration function must itself be idempotent (checked via
// pragma_table_info or IF NOT EXISTS) so re-running Run against a fully
// migrated database is a no-op.
func Run(ctx context.Context, db *sql.DB) error {
	if _, err := db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS schema_migrations (
		id INTEGER PRIMARY KEY,
		name TEXT NOT NULL,
		applied_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
	)`); err != nil {
		return fmt.Errorf("create schema_migrations: %w", err)
	}

	for _, m := range all {
		var applied bool
		err := db.QueryRowContext(ctx, `SELECT COUNT(*) > 0 FROM schema_migrations WHERE id = ?`, m.id).Scan(&applied)
		if err != nil {
			return fmt.Errorf("check migration %d: %w", m.id, err)
		}
		if applied {
			continue
		}
		if err := m.fn(ctx, db); err != nil {
			return fmt.Errorf("migration %d (%s): %w", m.id, m.name, err)
		}
		if _, err := db.ExecContext(ctx, `INSERT INTO schema_migrations (id, name) VALUES (?, ?)`, m.id, m.name); err != nil {
			return fmt.Errorf("record migration %d: %w", m.id, err)
		}
	}
	return nil
}

func hasColumn(ctx context.Context, db *sql.DB, table, column string) (bool, error) {
	var exists bool
	err := db.QueryRowContext(ctx, `
		SELECT COUNT(*) > 0
		FROM pragma_table_info(?)
		WHERE name = ?
	`, table, column).Scan(&exists)
	return exists, err
}
