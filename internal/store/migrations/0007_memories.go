package migrations

import (
	"context"
	"database/sql"
)

func createMemories(ctx context.Context, db *sql.DB) error {
	_, err := db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS memories (
		id TEXT PRIMARY KEY,
		category TEXT NOT NULL,
		title TEXT NOT NULL,
		content TEXT NOT NULL,
		source TEXT NOT NULL DEFAULT 'manual',
		document_id TEXT REFERENCES documents(id) ON DELETE SET NULL,
		created_at DATETIME NOT NULL
	)`)
	return err
}
