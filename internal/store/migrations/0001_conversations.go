package migrations

import (
	"context"
	"database/sql"
)

func createConversations(ctx context.Context, db *sql.DB) error {
	_, err := db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS conversations (
		id TEXT PRIMARY KEY,
		model TEXT NOT NULL,
		system_prompt TEXT NOT NULL DEFAULT '',
		status TEXT NOT NULL CHECK (status IN ('active','archived')),
		end_reason TEXT,
		created_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL,
		ended_at DATETIME
	)`)
	return err
}
