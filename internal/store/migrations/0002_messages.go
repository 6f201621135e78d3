package migrations

import (
	"context"
	"database/sql"
)

func createMessages(ctx context.Context, db *sql.DB) error {
	_, err := db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS messages (
		conversation_id TEXT NOT NULL REFERENCES conversations(id) ON DELETE CASCADE,
		ordinal INTEGER NOT NULL,
		role TEXT NOT NULL CHECK (role IN ('user','assistant','system')),
		content TEXT NOT NULL,
		created_at DATETIME NOT NULL,
		PRIMARY KEY (conversation_id, ordinal)
	)`)
	return err
}
