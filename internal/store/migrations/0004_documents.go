package migrations

import (
	"context"
	"database/sql"
)

func createDocuments(ctx context.Context, db *sql.DB) error {
	_, err := db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS documents (
		id TEXT PRIMARY KEY,
		title TEXT NOT NULL,
		source_type TEXT NOT NULL CHECK (source_type IN ('upload','manual')),
		source_uri TEXT NOT NULL DEFAULT '',
		mime_type TEXT NOT NULL DEFAULT '',
		created_at DATETIME NOT NULL
	)`)
	return err
}
