package migrations

import (
	"context"
	"database/sql"
)

func createEmbeddings(ctx context.Context, db *sql.DB) error {
	_, err := db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS embeddings (
		chunk_id INTEGER PRIMARY KEY REFERENCES chunks(id) ON DELETE CASCADE,
		vector BLOB NOT NULL,
		dim INTEGER NOT NULL,
		model TEXT NOT NULL,
		created_at DATETIME NOT NULL
	)`)
	return err
}
