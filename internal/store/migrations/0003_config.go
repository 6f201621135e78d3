package migrations

import (
	"context"
	"database/sql"
)

func createConfig(ctx context.Context, db *sql.DB) error {
	_, err := db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS config_entries (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL
	)`)
	return err
}
