package migrations

import (
	"context"
	"database/sql"
	"fmt"
)

// stripRepoScanEnum removes the legacy "repo_scan" sourceType value, which
// predates the upload/manual distinction. Rows are migrated to "upload"
// (repo-scanned files arrived as uploads from the caller's point of view)
// through a shadow table, since SQLite cannot alter a CHECK constraint
// in place. Idempotent: a fresh schema (migration 0004) never produces
// rows with source_type='repo_scan', so this is a no-op after first run.
func stripRepoScanEnum(ctx context.Context, db *sql.DB) error {
	var legacyCount int
	err := db.QueryRowContext(ctx, `SELECT COUNT(*) FROM documents WHERE source_type = 'repo_scan'`).Scan(&legacyCount)
	if err != nil {
		return fmt.Errorf("count repo_scan rows: %w", err)
	}
	if legacyCount == 0 {
		return nil
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `CREATE TABLE documents_new (
		id TEXT PRIMARY KEY,
		title TEXT NOT NULL,
		source_type TEXT NOT NULL CHECK (source_type IN ('upload','manual')),
		source_uri TEXT NOT NULL DEFAULT '',
		mime_type TEXT NOT NULL DEFAULT '',
		created_at DATETIME NOT NULL
	)`); err != nil {
		return fmt.Errorf("create shadow table: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `INSERT INTO documents_new
		SELECT id, title, CASE WHEN source_type = 'repo_scan' THEN 'upload' ELSE source_type END,
		       source_uri, mime_type, created_at
		FROM documents`); err != nil {
		return fmt.Errorf("copy into shadow table: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `DROP TABLE documents`); err != nil {
		return fmt.Errorf("drop legacy documents: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `ALTER TABLE documents_new RENAME TO documents`); err != nil {
		return fmt.Errorf("rename shadow table: %w", err)
	}

	return tx.Commit()
}
