package migrations

import (
	"context"
	"database/sql"
	"fmt"
)

func addDocumentsFolder(ctx context.Context, db *sql.DB) error {
	exists, err := hasColumn(ctx, db, "documents", "folder")
	if err != nil {
		return fmt.Errorf("check folder column: %w", err)
	}
	if exists {
		return nil
	}
	_, err = db.ExecContext(ctx, `ALTER TABLE documents ADD COLUMN folder TEXT`)
	return err
}
