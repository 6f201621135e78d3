package store

import (
	"context"
	"database/sql"
	"errors"

	"github.com/consultd/consultd/internal/apierr"
)

// GetConfigValue returns the raw stored value for key, or ("", false, nil)
// if unset.
func (s *Store) GetConfigValue(ctx context.Context, key string) (string, bool, error) {
	ctx, span := s.span(ctx, "GetConfigValue")
	defer span.End()

	var value string
	err := s.read.QueryRowContext(ctx, `SELECT value FROM config_entries WHERE key = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, apierr.Wrap(apierr.Internal, err, "get config value")
	}
	return value, true, nil
}

// ListConfig returns every stored config row.
func (s *Store) ListConfig(ctx context.Context) (map[string]string, error) {
	ctx, span := s.span(ctx, "ListConfig")
	defer span.End()

	rows, err := s.read.QueryContext(ctx, `SELECT key, value FROM config_entries`)
	if err != nil {
		return nil, apierr.Wrap(apierr.Internal, err, "list config")
	}
	defer rows.Close()

	out := make(map[string]string)
	for rows.Next() {
		var k, v string
		if err := rows.Scan(&k, &v); err != nil {
			return nil, apierr.Wrap(apierr.Internal, err, "scan config row")
		}
		out[k] = v
	}
	return out, rows.Err()
}

// SetConfigValue upserts a single key/value row.
func (s *Store) SetConfigValue(ctx context.Context, key, value string) error {
	ctx, span := s.span(ctx, "SetConfigValue")
	defer span.End()

	_, err := s.write.ExecContext(ctx, `
		INSERT INTO config_entries (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value
	`, key, value)
	if err != nil {
		return apierr.Wrap(apierr.Internal, err, "set config value")
	}
	return nil
}
