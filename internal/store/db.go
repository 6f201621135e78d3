// Package store owns the embedded SQLite database backing every persisted
// entity in the daemon: conversations, messages, config, documents, chunks,
// embeddings, and memories.
package store

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/consultd/consultd/internal/store/migrations"
)

var tracer = otel.Tracer("consultd/store")

// Store wraps the database connections. Writes go through a single
// connection (db.SetMaxOpenConns(1) on the write pool) so SQLite's
// single-writer model is never contended; reads use a separate pool that
// may run concurrently with the writer.
type Store struct {
	write *sql.DB
	read  *sql.DB
	log   *logrus.Entry
}

// Open opens (creating if absent) the SQLite database at path, applies
// pragmas, and runs all idempotent migrations in order.
func Open(ctx context.Context, path string, log *logrus.Entry) (*Store, error) {
	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=foreign_keys(ON)", path)

	write, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("open write connection: %w", err)
	}
	write.SetMaxOpenConns(1)

	read, err := sql.Open("sqlite3", dsn)
	if err != nil {
		write.Close()
		return nil, fmt.Errorf("open read connection: %w", err)
	}

	if _, err := write.ExecContext(ctx, "PRAGMA journal_mode=WAL"); err != nil {
		write.Close()
		read.Close()
		return nil, fmt.Errorf("set journal_mode: %w", err)
	}

	s := &Store{write: write, read: read, log: log}

	if err := migrations.Run(ctx, write); err != nil {
		write.Close()
		read.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return s, nil
}

// Close releases both connection pools.
func (s *Store) Close() error {
	werr := s.write.Close()
	rerr := s.read.Close()
	if werr != nil {
		return werr
	}
	return rerr
}

func (s *Store) span(ctx context.Context, op string) (context.Context, trace.Span) {
	return tracer.Start(ctx, "store."+op)
}
