package archive

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresSink stores bundles as rows in a single archive table.
type PostgresSink struct {
	pool *pgxpool.Pool
}

const createArchiveTable = `
CREATE TABLE IF NOT EXISTS cpt_archive (
    name       TEXT PRIMARY KEY,
    created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
    data       BYTEA NOT NULL
)`

// NewPostgresSink connects and ensures the archive table exists.
func NewPostgresSink(ctx context.Context, dsn string) (*PostgresSink, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("connect archive database: %w", err)
	}
	if _, err := pool.Exec(ctx, createArchiveTable); err != nil {
		pool.Close()
		return nil, fmt.Errorf("create archive table: %w", err)
	}
	return &PostgresSink{pool: pool}, nil
}

// Store upserts the named bundle.
func (s *PostgresSink) Store(ctx context.Context, name string, data []byte) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO cpt_archive (name, data) VALUES ($1, $2)
		 ON CONFLICT (name) DO UPDATE SET data = EXCLUDED.data, created_at = now()`,
		name, data)
	return err
}

// Load reads a stored bundle.
func (s *PostgresSink) Load(ctx context.Context, name string) ([]byte, error) {
	var data []byte
	err := s.pool.QueryRow(ctx,
		`SELECT data FROM cpt_archive WHERE name = $1`, name).Scan(&data)
	if err != nil {
		return nil, err
	}
	return data, nil
}

// Close releases the connection pool.
func (s *PostgresSink) Close() {
	s.pool.Close()
}
