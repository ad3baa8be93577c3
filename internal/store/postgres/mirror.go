// Package postgres mirrors cache records into a Postgres table so the crawled
// graph can be queried alongside other datasets.
package postgres

import (
	"context"
	"fmt"
	"regexp"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/JakeFAU/malegislature-crawler/internal/store"
)

const defaultTable = "entity_records"

var validTableName = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// Config controls the Postgres connection pool used for mirrored records.
type Config struct {
	DSN             string
	Table           string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
}

type execCloser interface {
	Exec(context.Context, string, ...any) (pgconn.CommandTag, error)
	Close()
}

// Mirror upserts records into Postgres keyed by (kind, hash).
type Mirror struct {
	pool  execCloser
	table string
}

// New creates a Postgres-backed Mirror and makes sure its table exists.
func New(ctx context.Context, cfg Config) (*Mirror, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("db.dsn is required")
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		poolCfg.MinConns = cfg.MinConns
	}
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	m, err := NewWithPool(pool, cfg.Table)
	if err != nil {
		pool.Close()
		return nil, err
	}
	if err := m.EnsureSchema(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return m, nil
}

// NewWithPool constructs a mirror from an existing pool (primarily for testing).
func NewWithPool(pool execCloser, table string) (*Mirror, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is required")
	}
	if table == "" {
		table = defaultTable
	}
	if !validTableName.MatchString(table) {
		return nil, fmt.Errorf("invalid table name %q", table)
	}
	return &Mirror{pool: pool, table: table}, nil
}

// EnsureSchema creates the records table when missing.
func (m *Mirror) EnsureSchema(ctx context.Context) error {
	query := fmt.Sprintf(`
CREATE TABLE IF NOT EXISTS %s (
	kind     TEXT        NOT NULL,
	hash     TEXT        NOT NULL,
	identity TEXT        NOT NULL,
	data     JSONB       NOT NULL,
	saved_at TIMESTAMPTZ NOT NULL,
	PRIMARY KEY (kind, hash)
)`, m.table)
	if _, err := m.pool.Exec(ctx, query); err != nil {
		return fmt.Errorf("create %s: %w", m.table, err)
	}
	return nil
}

// Put upserts a record.
func (m *Mirror) Put(ctx context.Context, rec store.Record) error {
	query := fmt.Sprintf(`
INSERT INTO %s (kind, hash, identity, data, saved_at)
VALUES ($1,$2,$3,$4,$5)
ON CONFLICT (kind, hash) DO UPDATE SET
	identity = EXCLUDED.identity,
	data = EXCLUDED.data,
	saved_at = EXCLUDED.saved_at`, m.table)

	if _, err := m.pool.Exec(ctx, query, rec.Kind, rec.Hash, rec.Identity, rec.Data, rec.SavedAt); err != nil {
		return fmt.Errorf("upsert record: %w", err)
	}
	return nil
}

// Delete removes a pruned record.
func (m *Mirror) Delete(ctx context.Context, kind, hash string) error {
	query := fmt.Sprintf(`DELETE FROM %s WHERE kind = $1 AND hash = $2`, m.table)
	if _, err := m.pool.Exec(ctx, query, kind, hash); err != nil {
		return fmt.Errorf("delete record: %w", err)
	}
	return nil
}

// Close releases the underlying pool resources.
func (m *Mirror) Close() error {
	if m == nil || m.pool == nil {
		return nil
	}
	m.pool.Close()
	return nil
}
