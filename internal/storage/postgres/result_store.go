// Package postgres provides a Postgres-backed ResultStore.
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/JakeFAU/realtime-post-scraper/internal/scrape"
)

var validTableName = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

const defaultTable = "scrape_results"

// Config controls the Postgres connection pool used for scrape results.
type Config struct {
	DSN             string
	Table           string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
}

type pool interface {
	Exec(context.Context, string, ...any) (pgconn.CommandTag, error)
	QueryRow(context.Context, string, ...any) pgx.Row
	Close()
}

// ResultStore upserts records into a single table keyed by store key. The full record lives in a JSONB column;
// url, page_type and failed are broken out for querying.
type ResultStore struct {
	pool  pool
	table string
}

// New creates a Postgres-backed ResultStore using the provided config.
func New(ctx context.Context, cfg Config) (*ResultStore, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("storage.postgres.dsn is required")
	}
	table, err := tableName(cfg.Table)
	if err != nil {
		return nil, err
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
	p, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	return &ResultStore{pool: p, table: table}, nil
}

// NewWithPool constructs a store from an existing pool (primarily for testing).
func NewWithPool(p pool, table string) (*ResultStore, error) {
	if p == nil {
		return nil, fmt.Errorf("pool is required")
	}
	name, err := tableName(table)
	if err != nil {
		return nil, err
	}
	return &ResultStore{pool: p, table: name}, nil
}

func tableName(table string) (string, error) {
	if table == "" {
		table = defaultTable
	}
	if !validTableName.MatchString(table) {
		return "", fmt.Errorf("invalid table name %q", table)
	}
	return table, nil
}

// Close releases the underlying pool resources.
func (s *ResultStore) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

// EnsureSchema creates the results table when it does not exist.
func (s *ResultStore) EnsureSchema(ctx context.Context) error {
	query := fmt.Sprintf(`
CREATE TABLE IF NOT EXISTS %s (
	key        TEXT PRIMARY KEY,
	url        TEXT NOT NULL,
	page_type  TEXT NOT NULL DEFAULT '',
	failed     BOOLEAN NOT NULL DEFAULT FALSE,
	record     JSONB NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
)`, s.table)
	if _, err := s.pool.Exec(ctx, query); err != nil {
		return fmt.Errorf("create table %s: %w", s.table, err)
	}
	return nil
}

// Put upserts record under key and returns a postgres:// identifier.
func (s *ResultStore) Put(ctx context.Context, key string, record scrape.Record) (string, error) {
	if s == nil || s.pool == nil {
		return "", fmt.Errorf("result store is not configured")
	}
	if strings.TrimSpace(key) == "" {
		return "", fmt.Errorf("key is required")
	}
	payload, err := json.Marshal(record)
	if err != nil {
		return "", fmt.Errorf("marshal record: %w", err)
	}
	var pageType string
	if record.Content != nil {
		pageType = string(record.PageType)
	}
	query := fmt.Sprintf(`
INSERT INTO %s (key, url, page_type, failed, record, updated_at)
VALUES ($1, $2, $3, $4, $5, now())
ON CONFLICT (key) DO UPDATE SET
	url = EXCLUDED.url,
	page_type = EXCLUDED.page_type,
	failed = EXCLUDED.failed,
	record = EXCLUDED.record,
	updated_at = EXCLUDED.updated_at`, s.table)

	if _, err := s.pool.Exec(ctx, query, key, record.URL, pageType, record.Failed(), payload); err != nil {
		return "", fmt.Errorf("upsert result: %w", err)
	}
	return fmt.Sprintf("postgres://%s/%s", s.table, key), nil
}

// Get loads the record stored under key.
func (s *ResultStore) Get(ctx context.Context, key string) (scrape.Record, error) {
	if s == nil || s.pool == nil {
		return scrape.Record{}, fmt.Errorf("result store is not configured")
	}
	query := fmt.Sprintf(`SELECT record FROM %s WHERE key = $1`, s.table)
	var payload []byte
	if err := s.pool.QueryRow(ctx, query, key).Scan(&payload); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return scrape.Record{}, fmt.Errorf("get %s: %w", key, scrape.ErrNotFound)
		}
		return scrape.Record{}, fmt.Errorf("select result: %w", err)
	}
	var record scrape.Record
	if err := json.Unmarshal(payload, &record); err != nil {
		return scrape.Record{}, fmt.Errorf("decode record: %w", err)
	}
	return record, nil
}
