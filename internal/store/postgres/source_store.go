// Package postgres provides Postgres-backed persistence implementations.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/newsloom/ingestd/internal/ingest"
)

var validTableName = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// dbPool is the pool surface the stores use; pgxmock satisfies it in tests.
type dbPool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Close()
}

// Config controls the Postgres connection pool.
type Config struct {
	DSN             string
	SourcesTable    string
	SkillsTable     string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
}

// SourceStore persists sources in Postgres.
type SourceStore struct {
	pool  dbPool
	table string
}

// NewSourceStore creates a pooled SourceStore from config.
func NewSourceStore(ctx context.Context, cfg Config) (*SourceStore, error) {
	pool, err := newPool(ctx, cfg)
	if err != nil {
		return nil, err
	}
	return NewSourceStoreWithPool(pool, cfg.SourcesTable)
}

// NewSourceStoreWithPool constructs a store from an existing pool
// (primarily for testing).
func NewSourceStoreWithPool(pool dbPool, table string) (*SourceStore, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is required")
	}
	if table == "" {
		table = "sources"
	}
	if !validTableName.MatchString(table) {
		return nil, fmt.Errorf("invalid table name %q", table)
	}
	return &SourceStore{pool: pool, table: table}, nil
}

// Close releases the underlying pool resources.
func (s *SourceStore) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

const sourceColumns = `id, url, type, feed_url, status, consecutive_failures,
consecutive_successes, backoff_until, last_attempt, last_error,
fetch_interval_seconds, active_skill_id, created_at, updated_at`

// Load fetches a source by ID.
func (s *SourceStore) Load(ctx context.Context, id string) (ingest.Source, error) {
	query := fmt.Sprintf("SELECT %s FROM %s WHERE id = $1", sourceColumns, s.table)
	return scanSource(s.pool.QueryRow(ctx, query, id))
}

// Save upserts a source record.
func (s *SourceStore) Save(ctx context.Context, src ingest.Source) error {
	query := fmt.Sprintf(`INSERT INTO %s (%s)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
ON CONFLICT (id) DO UPDATE SET
url = EXCLUDED.url,
type = EXCLUDED.type,
feed_url = EXCLUDED.feed_url,
status = EXCLUDED.status,
consecutive_failures = EXCLUDED.consecutive_failures,
consecutive_successes = EXCLUDED.consecutive_successes,
backoff_until = EXCLUDED.backoff_until,
last_attempt = EXCLUDED.last_attempt,
last_error = EXCLUDED.last_error,
fetch_interval_seconds = EXCLUDED.fetch_interval_seconds,
active_skill_id = EXCLUDED.active_skill_id,
updated_at = EXCLUDED.updated_at`, s.table, sourceColumns)

	_, err := s.pool.Exec(ctx, query,
		src.ID,
		src.URL,
		string(src.Type),
		src.FeedURL,
		string(src.Status),
		src.ConsecutiveFailures,
		src.ConsecutiveSuccesses,
		src.BackoffUntil,
		src.LastAttempt,
		src.LastError,
		int64(src.FetchInterval/time.Second),
		src.ActiveSkillID,
		src.CreatedAt,
		src.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("save source %s: %w", src.ID, err)
	}
	return nil
}

// List returns all sources ordered by ID.
func (s *SourceStore) List(ctx context.Context) ([]ingest.Source, error) {
	query := fmt.Sprintf("SELECT %s FROM %s ORDER BY id", sourceColumns, s.table)
	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list sources: %w", err)
	}
	defer rows.Close()
	return collectSources(rows)
}

// ListDue returns active sources whose backoff window has expired.
func (s *SourceStore) ListDue(ctx context.Context, now time.Time) ([]ingest.Source, error) {
	query := fmt.Sprintf(
		"SELECT %s FROM %s WHERE status <> $1 AND backoff_until <= $2 ORDER BY id",
		sourceColumns, s.table)
	rows, err := s.pool.Query(ctx, query, string(ingest.StatusDisabled), now)
	if err != nil {
		return nil, fmt.Errorf("list due sources: %w", err)
	}
	defer rows.Close()
	return collectSources(rows)
}

func collectSources(rows pgx.Rows) ([]ingest.Source, error) {
	var out []ingest.Source
	for rows.Next() {
		src, err := scanSource(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, src)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate sources: %w", err)
	}
	return out, nil
}

func scanSource(row pgx.Row) (ingest.Source, error) {
	var (
		src             ingest.Source
		srcType         string
		status          string
		intervalSeconds int64
	)
	err := row.Scan(
		&src.ID,
		&src.URL,
		&srcType,
		&src.FeedURL,
		&status,
		&src.ConsecutiveFailures,
		&src.ConsecutiveSuccesses,
		&src.BackoffUntil,
		&src.LastAttempt,
		&src.LastError,
		&intervalSeconds,
		&src.ActiveSkillID,
		&src.CreatedAt,
		&src.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return ingest.Source{}, ingest.ErrNotFound
	}
	if err != nil {
		return ingest.Source{}, fmt.Errorf("scan source: %w", err)
	}
	src.Type = ingest.SourceType(srcType)
	src.Status = ingest.SourceStatus(status)
	src.FetchInterval = time.Duration(intervalSeconds) * time.Second
	return src, nil
}

func newPool(ctx context.Context, cfg Config) (*pgxpool.Pool, error) {
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
	return pool, nil
}
