// Package ledger persists a run's outcome to Postgres as an optional,
// durable history on top of the mandatory solution.json/stats.json files.
// It is wired in only when a DSN is configured.
package ledger

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Run is one completed engine run's summary, as stored in the runs table.
type Run struct {
	RunID      string
	Rank       int
	Ranks      int
	BestCost   float64
	Horizon    int
	DurationMS int64
	FinishedAt time.Time
}

// Store persists Run rows to Postgres.
type Store struct {
	pool *pgxpool.Pool
}

// Open connects to dsn and tunes the pool for a modest, steady
// concurrent workload: a handful of connections, short lifetimes, and a
// periodic health check.
func Open(ctx context.Context, dsn string) (*Store, error) {
	config, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, err
	}
	config.MaxConns = 10
	config.MinConns = 1
	config.MaxConnLifetime = time.Hour
	config.HealthCheckPeriod = 30 * time.Second

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, err
	}
	if err := pool.Ping(ctx); err != nil {
		return nil, err
	}
	return &Store{pool: pool}, nil
}

// Close releases the connection pool.
func (s *Store) Close() {
	s.pool.Close()
}

// UpsertRun records or updates a run's outcome, keyed by run_id so a rank
// re-reporting (or a resumed run) overwrites rather than duplicates.
func (s *Store) UpsertRun(ctx context.Context, r Run) error {
	const query = `
		INSERT INTO runs (run_id, rank, ranks, best_cost, horizon, duration_ms, finished_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (run_id) DO UPDATE SET
			best_cost = EXCLUDED.best_cost,
			duration_ms = EXCLUDED.duration_ms,
			finished_at = EXCLUDED.finished_at
	`
	_, err := s.pool.Exec(ctx, query, r.RunID, r.Rank, r.Ranks, r.BestCost, r.Horizon, r.DurationMS, r.FinishedAt)
	return err
}
