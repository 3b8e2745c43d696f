package history

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const postgresSchema = `
CREATE TABLE IF NOT EXISTS batchtune_runs (
	id TEXT PRIMARY KEY,
	source TEXT NOT NULL,
	dest TEXT NOT NULL,
	status TEXT NOT NULL,
	started_at TIMESTAMPTZ NOT NULL,
	completed_at TIMESTAMPTZ,
	error TEXT NOT NULL DEFAULT '',
	config JSONB NOT NULL DEFAULT '{}',
	bytes_in BIGINT NOT NULL DEFAULT 0,
	bytes_out BIGINT NOT NULL DEFAULT 0,
	chunks INTEGER NOT NULL DEFAULT 0,
	retunes INTEGER NOT NULL DEFAULT 0,
	final_batch_size BIGINT NOT NULL DEFAULT 0,
	duration_ms BIGINT NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS batchtune_decisions (
	run_id TEXT NOT NULL REFERENCES batchtune_runs(id),
	seq INTEGER NOT NULL,
	ts TIMESTAMPTZ NOT NULL,
	strategy TEXT NOT NULL,
	previous BIGINT NOT NULL,
	batch_size BIGINT NOT NULL,
	PRIMARY KEY (run_id, seq)
);
`

// Postgres stores history in a shared PostgreSQL database.
type Postgres struct {
	pool *pgxpool.Pool
}

var _ Backend = (*Postgres)(nil)

// OpenPostgres connects to dsn and creates the history tables if needed.
func OpenPostgres(dsn string) (*Postgres, error) {
	poolCfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parsing dsn: %w", err)
	}
	poolCfg.MaxConns = 2

	ctx := context.Background()
	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("creating pool: %w", err)
	}

	// Test connection
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	if _, err := pool.Exec(ctx, postgresSchema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("creating history schema: %w", err)
	}
	return &Postgres{pool: pool}, nil
}

// CreateRun records the start of a run.
func (p *Postgres) CreateRun(id, source, dest string, cfg any) error {
	_, err := p.pool.Exec(context.Background(),
		`INSERT INTO batchtune_runs (id, source, dest, status, started_at, config)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		id, source, dest, StatusRunning, time.Now().UTC(), configJSON(cfg))
	if err != nil {
		return fmt.Errorf("creating run %s: %w", id, err)
	}
	return nil
}

// CompleteRun stores the outcome of a run.
func (p *Postgres) CompleteRun(id string, summary Summary, status, errorMsg string) error {
	tag, err := p.pool.Exec(context.Background(),
		`UPDATE batchtune_runs SET status = $1, completed_at = $2, error = $3,
		bytes_in = $4, bytes_out = $5, chunks = $6, retunes = $7, final_batch_size = $8, duration_ms = $9
		WHERE id = $10`,
		status, time.Now().UTC(), errorMsg,
		summary.BytesIn, summary.BytesOut, summary.Chunks, summary.Retunes,
		summary.FinalBatchSize, summary.Duration.Milliseconds(), id)
	if err != nil {
		return fmt.Errorf("completing run %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("completing run %s: run not found", id)
	}
	return nil
}

// SaveDecision records one tuning pass of a run.
func (p *Postgres) SaveDecision(runID string, d Decision) error {
	_, err := p.pool.Exec(context.Background(),
		`INSERT INTO batchtune_decisions (run_id, seq, ts, strategy, previous, batch_size)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		runID, d.Seq, d.Timestamp.UTC(), d.Strategy, d.Previous, d.BatchSize)
	if err != nil {
		return fmt.Errorf("saving decision %d of run %s: %w", d.Seq, runID, err)
	}
	return nil
}

// GetDecisions returns the decisions of a run in order.
func (p *Postgres) GetDecisions(runID string) ([]Decision, error) {
	rows, err := p.pool.Query(context.Background(),
		`SELECT seq, ts, strategy, previous, batch_size
		FROM batchtune_decisions WHERE run_id = $1 ORDER BY seq`, runID)
	if err != nil {
		return nil, fmt.Errorf("querying decisions: %w", err)
	}
	defer rows.Close()

	var out []Decision
	for rows.Next() {
		var d Decision
		if err := rows.Scan(&d.Seq, &d.Timestamp, &d.Strategy, &d.Previous, &d.BatchSize); err != nil {
			return nil, fmt.Errorf("scanning decision: %w", err)
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

const pgRunColumns = `id, source, dest, status, started_at, completed_at, error, config::text,
	bytes_in, bytes_out, chunks, retunes, final_batch_size, duration_ms`

// GetAllRuns returns every run, newest first.
func (p *Postgres) GetAllRuns() ([]Run, error) {
	rows, err := p.pool.Query(context.Background(),
		`SELECT `+pgRunColumns+` FROM batchtune_runs ORDER BY started_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("querying runs: %w", err)
	}
	defer rows.Close()

	var out []Run
	for rows.Next() {
		r, err := scanPgRun(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *r)
	}
	return out, rows.Err()
}

// GetRunByID returns a run, or nil if it does not exist.
func (p *Postgres) GetRunByID(runID string) (*Run, error) {
	row := p.pool.QueryRow(context.Background(),
		`SELECT `+pgRunColumns+` FROM batchtune_runs WHERE id = $1`, runID)
	r, err := scanPgRun(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	return r, err
}

// Close closes all connections in the pool.
func (p *Postgres) Close() error {
	p.pool.Close()
	return nil
}

func scanPgRun(row pgx.Row) (*Run, error) {
	var r Run
	var durationMs int64
	err := row.Scan(&r.ID, &r.Source, &r.Dest, &r.Status, &r.StartedAt, &r.CompletedAt, &r.Error, &r.Config,
		&r.BytesIn, &r.BytesOut, &r.Chunks, &r.Retunes, &r.FinalBatchSize, &durationMs)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scanning run: %w", err)
	}
	r.Duration = time.Duration(durationMs) * time.Millisecond
	return &r, nil
}
