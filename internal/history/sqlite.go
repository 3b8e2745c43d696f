package history

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS runs (
	id TEXT PRIMARY KEY,
	source TEXT NOT NULL,
	dest TEXT NOT NULL,
	status TEXT NOT NULL,
	started_at TIMESTAMP NOT NULL,
	completed_at TIMESTAMP,
	error TEXT NOT NULL DEFAULT '',
	config TEXT NOT NULL DEFAULT '{}',
	bytes_in INTEGER NOT NULL DEFAULT 0,
	bytes_out INTEGER NOT NULL DEFAULT 0,
	chunks INTEGER NOT NULL DEFAULT 0,
	retunes INTEGER NOT NULL DEFAULT 0,
	final_batch_size INTEGER NOT NULL DEFAULT 0,
	duration_ms INTEGER NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS decisions (
	run_id TEXT NOT NULL REFERENCES runs(id),
	seq INTEGER NOT NULL,
	ts TIMESTAMP NOT NULL,
	strategy TEXT NOT NULL,
	previous INTEGER NOT NULL,
	batch_size INTEGER NOT NULL,
	PRIMARY KEY (run_id, seq)
);
`

// SQLite stores history in an embedded SQLite database.
type SQLite struct {
	db *sql.DB
}

var _ Backend = (*SQLite)(nil)

// OpenSQLite opens (creating if needed) the history database at path.
func OpenSQLite(path string) (*SQLite, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return nil, fmt.Errorf("creating history directory: %w", err)
		}
	}

	dsn := path + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening history database: %w", err)
	}
	// A single connection serializes writers.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating history schema: %w", err)
	}
	return &SQLite{db: db}, nil
}

// CreateRun records the start of a run.
func (s *SQLite) CreateRun(id, source, dest string, cfg any) error {
	_, err := s.db.Exec(`INSERT INTO runs (id, source, dest, status, started_at, config)
		VALUES (?, ?, ?, ?, ?, ?)`,
		id, source, dest, StatusRunning, time.Now().UTC(), configJSON(cfg))
	if err != nil {
		return fmt.Errorf("creating run %s: %w", id, err)
	}
	return nil
}

// CompleteRun stores the outcome of a run.
func (s *SQLite) CompleteRun(id string, summary Summary, status, errorMsg string) error {
	res, err := s.db.Exec(`UPDATE runs SET status = ?, completed_at = ?, error = ?,
		bytes_in = ?, bytes_out = ?, chunks = ?, retunes = ?, final_batch_size = ?, duration_ms = ?
		WHERE id = ?`,
		status, time.Now().UTC(), errorMsg,
		summary.BytesIn, summary.BytesOut, summary.Chunks, summary.Retunes,
		summary.FinalBatchSize, summary.Duration.Milliseconds(), id)
	if err != nil {
		return fmt.Errorf("completing run %s: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("completing run %s: run not found", id)
	}
	return nil
}

// SaveDecision records one tuning pass of a run.
func (s *SQLite) SaveDecision(runID string, d Decision) error {
	_, err := s.db.Exec(`INSERT INTO decisions (run_id, seq, ts, strategy, previous, batch_size)
		VALUES (?, ?, ?, ?, ?, ?)`,
		runID, d.Seq, d.Timestamp.UTC(), d.Strategy, d.Previous, d.BatchSize)
	if err != nil {
		return fmt.Errorf("saving decision %d of run %s: %w", d.Seq, runID, err)
	}
	return nil
}

// GetDecisions returns the decisions of a run in order.
func (s *SQLite) GetDecisions(runID string) ([]Decision, error) {
	rows, err := s.db.Query(`SELECT seq, ts, strategy, previous, batch_size
		FROM decisions WHERE run_id = ? ORDER BY seq`, runID)
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

const runColumns = `id, source, dest, status, started_at, completed_at, error, config,
	bytes_in, bytes_out, chunks, retunes, final_batch_size, duration_ms`

// GetAllRuns returns every run, newest first.
func (s *SQLite) GetAllRuns() ([]Run, error) {
	rows, err := s.db.Query(`SELECT ` + runColumns + ` FROM runs ORDER BY started_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("querying runs: %w", err)
	}
	defer rows.Close()

	var out []Run
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *r)
	}
	return out, rows.Err()
}

// GetRunByID returns a run, or nil if it does not exist.
func (s *SQLite) GetRunByID(runID string) (*Run, error) {
	row := s.db.QueryRow(`SELECT `+runColumns+` FROM runs WHERE id = ?`, runID)
	r, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return r, err
}

// Close closes the database.
func (s *SQLite) Close() error {
	return s.db.Close()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(sc scanner) (*Run, error) {
	var r Run
	var completed sql.NullTime
	var durationMs int64
	err := sc.Scan(&r.ID, &r.Source, &r.Dest, &r.Status, &r.StartedAt, &completed, &r.Error, &r.Config,
		&r.BytesIn, &r.BytesOut, &r.Chunks, &r.Retunes, &r.FinalBatchSize, &durationMs)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scanning run: %w", err)
	}
	if completed.Valid {
		t := completed.Time
		r.CompletedAt = &t
	}
	r.Duration = time.Duration(durationMs) * time.Millisecond
	return &r, nil
}
