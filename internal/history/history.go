// Package history records transfer runs and the tuning decisions made
// during them. Measurement tables are never stored.
package history

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/johndauphine/batchtune/internal/config"
	"github.com/johndauphine/batchtune/internal/tuning"
)

// Run statuses.
const (
	StatusRunning = "running"
	StatusSuccess = "success"
	StatusFailed  = "failed"
)

// Backend defines the interface for run history persistence.
// Implementations include SQLite (default), PostgreSQL and a no-op backend.
type Backend interface {
	// Run management
	CreateRun(id, source, dest string, cfg any) error
	CompleteRun(id string, summary Summary, status, errorMsg string) error

	// Decisions
	SaveDecision(runID string, d Decision) error
	GetDecisions(runID string) ([]Decision, error)

	// Queries
	GetAllRuns() ([]Run, error)
	GetRunByID(runID string) (*Run, error)

	// Lifecycle
	Close() error
}

// Run is one recorded transfer.
type Run struct {
	ID          string
	Source      string
	Dest        string
	Status      string
	StartedAt   time.Time
	CompletedAt *time.Time
	Error       string
	Config      string
	Summary
}

// Summary is the outcome of a run.
type Summary struct {
	BytesIn        int64
	BytesOut       int64
	Chunks         int
	Retunes        int
	FinalBatchSize int64
	Duration       time.Duration
}

// Decision is one tuning pass that ran a strategy.
type Decision struct {
	Seq       int
	Timestamp time.Time
	Strategy  string
	Previous  int64
	BatchSize int64
}

// FromTuning converts a tuning decision into a history record.
func FromTuning(seq int, d tuning.Decision, ts time.Time) Decision {
	return Decision{
		Seq:       seq,
		Timestamp: ts,
		Strategy:  string(d.Strategy),
		Previous:  d.Previous,
		BatchSize: d.BatchSize,
	}
}

// NewRunID returns a fresh run identifier.
func NewRunID() string {
	return uuid.New().String()[:8]
}

// Open returns the backend selected by cfg.History.
func Open(cfg *config.Config) (Backend, error) {
	switch cfg.History.Backend {
	case "sqlite":
		return OpenSQLite(cfg.History.Path)
	case "postgres":
		return OpenPostgres(cfg.PostgresDSN())
	case "none":
		return Nop{}, nil
	default:
		return nil, fmt.Errorf("unknown history backend %q", cfg.History.Backend)
	}
}

// configJSON renders a run config for storage.
func configJSON(cfg any) string {
	if cfg == nil {
		return "{}"
	}
	b, err := json.Marshal(cfg)
	if err != nil {
		return "{}"
	}
	return string(b)
}

// Nop discards everything. It backs history.backend: none.
type Nop struct{}

var _ Backend = Nop{}

func (Nop) CreateRun(id, source, dest string, cfg any) error                    { return nil }
func (Nop) CompleteRun(id string, summary Summary, status, errMsg string) error { return nil }
func (Nop) SaveDecision(runID string, d Decision) error                         { return nil }
func (Nop) GetDecisions(runID string) ([]Decision, error)                       { return nil, nil }
func (Nop) GetAllRuns() ([]Run, error)                                          { return nil, nil }
func (Nop) GetRunByID(runID string) (*Run, error)                               { return nil, nil }
func (Nop) Close() error                                                        { return nil }
