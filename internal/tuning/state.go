// Package tuning chooses a batch size for chunked I/O by recording the
// throughput of timed operations per size bucket and searching the buckets
// for the size with the lowest estimated total time.
package tuning

import (
	"fmt"
	"sync"
	"time"
)

// DefaultBucketCount is the number of buckets each measurement table holds.
const DefaultBucketCount = 1000

// Config holds the settings a State is created from.
type Config struct {
	// Mode controls recording and optimizing. Zero value is ModeOff.
	Mode Mode

	// MaxBatchSize is the largest batch size the tuner will consider, in bytes.
	MaxBatchSize int64

	// BucketCount divides MaxBatchSize into buckets (default 1000).
	BucketCount int64

	// InitialBatchSize is the batch size used before the first tuning pass.
	// Defaults to one step.
	InitialBatchSize int64

	// ResourceSize is the total size of the resource being processed.
	ResourceSize int64

	// Remote marks a network-backed resource.
	Remote bool
}

// Validate checks that the limits describe a usable bucket layout.
func (c *Config) Validate() error {
	if c.MaxBatchSize <= 0 {
		return fmt.Errorf("max batch size must be positive, got %d", c.MaxBatchSize)
	}
	if c.BucketCount < 0 {
		return fmt.Errorf("bucket count must be positive, got %d", c.BucketCount)
	}
	buckets := c.BucketCount
	if buckets == 0 {
		buckets = DefaultBucketCount
	}
	if c.MaxBatchSize < buckets {
		return fmt.Errorf("max batch size %d is smaller than bucket count %d", c.MaxBatchSize, buckets)
	}
	if c.InitialBatchSize < 0 {
		return fmt.Errorf("initial batch size must not be negative, got %d", c.InitialBatchSize)
	}
	if c.ResourceSize < 0 {
		return fmt.Errorf("resource size must not be negative, got %d", c.ResourceSize)
	}
	return nil
}

// State is the tuning state of one resource. It owns the measurement tables
// and the live batch size. All methods are safe for concurrent use.
type State struct {
	mu sync.Mutex

	mode         Mode
	batchSize    int64
	resourceSize int64
	maxBatchSize int64
	stepSize     int64
	remote       bool

	tables map[OperationKind]*Table

	now func() time.Time
}

// Option customizes a State.
type Option func(*State)

// WithClock replaces the wall clock used by the timing helpers.
func WithClock(now func() time.Time) Option {
	return func(s *State) { s.now = now }
}

// New creates a State from cfg.
func New(cfg Config, opts ...Option) (*State, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid tuning config: %w", err)
	}
	if cfg.BucketCount == 0 {
		cfg.BucketCount = DefaultBucketCount
	}

	s := &State{
		mode:         cfg.Mode,
		resourceSize: cfg.ResourceSize,
		maxBatchSize: cfg.MaxBatchSize,
		stepSize:     cfg.MaxBatchSize / cfg.BucketCount,
		remote:       cfg.Remote,
		tables:       make(map[OperationKind]*Table),
		now:          time.Now,
	}
	s.batchSize = cfg.InitialBatchSize
	if s.batchSize <= 0 {
		s.batchSize = s.stepSize
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// BatchSize returns the current batch size in bytes.
func (s *State) BatchSize() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.batchSize
}

// StepSize returns the width of one bucket in bytes.
func (s *State) StepSize() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stepSize
}

// MaxBatchSize returns the largest batch size the tuner considers.
func (s *State) MaxBatchSize() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.maxBatchSize
}

// Mode returns the current tuning mode.
func (s *State) Mode() Mode {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.mode
}

// SetMode changes whether measurements are recorded and acted upon.
func (s *State) SetMode(m Mode) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.mode = m
}

// SetResourceSize updates the total size of the resource being processed.
func (s *State) SetResourceSize(n int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.resourceSize = n
}

// SetRemote marks the resource as network-backed.
func (s *State) SetRemote(remote bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.remote = remote
}

// SetLimits changes the bucket layout. Existing tables are discarded since
// their buckets no longer line up with the new step.
func (s *State) SetLimits(maxBatchSize, bucketCount int64) error {
	cfg := Config{MaxBatchSize: maxBatchSize, BucketCount: bucketCount}
	if err := cfg.Validate(); err != nil {
		return err
	}
	if bucketCount == 0 {
		bucketCount = DefaultBucketCount
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.maxBatchSize = maxBatchSize
	s.stepSize = maxBatchSize / bucketCount
	s.tables = make(map[OperationKind]*Table)
	if s.batchSize > s.maxBatchSize {
		s.batchSize = s.maxBatchSize
	}
	return nil
}

// bucketCount returns the number of slots per table.
func (s *State) bucketCount() int {
	return int(s.maxBatchSize / s.stepSize)
}

// halfMax is the largest batch size worth tuning to: half the resource.
func (s *State) halfMax() int64 {
	return (s.resourceSize + 1) / 2
}

// capped reports whether bucket i starts at or beyond half the resource,
// or lies past the end of the table.
func (s *State) capped(i int) bool {
	return i >= s.bucketCount() || int64(i)*s.stepSize >= s.halfMax()
}

// setBucket sets the batch size to the size of bucket i, clamped so the
// bucket start never exceeds half the resource.
func (s *State) setBucket(i int) {
	limit := int(s.halfMax() / s.stepSize)
	if top := s.bucketCount() - 1; limit > top {
		limit = top
	}
	if i > limit {
		i = limit
	}
	if i < 0 {
		i = 0
	}
	s.batchSize = int64(i+1) * s.stepSize
}
