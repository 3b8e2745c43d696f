package calibration

import (
	"context"
	"fmt"

	"github.com/johndauphine/batchtune/internal/logging"
	"github.com/johndauphine/batchtune/internal/tuning"
)

// Options controls a simulation.
type Options struct {
	// Rounds is the number of tuning passes.
	Rounds int

	// ChunksPerRound is the number of modeled chunks between passes.
	ChunksPerRound int

	// ForceLinear scans every bucket instead of searching.
	ForceLinear bool

	// Weight returns the weight of a kind. Nil weighs every kind as 1.
	Weight func(tuning.OperationKind) float64

	// OnRound is called after every tuning pass.
	OnRound func(Round)
}

// Calibrator feeds modeled timings into a State and retunes it.
type Calibrator struct {
	state    *tuning.State
	profiles []Profile
	opts     Options
}

// NewCalibrator creates a calibrator over state. The state should be in full
// mode for the batch size to move.
func NewCalibrator(state *tuning.State, profiles []Profile, opts Options) (*Calibrator, error) {
	if len(profiles) == 0 {
		return nil, fmt.Errorf("at least one profile is required")
	}
	for _, p := range profiles {
		if p.Bandwidth <= 0 {
			return nil, fmt.Errorf("profile %s: bandwidth must be positive", p.Kind)
		}
	}
	if opts.Rounds <= 0 {
		return nil, fmt.Errorf("rounds must be positive, got %d", opts.Rounds)
	}
	if opts.ChunksPerRound <= 0 {
		opts.ChunksPerRound = 1
	}
	return &Calibrator{state: state, profiles: profiles, opts: opts}, nil
}

func (c *Calibrator) weighted() []tuning.Weighted {
	out := make([]tuning.Weighted, len(c.profiles))
	for i, p := range c.profiles {
		w := 1.0
		if c.opts.Weight != nil {
			w = c.opts.Weight(p.Kind)
		}
		out[i] = tuning.Weighted{Kind: p.Kind, Weight: w}
	}
	return out
}

// Run executes every round and returns the trace.
func (c *Calibrator) Run(ctx context.Context) (*Result, error) {
	weighted := c.weighted()
	result := &Result{}

	for n := 1; n <= c.opts.Rounds; n++ {
		if err := ctx.Err(); err != nil {
			return result, err
		}

		batch := c.state.BatchSize()
		for i := 0; i < c.opts.ChunksPerRound; i++ {
			for _, p := range c.profiles {
				c.state.Record(p.Kind, batch, p.Cost(batch))
			}
		}

		round := Round{
			Number:     n,
			BatchSize:  batch,
			Throughput: combined(c.profiles, c.opts.Weight, batch),
			Decision:   c.state.Optimize(weighted, c.opts.ForceLinear),
		}
		result.Rounds = append(result.Rounds, round)
		logging.Debug("Round %d: batch %d, %.0f bytes/sec, next %d (%s)",
			n, batch, round.Throughput, round.Decision.BatchSize, round.Decision.Strategy)
		if c.opts.OnRound != nil {
			c.opts.OnRound(round)
		}
	}

	result.Final = c.state.BatchSize()
	result.Optimal, result.OptimalThroughput = c.optimal()
	return result, nil
}

// optimal returns the reachable batch size with the best modeled throughput.
func (c *Calibrator) optimal() (int64, float64) {
	snap := c.state.Snapshot()
	half := (snap.ResourceSize + 1) / 2
	buckets := snap.MaxBatchSize / snap.StepSize

	var best int64
	var bestRate float64
	for i := int64(0); i < buckets && i*snap.StepSize < half; i++ {
		size := (i + 1) * snap.StepSize
		if rate := combined(c.profiles, c.opts.Weight, size); best == 0 || rate > bestRate {
			best, bestRate = size, rate
		}
	}
	return best, bestRate
}
