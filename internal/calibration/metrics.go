package calibration

import (
	"fmt"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/johndauphine/batchtune/internal/tuning"
)

// Round captures one modeled round and the tuning pass that followed it.
type Round struct {
	Number     int
	BatchSize  int64
	Throughput float64
	Decision   tuning.Decision
}

// Result contains every round and the outcome.
type Result struct {
	Rounds            []Round
	Final             int64
	Optimal           int64
	OptimalThroughput float64
}

// Best returns the round with the highest modeled throughput.
func (r *Result) Best() *Round {
	var best *Round
	for i := range r.Rounds {
		round := &r.Rounds[i]
		if best == nil || round.Throughput > best.Throughput {
			best = round
		}
	}
	return best
}

// Converged reports whether the final batch size is the modeled optimum.
func (r *Result) Converged() bool {
	return r.Optimal != 0 && r.Final == r.Optimal
}

// Efficiency is the modeled throughput at the final batch size as a fraction
// of the optimum.
func (r *Result) Efficiency(profiles []Profile, weight func(tuning.OperationKind) float64) float64 {
	if r.OptimalThroughput == 0 {
		return 0
	}
	return combined(profiles, weight, r.Final) / r.OptimalThroughput
}

// FormatResultsTable returns a formatted table of the rounds.
func (r *Result) FormatResultsTable() string {
	var sb strings.Builder

	sb.WriteString(fmt.Sprintf("  %-6s %12s %14s %-13s %12s\n",
		"Round", "Batch", "Throughput", "Strategy", "Next"))
	sb.WriteString(fmt.Sprintf("  %s\n", strings.Repeat("-", 61)))

	for _, round := range r.Rounds {
		next := humanize.IBytes(uint64(round.Decision.BatchSize))
		if !round.Decision.Changed() {
			next = "="
		}
		sb.WriteString(fmt.Sprintf("  %-6d %12s %14s %-13s %12s\n",
			round.Number,
			humanize.IBytes(uint64(round.BatchSize)),
			humanize.IBytes(uint64(round.Throughput))+"/s",
			round.Decision.Strategy,
			next))
	}

	return sb.String()
}

// FormatRecommendation returns a short summary of the outcome.
func (r *Result) FormatRecommendation() string {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("\nFinal batch size: %s\n", humanize.IBytes(uint64(r.Final))))
	sb.WriteString(fmt.Sprintf("Modeled optimum:  %s (%s/s)\n",
		humanize.IBytes(uint64(r.Optimal)), humanize.IBytes(uint64(r.OptimalThroughput))))
	if r.Converged() {
		sb.WriteString("Converged on the optimum.\n")
	}
	return sb.String()
}
