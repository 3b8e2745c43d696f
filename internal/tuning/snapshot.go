package tuning

import (
	"fmt"
	"strings"

	"github.com/dustin/go-humanize"
)

// Snapshot is a point-in-time copy of a State for reporting.
type Snapshot struct {
	Mode         Mode
	BatchSize    int64
	ResourceSize int64
	MaxBatchSize int64
	StepSize     int64
	Remote       bool
	Tables       map[OperationKind][]Slot
}

// Snapshot copies the tunables and every measurement table.
func (s *State) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap := Snapshot{
		Mode:         s.mode,
		BatchSize:    s.batchSize,
		ResourceSize: s.resourceSize,
		MaxBatchSize: s.maxBatchSize,
		StepSize:     s.stepSize,
		Remote:       s.remote,
		Tables:       make(map[OperationKind][]Slot, len(s.tables)),
	}
	for kind, t := range s.tables {
		slots := make([]Slot, len(t.Slots))
		copy(slots, t.Slots)
		snap.Tables[kind] = slots
	}
	return snap
}

// Measured returns the number of measured buckets and samples for kind.
func (snap Snapshot) Measured(kind OperationKind) (buckets, samples int) {
	for _, slot := range snap.Tables[kind] {
		if slot.State == SlotMeasured {
			buckets++
			samples += slot.Count
		}
	}
	return buckets, samples
}

// FormatTable returns a formatted table of the measured buckets.
func (snap Snapshot) FormatTable() string {
	var sb strings.Builder

	sb.WriteString(fmt.Sprintf("  batch size: %s (step %s, max %s, mode %s)\n",
		humanize.IBytes(uint64(snap.BatchSize)), humanize.IBytes(uint64(snap.StepSize)),
		humanize.IBytes(uint64(snap.MaxBatchSize)), snap.Mode))
	sb.WriteString(fmt.Sprintf("  %-12s %10s %8s %14s\n", "Kind", "Size", "Samples", "Throughput"))
	sb.WriteString(fmt.Sprintf("  %s\n", strings.Repeat("-", 48)))

	for _, kind := range Kinds {
		slots, ok := snap.Tables[kind]
		if !ok {
			continue
		}
		for i, slot := range slots {
			if slot.State != SlotMeasured {
				continue
			}
			size := uint64(int64(i+1) * snap.StepSize)
			sb.WriteString(fmt.Sprintf("  %-12s %10s %8d %12s/s\n",
				kind, humanize.IBytes(size), slot.Count, humanize.IBytes(uint64(slot.Mean))))
		}
	}
	return sb.String()
}
