package transfer

import (
	"fmt"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/johndauphine/batchtune/internal/tuning"
)

// Stats tracks timing statistics for a transfer.
type Stats struct {
	// Durations is the total time spent per operation kind.
	Durations map[tuning.OperationKind]time.Duration

	// BytesIn is the number of bytes read from the source.
	BytesIn int64

	// BytesOut is the number of bytes written to the destination.
	BytesOut int64

	// Chunks is the number of chunks processed.
	Chunks int

	// Retunes is the number of tuning passes that changed the batch size.
	Retunes int

	// Decisions holds every tuning pass in order.
	Decisions []tuning.Decision
}

func newStats() *Stats {
	return &Stats{Durations: make(map[tuning.OperationKind]time.Duration)}
}

func (s *Stats) add(kind tuning.OperationKind, d time.Duration) {
	s.Durations[kind] += d
}

// String returns a formatted summary of the stats.
func (s *Stats) String() string {
	total := s.TotalTime()
	if total == 0 {
		return "no data"
	}
	var parts []string
	for _, k := range tuning.Kinds {
		d, ok := s.Durations[k]
		if !ok {
			continue
		}
		parts = append(parts, fmt.Sprintf("%s=%.1fs (%.0f%%)",
			k, d.Seconds(), float64(d)/float64(total)*100))
	}
	parts = append(parts,
		fmt.Sprintf("in=%s", humanize.IBytes(uint64(s.BytesIn))),
		fmt.Sprintf("out=%s", humanize.IBytes(uint64(s.BytesOut))),
		fmt.Sprintf("chunks=%d", s.Chunks),
		fmt.Sprintf("retunes=%d", s.Retunes))
	return strings.Join(parts, ", ")
}

// TotalTime returns the sum of all timing components.
func (s *Stats) TotalTime() time.Duration {
	var total time.Duration
	for _, d := range s.Durations {
		total += d
	}
	return total
}

// BytesPerSecond calculates the input throughput.
func (s *Stats) BytesPerSecond() float64 {
	total := s.TotalTime()
	if total == 0 {
		return 0
	}
	return float64(s.BytesIn) / total.Seconds()
}
