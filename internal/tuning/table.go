package tuning

import (
	"time"

	"github.com/johndauphine/batchtune/internal/logging"
)

// BucketIndex maps a byte size to its table slot. Sizes below one step land
// in bucket 0; sizes at or above max land in the top bucket.
func BucketIndex(size, step, max int64) int {
	top := max/step - 1
	i := size/step - 1
	if i > top {
		i = top
	}
	if i < 0 {
		i = 0
	}
	return int(i)
}

// SlotState tells apart slots that were never looked at, slots that were
// looked up once without data, and slots holding real measurements.
type SlotState int

const (
	SlotUnmeasured SlotState = iota
	SlotTriedOnce
	SlotMeasured
)

// Slot is one bucket of a measurement table.
type Slot struct {
	State SlotState
	// Mean is the running mean throughput in bytes per second.
	Mean  float64
	Count int
}

// Table holds the throughput measurements of one operation kind.
type Table struct {
	Slots []Slot
}

func newTable(n int) *Table {
	return &Table{Slots: make([]Slot, n)}
}

// add folds one throughput sample into slot i.
func (t *Table) add(i int, throughput float64) {
	slot := &t.Slots[i]
	mean := slot.Mean
	if slot.State != SlotMeasured {
		mean = 0
	}
	slot.Mean = (mean*float64(slot.Count) + throughput) / float64(slot.Count+1)
	slot.Count++
	slot.State = SlotMeasured
}

// Record feeds one timing sample: size bytes processed in elapsed time.
// Nothing is recorded when tuning is off or the sample is empty.
func (s *State) Record(kind OperationKind, size int64, elapsed time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.record(kind, size, elapsed)
}

func (s *State) record(kind OperationKind, size int64, elapsed time.Duration) {
	if s.mode == ModeOff || size <= 0 {
		return
	}
	if elapsed <= 0 {
		logging.Debug("Ignoring %s sample of %d bytes with non-positive duration %v", kind, size, elapsed)
		return
	}

	t, ok := s.tables[kind]
	if !ok {
		t = newTable(s.bucketCount())
		s.tables[kind] = t
	}
	i := BucketIndex(size, s.stepSize, s.maxBatchSize)
	t.add(i, float64(size)/elapsed.Seconds())
}

// approximate returns the throughput of bucket i for kind, or 0 when there
// is nothing to go on. The first lookup of an empty slot only marks it, so
// the size gets a chance to be measured before neighbors are used.
func (s *State) approximate(kind OperationKind, i int) float64 {
	t, ok := s.tables[kind]
	if !ok {
		return 0
	}
	slot := &t.Slots[i]
	switch slot.State {
	case SlotUnmeasured:
		slot.State = SlotTriedOnce
		return 0
	case SlotTriedOnce:
		return t.approximateNearby(i)
	default:
		return slot.Mean
	}
}

// approximateNearby scans outward from i and returns the nearest measured
// value, averaging the left and right ones when they are equally close.
func (t *Table) approximateNearby(i int) float64 {
	n := len(t.Slots)
	for d := 1; i-d >= 0 || i+d < n; d++ {
		var sum float64
		var found int
		if l := i - d; l >= 0 && t.Slots[l].State == SlotMeasured {
			sum += t.Slots[l].Mean
			found++
		}
		if r := i + d; r < n && t.Slots[r].State == SlotMeasured {
			sum += t.Slots[r].Mean
			found++
		}
		if found > 0 {
			return sum / float64(found)
		}
	}
	return 0
}

// direct returns the measured throughput of bucket i without approximating.
func (s *State) direct(kind OperationKind, i int) float64 {
	t, ok := s.tables[kind]
	if !ok || t.Slots[i].State != SlotMeasured {
		return 0
	}
	return t.Slots[i].Mean
}
