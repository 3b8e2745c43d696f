package tuning

import (
	"math"

	"github.com/johndauphine/batchtune/internal/logging"
)

// Strategy names the search that produced a Decision.
type Strategy string

const (
	StrategyNone         Strategy = "none"
	StrategyConservative Strategy = "conservative"
	StrategyBinary       Strategy = "binary"
	StrategyLinear       Strategy = "linear"
)

// Decision describes the outcome of one tuning pass.
type Decision struct {
	Strategy  Strategy
	Previous  int64
	BatchSize int64
}

// Changed reports whether the pass moved the batch size.
func (d Decision) Changed() bool {
	return d.Previous != d.BatchSize
}

// estimate is a bucket's score as seen by a search: a known rate, no data,
// or out of reach because the bucket starts past half the resource.
type estimate struct {
	rate        float64
	unavailable bool
	capped      bool
}

func (e estimate) known() bool {
	return !e.unavailable && !e.capped
}

// score estimates the combined throughput of kinds at bucket i. It returns
// false when any kind has no usable data for that bucket.
func (s *State) score(kinds []Weighted, i int) (float64, bool) {
	size := float64(int64(i+1) * s.stepSize)
	var total float64
	for _, w := range kinds {
		var rate float64
		if w.Kind.approximated() {
			rate = s.approximate(w.Kind, i)
		} else {
			rate = s.direct(w.Kind, i)
		}
		if rate == 0 {
			return 0, false
		}
		weight := w.Weight
		if weight <= 0 {
			weight = 1
		}
		total += size / (rate * weight)
	}
	if total == 0 {
		return 0, false
	}
	return size / total, true
}

func (s *State) estimate(kinds []Weighted, i int) estimate {
	if s.capped(i) {
		return estimate{capped: true}
	}
	rate, ok := s.score(kinds, i)
	if !ok {
		return estimate{unavailable: true}
	}
	return estimate{rate: rate}
}

// Optimize runs one tuning pass and updates the batch size. It does nothing
// unless the mode is ModeFull. Remote resources always use the conservative
// search since their throughput is too noisy for a wide one.
func (s *State) Optimize(kinds []Weighted, forceLinear bool) Decision {
	s.mu.Lock()
	defer s.mu.Unlock()

	d := Decision{Strategy: StrategyNone, Previous: s.batchSize}
	if s.mode != ModeFull || len(kinds) == 0 {
		d.BatchSize = s.batchSize
		return d
	}

	limit := s.maxBatchSize
	if half := s.halfMax(); half < limit {
		limit = half
	}
	maxIndex := BucketIndex(limit, s.stepSize, s.maxBatchSize) - 1

	switch {
	case forceLinear:
		d.Strategy = StrategyLinear
		s.linear(kinds, maxIndex)
	case s.remote:
		d.Strategy = StrategyConservative
		s.conservative(kinds, -1)
	case maxIndex < 1:
	case maxIndex < 3:
		d.Strategy = StrategyConservative
		s.conservative(kinds, maxIndex/2)
	default:
		d.Strategy = StrategyBinary
		s.binary(kinds, 0, maxIndex)
	}

	d.BatchSize = s.batchSize
	if d.Strategy != StrategyNone {
		logging.Debug("Tuning pass (%s): batch size %d -> %d", d.Strategy, d.Previous, d.BatchSize)
	}
	return d
}

// Conservative moves the batch size at most a couple of buckets away from
// index. A negative index means the bucket of the current batch size.
func (s *State) Conservative(kinds []Weighted, index int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.conservative(kinds, index)
}

// Binary narrows the bucket range [lo, hi] toward the best score.
func (s *State) Binary(kinds []Weighted, lo, hi int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.binary(kinds, lo, hi)
}

// Linear scores every bucket from 0 through maxIndex.
func (s *State) Linear(kinds []Weighted, maxIndex int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.linear(kinds, maxIndex)
}

func (s *State) conservative(kinds []Weighted, index int) {
	if index < 0 {
		index = BucketIndex(s.batchSize, s.stepSize, s.maxBatchSize)
	}

	cur := s.estimate(kinds, index)
	if cur.unavailable {
		s.setBucket(index + 1)
		return
	}

	prev := estimate{capped: true}
	if index > 0 {
		prev = s.estimate(kinds, index-1)
	}
	next := s.estimate(kinds, index+1)
	if next.unavailable {
		s.setBucket(index + 2)
		return
	}

	if cur.capped {
		if prev.capped {
			s.setBucket(index - 1)
		}
		return
	}

	// An unavailable previous bucket drops out of the comparison.
	best, bestRate := index, cur.rate
	if prev.known() && prev.rate >= bestRate {
		best, bestRate = index-1, prev.rate
	}
	if next.known() && next.rate > bestRate {
		best = index + 1
	}
	s.setBucket(best)
}

func (s *State) binary(kinds []Weighted, lo, hi int) {
	if top := s.bucketCount() - 1; hi > top {
		hi = top
	}
	if lo < 0 {
		lo = 0
	}
	for hi-lo >= 3 {
		width := float64(hi - lo)
		q1 := lo + int(math.Round(width/4))
		q3 := lo + int(math.Round(width*3/4))
		mid := lo + int(math.Round(width/2))

		s1, ok := s.score(kinds, q1)
		if !ok {
			s.setBucket(q1)
			return
		}
		s3, ok := s.score(kinds, q3)
		if !ok {
			s.setBucket(q3)
			return
		}
		if s3 > s1 {
			lo = mid
		} else {
			hi = mid
		}
	}
	s.conservative(kinds, (lo+hi)/2)
}

func (s *State) linear(kinds []Weighted, maxIndex int) {
	if top := s.bucketCount() - 1; maxIndex > top {
		maxIndex = top
	}
	best := -1
	var bestRate float64
	for i := 0; i <= maxIndex; i++ {
		rate, ok := s.score(kinds, i)
		if !ok {
			s.setBucket(i)
			return
		}
		if best < 0 || rate > bestRate {
			best, bestRate = i, rate
		}
	}
	if best >= 0 {
		s.setBucket(best)
	}
}
