// Package calibration drives a tuning State with synthetic cost models so the
// search can be watched converging without touching real I/O.
package calibration

import (
	"fmt"
	"math"
	"time"

	"github.com/johndauphine/batchtune/internal/tuning"
)

// Profile is a synthetic cost model of one operation kind. Calls pay a fixed
// overhead plus the batch size over the bandwidth. Batches larger than
// CacheSize slow down in proportion to how far they overflow it, which gives
// the throughput curve a single peak.
type Profile struct {
	Kind      tuning.OperationKind
	Overhead  time.Duration
	Bandwidth float64 // bytes per second
	CacheSize int64
	Penalty   float64
}

// Cost returns how long the modeled operation takes for a batch of size bytes.
func (p Profile) Cost(size int64) time.Duration {
	ns := float64(size) * float64(time.Second) / p.Bandwidth
	if p.CacheSize > 0 && size > p.CacheSize {
		ns *= 1 + p.Penalty*float64(size-p.CacheSize)/float64(p.CacheSize)
	}
	return p.Overhead + time.Duration(math.Round(ns))
}

// Throughput returns the modeled bytes per second at size.
func (p Profile) Throughput(size int64) float64 {
	d := p.Cost(size)
	if d <= 0 {
		return 0
	}
	return float64(size) / d.Seconds()
}

// DefaultProfile returns a plausible cost model for kind, scaled so that the
// peak sits at cacheSize.
func DefaultProfile(kind tuning.OperationKind, cacheSize int64) Profile {
	p := Profile{Kind: kind, CacheSize: cacheSize, Penalty: 4}
	switch kind {
	case tuning.RawInsert:
		p.Overhead, p.Bandwidth = 200*time.Microsecond, 800<<20
	case tuning.Insert:
		p.Overhead, p.Bandwidth = 250*time.Microsecond, 300<<20
	case tuning.Encode:
		p.Overhead, p.Bandwidth = 20*time.Microsecond, 200<<20
	case tuning.Write:
		p.Overhead, p.Bandwidth = 400*time.Microsecond, 500<<20
	case tuning.Hexlify, tuning.Dehexlify:
		p.Overhead, p.Bandwidth = 10*time.Microsecond, 400<<20
	}
	return p
}

// Profiles builds default profiles for the named kinds.
func Profiles(names []string, cacheSize int64) ([]Profile, error) {
	if len(names) == 0 {
		return nil, fmt.Errorf("no operation kinds given")
	}
	out := make([]Profile, 0, len(names))
	for _, name := range names {
		kind, err := tuning.ParseKind(name)
		if err != nil {
			return nil, err
		}
		out = append(out, DefaultProfile(kind, cacheSize))
	}
	return out, nil
}

// combined returns the modeled throughput of all profiles run back to back
// on one batch. Weights multiply throughput the same way the scorer does.
func combined(profiles []Profile, weight func(tuning.OperationKind) float64, size int64) float64 {
	var total float64
	for _, p := range profiles {
		w := 1.0
		if weight != nil {
			w = weight(p.Kind)
		}
		if w <= 0 {
			w = 1
		}
		total += p.Cost(size).Seconds() / w
	}
	if total == 0 {
		return 0
	}
	return float64(size) / total
}
