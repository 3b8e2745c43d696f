package tuning

import (
	"errors"
	"math"
	"strings"
	"testing"
	"time"
)

// newTestState returns a full-mode state with 10 buckets of 100 bytes.
func newTestState(t *testing.T, resourceSize int64) *State {
	t.Helper()
	s, err := New(Config{
		Mode:         ModeFull,
		MaxBatchSize: 1000,
		BucketCount:  10,
		ResourceSize: resourceSize,
	})
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}
	return s
}

// fill stores measured throughputs directly into kind's table.
func fill(s *State, kind OperationKind, rates map[int]float64) {
	t, ok := s.tables[kind]
	if !ok {
		t = newTable(s.bucketCount())
		s.tables[kind] = t
	}
	for i, r := range rates {
		t.Slots[i] = Slot{State: SlotMeasured, Mean: r, Count: 1}
	}
}

func almostEqual(a, b float64) bool {
	return math.Abs(a-b) < 1e-6
}

type fakeClock struct {
	t    time.Time
	step time.Duration
}

func (c *fakeClock) Now() time.Time {
	c.t = c.t.Add(c.step)
	return c.t
}

func TestBucketIndex(t *testing.T) {
	tests := []struct {
		size     int64
		expected int
	}{
		{0, 0},
		{99, 0},
		{100, 0},
		{199, 0},
		{200, 1},
		{250, 1},
		{999, 8},
		{1000, 9},
		{5000, 9},
	}

	for _, tt := range tests {
		if got := BucketIndex(tt.size, 100, 1000); got != tt.expected {
			t.Errorf("BucketIndex(%d, 100, 1000) = %d, want %d", tt.size, got, tt.expected)
		}
	}
}

func TestBucketIndexMonotonic(t *testing.T) {
	prev := BucketIndex(0, 64, 4096)
	for size := int64(1); size <= 8192; size++ {
		got := BucketIndex(size, 64, 4096)
		if got < prev {
			t.Fatalf("BucketIndex(%d) = %d, smaller than %d for size %d", size, got, prev, size-1)
		}
		if got < 0 || got > 63 {
			t.Fatalf("BucketIndex(%d) = %d out of range", size, got)
		}
		prev = got
	}
}

func TestRecord_MeanCorrectness(t *testing.T) {
	s := newTestState(t, 100000)

	s.Record(Insert, 250, time.Second)
	s.Record(Insert, 250, 500*time.Millisecond)
	s.Record(Insert, 250, 250*time.Millisecond)

	slot := s.tables[Insert].Slots[1]
	if slot.State != SlotMeasured {
		t.Fatalf("slot state = %v, want measured", slot.State)
	}
	if slot.Count != 3 {
		t.Errorf("slot count = %d, want 3", slot.Count)
	}
	want := (250.0 + 500.0 + 1000.0) / 3
	if !almostEqual(slot.Mean, want) {
		t.Errorf("slot mean = %f, want %f", slot.Mean, want)
	}
}

func TestRecord_AfterTriedOnce(t *testing.T) {
	s := newTestState(t, 100000)
	s.tables[Write] = newTable(10)

	if got := s.approximate(Write, 1); got != 0 {
		t.Fatalf("first approximate = %f, want 0", got)
	}
	s.Record(Write, 200, time.Second)

	slot := s.tables[Write].Slots[1]
	if slot.State != SlotMeasured || slot.Count != 1 || !almostEqual(slot.Mean, 200) {
		t.Errorf("slot = %+v, want measured mean 200 count 1", slot)
	}
}

func TestRecord_Skipped(t *testing.T) {
	tests := []struct {
		name    string
		mode    Mode
		size    int64
		elapsed time.Duration
	}{
		{"mode off", ModeOff, 250, time.Second},
		{"zero size", ModeFull, 0, time.Second},
		{"negative size", ModeFull, -5, time.Second},
		{"zero duration", ModeFull, 250, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newTestState(t, 100000)
			s.SetMode(tt.mode)
			s.Record(Insert, tt.size, tt.elapsed)
			if _, ok := s.tables[Insert]; ok {
				t.Error("expected no table to be allocated")
			}
		})
	}
}

func TestRecord_StatsOnlyRecords(t *testing.T) {
	s := newTestState(t, 100000)
	s.SetMode(ModeStatsOnly)
	s.Record(Encode, 500, time.Second)

	buckets, samples := s.Snapshot().Measured(Encode)
	if buckets != 1 || samples != 1 {
		t.Errorf("Measured(Encode) = (%d, %d), want (1, 1)", buckets, samples)
	}
}

func TestApproximate_ScenarioA(t *testing.T) {
	s := newTestState(t, 100000)
	s.Record(Insert, 250, time.Second)

	if got := s.approximate(Insert, 1); !almostEqual(got, 250) {
		t.Errorf("approximate(Insert, 1) = %f, want 250", got)
	}
}

func TestApproximate_ScenarioB(t *testing.T) {
	s := newTestState(t, 100000)
	s.tables[Insert] = newTable(10)

	if got := s.approximate(Insert, 3); got != 0 {
		t.Errorf("first approximate = %f, want 0", got)
	}
	if state := s.tables[Insert].Slots[3].State; state != SlotTriedOnce {
		t.Errorf("slot 3 state = %v, want tried once", state)
	}
	if got := s.approximate(Insert, 3); got != 0 {
		t.Errorf("second approximate = %f, want 0", got)
	}

	// Once a neighbor is measured the slot answers with its rate and stays
	// tried once.
	s.Record(Insert, 500, time.Second)
	if got := s.approximate(Insert, 3); !almostEqual(got, 500) {
		t.Errorf("approximate after neighbor measured = %f, want 500", got)
	}
	if state := s.tables[Insert].Slots[3].State; state != SlotTriedOnce {
		t.Errorf("slot 3 state = %v, want tried once", state)
	}
}

func TestApproximate_NoTable(t *testing.T) {
	s := newTestState(t, 100000)
	if got := s.approximate(Write, 4); got != 0 {
		t.Errorf("approximate without table = %f, want 0", got)
	}
	if _, ok := s.tables[Write]; ok {
		t.Error("approximate must not allocate a table")
	}
}

func TestApproximate_Nearby(t *testing.T) {
	s := newTestState(t, 100000)
	fill(s, Insert, map[int]float64{2: 200, 6: 600})

	tests := []struct {
		name  string
		index int
		want  float64
	}{
		{"equidistant neighbors are averaged", 4, 400},
		{"nearest right neighbor wins", 5, 600},
		{"nearest left neighbor wins", 3, 200},
		{"left edge scans right", 0, 200},
		{"right edge scans left", 9, 600},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := s.approximate(Insert, tt.index); got != 0 {
				t.Fatalf("first lookup = %f, want 0", got)
			}
			if got := s.approximate(Insert, tt.index); !almostEqual(got, tt.want) {
				t.Errorf("second lookup = %f, want %f", got, tt.want)
			}
			if got := s.approximate(Insert, tt.index); !almostEqual(got, tt.want) {
				t.Errorf("third lookup = %f, want %f", got, tt.want)
			}
			if state := s.tables[Insert].Slots[tt.index].State; state != SlotTriedOnce {
				t.Errorf("slot state = %v, want tried once", state)
			}
		})
	}
}

func TestScore(t *testing.T) {
	s := newTestState(t, 100000)
	fill(s, Insert, map[int]float64{3: 1000})
	fill(s, Write, map[int]float64{3: 1000})

	got, ok := s.score(Weigh(Insert, Write), 3)
	if !ok || !almostEqual(got, 500) {
		t.Errorf("score(insert, write) = (%f, %v), want (500, true)", got, ok)
	}

	weighted := []Weighted{{Kind: Insert, Weight: 1}, {Kind: Write, Weight: 2}}
	got, ok = s.score(weighted, 3)
	if !ok || !almostEqual(got, 1/(0.001+0.0005)) {
		t.Errorf("weighted score = (%f, %v), want (%f, true)", got, ok, 1/(0.001+0.0005))
	}

	zeroWeight := []Weighted{{Kind: Insert}, {Kind: Write}}
	got, ok = s.score(zeroWeight, 3)
	if !ok || !almostEqual(got, 500) {
		t.Errorf("zero weights should count as 1, got (%f, %v)", got, ok)
	}
}

func TestScore_ShortCircuit(t *testing.T) {
	t.Run("missing table", func(t *testing.T) {
		s := newTestState(t, 100000)
		fill(s, Insert, map[int]float64{3: 1000})
		if _, ok := s.score(Weigh(Insert, Encode), 3); ok {
			t.Error("expected unavailable when encode has no data")
		}
	})

	t.Run("first kind unknown skips the rest", func(t *testing.T) {
		s := newTestState(t, 100000)
		s.tables[Write] = newTable(10)
		fill(s, Insert, map[int]float64{3: 1000})
		if _, ok := s.score(Weigh(Encode, Write), 3); ok {
			t.Error("expected unavailable")
		}
		if state := s.tables[Write].Slots[3].State; state != SlotUnmeasured {
			t.Errorf("write slot should not be looked up, state = %v", state)
		}
	})

	t.Run("hex kinds are not approximated", func(t *testing.T) {
		s := newTestState(t, 100000)
		fill(s, Insert, map[int]float64{3: 1000})
		fill(s, Hexlify, map[int]float64{2: 5000, 4: 5000})
		for i := 0; i < 3; i++ {
			if _, ok := s.score(Weigh(Insert, Hexlify), 3); ok {
				t.Fatalf("lookup %d: expected unavailable for unmeasured hexlify bucket", i)
			}
		}
		if state := s.tables[Hexlify].Slots[3].State; state != SlotUnmeasured {
			t.Errorf("hexlify slot state = %v, want unmeasured", state)
		}
	})
}

func TestConservative_ScenarioC(t *testing.T) {
	s := newTestState(t, 100000)
	s.Conservative(Weigh(Insert), 0)
	if got := s.BatchSize(); got != 200 {
		t.Errorf("BatchSize() = %d, want 200", got)
	}
}

func TestConservative(t *testing.T) {
	tests := []struct {
		name         string
		resourceSize int64
		initial      int64
		rates        map[int]float64
		index        int
		want         int64
	}{
		{
			name:         "next unknown grows two buckets",
			resourceSize: 100000,
			rates:        map[int]float64{2: 500, 3: 500},
			index:        3,
			want:         600,
		},
		{
			name:         "best of three",
			resourceSize: 100000,
			rates:        map[int]float64{2: 500, 3: 800, 4: 600},
			index:        3,
			want:         400,
		},
		{
			name:         "next is better",
			resourceSize: 100000,
			rates:        map[int]float64{2: 500, 3: 600, 4: 800},
			index:        3,
			want:         500,
		},
		{
			name:         "ties favor lower bucket",
			resourceSize: 100000,
			rates:        map[int]float64{2: 700, 3: 700, 4: 700},
			index:        3,
			want:         300,
		},
		{
			name:         "unavailable previous is skipped",
			resourceSize: 100000,
			rates:        map[int]float64{3: 800, 4: 600},
			index:        3,
			want:         400,
		},
		{
			name:         "first bucket has no previous",
			resourceSize: 100000,
			rates:        map[int]float64{0: 900, 1: 800},
			index:        0,
			want:         100,
		},
		{
			name:         "current capped stays put",
			resourceSize: 600,
			initial:      700,
			rates:        map[int]float64{2: 500, 3: 500},
			index:        3,
			want:         700,
		},
		{
			name:         "current and previous capped step down",
			resourceSize: 400,
			initial:      900,
			rates:        map[int]float64{3: 500, 4: 500},
			index:        4,
			want:         300,
		},
		{
			name:         "negative index uses current batch size",
			resourceSize: 100000,
			initial:      400,
			rates:        map[int]float64{2: 900, 3: 800, 4: 600},
			index:        -1,
			want:         300,
		},
		{
			name:         "top bucket has no next",
			resourceSize: 100000,
			rates:        map[int]float64{8: 500, 9: 900},
			index:        9,
			want:         1000,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newTestState(t, tt.resourceSize)
			if tt.initial > 0 {
				s.batchSize = tt.initial
			}
			fill(s, Insert, tt.rates)
			s.Conservative(Weigh(Insert), tt.index)
			if got := s.BatchSize(); got != tt.want {
				t.Errorf("BatchSize() = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestLinear_ScenarioD(t *testing.T) {
	s := newTestState(t, 100000)
	fill(s, Insert, map[int]float64{0: 100, 1: 200, 4: 900, 5: 900})

	s.Linear(Weigh(Insert), 5)

	if got := s.BatchSize(); got != 300 {
		t.Errorf("BatchSize() = %d, want 300", got)
	}
	if state := s.tables[Insert].Slots[2].State; state != SlotTriedOnce {
		t.Errorf("slot 2 state = %v, want tried once", state)
	}
	if state := s.tables[Insert].Slots[3].State; state != SlotUnmeasured {
		t.Errorf("scan should stop before slot 3, state = %v", state)
	}
}

func TestLinear_PicksBest(t *testing.T) {
	s := newTestState(t, 100000)
	fill(s, Insert, map[int]float64{0: 100, 1: 400, 2: 700, 3: 700, 4: 300, 5: 200})

	s.Linear(Weigh(Insert), 5)

	if got := s.BatchSize(); got != 300 {
		t.Errorf("BatchSize() = %d, want 300 (first of the tied best buckets)", got)
	}
}

func TestLinear_EmptyRange(t *testing.T) {
	s := newTestState(t, 100000)
	s.batchSize = 500
	s.Linear(Weigh(Insert), -1)
	if got := s.BatchSize(); got != 500 {
		t.Errorf("BatchSize() = %d, want unchanged 500", got)
	}
}

func TestBinary_ScenarioE(t *testing.T) {
	s := newTestState(t, 100000)
	// Bucket 4 is left empty: it is only probed if the search wrongly
	// narrows to the lower half.
	fill(s, Insert, map[int]float64{2: 300, 5: 600, 6: 700, 7: 800, 8: 900, 9: 500})

	s.Binary(Weigh(Insert), 0, 9)

	if got := s.BatchSize(); got != 900 {
		t.Errorf("BatchSize() = %d, want 900", got)
	}
	if state := s.tables[Insert].Slots[4].State; state != SlotUnmeasured {
		t.Errorf("slot 4 state = %v, want unmeasured", state)
	}
}

func TestBinary_LowerHalf(t *testing.T) {
	s := newTestState(t, 100000)
	rates := make(map[int]float64)
	for i := 0; i < 10; i++ {
		rates[i] = 1000 - 100*math.Abs(float64(i-1))
	}
	fill(s, Insert, rates)

	s.Binary(Weigh(Insert), 0, 9)

	if got := s.BatchSize(); got != 200 {
		t.Errorf("BatchSize() = %d, want 200", got)
	}
}

func TestBinary_Frontier(t *testing.T) {
	t.Run("quarter point unknown", func(t *testing.T) {
		s := newTestState(t, 100000)
		fill(s, Insert, map[int]float64{0: 100, 1: 100})
		s.Binary(Weigh(Insert), 0, 9)
		if got := s.BatchSize(); got != 300 {
			t.Errorf("BatchSize() = %d, want 300", got)
		}
	})

	t.Run("three quarter point unknown", func(t *testing.T) {
		s := newTestState(t, 100000)
		fill(s, Insert, map[int]float64{2: 100})
		s.Binary(Weigh(Insert), 0, 9)
		if got := s.BatchSize(); got != 800 {
			t.Errorf("BatchSize() = %d, want 800", got)
		}
	})
}

func TestOptimize_Dispatch(t *testing.T) {
	full := make(map[int]float64)
	for i := 0; i < 10; i++ {
		full[i] = float64(100 * (i + 1))
	}

	tests := []struct {
		name         string
		mode         Mode
		resourceSize int64
		remote       bool
		forceLinear  bool
		want         Strategy
	}{
		{"stats only does nothing", ModeStatsOnly, 100000, false, false, StrategyNone},
		{"off does nothing", ModeOff, 100000, false, false, StrategyNone},
		{"force linear", ModeFull, 100000, false, true, StrategyLinear},
		{"force linear beats remote", ModeFull, 100000, true, true, StrategyLinear},
		{"remote is conservative", ModeFull, 100000, true, false, StrategyConservative},
		{"tiny resource", ModeFull, 300, false, false, StrategyNone},
		{"small resource", ModeFull, 800, false, false, StrategyConservative},
		{"large resource", ModeFull, 100000, false, false, StrategyBinary},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newTestState(t, tt.resourceSize)
			s.SetMode(tt.mode)
			s.SetRemote(tt.remote)
			fill(s, Insert, full)

			d := s.Optimize(Weigh(Insert), tt.forceLinear)
			if d.Strategy != tt.want {
				t.Errorf("Strategy = %s, want %s", d.Strategy, tt.want)
			}
			if d.Previous != 100 {
				t.Errorf("Previous = %d, want 100", d.Previous)
			}
			if d.BatchSize != s.BatchSize() {
				t.Errorf("Decision.BatchSize = %d, state has %d", d.BatchSize, s.BatchSize())
			}
			if tt.want == StrategyNone && d.Changed() {
				t.Errorf("no-op pass changed batch size to %d", d.BatchSize)
			}
		})
	}
}

func TestOptimize_NoKinds(t *testing.T) {
	s := newTestState(t, 100000)
	if d := s.Optimize(nil, false); d.Strategy != StrategyNone {
		t.Errorf("Strategy = %s, want none", d.Strategy)
	}
}

func TestHalfSizeCap(t *testing.T) {
	rising := make(map[int]float64)
	for i := 0; i < 10; i++ {
		rising[i] = float64(100 * (i + 1))
	}

	for _, resourceSize := range []int64{0, 50, 150, 333, 450, 1000, 1999, 100000} {
		for _, forceLinear := range []bool{false, true} {
			s := newTestState(t, resourceSize)
			fill(s, Insert, rising)
			half := (resourceSize + 1) / 2

			for pass := 0; pass < 5; pass++ {
				s.Optimize(Weigh(Insert), forceLinear)
				if start := s.BatchSize() - s.StepSize(); start > half {
					t.Fatalf("resource %d linear=%v pass %d: batch %d starts past half size %d",
						resourceSize, forceLinear, pass, s.BatchSize(), half)
				}
			}
			for index := 0; index < 12; index++ {
				s.Conservative(Weigh(Insert, Write), index)
				if start := s.BatchSize() - s.StepSize(); start > half {
					t.Fatalf("resource %d conservative(%d): batch %d starts past half size %d",
						resourceSize, index, s.BatchSize(), half)
				}
			}
		}
	}
}

func TestTime(t *testing.T) {
	clock := &fakeClock{t: time.Unix(0, 0), step: 2 * time.Second}
	s, err := New(Config{Mode: ModeFull, MaxBatchSize: 1000, BucketCount: 10, ResourceSize: 100000},
		WithClock(clock.Now))
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}

	got, err := Time(s, Write, func() (string, int64, error) {
		return "written", 500, nil
	})
	if err != nil || got != "written" {
		t.Fatalf("Time() = (%q, %v), want (written, nil)", got, err)
	}
	slot := s.tables[Write].Slots[4]
	if slot.Count != 1 || !almostEqual(slot.Mean, 250) {
		t.Errorf("slot 4 = %+v, want one sample of 250 B/s", slot)
	}

	errWrite := errors.New("disk full")
	if _, err := Time(s, Write, func() (string, int64, error) {
		return "", 700, errWrite
	}); !errors.Is(err, errWrite) {
		t.Errorf("Time() error = %v, want %v", err, errWrite)
	}
	if s.tables[Write].Slots[6].State != SlotUnmeasured {
		t.Error("failed operation should not be recorded")
	}
}

func TestStopwatch(t *testing.T) {
	clock := &fakeClock{t: time.Unix(0, 0), step: 500 * time.Millisecond}
	s, err := New(Config{Mode: ModeFull, MaxBatchSize: 1000, BucketCount: 10}, WithClock(clock.Now))
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}

	done := s.Stopwatch(Hexlify)
	done(300)

	slot := s.tables[Hexlify].Slots[2]
	if slot.Count != 1 || !almostEqual(slot.Mean, 600) {
		t.Errorf("slot 2 = %+v, want one sample of 600 B/s", slot)
	}
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		wantErr bool
	}{
		{"valid", Config{MaxBatchSize: 1 << 20, BucketCount: 1000}, false},
		{"default buckets", Config{MaxBatchSize: 1 << 20}, false},
		{"zero max", Config{MaxBatchSize: 0}, true},
		{"negative buckets", Config{MaxBatchSize: 1 << 20, BucketCount: -1}, true},
		{"max below bucket count", Config{MaxBatchSize: 10, BucketCount: 100}, true},
		{"negative initial", Config{MaxBatchSize: 1 << 20, InitialBatchSize: -1}, true},
		{"negative resource", Config{MaxBatchSize: 1 << 20, ResourceSize: -1}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestNewDefaults(t *testing.T) {
	s, err := New(Config{MaxBatchSize: 4 << 20})
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}
	if got := s.StepSize(); got != (4<<20)/DefaultBucketCount {
		t.Errorf("StepSize() = %d, want %d", got, (4<<20)/DefaultBucketCount)
	}
	if s.BatchSize() != s.StepSize() {
		t.Errorf("BatchSize() = %d, want one step", s.BatchSize())
	}
	if s.Mode() != ModeOff {
		t.Errorf("Mode() = %s, want off", s.Mode())
	}
}

func TestSetLimits(t *testing.T) {
	s := newTestState(t, 100000)
	s.Record(Insert, 250, time.Second)
	s.batchSize = 900

	if err := s.SetLimits(500, 5); err != nil {
		t.Fatalf("SetLimits() error: %v", err)
	}
	if len(s.Snapshot().Tables) != 0 {
		t.Error("SetLimits should discard existing tables")
	}
	if s.BatchSize() != 500 {
		t.Errorf("BatchSize() = %d, want 500", s.BatchSize())
	}
	if err := s.SetLimits(0, 5); err == nil {
		t.Error("expected error for zero max batch size")
	}
}

func TestParseKind(t *testing.T) {
	for _, kind := range Kinds {
		got, err := ParseKind(strings.ToUpper(kind.String()))
		if err != nil || got != kind {
			t.Errorf("ParseKind(%q) = (%v, %v), want %v", kind.String(), got, err, kind)
		}
	}
	if got, err := ParseKind("read"); err != nil || got != RawInsert {
		t.Errorf("ParseKind(read) = (%v, %v), want raw_insert", got, err)
	}
	if _, err := ParseKind("compress"); err == nil {
		t.Error("expected error for unknown kind")
	}
	if got := OperationKind(42).String(); got != "unknown" {
		t.Errorf("String() = %q, want unknown", got)
	}
}

func TestParseMode(t *testing.T) {
	tests := []struct {
		input   string
		want    Mode
		wantErr bool
	}{
		{"off", ModeOff, false},
		{"stats", ModeStatsOnly, false},
		{"STATS_ONLY", ModeStatsOnly, false},
		{"full", ModeFull, false},
		{"Full", ModeFull, false},
		{"auto", ModeOff, true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParseMode(tt.input)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseMode(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("ParseMode(%q) = %s, want %s", tt.input, got, tt.want)
			}
		})
	}
}

func TestSnapshotFormatTable(t *testing.T) {
	s := newTestState(t, 100000)
	s.Record(Insert, 250, time.Second)
	s.Record(Write, 800, 2*time.Second)

	out := s.Snapshot().FormatTable()
	for _, want := range []string{"insert", "write", "Throughput", "mode full"} {
		if !strings.Contains(out, want) {
			t.Errorf("FormatTable() missing %q:\n%s", want, out)
		}
	}
	if strings.Contains(out, "encode") {
		t.Errorf("FormatTable() should skip kinds without tables:\n%s", out)
	}
}
