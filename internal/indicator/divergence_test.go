package indicator

import (
	"math"
	"testing"
)

// The engine's steady-state update folds |price - evicted| into the
// mean/M2 recurrence with the counter pinned at N. The tests in this file
// pin down how that differs from the two textbook references:
//
//   - an unbounded Welford accumulator, which folds the price itself and
//     differences against the running mean;
//   - a true sliding-window estimator, which recomputes mean and variance
//     over exactly the N retained samples.
//
// The divergence is intentional: the formula is kept bit-compatible with the
// system this engine mirrors. These tests exist so nobody "fixes" it by
// accident — if one starts failing, the formula changed.

// welfordRef is the textbook unbounded accumulator.
type welfordRef struct {
	count int
	mean  float64
	m2    float64
}

func (w *welfordRef) add(x float64) {
	w.count++
	delta := x - w.mean
	w.mean += delta / float64(w.count)
	w.m2 += delta * (x - w.mean)
}

// slidingRef recomputes mean and sample variance over a true N-window.
type slidingRef struct {
	window []float64
	next   int
}

func newSlidingRef(seed []float64) *slidingRef {
	w := make([]float64, len(seed))
	copy(w, seed)
	return &slidingRef{window: w}
}

func (s *slidingRef) add(x float64) {
	s.window[s.next] = x
	s.next = (s.next + 1) % len(s.window)
}

func (s *slidingRef) mean() float64 {
	sum := 0.0
	for _, v := range s.window {
		sum += v
	}
	return sum / float64(len(s.window))
}

func (s *slidingRef) stdDev() float64 {
	m := s.mean()
	ss := 0.0
	for _, v := range s.window {
		ss += (v - m) * (v - m)
	}
	return math.Sqrt(ss / float64(len(s.window)-1))
}

func TestUpdate_ConstantPriceDivergesFromReferences(t *testing.T) {
	// Ten identical seeds, then an update at the same price. Both references
	// keep the mean at 100 with zero deviation. The eviction-delta fold
	// instead feeds the recurrence a zero sample, dragging the average down
	// by avg/N and inflating M2.
	const n = 10
	e, _, _ := newTestEngine(t, n, 100)
	if err := e.Initialize(constantSeed(n, 100), t0); err != nil {
		t.Fatalf("Initialize: %v", err)
	}

	sliding := newSlidingRef(constantSeed(n, 100))
	welford := &welfordRef{}
	for _, s := range constantSeed(n, 100) {
		welford.add(s)
	}

	upd, err := e.Update()
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	sliding.add(100)
	welford.add(100)

	// Both references are unmoved.
	assertClose(t, "sliding mean", sliding.mean(), 100, 1e-9)
	assertClose(t, "sliding stddev", sliding.stdDev(), 0, 1e-9)
	assertClose(t, "welford mean", welford.mean, 100, 1e-9)

	// The engine is not: avg drops to 100 - 100/10 = 90 and
	// m2 jumps to 100*90 = 9000, stddev = sqrt(9000/9) ≈ 31.623.
	assertClose(t, "engine avg", upd.MovingAverage, 90, 1e-9)
	assertClose(t, "engine stddev", upd.StdDev, math.Sqrt(1000), 1e-9)
}

func TestUpdate_RepeatedConstantPriceNeverConverges(t *testing.T) {
	// Under a true estimator, a window saturated with a constant price has
	// zero variance. Under the eviction-delta fold the zero samples keep
	// pulling the average toward zero while M2 only ever grows, so the
	// standard deviation settles at a positive floor instead of collapsing.
	const n = 10
	e, asset, reserve := newTestEngine(t, n, 100)
	if err := e.Initialize(constantSeed(n, 100), t0); err != nil {
		t.Fatalf("Initialize: %v", err)
	}

	sliding := newSlidingRef(constantSeed(n, 100))

	var prevM2Derived float64
	var last float64
	for i := 0; i < 100; i++ {
		asset.Set(toRaw(100), t0)
		reserve.Set(toRaw(1.0), t0)
		upd, err := e.Update()
		if err != nil {
			t.Fatalf("Update %d: %v", i, err)
		}
		sliding.add(100)

		m2Derived := upd.StdDev * upd.StdDev * float64(n-1)
		if m2Derived+1e-9 < prevM2Derived {
			t.Fatalf("update %d: M2 decreased (%.6f -> %.6f)", i, prevM2Derived, m2Derived)
		}
		prevM2Derived = m2Derived
		last = upd.StdDev
	}

	assertClose(t, "sliding stddev", sliding.stdDev(), 0, 1e-9)
	if last < 1 {
		t.Errorf("engine stddev collapsed to %.6f; the eviction-delta fold should keep a positive floor", last)
	}

	// The average decays geometrically toward zero, not toward the price.
	avg, _ := e.MovingAverage()
	if avg > 1 {
		t.Errorf("engine avg=%.6f, expected decay well below the constant price", avg)
	}
}

func TestUpdate_SlidingWindowReferenceDisagreesOnTrend(t *testing.T) {
	// A gentle uptrend: the references track it, the eviction-delta fold
	// tracks the magnitude of price-vs-evicted gaps instead. Assert the
	// divergence is material, not a rounding artifact.
	const n = 5
	seed := []float64{100, 101, 102, 103, 104}
	e, asset, reserve := newTestEngine(t, n, 100)
	if err := e.Initialize(seed, t0); err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	sliding := newSlidingRef(seed)

	var engineAvg float64
	for _, price := range []float64{105, 106, 107, 108, 109} {
		asset.Set(toRaw(price), t0)
		reserve.Set(toRaw(1.0), t0)
		upd, err := e.Update()
		if err != nil {
			t.Fatalf("Update: %v", err)
		}
		sliding.add(price)
		engineAvg = upd.MovingAverage
	}

	assertClose(t, "sliding mean", sliding.mean(), 107, 1e-9)
	if math.Abs(engineAvg-sliding.mean()) < 10 {
		t.Errorf("engine avg=%.4f unexpectedly close to the true rolling mean %.4f", engineAvg, sliding.mean())
	}
}
