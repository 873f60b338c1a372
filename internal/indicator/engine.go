// Package indicator implements the rolling price-statistics engine: a
// fixed-size observation window held in a circular buffer, with the moving
// average and M2 (sum of squared deviations) maintained incrementally so no
// update ever needs an O(N) pass over the window.
package indicator

import (
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"treasury-systemv1/internal/feed"
	"treasury-systemv1/internal/model"
)

var (
	// ErrInvalidParams reports malformed configuration or arguments.
	ErrInvalidParams = errors.New("indicator: invalid params")

	// ErrNotInitialized reports a read or update before Initialize.
	ErrNotInitialized = errors.New("indicator: not initialized")

	// ErrAlreadyInitialized reports a double-initialize attempt.
	ErrAlreadyInitialized = errors.New("indicator: already initialized")
)

// StaleFeedError reports an upstream feed whose reading is older than its
// staleness bound allows.
type StaleFeedError struct {
	Feed string
	Age  time.Duration
}

func (e *StaleFeedError) Error() string {
	return fmt.Sprintf("indicator: stale feed %s (age %s)", e.Feed, e.Age)
}

// Staleness bounds, as multiples of the observation frequency. The asset feed
// updates on a deviation threshold and is allowed more slack; the reserve
// feed must be at most one observation period old.
const (
	assetFeedStalenessMult   = 3
	reserveFeedStalenessMult = 1
)

// Engine owns the observation window and running statistics. All methods are
// serialized by an internal mutex; each call commits fully or fails with no
// state change.
type Engine struct {
	mu sync.Mutex

	assetFeed   feed.Feed
	reserveFeed feed.Feed
	scaleFactor float64 // fixed at construction from the feeds' decimals

	maDuration time.Duration
	obsFreq    time.Duration
	n          int

	buf       []float64 // circular buffer; buf[nextIndex] is the oldest sample
	nextIndex int
	avg       float64
	m2        float64

	lastObservationTime time.Time
	initialized         bool

	now   func() time.Time
	obsCh chan model.Observation
}

// New creates an engine over the two upstream feeds. maDuration must be an
// integer multiple of obsFreq, and the resulting window must hold at least
// two samples (standard deviation divides by N-1).
func New(assetFeed, reserveFeed feed.Feed, maDuration, obsFreq time.Duration) (*Engine, error) {
	n, err := windowSize(maDuration, obsFreq)
	if err != nil {
		return nil, err
	}
	return &Engine{
		assetFeed:   assetFeed,
		reserveFeed: reserveFeed,
		scaleFactor: math.Pow(10, float64(reserveFeed.Decimals()-assetFeed.Decimals())),
		maDuration:  maDuration,
		obsFreq:     obsFreq,
		n:           n,
		buf:         make([]float64, n),
		now:         time.Now,
		obsCh:       make(chan model.Observation, 256),
	}, nil
}

func windowSize(maDuration, obsFreq time.Duration) (int, error) {
	if maDuration <= 0 || obsFreq <= 0 {
		return 0, fmt.Errorf("%w: non-positive duration", ErrInvalidParams)
	}
	if maDuration%obsFreq != 0 {
		return 0, fmt.Errorf("%w: duration %s not divisible by frequency %s",
			ErrInvalidParams, maDuration, obsFreq)
	}
	n := int(maDuration / obsFreq)
	if n < 2 {
		return 0, fmt.Errorf("%w: window of %d samples, need at least 2", ErrInvalidParams, n)
	}
	return n, nil
}

// welfordStep is the single-pass mean/M2 recurrence shared by the seed fold
// and the steady-state update.
func welfordStep(avg, m2, sample float64, counter int) (float64, float64) {
	delta := sample - avg
	newAvg := avg + delta/float64(counter)
	newM2 := m2 + delta*(sample-newAvg)
	return newAvg, newM2
}

// Initialize seeds the window with exactly N positive samples and the time of
// the last one. The samples are folded through the incremental recurrence
// (counter running 1..N) to derive the starting average and M2.
func (e *Engine) Initialize(seed []float64, lastObservationTime time.Time) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.initialized {
		return ErrAlreadyInitialized
	}
	if len(seed) != e.n {
		return fmt.Errorf("%w: got %d seed observations, want %d", ErrInvalidParams, len(seed), e.n)
	}
	if lastObservationTime.After(e.now()) {
		return fmt.Errorf("%w: last observation time is in the future", ErrInvalidParams)
	}

	avg, m2 := 0.0, 0.0
	for i, s := range seed {
		if s <= 0 {
			return fmt.Errorf("%w: seed observation %d is non-positive", ErrInvalidParams, i)
		}
		avg, m2 = welfordStep(avg, m2, s, i+1)
	}

	copy(e.buf, seed)
	e.nextIndex = 0
	e.avg = avg
	e.m2 = m2
	e.lastObservationTime = lastObservationTime
	e.initialized = true
	return nil
}

// Update reads a fresh price from the feeds, folds it into the window, and
// returns the price together with the updated statistics.
//
// The new data point fed to the recurrence is |price - evicted|, the absolute
// delta against the sample leaving the window, with counter fixed at N. This
// is neither the textbook Welford step (which differences against the running
// mean) nor a true sliding-window estimator; it is preserved verbatim from
// the system this engine is compatible with. The divergence tests in this
// package pin the behavior down.
func (e *Engine) Update() (model.IndicatorUpdate, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.initialized {
		return model.IndicatorUpdate{}, ErrNotInitialized
	}

	oldest := e.buf[e.nextIndex]
	price, err := e.currentPrice()
	if err != nil {
		return model.IndicatorUpdate{}, err
	}

	diff := math.Abs(price - oldest)
	e.avg, e.m2 = welfordStep(e.avg, e.m2, diff, e.n)

	e.buf[e.nextIndex] = price
	e.nextIndex = (e.nextIndex + 1) % e.n

	ts := e.now()
	e.lastObservationTime = ts

	obs := model.Observation{TS: ts, Price: price}
	select {
	case e.obsCh <- obs:
	default:
		// observer lagging, drop
	}

	return model.IndicatorUpdate{
		TS:            ts,
		Price:         price,
		MovingAverage: e.avg,
		StdDev:        e.stdDev(),
	}, nil
}

// CurrentPrice queries both feeds, validates staleness, and returns the
// asset/reserve cross rate.
func (e *Engine) CurrentPrice() (float64, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.initialized {
		return 0, ErrNotInitialized
	}
	return e.currentPrice()
}

func (e *Engine) currentPrice() (float64, error) {
	now := e.now()

	assetReading, err := e.assetFeed.LatestReading()
	if err != nil {
		return 0, fmt.Errorf("indicator: feed %s: %w", e.assetFeed.Name(), err)
	}
	if age := now.Sub(assetReading.UpdatedAt); age > assetFeedStalenessMult*e.obsFreq {
		return 0, &StaleFeedError{Feed: e.assetFeed.Name(), Age: age}
	}

	reserveReading, err := e.reserveFeed.LatestReading()
	if err != nil {
		return 0, fmt.Errorf("indicator: feed %s: %w", e.reserveFeed.Name(), err)
	}
	if age := now.Sub(reserveReading.UpdatedAt); age > reserveFeedStalenessMult*e.obsFreq {
		return 0, &StaleFeedError{Feed: e.reserveFeed.Name(), Age: age}
	}

	if reserveReading.Value == 0 {
		return 0, fmt.Errorf("indicator: feed %s: zero reading", e.reserveFeed.Name())
	}

	return float64(assetReading.Value) * e.scaleFactor / float64(reserveReading.Value), nil
}

func (e *Engine) stdDev() float64 {
	return math.Sqrt(e.m2 / float64(e.n-1))
}

// MovingAverage returns the current moving average.
func (e *Engine) MovingAverage() (float64, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.initialized {
		return 0, ErrNotInitialized
	}
	return e.avg, nil
}

// StandardDeviation returns sqrt(M2 / (N-1)).
func (e *Engine) StandardDeviation() (float64, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.initialized {
		return 0, ErrNotInitialized
	}
	return e.stdDev(), nil
}

// LastPrice returns the most recently recorded observation.
func (e *Engine) LastPrice() (float64, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.initialized {
		return 0, ErrNotInitialized
	}
	return e.buf[(e.nextIndex+e.n-1)%e.n], nil
}

// LastObservationTime returns the time of the most recent observation.
func (e *Engine) LastObservationTime() (time.Time, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.initialized {
		return time.Time{}, ErrNotInitialized
	}
	return e.lastObservationTime, nil
}

// WindowSize returns N, the number of samples in the observation window.
func (e *Engine) WindowSize() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.n
}

// ObservationFrequency returns the configured sampling cadence.
func (e *Engine) ObservationFrequency() time.Duration {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.obsFreq
}

// SetClock replaces the engine's time source. Used by tests and the replay
// driver; production code leaves the default of time.Now.
func (e *Engine) SetClock(now func() time.Time) {
	e.mu.Lock()
	e.now = now
	e.mu.Unlock()
}

// Initialized reports whether the engine is active.
func (e *Engine) Initialized() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.initialized
}

// Observations returns the stream of observation notifications, one per
// successful Update. The engine never blocks on slow consumers.
func (e *Engine) Observations() <-chan model.Observation {
	return e.obsCh
}

// SetMovingAverageDuration changes the window duration. The window is
// reallocated and all accumulated statistics are discarded; the engine is
// inert until Initialize is called again.
func (e *Engine) SetMovingAverageDuration(d time.Duration) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	n, err := windowSize(d, e.obsFreq)
	if err != nil {
		return err
	}
	e.maDuration = d
	e.reset(n)
	return nil
}

// SetObservationFrequency changes the sampling cadence. Same reset semantics
// as SetMovingAverageDuration; the staleness bounds scale with the new value.
func (e *Engine) SetObservationFrequency(f time.Duration) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	n, err := windowSize(e.maDuration, f)
	if err != nil {
		return err
	}
	e.obsFreq = f
	e.reset(n)
	return nil
}

// reset replaces the backing store wholesale and clears dependent state.
// Reusing aggregates across a window-shape change would corrupt the estimator.
func (e *Engine) reset(n int) {
	e.n = n
	e.buf = make([]float64, n)
	e.nextIndex = 0
	e.avg = 0
	e.m2 = 0
	e.lastObservationTime = time.Time{}
	e.initialized = false
}
