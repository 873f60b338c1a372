// Package controller implements the band-position-driven order sizing loop:
// once per epoch it pulls fresh indicator values, locates the current price
// inside the Bollinger band, and converts the band position into a bounded
// buy or sell order executed through the market-making venue.
package controller

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"treasury-systemv1/internal/model"
)

var (
	// ErrInvalidParams reports an out-of-range setter argument.
	ErrInvalidParams = errors.New("controller: invalid params")

	// ErrTooEarly reports an Update attempt before the next epoch opens.
	ErrTooEarly = errors.New("controller: epoch not reached")
)

// Band multiple and threshold bounds enforced by the setters.
const (
	minBandMultiple = 1.0
	maxBandMultiple = 3.0
)

// IndicatorSource supplies fresh indicator values for a decision.
type IndicatorSource interface {
	Update() (model.IndicatorUpdate, error)
}

// Minter mints new units of the asset to a recipient.
type Minter interface {
	MintTo(recipient string, amount float64) error
}

// Treasury releases reserve assets to a recipient.
type Treasury interface {
	WithdrawReserves(recipient string, asset string, amount float64) error
}

// Venue executes time-weighted orders.
type Venue interface {
	// PlaceTimeWeightedOrder splits totalSize into numIntervals equal
	// sub-orders spread over the remainder of the epoch.
	PlaceTimeWeightedOrder(side model.Side, totalSize float64, numIntervals int) (orderID string, err error)

	// MinimumOrderInterval returns the venue's shortest sub-order spacing.
	MinimumOrderInterval() time.Duration
}

// Config carries the controller's construction parameters.
type Config struct {
	// Self is the recipient identity for mints and reserve withdrawals.
	Self string

	// ReserveAsset names the reserve asset withdrawn on the buy branch.
	ReserveAsset string

	EpochDuration   time.Duration
	BidCapacity     float64 // max buy size per epoch, reserve units
	AskCapacity     float64 // max sell size per epoch, asset units
	MaxBandMultiple float64 // band width in standard deviations, [1,3]
	MinPctThreshold float64 // dead zone half-width as a fraction, [0,1]
}

// Controller owns the epoch schedule and sizing parameters. A mutex
// serializes Update against the setters; every call either commits its full
// state transition or fails with nothing mutated.
type Controller struct {
	mu sync.Mutex

	engine   IndicatorSource
	minter   Minter
	treasury Treasury
	venue    Venue

	self         string
	reserveAsset string

	epochDuration time.Duration
	nextEpoch     time.Time // zero value: next Update is immediately eligible
	numIntervals  int

	bidCapacity     float64
	askCapacity     float64
	bandMultiple    float64
	minPctThreshold float64

	now func() time.Time

	// OnDecision, when set, receives every committed decision (including
	// dead-zone ones). Used for journaling and notification fan-out.
	OnDecision func(model.Decision)
}

// New creates a controller. The first Update is eligible immediately; the
// fixed cadence starts from that first successful call.
func New(engine IndicatorSource, minter Minter, treasury Treasury, venue Venue, cfg Config) (*Controller, error) {
	if cfg.EpochDuration <= 0 {
		return nil, fmt.Errorf("%w: non-positive epoch duration", ErrInvalidParams)
	}
	if cfg.MaxBandMultiple < minBandMultiple || cfg.MaxBandMultiple > maxBandMultiple {
		return nil, fmt.Errorf("%w: band multiple %.2f outside [%.0f,%.0f]",
			ErrInvalidParams, cfg.MaxBandMultiple, minBandMultiple, maxBandMultiple)
	}
	if cfg.MinPctThreshold < 0 || cfg.MinPctThreshold > 1 {
		return nil, fmt.Errorf("%w: threshold %.2f outside [0,1]", ErrInvalidParams, cfg.MinPctThreshold)
	}
	c := &Controller{
		engine:          engine,
		minter:          minter,
		treasury:        treasury,
		venue:           venue,
		self:            cfg.Self,
		reserveAsset:    cfg.ReserveAsset,
		bidCapacity:     cfg.BidCapacity,
		askCapacity:     cfg.AskCapacity,
		bandMultiple:    cfg.MaxBandMultiple,
		minPctThreshold: cfg.MinPctThreshold,
		now:             time.Now,
	}
	if err := c.setEpochDuration(cfg.EpochDuration); err != nil {
		return nil, err
	}
	return c, nil
}

// Update runs one controller epoch. It fails with ErrTooEarly before the
// schedule opens; on success the schedule advances by exactly the epoch
// duration, keeping the cadence immune to call-time jitter.
func (c *Controller) Update() (model.Decision, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	if !c.nextEpoch.IsZero() && now.Before(c.nextEpoch) {
		return model.Decision{}, fmt.Errorf("%w: next epoch at %s", ErrTooEarly, c.nextEpoch.Format(time.RFC3339))
	}

	ind, err := c.engine.Update()
	if err != nil {
		return model.Decision{}, fmt.Errorf("controller: indicator update: %w", err)
	}

	pct := pctBand(ind.Price, ind.MovingAverage, ind.StdDev, c.bandMultiple)

	decision := model.Decision{
		EpochTS:       now,
		Price:         ind.Price,
		MovingAverage: ind.MovingAverage,
		StdDev:        ind.StdDev,
		PctBand:       pct,
		Side:          model.SideNone,
		NumIntervals:  c.numIntervals,
	}

	switch {
	case pct > 0.5+c.minPctThreshold:
		overshoot := (pct - 0.5) / 0.5
		size := c.askCapacity * overshoot
		if err := c.minter.MintTo(c.self, size); err != nil {
			return model.Decision{}, fmt.Errorf("controller: mint: %w", err)
		}
		orderID, err := c.venue.PlaceTimeWeightedOrder(model.SideSell, size, c.numIntervals)
		if err != nil {
			return model.Decision{}, fmt.Errorf("controller: place sell: %w", err)
		}
		decision.Side = model.SideSell
		decision.OrderSize = size
		decision.OrderID = orderID

	case pct < 0.5-c.minPctThreshold:
		overshoot := (0.5 - pct) / 0.5
		size := c.bidCapacity * overshoot
		if err := c.treasury.WithdrawReserves(c.self, c.reserveAsset, size); err != nil {
			return model.Decision{}, fmt.Errorf("controller: withdraw reserves: %w", err)
		}
		orderID, err := c.venue.PlaceTimeWeightedOrder(model.SideBuy, size, c.numIntervals)
		if err != nil {
			return model.Decision{}, fmt.Errorf("controller: place buy: %w", err)
		}
		decision.Side = model.SideBuy
		decision.OrderSize = size
		decision.OrderID = orderID
	}

	// Advance from the scheduled slot, not from now, so jittery heartbeats
	// cannot drift the cadence. Dead-zone epochs advance too.
	if c.nextEpoch.IsZero() {
		c.nextEpoch = now.Add(c.epochDuration)
	} else {
		c.nextEpoch = c.nextEpoch.Add(c.epochDuration)
	}

	if c.OnDecision != nil {
		c.OnDecision(decision)
	}
	return decision, nil
}

// pctBand locates price inside [sma - k*std, sma + k*std] as a fraction in
// [0,1]. A zero-width band carries no directional signal and reads as 0.5.
func pctBand(price, sma, stdDev, multiple float64) float64 {
	upper := sma + stdDev*multiple
	lower := sma - stdDev*multiple
	if upper == lower {
		return 0.5
	}
	pct := (price - lower) / (upper - lower)
	if pct < 0 {
		return 0
	}
	if pct > 1 {
		return 1
	}
	return pct
}

// SetEpochDuration changes the epoch length, recomputes the TWAP interval
// count, and zeroes the schedule: the next Update is immediately eligible
// regardless of any prior cadence.
func (c *Controller) SetEpochDuration(d time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.setEpochDuration(d)
}

func (c *Controller) setEpochDuration(d time.Duration) error {
	if d <= 0 {
		return fmt.Errorf("%w: non-positive epoch duration", ErrInvalidParams)
	}
	minInterval := c.venue.MinimumOrderInterval()
	if minInterval <= 0 || d < minInterval {
		return fmt.Errorf("%w: epoch %s shorter than venue minimum interval %s",
			ErrInvalidParams, d, minInterval)
	}
	c.epochDuration = d
	c.numIntervals = int(d / minInterval)
	c.nextEpoch = time.Time{}
	return nil
}

// SetBidCapacity sets the per-epoch buy ceiling. Magnitude is unrestricted.
func (c *Controller) SetBidCapacity(v float64) {
	c.mu.Lock()
	c.bidCapacity = v
	c.mu.Unlock()
}

// SetAskCapacity sets the per-epoch sell ceiling. Magnitude is unrestricted.
func (c *Controller) SetAskCapacity(v float64) {
	c.mu.Lock()
	c.askCapacity = v
	c.mu.Unlock()
}

// SetMaxBandMultiple sets the band width in standard deviations, within [1,3].
func (c *Controller) SetMaxBandMultiple(m float64) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if m < minBandMultiple || m > maxBandMultiple {
		return fmt.Errorf("%w: band multiple %.2f outside [%.0f,%.0f]",
			ErrInvalidParams, m, minBandMultiple, maxBandMultiple)
	}
	c.bandMultiple = m
	return nil
}

// SetMinPctThreshold sets the dead zone half-width as a fraction in [0,1].
func (c *Controller) SetMinPctThreshold(t float64) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if t < 0 || t > 1 {
		return fmt.Errorf("%w: threshold %.2f outside [0,1]", ErrInvalidParams, t)
	}
	c.minPctThreshold = t
	return nil
}

// SetClock replaces the controller's time source. Used by tests and the
// replay driver; production code leaves the default of time.Now.
func (c *Controller) SetClock(now func() time.Time) {
	c.mu.Lock()
	c.now = now
	c.mu.Unlock()
}

// NextEpoch returns the next eligible update time (zero: eligible now).
func (c *Controller) NextEpoch() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.nextEpoch
}

// EpochDuration returns the configured epoch length.
func (c *Controller) EpochDuration() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.epochDuration
}

// NumIntervals returns the TWAP sub-order count derived from the epoch
// duration and the venue's minimum order interval.
func (c *Controller) NumIntervals() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.numIntervals
}
