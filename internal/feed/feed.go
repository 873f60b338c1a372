// Package feed defines the price-feed boundary of the indicator engine.
//
// A Feed is an oracle-style source: it reports its latest reading as a raw
// integer value with a fixed decimal precision, plus the time the reading was
// last refreshed. Staleness judgment is the engine's job, not the feed's.
package feed

import (
	"errors"
	"sync"
	"time"
)

// ErrNoReading is returned by a feed that has not produced any data yet.
var ErrNoReading = errors.New("feed: no reading available")

// Reading is a single oracle answer.
type Reading struct {
	Value     int64     // raw value scaled by 10^Decimals
	UpdatedAt time.Time // last refresh time (UTC)
}

// Feed supplies price readings for one asset pair.
type Feed interface {
	// Name identifies the feed in errors and logs (e.g. "asset/base").
	Name() string

	// LatestReading returns the most recent reading.
	LatestReading() (Reading, error)

	// Decimals returns the fixed decimal precision of Value.
	Decimals() int
}

// ManualFeed is a Feed whose readings are set programmatically.
// Used in tests and by the backtest replay driver.
type ManualFeed struct {
	mu       sync.RWMutex
	name     string
	decimals int
	reading  Reading
	set      bool
}

// NewManualFeed creates a manual feed with the given name and precision.
func NewManualFeed(name string, decimals int) *ManualFeed {
	return &ManualFeed{name: name, decimals: decimals}
}

func (f *ManualFeed) Name() string  { return f.name }
func (f *ManualFeed) Decimals() int { return f.decimals }

// Set records a new reading.
func (f *ManualFeed) Set(value int64, updatedAt time.Time) {
	f.mu.Lock()
	f.reading = Reading{Value: value, UpdatedAt: updatedAt}
	f.set = true
	f.mu.Unlock()
}

func (f *ManualFeed) LatestReading() (Reading, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	if !f.set {
		return Reading{}, ErrNoReading
	}
	return f.reading, nil
}
