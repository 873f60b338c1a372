// Package venue provides the market-making venue adapter. PaperVenue
// simulates a time-weighted order book: each order is split into equal
// sub-orders and recorded, without touching a real exchange.
package venue

import (
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"treasury-systemv1/internal/model"
)

// Order is a time-weighted order accepted by the paper venue.
type Order struct {
	ID           string     `json:"id"`
	Side         model.Side `json:"side"`
	TotalSize    float64    `json:"total_size"`
	NumIntervals int        `json:"num_intervals"`
	SliceSize    float64    `json:"slice_size"`
	PlacedAt     time.Time  `json:"placed_at"`
}

// PaperVenue records time-weighted orders in memory.
type PaperVenue struct {
	mu          sync.Mutex
	minInterval time.Duration
	orders      []Order
	now         func() time.Time
}

// NewPaperVenue creates a paper venue with the given minimum sub-order
// spacing.
func NewPaperVenue(minInterval time.Duration) *PaperVenue {
	return &PaperVenue{minInterval: minInterval, now: time.Now}
}

// MinimumOrderInterval returns the shortest allowed sub-order spacing.
func (v *PaperVenue) MinimumOrderInterval() time.Duration {
	return v.minInterval
}

// PlaceTimeWeightedOrder accepts an order split into numIntervals equal
// slices and returns its assigned ID.
func (v *PaperVenue) PlaceTimeWeightedOrder(side model.Side, totalSize float64, numIntervals int) (string, error) {
	if totalSize <= 0 {
		return "", fmt.Errorf("venue: non-positive order size %.6f", totalSize)
	}
	if numIntervals < 1 {
		return "", fmt.Errorf("venue: need at least 1 interval, got %d", numIntervals)
	}

	order := Order{
		ID:           uuid.NewString(),
		Side:         side,
		TotalSize:    totalSize,
		NumIntervals: numIntervals,
		SliceSize:    totalSize / float64(numIntervals),
		PlacedAt:     v.now(),
	}

	v.mu.Lock()
	v.orders = append(v.orders, order)
	v.mu.Unlock()

	log.Printf("[venue] %s %.6f over %d intervals (%.6f each) order=%s",
		order.Side, order.TotalSize, order.NumIntervals, order.SliceSize, order.ID)
	return order.ID, nil
}

// Orders returns a snapshot of all accepted orders.
func (v *PaperVenue) Orders() []Order {
	v.mu.Lock()
	defer v.mu.Unlock()
	cp := make([]Order, len(v.orders))
	copy(cp, v.orders)
	return cp
}
