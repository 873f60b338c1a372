package model

import (
	"encoding/json"
	"time"
)

// Side is the direction of a rebalancing order.
type Side string

const (
	SideNone Side = "NONE" // dead zone, no order placed
	SideBuy  Side = "BUY"  // price below band midpoint: buy the asset
	SideSell Side = "SELL" // price above band midpoint: sell the asset
)

// Decision records one band controller epoch: the indicator readings it saw,
// the band position it computed, and the order (if any) it placed.
type Decision struct {
	EpochTS       time.Time `json:"epoch_ts"`
	Price         float64   `json:"price"`
	MovingAverage float64   `json:"moving_average"`
	StdDev        float64   `json:"std_dev"`
	PctBand       float64   `json:"pct_band"` // fraction in [0,1]
	Side          Side      `json:"side"`
	OrderSize     float64   `json:"order_size"` // 0 when Side == NONE
	NumIntervals  int       `json:"num_intervals"`
	OrderID       string    `json:"order_id,omitempty"`
}

// JSON returns the JSON-encoded decision.
func (d *Decision) JSON() []byte {
	b, _ := json.Marshal(d)
	return b
}
