// Package model defines the shared value types flowing between the indicator
// engine, the band controller, and the storage/notification layers.
package model

import (
	"encoding/json"
	"time"
)

// Observation is a single recorded price sample, emitted after every
// successful indicator update.
type Observation struct {
	TS    time.Time `json:"ts"`    // observation time (UTC)
	Price float64   `json:"price"` // asset price in reserve units
}

// JSON returns the JSON-encoded observation (ignoring errors for hot-path usage).
func (o *Observation) JSON() []byte {
	b, _ := json.Marshal(o)
	return b
}

// IndicatorUpdate is the result of one indicator engine tick: the fresh price
// together with the updated moving average and standard deviation.
type IndicatorUpdate struct {
	TS            time.Time `json:"ts"`
	Price         float64   `json:"price"`
	MovingAverage float64   `json:"moving_average"`
	StdDev        float64   `json:"std_dev"`
}

// JSON returns the JSON-encoded update.
func (u *IndicatorUpdate) JSON() []byte {
	b, _ := json.Marshal(u)
	return b
}
