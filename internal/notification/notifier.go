// Package notification delivers rebalancing alerts to external channels.
package notification

import (
	"context"
	"fmt"
	"log"

	"treasury-systemv1/internal/model"
)

// AlertLevel represents the severity of an alert.
type AlertLevel string

const (
	AlertInfo     AlertLevel = "INFO"
	AlertWarning  AlertLevel = "WARNING"
	AlertCritical AlertLevel = "CRITICAL"
)

// Alert represents a notification to be sent.
type Alert struct {
	Level   AlertLevel `json:"level"`
	Title   string     `json:"title"`
	Message string     `json:"message"`
}

// Notifier is the interface for all notification backends.
type Notifier interface {
	// Send delivers an alert. Returns error if delivery fails.
	Send(ctx context.Context, alert Alert) error
}

// FromDecision builds the alert for a committed controller decision.
// Dead-zone epochs are informational; placed orders warrant attention.
func FromDecision(d model.Decision) Alert {
	if d.Side == model.SideNone {
		return Alert{
			Level:   AlertInfo,
			Title:   "epoch: no action",
			Message: fmt.Sprintf("price=%.6f pct_band=%.1f%% inside dead zone", d.Price, d.PctBand*100),
		}
	}
	return Alert{
		Level: AlertWarning,
		Title: fmt.Sprintf("epoch: %s %.6f", d.Side, d.OrderSize),
		Message: fmt.Sprintf("price=%.6f sma=%.6f std=%.6f pct_band=%.1f%% order=%s intervals=%d",
			d.Price, d.MovingAverage, d.StdDev, d.PctBand*100, d.OrderID, d.NumIntervals),
	}
}

// LogNotifier is a simple notifier that logs alerts (useful for development).
type LogNotifier struct{}

// NewLogNotifier creates a log-based notifier.
func NewLogNotifier() *LogNotifier {
	return &LogNotifier{}
}

func (n *LogNotifier) Send(ctx context.Context, alert Alert) error {
	log.Printf("[notify] [%s] %s: %s", alert.Level, alert.Title, alert.Message)
	return nil
}
