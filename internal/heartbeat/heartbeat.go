// Package heartbeat drives the indicator engine and band controller at their
// configured cadences. It is the only caller of Update in production; retry
// policy lives here, never inside the components it triggers.
package heartbeat

import (
	"context"
	"errors"
	"log"
	"time"

	"treasury-systemv1/internal/controller"
	"treasury-systemv1/internal/indicator"
	"treasury-systemv1/internal/model"
)

// Engine is the indicator side of the heartbeat.
type Engine interface {
	Update() (model.IndicatorUpdate, error)
	ObservationFrequency() time.Duration
	Initialized() bool
}

// Controller is the decision side of the heartbeat.
type Controller interface {
	Update() (model.Decision, error)
	EpochDuration() time.Duration
}

// Hooks receive the outcome of each tick. All hooks are optional.
type Hooks struct {
	OnObservation      func(model.IndicatorUpdate)
	OnObservationError func(error)
	OnDecision         func(model.Decision)
	OnDecisionError    func(error)
}

// Heartbeat triggers engine and controller updates on two independent tickers.
type Heartbeat struct {
	engine Engine
	ctrl   Controller
	hooks  Hooks
}

// New creates a heartbeat over the given components.
func New(engine Engine, ctrl Controller, hooks Hooks) *Heartbeat {
	return &Heartbeat{engine: engine, ctrl: ctrl, hooks: hooks}
}

// Run blocks until ctx is done. The controller ticks slightly faster than its
// epoch so a scheduling hiccup never skips a whole epoch; early ticks are
// rejected by the epoch gate and ignored here.
func (h *Heartbeat) Run(ctx context.Context) {
	obsTicker := time.NewTicker(h.engine.ObservationFrequency())
	defer obsTicker.Stop()

	epochTick := h.ctrl.EpochDuration() / 4
	if epochTick < time.Second {
		epochTick = time.Second
	}
	epochTicker := time.NewTicker(epochTick)
	defer epochTicker.Stop()

	log.Printf("[heartbeat] observation every %s, epoch poll every %s",
		h.engine.ObservationFrequency(), epochTick)

	for {
		select {
		case <-ctx.Done():
			return

		case <-obsTicker.C:
			if !h.engine.Initialized() {
				continue
			}
			upd, err := h.engine.Update()
			if err != nil {
				h.observationError(err)
				continue
			}
			if h.hooks.OnObservation != nil {
				h.hooks.OnObservation(upd)
			}

		case <-epochTicker.C:
			dec, err := h.ctrl.Update()
			if err != nil {
				if errors.Is(err, controller.ErrTooEarly) {
					continue
				}
				h.decisionError(err)
				continue
			}
			if h.hooks.OnDecision != nil {
				h.hooks.OnDecision(dec)
			}
		}
	}
}

func (h *Heartbeat) observationError(err error) {
	var stale *indicator.StaleFeedError
	if errors.As(err, &stale) {
		log.Printf("[heartbeat] skipping observation, stale feed %s (age %s)", stale.Feed, stale.Age)
	} else {
		log.Printf("[heartbeat] observation failed: %v", err)
	}
	if h.hooks.OnObservationError != nil {
		h.hooks.OnObservationError(err)
	}
}

func (h *Heartbeat) decisionError(err error) {
	log.Printf("[heartbeat] epoch update failed: %v", err)
	if h.hooks.OnDecisionError != nil {
		h.hooks.OnDecisionError(err)
	}
}
