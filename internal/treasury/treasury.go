// Package treasury provides paper implementations of the minting and reserve
// collaborators. They track balances in memory and are used for simulation,
// backtesting, and tests; production deployments swap in adapters to the real
// settlement layer.
package treasury

import (
	"errors"
	"fmt"
	"log"
	"sync"
)

// ErrInsufficientReserves reports a withdrawal exceeding the held reserves.
var ErrInsufficientReserves = errors.New("treasury: insufficient reserves")

// PaperMinter mints unlimited units of the asset, crediting an in-memory
// balance per recipient.
type PaperMinter struct {
	mu       sync.Mutex
	balances map[string]float64
	minted   float64
}

// NewPaperMinter creates a paper minter.
func NewPaperMinter() *PaperMinter {
	return &PaperMinter{balances: make(map[string]float64)}
}

// MintTo credits amount units of the asset to recipient.
func (m *PaperMinter) MintTo(recipient string, amount float64) error {
	if amount < 0 {
		return fmt.Errorf("treasury: mint negative amount %.6f", amount)
	}
	m.mu.Lock()
	m.balances[recipient] += amount
	m.minted += amount
	m.mu.Unlock()
	log.Printf("[minter] minted %.6f to %s", amount, recipient)
	return nil
}

// Balance returns the minted balance held by recipient.
func (m *PaperMinter) Balance(recipient string) float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.balances[recipient]
}

// TotalMinted returns the cumulative minted supply.
func (m *PaperMinter) TotalMinted() float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.minted
}

// PaperTreasury holds per-asset reserves and releases them on request.
type PaperTreasury struct {
	mu       sync.Mutex
	reserves map[string]float64
	released map[string]map[string]float64 // asset -> recipient -> amount
}

// NewPaperTreasury creates a paper treasury seeded with the given reserves.
func NewPaperTreasury(reserves map[string]float64) *PaperTreasury {
	r := make(map[string]float64, len(reserves))
	for k, v := range reserves {
		r[k] = v
	}
	return &PaperTreasury{
		reserves: r,
		released: make(map[string]map[string]float64),
	}
}

// WithdrawReserves transfers amount of asset to recipient, failing if the
// treasury does not hold enough.
func (t *PaperTreasury) WithdrawReserves(recipient string, asset string, amount float64) error {
	if amount < 0 {
		return fmt.Errorf("treasury: withdraw negative amount %.6f", amount)
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	held := t.reserves[asset]
	if held < amount {
		return fmt.Errorf("%w: %s held %.6f, need %.6f", ErrInsufficientReserves, asset, held, amount)
	}
	t.reserves[asset] = held - amount
	if t.released[asset] == nil {
		t.released[asset] = make(map[string]float64)
	}
	t.released[asset][recipient] += amount
	log.Printf("[treasury] released %.6f %s to %s (%.6f remaining)", amount, asset, recipient, t.reserves[asset])
	return nil
}

// Reserves returns the current holdings of asset.
func (t *PaperTreasury) Reserves(asset string) float64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.reserves[asset]
}

// Released returns the total released to recipient for asset.
func (t *PaperTreasury) Released(asset, recipient string) float64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.released[asset][recipient]
}
