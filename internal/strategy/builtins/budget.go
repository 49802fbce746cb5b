// Package builtins provides the budget allocators that ship with the
// commander console.
package builtins

import (
	"fmt"

	"github.com/shopspring/decimal"

	"commander/internal/domain"
	"commander/internal/strategy"
)

// Compile-time interface checks.
var (
	_ strategy.Allocator = BPPercent{}
	_ strategy.Allocator = FixedNotional{}
)

var hundred = decimal.NewFromInt(100)

// BPPercent spends a percentage of the current buying power.
type BPPercent struct{}

// Name returns "bp_percent".
func (BPPercent) Name() string { return string(domain.SizingBPPercent) }

// Budget returns buyingPower * value / 100.
func (BPPercent) Budget(value, buyingPower decimal.Decimal) (decimal.Decimal, error) {
	if !value.IsPositive() || value.GreaterThan(hundred) {
		return decimal.Zero, fmt.Errorf("bp_percent must be in (0, 100], got %s", value)
	}
	return buyingPower.Mul(value).Div(hundred), nil
}

// FixedNotional spends a fixed dollar amount, clamped to buying power.
type FixedNotional struct{}

// Name returns "fixed_notional".
func (FixedNotional) Name() string { return string(domain.SizingFixedNotional) }

// Budget returns min(value, buyingPower).
func (FixedNotional) Budget(value, buyingPower decimal.Decimal) (decimal.Decimal, error) {
	if !value.IsPositive() {
		return decimal.Zero, fmt.Errorf("fixed_notional must be positive, got %s", value)
	}
	return decimal.Min(value, buyingPower), nil
}

// Registry returns a registry holding every built-in allocator.
func Registry() *strategy.Registry {
	r := strategy.NewRegistry()
	r.Register(BPPercent{})
	r.Register(FixedNotional{})
	return r
}
