package domain

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// WeightEpsilon is the tolerance allowed when checking that basket weights
// sum to 100.
var WeightEpsilon = decimal.RequireFromString("0.01")

var hundred = decimal.NewFromInt(100)

// BasketLeg is one symbol and its percentage weight inside a basket.
type BasketLeg struct {
	Symbol string          `yaml:"symbol" json:"symbol"`
	Weight decimal.Decimal `yaml:"weight" json:"weight"`
}

// Basket is a named, ordered list of weighted legs traded as one order.
type Basket struct {
	Name string      `yaml:"name" json:"name"`
	Legs []BasketLeg `yaml:"assets" json:"assets"`
}

// WeightSum returns the sum of all leg weights.
func (b *Basket) WeightSum() decimal.Decimal {
	sum := decimal.Zero
	for _, l := range b.Legs {
		sum = sum.Add(l.Weight)
	}
	return sum
}

// Validate checks that the basket is tradable: it has a legal name, at least
// one leg, and weights summing to 100 within WeightEpsilon.
func (b *Basket) Validate() error {
	if b.Name == "" || strings.HasPrefix(b.Name, ".") {
		return &InvariantError{Subject: "basket " + b.Name, Reason: "name must be non-empty and must not start with '.'"}
	}
	if len(b.Legs) == 0 {
		return &InvariantError{Subject: "basket " + b.Name, Reason: "no legs"}
	}
	sum := b.WeightSum()
	if sum.Sub(hundred).Abs().GreaterThan(WeightEpsilon) {
		return &InvariantError{
			Subject: "basket " + b.Name,
			Reason:  fmt.Sprintf("weights sum to %s, want 100", sum.String()),
		}
	}
	return nil
}

// SizingType selects how a strategy computes its per-tick budget.
type SizingType string

const (
	SizingBPPercent     SizingType = "bp_percent"
	SizingFixedNotional SizingType = "fixed_notional"
)

// StrategySizing is the budget rule of a strategy.
type StrategySizing struct {
	Type  SizingType      `yaml:"type" json:"type"`
	Value decimal.Decimal `yaml:"value" json:"value"`
}

// Strategy is a declarative auto-trading definition, reloaded on every tick.
type Strategy struct {
	Name     string         `yaml:"name" json:"name"`
	Enabled  bool           `yaml:"enabled" json:"enabled"`
	Sizing   StrategySizing `yaml:"position_sizing" json:"position_sizing"`
	Universe []string       `yaml:"universe" json:"universe"`
}
