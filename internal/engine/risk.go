package engine

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	"commander/internal/domain"
	"commander/internal/sizing"
)

// ErrBelowMinimum marks an order whose quantity is smaller than the smallest
// tradable unit. Fan-out callers record it as a skip rather than a failure.
var ErrBelowMinimum = errors.New("below minimum")

// RiskManager enforces pre-trade rules on a resolved order: tradable
// quantity, share precision, and an optional cap on order value.
type RiskManager struct {
	policy           sizing.Policy
	maxOrderNotional decimal.Decimal
}

// NewRiskManager creates a RiskManager for the given quantity policy.
//
//   - maxOrderNotional: largest estimated order value allowed; zero disables
//     the check.
func NewRiskManager(policy sizing.Policy, maxOrderNotional decimal.Decimal) *RiskManager {
	return &RiskManager{policy: policy, maxOrderNotional: maxOrderNotional}
}

// CheckOrder evaluates whether intent may be sent, given the last price.
// A sell that closes the whole position skips the minimum and precision
// checks, so any holding can be liquidated.
func (rm *RiskManager) CheckOrder(intent domain.OrderIntent, price decimal.Decimal) error {
	if !intent.Qty.IsPositive() {
		return fmt.Errorf("%w: %s < %s", ErrBelowMinimum, intent.Qty, rm.policy.MinQty())
	}
	if !intent.ClosesPosition {
		if intent.Qty.LessThan(rm.policy.MinQty()) {
			return fmt.Errorf("%w: %s < %s", ErrBelowMinimum, intent.Qty, rm.policy.MinQty())
		}
		if !rm.policy.IsFractional() && !intent.Qty.Equal(intent.Qty.Truncate(0)) {
			return fmt.Errorf("fractional quantity %s not allowed", intent.Qty)
		}
	}
	if intent.Type == domain.OrderTypeLimit {
		if intent.LimitPrice == nil || !intent.LimitPrice.IsPositive() {
			return errors.New("limit price must be greater than zero")
		}
		price = *intent.LimitPrice
	}
	if rm.maxOrderNotional.IsPositive() && price.IsPositive() {
		if notional := price.Mul(intent.Qty); notional.GreaterThan(rm.maxOrderNotional) {
			return fmt.Errorf("order value $%s exceeds limit $%s", notional.StringFixed(2), rm.maxOrderNotional.StringFixed(2))
		}
	}
	return nil
}

// ClampSell limits a sell quantity to what is held.
func ClampSell(qty, held decimal.Decimal) decimal.Decimal {
	if qty.GreaterThan(held) {
		return held
	}
	return qty
}
