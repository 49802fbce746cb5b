package sizing

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	"commander/internal/domain"
)

var (
	ErrInvalidPrice  = errors.New("price unavailable or not positive")
	ErrZeroQuantity  = errors.New("resolved quantity is zero")
	ErrAllOnBuy      = errors.New("'all' is only valid for sells")
	ErrNothingToSell = errors.New("no holding to sell")
)

// ResolveError wraps a failure to turn a Token into a quantity. It aborts only
// the order or leg being resolved.
type ResolveError struct {
	Token Token
	Err   error
}

func (e *ResolveError) Error() string {
	return fmt.Sprintf("resolving %s: %v", e.Token, e.Err)
}

func (e *ResolveError) Unwrap() error { return e.Err }

// Snapshot is the live data a Token is resolved against.
type Snapshot struct {
	Price       decimal.Decimal
	BuyingPower decimal.Decimal
	Held        decimal.Decimal
}

// Policy is the rounding rule for order quantities. The same Policy value must
// be used by every execution path so that a ticker trade, a basket leg and a
// strategy order of the same size resolve identically.
type Policy struct {
	fractional bool
}

var (
	// WholeShares floors quantities to integers.
	WholeShares = Policy{}
	// Fractional floors quantities to two decimal places.
	Fractional = Policy{fractional: true}
)

// NewPolicy returns Fractional when fractional is true, WholeShares otherwise.
func NewPolicy(fractional bool) Policy {
	if fractional {
		return Fractional
	}
	return WholeShares
}

// IsFractional reports whether the policy allows fractional shares.
func (p Policy) IsFractional() bool { return p.fractional }

func (p Policy) places() int32 {
	if p.fractional {
		return 2
	}
	return 0
}

// Floor truncates q toward negative infinity at the policy's precision.
func (p Policy) Floor(q decimal.Decimal) decimal.Decimal {
	return q.RoundFloor(p.places())
}

// Round rounds q half away from zero at the policy's precision.
func (p Policy) Round(q decimal.Decimal) decimal.Decimal {
	return q.Round(p.places())
}

// MinQty is the smallest tradable quantity: 1 share, or 0.01 fractional.
func (p Policy) MinQty() decimal.Decimal {
	if p.fractional {
		return decimal.New(1, -2)
	}
	return decimal.NewFromInt(1)
}

// SellPercent returns round(held * pct / 100). Selling 100% returns the
// holding itself, fractional remainder included.
func (p Policy) SellPercent(held, pct decimal.Decimal) decimal.Decimal {
	if pct.GreaterThanOrEqual(hundred) {
		return held
	}
	return p.Round(held.Mul(pct).Div(hundred))
}

// QtyForNotional returns floor(amount / price) at the policy's precision.
func (p Policy) QtyForNotional(amount, price decimal.Decimal) (decimal.Decimal, error) {
	if !price.IsPositive() {
		return decimal.Zero, ErrInvalidPrice
	}
	return p.Floor(amount.DivRound(price, 16)), nil
}

// Resolve turns t into an order quantity for side against snap.
func (p Policy) Resolve(t Token, snap Snapshot, side domain.OrderSide) (decimal.Decimal, error) {
	fail := func(err error) (decimal.Decimal, error) {
		return decimal.Zero, &ResolveError{Token: t, Err: err}
	}

	if !snap.Price.IsPositive() {
		return fail(ErrInvalidPrice)
	}

	var qty decimal.Decimal
	switch t.Kind() {
	case Shares:
		qty = t.Value()
	case Percent:
		if side == domain.OrderSideSell {
			qty = p.SellPercent(snap.Held, t.Value())
		} else {
			budget := snap.BuyingPower.Mul(t.Value()).Div(hundred)
			qty, _ = p.QtyForNotional(budget, snap.Price)
		}
	case Notional:
		qty, _ = p.QtyForNotional(t.Value(), snap.Price)
	case All:
		if side != domain.OrderSideSell {
			return fail(ErrAllOnBuy)
		}
		if !snap.Held.IsPositive() {
			return fail(ErrNothingToSell)
		}
		qty = snap.Held
	default:
		return fail(fmt.Errorf("unknown size kind %d", t.Kind()))
	}

	if !qty.IsPositive() {
		return fail(ErrZeroQuantity)
	}
	return qty, nil
}
