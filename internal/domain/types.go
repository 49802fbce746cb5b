// Package domain defines the core types shared across the commander console:
// orders, positions, account snapshots, basket and strategy definitions, and
// the per-leg results produced by order fan-out.
package domain

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// OrderSide is the direction of an order.
type OrderSide string

const (
	OrderSideBuy  OrderSide = "buy"
	OrderSideSell OrderSide = "sell"
)

// OrderType is the execution style of an order.
type OrderType string

const (
	OrderTypeMarket OrderType = "market"
	OrderTypeLimit  OrderType = "limit"
)

// OrderStatus is the broker-reported lifecycle state of an order.
type OrderStatus string

const (
	OrderStatusNew       OrderStatus = "new"
	OrderStatusAccepted  OrderStatus = "accepted"
	OrderStatusFilled    OrderStatus = "filled"
	OrderStatusCancelled OrderStatus = "canceled"
	OrderStatusRejected  OrderStatus = "rejected"
)

// Mode selects the brokerage endpoint the console trades against.
type Mode string

const (
	ModePaper Mode = "PAPER"
	ModeLive  Mode = "LIVE"
)

// Order is an order as reported by the broker.
type Order struct {
	ID         string
	Symbol     string
	Side       OrderSide
	Type       OrderType
	Status     OrderStatus
	Qty        decimal.Decimal
	LimitPrice *decimal.Decimal
	FilledQty  decimal.Decimal
	CreatedAt  time.Time
}

// Position is a holding in the account.
type Position struct {
	Symbol   string
	Qty      decimal.Decimal
	AvgPrice decimal.Decimal
}

// AccountInfo is a snapshot of the account's financial metrics.
type AccountInfo struct {
	Equity      decimal.Decimal
	Cash        decimal.Decimal
	BuyingPower decimal.Decimal
}

// OrderIntent is a fully resolved order, ready for submission.
type OrderIntent struct {
	Symbol     string
	Side       OrderSide
	Qty        decimal.Decimal
	Type       OrderType
	LimitPrice *decimal.Decimal

	// ClosesPosition marks a sell of the entire holding. Its quantity may
	// carry a fractional remainder the account's precision would otherwise
	// reject.
	ClosesPosition bool
}

// CloseOut marks intent as a sell of the whole holding when qty equals held.
func (i OrderIntent) CloseOut(held decimal.Decimal) OrderIntent {
	i.ClosesPosition = i.Side == OrderSideSell && held.IsPositive() && i.Qty.Equal(held)
	return i
}

// NewOrderIntent builds an intent, choosing a limit order when limitPrice is
// non-nil and a market order otherwise.
func NewOrderIntent(symbol string, side OrderSide, qty decimal.Decimal, limitPrice *decimal.Decimal) OrderIntent {
	typ := OrderTypeMarket
	if limitPrice != nil {
		typ = OrderTypeLimit
	}
	return OrderIntent{
		Symbol:     symbol,
		Side:       side,
		Qty:        qty,
		Type:       typ,
		LimitPrice: limitPrice,
	}
}

// Outcome classifies an OrderResult.
type Outcome string

const (
	OutcomeSuccess Outcome = "success"
	OutcomeFailure Outcome = "failure"
	OutcomeSkipped Outcome = "skipped"
)

// OrderResult records what happened to one leg of a basket or one symbol of a
// strategy run.
type OrderResult struct {
	Symbol  string
	Side    OrderSide
	Qty     decimal.Decimal
	Outcome Outcome
	OrderID string
	Reason  string
}

// Succeeded reports a submitted order.
func Succeeded(symbol string, side OrderSide, qty decimal.Decimal, orderID string) OrderResult {
	return OrderResult{Symbol: symbol, Side: side, Qty: qty, Outcome: OutcomeSuccess, OrderID: orderID}
}

// Failed reports an attempted order that could not be placed.
func Failed(symbol string, side OrderSide, reason string) OrderResult {
	return OrderResult{Symbol: symbol, Side: side, Outcome: OutcomeFailure, Reason: reason}
}

// Skipped reports a leg that was deliberately not submitted.
func Skipped(symbol string, side OrderSide, reason string) OrderResult {
	return OrderResult{Symbol: symbol, Side: side, Outcome: OutcomeSkipped, Reason: reason}
}

// String renders the result as a single console line.
func (r OrderResult) String() string {
	switch r.Outcome {
	case OutcomeSuccess:
		return fmt.Sprintf("%s %s %s -> %s", upper(r.Side), r.Symbol, r.Qty.String(), r.OrderID)
	case OutcomeSkipped:
		return fmt.Sprintf("%s %s skipped: %s", upper(r.Side), r.Symbol, r.Reason)
	default:
		return fmt.Sprintf("%s %s failed: %s", upper(r.Side), r.Symbol, r.Reason)
	}
}

func upper(s OrderSide) string {
	if s == OrderSideSell {
		return "SELL"
	}
	return "BUY"
}

// InvariantError aborts a whole operation before any broker call is made.
type InvariantError struct {
	Subject string
	Reason  string
}

func (e *InvariantError) Error() string {
	return fmt.Sprintf("%s: %s", e.Subject, e.Reason)
}
