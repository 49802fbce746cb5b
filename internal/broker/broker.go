// Package broker defines the Broker interface the console trades through and
// provides an Alpaca implementation, an in-memory simulator, and a Router that
// switches between paper and live accounts.
package broker

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"commander/internal/domain"
)

var (
	// ErrPriceUnavailable is returned by LatestPrice when no quote exists.
	ErrPriceUnavailable = errors.New("price unavailable")
	// ErrNotConfigured is returned by every call on a broker without credentials.
	ErrNotConfigured = errors.New("broker credentials not configured")
	// ErrOrderNotFound is returned when cancelling an unknown order.
	ErrOrderNotFound = errors.New("order not found")
)

// Broker abstracts brokerage operations. Reads may be retried by the
// implementation; SubmitOrder and CancelOrder are at-most-once.
type Broker interface {
	// Name returns the broker identifier (e.g. "alpaca", "simulator").
	Name() string

	// Enabled reports whether the broker has usable credentials.
	Enabled() bool

	// BuyingPower returns the dollar amount available for new purchases.
	BuyingPower(ctx context.Context) (decimal.Decimal, error)

	// Account returns equity, cash and buying power.
	Account(ctx context.Context) (domain.AccountInfo, error)

	// Positions returns all current holdings.
	Positions(ctx context.Context) ([]domain.Position, error)

	// LatestPrice returns the last trade price for symbol, or
	// ErrPriceUnavailable.
	LatestPrice(ctx context.Context, symbol string) (decimal.Decimal, error)

	// OpenOrders returns orders that have not reached a terminal state.
	OpenOrders(ctx context.Context) ([]domain.Order, error)

	// SubmitOrder sends one order.
	SubmitOrder(ctx context.Context, intent domain.OrderIntent) (*domain.Order, error)

	// CancelOrder requests cancellation of an open order by its ID.
	CancelOrder(ctx context.Context, orderID string) error

	// CancelAllOrders requests cancellation of every open order.
	CancelAllOrders(ctx context.Context) error
}

// Error wraps a failure reported by the brokerage. Its message is shown to the
// user verbatim.
type Error struct {
	Op  string
	Err error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

func wrap(op string, err error) error {
	if err == nil {
		return nil
	}
	var be *Error
	if errors.As(err, &be) {
		return err
	}
	return &Error{Op: op, Err: err}
}

// HeldQty returns the quantity of symbol in positions, or zero.
func HeldQty(positions []domain.Position, symbol string) decimal.Decimal {
	for _, p := range positions {
		if strings.EqualFold(p.Symbol, symbol) {
			return p.Qty
		}
	}
	return decimal.Zero
}
