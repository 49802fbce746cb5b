// Package engine executes console commands against the broker: single-symbol
// trades, basket fan-out, cancels and mode changes. It owns the one sizing
// Policy shared by every order path.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/shopspring/decimal"

	"commander/internal/broker"
	"commander/internal/domain"
	"commander/internal/sizing"
)

// Engine resolves and submits orders. Ticker trades, basket legs and strategy
// runs all go through the same Engine so that identical sizes resolve to
// identical quantities.
type Engine struct {
	broker broker.Broker
	policy sizing.Policy
	risk   *RiskManager
	log    *slog.Logger
}

// NewEngine creates a new Engine wired with the given dependencies. A nil risk
// manager applies only the policy's minimum quantity.
func NewEngine(b broker.Broker, policy sizing.Policy, risk *RiskManager, log *slog.Logger) *Engine {
	if risk == nil {
		risk = NewRiskManager(policy, decimal.Zero)
	}
	if log == nil {
		log = slog.Default()
	}
	return &Engine{
		broker: b,
		policy: policy,
		risk:   risk,
		log:    log.With("component", "engine"),
	}
}

// Broker returns the broker orders are sent to.
func (e *Engine) Broker() broker.Broker { return e.broker }

// Policy returns the shared quantity policy.
func (e *Engine) Policy() sizing.Policy { return e.policy }

// Quote returns the latest price for symbol, failing on a missing or
// non-positive price.
func (e *Engine) Quote(ctx context.Context, symbol string) (decimal.Decimal, error) {
	px, err := e.broker.LatestPrice(ctx, symbol)
	if err != nil {
		return decimal.Zero, err
	}
	if !px.IsPositive() {
		return decimal.Zero, broker.ErrPriceUnavailable
	}
	return px, nil
}

// Snapshot gathers what token needs to be resolved for symbol: always the
// price, buying power for percent buys, and the holding for sells.
func (e *Engine) Snapshot(ctx context.Context, symbol string, side domain.OrderSide, token sizing.Token) (sizing.Snapshot, error) {
	var snap sizing.Snapshot
	px, err := e.Quote(ctx, symbol)
	if err != nil {
		return snap, err
	}
	snap.Price = px

	if side == domain.OrderSideBuy && token.Kind() == sizing.Percent {
		bp, err := e.broker.BuyingPower(ctx)
		if err != nil {
			return snap, err
		}
		snap.BuyingPower = bp
	}
	if side == domain.OrderSideSell {
		positions, err := e.broker.Positions(ctx)
		if err != nil {
			return snap, err
		}
		snap.Held = broker.HeldQty(positions, symbol)
	}
	return snap, nil
}

// Resolve turns token into an order intent for symbol.
func (e *Engine) Resolve(ctx context.Context, symbol string, side domain.OrderSide, token sizing.Token, limit *decimal.Decimal) (domain.OrderIntent, sizing.Snapshot, error) {
	snap, err := e.Snapshot(ctx, symbol, side, token)
	if err != nil {
		return domain.OrderIntent{}, snap, err
	}
	qty, err := e.policy.Resolve(token, snap, side)
	if err != nil {
		return domain.OrderIntent{}, snap, err
	}
	if side == domain.OrderSideSell {
		if !snap.Held.IsPositive() {
			return domain.OrderIntent{}, snap, &sizing.ResolveError{Token: token, Err: sizing.ErrNothingToSell}
		}
		qty = ClampSell(qty, snap.Held)
	}
	return domain.NewOrderIntent(symbol, side, qty, limit).CloseOut(snap.Held), snap, nil
}

// Submit runs the risk checks on intent and sends it. It never panics and
// never returns an error: every outcome is an OrderResult.
func (e *Engine) Submit(ctx context.Context, intent domain.OrderIntent, price decimal.Decimal) (res domain.OrderResult) {
	defer func() {
		if r := recover(); r != nil {
			e.log.Error("panic submitting order", "symbol", intent.Symbol, "panic", r)
			res = domain.Failed(intent.Symbol, intent.Side, fmt.Sprintf("internal error: %v", r))
		}
	}()

	if err := e.risk.CheckOrder(intent, price); err != nil {
		if errors.Is(err, ErrBelowMinimum) {
			return domain.Skipped(intent.Symbol, intent.Side, err.Error())
		}
		return domain.Failed(intent.Symbol, intent.Side, err.Error())
	}

	order, err := e.broker.SubmitOrder(ctx, intent)
	if err != nil {
		return domain.Failed(intent.Symbol, intent.Side, err.Error())
	}
	e.log.Info("order placed", "symbol", intent.Symbol, "side", intent.Side, "qty", intent.Qty.String(), "type", intent.Type, "id", order.ID)
	return domain.Succeeded(intent.Symbol, intent.Side, intent.Qty, order.ID)
}
