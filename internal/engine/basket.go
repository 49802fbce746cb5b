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

var hundred = decimal.NewFromInt(100)

// SellMode selects how a basket sell is sized.
type SellMode int

const (
	// SellPercentOfHolding sells the same percentage of every leg's holding.
	SellPercentOfHolding SellMode = iota + 1
	// SellNotionalByWeight splits a dollar amount across legs by weight and
	// caps each leg at its holding.
	SellNotionalByWeight
)

func (m SellMode) String() string {
	switch m {
	case SellPercentOfHolding:
		return "percent of holding"
	case SellNotionalByWeight:
		return "notional by weight"
	default:
		return "unknown"
	}
}

// SellModeFor returns the sell mode a basket size token selects.
func SellModeFor(t sizing.Token) SellMode {
	if t.Kind() == sizing.Percent {
		return SellPercentOfHolding
	}
	return SellNotionalByWeight
}

// LegPlan is the resolved order for one basket leg. Result is set when the
// leg will not be submitted.
type LegPlan struct {
	Leg        domain.BasketLeg
	Price      decimal.Decimal
	Held       decimal.Decimal
	Allocation decimal.Decimal
	Intent     domain.OrderIntent
	Result     *domain.OrderResult
}

// Cost returns the estimated value of the leg's order.
func (p LegPlan) Cost() decimal.Decimal {
	if p.Result != nil {
		return decimal.Zero
	}
	return p.Price.Mul(p.Intent.Qty)
}

// basketRun is the state shared by the legs of one execution.
type basketRun struct {
	side  domain.OrderSide
	token sizing.Token
	total decimal.Decimal            // buy, or notional sell
	held  map[string]decimal.Decimal // sell only
}

// Executor fans a basket order out into one independent order per leg.
type Executor struct {
	eng *Engine
	log *slog.Logger
}

// NewExecutor returns an Executor submitting through eng.
func NewExecutor(eng *Engine, log *slog.Logger) *Executor {
	if log == nil {
		log = slog.Default()
	}
	return &Executor{eng: eng, log: log.With("component", "basket")}
}

// Plan validates the basket and resolves every leg without submitting
// anything. An error means the whole basket is rejected; per-leg problems
// are recorded in the leg's Result.
func (x *Executor) Plan(ctx context.Context, b *domain.Basket, side domain.OrderSide, token sizing.Token) ([]LegPlan, error) {
	run, err := x.prepare(ctx, b, side, token)
	if err != nil {
		return nil, err
	}
	plans := make([]LegPlan, len(b.Legs))
	for i, leg := range b.Legs {
		plans[i] = x.planLeg(ctx, run, leg)
	}
	return plans, nil
}

// Execute validates the basket, then resolves and submits each leg in order.
// A failing leg never stops the remaining legs. An error is returned only
// when the basket is rejected before any order is attempted.
func (x *Executor) Execute(ctx context.Context, b *domain.Basket, side domain.OrderSide, token sizing.Token) ([]domain.OrderResult, error) {
	run, err := x.prepare(ctx, b, side, token)
	if err != nil {
		return nil, err
	}

	results := make([]domain.OrderResult, 0, len(b.Legs))
	for _, leg := range b.Legs {
		results = append(results, x.executeLeg(ctx, run, leg))
	}

	x.log.Info("basket executed", "basket", b.Name, "side", side, "size", token.String(), "legs", len(results))
	return results, nil
}

func (x *Executor) executeLeg(ctx context.Context, run *basketRun, leg domain.BasketLeg) (res domain.OrderResult) {
	defer func() {
		if r := recover(); r != nil {
			x.log.Error("panic in basket leg", "symbol", leg.Symbol, "panic", r)
			res = domain.Failed(leg.Symbol, run.side, fmt.Sprintf("internal error: %v", r))
		}
	}()

	plan := x.planLeg(ctx, run, leg)
	if plan.Result != nil {
		return *plan.Result
	}
	return x.eng.Submit(ctx, plan.Intent, plan.Price)
}

// prepare checks the basket invariant and the token, then reads the
// account data the whole run shares. No order is placed here.
func (x *Executor) prepare(ctx context.Context, b *domain.Basket, side domain.OrderSide, token sizing.Token) (*basketRun, error) {
	if err := b.Validate(); err != nil {
		return nil, err
	}
	if k := token.Kind(); k != sizing.Percent && k != sizing.Notional {
		return nil, &domain.InvariantError{Subject: "basket " + b.Name, Reason: "baskets accept only $N or N%"}
	}

	run := &basketRun{side: side, token: token}
	switch side {
	case domain.OrderSideBuy:
		if token.Kind() == sizing.Percent {
			bp, err := x.eng.Broker().BuyingPower(ctx)
			if err != nil {
				return nil, fmt.Errorf("reading buying power: %w", err)
			}
			run.total = bp.Mul(token.Value()).Div(hundred)
		} else {
			run.total = token.Value()
		}
	case domain.OrderSideSell:
		positions, err := x.eng.Broker().Positions(ctx)
		if err != nil {
			return nil, fmt.Errorf("reading positions: %w", err)
		}
		run.held = make(map[string]decimal.Decimal, len(b.Legs))
		for _, leg := range b.Legs {
			run.held[leg.Symbol] = broker.HeldQty(positions, leg.Symbol)
		}
		if token.Kind() == sizing.Notional {
			run.total = token.Value()
		}
	default:
		return nil, &domain.InvariantError{Subject: "basket " + b.Name, Reason: fmt.Sprintf("unknown side %q", side)}
	}
	return run, nil
}

func (x *Executor) planLeg(ctx context.Context, run *basketRun, leg domain.BasketLeg) LegPlan {
	plan := LegPlan{Leg: leg}
	settle := func(r domain.OrderResult) LegPlan {
		plan.Result = &r
		return plan
	}
	policy := x.eng.Policy()

	px, err := x.eng.Quote(ctx, leg.Symbol)
	if err != nil {
		reason := "price unavailable"
		if !errors.Is(err, broker.ErrPriceUnavailable) {
			reason += ": " + err.Error()
		}
		return settle(domain.Failed(leg.Symbol, run.side, reason))
	}
	plan.Price = px
	plan.Allocation = run.total.Mul(leg.Weight).Div(hundred)

	var qty decimal.Decimal
	if run.side == domain.OrderSideBuy {
		qty, _ = policy.QtyForNotional(plan.Allocation, px)
	} else {
		plan.Held = run.held[leg.Symbol]
		if !plan.Held.IsPositive() {
			return settle(domain.Skipped(leg.Symbol, run.side, "nothing held"))
		}
		switch SellModeFor(run.token) {
		case SellPercentOfHolding:
			qty = policy.SellPercent(plan.Held, run.token.Value())
			plan.Allocation = qty.Mul(px)
		case SellNotionalByWeight:
			qty, _ = policy.QtyForNotional(plan.Allocation, px)
		}
		qty = ClampSell(qty, plan.Held)
	}

	plan.Intent = domain.NewOrderIntent(leg.Symbol, run.side, qty, nil).CloseOut(plan.Held)
	if !plan.Intent.ClosesPosition && qty.LessThan(policy.MinQty()) {
		return settle(domain.Skipped(leg.Symbol, run.side, "below minimum"))
	}
	return plan
}
