package broker

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"commander/internal/domain"
)

// Compile-time interface check.
var _ Broker = (*SimulatorBroker)(nil)

// SimulatorBroker implements the Broker interface in memory. Market orders
// fill immediately at the last set price and move cash and positions; limit
// orders rest as open until cancelled. It is used when no credentials are
// configured and in tests.
type SimulatorBroker struct {
	mu          sync.Mutex
	buyingPower decimal.Decimal
	prices      map[string]decimal.Decimal
	positions   map[string]*domain.Position
	orders      map[string]*domain.Order
	submitted   []domain.OrderIntent
	priceErr    map[string]error
	submitErr   map[string]error
	calls       int
}

// NewSimulatorBroker creates a SimulatorBroker with the given buying power and
// no positions.
func NewSimulatorBroker(buyingPower decimal.Decimal) *SimulatorBroker {
	return &SimulatorBroker{
		buyingPower: buyingPower,
		prices:      make(map[string]decimal.Decimal),
		positions:   make(map[string]*domain.Position),
		orders:      make(map[string]*domain.Order),
		priceErr:    make(map[string]error),
		submitErr:   make(map[string]error),
	}
}

// Name returns "simulator".
func (b *SimulatorBroker) Name() string {
	return "simulator"
}

// Enabled always reports true.
func (b *SimulatorBroker) Enabled() bool {
	return true
}

// SetPrice sets the last trade price for symbol.
func (b *SimulatorBroker) SetPrice(symbol string, price decimal.Decimal) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.prices[strings.ToUpper(symbol)] = price
}

// SetPosition replaces the holding for symbol.
func (b *SimulatorBroker) SetPosition(symbol string, qty, avgPrice decimal.Decimal) {
	b.mu.Lock()
	defer b.mu.Unlock()
	sym := strings.ToUpper(symbol)
	if !qty.IsPositive() {
		delete(b.positions, sym)
		return
	}
	b.positions[sym] = &domain.Position{Symbol: sym, Qty: qty, AvgPrice: avgPrice}
}

// SetBuyingPower overrides the available buying power.
func (b *SimulatorBroker) SetBuyingPower(bp decimal.Decimal) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.buyingPower = bp
}

// FailPrice makes LatestPrice return err for symbol. A nil err clears it.
func (b *SimulatorBroker) FailPrice(symbol string, err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	setOrClear(b.priceErr, strings.ToUpper(symbol), err)
}

// FailSubmit makes SubmitOrder return err for symbol. A nil err clears it.
func (b *SimulatorBroker) FailSubmit(symbol string, err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	setOrClear(b.submitErr, strings.ToUpper(symbol), err)
}

func setOrClear(m map[string]error, key string, err error) {
	if err == nil {
		delete(m, key)
		return
	}
	m[key] = err
}

// Calls returns the number of Broker methods invoked so far.
func (b *SimulatorBroker) Calls() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.calls
}

// Submitted returns every order intent accepted by SubmitOrder, in order.
func (b *SimulatorBroker) Submitted() []domain.OrderIntent {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]domain.OrderIntent, len(b.submitted))
	copy(out, b.submitted)
	return out
}

// BuyingPower returns the simulated buying power.
func (b *SimulatorBroker) BuyingPower(_ context.Context) (decimal.Decimal, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.calls++
	return b.buyingPower, nil
}

// Account reports cash equal to buying power and equity as cash plus every
// position valued at its last price, or at cost when unpriced.
func (b *SimulatorBroker) Account(_ context.Context) (domain.AccountInfo, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.calls++
	equity := b.buyingPower
	for sym, p := range b.positions {
		px, ok := b.prices[sym]
		if !ok || !px.IsPositive() {
			px = p.AvgPrice
		}
		equity = equity.Add(px.Mul(p.Qty))
	}
	return domain.AccountInfo{Equity: equity, Cash: b.buyingPower, BuyingPower: b.buyingPower}, nil
}

// Positions returns all simulated positions sorted by symbol.
func (b *SimulatorBroker) Positions(_ context.Context) ([]domain.Position, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.calls++
	positions := make([]domain.Position, 0, len(b.positions))
	for _, p := range b.positions {
		positions = append(positions, *p)
	}
	sort.Slice(positions, func(i, j int) bool { return positions[i].Symbol < positions[j].Symbol })
	return positions, nil
}

// LatestPrice returns the price set with SetPrice.
func (b *SimulatorBroker) LatestPrice(_ context.Context, symbol string) (decimal.Decimal, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.calls++
	sym := strings.ToUpper(symbol)
	if err, ok := b.priceErr[sym]; ok {
		return decimal.Zero, wrap("latest trade "+sym, err)
	}
	px, ok := b.prices[sym]
	if !ok {
		return decimal.Zero, wrap("latest trade "+sym, ErrPriceUnavailable)
	}
	return px, nil
}

// OpenOrders returns resting orders, oldest first.
func (b *SimulatorBroker) OpenOrders(_ context.Context) ([]domain.Order, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.calls++
	var out []domain.Order
	for _, o := range b.orders {
		if o.Status == domain.OrderStatusNew || o.Status == domain.OrderStatusAccepted {
			out = append(out, *o)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

// SubmitOrder records the order. Market orders fill at once.
func (b *SimulatorBroker) SubmitOrder(_ context.Context, intent domain.OrderIntent) (*domain.Order, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.calls++
	sym := strings.ToUpper(intent.Symbol)
	op := "submit " + sym
	if err, ok := b.submitErr[sym]; ok {
		return nil, wrap(op, err)
	}
	if !intent.Qty.IsPositive() {
		return nil, wrap(op, fmt.Errorf("qty must be positive, got %s", intent.Qty))
	}

	order := &domain.Order{
		ID:         uuid.NewString(),
		Symbol:     sym,
		Side:       intent.Side,
		Type:       intent.Type,
		Status:     domain.OrderStatusAccepted,
		Qty:        intent.Qty,
		LimitPrice: intent.LimitPrice,
		CreatedAt:  time.Now(),
	}

	if intent.Type == domain.OrderTypeMarket {
		if err := b.fill(order); err != nil {
			return nil, wrap(op, err)
		}
	}
	b.orders[order.ID] = order
	b.submitted = append(b.submitted, intent)
	out := *order
	return &out, nil
}

// fill executes a market order at the current price. Caller holds mu.
func (b *SimulatorBroker) fill(o *domain.Order) error {
	px, ok := b.prices[o.Symbol]
	if !ok || !px.IsPositive() {
		return ErrPriceUnavailable
	}
	notional := px.Mul(o.Qty)
	pos := b.positions[o.Symbol]

	switch o.Side {
	case domain.OrderSideBuy:
		if notional.GreaterThan(b.buyingPower) {
			return fmt.Errorf("insufficient buying power: need %s, have %s", notional.StringFixed(2), b.buyingPower.StringFixed(2))
		}
		b.buyingPower = b.buyingPower.Sub(notional)
		if pos == nil {
			pos = &domain.Position{Symbol: o.Symbol}
			b.positions[o.Symbol] = pos
		}
		cost := pos.AvgPrice.Mul(pos.Qty).Add(notional)
		pos.Qty = pos.Qty.Add(o.Qty)
		pos.AvgPrice = cost.DivRound(pos.Qty, 4)
	case domain.OrderSideSell:
		if pos == nil || pos.Qty.LessThan(o.Qty) {
			return fmt.Errorf("insufficient qty for %s", o.Symbol)
		}
		b.buyingPower = b.buyingPower.Add(notional)
		pos.Qty = pos.Qty.Sub(o.Qty)
		if pos.Qty.IsZero() {
			delete(b.positions, o.Symbol)
		}
	}
	o.Status = domain.OrderStatusFilled
	o.FilledQty = o.Qty
	return nil
}

// CancelOrder marks a resting order as cancelled.
func (b *SimulatorBroker) CancelOrder(_ context.Context, orderID string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.calls++
	o, ok := b.orders[orderID]
	if !ok {
		return wrap("cancel "+orderID, ErrOrderNotFound)
	}
	if o.Status == domain.OrderStatusFilled || o.Status == domain.OrderStatusCancelled {
		return wrap("cancel "+orderID, fmt.Errorf("order is %s", o.Status))
	}
	o.Status = domain.OrderStatusCancelled
	return nil
}

// CancelAllOrders cancels every resting order.
func (b *SimulatorBroker) CancelAllOrders(_ context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.calls++
	for _, o := range b.orders {
		if o.Status == domain.OrderStatusNew || o.Status == domain.OrderStatusAccepted {
			o.Status = domain.OrderStatusCancelled
		}
	}
	return nil
}
