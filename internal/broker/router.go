package broker

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"commander/internal/domain"
	"commander/internal/util"
)

// Compile-time interface check.
var _ Broker = (*Router)(nil)

// MarketClock is implemented by brokers that can report whether the exchange
// is open.
type MarketClock interface {
	IsMarketOpen(ctx context.Context) (bool, error)
}

// Router is a Broker that forwards every call to the broker of the current
// mode. Switching modes affects only calls made after the switch.
type Router struct {
	mu      sync.RWMutex
	mode    domain.Mode
	brokers map[domain.Mode]Broker
	hours   *util.MarketHours
}

// NewRouter returns a Router over the paper and live brokers, starting in
// mode.
func NewRouter(paper, live Broker, mode domain.Mode) *Router {
	if mode != domain.ModeLive {
		mode = domain.ModePaper
	}
	return &Router{
		mode: mode,
		brokers: map[domain.Mode]Broker{
			domain.ModePaper: paper,
			domain.ModeLive:  live,
		},
		hours: util.NewMarketHours(),
	}
}

// Mode returns the active mode.
func (r *Router) Mode() domain.Mode {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.mode
}

// SetMode switches the active broker. It fails when the target broker is
// missing.
func (r *Router) SetMode(mode domain.Mode) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	b, ok := r.brokers[mode]
	if !ok || b == nil {
		return fmt.Errorf("no broker configured for %s", mode)
	}
	r.mode = mode
	return nil
}

func (r *Router) active() Broker {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.brokers[r.mode]
}

// Name returns the active broker's name with the mode.
func (r *Router) Name() string {
	return fmt.Sprintf("%s (%s)", r.active().Name(), r.Mode())
}

// BrokerName returns the bare name of the active broker.
func (r *Router) BrokerName() string { return r.active().Name() }

// Enabled reports whether the active broker has credentials.
func (r *Router) Enabled() bool { return r.active().Enabled() }

func (r *Router) BuyingPower(ctx context.Context) (decimal.Decimal, error) {
	return r.active().BuyingPower(ctx)
}

func (r *Router) Account(ctx context.Context) (domain.AccountInfo, error) {
	return r.active().Account(ctx)
}

func (r *Router) Positions(ctx context.Context) ([]domain.Position, error) {
	return r.active().Positions(ctx)
}

func (r *Router) LatestPrice(ctx context.Context, symbol string) (decimal.Decimal, error) {
	return r.active().LatestPrice(ctx, symbol)
}

func (r *Router) OpenOrders(ctx context.Context) ([]domain.Order, error) {
	return r.active().OpenOrders(ctx)
}

func (r *Router) SubmitOrder(ctx context.Context, intent domain.OrderIntent) (*domain.Order, error) {
	return r.active().SubmitOrder(ctx, intent)
}

func (r *Router) CancelOrder(ctx context.Context, orderID string) error {
	return r.active().CancelOrder(ctx, orderID)
}

func (r *Router) CancelAllOrders(ctx context.Context) error {
	return r.active().CancelAllOrders(ctx)
}

// IsMarketOpen asks the active broker's clock, falling back to the regular
// session calendar when the broker has none or the call fails.
func (r *Router) IsMarketOpen(ctx context.Context) (bool, error) {
	b := r.active()
	if c, ok := b.(MarketClock); ok && b.Enabled() {
		if open, err := c.IsMarketOpen(ctx); err == nil {
			return open, nil
		}
	}
	return r.hours.IsOpen(time.Now()), nil
}
