package strategy

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/shopspring/decimal"

	"commander/internal/config"
	"commander/internal/domain"
	"commander/internal/engine"
	"commander/internal/notify"
	"commander/internal/store"
)

var (
	// ErrBusy is returned by Tick while a previous tick is still running.
	ErrBusy = errors.New("strategy tick already running")
	// ErrSkipped wraps the reason a tick placed no orders by design.
	ErrSkipped = errors.New("tick skipped")
)

// Settings supplies the auto-trading switch, read on every tick.
type Settings interface {
	Get() config.Settings
}

// Definitions loads strategy definitions.
type Definitions interface {
	Strategy(name string) (*domain.Strategy, error)
}

// Moder reports the active trading mode.
type Moder interface {
	Mode() domain.Mode
}

// RunnerDeps wires a Runner. Audit, Hub, Modes and Log are optional.
type RunnerDeps struct {
	Engine      *engine.Engine
	Settings    Settings
	Definitions Definitions
	Allocators  *Registry
	Audit       *engine.Audit
	Hub         *notify.Hub
	Modes       Moder
	Log         *slog.Logger
}

// Runner places the orders of the selected strategy once per tick. At most
// one tick runs at a time.
type Runner struct {
	eng        *engine.Engine
	settings   Settings
	defs       Definitions
	allocators *Registry
	audit      *engine.Audit
	hub        *notify.Hub
	modes      Moder
	log        *slog.Logger

	running atomic.Bool
}

// NewRunner creates a Runner.
func NewRunner(d RunnerDeps) *Runner {
	log := d.Log
	if log == nil {
		log = slog.Default()
	}
	allocators := d.Allocators
	if allocators == nil {
		allocators = NewRegistry()
	}
	return &Runner{
		eng:        d.Engine,
		settings:   d.Settings,
		defs:       d.Definitions,
		allocators: allocators,
		audit:      d.Audit,
		hub:        d.Hub,
		modes:      d.Modes,
		log:        log.With("component", "strategy"),
	}
}

// Running reports whether a tick is in progress.
func (r *Runner) Running() bool { return r.running.Load() }

// Start ticks until ctx is cancelled. The interval is re-read from the
// settings after every tick; fallback is used when they carry none.
func (r *Runner) Start(ctx context.Context, fallback time.Duration) {
	timer := time.NewTimer(r.interval(fallback))
	defer timer.Stop()

	r.log.Info("strategy runner started", "interval", r.interval(fallback))
	for {
		select {
		case <-timer.C:
			results, err := r.Tick(ctx)
			switch {
			case errors.Is(err, ErrSkipped), errors.Is(err, ErrBusy):
				r.log.Debug("strategy tick skipped", "reason", err)
			case err != nil:
				r.log.Warn("strategy tick failed", "error", err)
				r.publish("Auto-trading tick failed: " + err.Error())
			default:
				r.log.Info("strategy tick done", "orders", len(results))
			}
			timer.Reset(r.interval(fallback))
		case <-ctx.Done():
			r.log.Info("strategy runner stopped")
			return
		}
	}
}

func (r *Runner) interval(fallback time.Duration) time.Duration {
	if r.settings != nil {
		if s := r.settings.Get().Auto.IntervalSeconds; s > 0 {
			return time.Duration(s) * time.Second
		}
	}
	if fallback <= 0 {
		return time.Minute
	}
	return fallback
}

// Tick runs the selected strategy once. A tick started while another is
// running returns ErrBusy without touching the broker. Reasons to do nothing
// (auto-trading off, no strategy, no buying power) are reported as ErrSkipped;
// a missing or disabled definition is a *domain.InvariantError. Per-symbol
// failures never abort the tick and are returned as results.
func (r *Runner) Tick(ctx context.Context) ([]domain.OrderResult, error) {
	if !r.running.CompareAndSwap(false, true) {
		return nil, ErrBusy
	}
	defer r.running.Store(false)

	var auto config.AutoSettings
	if r.settings != nil {
		auto = r.settings.Get().Auto
	}
	switch {
	case !auto.Enabled:
		return nil, fmt.Errorf("%w: auto-trading is off", ErrSkipped)
	case auto.Strategy == "":
		return nil, fmt.Errorf("%w: no strategy selected", ErrSkipped)
	case !r.eng.Broker().Enabled():
		return nil, fmt.Errorf("%w: broker %s is not connected", ErrSkipped, r.eng.Broker().Name())
	}

	def, alloc, err := r.load(auto.Strategy)
	if err != nil {
		return nil, err
	}

	bp, err := r.eng.Broker().BuyingPower(ctx)
	if err != nil {
		return nil, fmt.Errorf("reading buying power: %w", err)
	}
	if !bp.IsPositive() {
		return nil, fmt.Errorf("%w: no buying power", ErrSkipped)
	}
	budget, err := alloc.Budget(def.Sizing.Value, bp)
	if err != nil {
		return nil, &domain.InvariantError{Subject: "strategy " + def.Name, Reason: err.Error()}
	}
	perSymbol := budget.Div(decimal.NewFromInt(int64(len(def.Universe))))
	r.log.Info("strategy tick", "strategy", def.Name, "budget", budget.StringFixed(2), "per_symbol", perSymbol.StringFixed(2), "symbols", len(def.Universe))

	results := make([]domain.OrderResult, 0, len(def.Universe))
	for _, sym := range def.Universe {
		results = append(results, r.buy(ctx, sym, perSymbol))
	}
	r.report(ctx, def.Name, results)
	return results, nil
}

// load reads the strategy definition fresh and checks it can run.
func (r *Runner) load(name string) (*domain.Strategy, Allocator, error) {
	invariant := func(reason string) error {
		return &domain.InvariantError{Subject: "strategy " + name, Reason: reason}
	}
	if r.defs == nil {
		return nil, nil, invariant("not found")
	}
	def, err := r.defs.Strategy(name)
	if errors.Is(err, config.ErrNotFound) {
		return nil, nil, invariant("not found")
	}
	if err != nil {
		return nil, nil, err
	}
	if !def.Enabled {
		return nil, nil, invariant("disabled")
	}
	if len(def.Universe) == 0 {
		return nil, nil, invariant("empty universe")
	}
	alloc, ok := r.allocators.Get(def.Sizing.Type)
	if !ok {
		return nil, nil, invariant(fmt.Sprintf("unknown position_sizing type %q", def.Sizing.Type))
	}
	return def, alloc, nil
}

// buy places one market buy worth amount. It never panics.
func (r *Runner) buy(ctx context.Context, symbol string, amount decimal.Decimal) (res domain.OrderResult) {
	side := domain.OrderSideBuy
	defer func() {
		if p := recover(); p != nil {
			r.log.Error("panic in strategy symbol", "symbol", symbol, "panic", p)
			res = domain.Failed(symbol, side, fmt.Sprintf("internal error: %v", p))
		}
	}()

	px, err := r.eng.Quote(ctx, symbol)
	if err != nil {
		return domain.Skipped(symbol, side, "price unavailable")
	}
	policy := r.eng.Policy()
	qty, err := policy.QtyForNotional(amount, px)
	if err != nil || qty.LessThan(policy.MinQty()) {
		return domain.Skipped(symbol, side, "below minimum")
	}
	return r.eng.Submit(ctx, domain.NewOrderIntent(symbol, side, qty, nil), px)
}

func (r *Runner) report(ctx context.Context, name string, results []domain.OrderResult) {
	mode := domain.ModePaper
	if r.modes != nil {
		mode = r.modes.Mode()
	}
	summary := fmt.Sprintf("Strategy %s: %s", name, engine.Tally(results))

	runID := r.audit.Run(ctx, "strategy", name, mode, results)
	for _, res := range results {
		if res.Outcome != domain.OutcomeSkipped {
			r.audit.Result(ctx, mode, "auto", res)
		}
	}
	r.audit.Event(ctx, store.EventStrategyRun, mode, "auto", summary)

	r.publish(summary)
	for _, res := range results {
		r.publish("  " + res.String())
	}
	r.log.Info("strategy run recorded", "strategy", name, "run_id", runID)
}

func (r *Runner) publish(text string) {
	if r.hub != nil {
		r.hub.Publish("auto", text)
	}
}
