package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"commander/internal/broker"
	"commander/internal/command"
	"commander/internal/config"
	"commander/internal/domain"
	"commander/internal/notify"
	"commander/internal/store"
)

const historyLimit = 50

const helpText = `Commands:
  HELP                      show this help
  STATUS                    mode, auto-trading and broker state
  ACCOUNT                   equity, buying power and cash
  PORTFOLIO                 held positions
  ORDERS                    open orders
  HISTORY                   last 50 journaled events
  LOGS YYYY-MM-DD           events and run results of one day
  BASKETS                   basket definitions and their validity
  .SYMBOL                   quote and holding, e.g. .AAPL
  BUY|SELL .SYMBOL [size] [limit]
                            size: 10 | 20% | $200 | all (sell only)
  BUY|SELL BASKET $N|N%     trade every leg of a basket
  BUY|SELL                  step-by-step order prompt
  CANCEL <order-id>|all     cancel open orders
  MODE PAPER|LIVE           switch account
  AUTO ON|OFF               start or stop the strategy scheduler`

// ModeSwitcher switches the account orders are routed to.
type ModeSwitcher interface {
	Mode() domain.Mode
	SetMode(mode domain.Mode) error
}

// Definitions supplies basket definitions, read fresh on every call.
type Definitions interface {
	Basket(name string) (*domain.Basket, error)
	Baskets() ([]*domain.Basket, map[string]error)
}

// Deps wires a Dispatcher. Settings, Audit and Hub are optional.
type Deps struct {
	Engine      *Engine
	Baskets     *Executor
	Modes       ModeSwitcher
	Definitions Definitions
	Settings    *config.SettingsStore
	Audit       *Audit
	Hub         *notify.Hub
	Log         *slog.Logger
}

// Dispatcher executes parsed commands and renders their results as text.
type Dispatcher struct {
	eng      *Engine
	baskets  *Executor
	modes    ModeSwitcher
	defs     Definitions
	settings *config.SettingsStore
	audit    *Audit
	hub      *notify.Hub
	log      *slog.Logger
}

// NewDispatcher creates a Dispatcher.
func NewDispatcher(d Deps) *Dispatcher {
	log := d.Log
	if log == nil {
		log = slog.Default()
	}
	baskets := d.Baskets
	if baskets == nil {
		baskets = NewExecutor(d.Engine, log)
	}
	return &Dispatcher{
		eng:      d.Engine,
		baskets:  baskets,
		modes:    d.Modes,
		defs:     d.Definitions,
		settings: d.Settings,
		audit:    d.Audit,
		hub:      d.Hub,
		log:      log.With("component", "dispatch"),
	}
}

// Definitions returns the basket source, used by the interactive prompt.
func (d *Dispatcher) Definitions() Definitions { return d.defs }

// Engine returns the order engine.
func (d *Dispatcher) Engine() *Engine { return d.eng }

func (d *Dispatcher) mode() domain.Mode {
	if d.modes == nil {
		return domain.ModePaper
	}
	return d.modes.Mode()
}

// Execute runs cmd and returns the text to show the user. It never fails:
// every error becomes a message.
func (d *Dispatcher) Execute(ctx context.Context, cmd command.Command) (out string) {
	defer func() {
		if r := recover(); r != nil {
			d.log.Error("panic executing command", "command", command.Render(cmd), "panic", r)
			out = fmt.Sprintf("Internal error: %v", r)
		}
	}()

	switch c := cmd.(type) {
	case command.Help:
		return helpText
	case command.Status:
		return d.status(ctx)
	case command.Account:
		return d.account(ctx)
	case command.Portfolio:
		return d.portfolio(ctx)
	case command.Orders:
		return d.orders(ctx)
	case command.History:
		return d.history(ctx)
	case command.Baskets:
		return d.listBaskets()
	case command.Info:
		return d.info(ctx, c.Symbol)
	case command.Trade:
		return d.trade(ctx, c)
	case command.Cancel:
		return d.cancel(ctx, c)
	case command.SetMode:
		return d.setMode(ctx, c.Mode)
	case command.SetAuto:
		return d.setAuto(ctx, c.Enabled)
	case command.Logs:
		return d.logs(ctx, c.Date)
	case command.Interactive:
		return "Interactive orders are handled by the session prompt."
	case command.Unknown:
		if c.Raw == "" {
			return ""
		}
		if c.Reason != "" {
			return fmt.Sprintf("Invalid command %q: %s", c.Raw, c.Reason)
		}
		return fmt.Sprintf("Unknown command %q. Type HELP for the command list.", c.Raw)
	default:
		return fmt.Sprintf("Unsupported command %T", cmd)
	}
}

func (d *Dispatcher) status(ctx context.Context) string {
	b := d.eng.Broker()
	auth := "OK"
	if !b.Enabled() {
		auth = "not configured"
	}
	autoState, strategy, interval := "OFF", "-", 0
	fractional := d.eng.Policy().IsFractional()
	if d.settings != nil {
		s := d.settings.Get()
		if s.Auto.Enabled {
			autoState = "ON"
		}
		if s.Auto.Strategy != "" {
			strategy = s.Auto.Strategy
		}
		interval = s.Auto.IntervalSeconds
	}
	market := "unknown"
	if clock, ok := b.(broker.MarketClock); ok {
		if open, err := clock.IsMarketOpen(ctx); err == nil {
			market = "closed"
			if open {
				market = "open"
			}
		}
	}
	return fmt.Sprintf("Mode=%s | Auto=%s | Strategy=%s | Interval=%ds | Broker=%s auth %s | Market=%s | Fractional=%t",
		d.mode(), autoState, strategy, interval, b.Name(), auth, market, fractional)
}

func (d *Dispatcher) account(ctx context.Context) string {
	b := d.eng.Broker()
	acct, err := b.Account(ctx)
	if err != nil {
		return "Account lookup failed: " + err.Error()
	}
	name := b.Name()
	if r, ok := b.(interface{ BrokerName() string }); ok {
		name = r.BrokerName()
	}
	return fmt.Sprintf("Account %s (%s)\nTotal assets: $%s\nBuying power: $%s\nCash:         $%s",
		d.mode(), name, acct.Equity.StringFixed(2), acct.BuyingPower.StringFixed(2), acct.Cash.StringFixed(2))
}

func (d *Dispatcher) portfolio(ctx context.Context) string {
	positions, err := d.eng.Broker().Positions(ctx)
	if err != nil {
		return "Portfolio lookup failed: " + err.Error()
	}
	var sb strings.Builder
	if bp, err := d.eng.Broker().BuyingPower(ctx); err == nil {
		fmt.Fprintf(&sb, "Buying power: $%s\n", bp.StringFixed(2))
	}
	if len(positions) == 0 {
		sb.WriteString("No positions.")
		return sb.String()
	}
	for i, p := range positions {
		if i > 0 {
			sb.WriteByte('\n')
		}
		fmt.Fprintf(&sb, "%-8s | qty %-10s | avg $%s", p.Symbol, p.Qty.String(), p.AvgPrice.StringFixed(2))
	}
	return sb.String()
}

func (d *Dispatcher) orders(ctx context.Context) string {
	orders, err := d.eng.Broker().OpenOrders(ctx)
	if err != nil {
		return "Open orders lookup failed: " + err.Error()
	}
	if len(orders) == 0 {
		return "No open orders."
	}
	lines := make([]string, len(orders))
	for i, o := range orders {
		px := "MKT"
		if o.LimitPrice != nil {
			px = "$" + o.LimitPrice.String()
		}
		lines[i] = fmt.Sprintf("%s | %-6s %-4s | qty %-8s | %s %s | %s",
			o.ID, o.Symbol, o.Side, o.Qty.String(), o.Type, px, o.Status)
	}
	return strings.Join(lines, "\n")
}

func (d *Dispatcher) history(ctx context.Context) string {
	j := d.audit.Journal()
	if j == nil {
		return "History is not available."
	}
	events, err := j.Recent(ctx, historyLimit)
	if err != nil {
		return "History lookup failed: " + err.Error()
	}
	if len(events) == 0 {
		return "No recent activity."
	}
	lines := make([]string, len(events))
	for i, ev := range events {
		lines[i] = formatEvent(ev, "2006-01-02 15:04:05")
	}
	return strings.Join(lines, "\n")
}

func (d *Dispatcher) logs(ctx context.Context, date string) string {
	day, err := time.ParseInLocation("2006-01-02", date, time.Local)
	if err != nil {
		return fmt.Sprintf("Invalid date %q: want YYYY-MM-DD", date)
	}
	j := d.audit.Journal()
	if j == nil {
		return "Logs are not available."
	}
	events, err := j.ByDate(ctx, day)
	if err != nil {
		return "Log lookup failed: " + err.Error()
	}

	var lines []string
	for _, ev := range events {
		lines = append(lines, formatEvent(ev, "15:04:05"))
	}
	if a := d.audit.Archive(); a != nil {
		records, err := a.ReadDay(ctx, day)
		if err != nil {
			d.log.Warn("archive read failed", "date", date, "error", err)
		}
		for _, r := range records {
			detail := r.OrderID
			if r.Reason != "" {
				detail = r.Reason
			}
			lines = append(lines, fmt.Sprintf("%s [%s] run %s %s %s %s %s %s: %s",
				r.Time.Format("15:04:05"), r.Mode, r.Kind, r.Name, strings.ToUpper(r.Side), r.Symbol, r.Qty, r.Outcome, detail))
		}
	}
	if len(lines) == 0 {
		return "No activity on " + date + "."
	}
	return strings.Join(lines, "\n")
}

func formatEvent(ev store.Event, layout string) string {
	src := ""
	if ev.Source != "" {
		src = " (" + ev.Source + ")"
	}
	return fmt.Sprintf("%s [%s] %s%s: %s", ev.Time.Format(layout), ev.Mode, ev.Kind, src, ev.Summary)
}

func (d *Dispatcher) listBaskets() string {
	if d.defs == nil {
		return "No basket definitions configured."
	}
	baskets, bad := d.defs.Baskets()
	if len(baskets) == 0 && len(bad) == 0 {
		return "No baskets defined."
	}
	var lines []string
	for _, b := range baskets {
		status := "OK"
		if err := b.Validate(); err != nil {
			status = "INVALID (" + invariantReason(err) + ")"
		}
		syms := make([]string, 0, len(b.Legs))
		for _, l := range b.Legs {
			syms = append(syms, fmt.Sprintf("%s(%s%%)", l.Symbol, l.Weight.String()))
		}
		lines = append(lines, fmt.Sprintf("%-16s | sum %s%% | %s | %s", b.Name, b.WeightSum().String(), status, strings.Join(syms, " ")))
	}
	for name, err := range bad {
		lines = append(lines, fmt.Sprintf("%-16s | unreadable: %v", name, err))
	}
	return strings.Join(lines, "\n")
}

func invariantReason(err error) string {
	var ie *domain.InvariantError
	if errors.As(err, &ie) {
		return ie.Reason
	}
	return err.Error()
}

func (d *Dispatcher) info(ctx context.Context, symbol string) string {
	price := "N/A"
	if px, err := d.eng.Quote(ctx, symbol); err == nil {
		price = "$" + px.String()
	}
	positions, err := d.eng.Broker().Positions(ctx)
	if err != nil {
		return fmt.Sprintf("Symbol: %s | Price: %s | Holding lookup failed: %v", symbol, price, err)
	}
	return fmt.Sprintf("Symbol: %s | Price: %s | Held: %s", symbol, price, broker.HeldQty(positions, symbol).String())
}

func (d *Dispatcher) trade(ctx context.Context, t command.Trade) string {
	if !t.Complete() {
		return "A size is required: " + command.Render(t) + " <size>"
	}
	if t.Target.IsBasket() {
		return d.tradeBasket(ctx, t)
	}

	sym := t.Target.Symbol
	intent, snap, err := d.eng.Resolve(ctx, sym, t.Side, t.Size, t.LimitPrice)
	if err != nil {
		return fmt.Sprintf("Order not placed (%s %s): %v", strings.ToUpper(string(t.Side)), sym, err)
	}
	res := d.eng.Submit(ctx, intent, snap.Price)
	d.audit.Result(ctx, d.mode(), "user", res)
	switch res.Outcome {
	case domain.OutcomeSuccess:
		return fmt.Sprintf("Order placed: %s", res)
	default:
		return fmt.Sprintf("Order not placed: %s", res)
	}
}

func (d *Dispatcher) loadBasket(name string) (*domain.Basket, error) {
	if d.defs == nil {
		return nil, fmt.Errorf("basket %s: %w", name, config.ErrNotFound)
	}
	return d.defs.Basket(name)
}

func (d *Dispatcher) tradeBasket(ctx context.Context, t command.Trade) string {
	b, err := d.loadBasket(t.Target.Basket)
	if err != nil {
		return fmt.Sprintf("Basket %q not found.", t.Target.Basket)
	}
	results, err := d.baskets.Execute(ctx, b, t.Side, t.Size)
	if err != nil {
		return fmt.Sprintf("Basket %s rejected: %v", b.Name, err)
	}

	mode := d.mode()
	d.audit.Run(ctx, "basket", b.Name, mode, results)
	for _, r := range results {
		if r.Outcome != domain.OutcomeSkipped {
			d.audit.Result(ctx, mode, "user", r)
		}
	}
	summary := fmt.Sprintf("%s %s %s: %s", strings.ToUpper(string(t.Side)), b.Name, t.Size, Tally(results))
	d.audit.Event(ctx, store.EventBasketExecuted, mode, "user", summary)

	lines := []string{summary}
	for _, r := range results {
		lines = append(lines, "  "+r.String())
	}
	return strings.Join(lines, "\n")
}

// Tally counts results by outcome.
func Tally(results []domain.OrderResult) string {
	var ok, failed, skipped int
	for _, r := range results {
		switch r.Outcome {
		case domain.OutcomeSuccess:
			ok++
		case domain.OutcomeSkipped:
			skipped++
		default:
			failed++
		}
	}
	return fmt.Sprintf("%d placed, %d failed, %d skipped", ok, failed, skipped)
}

func (d *Dispatcher) cancel(ctx context.Context, c command.Cancel) string {
	b := d.eng.Broker()
	if c.All {
		if err := b.CancelAllOrders(ctx); err != nil {
			return "Cancel failed: " + err.Error()
		}
		d.audit.Event(ctx, store.EventOrderCancelled, d.mode(), "user", "all open orders")
		return "Cancel requested for all open orders."
	}
	if err := b.CancelOrder(ctx, c.OrderID); err != nil {
		return fmt.Sprintf("Cancel of %s failed: %v", c.OrderID, err)
	}
	d.audit.Event(ctx, store.EventOrderCancelled, d.mode(), "user", c.OrderID)
	return fmt.Sprintf("Cancel requested for order %s.", c.OrderID)
}

func (d *Dispatcher) setMode(ctx context.Context, mode domain.Mode) string {
	if d.modes == nil {
		return "Mode switching is not available."
	}
	if err := d.modes.SetMode(mode); err != nil {
		return "Mode change failed: " + err.Error()
	}
	if d.settings != nil {
		if err := d.settings.Update(func(s *config.Settings) { s.Mode = string(mode) }); err != nil {
			d.log.Warn("saving settings failed", "error", err)
		}
	}
	d.audit.Event(ctx, store.EventModeChanged, mode, "user", "MODE "+string(mode))
	msg := fmt.Sprintf("Trading mode is now %s.", mode)
	if d.hub != nil {
		d.hub.Publish("system", msg)
	}
	return msg
}

func (d *Dispatcher) setAuto(ctx context.Context, enabled bool) string {
	if d.settings == nil {
		return "Auto-trading is not available."
	}
	if err := d.settings.Update(func(s *config.Settings) { s.Auto.Enabled = enabled }); err != nil {
		return "Auto-trading change failed: " + err.Error()
	}
	state := "OFF"
	if enabled {
		state = "ON"
	}
	d.audit.Event(ctx, store.EventAutoChanged, d.mode(), "user", "AUTO "+state)
	msg := "Auto-trading is now " + state + "."
	if enabled && d.settings.Get().Auto.Strategy == "" {
		msg += " No strategy is selected; ticks will be skipped."
	}
	if d.hub != nil {
		d.hub.Publish("system", msg)
	}
	return msg
}

// Preview describes what executing t would do, without placing anything.
// It is shown before the interactive prompt asks for confirmation.
func (d *Dispatcher) Preview(ctx context.Context, t command.Trade) (string, error) {
	if !t.Complete() {
		return "", errors.New("size is missing")
	}
	side := strings.ToUpper(string(t.Side))

	if !t.Target.IsBasket() {
		intent, snap, err := d.eng.Resolve(ctx, t.Target.Symbol, t.Side, t.Size, t.LimitPrice)
		if err != nil {
			return "", err
		}
		px, kind := snap.Price, "market"
		if intent.LimitPrice != nil {
			px, kind = *intent.LimitPrice, "limit $"+intent.LimitPrice.String()
		}
		return fmt.Sprintf("%s %s %s shares (%s), est. %s $%s",
			side, intent.Symbol, intent.Qty.String(), kind, costWord(t.Side), px.Mul(intent.Qty).StringFixed(2)), nil
	}

	b, err := d.loadBasket(t.Target.Basket)
	if err != nil {
		return "", err
	}
	plans, err := d.baskets.Plan(ctx, b, t.Side, t.Size)
	if err != nil {
		return "", err
	}
	total := decimal.Zero
	lines := []string{fmt.Sprintf("%s basket %s %s (%d legs)", side, b.Name, t.Size, len(plans))}
	for _, p := range plans {
		if p.Result != nil {
			lines = append(lines, fmt.Sprintf("  %-6s %5s%% | %s: %s", p.Leg.Symbol, p.Leg.Weight.String(), p.Result.Outcome, p.Result.Reason))
			continue
		}
		total = total.Add(p.Cost())
		lines = append(lines, fmt.Sprintf("  %-6s %5s%% | %s @ $%s = $%s",
			p.Leg.Symbol, p.Leg.Weight.String(), p.Intent.Qty.String(), p.Price.String(), p.Cost().StringFixed(2)))
	}
	lines = append(lines, fmt.Sprintf("Est. %s $%s", costWord(t.Side), total.StringFixed(2)))
	return strings.Join(lines, "\n"), nil
}

func costWord(side domain.OrderSide) string {
	if side == domain.OrderSideSell {
		return "proceeds"
	}
	return "cost"
}

// Describe validates an order target and returns a line of context for it:
// price and holding for a ticker, legs for a basket. A basket that is missing
// or fails its weight invariant is an error.
func (d *Dispatcher) Describe(ctx context.Context, target command.Target) (string, error) {
	if target.IsBasket() {
		b, err := d.loadBasket(target.Basket)
		if err != nil {
			return "", fmt.Errorf("basket %q not found", target.Basket)
		}
		if err := b.Validate(); err != nil {
			return "", err
		}
		legs := make([]string, len(b.Legs))
		for i, l := range b.Legs {
			legs[i] = fmt.Sprintf("%s %s%%", l.Symbol, l.Weight.String())
		}
		return fmt.Sprintf("Basket %s: %s", b.Name, strings.Join(legs, ", ")), nil
	}
	return d.info(ctx, target.Symbol), nil
}
