package engine

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"commander/internal/broker"
	"commander/internal/command"
	"commander/internal/config"
	"commander/internal/domain"
	"commander/internal/sizing"
	"commander/internal/store"
)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func newSim(bp string, prices map[string]string) *broker.SimulatorBroker {
	sim := broker.NewSimulatorBroker(d(bp))
	for sym, px := range prices {
		sim.SetPrice(sym, d(px))
	}
	return sim
}

func basket(name string, legs ...any) *domain.Basket {
	b := &domain.Basket{Name: name}
	for i := 0; i < len(legs); i += 2 {
		b.Legs = append(b.Legs, domain.BasketLeg{Symbol: legs[i].(string), Weight: d(legs[i+1].(string))})
	}
	return b
}

// panicBroker panics when quoting one symbol.
type panicBroker struct {
	*broker.SimulatorBroker
	symbol string
}

func (p *panicBroker) LatestPrice(ctx context.Context, symbol string) (decimal.Decimal, error) {
	if symbol == p.symbol {
		panic("quote feed exploded")
	}
	return p.SimulatorBroker.LatestPrice(ctx, symbol)
}

// memJournal is an in-memory store.EventJournal.
type memJournal struct {
	mu     sync.Mutex
	events []store.Event
}

func (j *memJournal) Record(_ context.Context, ev store.Event) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if ev.Time.IsZero() {
		ev.Time = time.Now()
	}
	j.events = append(j.events, ev)
	return nil
}

func (j *memJournal) Recent(_ context.Context, limit int) ([]store.Event, error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	var out []store.Event
	for i := len(j.events) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, j.events[i])
	}
	return out, nil
}

func (j *memJournal) ByDate(_ context.Context, day time.Time) ([]store.Event, error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	var out []store.Event
	for _, ev := range j.events {
		if ev.Time.Format("2006-01-02") == day.Format("2006-01-02") {
			out = append(out, ev)
		}
	}
	return out, nil
}

func (j *memJournal) kinds() []store.EventKind {
	j.mu.Lock()
	defer j.mu.Unlock()
	out := make([]store.EventKind, len(j.events))
	for i, ev := range j.events {
		out[i] = ev.Kind
	}
	return out
}

// memDefs serves baskets from a map.
type memDefs map[string]*domain.Basket

func (m memDefs) Basket(name string) (*domain.Basket, error) {
	b, ok := m[name]
	if !ok {
		return nil, config.ErrNotFound
	}
	return b, nil
}

func (m memDefs) Baskets() ([]*domain.Basket, map[string]error) {
	var out []*domain.Basket
	for _, b := range m {
		out = append(out, b)
	}
	return out, nil
}

func newExecutor(b broker.Broker, policy sizing.Policy) *Executor {
	return NewExecutor(NewEngine(b, policy, nil, nil), nil)
}

func TestNewEngine(t *testing.T) {
	e := NewEngine(broker.NewSimulatorBroker(decimal.Zero), sizing.WholeShares, nil, nil)
	if e == nil {
		t.Fatal("NewEngine returned nil")
	}
	if e.Policy().IsFractional() {
		t.Error("Policy() should be whole shares")
	}
}

func TestRiskManagerCheckOrder(t *testing.T) {
	rm := NewRiskManager(sizing.WholeShares, d("5000"))
	limit := d("10")
	zero := decimal.Zero

	tests := []struct {
		name    string
		intent  domain.OrderIntent
		price   string
		wantErr bool
		below   bool
	}{
		{"ok", domain.NewOrderIntent("AAPL", domain.OrderSideBuy, d("10"), nil), "100", false, false},
		{"below minimum", domain.NewOrderIntent("AAPL", domain.OrderSideBuy, d("0.5"), nil), "100", true, true},
		{"fractional", domain.NewOrderIntent("AAPL", domain.OrderSideBuy, d("1.5"), nil), "100", true, false},
		{"too large", domain.NewOrderIntent("AAPL", domain.OrderSideBuy, d("100"), nil), "100", true, false},
		{"limit price used", domain.NewOrderIntent("AAPL", domain.OrderSideBuy, d("100"), &limit), "100", false, false},
		{"zero limit", domain.NewOrderIntent("AAPL", domain.OrderSideBuy, d("1"), &zero), "100", true, false},
		{"close fractional holding", domain.NewOrderIntent("AAPL", domain.OrderSideSell, d("2.5"), nil).CloseOut(d("2.5")), "100", false, false},
		{"close sub-share holding", domain.NewOrderIntent("AAPL", domain.OrderSideSell, d("0.4"), nil).CloseOut(d("0.4")), "100", false, false},
		{"partial fractional sell", domain.NewOrderIntent("AAPL", domain.OrderSideSell, d("1.5"), nil).CloseOut(d("2.5")), "100", true, false},
		{"close out still capped", domain.NewOrderIntent("AAPL", domain.OrderSideSell, d("60.5"), nil).CloseOut(d("60.5")), "100", true, false},
	}
	for _, tt := range tests {
		err := rm.CheckOrder(tt.intent, d(tt.price))
		if (err != nil) != tt.wantErr {
			t.Errorf("%s: CheckOrder() = %v, wantErr %v", tt.name, err, tt.wantErr)
		}
		if got := errors.Is(err, ErrBelowMinimum); got != tt.below {
			t.Errorf("%s: errors.Is(ErrBelowMinimum) = %v, want %v", tt.name, got, tt.below)
		}
	}
}

func TestBasketWeightInvariantMakesNoBrokerCalls(t *testing.T) {
	sim := newSim("10000", map[string]string{"AAPL": "100", "MSFT": "200"})
	x := newExecutor(sim, sizing.WholeShares)

	for _, b := range []*domain.Basket{
		basket("short", "AAPL", "60", "MSFT", "30"),
		basket("over", "AAPL", "60", "MSFT", "40.5"),
		basket("empty"),
	} {
		for _, side := range []domain.OrderSide{domain.OrderSideBuy, domain.OrderSideSell} {
			results, err := x.Execute(context.Background(), b, side, sizing.NewNotional(d("1000")))
			var ie *domain.InvariantError
			if !errors.As(err, &ie) {
				t.Errorf("%s %s: err = %v, want *InvariantError", side, b.Name, err)
			}
			if results != nil {
				t.Errorf("%s %s: results = %v, want none", side, b.Name, results)
			}
		}
	}
	if sim.Calls() != 0 {
		t.Errorf("broker calls = %d, want 0", sim.Calls())
	}
}

func TestBasketRejectsShareTokens(t *testing.T) {
	sim := newSim("10000", nil)
	x := newExecutor(sim, sizing.WholeShares)
	b := basket("tech", "AAPL", "100")
	for _, tok := range []sizing.Token{sizing.NewShares(d("5")), sizing.AllToken} {
		if _, err := x.Execute(context.Background(), b, domain.OrderSideSell, tok); err == nil {
			t.Errorf("Execute with %s should fail", tok)
		}
	}
	if sim.Calls() != 0 {
		t.Errorf("broker calls = %d, want 0", sim.Calls())
	}
}

func TestBasketBuySixtyForty(t *testing.T) {
	sim := newSim("10000", map[string]string{"AAPL": "100", "MSFT": "150"})
	x := newExecutor(sim, sizing.WholeShares)

	results, err := x.Execute(context.Background(), basket("tech", "AAPL", "60", "MSFT", "40"),
		domain.OrderSideBuy, sizing.NewNotional(d("1000")))
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("got %d results, want 2", len(results))
	}
	want := map[string]string{"AAPL": "6", "MSFT": "2"} // floor(400/150)
	for _, r := range results {
		if r.Outcome != domain.OutcomeSuccess {
			t.Errorf("%s: outcome %s (%s), want success", r.Symbol, r.Outcome, r.Reason)
			continue
		}
		if !r.Qty.Equal(d(want[r.Symbol])) {
			t.Errorf("%s qty = %s, want %s", r.Symbol, r.Qty, want[r.Symbol])
		}
	}
}

func TestBasketBuyPercentOfBuyingPower(t *testing.T) {
	sim := newSim("2000", map[string]string{"AAPL": "100", "MSFT": "200"})
	x := newExecutor(sim, sizing.Fractional)

	// 50% of 2000 = 1000 total: AAPL 600/100 = 6.00, MSFT 400/200 = 2.00
	results, err := x.Execute(context.Background(), basket("tech", "AAPL", "60", "MSFT", "40"),
		domain.OrderSideBuy, sizing.NewPercent(d("50")))
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if !results[0].Qty.Equal(d("6")) || !results[1].Qty.Equal(d("2")) {
		t.Errorf("qtys = %s, %s; want 6, 2", results[0].Qty, results[1].Qty)
	}
}

func TestBasketPriceFailureIsolated(t *testing.T) {
	sim := newSim("10000", map[string]string{"AAPL": "100", "MSFT": "200", "GOOG": "50"})
	sim.FailPrice("MSFT", errors.New("quote timeout"))
	x := newExecutor(sim, sizing.WholeShares)

	results, err := x.Execute(context.Background(), basket("tech", "AAPL", "50", "MSFT", "25", "GOOG", "25"),
		domain.OrderSideBuy, sizing.NewNotional(d("1000")))
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if len(results) != 3 {
		t.Fatalf("got %d results, want 3", len(results))
	}
	if results[0].Outcome != domain.OutcomeSuccess || !results[0].Qty.Equal(d("5")) {
		t.Errorf("AAPL = %s, want success qty 5", results[0])
	}
	if results[1].Outcome != domain.OutcomeFailure || !strings.HasPrefix(results[1].Reason, "price unavailable") {
		t.Errorf("MSFT = %s, want price unavailable failure", results[1])
	}
	if results[2].Outcome != domain.OutcomeSuccess || !results[2].Qty.Equal(d("5")) {
		t.Errorf("GOOG = %s, want success qty 5", results[2])
	}
	if n := len(sim.Submitted()); n != 2 {
		t.Errorf("submitted %d orders, want 2", n)
	}
}

func TestBasketMissingPrice(t *testing.T) {
	sim := newSim("10000", map[string]string{"AAPL": "100"})
	x := newExecutor(sim, sizing.WholeShares)

	results, err := x.Execute(context.Background(), basket("tech", "AAPL", "50", "NOPE", "50"),
		domain.OrderSideBuy, sizing.NewNotional(d("1000")))
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if results[1].Outcome != domain.OutcomeFailure || results[1].Reason != "price unavailable" {
		t.Errorf("NOPE = %s, want failure: price unavailable", results[1])
	}
	if results[0].Outcome != domain.OutcomeSuccess {
		t.Errorf("AAPL = %s, want success", results[0])
	}
}

func TestBasketPanicIsolated(t *testing.T) {
	sim := newSim("10000", map[string]string{"AAPL": "100", "MSFT": "200"})
	x := newExecutor(&panicBroker{SimulatorBroker: sim, symbol: "AAPL"}, sizing.WholeShares)

	results, err := x.Execute(context.Background(), basket("tech", "AAPL", "50", "MSFT", "50"),
		domain.OrderSideBuy, sizing.NewNotional(d("1000")))
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if results[0].Outcome != domain.OutcomeFailure || !strings.Contains(results[0].Reason, "internal error") {
		t.Errorf("AAPL = %s, want internal error failure", results[0])
	}
	if results[1].Outcome != domain.OutcomeSuccess {
		t.Errorf("MSFT = %s, want success", results[1])
	}
}

func TestBasketSubmitFailureIsolated(t *testing.T) {
	sim := newSim("10000", map[string]string{"AAPL": "100", "MSFT": "200"})
	sim.FailSubmit("AAPL", errors.New("insufficient funds"))
	x := newExecutor(sim, sizing.WholeShares)

	results, _ := x.Execute(context.Background(), basket("tech", "AAPL", "50", "MSFT", "50"),
		domain.OrderSideBuy, sizing.NewNotional(d("1000")))
	if results[0].Outcome != domain.OutcomeFailure || !strings.Contains(results[0].Reason, "insufficient funds") {
		t.Errorf("AAPL = %s, want broker failure", results[0])
	}
	if results[1].Outcome != domain.OutcomeSuccess {
		t.Errorf("MSFT = %s, want success", results[1])
	}
}

func TestBasketBelowMinimumSkipped(t *testing.T) {
	sim := newSim("10000", map[string]string{"AAPL": "100", "F": "10"})
	x := newExecutor(sim, sizing.WholeShares)

	// $100 total: AAPL gets $50 (< 1 share), F gets $50 (5 shares).
	results, err := x.Execute(context.Background(), basket("mix", "AAPL", "50", "F", "50"),
		domain.OrderSideBuy, sizing.NewNotional(d("100")))
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if results[0].Outcome != domain.OutcomeSkipped || results[0].Reason != "below minimum" {
		t.Errorf("AAPL = %s, want skipped: below minimum", results[0])
	}
	if results[1].Outcome != domain.OutcomeSuccess || !results[1].Qty.Equal(d("5")) {
		t.Errorf("F = %s, want success qty 5", results[1])
	}
}

func TestBasketSellPercentOfHolding(t *testing.T) {
	sim := newSim("0", map[string]string{"AAPL": "100", "MSFT": "200", "GOOG": "50"})
	sim.SetPosition("AAPL", d("10"), d("90"))
	sim.SetPosition("MSFT", d("3"), d("150"))
	x := newExecutor(sim, sizing.WholeShares)

	results, err := x.Execute(context.Background(), basket("tech", "AAPL", "40", "MSFT", "40", "GOOG", "20"),
		domain.OrderSideSell, sizing.NewPercent(d("50")))
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if !results[0].Qty.Equal(d("5")) {
		t.Errorf("AAPL qty = %s, want 5", results[0].Qty)
	}
	// round(3 * 0.5) = 2, half away from zero
	if !results[1].Qty.Equal(d("2")) {
		t.Errorf("MSFT qty = %s, want 2", results[1].Qty)
	}
	if results[2].Outcome != domain.OutcomeSkipped {
		t.Errorf("GOOG = %s, want skipped (nothing held)", results[2])
	}
}

func TestBasketSellNotionalCappedAtHolding(t *testing.T) {
	sim := newSim("0", map[string]string{"AAPL": "100", "MSFT": "100"})
	sim.SetPosition("AAPL", d("2"), d("90"))
	sim.SetPosition("MSFT", d("20"), d("90"))
	x := newExecutor(sim, sizing.WholeShares)

	// $1000 by weight: AAPL $500 -> 5 capped to 2; MSFT $500 -> 5.
	results, err := x.Execute(context.Background(), basket("tech", "AAPL", "50", "MSFT", "50"),
		domain.OrderSideSell, sizing.NewNotional(d("1000")))
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if !results[0].Qty.Equal(d("2")) || !results[1].Qty.Equal(d("5")) {
		t.Errorf("qtys = %s, %s; want 2, 5", results[0].Qty, results[1].Qty)
	}
}

func TestSellModeFor(t *testing.T) {
	if SellModeFor(sizing.NewPercent(d("10"))) != SellPercentOfHolding {
		t.Error("percent token should sell percent of holding")
	}
	if SellModeFor(sizing.NewNotional(d("10"))) != SellNotionalByWeight {
		t.Error("notional token should sell notional by weight")
	}
}

func newDispatcher(sim broker.Broker, defs Definitions, j store.EventJournal, settings *config.SettingsStore) *Dispatcher {
	eng := NewEngine(sim, sizing.WholeShares, nil, nil)
	return NewDispatcher(Deps{
		Engine:      eng,
		Definitions: defs,
		Modes:       broker.NewRouter(sim, broker.NewSimulatorBroker(decimal.Zero), domain.ModePaper),
		Settings:    settings,
		Audit:       NewAudit(j, nil, nil),
	})
}

func TestDispatchTickerPercentBuy(t *testing.T) {
	sim := newSim("1000", map[string]string{"AAPL": "100"})
	j := &memJournal{}
	disp := newDispatcher(sim, nil, j, nil)

	out := disp.Execute(context.Background(), command.Parse("BUY .AAPL 20%"))
	if !strings.HasPrefix(out, "Order placed: BUY AAPL 2 -> ") {
		t.Errorf("Execute = %q, want order placed for 2 shares", out)
	}
	sub := sim.Submitted()
	if len(sub) != 1 || !sub[0].Qty.Equal(d("2")) || sub[0].Type != domain.OrderTypeMarket {
		t.Errorf("Submitted = %+v, want one market order for 2", sub)
	}
	if kinds := j.kinds(); len(kinds) != 1 || kinds[0] != store.EventOrderSubmitted {
		t.Errorf("journal = %v, want [order_submitted]", kinds)
	}
}

func TestDispatchTickerLimitSell(t *testing.T) {
	sim := newSim("0", map[string]string{"TSLA": "250"})
	sim.SetPosition("TSLA", d("4"), d("200"))
	disp := newDispatcher(sim, nil, nil, nil)

	out := disp.Execute(context.Background(), command.Parse("SELL .TSLA all 300"))
	if !strings.HasPrefix(out, "Order placed: SELL TSLA 4") {
		t.Errorf("Execute = %q", out)
	}
	sub := sim.Submitted()
	if len(sub) != 1 || sub[0].Type != domain.OrderTypeLimit || !sub[0].LimitPrice.Equal(d("300")) {
		t.Errorf("Submitted = %+v, want limit sell at 300", sub)
	}
}

func TestDispatchTickerResolveError(t *testing.T) {
	sim := newSim("1000", nil)
	disp := newDispatcher(sim, nil, nil, nil)

	out := disp.Execute(context.Background(), command.Parse("BUY .AAPL 10"))
	if !strings.Contains(out, "Order not placed") || !strings.Contains(out, "price unavailable") {
		t.Errorf("Execute = %q, want price unavailable", out)
	}
	if len(sim.Submitted()) != 0 {
		t.Error("no order should be submitted")
	}
}

func TestDispatchBasket(t *testing.T) {
	sim := newSim("10000", map[string]string{"AAPL": "100", "MSFT": "200"})
	defs := memDefs{
		"tech": basket("tech", "AAPL", "60", "MSFT", "40"),
		"bad":  basket("bad", "AAPL", "60"),
	}
	j := &memJournal{}
	disp := newDispatcher(sim, defs, j, nil)

	out := disp.Execute(context.Background(), command.Parse("BUY tech $1000"))
	if !strings.HasPrefix(out, "BUY tech $1000: 2 placed, 0 failed, 0 skipped") {
		t.Errorf("Execute = %q", out)
	}
	kinds := j.kinds()
	if len(kinds) != 3 || kinds[2] != store.EventBasketExecuted {
		t.Errorf("journal = %v, want two orders and one basket event", kinds)
	}

	before := sim.Calls()
	out = disp.Execute(context.Background(), command.Parse("BUY bad $1000"))
	if !strings.Contains(out, "rejected") || !strings.Contains(out, "weights sum to 60") {
		t.Errorf("Execute(bad) = %q", out)
	}
	if sim.Calls() != before {
		t.Errorf("invalid basket made %d broker calls", sim.Calls()-before)
	}

	out = disp.Execute(context.Background(), command.Parse("BUY missing $10"))
	if !strings.Contains(out, "not found") {
		t.Errorf("Execute(missing) = %q", out)
	}
}

func TestDispatchModeAndAuto(t *testing.T) {
	sim := newSim("1000", nil)
	settings, err := config.OpenSettings(t.TempDir()+"/settings.yaml", config.Settings{Mode: "PAPER"})
	if err != nil {
		t.Fatalf("OpenSettings: %v", err)
	}
	j := &memJournal{}
	disp := newDispatcher(sim, nil, j, settings)
	ctx := context.Background()

	if out := disp.Execute(ctx, command.Parse("MODE LIVE")); out != "Trading mode is now LIVE." {
		t.Errorf("MODE LIVE = %q", out)
	}
	if settings.Get().Mode != "LIVE" {
		t.Errorf("settings mode = %q, want LIVE", settings.Get().Mode)
	}
	out := disp.Execute(ctx, command.Parse("AUTO ON"))
	if !strings.HasPrefix(out, "Auto-trading is now ON.") {
		t.Errorf("AUTO ON = %q", out)
	}
	if !settings.Get().Auto.Enabled {
		t.Error("auto should be enabled in settings")
	}
	status := disp.Execute(ctx, command.Status{})
	if !strings.Contains(status, "Mode=LIVE") || !strings.Contains(status, "Auto=ON") {
		t.Errorf("STATUS = %q", status)
	}
	hist := disp.Execute(ctx, command.History{})
	if !strings.Contains(hist, "auto_changed") || !strings.Contains(hist, "mode_changed") {
		t.Errorf("HISTORY = %q", hist)
	}
}

func TestDispatchCancel(t *testing.T) {
	sim := newSim("1000", nil)
	px := d("10")
	o, err := sim.SubmitOrder(context.Background(), domain.NewOrderIntent("AAPL", domain.OrderSideBuy, d("1"), &px))
	if err != nil {
		t.Fatalf("SubmitOrder: %v", err)
	}
	disp := newDispatcher(sim, nil, nil, nil)

	if out := disp.Execute(context.Background(), command.Cancel{OrderID: o.ID}); !strings.HasPrefix(out, "Cancel requested") {
		t.Errorf("CANCEL = %q", out)
	}
	if out := disp.Execute(context.Background(), command.Cancel{OrderID: "nope"}); !strings.Contains(out, "failed") {
		t.Errorf("CANCEL nope = %q", out)
	}
	if out := disp.Execute(context.Background(), command.Cancel{All: true}); !strings.Contains(out, "all open orders") {
		t.Errorf("CANCEL all = %q", out)
	}
}

func TestDispatchUnknown(t *testing.T) {
	disp := newDispatcher(newSim("0", nil), nil, nil, nil)
	if out := disp.Execute(context.Background(), command.Parse("FOO")); !strings.Contains(out, "Unknown command") {
		t.Errorf("FOO = %q", out)
	}
	if out := disp.Execute(context.Background(), command.Parse("MODE DEMO")); !strings.Contains(out, "MODE PAPER|LIVE") {
		t.Errorf("MODE DEMO = %q", out)
	}
}

func TestPreview(t *testing.T) {
	sim := newSim("1000", map[string]string{"AAPL": "100", "MSFT": "200"})
	defs := memDefs{"tech": basket("tech", "AAPL", "60", "MSFT", "40")}
	disp := newDispatcher(sim, defs, nil, nil)
	ctx := context.Background()

	got, err := disp.Preview(ctx, command.Parse("BUY .AAPL $250").(command.Trade))
	if err != nil {
		t.Fatalf("Preview: %v", err)
	}
	if got != "BUY AAPL 2 shares (market), est. cost $200.00" {
		t.Errorf("Preview = %q", got)
	}

	got, err = disp.Preview(ctx, command.Parse("BUY tech $1000").(command.Trade))
	if err != nil {
		t.Fatalf("Preview basket: %v", err)
	}
	if !strings.Contains(got, "Est. cost $1000.00") {
		t.Errorf("Preview basket = %q", got)
	}
	if len(sim.Submitted()) != 0 {
		t.Error("Preview must not submit orders")
	}
}

func TestDispatchSellAllFractionalHolding(t *testing.T) {
	sim := newSim("0", map[string]string{"AAPL": "100"})
	sim.SetPosition("AAPL", d("2.5"), d("90"))
	disp := newDispatcher(sim, nil, nil, nil)

	out := disp.Execute(context.Background(), command.Parse("SELL .AAPL all"))
	if !strings.HasPrefix(out, "Order placed: SELL AAPL 2.5") {
		t.Errorf("Execute = %q, want the whole 2.5 shares sold", out)
	}
	sub := sim.Submitted()
	if len(sub) != 1 || !sub[0].Qty.Equal(d("2.5")) || !sub[0].ClosesPosition {
		t.Errorf("Submitted = %+v, want one closing sell of 2.5", sub)
	}

	// A partial sell of a fractional holding still follows whole shares.
	sim.SetPosition("AAPL", d("2.5"), d("90"))
	out = disp.Execute(context.Background(), command.Parse("SELL .AAPL 2"))
	if !strings.HasPrefix(out, "Order placed: SELL AAPL 2 ") {
		t.Errorf("Execute = %q, want 2 shares sold", out)
	}
}

func TestBasketSellAllOfFractionalHolding(t *testing.T) {
	sim := newSim("0", map[string]string{"AAPL": "100", "MSFT": "200"})
	sim.SetPosition("AAPL", d("0.4"), d("90"))
	sim.SetPosition("MSFT", d("3.25"), d("150"))
	x := newExecutor(sim, sizing.WholeShares)

	results, err := x.Execute(context.Background(), basket("tech", "AAPL", "50", "MSFT", "50"),
		domain.OrderSideSell, sizing.NewPercent(d("100")))
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	for i, want := range []string{"0.4", "3.25"} {
		if results[i].Outcome != domain.OutcomeSuccess || !results[i].Qty.Equal(d(want)) {
			t.Errorf("leg %d = %s, want success qty %s", i, results[i], want)
		}
	}
}

func TestDispatchAccount(t *testing.T) {
	sim := newSim("1000", map[string]string{"AAPL": "100"})
	sim.SetPosition("AAPL", d("5"), d("90"))
	disp := newDispatcher(sim, nil, nil, nil)

	out := disp.Execute(context.Background(), command.Account{})
	for _, want := range []string{"Account PAPER (simulator)", "Total assets: $1500.00", "Buying power: $1000.00", "Cash:         $1000.00"} {
		if !strings.Contains(out, want) {
			t.Errorf("ACCOUNT output missing %q:\n%s", want, out)
		}
	}
}
