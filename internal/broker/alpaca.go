package broker

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/alpacahq/alpaca-trade-api-go/v3/alpaca"
	"github.com/alpacahq/alpaca-trade-api-go/v3/marketdata"
	"github.com/shopspring/decimal"

	"commander/internal/domain"
	"commander/internal/util"
)

// Compile-time interface check.
var _ Broker = (*AlpacaBroker)(nil)

// AlpacaOptions configures an AlpacaBroker.
type AlpacaOptions struct {
	APIKey     string
	APISecret  string
	BaseURL    string // trading endpoint (paper or live)
	DataURL    string // market data endpoint; empty uses the SDK default
	Feed       string // "iex" or "sip"
	Timeout    time.Duration
	RatePerMin int
	ReadTries  int
}

// AlpacaBroker implements Broker on top of the Alpaca trading and market-data
// REST APIs. Every request is bounded by the HTTP client timeout; reads are
// retried, writes are not.
type AlpacaBroker struct {
	trading *alpaca.Client
	data    *marketdata.Client
	feed    string
	enabled bool
	tries   int
	limiter *util.RateLimiter
	log     *slog.Logger
}

// NewAlpacaBroker creates a new AlpacaBroker configured with the given
// credentials and API endpoints.
func NewAlpacaBroker(opts AlpacaOptions, log *slog.Logger) *AlpacaBroker {
	if opts.Timeout <= 0 {
		opts.Timeout = 15 * time.Second
	}
	if opts.ReadTries <= 0 {
		opts.ReadTries = 3
	}
	if opts.Feed == "" {
		opts.Feed = "iex"
	}
	if log == nil {
		log = slog.Default()
	}
	httpClient := &http.Client{Timeout: opts.Timeout}

	dataOpts := marketdata.ClientOpts{
		APIKey:     opts.APIKey,
		APISecret:  opts.APISecret,
		HTTPClient: httpClient,
	}
	if opts.DataURL != "" {
		dataOpts.BaseURL = opts.DataURL
	}

	return &AlpacaBroker{
		trading: alpaca.NewClient(alpaca.ClientOpts{
			APIKey:     opts.APIKey,
			APISecret:  opts.APISecret,
			BaseURL:    opts.BaseURL,
			HTTPClient: httpClient,
		}),
		data:    marketdata.NewClient(dataOpts),
		feed:    opts.Feed,
		enabled: opts.APIKey != "" && opts.APISecret != "",
		tries:   opts.ReadTries,
		limiter: util.NewRateLimiter(opts.RatePerMin),
		log:     log.With("broker", "alpaca", "endpoint", opts.BaseURL),
	}
}

// Name returns "alpaca".
func (b *AlpacaBroker) Name() string {
	return "alpaca"
}

// Enabled reports whether API credentials were supplied.
func (b *AlpacaBroker) Enabled() bool {
	return b.enabled
}

// read runs an idempotent call with rate limiting and retries.
func (b *AlpacaBroker) read(ctx context.Context, op string, fn func() error) error {
	if !b.enabled {
		return wrap(op, ErrNotConfigured)
	}
	err := util.Retry(ctx, b.tries, 250*time.Millisecond, func() error {
		if err := b.limiter.Wait(ctx); err != nil {
			return util.Permanent(err)
		}
		return fn()
	})
	return wrap(op, err)
}

// write runs a non-idempotent call exactly once.
func (b *AlpacaBroker) write(ctx context.Context, op string, fn func() error) error {
	if !b.enabled {
		return wrap(op, ErrNotConfigured)
	}
	if err := b.limiter.Wait(ctx); err != nil {
		return wrap(op, err)
	}
	return wrap(op, fn())
}

// BuyingPower returns the account's buying power.
func (b *AlpacaBroker) BuyingPower(ctx context.Context) (decimal.Decimal, error) {
	var bp decimal.Decimal
	err := b.read(ctx, "get account", func() error {
		acct, err := b.trading.GetAccount()
		if err != nil {
			return err
		}
		bp = acct.BuyingPower
		return nil
	})
	return bp, err
}

// Account returns the account's equity, cash and buying power.
func (b *AlpacaBroker) Account(ctx context.Context) (domain.AccountInfo, error) {
	var info domain.AccountInfo
	err := b.read(ctx, "get account", func() error {
		acct, err := b.trading.GetAccount()
		if err != nil {
			return err
		}
		info = domain.AccountInfo{
			Equity:      acct.Equity,
			Cash:        acct.Cash,
			BuyingPower: acct.BuyingPower,
		}
		return nil
	})
	return info, err
}

// Positions returns all current positions from the Alpaca account.
func (b *AlpacaBroker) Positions(ctx context.Context) ([]domain.Position, error) {
	var out []domain.Position
	err := b.read(ctx, "list positions", func() error {
		positions, err := b.trading.GetPositions()
		if err != nil {
			return err
		}
		out = make([]domain.Position, 0, len(positions))
		for _, p := range positions {
			out = append(out, domain.Position{
				Symbol:   p.Symbol,
				Qty:      p.Qty,
				AvgPrice: p.AvgEntryPrice,
			})
		}
		return nil
	})
	return out, err
}

// LatestPrice returns the most recent trade price for symbol.
func (b *AlpacaBroker) LatestPrice(ctx context.Context, symbol string) (decimal.Decimal, error) {
	var price decimal.Decimal
	err := b.read(ctx, "latest trade "+symbol, func() error {
		trade, err := b.data.GetLatestTrade(symbol, marketdata.GetLatestTradeRequest{
			Feed: marketdata.Feed(b.feed),
		})
		if err != nil {
			return err
		}
		if trade == nil || trade.Price <= 0 {
			return util.Permanent(ErrPriceUnavailable)
		}
		price = decimal.NewFromFloat(trade.Price)
		return nil
	})
	return price, err
}

// OpenOrders returns open orders from the Alpaca account.
func (b *AlpacaBroker) OpenOrders(ctx context.Context) ([]domain.Order, error) {
	var out []domain.Order
	err := b.read(ctx, "list orders", func() error {
		orders, err := b.trading.GetOrders(alpaca.GetOrdersRequest{
			Status: "open",
			Limit:  100,
		})
		if err != nil {
			return err
		}
		out = make([]domain.Order, 0, len(orders))
		for i := range orders {
			out = append(out, fromAlpacaOrder(&orders[i]))
		}
		return nil
	})
	return out, err
}

// SubmitOrder sends an order to the Alpaca API for execution. It is never
// retried.
func (b *AlpacaBroker) SubmitOrder(ctx context.Context, intent domain.OrderIntent) (*domain.Order, error) {
	qty := intent.Qty
	req := alpaca.PlaceOrderRequest{
		Symbol:      intent.Symbol,
		Qty:         &qty,
		Side:        alpaca.Side(intent.Side),
		Type:        alpaca.OrderType(intent.Type),
		TimeInForce: alpaca.Day,
	}
	if intent.Type == domain.OrderTypeLimit && intent.LimitPrice != nil {
		px := intent.LimitPrice.Round(4)
		req.LimitPrice = &px
	}

	var out *domain.Order
	err := b.write(ctx, "submit "+intent.Symbol, func() error {
		o, err := b.trading.PlaceOrder(req)
		if err != nil {
			return err
		}
		order := fromAlpacaOrder(o)
		out = &order
		return nil
	})
	if err != nil {
		b.log.Warn("order rejected", "symbol", intent.Symbol, "side", intent.Side, "qty", intent.Qty.String(), "error", err)
		return nil, err
	}
	b.log.Info("order submitted", "symbol", intent.Symbol, "side", intent.Side, "qty", intent.Qty.String(), "id", out.ID)
	return out, nil
}

// CancelOrder requests cancellation of an open order via the Alpaca API.
func (b *AlpacaBroker) CancelOrder(ctx context.Context, orderID string) error {
	return b.write(ctx, "cancel "+orderID, func() error {
		return b.trading.CancelOrder(orderID)
	})
}

// CancelAllOrders cancels every open order.
func (b *AlpacaBroker) CancelAllOrders(ctx context.Context) error {
	return b.write(ctx, "cancel all", func() error {
		return b.trading.CancelAllOrders()
	})
}

func fromAlpacaOrder(o *alpaca.Order) domain.Order {
	order := domain.Order{
		ID:         o.ID,
		Symbol:     o.Symbol,
		Side:       domain.OrderSide(o.Side),
		Type:       domain.OrderType(o.Type),
		Status:     domain.OrderStatus(o.Status),
		LimitPrice: o.LimitPrice,
		FilledQty:  o.FilledQty,
		CreatedAt:  o.CreatedAt,
	}
	if o.Qty != nil {
		order.Qty = *o.Qty
	}
	return order
}

// IsMarketOpen reports the exchange clock state from the trading API.
func (b *AlpacaBroker) IsMarketOpen(ctx context.Context) (bool, error) {
	var open bool
	err := b.read(ctx, "get clock", func() error {
		clock, err := b.trading.GetClock()
		if err != nil {
			return err
		}
		open = clock.IsOpen
		return nil
	})
	return open, err
}
