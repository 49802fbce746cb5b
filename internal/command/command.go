// Package command turns a raw console line into a typed Command.
//
// Command is a closed sum type: every concrete command lives in this package
// and callers switch over them exhaustively.
package command

import (
	"github.com/shopspring/decimal"

	"commander/internal/domain"
	"commander/internal/sizing"
)

// Command is one parsed console instruction.
type Command interface {
	command()
}

type (
	// Help prints the command reference.
	Help struct{}
	// Status prints mode, auto-trading and broker state.
	Status struct{}
	// Account prints equity, cash and buying power of the active account.
	Account struct{}
	// Portfolio lists held positions.
	Portfolio struct{}
	// Orders lists open orders.
	Orders struct{}
	// History lists recent journaled events.
	History struct{}
	// Baskets lists basket definitions and their validity.
	Baskets struct{}
)

// Info quotes a symbol and shows the held quantity.
type Info struct {
	Symbol string
}

// Target is what a Trade acts on: either a ticker or a named basket.
type Target struct {
	Symbol string
	Basket string
}

// Ticker returns a ticker target.
func Ticker(symbol string) Target { return Target{Symbol: symbol} }

// BasketTarget returns a basket target.
func BasketTarget(name string) Target { return Target{Basket: name} }

// IsBasket reports whether the target is a basket.
func (t Target) IsBasket() bool { return t.Basket != "" }

func (t Target) String() string {
	if t.IsBasket() {
		return t.Basket
	}
	return "." + t.Symbol
}

// Trade buys or sells a ticker or basket. A Trade with a zero Size is
// incomplete and must be finished interactively.
type Trade struct {
	Side       domain.OrderSide
	Target     Target
	Size       sizing.Token
	LimitPrice *decimal.Decimal
}

// Complete reports whether the trade carries a size.
func (t Trade) Complete() bool { return !t.Size.IsZero() }

// Cancel cancels one open order, or all of them.
type Cancel struct {
	OrderID string
	All     bool
}

// SetMode switches between paper and live trading.
type SetMode struct {
	Mode domain.Mode
}

// SetAuto turns the strategy scheduler on or off.
type SetAuto struct {
	Enabled bool
}

// Interactive starts the step-by-step order prompt.
type Interactive struct {
	Side domain.OrderSide
}

// Logs lists journaled events for one day (YYYY-MM-DD).
type Logs struct {
	Date string
}

// Unknown is any line that matched no rule. Reason is set when the line looked
// like a known command but an argument was invalid.
type Unknown struct {
	Raw    string
	Reason string
}

func (Help) command()        {}
func (Status) command()      {}
func (Account) command()     {}
func (Portfolio) command()   {}
func (Orders) command()      {}
func (History) command()     {}
func (Baskets) command()     {}
func (Info) command()        {}
func (Trade) command()       {}
func (Cancel) command()      {}
func (SetMode) command()     {}
func (SetAuto) command()     {}
func (Interactive) command() {}
func (Logs) command()        {}
func (Unknown) command()     {}
