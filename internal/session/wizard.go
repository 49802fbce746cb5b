package session

import (
	"context"
	"strings"

	"github.com/shopspring/decimal"

	"commander/internal/command"
	"commander/internal/domain"
	"commander/internal/sizing"
)

// State is a step of the interactive order prompt.
type State int

const (
	Idle State = iota
	AwaitSymbol
	AwaitSize
	AwaitPrice
	AwaitConfirm
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case AwaitSymbol:
		return "await-symbol"
	case AwaitSize:
		return "await-size"
	case AwaitPrice:
		return "await-price"
	case AwaitConfirm:
		return "await-confirm"
	default:
		return "unknown"
	}
}

const (
	promptTarget  = "Enter a ticker (.AAPL) or a basket name. Type CANCEL to stop."
	promptTicker  = "Enter a size: 10 | 20% | $200"
	promptPrice   = "Enter a limit price, or press Enter for a market order."
	promptConfirm = "Confirm? (Y/N)"
)

// Wizard collects the parts of one order across several lines. It moves
// strictly forward; there is no way back to an earlier step.
type Wizard struct {
	State      State
	Side       domain.OrderSide
	Target     command.Target
	Size       sizing.Token
	LimitPrice *decimal.Decimal
}

func (w *Wizard) trade() command.Trade {
	return command.Trade{Side: w.Side, Target: w.Target, Size: w.Size, LimitPrice: w.LimitPrice}
}

func sizePrompt(w *Wizard) string {
	if w.Target.IsBasket() {
		return "Enter a basket size: $1000 | 20%"
	}
	if w.Side == domain.OrderSideSell {
		return promptTicker + " | all"
	}
	return promptTicker
}

// step feeds one line to the wizard. It returns the reply and whether the
// wizard is finished and should be discarded.
func (w *Wizard) step(ctx context.Context, b Backend, line string) (string, bool) {
	switch w.State {
	case AwaitSymbol:
		target, err := command.ParseTarget(line)
		if err != nil {
			return "Invalid target: " + reason(err) + ". " + promptTarget, false
		}
		desc, err := b.Describe(ctx, target)
		if err != nil {
			return err.Error() + ". " + promptTarget, false
		}
		w.Target = target
		w.State = AwaitSize
		return desc + "\n" + sizePrompt(w), false

	case AwaitSize:
		var (
			tok sizing.Token
			err error
		)
		if w.Target.IsBasket() {
			tok, err = command.ParseBasketSize(line)
		} else {
			tok, err = command.ParseTickerSize(line, w.Side)
		}
		if err != nil {
			return "Invalid size: " + reason(err) + ". " + sizePrompt(w), false
		}
		w.Size = tok
		if w.Target.IsBasket() {
			return w.confirm(ctx, b)
		}
		w.State = AwaitPrice
		return promptPrice, false

	case AwaitPrice:
		if line != "" {
			px, err := command.ParseLimitPrice(line)
			if err != nil {
				return "Invalid price: " + reason(err) + ". " + promptPrice, false
			}
			w.LimitPrice = px
		}
		return w.confirm(ctx, b)

	case AwaitConfirm:
		if answer := strings.ToUpper(line); answer == "Y" || answer == "YES" {
			return b.Execute(ctx, w.trade()), true
		}
		return "Order cancelled.", true
	}
	return "Order prompt reset.", true
}

// confirm shows the resolved order and waits for Y/N. A trade that cannot be
// resolved ends the wizard.
func (w *Wizard) confirm(ctx context.Context, b Backend) (string, bool) {
	summary, err := b.Preview(ctx, w.trade())
	if err != nil {
		return "Order cancelled: " + err.Error(), true
	}
	w.State = AwaitConfirm
	return summary + "\n" + promptConfirm, false
}

func reason(err error) string {
	switch e := err.(type) {
	case *command.ParseError:
		return e.Reason
	case *sizing.ParseError:
		return e.Reason
	default:
		return err.Error()
	}
}
