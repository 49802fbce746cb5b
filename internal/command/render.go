package command

import (
	"strings"

	"commander/internal/domain"
)

// Render returns the canonical console line for c.
func Render(c Command) string {
	switch c := c.(type) {
	case Help:
		return "HELP"
	case Status:
		return "STATUS"
	case Account:
		return "ACCOUNT"
	case Portfolio:
		return "PORTFOLIO"
	case Orders:
		return "ORDERS"
	case History:
		return "HISTORY"
	case Baskets:
		return "BASKETS"
	case Info:
		return "." + c.Symbol
	case Trade:
		parts := []string{sideWord(c.Side), c.Target.String()}
		if c.Complete() {
			parts = append(parts, c.Size.String())
		}
		if c.LimitPrice != nil {
			parts = append(parts, c.LimitPrice.String())
		}
		return strings.Join(parts, " ")
	case Cancel:
		if c.All {
			return "CANCEL all"
		}
		return "CANCEL " + c.OrderID
	case SetMode:
		return "MODE " + string(c.Mode)
	case SetAuto:
		if c.Enabled {
			return "AUTO ON"
		}
		return "AUTO OFF"
	case Interactive:
		return sideWord(c.Side)
	case Logs:
		return "LOGS " + c.Date
	case Unknown:
		return c.Raw
	default:
		return ""
	}
}

func sideWord(s domain.OrderSide) string {
	if s == domain.OrderSideSell {
		return "SELL"
	}
	return "BUY"
}
