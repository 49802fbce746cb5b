package command

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/shopspring/decimal"

	"commander/internal/domain"
	"commander/internal/sizing"
)

var (
	tickerRe = regexp.MustCompile(`^\.([A-Za-z.]{1,10})$`)
	basketRe = regexp.MustCompile(`^[A-Za-z0-9_\-]{1,50}$`)
	dateRe   = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}$`)
	priceRe  = regexp.MustCompile(`^\d+(\.\d+)?$`)
)

// ParseError reports a malformed argument inside an otherwise recognised
// command, or a bad wizard answer.
type ParseError struct {
	Input  string
	Reason string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("%q: %s", e.Input, e.Reason)
}

// Parse turns a console line into a Command. It never fails: anything that
// matches no rule comes back as Unknown.
func Parse(line string) Command {
	s := strings.TrimSpace(line)
	fields := strings.Fields(s)
	if len(fields) == 0 {
		return Unknown{Raw: s}
	}
	keyword := strings.ToUpper(fields[0])
	args := fields[1:]

	if len(args) == 0 {
		switch keyword {
		case "HELP", "?":
			return Help{}
		case "STATUS":
			return Status{}
		case "ACCOUNT":
			return Account{}
		case "PORTFOLIO":
			return Portfolio{}
		case "ORDERS":
			return Orders{}
		case "HISTORY":
			return History{}
		case "BASKETS":
			return Baskets{}
		case "BUY":
			return Interactive{Side: domain.OrderSideBuy}
		case "SELL":
			return Interactive{Side: domain.OrderSideSell}
		}
		if m := tickerRe.FindStringSubmatch(s); m != nil {
			return Info{Symbol: strings.ToUpper(m[1])}
		}
		return Unknown{Raw: s}
	}

	switch keyword {
	case "BUY":
		return parseTrade(s, domain.OrderSideBuy, args)
	case "SELL":
		return parseTrade(s, domain.OrderSideSell, args)
	case "CANCEL":
		if len(args) != 1 {
			return Unknown{Raw: s, Reason: "usage: CANCEL <order-id>|all"}
		}
		if strings.EqualFold(args[0], "all") {
			return Cancel{All: true}
		}
		return Cancel{OrderID: args[0]}
	case "MODE":
		if len(args) == 1 {
			switch strings.ToUpper(args[0]) {
			case "PAPER":
				return SetMode{Mode: domain.ModePaper}
			case "LIVE":
				return SetMode{Mode: domain.ModeLive}
			}
		}
		return Unknown{Raw: s, Reason: "usage: MODE PAPER|LIVE"}
	case "AUTO":
		if len(args) == 1 {
			switch strings.ToUpper(args[0]) {
			case "ON":
				return SetAuto{Enabled: true}
			case "OFF":
				return SetAuto{Enabled: false}
			}
		}
		return Unknown{Raw: s, Reason: "usage: AUTO ON|OFF"}
	case "LOGS":
		if len(args) == 1 && dateRe.MatchString(args[0]) {
			return Logs{Date: args[0]}
		}
		return Unknown{Raw: s, Reason: "usage: LOGS YYYY-MM-DD"}
	}
	return Unknown{Raw: s}
}

func parseTrade(raw string, side domain.OrderSide, args []string) Command {
	target, err := ParseTarget(args[0])
	if err != nil {
		return Unknown{Raw: raw, Reason: err.Error()}
	}
	trade := Trade{Side: side, Target: target}
	rest := args[1:]

	if target.IsBasket() {
		if len(rest) == 0 {
			return trade
		}
		if len(rest) > 1 {
			return Unknown{Raw: raw, Reason: "baskets take a single size: $N or N%"}
		}
		tok, err := ParseBasketSize(rest[0])
		if err != nil {
			return Unknown{Raw: raw, Reason: err.Error()}
		}
		trade.Size = tok
		return trade
	}

	if len(rest) > 2 {
		return Unknown{Raw: raw, Reason: "usage: BUY|SELL .SYMBOL [size] [limit]"}
	}
	if len(rest) >= 1 {
		tok, err := ParseTickerSize(rest[0], side)
		if err != nil {
			return Unknown{Raw: raw, Reason: err.Error()}
		}
		trade.Size = tok
	}
	if len(rest) == 2 {
		px, err := ParseLimitPrice(rest[1])
		if err != nil {
			return Unknown{Raw: raw, Reason: err.Error()}
		}
		trade.LimitPrice = px
	}
	return trade
}

// ParseTarget reads ".SYMBOL" as a ticker or a bare name as a basket. The
// leading dot always selects the ticker interpretation.
func ParseTarget(text string) (Target, error) {
	s := strings.TrimSpace(text)
	if strings.HasPrefix(s, ".") {
		m := tickerRe.FindStringSubmatch(s)
		if m == nil {
			return Target{}, &ParseError{Input: text, Reason: "ticker must look like .AAPL"}
		}
		return Ticker(strings.ToUpper(m[1])), nil
	}
	if !basketRe.MatchString(s) {
		return Target{}, &ParseError{Input: text, Reason: "expected .SYMBOL or a basket name"}
	}
	return BasketTarget(s), nil
}

// ParseTickerSize parses a size for a single-symbol trade. "all" is accepted
// only for sells.
func ParseTickerSize(text string, side domain.OrderSide) (sizing.Token, error) {
	tok, err := sizing.Parse(text)
	if err != nil {
		return sizing.Token{}, err
	}
	if tok.Kind() == sizing.All && side != domain.OrderSideSell {
		return sizing.Token{}, &ParseError{Input: text, Reason: "'all' is only valid for SELL"}
	}
	return tok, nil
}

// ParseBasketSize parses a basket size, which must be a notional or a
// percent, never a share count.
func ParseBasketSize(text string) (sizing.Token, error) {
	tok, err := sizing.Parse(text)
	if err != nil {
		return sizing.Token{}, err
	}
	if k := tok.Kind(); k != sizing.Notional && k != sizing.Percent {
		return sizing.Token{}, &ParseError{Input: text, Reason: "baskets accept only $N or N%"}
	}
	return tok, nil
}

// ParseLimitPrice parses a positive limit price.
func ParseLimitPrice(text string) (*decimal.Decimal, error) {
	s := strings.TrimSpace(text)
	if !priceRe.MatchString(s) {
		return nil, &ParseError{Input: text, Reason: "price must be a number"}
	}
	px, err := decimal.NewFromString(s)
	if err != nil {
		return nil, &ParseError{Input: text, Reason: err.Error()}
	}
	if !px.IsPositive() {
		return nil, &ParseError{Input: text, Reason: "price must be greater than zero"}
	}
	return &px, nil
}
