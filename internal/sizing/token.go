// Package sizing parses order size expressions and resolves them into
// concrete order quantities under one shared precision policy.
package sizing

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/shopspring/decimal"
)

// Kind identifies the form of a size expression.
type Kind int

const (
	// Shares is a raw share count, e.g. "10".
	Shares Kind = iota + 1
	// Percent is a percentage of buying power (buy) or holding (sell), e.g. "20%".
	Percent
	// Notional is a dollar amount, e.g. "$200".
	Notional
	// All sells the whole holding.
	All
)

func (k Kind) String() string {
	switch k {
	case Shares:
		return "shares"
	case Percent:
		return "percent"
	case Notional:
		return "notional"
	case All:
		return "all"
	default:
		return "unknown"
	}
}

var (
	numberRe   = regexp.MustCompile(`^\d+(\.\d+)?$`)
	percentRe  = regexp.MustCompile(`^(\d+(\.\d+)?)%$`)
	notionalRe = regexp.MustCompile(`^\$(\d+(\.\d+)?)$`)

	hundred = decimal.NewFromInt(100)
)

// Token is a parsed, immutable size expression. Value is always positive,
// except for All which carries no value.
type Token struct {
	kind  Kind
	value decimal.Decimal
}

// NewShares, NewPercent and NewNotional build tokens directly; they are used
// by callers that already hold a validated number.
func NewShares(q decimal.Decimal) Token   { return Token{kind: Shares, value: q} }
func NewPercent(p decimal.Decimal) Token  { return Token{kind: Percent, value: p} }
func NewNotional(a decimal.Decimal) Token { return Token{kind: Notional, value: a} }

// AllToken is the "sell everything" token.
var AllToken = Token{kind: All}

// Kind returns the token's form.
func (t Token) Kind() Kind { return t.kind }

// Value returns the quantity, percentage or dollar amount.
func (t Token) Value() decimal.Decimal { return t.value }

// IsZero reports an unset token.
func (t Token) IsZero() bool { return t.kind == 0 }

// String renders the token in its input syntax.
func (t Token) String() string {
	switch t.kind {
	case Shares:
		return t.value.String()
	case Percent:
		return t.value.String() + "%"
	case Notional:
		return "$" + t.value.String()
	case All:
		return "all"
	default:
		return ""
	}
}

// ParseError reports a malformed size expression.
type ParseError struct {
	Input  string
	Reason string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("invalid size %q: %s", e.Input, e.Reason)
}

// Parse reads a size expression: "10" (shares), "20%" (percent), "$200"
// (notional) or "all".
func Parse(text string) (Token, error) {
	s := strings.TrimSpace(text)
	if strings.EqualFold(s, "all") {
		return AllToken, nil
	}

	var (
		kind Kind
		num  string
	)
	switch {
	case numberRe.MatchString(s):
		kind, num = Shares, s
	case percentRe.MatchString(s):
		kind, num = Percent, percentRe.FindStringSubmatch(s)[1]
	case notionalRe.MatchString(s):
		kind, num = Notional, notionalRe.FindStringSubmatch(s)[1]
	default:
		return Token{}, &ParseError{Input: text, Reason: "expected 10 | 20% | $200 | all"}
	}

	v, err := decimal.NewFromString(num)
	if err != nil {
		return Token{}, &ParseError{Input: text, Reason: err.Error()}
	}
	if !v.IsPositive() {
		return Token{}, &ParseError{Input: text, Reason: "must be greater than zero"}
	}
	if kind == Percent && v.GreaterThan(hundred) {
		return Token{}, &ParseError{Input: text, Reason: "percent must not exceed 100"}
	}
	return Token{kind: kind, value: v}, nil
}
