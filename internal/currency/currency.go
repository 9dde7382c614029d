package currency

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

// Code is a display currency. Amounts are always stored in TWD.
type Code string

const (
	TWD Code = "TWD"
	USD Code = "USD"
)

// usdPerTWD is the fixed display conversion rate.
var usdPerTWD = decimal.NewFromFloat(0.032)

// Formatter converts TWD amounts into the display currency and renders them
// with locale grouping.
type Formatter struct {
	code    Code
	printer *message.Printer
}

// NewFormatter builds a formatter for code ("" defaults to TWD).
func NewFormatter(code string) (*Formatter, error) {
	switch Code(strings.ToUpper(strings.TrimSpace(code))) {
	case "", TWD:
		return &Formatter{code: TWD, printer: message.NewPrinter(language.TraditionalChinese)}, nil
	case USD:
		return &Formatter{code: USD, printer: message.NewPrinter(language.AmericanEnglish)}, nil
	}
	return nil, fmt.Errorf("unsupported currency %q", code)
}

// MustFormatter is NewFormatter for known-good codes.
func MustFormatter(code string) *Formatter {
	f, err := NewFormatter(code)
	if err != nil {
		panic(err)
	}
	return f
}

// Code returns the display currency.
func (f *Formatter) Code() Code { return f.code }

// Convert maps a TWD amount into the display currency, rounded to whole units.
func (f *Formatter) Convert(twd decimal.Decimal) decimal.Decimal {
	if f.code == USD {
		return twd.Mul(usdPerTWD).Round(0)
	}
	return twd.Round(0)
}

// Format renders a TWD amount, e.g. "NT$1,234" or "$39".
func (f *Formatter) Format(twd decimal.Decimal) string {
	v := f.Convert(twd)
	sign := ""
	if v.Sign() < 0 {
		sign = "-"
		v = v.Neg()
	}
	return sign + f.symbol() + f.printer.Sprintf("%d", v.IntPart())
}

// Number renders a count with grouping.
func (f *Formatter) Number(n int64) string {
	return f.printer.Sprintf("%d", n)
}

func (f *Formatter) symbol() string {
	if f.code == USD {
		return "$"
	}
	return "NT$"
}
