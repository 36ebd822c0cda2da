// Package format holds the pure formatting helpers shared by the invoice
// renderers: currency, percent, money parsing and plain-text extraction.
package format

import (
	"strings"

	"github.com/shopspring/decimal"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"golang.org/x/text/number"
)

var printer = message.NewPrinter(language.AmericanEnglish)

var moneyStripper = strings.NewReplacer("$", "", ",", "", " ", "", "\u00a0", "")

// Currency formats an amount as US dollars with two decimals, e.g. "$1,234.50"
// and "-$12.00" for negatives.
func Currency(amount decimal.Decimal) string {
	rounded := amount.Round(2)
	sign := ""
	if rounded.IsNegative() {
		sign = "-"
		rounded = rounded.Neg()
	}
	return sign + "$" + printer.Sprint(number.Decimal(rounded.InexactFloat64(), number.Scale(2)))
}

// Percent formats a rate that is already expressed in percent ("7.5" -> "7.5%").
// Trailing zeros are dropped.
func Percent(rate decimal.Decimal) string {
	return printer.Sprint(number.Decimal(rate.Round(2).InexactFloat64(), number.MaxFractionDigits(2))) + "%"
}

// ParseMoney reads a user-typed amount such as "$1,234.50". Anything that
// does not parse is zero.
func ParseMoney(raw string) decimal.Decimal {
	cleaned := moneyStripper.Replace(strings.TrimSpace(raw))
	if cleaned == "" {
		return decimal.Zero
	}
	d, err := decimal.NewFromString(cleaned)
	if err != nil {
		return decimal.Zero
	}
	return d
}

// PlainAmount renders a decimal without grouping or symbol, the form used in
// machine-readable attributes.
func PlainAmount(amount decimal.Decimal) string {
	return amount.StringFixed(2)
}
