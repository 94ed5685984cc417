// Package money converts wallet amounts between their decimal, minor-unit and
// display forms. Everything here is pure.
package money

import (
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

var (
	ErrInvalidAmount   = errors.New("money: invalid amount")
	ErrInvalidCurrency = errors.New("money: invalid currency")
	ErrTooPrecise      = errors.New("money: too many decimal places for currency")
)

// zeroDecimal lists ISO 4217 currencies without minor units.
var zeroDecimal = map[string]struct{}{
	"BIF": {}, "CLP": {}, "DJF": {}, "GNF": {}, "JPY": {}, "KMF": {}, "KRW": {},
	"MGA": {}, "PYG": {}, "RWF": {}, "UGX": {}, "VND": {}, "VUV": {}, "XAF": {},
	"XOF": {}, "XPF": {},
}

var symbols = map[string]string{
	"EUR": "€",
	"USD": "$",
	"GBP": "£",
	"JPY": "¥",
	"INR": "₹",
}

// IsCurrencyCode reports whether s is exactly three uppercase ASCII letters.
func IsCurrencyCode(s string) bool {
	if len(s) != 3 {
		return false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < 'A' || s[i] > 'Z' {
			return false
		}
	}
	return true
}

// Places is the number of minor-unit digits of currency.
func Places(currency string) int32 {
	if _, ok := zeroDecimal[strings.ToUpper(currency)]; ok {
		return 0
	}
	return 2
}

// ParseAmount parses a user supplied amount such as "12.50" or "-3".
func ParseAmount(s string) (decimal.Decimal, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return decimal.Zero, ErrInvalidAmount
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, fmt.Errorf("%w: %q", ErrInvalidAmount, s)
	}
	return d, nil
}

// Round rounds half away from zero to the currency's minor unit.
func Round(amount decimal.Decimal, currency string) decimal.Decimal {
	return amount.Round(Places(currency))
}

// ToMinor converts amount to integer minor units. Amounts carrying more
// precision than the currency allows are rejected rather than rounded.
func ToMinor(amount decimal.Decimal, currency string) (int64, error) {
	if !IsCurrencyCode(currency) {
		return 0, ErrInvalidCurrency
	}
	places := Places(currency)
	if !amount.Equal(amount.Round(places)) {
		return 0, ErrTooPrecise
	}
	return amount.Shift(places).IntPart(), nil
}

// FromMinor is the inverse of ToMinor.
func FromMinor(minor int64, currency string) decimal.Decimal {
	return decimal.New(minor, -Places(currency))
}

// Format renders amount for display, e.g. "€1,234.50" or "-$12.00".
// Currencies without a known symbol render as "1,234.50 CHF".
func Format(amount decimal.Decimal, currency string) string {
	currency = strings.ToUpper(currency)
	places := Places(currency)

	sign := ""
	if amount.Sign() < 0 {
		sign = "-"
	}
	fixed := amount.Abs().StringFixed(places)

	intPart, frac := fixed, ""
	if i := strings.IndexByte(fixed, '.'); i >= 0 {
		intPart, frac = fixed[:i], fixed[i:]
	}
	grouped := groupThousands(intPart) + frac

	if sym, ok := symbols[currency]; ok {
		return sign + sym + grouped
	}
	return sign + grouped + " " + currency
}

func groupThousands(digits string) string {
	if len(digits) <= 3 {
		return digits
	}
	var b strings.Builder
	lead := len(digits) % 3
	if lead > 0 {
		b.WriteString(digits[:lead])
	}
	for i := lead; i < len(digits); i += 3 {
		if b.Len() > 0 {
			b.WriteByte(',')
		}
		b.WriteString(digits[i : i+3])
	}
	return b.String()
}
