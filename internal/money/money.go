// Package money provides a fixed-point amount tagged with its currency.
package money

import (
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// Common errors
var (
	ErrCurrencyMismatch = errors.New("currency mismatch")
	ErrInvalidCurrency  = errors.New("currency must be a 3-letter ISO code")
	ErrTooPrecise       = errors.New("amount is finer than the currency's minor unit")
	ErrAmountTooLarge   = errors.New("amount exceeds the largest representable value")
)

// exponents lists the currencies whose minor unit is not 1/100.
var exponents = map[string]int32{
	"BHD": 3, "IQD": 3, "JOD": 3, "KWD": 3, "LYD": 3, "OMR": 3, "TND": 3,
	"BIF": 0, "CLP": 0, "DJF": 0, "GNF": 0, "ISK": 0, "JPY": 0, "KMF": 0, "KRW": 0,
	"PYG": 0, "RWF": 0, "UGX": 0, "VND": 0, "VUV": 0, "XAF": 0, "XOF": 0, "XPF": 0,
}

// Money is a decimal amount in a single currency
type Money struct {
	Amount   decimal.Decimal `json:"amount"`
	Currency string          `json:"currency"`
}

// Exponent returns the number of decimal places of the currency's minor unit
func Exponent(currency string) int32 {
	if exp, ok := exponents[strings.ToUpper(currency)]; ok {
		return exp
	}
	return 2
}

// NormalizeCurrency upper-cases a currency code and checks its shape
func NormalizeCurrency(currency string) (string, error) {
	c := strings.ToUpper(strings.TrimSpace(currency))
	if len(c) != 3 {
		return "", fmt.Errorf("%w: %q", ErrInvalidCurrency, currency)
	}
	for _, r := range c {
		if r < 'A' || r > 'Z' {
			return "", fmt.Errorf("%w: %q", ErrInvalidCurrency, currency)
		}
	}
	return c, nil
}

// New builds a Money value
func New(amount decimal.Decimal, currency string) Money {
	return Money{Amount: amount, Currency: strings.ToUpper(currency)}
}

// Zero returns a zero amount in the currency
func Zero(currency string) Money {
	return New(decimal.Zero, currency)
}

// Parse reads a decimal string such as "33.34"
func Parse(s, currency string) (Money, error) {
	d, err := decimal.NewFromString(strings.TrimSpace(s))
	if err != nil {
		return Money{}, fmt.Errorf("invalid amount %q: %w", s, err)
	}
	return New(d, currency), nil
}

// MustParse is Parse for literals known to be valid
func MustParse(s, currency string) Money {
	m, err := Parse(s, currency)
	if err != nil {
		panic(err)
	}
	return m
}

// FromMinor builds a Money value from a count of minor units
func FromMinor(units int64, currency string) Money {
	return New(decimal.New(units, -Exponent(currency)), currency)
}

// MinorUnits returns the amount as an integer count of minor units.
// Amounts carrying more precision than the currency allows are rejected, as
// are amounts whose minor units do not fit in an int64.
func (m Money) MinorUnits() (int64, error) {
	shifted := m.Amount.Shift(Exponent(m.Currency))
	if !shifted.Equal(shifted.Truncate(0)) {
		return 0, fmt.Errorf("%w: %s %s", ErrTooPrecise, m.Amount.String(), m.Currency)
	}
	units := shifted.BigInt()
	if !units.IsInt64() {
		return 0, fmt.Errorf("%w: %s %s", ErrAmountTooLarge, m.Amount.String(), m.Currency)
	}
	return units.Int64(), nil
}

// Add returns m + o
func (m Money) Add(o Money) (Money, error) {
	if err := m.sameCurrency(o); err != nil {
		return Money{}, err
	}
	return New(m.Amount.Add(o.Amount), m.Currency), nil
}

// Sub returns m - o
func (m Money) Sub(o Money) (Money, error) {
	if err := m.sameCurrency(o); err != nil {
		return Money{}, err
	}
	return New(m.Amount.Sub(o.Amount), m.Currency), nil
}

// Neg returns -m
func (m Money) Neg() Money {
	return New(m.Amount.Neg(), m.Currency)
}

// Sign returns -1, 0 or +1
func (m Money) Sign() int {
	return m.Amount.Sign()
}

// IsZero reports whether the amount is zero
func (m Money) IsZero() bool {
	return m.Amount.IsZero()
}

// Equal compares amount and currency
func (m Money) Equal(o Money) bool {
	return strings.EqualFold(m.Currency, o.Currency) && m.Amount.Equal(o.Amount)
}

// Round returns the amount rounded to the currency's minor unit
func (m Money) Round() Money {
	return New(m.Amount.Round(Exponent(m.Currency)), m.Currency)
}

// String renders the amount with the currency's fixed number of decimals, e.g. "33.34 INR"
func (m Money) String() string {
	return m.Amount.StringFixed(Exponent(m.Currency)) + " " + m.Currency
}

func (m Money) sameCurrency(o Money) error {
	if !strings.EqualFold(m.Currency, o.Currency) {
		return fmt.Errorf("%w: %s vs %s", ErrCurrencyMismatch, m.Currency, o.Currency)
	}
	return nil
}
