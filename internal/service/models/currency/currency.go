package currency

import (
	"database/sql/driver"
	"errors"
	"strings"
)

// Currency is an ISO 4217 currency code.
type Currency string

const (
	CurrencyUSD Currency = "USD"
	CurrencyEUR Currency = "EUR"
	CurrencyRUB Currency = "RUB"
)

// MinorUnitsPerMajor is the number of minor units in one major unit.
// Every supported currency has two decimal places.
const MinorUnitsPerMajor = 100

var ErrInvalidCurrency = errors.New("invalid currency")

func (c Currency) String() string {
	return string(c)
}

// Lower returns the lowercase code expected by the payment gateway.
func (c Currency) Lower() string {
	return strings.ToLower(string(c))
}

func (c Currency) Value() (driver.Value, error) {
	return c.String(), nil
}

// ParseCurrency parses a currency code, ignoring case.
func ParseCurrency(s string) (Currency, error) {
	switch Currency(strings.ToUpper(strings.TrimSpace(s))) {
	case CurrencyUSD:
		return CurrencyUSD, nil
	case CurrencyEUR:
		return CurrencyEUR, nil
	case CurrencyRUB:
		return CurrencyRUB, nil
	default:
		return "", ErrInvalidCurrency
	}
}
