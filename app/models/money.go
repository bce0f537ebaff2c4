package models

import (
	"errors"
	"fmt"
	"strings"
)

// Supported settlement currencies. Prices are stored in minor units
// (KRW/JPY have no sub-unit, USD/EUR use cents).
var supportedCurrencies = map[string]struct{}{
	"KRW": {},
	"USD": {},
	"JPY": {},
	"EUR": {},
}

var (
	ErrNegativeAmount      = errors.New("money amount must not be negative")
	ErrUnsupportedCurrency = errors.New("unsupported currency code")
)

// Money is a minor-unit amount with an ISO 4217 currency code. Construct it
// through NewMoney; the zero value is not a valid price.
type Money struct {
	Amount   int64  `gorm:"column:amount;not null" json:"amount"`
	Currency string `gorm:"column:currency;type:varchar(3);not null" json:"currency"`
}

// NewMoney validates amount and currency at construction time.
func NewMoney(amount int64, currency string) (Money, error) {
	c := strings.ToUpper(strings.TrimSpace(currency))
	if amount < 0 {
		return Money{}, ErrNegativeAmount
	}
	if _, ok := supportedCurrencies[c]; !ok {
		return Money{}, fmt.Errorf("%w: %q", ErrUnsupportedCurrency, currency)
	}
	return Money{Amount: amount, Currency: c}, nil
}

// IsZero reports whether the amount is zero.
func (m Money) IsZero() bool {
	return m.Amount == 0
}

// SameCurrency reports whether two amounts can be compared or combined.
func (m Money) SameCurrency(other Money) bool {
	return m.Currency == other.Currency
}

func (m Money) String() string {
	return fmt.Sprintf("%d %s", m.Amount, m.Currency)
}

// IsSupportedCurrency reports whether code is on the settlement allow-list.
func IsSupportedCurrency(code string) bool {
	_, ok := supportedCurrencies[strings.ToUpper(strings.TrimSpace(code))]
	return ok
}
