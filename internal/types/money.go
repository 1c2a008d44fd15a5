// README: Common money value object used across modules.
package types

import "fmt"

// DefaultCurrency is the display unit for every fare, bid and balance.
const DefaultCurrency = "RS"

// Money is an amount in whole currency units.
type Money struct {
	Amount   int64  `json:"amount"`
	Currency string `json:"currency"`
}

func RS(amount int64) Money {
	return Money{Amount: amount, Currency: DefaultCurrency}
}

func (m Money) Less(o Money) bool {
	return m.Amount < o.Amount
}

func (m Money) String() string {
	cur := m.Currency
	if cur == "" {
		cur = DefaultCurrency
	}
	return fmt.Sprintf("%d %s", m.Amount, cur)
}
