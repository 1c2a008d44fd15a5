// README: Wallet balances and their ledger.
package wallet

import (
	"time"

	"bidride/internal/types"
)

type Wallet struct {
	UserID    types.ID    `json:"user_id"`
	Balance   types.Money `json:"balance"`
	UpdatedAt time.Time   `json:"updated_at"`
}

type TransactionKind string

const (
	KindCredit TransactionKind = "credit"
	KindDebit  TransactionKind = "debit"
)

type Transaction struct {
	ID        int64           `json:"id"`
	UserID    types.ID        `json:"user_id"`
	Kind      TransactionKind `json:"kind"`
	Amount    int64           `json:"amount"`
	Reference string          `json:"reference"`
	CreatedAt time.Time       `json:"created_at"`
}
