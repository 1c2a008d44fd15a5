// README: Wallet store; balances only move through the add/deduct SQL functions.
package wallet

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"bidride/internal/types"
)

// ErrInsufficientBalance is returned when deduct_from_wallet refuses to go negative.
var ErrInsufficientBalance = errors.New("insufficient balance")

type Store struct {
	db *pgxpool.Pool
}

func NewStore(db *pgxpool.Pool) *Store {
	return &Store{db: db}
}

// Balance returns zero for users that have never had a wallet row.
func (s *Store) Balance(ctx context.Context, userID types.ID) (int64, error) {
	var balance int64
	err := s.db.QueryRow(ctx, `SELECT balance::bigint FROM wallets WHERE user_id = $1`, string(userID)).Scan(&balance)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, nil
	}
	return balance, err
}

func (s *Store) Add(ctx context.Context, userID types.ID, amount int64, reference string) (int64, error) {
	var balance int64
	err := s.db.QueryRow(ctx, `SELECT add_to_wallet($1, $2, $3)::bigint`, string(userID), amount, reference).Scan(&balance)
	return balance, err
}

func (s *Store) Deduct(ctx context.Context, userID types.ID, amount int64, reference string) (int64, error) {
	var balance int64
	err := s.db.QueryRow(ctx, `SELECT deduct_from_wallet($1, $2, $3)::bigint`, string(userID), amount, reference).Scan(&balance)
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Message == "insufficient_balance" {
		return 0, ErrInsufficientBalance
	}
	return balance, err
}

// Transfer calls transfer_wallet. applied is false when the reference was
// already settled.
func (s *Store) Transfer(ctx context.Context, from, to types.ID, amount int64, reference string) (bool, error) {
	var applied bool
	err := s.db.QueryRow(ctx, `SELECT transfer_wallet($1, $2, $3, $4)`, string(from), string(to), amount, reference).Scan(&applied)
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Message == "insufficient_balance" {
		return false, ErrInsufficientBalance
	}
	return applied, err
}

func (s *Store) Transactions(ctx context.Context, userID types.ID, limit int) ([]Transaction, error) {
	rows, err := s.db.Query(ctx, `
		SELECT id, user_id, kind, amount::bigint, reference, created_at
		FROM wallet_transactions
		WHERE user_id = $1
		ORDER BY created_at DESC, id DESC
		LIMIT $2`, string(userID), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Transaction
	for rows.Next() {
		var t Transaction
		var kind, user string
		if err := rows.Scan(&t.ID, &user, &kind, &t.Amount, &t.Reference, &t.CreatedAt); err != nil {
			return nil, err
		}
		t.UserID = types.ID(user)
		t.Kind = TransactionKind(kind)
		out = append(out, t)
	}
	return out, rows.Err()
}
