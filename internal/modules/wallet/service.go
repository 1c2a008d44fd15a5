// README: Wallet service; atomic credit/debit plus card top-ups.
package wallet

import (
	"context"
	"errors"
	"strings"

	"go.uber.org/zap"

	"bidride/internal/apperr"
	"bidride/internal/types"
)

type Repository interface {
	Balance(ctx context.Context, userID types.ID) (int64, error)
	Add(ctx context.Context, userID types.ID, amount int64, reference string) (int64, error)
	Deduct(ctx context.Context, userID types.ID, amount int64, reference string) (int64, error)
	// Transfer debits from and credits to atomically; a settled reference is a no-op.
	Transfer(ctx context.Context, from, to types.ID, amount int64, reference string) (applied bool, err error)
	Transactions(ctx context.Context, userID types.ID, limit int) ([]Transaction, error)
}

type Charge struct {
	UserID          types.ID
	Amount          int64
	PaymentMethodID string
	IdempotencyKey  string
}

type Gateway interface {
	Charge(ctx context.Context, c Charge) (string, error)
}

type Service struct {
	repo     Repository
	gateway  Gateway
	currency string
	log      *zap.Logger
}

// NewService builds the wallet service. gateway may be nil, which disables TopUp.
func NewService(repo Repository, gateway Gateway, currency string, log *zap.Logger) *Service {
	if currency == "" {
		currency = types.DefaultCurrency
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Service{repo: repo, gateway: gateway, currency: currency, log: log}
}

func (s *Service) Balance(ctx context.Context, userID types.ID) (types.Money, error) {
	if userID == "" {
		return types.Money{}, apperr.Validation("wallet.balance", "missing user id")
	}
	b, err := s.repo.Balance(ctx, userID)
	if err != nil {
		return types.Money{}, apperr.Store("wallet.balance", err)
	}
	return types.Money{Amount: b, Currency: s.currency}, nil
}

func (s *Service) Add(ctx context.Context, userID types.ID, amount types.Money, reference string) (types.Money, error) {
	if err := validAmount("wallet.add", userID, amount); err != nil {
		return types.Money{}, err
	}
	b, err := s.repo.Add(ctx, userID, amount.Amount, reference)
	if err != nil {
		s.log.Error("wallet credit failed", zap.String("user_id", string(userID)), zap.Error(err))
		return types.Money{}, apperr.Store("wallet.add", err)
	}
	return types.Money{Amount: b, Currency: s.currency}, nil
}

func (s *Service) Deduct(ctx context.Context, userID types.ID, amount types.Money, reference string) (types.Money, error) {
	if err := validAmount("wallet.deduct", userID, amount); err != nil {
		return types.Money{}, err
	}
	b, err := s.repo.Deduct(ctx, userID, amount.Amount, reference)
	if errors.Is(err, ErrInsufficientBalance) {
		return types.Money{}, apperr.Rejected("wallet.deduct", "insufficient balance")
	}
	if err != nil {
		s.log.Error("wallet debit failed", zap.String("user_id", string(userID)), zap.Error(err))
		return types.Money{}, apperr.Store("wallet.deduct", err)
	}
	return types.Money{Amount: b, Currency: s.currency}, nil
}

// Transfer moves amount between two wallets in one backend transaction. The
// reference identifies the settlement; repeating it moves nothing.
func (s *Service) Transfer(ctx context.Context, from, to types.ID, amount types.Money, reference string) error {
	const op = "wallet.transfer"
	if err := validAmount(op, from, amount); err != nil {
		return err
	}
	if to == "" || to == from {
		return apperr.Validation(op, "invalid recipient")
	}
	if strings.TrimSpace(reference) == "" {
		return apperr.Validation(op, "missing reference")
	}
	applied, err := s.repo.Transfer(ctx, from, to, amount.Amount, reference)
	if errors.Is(err, ErrInsufficientBalance) {
		return apperr.Rejected(op, "insufficient balance")
	}
	if err != nil {
		s.log.Error("wallet transfer failed", zap.String("from", string(from)), zap.String("to", string(to)), zap.String("reference", reference), zap.Error(err))
		return apperr.Store(op, err)
	}
	if !applied {
		s.log.Info("wallet transfer already settled", zap.String("reference", reference))
	}
	return nil
}

func (s *Service) Transactions(ctx context.Context, userID types.ID, limit int) ([]Transaction, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	txs, err := s.repo.Transactions(ctx, userID, limit)
	if err != nil {
		return nil, apperr.Store("wallet.transactions", err)
	}
	return txs, nil
}

type TopUpCommand struct {
	UserID          types.ID
	Amount          types.Money
	PaymentMethodID string
	// IdempotencyKey makes a retried request charge the card once.
	IdempotencyKey string
}

// TopUp charges the card first and credits the wallet with the charge id as reference.
func (s *Service) TopUp(ctx context.Context, cmd TopUpCommand) (types.Money, error) {
	if s.gateway == nil {
		return types.Money{}, apperr.Rejected("wallet.topup", "card top-ups are not enabled")
	}
	if err := validAmount("wallet.topup", cmd.UserID, cmd.Amount); err != nil {
		return types.Money{}, err
	}
	if strings.TrimSpace(cmd.PaymentMethodID) == "" {
		return types.Money{}, apperr.Validation("wallet.topup", "missing payment method")
	}
	chargeID, err := s.gateway.Charge(ctx, Charge{
		UserID:          cmd.UserID,
		Amount:          cmd.Amount.Amount,
		PaymentMethodID: cmd.PaymentMethodID,
		IdempotencyKey:  cmd.IdempotencyKey,
	})
	if err != nil {
		s.log.Warn("top-up charge failed", zap.String("user_id", string(cmd.UserID)), zap.Error(err))
		return types.Money{}, apperr.Rejected("wallet.topup", "payment was declined")
	}
	s.log.Info("top-up charged", zap.String("user_id", string(cmd.UserID)), zap.String("charge_id", chargeID), zap.Int64("amount", cmd.Amount.Amount))
	return s.Add(ctx, cmd.UserID, cmd.Amount, "topup:"+chargeID)
}

func validAmount(op string, userID types.ID, amount types.Money) error {
	if userID == "" {
		return apperr.Validation(op, "missing user id")
	}
	if amount.Amount <= 0 {
		return apperr.Validation(op, "amount must be positive")
	}
	return nil
}
