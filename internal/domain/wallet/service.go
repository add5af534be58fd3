package wallet

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/carehub/pharmacy-portal/internal/domain"
	"github.com/carehub/pharmacy-portal/internal/listing"
)

const basePath = "/pharmacy/wallet"

type Service struct {
	api domain.Backend
}

func NewService(api domain.Backend) *Service {
	return &Service{api: api}
}

func (s *Service) Balance(ctx context.Context) (*Balance, error) {
	env, err := s.api.Get(ctx, domain.Path(basePath, "balance"), nil)
	if err != nil {
		return nil, fmt.Errorf("wallet balance: %w", err)
	}
	b := BalanceFromRecord(domain.DecodeOne(env, "wallet", "balance"))
	return &b, nil
}

func (s *Service) Earnings(ctx context.Context, q listing.Query) (*listing.Page[Transaction], error) {
	env, err := s.api.Get(ctx, domain.Path(basePath, "earnings"), q.Values())
	if err != nil {
		return nil, fmt.Errorf("wallet earnings: %w", err)
	}
	return listing.DecodePage(env, EarningFromRecord, "earnings", "transactions"), nil
}

func (s *Service) Transactions(ctx context.Context, q listing.Query) (*listing.Page[Transaction], error) {
	env, err := s.api.Get(ctx, domain.Path(basePath, "transactions"), q.Values())
	if err != nil {
		return nil, fmt.Errorf("wallet transactions: %w", err)
	}
	return listing.DecodePage(env, TransactionFromRecord, "transactions"), nil
}

func (s *Service) Withdrawals(ctx context.Context, q listing.Query) (*listing.Page[Transaction], error) {
	env, err := s.api.Get(ctx, domain.Path(basePath, "withdrawals"), q.Values())
	if err != nil {
		return nil, fmt.Errorf("wallet withdrawals: %w", err)
	}
	return listing.DecodePage(env, WithdrawalFromRecord, "withdrawals"), nil
}

// Withdraw requests a payout. bal is the last known balance; nil skips the
// available-balance check.
func (s *Service) Withdraw(ctx context.Context, req Request, bal *Balance) (*Transaction, error) {
	var available *decimal.Decimal
	if bal != nil {
		available = &bal.Available
	}
	if err := req.Validate(available); err != nil {
		return nil, err
	}
	env, err := s.api.Post(ctx, domain.Path(basePath, "withdraw"), req.body())
	if err != nil {
		return nil, fmt.Errorf("withdraw %s: %w", req.Amount, err)
	}
	t := WithdrawalFromRecord(domain.DecodeOne(env, "withdrawal", "transaction"))
	if t.Amount.IsZero() {
		t.Amount = req.Amount
	}
	return &t, nil
}
