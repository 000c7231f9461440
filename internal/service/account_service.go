package service

import (
	"context"
	"log/slog"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"giftcard-ledger/internal/domain"
	"giftcard-ledger/internal/errors"
)

// AccountService covers the funding boundary (account creation with an
// externally authorized initial balance) and read access. Balances only ever
// decrease through the charge coordinator.
type AccountService struct {
	ledger domain.Ledger
	logger *slog.Logger
}

func NewAccountService(ledger domain.Ledger, logger *slog.Logger) *AccountService {
	return &AccountService{
		ledger: ledger,
		logger: logger,
	}
}

func (s *AccountService) CreateAccount(ctx context.Context, displayName, contactEmail string, initialBalance decimal.Decimal) (*domain.Account, error) {
	s.logger.Info("Creating account", "display_name", displayName, "initial_balance", initialBalance)

	if initialBalance.IsNegative() {
		return nil, errors.ErrInvalidAmount
	}

	// Validate reasonable limits
	maxInitialBalance := decimal.NewFromInt(1_000_000)
	if initialBalance.GreaterThan(maxInitialBalance) {
		return nil, errors.NewAppError(errors.InvalidAmount, "initial balance exceeds maximum limit")
	}

	account := &domain.Account{
		ID:           uuid.New(),
		Balance:      initialBalance,
		DisplayName:  displayName,
		ContactEmail: contactEmail,
	}

	if err := s.ledger.Accounts().CreateAccount(ctx, account); err != nil {
		return nil, err
	}

	s.logger.Info("Account created successfully", "account_id", account.ID)
	return account, nil
}

func (s *AccountService) GetAccount(ctx context.Context, accountID string) (*domain.Account, error) {
	id, err := uuid.Parse(accountID)
	if err != nil {
		return nil, errors.NewAppError(errors.InvalidInput, "invalid account id")
	}

	return s.ledger.Accounts().GetAccount(ctx, id)
}

func (s *AccountService) History(ctx context.Context, accountID string, limit, offset int) ([]*domain.Transaction, error) {
	id, err := uuid.Parse(accountID)
	if err != nil {
		return nil, errors.NewAppError(errors.InvalidInput, "invalid account id")
	}
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}

	if _, err := s.ledger.Accounts().GetAccount(ctx, id); err != nil {
		return nil, err
	}

	return s.ledger.Journal().HistoryForAccount(ctx, id, limit, offset)
}
