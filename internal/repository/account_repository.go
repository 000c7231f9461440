package repository

import (
	"context"
	"database/sql"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/shopspring/decimal"

	"giftcard-ledger/internal/domain"
	"giftcard-ledger/internal/errors"
)

type accountRepository struct {
	db     SQLExecutor
	logger *slog.Logger
}

func NewAccountRepository(db SQLExecutor, logger *slog.Logger) domain.AccountRepository {
	return &accountRepository{
		db:     db,
		logger: logger,
	}
}

func (r *accountRepository) CreateAccount(ctx context.Context, account *domain.Account) error {
	query := `
		INSERT INTO accounts (id, balance, display_name, contact_email, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`

	now := time.Now()
	_, err := r.db.ExecContext(
		ctx,
		query,
		account.ID,
		account.Balance.String(),
		account.DisplayName,
		account.ContactEmail,
		now,
		now,
	)

	if err != nil {
		if pqErr, ok := err.(*pq.Error); ok {
			if pqErr.Code == "23505" { // unique_violation
				r.logger.Warn("Duplicate account creation attempt", "account_id", account.ID)
				return errors.ErrDuplicateAccount
			}
		}
		r.logger.Error("Failed to create account", "account_id", account.ID, "error", err)
		return errors.NewAppError(errors.InternalError, "failed to create account").WithDetails(err.Error())
	}

	account.CreatedAt = now
	account.UpdatedAt = now
	r.logger.Info("Account created successfully", "account_id", account.ID)
	return nil
}

func (r *accountRepository) GetAccount(ctx context.Context, id uuid.UUID) (*domain.Account, error) {
	query := `
		SELECT id, balance, display_name, contact_email, created_at, updated_at
		FROM accounts WHERE id = $1
	`

	return r.scanAccount(ctx, query, id)
}

func (r *accountRepository) GetAccountForUpdate(ctx context.Context, id uuid.UUID) (*domain.Account, error) {
	query := `
		SELECT id, balance, display_name, contact_email, created_at, updated_at
		FROM accounts WHERE id = $1 FOR UPDATE
	`

	return r.scanAccount(ctx, query, id)
}

func (r *accountRepository) scanAccount(ctx context.Context, query string, id uuid.UUID) (*domain.Account, error) {
	var account domain.Account
	var balanceStr string

	err := r.db.QueryRowContext(ctx, query, id).Scan(
		&account.ID,
		&balanceStr,
		&account.DisplayName,
		&account.ContactEmail,
		&account.CreatedAt,
		&account.UpdatedAt,
	)

	if err != nil {
		if err == sql.ErrNoRows {
			r.logger.Warn("Account not found", "account_id", id)
			return nil, errors.ErrAccountNotFound
		}
		r.logger.Error("Failed to get account", "account_id", id, "error", err)
		return nil, errors.NewAppError(errors.InternalError, "failed to get account").WithDetails(err.Error())
	}

	balance, err := decimal.NewFromString(balanceStr)
	if err != nil {
		r.logger.Error("Failed to parse balance", "account_id", id, "balance_str", balanceStr, "error", err)
		return nil, errors.NewAppError(errors.InternalError, "failed to parse balance").WithDetails(err.Error())
	}

	account.Balance = balance
	return &account, nil
}

// DebitBalance performs the sufficiency check and the decrement as one
// conditional UPDATE, so two concurrent debits against the same account
// cannot both succeed past the available balance.
func (r *accountRepository) DebitBalance(ctx context.Context, id uuid.UUID, amount decimal.Decimal) (decimal.Decimal, error) {
	query := `
		UPDATE accounts
		SET balance = balance - $1, updated_at = $2
		WHERE id = $3 AND balance >= $1
		RETURNING balance
	`

	var newBalanceStr string
	err := r.db.QueryRowContext(ctx, query, amount.String(), time.Now(), id).Scan(&newBalanceStr)
	if err != nil {
		if err == sql.ErrNoRows {
			// Either the account is missing or the balance was short.
			if _, getErr := r.GetAccount(ctx, id); getErr != nil {
				return decimal.Zero, getErr
			}
			r.logger.Warn("Debit rejected, insufficient balance", "account_id", id, "amount", amount)
			return decimal.Zero, errors.ErrInsufficientFunds
		}
		r.logger.Error("Failed to debit account", "account_id", id, "amount", amount, "error", err)
		return decimal.Zero, errors.NewAppError(errors.InternalError, "failed to debit account").WithDetails(err.Error())
	}

	newBalance, err := decimal.NewFromString(newBalanceStr)
	if err != nil {
		return decimal.Zero, errors.NewAppError(errors.InternalError, "failed to parse balance").WithDetails(err.Error())
	}

	r.logger.Info("Account debited", "account_id", id, "amount", amount, "new_balance", newBalance)
	return newBalance, nil
}
