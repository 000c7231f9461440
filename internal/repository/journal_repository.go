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

type journalRepository struct {
	db     SQLExecutor
	logger *slog.Logger
}

func NewJournalRepository(db SQLExecutor, logger *slog.Logger) domain.JournalRepository {
	return &journalRepository{
		db:     db,
		logger: logger,
	}
}

func (r *journalRepository) Open(ctx context.Context, tx *domain.Transaction) error {
	query := `
		INSERT INTO transactions (id, account_id, merchant_id, amount, status, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`

	now := time.Now()
	_, err := r.db.ExecContext(
		ctx,
		query,
		tx.ID,
		tx.AccountID,
		tx.MerchantID,
		tx.Amount.String(),
		domain.StatusPending,
		now,
	)

	if err != nil {
		if pqErr, ok := err.(*pq.Error); ok {
			if pqErr.Code == "23505" { // unique_violation
				r.logger.Warn("Duplicate transaction id", "transaction_id", tx.ID)
				return errors.ErrDuplicateTransaction
			}
		}
		r.logger.Error("Failed to open journal entry",
			"transaction_id", tx.ID,
			"account_id", tx.AccountID,
			"merchant_id", tx.MerchantID,
			"error", err)
		return errors.NewAppError(errors.InternalError, "failed to open journal entry").WithDetails(err.Error())
	}

	tx.Status = domain.StatusPending
	tx.CreatedAt = now
	r.logger.Info("Journal entry opened", "transaction_id", tx.ID, "amount", tx.Amount)
	return nil
}

func (r *journalRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.Transaction, error) {
	query := `
		SELECT id, account_id, merchant_id, amount, status, void_reason, created_at, committed_at
		FROM transactions WHERE id = $1
	`

	return r.scanTransaction(r.db.QueryRowContext(ctx, query, id))
}

func (r *journalRepository) GetByIDForUpdate(ctx context.Context, id uuid.UUID) (*domain.Transaction, error) {
	query := `
		SELECT id, account_id, merchant_id, amount, status, void_reason, created_at, committed_at
		FROM transactions WHERE id = $1 FOR UPDATE
	`

	return r.scanTransaction(r.db.QueryRowContext(ctx, query, id))
}

func (r *journalRepository) scanTransaction(row *sql.Row) (*domain.Transaction, error) {
	var tx domain.Transaction
	var amountStr string
	var voidReason sql.NullString
	var committedAt sql.NullTime

	err := row.Scan(
		&tx.ID,
		&tx.AccountID,
		&tx.MerchantID,
		&amountStr,
		&tx.Status,
		&voidReason,
		&tx.CreatedAt,
		&committedAt,
	)

	if err != nil {
		if err == sql.ErrNoRows {
			return nil, errors.ErrTransactionNotFound
		}
		r.logger.Error("Failed to get transaction", "error", err)
		return nil, errors.NewAppError(errors.InternalError, "failed to get transaction").WithDetails(err.Error())
	}

	amount, err := decimal.NewFromString(amountStr)
	if err != nil {
		return nil, errors.NewAppError(errors.InternalError, "failed to parse amount").WithDetails(err.Error())
	}
	tx.Amount = amount

	if voidReason.Valid {
		tx.VoidReason = voidReason.String
	}
	if committedAt.Valid {
		t := committedAt.Time
		tx.CommittedAt = &t
	}

	return &tx, nil
}

// MarkCommitted transitions a pending entry to committed. The WHERE clause
// guards the single-transition invariant; zero rows affected means the entry
// already left pending (or never existed) and the current status decides
// which error to report.
func (r *journalRepository) MarkCommitted(ctx context.Context, id uuid.UUID, at time.Time) error {
	query := `
		UPDATE transactions SET status = $1, committed_at = $2
		WHERE id = $3 AND status = $4
	`

	result, err := r.db.ExecContext(ctx, query, domain.StatusCommitted, at, id, domain.StatusPending)
	if err != nil {
		r.logger.Error("Failed to commit journal entry", "transaction_id", id, "error", err)
		return errors.NewAppError(errors.InternalError, "failed to commit journal entry").WithDetails(err.Error())
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return errors.NewAppError(errors.InternalError, "failed to get rows affected").WithDetails(err.Error())
	}

	if rowsAffected == 0 {
		return r.transitionConflict(ctx, id)
	}

	r.logger.Info("Journal entry committed", "transaction_id", id)
	return nil
}

func (r *journalRepository) MarkVoided(ctx context.Context, id uuid.UUID, reason string) error {
	query := `
		UPDATE transactions SET status = $1, void_reason = $2
		WHERE id = $3 AND status = $4
	`

	result, err := r.db.ExecContext(ctx, query, domain.StatusVoided, reason, id, domain.StatusPending)
	if err != nil {
		r.logger.Error("Failed to void journal entry", "transaction_id", id, "error", err)
		return errors.NewAppError(errors.InternalError, "failed to void journal entry").WithDetails(err.Error())
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return errors.NewAppError(errors.InternalError, "failed to get rows affected").WithDetails(err.Error())
	}

	if rowsAffected == 0 {
		return r.transitionConflict(ctx, id)
	}

	r.logger.Info("Journal entry voided", "transaction_id", id, "reason", reason)
	return nil
}

func (r *journalRepository) transitionConflict(ctx context.Context, id uuid.UUID) error {
	existing, err := r.GetByID(ctx, id)
	if err != nil {
		return err
	}
	switch existing.Status {
	case domain.StatusCommitted:
		return errors.ErrAlreadyCommitted
	case domain.StatusVoided:
		return errors.ErrAlreadyVoided
	default:
		return errors.ErrConflict
	}
}

func (r *journalRepository) HistoryForAccount(ctx context.Context, accountID uuid.UUID, limit, offset int) ([]*domain.Transaction, error) {
	query := `
		SELECT id, account_id, merchant_id, amount, status, void_reason, created_at, committed_at
		FROM transactions
		WHERE account_id = $1
		ORDER BY created_at DESC, id
		LIMIT $2 OFFSET $3
	`

	return r.queryTransactions(ctx, query, accountID, limit, offset)
}

func (r *journalRepository) HistoryForMerchant(ctx context.Context, merchantID uuid.UUID, limit, offset int) ([]*domain.Transaction, error) {
	query := `
		SELECT id, account_id, merchant_id, amount, status, void_reason, created_at, committed_at
		FROM transactions
		WHERE merchant_id = $1
		ORDER BY created_at DESC, id
		LIMIT $2 OFFSET $3
	`

	return r.queryTransactions(ctx, query, merchantID, limit, offset)
}

func (r *journalRepository) RecentCommittedForMerchant(ctx context.Context, merchantID uuid.UUID, n int) ([]*domain.Transaction, error) {
	query := `
		SELECT id, account_id, merchant_id, amount, status, void_reason, created_at, committed_at
		FROM transactions
		WHERE merchant_id = $1 AND status = $2
		ORDER BY committed_at DESC, id
		LIMIT $3
	`

	return r.queryTransactions(ctx, query, merchantID, domain.StatusCommitted, n)
}

func (r *journalRepository) queryTransactions(ctx context.Context, query string, args ...interface{}) ([]*domain.Transaction, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		r.logger.Error("Failed to query transactions", "error", err)
		return nil, errors.NewAppError(errors.InternalError, "failed to query transactions").WithDetails(err.Error())
	}
	defer rows.Close()

	var transactions []*domain.Transaction
	for rows.Next() {
		var tx domain.Transaction
		var amountStr string
		var voidReason sql.NullString
		var committedAt sql.NullTime

		if err := rows.Scan(
			&tx.ID,
			&tx.AccountID,
			&tx.MerchantID,
			&amountStr,
			&tx.Status,
			&voidReason,
			&tx.CreatedAt,
			&committedAt,
		); err != nil {
			return nil, errors.NewAppError(errors.InternalError, "failed to scan transaction").WithDetails(err.Error())
		}

		amount, err := decimal.NewFromString(amountStr)
		if err != nil {
			return nil, errors.NewAppError(errors.InternalError, "failed to parse amount").WithDetails(err.Error())
		}
		tx.Amount = amount

		if voidReason.Valid {
			tx.VoidReason = voidReason.String
		}
		if committedAt.Valid {
			t := committedAt.Time
			tx.CommittedAt = &t
		}

		transactions = append(transactions, &tx)
	}

	if err := rows.Err(); err != nil {
		return nil, errors.NewAppError(errors.InternalError, "failed to iterate transactions").WithDetails(err.Error())
	}

	return transactions, nil
}

func (r *journalRepository) SumCommittedForMerchant(ctx context.Context, merchantID uuid.UUID) (decimal.Decimal, error) {
	query := `
		SELECT COALESCE(SUM(amount), 0) FROM transactions
		WHERE merchant_id = $1 AND status = $2
	`

	return r.sum(ctx, query, merchantID)
}

func (r *journalRepository) SumCommittedForAccount(ctx context.Context, accountID uuid.UUID) (decimal.Decimal, error) {
	query := `
		SELECT COALESCE(SUM(amount), 0) FROM transactions
		WHERE account_id = $1 AND status = $2
	`

	return r.sum(ctx, query, accountID)
}

func (r *journalRepository) sum(ctx context.Context, query string, id uuid.UUID) (decimal.Decimal, error) {
	var sumStr string
	err := r.db.QueryRowContext(ctx, query, id, domain.StatusCommitted).Scan(&sumStr)
	if err != nil {
		r.logger.Error("Failed to sum transactions", "id", id, "error", err)
		return decimal.Zero, errors.NewAppError(errors.InternalError, "failed to sum transactions").WithDetails(err.Error())
	}

	sum, err := decimal.NewFromString(sumStr)
	if err != nil {
		return decimal.Zero, errors.NewAppError(errors.InternalError, "failed to parse sum").WithDetails(err.Error())
	}

	return sum, nil
}

func (r *journalRepository) VoidExpiredPending(ctx context.Context, olderThan time.Duration, reason string) (int64, error) {
	query := `
		UPDATE transactions SET status = $1, void_reason = $2
		WHERE status = $3 AND created_at < $4
	`

	cutoff := time.Now().Add(-olderThan)
	result, err := r.db.ExecContext(ctx, query, domain.StatusVoided, reason, domain.StatusPending, cutoff)
	if err != nil {
		r.logger.Error("Failed to void expired pending entries", "error", err)
		return 0, errors.NewAppError(errors.InternalError, "failed to void expired pending entries").WithDetails(err.Error())
	}

	voided, err := result.RowsAffected()
	if err != nil {
		return 0, errors.NewAppError(errors.InternalError, "failed to get rows affected").WithDetails(err.Error())
	}

	if voided > 0 {
		r.logger.Warn("Voided expired pending entries", "count", voided, "cutoff", cutoff)
	}
	return voided, nil
}
