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

type merchantRepository struct {
	db     SQLExecutor
	logger *slog.Logger
}

func NewMerchantRepository(db SQLExecutor, logger *slog.Logger) domain.MerchantRepository {
	return &merchantRepository{
		db:     db,
		logger: logger,
	}
}

func (r *merchantRepository) CreateMerchant(ctx context.Context, merchant *domain.Merchant) error {
	query := `
		INSERT INTO merchants (id, name, accrued_total, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5)
	`

	now := time.Now()
	_, err := r.db.ExecContext(
		ctx,
		query,
		merchant.ID,
		merchant.Name,
		merchant.AccruedTotal.String(),
		now,
		now,
	)

	if err != nil {
		if pqErr, ok := err.(*pq.Error); ok {
			if pqErr.Code == "23505" { // unique_violation
				r.logger.Warn("Duplicate merchant creation attempt", "merchant_id", merchant.ID)
				return errors.ErrDuplicateMerchant
			}
		}
		r.logger.Error("Failed to create merchant", "merchant_id", merchant.ID, "error", err)
		return errors.NewAppError(errors.InternalError, "failed to create merchant").WithDetails(err.Error())
	}

	merchant.CreatedAt = now
	merchant.UpdatedAt = now
	r.logger.Info("Merchant created successfully", "merchant_id", merchant.ID)
	return nil
}

func (r *merchantRepository) GetMerchant(ctx context.Context, id uuid.UUID) (*domain.Merchant, error) {
	query := `
		SELECT id, name, accrued_total, created_at, updated_at
		FROM merchants WHERE id = $1
	`

	var merchant domain.Merchant
	var accruedStr string

	err := r.db.QueryRowContext(ctx, query, id).Scan(
		&merchant.ID,
		&merchant.Name,
		&accruedStr,
		&merchant.CreatedAt,
		&merchant.UpdatedAt,
	)

	if err != nil {
		if err == sql.ErrNoRows {
			r.logger.Warn("Merchant not found", "merchant_id", id)
			return nil, errors.ErrMerchantNotFound
		}
		r.logger.Error("Failed to get merchant", "merchant_id", id, "error", err)
		return nil, errors.NewAppError(errors.InternalError, "failed to get merchant").WithDetails(err.Error())
	}

	accrued, err := decimal.NewFromString(accruedStr)
	if err != nil {
		return nil, errors.NewAppError(errors.InternalError, "failed to parse accrued total").WithDetails(err.Error())
	}

	merchant.AccruedTotal = accrued
	return &merchant, nil
}

func (r *merchantRepository) AddAccrued(ctx context.Context, id uuid.UUID, amount decimal.Decimal) (decimal.Decimal, error) {
	query := `
		UPDATE merchants
		SET accrued_total = accrued_total + $1, updated_at = $2
		WHERE id = $3
		RETURNING accrued_total
	`

	var totalStr string
	err := r.db.QueryRowContext(ctx, query, amount.String(), time.Now(), id).Scan(&totalStr)
	if err != nil {
		if err == sql.ErrNoRows {
			return decimal.Zero, errors.ErrMerchantNotFound
		}
		r.logger.Error("Failed to update accrued total", "merchant_id", id, "error", err)
		return decimal.Zero, errors.NewAppError(errors.InternalError, "failed to update accrued total").WithDetails(err.Error())
	}

	total, err := decimal.NewFromString(totalStr)
	if err != nil {
		return decimal.Zero, errors.NewAppError(errors.InternalError, "failed to parse accrued total").WithDetails(err.Error())
	}

	return total, nil
}

func (r *merchantRepository) SetAccrued(ctx context.Context, id uuid.UUID, total decimal.Decimal) error {
	query := `UPDATE merchants SET accrued_total = $1, updated_at = $2 WHERE id = $3`

	result, err := r.db.ExecContext(ctx, query, total.String(), time.Now(), id)
	if err != nil {
		r.logger.Error("Failed to set accrued total", "merchant_id", id, "error", err)
		return errors.NewAppError(errors.InternalError, "failed to set accrued total").WithDetails(err.Error())
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return errors.NewAppError(errors.InternalError, "failed to get rows affected").WithDetails(err.Error())
	}

	if rowsAffected == 0 {
		return errors.ErrMerchantNotFound
	}

	r.logger.Info("Accrued total reset", "merchant_id", id, "total", total)
	return nil
}
