package domain

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Merchant is a participating shop. AccruedTotal is a cache kept in step with
// the journal inside the same database transaction that commits a charge; the
// authoritative value is always the sum over committed journal entries.
type Merchant struct {
	ID           uuid.UUID       `json:"merchant_id"`
	Name         string          `json:"name"`
	AccruedTotal decimal.Decimal `json:"accrued_total"`
	CreatedAt    time.Time       `json:"created_at"`
	UpdatedAt    time.Time       `json:"updated_at"`
}

type MerchantRepository interface {
	CreateMerchant(ctx context.Context, merchant *Merchant) error
	GetMerchant(ctx context.Context, id uuid.UUID) (*Merchant, error)
	// AddAccrued increments the cached accrued total and returns the new value.
	AddAccrued(ctx context.Context, id uuid.UUID, amount decimal.Decimal) (decimal.Decimal, error)
	// SetAccrued overwrites the cached total, used by reconciliation only.
	SetAccrued(ctx context.Context, id uuid.UUID, total decimal.Decimal) error
}
