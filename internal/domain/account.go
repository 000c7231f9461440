package domain

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Account holds a customer's spendable gift-card balance. The balance is a
// materialized projection of the journal: initial funding minus the sum of
// committed debits. It is never mutated except through a committed charge.
type Account struct {
	ID           uuid.UUID       `json:"account_id"`
	Balance      decimal.Decimal `json:"balance"`
	DisplayName  string          `json:"display_name"`
	ContactEmail string          `json:"contact_email"`
	CreatedAt    time.Time       `json:"created_at"`
	UpdatedAt    time.Time       `json:"updated_at"`
}

type AccountRepository interface {
	CreateAccount(ctx context.Context, account *Account) error
	GetAccount(ctx context.Context, id uuid.UUID) (*Account, error)
	GetAccountForUpdate(ctx context.Context, id uuid.UUID) (*Account, error)
	// DebitBalance decrements the balance by amount, failing when the
	// account is missing or the balance would go negative. The check and
	// the decrement are a single atomic operation.
	DebitBalance(ctx context.Context, id uuid.UUID, amount decimal.Decimal) (decimal.Decimal, error)
}
