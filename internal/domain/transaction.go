package domain

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type TransactionStatus string

const (
	StatusPending   TransactionStatus = "pending"
	StatusCommitted TransactionStatus = "committed"
	StatusVoided    TransactionStatus = "voided"
)

// Transaction is an immutable journal entry. Its only permitted mutation is
// the single status transition pending -> committed or pending -> voided.
type Transaction struct {
	ID          uuid.UUID         `json:"transaction_id"`
	AccountID   uuid.UUID         `json:"account_id"`
	MerchantID  uuid.UUID         `json:"merchant_id"`
	Amount      decimal.Decimal   `json:"amount"`
	Status      TransactionStatus `json:"status"`
	VoidReason  string            `json:"void_reason,omitempty"`
	CreatedAt   time.Time         `json:"created_at"`
	CommittedAt *time.Time        `json:"committed_at,omitempty"`
}

type JournalRepository interface {
	// Open appends a new pending entry. The caller supplies the id, which
	// doubles as the debit idempotency key.
	Open(ctx context.Context, tx *Transaction) error
	GetByID(ctx context.Context, id uuid.UUID) (*Transaction, error)
	GetByIDForUpdate(ctx context.Context, id uuid.UUID) (*Transaction, error)
	MarkCommitted(ctx context.Context, id uuid.UUID, at time.Time) error
	MarkVoided(ctx context.Context, id uuid.UUID, reason string) error
	HistoryForAccount(ctx context.Context, accountID uuid.UUID, limit, offset int) ([]*Transaction, error)
	HistoryForMerchant(ctx context.Context, merchantID uuid.UUID, limit, offset int) ([]*Transaction, error)
	RecentCommittedForMerchant(ctx context.Context, merchantID uuid.UUID, n int) ([]*Transaction, error)
	SumCommittedForMerchant(ctx context.Context, merchantID uuid.UUID) (decimal.Decimal, error)
	SumCommittedForAccount(ctx context.Context, accountID uuid.UUID) (decimal.Decimal, error)
	// VoidExpiredPending voids every pending entry older than the cutoff and
	// returns how many were voided. Used by the recovery sweep.
	VoidExpiredPending(ctx context.Context, olderThan time.Duration, reason string) (int64, error)
}

// Ledger is the unit of work over the balance store and the journal.
// WithTransaction runs fn against repositories bound to a single database
// transaction, so a debit and its journal commit are durable together or
// not at all.
type Ledger interface {
	Accounts() AccountRepository
	Merchants() MerchantRepository
	Journal() JournalRepository
	WithTransaction(ctx context.Context, fn func(Ledger) error) error
}
