package repository

import (
	"context"
	"database/sql"
	"log/slog"

	"giftcard-ledger/internal/domain"
	"giftcard-ledger/internal/errors"
)

// Store provides a unified interface for all repository operations with
// transaction support. It is the only component that touches the underlying
// storage; everything else goes through the domain repository contracts.
type Store struct {
	executor SQLExecutor
	logger   *slog.Logger
}

var _ domain.Ledger = (*Store)(nil)

// NewStore creates a new Store instance
func NewStore(db *sql.DB, logger *slog.Logger) *Store {
	return &Store{
		executor: db,
		logger:   logger,
	}
}

// Accounts returns an AccountRepository using the current executor
func (s *Store) Accounts() domain.AccountRepository {
	return NewAccountRepository(s.executor, s.logger)
}

// Merchants returns a MerchantRepository using the current executor
func (s *Store) Merchants() domain.MerchantRepository {
	return NewMerchantRepository(s.executor, s.logger)
}

// Journal returns a JournalRepository using the current executor
func (s *Store) Journal() domain.JournalRepository {
	return NewJournalRepository(s.executor, s.logger)
}

// WithTransaction executes a function within a database transaction
func (s *Store) WithTransaction(ctx context.Context, fn func(domain.Ledger) error) error {
	// Only sql.DB can begin transactions
	db, ok := s.executor.(*sql.DB)
	if !ok {
		return errors.ErrCannotBeginTransaction
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}

	txStore := &Store{
		executor: &TxWrapper{Tx: tx},
		logger:   s.logger,
	}

	defer func() {
		if p := recover(); p != nil {
			tx.Rollback()
			panic(p)
		}
	}()

	if err := fn(txStore); err != nil {
		tx.Rollback()
		return err
	}

	return tx.Commit()
}
