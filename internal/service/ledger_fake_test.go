package service

import (
	"context"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"

	"giftcard-ledger/internal/domain"
	apperrors "giftcard-ledger/internal/errors"
)

// fakeLedger is an in-memory domain.Ledger for driving the services without
// a database. A single mutex stands in for the row locks: WithTransaction
// holds it for the whole closure, which matches the serialization the SQL
// store provides per account.
type fakeLedger struct {
	mu     *sync.Mutex
	locked bool

	accounts  map[uuid.UUID]*domain.Account
	merchants map[uuid.UUID]*domain.Merchant
	journal   map[uuid.UUID]*domain.Transaction
}

func newFakeLedger() *fakeLedger {
	return &fakeLedger{
		mu:        &sync.Mutex{},
		accounts:  make(map[uuid.UUID]*domain.Account),
		merchants: make(map[uuid.UUID]*domain.Merchant),
		journal:   make(map[uuid.UUID]*domain.Transaction),
	}
}

func (f *fakeLedger) acquire() func() {
	if f.locked {
		return func() {}
	}
	f.mu.Lock()
	return f.mu.Unlock
}

func (f *fakeLedger) Accounts() domain.AccountRepository   { return &fakeAccounts{f} }
func (f *fakeLedger) Merchants() domain.MerchantRepository { return &fakeMerchants{f} }
func (f *fakeLedger) Journal() domain.JournalRepository    { return &fakeJournal{f} }

func (f *fakeLedger) WithTransaction(_ context.Context, fn func(domain.Ledger) error) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	tx := &fakeLedger{
		mu:        f.mu,
		locked:    true,
		accounts:  f.accounts,
		merchants: f.merchants,
		journal:   f.journal,
	}
	return fn(tx)
}

type fakeAccounts struct{ l *fakeLedger }

func (r *fakeAccounts) CreateAccount(_ context.Context, account *domain.Account) error {
	defer r.l.acquire()()
	if _, exists := r.l.accounts[account.ID]; exists {
		return apperrors.ErrDuplicateAccount
	}
	now := time.Now()
	account.CreatedAt = now
	account.UpdatedAt = now
	copied := *account
	r.l.accounts[account.ID] = &copied
	return nil
}

func (r *fakeAccounts) GetAccount(_ context.Context, id uuid.UUID) (*domain.Account, error) {
	defer r.l.acquire()()
	account, ok := r.l.accounts[id]
	if !ok {
		return nil, apperrors.ErrAccountNotFound
	}
	copied := *account
	return &copied, nil
}

func (r *fakeAccounts) GetAccountForUpdate(ctx context.Context, id uuid.UUID) (*domain.Account, error) {
	return r.GetAccount(ctx, id)
}

func (r *fakeAccounts) DebitBalance(_ context.Context, id uuid.UUID, amount decimal.Decimal) (decimal.Decimal, error) {
	defer r.l.acquire()()
	account, ok := r.l.accounts[id]
	if !ok {
		return decimal.Zero, apperrors.ErrAccountNotFound
	}
	if account.Balance.LessThan(amount) {
		return decimal.Zero, apperrors.ErrInsufficientFunds
	}
	account.Balance = account.Balance.Sub(amount)
	account.UpdatedAt = time.Now()
	return account.Balance, nil
}

type fakeMerchants struct{ l *fakeLedger }

func (r *fakeMerchants) CreateMerchant(_ context.Context, merchant *domain.Merchant) error {
	defer r.l.acquire()()
	if _, exists := r.l.merchants[merchant.ID]; exists {
		return apperrors.ErrDuplicateMerchant
	}
	copied := *merchant
	r.l.merchants[merchant.ID] = &copied
	return nil
}

func (r *fakeMerchants) GetMerchant(_ context.Context, id uuid.UUID) (*domain.Merchant, error) {
	defer r.l.acquire()()
	merchant, ok := r.l.merchants[id]
	if !ok {
		return nil, apperrors.ErrMerchantNotFound
	}
	copied := *merchant
	return &copied, nil
}

func (r *fakeMerchants) AddAccrued(_ context.Context, id uuid.UUID, amount decimal.Decimal) (decimal.Decimal, error) {
	defer r.l.acquire()()
	merchant, ok := r.l.merchants[id]
	if !ok {
		return decimal.Zero, apperrors.ErrMerchantNotFound
	}
	merchant.AccruedTotal = merchant.AccruedTotal.Add(amount)
	return merchant.AccruedTotal, nil
}

func (r *fakeMerchants) SetAccrued(_ context.Context, id uuid.UUID, total decimal.Decimal) error {
	defer r.l.acquire()()
	merchant, ok := r.l.merchants[id]
	if !ok {
		return apperrors.ErrMerchantNotFound
	}
	merchant.AccruedTotal = total
	return nil
}

type fakeJournal struct{ l *fakeLedger }

func (r *fakeJournal) Open(_ context.Context, tx *domain.Transaction) error {
	defer r.l.acquire()()
	if _, exists := r.l.journal[tx.ID]; exists {
		return apperrors.ErrDuplicateTransaction
	}
	tx.Status = domain.StatusPending
	if tx.CreatedAt.IsZero() {
		tx.CreatedAt = time.Now()
	}
	copied := *tx
	r.l.journal[tx.ID] = &copied
	return nil
}

func (r *fakeJournal) GetByID(_ context.Context, id uuid.UUID) (*domain.Transaction, error) {
	defer r.l.acquire()()
	tx, ok := r.l.journal[id]
	if !ok {
		return nil, apperrors.ErrTransactionNotFound
	}
	copied := *tx
	return &copied, nil
}

func (r *fakeJournal) GetByIDForUpdate(ctx context.Context, id uuid.UUID) (*domain.Transaction, error) {
	return r.GetByID(ctx, id)
}

func (r *fakeJournal) MarkCommitted(_ context.Context, id uuid.UUID, at time.Time) error {
	defer r.l.acquire()()
	tx, ok := r.l.journal[id]
	if !ok {
		return apperrors.ErrTransactionNotFound
	}
	switch tx.Status {
	case domain.StatusCommitted:
		return apperrors.ErrAlreadyCommitted
	case domain.StatusVoided:
		return apperrors.ErrAlreadyVoided
	}
	tx.Status = domain.StatusCommitted
	committedAt := at
	tx.CommittedAt = &committedAt
	return nil
}

func (r *fakeJournal) MarkVoided(_ context.Context, id uuid.UUID, reason string) error {
	defer r.l.acquire()()
	tx, ok := r.l.journal[id]
	if !ok {
		return apperrors.ErrTransactionNotFound
	}
	switch tx.Status {
	case domain.StatusCommitted:
		return apperrors.ErrAlreadyCommitted
	case domain.StatusVoided:
		return apperrors.ErrAlreadyVoided
	}
	tx.Status = domain.StatusVoided
	tx.VoidReason = reason
	return nil
}

func (r *fakeJournal) HistoryForAccount(_ context.Context, accountID uuid.UUID, limit, offset int) ([]*domain.Transaction, error) {
	defer r.l.acquire()()
	return r.page(func(tx *domain.Transaction) bool { return tx.AccountID == accountID }, limit, offset), nil
}

func (r *fakeJournal) HistoryForMerchant(_ context.Context, merchantID uuid.UUID, limit, offset int) ([]*domain.Transaction, error) {
	defer r.l.acquire()()
	return r.page(func(tx *domain.Transaction) bool { return tx.MerchantID == merchantID }, limit, offset), nil
}

func (r *fakeJournal) RecentCommittedForMerchant(_ context.Context, merchantID uuid.UUID, n int) ([]*domain.Transaction, error) {
	defer r.l.acquire()()
	var matched []*domain.Transaction
	for _, tx := range r.l.journal {
		if tx.MerchantID == merchantID && tx.Status == domain.StatusCommitted {
			copied := *tx
			matched = append(matched, &copied)
		}
	}
	sort.Slice(matched, func(i, j int) bool {
		return matched[i].CommittedAt.After(*matched[j].CommittedAt)
	})
	if len(matched) > n {
		matched = matched[:n]
	}
	return matched, nil
}

func (r *fakeJournal) page(match func(*domain.Transaction) bool, limit, offset int) []*domain.Transaction {
	var matched []*domain.Transaction
	for _, tx := range r.l.journal {
		if match(tx) {
			copied := *tx
			matched = append(matched, &copied)
		}
	}
	sort.Slice(matched, func(i, j int) bool {
		return matched[i].CreatedAt.After(matched[j].CreatedAt)
	})
	if offset >= len(matched) {
		return nil
	}
	matched = matched[offset:]
	if len(matched) > limit {
		matched = matched[:limit]
	}
	return matched
}

func (r *fakeJournal) SumCommittedForMerchant(_ context.Context, merchantID uuid.UUID) (decimal.Decimal, error) {
	defer r.l.acquire()()
	sum := decimal.Zero
	for _, tx := range r.l.journal {
		if tx.MerchantID == merchantID && tx.Status == domain.StatusCommitted {
			sum = sum.Add(tx.Amount)
		}
	}
	return sum, nil
}

func (r *fakeJournal) SumCommittedForAccount(_ context.Context, accountID uuid.UUID) (decimal.Decimal, error) {
	defer r.l.acquire()()
	sum := decimal.Zero
	for _, tx := range r.l.journal {
		if tx.AccountID == accountID && tx.Status == domain.StatusCommitted {
			sum = sum.Add(tx.Amount)
		}
	}
	return sum, nil
}

func (r *fakeJournal) VoidExpiredPending(_ context.Context, olderThan time.Duration, reason string) (int64, error) {
	defer r.l.acquire()()
	cutoff := time.Now().Add(-olderThan)
	var voided int64
	for _, tx := range r.l.journal {
		if tx.Status == domain.StatusPending && tx.CreatedAt.Before(cutoff) {
			tx.Status = domain.StatusVoided
			tx.VoidReason = reason
			voided++
		}
	}
	return voided, nil
}

// Test helpers shared by the service tests.

func seedAccount(t *testing.T, ledger *fakeLedger, balance string) uuid.UUID {
	t.Helper()
	account := &domain.Account{
		ID:      uuid.New(),
		Balance: decimal.RequireFromString(balance),
	}
	if err := ledger.Accounts().CreateAccount(context.Background(), account); err != nil {
		t.Fatalf("seed account: %v", err)
	}
	return account.ID
}

func seedMerchant(t *testing.T, ledger *fakeLedger, name string) uuid.UUID {
	t.Helper()
	merchant := &domain.Merchant{
		ID:           uuid.New(),
		Name:         name,
		AccruedTotal: decimal.Zero,
	}
	if err := ledger.Merchants().CreateMerchant(context.Background(), merchant); err != nil {
		t.Fatalf("seed merchant: %v", err)
	}
	return merchant.ID
}

func assertDecimalEqual(t *testing.T, expected string, actual decimal.Decimal) {
	t.Helper()
	expectedDec := decimal.RequireFromString(expected)
	assert.True(t, expectedDec.Equal(actual),
		"decimal values not equal: expected %s, got %s", expected, actual)
}
