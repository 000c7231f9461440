package service

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"giftcard-ledger/internal/domain"
	apperrors "giftcard-ledger/internal/errors"
)

func newTestAccrualService(ledger *fakeLedger) (*AccrualService, *MemoryAccrualCache) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	cache := NewMemoryAccrualCache()
	return NewAccrualService(ledger, cache, logger), cache
}

func seedCommitted(t *testing.T, ledger *fakeLedger, accountID, merchantID uuid.UUID, amount string, committedAt time.Time) uuid.UUID {
	t.Helper()
	ctx := context.Background()
	tx := &domain.Transaction{
		ID:         uuid.New(),
		AccountID:  accountID,
		MerchantID: merchantID,
		Amount:     decimal.RequireFromString(amount),
		CreatedAt:  committedAt.Add(-time.Minute),
	}
	require.NoError(t, ledger.Journal().Open(ctx, tx))
	require.NoError(t, ledger.Journal().MarkCommitted(ctx, tx.ID, committedAt))
	return tx.ID
}

func TestAccruedTotalDerivedFromJournal(t *testing.T) {
	ledger := newFakeLedger()
	accountID := seedAccount(t, ledger, "100.00")
	merchantID := seedMerchant(t, ledger, "bakery")
	svc, _ := newTestAccrualService(ledger)
	ctx := context.Background()

	now := time.Now()
	seedCommitted(t, ledger, accountID, merchantID, "12.50", now.Add(-2*time.Hour))
	seedCommitted(t, ledger, accountID, merchantID, "7.25", now.Add(-time.Hour))

	// A voided entry must not count.
	voided := &domain.Transaction{
		ID:         uuid.New(),
		AccountID:  accountID,
		MerchantID: merchantID,
		Amount:     decimal.RequireFromString("99.00"),
	}
	require.NoError(t, ledger.Journal().Open(ctx, voided))
	require.NoError(t, ledger.Journal().MarkVoided(ctx, voided.ID, "test"))

	total, err := svc.AccruedTotal(ctx, merchantID)
	require.NoError(t, err)
	assertDecimalEqual(t, "19.75", total)
}

func TestAccruedTotalUnknownMerchant(t *testing.T) {
	svc, _ := newTestAccrualService(newFakeLedger())

	_, err := svc.AccruedTotal(context.Background(), uuid.New())
	require.Error(t, err)
	assert.Equal(t, apperrors.MerchantNotFound, err.(*apperrors.AppError).Code)
}

func TestAccruedTotalServedFromCacheUntilInvalidated(t *testing.T) {
	ledger := newFakeLedger()
	accountID := seedAccount(t, ledger, "100.00")
	merchantID := seedMerchant(t, ledger, "bakery")
	svc, cache := newTestAccrualService(ledger)
	ctx := context.Background()

	seedCommitted(t, ledger, accountID, merchantID, "10.00", time.Now())

	total, err := svc.AccruedTotal(ctx, merchantID)
	require.NoError(t, err)
	assertDecimalEqual(t, "10.00", total)

	// New commit lands; the stale cache still answers until invalidated.
	seedCommitted(t, ledger, accountID, merchantID, "5.00", time.Now())
	total, err = svc.AccruedTotal(ctx, merchantID)
	require.NoError(t, err)
	assertDecimalEqual(t, "10.00", total)

	cache.Invalidate(ctx, merchantID)
	total, err = svc.AccruedTotal(ctx, merchantID)
	require.NoError(t, err)
	assertDecimalEqual(t, "15.00", total)
}

func TestRecentMostRecentFirst(t *testing.T) {
	ledger := newFakeLedger()
	accountID := seedAccount(t, ledger, "100.00")
	merchantID := seedMerchant(t, ledger, "bakery")
	svc, _ := newTestAccrualService(ledger)
	ctx := context.Background()

	now := time.Now()
	oldest := seedCommitted(t, ledger, accountID, merchantID, "1.00", now.Add(-3*time.Hour))
	middle := seedCommitted(t, ledger, accountID, merchantID, "2.00", now.Add(-2*time.Hour))
	newest := seedCommitted(t, ledger, accountID, merchantID, "3.00", now.Add(-time.Hour))

	recent, err := svc.Recent(ctx, merchantID, 2)
	require.NoError(t, err)
	require.Len(t, recent, 2)
	assert.Equal(t, newest, recent[0].ID)
	assert.Equal(t, middle, recent[1].ID)

	recent, err = svc.Recent(ctx, merchantID, 10)
	require.NoError(t, err)
	require.Len(t, recent, 3)
	assert.Equal(t, oldest, recent[2].ID)
}

func TestReconcileRepairsDriftedCache(t *testing.T) {
	ledger := newFakeLedger()
	accountID := seedAccount(t, ledger, "100.00")
	merchantID := seedMerchant(t, ledger, "bakery")
	svc, _ := newTestAccrualService(ledger)
	ctx := context.Background()

	seedCommitted(t, ledger, accountID, merchantID, "30.00", time.Now())

	// Corrupt the cached column; the journal stays authoritative.
	require.NoError(t, ledger.Merchants().SetAccrued(ctx, merchantID, decimal.RequireFromString("999.99")))

	result, err := svc.Reconcile(ctx, merchantID)
	require.NoError(t, err)
	assert.True(t, result.Drifted)
	assert.True(t, result.Repaired)
	assertDecimalEqual(t, "999.99", result.CachedTotal)
	assertDecimalEqual(t, "30.00", result.JournalTotal)

	merchant, err := ledger.Merchants().GetMerchant(ctx, merchantID)
	require.NoError(t, err)
	assertDecimalEqual(t, "30.00", merchant.AccruedTotal)
}

func TestReconcileCleanCache(t *testing.T) {
	ledger := newFakeLedger()
	accountID := seedAccount(t, ledger, "100.00")
	merchantID := seedMerchant(t, ledger, "bakery")
	svc, _ := newTestAccrualService(ledger)
	ctx := context.Background()

	seedCommitted(t, ledger, accountID, merchantID, "30.00", time.Now())
	_, err := ledger.Merchants().AddAccrued(ctx, merchantID, decimal.RequireFromString("30.00"))
	require.NoError(t, err)

	result, err := svc.Reconcile(ctx, merchantID)
	require.NoError(t, err)
	assert.False(t, result.Drifted)
	assert.False(t, result.Repaired)
}

func TestMemoryCacheExpiry(t *testing.T) {
	cache := NewMemoryAccrualCache()
	ctx := context.Background()
	merchantID := uuid.New()

	_, ok := cache.GetTotal(ctx, merchantID)
	assert.False(t, ok)

	cache.SetTotal(ctx, merchantID, decimal.RequireFromString("42.00"))
	total, ok := cache.GetTotal(ctx, merchantID)
	require.True(t, ok)
	assertDecimalEqual(t, "42.00", total)

	cache.Invalidate(ctx, merchantID)
	_, ok = cache.GetTotal(ctx, merchantID)
	assert.False(t, ok)
}
