package service

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "giftcard-ledger/internal/errors"
)

func newTestAccountService(ledger *fakeLedger) *AccountService {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewAccountService(ledger, logger)
}

func TestCreateAccountValidation(t *testing.T) {
	svc := newTestAccountService(newFakeLedger())
	ctx := context.Background()

	_, err := svc.CreateAccount(ctx, "ana", "ana@example.com", decimal.RequireFromString("-1"))
	require.Error(t, err)
	assert.Equal(t, apperrors.InvalidAmount, err.(*apperrors.AppError).Code)

	_, err = svc.CreateAccount(ctx, "ana", "ana@example.com", decimal.RequireFromString("2000000"))
	require.Error(t, err)

	account, err := svc.CreateAccount(ctx, "ana", "ana@example.com", decimal.RequireFromString("50.00"))
	require.NoError(t, err)
	assertDecimalEqual(t, "50.00", account.Balance)
	assert.Equal(t, "ana", account.DisplayName)
}

func TestGetAccountInvalidID(t *testing.T) {
	svc := newTestAccountService(newFakeLedger())

	_, err := svc.GetAccount(context.Background(), "not-a-uuid")
	require.Error(t, err)
	assert.Equal(t, apperrors.InvalidInput, err.(*apperrors.AppError).Code)
}

func TestAccountHistoryPaging(t *testing.T) {
	ledger := newFakeLedger()
	svc := newTestAccountService(ledger)
	ctx := context.Background()

	account, err := svc.CreateAccount(ctx, "ana", "ana@example.com", decimal.RequireFromString("100.00"))
	require.NoError(t, err)

	merchantID := seedMerchant(t, ledger, "shop")
	for i := 0; i < 3; i++ {
		seedCommitted(t, ledger, account.ID, merchantID, "1.00", account.CreatedAt.Add(time.Duration(i+1)*time.Minute))
	}

	history, err := svc.History(ctx, account.ID.String(), 2, 0)
	require.NoError(t, err)
	assert.Len(t, history, 2)

	history, err = svc.History(ctx, account.ID.String(), 2, 2)
	require.NoError(t, err)
	assert.Len(t, history, 1)
}
