package identity

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"giftcard-ledger/internal/domain"
	apperrors "giftcard-ledger/internal/errors"
)

type stubLookup struct {
	known map[uuid.UUID]bool
}

func (s *stubLookup) GetAccount(_ context.Context, id uuid.UUID) (*domain.Account, error) {
	if s.known[id] {
		return &domain.Account{ID: id}, nil
	}
	return nil, apperrors.ErrAccountNotFound
}

func newTestResolver(known ...uuid.UUID) *Resolver {
	lookup := &stubLookup{known: make(map[uuid.UUID]bool)}
	for _, id := range known {
		lookup.known[id] = true
	}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewResolver(lookup, logger)
}

func TestResolveAcceptedPayloadShapes(t *testing.T) {
	accountID := uuid.New()
	resolver := newTestResolver(accountID)

	tests := []struct {
		name    string
		payload string
	}{
		{"bare id", accountID.String()},
		{"prefixed", "giftcard:" + accountID.String()},
		{"prefixed uppercase scheme", "GIFTCARD:" + accountID.String()},
		{"surrounding whitespace", "  " + accountID.String() + "\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resolved, err := resolver.Resolve(context.Background(), tt.payload)
			require.NoError(t, err)
			assert.Equal(t, accountID, resolved)
		})
	}
}

func TestResolveMalformedPayloads(t *testing.T) {
	resolver := newTestResolver()

	tests := []struct {
		name    string
		payload string
	}{
		{"garbage", "garbage"},
		{"empty", ""},
		{"blank", "   "},
		{"unknown scheme", "loyalty:" + uuid.New().String()},
		{"scheme without id", "giftcard:"},
		{"truncated uuid", "giftcard:1234-not-a-uuid"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := resolver.Resolve(context.Background(), tt.payload)
			require.Error(t, err)

			appErr, ok := err.(*apperrors.AppError)
			require.True(t, ok, "expected an AppError, got %T", err)
			assert.Equal(t, apperrors.MalformedPayload, appErr.Code)
		})
	}
}

func TestResolveUnknownAccountIsNotFoundNotMalformed(t *testing.T) {
	resolver := newTestResolver()

	_, err := resolver.Resolve(context.Background(), uuid.New().String())
	require.Error(t, err)

	appErr, ok := err.(*apperrors.AppError)
	require.True(t, ok)
	assert.Equal(t, apperrors.AccountNotFound, appErr.Code)
}

func TestResolveNeverCreatesAccounts(t *testing.T) {
	lookup := &stubLookup{known: make(map[uuid.UUID]bool)}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	resolver := NewResolver(lookup, logger)

	_, err := resolver.Resolve(context.Background(), uuid.New().String())
	require.Error(t, err)
	assert.Empty(t, lookup.known)
}
