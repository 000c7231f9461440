package identity

import (
	"context"
	"log/slog"
	"strings"

	"github.com/google/uuid"

	"giftcard-ledger/internal/domain"
	"giftcard-ledger/internal/errors"
)

// Scheme is the QR payload prefix the resolver accepts besides a bare id.
const Scheme = "giftcard"

// AccountLookup is the read-only slice of the balance store the resolver
// needs to confirm an id exists. Resolution never creates accounts.
type AccountLookup interface {
	GetAccount(ctx context.Context, id uuid.UUID) (*domain.Account, error)
}

type Resolver struct {
	accounts AccountLookup
	logger   *slog.Logger
}

func NewResolver(accounts AccountLookup, logger *slog.Logger) *Resolver {
	return &Resolver{
		accounts: accounts,
		logger:   logger,
	}
}

// Resolve maps a scanned QR payload to a canonical account id. Accepted
// shapes are a bare UUID and "giftcard:<uuid>" (scheme case-insensitive).
// A payload that does not parse is malformed; a well-formed id with no
// matching account is not found. The two are distinct so the operator can
// be told to re-scan versus to check the card.
func (r *Resolver) Resolve(ctx context.Context, payload string) (uuid.UUID, error) {
	id, err := parsePayload(payload)
	if err != nil {
		r.logger.Warn("Rejected scanned payload", "error", err)
		return uuid.Nil, err
	}

	if _, err := r.accounts.GetAccount(ctx, id); err != nil {
		return uuid.Nil, err
	}

	return id, nil
}

func parsePayload(payload string) (uuid.UUID, error) {
	trimmed := strings.TrimSpace(payload)
	if trimmed == "" {
		return uuid.Nil, errors.ErrMalformedPayload.WithDetails("empty payload")
	}

	if scheme, rest, ok := strings.Cut(trimmed, ":"); ok {
		if !strings.EqualFold(scheme, Scheme) {
			return uuid.Nil, errors.ErrMalformedPayload.WithDetails("unknown scheme: " + scheme)
		}
		trimmed = rest
	}

	id, err := uuid.Parse(trimmed)
	if err != nil {
		return uuid.Nil, errors.ErrMalformedPayload.WithDetails(err.Error())
	}

	return id, nil
}
