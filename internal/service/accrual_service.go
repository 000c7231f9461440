package service

import (
	"context"
	"log/slog"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"giftcard-ledger/internal/domain"
	"giftcard-ledger/internal/errors"
)

// AccrualCache holds derived merchant totals. It is a disposable projection:
// every value in it can be recomputed from the journal, and nothing treats
// it as authoritative.
type AccrualCache interface {
	GetTotal(ctx context.Context, merchantID uuid.UUID) (decimal.Decimal, bool)
	SetTotal(ctx context.Context, merchantID uuid.UUID, total decimal.Decimal)
	Invalidate(ctx context.Context, merchantID uuid.UUID)
}

// AccrualService is the read model over the journal for merchants: how much
// a shop has collected in total and which charges arrived most recently.
type AccrualService struct {
	ledger domain.Ledger
	cache  AccrualCache
	logger *slog.Logger
}

func NewAccrualService(ledger domain.Ledger, cache AccrualCache, logger *slog.Logger) *AccrualService {
	return &AccrualService{
		ledger: ledger,
		cache:  cache,
		logger: logger,
	}
}

func (s *AccrualService) CreateMerchant(ctx context.Context, name string) (*domain.Merchant, error) {
	if name == "" {
		return nil, errors.NewAppError(errors.InvalidInput, "merchant name cannot be empty")
	}

	merchant := &domain.Merchant{
		ID:           uuid.New(),
		Name:         name,
		AccruedTotal: decimal.Zero,
	}

	if err := s.ledger.Merchants().CreateMerchant(ctx, merchant); err != nil {
		return nil, err
	}

	return merchant, nil
}

func (s *AccrualService) GetMerchant(ctx context.Context, merchantID uuid.UUID) (*domain.Merchant, error) {
	return s.ledger.Merchants().GetMerchant(ctx, merchantID)
}

// AccruedTotal returns the sum of committed charges for the merchant,
// computed from the journal. The cache only short-circuits the SUM; it is
// invalidated on every commit and repopulated here.
func (s *AccrualService) AccruedTotal(ctx context.Context, merchantID uuid.UUID) (decimal.Decimal, error) {
	if total, ok := s.cache.GetTotal(ctx, merchantID); ok {
		return total, nil
	}

	if _, err := s.ledger.Merchants().GetMerchant(ctx, merchantID); err != nil {
		return decimal.Zero, err
	}

	total, err := s.ledger.Journal().SumCommittedForMerchant(ctx, merchantID)
	if err != nil {
		return decimal.Zero, err
	}

	s.cache.SetTotal(ctx, merchantID, total)
	return total, nil
}

// Recent returns the merchant's committed charges, most recent first.
func (s *AccrualService) Recent(ctx context.Context, merchantID uuid.UUID, n int) ([]*domain.Transaction, error) {
	if n <= 0 {
		n = 10
	}

	if _, err := s.ledger.Merchants().GetMerchant(ctx, merchantID); err != nil {
		return nil, err
	}

	return s.ledger.Journal().RecentCommittedForMerchant(ctx, merchantID, n)
}

// History pages through every journal entry touching the merchant,
// committed or not.
func (s *AccrualService) History(ctx context.Context, merchantID uuid.UUID, limit, offset int) ([]*domain.Transaction, error) {
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}

	if _, err := s.ledger.Merchants().GetMerchant(ctx, merchantID); err != nil {
		return nil, err
	}

	return s.ledger.Journal().HistoryForMerchant(ctx, merchantID, limit, offset)
}

// ReconcileResult reports a comparison of the cached accrued total against
// the authoritative journal sum.
type ReconcileResult struct {
	MerchantID   uuid.UUID       `json:"merchant_id"`
	CachedTotal  decimal.Decimal `json:"cached_total"`
	JournalTotal decimal.Decimal `json:"journal_total"`
	Drifted      bool            `json:"drifted"`
	Repaired     bool            `json:"repaired"`
}

// Reconcile recomputes the merchant's accrued total from the journal and
// repairs the cached column if it drifted. The journal is always the source
// of truth; the cached value is only ever overwritten, never trusted.
func (s *AccrualService) Reconcile(ctx context.Context, merchantID uuid.UUID) (*ReconcileResult, error) {
	var result *ReconcileResult

	err := s.ledger.WithTransaction(ctx, func(tx domain.Ledger) error {
		merchant, err := tx.Merchants().GetMerchant(ctx, merchantID)
		if err != nil {
			return err
		}

		journalTotal, err := tx.Journal().SumCommittedForMerchant(ctx, merchantID)
		if err != nil {
			return err
		}

		result = &ReconcileResult{
			MerchantID:   merchantID,
			CachedTotal:  merchant.AccruedTotal,
			JournalTotal: journalTotal,
		}

		if !merchant.AccruedTotal.Equal(journalTotal) {
			result.Drifted = true
			if err := tx.Merchants().SetAccrued(ctx, merchantID, journalTotal); err != nil {
				return err
			}
			result.Repaired = true
			s.logger.Warn("Repaired drifted accrued total",
				"merchant_id", merchantID,
				"cached", merchant.AccruedTotal,
				"journal", journalTotal)
		}

		return nil
	})

	if err != nil {
		return nil, err
	}

	s.cache.Invalidate(ctx, merchantID)
	return result, nil
}
