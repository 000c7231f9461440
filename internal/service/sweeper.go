package service

import (
	"context"
	"log/slog"
	"time"

	"giftcard-ledger/internal/domain"
)

const sweepVoidReason = "expired pending entry"

// Sweeper is the crash-recovery loop: any journal entry still pending after
// the timeout is voided, so an abandoned or crashed charge never leaves an
// orphan. Debits and commits share one database transaction, so a pending
// entry never has an applied debit and voiding alone restores consistency.
type Sweeper struct {
	ledger         domain.Ledger
	pendingTimeout time.Duration
	interval       time.Duration
	logger         *slog.Logger
}

func NewSweeper(ledger domain.Ledger, pendingTimeout, interval time.Duration, logger *slog.Logger) *Sweeper {
	return &Sweeper{
		ledger:         ledger,
		pendingTimeout: pendingTimeout,
		interval:       interval,
		logger:         logger,
	}
}

// Run blocks until ctx is cancelled, sweeping once immediately and then on
// every tick. Intended to be started as a goroutine alongside the server.
func (s *Sweeper) Run(ctx context.Context) {
	s.logger.Info("Recovery sweep started",
		"pending_timeout", s.pendingTimeout,
		"interval", s.interval)

	s.sweep(ctx)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("Recovery sweep stopped")
			return
		case <-ticker.C:
			s.sweep(ctx)
		}
	}
}

func (s *Sweeper) sweep(ctx context.Context) {
	voided, err := s.ledger.Journal().VoidExpiredPending(ctx, s.pendingTimeout, sweepVoidReason)
	if err != nil {
		s.logger.Error("Recovery sweep failed", "error", err)
		return
	}
	if voided > 0 {
		s.logger.Warn("Recovery sweep voided stale entries", "count", voided)
	}
}
