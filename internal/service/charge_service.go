package service

import (
	"context"
	stderrors "errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"giftcard-ledger/internal/domain"
	"giftcard-ledger/internal/errors"
	"giftcard-ledger/internal/identity"
)

// ChargeState is the coordinator's position in the point-of-sale flow.
// AmountEntry is passed through inside OpenCharge (amount validation is the
// gate), so a stored session is always in one of the later states.
type ChargeState string

const (
	StateAmountEntry ChargeState = "amount_entry"
	StateScanning    ChargeState = "scanning"
	StateVerifying   ChargeState = "verifying"
	StateConfirming  ChargeState = "confirming"
	StateCommitted   ChargeState = "committed"
	StateAborted     ChargeState = "aborted"
)

// CommitNotifier receives a fire-and-forget notification after a charge
// commits. Failures must never affect the charge outcome.
type CommitNotifier interface {
	NotifyCommitted(n CommitNotification)
}

type CommitNotification struct {
	TransactionID uuid.UUID       `json:"transaction_id"`
	AccountID     uuid.UUID       `json:"account_id"`
	MerchantID    uuid.UUID       `json:"merchant_id"`
	Amount        decimal.Decimal `json:"amount"`
	CommittedAt   time.Time       `json:"committed_at"`
}

// AccrualInvalidator drops a merchant's cached accrued total after a commit.
type AccrualInvalidator interface {
	Invalidate(ctx context.Context, merchantID uuid.UUID)
}

// ChargeStatus is the coordinator state reported back to the clerk's device.
type ChargeStatus struct {
	TransactionID        uuid.UUID
	State                ChargeState
	Amount               decimal.Decimal
	MerchantID           uuid.UUID
	AccountID            *uuid.UUID
	Balance              *decimal.Decimal
	Shortfall            *decimal.Decimal
	NewBalance           *decimal.Decimal
	MerchantAccruedTotal *decimal.Decimal
	VoidReason           string
}

// chargeSession is one in-flight charge. One clerk drives one charge, so all
// operations on a session serialize on its mutex; concurrency only exists
// across sessions, where the database row locks arbitrate.
type chargeSession struct {
	mu sync.Mutex

	txID       uuid.UUID
	merchantID uuid.UUID
	amount     decimal.Decimal
	state      ChargeState

	accountID uuid.UUID
	balance   decimal.Decimal
	shortfall decimal.Decimal

	// opened is set once a pending journal entry exists for txID and
	// obligates a void on every path that does not commit.
	opened bool

	newBalance decimal.Decimal
	accrued    decimal.Decimal
	voidReason string

	createdAt time.Time
	updatedAt time.Time
}

type ChargeService struct {
	ledger      domain.Ledger
	resolver    *identity.Resolver
	invalidator AccrualInvalidator
	notifier    CommitNotifier
	logger      *slog.Logger

	maxCharge   decimal.Decimal
	callTimeout time.Duration
	retention   time.Duration

	mu       sync.RWMutex
	sessions map[uuid.UUID]*chargeSession
}

func NewChargeService(
	ledger domain.Ledger,
	resolver *identity.Resolver,
	invalidator AccrualInvalidator,
	notifier CommitNotifier,
	maxCharge decimal.Decimal,
	callTimeout time.Duration,
	retention time.Duration,
	logger *slog.Logger,
) *ChargeService {
	return &ChargeService{
		ledger:      ledger,
		resolver:    resolver,
		invalidator: invalidator,
		notifier:    notifier,
		maxCharge:   maxCharge,
		callTimeout: callTimeout,
		retention:   retention,
		logger:      logger,
		sessions:    make(map[uuid.UUID]*chargeSession),
	}
}

// OpenCharge starts a fresh charge: AmountEntry -> Scanning. The transaction
// id minted here identifies the charge for the rest of the flow and later
// serves as the debit idempotency key. Amounts outside (0, MaxCharge] are
// rejected with no session created.
func (s *ChargeService) OpenCharge(ctx context.Context, amount decimal.Decimal, merchantID uuid.UUID) (*ChargeStatus, error) {
	if !amount.IsPositive() {
		return nil, errors.ErrInvalidAmount
	}
	if amount.GreaterThan(s.maxCharge) {
		return nil, errors.NewAppErrorf(errors.ChargeCeilingExceeded,
			"amount %s exceeds the per-transaction ceiling of %s", amount, s.maxCharge)
	}

	callCtx, cancel := s.callContext(ctx)
	defer cancel()
	if _, err := s.ledger.Merchants().GetMerchant(callCtx, merchantID); err != nil {
		return nil, s.mapRemoteError(err)
	}

	now := time.Now()
	session := &chargeSession{
		txID:       uuid.New(),
		merchantID: merchantID,
		amount:     amount,
		state:      StateScanning,
		createdAt:  now,
		updatedAt:  now,
	}

	s.mu.Lock()
	s.pruneLocked(now)
	s.sessions[session.txID] = session
	s.mu.Unlock()

	s.logger.Info("Charge opened",
		"transaction_id", session.txID,
		"merchant_id", merchantID,
		"amount", amount)

	return snapshot(session), nil
}

// Scan drives Scanning -> Verifying -> Confirming. A Malformed or NotFound
// payload leaves the session in Scanning with the amount preserved, so the
// operator can simply re-scan. Entering Confirming opens the pending journal
// entry; from that point every non-commit outcome must void it.
func (s *ChargeService) Scan(ctx context.Context, chargeID uuid.UUID, payload string) (*ChargeStatus, error) {
	session, err := s.session(chargeID)
	if err != nil {
		return nil, err
	}

	session.mu.Lock()
	defer session.mu.Unlock()

	if session.state != StateScanning {
		return nil, errors.NewAppErrorf(errors.InvalidState, "charge is %s, not awaiting a scan", session.state)
	}

	callCtx, cancel := s.callContext(ctx)
	defer cancel()

	accountID, err := s.resolver.Resolve(callCtx, payload)
	if err != nil {
		// Scanning is not a failure state; report and stay put.
		return nil, s.mapRemoteError(err)
	}

	session.state = StateVerifying
	session.accountID = accountID
	session.updatedAt = time.Now()

	account, err := s.ledger.Accounts().GetAccount(callCtx, accountID)
	if err != nil {
		session.state = StateScanning
		session.accountID = uuid.Nil
		return nil, s.mapRemoteError(err)
	}

	session.balance = account.Balance
	if account.Balance.LessThan(session.amount) {
		session.shortfall = session.amount.Sub(account.Balance)
	} else {
		session.shortfall = decimal.Zero
	}

	entry := &domain.Transaction{
		ID:         session.txID,
		AccountID:  accountID,
		MerchantID: session.merchantID,
		Amount:     session.amount,
	}
	if err := s.ledger.Journal().Open(callCtx, entry); err != nil {
		session.state = StateScanning
		session.accountID = uuid.Nil
		return nil, s.mapRemoteError(err)
	}

	session.opened = true
	session.state = StateConfirming
	session.updatedAt = time.Now()

	s.logger.Info("Charge awaiting confirmation",
		"transaction_id", session.txID,
		"account_id", accountID,
		"shortfall", session.shortfall)

	return snapshot(session), nil
}

// Confirm resolves a Confirming charge. confirm=false voids the pending
// entry and aborts. confirm=true runs debit and journal commit inside one
// database transaction; re-confirming an already committed charge replays
// the original result instead of debiting twice.
func (s *ChargeService) Confirm(ctx context.Context, chargeID uuid.UUID, confirm bool) (*ChargeStatus, error) {
	session, err := s.session(chargeID)
	if err != nil {
		return nil, err
	}

	session.mu.Lock()
	defer session.mu.Unlock()

	switch session.state {
	case StateCommitted:
		if confirm {
			// UI double-tap; the charge committed exactly once.
			return snapshot(session), nil
		}
		return nil, errors.ErrAlreadyCommitted
	case StateAborted:
		if !confirm {
			return snapshot(session), nil
		}
		return nil, errors.ErrAlreadyVoided
	case StateConfirming:
	default:
		return nil, errors.NewAppErrorf(errors.InvalidState, "charge is %s, not awaiting confirmation", session.state)
	}

	if !confirm {
		if err := s.voidEntry(ctx, session, "operator abort"); err != nil {
			return nil, err
		}
		session.state = StateAborted
		session.voidReason = "operator abort"
		session.updatedAt = time.Now()
		s.logger.Info("Charge aborted by operator", "transaction_id", session.txID)
		return snapshot(session), nil
	}

	if session.shortfall.IsPositive() {
		// Confirm stays disabled until the shortfall is resolved.
		return nil, errors.ErrInsufficientFunds.WithDetails("shortfall: " + session.shortfall.String())
	}

	return s.commit(ctx, session)
}

func (s *ChargeService) commit(ctx context.Context, session *chargeSession) (*ChargeStatus, error) {
	callCtx, cancel := s.callContext(ctx)
	defer cancel()

	var newBalance, accrued decimal.Decimal
	committedAt := time.Now()

	err := s.ledger.WithTransaction(callCtx, func(tx domain.Ledger) error {
		entry, err := tx.Journal().GetByIDForUpdate(callCtx, session.txID)
		if err != nil {
			return err
		}

		switch entry.Status {
		case domain.StatusCommitted:
			// A retried commit after a network ambiguity. The debit already
			// applied; rebuild the response instead of debiting again.
			account, err := tx.Accounts().GetAccount(callCtx, session.accountID)
			if err != nil {
				return err
			}
			merchant, err := tx.Merchants().GetMerchant(callCtx, session.merchantID)
			if err != nil {
				return err
			}
			newBalance = account.Balance
			accrued = merchant.AccruedTotal
			if entry.CommittedAt != nil {
				committedAt = *entry.CommittedAt
			}
			return nil
		case domain.StatusVoided:
			return errors.ErrAlreadyVoided
		}

		// Row lock first: the sufficiency check and the debit must see the
		// same balance.
		account, err := tx.Accounts().GetAccountForUpdate(callCtx, session.accountID)
		if err != nil {
			return err
		}
		if account.Balance.LessThan(session.amount) {
			return errors.ErrInsufficientFunds
		}

		newBalance, err = tx.Accounts().DebitBalance(callCtx, session.accountID, session.amount)
		if err != nil {
			return err
		}

		if err := tx.Journal().MarkCommitted(callCtx, session.txID, committedAt); err != nil {
			return err
		}

		accrued, err = tx.Merchants().AddAccrued(callCtx, session.merchantID, session.amount)
		return err
	})

	if err != nil {
		if isTimeout(err) {
			// Ambiguous: the commit may or may not be durable. Leave the
			// session in Confirming so the operator can retry; the journal
			// status check makes the retry idempotent.
			s.logger.Warn("Commit timed out", "transaction_id", session.txID)
			return nil, errors.ErrTimeout
		}

		var appErr *errors.AppError
		if stderrors.As(err, &appErr) && appErr.Code == errors.InsufficientFunds {
			// The balance moved between verification and commit. Refresh the
			// shortfall so the operator sees it; the entry stays pending
			// until resolved, aborted, or swept.
			s.refreshShortfall(ctx, session)
			return nil, errors.ErrInsufficientFunds.WithDetails("shortfall: " + session.shortfall.String())
		}

		if voidErr := s.voidEntry(ctx, session, "commit failed"); voidErr != nil {
			s.logger.Error("Failed to void after commit failure",
				"transaction_id", session.txID, "error", voidErr)
		}
		session.state = StateAborted
		session.voidReason = "commit failed"
		session.updatedAt = time.Now()
		s.logger.Error("Charge aborted after commit failure", "transaction_id", session.txID, "error", err)
		return nil, err
	}

	session.state = StateCommitted
	session.newBalance = newBalance
	session.accrued = accrued
	session.updatedAt = time.Now()

	s.logger.Info("Charge committed",
		"transaction_id", session.txID,
		"account_id", session.accountID,
		"merchant_id", session.merchantID,
		"amount", session.amount,
		"new_balance", newBalance)

	if s.invalidator != nil {
		s.invalidator.Invalidate(context.WithoutCancel(ctx), session.merchantID)
	}
	if s.notifier != nil {
		go s.notifier.NotifyCommitted(CommitNotification{
			TransactionID: session.txID,
			AccountID:     session.accountID,
			MerchantID:    session.merchantID,
			Amount:        session.amount,
			CommittedAt:   committedAt,
		})
	}

	return snapshot(session), nil
}

// Abort cancels a charge from any non-terminal state. Cleanup of an opened
// journal entry is mandatory, not best-effort.
func (s *ChargeService) Abort(ctx context.Context, chargeID uuid.UUID) (*ChargeStatus, error) {
	session, err := s.session(chargeID)
	if err != nil {
		return nil, err
	}

	session.mu.Lock()
	defer session.mu.Unlock()

	switch session.state {
	case StateAborted:
		return snapshot(session), nil
	case StateCommitted:
		return nil, errors.ErrAlreadyCommitted
	}

	if err := s.voidEntry(ctx, session, "operator abort"); err != nil {
		return nil, err
	}

	session.state = StateAborted
	session.voidReason = "operator abort"
	session.updatedAt = time.Now()
	s.logger.Info("Charge aborted", "transaction_id", session.txID)
	return snapshot(session), nil
}

// Get reports the current state. While a shortfall blocks confirmation, each
// poll re-reads the balance so funding that arrived in the meantime unblocks
// the confirm action.
func (s *ChargeService) Get(ctx context.Context, chargeID uuid.UUID) (*ChargeStatus, error) {
	session, err := s.session(chargeID)
	if err != nil {
		return nil, err
	}

	session.mu.Lock()
	defer session.mu.Unlock()

	if session.state == StateConfirming && session.shortfall.IsPositive() {
		s.refreshShortfall(ctx, session)
	}

	return snapshot(session), nil
}

func (s *ChargeService) refreshShortfall(ctx context.Context, session *chargeSession) {
	callCtx, cancel := s.callContext(ctx)
	defer cancel()

	account, err := s.ledger.Accounts().GetAccount(callCtx, session.accountID)
	if err != nil {
		s.logger.Warn("Failed to refresh balance", "transaction_id", session.txID, "error", err)
		return
	}

	session.balance = account.Balance
	if account.Balance.LessThan(session.amount) {
		session.shortfall = session.amount.Sub(account.Balance)
	} else {
		session.shortfall = decimal.Zero
	}
	session.updatedAt = time.Now()
}

func (s *ChargeService) voidEntry(ctx context.Context, session *chargeSession, reason string) error {
	if !session.opened {
		return nil
	}

	callCtx, cancel := s.callContext(ctx)
	defer cancel()

	err := s.ledger.Journal().MarkVoided(callCtx, session.txID, reason)
	if err != nil {
		var appErr *errors.AppError
		if stderrors.As(err, &appErr) && appErr.Code == errors.AlreadyVoided {
			return nil
		}
		return s.mapRemoteError(err)
	}
	return nil
}

func (s *ChargeService) session(chargeID uuid.UUID) (*chargeSession, error) {
	s.mu.RLock()
	session, ok := s.sessions[chargeID]
	s.mu.RUnlock()
	if !ok {
		return nil, errors.ErrChargeNotFound
	}
	return session, nil
}

// pruneLocked drops terminal sessions past the retention window. Callers
// hold s.mu; session fields stay guarded by the session's own mutex, so a
// session that cannot be locked right now is skipped and collected on a
// later open.
func (s *ChargeService) pruneLocked(now time.Time) {
	for id, session := range s.sessions {
		if !session.mu.TryLock() {
			continue
		}
		expired := (session.state == StateCommitted || session.state == StateAborted) &&
			now.Sub(session.updatedAt) > s.retention
		session.mu.Unlock()
		if expired {
			delete(s.sessions, id)
		}
	}
}

func (s *ChargeService) callContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, s.callTimeout)
}

func (s *ChargeService) mapRemoteError(err error) error {
	if isTimeout(err) {
		return errors.ErrTimeout
	}
	return err
}

func isTimeout(err error) bool {
	return stderrors.Is(err, context.DeadlineExceeded) || stderrors.Is(err, context.Canceled)
}

func snapshot(session *chargeSession) *ChargeStatus {
	status := &ChargeStatus{
		TransactionID: session.txID,
		State:         session.state,
		Amount:        session.amount,
		MerchantID:    session.merchantID,
		VoidReason:    session.voidReason,
	}

	if session.accountID != uuid.Nil {
		id := session.accountID
		status.AccountID = &id
		balance := session.balance
		status.Balance = &balance
	}
	if session.shortfall.IsPositive() {
		shortfall := session.shortfall
		status.Shortfall = &shortfall
	}
	if session.state == StateCommitted {
		newBalance := session.newBalance
		accrued := session.accrued
		status.NewBalance = &newBalance
		status.MerchantAccruedTotal = &accrued
	}

	return status
}
