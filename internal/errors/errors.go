package errors

import (
	"fmt"
	"net/http"
)

type ErrorCode string

const (
	MalformedPayload      ErrorCode = "malformed_payload"
	AccountNotFound       ErrorCode = "account_not_found"
	MerchantNotFound      ErrorCode = "merchant_not_found"
	TransactionNotFound   ErrorCode = "transaction_not_found"
	ChargeNotFound        ErrorCode = "charge_not_found"
	InsufficientFunds     ErrorCode = "insufficient_funds"
	AlreadyCommitted      ErrorCode = "already_committed"
	AlreadyVoided         ErrorCode = "already_voided"
	Timeout               ErrorCode = "timeout"
	Conflict              ErrorCode = "conflict"
	InvalidAmount         ErrorCode = "invalid_amount"
	InvalidInput          ErrorCode = "invalid_input"
	InvalidState          ErrorCode = "invalid_state"
	ChargeCeilingExceeded ErrorCode = "charge_ceiling_exceeded"
	DuplicateAccount      ErrorCode = "duplicate_account"
	DuplicateMerchant     ErrorCode = "duplicate_merchant"
	DuplicateTransaction  ErrorCode = "duplicate_transaction"
	InternalError         ErrorCode = "internal_error"
)

type AppError struct {
	Code    ErrorCode `json:"code"`
	Message string    `json:"message"`
	Details string    `json:"details,omitempty"`
}

func (e AppError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func NewAppError(code ErrorCode, message string) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
	}
}

func NewAppErrorf(code ErrorCode, format string, args ...interface{}) *AppError {
	return &AppError{
		Code:    code,
		Message: fmt.Sprintf(format, args...),
	}
}

func (e *AppError) WithDetails(details string) *AppError {
	return &AppError{
		Code:    e.Code,
		Message: e.Message,
		Details: details,
	}
}

// HTTPStatus maps an error code to the status the API responds with.
func (e *AppError) HTTPStatus() int {
	switch e.Code {
	case AccountNotFound, MerchantNotFound, TransactionNotFound, ChargeNotFound:
		return http.StatusNotFound
	case MalformedPayload, InsufficientFunds, ChargeCeilingExceeded:
		return http.StatusUnprocessableEntity
	case InvalidAmount, InvalidInput:
		return http.StatusBadRequest
	case AlreadyCommitted, AlreadyVoided, Conflict, InvalidState,
		DuplicateAccount, DuplicateMerchant, DuplicateTransaction:
		return http.StatusConflict
	case Timeout:
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

// Predefined errors for common cases
var (
	ErrMalformedPayload       = NewAppError(MalformedPayload, "scanned payload is not a recognizable account identifier")
	ErrAccountNotFound        = NewAppError(AccountNotFound, "account not found")
	ErrMerchantNotFound       = NewAppError(MerchantNotFound, "merchant not found")
	ErrTransactionNotFound    = NewAppError(TransactionNotFound, "transaction not found")
	ErrChargeNotFound         = NewAppError(ChargeNotFound, "no charge in progress with that id")
	ErrInsufficientFunds      = NewAppError(InsufficientFunds, "account balance is insufficient for this charge")
	ErrAlreadyCommitted       = NewAppError(AlreadyCommitted, "transaction already committed")
	ErrAlreadyVoided          = NewAppError(AlreadyVoided, "transaction already voided")
	ErrTimeout                = NewAppError(Timeout, "operation timed out, retry")
	ErrConflict               = NewAppError(Conflict, "concurrent update lost the race, re-check balance and retry")
	ErrInvalidAmount          = NewAppError(InvalidAmount, "amount must be a positive decimal")
	ErrDuplicateAccount       = NewAppError(DuplicateAccount, "account already exists")
	ErrDuplicateMerchant      = NewAppError(DuplicateMerchant, "merchant already exists")
	ErrDuplicateTransaction   = NewAppError(DuplicateTransaction, "transaction already processed")
	ErrCannotBeginTransaction = NewAppError(InternalError, "store cannot begin a database transaction")
)
