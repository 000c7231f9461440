package handler

import (
	"encoding/json"
	"net/http"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/shopspring/decimal"

	"giftcard-ledger/internal/errors"
	"giftcard-ledger/internal/service"
)

// ChargeHandler is the inbound surface the clerk's device drives the charge
// coordinator through: open with an amount, scan the customer's QR code,
// then confirm or abort.
type ChargeHandler struct {
	chargeService *service.ChargeService
}

func NewChargeHandler(chargeService *service.ChargeService) *ChargeHandler {
	return &ChargeHandler{
		chargeService: chargeService,
	}
}

type OpenChargeRequest struct {
	Amount     string `json:"amount"`
	MerchantID string `json:"merchant_id"`
}

type ScanRequest struct {
	ScannedPayload string `json:"scanned_payload"`
}

type ConfirmRequest struct {
	Confirm bool `json:"confirm"`
}

type ChargeResponse struct {
	TransactionID        string  `json:"transaction_id"`
	State                string  `json:"state"`
	Amount               string  `json:"amount"`
	MerchantID           string  `json:"merchant_id"`
	AccountID            *string `json:"account_id,omitempty"`
	Balance              *string `json:"balance,omitempty"`
	Shortfall            *string `json:"shortfall,omitempty"`
	ConfirmEnabled       bool    `json:"confirm_enabled"`
	NewBalance           *string `json:"new_balance,omitempty"`
	MerchantAccruedTotal *string `json:"merchant_accrued_total,omitempty"`
	VoidReason           string  `json:"void_reason,omitempty"`
}

func (h *ChargeHandler) OpenCharge(w http.ResponseWriter, r *http.Request) {
	var req OpenChargeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, errors.NewAppError(errors.InvalidInput, "invalid request body"))
		return
	}

	amount, err := decimal.NewFromString(req.Amount)
	if err != nil {
		writeError(w, errors.NewAppError(errors.InvalidAmount, "invalid amount format"))
		return
	}

	merchantID, err := uuid.Parse(req.MerchantID)
	if err != nil {
		writeError(w, errors.NewAppError(errors.InvalidInput, "invalid merchant id"))
		return
	}

	status, err := h.chargeService.OpenCharge(r.Context(), amount, merchantID)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, toChargeResponse(status))
}

func (h *ChargeHandler) Scan(w http.ResponseWriter, r *http.Request) {
	chargeID, ok := h.chargeID(w, r)
	if !ok {
		return
	}

	var req ScanRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, errors.NewAppError(errors.InvalidInput, "invalid request body"))
		return
	}

	status, err := h.chargeService.Scan(r.Context(), chargeID, req.ScannedPayload)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, toChargeResponse(status))
}

func (h *ChargeHandler) Confirm(w http.ResponseWriter, r *http.Request) {
	chargeID, ok := h.chargeID(w, r)
	if !ok {
		return
	}

	var req ConfirmRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, errors.NewAppError(errors.InvalidInput, "invalid request body"))
		return
	}

	status, err := h.chargeService.Confirm(r.Context(), chargeID, req.Confirm)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, toChargeResponse(status))
}

func (h *ChargeHandler) Abort(w http.ResponseWriter, r *http.Request) {
	chargeID, ok := h.chargeID(w, r)
	if !ok {
		return
	}

	status, err := h.chargeService.Abort(r.Context(), chargeID)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, toChargeResponse(status))
}

func (h *ChargeHandler) GetCharge(w http.ResponseWriter, r *http.Request) {
	chargeID, ok := h.chargeID(w, r)
	if !ok {
		return
	}

	status, err := h.chargeService.Get(r.Context(), chargeID)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, toChargeResponse(status))
}

func (h *ChargeHandler) chargeID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	vars := mux.Vars(r)
	chargeID, err := uuid.Parse(vars["charge_id"])
	if err != nil {
		writeError(w, errors.NewAppError(errors.InvalidInput, "invalid charge id"))
		return uuid.Nil, false
	}
	return chargeID, true
}

func toChargeResponse(status *service.ChargeStatus) ChargeResponse {
	resp := ChargeResponse{
		TransactionID:  status.TransactionID.String(),
		State:          string(status.State),
		Amount:         status.Amount.String(),
		MerchantID:     status.MerchantID.String(),
		ConfirmEnabled: status.State == service.StateConfirming && status.Shortfall == nil,
		VoidReason:     status.VoidReason,
	}

	if status.AccountID != nil {
		id := status.AccountID.String()
		resp.AccountID = &id
	}
	if status.Balance != nil {
		balance := status.Balance.String()
		resp.Balance = &balance
	}
	if status.Shortfall != nil {
		shortfall := status.Shortfall.String()
		resp.Shortfall = &shortfall
	}
	if status.NewBalance != nil {
		newBalance := status.NewBalance.String()
		resp.NewBalance = &newBalance
	}
	if status.MerchantAccruedTotal != nil {
		accrued := status.MerchantAccruedTotal.String()
		resp.MerchantAccruedTotal = &accrued
	}

	return resp
}
