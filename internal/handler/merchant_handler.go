package handler

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"giftcard-ledger/internal/domain"
	"giftcard-ledger/internal/errors"
	"giftcard-ledger/internal/service"
)

type MerchantHandler struct {
	accrualService *service.AccrualService
}

func NewMerchantHandler(accrualService *service.AccrualService) *MerchantHandler {
	return &MerchantHandler{
		accrualService: accrualService,
	}
}

type CreateMerchantRequest struct {
	Name string `json:"name"`
}

type MerchantResponse struct {
	MerchantID   string `json:"merchant_id"`
	Name         string `json:"name"`
	AccruedTotal string `json:"accrued_total"`
}

type TransactionResponse struct {
	TransactionID string `json:"transaction_id"`
	AccountID     string `json:"account_id"`
	MerchantID    string `json:"merchant_id"`
	Amount        string `json:"amount"`
	Status        string `json:"status"`
	VoidReason    string `json:"void_reason,omitempty"`
	CreatedAt     string `json:"created_at"`
	CommittedAt   string `json:"committed_at,omitempty"`
}

func (h *MerchantHandler) CreateMerchant(w http.ResponseWriter, r *http.Request) {
	var req CreateMerchantRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, errors.NewAppError(errors.InvalidInput, "invalid request body"))
		return
	}

	merchant, err := h.accrualService.CreateMerchant(r.Context(), req.Name)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	response := MerchantResponse{
		MerchantID:   merchant.ID.String(),
		Name:         merchant.Name,
		AccruedTotal: merchant.AccruedTotal.String(),
	}

	writeJSON(w, http.StatusCreated, response)
}

// GetMerchant reports the merchant with its accrued total taken from the
// journal-derived read model, not the cached column.
func (h *MerchantHandler) GetMerchant(w http.ResponseWriter, r *http.Request) {
	merchantID, ok := h.merchantID(w, r)
	if !ok {
		return
	}

	merchant, err := h.accrualService.GetMerchant(r.Context(), merchantID)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	total, err := h.accrualService.AccruedTotal(r.Context(), merchantID)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	response := MerchantResponse{
		MerchantID:   merchant.ID.String(),
		Name:         merchant.Name,
		AccruedTotal: total.String(),
	}

	writeJSON(w, http.StatusOK, response)
}

func (h *MerchantHandler) Recent(w http.ResponseWriter, r *http.Request) {
	merchantID, ok := h.merchantID(w, r)
	if !ok {
		return
	}

	n := queryInt(r, "limit", 10)
	transactions, err := h.accrualService.Recent(r.Context(), merchantID, n)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, toTransactionResponses(transactions))
}

func (h *MerchantHandler) History(w http.ResponseWriter, r *http.Request) {
	merchantID, ok := h.merchantID(w, r)
	if !ok {
		return
	}

	limit := queryInt(r, "limit", 50)
	offset := queryInt(r, "offset", 0)

	transactions, err := h.accrualService.History(r.Context(), merchantID, limit, offset)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, toTransactionResponses(transactions))
}

func (h *MerchantHandler) Reconcile(w http.ResponseWriter, r *http.Request) {
	merchantID, ok := h.merchantID(w, r)
	if !ok {
		return
	}

	result, err := h.accrualService.Reconcile(r.Context(), merchantID)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, result)
}

func (h *MerchantHandler) merchantID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	vars := mux.Vars(r)
	merchantID, err := uuid.Parse(vars["merchant_id"])
	if err != nil {
		writeError(w, errors.NewAppError(errors.InvalidInput, "invalid merchant id"))
		return uuid.Nil, false
	}
	return merchantID, true
}

func toTransactionResponses(transactions []*domain.Transaction) []TransactionResponse {
	responses := make([]TransactionResponse, 0, len(transactions))
	for _, tx := range transactions {
		resp := TransactionResponse{
			TransactionID: tx.ID.String(),
			AccountID:     tx.AccountID.String(),
			MerchantID:    tx.MerchantID.String(),
			Amount:        tx.Amount.String(),
			Status:        string(tx.Status),
			VoidReason:    tx.VoidReason,
			CreatedAt:     tx.CreatedAt.UTC().Format(time.RFC3339),
		}
		if tx.CommittedAt != nil {
			resp.CommittedAt = tx.CommittedAt.UTC().Format(time.RFC3339)
		}
		responses = append(responses, resp)
	}
	return responses
}
