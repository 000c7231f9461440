package handler

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
	"github.com/shopspring/decimal"

	"giftcard-ledger/internal/errors"
	"giftcard-ledger/internal/service"
)

type AccountHandler struct {
	accountService *service.AccountService
}

func NewAccountHandler(accountService *service.AccountService) *AccountHandler {
	return &AccountHandler{
		accountService: accountService,
	}
}

type CreateAccountRequest struct {
	DisplayName    string `json:"display_name"`
	ContactEmail   string `json:"contact_email"`
	InitialBalance string `json:"initial_balance"`
}

type AccountResponse struct {
	AccountID    string `json:"account_id"`
	Balance      string `json:"balance"`
	DisplayName  string `json:"display_name"`
	ContactEmail string `json:"contact_email"`
}

func (h *AccountHandler) CreateAccount(w http.ResponseWriter, r *http.Request) {
	var req CreateAccountRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, errors.NewAppError(errors.InvalidInput, "invalid request body"))
		return
	}

	initialBalance, err := decimal.NewFromString(req.InitialBalance)
	if err != nil {
		writeError(w, errors.NewAppError(errors.InvalidAmount, "invalid initial_balance format"))
		return
	}

	account, err := h.accountService.CreateAccount(r.Context(), req.DisplayName, req.ContactEmail, initialBalance)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	response := AccountResponse{
		AccountID:    account.ID.String(),
		Balance:      account.Balance.String(),
		DisplayName:  account.DisplayName,
		ContactEmail: account.ContactEmail,
	}

	writeJSON(w, http.StatusCreated, response)
}

func (h *AccountHandler) GetAccount(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	accountID := vars["account_id"]

	account, err := h.accountService.GetAccount(r.Context(), accountID)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	response := AccountResponse{
		AccountID:    account.ID.String(),
		Balance:      account.Balance.String(),
		DisplayName:  account.DisplayName,
		ContactEmail: account.ContactEmail,
	}

	writeJSON(w, http.StatusOK, response)
}

func (h *AccountHandler) History(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	accountID := vars["account_id"]

	limit := queryInt(r, "limit", 50)
	offset := queryInt(r, "offset", 0)

	transactions, err := h.accountService.History(r.Context(), accountID, limit, offset)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, toTransactionResponses(transactions))
}

func queryInt(r *http.Request, key string, fallback int) int {
	if v := r.URL.Query().Get(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}
