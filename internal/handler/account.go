package handler

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/openbourse/openbourse/internal/domain"
	"github.com/openbourse/openbourse/internal/service"
)

// AccountHandler handles HTTP requests for account endpoints.
type AccountHandler struct {
	accountSvc *service.AccountService
	orderSvc   *service.OrderService
}

// NewAccountHandler creates a new AccountHandler.
func NewAccountHandler(accountSvc *service.AccountService, orderSvc *service.OrderService) *AccountHandler {
	return &AccountHandler{accountSvc: accountSvc, orderSvc: orderSvc}
}

// holdingResponse is one position in the balance response.
type holdingResponse struct {
	Symbol    string          `json:"symbol"`
	Quantity  decimal.Decimal `json:"quantity"`
	Reserved  decimal.Decimal `json:"reserved"`
	Available decimal.Decimal `json:"available"`
}

// balanceResponse is the JSON response for GET /accounts/{account_id}/balance.
type balanceResponse struct {
	AccountID     string            `json:"account_id"`
	CashBalance   decimal.Decimal   `json:"cash_balance"`
	ReservedCash  decimal.Decimal   `json:"reserved_cash"`
	AvailableCash decimal.Decimal   `json:"available_cash"`
	Holdings      []holdingResponse `json:"holdings"`
	AsOf          string            `json:"as_of"`
}

// GetBalance handles GET /accounts/{account_id}/balance.
func (h *AccountHandler) GetBalance(w http.ResponseWriter, r *http.Request) {
	accountID := chi.URLParam(r, "account_id")

	bal, err := h.accountSvc.GetBalance(accountID)
	if err != nil {
		mapOrderError(w, err)
		return
	}

	holdings := make([]holdingResponse, len(bal.Holdings))
	for i, hb := range bal.Holdings {
		holdings[i] = holdingResponse{
			Symbol:    hb.Symbol,
			Quantity:  hb.Quantity,
			Reserved:  hb.Reserved,
			Available: hb.Available,
		}
	}

	WriteJSON(w, http.StatusOK, balanceResponse{
		AccountID:     bal.AccountID,
		CashBalance:   bal.CashBalance,
		ReservedCash:  bal.ReservedCash,
		AvailableCash: bal.AvailableCash,
		Holdings:      holdings,
		AsOf:          bal.AsOf.UTC().Format("2006-01-02T15:04:05Z"),
	})
}

// listOrdersResponse is the JSON response for GET /accounts/{account_id}/orders.
type listOrdersResponse struct {
	Orders []any `json:"orders"`
	Total  int   `json:"total"`
	Page   int   `json:"page"`
	Limit  int   `json:"limit"`
}

// ListOrders handles GET /accounts/{account_id}/orders with optional
// status, page, and limit query parameters.
func (h *AccountHandler) ListOrders(w http.ResponseWriter, r *http.Request) {
	accountID := chi.URLParam(r, "account_id")

	var status *domain.OrderStatus
	if s := r.URL.Query().Get("status"); s != "" {
		os := domain.OrderStatus(s)
		status = &os
	}

	page, err := parsePositiveInt(r.URL.Query().Get("page"), 1)
	if err != nil {
		WriteError(w, http.StatusBadRequest, "validation_error", "page must be a positive integer")
		return
	}
	limit, err := parsePositiveInt(r.URL.Query().Get("limit"), 50)
	if err != nil {
		WriteError(w, http.StatusBadRequest, "validation_error", "limit must be a positive integer")
		return
	}
	if limit > 200 {
		limit = 200
	}

	if !h.accountSvc.Exists(accountID) {
		WriteError(w, http.StatusNotFound, "account_not_found", domain.ErrAccountNotFound.Error())
		return
	}

	orders, total, err := h.orderSvc.ListOrders(accountID, status, page, limit)
	if err != nil {
		mapOrderError(w, err)
		return
	}

	resp := listOrdersResponse{
		Orders: make([]any, len(orders)),
		Total:  total,
		Page:   page,
		Limit:  limit,
	}
	for i, o := range orders {
		resp.Orders[i] = buildOrderResponse(o)
	}
	WriteJSON(w, http.StatusOK, resp)
}

// parsePositiveInt parses a positive integer query parameter, using
// def when the parameter is absent.
func parsePositiveInt(s string, def int) (int, error) {
	if s == "" {
		return def, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil || n < 1 {
		return 0, strconv.ErrSyntax
	}
	return n, nil
}
