package service

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"github.com/openbourse/openbourse/internal/store"
)

// HoldingBalance is one instrument position in a balance response.
type HoldingBalance struct {
	Symbol    string
	Quantity  decimal.Decimal
	Reserved  decimal.Decimal
	Available decimal.Decimal
}

// BalanceResponse represents the response for GET /accounts/{id}/balance.
type BalanceResponse struct {
	AccountID     string
	CashBalance   decimal.Decimal
	ReservedCash  decimal.Decimal
	AvailableCash decimal.Decimal
	Holdings      []HoldingBalance
	AsOf          time.Time
}

// AccountService handles account balance queries.
type AccountService struct {
	accountStore *store.AccountStore
}

// NewAccountService creates a new AccountService.
func NewAccountService(accountStore *store.AccountStore) *AccountService {
	return &AccountService{accountStore: accountStore}
}

// GetBalance returns a consistent point-in-time view of an account's
// cash and holdings, taken under the account lock.
func (s *AccountService) GetBalance(accountID string) (*BalanceResponse, error) {
	acct, err := s.accountStore.Get(accountID)
	if err != nil {
		return nil, err
	}

	acct.Mu.Lock()
	resp := &BalanceResponse{
		AccountID:     acct.ID,
		CashBalance:   acct.CashBalance,
		ReservedCash:  acct.ReservedCash,
		AvailableCash: acct.CashBalance.Sub(acct.ReservedCash),
		Holdings:      make([]HoldingBalance, 0, len(acct.Holdings)),
		AsOf:          time.Now(),
	}
	for symbol, h := range acct.Holdings {
		if h.Quantity.IsZero() && h.Reserved.IsZero() {
			continue
		}
		resp.Holdings = append(resp.Holdings, HoldingBalance{
			Symbol:    symbol,
			Quantity:  h.Quantity,
			Reserved:  h.Reserved,
			Available: h.Quantity.Sub(h.Reserved),
		})
	}
	acct.Mu.Unlock()

	sort.Slice(resp.Holdings, func(i, j int) bool {
		return resp.Holdings[i].Symbol < resp.Holdings[j].Symbol
	})
	return resp, nil
}

// Exists reports whether an account is known.
func (s *AccountService) Exists(accountID string) bool {
	return s.accountStore.Exists(accountID)
}
