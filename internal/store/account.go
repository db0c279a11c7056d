package store

import (
	"sync"

	"github.com/shopspring/decimal"

	"github.com/openbourse/openbourse/internal/domain"
)

// AccountStore is the authoritative in-memory state for accounts:
// cash balances, holdings, and the reservations backing resting
// orders. All mutating operations are invoked only by the matching
// engine under its per-instrument transaction boundary; the store
// itself only guarantees that each operation is atomic.
type AccountStore struct {
	mu       sync.RWMutex
	accounts map[string]*domain.Account
}

// NewAccountStore creates an empty AccountStore.
func NewAccountStore() *AccountStore {
	return &AccountStore{
		accounts: make(map[string]*domain.Account),
	}
}

// Create adds an account to the store. It returns
// domain.ErrAccountAlreadyExists if the ID is taken.
func (s *AccountStore) Create(a *domain.Account) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.accounts[a.ID]; exists {
		return domain.ErrAccountAlreadyExists
	}
	s.accounts[a.ID] = a
	return nil
}

// Get retrieves an account by ID. It returns
// domain.ErrAccountNotFound if the account does not exist.
func (s *AccountStore) Get(id string) (*domain.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	a, ok := s.accounts[id]
	if !ok {
		return nil, domain.ErrAccountNotFound
	}
	return a, nil
}

// Exists returns true if an account with the given ID exists.
func (s *AccountStore) Exists(id string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.accounts[id]
	return ok
}

// ReserveCash atomically moves amount from available to reserved
// cash. It fails with domain.ErrInsufficientFunds without mutation
// if available cash is below amount.
func (s *AccountStore) ReserveCash(id string, amount decimal.Decimal) error {
	a, err := s.Get(id)
	if err != nil {
		return err
	}

	a.Mu.Lock()
	defer a.Mu.Unlock()

	if a.AvailableCash().LessThan(amount) {
		return domain.ErrInsufficientFunds
	}
	a.ReservedCash = a.ReservedCash.Add(amount)
	return nil
}

// ReleaseCash is the inverse of ReserveCash. Releasing more than is
// reserved indicates the book and store have diverged; it returns
// domain.ErrStateDesync without mutation.
func (s *AccountStore) ReleaseCash(id string, amount decimal.Decimal) error {
	a, err := s.Get(id)
	if err != nil {
		return err
	}

	a.Mu.Lock()
	defer a.Mu.Unlock()

	if a.ReservedCash.LessThan(amount) {
		return domain.ErrStateDesync
	}
	a.ReservedCash = a.ReservedCash.Sub(amount)
	return nil
}

// ReserveHolding atomically moves amount of symbol from available to
// reserved. It fails with domain.ErrInsufficientHoldings without
// mutation if the available quantity is below amount.
func (s *AccountStore) ReserveHolding(id, symbol string, amount decimal.Decimal) error {
	a, err := s.Get(id)
	if err != nil {
		return err
	}

	a.Mu.Lock()
	defer a.Mu.Unlock()

	if a.AvailableQuantity(symbol).LessThan(amount) {
		return domain.ErrInsufficientHoldings
	}
	h := a.Holding(symbol)
	h.Reserved = h.Reserved.Add(amount)
	return nil
}

// ReleaseHolding is the inverse of ReserveHolding. Releasing more
// than is reserved returns domain.ErrStateDesync without mutation.
func (s *AccountStore) ReleaseHolding(id, symbol string, amount decimal.Decimal) error {
	a, err := s.Get(id)
	if err != nil {
		return err
	}

	a.Mu.Lock()
	defer a.Mu.Unlock()

	h := a.Holding(symbol)
	if h.Reserved.LessThan(amount) {
		return domain.ErrStateDesync
	}
	h.Reserved = h.Reserved.Sub(amount)
	return nil
}

// Settle applies one trade to both accounts atomically: the buyer's
// reserved cash pays for the fill (any surplus over the execution
// price stays reserved for the buyer's still-open remainder, so the
// caller passes the per-unit amount originally reserved), and the
// seller's reserved quantity moves to the buyer's holdings.
//
// Both account locks are taken in account-ID order to avoid deadlock
// when trades cross in both directions concurrently across
// instruments sharing accounts; a self-trade locks once. All checks
// run before any mutation, so either both transfers happen or
// neither.
func (s *AccountStore) Settle(buyerID, sellerID, symbol string, quantity, price, buyerReservedUnit decimal.Decimal) error {
	buyer, err := s.Get(buyerID)
	if err != nil {
		return err
	}
	seller, err := s.Get(sellerID)
	if err != nil {
		return err
	}

	lockPair(buyer, seller)
	defer unlockPair(buyer, seller)

	cost := price.Mul(quantity)
	releaseCash := buyerReservedUnit.Mul(quantity)
	sellerHolding := seller.Holding(symbol)

	if buyer.ReservedCash.LessThan(releaseCash) || buyer.CashBalance.LessThan(cost) {
		return domain.ErrStateDesync
	}
	if sellerHolding.Reserved.LessThan(quantity) || sellerHolding.Quantity.LessThan(quantity) {
		return domain.ErrStateDesync
	}

	// Buyer: pay cost, release the matching reservation, receive quantity.
	buyer.CashBalance = buyer.CashBalance.Sub(cost)
	buyer.ReservedCash = buyer.ReservedCash.Sub(releaseCash)
	buyerHolding := buyer.Holding(symbol)
	buyerHolding.Quantity = buyerHolding.Quantity.Add(quantity)

	// Seller: give up reserved quantity, receive cost as available cash.
	sellerHolding.Quantity = sellerHolding.Quantity.Sub(quantity)
	sellerHolding.Reserved = sellerHolding.Reserved.Sub(quantity)
	seller.CashBalance = seller.CashBalance.Add(cost)

	return nil
}

// lockPair locks two accounts in ID order, locking once when they
// are the same account.
func lockPair(a, b *domain.Account) {
	switch {
	case a == b:
		a.Mu.Lock()
	case a.ID < b.ID:
		a.Mu.Lock()
		b.Mu.Lock()
	default:
		b.Mu.Lock()
		a.Mu.Lock()
	}
}

func unlockPair(a, b *domain.Account) {
	a.Mu.Unlock()
	if a != b {
		b.Mu.Unlock()
	}
}
