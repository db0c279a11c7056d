package domain

import (
	"sync"
	"time"

	"github.com/shopspring/decimal"
)

// Holding represents an account's position in a single instrument.
type Holding struct {
	Quantity decimal.Decimal // total held
	Reserved decimal.Decimal // locked by active sell orders
}

// Available returns the unreserved part of the holding.
func (h *Holding) Available() decimal.Decimal {
	return h.Quantity.Sub(h.Reserved)
}

// Account represents a registered market participant. Balances are
// mutated only by the matching engine: reserve on acceptance, release
// on cancellation, transfer on settlement.
type Account struct {
	ID           string
	CashBalance  decimal.Decimal     // total cash
	ReservedCash decimal.Decimal     // cash locked by active buy orders
	Holdings     map[string]*Holding // symbol → holding
	CreatedAt    time.Time
	Mu           sync.Mutex // per-account lock for balance mutations
}

// AvailableCash returns the account's unreserved cash balance.
func (a *Account) AvailableCash() decimal.Decimal {
	return a.CashBalance.Sub(a.ReservedCash)
}

// AvailableQuantity returns the unreserved quantity for the given
// symbol, or zero if the account has no holding in that symbol.
func (a *Account) AvailableQuantity(symbol string) decimal.Decimal {
	h, ok := a.Holdings[symbol]
	if !ok {
		return decimal.Zero
	}
	return h.Available()
}

// Holding returns the holding for symbol, creating an empty one if
// absent. Caller must hold Mu.
func (a *Account) Holding(symbol string) *Holding {
	h, ok := a.Holdings[symbol]
	if !ok {
		h = &Holding{}
		a.Holdings[symbol] = h
	}
	return h
}
