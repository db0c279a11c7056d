package store

import (
	"errors"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/openbourse/openbourse/internal/domain"
)

func d(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func newAccount(id, cash string, holdings map[string]string) *domain.Account {
	a := &domain.Account{
		ID:          id,
		CashBalance: d(cash),
		Holdings:    make(map[string]*domain.Holding),
	}
	for symbol, qty := range holdings {
		a.Holdings[symbol] = &domain.Holding{Quantity: d(qty)}
	}
	return a
}

func TestAccountStoreCreate(t *testing.T) {
	s := NewAccountStore()

	if err := s.Create(newAccount("alice", "100", nil)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := s.Create(newAccount("alice", "200", nil)); !errors.Is(err, domain.ErrAccountAlreadyExists) {
		t.Errorf("error = %v, want ErrAccountAlreadyExists", err)
	}
	if _, err := s.Get("bob"); !errors.Is(err, domain.ErrAccountNotFound) {
		t.Errorf("error = %v, want ErrAccountNotFound", err)
	}
}

func TestReserveCash(t *testing.T) {
	s := NewAccountStore()
	s.Create(newAccount("alice", "100.00", nil))

	if err := s.ReserveCash("alice", d("60.00")); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	a, _ := s.Get("alice")
	if !a.AvailableCash().Equal(d("40.00")) {
		t.Errorf("available = %s, want 40.00", a.AvailableCash())
	}

	// Second reservation exceeding available must fail without mutation.
	if err := s.ReserveCash("alice", d("40.01")); !errors.Is(err, domain.ErrInsufficientFunds) {
		t.Errorf("error = %v, want ErrInsufficientFunds", err)
	}
	if !a.ReservedCash.Equal(d("60.00")) {
		t.Errorf("reserved = %s, want unchanged 60.00", a.ReservedCash)
	}
}

func TestReleaseCash(t *testing.T) {
	s := NewAccountStore()
	s.Create(newAccount("alice", "100.00", nil))
	s.ReserveCash("alice", d("60.00"))

	if err := s.ReleaseCash("alice", d("25.00")); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	a, _ := s.Get("alice")
	if !a.ReservedCash.Equal(d("35.00")) {
		t.Errorf("reserved = %s, want 35.00", a.ReservedCash)
	}

	// Releasing more than reserved means state has diverged.
	if err := s.ReleaseCash("alice", d("35.01")); !errors.Is(err, domain.ErrStateDesync) {
		t.Errorf("error = %v, want ErrStateDesync", err)
	}
}

func TestReserveHolding(t *testing.T) {
	s := NewAccountStore()
	s.Create(newAccount("alice", "0", map[string]string{"ACME": "10"}))

	if err := s.ReserveHolding("alice", "ACME", d("7")); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	a, _ := s.Get("alice")
	if !a.AvailableQuantity("ACME").Equal(d("3")) {
		t.Errorf("available = %s, want 3", a.AvailableQuantity("ACME"))
	}

	if err := s.ReserveHolding("alice", "ACME", d("4")); !errors.Is(err, domain.ErrInsufficientHoldings) {
		t.Errorf("error = %v, want ErrInsufficientHoldings", err)
	}
	if err := s.ReserveHolding("alice", "GLOB", d("1")); !errors.Is(err, domain.ErrInsufficientHoldings) {
		t.Errorf("error for unheld symbol = %v, want ErrInsufficientHoldings", err)
	}

	if err := s.ReleaseHolding("alice", "ACME", d("8")); !errors.Is(err, domain.ErrStateDesync) {
		t.Errorf("over-release error = %v, want ErrStateDesync", err)
	}
	if err := s.ReleaseHolding("alice", "ACME", d("7")); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestSettle(t *testing.T) {
	t.Run("transfers cash and quantity atomically", func(t *testing.T) {
		s := NewAccountStore()
		s.Create(newAccount("buyer", "1000.00", nil))
		s.Create(newAccount("seller", "0", map[string]string{"ACME": "10"}))
		s.ReserveCash("buyer", d("50.00"))
		s.ReserveHolding("seller", "ACME", d("10"))

		if err := s.Settle("buyer", "seller", "ACME", d("10"), d("5.00"), d("5.00")); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		buyer, _ := s.Get("buyer")
		seller, _ := s.Get("seller")

		if !buyer.CashBalance.Equal(d("950.00")) {
			t.Errorf("buyer cash = %s, want 950.00", buyer.CashBalance)
		}
		if !buyer.ReservedCash.IsZero() {
			t.Errorf("buyer reserved = %s, want 0", buyer.ReservedCash)
		}
		if !buyer.AvailableQuantity("ACME").Equal(d("10")) {
			t.Errorf("buyer holdings = %s, want 10", buyer.AvailableQuantity("ACME"))
		}
		if !seller.CashBalance.Equal(d("50.00")) {
			t.Errorf("seller cash = %s, want 50.00", seller.CashBalance)
		}
		if !seller.AvailableQuantity("ACME").IsZero() {
			t.Errorf("seller holdings = %s, want 0", seller.AvailableQuantity("ACME"))
		}
	})

	t.Run("releases reservation at reserved rate on price improvement", func(t *testing.T) {
		s := NewAccountStore()
		s.Create(newAccount("buyer", "1000.00", nil))
		s.Create(newAccount("seller", "0", map[string]string{"ACME": "10"}))
		// Buyer reserved at 6.00 per unit but executes at 5.00.
		s.ReserveCash("buyer", d("60.00"))
		s.ReserveHolding("seller", "ACME", d("10"))

		if err := s.Settle("buyer", "seller", "ACME", d("10"), d("5.00"), d("6.00")); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		buyer, _ := s.Get("buyer")
		if !buyer.CashBalance.Equal(d("950.00")) {
			t.Errorf("buyer cash = %s, want 950.00", buyer.CashBalance)
		}
		// The whole 60.00 reservation is released; the 10.00 surplus
		// returns to available cash.
		if !buyer.ReservedCash.IsZero() {
			t.Errorf("buyer reserved = %s, want 0", buyer.ReservedCash)
		}
	})

	t.Run("self trade settles against one account", func(t *testing.T) {
		s := NewAccountStore()
		s.Create(newAccount("alice", "1000.00", map[string]string{"ACME": "10"}))
		s.ReserveCash("alice", d("50.00"))
		s.ReserveHolding("alice", "ACME", d("10"))

		if err := s.Settle("alice", "alice", "ACME", d("10"), d("5.00"), d("5.00")); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		a, _ := s.Get("alice")
		// Cash and quantity both round-trip.
		if !a.CashBalance.Equal(d("1000.00")) {
			t.Errorf("cash = %s, want 1000.00", a.CashBalance)
		}
		if !a.AvailableQuantity("ACME").Equal(d("10")) {
			t.Errorf("holdings = %s, want 10", a.AvailableQuantity("ACME"))
		}
		if !a.ReservedCash.IsZero() {
			t.Errorf("reserved cash = %s, want 0", a.ReservedCash)
		}
	})

	t.Run("fails without mutation when reservations are short", func(t *testing.T) {
		s := NewAccountStore()
		s.Create(newAccount("buyer", "1000.00", nil))
		s.Create(newAccount("seller", "0", map[string]string{"ACME": "10"}))
		s.ReserveCash("buyer", d("30.00"))
		s.ReserveHolding("seller", "ACME", d("10"))

		err := s.Settle("buyer", "seller", "ACME", d("10"), d("5.00"), d("5.00"))
		if !errors.Is(err, domain.ErrStateDesync) {
			t.Fatalf("error = %v, want ErrStateDesync", err)
		}

		// Neither side mutated.
		buyer, _ := s.Get("buyer")
		seller, _ := s.Get("seller")
		if !buyer.CashBalance.Equal(d("1000.00")) || !buyer.ReservedCash.Equal(d("30.00")) {
			t.Error("buyer state mutated on failed settle")
		}
		if !seller.AvailableQuantity("ACME").IsZero() || !seller.Holdings["ACME"].Quantity.Equal(d("10")) {
			t.Error("seller state mutated on failed settle")
		}
	})
}
