package service

import (
	"errors"
	"testing"
	"time"

	"github.com/openbourse/openbourse/internal/domain"
)

func (f *serviceFixture) appendTrade(price, qty string, age time.Duration) {
	f.trades.Append(&domain.Trade{
		Symbol:     "ACME",
		Price:      d(price),
		Quantity:   d(qty),
		ExecutedAt: time.Now().Add(-age),
	})
}

func TestGetPriceVWAP(t *testing.T) {
	f := newServiceFixture(t)

	// Two trades inside the 5m window, one outside it.
	f.appendTrade("4.00", "100", 10*time.Minute)
	f.appendTrade("5.00", "10", 2*time.Minute)
	f.appendTrade("6.00", "30", time.Minute)

	resp, err := f.marketSvc.GetPrice("ACME")
	if err != nil {
		t.Fatalf("get price: %v", err)
	}
	if resp.TradesInWindow != 2 {
		t.Errorf("trades in window = %d, want 2", resp.TradesInWindow)
	}
	// (5*10 + 6*30) / 40 = 230/40 = 5.75
	if resp.CurrentPrice == nil || !resp.CurrentPrice.Equal(d("5.75")) {
		t.Errorf("current price = %v, want 5.75", resp.CurrentPrice)
	}
	if resp.Window != "5m" {
		t.Errorf("window = %q, want 5m", resp.Window)
	}
	if resp.LastTradeAt == nil {
		t.Error("last trade timestamp missing")
	}
}

func TestGetPriceFallsBackToLastTrade(t *testing.T) {
	f := newServiceFixture(t)

	f.appendTrade("4.00", "100", time.Hour)
	f.appendTrade("4.20", "5", 30*time.Minute)

	resp, err := f.marketSvc.GetPrice("ACME")
	if err != nil {
		t.Fatalf("get price: %v", err)
	}
	if resp.TradesInWindow != 0 {
		t.Errorf("trades in window = %d, want 0", resp.TradesInWindow)
	}
	if resp.CurrentPrice == nil || !resp.CurrentPrice.Equal(d("4.20")) {
		t.Errorf("current price = %v, want last trade price 4.20", resp.CurrentPrice)
	}
}

func TestGetPriceNoTrades(t *testing.T) {
	f := newServiceFixture(t)

	resp, err := f.marketSvc.GetPrice("ACME")
	if err != nil {
		t.Fatalf("get price: %v", err)
	}
	if resp.CurrentPrice != nil {
		t.Errorf("current price = %v, want nil", resp.CurrentPrice)
	}
	if resp.LastTradeAt != nil {
		t.Errorf("last trade at = %v, want nil", resp.LastTradeAt)
	}

	if _, err := f.marketSvc.GetPrice("NOPE"); !errors.Is(err, domain.ErrInstrumentNotFound) {
		t.Errorf("error = %v, want ErrInstrumentNotFound", err)
	}
}

func TestGetBookSpread(t *testing.T) {
	f := newServiceFixture(t)
	f.seedAccount(t, "alice", "10000.00", nil)
	f.seedAccount(t, "bob", "0", map[string]string{"ACME": "100"})

	submit := func(accountID string, side domain.OrderSide, price, qty string) {
		t.Helper()
		req := SubmitOrderRequest{
			Type:      domain.OrderTypeLimit,
			AccountID: accountID,
			Side:      side,
			Symbol:    "ACME",
			Price:     dptr(price),
			Quantity:  d(qty),
		}
		if _, err := f.orderSvc.SubmitOrder(req); err != nil {
			t.Fatalf("submit %s %s@%s: %v", side, qty, price, err)
		}
	}

	submit("alice", domain.OrderSideBuy, "4.80", "10")
	submit("alice", domain.OrderSideBuy, "4.90", "5")
	submit("bob", domain.OrderSideSell, "5.10", "8")

	resp, err := f.marketSvc.GetBook("ACME")
	if err != nil {
		t.Fatalf("get book: %v", err)
	}
	if len(resp.Bids) != 2 || len(resp.Asks) != 1 {
		t.Fatalf("levels = %d bids / %d asks, want 2/1", len(resp.Bids), len(resp.Asks))
	}
	if !resp.Bids[0].Price.Equal(d("4.90")) {
		t.Errorf("best bid = %s, want 4.90", resp.Bids[0].Price)
	}
	if resp.Spread == nil || !resp.Spread.Equal(d("0.20")) {
		t.Errorf("spread = %v, want 0.20", resp.Spread)
	}
}

func TestGetBookEmptySideNoSpread(t *testing.T) {
	f := newServiceFixture(t)

	resp, err := f.marketSvc.GetBook("ACME")
	if err != nil {
		t.Fatalf("get book: %v", err)
	}
	if resp.Spread != nil {
		t.Errorf("spread = %v on empty book, want nil", resp.Spread)
	}
}

func TestGetQuote(t *testing.T) {
	f := newServiceFixture(t)
	f.seedAccount(t, "bob", "0", map[string]string{"ACME": "100"})

	submit := func(price, qty string) {
		t.Helper()
		req := SubmitOrderRequest{
			Type:      domain.OrderTypeLimit,
			AccountID: "bob",
			Side:      domain.OrderSideSell,
			Symbol:    "ACME",
			Price:     dptr(price),
			Quantity:  d(qty),
		}
		if _, err := f.orderSvc.SubmitOrder(req); err != nil {
			t.Fatalf("submit sell %s@%s: %v", qty, price, err)
		}
	}

	submit("5.00", "3")
	submit("5.00", "2")
	submit("5.20", "10")

	t.Run("fully fillable across levels", func(t *testing.T) {
		resp, err := f.marketSvc.GetQuote("ACME", domain.OrderSideBuy, d("8"))
		if err != nil {
			t.Fatalf("quote: %v", err)
		}
		if !resp.FullyFillable {
			t.Error("expected fully fillable")
		}
		if !resp.QuantityAvailable.Equal(d("8")) {
			t.Errorf("available = %s, want 8", resp.QuantityAvailable)
		}
		// 5 at 5.00 plus 3 at 5.20 = 40.60
		if resp.EstimatedTotal == nil || !resp.EstimatedTotal.Equal(d("40.60")) {
			t.Errorf("total = %v, want 40.60", resp.EstimatedTotal)
		}
		if resp.EstimatedAvgPrice == nil || !resp.EstimatedAvgPrice.Equal(d("5.075")) {
			t.Errorf("avg price = %v, want 5.075", resp.EstimatedAvgPrice)
		}
		if len(resp.PriceLevels) != 2 {
			t.Fatalf("price levels = %d, want 2 (same-price orders aggregated)", len(resp.PriceLevels))
		}
		if !resp.PriceLevels[0].Quantity.Equal(d("5")) {
			t.Errorf("level 0 quantity = %s, want 5", resp.PriceLevels[0].Quantity)
		}
	})

	t.Run("partially fillable", func(t *testing.T) {
		resp, err := f.marketSvc.GetQuote("ACME", domain.OrderSideBuy, d("50"))
		if err != nil {
			t.Fatalf("quote: %v", err)
		}
		if resp.FullyFillable {
			t.Error("expected not fully fillable")
		}
		if !resp.QuantityAvailable.Equal(d("15")) {
			t.Errorf("available = %s, want 15", resp.QuantityAvailable)
		}
	})

	t.Run("no liquidity on sell side", func(t *testing.T) {
		resp, err := f.marketSvc.GetQuote("ACME", domain.OrderSideSell, d("1"))
		if err != nil {
			t.Fatalf("quote: %v", err)
		}
		if resp.EstimatedAvgPrice != nil || resp.EstimatedTotal != nil {
			t.Error("expected nil estimates with no bids")
		}
		if resp.FullyFillable {
			t.Error("expected not fully fillable with no bids")
		}
	})

	t.Run("validation", func(t *testing.T) {
		if _, err := f.marketSvc.GetQuote("ACME", "long", d("1")); err == nil {
			t.Error("expected error for bad side")
		}
		if _, err := f.marketSvc.GetQuote("ACME", domain.OrderSideBuy, d("0")); err == nil {
			t.Error("expected error for zero quantity")
		}
	})
}

func TestGetTradesNewestFirst(t *testing.T) {
	f := newServiceFixture(t)

	f.appendTrade("4.00", "1", 3*time.Minute)
	f.appendTrade("5.00", "1", 2*time.Minute)
	f.appendTrade("6.00", "1", time.Minute)

	trades, err := f.marketSvc.GetTrades("ACME", 2)
	if err != nil {
		t.Fatalf("get trades: %v", err)
	}
	if len(trades) != 2 {
		t.Fatalf("trades = %d, want 2", len(trades))
	}
	if !trades[0].Price.Equal(d("6.00")) || !trades[1].Price.Equal(d("5.00")) {
		t.Errorf("prices = %s, %s, want 6.00, 5.00", trades[0].Price, trades[1].Price)
	}
}

func TestGetBalanceSortedHoldings(t *testing.T) {
	f := newServiceFixture(t)
	f.seedAccount(t, "carol", "250.00", map[string]string{"ZZZ": "5", "ACME": "10"})

	resp, err := f.accountSvc.GetBalance("carol")
	if err != nil {
		t.Fatalf("get balance: %v", err)
	}
	if !resp.AvailableCash.Equal(d("250.00")) {
		t.Errorf("available cash = %s, want 250.00", resp.AvailableCash)
	}
	if len(resp.Holdings) != 2 || resp.Holdings[0].Symbol != "ACME" {
		t.Errorf("holdings = %+v, want sorted with ACME first", resp.Holdings)
	}

	if _, err := f.accountSvc.GetBalance("nobody"); !errors.Is(err, domain.ErrAccountNotFound) {
		t.Errorf("error = %v, want ErrAccountNotFound", err)
	}
}
