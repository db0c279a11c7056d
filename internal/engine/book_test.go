package engine

import (
	"fmt"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/openbourse/openbourse/internal/domain"
)

func d(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func restingOrder(id string, side domain.OrderSide, price, qty string, seq uint64) *domain.Order {
	return &domain.Order{
		ID:                id,
		Side:              side,
		Symbol:            "ACME",
		Price:             d(price),
		Quantity:          d(qty),
		RemainingQuantity: d(qty),
		Status:            domain.OrderStatusOpen,
		AcceptSeq:         seq,
	}
}

func insert(b *Book, o *domain.Order) {
	b.Insert(BookEntry{Price: o.Price, Seq: o.AcceptSeq, OrderID: o.ID, Order: o})
}

func TestBookPricePriority(t *testing.T) {
	b := NewBook("ACME")
	insert(b, restingOrder("bid-low", domain.OrderSideBuy, "4.00", "10", 1))
	insert(b, restingOrder("bid-high", domain.OrderSideBuy, "5.00", "10", 2))
	insert(b, restingOrder("ask-high", domain.OrderSideSell, "6.00", "10", 3))
	insert(b, restingOrder("ask-low", domain.OrderSideSell, "5.50", "10", 4))

	best, ok := b.BestBid()
	if !ok || best.OrderID != "bid-high" {
		t.Errorf("best bid = %v, want bid-high", best.OrderID)
	}
	best, ok = b.BestAsk()
	if !ok || best.OrderID != "ask-low" {
		t.Errorf("best ask = %v, want ask-low", best.OrderID)
	}
}

func TestBookTimePriorityAtSamePrice(t *testing.T) {
	b := NewBook("ACME")
	insert(b, restingOrder("newer", domain.OrderSideSell, "5.00", "10", 9))
	insert(b, restingOrder("older", domain.OrderSideSell, "5.00", "10", 3))

	best, ok := b.BestAsk()
	if !ok || best.OrderID != "older" {
		t.Errorf("best ask = %v, want the earlier-accepted order", best.OrderID)
	}

	// Better price still beats earlier acceptance.
	insert(b, restingOrder("cheap", domain.OrderSideSell, "4.50", "10", 20))
	best, _ = b.BestAsk()
	if best.OrderID != "cheap" {
		t.Errorf("best ask = %v, want cheap", best.OrderID)
	}
}

func TestBookRemove(t *testing.T) {
	b := NewBook("ACME")
	insert(b, restingOrder("o1", domain.OrderSideBuy, "5.00", "10", 1))

	entry, ok := b.Remove("o1")
	if !ok || entry.OrderID != "o1" {
		t.Fatalf("Remove = (%v, %v), want o1", entry.OrderID, ok)
	}
	if b.BidCount() != 0 {
		t.Errorf("bid count = %d after removal, want 0", b.BidCount())
	}

	// Removing twice is a normal race, reported via ok=false.
	if _, ok := b.Remove("o1"); ok {
		t.Error("second Remove should return false")
	}
}

func TestBookSnapshotAggregatesLevels(t *testing.T) {
	b := NewBook("ACME")
	insert(b, restingOrder("b1", domain.OrderSideBuy, "5.00", "10", 1))
	insert(b, restingOrder("b2", domain.OrderSideBuy, "5.00", "5", 2))
	insert(b, restingOrder("b3", domain.OrderSideBuy, "4.00", "7", 3))
	insert(b, restingOrder("a1", domain.OrderSideSell, "6.00", "3", 4))

	view := b.Snapshot(10)
	if len(view.Bids) != 2 {
		t.Fatalf("bid levels = %d, want 2", len(view.Bids))
	}
	if !view.Bids[0].Price.Equal(d("5.00")) || !view.Bids[0].TotalQuantity.Equal(d("15")) || view.Bids[0].OrderCount != 2 {
		t.Errorf("top bid level = %+v, want 15 @ 5.00 across 2 orders", view.Bids[0])
	}
	if !view.Bids[1].Price.Equal(d("4.00")) {
		t.Errorf("second bid level price = %s, want 4.00", view.Bids[1].Price)
	}
	if len(view.Asks) != 1 {
		t.Fatalf("ask levels = %d, want 1", len(view.Asks))
	}
}

func TestBookSnapshotDepthLimit(t *testing.T) {
	b := NewBook("ACME")
	for i := 0; i < 5; i++ {
		insert(b, restingOrder(
			fmt.Sprintf("b%d", i), domain.OrderSideBuy,
			fmt.Sprintf("%d.00", i+1), "1", uint64(i+1),
		))
	}

	view := b.Snapshot(3)
	if len(view.Bids) != 3 {
		t.Fatalf("bid levels = %d, want 3", len(view.Bids))
	}
	// Depth keeps the best levels.
	if !view.Bids[0].Price.Equal(d("5.00")) {
		t.Errorf("top bid = %s, want 5.00", view.Bids[0].Price)
	}
}
