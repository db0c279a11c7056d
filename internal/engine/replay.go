package engine

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/openbourse/openbourse/internal/domain"
)

// Replay folds the full journal back into the entity store and the
// order books. It must run before the engine serves traffic, on the
// empty stores produced by loading the initial market configuration.
//
// The fold mirrors the live transaction exactly: an acceptance
// reserves and stages the order, its contiguous trade entries apply
// fills and settle, and the remainder disposition (rest for limit,
// cancel for market) is applied when the next transaction begins.
// Every step is deterministic, so replaying the same journal twice
// from the same initial configuration yields identical state.
func (m *Matcher) Replay() error {
	var pending *domain.Order

	err := m.journal.Replay(1, func(ev domain.Event) error {
		switch ev.Type {
		case domain.EventOrderAccepted:
			if err := m.finishReplayed(pending); err != nil {
				return err
			}
			pending = nil

			p := ev.OrderAccepted
			book := m.books.GetOrCreate(p.Symbol)
			req := SubmitRequest{
				AccountID: p.AccountID,
				Symbol:    p.Symbol,
				Side:      p.Side,
				Type:      p.OrderType,
				Price:     p.Price,
				Quantity:  p.Quantity,
				ExpiresAt: p.ExpiresAt,
			}
			if err := m.reserve(book, req); err != nil {
				return fmt.Errorf("replay seq %d: reserve: %w", ev.Seq, err)
			}

			order := &domain.Order{
				ID:                p.OrderID,
				Type:              p.OrderType,
				AccountID:         p.AccountID,
				Side:              p.Side,
				Symbol:            p.Symbol,
				Price:             p.Price,
				Quantity:          p.Quantity,
				RemainingQuantity: p.Quantity,
				FilledQuantity:    decimal.Zero,
				CancelledQuantity: decimal.Zero,
				Status:            domain.OrderStatusOpen,
				AcceptSeq:         ev.Seq,
				CreatedAt:         ev.Timestamp,
				ExpiresAt:         p.ExpiresAt,
				Trades:            []*domain.Trade{},
			}
			m.orders.Create(order)
			pending = order

		case domain.EventTradeExecuted:
			p := ev.TradeExecuted
			if pending == nil || pending.ID != p.TakerOrderID {
				return fmt.Errorf("replay seq %d: trade for %s outside its taker's transaction", ev.Seq, p.TakerOrderID)
			}
			maker, err := m.orders.Get(p.MakerOrderID)
			if err != nil {
				return fmt.Errorf("replay seq %d: unknown maker order %s", ev.Seq, p.MakerOrderID)
			}

			buyer, seller := pending, maker
			if pending.Side == domain.OrderSideSell {
				buyer, seller = maker, pending
			}
			buyerUnit := buyer.Price
			if buyer.Type == domain.OrderTypeMarket {
				buyerUnit = p.Price
			}
			if err := m.accounts.Settle(buyer.AccountID, seller.AccountID, p.Symbol, p.Quantity, p.Price, buyerUnit); err != nil {
				return fmt.Errorf("replay seq %d: settle: %w", ev.Seq, err)
			}

			applyFill(pending, p.Quantity)
			applyFill(maker, p.Quantity)

			trade := &domain.Trade{
				Seq:          ev.Seq,
				Symbol:       p.Symbol,
				Price:        p.Price,
				Quantity:     p.Quantity,
				TakerOrderID: p.TakerOrderID,
				MakerOrderID: p.MakerOrderID,
				BuyerID:      p.BuyerID,
				SellerID:     p.SellerID,
				ExecutedAt:   ev.Timestamp,
			}
			pending.Trades = append(pending.Trades, trade)
			maker.Trades = append(maker.Trades, trade)
			m.trades.Append(trade)

			if maker.RemainingQuantity.IsZero() {
				m.books.GetOrCreate(p.Symbol).Remove(maker.ID)
			}

		case domain.EventOrderCancelled:
			if err := m.finishReplayed(pending); err != nil {
				return err
			}
			pending = nil

			p := ev.OrderCancelled
			order, err := m.orders.Get(p.OrderID)
			if err != nil {
				return fmt.Errorf("replay seq %d: cancel of unknown order %s", ev.Seq, p.OrderID)
			}
			book := m.books.GetOrCreate(p.Symbol)
			if _, ok := book.Remove(order.ID); !ok {
				return fmt.Errorf("replay seq %d: cancel of non-resting order %s", ev.Seq, p.OrderID)
			}
			if err := m.releaseRemainder(order); err != nil {
				return fmt.Errorf("replay seq %d: release: %w", ev.Seq, err)
			}
			ts := ev.Timestamp
			order.CancelledQuantity = order.RemainingQuantity
			order.RemainingQuantity = decimal.Zero
			order.Status = domain.OrderStatusCancelled
			order.CancelledAt = &ts

		case domain.EventOrderRejected:
			// Audit-only: a rejection mutated nothing.
			if err := m.finishReplayed(pending); err != nil {
				return err
			}
			pending = nil

		default:
			return fmt.Errorf("replay seq %d: unknown event type %q", ev.Seq, ev.Type)
		}
		return nil
	})
	if err != nil {
		return err
	}
	return m.finishReplayed(pending)
}

// finishReplayed applies the remainder disposition of the previous
// transaction's order once its trade entries have all been folded.
func (m *Matcher) finishReplayed(order *domain.Order) error {
	if order == nil {
		return nil
	}
	book := m.books.GetOrCreate(order.Symbol)
	if err := m.placeRemainderLocked(book, order); err != nil {
		return fmt.Errorf("replay order %s: remainder: %w", order.ID, err)
	}
	return nil
}

// RestingOrders returns every order currently resting on any book.
// Used after replay to re-register expirations.
func (m *Matcher) RestingOrders() []*domain.Order {
	var out []*domain.Order
	m.books.Each(func(b *Book) {
		b.mu.RLock()
		defer b.mu.RUnlock()
		collect := func(entry BookEntry) bool {
			out = append(out, entry.Order)
			return true
		}
		b.WalkBids(collect)
		b.WalkAsks(collect)
	})
	return out
}
