package engine

import (
	"fmt"
	"testing"

	"github.com/shopspring/decimal"
	"pgregory.net/rapid"

	"github.com/openbourse/openbourse/internal/domain"
)

func seedDecimalAccount(f *matcherFixture, id string, cash, qty decimal.Decimal) error {
	a := &domain.Account{
		ID:          id,
		CashBalance: cash,
		Holdings:    make(map[string]*domain.Holding),
	}
	if qty.IsPositive() {
		a.Holdings["ACME"] = &domain.Holding{Quantity: qty}
	}
	return f.accounts.Create(a)
}

func centsToDecimal(cents int64) decimal.Decimal {
	return decimal.New(cents, -2)
}

// Property: price compatibility determines matching. A bid trades
// against a resting ask iff bid price >= ask price, the execution
// price is the resting order's price, and the book is never crossed
// afterwards.
func TestProperty_PriceCompatibilityDeterminesMatching(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		bidPrice := centsToDecimal(rapid.Int64Range(1, 10000).Draw(rt, "bidCents"))
		askPrice := centsToDecimal(rapid.Int64Range(1, 10000).Draw(rt, "askCents"))
		quantity := decimal.NewFromInt(rapid.Int64Range(1, 100).Draw(rt, "qty"))

		f := newTestMatcher(t)
		seedDecimalAccount(f, "seller", decimal.Zero, quantity)
		seedDecimalAccount(f, "buyer", bidPrice.Mul(quantity), decimal.Zero)

		ask, err := f.matcher.Submit(SubmitRequest{
			AccountID: "seller", Symbol: "ACME", Side: domain.OrderSideSell,
			Type: domain.OrderTypeLimit, Price: askPrice, Quantity: quantity,
		})
		if err != nil {
			rt.Fatalf("place ask: %v", err)
		}

		bid, err := f.matcher.Submit(SubmitRequest{
			AccountID: "buyer", Symbol: "ACME", Side: domain.OrderSideBuy,
			Type: domain.OrderTypeLimit, Price: bidPrice, Quantity: quantity,
		})
		if err != nil {
			rt.Fatalf("place bid: %v", err)
		}

		shouldMatch := bidPrice.GreaterThanOrEqual(askPrice)
		if shouldMatch && len(bid.Trades) == 0 {
			rt.Fatalf("expected trade when bid=%s >= ask=%s", bidPrice, askPrice)
		}
		if !shouldMatch && len(bid.Trades) != 0 {
			rt.Fatalf("expected no trade when bid=%s < ask=%s", bidPrice, askPrice)
		}
		if shouldMatch && !bid.Trades[0].Price.Equal(ask.Price) {
			rt.Fatalf("trade price = %s, want resting price %s", bid.Trades[0].Price, ask.Price)
		}

		book := f.matcher.Books().GetOrCreate("ACME")
		bestBid, hasBid := book.BestBid()
		bestAsk, hasAsk := book.BestAsk()
		if hasBid && hasAsk && bestBid.Price.GreaterThanOrEqual(bestAsk.Price) {
			rt.Fatalf("book crossed: bid %s >= ask %s", bestBid.Price, bestAsk.Price)
		}
	})
}

// Property: matching conserves value. Total cash and total holdings
// across all accounts are unchanged by any sequence of submissions
// and cancellations, and no balance component goes negative.
func TestProperty_MatchingConservesValue(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		f := newTestMatcher(t)

		const numAccounts = 3
		totalCash := decimal.Zero
		totalQty := decimal.Zero
		for i := 0; i < numAccounts; i++ {
			cash := centsToDecimal(rapid.Int64Range(0, 100000).Draw(rt, fmt.Sprintf("cash%d", i)))
			qty := decimal.NewFromInt(rapid.Int64Range(0, 100).Draw(rt, fmt.Sprintf("qty%d", i)))
			seedDecimalAccount(f, fmt.Sprintf("acct%d", i), cash, qty)
			totalCash = totalCash.Add(cash)
			totalQty = totalQty.Add(qty)
		}

		numOps := rapid.IntRange(1, 25).Draw(rt, "numOps")
		var restingIDs []string
		for op := 0; op < numOps; op++ {
			accountID := fmt.Sprintf("acct%d", rapid.IntRange(0, numAccounts-1).Draw(rt, fmt.Sprintf("acct-op%d", op)))

			if len(restingIDs) > 0 && rapid.Bool().Draw(rt, fmt.Sprintf("cancel%d", op)) {
				idx := rapid.IntRange(0, len(restingIDs)-1).Draw(rt, fmt.Sprintf("cancelIdx%d", op))
				f.matcher.Cancel(restingIDs[idx])
				restingIDs = append(restingIDs[:idx], restingIDs[idx+1:]...)
				continue
			}

			side := domain.OrderSideBuy
			if rapid.Bool().Draw(rt, fmt.Sprintf("side%d", op)) {
				side = domain.OrderSideSell
			}
			order, err := f.matcher.Submit(SubmitRequest{
				AccountID: accountID,
				Symbol:    "ACME",
				Side:      side,
				Type:      domain.OrderTypeLimit,
				Price:     centsToDecimal(rapid.Int64Range(1, 2000).Draw(rt, fmt.Sprintf("price%d", op))),
				Quantity:  decimal.NewFromInt(rapid.Int64Range(1, 20).Draw(rt, fmt.Sprintf("orderQty%d", op))),
			})
			if err != nil {
				// Reservation failures are expected; they must not
				// change balances, which the final sums verify.
				continue
			}
			if !order.Status.Terminal() {
				restingIDs = append(restingIDs, order.ID)
			}
		}

		gotCash := decimal.Zero
		gotQty := decimal.Zero
		for i := 0; i < numAccounts; i++ {
			a, err := f.accounts.Get(fmt.Sprintf("acct%d", i))
			if err != nil {
				rt.Fatalf("get account: %v", err)
			}
			if a.CashBalance.IsNegative() || a.ReservedCash.IsNegative() || a.AvailableCash().IsNegative() {
				rt.Fatalf("account %s has negative cash component", a.ID)
			}
			gotCash = gotCash.Add(a.CashBalance)
			if h, ok := a.Holdings["ACME"]; ok {
				if h.Quantity.IsNegative() || h.Reserved.IsNegative() || h.Available().IsNegative() {
					rt.Fatalf("account %s has negative holding component", a.ID)
				}
				gotQty = gotQty.Add(h.Quantity)
			}
		}

		if !gotCash.Equal(totalCash) {
			rt.Fatalf("total cash = %s, want conserved %s", gotCash, totalCash)
		}
		if !gotQty.Equal(totalQty) {
			rt.Fatalf("total holdings = %s, want conserved %s", gotQty, totalQty)
		}
	})
}
