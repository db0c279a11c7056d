package engine

import (
	"sync"
	"time"

	"github.com/google/btree"
	"github.com/shopspring/decimal"

	"github.com/openbourse/openbourse/internal/domain"
)

// BookEntry represents a single order resting on the book. Seq is the
// order's journal acceptance sequence and provides time priority: it
// is unique and globally ordered, so ties at equal price resolve
// deterministically even under concurrent arrival.
type BookEntry struct {
	Price   decimal.Decimal
	Seq     uint64
	OrderID string
	Order   *domain.Order
}

// PriceLevel represents an aggregated price level in the order book.
type PriceLevel struct {
	Price         decimal.Decimal
	TotalQuantity decimal.Decimal
	OrderCount    int
}

// BookView is a consistent top-of-book / depth snapshot.
type BookView struct {
	Symbol     string
	Bids       []PriceLevel
	Asks       []PriceLevel
	SnapshotAt time.Time
}

// bidLess defines ordering for the bid side: price descending, then
// acceptance sequence ascending. Min() returns the best bid (highest
// price, earliest acceptance).
func bidLess(a, b BookEntry) bool {
	switch a.Price.Cmp(b.Price) {
	case 1:
		return true
	case -1:
		return false
	}
	return a.Seq < b.Seq
}

// askLess defines ordering for the ask side: price ascending, then
// acceptance sequence ascending. Min() returns the best ask (lowest
// price, earliest acceptance).
func askLess(a, b BookEntry) bool {
	switch a.Price.Cmp(b.Price) {
	case -1:
		return true
	case 1:
		return false
	}
	return a.Seq < b.Seq
}

// Book maintains the bid and ask sides for a single instrument using
// B-trees with a secondary index for O(log n) removal by order ID.
// The book's write lock is the instrument's serialization point: the
// matcher holds it for an entire submit/cancel transaction, so
// readers taking the read lock always observe fully applied matches.
type Book struct {
	symbol string
	mu     sync.RWMutex
	bids   *btree.BTreeG[BookEntry]
	asks   *btree.BTreeG[BookEntry]
	index  map[string]BookEntry // order_id → entry

	// halted is set when an invariant violation is detected; the
	// matcher refuses all further mutations for this instrument.
	halted bool
}

// NewBook creates an order book for the given symbol.
func NewBook(symbol string) *Book {
	const degree = 32
	return &Book{
		symbol: symbol,
		bids:   btree.NewG[BookEntry](degree, bidLess),
		asks:   btree.NewG[BookEntry](degree, askLess),
		index:  make(map[string]BookEntry),
	}
}

// Insert places a resting order entry onto the correct side,
// maintaining price/time ordering.
func (b *Book) Insert(entry BookEntry) {
	if entry.Order.Side == domain.OrderSideBuy {
		b.bids.ReplaceOrInsert(entry)
	} else {
		b.asks.ReplaceOrInsert(entry)
	}
	b.index[entry.OrderID] = entry
}

// Remove deletes a resting order by ID using the secondary index and
// returns it. It returns false if the order is not resting (already
// filled or cancelled).
func (b *Book) Remove(orderID string) (BookEntry, bool) {
	entry, ok := b.index[orderID]
	if !ok {
		return BookEntry{}, false
	}
	delete(b.index, orderID)
	// Delete is a no-op on the side that doesn't hold the entry.
	b.bids.Delete(entry)
	b.asks.Delete(entry)
	return entry, true
}

// BestBid returns the highest-priority bid (highest price, earliest
// acceptance).
func (b *Book) BestBid() (BookEntry, bool) {
	return b.bids.Min()
}

// BestAsk returns the highest-priority ask (lowest price, earliest
// acceptance).
func (b *Book) BestAsk() (BookEntry, bool) {
	return b.asks.Min()
}

// bestFor returns the top of the book on the given side.
func (b *Book) bestFor(side domain.OrderSide) (BookEntry, bool) {
	if side == domain.OrderSideBuy {
		return b.BestBid()
	}
	return b.BestAsk()
}

// WalkAsks iterates asks in priority order (lowest price first). The
// callback returns true to continue, false to stop.
func (b *Book) WalkAsks(fn func(BookEntry) bool) {
	b.asks.Ascend(fn)
}

// WalkBids iterates bids in priority order (highest price first). The
// callback returns true to continue, false to stop.
func (b *Book) WalkBids(fn func(BookEntry) bool) {
	b.bids.Ascend(fn)
}

// ViewAsks iterates asks in priority order under the read lock, for
// callers outside the matching path.
func (b *Book) ViewAsks(fn func(BookEntry) bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	b.asks.Ascend(fn)
}

// ViewBids iterates bids in priority order under the read lock, for
// callers outside the matching path.
func (b *Book) ViewBids(fn func(BookEntry) bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	b.bids.Ascend(fn)
}

// BidCount returns the number of individual bid orders on the book.
func (b *Book) BidCount() int {
	return b.bids.Len()
}

// AskCount returns the number of individual ask orders on the book.
func (b *Book) AskCount() int {
	return b.asks.Len()
}

// Snapshot returns up to depth aggregated price levels per side under
// the read lock, so it never observes a half-applied match.
func (b *Book) Snapshot(depth int) BookView {
	b.mu.RLock()
	defer b.mu.RUnlock()

	return BookView{
		Symbol:     b.symbol,
		Bids:       topLevels(b.bids, depth),
		Asks:       topLevels(b.asks, depth),
		SnapshotAt: time.Now(),
	}
}

// topLevels iterates a side in order and aggregates entries into
// at most n price levels.
func topLevels(tree *btree.BTreeG[BookEntry], n int) []PriceLevel {
	if n <= 0 {
		return nil
	}
	levels := make([]PriceLevel, 0, n)
	tree.Ascend(func(entry BookEntry) bool {
		if len(levels) > 0 && levels[len(levels)-1].Price.Equal(entry.Price) {
			levels[len(levels)-1].TotalQuantity = levels[len(levels)-1].TotalQuantity.Add(entry.Order.RemainingQuantity)
			levels[len(levels)-1].OrderCount++
			return true
		}
		if len(levels) >= n {
			return false
		}
		levels = append(levels, PriceLevel{
			Price:         entry.Price,
			TotalQuantity: entry.Order.RemainingQuantity,
			OrderCount:    1,
		})
		return true
	})
	return levels
}

// BookManager is a thread-safe map of symbol → Book.
type BookManager struct {
	mu    sync.RWMutex
	books map[string]*Book
}

// NewBookManager creates a new BookManager.
func NewBookManager() *BookManager {
	return &BookManager{
		books: make(map[string]*Book),
	}
}

// Each invokes fn for every known book.
func (m *BookManager) Each(fn func(*Book)) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, b := range m.books {
		fn(b)
	}
}

// GetOrCreate returns the order book for the given symbol, creating
// one if it doesn't already exist.
func (m *BookManager) GetOrCreate(symbol string) *Book {
	m.mu.RLock()
	book, ok := m.books[symbol]
	m.mu.RUnlock()
	if ok {
		return book
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	// Double-check after acquiring write lock.
	if book, ok = m.books[symbol]; ok {
		return book
	}
	book = NewBook(symbol)
	m.books[symbol] = book
	return book
}
