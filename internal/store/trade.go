package store

import (
	"sync"
	"time"

	"github.com/openbourse/openbourse/internal/domain"
)

// TradeStore holds executed trades per symbol, in execution order.
// Trades are append-only; the journal is the durable record, this is
// the query-side cache.
type TradeStore struct {
	mu     sync.RWMutex
	trades map[string][]*domain.Trade
}

// NewTradeStore creates an empty TradeStore.
func NewTradeStore() *TradeStore {
	return &TradeStore{
		trades: make(map[string][]*domain.Trade),
	}
}

// Append records a trade under its symbol.
func (s *TradeStore) Append(t *domain.Trade) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.trades[t.Symbol] = append(s.trades[t.Symbol], t)
}

// GetBySymbol returns a copy of the symbol's trades in execution order.
func (s *TradeStore) GetBySymbol(symbol string) []*domain.Trade {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*domain.Trade, len(s.trades[symbol]))
	copy(result, s.trades[symbol])
	return result
}

// Recent returns up to limit trades for the symbol, newest first.
func (s *TradeStore) Recent(symbol string, limit int) []*domain.Trade {
	s.mu.RLock()
	defer s.mu.RUnlock()

	trades := s.trades[symbol]
	result := make([]*domain.Trade, 0, limit)
	for i := len(trades) - 1; i >= 0 && len(result) < limit; i-- {
		result = append(result, trades[i])
	}
	return result
}

// Last returns the symbol's most recent trade.
func (s *TradeStore) Last(symbol string) (*domain.Trade, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	trades := s.trades[symbol]
	if len(trades) == 0 {
		return nil, false
	}
	return trades[len(trades)-1], true
}

// Since returns the symbol's trades executed at or after cutoff, in
// execution order. Scans backward from the tail.
func (s *TradeStore) Since(symbol string, cutoff time.Time) []*domain.Trade {
	s.mu.RLock()
	defer s.mu.RUnlock()

	trades := s.trades[symbol]
	start := len(trades)
	for start > 0 && !trades[start-1].ExecutedAt.Before(cutoff) {
		start--
	}

	result := make([]*domain.Trade, len(trades)-start)
	copy(result, trades[start:])
	return result
}
