// Package dispatch fans committed journal entries out to external
// subscribers (the WebSocket market-data layer and any replication
// consumer). Subscriptions are restartable from a given sequence
// number: the hub replays the journal for catch-up, then hands over
// to the live stream with no gap and no duplicate.
package dispatch

import (
	"errors"
	"sync"

	"go.uber.org/zap"

	"github.com/openbourse/openbourse/internal/domain"
	"github.com/openbourse/openbourse/internal/journal"
)

// Hub is the dispatch boundary between the matching engine and its
// external consumers. Publish never blocks the engine: a subscriber
// that cannot keep up with its buffer is dropped, not waited on.
type Hub struct {
	mu      sync.Mutex
	journal *journal.Journal
	subs    map[*subscriber]struct{}
	buffer  int
	logger  *zap.Logger
}

type subscriber struct {
	live chan domain.Event
	done chan struct{}
}

// Subscription is a live, restartable stream of journal entries in
// sequence order. Events are delivered on C until Close is called or
// the subscriber is dropped for falling behind; either way C is
// closed.
type Subscription struct {
	C <-chan domain.Event

	hub  *Hub
	sub  *subscriber
	once sync.Once
}

// NewHub creates a Hub reading catch-up entries from jnl. buffer is
// the per-subscriber live buffer; a subscriber more than buffer
// events behind is dropped.
func NewHub(jnl *journal.Journal, buffer int, logger *zap.Logger) *Hub {
	return &Hub{
		journal: jnl,
		subs:    make(map[*subscriber]struct{}),
		buffer:  buffer,
		logger:  logger,
	}
}

// Publish delivers the entries of one committed batch to all
// subscribers. Wired as the journal's commit hook, so calls arrive
// in strict sequence order.
func (h *Hub) Publish(events []domain.Event) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for sub := range h.subs {
		h.deliverLocked(sub, events)
	}
}

// deliverLocked pushes events into one subscriber's live buffer,
// dropping the subscriber on overflow. Caller holds h.mu.
func (h *Hub) deliverLocked(sub *subscriber, events []domain.Event) {
	for i, ev := range events {
		select {
		case sub.live <- ev:
		default:
			// Subscriber fell behind; drop it rather than block the
			// engine.
			delete(h.subs, sub)
			close(sub.live)
			h.logger.Warn("dropping slow journal subscriber",
				zap.Uint64("seq", ev.Seq),
				zap.Int("undelivered", len(events)-i),
			)
			return
		}
	}
}

// Subscribe returns a stream of journal entries starting at sequence
// number from (0 and 1 both mean the beginning). Entries already in
// the journal are replayed first; the live stream follows without
// gaps or duplicates.
func (h *Hub) Subscribe(from uint64) *Subscription {
	sub := &subscriber{
		live: make(chan domain.Event, h.buffer),
		done: make(chan struct{}),
	}

	// Register before reading the high-water mark: anything appended
	// after this point lands in the live buffer, anything at or
	// before it is covered by catch-up, and the overlap is
	// deduplicated by sequence number below.
	h.mu.Lock()
	h.subs[sub] = struct{}{}
	h.mu.Unlock()
	last := h.journal.LastSeq()

	out := make(chan domain.Event)
	s := &Subscription{C: out, hub: h, sub: sub}

	go func() {
		defer close(out)

		if from <= last {
			err := h.journal.Replay(from, func(ev domain.Event) error {
				if ev.Seq > last {
					return nil
				}
				select {
				case out <- ev:
					return nil
				case <-sub.done:
					return errSubscriptionClosed
				}
			})
			if err != nil {
				if !errors.Is(err, errSubscriptionClosed) {
					h.logger.Error("journal catch-up failed", zap.Error(err))
				}
				h.drop(sub)
				return
			}
		}

		// Skip live entries already covered by catch-up, and entries
		// below the requested start when from points past the current
		// journal tail.
		for ev := range sub.live {
			if ev.Seq <= last || ev.Seq < from {
				continue
			}
			select {
			case out <- ev:
			case <-sub.done:
				return
			}
		}
	}()

	return s
}

var errSubscriptionClosed = errors.New("subscription closed")

// Close detaches the subscription. Safe to call more than once.
func (s *Subscription) Close() {
	s.once.Do(func() {
		close(s.sub.done)
		s.hub.drop(s.sub)
	})
}

// SubscriberCount returns the number of attached subscribers.
func (h *Hub) SubscriberCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}

func (h *Hub) drop(sub *subscriber) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.subs[sub]; ok {
		delete(h.subs, sub)
		close(sub.live)
	}
}
