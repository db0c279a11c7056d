// Package journal implements the append-only history journal: the
// single source of global happens-before ordering for the exchange.
// Entries are keyed by a strictly increasing, gapless sequence number
// and are immutable once written; replaying them in order rebuilds
// the entity store and every order book exactly.
package journal

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/cockroachdb/pebble"
	"go.uber.org/zap"

	"github.com/openbourse/openbourse/internal/domain"
)

var entryPrefix = []byte("e:")

// ErrClosed is returned by operations on a closed journal.
var ErrClosed = errors.New("journal closed")

// Journal is a pebble-backed append-only event log. All entries of
// one engine transaction are committed in a single synced batch, so
// a crash never leaves a transaction half-journaled and sequence
// numbers stay gapless.
type Journal struct {
	mu      sync.Mutex
	db      *pebble.DB
	nextSeq uint64
	closed  bool
	notify  func([]domain.Event)
	logger  *zap.Logger
}

// Open opens (or creates) a journal at path and positions the
// sequence counter after the last persisted entry.
func Open(path string, logger *zap.Logger) (*Journal, error) {
	db, err := pebble.Open(path, &pebble.Options{})
	if err != nil {
		return nil, fmt.Errorf("open journal: %w", err)
	}

	j := &Journal{db: db, nextSeq: 1, logger: logger}
	last, ok, err := j.lastPersistedSeq()
	if err != nil {
		db.Close()
		return nil, err
	}
	if ok {
		j.nextSeq = last + 1
	}
	return j, nil
}

// Close closes the underlying store. Appends after Close fail.
func (j *Journal) Close() error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.closed {
		return nil
	}
	j.closed = true
	return j.db.Close()
}

// OnCommit registers fn to be invoked with the entries of every
// committed batch, inside Append's critical section. Successive
// invocations therefore observe batches in strict sequence order.
// fn must not block and must not call back into the journal.
func (j *Journal) OnCommit(fn func([]domain.Event)) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.notify = fn
}

// LastSeq returns the sequence number of the most recent entry, or 0
// if the journal is empty.
func (j *Journal) LastSeq() uint64 {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.nextSeq - 1
}

// Append assigns consecutive sequence numbers to events (mutating
// their Seq fields) and commits them in one synced batch. It returns
// the first assigned sequence number. Events from one call are
// contiguous in the journal; no entry from another call interleaves.
// A hook registered with OnCommit runs before Append returns, still
// under the append lock.
func (j *Journal) Append(events []domain.Event) (uint64, error) {
	if len(events) == 0 {
		return 0, errors.New("append of zero events")
	}

	j.mu.Lock()
	defer j.mu.Unlock()
	if j.closed {
		return 0, ErrClosed
	}

	first := j.nextSeq
	batch := j.db.NewBatch()
	defer batch.Close()

	for i := range events {
		events[i].Seq = first + uint64(i)
		val, err := json.Marshal(&events[i])
		if err != nil {
			return 0, fmt.Errorf("encode journal entry %d: %w", events[i].Seq, err)
		}
		if err := batch.Set(entryKey(events[i].Seq), val, nil); err != nil {
			return 0, err
		}
	}

	if err := batch.Commit(pebble.Sync); err != nil {
		return 0, fmt.Errorf("commit journal batch at %d: %w", first, err)
	}

	j.nextSeq = first + uint64(len(events))
	if j.notify != nil {
		j.notify(events)
	}
	return first, nil
}

// Replay streams entries with sequence numbers in [from, ∞) in order,
// invoking fn for each. Replay is restartable from any sequence
// number and read-only; replaying the same range twice yields the
// same entries. fn returning an error stops the scan.
func (j *Journal) Replay(from uint64, fn func(domain.Event) error) error {
	if from == 0 {
		from = 1
	}

	iter, err := j.db.NewIter(&pebble.IterOptions{
		LowerBound: entryKey(from),
		UpperBound: keyUpperBound(entryPrefix),
	})
	if err != nil {
		return err
	}
	defer iter.Close()

	for iter.First(); iter.Valid(); iter.Next() {
		var ev domain.Event
		if err := json.Unmarshal(iter.Value(), &ev); err != nil {
			return fmt.Errorf("decode journal entry %x: %w", iter.Key(), err)
		}
		if err := fn(ev); err != nil {
			return err
		}
	}
	return iter.Error()
}

// Range returns the entries with sequence numbers in [from, to].
func (j *Journal) Range(from, to uint64) ([]domain.Event, error) {
	var out []domain.Event
	err := j.Replay(from, func(ev domain.Event) error {
		if ev.Seq > to {
			return errStopScan
		}
		out = append(out, ev)
		return nil
	})
	if err != nil && !errors.Is(err, errStopScan) {
		return nil, err
	}
	return out, nil
}

var errStopScan = errors.New("stop scan")

// lastPersistedSeq finds the highest entry key, if any.
func (j *Journal) lastPersistedSeq() (uint64, bool, error) {
	iter, err := j.db.NewIter(&pebble.IterOptions{
		LowerBound: entryPrefix,
		UpperBound: keyUpperBound(entryPrefix),
	})
	if err != nil {
		return 0, false, err
	}
	defer iter.Close()

	if !iter.Last() {
		return 0, false, iter.Error()
	}
	key := iter.Key()
	if len(key) != len(entryPrefix)+8 {
		return 0, false, fmt.Errorf("malformed journal key %x", key)
	}
	return binary.BigEndian.Uint64(key[len(entryPrefix):]), true, nil
}

// entryKey builds the pebble key for a sequence number. Big-endian
// encoding keeps lexicographic and numeric order identical.
func entryKey(seq uint64) []byte {
	k := make([]byte, len(entryPrefix)+8)
	copy(k, entryPrefix)
	binary.BigEndian.PutUint64(k[len(entryPrefix):], seq)
	return k
}

// keyUpperBound returns the smallest key greater than every key with
// the given prefix.
func keyUpperBound(prefix []byte) []byte {
	end := make([]byte, len(prefix))
	copy(end, prefix)
	for i := len(end) - 1; i >= 0; i-- {
		end[i]++
		if end[i] != 0 {
			return end[:i+1]
		}
	}
	return nil
}
