// Package reservations implements the block-download reservation
// queue: a thread-safe, double-ended work list of (hash, height) pairs
// awaiting download, handed out as Reservation slots to sessions.
//
// Modeled on the teacher's downloader queue (eth/downloader), which
// schedules headers/bodies by height and hands work to peers; here the
// queue additionally survives reorgs by supporting push_front (reseed),
// push_back (new candidate headers) and a tail-matched pop_back (roll
// back outgoing candidate headers), per the node's reorg policy.
package reservations

import (
	"container/list"
	"sync"
	"time"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
)

// entry is one reservation slot: a candidate header awaiting download.
type entry struct {
	hash   chainhash.Hash
	height uint64
}

// BlockSink receives a completed download. It is invoked by
// Reservation.Done and is expected to forward the block into the
// chain facade; returning an error fails the reservation without
// retiring it.
type BlockSink func(hash chainhash.Hash, height uint64, block any) error

// Queue is the thread-safe reservation queue described in spec §4.1.
// All mutators and Get are serialized behind a single mutex; the
// queue's own lock never escapes to callers, so it is safe to call
// from any number of session goroutines concurrently.
type Queue struct {
	mu       sync.Mutex
	order    *list.List                           // front = highest priority
	byHeight map[uint64]map[chainhash.Hash]*list.Element
	byHash   map[chainhash.Hash]*list.Element

	sink BlockSink

	latency time.Duration // block_latency_seconds, the per-slot deadline
	cohort  *cohort
}

// New creates an empty Queue. latency is the settings-derived
// block_latency_seconds deadline attached to every Reservation;
// maxDeviation is the settings-derived maximum_deviation ratio used by
// the performance tracker. sink receives completed downloads.
func New(latency time.Duration, maxDeviation float64, sink BlockSink) *Queue {
	return &Queue{
		order:    list.New(),
		byHeight: make(map[uint64]map[chainhash.Hash]*list.Element),
		byHash:   make(map[chainhash.Hash]*list.Element),
		sink:     sink,
		latency:  latency,
		cohort:   newCohort(maxDeviation),
	}
}

// PushFront inserts at the high-priority end. Used when re-seeding the
// queue from the candidate chain top downward.
func (q *Queue) PushFront(hash chainhash.Hash, height uint64) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.insert(q.order.PushFront(entry{hash, height}), hash, height)
}

// PushBack inserts at the low-priority end. Used when a reorg appends
// new candidate headers.
func (q *Queue) PushBack(hash chainhash.Hash, height uint64) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.insert(q.order.PushBack(entry{hash, height}), hash, height)
}

func (q *Queue) insert(el *list.Element, hash chainhash.Hash, height uint64) {
	byHash, ok := q.byHeight[height]
	if !ok {
		byHash = make(map[chainhash.Hash]*list.Element)
		q.byHeight[height] = byHash
	}
	byHash[hash] = el
	q.byHash[hash] = el
}

// PopBack removes the entry at height iff it currently sits at the
// tail of the queue and its hash matches. Returns true if an entry was
// removed. No-op (returns false) if the height/hash pair is not the
// tail entry — this is the rollback primitive used to unwind outgoing
// candidate headers during a reorg.
func (q *Queue) PopBack(hash chainhash.Hash, height uint64) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	tail := q.order.Back()
	if tail == nil {
		return false
	}
	e := tail.Value.(entry)
	if e.hash != hash || e.height != height {
		return false
	}
	q.remove(tail, e)
	return true
}

func (q *Queue) remove(el *list.Element, e entry) {
	q.order.Remove(el)
	delete(q.byHash, e.hash)
	if byHash := q.byHeight[e.height]; byHash != nil {
		delete(byHash, e.hash)
		if len(byHash) == 0 {
			delete(q.byHeight, e.height)
		}
	}
}

// Get atomically pops the front entry and wraps it in a Reservation.
// Policy: non-blocking. If the queue is empty, Get returns
// (Reservation{}, false) immediately rather than parking the caller —
// see SPEC_FULL.md §5 for the rationale. Callers (sessions) are
// expected to retry on a short backoff.
func (q *Queue) Get() (Reservation, bool) {
	q.mu.Lock()
	front := q.order.Front()
	if front == nil {
		q.mu.Unlock()
		return Reservation{}, false
	}
	e := front.Value.(entry)
	q.remove(front, e)
	q.mu.Unlock()

	return Reservation{
		q:        q,
		Hash:     e.hash,
		Height:   e.height,
		Deadline: time.Now().Add(q.latency),
		tracker:  q.cohort.track(e.height),
	}, true
}

// Size reports the number of entries currently queued.
func (q *Queue) Size() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.order.Len()
}

// TailHeight reports the height of the tail (lowest-priority) entry,
// used by reorg handling and its tests to confirm the queue's tail
// tracks the new candidate top. The second return is false on an
// empty queue.
func (q *Queue) TailHeight() (uint64, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	tail := q.order.Back()
	if tail == nil {
		return 0, false
	}
	return tail.Value.(entry).height, true
}

// release returns a reservation to the front of the queue, used when a
// peer's measured rate falls below the cohort threshold (spec S6) or
// when its session exits before completing the download.
func (q *Queue) release(hash chainhash.Hash, height uint64) {
	q.PushFront(hash, height)
}
