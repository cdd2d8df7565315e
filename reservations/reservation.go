package reservations

import (
	"time"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
)

// Reservation is a single session's claim on one (hash, height)
// download. It is returned by Queue.Get and must be retired exactly
// once, either via Done (success) or Release (abandon).
type Reservation struct {
	q        *Queue
	Hash     chainhash.Hash
	Height   uint64
	Deadline time.Time
	tracker  *peerTracker
}

// Empty reports whether this is the zero-value Reservation returned
// when Get found nothing to hand out.
func (r Reservation) Empty() bool {
	return r.q == nil
}

// Done forwards block to the queue's configured sink and retires the
// slot. Completion also records a sample against the performance
// cohort so slow peers can be detected on subsequent reservations.
func (r Reservation) Done(block any) error {
	if r.q == nil {
		return nil
	}
	elapsed := time.Since(r.Deadline.Add(-r.q.latency))
	r.tracker.record(elapsed)
	if r.q.sink == nil {
		return nil
	}
	return r.q.sink(r.Hash, r.Height, block)
}

// Expired reports whether the reservation's deadline has passed.
func (r Reservation) Expired() bool {
	return !r.Deadline.IsZero() && time.Now().After(r.Deadline)
}

// Underperforming reports whether the session holding this
// reservation has fallen far enough behind its cohort (measured rate
// below mean/maximum_deviation) that it should be dropped.
func (r Reservation) Underperforming() bool {
	if r.q == nil {
		return false
	}
	return r.tracker.underperforming()
}

// Release returns the reservation to the front of the queue so
// another session can claim it — used both when a peer is dropped for
// underperforming (S6) and when a session exits before completing its
// download.
func (r Reservation) Release() {
	if r.q == nil {
		return
	}
	r.q.release(r.Hash, r.Height)
}
