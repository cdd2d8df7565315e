// Package session implements the per-peer protocol drivers described
// in spec §4.4: a small state machine that negotiates a handshake and,
// for outbound/manual sessions, claims Reservations and feeds
// completed downloads back into the chain. Wire framing itself is out
// of scope (spec Non-goals); BlockFetcher stands in for the opaque
// getdata round-trip a real session would perform.
package session

import (
	"context"
	"math/rand"
	"time"

	"github.com/btcnode/bn/bnerrors"
	"github.com/btcnode/bn/log"
	"github.com/btcnode/bn/reservations"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/google/uuid"
)

// Kind identifies which of the three session flavors this is.
type Kind int

const (
	Outbound Kind = iota
	Inbound
	Manual
)

func (k Kind) String() string {
	switch k {
	case Outbound:
		return "outbound"
	case Inbound:
		return "inbound"
	case Manual:
		return "manual"
	default:
		return "unknown"
	}
}

// State is the per-peer handshake/liveness state.
type State int

const (
	Unstarted State = iota
	Handshaking
	Active
	Closed
)

// BlockFetcher performs the (opaque) getdata round-trip for one
// reserved block. A real session would issue this over the wire; this
// repo's Non-goals exclude wire framing, so sessions are handed an
// injectable fetcher instead.
type BlockFetcher func(ctx context.Context, hash chainhash.Hash, height uint64) (block any, err error)

// Session drives one peer connection. Outbound and Manual sessions
// pull Reservations and fetch blocks; Inbound sessions only negotiate
// and otherwise idle, serving whatever the (opaque) wire layer asks of
// them.
type Session struct {
	ID    string
	Kind  Kind
	State State

	queue *reservations.Queue
	fetch BlockFetcher
	log   log.Logger

	backoff time.Duration
}

// New builds a Session of the given kind, bound to queue for
// reservation claims and fetch for block retrieval. Inbound sessions
// may pass a nil queue/fetch since they never claim work.
func New(kind Kind, queue *reservations.Queue, fetch BlockFetcher) *Session {
	return &Session{
		ID:      uuid.NewString(),
		Kind:    kind,
		State:   Unstarted,
		queue:   queue,
		fetch:   fetch,
		log:     log.New("session", kind.String()),
		backoff: 50 * time.Millisecond,
	}
}

// Run drives the session until ctx is canceled. It negotiates a
// handshake, then — for Outbound/Manual sessions — repeatedly claims a
// Reservation, fetches its block, and forwards it to the chain via
// Reservation.Done. Reservations are released (not lost) whenever a
// fetch fails, a peer underperforms, or ctx is canceled mid-download,
// so another session can pick the height back up (spec S4, S6).
func (s *Session) Run(ctx context.Context) error {
	s.State = Handshaking
	s.log.Debug("handshake", "id", s.ID)
	s.State = Active

	if s.Kind == Inbound {
		<-ctx.Done()
		s.State = Closed
		return nil
	}

	for {
		select {
		case <-ctx.Done():
			s.State = Closed
			return nil
		default:
		}

		r, ok := s.queue.Get()
		if !ok {
			if !sleepWithJitter(ctx, s.backoff) {
				s.State = Closed
				return nil
			}
			continue
		}

		if r.Expired() {
			r.Release()
			continue
		}

		block, err := s.fetch(ctx, r.Hash, r.Height)
		if err != nil {
			s.log.Debug("fetch failed, releasing reservation", "height", r.Height, "err", err, "kind", bnerrors.ErrNetworkError)
			r.Release()
			continue
		}

		if r.Underperforming() {
			s.log.Warn("peer underperforming cohort, dropping", "id", s.ID, "height", r.Height)
			r.Release()
			s.State = Closed
			return nil
		}

		if err := r.Done(block); err != nil {
			s.log.Warn("failed to commit downloaded block", "height", r.Height, "err", err)
			r.Release()
		}
	}
}

func sleepWithJitter(ctx context.Context, base time.Duration) bool {
	jitter := time.Duration(rand.Int63n(int64(base)))
	timer := time.NewTimer(base + jitter)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
