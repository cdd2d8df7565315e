package reservations

import (
	"testing"
	"time"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"pgregory.net/rapid"
)

func hashOf(b byte) chainhash.Hash {
	var h chainhash.Hash
	h[0] = b
	return h
}

func TestBasics(t *testing.T) {
	q := New(time.Second, 2, nil)
	if q.Size() != 0 {
		t.Fatalf("new queue should be empty")
	}
	q.PushBack(hashOf(1), 1)
	q.PushBack(hashOf(2), 2)
	if q.Size() != 2 {
		t.Fatalf("expected size 2, got %d", q.Size())
	}
	r, ok := q.Get()
	if !ok || r.Height != 1 {
		t.Fatalf("expected front entry at height 1, got %+v ok=%v", r, ok)
	}
	if q.Size() != 1 {
		t.Fatalf("expected size 1 after Get, got %d", q.Size())
	}
}

func TestGetOnEmptyQueueReturnsFalse(t *testing.T) {
	q := New(time.Second, 2, nil)
	if _, ok := q.Get(); ok {
		t.Fatalf("expected Get on empty queue to return false")
	}
}

func TestPopBackNoopUnlessTailMatches(t *testing.T) {
	q := New(time.Second, 2, nil)
	q.PushBack(hashOf(1), 100)
	q.PushBack(hashOf(2), 101)

	// Wrong hash at the right height: no-op.
	if q.PopBack(hashOf(9), 101) {
		t.Fatalf("expected no-op popping wrong hash")
	}
	if q.Size() != 2 {
		t.Fatalf("size should be unaffected by a no-op pop")
	}

	// Right hash, but not the tail: no-op.
	if q.PopBack(hashOf(1), 100) {
		t.Fatalf("expected no-op popping a non-tail entry")
	}

	// Matching tail: removed.
	if !q.PopBack(hashOf(2), 101) {
		t.Fatalf("expected tail-matched pop to succeed")
	}
	if q.Size() != 1 {
		t.Fatalf("expected size 1 after popping the tail, got %d", q.Size())
	}
}

func TestReseedFromCandidateAlwaysReservesTopValidPlusOne(t *testing.T) {
	// Re-seeding policy (spec §4.1): push from candidate height down to
	// top_valid+1, and always push top_valid+1 even if its body is
	// already present.
	const candidateHeight, topValid = 12, 10
	q := New(time.Second, 2, nil)
	startHeight := uint64(topValid + 1)
	for h := uint64(candidateHeight); h >= startHeight; h-- {
		q.PushFront(hashOf(byte(h)), h)
		if h == 0 {
			break
		}
	}
	if q.Size() == 0 {
		t.Fatalf("expected at least one reservation at height top_valid+1")
	}
}

// TestQueueSizeInvariant exercises invariant 1 from spec §8: for all
// interleavings of push_front/push_back/pop_back/get against an
// initially empty queue, size() equals inserts minus removals.
func TestQueueSizeInvariant(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		q := New(time.Second, 2, nil)
		want := 0
		nextHeight := uint64(0)

		ops := rapid.IntRange(0, 3)
		for i := 0; i < 200; i++ {
			switch ops.Draw(t, "op") {
			case 0: // push_front
				q.PushFront(hashOf(byte(nextHeight)), nextHeight)
				nextHeight++
				want++
			case 1: // push_back
				q.PushBack(hashOf(byte(nextHeight)), nextHeight)
				nextHeight++
				want++
			case 2: // pop_back (tail-matched, using the actual tail so it isn't a no-op)
				if h, ok := q.TailHeight(); ok {
					// reconstruct the tail hash deterministically
					q.mu.Lock()
					tail := q.order.Back()
					e := tail.Value.(entry)
					q.mu.Unlock()
					if q.PopBack(e.hash, h) {
						want--
					}
				}
			case 3: // get
				if _, ok := q.Get(); ok {
					want--
				}
			}
			if q.Size() != want {
				t.Fatalf("size mismatch: got %d, want %d", q.Size(), want)
			}
		}
	})
}

// TestPopBackNoopIffNotTailMatch exercises invariant 3: pop_back(h,
// height) is a no-op iff no tail entry matches both hash and height.
func TestPopBackNoopIffNotTailMatch(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		q := New(time.Second, 2, nil)
		q.PushBack(hashOf(1), 1)
		q.PushBack(hashOf(2), 2)

		tryHash := rapid.IntRange(0, 3).Draw(t, "hash")
		tryHeight := rapid.IntRange(0, 3).Draw(t, "height")

		q.mu.Lock()
		var tailMatches bool
		if tail := q.order.Back(); tail != nil {
			e := tail.Value.(entry)
			tailMatches = e.hash == hashOf(byte(tryHash)) && e.height == uint64(tryHeight)
		}
		sizeBefore := q.order.Len()
		q.mu.Unlock()

		removed := q.PopBack(hashOf(byte(tryHash)), uint64(tryHeight))
		if removed != tailMatches {
			t.Fatalf("PopBack returned %v, want %v", removed, tailMatches)
		}
		if removed && q.Size() != sizeBefore-1 {
			t.Fatalf("expected size to drop by one on a real removal")
		}
		if !removed && q.Size() != sizeBefore {
			t.Fatalf("expected size unchanged on a no-op")
		}
	})
}
