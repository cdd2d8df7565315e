package reservations

import (
	"testing"
	"time"
)

func TestUnderperformingPeerIsFlagged(t *testing.T) {
	q := New(time.Second, 2, nil)

	// A handful of fast reservations establish the cohort mean.
	for i := 0; i < 5; i++ {
		q.PushBack(hashOf(byte(i)), uint64(i))
		r, _ := q.Get()
		r.tracker.record(100 * time.Millisecond)
	}

	// A slow one should be well below mean/maxDeviation.
	q.PushBack(hashOf(99), 99)
	slow, _ := q.Get()
	slow.tracker.record(5 * time.Second)

	if !slow.Underperforming() {
		t.Fatalf("expected slow reservation to be flagged underperforming")
	}
}

func TestReleaseReturnsToFront(t *testing.T) {
	q := New(time.Second, 2, nil)
	q.PushBack(hashOf(1), 1)
	q.PushBack(hashOf(2), 2)

	r, _ := q.Get() // claims height 1
	r.Release()

	front, ok := q.Get()
	if !ok || front.Height != 1 {
		t.Fatalf("expected released reservation back at the front, got %+v", front)
	}
}
