package reservations

import (
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/metrics"
)

// tickScale cancels out metrics.EWMA's internal assumption that Tick
// is called on a fixed 5-second wall-clock cadence (the same cadence
// go-ethereum's own meterArbiter ticks every registered meter on).
// Reservations complete sparsely and irregularly rather than on a
// steady clock, so cohort.sample ticks once per completed download
// instead of on a timer; scaling each Update by tickScale before
// ticking immediately makes that single tick yield exactly the
// sampled rate (blocks/sec), which is what Rate() needs to mean here.
const tickScale = 5

// cohort tracks the download rate of completed reservations so
// individual peers can be compared against the pack (spec §4.1: "a
// peer whose measured rate deviates below mean_rate / maximum_deviation
// must release the reservation"). meanRate is the teacher's own
// metrics.EWMA (the same one-minute decaying average go-ethereum uses
// for its own peer/subsystem rate tracking), fed one rate sample per
// completed reservation.
type cohort struct {
	mu           sync.Mutex
	meanRate     metrics.EWMA
	maxDeviation float64
}

func newCohort(maxDeviation float64) *cohort {
	if maxDeviation <= 0 {
		maxDeviation = 1
	}
	return &cohort{
		meanRate:     metrics.NewEWMA1(),
		maxDeviation: maxDeviation,
	}
}

func (c *cohort) track(height uint64) *peerTracker {
	return &peerTracker{cohort: c, height: height, start: time.Now()}
}

func (c *cohort) sample(elapsed time.Duration) {
	if elapsed <= 0 {
		return
	}
	rateSample := 1.0 / elapsed.Seconds()

	c.mu.Lock()
	defer c.mu.Unlock()
	c.meanRate.Update(int64(rateSample * tickScale))
	c.meanRate.Tick()
}

func (c *cohort) threshold() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	mean := c.meanRate.Rate()
	if mean == 0 {
		return 0
	}
	return mean / c.maxDeviation
}

// peerTracker is the per-reservation handle into the cohort used to
// compare one session's measured rate against the pack. Until a
// completion is recorded, the rate is measured from the time the
// reservation was handed out.
type peerTracker struct {
	cohort      *cohort
	height      uint64
	start       time.Time
	lastElapsed time.Duration
	recorded    bool
	mu          sync.Mutex
}

func (t *peerTracker) record(elapsed time.Duration) {
	t.mu.Lock()
	t.lastElapsed = elapsed
	t.recorded = true
	t.mu.Unlock()
	t.cohort.sample(elapsed)
}

func (t *peerTracker) underperforming() bool {
	t.mu.Lock()
	elapsed := t.lastElapsed
	recorded := t.recorded
	t.mu.Unlock()
	if !recorded {
		elapsed = time.Since(t.start)
	}
	if elapsed <= 0 {
		return false
	}
	ownRate := 1.0 / elapsed.Seconds()
	th := t.cohort.threshold()
	return th > 0 && ownRate < th
}
