package bnnode

import (
	"context"
	"testing"
	"time"

	"github.com/btcnode/bn/chainfacade"
	"github.com/btcnode/bn/internal/bnconfig"
	"github.com/btcnode/bn/networkfacade"
	"github.com/btcnode/bn/reservations"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"go.uber.org/goleak"
)

func hashOf(b byte) chainhash.Hash {
	var h chainhash.Hash
	h[0] = b
	return h
}

func noopFetch(ctx context.Context, hash chainhash.Hash, height uint64) (any, error) {
	return struct{}{}, nil
}

func newTestNode(t *testing.T) (*FullNode, *chainfacade.LevelChain) {
	t.Helper()
	chain, err := chainfacade.InitChain(t.TempDir(), chainfacade.Checkpoint{Hash: hashOf(0), Height: 0})
	if err != nil {
		t.Fatalf("InitChain: %v", err)
	}
	t.Cleanup(func() { chain.Close() })

	settings := bnconfig.Default()
	settings.Network.OutboundConnections = 2
	q := reservations.New(time.Second, settings.Blockchain.MaximumDeviation, func(hash chainhash.Hash, height uint64, block any) error {
		return chain.MarkBodyStored(hash)
	})

	net, err := networkfacade.New(settings.Network, q, noopFetch)
	if err != nil {
		t.Fatalf("networkfacade.New: %v", err)
	}

	return New(chain, net, q, settings), chain
}

// S1: cold start, then run with nothing to download.
func TestColdStartRunProducesNoReservations(t *testing.T) {
	defer goleak.VerifyNone(t)

	n, _ := newTestNode(t)
	if err := n.Start(nil); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := n.Run(nil); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if got := n.State(); got != Running {
		t.Fatalf("expected Running, got %s", got)
	}
	if size := n.reservations.Size(); size != 0 {
		t.Fatalf("expected empty queue on genesis-only chain, got size %d", size)
	}
	if err := n.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
}

// S2: a single-header extension is re-seeded as exactly one
// reservation at height 1.
func TestReindexSeedsReservationAtNextHeight(t *testing.T) {
	defer goleak.VerifyNone(t)

	n, chain := newTestNode(t)
	if err := n.Start(nil); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := n.Run(nil); err != nil {
		t.Fatalf("Run: %v", err)
	}

	h1 := chainfacade.HeaderRef{Hash: hashOf(1)}
	if err := chain.Reindex(0, []chainfacade.HeaderRef{h1}, nil); err != nil {
		t.Fatalf("Reindex: %v", err)
	}

	if size := n.reservations.Size(); size != 1 {
		t.Fatalf("expected 1 reservation after single-header reindex, got %d", size)
	}
	tail, ok := n.reservations.TailHeight()
	if !ok || tail != 1 {
		t.Fatalf("expected tail height 1, got %d ok=%v", tail, ok)
	}

	if err := n.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
}

// S3: a two-block reorg pops outgoing in reverse height order and
// pushes incoming back on in forward height order, leaving the tail
// tracking the new candidate top.
func TestTwoBlockReorgPopsOutgoingPushesIncomingInOrder(t *testing.T) {
	defer goleak.VerifyNone(t)

	n, chain := newTestNode(t)
	if err := n.Start(nil); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := n.Run(nil); err != nil {
		t.Fatalf("Run: %v", err)
	}

	h1 := chainfacade.HeaderRef{Hash: hashOf(1)}
	h2 := chainfacade.HeaderRef{Hash: hashOf(2)}
	if err := chain.Reindex(0, []chainfacade.HeaderRef{h1, h2}, nil); err != nil {
		t.Fatalf("Reindex (extend): %v", err)
	}
	if size := n.reservations.Size(); size != 2 {
		t.Fatalf("expected 2 reservations after two-header extension, got %d", size)
	}

	h1b := chainfacade.HeaderRef{Hash: hashOf(11)}
	h2b := chainfacade.HeaderRef{Hash: hashOf(12)}
	if err := chain.Reindex(0, []chainfacade.HeaderRef{h1b, h2b}, []chainfacade.HeaderRef{h1, h2}); err != nil {
		t.Fatalf("Reindex (two-block reorg): %v", err)
	}

	if size := n.reservations.Size(); size != 2 {
		t.Fatalf("expected 2 reservations after equal-length reorg, got %d", size)
	}
	tail, ok := n.reservations.TailHeight()
	if !ok || tail != 2 {
		t.Fatalf("expected tail height 2, got %d ok=%v", tail, ok)
	}
	if !n.reservations.PopBack(h2b.Hash, 2) {
		t.Fatalf("expected tail entry to be the new height-2 header")
	}
	if !n.reservations.PopBack(h1b.Hash, 1) {
		t.Fatalf("expected next-to-tail entry to be the new height-1 header")
	}
	if size := n.reservations.Size(); size != 0 {
		t.Fatalf("expected queue drained after popping both new entries, got %d", size)
	}

	if got := n.Top().Candidate; got.Hash != h2b.Hash || got.Height != 2 {
		t.Fatalf("expected cached candidate top to be the new height-2 header, got %+v", got)
	}

	if err := n.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
}

// Regression test for the handleReindexed guard: a pure rollback (no
// replacement headers yet) must leave the reservation queue untouched,
// even though len(Outgoing) > 0. An earlier guard only short-circuited
// when both Incoming and Outgoing were empty, which let this case fall
// through into the pop loop and incorrectly drop tail reservations.
func TestPureRollbackWithNoIncomingLeavesReservationsUnchanged(t *testing.T) {
	defer goleak.VerifyNone(t)

	n, chain := newTestNode(t)
	if err := n.Start(nil); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := n.Run(nil); err != nil {
		t.Fatalf("Run: %v", err)
	}

	h1 := chainfacade.HeaderRef{Hash: hashOf(1)}
	h2 := chainfacade.HeaderRef{Hash: hashOf(2)}
	if err := chain.Reindex(0, []chainfacade.HeaderRef{h1, h2}, nil); err != nil {
		t.Fatalf("Reindex (extend): %v", err)
	}

	if err := chain.Reindex(0, nil, []chainfacade.HeaderRef{h1, h2}); err != nil {
		t.Fatalf("Reindex (pure rollback): %v", err)
	}

	if size := n.reservations.Size(); size != 2 {
		t.Fatalf("expected reservations untouched by a pure rollback, got size %d", size)
	}
	tail, ok := n.reservations.TailHeight()
	if !ok || tail != 2 {
		t.Fatalf("expected tail height still 2, got %d ok=%v", tail, ok)
	}
	if !n.reservations.PopBack(h2.Hash, 2) {
		t.Fatalf("expected the original height-2 header to still be the tail entry")
	}

	if err := n.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
}

// S4: shutdown mid-sync — Stop must return promptly and join every
// spawned session goroutine, and a second Stop/Close must be a no-op.
func TestShutdownDuringSyncJoinsSessionsAndIsIdempotent(t *testing.T) {
	defer goleak.VerifyNone(t)

	n, chain := newTestNode(t)
	if err := n.Start(nil); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := n.Run(nil); err != nil {
		t.Fatalf("Run: %v", err)
	}

	h1 := chainfacade.HeaderRef{Hash: hashOf(1)}
	if err := chain.Reindex(0, []chainfacade.HeaderRef{h1}, nil); err != nil {
		t.Fatalf("Reindex: %v", err)
	}

	done := make(chan error, 1)
	go func() { done <- n.Stop() }()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Stop: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Stop did not return in time")
	}
	if err := n.Stop(); err != nil {
		t.Fatalf("second Stop should be a no-op success, got %v", err)
	}
	if err := n.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := n.Close(); err != nil {
		t.Fatalf("second Close should be a no-op success, got %v", err)
	}
}

// S5: a corrupt chain fails Run with ErrChainCorrupt-rooted handler
// invocation rather than panicking or hanging.
func TestRunOnCorruptChainFails(t *testing.T) {
	defer goleak.VerifyNone(t)

	n, chain := newTestNode(t)
	if err := n.Start(nil); err != nil {
		t.Fatalf("Start: %v", err)
	}
	chain.ForceCorrupt()

	var handlerErr error
	handlerCalls := 0
	err := n.Run(func(e error) { handlerErr = e; handlerCalls++ })
	if err == nil {
		t.Fatalf("expected Run on corrupt chain to fail")
	}
	if handlerCalls != 1 {
		t.Fatalf("expected handler invoked exactly once, got %d", handlerCalls)
	}
	if handlerErr != err {
		t.Fatalf("expected handler to observe the same error Run returned")
	}

	if err := n.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
}

// Close without any prior Start must still succeed (invariant: close
// is always safe).
func TestCloseWithoutStartSucceeds(t *testing.T) {
	defer goleak.VerifyNone(t)

	n, _ := newTestNode(t)
	if err := n.Close(); err != nil {
		t.Fatalf("Close without Start should succeed, got %v", err)
	}
}

// Starting twice in a row fails with ErrOperationFailed rather than
// silently re-entering Starting.
func TestDoubleStartFails(t *testing.T) {
	defer goleak.VerifyNone(t)

	n, _ := newTestNode(t)
	if err := n.Start(nil); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := n.Start(nil); err == nil {
		t.Fatalf("expected second Start to fail")
	}
	if err := n.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
}
