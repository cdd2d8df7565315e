package bnnode

import (
	"github.com/btcnode/bn/bnerrors"
	"github.com/btcnode/bn/chainfacade"
)

// handleReindexed is the header-chain reorg callback (spec §4.5):
// unwind outgoing candidate headers off the reservation queue's tail
// in reverse order, then push the incoming headers back onto the tail
// in forward order, keeping the queue's tail always tracking the
// candidate chain's tip. Returning false unsubscribes.
func (n *FullNode) handleReindexed(ev chainfacade.HeaderEvent) bool {
	if ev.Err != nil {
		if bnerrors.Is(ev.Err, bnerrors.ErrServiceStopped) {
			return false
		}
		n.log.Error("header reindex failed, stopping node", "err", ev.Err)
		go n.Stop()
		return false
	}

	if len(ev.Incoming) == 0 {
		return true
	}

	h := ev.ForkHeight + uint64(len(ev.Outgoing))
	for i := len(ev.Outgoing) - 1; i >= 0; i-- {
		n.reservations.PopBack(ev.Outgoing[i].Hash, h)
		h--
	}
	for _, hdr := range ev.Incoming {
		h++
		n.reservations.PushBack(hdr.Hash, h)
	}

	if len(ev.Incoming) > 0 {
		last := ev.Incoming[len(ev.Incoming)-1]
		n.mu.Lock()
		n.top.Candidate = chainfacade.Checkpoint{
			Hash:   last.Hash,
			Height: ev.ForkHeight + uint64(len(ev.Incoming)),
		}
		n.mu.Unlock()
	}
	return true
}

// handleReorganized is the block-chain reorg callback. It only
// updates the cached confirmed checkpoint: the reservation queue is
// driven off the candidate (header) chain, never the confirmed
// (block) chain.
func (n *FullNode) handleReorganized(ev chainfacade.BlockEvent) bool {
	if ev.Err != nil {
		if bnerrors.Is(ev.Err, bnerrors.ErrServiceStopped) {
			return false
		}
		n.log.Error("block reorganize failed, stopping node", "err", ev.Err)
		go n.Stop()
		return false
	}

	if len(ev.Incoming) > 0 {
		last := ev.Incoming[len(ev.Incoming)-1]
		n.mu.Lock()
		n.top.Confirmed = chainfacade.Checkpoint{
			Hash:   last.Hash,
			Height: ev.ForkHeight + uint64(len(ev.Incoming)),
		}
		n.mu.Unlock()
	}
	return true
}
