package chainfacade

import (
	"fmt"

	"github.com/btcnode/bn/bnerrors"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
)

var serviceStoppedErr = bnerrors.ErrServiceStopped

// Reindex applies a header-chain reorganization: it truncates the
// candidate index back to forkHeight, appends incoming in order, and
// notifies every header subscriber exactly once. This is the chain
// collaborator's half of spec §4.5's handle_reindexed path — FullNode
// reacts to the HeaderEvent it delivers.
func (c *LevelChain) Reindex(forkHeight uint64, incoming, outgoing []HeaderRef) error {
	c.mu.Lock()
	if !c.started {
		c.mu.Unlock()
		return fmt.Errorf("reindex: chain not started")
	}
	for i := range outgoing {
		if err := c.headers.Delete(heightKey(keyPrefixHeight, forkHeight+uint64(len(outgoing))-uint64(i)), nil); err != nil {
			c.mu.Unlock()
			return fmt.Errorf("reindex: delete outgoing: %w", err)
		}
	}
	for i, h := range incoming {
		if err := c.headers.Put(heightKey(keyPrefixHeight, forkHeight+uint64(i)+1), h.Hash[:], nil); err != nil {
			c.mu.Unlock()
			return fmt.Errorf("reindex: write incoming: %w", err)
		}
	}
	c.mu.Unlock()

	c.headerSubs.Notify(HeaderEvent{ForkHeight: forkHeight, Incoming: incoming, Outgoing: outgoing})
	return nil
}

// ReorganizeBlocks applies a block-chain reorganization: bodies in
// incoming are assumed already validated by the upstream collaborator
// (non-goal), so they are committed straight into the confirmed index
// and marked as the new top-valid-candidate state.
func (c *LevelChain) ReorganizeBlocks(forkHeight uint64, incoming, outgoing []BlockRef) error {
	c.mu.Lock()
	if !c.started {
		c.mu.Unlock()
		return fmt.Errorf("reorganize: chain not started")
	}
	for i, b := range incoming {
		height := forkHeight + uint64(i) + 1
		if err := c.blocks.Put(heightKey(keyPrefixHeight, height), b.Hash[:], nil); err != nil {
			c.mu.Unlock()
			return fmt.Errorf("reorganize: write incoming: %w", err)
		}
		if err := c.headers.Put(bodyKey(b.Hash), []byte{1}, nil); err != nil {
			c.mu.Unlock()
			return fmt.Errorf("reorganize: mark body present: %w", err)
		}
	}
	if len(incoming) > 0 {
		c.topValid = State{Hash: incoming[len(incoming)-1].Hash, Height: forkHeight + uint64(len(incoming))}
	}
	c.mu.Unlock()

	c.blockSubs.Notify(BlockEvent{ForkHeight: forkHeight, Incoming: incoming, Outgoing: outgoing})
	return nil
}

// MarkBodyStored records that a candidate header's body has arrived
// without yet confirming it, so GetDownloadable reports it as no
// longer downloadable ahead of the block-chain reorg that confirms it.
func (c *LevelChain) MarkBodyStored(hash chainhash.Hash) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.started {
		return fmt.Errorf("mark body stored: chain not started")
	}
	return c.headers.Put(bodyKey(hash), []byte{1}, nil)
}

// PublishTransaction notifies mempool-arrival subscribers.
func (c *LevelChain) PublishTransaction(tx TxRef) {
	c.txSubs.Notify(TxEvent{Tx: tx})
}

// ForceCorrupt makes every later GetTop call report a corrupt database,
// used to exercise scenario S5 (corrupt chain on run).
func (c *LevelChain) ForceCorrupt() {
	c.mu.Lock()
	c.corrupt = true
	c.mu.Unlock()
}

// NotifyServiceStopped fans ErrServiceStopped out to every subscriber,
// which per spec §7 must cause each to unsubscribe quietly.
func (c *LevelChain) NotifyServiceStopped() {
	c.headerSubs.Notify(HeaderEvent{Err: serviceStoppedErr})
	c.blockSubs.Notify(BlockEvent{Err: serviceStoppedErr})
	c.txSubs.Notify(TxEvent{Err: serviceStoppedErr})
}
