// Package chainfacade provides the opaque handle to the
// blockchain+database engine described in spec §4.2: a header index
// (candidate chain) and a block index (confirmed chain), each
// reorganized independently, with subscriber fan-out on every commit.
package chainfacade

import "github.com/btcsuite/btcd/chaincfg/chainhash"

// Checkpoint identifies a block position by hash and height.
type Checkpoint struct {
	Hash   chainhash.Hash
	Height uint64
}

// HeaderRef is an immutable shared reference to a header. Never
// mutated after publication; safe to share across subscribers.
type HeaderRef struct {
	Hash chainhash.Hash
	Prev chainhash.Hash
}

// BlockRef is an immutable shared reference to a full block.
type BlockRef struct {
	Hash   chainhash.Hash
	Header HeaderRef
	Body   []byte
}

// TxRef is an immutable shared reference to a mempool transaction.
type TxRef struct {
	Hash chainhash.Hash
}

// State describes the highest candidate block whose body has been
// downloaded and validated — the value that seeds the download queue.
type State struct {
	Hash   chainhash.Hash
	Height uint64
}

// HeaderEvent is delivered to header subscribers on every header-chain
// reorganization (a "reindex" in spec terms).
type HeaderEvent struct {
	Err        error
	ForkHeight uint64
	Incoming   []HeaderRef
	Outgoing   []HeaderRef
}

// BlockEvent is delivered to block subscribers on every block-chain
// reorganization (a "reorganize" in spec terms).
type BlockEvent struct {
	Err        error
	ForkHeight uint64
	Incoming   []BlockRef
	Outgoing   []BlockRef
}

// TxEvent is delivered to transaction subscribers on mempool arrivals.
type TxEvent struct {
	Err error
	Tx  TxRef
}

// Handler is a subscription callback. Returning false unsubscribes; a
// handler observing ErrServiceStopped must always return false.
type Handler[T any] func(ev T) (keepSubscribed bool)
