package chainfacade

import (
	"encoding/binary"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/btcnode/bn/bnerrors"
	"github.com/btcnode/bn/log"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/syndtr/goleveldb/leveldb"
)

// ChainFacade is the opaque handle FullNode composes over: lifecycle
// plus the header/block index reads and reorg subscriptions spec §4.2
// names. A concrete instance owns its own persisted indexes; its
// internals (storage format, validation) are explicitly out of scope
// for the orchestration layer that consumes it.
type ChainFacade interface {
	Start() error
	Stop() error
	Close() error

	GetTop(candidate bool) (Checkpoint, bool)
	TopValidCandidateState() State
	GetDownloadable(height uint64) (chainhash.Hash, bool)
	HeaderHash(height uint64) (chainhash.Hash, bool)

	SubscribeHeaders(h Handler[HeaderEvent]) (unsubscribe func())
	SubscribeBlocks(h Handler[BlockEvent]) (unsubscribe func())
	SubscribeTransactions(h Handler[TxEvent]) (unsubscribe func())
}

// LevelChain is a minimal concrete ChainFacade backed by two goleveldb
// instances: one for the candidate header index, one for the
// confirmed block index. Bodies are not validated here — validation
// of block contents is an explicit non-goal delegated upstream; this
// type only tracks "has a body arrived" so get_downloadable can answer.
type LevelChain struct {
	dataDir string
	log     log.Logger

	mu        sync.RWMutex
	headers   *leveldb.DB
	blocks    *leveldb.DB
	started   bool
	topValid  State
	corrupt   bool
	genesis   Checkpoint

	headerSubs *registry[HeaderEvent]
	blockSubs  *registry[BlockEvent]
	txSubs     *registry[TxEvent]
}

const (
	keyPrefixHeight = 'h' // height(8 bytes big-endian) -> hash(32 bytes)
	keyPrefixBody   = 'b' // hash(32 bytes) -> 1 byte (body present)
)

func heightKey(prefix byte, height uint64) []byte {
	buf := make([]byte, 9)
	buf[0] = prefix
	binary.BigEndian.PutUint64(buf[1:], height)
	return buf
}

func bodyKey(hash chainhash.Hash) []byte {
	buf := make([]byte, 1+chainhash.HashSize)
	buf[0] = keyPrefixBody
	copy(buf[1:], hash[:])
	return buf
}

// InitChain creates dataDir (if absent) and writes the genesis
// checkpoint into fresh header/block indexes — the --initchain flow
// from spec §6/S1. It is a no-op if the indexes already contain a
// genesis entry.
func InitChain(dataDir string, genesis Checkpoint) (*LevelChain, error) {
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}
	c := &LevelChain{
		dataDir:    dataDir,
		log:        log.New("component", "chainfacade"),
		genesis:    genesis,
		headerSubs: newRegistry[HeaderEvent](),
		blockSubs:  newRegistry[BlockEvent](),
		txSubs:     newRegistry[TxEvent](),
	}
	if err := c.Start(); err != nil {
		return nil, err
	}
	if _, ok := c.GetTop(true); !ok {
		if err := c.seedGenesis(); err != nil {
			return nil, err
		}
	}
	return c, nil
}

func (c *LevelChain) seedGenesis() error {
	if err := c.headers.Put(heightKey(keyPrefixHeight, 0), c.genesis.Hash[:], nil); err != nil {
		return fmt.Errorf("seed genesis header: %w", err)
	}
	if err := c.blocks.Put(heightKey(keyPrefixHeight, 0), c.genesis.Hash[:], nil); err != nil {
		return fmt.Errorf("seed genesis block: %w", err)
	}
	if err := c.headers.Put(bodyKey(c.genesis.Hash), []byte{1}, nil); err != nil {
		return fmt.Errorf("mark genesis body present: %w", err)
	}
	c.mu.Lock()
	c.topValid = State{Hash: c.genesis.Hash, Height: 0}
	c.mu.Unlock()
	return nil
}

// Start opens the underlying leveldb instances. Idempotent.
func (c *LevelChain) Start() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.started {
		return nil
	}
	var err error
	if c.headers, err = leveldb.OpenFile(filepath.Join(c.dataDir, "headers.ldb"), nil); err != nil {
		return fmt.Errorf("%w: open header index: %v", bnerrors.ErrOperationFailed, err)
	}
	if c.blocks, err = leveldb.OpenFile(filepath.Join(c.dataDir, "blocks.ldb"), nil); err != nil {
		c.headers.Close()
		return fmt.Errorf("%w: open block index: %v", bnerrors.ErrOperationFailed, err)
	}
	c.started = true
	c.log.Info("chain index opened", "dir", c.dataDir)
	return nil
}

// Stop flushes and releases the database handles but keeps the facade
// addressable (Close actually tears it down). Idempotent.
func (c *LevelChain) Stop() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.started {
		return nil
	}
	c.started = false
	var errHeaders, errBlocks error
	if c.headers != nil {
		errHeaders = c.headers.Close()
		c.headers = nil
	}
	if c.blocks != nil {
		errBlocks = c.blocks.Close()
		c.blocks = nil
	}
	if errHeaders != nil {
		return errHeaders
	}
	return errBlocks
}

// Close releases all resources. Must be called from the constructing
// goroutine, matching spec §4.5.
func (c *LevelChain) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	var errHeaders, errBlocks error
	if c.headers != nil {
		errHeaders = c.headers.Close()
		c.headers = nil
	}
	if c.blocks != nil {
		errBlocks = c.blocks.Close()
		c.blocks = nil
	}
	if errHeaders != nil {
		return errHeaders
	}
	return errBlocks
}

// GetTop returns the highest confirmed block (candidate=false) or
// highest candidate header (candidate=true). The boolean return is
// false when the database is corrupt, the facade is not started, or
// the index holds no entry.
func (c *LevelChain) GetTop(candidate bool) (Checkpoint, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.corrupt || !c.started {
		return Checkpoint{}, false
	}
	db := c.blocks
	if candidate {
		db = c.headers
	}
	iter := db.NewIterator(nil, nil)
	defer iter.Release()

	var best Checkpoint
	found := false
	for iter.Next() {
		key := iter.Key()
		if len(key) != 9 || key[0] != keyPrefixHeight {
			continue
		}
		height := binary.BigEndian.Uint64(key[1:])
		if !found || height > best.Height {
			var h chainhash.Hash
			copy(h[:], iter.Value())
			best = Checkpoint{Hash: h, Height: height}
			found = true
		}
	}
	if err := iter.Error(); err != nil {
		return Checkpoint{}, false
	}
	return best, found
}

// TopValidCandidateState returns the highest candidate block whose
// body has been downloaded and validated.
func (c *LevelChain) TopValidCandidateState() State {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.topValid
}

// GetDownloadable returns the header hash at height iff it exists in
// the candidate index and its body has not yet been stored.
func (c *LevelChain) GetDownloadable(height uint64) (chainhash.Hash, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if !c.started {
		return chainhash.Hash{}, false
	}
	raw, err := c.headers.Get(heightKey(keyPrefixHeight, height), nil)
	if err != nil {
		return chainhash.Hash{}, false
	}
	var hash chainhash.Hash
	copy(hash[:], raw)

	if has, _ := c.headers.Has(bodyKey(hash), nil); has {
		return chainhash.Hash{}, false
	}
	return hash, true
}

// HeaderHash returns the candidate header hash at height regardless of
// whether its body has been stored — the top_valid+1 re-seed edge case
// (spec §8 invariant "re-seeding always yields at least one reservation
// at height top_valid+1") needs the hash even when the body already
// arrived, which GetDownloadable alone can't answer.
func (c *LevelChain) HeaderHash(height uint64) (chainhash.Hash, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if !c.started {
		return chainhash.Hash{}, false
	}
	raw, err := c.headers.Get(heightKey(keyPrefixHeight, height), nil)
	if err != nil {
		return chainhash.Hash{}, false
	}
	var hash chainhash.Hash
	copy(hash[:], raw)
	return hash, true
}

func (c *LevelChain) SubscribeHeaders(h Handler[HeaderEvent]) (unsubscribe func()) {
	id := c.headerSubs.Subscribe(h)
	return func() { c.headerSubs.Unsubscribe(id) }
}

func (c *LevelChain) SubscribeBlocks(h Handler[BlockEvent]) (unsubscribe func()) {
	id := c.blockSubs.Subscribe(h)
	return func() { c.blockSubs.Unsubscribe(id) }
}

func (c *LevelChain) SubscribeTransactions(h Handler[TxEvent]) (unsubscribe func()) {
	id := c.txSubs.Subscribe(h)
	return func() { c.txSubs.Unsubscribe(id) }
}
