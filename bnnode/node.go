// Package bnnode implements FullNode (spec §4.5): the top-level
// coordinator that wires ChainFacade, NetworkFacade and the
// Reservations queue together, owns the lifecycle state machine, and
// keeps the download queue seeded from the candidate chain's tip as
// reorgs roll in.
package bnnode

import (
	"errors"
	"fmt"
	"sync"

	"github.com/btcnode/bn/bnerrors"
	"github.com/btcnode/bn/chainfacade"
	"github.com/btcnode/bn/internal/bnconfig"
	"github.com/btcnode/bn/log"
	"github.com/btcnode/bn/networkfacade"
	"github.com/btcnode/bn/reservations"
)

// LifecycleState is one of the six states spec §3 names. There is no
// separate "Stopped" state: a successful stop() leaves the node in
// Stopping, which doubles as the resting post-stop state (see
// DESIGN.md for why this collapses the diagram's seventh box).
type LifecycleState int

const (
	Unstarted LifecycleState = iota
	Starting
	Started
	Running
	Stopping
	Closed
)

func (s LifecycleState) String() string {
	switch s {
	case Unstarted:
		return "unstarted"
	case Starting:
		return "starting"
	case Started:
		return "started"
	case Running:
		return "running"
	case Stopping:
		return "stopping"
	case Closed:
		return "closed"
	default:
		return "unknown"
	}
}

func isStopped(s LifecycleState) bool {
	return s == Unstarted || s == Stopping
}

// ChainTop caches the last-seen confirmed and candidate checkpoints so
// callers can inspect node progress without a round trip to the chain
// facade.
type ChainTop struct {
	Confirmed chainfacade.Checkpoint
	Candidate chainfacade.Checkpoint
}

// FullNode is the process's single top-level coordinator, composing
// the three subordinate facades spec §4.5 names.
type FullNode struct {
	chain        chainfacade.ChainFacade
	network      networkfacade.NetworkFacade
	reservations *reservations.Queue
	settings     bnconfig.Settings
	log          log.Logger

	mu    sync.Mutex
	state LifecycleState
	top   ChainTop

	unsubHeaders func()
	unsubBlocks  func()
}

// New composes a FullNode from its three already-constructed facades.
// Construction never fails; Start performs all fallible setup.
func New(chain chainfacade.ChainFacade, network networkfacade.NetworkFacade, queue *reservations.Queue, settings bnconfig.Settings) *FullNode {
	return &FullNode{
		chain:        chain,
		network:      network,
		reservations: queue,
		settings:     settings,
		log:          log.New("component", "bnnode"),
		state:        Unstarted,
	}
}

// State reports the current lifecycle state.
func (n *FullNode) State() LifecycleState {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.state
}

// Top returns the last cached confirmed/candidate checkpoints.
func (n *FullNode) Top() ChainTop {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.top
}

func (n *FullNode) invoke(handler func(error), err error) error {
	if handler != nil {
		handler(err)
	}
	return err
}

// Start opens the chain index and brings the network facade up to its
// Started state. handler is invoked exactly once, whether Start
// succeeds or fails. Calling Start from any state other than Unstarted
// or Stopping fails with ErrOperationFailed.
func (n *FullNode) Start(handler func(error)) error {
	n.mu.Lock()
	if !isStopped(n.state) {
		n.mu.Unlock()
		return n.invoke(handler, fmt.Errorf("start from %s: %w", n.state, bnerrors.ErrOperationFailed))
	}
	n.state = Starting
	n.mu.Unlock()

	if err := n.chain.Start(); err != nil {
		n.mu.Lock()
		n.state = Unstarted
		n.mu.Unlock()
		n.log.Error("chain start failed", "err", err)
		return n.invoke(handler, fmt.Errorf("chain start: %w", bnerrors.ErrOperationFailed))
	}

	n.mu.Lock()
	n.state = Started
	n.mu.Unlock()
	n.log.Info("node started")

	// network.Start is responsible for invoking handler exactly once.
	return n.network.Start(handler)
}

// Run seeds the reservation queue from the current chain tops and
// subscribes to header/block reorg notifications, then hands control
// to the network facade. Running from any state other than Started
// fails with ErrServiceStopped.
func (n *FullNode) Run(handler func(error)) error {
	n.mu.Lock()
	if n.state != Started {
		n.mu.Unlock()
		return n.invoke(handler, fmt.Errorf("run from %s: %w", n.state, bnerrors.ErrServiceStopped))
	}
	n.mu.Unlock()

	confirmed, ok := n.chain.GetTop(false)
	if !ok {
		return n.invoke(handler, fmt.Errorf("get confirmed top: %w", bnerrors.ErrChainCorrupt))
	}
	candidate, ok := n.chain.GetTop(true)
	if !ok {
		return n.invoke(handler, fmt.Errorf("get candidate top: %w", bnerrors.ErrChainCorrupt))
	}

	n.mu.Lock()
	n.top = ChainTop{Confirmed: confirmed, Candidate: candidate}
	n.mu.Unlock()

	n.seedReservations(candidate)

	n.mu.Lock()
	n.state = Running
	n.mu.Unlock()

	n.unsubHeaders = n.chain.SubscribeHeaders(n.handleReindexed)
	n.unsubBlocks = n.chain.SubscribeBlocks(n.handleReorganized)

	n.log.Info("node running", "confirmed_height", confirmed.Height, "candidate_height", candidate.Height)
	return n.network.Run(handler)
}

// seedReservations pushes every downloadable height from the
// candidate tip down to top_valid+1 onto the front of the queue, in
// descending-height order so the lowest height ends up at the very
// front (highest priority). The height just above top_valid is always
// pushed, even when its body is already present, so re-seeding never
// starves the download frontier (spec §8).
func (n *FullNode) seedReservations(candidate chainfacade.Checkpoint) {
	topValid := n.chain.TopValidCandidateState().Height
	startHeight := topValid + 1
	if candidate.Height < startHeight {
		return
	}

	for h := candidate.Height; h >= startHeight; h-- {
		hash, downloadable := n.chain.GetDownloadable(h)
		if !downloadable {
			if h != startHeight {
				continue
			}
			var ok bool
			if hash, ok = n.chain.HeaderHash(h); !ok {
				break
			}
		}
		n.reservations.PushFront(hash, h)
	}
}

// Stop unsubscribes from reorg notifications and tears down the
// network and chain facades in that order. Idempotent: calling Stop
// when already Stopping or Closed is a no-op success.
func (n *FullNode) Stop() error {
	n.mu.Lock()
	if n.state == Stopping || n.state == Closed {
		n.mu.Unlock()
		return nil
	}
	n.state = Stopping
	unsubHeaders, unsubBlocks := n.unsubHeaders, n.unsubBlocks
	n.unsubHeaders, n.unsubBlocks = nil, nil
	n.mu.Unlock()

	if unsubHeaders != nil {
		unsubHeaders()
	}
	if unsubBlocks != nil {
		unsubBlocks()
	}

	var errs []error
	if err := n.network.Stop(); err != nil {
		n.log.Error("network stop failed", "err", err)
		errs = append(errs, err)
	}
	if err := n.chain.Stop(); err != nil {
		n.log.Error("chain stop failed", "err", err)
		errs = append(errs, err)
	}
	n.log.Info("node stopped")
	return errors.Join(errs...)
}

// Close stops the node (if not already stopped) and releases both
// facades' underlying resources. Must be called from the goroutine
// that constructed the FullNode, matching the teacher's own
// single-owner lifecycle convention. Calling Close without a prior
// Start succeeds (invariant: close is always safe).
func (n *FullNode) Close() error {
	stopErr := n.Stop()

	n.mu.Lock()
	n.state = Closed
	n.mu.Unlock()

	var errs []error
	if stopErr != nil {
		errs = append(errs, stopErr)
	}
	if err := n.network.Close(); err != nil {
		errs = append(errs, err)
	}
	if err := n.chain.Close(); err != nil {
		errs = append(errs, err)
	}
	n.log.Info("node closed")
	return errors.Join(errs...)
}
