// Package executor implements the process-level driver spec §4.6
// names: it builds nothing itself (the caller wires the FullNode), but
// owns the signal handlers, the shared stopped flag, and the
// wait_on_stop poll loop that sequences start, run and shutdown.
package executor

import (
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/btcnode/bn/bnnode"
	"github.com/btcnode/bn/log"
)

// pollInterval is the wait_on_stop granularity spec §5 names.
const pollInterval = 10 * time.Millisecond

// Executor parks on FullNode until a process signal (or the node
// reaching Stopping/Closed on its own) requests shutdown, then
// sequences node.Stop() and node.Close().
type Executor struct {
	node    *bnnode.FullNode
	log     log.Logger
	stopped atomic.Bool
}

// New wraps node. The caller retains ownership of node's construction
// and must not call Start/Run/Stop/Close on it directly once Run is
// in flight.
func New(node *bnnode.FullNode) *Executor {
	return &Executor{node: node, log: log.New("component", "executor")}
}

// RequestStop sets the shared stopped flag directly — the minimal
// signal-handler body spec §5 calls for ("keep the signal handler
// minimal: flag-set only").
func (e *Executor) RequestStop() {
	e.stopped.Store(true)
}

// Run registers SIGINT/SIGTERM handlers, starts and runs the node,
// blocks until shutdown is requested, then sequences node.Stop()
// followed by node.Close(). Returns the process exit code: 0 on a
// clean run, non-zero if start, run, or shutdown failed.
func (e *Executor) Run() int {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)
	go func() {
		<-sigCh
		e.RequestStop()
	}()

	var startErr error
	if err := e.node.Start(func(err error) { startErr = err }); err != nil {
		e.log.Error("node failed to start", "err", startErr)
		return 1
	}

	var runErr error
	if err := e.node.Run(func(err error) { runErr = err }); err != nil {
		e.log.Error("node failed to run", "err", runErr)
		e.node.Close()
		return 1
	}

	e.waitOnStop()

	e.log.Info("unmapping")
	stopErr := e.node.Stop()
	closeErr := e.node.Close()
	if stopErr != nil {
		e.log.Error("stop failed", "err", stopErr)
	}
	if closeErr != nil {
		e.log.Error("close failed", "err", closeErr)
	}
	if stopErr != nil || closeErr != nil {
		return 1
	}
	return 0
}

func (e *Executor) waitOnStop() {
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()
	for range ticker.C {
		if e.stopped.Load() {
			return
		}
		switch e.node.State() {
		case bnnode.Stopping, bnnode.Closed:
			return
		}
	}
}
