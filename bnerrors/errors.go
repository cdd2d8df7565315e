// Package bnerrors defines the error taxonomy shared by the node's
// subordinate components. Kinds, not concrete types: an error that
// carries a kind wraps it with fmt.Errorf and %w so callers can
// classify it with errors.Is. Some component errors carry no kind.
package bnerrors

import "errors"

var (
	// ErrOperationFailed marks a generic startup or ordering violation,
	// e.g. calling run before start, or start from a non-stopped state.
	ErrOperationFailed = errors.New("operation failed")

	// ErrServiceStopped marks that the lifecycle has entered Stopping or
	// Closed. Subscribers observing it must unsubscribe quietly.
	ErrServiceStopped = errors.New("service stopped")

	// ErrChainCorrupt marks a broken database invariant. Fatal: refuse
	// to run.
	ErrChainCorrupt = errors.New("chain corrupt")

	// ErrReorgFailed marks that ChainFacade reported a non-success code
	// in a reorg subscription callback.
	ErrReorgFailed = errors.New("reorg error")

	// ErrNetworkError marks a transient peer/connection failure. Handled
	// inside a session; never surfaced to FullNode.
	ErrNetworkError = errors.New("network error")
)

// Is reports whether err is classified under kind, following wrapped
// chains the way the rest of the node does (fmt.Errorf with %w).
func Is(err, kind error) bool {
	return errors.Is(err, kind)
}
