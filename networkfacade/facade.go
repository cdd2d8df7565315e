// Package networkfacade provides the opaque handle to the P2P stack
// described in spec §4.3: peer acceptor, outbound dialer, manual
// connector, session factory extension points, and the start/run/
// stop/close lifecycle. Real wire framing, discovery policy, and
// address-book management are explicit Non-goals; this facade only
// manages the host pool sizing and session goroutine lifecycle that
// FullNode actually depends on.
package networkfacade

import (
	"context"
	"fmt"
	"sync"

	"github.com/btcnode/bn/internal/bnconfig"
	"github.com/btcnode/bn/log"
	"github.com/btcnode/bn/networkfacade/session"
	"github.com/btcnode/bn/reservations"
	lru "github.com/hashicorp/golang-lru"
	"golang.org/x/sync/errgroup"
)

// NetworkFacade is the interface FullNode composes over.
type NetworkFacade interface {
	Start(handler func(error)) error
	Run(handler func(error)) error
	Stop() error
	Close() error

	AttachManualSessionFactory(f SessionFactory)
	AttachInboundSessionFactory(f SessionFactory)
	AttachOutboundSessionFactory(f SessionFactory)
}

// SessionFactory builds one new Session of the kind it's attached for.
type SessionFactory func() *session.Session

// Facade is the concrete NetworkFacade. It owns a bounded host pool
// (host_pool_capacity) and spawns one goroutine per configured
// outbound/manual session on Run, tracked by an errgroup so Stop can
// deterministically join every session before returning (spec S4: "no
// sessions outlive the close call").
type Facade struct {
	settings bnconfig.NetworkSettings
	hostPool *lru.Cache
	log      log.Logger

	outboundFactory SessionFactory
	manualFactory   SessionFactory
	inboundFactory  SessionFactory

	mu      sync.Mutex
	started bool
	running bool
	cancel  context.CancelFunc
	eg      *errgroup.Group
	egCtx   context.Context
}

// New builds a Facade sized per settings. queue and fetch are used by
// the default session factories; callers may override any of the
// three via Attach*SessionFactory before calling Run.
func New(settings bnconfig.NetworkSettings, queue *reservations.Queue, fetch session.BlockFetcher) (*Facade, error) {
	pool, err := lru.New(settings.HostPoolCapacity)
	if err != nil {
		return nil, fmt.Errorf("create host pool: %w", err)
	}
	f := &Facade{
		settings: settings,
		hostPool: pool,
		log:      log.New("component", "networkfacade"),
	}
	f.outboundFactory = func() *session.Session { return session.New(session.Outbound, queue, fetch) }
	f.manualFactory = func() *session.Session { return session.New(session.Manual, queue, fetch) }
	f.inboundFactory = func() *session.Session { return session.New(session.Inbound, nil, nil) }
	return f, nil
}

func (f *Facade) AttachManualSessionFactory(s SessionFactory)   { f.manualFactory = s }
func (f *Facade) AttachInboundSessionFactory(s SessionFactory)  { f.inboundFactory = s }
func (f *Facade) AttachOutboundSessionFactory(s SessionFactory) { f.outboundFactory = s }

// Start completes on the calling thread, per spec §4.3; it invokes
// handler exactly once.
func (f *Facade) Start(handler func(error)) error {
	f.mu.Lock()
	f.started = true
	f.mu.Unlock()
	f.log.Info("network starting", "outbound", f.settings.OutboundConnections, "inbound", f.settings.InboundConnections)
	if handler != nil {
		handler(nil)
	}
	return nil
}

// Run spawns one goroutine per configured outbound connection plus one
// manual-connector goroutine, then returns immediately — it does not
// wait for any session to finish.
func (f *Facade) Run(handler func(error)) error {
	f.mu.Lock()
	if !f.started {
		f.mu.Unlock()
		return fmt.Errorf("run called before start")
	}
	ctx, cancel := context.WithCancel(context.Background())
	eg, egCtx := errgroup.WithContext(ctx)
	f.cancel = cancel
	f.eg = eg
	f.egCtx = egCtx
	f.running = true
	f.mu.Unlock()

	for i := 0; i < f.settings.OutboundConnections; i++ {
		s := f.outboundFactory()
		eg.Go(func() error { return s.Run(egCtx) })
	}
	manual := f.manualFactory()
	eg.Go(func() error { return manual.Run(egCtx) })

	if handler != nil {
		handler(nil)
	}
	return nil
}

// AcceptInbound records peerID in the host pool (capped at
// host_pool_capacity, least recently used peer evicted) and spawns one
// inbound session for it under Run's errgroup, so Stop cancels and
// joins it. The pool does not limit how many inbound sessions run.
func (f *Facade) AcceptInbound(peerID string) {
	f.hostPool.Add(peerID, struct{}{})

	f.mu.Lock()
	eg, ctx := f.eg, f.egCtx
	f.mu.Unlock()
	if eg == nil {
		return
	}
	s := f.inboundFactory()
	eg.Go(func() error { return s.Run(ctx) })
}

// Stop cancels every running session and waits for them to exit.
func (f *Facade) Stop() error {
	f.mu.Lock()
	if !f.running {
		f.mu.Unlock()
		return nil
	}
	cancel, eg := f.cancel, f.eg
	f.running = false
	f.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if eg != nil {
		return eg.Wait()
	}
	return nil
}

// Close releases the host pool. Idempotent.
func (f *Facade) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.hostPool != nil {
		f.hostPool.Purge()
	}
	f.started = false
	return nil
}
