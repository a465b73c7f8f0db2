package agent

import (
	"fmt"
	"sync/atomic"
	"time"

	enc "github.com/named-data/ndnd/std/encoding"
	"github.com/named-data/ndnd/std/engine"
	"github.com/named-data/ndnd/std/log"
	"github.com/named-data/ndnd/std/ndn"
)

// Options configures a new Agent.
type Options struct {
	OwnPrefix         enc.Name
	BroadcastPrefix   enc.Name
	Port              uint16
	ControlSocketPath string
	KeepaliveInterval time.Duration
	PibPath           string
	TpmPath           string
	MaxControlClients int
}

// Agent owns the messaging face/engine and every component built on top of
// it, and drives the bootstrap/shutdown sequence described by the
// lifecycle: register own prefixes, bring up multicast, emit arrival, then
// run until asked to stop.
type Agent struct {
	engine   ndn.Engine
	identity *Identity
	fcc      *FCC
	pt       *PeerTable
	mb       *Multicast
	de       *Discovery
	ka       *Keepalive
	status   *Status
	cs       *ControlSocket

	shuttingDown atomic.Bool
}

// New constructs an Agent. The engine is started (and its face dialed) as
// part of Start, not here, so construction never fails for network reasons.
func New(opts Options) (*Agent, error) {
	identity, err := NewIdentity(opts.OwnPrefix, opts.BroadcastPrefix, opts.Port)
	if err != nil {
		return nil, fmt.Errorf("resolve identity: %w", err)
	}

	eng := engine.NewBasicEngine(engine.NewDefaultFace())
	fcc := NewFCC(eng)
	pt := NewPeerTable()
	mb := NewMulticast(fcc, identity.BroadcastPrefix)

	signer, err := LoadSigner(opts.PibPath, opts.TpmPath, identity.OwnPrefix)
	if err != nil {
		return nil, fmt.Errorf("load signer: %w", err)
	}

	status := NewStatus(fcc)
	de := NewDiscovery(eng, fcc, pt, identity, signer, mb, status)
	ka := NewKeepalive(eng, fcc, pt, identity, de, opts.KeepaliveInterval)
	cs := NewControlSocket(opts.ControlSocketPath, pt, status, eng, identity, opts.MaxControlClients)

	return &Agent{
		engine:   eng,
		identity: identity,
		fcc:      fcc,
		pt:       pt,
		mb:       mb,
		de:       de,
		ka:       ka,
		status:   status,
		cs:       cs,
	}, nil
}

func (a *Agent) String() string { return "agent" }

// Start runs the bootstrap sequence: register nd-info and nd-keepalive
// handlers, bring up multicast bootstrap on the broadcast prefix, then
// emit the initial arrival interest. Each step gates the next by success,
// per the lifecycle's bootstrap order.
func (a *Agent) Start() error {
	if err := a.engine.Start(); err != nil {
		return fmt.Errorf("start engine: %w", err)
	}

	if err := a.de.RegisterHandlers(); err != nil {
		return fmt.Errorf("register discovery handlers: %w", err)
	}

	a.mb.Reset()
	for st := a.mb.State(); st != MBReady && st != MBError; st = a.mb.State() {
		time.Sleep(10 * time.Millisecond)
	}
	if a.mb.State() == MBError {
		return fmt.Errorf("multicast bootstrap failed: node cannot serve its role")
	}

	if err := a.de.SendArrival(); err != nil {
		log.Warn(a, "Initial arrival interest failed", "err", err)
	}

	if err := a.cs.Start(); err != nil {
		return fmt.Errorf("start control socket: %w", err)
	}

	a.ka.Start()

	log.Info(a, "Agent started", "prefix", a.identity.OwnPrefix, "ip", a.identity.IP, "port", a.identity.Port)
	return nil
}

// RequestShutdown sets the shutdown flag reported by ShuttingDown; safe to
// call from a signal handler goroutine since it only touches an atomic. The
// flag does not stop anything by itself: teardown is done by Stop.
func (a *Agent) RequestShutdown() {
	a.shuttingDown.Store(true)
}

func (a *Agent) ShuttingDown() bool {
	return a.shuttingDown.Load()
}

// Stop emits departure, tears down every live peer's route and face, stops
// the keepalive loop and control socket, and finally stops the engine. The
// caller is responsible for bounding how long it waits on Stop (the
// lifecycle's drain deadline) before giving up.
func (a *Agent) Stop() {
	if err := a.de.SendDeparture(); err != nil {
		log.Warn(a, "Failed to send departure interest", "err", err)
	}

	a.ka.Stop()

	var peers []*Peer
	a.pt.VisitLive(func(p *Peer) { peers = append(peers, p) })
	for _, p := range peers {
		if err := a.fcc.UnregisterRoute(p.Prefix, p.FaceID, AgentRouteOrigin); err != nil {
			log.Warn(a, "Failed to unregister route on shutdown", "prefix", p.Prefix, "err", err)
		}
		if err := a.fcc.DestroyFace(p.FaceID); err != nil {
			log.Warn(a, "Failed to destroy face on shutdown", "prefix", p.Prefix, "err", err)
		}
		a.pt.RemoveByPrefix(p.Prefix)
	}

	if err := a.cs.Stop(); err != nil {
		log.Warn(a, "Failed to stop control socket", "err", err)
	}
	a.engine.Stop()

	log.Info(a, "Agent stopped")
}
