package agent

import (
	"time"

	"github.com/named-data/ndnd/std/log"
	"github.com/named-data/ndnd/std/ndn"
	"github.com/named-data/ndnd/std/types/optional"
	"github.com/named-data/ndnd/std/utils"
)

const (
	keepaliveLifetime = 30 * time.Second
)

// Keepalive periodically probes every live peer and re-broadcasts arrival,
// tearing down peers that fail to respond.
type Keepalive struct {
	engine   ndn.Engine
	fcc      ForwarderClient
	pt       *PeerTable
	identity *Identity
	de       *Discovery

	interval time.Duration
	stop     chan struct{}

	now func() uint64
}

func NewKeepalive(engine ndn.Engine, fcc ForwarderClient, pt *PeerTable, identity *Identity, de *Discovery, interval time.Duration) *Keepalive {
	return &Keepalive{
		engine:   engine,
		fcc:      fcc,
		pt:       pt,
		identity: identity,
		de:       de,
		interval: interval,
		stop:     make(chan struct{}),
		now:      func() uint64 { return uint64(time.Now().UnixMicro()) },
	}
}

func (k *Keepalive) String() string { return "keepalive" }

// Start runs the tick loop in its own goroutine until Stop is called. The
// actual NFD calls on each tick are dispatched through the engine, which
// itself serializes their continuations onto its single event loop, so
// peer-table mutation still happens only from that loop's callbacks.
func (k *Keepalive) Start() {
	go func() {
		ticker := time.NewTicker(k.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				k.tick()
			case <-k.stop:
				return
			}
		}
	}()
}

func (k *Keepalive) Stop() {
	close(k.stop)
}

func (k *Keepalive) tick() {
	if err := k.de.SendArrival(); err != nil {
		log.Warn(k, "Failed to re-broadcast arrival", "err", err)
	}

	var peers []*Peer
	k.pt.VisitLive(func(p *Peer) { peers = append(peers, p) })
	for _, p := range peers {
		k.probe(p)
	}
}

func (k *Keepalive) probe(peer *Peer) {
	name := Encode(peer.Prefix, VerbKeepalive, k.identity.IP, k.identity.Port, k.identity.OwnPrefix, k.now())
	cfg := &ndn.InterestConfig{
		MustBeFresh: true,
		CanBePrefix: false,
		Lifetime:    optional.Some(keepaliveLifetime),
		Nonce:       utils.ConvertNonce(k.engine.Timer().Nonce()),
	}
	interest, err := k.engine.Spec().MakeInterest(name, cfg, nil, nil)
	if err != nil {
		log.Error(k, "Failed to build keepalive interest", "err", err)
		return
	}
	err = k.engine.Express(interest, func(eargs ndn.ExpressCallbackArgs) {
		if eargs.Result == ndn.InterestResultData {
			return
		}
		log.Info(k, "Peer failed keepalive, reaping", "prefix", peer.Prefix, "result", eargs.Result)
		if uerr := k.fcc.UnregisterRoute(peer.Prefix, peer.FaceID, AgentRouteOrigin); uerr != nil {
			log.Warn(k, "Failed to unregister route during reap", "prefix", peer.Prefix, "err", uerr)
		}
		if derr := k.fcc.DestroyFace(peer.FaceID); derr != nil {
			log.Warn(k, "Failed to destroy face during reap", "prefix", peer.Prefix, "err", derr)
		}
		k.pt.RemoveByPrefix(peer.Prefix)
	})
	if err != nil {
		log.Error(k, "Failed to express keepalive interest", "err", err)
	}
}
