package agent

import (
	"fmt"
	"time"

	enc "github.com/named-data/ndnd/std/encoding"
	"github.com/named-data/ndnd/std/log"
	"github.com/named-data/ndnd/std/ndn"
	"github.com/named-data/ndnd/std/types/optional"
	"github.com/named-data/ndnd/std/utils"
)

const (
	infoFreshness      = 4 * time.Second
	keepaliveFreshness = 4 * time.Second
	pingFreshness      = 4 * time.Second
	sendDataMaxRetries = 4
	arrivalLifetime    = 4 * time.Second
)

// pingPayload is the fixed response body for a ping probe.
var pingPayload = enc.Wire{[]byte("ahnd!")}

// Discovery drives the arrival/departure/direct-info exchanges that create
// faces and routes for newly-seen peers, and answers the same exchanges
// symmetrically when a peer addresses this agent directly. It also owns the
// other locally-served prefixes that only ever reply, never mutate the peer
// table: nd-keepalive, ping and nd-status.
type Discovery struct {
	engine   ndn.Engine
	fcc      ForwarderClient
	pt       *PeerTable
	identity *Identity
	signer   ndn.Signer
	mb       *Multicast
	status   *Status

	now func() uint64
}

func NewDiscovery(engine ndn.Engine, fcc ForwarderClient, pt *PeerTable, identity *Identity, signer ndn.Signer, mb *Multicast, status *Status) *Discovery {
	return &Discovery{
		engine:   engine,
		fcc:      fcc,
		pt:       pt,
		identity: identity,
		signer:   signer,
		mb:       mb,
		status:   status,
		now:      func() uint64 { return uint64(time.Now().UnixMicro()) },
	}
}

func (d *Discovery) String() string { return "discovery" }

// RegisterHandlers attaches the broadcast prefix plus every locally-served
// prefix, in the bootstrap order: nd-info, nd-keepalive, ping, nd-status,
// broadcast. Attaching a handler only wires in-process FIB dispatch; each
// own prefix is also registered against the local forwarder's RIB so NFD
// actually forwards a peer's direct interest here.
func (d *Discovery) RegisterHandlers() error {
	infoName := d.identity.OwnPrefix.Append(enc.NewGenericComponent(string(VerbInfo)))
	if err := d.engine.AttachHandler(infoName, func(args ndn.InterestHandlerArgs) {
		d.onInterest(args, false)
	}); err != nil {
		return fmt.Errorf("attach info handler: %w", err)
	}
	d.registerOwnRoute(infoName)

	keepaliveName := d.identity.OwnPrefix.Append(enc.NewGenericComponent(string(VerbKeepalive)))
	if err := d.engine.AttachHandler(keepaliveName, func(args ndn.InterestHandlerArgs) {
		d.replyEmpty(args, keepaliveFreshness)
	}); err != nil {
		return fmt.Errorf("attach keepalive handler: %w", err)
	}
	d.registerOwnRoute(keepaliveName)

	pingName := d.identity.OwnPrefix.Append(enc.NewGenericComponent(string(VerbPing)))
	if err := d.engine.AttachHandler(pingName, func(args ndn.InterestHandlerArgs) {
		d.replyPing(args)
	}); err != nil {
		return fmt.Errorf("attach ping handler: %w", err)
	}
	d.registerOwnRoute(pingName)

	statusName := d.identity.OwnPrefix.Append(enc.NewGenericComponent(string(VerbStatus)))
	if err := d.engine.AttachHandler(statusName, func(args ndn.InterestHandlerArgs) {
		d.replyStatus(args)
	}); err != nil {
		return fmt.Errorf("attach status handler: %w", err)
	}
	d.registerOwnRoute(statusName)

	if err := d.engine.AttachHandler(d.identity.BroadcastPrefix, func(args ndn.InterestHandlerArgs) {
		d.onInterest(args, true)
	}); err != nil {
		return fmt.Errorf("attach broadcast handler: %w", err)
	}
	return nil
}

// registerOwnRoute registers name as a self-face route (face id 0, meaning
// "the face this command arrived on") against the local forwarder, retried
// forever on a fixed 3s backoff: a locally-served prefix nobody can reach is
// useless, so this never gives up the way a peer route bootstrap can.
func (d *Discovery) registerOwnRoute(name enc.Name) {
	retrier := NewRetrier(1<<30, FixedBackoff(3*time.Second))
	retrier.Run(func(int) Outcome {
		err := d.fcc.RegisterRoute(name, 0, AgentRouteOrigin, discoveryRouteCost, AgentRouteFlags,
			optional.Optional[uint64]{})
		if err != nil {
			log.Warn(d, "rib_register failed for own prefix, retrying", "prefix", name, "err", err)
			return OutcomeRetry
		}
		return OutcomeDone
	}, nil)
}

func (d *Discovery) onInterest(args ndn.InterestHandlerArgs, sendBack bool) {
	disc, err := Decode(args.Interest.Name())
	if err != nil {
		log.Debug(d, "Discarding malformed discovery interest", "err", err)
		return
	}

	if disc.Verb == VerbDeparture {
		d.handleDeparture(disc)
		return
	}
	if disc.Verb != VerbArrival && disc.Verb != VerbInfo {
		return
	}

	d.replyEmpty(args, infoFreshness)

	if disc.IP.Equal(d.identity.IP) {
		log.Debug(d, "My IP address returned, ignoring self-echo")
		return
	}

	peer, isNew := d.pt.InsertOrGet(disc.Prefix)
	peer.IP = disc.IP
	peer.Port = disc.Port
	if isNew {
		d.bootstrapPeer(peer, disc, sendBack)
		return
	}
	if sendBack {
		d.sendInfoTo(disc.Prefix)
	}
}

func (d *Discovery) handleDeparture(disc *DiscoveryMsg) {
	peer := d.pt.LookupByPrefix(disc.Prefix)
	if peer == nil {
		return
	}
	d.teardownPeer(peer)
}

func (d *Discovery) teardownPeer(peer *Peer) {
	if err := d.fcc.UnregisterRoute(peer.Prefix, peer.FaceID, AgentRouteOrigin); err != nil {
		log.Warn(d, "Failed to unregister route on teardown", "prefix", peer.Prefix, "err", err)
	}
	if err := d.fcc.DestroyFace(peer.FaceID); err != nil {
		log.Warn(d, "Failed to destroy face on teardown", "prefix", peer.Prefix, "err", err)
	}
	d.pt.RemoveByPrefix(peer.Prefix)
}

// bootstrapPeer runs face_create then rib_register, strict ordering, each
// retried on a fixed 3s backoff, then optionally sends nd-info back.
func (d *Discovery) bootstrapPeer(peer *Peer, disc *DiscoveryMsg, sendBack bool) {
	uri := fmt.Sprintf("udp4://%s:%d", disc.IP.String(), disc.Port)

	retrier := NewRetrier(1<<30, FixedBackoff(3*time.Second))
	retrier.Run(func(int) Outcome {
		faceID, err := d.fcc.CreateFace(uri)
		if err != nil {
			log.Warn(d, "face_create failed, retrying", "uri", uri, "err", err)
			return OutcomeRetry
		}
		peer.FaceID = faceID
		d.registerRouteForPeer(peer, sendBack)
		return OutcomeDone
	}, nil)
}

func (d *Discovery) registerRouteForPeer(peer *Peer, sendBack bool) {
	retrier := NewRetrier(1<<30, FixedBackoff(3*time.Second))
	retrier.Run(func(int) Outcome {
		err := d.fcc.RegisterRoute(peer.Prefix, peer.FaceID, AgentRouteOrigin, discoveryRouteCost, AgentRouteFlags,
			optional.Optional[uint64]{})
		if err != nil {
			log.Warn(d, "rib_register failed, retrying", "prefix", peer.Prefix, "err", err)
			return OutcomeRetry
		}
		d.pt.MarkFace(peer.ID, peer.FaceID)
		if sendBack {
			d.sendInfoTo(peer.Prefix)
		}
		return OutcomeDone
	}, nil)
}

// sendInfoTo unicasts an nd-info interest carrying this agent's own
// identity tuple to the peer's prefix, retried through a Retrier with a
// linear 3*attempt second backoff up to sendDataMaxRetries attempts;
// exhaustion tears the peer down.
func (d *Discovery) sendInfoTo(peerPrefix enc.Name) {
	retrier := NewRetrier(sendDataMaxRetries, LinearBackoff(3*time.Second))
	d.expressInfo(peerPrefix, retrier, 1)
}

// expressInfo runs one attempt of sendInfoTo's retry. Express is
// callback-based, so the retry decision is made from inside its callback
// rather than through Retrier.Run's synchronous attempt loop - retrier is
// still the source of the backoff schedule and the attempt budget.
func (d *Discovery) expressInfo(peerPrefix enc.Name, retrier *Retrier, attemptNum int) {
	name := Encode(peerPrefix, VerbInfo, d.identity.IP, d.identity.Port, d.identity.OwnPrefix, d.now())
	cfg := &ndn.InterestConfig{
		MustBeFresh: true,
		CanBePrefix: false,
		Lifetime:    optional.Some(infoFreshness),
		Nonce:       utils.ConvertNonce(d.engine.Timer().Nonce()),
	}
	interest, err := d.engine.Spec().MakeInterest(name, cfg, nil, nil)
	if err != nil {
		log.Error(d, "Failed to build nd-info interest", "err", err)
		return
	}
	err = d.engine.Express(interest, func(eargs ndn.ExpressCallbackArgs) {
		if eargs.Result == ndn.InterestResultData {
			return
		}
		if attemptNum >= retrier.MaxAttempts {
			log.Warn(d, "Giving up on send-data, tearing down peer", "prefix", peerPrefix)
			if peer := d.pt.LookupByPrefix(peerPrefix); peer != nil {
				d.teardownPeer(peer)
			}
			return
		}
		retrier.AfterFunc(retrier.Backoff(attemptNum), func() {
			d.expressInfo(peerPrefix, retrier, attemptNum+1)
		})
	})
	if err != nil {
		log.Error(d, "Failed to express nd-info interest", "err", err)
	}
}

// SendArrival emits the arrival interest on the broadcast prefix, gated on
// MB being Ready.
func (d *Discovery) SendArrival() error {
	return d.sendBroadcast(VerbArrival)
}

// SendDeparture emits the departure interest on the broadcast prefix, used
// once at shutdown.
func (d *Discovery) SendDeparture() error {
	return d.sendBroadcast(VerbDeparture)
}

func (d *Discovery) sendBroadcast(verb Verb) error {
	if err := d.mb.Guard(); err != nil {
		return err
	}
	name := Encode(d.identity.BroadcastPrefix, verb, d.identity.IP, d.identity.Port, d.identity.OwnPrefix, d.now())
	cfg := &ndn.InterestConfig{
		MustBeFresh: true,
		CanBePrefix: true,
		Lifetime:    optional.Some(arrivalLifetime),
		Nonce:       utils.ConvertNonce(d.engine.Timer().Nonce()),
	}
	interest, err := d.engine.Spec().MakeInterest(name, cfg, nil, nil)
	if err != nil {
		return err
	}
	return d.engine.Express(interest, func(ndn.ExpressCallbackArgs) {})
}

func (d *Discovery) replyEmpty(args ndn.InterestHandlerArgs, freshness time.Duration) {
	d.reply(args, freshness, nil)
}

func (d *Discovery) replyPing(args ndn.InterestHandlerArgs) {
	d.reply(args, pingFreshness, pingPayload)
}

func (d *Discovery) replyStatus(args ndn.InterestHandlerArgs) {
	payload, err := d.status.Report()
	if err != nil {
		log.Warn(d, "Failed to build status report for nd-status reply", "err", err)
		return
	}
	d.reply(args, infoFreshness, enc.Wire{payload})
}

func (d *Discovery) reply(args ndn.InterestHandlerArgs, freshness time.Duration, content enc.Wire) {
	data, err := d.engine.Spec().MakeData(args.Interest.Name(), &ndn.DataConfig{
		ContentType: optional.Some(ndn.ContentTypeBlob),
		Freshness:   optional.Some(freshness),
	}, content, d.signer)
	if err != nil {
		log.Error(d, "Failed to encode reply data", "err", err)
		return
	}
	if err := args.Reply(data.Wire); err != nil {
		log.Error(d, "Failed to reply with data", "err", err)
	}
}
