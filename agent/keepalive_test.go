package agent

import (
	"net"
	"testing"
	"time"

	basic_engine "github.com/named-data/ndnd/std/engine/basic"
	"github.com/named-data/ndnd/std/engine/face"
	"github.com/named-data/ndnd/std/ndn"
	sig "github.com/named-data/ndnd/std/security/signer"
	"github.com/stretchr/testify/require"
)

// newTestKeepalive wires a Keepalive and its Discovery collaborator against a
// real engine over a dummy face, so probes and reaps exercise the same
// Express/AttachHandler path as production.
func newTestKeepalive(t *testing.T, fcc *mockFCC) (*Keepalive, *PeerTable, *face.DummyFace, *basic_engine.DummyTimer) {
	t.Helper()
	f := face.NewDummyFace()
	timer := basic_engine.NewDummyTimer()
	eng := basic_engine.NewEngine(f, timer)
	require.NoError(t, eng.Start())
	t.Cleanup(func() { eng.Stop() })

	identity := &Identity{
		OwnPrefix:       mustName(t, "/a"),
		BroadcastPrefix: mustName(t, "/ndn/multicast/ah"),
		IP:              net.ParseIP("10.0.0.1").To4(),
		Port:            6363,
	}
	pt := NewPeerTable()
	mb := NewMulticast(fcc, identity.BroadcastPrefix)
	mb.state = MBReady
	status := NewStatus(fcc)

	de := NewDiscovery(eng, fcc, pt, identity, sig.NewSha256Signer(), mb, status)
	require.NoError(t, de.RegisterHandlers())

	ka := NewKeepalive(eng, fcc, pt, identity, de, time.Hour)
	return ka, pt, f, timer
}

func TestKeepaliveProbeTimeoutReapsPeer(t *testing.T) {
	fcc := &mockFCC{}
	ka, pt, f, timer := newTestKeepalive(t, fcc)

	peer, _ := pt.InsertOrGet(mustName(t, "/peer1"))
	pt.MarkFace(peer.ID, 7)

	ka.tick()
	// drain the re-broadcast arrival interest queued by tick
	_, _ = f.Consume()
	// drain the keepalive probe interest sent to the peer
	_, err := f.Consume()
	require.NoError(t, err)

	timer.MoveForward(time.Minute)

	require.Nil(t, pt.LookupByPrefix(mustName(t, "/peer1")))
}

func TestKeepaliveProbeSuccessKeepsPeerLive(t *testing.T) {
	fcc := &mockFCC{}
	ka, pt, f, _ := newTestKeepalive(t, fcc)
	ka.now = func() uint64 { return 42 }

	peer, _ := pt.InsertOrGet(mustName(t, "/peer1"))
	pt.MarkFace(peer.ID, 7)

	ka.probe(peer)
	_, err := f.Consume()
	require.NoError(t, err)

	// echo the probe straight back as a signed Data packet of the same name
	name := Encode(peer.Prefix, VerbKeepalive, ka.identity.IP, ka.identity.Port, ka.identity.OwnPrefix, 42)
	data, err := ka.engine.Spec().MakeData(name, &ndn.DataConfig{}, nil, sig.NewSha256Signer())
	require.NoError(t, err)
	require.NoError(t, f.FeedPacket(data.Wire.Join()))

	require.NotNil(t, pt.LookupByPrefix(mustName(t, "/peer1")))
}
