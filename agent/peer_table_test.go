package agent

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestPeerTableInsertOrGetIsIdempotent(t *testing.T) {
	pt := NewPeerTable()
	prefix := mustName(t, "/a")

	p1, isNew := pt.InsertOrGet(prefix)
	require.True(t, isNew)

	p2, isNew := pt.InsertOrGet(prefix)
	require.False(t, isNew)
	require.Same(t, p1, p2)
}

func TestPeerTableMarkFaceSetsLive(t *testing.T) {
	pt := NewPeerTable()
	prefix := mustName(t, "/a")
	p, _ := pt.InsertOrGet(prefix)

	pt.MarkFace(p.ID, 42)

	got := pt.LookupByPrefix(prefix)
	require.True(t, got.Live)
	require.EqualValues(t, 42, got.FaceID)
}

func TestPeerTableIDsAreNotReusedAcrossPeers(t *testing.T) {
	pt := NewPeerTable()
	a, _ := pt.InsertOrGet(mustName(t, "/a"))
	pt.RemoveByPrefix(mustName(t, "/a"))
	b, _ := pt.InsertOrGet(mustName(t, "/b"))

	require.NotEqual(t, a.ID, b.ID)
}

func TestPeerTableVisitLiveSkipsRemovedAndOrdersByID(t *testing.T) {
	pt := NewPeerTable()
	pt.InsertOrGet(mustName(t, "/a"))
	pt.InsertOrGet(mustName(t, "/b"))
	pt.InsertOrGet(mustName(t, "/c"))
	pt.RemoveByPrefix(mustName(t, "/b"))

	var seen []uint64
	pt.VisitLive(func(p *Peer) { seen = append(seen, p.ID) })

	require.Equal(t, []uint64{0, 2}, seen)
}

func TestPeerTableLookupByIDAfterRemoveByID(t *testing.T) {
	pt := NewPeerTable()
	p, _ := pt.InsertOrGet(mustName(t, "/a"))
	pt.RemoveByID(p.ID)

	require.Nil(t, pt.LookupByID(p.ID))
	require.Nil(t, pt.LookupByPrefix(mustName(t, "/a")))
}
