package agent

import (
	"net"
	"sort"

	enc "github.com/named-data/ndnd/std/encoding"
)

// Peer is one entry in the peer table: a remote agent reachable over a
// forwarder face, keyed by its name prefix.
type Peer struct {
	ID     uint64
	IP     net.IP
	Port   uint16
	Prefix enc.Name
	FaceID uint64
	Live   bool
}

// PeerTable is an in-memory directory of known peers keyed by name prefix,
// with a secondary index by id and a free-list of vacated slots so ids
// survive churn without being reused across different peers.
//
// Single-threaded: like the rest of the agent, PeerTable is only ever
// touched from the event loop goroutine and does no locking of its own.
type PeerTable struct {
	byPrefix map[string]*Peer
	byID     map[uint64]*Peer
	nextID   uint64
	freeIDs  []uint64
}

func NewPeerTable() *PeerTable {
	return &PeerTable{
		byPrefix: make(map[string]*Peer),
		byID:     make(map[uint64]*Peer),
	}
}

func (t *PeerTable) String() string { return "peer-table" }

func key(prefix enc.Name) string { return prefix.String() }

// InsertOrGet returns the existing entry for prefix, or creates one with a
// fresh id (reusing a freed slot's id only if present on the free-list; ids
// are never reused across different peers, only storage positions are
// recycled by the map itself).
func (t *PeerTable) InsertOrGet(prefix enc.Name) (*Peer, bool) {
	k := key(prefix)
	if p, ok := t.byPrefix[k]; ok {
		return p, false
	}
	var id uint64
	if n := len(t.freeIDs); n > 0 {
		id = t.freeIDs[n-1]
		t.freeIDs = t.freeIDs[:n-1]
	} else {
		id = t.nextID
		t.nextID++
	}
	p := &Peer{ID: id, Prefix: prefix}
	t.byPrefix[k] = p
	t.byID[id] = p
	return p, true
}

// MarkFace records the forwarder face id and marks the entry live.
func (t *PeerTable) MarkFace(id, faceID uint64) {
	if p, ok := t.byID[id]; ok {
		p.FaceID = faceID
		p.Live = true
	}
}

func (t *PeerTable) LookupByPrefix(prefix enc.Name) *Peer {
	return t.byPrefix[key(prefix)]
}

func (t *PeerTable) LookupByID(id uint64) *Peer {
	return t.byID[id]
}

// RemoveByPrefix deletes the entry from both the prefix and the id index.
// Its id is not put on the free-list, so it is never handed out again to a
// different peer while the old entry might still be referenced by a caller.
func (t *PeerTable) RemoveByPrefix(prefix enc.Name) {
	k := key(prefix)
	p, ok := t.byPrefix[k]
	if !ok {
		return
	}
	delete(t.byPrefix, k)
	delete(t.byID, p.ID)
}

func (t *PeerTable) RemoveByID(id uint64) {
	p, ok := t.byID[id]
	if !ok {
		return
	}
	delete(t.byID, id)
	delete(t.byPrefix, key(p.Prefix))
}

// VisitLive calls f for every entry whose prefix has not been cleared,
// ordered by id, skipping cleared entries the way spec requires.
func (t *PeerTable) VisitLive(f func(*Peer)) {
	ids := make([]uint64, 0, len(t.byID))
	for id := range t.byID {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	for _, id := range ids {
		p := t.byID[id]
		if p == nil || len(p.Prefix) == 0 {
			continue
		}
		f(p)
	}
}
