package agent

import (
	"fmt"
	"sync"

	enc "github.com/named-data/ndnd/std/encoding"
	"github.com/named-data/ndnd/std/log"
	mgmt "github.com/named-data/ndnd/std/ndn/mgmt_2022"
	"github.com/named-data/ndnd/std/types/optional"
)

// MBState is one state of the Multicast Bootstrap state machine.
type MBState int

const (
	MBQuerying MBState = iota
	MBRegistering
	MBSetting
	MBReady
	MBError
)

func (s MBState) String() string {
	switch s {
	case MBQuerying:
		return "querying"
	case MBRegistering:
		return "registering"
	case MBSetting:
		return "setting"
	case MBReady:
		return "ready"
	case MBError:
		return "error"
	default:
		return "unknown"
	}
}

// MulticastStrategyName is the well-known multicast forwarding strategy
// bound to the broadcast prefix once MB reaches Ready.
var MulticastStrategyName = mustParseName("/localhost/nfd/strategy/multicast")

func mustParseName(s string) enc.Name {
	n, err := enc.NameFromStr(s)
	if err != nil {
		panic(err)
	}
	return n
}

const (
	linkTypeMultiAccess = uint64(1)
)

// Multicast discovers local multi-access faces, registers the broadcast
// prefix on each, sets the multicast strategy, and gates outgoing broadcast
// interests until that sequence completes. A separate component so DE never
// races multicast routing coming up.
type Multicast struct {
	fcc    ForwarderClient
	prefix enc.Name

	mu      sync.Mutex
	state   MBState
	total   int
	success int
	failure int
}

func NewMulticast(fcc ForwarderClient, broadcastPrefix enc.Name) *Multicast {
	return &Multicast{fcc: fcc, prefix: broadcastPrefix}
}

func (m *Multicast) String() string { return "multicast" }

func (m *Multicast) State() MBState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Reset transitions to Querying and re-runs the full bootstrap sequence.
// Idempotent: running it again after Ready is tolerated because the
// forwarder reports FACE_EXISTS/already-registered for the steps that have
// already succeeded.
func (m *Multicast) Reset() {
	m.mu.Lock()
	m.state = MBQuerying
	m.success = 0
	m.failure = 0
	m.mu.Unlock()

	faces, err := m.fcc.QueryFaces(&mgmt.FaceQueryFilterValue{LinkType: optional.Some(linkTypeMultiAccess)})
	if err != nil || len(faces) == 0 {
		log.Error(m, "No multi-access faces found", "err", err)
		m.mu.Lock()
		m.state = MBError
		m.mu.Unlock()
		return
	}

	m.mu.Lock()
	m.total = len(faces)
	m.state = MBRegistering
	m.mu.Unlock()

	for _, face := range faces {
		go m.registerOne(face.FaceId)
	}
}

func (m *Multicast) registerOne(faceID uint64) {
	err := m.fcc.RegisterRoute(m.prefix, faceID, AgentRouteOrigin, discoveryRouteCost, AgentRouteFlags,
		optional.Some(discoveryRouteExpiration))

	m.mu.Lock()
	if err != nil {
		log.Warn(m, "Failed to register broadcast route", "face", faceID, "err", err)
		m.failure++
	} else {
		m.success++
	}
	advance := m.state == MBRegistering && m.success+m.failure >= m.total
	giveUp := advance && m.success == 0
	if advance {
		if giveUp {
			m.state = MBError
		} else {
			m.state = MBSetting
		}
	}
	m.mu.Unlock()

	if giveUp {
		log.Error(m, "No broadcast route registered successfully")
		return
	}
	if advance {
		m.setStrategy()
	}
}

func (m *Multicast) setStrategy() {
	err := m.fcc.SetStrategy(m.prefix, MulticastStrategyName)
	m.mu.Lock()
	defer m.mu.Unlock()
	if err != nil {
		log.Error(m, "Failed to set multicast strategy", "err", err)
		m.state = MBError
		return
	}
	m.state = MBReady
	log.Info(m, "Multicast bootstrap ready", "prefix", m.prefix)
}

// ErrNotReady is returned by Guard when MB has not reached Ready.
var ErrNotReady = fmt.Errorf("multicast bootstrap not ready")

// Guard fails fast with ErrNotReady and transitions to Error when called
// before Ready, discouraging the caller (DE) from sending broadcast
// interests before multicast routing is actually in place.
func (m *Multicast) Guard() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state != MBReady {
		m.state = MBError
		return ErrNotReady
	}
	return nil
}
