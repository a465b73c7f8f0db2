package agent

import (
	"errors"
	"testing"
	"time"

	enc "github.com/named-data/ndnd/std/encoding"
	mgmt "github.com/named-data/ndnd/std/ndn/mgmt_2022"
	"github.com/named-data/ndnd/std/types/optional"
	"github.com/stretchr/testify/require"
)

type mockFCC struct {
	faces          []mgmt.FaceStatus
	queryErr       error
	registerErr    map[uint64]error
	strategyErr    error
	createFaceID   uint64
	createFaceErr  error
}

func (m *mockFCC) CreateFace(uri string) (uint64, error) { return m.createFaceID, m.createFaceErr }
func (m *mockFCC) DestroyFace(faceID uint64) error       { return nil }
func (m *mockFCC) RegisterRoute(name enc.Name, faceID, origin, cost, flags uint64, exp optional.Optional[uint64]) error {
	return m.registerErr[faceID]
}
func (m *mockFCC) UnregisterRoute(name enc.Name, faceID, origin uint64) error { return nil }
func (m *mockFCC) SetStrategy(name, strategy enc.Name) error                 { return m.strategyErr }
func (m *mockFCC) QueryFaces(filter *mgmt.FaceQueryFilterValue) ([]mgmt.FaceStatus, error) {
	return m.faces, m.queryErr
}
func (m *mockFCC) FetchRib() ([]mgmt.RibEntry, error) { return nil, nil }

func waitForState(t *testing.T, m *Multicast, want MBState) {
	t.Helper()
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if m.State() == want {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("timed out waiting for state %s, have %s", want, m.State())
}

func TestMulticastEmptyFaceSetGoesToError(t *testing.T) {
	fcc := &mockFCC{faces: nil}
	mb := NewMulticast(fcc, mustName(t, "/ndn/multicast/ah"))
	mb.Reset()
	require.Equal(t, MBError, mb.State())
}

func TestMulticastReachesReadyOnSuccess(t *testing.T) {
	fcc := &mockFCC{
		faces:       []mgmt.FaceStatus{{FaceId: 1}, {FaceId: 2}},
		registerErr: map[uint64]error{},
	}
	mb := NewMulticast(fcc, mustName(t, "/ndn/multicast/ah"))
	mb.Reset()
	waitForState(t, mb, MBReady)
	require.NoError(t, mb.Guard())
}

func TestMulticastAllRegistrationsFailGoesToError(t *testing.T) {
	fcc := &mockFCC{
		faces: []mgmt.FaceStatus{{FaceId: 1}},
		registerErr: map[uint64]error{
			1: errors.New("boom"),
		},
	}
	mb := NewMulticast(fcc, mustName(t, "/ndn/multicast/ah"))
	mb.Reset()
	waitForState(t, mb, MBError)
}

func TestMulticastStrategyFailureGoesToError(t *testing.T) {
	fcc := &mockFCC{
		faces:       []mgmt.FaceStatus{{FaceId: 1}},
		registerErr: map[uint64]error{},
		strategyErr: errors.New("boom"),
	}
	mb := NewMulticast(fcc, mustName(t, "/ndn/multicast/ah"))
	mb.Reset()
	waitForState(t, mb, MBError)
}

func TestMulticastGuardFailsBeforeReady(t *testing.T) {
	mb := NewMulticast(&mockFCC{}, mustName(t, "/ndn/multicast/ah"))
	err := mb.Guard()
	require.ErrorIs(t, err, ErrNotReady)
	require.Equal(t, MBError, mb.State())
}
