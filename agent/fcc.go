package agent

import (
	"errors"
	"fmt"

	enc "github.com/named-data/ndnd/std/encoding"
	"github.com/named-data/ndnd/std/ndn"
	mgmt "github.com/named-data/ndnd/std/ndn/mgmt_2022"
	"github.com/named-data/ndnd/std/object"
	"github.com/named-data/ndnd/std/types/optional"
)

// AgentRouteOrigin is the route origin this agent installs: 0xFF per the
// agent's own wire convention. The real forwarder names this value
// RouteOriginStatic rather than "client" - the numeric value, not the
// library's name for it, is what the wire protocol and the original
// implementation actually agree on.
const AgentRouteOrigin = uint64(mgmt.RouteOriginStatic)

// AgentRouteFlags is ChildInherit only, per the agreed baseline (Capture
// is not set).
const AgentRouteFlags = uint64(mgmt.RouteFlagChildInherit)

const (
	discoveryRouteCost       = uint64(0)
	discoveryRouteExpiration = uint64(30_000)
)

// ForwarderClient is the seam FCC exposes to the rest of the agent: five
// request/response operations against the local forwarder's management
// protocol, plus the two dataset fetches used by the Status Reporter and
// Multicast Bootstrap.
type ForwarderClient interface {
	CreateFace(uri string) (faceID uint64, err error)
	DestroyFace(faceID uint64) error
	RegisterRoute(name enc.Name, faceID, origin, cost, flags uint64, expirationMs optional.Optional[uint64]) error
	UnregisterRoute(name enc.Name, faceID, origin uint64) error
	SetStrategy(name enc.Name, strategy enc.Name) error
	QueryFaces(filter *mgmt.FaceQueryFilterValue) ([]mgmt.FaceStatus, error)
	FetchRib() ([]mgmt.RibEntry, error)
}

// FCC implements ForwarderClient against a live ndn.Engine.
type FCC struct {
	engine ndn.Engine
}

func NewFCC(engine ndn.Engine) *FCC {
	return &FCC{engine: engine}
}

func (f *FCC) String() string { return "fcc" }

// CreateFace issues faces/create for the given URI. FACE_EXISTS (409) is
// treated as success, as is 200: either way the returned face id is usable.
func (f *FCC) CreateFace(uri string) (uint64, error) {
	raw, err := f.engine.ExecMgmtCmd("faces", "create", &mgmt.ControlArgs{
		Uri: optional.Some(uri),
	})
	res, statusErr := parseControlResponse("faces/create", raw, err)
	if statusErr != nil {
		var es *ErrStatus
		if !(errors.As(statusErr, &es) && es.Code == StatusFaceExists) {
			return 0, statusErr
		}
	}
	if res == nil || res.Val == nil || res.Val.Params == nil || !res.Val.Params.FaceId.IsSet() {
		return 0, fmt.Errorf("faces/create: missing face id in response")
	}
	return res.Val.Params.FaceId.Unwrap(), nil
}

func (f *FCC) DestroyFace(faceID uint64) error {
	raw, err := f.engine.ExecMgmtCmd("faces", "destroy", &mgmt.ControlArgs{
		FaceId: optional.Some(faceID),
	})
	_, statusErr := parseControlResponse("faces/destroy", raw, err)
	return statusErr
}

func (f *FCC) RegisterRoute(name enc.Name, faceID, origin, cost, flags uint64, expirationMs optional.Optional[uint64]) error {
	raw, err := f.engine.ExecMgmtCmd("rib", "register", &mgmt.ControlArgs{
		Name:             name,
		FaceId:           optional.Some(faceID),
		Origin:           optional.Some(origin),
		Cost:             optional.Some(cost),
		Flags:            optional.Some(flags),
		ExpirationPeriod: expirationMs,
	})
	_, statusErr := parseControlResponse("rib/register", raw, err)
	return statusErr
}

func (f *FCC) UnregisterRoute(name enc.Name, faceID, origin uint64) error {
	raw, err := f.engine.ExecMgmtCmd("rib", "unregister", &mgmt.ControlArgs{
		Name:    name,
		FaceId:  optional.Some(faceID),
		Origin:  optional.Some(origin),
	})
	_, statusErr := parseControlResponse("rib/unregister", raw, err)
	return statusErr
}

func (f *FCC) SetStrategy(name enc.Name, strategy enc.Name) error {
	raw, err := f.engine.ExecMgmtCmd("strategy-choice", "set", &mgmt.ControlArgs{
		Name:     name,
		Strategy: &mgmt.Strategy{Name: strategy},
	})
	_, statusErr := parseControlResponse("strategy-choice/set", raw, err)
	return statusErr
}

// fetchDataset consumes a status dataset Data packet under /localhost/nfd,
// the same "consume-only client, no store needed" pattern used for every
// NFD status dataset.
func (f *FCC) fetchDataset(suffix enc.Name) (enc.Wire, error) {
	client := object.NewClient(f.engine, nil, nil)
	client.Start()
	defer client.Stop()

	prefix, _ := enc.NameFromStr("/localhost/nfd")
	ch := make(chan ndn.ConsumeState)
	client.ConsumeExt(ndn.ConsumeExtArgs{
		Name:       prefix.Append(suffix...),
		NoMetadata: true,
		Callback:   func(state ndn.ConsumeState) { ch <- state },
	})

	state := <-ch
	if err := state.Error(); err != nil {
		return nil, &ErrTransient{Op: "fetch-dataset", Err: err}
	}
	return state.Content(), nil
}

func (f *FCC) QueryFaces(filter *mgmt.FaceQueryFilterValue) ([]mgmt.FaceStatus, error) {
	suffix := enc.Name{
		enc.NewGenericComponent("faces"),
		enc.NewGenericComponent("query"),
	}
	if filter != nil {
		wrapped := mgmt.FaceQueryFilter{Val: filter}
		suffix = append(suffix, enc.NewGenericBytesComponent(wrapped.Encode().Join()))
	}
	data, err := f.fetchDataset(suffix)
	if err != nil {
		return nil, err
	}
	status, err := mgmt.ParseFaceStatusMsg(enc.NewWireView(data), true)
	if err != nil {
		return nil, fmt.Errorf("faces/query: %w", err)
	}
	return status.Vals, nil
}

func (f *FCC) FetchRib() ([]mgmt.RibEntry, error) {
	suffix := enc.Name{
		enc.NewGenericComponent("rib"),
		enc.NewGenericComponent("list"),
	}
	data, err := f.fetchDataset(suffix)
	if err != nil {
		return nil, err
	}
	status, err := mgmt.ParseRibStatus(enc.NewWireView(data), true)
	if err != nil {
		return nil, fmt.Errorf("rib/list: %w", err)
	}
	return status.Entries, nil
}

// parseControlResponse distinguishes a transport-level failure (NACK,
// timeout, bad signature: engine returns a nil response body) from a
// forwarder-reported non-OK status code (engine returns both an error and
// the parsed response body), per the agent's two error kinds.
func parseControlResponse(op string, raw any, err error) (*mgmt.ControlResponse, error) {
	res, _ := raw.(*mgmt.ControlResponse)
	if err == nil {
		if res == nil || res.Val == nil {
			return nil, &ErrStatus{Op: op, Code: 0, Reason: "empty or invalid response"}
		}
		return res, nil
	}
	if res != nil && res.Val != nil {
		return res, &ErrStatus{Op: op, Code: res.Val.StatusCode, Reason: res.Val.StatusText}
	}
	return nil, &ErrTransient{Op: op, Err: err}
}
