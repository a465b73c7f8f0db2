package agent

import (
	"encoding/json"
	"fmt"

	"github.com/named-data/ndnd/std/log"
)

const faceScopeNonLocal = uint64(0)

// RouteJSON is one entry of a face's routes array in the status document.
type RouteJSON struct {
	Name                string  `json:"name"`
	Origin              uint64  `json:"origin"`
	Cost                uint64  `json:"cost"`
	ExpirationPeriodMs  *uint64 `json:"expirationPeriod,omitempty"`
	Flags               uint64  `json:"flags"`
}

// FaceJSON is one entry of the status document's faces array, scoped to
// FACE_SCOPE_NON_LOCAL only; the forwarder's own face id is deliberately
// not included (the original implementation emits it commented out).
type FaceJSON struct {
	RemoteURI                     string      `json:"remoteUri"`
	LocalURI                      string      `json:"localUri"`
	LinkType                      uint64      `json:"linkType"`
	FaceScope                     uint64      `json:"faceScope"`
	FacePersistency                uint64     `json:"facePersistency"`
	Flags                          uint64     `json:"flags"`
	InInterests                    uint64     `json:"inInterests"`
	OutInterests                   uint64     `json:"outInterests"`
	InBytes                        uint64     `json:"inBytes"`
	OutBytes                       uint64     `json:"outBytes"`
	InData                         uint64     `json:"inData"`
	OutData                        uint64     `json:"outData"`
	InNacks                        uint64     `json:"inNacks"`
	OutNacks                       uint64     `json:"outNacks"`
	Mtu                            *uint64    `json:"mtu,omitempty"`
	DefaultCongestionThreshold     *uint64    `json:"defaultCongestionThreshold,omitempty"`
	BaseCongestionMarkingInterval  *uint64    `json:"defaultBaseCongestionMarkingInterval,omitempty"`
	ExpirationPeriodMs             *uint64    `json:"expirationPeriod,omitempty"`
	Routes                         []RouteJSON `json:"routes"`
}

// Status is the Status Reporter: a two-phase fetch (face query, then RIB)
// correlated into the JSON document returned by `status` and `nd-status`.
type Status struct {
	fcc ForwarderClient
}

func NewStatus(fcc ForwarderClient) *Status {
	return &Status{fcc: fcc}
}

func (s *Status) String() string { return "status" }

// Report fetches faces then, only if at least one face was returned, the
// RIB, and renders the correlated JSON document.
func (s *Status) Report() ([]byte, error) {
	faces, err := s.fcc.QueryFaces(nil)
	if err != nil {
		return nil, fmt.Errorf("failed to query faces: %w", err)
	}
	if len(faces) == 0 {
		return nil, fmt.Errorf("no faces available")
	}

	ribs, err := s.fcc.FetchRib()
	if err != nil {
		return nil, fmt.Errorf("failed to query ribs: %w", err)
	}

	routesByFace := make(map[uint64][]RouteJSON)
	for _, entry := range ribs {
		for _, route := range entry.Routes {
			r := RouteJSON{
				Name:   entry.Name.String(),
				Origin: route.Origin,
				Cost:   route.Cost,
				Flags:  route.Flags,
			}
			if exp, ok := route.ExpirationPeriod.Get(); ok {
				r.ExpirationPeriodMs = &exp
			}
			routesByFace[route.FaceId] = append(routesByFace[route.FaceId], r)
		}
	}

	out := make([]FaceJSON, 0, len(faces))
	for _, f := range faces {
		if f.FaceScope != faceScopeNonLocal {
			continue
		}
		fj := FaceJSON{
			RemoteURI:       f.Uri,
			LocalURI:        f.LocalUri,
			LinkType:        f.LinkType,
			FaceScope:       f.FaceScope,
			FacePersistency: f.FacePersistency,
			Flags:           f.Flags,
			InInterests:     f.NInInterests,
			OutInterests:    f.NOutInterests,
			InBytes:         f.NInBytes,
			OutBytes:        f.NOutBytes,
			InData:          f.NInData,
			OutData:         f.NOutData,
			InNacks:         f.NInNacks,
			OutNacks:        f.NOutNacks,
			Routes:          routesByFace[f.FaceId],
		}
		if fj.Routes == nil {
			fj.Routes = []RouteJSON{}
		}
		if mtu, ok := f.Mtu.Get(); ok {
			fj.Mtu = &mtu
		}
		if th, ok := f.DefaultCongestionThreshold.Get(); ok {
			fj.DefaultCongestionThreshold = &th
		}
		if iv, ok := f.BaseCongestionMarkingInterval.Get(); ok {
			fj.BaseCongestionMarkingInterval = &iv
		}
		if exp, ok := f.ExpirationPeriod.Get(); ok {
			fj.ExpirationPeriodMs = &exp
		}
		out = append(out, fj)
	}

	payload, err := json.MarshalIndent(struct {
		Faces []FaceJSON `json:"faces"`
	}{Faces: out}, "", "  ")
	if err != nil {
		log.Error(s, "Failed to marshal status JSON", "err", err)
		return nil, err
	}
	return payload, nil
}
