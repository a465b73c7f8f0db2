package agent

import (
	"encoding/json"
	"testing"

	mgmt "github.com/named-data/ndnd/std/ndn/mgmt_2022"
	"github.com/stretchr/testify/require"
)

func TestStatusReportFiltersToNonLocalFacesAndCorrelatesRoutes(t *testing.T) {
	fcc := &mockFCC{
		faces: []mgmt.FaceStatus{
			{FaceId: 1, FaceScope: faceScopeNonLocal, Uri: "udp4://10.0.0.2:6363"},
			{FaceId: 2, FaceScope: 1, Uri: "internal://"},
		},
	}
	s := &Status{fcc: &fccWithRib{mockFCC: fcc, ribEntries: []mgmt.RibEntry{
		{Name: mustName(t, "/b"), Routes: []mgmt.Route{
			{FaceId: 1, Origin: AgentRouteOrigin, Cost: 0, Flags: AgentRouteFlags},
		}},
	}}}

	payload, err := s.Report()
	require.NoError(t, err)

	var doc struct {
		Faces []FaceJSON `json:"faces"`
	}
	require.NoError(t, json.Unmarshal(payload, &doc))
	require.Len(t, doc.Faces, 1)
	require.Equal(t, "udp4://10.0.0.2:6363", doc.Faces[0].RemoteURI)
	require.Len(t, doc.Faces[0].Routes, 1)
	require.Equal(t, "/b", doc.Faces[0].Routes[0].Name)
}

func TestStatusReportErrorsWhenNoFaces(t *testing.T) {
	s := NewStatus(&mockFCC{})
	_, err := s.Report()
	require.Error(t, err)
}

// fccWithRib layers a fixed RIB dataset on top of mockFCC's face behavior.
type fccWithRib struct {
	*mockFCC
	ribEntries []mgmt.RibEntry
}

func (f *fccWithRib) FetchRib() ([]mgmt.RibEntry, error) { return f.ribEntries, nil }
