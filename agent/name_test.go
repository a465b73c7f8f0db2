package agent

import (
	"net"
	"testing"

	enc "github.com/named-data/ndnd/std/encoding"
	"github.com/stretchr/testify/require"
)

func mustName(t *testing.T, s string) enc.Name {
	t.Helper()
	n, err := enc.NameFromStr(s)
	require.NoError(t, err)
	return n
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	base := mustName(t, "/ndn/multicast/ah")
	prefix := mustName(t, "/a/b")
	ip := net.ParseIP("10.0.0.2")

	name := Encode(base, VerbArrival, ip, 6363, prefix, 1234)

	got, err := Decode(name)
	require.NoError(t, err)
	require.Equal(t, VerbArrival, got.Verb)
	require.True(t, got.IP.Equal(ip))
	require.EqualValues(t, 6363, got.Port)
	require.True(t, got.Prefix.Equal(prefix))
	require.EqualValues(t, 1234, got.Timestamp)
}

func TestDecodeRejectsNameWithoutVerb(t *testing.T) {
	name := mustName(t, "/ndn/multicast/ah/not-a-verb")
	_, err := Decode(name)
	require.Error(t, err)
}

func TestDecodeRejectsTruncatedFields(t *testing.T) {
	base := mustName(t, "/ndn/multicast/ah")
	name := base.Append(enc.NewGenericComponent(string(VerbArrival)))
	_, err := Decode(name)
	require.Error(t, err)
}
