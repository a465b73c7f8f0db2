package agent

import (
	"encoding/binary"
	"fmt"
	"net"

	enc "github.com/named-data/ndnd/std/encoding"
)

// Verb names the kind of discovery exchange carried by a name, per the
// verb markers scanned for during decode.
type Verb string

const (
	VerbArrival      Verb = "arrival"
	VerbDeparture    Verb = "departure"
	VerbInfo         Verb = "nd-info"
	VerbKeepalive    Verb = "nd-keepalive"
	VerbPing         Verb = "ping"
	VerbStatus       Verb = "nd-status"
)

var allVerbs = []Verb{VerbArrival, VerbDeparture, VerbInfo, VerbKeepalive, VerbPing, VerbStatus}

// ErrMalformedName is returned by Decode when a received name does not carry
// a recognized verb marker, or its fixed-width fields are truncated.
type ErrMalformedName struct {
	Name enc.Name
}

func (e *ErrMalformedName) Error() string {
	return fmt.Sprintf("malformed discovery name: %s", e.Name)
}

// DiscoveryMsg carries the fields encoded into and decoded from a discovery
// name: the verb, the sender's IPv4 address and port, the sender's name
// prefix, and the trailing timestamp (ignored for equality purposes).
type DiscoveryMsg struct {
	Verb      Verb
	IP        net.IP
	Port      uint16
	Prefix    enc.Name
	Timestamp uint64
}

// Encode builds `<base>/<verb>/<ip-bytes>/<port-bytes>/<prefix-length>/<prefix-components...>/<timestamp>`.
func Encode(base enc.Name, verb Verb, ip net.IP, port uint16, prefix enc.Name, timestamp uint64) enc.Name {
	ip4 := ip.To4()
	if ip4 == nil {
		ip4 = net.IPv4zero.To4()
	}
	portBytes := make([]byte, 2)
	binary.BigEndian.PutUint16(portBytes, port)

	name := base.
		Append(enc.NewGenericComponent(string(verb))).
		Append(enc.NewGenericBytesComponent(ip4)).
		Append(enc.NewGenericBytesComponent(portBytes)).
		Append(enc.NewNumberComponent(enc.TypeGenericNameComponent, uint64(len(prefix))))
	name = name.Append(prefix...)
	name = name.Append(enc.NewTimestampComponent(timestamp))
	return name
}

// Decode scans name left-to-right for a verb marker, then reads the
// following ip/port/prefix-length/prefix/timestamp fields. Components
// preceding the verb (the broadcast or peer prefix under which the
// interest arrived) are not returned; callers that need them already have
// the base prefix to hand.
func Decode(name enc.Name) (*DiscoveryMsg, error) {
	for i, c := range name {
		var verb Verb
		matched := false
		for _, v := range allVerbs {
			if c.IsGeneric(string(v)) {
				verb = v
				matched = true
				break
			}
		}
		if !matched {
			continue
		}

		rest := name[i+1:]
		if len(rest) < 4 {
			return nil, &ErrMalformedName{Name: name}
		}

		ipComp := rest[0]
		if len(ipComp.Val) != 4 {
			return nil, &ErrMalformedName{Name: name}
		}
		ip := net.IPv4(ipComp.Val[0], ipComp.Val[1], ipComp.Val[2], ipComp.Val[3])

		portComp := rest[1]
		if len(portComp.Val) != 2 {
			return nil, &ErrMalformedName{Name: name}
		}
		port := binary.BigEndian.Uint16(portComp.Val)

		lenComp := rest[2]
		prefixLen64, err := decodeNumber(lenComp)
		if err != nil {
			return nil, &ErrMalformedName{Name: name}
		}
		prefixLen := int(prefixLen64)

		if len(rest) < 3+prefixLen+1 {
			return nil, &ErrMalformedName{Name: name}
		}
		prefix := append(enc.Name{}, rest[3:3+prefixLen]...)

		tsComp := rest[3+prefixLen]
		ts, err := decodeNumber(tsComp)
		if err != nil {
			return nil, &ErrMalformedName{Name: name}
		}

		return &DiscoveryMsg{
			Verb:      verb,
			IP:        ip,
			Port:      port,
			Prefix:    prefix,
			Timestamp: ts,
		}, nil
	}
	return nil, &ErrMalformedName{Name: name}
}

func decodeNumber(c enc.Component) (uint64, error) {
	n, _, err := enc.ParseNat(c.Val)
	if err != nil {
		return 0, err
	}
	return uint64(n), nil
}
